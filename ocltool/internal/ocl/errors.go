// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocl

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the loader did not acknowledge a command in time.
	ErrTimeout = errors.New("loader not responding")

	// ErrNotProbed is returned by operations attempted before a successful
	// Probe.
	ErrNotProbed = errors.New("flash bank not probed")

	// ErrNotRunning is returned when the target is not running so the
	// loader cannot answer.
	ErrNotRunning = errors.New("target has to be running to communicate with the loader")

	// ErrInvalid is wrapped by GeometryError.
	ErrInvalid = errors.New("invalid flash bank")
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "ocl: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// ResponseError is returned when the loader replies to Cmd with anything
// other than CmdDone.
type ResponseError struct {
	Cmd  Opcode
	Code uint32
}

func (e *ResponseError) Error() string {
	if c := Opcode(e.Code); c.Cmd() == CmdErr {
		return fmt.Sprintf("loader response to %v: loader error 0x%04x", e.Cmd.Cmd(), c.Arg())
	}
	return fmt.Sprintf("loader response to %v: 0x%08x", e.Cmd.Cmd(), e.Code)
}

// GeometryError describes the bank geometry reported by the loader that
// violates one of the bank invariants.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return ErrInvalid.Error() + ": " + e.Reason
}

func (e *GeometryError) Unwrap() error {
	return ErrInvalid
}

// RangeError is returned for sector or byte ranges outside the bank.
type RangeError struct {
	What        string
	First, Last uint64
	Limit       uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s range %d..%d outside 0..%d", e.What, e.First, e.Last, e.Limit)
}

// ChunkError reports the bank offset and length of the first FlashBlock
// transfer that failed. Bytes before Offset have been written.
type ChunkError struct {
	Offset uint32
	Len    uint32
	Err    error
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %#x+%d: %v", e.Offset, e.Len, e.Err)
}

// LinkError wraps any other error returned by the Port.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func (e *LinkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

type timeout interface {
	Timeout() bool
}

// linkErr classifies an error returned by Port.
func linkErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var t timeout
	if errors.As(err, &t) && t.Timeout() {
		return fmt.Errorf("%w (%s: %v)", ErrTimeout, op, err)
	}
	return &LinkError{op, err}
}

// IsLinkFault reports whether err is caused by the target or the debug link
// rather than by the loader (timeouts, target not running, port errors).
// Such errors usually call for resetting the target.
func IsLinkFault(err error) bool {
	var le *LinkError
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotRunning) ||
		errors.As(err, &le)
}

// IsLoaderFault reports whether err is a loader protocol or geometry
// problem. Such errors usually call for probing the bank again.
func IsLoaderFault(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) || errors.Is(err, ErrInvalid)
}
