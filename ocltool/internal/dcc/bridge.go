// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dcc provides access to the debug communication channel of the
// target through a debug probe bridge. The bridge forwards words between the
// host and the target's DCC registers and reports the target state.
//
// Every request is a frame:
//
//	magic u32 | token u16 | op u8 | n u8 | n words
//
// answered by:
//
//	magic u32 | token u16 | status u8 | n u8 | n words
//
// All fields are little endian.
package dcc

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const magic uint32 = 0x0dcc0b1d

const (
	opWrite    uint8 = 0x01 // write words to the target DCC receive register
	opRead     uint8 = 0x82 // read words from the target DCC transmit register
	opCommCtrl uint8 = 0x83 // read the DCC control register
	opState    uint8 = 0x84 // read the target state
)

// MaxWords is the largest number of words carried by a single frame.
const MaxWords = 255

// DCC control register bits.
const (
	CommCtrlR uint32 = 1 << 0 // the host data has not been read by the target yet
	CommCtrlW uint32 = 1 << 1 // the target has written a word for the host
)

// Target states.
const (
	StateUnknown uint32 = 0
	StateRunning uint32 = 1
	StateHalted  uint32 = 2
	StateReset   uint32 = 3
)

const DefaultPollRate rate.Limit = 1000

// Status is the non-zero status code of a bridge reply.
type Status uint8

var statusStr = [...]string{
	1: "target not connected",
	2: "DCC register busy",
	3: "DCC register empty",
	4: "bad request",
	5: "target in reset",
	6: "target not halted by the probe",
}

func (s Status) Error() string {
	if int(s) < len(statusStr) && statusStr[s] != "" {
		return statusStr[s]
	}
	return "bridge status " + strconv.Itoa(int(s))
}

type timeoutError struct{}

func (timeoutError) Error() string { return "handshake timeout" }
func (timeoutError) Timeout() bool { return true }

// ErrTimeout is returned by Handshake if the target has not written a word
// in time.
var ErrTimeout error = timeoutError{}

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "dcc: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// Bridge is a connection to the bridge. It implements ocl.Port and
// ocl.Target. Bridge is not safe for concurrent use.
type Bridge struct {
	link  io.ReadWriter
	r     *bufio.Reader
	lim   *rate.Limiter
	token uint16
	buf   []byte
	hdr   [8]byte
}

type Option func(*Bridge)

// WithPollRate sets the maximum number of DCC control register reads per
// second done by Handshake.
func WithPollRate(r rate.Limit) Option {
	return func(b *Bridge) {
		if r > 0 {
			b.lim.SetLimit(r)
		}
	}
}

// New returns a bridge that uses link to exchange frames. If link implements
// io.Closer it is closed by Close.
func New(link io.ReadWriter, opts ...Option) *Bridge {
	b := &Bridge{
		link: link,
		r:    bufio.NewReader(link),
		lim:  rate.NewLimiter(DefaultPollRate, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) Close() (err error) {
	if c, ok := b.link.(io.Closer); ok {
		err = c.Close()
	}
	wrapErr("Close", &err)
	return
}

// exchange sends a request and reads the reply words into reply.
func (b *Bridge) exchange(ctx context.Context, op uint8, args []uint32, reply []uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	le := binary.LittleEndian
	buf := le.AppendUint32(b.buf[:0], magic)
	buf = le.AppendUint16(buf, b.token)
	buf = append(buf, op, uint8(len(args)))
	for _, w := range args {
		buf = le.AppendUint32(buf, w)
	}
	b.buf = buf
	token := b.token
	b.token++
	if _, err := b.link.Write(buf); err != nil {
		return err
	}
	if _, err := io.ReadFull(b.r, b.hdr[:]); err != nil {
		b.resync()
		return err
	}
	if le.Uint32(b.hdr[0:]) != magic {
		b.resync()
		return errors.New("bad reply magic")
	}
	status, n := b.hdr[6], int(b.hdr[7])
	var data [4]byte
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(b.r, data[:]); err != nil {
			b.resync()
			return err
		}
		if i < len(reply) {
			reply[i] = le.Uint32(data[:])
		}
	}
	// The whole frame has been consumed so the next reply can be read even
	// if this one answers another request.
	if le.Uint16(b.hdr[4:]) != token {
		return errors.New("reply token mismatch")
	}
	if status != 0 {
		return Status(status)
	}
	if n != len(reply) {
		return errors.New("reply length " + strconv.Itoa(n) + ", want " + strconv.Itoa(len(reply)))
	}
	return nil
}

// resync drops the buffered input after a broken frame so the next reply is
// read from its beginning.
func (b *Bridge) resync() {
	if f, ok := b.link.(interface{ ResetInputBuffer() error }); ok {
		f.ResetInputBuffer()
	}
	b.r.Reset(b.link)
}

// Send writes words to the target DCC receive register.
func (b *Bridge) Send(ctx context.Context, words []uint32) (err error) {
	defer wrapErr("Send", &err)
	for len(words) != 0 {
		n := min(len(words), MaxWords)
		if err = b.exchange(ctx, opWrite, words[:n], nil); err != nil {
			return
		}
		words = words[n:]
	}
	return
}

// Receive reads len(words) words from the target DCC transmit register.
func (b *Bridge) Receive(ctx context.Context, words []uint32) (err error) {
	defer wrapErr("Receive", &err)
	for len(words) != 0 {
		n := min(len(words), MaxWords)
		if err = b.exchange(ctx, opRead, []uint32{uint32(n)}, words[:n]); err != nil {
			return
		}
		words = words[n:]
	}
	return
}

func (b *Bridge) word(ctx context.Context, op uint8) (uint32, error) {
	var r [1]uint32
	err := b.exchange(ctx, op, nil, r[:])
	return r[0], err
}

// CommCtrl returns the content of the DCC control register.
func (b *Bridge) CommCtrl(ctx context.Context) (ctrl uint32, err error) {
	ctrl, err = b.word(ctx, opCommCtrl)
	wrapErr("CommCtrl", &err)
	return
}

// State returns the target state.
func (b *Bridge) State(ctx context.Context) (state uint32, err error) {
	state, err = b.word(ctx, opState)
	wrapErr("State", &err)
	return
}

// Running reports whether the target CPU is running.
func (b *Bridge) Running(ctx context.Context) (bool, error) {
	state, err := b.State(ctx)
	return state == StateRunning, err
}

// Handshake polls the DCC control register until the target has a word for
// the host. A zero timeout means no limit.
func (b *Bridge) Handshake(ctx context.Context, timeout time.Duration) (err error) {
	defer wrapErr("Handshake", &err)
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		var ctrl uint32
		if ctrl, err = b.word(ctx, opCommCtrl); err != nil {
			return
		}
		if ctrl&CommCtrlW != 0 {
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		if err = b.lim.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The ctx deadline comes before the next poll.
			return ErrTimeout
		}
	}
}
