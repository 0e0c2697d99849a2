// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package oclsim simulates the resident loader on the target side of the
// debug communication channel. A Loader implements ocl.Port and ocl.Target so
// the ocl driver can be exercised without hardware.
package oclsim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/embeddedgo/ocltool/ocltool/internal/ocl"
)

// Loader error codes sent as CmdErr|code.
const (
	ErrChecksum = 1
	ErrRange    = 2
	ErrUnknown  = 0xffff
)

// ErrEmpty is returned by Receive when the loader has nothing to send.
var ErrEmpty = errors.New("oclsim: no word to receive")

type timeoutError struct{}

func (timeoutError) Error() string { return "oclsim: no reply pending" }
func (timeoutError) Timeout() bool { return true }

type Config struct {
	Base       uint32
	Size       uint32
	NumSectors uint32
	BufLen     uint32
	BufAlign   uint32

	// ReplyCode, if not nil, is called for every complete command. A non-zero
	// result is sent instead of the normal reply and the command is not
	// executed.
	ReplyCode func(op ocl.Opcode) uint32

	// Unresponsive loader consumes commands but never replies.
	Unresponsive bool

	Halted bool
}

// Command is a command received by the loader.
type Command struct {
	Op    ocl.Opcode
	Words []uint32 // the whole packet
}

type Loader struct {
	mu     sync.Mutex
	cfg    Config
	flash  []byte
	in     []uint32
	out    []uint32
	cmds   []Command
	halted bool
}

func New(cfg Config) *Loader {
	l := &Loader{cfg: cfg, flash: make([]byte, cfg.Size), halted: cfg.Halted}
	for i := range l.flash {
		l.flash[i] = 0xff
	}
	return l
}

// Send implements ocl.Port.
func (l *Loader) Send(ctx context.Context, words []uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.in = append(l.in, words...)
	for l.parse() {
	}
	return nil
}

// Receive implements ocl.Port.
func (l *Loader) Receive(ctx context.Context, words []uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.out) < len(words) {
		return ErrEmpty
	}
	n := copy(words, l.out)
	l.out = l.out[n:]
	return nil
}

// Handshake implements ocl.Port. The simulated loader replies immediately
// so Handshake never waits: it fails with a timeout error if there is no
// word pending, whatever the timeout.
func (l *Loader) Handshake(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.Pending() == 0 {
		return timeoutError{}
	}
	return nil
}

// Running implements ocl.Target.
func (l *Loader) Running(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.halted, nil
}

// Halt stops (true) or resumes (false) the simulated target.
func (l *Loader) Halt(halted bool) {
	l.mu.Lock()
	l.halted = halted
	l.mu.Unlock()
}

// Mute makes the loader stop (true) or resume (false) replying.
func (l *Loader) Mute(mute bool) {
	l.mu.Lock()
	l.cfg.Unresponsive = mute
	l.mu.Unlock()
}

// Pending returns the number of words waiting to be received by the host.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.out)
}

// Stale queues w as if it was left in the channel by an earlier session.
func (l *Loader) Stale(w uint32) {
	l.mu.Lock()
	l.out = append(l.out, w)
	l.mu.Unlock()
}

// Commands returns the commands received so far.
func (l *Loader) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.cmds...)
}

// Flash returns a copy of the flash content.
func (l *Loader) Flash() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.flash...)
}

// parse executes the first command in l.in if it is complete.
func (l *Loader) parse() bool {
	if len(l.in) == 0 {
		return false
	}
	op := ocl.Opcode(l.in[0])
	n := 1
	switch op.Cmd() {
	case ocl.EraseBlock:
		n = 3
	case ocl.FlashBlock:
		if len(l.in) < 2 {
			return false
		}
		n = 2 + ocl.PackedLen(int(op.Arg()), l.byteofs(l.in[1])) + 1
	}
	if len(l.in) < n {
		return false
	}
	words := append([]uint32(nil), l.in[:n]...)
	l.in = l.in[n:]
	l.cmds = append(l.cmds, Command{op, words})
	if l.cfg.Unresponsive {
		return true
	}
	if l.cfg.ReplyCode != nil {
		if code := l.cfg.ReplyCode(op); code != 0 {
			l.out = append(l.out, code)
			return true
		}
	}
	l.out = append(l.out, l.exec(op, words)...)
	return true
}

func (l *Loader) byteofs(offset uint32) uint32 {
	align := l.cfg.BufAlign
	if align == 0 {
		align = 1
	}
	return offset % align % 4
}

func fail(code uint32) []uint32 {
	return []uint32{uint32(ocl.CmdErr) | code}
}

func (l *Loader) exec(op ocl.Opcode, words []uint32) []uint32 {
	done := []uint32{uint32(ocl.CmdDone)}
	switch op.Cmd() {
	case ocl.Probe:
		return append(done, l.cfg.Base, l.cfg.Size, l.cfg.NumSectors,
			l.cfg.BufLen&0xffff|l.cfg.BufAlign<<16)
	case ocl.EraseAll:
		l.erase(0, uint64(len(l.flash)))
		return done
	case ocl.EraseBlock:
		first, last := uint64(words[1]), uint64(words[2])
		if l.cfg.NumSectors == 0 || first > last || last >= uint64(l.cfg.NumSectors) {
			return fail(ErrRange)
		}
		ss := uint64(l.cfg.Size / l.cfg.NumSectors)
		l.erase(first*ss, (last+1)*ss)
		return done
	case ocl.FlashBlock:
		n := int(op.Arg())
		offset := words[1]
		payload := words[2 : len(words)-1]
		if ocl.Checksum(payload) != words[len(words)-1] {
			return fail(ErrChecksum)
		}
		if uint64(offset)+uint64(n) > uint64(len(l.flash)) {
			return fail(ErrRange)
		}
		for i, b := range ocl.Unpack(payload, l.byteofs(offset), n) {
			l.flash[offset+uint32(i)] &= b
		}
		return done
	}
	return fail(ErrUnknown)
}

func (l *Loader) erase(start, end uint64) {
	for i := start; i < end; i++ {
		l.flash[i] = 0xff
	}
}
