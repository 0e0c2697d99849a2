// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Port is the debug communication channel to the loader. Send transmits
// words to the target. Handshake waits until the target has a word for the
// host, at most timeout (0 means no limit). Receive reads len(words) words
// without waiting.
//
// A Port carries one command at a time. The Driver does no locking: callers
// that share a Port between banks must serialize the operations.
type Port interface {
	Send(ctx context.Context, words []uint32) error
	Receive(ctx context.Context, words []uint32) error
	Handshake(ctx context.Context, timeout time.Duration) error
}

// Target reports the run state of the target CPU.
type Target interface {
	Running(ctx context.Context) (bool, error)
}

const (
	DefaultAckTimeout      = time.Second
	DefaultGeometryTimeout = 5 * time.Second
)

type config struct {
	log         *slog.Logger
	ackTimeout  time.Duration
	geomTimeout time.Duration
	progress    func(done, total int)
}

type Option func(*config)

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithAckTimeout sets the time the loader has to answer a command.
func WithAckTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

// WithGeometryTimeout sets the time limit for each of the geometry words
// sent by the loader after the Probe command. Zero means wait forever.
func WithGeometryTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.geomTimeout = d
		}
	}
}

// WithProgress sets a function called after every written chunk.
func WithProgress(f func(done, total int)) Option {
	return func(c *config) {
		c.progress = f
	}
}

// Driver drives the loader of one flash bank.
type Driver struct {
	port   Port
	target Target
	cfg    config
	bank   *Bank
}

// New returns a driver that talks to the loader through port. If target is
// nil the target is assumed to be always running.
func New(port Port, target Target, opts ...Option) *Driver {
	if port == nil {
		panic("ocl: nil port")
	}
	cfg := config{
		log:         slog.Default(),
		ackTimeout:  DefaultAckTimeout,
		geomTimeout: DefaultGeometryTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Driver{port: port, target: target, cfg: cfg, bank: new(Bank)}
}

// Bank returns the bank model. It is replaced by every Probe.
func (d *Driver) Bank() *Bank {
	return d.bank
}

// Info returns a one-line description of the bank.
func (d *Driver) Info() string {
	return d.bank.String()
}

// Probe asks the loader for the bank geometry and the staging buffer
// parameters. If Probe fails the bank is left unprobed.
func (d *Driver) Probe(ctx context.Context) (err error) {
	defer wrapErr("Probe", &err)
	d.bank = new(Bank)

	// Purge a reply left in the channel by an interrupted operation.
	var stale [1]uint32
	if err := d.port.Receive(ctx, stale[:]); err != nil {
		d.cfg.log.Debug("ocl: purge", "err", err)
	}

	if err = d.command(ctx, ProbePacket()); err != nil {
		return
	}

	// Detection of the loader is important so receive the parameters one by
	// one.
	var w [4]uint32
	for i := range w {
		if err = d.receive(ctx, d.cfg.geomTimeout, w[i:i+1]); err != nil {
			return
		}
	}
	g := Geometry{Base: w[0], Size: w[1], NumSectors: w[2]}
	g.BufLen, g.BufAlign = decodeBuf(w[3])
	if err = g.Validate(); err != nil {
		d.cfg.log.Error("ocl: bad geometry", "err", err,
			"base", fmt.Sprintf("%#08x", g.Base), "size", g.Size,
			"sectors", g.NumSectors, "buflen", g.BufLen, "bufalign", g.BufAlign)
		return
	}
	d.bank = newBank(g)
	d.cfg.log.Debug("ocl: probed",
		"base", fmt.Sprintf("%#08x", g.Base), "size", g.Size,
		"sectors", g.NumSectors, "buflen", g.BufLen, "bufalign", g.BufAlign)
	return nil
}

// AutoProbe returns ErrNotProbed if the bank has not been probed.
func (d *Driver) AutoProbe() (err error) {
	defer wrapErr("AutoProbe", &err)
	if !d.bank.Probed() {
		err = ErrNotProbed
	}
	return
}

// Erase erases the sectors first to last inclusive. The whole bank is
// erased with a single EraseAll command.
func (d *Driver) Erase(ctx context.Context, first, last int) (err error) {
	defer wrapErr("Erase", &err)
	if !d.bank.Probed() {
		return ErrNotProbed
	}
	n := d.bank.NumSectors()
	if first < 0 || last < first || last >= n {
		return &RangeError{"sector", uint64(first), uint64(last), uint64(n - 1)}
	}
	if err = d.checkRunning(ctx); err != nil {
		return
	}
	p := EraseAllPacket()
	if first != 0 || last != n-1 {
		p = EraseBlockPacket(uint32(first), uint32(last))
	}
	if err = d.command(ctx, p); err != nil {
		d.bank.markSectors(first, last, Unknown)
		return
	}
	d.bank.markSectors(first, last, Yes)
	return nil
}

// Write programs p at the bank offset. The data is sent in chunks that fit
// in the loader buffer. Write stops at the first failing chunk and returns
// a *ChunkError with its offset. Already written chunks stay written.
func (d *Driver) Write(ctx context.Context, offset uint32, p []byte) (err error) {
	defer wrapErr("Write", &err)
	if !d.bank.Probed() {
		return ErrNotProbed
	}
	size := uint64(d.bank.Size())
	end := uint64(offset) + uint64(len(p))
	if end > size {
		return &RangeError{"byte", uint64(offset), end - 1, size - 1}
	}
	if err = d.checkRunning(ctx); err != nil {
		return
	}
	if len(p) == 0 {
		return nil
	}
	g := d.bank.geom
	stage := make([]uint32, 0, PackedLen(int(g.BufLen), 3))
	done := 0
	for _, c := range Chunks(offset, uint32(len(p)), g.BufLen, g.BufAlign) {
		i := c.Offset - offset
		words, sum := Pack(stage[:0], p[i:i+c.Len], c.ByteOfs)
		d.cfg.log.Debug("ocl: flash block",
			"offset", fmt.Sprintf("%#x", c.Offset), "len", c.Len,
			"words", len(words), "sum", fmt.Sprintf("%#08x", sum))
		var fb Packet
		if fb, err = FlashBlockPacket(c.Offset, int(c.Len), words, sum); err == nil {
			err = d.command(ctx, fb)
		}
		if err != nil {
			d.bank.mark(c.Offset, c.Len, Unknown)
			return &ChunkError{c.Offset, c.Len, err}
		}
		d.bank.mark(c.Offset, c.Len, No)
		done += int(c.Len)
		if d.cfg.progress != nil {
			d.cfg.progress(done, len(p))
		}
	}
	return nil
}

func (d *Driver) checkRunning(ctx context.Context) error {
	if d.target == nil {
		return nil
	}
	running, err := d.target.Running(ctx)
	if err != nil {
		return linkErr("target state", err)
	}
	if !running {
		d.cfg.log.Error("ocl: " + ErrNotRunning.Error())
		return ErrNotRunning
	}
	return nil
}

// command sends p and waits for the loader reply.
func (d *Driver) command(ctx context.Context, p Packet) error {
	if err := d.port.Send(ctx, p.words); err != nil {
		return linkErr("send", err)
	}
	var r [1]uint32
	if err := d.receive(ctx, d.cfg.ackTimeout, r[:]); err != nil {
		if errors.Is(err, ErrTimeout) {
			d.cfg.log.Error("ocl: loader not responding", "cmd", p.Opcode().Cmd())
		}
		return err
	}
	if Opcode(r[0]) != CmdDone {
		d.cfg.log.Error("ocl: loader response",
			"cmd", p.Opcode().Cmd(), "code", fmt.Sprintf("%#08x", r[0]))
		return &ResponseError{p.Opcode().Cmd(), r[0]}
	}
	return nil
}

func (d *Driver) receive(ctx context.Context, timeout time.Duration, w []uint32) error {
	if err := d.port.Handshake(ctx, timeout); err != nil {
		return linkErr("handshake", err)
	}
	if err := d.port.Receive(ctx, w); err != nil {
		return linkErr("receive", err)
	}
	return nil
}
