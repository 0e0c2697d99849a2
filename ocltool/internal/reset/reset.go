// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reset drives the target reset line connected to a host GPIO pin.
package reset

import (
	"context"
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	DefaultHold   = 10 * time.Millisecond
	DefaultSettle = 50 * time.Millisecond
)

type Config struct {
	Pin        string        // GPIO name as known to periph.io (eg. GPIO17)
	ActiveHigh bool          // the reset is asserted by driving the pin high
	Hold       time.Duration // reset pulse width
	Settle     time.Duration // time for the target to start after the pulse, <0 for none
}

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "reset: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// Line is the reset line. It remembers the last level written to the pin and
// skips writes that would not change it.
type Line struct {
	pin   gpio.PinIO
	cfg   Config
	level gpio.Level
	known bool
}

// Open initializes the host GPIO drivers and opens the pin named in cfg.
func Open(cfg Config) (l *Line, err error) {
	defer wrapErr("Open", &err)
	if _, err = host.Init(); err != nil {
		return
	}
	pin := gpioreg.ByName(cfg.Pin)
	if pin == nil {
		return nil, errors.New("unknown GPIO pin " + cfg.Pin)
	}
	return New(pin, cfg), nil
}

// New returns the reset line that uses pin. The pin is not touched until the
// first Assert, Release or Pulse.
func New(pin gpio.PinIO, cfg Config) *Line {
	if cfg.Hold <= 0 {
		cfg.Hold = DefaultHold
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	} else if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	return &Line{pin: pin, cfg: cfg}
}

func (l *Line) active() gpio.Level {
	return gpio.Level(l.cfg.ActiveHigh)
}

func (l *Line) set(level gpio.Level) error {
	if l.known && l.level == level {
		return nil
	}
	if err := l.pin.Out(level); err != nil {
		l.known = false
		return err
	}
	l.level, l.known = level, true
	return nil
}

// Assert puts the target in reset.
func (l *Line) Assert() (err error) {
	err = l.set(l.active())
	wrapErr("Assert", &err)
	return
}

// Release takes the target out of reset.
func (l *Line) Release() (err error) {
	err = l.set(!l.active())
	wrapErr("Release", &err)
	return
}

// Pulse asserts the reset for the hold time, releases it and waits for the
// target to settle. The reset is released even if ctx is canceled.
func (l *Line) Pulse(ctx context.Context) (err error) {
	defer wrapErr("Pulse", &err)
	if err = l.set(l.active()); err != nil {
		return
	}
	err = sleep(ctx, l.cfg.Hold)
	if e := l.set(!l.active()); e != nil {
		return e
	}
	if err != nil {
		return
	}
	return sleep(ctx, l.cfg.Settle)
}

// Close releases the reset and reconfigures the pin as input.
func (l *Line) Close() (err error) {
	defer wrapErr("Close", &err)
	if err = l.set(!l.active()); err != nil {
		return
	}
	l.known = false
	return l.pin.In(gpio.PullNoChange, gpio.NoEdge)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
