// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reset

import (
	"context"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// pin records the levels written to it.
type pin struct {
	*gpiotest.Pin
	writes []gpio.Level
	fail   error
}

func (p *pin) Out(l gpio.Level) error {
	if p.fail != nil {
		return p.fail
	}
	p.writes = append(p.writes, l)
	return p.Pin.Out(l)
}

func newPin() *pin {
	return &pin{Pin: &gpiotest.Pin{N: "GPIO17", L: gpio.High}}
}

func TestPulse(t *testing.T) {
	tests := []struct {
		name       string
		activeHigh bool
		want       []gpio.Level
	}{
		{"active low", false, []gpio.Level{gpio.Low, gpio.High}},
		{"active high", true, []gpio.Level{gpio.High, gpio.Low}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPin()
			l := New(p, Config{ActiveHigh: tt.activeHigh, Hold: time.Millisecond, Settle: -1})
			start := time.Now()
			if err := l.Pulse(context.Background()); err != nil {
				t.Fatal(err)
			}
			if d := time.Since(start); d < time.Millisecond {
				t.Errorf("pulse took %v", d)
			}
			if len(p.writes) != 2 || p.writes[0] != tt.want[0] || p.writes[1] != tt.want[1] {
				t.Errorf("writes %v, want %v", p.writes, tt.want)
			}
			if p.Read() != tt.want[1] {
				t.Errorf("pin left at %v", p.Read())
			}
		})
	}
}

func TestCachedLevel(t *testing.T) {
	p := newPin()
	l := New(p, Config{})
	for i := 0; i < 3; i++ {
		if err := l.Release(); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Assert(); err != nil {
		t.Fatal(err)
	}
	if err := l.Assert(); err != nil {
		t.Fatal(err)
	}
	if len(p.writes) != 2 {
		t.Errorf("writes %v, want two", p.writes)
	}
}

func TestPulseCanceled(t *testing.T) {
	p := newPin()
	l := New(p, Config{Hold: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Pulse(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Pulse = %v", err)
	}
	if p.Read() != gpio.High {
		t.Error("reset left asserted")
	}
}

func TestErrors(t *testing.T) {
	p := newPin()
	p.fail = errors.New("pin busy")
	l := New(p, Config{})
	err := l.Assert()
	var e *Error
	if !errors.As(err, &e) || e.Op != "Assert" {
		t.Fatalf("Assert = %v", err)
	}
	if err.Error() != "reset: Assert: pin busy" {
		t.Errorf("Error() = %q", err)
	}
	p.fail = nil
	// A failed write does not update the cached level.
	if err := l.Assert(); err != nil || len(p.writes) != 1 {
		t.Errorf("Assert = %v, writes %v", err, p.writes)
	}
}

func TestClose(t *testing.T) {
	p := newPin()
	l := New(p, Config{})
	if err := l.Assert(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if len(p.writes) != 2 || p.writes[1] != gpio.High {
		t.Errorf("writes %v", p.writes)
	}
}
