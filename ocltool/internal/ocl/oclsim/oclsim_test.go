// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package oclsim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/embeddedgo/ocltool/ocltool/internal/ocl"
)

func reply(t *testing.T, l *Loader) uint32 {
	t.Helper()
	ctx := context.Background()
	if err := l.Handshake(ctx, time.Second); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	var w [1]uint32
	if err := l.Receive(ctx, w[:]); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return w[0]
}

func TestSplitCommand(t *testing.T) {
	l := New(Config{Size: 64, NumSectors: 1, BufLen: 16, BufAlign: 4})
	ctx := context.Background()
	words, sum := ocl.Pack(nil, []byte{1, 2, 3, 4, 5}, 0)
	p, err := ocl.FlashBlockPacket(8, 5, words, sum)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range p.Words() {
		if l.Pending() != 0 {
			t.Fatal("reply before the command is complete")
		}
		if err := l.Send(ctx, []uint32{w}); err != nil {
			t.Fatal(err)
		}
	}
	if r := reply(t, l); r != uint32(ocl.CmdDone) {
		t.Fatalf("reply %#08x", r)
	}
	f := l.Flash()
	if f[7] != 0xff || f[8] != 1 || f[12] != 5 || f[13] != 0xff {
		t.Errorf("flash % x", f[:16])
	}
}

func TestBadChecksum(t *testing.T) {
	l := New(Config{Size: 64, NumSectors: 1, BufLen: 16, BufAlign: 4})
	words, sum := ocl.Pack(nil, []byte{1, 2, 3, 4}, 0)
	p, err := ocl.FlashBlockPacket(0, 4, words, sum^1)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Send(context.Background(), p.Words()); err != nil {
		t.Fatal(err)
	}
	if r := reply(t, l); r != uint32(ocl.CmdErr)|ErrChecksum {
		t.Fatalf("reply %#08x", r)
	}
	if l.Flash()[0] != 0xff {
		t.Error("data with a bad checksum written")
	}
}

func TestHandshakeTimeout(t *testing.T) {
	l := New(Config{})
	err := l.Handshake(context.Background(), 0)
	var te interface{ Timeout() bool }
	if !errors.As(err, &te) || !te.Timeout() {
		t.Fatalf("Handshake = %v, want a timeout", err)
	}
	var w [1]uint32
	if err := l.Receive(context.Background(), w[:]); !errors.Is(err, ErrEmpty) {
		t.Errorf("Receive = %v", err)
	}
}

func TestEraseBlockRange(t *testing.T) {
	l := New(Config{Size: 64, NumSectors: 4})
	if err := l.Send(context.Background(), ocl.EraseBlockPacket(2, 4).Words()); err != nil {
		t.Fatal(err)
	}
	if r := reply(t, l); r != uint32(ocl.CmdErr)|ErrRange {
		t.Fatalf("reply %#08x", r)
	}
}
