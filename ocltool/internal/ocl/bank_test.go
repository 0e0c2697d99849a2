// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocl

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name   string
		g      Geometry
		reason string // empty for a valid geometry
	}{
		{"no sectors", Geometry{Size: 0x10000}, "number of sectors"},
		{"uneven sectors", Geometry{Size: 1000, NumSectors: 3}, "not divisible"},
		{"no buffer", Geometry{Size: 0x10000, NumSectors: 16}, "buflen shall be non zero"},
		{"align above len", Geometry{Size: 0x10000, NumSectors: 16, BufLen: 256, BufAlign: 512}, "multiple of bufalign"},
		{"len not multiple", Geometry{Size: 0x10000, NumSectors: 16, BufLen: 256, BufAlign: 3}, "multiple of bufalign"},
		{"len not words", Geometry{Size: 0x10000, NumSectors: 16, BufLen: 6, BufAlign: 2}, "divisible by 4"},
		{"valid", Geometry{Size: 0x10000, NumSectors: 16, BufLen: 256, BufAlign: 256}, ""},
		{"default align", Geometry{Size: 0x10000, NumSectors: 16, BufLen: 256}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.g
			err := g.Validate()
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if g.BufAlign == 0 {
					t.Errorf("BufAlign not normalized")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.reason)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q should contain %q", err, tt.reason)
			}
		})
	}
}

func TestDecodeBuf(t *testing.T) {
	buflen, bufalign := decodeBuf(0x0100_0200)
	if buflen != 0x200 || bufalign != 0x100 {
		t.Errorf("decodeBuf = %#x, %#x", buflen, bufalign)
	}
}

func testBank(t *testing.T) *Bank {
	t.Helper()
	g := Geometry{Base: 0x08000000, Size: 0x4000, NumSectors: 4, BufLen: 512, BufAlign: 256}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	return newBank(g)
}

func TestBankSectors(t *testing.T) {
	var zero Bank
	if zero.Probed() {
		t.Fatal("zero Bank reports probed")
	}
	if s := zero.String(); !strings.Contains(s, "not probed") {
		t.Errorf("String() = %q", s)
	}

	b := testBank(t)
	if !b.Probed() {
		t.Fatal("bank not probed")
	}
	ss := b.Sectors()
	if len(ss) != 4 {
		t.Fatalf("%d sectors", len(ss))
	}
	for i, s := range ss {
		if s.Offset != uint32(i)*0x1000 || s.Size != 0x1000 {
			t.Errorf("sector %d: %+v", i, s)
		}
		if s.Erased != Unknown || s.Protected != Unknown {
			t.Errorf("sector %d: state %v/%v", i, s.Erased, s.Protected)
		}
	}
	ss[0].Erased = Yes
	if b.Sectors()[0].Erased != Unknown {
		t.Error("Sectors does not return a copy")
	}

	for _, tc := range []struct {
		offset uint32
		want   int
	}{{0, 0}, {0xfff, 0}, {0x1000, 1}, {0x3fff, 3}, {0x4000, -1}} {
		if got := b.SectorOf(tc.offset); got != tc.want {
			t.Errorf("SectorOf(%#x) = %d, want %d", tc.offset, got, tc.want)
		}
	}

	b.mark(0xffe, 4, No)
	want := []Tri{No, No, Unknown, Unknown}
	for i, s := range b.Sectors() {
		if s.Erased != want[i] {
			t.Errorf("after mark: sector %d erased %v, want %v", i, s.Erased, want[i])
		}
	}
	b.markSectors(1, 3, Yes)
	want = []Tri{No, Yes, Yes, Yes}
	for i, s := range b.Sectors() {
		if s.Erased != want[i] {
			t.Errorf("after markSectors: sector %d erased %v, want %v", i, s.Erased, want[i])
		}
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name                        string
		offset, n, buflen, bufalign uint32
		want                        []Chunk
	}{
		{"across boundary", 0x1fe, 10, 256, 256, []Chunk{{0x1fe, 2, 2}, {0x200, 8, 0}}},
		{"4 KiB buffer", 0x0ffe, 6, 0x1000, 0x1000, []Chunk{{0x0ffe, 2, 2}, {0x1000, 4, 0}}},
		{"in buffer", 0x10, 16, 256, 256, []Chunk{{0x10, 16, 0}}},
		{"zero align", 0x3, 10, 8, 0, []Chunk{{0x3, 8, 0}, {0xb, 2, 0}}},
		{"empty", 0, 0, 256, 256, nil},
		{"zero buflen", 0, 4, 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunks(tt.offset, tt.n, tt.buflen, tt.bufalign)
			if len(got) != len(tt.want) {
				t.Fatalf("Chunks = %+v, want %+v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBankGeometries(t *testing.T) {
	tests := []struct {
		size, sectors uint32
		sectorSize    uint32
	}{
		{0x10000, 16, 0x1000},
		{0x4000, 4, 0x1000},
		{0x20000, 32, 0x1000},
		{0x800, 1, 0x800},
	}
	for _, tt := range tests {
		g := Geometry{Size: tt.size, NumSectors: tt.sectors, BufLen: 256}
		if err := g.Validate(); err != nil {
			t.Fatalf("%#x/%d: %v", tt.size, tt.sectors, err)
		}
		b := newBank(g)
		if b.NumSectors() != int(tt.sectors) {
			t.Fatalf("%#x/%d: %d sectors", tt.size, tt.sectors, b.NumSectors())
		}
		for i, s := range b.Sectors() {
			if s.Offset != uint32(i)*tt.sectorSize || s.Size != tt.sectorSize {
				t.Errorf("%#x/%d: sector %d: %+v", tt.size, tt.sectors, i, s)
			}
		}
	}
}

func TestChunksProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	aligns := []uint32{1, 2, 4, 8, 64, 256}
	for i := 0; i < 1000; i++ {
		bufalign := aligns[rnd.Intn(len(aligns))]
		buflen := bufalign * uint32(1+rnd.Intn(4))
		if buflen%4 != 0 {
			buflen *= 4
		}
		offset := uint32(rnd.Intn(0x10000))
		n := uint32(rnd.Intn(3000))

		next, total := offset, uint32(0)
		for _, c := range Chunks(offset, n, buflen, bufalign) {
			if c.Offset != next {
				t.Fatalf("chunk at %#x, want %#x", c.Offset, next)
			}
			if c.Len == 0 || c.Len > buflen {
				t.Fatalf("chunk length %d, buflen %d", c.Len, buflen)
			}
			if c.Offset%bufalign+c.Len > buflen {
				t.Fatalf("chunk %+v crosses the buffer (buflen %d, bufalign %d)", c, buflen, bufalign)
			}
			if c.ByteOfs != c.Offset%bufalign%4 {
				t.Fatalf("chunk %+v: byte offset", c)
			}
			next += c.Len
			total += c.Len
		}
		if total != n {
			t.Fatalf("chunks cover %d bytes, want %d", total, n)
		}
	}
}
