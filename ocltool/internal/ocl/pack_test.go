// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocl

import (
	"bytes"
	"math/rand"
	"slices"
	"testing"
)

func TestPack(t *testing.T) {
	tests := []struct {
		name    string
		p       []byte
		byteofs uint32
		words   []uint32
		sum     uint32
	}{
		{"empty", nil, 0, nil, ChecksumInit},
		{"aligned", []byte{1, 2, 3, 4, 5}, 0, []uint32{0x04030201, 0xffffff05}, 0x3afc3008},
		{"offset 2", []byte{0xaa, 0xbb}, 2, []uint32{0xbbaaffff}, 0x7aaa32f3},
		{"offset 3", []byte{0x11}, 3, []uint32{0x11ffffff}, ChecksumInit ^ 0x11ffffff},
		{"offset reduced", []byte{0x11}, 7, []uint32{0x11ffffff}, ChecksumInit ^ 0x11ffffff},
		{"full word", []byte{0xde, 0xad, 0xbe, 0xef}, 0, []uint32{0xefbeadde}, ChecksumInit ^ 0xefbeadde},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, sum := Pack(nil, tt.p, tt.byteofs)
			if !slices.Equal(words, tt.words) {
				t.Errorf("words = %#x, want %#x", words, tt.words)
			}
			if sum != tt.sum {
				t.Errorf("sum = %#08x, want %#08x", sum, tt.sum)
			}
		})
	}
}

func TestPackAppends(t *testing.T) {
	dst := []uint32{0x12345678}
	words, sum := Pack(dst, []byte{1, 2, 3, 4}, 0)
	if !slices.Equal(words, []uint32{0x12345678, 0x04030201}) {
		t.Fatalf("words = %#x", words)
	}
	// The checksum covers only the appended words.
	if sum != ChecksumInit^0x04030201 {
		t.Errorf("sum = %#08x", sum)
	}
}

func TestPackProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		p := make([]byte, rnd.Intn(70))
		rnd.Read(p)
		byteofs := uint32(rnd.Intn(4))

		words, sum := Pack(nil, p, byteofs)
		if n := PackedLen(len(p), byteofs); len(words) != n {
			t.Fatalf("len(p)=%d byteofs=%d: %d words, want %d", len(p), byteofs, len(words), n)
		}
		if c := Checksum(words); c != sum {
			t.Fatalf("sum %#08x != Checksum %#08x", sum, c)
		}
		if got := Unpack(words, byteofs, len(p)); !bytes.Equal(got, p) {
			t.Fatalf("Unpack = %x, want %x", got, p)
		}
		// Unused byte slots are 0xff.
		for k := 0; k < int(byteofs); k++ {
			if len(words) > 0 && byte(words[0]>>(k*8)) != 0xff {
				t.Fatalf("leading slot %d of %#08x not 0xff", k, words[0])
			}
		}
		if end := int(byteofs) + len(p); len(p) != 0 && end%4 != 0 {
			last := words[len(words)-1]
			for k := end % 4; k < 4; k++ {
				if byte(last>>(k*8)) != 0xff {
					t.Fatalf("trailing slot %d of %#08x not 0xff", k, last)
				}
			}
		}
	}
}

func TestPackedLen(t *testing.T) {
	tests := []struct {
		n       int
		byteofs uint32
		want    int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{4, 0, 1},
		{5, 0, 2},
		{1, 3, 1},
		{2, 3, 2},
		{8, 2, 3},
		{256, 0, 64},
		{256, 1, 65},
	}
	for _, tt := range tests {
		if got := PackedLen(tt.n, tt.byteofs); got != tt.want {
			t.Errorf("PackedLen(%d, %d) = %d, want %d", tt.n, tt.byteofs, got, tt.want)
		}
	}
}
