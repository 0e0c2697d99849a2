// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocl

import "fmt"

// Tri is a three-state flag.
type Tri int8

const (
	Unknown Tri = iota
	Yes
	No
)

func (t Tri) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "unknown"
}

type Sector struct {
	Offset    uint32 // offset from the bank base
	Size      uint32
	Erased    Tri
	Protected Tri
}

// Geometry is the bank description reported by the loader.
type Geometry struct {
	Base       uint32
	Size       uint32
	NumSectors uint32
	BufLen     uint32 // size of the loader staging buffer in bytes
	BufAlign   uint32 // staging buffer alignment in bytes
}

// decodeBuf decodes the last probe word: buflen | bufalign<<16.
func decodeBuf(w uint32) (buflen, bufalign uint32) {
	return w & 0xffff, w >> 16
}

// Validate normalizes g (zero BufAlign means 1) and checks it satisfies the
// bank invariants.
func (g *Geometry) Validate() error {
	if g.NumSectors == 0 {
		return &GeometryError{"number of sectors shall be non zero value"}
	}
	if g.Size%g.NumSectors != 0 {
		return &GeometryError{"bank size not divisible by number of sectors"}
	}
	if g.BufAlign == 0 {
		g.BufAlign = 1
	}
	if g.BufLen == 0 {
		return &GeometryError{"buflen shall be non zero value"}
	}
	if g.BufAlign > g.BufLen || g.BufLen%g.BufAlign != 0 {
		return &GeometryError{"buflen is not multiple of bufalign"}
	}
	if g.BufLen%4 != 0 {
		return &GeometryError{"buflen shall be divisible by 4"}
	}
	return nil
}

// Bank is the flash bank model. The zero value is an unprobed bank.
type Bank struct {
	geom    Geometry
	sectors []Sector
}

func newBank(g Geometry) *Bank {
	b := &Bank{geom: g, sectors: make([]Sector, g.NumSectors)}
	size := g.Size / g.NumSectors
	for i := range b.sectors {
		b.sectors[i] = Sector{Offset: uint32(i) * size, Size: size}
	}
	return b
}

// Probed reports whether the bank describes a successfully probed loader.
func (b *Bank) Probed() bool {
	return b != nil && b.geom.BufLen != 0 && b.geom.BufAlign != 0 &&
		len(b.sectors) != 0
}

func (b *Bank) Geometry() Geometry { return b.geom }
func (b *Bank) Base() uint32       { return b.geom.Base }
func (b *Bank) Size() uint32       { return b.geom.Size }
func (b *Bank) NumSectors() int    { return len(b.sectors) }
func (b *Bank) BufLen() uint32     { return b.geom.BufLen }
func (b *Bank) BufAlign() uint32   { return b.geom.BufAlign }

// Sectors returns a copy of the sector table.
func (b *Bank) Sectors() []Sector {
	return append([]Sector(nil), b.sectors...)
}

// SectorOf returns the index of the sector that contains offset or -1.
func (b *Bank) SectorOf(offset uint32) int {
	if len(b.sectors) == 0 || offset >= b.geom.Size {
		return -1
	}
	return int(offset / b.sectors[0].Size)
}

// mark sets the Erased state of the sectors that overlap [offset,
// offset+n).
func (b *Bank) mark(offset, n uint32, erased Tri) {
	if n == 0 {
		return
	}
	first, last := b.SectorOf(offset), b.SectorOf(offset+n-1)
	if first < 0 || last < 0 {
		return
	}
	for i := first; i <= last; i++ {
		b.sectors[i].Erased = erased
	}
}

func (b *Bank) markSectors(first, last int, erased Tri) {
	for i := first; i <= last; i++ {
		b.sectors[i].Erased = erased
	}
}

func (b *Bank) String() string {
	if !b.Probed() {
		return "ocl: not probed"
	}
	g := b.geom
	return fmt.Sprintf(
		"ocl: base %#08x size %d KiB, %d sectors of %d bytes, buffer %d bytes aligned to %d",
		g.Base, g.Size/1024, len(b.sectors), b.sectors[0].Size, g.BufLen, g.BufAlign,
	)
}

// Chunk is a part of a write that fits in the loader buffer.
type Chunk struct {
	Offset  uint32 // bank offset
	Len     uint32
	ByteOfs uint32 // position of the first byte in the first packed word
}

// Chunks splits the write of n bytes at offset into transfers that never
// cross the staging buffer alignment boundary. Zero bufalign means 1, as in
// Geometry.Validate. bufalign must not exceed buflen. Chunks returns nil for
// zero buflen.
func Chunks(offset, n, buflen, bufalign uint32) []Chunk {
	if bufalign == 0 {
		bufalign = 1
	}
	if buflen == 0 {
		return nil
	}
	var cs []Chunk
	for n != 0 {
		ofs := offset % bufalign
		run := n
		if uint64(n)+uint64(ofs) > uint64(buflen) {
			run = buflen - ofs
		}
		cs = append(cs, Chunk{Offset: offset, Len: run, ByteOfs: ofs % 4})
		offset += run
		n -= run
	}
	return cs
}
