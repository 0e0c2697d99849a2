// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocl

// Packet is a complete loader command ready to be sent.
type Packet struct {
	words []uint32
}

// Opcode returns the first word of the packet.
func (p Packet) Opcode() Opcode {
	if len(p.words) == 0 {
		return 0
	}
	return Opcode(p.words[0])
}

// Len returns the packet length in words.
func (p Packet) Len() int { return len(p.words) }

// Words returns a copy of the packet words.
func (p Packet) Words() []uint32 {
	return append([]uint32(nil), p.words...)
}

// Builder builds a Packet field by field.
type Builder struct {
	words []uint32
}

// NewPacket starts a packet with the op opcode word.
func NewPacket(op Opcode) *Builder {
	return &Builder{words: []uint32{uint32(op)}}
}

// Arg appends an operand word.
func (b *Builder) Arg(v uint32) *Builder {
	b.words = append(b.words, v)
	return b
}

// Payload appends packed data words.
func (b *Builder) Payload(ws []uint32) *Builder {
	b.words = append(b.words, ws...)
	return b
}

// Checksum appends the trailing checksum word.
func (b *Builder) Checksum(sum uint32) *Builder {
	b.words = append(b.words, sum)
	return b
}

// Packet returns the built packet. The builder must not be used afterwards.
func (b *Builder) Packet() Packet {
	p := Packet{b.words}
	b.words = nil
	return p
}

func ProbePacket() Packet {
	return NewPacket(Probe).Packet()
}

func EraseAllPacket() Packet {
	return NewPacket(EraseAll).Packet()
}

func EraseBlockPacket(first, last uint32) Packet {
	return NewPacket(EraseBlock).Arg(first).Arg(last).Packet()
}

// FlashBlockPacket builds the FlashBlock command that writes n bytes, packed
// into words, at the bank offset. It returns a *RangeError if n does not fit
// in the 16-bit run length field.
func FlashBlockPacket(offset uint32, n int, words []uint32, sum uint32) (Packet, error) {
	if n < 0 || n > MaxRunLen {
		return Packet{}, &RangeError{"run length", 0, uint64(n), MaxRunLen}
	}
	return NewPacket(FlashBlock | Opcode(n)).
		Arg(offset).
		Payload(words).
		Checksum(sum).
		Packet(), nil
}
