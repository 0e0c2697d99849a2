// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocl

// Pack appends p to dst as a sequence of little-endian 32-bit words. The
// first byte of p is placed at the byte position byteofs%4 of the first
// word. Byte positions that receive no data are set to 0xff (the loader ANDs
// the received data with the current flash content). Pack returns the
// extended slice and the XOR checksum of all appended words.
func Pack(dst []uint32, p []byte, byteofs uint32) (words []uint32, sum uint32) {
	sum = ChecksumInit
	byteofs &= 3
	w := ^uint32(0)
	for _, b := range p {
		shift := byteofs * 8
		w &= uint32(b)<<shift | ^(uint32(0xff) << shift)
		if byteofs++; byteofs == 4 {
			dst = append(dst, w)
			sum ^= w
			w = ^uint32(0)
			byteofs = 0
		}
	}
	if byteofs != 0 {
		dst = append(dst, w)
		sum ^= w
	}
	return dst, sum
}

// PackedLen returns the number of words Pack produces for n bytes.
func PackedLen(n int, byteofs uint32) int {
	b := int(byteofs&3) + n
	return (b + 3) / 4
}

// Unpack extracts n bytes starting at the byte position byteofs%4 of the
// first word. It is the inverse of Pack.
func Unpack(words []uint32, byteofs uint32, n int) []byte {
	p := make([]byte, n)
	pos := int(byteofs & 3)
	for i := range p {
		k := pos + i
		p[i] = byte(words[k/4] >> (uint(k%4) * 8))
	}
	return p
}

// Checksum computes the FlashBlock checksum of already packed words.
func Checksum(words []uint32) uint32 {
	sum := ChecksumInit
	for _, w := range words {
		sum ^= w
	}
	return sum
}
