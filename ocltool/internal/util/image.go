// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"debug/elf"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

type Section struct {
	Vaddr  uint64 // address in the memory during execution
	Paddr  uint64 // phisical location of the section in the Flash/ROM
	Offset uint64 // offset in the file to the beggining of the section data
	Data   []byte // section data
}

type Sections []*Section

// ReadELF reads the loadable sections of the program and returns them as
// a slice. The order of the returned sections is unspecified.
func ReadELF(name string) (Sections, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	defer f.Close()
	ss := make(Sections, 0, 16)
	for i, s := range f.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_ALLOC == 0 {
			if k := i + 1; k < len(f.Sections) && len(ss) != 0 {
				ns := f.Sections[k]
				if ns.Type == elf.SHT_PROGBITS && ns.Flags&elf.SHF_ALLOC != 0 {
					// Log the non-loadable sections between loadable ones.
					Warn("readelf: skipping section '%s' (%d bytes)", s.Name, ns.Size)
				}
			}
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "%s: section %s", name, s.Name)
		}
		if len(data) == 0 {
			continue
		}
		paddr := s.Addr
		for _, p := range f.Progs {
			if p.Type != elf.PT_LOAD {
				continue
			}
			if p.Off <= s.Offset && s.Offset < p.Off+p.Filesz {
				paddr = p.Paddr + s.Offset - p.Off
				break
			}
		}
		ss = append(ss, &Section{s.Addr, paddr, s.Offset, data})
	}
	return ss, nil
}

// ReadHex reads the Intel HEX file. Every contiguous data segment becomes
// a section.
func ReadHex(name string) (Sections, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(err, name)
	}
	var ss Sections
	for _, seg := range mem.GetDataSegments() {
		a := uint64(seg.Address)
		ss = append(ss, &Section{Vaddr: a, Paddr: a, Data: seg.Data})
	}
	return ss, nil
}

// ReadBins reads binary files acording to the description
// BIN1:ADDR1[,BIN2:ADDR2[,...]] and returns them as a slice of sections.
func ReadBins(descr string) (Sections, error) {
	bins := strings.Split(descr, ",")
	ss := make(Sections, len(bins))
	for k, ba := range bins {
		i := strings.LastIndexByte(ba, ':')
		if i <= 0 {
			return nil, errors.Errorf("bad '%s' in the binary list", ba)
		}
		bin, addr := ba[:i], ba[i+1:]
		s := new(Section)
		var err error
		s.Paddr, err = strconv.ParseUint(addr, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad address in '%s'", ba)
		}
		s.Vaddr = s.Paddr
		s.Data, err = os.ReadFile(bin)
		if err != nil {
			return nil, err
		}
		ss[k] = s
	}
	return ss, nil
}

const (
	FormatELF = "elf"
	FormatHex = "hex"
	FormatBin = "bin"
)

// ImageFormat determines the image format by the file name extension: .elf,
// .hex or .ihex. Any other file is a raw binary.
func ImageFormat(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".elf":
		return FormatELF
	case ".hex", ".ihex":
		return FormatHex
	}
	return FormatBin
}

// ReadImage reads the firmware image of the format given by ImageFormat.
// A raw binary is placed at base.
func ReadImage(name string, base uint64) (Sections, error) {
	switch ImageFormat(name) {
	case FormatELF:
		return ReadELF(name)
	case FormatHex:
		return ReadHex(name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Sections{{Vaddr: base, Paddr: base, Data: data}}, nil
}

// Size returns the total size of the section data.
func (ss Sections) Size() int {
	n := 0
	for _, s := range ss {
		n += len(s.Data)
	}
	return n
}

// SortByPaddr sorts sections according to the Paddr field.
func (ss Sections) SortByPaddr() {
	sort.Slice(
		ss,
		func(i, j int) bool {
			return ss[i].Paddr < ss[j].Paddr
		},
	)
}

// Flatten flattens sections by writting their data to the provided io.Writer
// according to the Paddr field (before writting the sections are sorted using
// SortPaddr method). The gaps between sections are filled using the pad byte.
func (ss Sections) Flatten(w io.Writer, pad byte) (n int, err error) {
	if len(ss) == 0 {
		return
	}
	ss.SortByPaddr()
	pa := ss[0].Paddr
	n, err = w.Write(ss[0].Data)
	if err != nil {
		return
	}
	pa += uint64(n)
	var padCache []byte
	for _, s := range ss[1:] {
		if s.Paddr < pa {
			err = errors.Errorf("flatten: overlaping sections at %#x", s.Paddr)
			return
		}
		m := int(s.Paddr - pa)
		if m != 0 {
			m, err = w.Write(PadBytes(&padCache, m, pad))
			n += m
			if err != nil {
				return
			}
			pa += uint64(m)
		}
		m, err = w.Write(s.Data)
		n += m
		if err != nil {
			return
		}
		pa += uint64(m)
	}
	return
}

// Image returns the flattened sections and the physical address of the
// first byte.
func (ss Sections) Image(pad byte) (addr uint64, data []byte, err error) {
	if len(ss) == 0 {
		return 0, nil, errors.New("empty image")
	}
	buf := bytes.NewBuffer(make([]byte, 0, ss.Size()*5/4))
	if _, err = ss.Flatten(buf, pad); err != nil {
		return
	}
	return ss[0].Paddr, buf.Bytes(), nil
}

// PadBytes returns the slice containing n byte equal b.
func PadBytes(cache *[]byte, n int, b byte) []byte {
	var buf []byte
	if cache != nil {
		buf = *cache
	}
	if len(buf) < n || len(buf) != 0 && buf[0] != b {
		buf = make([]byte, n)
		for i := range buf {
			buf[i] = b
		}
		if cache != nil {
			*cache = buf
		}
	}
	return buf[:n]
}
