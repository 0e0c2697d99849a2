// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ocl implements the host side of the On-Chip Loader protocol. The
// loader is a small program running on the target that erases and programs
// its flash on request. Requests and replies are sequences of 32-bit words
// exchanged over a half-duplex debug communication channel (see Port).
//
// Data sent with the FlashBlock command is protected by a simple XOR
// checksum. It detects transmission errors that flip bits in a single word
// but a change that cancels out across two words goes unnoticed.
package ocl

import "strconv"

// Opcode is a loader command or reply word. The upper 16 bits select the
// command, the lower 16 bits carry an argument (the run length of
// FlashBlock, the error code of CmdErr).
type Opcode uint32

const (
	CmdMask    Opcode = 0xffff0000
	CmdDone    Opcode = 0x0acd0000
	CmdErr     Opcode = 0x0ace0000
	FlashBlock Opcode = 0x0cfb0000
	EraseBlock Opcode = 0x0ceb0000
	EraseAll   Opcode = 0x0cea0000
	Probe      Opcode = 0x0cbe0000
)

// ChecksumInit is the initial value of the FlashBlock checksum.
const ChecksumInit uint32 = 0xc100cd0c

// MaxRunLen is the largest run length that fits in the FlashBlock word.
const MaxRunLen = 0xffff

var opcodeStr = map[Opcode]string{
	CmdDone:    "OCL_CMD_DONE",
	CmdErr:     "OCL_CMD_ERR",
	FlashBlock: "OCL_FLASH_BLOCK",
	EraseBlock: "OCL_ERASE_BLOCK",
	EraseAll:   "OCL_ERASE_ALL",
	Probe:      "OCL_PROBE",
}

// Cmd returns the command part of op.
func (op Opcode) Cmd() Opcode { return op & CmdMask }

// Arg returns the argument part of op.
func (op Opcode) Arg() uint32 { return uint32(op &^ CmdMask) }

func (op Opcode) String() string {
	if s, ok := opcodeStr[op.Cmd()]; ok {
		if op.Arg() == 0 {
			return s
		}
		return s + "|" + strconv.FormatUint(uint64(op.Arg()), 10)
	}
	return "0x" + strconv.FormatUint(uint64(op), 16)
}
