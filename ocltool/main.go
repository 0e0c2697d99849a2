// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Ocltool programs the flash of a target through the On-Chip Loader resident
// in its RAM.
package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/embeddedgo/ocltool/ocltool/internal/cmd/erase"
	"github.com/embeddedgo/ocltool/ocltool/internal/cmd/info"
	"github.com/embeddedgo/ocltool/ocltool/internal/cmd/ports"
	"github.com/embeddedgo/ocltool/ocltool/internal/cmd/write"
)

type tool struct {
	descr string
	main  func(args []string)
}

var tools = map[string]tool{
	"erase": {erase.Descr, erase.Main},
	"info":  {info.Descr, info.Main},
	"ports": {ports.Descr, ports.Main},
	"write": {write.Descr, write.Main},
}

func printToolList() {
	names := slices.Sorted(maps.Keys(tools))
	maxLen := 0
	for _, k := range names {
		if maxLen < len(k) {
			maxLen = len(k)
		}
	}
	uw := os.Stderr
	uw.WriteString("Usage:\n  ocltool COMMAND [ARGUMENTS]\n\n")
	uw.WriteString("Available commands:\n")
	for _, name := range names {
		fmt.Fprintf(uw, "  %*s  %s\n", maxLen, name, tools[name].descr)
	}
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" {
		printToolList()
		return
	}
	tool, ok := tools[os.Args[1]]
	if !ok {
		printToolList()
		os.Exit(1)
	}
	tool.main(os.Args[1:])
}
