// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package info

import (
	"flag"
	"fmt"
	"os"

	"github.com/embeddedgo/ocltool/ocltool/internal/session"
	"github.com/embeddedgo/ocltool/ocltool/internal/util"
)

const Descr = "probe the loader and print the flash bank geometry"

func Main(args []string) {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS]\nOptions:\n", args[0])
		fs.PrintDefaults()
	}
	sf := session.AddFlags(fs)
	sectors := fs.Bool("sectors", false, "print the sector table")
	fs.Parse(args[1:])
	if fs.NArg() != 0 {
		fs.Usage()
		os.Exit(1)
	}
	targets, err := sf.Targets(false)
	util.FatalErr("", err)
	ctx, cancel := session.Context()
	defer cancel()
	s, err := session.Open(ctx, targets[0], sf.Logger())
	session.FatalErr("", err)
	defer s.Close()

	fmt.Printf("%s: %s\n", s.Name, s.Driver.Info())
	if !*sectors {
		return
	}
	b := s.Driver.Bank()
	for i, sec := range b.Sectors() {
		fmt.Printf(
			"%4d: %#08x %8d  erased: %-7v protected: %v\n",
			i, b.Base()+sec.Offset, sec.Size, sec.Erased, sec.Protected,
		)
	}
}
