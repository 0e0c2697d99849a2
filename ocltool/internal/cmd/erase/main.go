// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package erase

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/embeddedgo/ocltool/ocltool/internal/session"
	"github.com/embeddedgo/ocltool/ocltool/internal/util"
)

const Descr = "erase the flash sectors"

func Main(args []string) {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] -all\n  %s [OPTIONS] -first N [-last M]\nOptions:\n",
			args[0], args[0],
		)
		fs.PrintDefaults()
	}
	sf := session.AddFlags(fs)
	all := fs.Bool("all", false, "erase the whole flash bank")
	first := fs.Int("first", -1, "the first sector to erase")
	last := fs.Int("last", -1, "the last sector to erase (default the first one)")
	fs.Parse(args[1:])
	if fs.NArg() != 0 || *all == (*first >= 0) {
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

	if *all {
		*first, *last = 0, s.Driver.Bank().NumSectors()-1
	} else if *last < 0 {
		*last = *first
	}
	start := time.Now()
	err = s.Driver.Erase(ctx, *first, *last)
	session.FatalErr(s.Name, err)
	if !sf.Quiet {
		fmt.Printf(
			"%s: erased sectors %d..%d in %v\n",
			s.Name, *first, *last, time.Since(start).Round(time.Millisecond),
		)
	}
}
