// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ports

import (
	"flag"
	"fmt"
	"os"

	"github.com/embeddedgo/ocltool/ocltool/internal/dcc"
	"github.com/embeddedgo/ocltool/ocltool/internal/util"
)

const Descr = "list the serial ports that can be used to connect the bridge"

func Main(args []string) {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS]\nOptions:\n", args[0])
		fs.PrintDefaults()
	}
	usbOnly := fs.Bool("usb", false, "list only the USB serial ports")
	fs.Parse(args[1:])
	if fs.NArg() != 0 {
		fs.Usage()
		os.Exit(1)
	}
	ports, err := dcc.ListSerial()
	util.FatalErr("", err)
	for _, p := range ports {
		if !p.USB {
			if !*usbOnly {
				fmt.Println(p.Name)
			}
			continue
		}
		fmt.Printf("%s  %s:%s", p.Name, p.VID, p.PID)
		if p.Serial != "" {
			fmt.Printf("  serial %s", p.Serial)
		}
		if p.Product != "" {
			fmt.Printf("  %s", p.Product)
		}
		fmt.Println()
	}
}
