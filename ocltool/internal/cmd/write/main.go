// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package write

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/embeddedgo/ocltool/ocltool/internal/config"
	"github.com/embeddedgo/ocltool/ocltool/internal/ocl"
	"github.com/embeddedgo/ocltool/ocltool/internal/session"
	"github.com/embeddedgo/ocltool/ocltool/internal/util"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const Descr = "write the program image to the flash"

const pad = 0xff // erased flash

func Main(args []string) {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] [IMAGE]\n  %s [OPTIONS] -inc BIN1:ADDR1[,BIN2:ADDR2,...]\nOptions:\n",
			args[0], args[0],
		)
		fs.PrintDefaults()
	}
	sf := session.AddFlags(fs)
	inc := fs.String("inc", "", "write the binary files at the given addresses instead of IMAGE")
	offset := fs.Uint64("offset", 0, "place the raw binary IMAGE at `OFFSET` from the bank base")
	erase := fs.Bool("erase", false, "erase the touched sectors before writing")
	all := fs.Bool("all-targets", false, "write all configured targets concurrently")
	watch := fs.Bool("watch", false, "write again every time IMAGE changes")
	fs.Parse(args[1:])
	if fs.NArg() > 1 || *inc != "" && (fs.NArg() != 0 || *watch) {
		fs.Usage()
		os.Exit(1)
	}
	targets, err := sf.Targets(*all)
	util.FatalErr("", err)
	util.FatalErr("", checkPorts(targets))

	name := ""
	if *inc == "" {
		name = util.ImageName(fs.Arg(0))
	}
	w := &writer{
		targets:  targets,
		log:      sf.Logger(),
		offset:   *offset,
		erase:    *erase,
		quiet:    sf.Quiet,
		progress: len(targets) == 1 && !sf.Quiet && util.Interactive(),
	}
	ctx, cancel := session.Context()
	defer cancel()

	img, err := readImage(name, *inc)
	util.FatalErr("", err)
	session.FatalErr("", w.writeAll(ctx, img))
	if *watch {
		util.FatalErr("watch", w.watch(ctx, name))
	}
}

// image is the flattened program image.
type image struct {
	addr uint64
	data []byte
	raw  bool // placed at the bank base + offset
}

func readImage(name, inc string) (*image, error) {
	var (
		ss  util.Sections
		err error
		raw bool
	)
	src := inc
	if inc != "" {
		ss, err = util.ReadBins(inc)
	} else {
		src = name
		raw = util.ImageFormat(name) == util.FormatBin
		ss, err = util.ReadImage(name, 0)
	}
	if err != nil {
		return nil, err
	}
	addr, data, err := ss.Image(pad)
	if err == nil && len(data) == 0 {
		err = errors.New("empty image")
	}
	if err != nil {
		return nil, errors.Wrap(err, src)
	}
	return &image{addr, data, raw}, nil
}

// checkPorts ensures that every target has its own adapter. The loader
// protocol allows only one command in flight per channel.
func checkPorts(targets []config.Target) error {
	seen := make(map[string]string)
	for _, t := range targets {
		var key string
		switch t.Adapter {
		case config.AdapterSerial:
			key = "serial " + t.Port
		case config.AdapterUSB:
			key = "usb " + t.USB.VID + ":" + t.USB.PID + " " + t.USB.Bus
		default:
			continue
		}
		if other, ok := seen[key]; ok {
			return errors.Errorf("targets %q and %q share the %s adapter", other, t.Name, key)
		}
		seen[key] = t.Name
	}
	return nil
}

type writer struct {
	targets  []config.Target
	log      *slog.Logger
	offset   uint64
	erase    bool
	quiet    bool
	progress bool
}

// writeAll writes img to all targets. Every target is served by its own
// goroutine. The first error cancels the others.
func (w *writer) writeAll(ctx context.Context, img *image) error {
	if len(w.targets) == 1 {
		return w.write(ctx, w.targets[0], img)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range w.targets {
		g.Go(func() error {
			return w.write(ctx, t, img)
		})
	}
	return g.Wait()
}

func (w *writer) write(ctx context.Context, t config.Target, img *image) error {
	var opts []ocl.Option
	if w.progress {
		opts = append(opts, ocl.WithProgress(func(done, total int) {
			util.Progress(t.Name+" ", done, total, 1024, "KiB")
		}))
	}
	s, err := session.Open(ctx, t, w.log, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	b := s.Driver.Bank()
	base := uint64(b.Base())
	end := base + uint64(b.Size())
	addr := img.addr
	if img.raw {
		addr = base + w.offset
	}
	n := uint64(len(img.data))
	if addr < base || addr+n > end {
		return errors.Errorf(
			"target %q: image %#x..%#x outside the flash bank %#x..%#x",
			t.Name, addr, addr+n-1, base, end-1,
		)
	}
	ofs := uint32(addr - base)
	start := time.Now()
	if w.erase {
		first, last := b.SectorOf(ofs), b.SectorOf(ofs+uint32(n)-1)
		if err := s.Driver.Erase(ctx, first, last); err != nil {
			return errors.Wrapf(err, "target %q", t.Name)
		}
	}
	if err := s.Driver.Write(ctx, ofs, img.data); err != nil {
		return errors.Wrapf(err, "target %q", t.Name)
	}
	if !w.quiet {
		fmt.Printf(
			"%s: wrote %d bytes at %#08x in %v\n",
			t.Name, n, addr, time.Since(start).Round(time.Millisecond),
		)
	}
	return nil
}
