// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session connects the ocltool commands to the configured targets.
package session

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/embeddedgo/ocltool/ocltool/internal/config"
	"github.com/embeddedgo/ocltool/ocltool/internal/dcc"
	"github.com/embeddedgo/ocltool/ocltool/internal/ocl"
	"github.com/embeddedgo/ocltool/ocltool/internal/ocl/oclsim"
	"github.com/embeddedgo/ocltool/ocltool/internal/reset"
	"github.com/embeddedgo/ocltool/ocltool/internal/util"
	usb "github.com/google/gousb"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Flags are the command line options common to all commands.
type Flags struct {
	Config  string
	Target  string
	Adapter string
	Port    string
	Baud    int
	USB     string
	Quiet   bool
	Verbose bool
}

// AddFlags defines the common options in fs.
func AddFlags(fs *flag.FlagSet) *Flags {
	f := new(Flags)
	fs.StringVar(&f.Config, "config", config.FileName, "read the target descriptions from `FILE`")
	fs.StringVar(&f.Target, "target", "", "select the configured target by `NAME`")
	fs.StringVar(&f.Adapter, "adapter", "", "override the adapter: serial, usb or sim")
	fs.StringVar(&f.Port, "port", "", "override the serial port")
	fs.IntVar(&f.Baud, "baud", 0, "override the serial port speed")
	fs.StringVar(&f.USB, "usb", "", "select the USB bridge by `BUS:ADDR`")
	fs.BoolVar(&f.Quiet, "quiet", false, "do not print diagnostic information")
	fs.BoolVar(&f.Verbose, "v", false, "log the loader protocol")
	return f
}

// Context returns a context canceled by the interrupt signal.
func Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Logger returns the logger selected by the -v and -quiet options.
func (f *Flags) Logger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case f.Verbose:
		level = slog.LevelDebug
	case f.Quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Targets returns the selected target or, if all is true, all configured
// targets. The command line overrides apply only to a single target.
func (f *Flags) Targets(all bool) ([]config.Target, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}
	if all {
		if f.Adapter != "" || f.Port != "" || f.USB != "" || f.Baud != 0 {
			return nil, errors.New("adapter options cannot be used with all targets")
		}
		return cfg.Targets, nil
	}
	t, err := cfg.Target(f.Target)
	if err != nil {
		return nil, err
	}
	tgt := *t
	if f.Adapter != "" {
		tgt.Adapter = f.Adapter
	}
	if f.Port != "" {
		tgt.Port = f.Port
	}
	if f.Baud != 0 {
		tgt.Baud = f.Baud
	}
	if f.USB != "" {
		var u config.USB
		if tgt.USB != nil {
			u = *tgt.USB
		}
		u.Bus = f.USB
		tgt.USB = &u
	}
	if err := tgt.Validate(); err != nil {
		return nil, errors.Wrapf(err, "target %q", tgt.Name)
	}
	return []config.Target{tgt}, nil
}

// Session is an open connection to the loader of a single target.
type Session struct {
	Name   string
	Driver *ocl.Driver
	Sim    *oclsim.Loader // non-nil for the sim adapter

	closer io.Closer
	reset  *reset.Line
	log    *slog.Logger
}

// Open connects to the target, pulses its reset line if configured and
// probes the loader.
func Open(ctx context.Context, t config.Target, log *slog.Logger, opts ...ocl.Option) (s *Session, err error) {
	s = &Session{Name: t.Name, log: log.With("target", t.Name)}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
			err = errors.Wrapf(err, "target %q", t.Name)
		}
	}()

	var port ocl.Port
	var target ocl.Target
	dopts := []dcc.Option{dcc.WithPollRate(rate.Limit(t.PollRate))}
	switch t.Adapter {
	case config.AdapterSim:
		sc := config.DefaultSim
		if t.Sim != nil {
			sc = *t.Sim
		}
		s.Sim = oclsim.New(oclsim.Config{
			Base:       sc.Base,
			Size:       sc.Size,
			NumSectors: sc.Sectors,
			BufLen:     sc.BufLen,
			BufAlign:   sc.BufAlign,
		})
		port, target = s.Sim, s.Sim
	case config.AdapterSerial:
		var b *dcc.Bridge
		if b, err = dcc.OpenSerial(t.Port, t.Baud, dopts...); err != nil {
			return
		}
		s.closer = b
		port, target = b, b
	case config.AdapterUSB:
		var vid, pid uint16
		if vid, pid, err = t.USB.IDs(); err != nil {
			return
		}
		var b *dcc.Bridge
		if b, err = dcc.OpenUSB(usb.ID(vid), usb.ID(pid), t.USB.Bus, dopts...); err != nil {
			return
		}
		s.closer = b
		port, target = b, b
	default:
		return nil, errors.Errorf("unknown adapter %q", t.Adapter)
	}

	if t.Reset != nil {
		if s.reset, err = reset.Open(reset.Config{
			Pin:        t.Reset.Pin,
			ActiveHigh: t.Reset.ActiveHigh,
			Hold:       time.Duration(t.Reset.Hold),
			Settle:     time.Duration(t.Reset.Settle),
		}); err != nil {
			return
		}
		if err = s.reset.Pulse(ctx); err != nil {
			return
		}
	}

	o := []ocl.Option{ocl.WithLogger(s.log)}
	if t.AckTimeout > 0 {
		o = append(o, ocl.WithAckTimeout(time.Duration(t.AckTimeout)))
	}
	if t.GeometryTimeout != nil {
		o = append(o, ocl.WithGeometryTimeout(time.Duration(*t.GeometryTimeout)))
	}
	s.Driver = ocl.New(port, target, append(o, opts...)...)
	err = s.Driver.Probe(ctx)
	return
}

// Close releases the reset line and closes the connection.
func (s *Session) Close() error {
	var err error
	if s.reset != nil {
		err = s.reset.Close()
	}
	if s.closer != nil {
		if e := s.closer.Close(); err == nil {
			err = e
		}
	}
	return err
}

// Hint suggests how to recover from the loader error err.
func Hint(err error) string {
	switch {
	case ocl.IsLinkFault(err):
		return "check the connection to the target and reset it"
	case ocl.IsLoaderFault(err):
		return "probe the loader again or reload it"
	}
	return ""
}

// FatalErr works like util.FatalErr but adds the Hint for err.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	if h := Hint(err); h != "" {
		err = errors.Errorf("%v\nhint: %s", err, h)
	}
	util.FatalErr(what, err)
}
