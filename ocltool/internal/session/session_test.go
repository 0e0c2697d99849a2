// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/embeddedgo/ocltool/ocltool/internal/config"
	"github.com/embeddedgo/ocltool/ocltool/internal/ocl"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func parse(t *testing.T, args ...string) *Flags {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	err := os.WriteFile(path, []byte(`{"targets": [
		{"name": "a", "adapter": "serial", "port": "/dev/ttyUSB0"},
		{"name": "b", "adapter": "usb", "usb": {"vid": "0x1209", "pid": "0x0001"}}
	]}`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	ts, err := parse(t, "-config", path, "-port", "/dev/ttyUSB1", "-baud", "9600").Targets(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 1 || ts[0].Name != "a" || ts[0].Port != "/dev/ttyUSB1" || ts[0].Baud != 9600 {
		t.Errorf("targets %+v", ts)
	}

	f := parse(t, "-config", path, "-target", "b", "-usb", "2:3")
	ts, err = f.Targets(false)
	if err != nil {
		t.Fatal(err)
	}
	if ts[0].USB.Bus != "2:3" || ts[0].USB.VID != "0x1209" {
		t.Errorf("usb %+v", ts[0].USB)
	}
	ts, err = f.Targets(true)
	if err == nil {
		t.Error("overrides accepted for all targets")
	}

	ts, err = parse(t, "-config", path).Targets(true)
	if err != nil || len(ts) != 2 {
		t.Errorf("all targets: %v, %v", ts, err)
	}
	if ts[1].USB.Bus != "" {
		t.Error("override changed the configuration")
	}

	_, err = parse(t, "-config", path, "-adapter", "jtag").Targets(false)
	if err == nil || !strings.Contains(err.Error(), "jtag") {
		t.Errorf("bad adapter: %v", err)
	}
}

func TestOpenSim(t *testing.T) {
	sim := config.Sim{Base: 0x1000, Size: 0x800, Sectors: 2, BufLen: 64, BufAlign: 64}
	s, err := Open(context.Background(), config.Target{Name: "dry", Adapter: config.AdapterSim, Sim: &sim}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	b := s.Driver.Bank()
	if !b.Probed() || b.Base() != 0x1000 || b.NumSectors() != 2 {
		t.Errorf("bank %v", b)
	}
	if s.Sim == nil {
		t.Error("no simulated loader")
	}
}

func TestOpenBadGeometry(t *testing.T) {
	sim := config.Sim{Size: 0x800, Sectors: 3, BufLen: 64}
	_, err := Open(context.Background(), config.Target{Name: "dry", Adapter: config.AdapterSim, Sim: &sim}, quiet)
	if err == nil || !strings.Contains(err.Error(), `target "dry"`) {
		t.Fatalf("Open = %v", err)
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", fmt.Errorf("write: %w", ocl.ErrTimeout), "reset"},
		{"not running", ocl.ErrNotRunning, "reset"},
		{"link", &ocl.LinkError{Op: "send", Err: io.EOF}, "reset"},
		{"response", &ocl.ResponseError{Cmd: ocl.EraseAll, Code: uint32(ocl.CmdErr) | 1}, "probe"},
		{"geometry", &ocl.GeometryError{Reason: "x"}, "probe"},
		{"other", io.EOF, ""},
	}
	for _, tt := range tests {
		h := Hint(tt.err)
		if tt.want == "" && h != "" || !strings.Contains(h, tt.want) {
			t.Errorf("%s: Hint = %q, want %q", tt.name, h, tt.want)
		}
	}
}
