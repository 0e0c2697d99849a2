// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the description of the programmed targets.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// FileName is the name of the configuration file looked up in the current
// directory.
const FileName = "ocltool.json"

const (
	AdapterSerial = "serial"
	AdapterUSB    = "usb"
	AdapterSim    = "sim"
)

// Duration is a time.Duration encoded in JSON as a string ("250ms").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ns int64
		if json.Unmarshal(b, &ns) != nil {
			return errors.Errorf("bad duration %s", b)
		}
		*d = Duration(ns)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type USB struct {
	VID string `json:"vid"` // hexadecimal with 0x prefix
	PID string `json:"pid"`
	Bus string `json:"bus,omitempty"` // BUS:DEV
}

// IDs decodes the vendor and product identifiers.
func (u USB) IDs() (vid, pid uint16, err error) {
	v, err := strconv.ParseUint(u.VID, 0, 16)
	if err != nil {
		return 0, 0, errors.Wrap(err, "usb vid")
	}
	p, err := strconv.ParseUint(u.PID, 0, 16)
	if err != nil {
		return 0, 0, errors.Wrap(err, "usb pid")
	}
	return uint16(v), uint16(p), nil
}

type Reset struct {
	Pin        string   `json:"pin"`
	ActiveHigh bool     `json:"active_high,omitempty"`
	Hold       Duration `json:"hold,omitempty"`
	Settle     Duration `json:"settle,omitempty"`
}

// Sim describes the flash bank of the simulated loader.
type Sim struct {
	Base     uint32 `json:"base"`
	Size     uint32 `json:"size"`
	Sectors  uint32 `json:"sectors"`
	BufLen   uint32 `json:"buflen"`
	BufAlign uint32 `json:"bufalign"`
}

type Target struct {
	Name    string `json:"name"`
	Adapter string `json:"adapter"`
	Port    string `json:"port,omitempty"`
	Baud    int    `json:"baud,omitempty"`
	USB     *USB   `json:"usb,omitempty"`
	Reset   *Reset `json:"reset,omitempty"`

	PollRate   float64  `json:"poll_rate,omitempty"` // DCC polls per second
	AckTimeout Duration `json:"ack_timeout,omitempty"`

	// GeometryTimeout limits the wait for every geometry word sent by the
	// loader. Zero means no limit, nil selects the driver default.
	GeometryTimeout *Duration `json:"geometry_timeout,omitempty"`

	Sim *Sim `json:"sim,omitempty"`
}

type File struct {
	Targets []Target `json:"targets"`
}

// DefaultSim is the bank of the simulated loader used when the target does
// not describe it.
var DefaultSim = Sim{
	Base:     0x08000000,
	Size:     128 * 1024,
	Sectors:  32,
	BufLen:   1024,
	BufAlign: 1024,
}

// Default returns the configuration used if there is no configuration file.
func Default() *File {
	sim := DefaultSim
	return &File{Targets: []Target{{Name: "sim", Adapter: AdapterSim, Sim: &sim}}}
}

// Load reads the configuration file. A missing file gives Default.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrap(err, "config")
	}
	f := new(File)
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	for i := range f.Targets {
		if err := f.Targets[i].Validate(); err != nil {
			return nil, errors.Wrapf(err, "config: %s: target %d", path, i)
		}
	}
	return f, nil
}

// Target returns the target with the given name. Empty name selects the
// first target.
func (f *File) Target(name string) (*Target, error) {
	if len(f.Targets) == 0 {
		return nil, errors.New("config: no targets")
	}
	if name == "" {
		return &f.Targets[0], nil
	}
	for i := range f.Targets {
		if f.Targets[i].Name == name {
			return &f.Targets[i], nil
		}
	}
	return nil, errors.Errorf("config: unknown target %q", name)
}

// Validate checks the target description.
func (t *Target) Validate() error {
	switch t.Adapter {
	case AdapterSerial:
		if t.Port == "" {
			return errors.New("serial adapter requires port")
		}
	case AdapterUSB:
		if t.USB == nil {
			return errors.New("usb adapter requires usb")
		}
		if _, _, err := t.USB.IDs(); err != nil {
			return err
		}
	case AdapterSim:
		if t.Sim == nil {
			sim := DefaultSim
			t.Sim = &sim
		}
	default:
		return errors.Errorf("unknown adapter %q", t.Adapter)
	}
	if t.Baud < 0 || t.PollRate < 0 || t.AckTimeout < 0 {
		return errors.New("negative baud, poll_rate or ack_timeout")
	}
	if t.Reset != nil && t.Reset.Pin == "" {
		return errors.New("reset requires pin")
	}
	return nil
}
