// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dcc

import (
	"errors"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const DefaultBaud = 115200

// Serial read timeout. A bridge that does not answer within it is considered
// disconnected.
const serialTimeout = time.Second

var errSerialTimeout = errors.New("serial read timeout")

type serialLink struct {
	serial.Port
}

// Read turns the (0, nil) result of the timed out read into an error.
func (l serialLink) Read(p []byte) (int, error) {
	n, err := l.Port.Read(p)
	if n == 0 && err == nil {
		err = errSerialTimeout
	}
	return n, err
}

// OpenSerial opens the bridge connected to the serial port name. Zero baud
// selects DefaultBaud.
func OpenSerial(name string, baud int, opts ...Option) (b *Bridge, err error) {
	defer wrapErr("OpenSerial", &err)
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return
	}
	if err = port.SetReadTimeout(serialTimeout); err != nil {
		port.Close()
		return
	}
	if err = port.ResetInputBuffer(); err != nil {
		port.Close()
		return
	}
	return New(serialLink{port}, opts...), nil
}

// PortInfo describes a serial port.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// ListSerial lists the serial ports available in the system.
func ListSerial() (ports []PortInfo, err error) {
	defer wrapErr("ListSerial", &err)
	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return
	}
	for _, p := range list {
		ports = append(ports, PortInfo{
			Name:    p.Name,
			USB:     p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	return
}
