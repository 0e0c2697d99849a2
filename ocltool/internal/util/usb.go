// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"errors"
	"strconv"
	"strings"

	usb "github.com/google/gousb"
)

// ParseBusAddr parses the BUS:ADDR string. It returns -1, -1 if busAddr is
// not valid.
func ParseBusAddr(busAddr string) (int, int) {
	bus, dev, ok := strings.Cut(busAddr, ":")
	if !ok {
		return -1, -1
	}
	b, err := strconv.ParseUint(bus, 10, 8)
	if err != nil {
		return -1, -1
	}
	d, err := strconv.ParseUint(dev, 10, 8)
	if err != nil {
		return -1, -1
	}
	return int(b), int(d)
}

// OpenUSB opens the USB devices with the given vendor and product ID. Zero
// product matches any product of the vendor. Non-empty busAddr selects the
// device by its BUS:ADDR location.
func OpenUSB(vendor, product usb.ID, busAddr string) (ctx *usb.Context, devs []*usb.Device, err error) {
	bus, addr := ParseBusAddr(busAddr)
	if busAddr != "" && bus < 0 {
		err = errors.New("bad USB device address: " + busAddr)
		return
	}
	ctx = usb.NewContext()
	devs, err = ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if bus >= 0 && (desc.Bus != bus || desc.Address != addr) {
			return false
		}
		if desc.Vendor != vendor || product != 0 && desc.Product != product {
			return false
		}
		return true
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		ctx.Close()
		devs = nil
	}
	return
}
