// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dcc

import (
	"context"
	"errors"
	"time"

	"github.com/embeddedgo/ocltool/ocltool/internal/util"
	usb "github.com/google/gousb"
)

// USB bulk transfer timeout.
const usbTimeout = time.Second

type usbLink struct {
	ctx  *usb.Context
	dev  *usb.Device
	cfg  *usb.Config
	intf *usb.Interface
	ie   *usb.InEndpoint
	oe   *usb.OutEndpoint
}

func (l *usbLink) Read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbTimeout)
	defer cancel()
	return l.ie.ReadContext(ctx, p)
}

func (l *usbLink) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbTimeout)
	defer cancel()
	return l.oe.WriteContext(ctx, p)
}

func (l *usbLink) Close() error {
	if l.intf != nil {
		l.intf.Close()
	}
	var err error
	if l.cfg != nil {
		err = l.cfg.Close()
	}
	if e := l.dev.Close(); err == nil {
		err = e
	}
	if e := l.ctx.Close(); err == nil {
		err = e
	}
	return err
}

// OpenUSB opens the bridge that uses the vendor specific interface of the
// USB device with two bulk endpoints. You can select the concrete device on
// the USB bus by providing BUS:DEV string where both BUS and DEV are decimal
// unsigned integers. If busAddr is empty OpenUSB returns an error if there is
// more than one matching device.
func OpenUSB(vendor, product usb.ID, busAddr string, opts ...Option) (b *Bridge, err error) {
	defer wrapErr("OpenUSB", &err)
	ctx, devs, err := util.OpenUSB(vendor, product, busAddr)
	if err != nil {
		return
	}
	if len(devs) != 1 {
		for _, d := range devs {
			d.Close()
		}
		ctx.Close()
		if len(devs) == 0 {
			return nil, errors.New("no bridge found on the USB bus")
		}
		return nil, errors.New("found more than one bridge on the USB bus")
	}
	l := &usbLink{ctx: ctx, dev: devs[0]}
	defer func() {
		if err != nil {
			l.Close()
		}
	}()
	cn, in, an := -1, -1, -1
	for _, cfg := range l.dev.Desc.Configs {
		for _, id := range cfg.Interfaces {
			for _, is := range id.AltSettings {
				if is.Class == usb.ClassVendorSpec && len(is.Endpoints) == 2 && cn < 0 {
					cn, in, an = cfg.Number, id.Number, is.Alternate
				}
			}
		}
	}
	if cn < 0 {
		return nil, errors.New("no vendor specific interface with two endpoints")
	}
	l.dev.SetAutoDetach(true)
	if l.cfg, err = l.dev.Config(cn); err != nil {
		return
	}
	if l.intf, err = l.cfg.Interface(in, an); err != nil {
		return
	}
	var rxn, txn int
	for _, ed := range l.intf.Setting.Endpoints {
		if ed.TransferType != usb.TransferTypeBulk {
			continue
		}
		if ed.Direction == usb.EndpointDirectionIn {
			rxn = ed.Number
		} else {
			txn = ed.Number
		}
	}
	if rxn == 0 {
		return nil, errors.New("no USB IN endpoint in the USB interface")
	}
	if txn == 0 {
		return nil, errors.New("no USB OUT endpoint in the USB interface")
	}
	if l.ie, err = l.intf.InEndpoint(rxn); err != nil {
		return
	}
	if l.oe, err = l.intf.OutEndpoint(txn); err != nil {
		return
	}
	return New(l, opts...), nil
}
