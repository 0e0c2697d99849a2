// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package write

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/embeddedgo/ocltool/ocltool/internal/util"
	"github.com/fsnotify/fsnotify"
)

// Linkers and objcopy write the image in many steps.
const settle = 300 * time.Millisecond

// watch writes the image again after every change of the file until ctx is
// canceled. Failed writes are reported but do not stop watching.
func (w *writer) watch(ctx context.Context, name string) error {
	path, err := filepath.Abs(name)
	if err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	// Watch the directory to survive the file being replaced.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return err
	}
	if !w.quiet {
		fmt.Printf("watching %s\n", name)
	}
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Name == path && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				timer.Reset(settle)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch: watcher error", "err", err)
		case <-timer.C:
			img, err := readImage(name, "")
			if err == nil {
				err = w.writeAll(ctx, img)
			}
			if err != nil && ctx.Err() == nil {
				util.Warn("%v", err)
			}
		}
	}
}
