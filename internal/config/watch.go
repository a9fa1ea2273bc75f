// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// Watcher re-reads the settings whenever a watched file is written and
// hands the result to the onChange callback. Only the mutable runtime
// knobs (default extras, stack-trace visibility) should be re-applied
// from a reload; registries written once at init stay as they are.
type Watcher struct {
	fsw    *fsnotify.Watcher
	reload func() (*Config, error)
	done   chan struct{}
}

// Watch starts watching every existing path. onChange runs on the
// watcher's goroutine; a reload that fails to parse is skipped and the
// previous settings stay in effect.
func Watch(paths []string, reload func() (*Config, error), onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, alerr.Wrap(err, alerr.CodeConfigWatchFailure, "creating watcher")
	}

	watched := 0
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := fsw.Add(p); err != nil {
			_ = fsw.Close()
			return nil, alerr.Wrap(err, alerr.CodeConfigWatchFailure,
				"watching config file", alerr.Field("path", p))
		}
		watched++
	}
	if watched == 0 {
		_ = fsw.Close()
		return nil, alerr.New(alerr.CodeConfigWatchFailure, "no config files exist to watch")
	}

	w := &Watcher{fsw: fsw, reload: reload, done: make(chan struct{})}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func(*Config)) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				cfg, err := w.reload()
				if err != nil {
					continue
				}
				onChange(cfg)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Debug("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
