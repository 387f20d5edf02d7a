// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch adapts fsnotify filesystem events into calls on a
// trigger engine. It contains no matching or debounce logic of its
// own; it only produces the event stream the engine consumes.
package watch

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Notifier is the subset of trigger.Engine this adapter depends on.
type Notifier interface {
	NotifyFileEvent(path, kind string, now time.Time)
}

// Watcher bridges an *fsnotify.Watcher to a Notifier.
type Watcher struct {
	fsw      *fsnotify.Watcher
	notifier Notifier
	logger   *slog.Logger
	done     chan struct{}
}

// New wraps a new fsnotify watcher feeding notifier.
func New(notifier Notifier, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsw: fsw, notifier: notifier, logger: logger, done: make(chan struct{})}, nil
}

// Add registers path with the underlying fsnotify watcher.
func (w *Watcher) Add(path string) error {
	return w.fsw.Add(path)
}

// Run consumes fsnotify events until Close is called, translating each
// into a NotifyFileEvent call. It blocks and is intended to run on its
// own goroutine.
func (w *Watcher) Run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			kind := eventKind(ev.Op)
			if kind == "" {
				continue
			}
			w.notifier.NotifyFileEvent(ev.Name, kind, time.Now())
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// Close stops Run and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func eventKind(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "created"
	case op.Has(fsnotify.Write):
		return "modified"
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return "deleted"
	default:
		return ""
	}
}
