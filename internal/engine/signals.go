// Copyright 2026 The rar2fs-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"os"
	"os/signal"
	"syscall"
)

// signalHandler wires SIGUSR1 (full cache invalidation, optionally
// restarting warmup) and SIGHUP (rarconfig reload) into an Engine, grounded
// on the source's sighandler.c, which installs handlers for the same two
// signals around the same two actions (spec §6 "Signals").
type signalHandler struct {
	e      *Engine
	ch     chan os.Signal
	stopCh chan struct{}
}

func newSignalHandler(e *Engine) *signalHandler {
	return &signalHandler{
		e:      e,
		ch:     make(chan os.Signal, 4),
		stopCh: make(chan struct{}),
	}
}

// Start begins listening for SIGUSR1/SIGHUP in the background.
func (h *signalHandler) Start() {
	signal.Notify(h.ch, syscall.SIGUSR1, syscall.SIGHUP)
	go h.run()
}

// Stop unregisters the signal handler and terminates its goroutine.
func (h *signalHandler) Stop() {
	signal.Stop(h.ch)
	close(h.stopCh)
}

func (h *signalHandler) run() {
	for {
		select {
		case sig := <-h.ch:
			switch sig {
			case syscall.SIGUSR1:
				h.e.InvalidateAll()
			case syscall.SIGHUP:
				if err := h.e.reloadConfig(); err != nil {
					h.e.logf("rarconfig reload failed: %v", err)
				}
			}
		case <-h.stopCh:
			return
		}
	}
}

// InvalidateAll drops every cached filecache/dircache entry (spec §6
// "SIGUSR1 — invalidate all filecache and dircache entries; optionally
// restart warmup") and, if warmup was running, restarts it so the caches
// begin repopulating immediately rather than waiting for the next reader.
func (e *Engine) InvalidateAll() {
	e.Files.InvalidateAll()
	e.Dirs.InvalidateAll()
	e.logf("invalidated all caches")
	if e.opts.WarmupEnabled {
		e.StopWarmup()
		e.StartWarmup()
	}
}
