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

// Package readerworker implements the per-open reader state machine
// (spec §4.I): one goroutine per open compressed stream, pulling bytes
// from an extractor's Reader into a ringbuf.Buffer on request from the
// dispatcher. The source drives this with a request variable guarded by
// a mutex/condvar and a 1-second timed wait so a global termination flag
// is still observed promptly; here a buffered request channel is
// selected against a 1-second time.After, which wakes the idle loop
// once a second in the same way.
package readerworker

import (
	"io"
	"sync"
	"time"

	"github.com/hasse69/rar2fs-sub000/internal/ringbuf"
)

// Request is the state the worker waits on (spec §4.I).
type Request int

const (
	// Term asks the worker to exit.
	Term Request = iota
	// SyncNoRead asks the worker to acknowledge without reading, so the
	// dispatcher can safely touch buffer/stream state itself.
	SyncNoRead
	// SyncRead asks the worker to fill the buffer synchronously and
	// signal completion.
	SyncRead
	// AsyncRead asks the worker to fill opportunistically; completion is
	// not signalled per request.
	AsyncRead
)

// idleTimeout is the IDLE state's observation window (spec §4.I "a timed
// wait (1s) ... lets the thread observe a global termination flag"):
// Run's select times out after it and simply waits again; a request
// arriving earlier is handled at once.
const idleTimeout = time.Second

// Worker drives one ringbuf.Buffer from one io.Reader.
type Worker struct {
	src io.Reader
	buf *ringbuf.Buffer

	reqCh chan Request
	ackCh chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	lastErr error
}

// New returns a Worker that has not yet started running; call Run in its
// own goroutine.
func New(src io.Reader, buf *ringbuf.Buffer) *Worker {
	return &Worker{
		src:   src,
		buf:   buf,
		reqCh: make(chan Request, 1),
		ackCh: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run is the worker's main loop; it returns once Term has been observed.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		select {
		case req := <-w.reqCh:
			switch req {
			case Term:
				return
			case SyncNoRead:
				w.ackCh <- struct{}{}
			case SyncRead:
				w.fill(true)
				w.ackCh <- struct{}{}
			case AsyncRead:
				w.fill(false)
			}
		case <-time.After(idleTimeout):
			// IDLE: nothing pending, loop back and wait again.
		}
	}
}

// fill pulls bytes from src into buf; saveHist mirrors the source's
// IOB_SAVE_HIST flag, reserved for synchronous fills serving a dispatcher
// that may still need the history window behind the read index.
func (w *Worker) fill(saveHist bool) {
	_, err := w.buf.WriteFrom(w.src, saveHist)
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

// SyncNoRead asks the worker to acknowledge without reading and blocks
// until it does, letting the dispatcher safely reposition the stream
// itself (spec §4.J uses this before any raw/compressed seek).
func (w *Worker) SyncNoRead() {
	w.reqCh <- SyncNoRead
	<-w.ackCh
}

// SyncRead asks the worker to fill the buffer and blocks until it has.
func (w *Worker) SyncRead() {
	w.reqCh <- SyncRead
	<-w.ackCh
}

// AsyncRead asks the worker to opportunistically refill without
// blocking the caller for completion.
func (w *Worker) AsyncRead() {
	w.reqCh <- AsyncRead
}

// LastErr returns the error (if any) from the most recent fill.
func (w *Worker) LastErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Terminate asks the worker to exit and blocks until Run has returned.
func (w *Worker) Terminate() {
	w.reqCh <- Term
	<-w.done
}
