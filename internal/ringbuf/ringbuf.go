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

// Package ringbuf implements the single-producer/single-consumer I/O
// ring buffer (spec §4.G), a direct re-expression of the source's
// iobuffer.c: a power-of-two byte region with read/write indices
// protected by a mutex, and a history window preserved behind the read
// index so short backward seeks don't need to touch the extractor.
package ringbuf

import (
	"errors"
	"io"
	"sync"
)

// ErrNotPowerOfTwo is returned by New when size isn't a power of two.
var ErrNotPowerOfTwo = errors.New("ringbuf: size must be a power of two")

// Buffer is the fixed-capacity circular region. The zero value is not
// usable; construct with New.
type Buffer struct {
	mu   sync.Mutex
	data []byte
	mask uint64 // capacity - 1

	ri, wi uint64
	used   int

	histSize int
	offset   int64 // total bytes ever produced into the buffer (monotonic)
}

// New allocates a buffer of the given capacity (must be a power of two)
// and history window size; a histSize outside [0, capacity) is replaced
// by capacity/2.
func New(capacity, histSize int) (*Buffer, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrNotPowerOfTwo
	}
	if histSize < 0 || histSize >= capacity {
		histSize = capacity / 2
	}
	return &Buffer{
		data:     make([]byte, capacity),
		mask:     uint64(capacity - 1),
		histSize: histSize,
	}, nil
}

// spaceUsed and spaceLeft mirror the source's SPACE_USED/SPACE_LEFT
// macros; callers must hold b.mu.
func (b *Buffer) spaceUsed() int { return int((b.wi - b.ri) & b.mask) }
func (b *Buffer) spaceLeft() int { return len(b.data) - b.spaceUsed() }

// WriteFrom pulls up to capacity-minus-history bytes from r into the
// buffer (spec §4.G `write_from`). When saveHist is true the history
// reserve is subtracted from the writable space, exactly as the source's
// IOB_SAVE_HIST flag does, so the producer never overwrites the window a
// concurrent backward seek might still need.
func (b *Buffer) WriteFrom(r io.Reader, saveHist bool) (int, error) {
	b.mu.Lock()
	lwi, lri := b.wi, b.ri
	b.mu.Unlock()

	left := b.spaceLeftFor(lri, lwi) - 1 // -1 to avoid wi == ri meaning full
	if saveHist && b.histSize > 0 {
		if left > b.histSize {
			left -= b.histSize
		} else {
			return 0, nil
		}
	}

	tot := 0
	var readErr error
	for left > 0 {
		chunk := len(b.data) - int(lwi)
		if chunk > left {
			chunk = left
		}
		n, err := r.Read(b.data[lwi : lwi+uint64(chunk)])
		if n > 0 {
			left -= n
			lwi = (lwi + uint64(n)) & b.mask
			tot += n
		}
		if err != nil {
			readErr = err
			break
		}
		if n == 0 {
			break
		}
	}

	b.mu.Lock()
	b.wi = lwi
	b.used = b.spaceUsedFor(b.ri, lwi)
	b.mu.Unlock()
	b.offset += int64(tot)

	if readErr == io.EOF {
		readErr = nil
	}
	return tot, readErr
}

func (b *Buffer) spaceUsedFor(ri, wi uint64) int { return int((wi - ri) & b.mask) }
func (b *Buffer) spaceLeftFor(ri, wi uint64) int { return len(b.data) - b.spaceUsedFor(ri, wi) }

// ReadInto consumes up to len(dst) bytes from the current read index,
// first skipping offsetHint bytes (spec §4.G `read_into`). It returns the
// number of bytes copied into dst.
func (b *Buffer) ReadInto(dst []byte, offsetHint int) int {
	b.mu.Lock()
	lri := b.ri
	used := b.used
	b.mu.Unlock()

	if offsetHint > 0 {
		if offsetHint > used {
			offsetHint = used
		}
		lri = (lri + uint64(offsetHint)) & b.mask
		used -= offsetHint
	}

	size := len(dst)
	if size > used {
		size = used
	}
	tot := 0
	for size > 0 {
		chunk := len(b.data) - int(lri)
		if chunk > size {
			chunk = size
		}
		copy(dst[tot:tot+chunk], b.data[lri:int(lri)+chunk])
		lri = (lri + uint64(chunk)) & b.mask
		tot += chunk
		size -= chunk
	}

	b.mu.Lock()
	b.ri = lri
	b.used -= tot
	b.mu.Unlock()
	return tot
}

// CopyAt copies len(dst) bytes starting at absolute buffer position pos
// without advancing either index (spec §4.G `copy_at`), used to serve
// backward reads within the history window.
func (b *Buffer) CopyAt(dst []byte, pos int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(dst)
	p := uint64(pos) & b.mask
	tot := 0
	for size > 0 {
		chunk := len(b.data) - int(p)
		if chunk > size {
			chunk = size
		}
		copy(dst[tot:tot+chunk], b.data[p:int(p)+chunk])
		p = (p + uint64(chunk)) & b.mask
		tot += chunk
		size -= chunk
	}
	return tot
}

// Drain discards all currently buffered, unread bytes by advancing the
// read index to meet the write index, the Go equivalent of the source's
// direct `op->buf->ri = op->buf->wi` reset performed before a large
// forward jump refills the buffer from scratch.
func (b *Buffer) Drain() {
	b.mu.Lock()
	b.ri = b.wi
	b.used = 0
	b.mu.Unlock()
}

// Reposition forcibly moves the read index to the position congruent to
// the given absolute stream offset, mirroring the source's direct
// `op->buf->ri = offset & (IOB_SZ - 1)` assignment used by the
// dispatcher. It does not change Used(). internal/dispatch calls it after
// a Drain when a forward jump discards everything previously buffered,
// and also without a Drain when it repositions within bytes already
// produced.
func (b *Buffer) Reposition(offset int64) {
	b.mu.Lock()
	b.ri = uint64(offset) & b.mask
	b.mu.Unlock()
}

// Used reports the number of unread bytes currently buffered.
func (b *Buffer) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Full reports whether the buffer has no writable space left (spec
// §4.G invariant `used <= capacity - 1`).
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	// One slot always stays reserved so that wi == ri means empty.
	return b.spaceLeftFor(b.ri, b.wi) <= 1
}

// Offset returns the total number of bytes ever produced into the buffer
// since it was created; it is monotonic and never reset by reads.
func (b *Buffer) Offset() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}

// HistSize reports the configured history window size.
func (b *Buffer) HistSize() int { return b.histSize }

// Cap reports the buffer's total capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// ReadIndex exposes the current read-index position (mod capacity).
func (b *Buffer) ReadIndex() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.ri)
}
