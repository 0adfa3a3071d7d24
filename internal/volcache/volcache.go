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

// Package volcache bounds the number of raw-mode volume files kept open
// process-wide. A media library with many multi-volume sets open at once
// would otherwise hold one *os.File per distinct volume per open handle
// indefinitely; this wraps internal/dispatch.VolumeOpener around an LRU
// so the process' open-file count stays proportional to a configured
// ceiling rather than to how many files happen to be playing. This is a
// supplemented concern (spec §5's "Shared-resource policy" describes the
// per-open raw-read mutex but is silent on a process-wide fd ceiling);
// the teacher's own go.mod already carries golang-lru/v2 as an indirect
// dependency, so this promotes it to direct, concrete use rather than
// leaving it an unexercised transitive dependency.
package volcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hasse69/rar2fs-sub000/internal/dispatch"
)

// handle is the refcounted volume wrapper stored in the LRU: a volume
// can be evicted from the cache while a reader still holds it open, so
// the underlying file is only actually closed once its refcount drops to
// zero (spec §5 "Archive volume files are opened read-only; at most one
// reader per (open, volume) at a time").
type handle struct {
	mu   sync.Mutex
	vol  dispatch.Volume
	refs int
}

func (h *handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.refs <= 0 {
		h.vol.Close()
		h.vol = nil
	}
}

// Cache bounds the number of distinct open volume files process-wide,
// opening through an underlying dispatch.VolumeOpener on cache miss.
type Cache struct {
	mu     sync.Mutex
	opener dispatch.VolumeOpener
	lru    *lru.Cache[string, *handle]
}

// New returns a Cache of at most capacity distinct open volume files,
// delegating actual opens to opener.
func New(opener dispatch.VolumeOpener, capacity int) (*Cache, error) {
	c := &Cache{opener: opener}
	l, err := lru.NewWithEvict(capacity, func(_ string, h *handle) {
		h.release()
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// leased is the Volume handed back to callers; Close decrements the
// shared handle's refcount instead of necessarily closing the file, so a
// concurrent reader on the same path keeps working after this caller is
// done.
type leased struct {
	h *handle
}

func (l *leased) ReadAt(p []byte, off int64) (int, error) {
	l.h.mu.Lock()
	v := l.h.vol
	l.h.mu.Unlock()
	if v == nil {
		return 0, errClosed
	}
	return v.ReadAt(p, off)
}

func (l *leased) Close() error {
	l.h.release()
	return nil
}

var errClosed = closedError{}

type closedError struct{}

func (closedError) Error() string { return "volcache: volume evicted and closed" }

// Open returns a leased Volume for path, opening it through the
// underlying opener on a cache miss and evicting the least-recently-used
// entry once capacity is exceeded.
func (c *Cache) Open(path string) (dispatch.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.lru.Get(path); ok {
		h.mu.Lock()
		h.refs++
		h.mu.Unlock()
		return &leased{h: h}, nil
	}

	v, err := c.opener.Open(path)
	if err != nil {
		return nil, err
	}
	// refs starts at 2: one held by the LRU itself (released only by the
	// eviction callback) and one for the lease handed back to the caller
	// here, so a caller closing its lease never closes a file the cache
	// still intends to serve from.
	h := &handle{vol: v, refs: 2}
	c.lru.Add(path, h)
	return &leased{h: h}, nil
}

// Len reports the number of distinct volume files currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
