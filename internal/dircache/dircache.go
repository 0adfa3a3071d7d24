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

// Package dircache implements the path -> directory-listing cache (spec
// §4.E), grounded on the source's dircache.c (a thin hashtable.c wrapper)
// generalised with the freshness check spec.md adds: a Get validates the
// cached entry against the backing directory's current mtime and evicts
// (plus cascades into the filecache) on mismatch.
package dircache

import (
	"sync"
	"time"

	"github.com/hasse69/rar2fs-sub000/internal/dirlist"
	"github.com/hasse69/rar2fs-sub000/internal/filecache"
	"github.com/hasse69/rar2fs-sub000/internal/hashtable"
)

// StatFunc returns the current mtime of a backing directory path, or an
// error if it can no longer be stat'd.
type StatFunc func(path string) (time.Time, error)

// entry is the cached listing plus the backing mtime observed when it was
// populated.
type entry struct {
	list  *dirlist.List
	mtime time.Time
}

// Cache is a thread-safe path -> populated-listing table.
type Cache struct {
	mu    sync.RWMutex
	table *hashtable.Table[*entry]

	statFn StatFunc
	files  *filecache.Cache // for cascading invalidation into children
}

// New returns an empty cache. files may be nil if cascading invalidation
// into the filecache is not needed (e.g. in unit tests of this package
// alone).
func New(statFn StatFunc, files *filecache.Cache) *Cache {
	return &Cache{
		table:  hashtable.New[*entry](1024),
		statFn: statFn,
		files:  files,
	}
}

// Get returns the listing for path if present and still fresh. A stale
// entry (backing directory mtime changed since population) is evicted and
// every filecache entry for its children invalidated, and Get reports a
// miss.
func (c *Cache) Get(path string) (*dirlist.List, bool) {
	c.mu.RLock()
	e, ok := c.table.Get(path)
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.statFn != nil {
		mtime, err := c.statFn(path)
		if err != nil || !mtime.Equal(e.mtime) {
			c.invalidate(path, e)
			return nil, false
		}
	}
	return e.list, true
}

// Put stores a freshly populated listing for path at the given backing
// mtime (spec §3 "Directory cache entry").
func (c *Cache) Put(path string, list *dirlist.List, mtime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table.Set(path, &entry{list: list, mtime: mtime})
}

// Invalidate evicts path and cascades into the filecache for its
// children, mirroring a stale mtime detection triggered out of band (e.g.
// a SIGUSR1 handler invalidating one directory).
func (c *Cache) Invalidate(path string) {
	c.mu.RLock()
	e, ok := c.table.Get(path)
	c.mu.RUnlock()
	if !ok {
		return
	}
	c.invalidate(path, e)
}

func (c *Cache) invalidate(path string, e *entry) {
	c.mu.Lock()
	c.table.Delete(path)
	c.mu.Unlock()

	if c.files == nil {
		return
	}
	prefix := path
	if len(prefix) == 0 || prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	for _, child := range e.list.Entries() {
		c.files.Invalidate(prefix + child.Name)
	}
}

// InvalidateAll drops every cached listing (spec §6 SIGUSR1).
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = hashtable.New[*entry](1024)
}

// Len reports the number of cached directories (diagnostics/tests only).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Len()
}
