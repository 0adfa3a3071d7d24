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

// Package filecache implements the path -> archive-member-metadata cache
// (spec §4.D). It is the Go re-expression of the source's filecache.c: a
// single rwlock-protected table, plus clone/free_clone semantics so
// readers never hold the lock for the lifetime of an open.
package filecache

import (
	"sync"

	"github.com/hasse69/rar2fs-sub000/internal/hashtable"
	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// Cache is a thread-safe path -> *member.Entry table.
type Cache struct {
	mu    sync.RWMutex
	table *hashtable.Table[*member.Entry]
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{table: hashtable.New[*member.Entry](1024)}
}

// Get returns the entry for path, if any. The returned pointer is shared
// with the cache; callers that will use it beyond the current lock scope
// should call Clone first.
func (c *Cache) Get(path string) (*member.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Get(path)
}

// Alloc returns the existing entry for path, or creates, stores, and
// returns a fresh zero-value entry (spec §4.D `alloc`, get-or-create).
func (c *Cache) Alloc(path string) *member.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.table.Get(path); ok {
		return e
	}
	e := &member.Entry{Name: path}
	c.table.Set(path, e)
	return e
}

// Set stores e under path, overwriting any existing entry. Used when a
// real header arrives and needs to replace a ForceDir placeholder (spec
// §4.F step 3).
func (c *Cache) Set(path string, e *member.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table.Set(path, e)
}

// Local marks path as resolving to the underlying directory rather than
// any archive (the LOCAL_FS_ENTRY sentinel).
func (c *Cache) Local(path string) {
	c.Set(path, &member.Entry{Kind: member.KindLocal, Name: path})
}

// Loop marks path as a would-be self-loop (the LOOP_FS_ENTRY sentinel).
func (c *Cache) Loop(path string) {
	c.Set(path, &member.Entry{Kind: member.KindLoop, Name: path})
}

// AddFlags ORs flag into the stored entry's Flags in place, so a sticky
// bit set once (e.g. member.DryRunDone) is visible to every later Get
// without re-enumerating the archive. Reports whether path was found.
func (c *Cache) AddFlags(path string, flag member.Flags) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.table.Get(path)
	if !ok {
		return false
	}
	e.Flags |= flag
	return true
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table.Delete(path)
}

// InvalidatePrefix removes every entry whose virtual path starts with
// prefix and returns how many were removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.DeletePrefix(prefix)
}

// InvalidateAll drops every entry (spec §6 SIGUSR1).
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = hashtable.New[*member.Entry](1024)
}

// Clone takes a deep, lock-free copy of e for use by a reader across a
// long-lived operation (spec §4.D `clone`).
func Clone(e *member.Entry) *member.Entry { return e.Clone() }

// Copy aliases dst to src's metadata (a FILECOPY redirect, spec §4.D
// `copy`) while letting the caller overwrite dst's own timestamps
// afterward, since a redirect keeps its own mtime/ctime (spec §4.F step
// 7).
func (c *Cache) Copy(srcPath, dstPath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	src, ok := c.table.Get(srcPath)
	if !ok {
		return false
	}
	dst := src.Clone()
	dst.Name = dstPath
	c.table.Set(dstPath, dst)
	return true
}

// Len reports the number of cached entries (diagnostics/tests only).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Len()
}
