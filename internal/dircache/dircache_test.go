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

package dircache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasse69/rar2fs-sub000/internal/dirlist"
	"github.com/hasse69/rar2fs-sub000/internal/filecache"
	"github.com/hasse69/rar2fs-sub000/internal/member"
)

func newList(names ...string) *dirlist.List {
	l := dirlist.New()
	for _, n := range names {
		l.Append(dirlist.Entry{Name: n, Type: dirlist.RAR})
	}
	l.Close()
	return l
}

func TestGetMissOnEmptyCache(t *testing.T) {
	c := New(nil, nil)
	_, ok := c.Get("/vol")
	assert.False(t, ok)
}

func TestGetHitWhenMtimeUnchanged(t *testing.T) {
	mtime := time.Unix(1000, 0)
	stat := func(string) (time.Time, error) { return mtime, nil }

	c := New(stat, nil)
	list := newList("a.txt", "b.txt")
	c.Put("/vol", list, mtime)

	got, ok := c.Get("/vol")
	require.True(t, ok)
	assert.Same(t, list, got)
}

func TestGetEvictsOnMtimeMismatch(t *testing.T) {
	calls := 0
	stat := func(string) (time.Time, error) {
		calls++
		return time.Unix(int64(2000+calls), 0), nil
	}

	c := New(stat, nil)
	c.Put("/vol", newList("a.txt"), time.Unix(2000, 0))

	_, ok := c.Get("/vol")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestGetEvictsOnStatError(t *testing.T) {
	stat := func(string) (time.Time, error) { return time.Time{}, errors.New("gone") }

	c := New(stat, nil)
	c.Put("/vol", newList("a.txt"), time.Unix(1, 0))

	_, ok := c.Get("/vol")
	assert.False(t, ok)
}

func TestInvalidateCascadesIntoFilecache(t *testing.T) {
	files := filecache.New()
	files.Alloc("/vol/a.txt").Kind = member.KindArchive
	files.Alloc("/vol/b.txt").Kind = member.KindArchive

	c := New(nil, files)
	c.Put("/vol", newList("a.txt", "b.txt"), time.Unix(1, 0))

	c.Invalidate("/vol")

	_, ok := files.Get("/vol/a.txt")
	assert.False(t, ok)
	_, ok = files.Get("/vol/b.txt")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestInvalidateAll(t *testing.T) {
	c := New(nil, nil)
	c.Put("/a", newList("x"), time.Unix(1, 0))
	c.Put("/b", newList("y"), time.Unix(1, 0))
	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}
