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

package filecache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasse69/rar2fs-sub000/internal/member"
)

func TestAllocGetOverwrite(t *testing.T) {
	c := New()

	e := c.Alloc("/a/b.txt")
	require.NotNil(t, e)
	e.Stat.Size = 14

	got, ok := c.Get("/a/b.txt")
	require.True(t, ok)
	assert.Equal(t, int64(14), got.Stat.Size)

	// Alloc again returns the same entry, not a fresh one.
	again := c.Alloc("/a/b.txt")
	assert.Same(t, e, again)
}

func TestLocalAndLoopSentinels(t *testing.T) {
	c := New()
	c.Local("/a/local.txt")
	c.Loop("/a/loop")

	e, ok := c.Get("/a/local.txt")
	require.True(t, ok)
	assert.Equal(t, member.KindLocal, e.Kind)

	e, ok = c.Get("/a/loop")
	require.True(t, ok)
	assert.Equal(t, member.KindLoop, e.Kind)
}

func TestCloneIsIndependent(t *testing.T) {
	c := New()
	e := c.Alloc("/a/b.txt")
	e.Stat.Size = 10

	clone := Clone(e)
	clone.Stat.Size = 20

	got, _ := c.Get("/a/b.txt")
	assert.Equal(t, int64(10), got.Stat.Size)
	assert.Equal(t, int64(20), clone.Stat.Size)
}

func TestCopyAliasesMetadataNotIdentity(t *testing.T) {
	c := New()
	src := c.Alloc("/a/real.txt")
	src.Stat.Size = 99
	src.MemberName = "real.txt"

	ok := c.Copy("/a/real.txt", "/a/alias.txt")
	require.True(t, ok)

	dst, ok := c.Get("/a/alias.txt")
	require.True(t, ok)
	assert.Equal(t, int64(99), dst.Stat.Size)
	assert.Equal(t, "/a/alias.txt", dst.Name)
	assert.NotSame(t, src, dst)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New()
	c.Alloc("/dir/a")
	c.Alloc("/dir/b")
	c.Alloc("/other/c")

	n := c.InvalidatePrefix("/dir/")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidateAll(t *testing.T) {
	c := New()
	c.Alloc("/a")
	c.Alloc("/b")
	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Alloc("/concurrent/path")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
