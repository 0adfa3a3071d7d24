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

package hashtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetDelete(t *testing.T) {
	tbl := New[int](16)

	_, ok := tbl.Get("/a")
	assert.False(t, ok)

	tbl.Set("/a", 1)
	tbl.Set("/b", 2)
	v, ok := tbl.Get("/a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	tbl.Set("/a", 3)
	v, ok = tbl.Get("/a")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	assert.True(t, tbl.Delete("/a"))
	_, ok = tbl.Get("/a")
	assert.False(t, ok)
	assert.False(t, tbl.Delete("/a"))
}

func TestAllocOrGet(t *testing.T) {
	tbl := New[string](16)

	v, existed := tbl.AllocOrGet("/k")
	assert.False(t, existed)
	assert.Equal(t, "", v)

	tbl.Set("/k", "hello")
	v, existed = tbl.AllocOrGet("/k")
	assert.True(t, existed)
	assert.Equal(t, "hello", v)
}

func TestDeletePrefix(t *testing.T) {
	tbl := New[int](16)
	tbl.Set("/dir/a", 1)
	tbl.Set("/dir/b", 2)
	tbl.Set("/other/c", 3)

	removed := tbl.DeletePrefix("/dir/")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, tbl.Len())

	_, ok := tbl.Get("/other/c")
	assert.True(t, ok)
}

func TestCollisionChainsSurviveManyKeys(t *testing.T) {
	tbl := New[int](16)
	const n = 5000
	for i := 0; i < n; i++ {
		tbl.Set(fmt.Sprintf("/file-%d", i), i)
	}
	assert.Equal(t, n, tbl.Len())
	for i := 0; i < n; i += 37 {
		v, ok := tbl.Get(fmt.Sprintf("/file-%d", i))
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}
