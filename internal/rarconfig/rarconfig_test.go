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

package rarconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[movie.rar]
seek-length = 10
save-eof = 1
password = "hunter2"
alias = "bonus.mkv","extra.mkv"

[another.rar]
seek-length = 0
`

func TestParseSectionsAndProperties(t *testing.T) {
	c, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	e := c.For("movie.rar")
	require.NotNil(t, e)
	assert.Equal(t, 10, e.SeekLength)
	assert.True(t, e.SaveEOF)
	assert.Equal(t, "hunter2", e.Password)
	assert.Equal(t, "extra.mkv", e.Aliases["bonus.mkv"])
}

func TestParseNormalisesZeroSeekLengthToOne(t *testing.T) {
	c, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	e := c.For("another.rar")
	require.NotNil(t, e)
	assert.Equal(t, 1, e.SeekLength)
}

func TestLookupFallsBackToBasename(t *testing.T) {
	c, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	e := c.Lookup("/some/dir/movie.rar")
	require.NotNil(t, e)
	assert.Equal(t, "hunter2", e.Password)
}

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	c, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, c.For("anything"))
}

func TestStemNameCollapsesBothSchemes(t *testing.T) {
	assert.Equal(t, "movie", stemName("movie.part03.rar"))
	assert.Equal(t, "movie", stemName("movie.rar"))
	assert.Equal(t, "movie", stemName("movie.r00"))
}

func TestReadPasswordSidecarPrefersVisibleFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "movie.rar")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.pwd"), []byte("secret\r\n"), 0o644))

	pw, ok := ReadPasswordSidecar(archive)
	require.True(t, ok)
	assert.Equal(t, "secret", pw)
}

func TestReadPasswordSidecarFallsBackToHiddenFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "movie.part02.rar")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".movie.pwd"), []byte("hidden-secret\n"), 0o644))

	pw, ok := ReadPasswordSidecar(archive)
	require.True(t, ok)
	assert.Equal(t, "hidden-secret", pw)
}

func TestReadPasswordSidecarMissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	_, ok := ReadPasswordSidecar(filepath.Join(dir, "movie.rar"))
	assert.False(t, ok)
}
