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
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasse69/rar2fs-sub000/internal/dispatch"
	"github.com/hasse69/rar2fs-sub000/internal/decoder"
)

// fakeArchive/fakeOpener mirror internal/enumerate's own test doubles: a
// fixed header list served in order, with no real RAR parsing underneath.
type fakeArchive struct {
	headers []*decoder.Header
	i       int
}

func (a *fakeArchive) Next() (*decoder.Header, error) {
	if a.i >= len(a.headers) {
		return nil, io.EOF
	}
	h := a.headers[a.i]
	a.i++
	return h, nil
}

func (a *fakeArchive) Read(p []byte) (int, error) { return 0, io.EOF }
func (a *fakeArchive) Volumes() []string          { return nil }
func (a *fakeArchive) Close() error                { return nil }

type fakeOpener struct{ a *fakeArchive }

func (o *fakeOpener) Open(path, password string) (decoder.Archive, error) {
	o.a.i = 0
	return o.a, nil
}

func newTestEngine(t *testing.T) (*Engine, string, string) {
	t.Helper()
	src := t.TempDir()
	mnt := t.TempDir()
	e, err := New(src, mnt, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, src, mnt
}

func TestNewLoadsMissingConfigAsEmpty(t *testing.T) {
	e, _, _ := newTestEngine(t)
	assert.NotNil(t, e.Config())
	assert.Nil(t, e.Config().Lookup("anything.rar"))
}

func TestScanPopulatesFilecacheAndDircache(t *testing.T) {
	e, src, mnt := newTestEngine(t)
	archivePath := filepath.Join(src, "archive.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("stand-in archive bytes"), 0o644))

	e.opener = &fakeOpener{a: &fakeArchive{headers: []*decoder.Header{
		{Name: "movie.mkv", Stored: true, UnpackedSize: 5, PackedSize: 5},
	}}}

	vdir := filepath.Join(mnt, "archive")
	require.NoError(t, e.Scan(archivePath, vdir))

	entry, ok := e.Files.Get(filepath.Join(vdir, "movie.mkv"))
	require.True(t, ok)
	assert.Equal(t, int64(5), entry.Stat.Size)

	list, ok := e.Dirs.Get(vdir)
	require.True(t, ok)
	assert.Len(t, list.Entries(), 1)
}

func TestScanStaysFreshAgainstOwnArchiveMtime(t *testing.T) {
	e, src, mnt := newTestEngine(t)
	archivePath := filepath.Join(src, "archive.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("x"), 0o644))

	e.opener = &fakeOpener{a: &fakeArchive{headers: []*decoder.Header{
		{Name: "a.txt", Stored: true, UnpackedSize: 1, PackedSize: 1},
	}}}

	vdir := filepath.Join(mnt, "archive")
	require.NoError(t, e.Scan(archivePath, vdir))

	// A second Get immediately after Scan must still be a hit: the stamped
	// mtime must agree with what statDir recomputes from the same,
	// untouched archive file.
	_, ok := e.Dirs.Get(vdir)
	assert.True(t, ok)
}

func TestPasswordCallbackPrefersConfigThenSidecarThenEmpty(t *testing.T) {
	e, src, _ := newTestEngine(t)
	archivePath := filepath.Join(src, "secret.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "secret.pwd"), []byte("sidecar-pw\n"), 0o644))

	cfgPath := filepath.Join(src, ".rarconfig")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[secret.rar]\npassword = configured-pw\n"), 0o644))
	require.NoError(t, e.reloadConfig())

	cb := e.passwordCallback(archivePath)
	pw, ok := cb(0)
	require.True(t, ok)
	assert.Equal(t, "configured-pw", pw)

	pw, ok = cb(1)
	require.True(t, ok)
	assert.Equal(t, "sidecar-pw", pw)

	pw, ok = cb(2)
	require.True(t, ok)
	assert.Equal(t, "", pw)

	_, ok = cb(3)
	assert.False(t, ok)
}

func TestOpenInfoModeRendersDescriptor(t *testing.T) {
	e, src, mnt := newTestEngine(t)
	archivePath := filepath.Join(src, "archive.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("x"), 0o644))
	e.opener = &fakeOpener{a: &fakeArchive{headers: []*decoder.Header{
		{Name: "movie.mkv", Stored: true, UnpackedSize: 5, PackedSize: 5},
	}}}

	vdir := filepath.Join(mnt, "archive")
	require.NoError(t, e.Scan(archivePath, vdir))

	h, err := e.Open(context.Background(), filepath.Join(vdir, "movie.mkv"), true)
	require.NoError(t, err)
	assert.Equal(t, dispatch.INFO, h.Mode)

	dst := make([]byte, 256)
	n, err := h.Read(dst, 0)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(dst[:n]), "movie.mkv"))
	assert.NoError(t, h.Close())
}

func TestOpenRawModeReadsMemberBytes(t *testing.T) {
	e, src, mnt := newTestEngine(t)
	archivePath := filepath.Join(src, "archive.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("HEADERHELLO"), 0o644))
	e.opener = &fakeOpener{a: &fakeArchive{headers: []*decoder.Header{
		{Name: "a.txt", Stored: true, UnpackedSize: 5, PackedSize: 5, Offset: 6},
	}}}

	vdir := filepath.Join(mnt, "archive")
	require.NoError(t, e.Scan(archivePath, vdir))

	h, err := e.Open(context.Background(), filepath.Join(vdir, "a.txt"), false)
	require.NoError(t, err)
	assert.Equal(t, dispatch.RAW, h.Mode)

	dst := make([]byte, 5)
	n, err := h.Read(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(dst[:n]))
	assert.NoError(t, h.Close())
}

func TestOpenUnknownPathReturnsNotFound(t *testing.T) {
	e, _, mnt := newTestEngine(t)
	_, err := e.Open(context.Background(), filepath.Join(mnt, "nope.txt"), false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidateAllClearsBothCaches(t *testing.T) {
	e, src, mnt := newTestEngine(t)
	archivePath := filepath.Join(src, "archive.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("x"), 0o644))
	e.opener = &fakeOpener{a: &fakeArchive{headers: []*decoder.Header{
		{Name: "a.txt", Stored: true, UnpackedSize: 1, PackedSize: 1},
	}}}

	vdir := filepath.Join(mnt, "archive")
	require.NoError(t, e.Scan(archivePath, vdir))
	require.True(t, e.Files.Len() > 0)

	e.InvalidateAll()
	assert.Equal(t, 0, e.Files.Len())
	assert.Equal(t, 0, e.Dirs.Len())
}

func TestWarmupPopulatesDircacheForPlainDirectoryTree(t *testing.T) {
	e, src, mnt := newTestEngine(t)
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "note.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "deep.txt"), []byte("hi"), 0o644))

	e.StartWarmup()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := e.Dirs.Get(filepath.Join(mnt, "sub")); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("warmup did not populate nested directory in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
	e.StopWarmup()

	list, ok := e.Dirs.Get(mnt)
	require.True(t, ok)
	names := map[string]bool{}
	for _, ent := range list.Entries() {
		names[ent.Name] = true
	}
	assert.True(t, names["note.txt"])
	assert.True(t, names["sub"])
}
