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

package extractor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasse69/rar2fs-sub000/internal/decoder"
)

type fakeArchive struct {
	headers []*decoder.Header
	i       int
	payload map[string][]byte
	reading string
	closed  bool
}

func (a *fakeArchive) Next() (*decoder.Header, error) {
	if a.i >= len(a.headers) {
		return nil, io.EOF
	}
	h := a.headers[a.i]
	a.i++
	a.reading = h.Name
	return h, nil
}

func (a *fakeArchive) Read(p []byte) (int, error) {
	d := a.payload[a.reading]
	n := copy(p, d)
	a.payload[a.reading] = d[n:]
	if len(a.payload[a.reading]) == 0 {
		return n, io.EOF
	}
	return n, nil
}

func (a *fakeArchive) Volumes() []string { return []string{"archive.rar"} }
func (a *fakeArchive) Close() error      { a.closed = true; return nil }

type fakeOpener struct {
	a        *fakeArchive
	needPass string
}

func (o *fakeOpener) Open(path, password string) (decoder.Archive, error) {
	if o.needPass != "" && password != o.needPass {
		return nil, decoder.ErrNeedPassword
	}
	return o.a, nil
}

func noPasswords(attempt int) (string, bool) { return "", attempt == 0 }

func withPassword(pw string) decoder.PasswordCallback {
	tried := false
	return func(attempt int) (string, bool) {
		if tried {
			return "", false
		}
		tried = true
		return pw, true
	}
}

func TestStartStreamsMemberBytes(t *testing.T) {
	a := &fakeArchive{
		headers: []*decoder.Header{{Name: "movie.mkv", UnpackedSize: 11}},
		payload: map[string][]byte{"movie.mkv": []byte("hello world")},
	}
	h := New(&fakeOpener{a: a})

	ex, err := h.Start(context.Background(), "/src/archive.rar", "movie.mkv", noPasswords)
	require.NoError(t, err)

	got, err := io.ReadAll(ex.Reader())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	require.NoError(t, ex.Close())
	assert.NoError(t, ex.Err())
}

func TestStartRetriesPassword(t *testing.T) {
	a := &fakeArchive{
		headers: []*decoder.Header{{Name: "secret.bin", UnpackedSize: 3}},
		payload: map[string][]byte{"secret.bin": []byte("abc")},
	}
	h := New(&fakeOpener{a: a, needPass: "swordfish"})

	ex, err := h.Start(context.Background(), "/src/archive.rar", "secret.bin", withPassword("swordfish"))
	require.NoError(t, err)
	got, err := io.ReadAll(ex.Reader())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestStartMemberNotFound(t *testing.T) {
	a := &fakeArchive{headers: []*decoder.Header{{Name: "other.txt"}}, payload: map[string][]byte{}}
	h := New(&fakeOpener{a: a})

	_, err := h.Start(context.Background(), "/src/archive.rar", "missing.txt", noPasswords)
	assert.Error(t, err)
}

func TestCloseBeforeDrainingDoesNotBlockOrError(t *testing.T) {
	big := make([]byte, 1<<20)
	a := &fakeArchive{
		headers: []*decoder.Header{{Name: "big.bin", UnpackedSize: int64(len(big))}},
		payload: map[string][]byte{"big.bin": big},
	}
	h := New(&fakeOpener{a: a})

	ex, err := h.Start(context.Background(), "/src/archive.rar", "big.bin", noPasswords)
	require.NoError(t, err)

	// Release the consumer early, before the producer goroutine has had a
	// chance to write the whole payload into the pipe; Close must still
	// return promptly and without surfacing io.ErrClosedPipe as an error.
	done := make(chan error, 1)
	go func() { done <- ex.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestDryRunSurfacesDecodeError(t *testing.T) {
	a := &erroringArchive{name: "bad.bin"}
	err := DryRun(&erroringOpener{a: a}, "/src/archive.rar", "bad.bin", noPasswords)
	assert.ErrorIs(t, err, errDecodeSentinel)
}

func TestDryRunSucceedsWithoutWritingAnywhere(t *testing.T) {
	a := &fakeArchive{
		headers: []*decoder.Header{{Name: "ok.bin", UnpackedSize: 2}},
		payload: map[string][]byte{"ok.bin": []byte("ok")},
	}
	err := DryRun(&fakeOpener{a: a}, "/src/archive.rar", "ok.bin", noPasswords)
	assert.NoError(t, err)
}

type erroringArchive struct {
	name string
	done bool
}

func (a *erroringArchive) Next() (*decoder.Header, error) {
	if a.done {
		return nil, io.EOF
	}
	a.done = true
	return &decoder.Header{Name: a.name}, nil
}

func (a *erroringArchive) Read(p []byte) (int, error) { return 0, errDecodeSentinel }
func (a *erroringArchive) Volumes() []string           { return nil }
func (a *erroringArchive) Close() error                { return nil }

var errDecodeSentinel = errors.New("crc mismatch")

type erroringOpener struct {
	a *erroringArchive
}

func (o *erroringOpener) Open(path, password string) (decoder.Archive, error) { return o.a, nil }
