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

package ringbuf

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	_, err := New(100, 0)
	assert.ErrorIs(t, err, ErrNotPowerOfTwo)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	b, err := New(16, 4)
	require.NoError(t, err)

	src := bytes.NewReader([]byte("hello world!!!!!"))
	n, err := b.WriteFrom(src, false)
	require.NoError(t, err)
	assert.Equal(t, 15, n) // capacity-1 reserved slot

	dst := make([]byte, 15)
	got := b.ReadInto(dst, 0)
	assert.Equal(t, 15, got)
	assert.Equal(t, "hello world!!!!", string(dst))
	assert.Equal(t, int64(15), b.Offset())
}

func TestWriteFromReservesHistoryWindow(t *testing.T) {
	b, err := New(16, 8)
	require.NoError(t, err)

	src := bytes.NewReader(bytes.Repeat([]byte("x"), 32))
	n, err := b.WriteFrom(src, true)
	require.NoError(t, err)
	// capacity(16) - 1(slot) - hist(8) = 7 writable bytes.
	assert.Equal(t, 7, n)
}

func TestReadIntoSkipsOffsetHint(t *testing.T) {
	b, err := New(16, 0)
	require.NoError(t, err)
	_, err = b.WriteFrom(bytes.NewReader([]byte("abcdefgh")), false)
	require.NoError(t, err)

	dst := make([]byte, 4)
	n := b.ReadInto(dst, 2)
	assert.Equal(t, 4, n)
	assert.Equal(t, "cdef", string(dst))
}

func TestCopyAtDoesNotAdvanceIndices(t *testing.T) {
	b, err := New(16, 0)
	require.NoError(t, err)
	_, err = b.WriteFrom(bytes.NewReader([]byte("abcdefgh")), false)
	require.NoError(t, err)

	before := b.Used()
	dst := make([]byte, 3)
	n := b.CopyAt(dst, 0)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(dst))
	assert.Equal(t, before, b.Used())
}

func TestWrapsAroundBoundary(t *testing.T) {
	b, err := New(8, 0)
	require.NoError(t, err)

	_, err = b.WriteFrom(bytes.NewReader([]byte("ABCDEFG")), false) // fills 7/8
	require.NoError(t, err)
	dst := make([]byte, 5)
	b.ReadInto(dst, 0) // ri now at 5, 2 bytes remain buffered

	_, err = b.WriteFrom(bytes.NewReader([]byte("HIJKL")), false) // wraps past capacity
	require.NoError(t, err)

	out := make([]byte, 5)
	n := b.ReadInto(out, 0)
	assert.Equal(t, 5, n)
	assert.Equal(t, "FGHIJ", string(out))
}

func TestFullReportsNoWritableSpace(t *testing.T) {
	b, err := New(4, 0)
	require.NoError(t, err)
	_, err = b.WriteFrom(bytes.NewReader([]byte("abc")), false) // 4-1=3 writable max
	require.NoError(t, err)
	assert.True(t, b.Full())
}

type errReader struct{ err error }

func (r errReader) Read(p []byte) (int, error) { return 0, r.err }

func TestWriteFromPropagatesNonEOFError(t *testing.T) {
	b, err := New(16, 0)
	require.NoError(t, err)
	_, err = b.WriteFrom(errReader{err: io.ErrClosedPipe}, false)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
