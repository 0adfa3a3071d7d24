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

package eofindex

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile is a minimal io.WriteSeeker over an in-memory buffer, standing
// in for the sidecar file the real producer would write through *os.File.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Magic: Magic, Version: Version, Offset: 1000, Size: 200}
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{Magic: 0xdeadbeef, Version: 1}))
	_, err := ReadHeader(&buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "/mnt/a/movie.mkv.r2i", SidecarPath("/mnt/a/movie.mkv"))
}

func TestProducerWritesTailAfterOffset(t *testing.T) {
	stream := bytes.Repeat([]byte{0}, 100)
	copy(stream[100-10:], []byte("0123456789"))

	p := &Producer{Offset: 90}
	out := &memFile{}
	require.NoError(t, p.Write(out, bytes.NewReader(stream)))

	r := bytes.NewReader(out.buf)
	h, err := ReadHeader(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), h.Offset)
	assert.Equal(t, uint64(10), h.Size)

	tail := make([]byte, 10)
	_, err = io.ReadFull(r, tail)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(tail))
}

func TestIndexReadAtRejectsOffsetBeforeStart(t *testing.T) {
	idx := &Index{Header: Header{Offset: 500}}
	_, err := idx.ReadAt(make([]byte, 4), 100)
	assert.Error(t, err)
}

func writeChunk(buf *bytes.Buffer, id string, body []byte) {
	buf.WriteString(id)
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(len(body)))
	buf.Write(sz[:])
	buf.Write(body)
	if len(body)%2 != 0 {
		buf.WriteByte(0)
	}
}

func avihBody(frames uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, struct {
		MicroSecPerFrame    uint32
		MaxBytesPerSec      uint32
		PaddingGranularity  uint32
		Flags               uint32
		TotalFrames         uint32
		InitialFrames       uint32
		Streams             uint32
		SuggestedBufferSize uint32
		Width               uint32
		Height              uint32
		Reserved            [4]uint32
	}{TotalFrames: frames})
	return buf.Bytes()
}

func buildAVI(mainFrames, odmlFrames uint32, includeODML bool) []byte {
	var hdrl bytes.Buffer
	hdrl.WriteString("hdrl")
	writeChunk(&hdrl, "avih", avihBody(mainFrames))

	if includeODML {
		var odml bytes.Buffer
		odml.WriteString("odml")
		var dmlh [4]byte
		binary.LittleEndian.PutUint32(dmlh[:], odmlFrames)
		writeChunk(&odml, "dmlh", dmlh[:])

		var listBuf bytes.Buffer
		writeChunk(&listBuf, "LIST", odml.Bytes())
		hdrl.Write(listBuf.Bytes())
	}

	var outer bytes.Buffer
	writeChunk(&outer, "LIST", hdrl.Bytes())

	var riff bytes.Buffer
	riff.WriteString("RIFF")
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(4+outer.Len()))
	riff.Write(sz[:])
	riff.WriteString("AVI ")
	riff.Write(outer.Bytes())
	return riff.Bytes()
}

func TestCheckAVICoherentMatchingFrameCounts(t *testing.T) {
	data := buildAVI(100, 100, true)
	ok, err := CheckAVICoherent(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckAVICoherentMismatchedFrameCounts(t *testing.T) {
	data := buildAVI(100, 50, true)
	ok, err := CheckAVICoherent(bytes.NewReader(data))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckAVICoherentNoODMLIsTriviallyCoherent(t *testing.T) {
	data := buildAVI(100, 0, false)
	ok, err := CheckAVICoherent(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckAVICoherentRejectsNonRIFF(t *testing.T) {
	_, err := CheckAVICoherent(bytes.NewReader([]byte("not an avi file at all....")))
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/nonexistent/path.r2i", nil)
	assert.True(t, os.IsNotExist(err))
}
