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

// Package eofindex implements the `.r2i` EOF-index sidecar (spec §4.K):
// a small file recording the tail bytes of a compressed archive member so
// a near-EOF probe can be answered without decoding the whole stream.
// The on-disk layout is grounded on the source's index.h `idx_head`
// (version 1, network byte order, magic 'r2i\0').
package eofindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Magic is the version-1 header magic, htonl(0x72326900) == 'r', '2',
// 'i', '\0' read as a big-endian uint32.
const Magic uint32 = 0x72326900

// Version is the only header layout this package writes or accepts; the
// source's version-0 header (host byte order, platform-width off_t/size_t)
// is documented as obsolete and is deliberately not supported here.
const Version uint16 = 1

const headerSize = 4 + 2 + 2 + 8 + 8 // magic + version + spare + offset + size

// Header is the fixed-size sidecar header, serialised in network
// (big-endian) byte order.
type Header struct {
	Magic   uint32
	Version uint16
	Spare   uint16
	Offset  uint64 // logical offset into the member at which Size tail bytes begin
	Size    uint64 // number of tail bytes stored after the header
}

var ErrBadMagic = errors.New("eofindex: bad or missing magic")

// WriteHeader serialises h to w in the on-disk layout.
func WriteHeader(w io.Writer, h Header) error {
	return binary.Write(w, binary.BigEndian, h)
}

// ReadHeader parses a Header from r and validates its magic/version.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return Header{}, err
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("eofindex: unsupported header version %d", h.Version)
	}
	return h, nil
}

// SidecarPath returns the `.r2i` path for a member path: memberPath with
// `.r2i` appended. internal/engine passes the virtual path's counterpart
// in the underlying directory, so the sidecar sits next to it there.
func SidecarPath(memberPath string) string { return memberPath + ".r2i" }

// Producer drains a compressed member's decoded byte stream, discarding
// everything before offset and writing the remaining tail to w as a
// sidecar (spec §4.K "Producer"). It is driven by a TEST-mode extraction;
// callers hand it whatever io.Reader their extractor produces.
type Producer struct {
	Offset uint64
}

// Write streams r to w, honoring Offset, and rewrites the header once the
// tail length is known (the source does the same two-pass: write a
// placeholder header, stream the tail, then seek back and rewrite it).
func (p *Producer) Write(w io.WriteSeeker, r io.Reader) error {
	if _, err := w.Seek(headerSize, io.SeekStart); err != nil {
		return err
	}

	var skipped uint64
	buf := make([]byte, 64*1024)
	var tail uint64
	for skipped < p.Offset {
		n, err := r.Read(buf)
		if n > 0 {
			avail := uint64(n)
			if skipped+avail <= p.Offset {
				skipped += avail
			} else {
				start := p.Offset - skipped
				if _, werr := w.Write(buf[start:n]); werr != nil {
					return werr
				}
				tail += uint64(n) - start
				skipped = p.Offset
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	if skipped >= p.Offset {
		n, err := io.Copy(w, r)
		if err != nil {
			return err
		}
		tail += uint64(n)
	}

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return WriteHeader(w, Header{Magic: Magic, Version: Version, Offset: p.Offset, Size: tail})
}

// Index is the consumer side: a read-only view over a populated sidecar,
// preferring mmap but falling back to pread-style ReadAt through the
// backing *os.File so a mount running without mmap permissions still
// works (spec §4.K "Consumer ... using either mmap or pread").
type Index struct {
	Header Header
	mapper Mapper
	file   *os.File
}

// Mapper is the minimal surface this package needs from a memory map,
// satisfied by github.com/edsrzf/mmap-go's MMap type.
type Mapper interface {
	io.ReaderAt
	Unmap() error
}

// Open reads path's header and, if mapFn is non-nil, memory-maps the tail
// region via mapFn (expected to be backed by mmap-go); mapFn may be nil to
// force the pread fallback.
func Open(path string, mapFn func(*os.File) (Mapper, error)) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	h, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	idx := &Index{Header: h, file: f}
	if mapFn != nil {
		m, err := mapFn(f)
		if err == nil {
			idx.mapper = m
		}
	}
	return idx, nil
}

// Close releases the map (if any) and the backing file.
func (idx *Index) Close() error {
	if idx.mapper != nil {
		idx.mapper.Unmap()
	}
	return idx.file.Close()
}

// ReadAt answers a read at logical offset off within the original
// member, which must lie at or beyond Header.Offset (spec §4.K
// "lread_rar_idx answers reads whose offset lies at or beyond the
// header's offset").
func (idx *Index) ReadAt(p []byte, off uint64) (int, error) {
	if off < idx.Header.Offset {
		return 0, fmt.Errorf("eofindex: offset %d precedes index start %d", off, idx.Header.Offset)
	}
	rel := int64(off - idx.Header.Offset)
	if idx.mapper != nil {
		return idx.mapper.ReadAt(p, headerSize+rel)
	}
	return idx.file.ReadAt(p, headerSize+rel)
}

// CheckAVICoherent parses an AVI container's RIFF/avih/odml chunks and
// reports whether the primary header's frame count agrees with the
// OpenDML extension's frame count (spec §4.K "a mismatch means the muxer
// didn't embed a coherent index"). A false result means save_eof should
// be disabled for the entry.
func CheckAVICoherent(r io.Reader) (bool, error) {
	var riffHdr [12]byte
	if _, err := io.ReadFull(r, riffHdr[:]); err != nil {
		return false, err
	}
	if string(riffHdr[0:4]) != "RIFF" || string(riffHdr[8:12]) != "AVI " {
		return false, errors.New("eofindex: not an AVI RIFF container")
	}

	var mainFrames, odmlFrames uint32
	haveMain, haveODML := false, false

chunks:
	for {
		var ck [8]byte
		if _, err := io.ReadFull(r, ck[:]); err != nil {
			break
		}
		id := string(ck[0:4])
		size := binary.LittleEndian.Uint32(ck[4:8])
		padded := size + size%2

		switch id {
		case "LIST":
			var listType [4]byte
			if _, err := io.ReadFull(r, listType[:]); err != nil {
				return false, err
			}
			// Recurse into hdrl/odml by treating the remainder of this
			// list as a fresh chunk stream.
			body := io.LimitReader(r, int64(padded)-4)
			_, _ = parseAVIList(body, string(listType[:]), &mainFrames, &odmlFrames, &haveMain, &haveODML)
		case "avih":
			var ah avihHeader
			lr := io.LimitReader(r, int64(padded))
			if err := binary.Read(lr, binary.LittleEndian, &ah); err == nil {
				mainFrames = ah.TotalFrames
				haveMain = true
			}
			io.Copy(io.Discard, lr)
		case "dmlh":
			lr := io.LimitReader(r, int64(padded))
			var frames uint32
			if err := binary.Read(lr, binary.LittleEndian, &frames); err == nil {
				odmlFrames = frames
				haveODML = true
			}
			io.Copy(io.Discard, lr)
		default:
			if _, err := io.CopyN(io.Discard, r, int64(padded)); err != nil {
				break chunks
			}
		}
	}

	if !haveMain {
		return false, errors.New("eofindex: no avih chunk found")
	}
	if !haveODML {
		// No OpenDML extension present: nothing to contradict the main
		// header, so the index is trivially coherent.
		return true, nil
	}
	return mainFrames == odmlFrames, nil
}

type avihHeader struct {
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
}

func parseAVIList(r io.Reader, listType string, mainFrames, odmlFrames *uint32, haveMain, haveODML *bool) (int, error) {
	n := 0
	for {
		var ck [8]byte
		if _, err := io.ReadFull(r, ck[:]); err != nil {
			return n, nil
		}
		id := string(ck[0:4])
		size := binary.LittleEndian.Uint32(ck[4:8])
		padded := size + size%2
		n++

		switch id {
		case "avih":
			var ah avihHeader
			lr := io.LimitReader(r, int64(padded))
			if err := binary.Read(lr, binary.LittleEndian, &ah); err == nil {
				*mainFrames = ah.TotalFrames
				*haveMain = true
			}
			io.Copy(io.Discard, lr)
		case "dmlh":
			lr := io.LimitReader(r, int64(padded))
			var frames uint32
			if err := binary.Read(lr, binary.LittleEndian, &frames); err == nil {
				*odmlFrames = frames
				*haveODML = true
			}
			io.Copy(io.Discard, lr)
		case "LIST":
			var listType2 [4]byte
			if _, err := io.ReadFull(r, listType2[:]); err != nil {
				return n, nil
			}
			body := io.LimitReader(r, int64(padded)-4)
			parseAVIList(body, string(listType2[:]), mainFrames, odmlFrames, haveMain, haveODML)
		default:
			io.CopyN(io.Discard, r, int64(padded))
		}
	}
}
