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
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/hasse69/rar2fs-sub000/internal/eofindex"
)

// mmapIndex memory-maps an opened `.r2i` sidecar read-only (spec §4.K
// "Consumer ... preferring mmap"), satisfying eofindex.Mapper via mmap-go's
// MMap type directly.
func mmapIndex(f *os.File) (eofindex.Mapper, error) {
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return mmapReaderAt{m}, nil
}

// mmapReaderAt adapts mmap.MMap (a []byte) to io.ReaderAt, since mmap-go's
// MMap type itself only supports slice indexing.
type mmapReaderAt struct {
	m mmap.MMap
}

func (r mmapReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.m)) {
		return 0, os.ErrInvalid
	}
	n := copy(p, r.m[off:])
	return n, nil
}

func (r mmapReaderAt) Unmap() error { return r.m.Unmap() }
