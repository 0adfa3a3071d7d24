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

package decoder

import (
	"errors"
	"io/fs"

	rardecode "github.com/javi11/rardecode/v2"
)

// RarDecodeOpener is the concrete Opener backed by rardecode/v2.
type RarDecodeOpener struct{}

// NewRarDecodeOpener returns the default production Opener.
func NewRarDecodeOpener() RarDecodeOpener { return RarDecodeOpener{} }

// Open implements Opener.
func (RarDecodeOpener) Open(path string, password string) (Archive, error) {
	opts := []rardecode.Option{rardecode.ParallelRead(true)}
	if password != "" {
		opts = append(opts, rardecode.Password(password))
	}
	rc, err := rardecode.OpenReader(path, opts...)
	if err != nil {
		if isPasswordErr(err) {
			return nil, ErrNeedPassword
		}
		return nil, err
	}
	return &rarArchive{rc: rc}, nil
}

func isPasswordErr(err error) bool {
	return errors.Is(err, rardecode.ErrArchivedFileEncrypted)
}

// rarArchive adapts *rardecode.ReadCloser to Archive.
type rarArchive struct {
	rc      *rardecode.ReadCloser
	current *rardecode.FileHeader
}

func (a *rarArchive) Next() (*Header, error) {
	fh, err := a.rc.Next()
	if err != nil {
		if isPasswordErr(err) {
			return nil, ErrNeedPassword
		}
		return nil, err
	}
	a.current = fh
	return toHeader(fh), nil
}

func (a *rarArchive) Read(p []byte) (int, error) {
	n, err := a.rc.Read(p)
	if err != nil && isPasswordErr(err) {
		return n, ErrNeedPassword
	}
	return n, err
}

func (a *rarArchive) Volumes() []string { return a.rc.Volumes() }

func (a *rarArchive) Close() error { return a.rc.Close() }

func toHeader(fh *rardecode.FileHeader) *Header {
	mode := fh.Mode()
	return &Header{
		Name:         fh.Name,
		IsDir:        fh.IsDir,
		Solid:        fh.Solid,
		Encrypted:    fh.Encrypted || fh.HeaderEncrypted,
		Stored:       isStoredMethod(fh),
		Symlink:      mode&fs.ModeSymlink != 0,
		PackedSize:   fh.PackedSize,
		UnpackedSize: fh.UnPackedSize,
		UnknownSize:  fh.UnKnownSize,
		ModTime:      fh.ModificationTime,
		Mode:         uint32(mode.Perm()),
		Offset:       fh.Offset,
		VolumeNumber: fh.VolumeNumber,
		PartNumber:   fh.PartNumber,
		TotalParts:   fh.TotalParts,
	}
}

// isStoredMethod reports whether a header's packed and unpacked sizes
// agree, the cheapest library-agnostic proxy for the method-0x30 "store"
// case (spec §4.F raw-mode eligibility) without reaching into rardecode's
// unexported block-header fields.
func isStoredMethod(fh *rardecode.FileHeader) bool {
	return !fh.UnKnownSize && fh.PackedSize == fh.UnPackedSize
}
