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

// Package decoder defines the black-box RAR decompression boundary (spec
// §1, §9): everything above this package talks to archives only through
// Header and Archive, never through a specific decoder library. The
// concrete adapter wraps github.com/javi11/rardecode/v2, grounded on the
// streamnzb media-unpack and archive_info examples, which drive that same
// library header-by-header over store-mode and compressed RAR volumes.
package decoder

import (
	"errors"
	"io"
	"time"
)

// ErrNeedPassword is returned by Next/Open when a header is encrypted and
// no (or the wrong) password was supplied.
var ErrNeedPassword = errors.New("decoder: archive requires a password")

// Header is the subset of a RAR file header the rest of the tree needs;
// it is decoder-library-agnostic so internal/enumerate never imports
// rardecode types directly.
type Header struct {
	Name         string
	IsDir        bool
	Solid        bool
	Encrypted    bool
	Stored       bool // method byte 0x30, i.e. uncompressed
	Symlink      bool
	LinkTarget   string
	PackedSize   int64
	UnpackedSize int64
	UnknownSize  bool
	ModTime      time.Time
	Mode         uint32
	Offset       int64 // byte offset of data within its volume
	VolumeNumber int
	PartNumber   int
	TotalParts   int

	// IsFileCopy and RedirectTarget describe a RAR5 FILECOPY redirect: an
	// entry that shares another member's data rather than carrying its
	// own. The rardecode/v2 surface this tree is grounded on does not yet
	// distinguish these from ordinary entries (see DESIGN.md), so the
	// production adapter always leaves IsFileCopy false; the field exists
	// so internal/enumerate's redirect-resolution path has something to
	// drive it, exercised today only by synthetic test headers.
	IsFileCopy     bool
	RedirectTarget string
}

// Archive is a sequential, header-at-a-time view over one RAR archive
// (which may itself span several volume files on disk).
type Archive interface {
	// Next advances to the next member and returns its header, or io.EOF
	// once the archive is exhausted.
	Next() (*Header, error)

	// Read reads decompressed (or, for Stored headers, raw) data for the
	// member Next most recently returned.
	Read(p []byte) (int, error)

	// Volumes lists the volume filenames touched so far, in open order.
	Volumes() []string

	Close() error
}

// Opener opens a named archive for sequential header/data access. It
// exists as an interface (rather than a bare function) so engine
// construction can substitute a fake in tests without touching a real
// filesystem.
type Opener interface {
	Open(path string, password string) (Archive, error)
}

// PasswordCallback supplies a password to try after ErrNeedPassword, e.g.
// when the configured password list (spec §6) is being walked; it returns
// ok=false once the caller has exhausted its candidates.
type PasswordCallback func(attempt int) (password string, ok bool)

// OpenWithPasswords opens path, retrying against cb's candidates while the
// archive reports it needs a password, mirroring the source's retry loop
// around MRAR_O_PASSWORD.
func OpenWithPasswords(o Opener, path string, cb PasswordCallback) (Archive, error) {
	attempt := 0
	for {
		pw, ok := cb(attempt)
		if !ok {
			return nil, ErrNeedPassword
		}
		a, err := o.Open(path, pw)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrNeedPassword) {
			return nil, err
		}
		attempt++
	}
}
