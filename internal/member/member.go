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

// Package member holds the archive-member data model (spec §3): the
// immutable-once-resolved entry that the filecache stores and that every
// read path clones before use.
package member

import (
	"os"
	"time"
)

// Flags is the archive-member bit set described in spec §3.
type Flags uint32

const (
	// Raw marks a member stored uncompressed, directly readable from volumes.
	Raw Flags = 1 << iota
	// Multipart marks a member spanning multiple volumes.
	Multipart
	// ForceDir marks a synthetic directory materialised because the
	// archive has no explicit header for it yet.
	ForceDir
	// VSizeFixupNeeded marks that the RAR5 two-byte volume index requires
	// off-by-one compensation past volume 127.
	VSizeFixupNeeded
	// Encrypted marks a password-protected payload.
	Encrypted
	// SaveEOF marks that an EOF-index should be generated on first
	// near-end read.
	SaveEOF
	// AVITested marks that the AVI sanity check has already run.
	AVITested
	// DirectIO latches once a zero-fill probe response has been
	// synthesised, so the kernel never caches it.
	DirectIO
	// CheckAtime marks an entry whose atime should be refreshed from the
	// backing filesystem rather than synthesised.
	CheckAtime
	// Unresolved marks a multi-volume raw entry whose vsize fields are
	// not yet confirmed by a subsequent header observation.
	Unresolved
	// DryRunDone marks that the sticky dry-run password/CRC probe has
	// already executed for this entry.
	DryRunDone
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Kind tags the three-way variant the filecache can hold for a path,
// replacing the C source's LOCAL_FS_ENTRY / LOOP_FS_ENTRY magic pointers
// (spec §9 "Variant entries").
type Kind int

const (
	// KindArchive is an ordinary archive-member entry.
	KindArchive Kind = iota
	// KindLocal marks a path that exists in the underlying directory, not
	// in any archive (LOCAL_FS_ENTRY in the source).
	KindLocal
	// KindLoop marks a path that would cause a self-loop because the
	// mountpoint lies inside the source directory (LOOP_FS_ENTRY).
	KindLoop
)

// Stat is the synthesised POSIX stat record (spec §3).
type Stat struct {
	Mode  os.FileMode
	Uid   uint32
	Gid   uint32
	Nlink uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// VType is the volume-numbering scheme a member's archive uses (spec §3,
// §4.C).
type VType int

const (
	// VTypeOld is the `.rar`, `.r00`, `.r01`, ... / `.s00`, ... scheme.
	VTypeOld VType = iota
	// VTypeNew is the `name.partNN.rar` scheme.
	VTypeNew
)

// Entry is the filecache value: an archive member, fully or partially
// resolved. Entry is a plain value type; callers take independent copies
// via Clone rather than sharing pointers across goroutines (spec §9
// "Cycle-free ownership").
type Entry struct {
	Kind Kind

	Name         string // virtual path, unique key
	ArchivePath  string // absolute path to the first volume file
	MemberName   string // name inside the archive headers
	LinkTarget   string // present iff symlink
	Stat         Stat
	Offset       int64 // payload offset in ArchivePath (raw mode only)
	Method       byte  // RAR compression method byte; 0x30 = store

	VSizeFirst     int64
	VSizeNext      int64
	VSizeRealFirst int64
	VSizeRealNext  int64
	VNoBase        int
	VNoFirst       int
	VLen           int
	VPos           int
	VType          VType

	Flags Flags
}

// IsDir reports whether the entry represents a directory.
func (e *Entry) IsDir() bool { return e.Stat.Mode.IsDir() }

// IsSymlink reports whether the entry represents a symlink.
func (e *Entry) IsSymlink() bool { return e.LinkTarget != "" }

// Clone returns an independent deep copy suitable for lock-free use by a
// reader that does not want to hold the filecache lock for the lifetime of
// an open (spec §4.D `clone`/`free_clone`).
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// StoreSize returns the byte range contributed to the logical size by the
// first volume and each subsequent volume, honoring the RAR5 vsize fixup
// when past volume 127 (spec §3 invariants, §4.F step 5).
func (e *Entry) StoreSize() (first, next int64) {
	first = e.VSizeFirst
	next = e.VSizeNext
	if e.Flags.Has(VSizeFixupNeeded) {
		// RAR5 volume numbers above 127 need a two-byte index; the
		// original C source compensates by nudging the per-volume
		// accounting by one unit once the archive crosses that
		// boundary. We keep the same compensation here rather than
		// re-deriving it, since it is a property of the wire format,
		// not of our arithmetic.
		first++
	}
	return first, next
}
