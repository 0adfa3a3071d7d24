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

// Package rarinfo formats the textual descriptor served at a member's
// synthetic `<path>#info` virtual path (spec §4.J "Info mode"). It is
// grounded on the source's dllext.cpp ListFileHeader, which lays the
// archive header out as a sequence of `%12s: %s` label/value lines; we
// keep that label-column layout but swap its itoa byte counts for
// humanize's human-readable sizes, since this descriptor is meant to be
// `cat`-read by a person, not parsed by a script.
package rarinfo

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// methodNames maps the RAR method byte to the label ListFileHeader's
// UnRAR source prints for it.
var methodNames = map[byte]string{
	0x30: "Store",
	0x31: "Fastest",
	0x32: "Fast",
	0x33: "Normal",
	0x34: "Good",
	0x35: "Best",
}

func methodName(m byte) string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Unknown (0x%02x)", m)
}

// ratio returns the UnRAR-style compression percentage: packed as a
// percentage of unpacked, 100% for an empty member. Format reports a
// store-mode member as 100% without calling it.
func ratio(packed, unpacked int64) int {
	if unpacked <= 0 {
		return 100
	}
	r := packed * 100 / unpacked
	if r < 0 {
		r = 0
	}
	return int(r)
}

const timeLayout = "02-01-2006 15:04"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

// Format renders the full descriptor for entry, one label/value line per
// field named in spec §4.J: name, size, packed size, ratio, mtime/
// ctime/atime, CRC, method, window size (dictionary size), host OS, and
// the flag set. It always ends with a trailing newline, matching the
// source's leading-\n-per-line layout collapsed to one trailing one.
func Format(e *member.Entry, crc32 uint32, windowSize int64, hostOS string) string {
	var b strings.Builder

	line := func(label, value string) {
		fmt.Fprintf(&b, "%-12s: %s\n", label, value)
	}

	line("Name", e.MemberName)
	if e.IsSymlink() {
		line("Type", "Symlink")
		line("Target", e.LinkTarget)
	} else if e.IsDir() {
		line("Type", "Directory")
	} else {
		line("Type", "File")
	}

	if !e.IsDir() {
		first, next := e.StoreSize()
		packed := first
		if e.Flags.Has(member.Multipart) {
			packed += next
		}
		line("Size", humanize.Bytes(uint64(e.Stat.Size)))
		line("Packed", humanize.Bytes(uint64(packed)))
		pct := 100
		if e.Method != 0x30 {
			pct = ratio(packed, e.Stat.Size)
		}
		line("Ratio", fmt.Sprintf("%d%%", pct))
	}

	if mt := formatTime(e.Stat.Mtime); mt != "" {
		line("mtime", mt)
	}
	if ct := formatTime(e.Stat.Ctime); ct != "" {
		line("ctime", ct)
	}
	if at := formatTime(e.Stat.Atime); at != "" {
		line("atime", at)
	}

	if !e.IsDir() {
		line("CRC32", fmt.Sprintf("%08X", crc32))
		line("Method", methodName(e.Method))
		line("Window", humanize.Bytes(uint64(windowSize)))
	}
	line("Host OS", hostOS)
	line("Flags", flagString(e.Flags))

	return b.String()
}

func flagString(f member.Flags) string {
	var parts []string
	add := func(bit member.Flags, name string) {
		if f.Has(bit) {
			parts = append(parts, name)
		}
	}
	add(member.Raw, "raw")
	add(member.Multipart, "multipart")
	add(member.Encrypted, "encrypted")
	add(member.Unresolved, "unresolved")
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
