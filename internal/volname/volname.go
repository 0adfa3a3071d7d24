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

// Package volname implements bidirectional volume-filename arithmetic
// (spec §4.C): given a volume filename it finds the 0-based index of that
// volume within its set, and given a first-volume filename plus an index
// it rebuilds the Nth filename, for both the old (`.rNN`/`.sNN`) and new
// (`name.partNN.rar`) RAR volume-naming schemes. Grounded on the numeric
// scanning in `original_source/rar2fs.c`'s `get_vformat` and on
// `javi11-rarlist`'s `DiscoverVolumesFS`, which walks the same two
// patterns from the Go side.
package volname

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// partRe matches the new-style "...part<digits><sep?>.rar" suffix. The
// numeric field's width is captured so NthName can preserve zero-padding
// (`part1`, `part01`, `part001` are all legal per spec §4.C).
var partRe = regexp.MustCompile(`(?i)^(.*\.part)(\d+)(\.rar)$`)

// oldRe matches the classic "...rNN" / "...sNN" suffix (not the base
// ".rar" file, which is handled separately).
var oldRe = regexp.MustCompile(`(?i)^(.*\.)([rs])(\d\d+)$`)

// Info describes a parsed volume filename.
type Info struct {
	Index int            // 0-based volume index
	Pos   int             // byte position of the numeric field within the name
	Len   int             // byte length of the numeric field
	Type  member.VType
}

// Parse returns the volume index, the numeric field's position/length
// (used to drive NthName without re-deriving the split), and the scheme.
func Parse(name string) (Info, error) {
	base := filepath.Base(name)

	if m := partRe.FindStringSubmatch(base); m != nil {
		prefixLen := len(m[1])
		numStr := m[2]
		idx, err := strconv.Atoi(numStr)
		if err != nil {
			return Info{}, fmt.Errorf("volname: bad part number in %q: %w", name, err)
		}
		return Info{Index: idx - 1, Pos: prefixLen, Len: len(numStr), Type: member.VTypeNew}, nil
	}

	if strings.HasSuffix(strings.ToLower(base), ".rar") {
		return Info{Index: 0, Pos: len(base) - 4, Len: 3, Type: member.VTypeOld}, nil
	}

	if m := oldRe.FindStringSubmatch(base); m != nil {
		letter := strings.ToLower(m[2])
		digits := m[3]
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Info{}, fmt.Errorf("volname: bad volume digits in %q: %w", name, err)
		}
		wrap := 0
		if letter == "s" {
			wrap = 100
		}
		// .r00 is the second volume (index 1); the leading letter wraps
		// r -> s after index 100 is exhausted (spec §4.C edge cases).
		idx := n + 1 + wrap
		return Info{Index: idx, Pos: len(m[1]) + 1, Len: len(digits), Type: member.VTypeOld}, nil
	}

	return Info{}, fmt.Errorf("volname: %q does not match any known volume scheme", name)
}

// NthName builds the kth volume's filename given the first volume's name,
// preserving directory, numeric-field width (new scheme) and the
// letter-wrap rule (old scheme).
func NthName(firstName string, k int) (string, error) {
	if k < 0 {
		return "", fmt.Errorf("volname: negative volume index %d", k)
	}
	if k == 0 {
		return firstName, nil
	}

	dir := filepath.Dir(firstName)
	base := filepath.Base(firstName)

	if m := partRe.FindStringSubmatch(base); m != nil {
		width := len(m[2])
		name := fmt.Sprintf("%s%0*d%s", m[1], width, k+1, m[3])
		return filepath.Join(dir, name), nil
	}

	if strings.HasSuffix(strings.ToLower(base), ".rar") {
		stem := base[:len(base)-4]
		n := k - 1 // .r00 is k==1
		letter := byte('r')
		if n >= 100 {
			letter = 's'
			n -= 100
		}
		name := fmt.Sprintf("%s.%c%02d", stem, letter, n)
		return filepath.Join(dir, name), nil
	}

	return "", fmt.Errorf("volname: %q is not a recognised first-volume name", firstName)
}

// FirstName decrements the numeric field of any, possibly non-first,
// volume name until it names the archive's first volume. verify is called
// with each decreasing candidate and must report whether that candidate's
// header claims to be the first volume; FirstName returns the first
// candidate verify accepts.
//
// RAR versions before 5.x sometimes fail to set the first-volume flag on
// renamed `.rNN` members; callers working around that (spec §9 Open
// Questions) should have verify simply check file existence at index 0
// instead of trusting the header bit, and rely on the decoder layer to
// force the bit afterward.
func FirstName(any string, verify func(candidate string) (bool, error)) (string, error) {
	info, err := Parse(any)
	if err != nil {
		return "", err
	}
	for k := info.Index; k >= 0; k-- {
		cand, err := nameAtIndexFrom(any, info, k)
		if err != nil {
			return "", err
		}
		ok, err := verify(cand)
		if err != nil {
			return "", err
		}
		if ok {
			return cand, nil
		}
	}
	return "", fmt.Errorf("volname: could not locate first volume from %q", any)
}

// nameAtIndexFrom rewrites any's own numeric field to target k, without
// requiring a first-volume name in hand (FirstName doesn't have one yet).
func nameAtIndexFrom(any string, info Info, k int) (string, error) {
	dir := filepath.Dir(any)
	base := filepath.Base(any)
	if len(base) < info.Pos+info.Len {
		return "", fmt.Errorf("volname: malformed numeric field in %q", any)
	}
	prefix := base[:info.Pos]
	suffix := base[info.Pos+info.Len:]

	switch info.Type {
	case member.VTypeNew:
		width := info.Len
		return filepath.Join(dir, fmt.Sprintf("%s%0*d%s", prefix, width, k+1, suffix)), nil
	default:
		if k == 0 {
			// first volume of the old scheme is always "<stem>.rar"
			return nameAtIndexFrom0(any)
		}
		n := k - 1
		letter := byte('r')
		if n >= 100 {
			letter = 's'
			n -= 100
		}
		// prefix ends with the old scheme's r/s letter, which is rebuilt here.
		return filepath.Join(dir, fmt.Sprintf("%s%c%02d%s", prefix[:len(prefix)-1], letter, n, suffix)), nil
	}
}

// nameAtIndexFrom0 rebuilds the base ".rar" first-volume name from any
// volume name in the old scheme.
func nameAtIndexFrom0(any string) (string, error) {
	dir := filepath.Dir(any)
	base := filepath.Base(any)
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return "", fmt.Errorf("volname: %q has no extension", any)
	}
	return filepath.Join(dir, base[:idx]+".rar"), nil
}
