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

package rarinfo

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hasse69/rar2fs-sub000/internal/member"
)

func TestFormatFileIncludesSizeAndRatio(t *testing.T) {
	e := &member.Entry{
		MemberName: "movie.mkv",
		Method:     0x30,
		Stat: member.Stat{
			Size:  1 << 20,
			Mtime: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		},
	}
	out := Format(e, 0xdeadbeef, 4<<20, "Unix")

	assert.True(t, strings.HasPrefix(out, "Name        : movie.mkv\n"))
	assert.Contains(t, out, "Type        : File\n")
	assert.Contains(t, out, "Ratio       : 100%\n")
	assert.Contains(t, out, "CRC32       : DEADBEEF\n")
	assert.Contains(t, out, "Method      : Store\n")
	assert.Contains(t, out, "mtime       : 02-01-2026 03:04\n")
	assert.Contains(t, out, "Host OS     : Unix\n")
	assert.Contains(t, out, "Flags       : none\n")
}

func TestFormatDirectoryOmitsSizeFields(t *testing.T) {
	e := &member.Entry{
		MemberName: "subdir",
		Stat:       member.Stat{Mode: os.ModeDir},
	}
	out := Format(e, 0, 0, "Unix")
	assert.Contains(t, out, "Type        : Directory\n")
	assert.NotContains(t, out, "Size")
	assert.NotContains(t, out, "CRC32")
}

func TestFormatSymlinkIncludesTarget(t *testing.T) {
	e := &member.Entry{
		MemberName: "shortcut",
		LinkTarget: "../movie.mkv",
		Stat:       member.Stat{Size: 12},
	}
	out := Format(e, 0, 0, "Unix")
	assert.Contains(t, out, "Type        : Symlink\n")
	assert.Contains(t, out, "Target      : ../movie.mkv\n")
}

func TestFormatMultipartPackedIncludesBothVolumes(t *testing.T) {
	e := &member.Entry{
		MemberName: "split.mkv",
		Flags:      member.Multipart,
		VSizeFirst: 100,
		VSizeNext:  50,
		Stat:       member.Stat{Size: 150},
	}
	out := Format(e, 0, 0, "Unix")
	assert.Contains(t, out, "Packed      : 150 B\n")
	assert.Contains(t, out, "Flags       : multipart\n")
}

func TestRatioClampsToStoreModeOneHundred(t *testing.T) {
	assert.Equal(t, 100, ratio(0, 0))
	assert.Equal(t, 50, ratio(50, 100))
}

