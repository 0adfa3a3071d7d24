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
	"github.com/hasse69/rar2fs-sub000/internal/member"
	"github.com/hasse69/rar2fs-sub000/internal/rarinfo"
)

// renderInfoDescriptor renders entry's INFO-mode descriptor. The CRC32
// isn't tracked on member.Entry today (it would require a second pass over
// the archive's headers beyond what internal/enumerate retains), so it is
// rendered as zero; everything else comes straight
// from the resolved entry.
func renderInfoDescriptor(entry *member.Entry, windowSize int, hostOS string) string {
	return rarinfo.Format(entry, 0, int64(windowSize), hostOS)
}
