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
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hasse69/rar2fs-sub000/internal/dispatch"
	"github.com/hasse69/rar2fs-sub000/internal/enumerate"
)

// nestedState tracks the tempfiles materialised for archive-within-archive
// recursion (spec §9 "Nested archives extracted via fmemopen: the source
// falls back to tempfiles when fmemopen is absent ... tempfiles are
// acceptable but must be unlinked at release"). Go has no fmemopen
// equivalent exposing an *os.File, so this always takes the tempfile path;
// unlike a per-open tempfile, this one is kept for the Engine's lifetime
// (its member entries' ArchivePath point at it for subsequent opens) and
// removed in cleanupNested on Engine.Close, the nearest available
// approximation of "release" for a mount-lifetime cache rather than a
// single file handle.
type nestedState struct {
	mu    sync.Mutex
	files []string
}

func (e *Engine) nested() *nestedState {
	e.nestedOnce.Do(func() { e.nestedSt = &nestedState{} })
	return e.nestedSt
}

// materializeNested drains a store-mode, unencrypted nested-archive
// member's raw bytes into a tempfile and recurses Scan into it under the
// same virtual path the outer archive listed it at (spec §4.F step 8 "the
// inner enumeration populates entries under the outer archive's directory
// path").
func (e *Engine) materializeNested(cand enumerate.NestedCandidate, depth int) error {
	raw, ok := e.Files.Get(cand.VirtualPath)
	if !ok {
		return fmt.Errorf("engine: nested candidate %q vanished before materialisation", cand.VirtualPath)
	}
	entry := raw.Clone()

	tmp, err := os.CreateTemp("", "rar2fs-nested-*.rar")
	if err != nil {
		return fmt.Errorf("engine: creating nested tempfile: %w", err)
	}
	st := e.nested()
	st.mu.Lock()
	st.files = append(st.files, tmp.Name())
	st.mu.Unlock()

	rc := dispatch.NewRawContext(entry, rawVolumeOpener{})
	defer rc.Close()

	buf := make([]byte, 256*1024)
	var off int64
	for off < entry.Stat.Size {
		want := buf
		if remaining := entry.Stat.Size - off; remaining < int64(len(want)) {
			want = buf[:remaining]
		}
		n, rerr := rc.Read(want, off)
		if n > 0 {
			if _, werr := tmp.Write(want[:n]); werr != nil {
				tmp.Close()
				return fmt.Errorf("engine: writing nested tempfile: %w", werr)
			}
			off += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			tmp.Close()
			return fmt.Errorf("engine: reading nested member %q: %w", cand.MemberName, rerr)
		}
		if n == 0 {
			break
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return e.scan(tmp.Name(), cand.VirtualPath, depth+1)
}

// cleanupNested removes every tempfile materialised for nested-archive
// recursion during this Engine's lifetime.
func (e *Engine) cleanupNested() {
	if e.nestedSt == nil {
		return
	}
	e.nestedSt.mu.Lock()
	defer e.nestedSt.mu.Unlock()
	for _, p := range e.nestedSt.files {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			e.logf("cleanup nested tempfile %s: %v", p, err)
		}
	}
	e.nestedSt.files = nil
}
