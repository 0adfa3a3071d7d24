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
	"time"

	"github.com/hasse69/rar2fs-sub000/internal/enumerate"
)

// archiveExts names the extensions scanned when walking a source directory
// (ensureDir and warmupDir). ".cbr" is included unless NoExpandCBR is set
// (spec §6 "no-expand-cbr"). Nested-archive discovery inside an archive
// uses internal/enumerate's own extension list.
var archiveExts = map[string]bool{".rar": true, ".cbr": true}

// maxNestedDepth bounds archive-within-archive recursion; the source has no
// equivalent limit, but an unbounded one here would let a maliciously
// crafted archive-in-itself reference recurse forever.
const maxNestedDepth = 8

// Scan walks archivePath (a top-level archive, e.g. discovered by the
// source-tree walk or warmup) and populates the filecache/dircache with
// its members under virtualDir, recursing into any nested archives it
// finds (spec §4.F step 8), up to maxNestedDepth. virtualDir is the
// archive's own containing directory (folder-mount's union namespace
// merges a RAR's members directly into the folder where the archive file
// sits, per spec §6 readdir semantics), not a subdirectory named after the
// archive itself.
func (e *Engine) Scan(archivePath, virtualDir string) error {
	return e.scan(archivePath, virtualDir, 0)
}

func (e *Engine) scan(archivePath, virtualDir string, depth int) error {
	opts := e.opts.Enumerate
	opts.SaveEOF = e.opts.SaveEOFDefault
	if entry := e.Config().Lookup(archivePath); entry != nil {
		if len(entry.Aliases) > 0 {
			opts.Aliases = mergeAliases(opts.Aliases, entry.Aliases)
		}
		if entry.HasSaveEOF {
			opts.SaveEOF = entry.SaveEOF
		}
	}

	res := enumerate.Enumerate(e.opener, archivePath, virtualDir, e.Files, opts, e.passwordCallback(archivePath))
	for _, l := range res.Dirs {
		// Only a virtual directory with no real counterpart on disk needs
		// its freshness tied to this archive's mtime; one that does exist
		// for real (the archive's own containing folder) keeps tracking
		// that real directory instead, so add/remove of sibling archives
		// or local files there is still detected (spec E7). When two
		// archives share the same containing folder, whichever was
		// scanned last here becomes the representative for any of their
		// own purely-internal subdirectory paths that happen to collide;
		// that can only cause an extra rescan, never wrong listing data,
		// since Put always repopulates from the archive's own headers.
		if !e.hasRealDir(l.Path) {
			e.registerArchiveRoot(l.Path, archivePath)
		}
		mtime, err := e.statDir(l.Path)
		if err != nil {
			mtime = time.Now()
		}
		e.Dirs.Put(l.Path, l.List, mtime)
	}
	if res.Err != nil {
		e.logf("scan %s: %v", archivePath, res.Err)
	}
	if depth >= maxNestedDepth {
		if len(res.Nested) > 0 {
			e.logf("scan %s: %d nested archive(s) dropped past max recursion depth", archivePath, len(res.Nested))
		}
		return res.Err
	}
	for _, n := range res.Nested {
		if err := e.materializeNested(n, depth); err != nil {
			e.logf("nested archive %s: %v", n.MemberName, err)
		}
	}
	return res.Err
}

// hasRealDir reports whether virtualPath has a real, on-disk directory
// counterpart (folder-mount mode only; a single-archive mount has none).
func (e *Engine) hasRealDir(virtualPath string) bool {
	fi, err := os.Stat(e.realPath(virtualPath))
	return err == nil && fi.IsDir()
}

// mergeAliases layers config over the enumerate defaults without mutating
// either input map.
func mergeAliases(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
