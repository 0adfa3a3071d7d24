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
	"path/filepath"
	"strings"

	"github.com/hasse69/rar2fs-sub000/internal/dirlist"
	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// Lookup resolves virtualPath to its member.Entry (spec §6 "getattr: folder
// mount: local file first, then enumerate parent directory's archives;
// archive mount: consult filecache populated at mount").
func (e *Engine) Lookup(virtualPath string) (*member.Entry, error) {
	if entry, ok := e.Files.Get(virtualPath); ok {
		if entry.Kind == member.KindLocal {
			return e.statLocal(virtualPath)
		}
		return entry.Clone(), nil
	}

	if entry, err := e.statLocal(virtualPath); err == nil {
		e.Files.Local(virtualPath)
		return entry, nil
	}

	if parent := filepath.Dir(virtualPath); parent != virtualPath {
		if err := e.ensureDir(parent); err == nil {
			if entry, ok := e.Files.Get(virtualPath); ok && entry.Kind != member.KindLocal {
				return entry.Clone(), nil
			}
		}
	}
	return nil, ErrNotFound
}

// statLocal stats virtualPath's real counterpart directly rather than
// trusting a cached KindLocal marker's (always empty) Stat field.
func (e *Engine) statLocal(virtualPath string) (*member.Entry, error) {
	real := e.realPath(virtualPath)
	fi, err := os.Lstat(real)
	if err != nil {
		return nil, err
	}
	var target string
	if fi.Mode()&os.ModeSymlink != 0 {
		target, _ = os.Readlink(real)
	}
	return &member.Entry{
		Kind:       member.KindLocal,
		Name:       virtualPath,
		LinkTarget: target,
		Stat:       statFromInfo(fi),
	}, nil
}

// ListDir returns the merged directory listing for virtualPath: the union
// of its local entries with the members of every *.rar and *.cbr archive in
// the directory, scanning any archive found there that hasn't been scanned
// yet. Volume files named *.rNN or *.NNN are not scanned; they are listed
// as plain local entries.
func (e *Engine) ListDir(virtualPath string) (*dirlist.List, error) {
	if list, ok := e.Dirs.Get(virtualPath); ok {
		return list, nil
	}
	if err := e.ensureDir(virtualPath); err != nil {
		return nil, err
	}
	if list, ok := e.Dirs.Get(virtualPath); ok {
		return list, nil
	}
	return dirlist.New(), nil
}

// ensureDir builds virtualPath's merged listing: every plain entry in its
// real backing directory, plus the members of every archive found there
// (scanned on demand if warmup never reached it), with a native entry
// always masking an archive member of the same name (dirlist.Close's job).
// This is the single-level counterpart of warmupDir's body, run lazily from
// a live readdir instead of the background walk.
func (e *Engine) ensureDir(virtualPath string) error {
	realDir := e.realPath(virtualPath)
	fi, err := os.Stat(realDir)
	if err != nil {
		return err
	}
	dirEntries, err := os.ReadDir(realDir)
	if err != nil {
		return err
	}

	list := dirlist.New()
	for _, ent := range dirEntries {
		name := ent.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if archiveExts[ext] && !(e.opts.NoExpandCBR && ext == ".cbr") {
			if serr := e.Scan(filepath.Join(realDir, name), virtualPath); serr != nil {
				e.logf("ensureDir: scan %s: %v", name, serr)
			}
			continue
		}
		info, ierr := ent.Info()
		if ierr != nil {
			continue
		}
		vpath := filepath.Join(virtualPath, name)
		list.Append(dirlist.Entry{Name: name, Stat: statFromInfo(info), Type: dirlist.NRM})
		e.Files.Local(vpath)
	}

	// Whatever Scan above just populated for virtualPath (archive members
	// only) is folded in here so the final Put below holds the full union;
	// Scan's own Put already happened but this one runs last and wins.
	if archived, ok := e.Dirs.Get(virtualPath); ok {
		for _, en := range archived.Entries() {
			list.Append(en)
		}
	}

	list.Close()
	e.Dirs.Put(virtualPath, list, fi.ModTime())
	return nil
}
