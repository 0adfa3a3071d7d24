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

// Package enumerate implements the archive enumerator (spec §4.F): it
// opens an archive through internal/decoder, walks every header, and
// populates internal/filecache and an internal/dirlist.List per visited
// directory, synthesising force_dir placeholders for directories the
// archive never headers explicitly.
package enumerate

import (
	"io"
	"os"
	"path"
	"strings"
	"unicode/utf16"

	"github.com/hasse69/rar2fs-sub000/internal/decoder"
	"github.com/hasse69/rar2fs-sub000/internal/dirlist"
	"github.com/hasse69/rar2fs-sub000/internal/filecache"
	"github.com/hasse69/rar2fs-sub000/internal/member"
	"github.com/hasse69/rar2fs-sub000/internal/volname"
)

// Options configures the tie-breaks and policies spec §4.F names.
type Options struct {
	// ImageExtensions holds lowercase extensions (with leading dot) that
	// are subject to the show-comp-img and fake-ISO policies.
	ImageExtensions map[string]bool
	// ShowCompImg disables hiding compressed image-extension members.
	ShowCompImg bool
	// FakeISO aliases a recognised image extension to ".iso" in the
	// virtual namespace.
	FakeISO bool
	// Excluded is a set of base filenames that are never surfaced.
	Excluded map[string]bool
	// FlatOnly disables nested-archive recursion.
	FlatOnly bool
	// Aliases renames a member's basename in the virtual namespace,
	// keyed by the member's own source basename (rarconfig's `alias=<src>,<dst>`
	// directive, spec §6 glossary / §12 supplemented features). The
	// destination differs from the source only in basename, so this map
	// is applied after the directory portion of the path is resolved.
	Aliases map[string]string
	// SaveEOF marks every non-raw (compressed) member discovered in this
	// archive for EOF-index generation on its first near-EOF probe (rarconfig's
	// `save-eof=1` directive or a CLI-level default, spec §4.K / §6).
	SaveEOF bool
}

// Listing is the per-directory dirlist.List produced for dirPath.
type Listing struct {
	Path string
	List *dirlist.List
}

// Result is what Enumerate hands back: every directory level touched
// (including the archive's own root) plus a non-fatal walk error, if the
// archive opened but failed partway through (spec §4.F "Failure
// semantics").
type Result struct {
	Dirs []Listing
	Err  error

	// Nested lists store-mode, unencrypted members whose name carries an
	// archive extension, found while FlatOnly is false (spec §4.F step
	// 8). The decoder boundary in this tree only opens archives by path,
	// so this walker cannot hand the engine an in-memory view directly;
	// it reports the candidate and lets the caller materialise a tempfile
	// or mmap view (spec's own two options) before recursing into
	// Enumerate for it.
	Nested []NestedCandidate
}

// NestedCandidate is an archive-within-archive member discovered during a
// walk, awaiting materialisation by the caller.
type NestedCandidate struct {
	VirtualPath string
	MemberName  string
}

var archiveExts = map[string]bool{".rar": true, ".cbr": true}

// Enumerate walks archivePath, whose contents are exposed under
// virtualDir in the mount namespace, storing every resolved member in
// files and returning the directory listings collected along the way.
//
// passwords is consulted via decoder.OpenWithPasswords whenever the
// archive's headers are encrypted.
func Enumerate(o decoder.Opener, archivePath, virtualDir string, files *filecache.Cache, opts Options, passwords decoder.PasswordCallback) Result {
	a, err := decoder.OpenWithPasswords(o, archivePath, passwords)
	if err != nil {
		// An archive that fails to open entirely is skipped, not an error
		// (spec §4.F "an archive that fails to open is skipped").
		return Result{}
	}
	defer a.Close()

	w := &walker{
		opener:      o,
		files:       files,
		opts:        opts,
		archivePath: archivePath,
		virtualDir:  virtualDir,
		dirs:        make(map[string]*dirlist.List),
		seen:        make(map[string]*member.Entry),
		order:       nil,
	}
	w.dir(virtualDir)

	for {
		h, err := a.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return w.finish(err)
		}
		if err := w.visit(a, h); err != nil {
			return w.finish(err)
		}
	}
	return w.finish(nil)
}

type walker struct {
	opener      decoder.Opener
	files       *filecache.Cache
	opts        Options
	archivePath string
	virtualDir  string

	dirs   map[string]*dirlist.List
	order  []string
	seen   map[string]*member.Entry // member name -> entry, for FILECOPY lookups
	nested []NestedCandidate
}

func (w *walker) finish(err error) Result {
	res := Result{Err: err, Nested: w.nested}
	for _, p := range w.order {
		l := w.dirs[p]
		l.Close()
		res.Dirs = append(res.Dirs, Listing{Path: p, List: l})
	}
	return res
}

// dir returns (creating if necessary) the in-progress listing for a
// virtual directory path.
func (w *walker) dir(p string) *dirlist.List {
	if l, ok := w.dirs[p]; ok {
		return l
	}
	l := dirlist.New()
	w.dirs[p] = l
	w.order = append(w.order, p)
	return l
}

func (w *walker) visit(a decoder.Archive, h *decoder.Header) error {
	name := strings.ReplaceAll(h.Name, "\\", "/")
	name = strings.TrimPrefix(name, "/")
	base := path.Base(name)

	if w.opts.Excluded[base] {
		return nil
	}

	ext := strings.ToLower(path.Ext(base))
	isImage := w.opts.ImageExtensions[ext]
	if isImage && !h.Stored && !w.opts.ShowCompImg {
		// Hidden per the show-comp-img policy (spec §4.F tie-breaks).
		return nil
	}

	displayName := name
	if isImage && w.opts.FakeISO {
		displayName = strings.TrimSuffix(name, ext) + ".iso"
	}
	if dst, ok := w.opts.Aliases[base]; ok {
		displayName = path.Join(path.Dir(displayName), dst)
	}

	vpath := path.Join(w.virtualDir, displayName)
	vdir := path.Dir(vpath)
	w.ensureParents(vdir)

	if h.IsDir {
		w.dir(vdir).Append(dirlist.Entry{
			Name: path.Base(vpath),
			Stat: dirStat(),
			Type: dirlist.RAR,
		})
		w.files.Set(vpath, &member.Entry{
			Kind: member.KindArchive,
			Name: vpath,
			Stat: dirStat(),
		})
		return nil
	}

	e := &member.Entry{
		Kind:        member.KindArchive,
		Name:        vpath,
		ArchivePath: w.archivePath,
		MemberName:  h.Name,
		Offset:      h.Offset,
		Stat: member.Stat{
			Mode:  os.FileMode(h.Mode) | fileModeFor(h),
			Size:  h.UnpackedSize,
			Mtime: h.ModTime,
			Atime: h.ModTime,
			Ctime: h.ModTime,
			Nlink: 1,
		},
	}
	if h.Stored {
		e.Method = 0x30
	}
	if h.Encrypted {
		e.Flags |= member.Encrypted
	}

	switch {
	case h.IsFileCopy:
		w.resolveRedirect(e, h)
	case h.Symlink:
		w.resolveSymlink(a, e, h)
	default:
		raw := h.Stored && !h.Encrypted
		if raw {
			e.Flags |= member.Raw
			w.resolveMultipart(e, h)
		} else if w.opts.SaveEOF {
			e.Flags |= member.SaveEOF
		}
	}

	w.files.Set(vpath, e)
	w.seen[h.Name] = e

	if !w.opts.FlatOnly && e.Flags.Has(member.Raw) && archiveExts[ext] {
		w.nested = append(w.nested, NestedCandidate{VirtualPath: vpath, MemberName: h.Name})
	}

	w.dir(vdir).Append(dirlist.Entry{
		Name: path.Base(vpath),
		Stat: e.Stat,
		Type: dirlist.RAR,
	})
	return nil
}

// ensureParents synthesises force_dir placeholders for every ancestor of
// dir, under virtualDir, that has no entry yet (spec §4.F step 3).
func (w *walker) ensureParents(dir string) {
	if dir == w.virtualDir || len(dir) < len(w.virtualDir) {
		return
	}
	if _, ok := w.files.Get(dir); ok {
		return
	}
	parent := path.Dir(dir)
	w.ensureParents(parent)

	e := &member.Entry{
		Kind:  member.KindArchive,
		Name:  dir,
		Stat:  dirStat(),
		Flags: member.ForceDir,
	}
	w.files.Set(dir, e)
	if parent != dir {
		w.dir(parent).Append(dirlist.Entry{
			Name: path.Base(dir),
			Stat: e.Stat,
			Type: dirlist.RAR,
		})
	}
	w.dir(dir) // ensure the directory's own (possibly still-empty) listing exists
}

func dirStat() member.Stat {
	return member.Stat{
		Mode:  os.ModeDir | 0777,
		Size:  4096,
		Nlink: 2,
	}
}

func fileModeFor(h *decoder.Header) os.FileMode {
	if h.Symlink {
		return os.ModeSymlink
	}
	return 0
}

// resolveMultipart computes the per-volume accounting spec §4.F step 5
// describes. The decoder interface (grounded on rardecode/v2's FileHeader,
// whose PackedSize documents "packed file size, or first block if the
// file spans volumes") only ever gives this walker the first block's
// size up front, so a member whose TotalParts > 1 is recorded with
// Unresolved set and VSizeNext/VSizeRealFirst/VSizeRealNext left unset.
// Such an entry is not readable in raw mode: internal/engine's Open and
// internal/dispatch's raw-mode reader both refuse it with ErrUnresolved.
func (w *walker) resolveMultipart(e *member.Entry, h *decoder.Header) {
	info, err := volname.Parse(e.ArchivePath)
	if err != nil {
		return
	}
	e.VNoBase = info.Index
	e.VPos = info.Pos
	e.VLen = info.Len
	e.VType = info.Type

	if h.TotalParts <= 1 {
		e.VSizeFirst = h.PackedSize
		return
	}
	e.Flags |= member.Multipart | member.Unresolved
	e.VNoFirst = h.VolumeNumber
	e.VSizeFirst = h.PackedSize

	if info.Type == member.VTypeNew && e.VNoFirst >= 127 {
		e.Flags |= member.VSizeFixupNeeded
	}
}

// resolveRedirect copies a FILECOPY source member's metadata into e,
// preserving e's own timestamps (spec §4.F step 7).
func (w *walker) resolveRedirect(e *member.Entry, h *decoder.Header) {
	src, ok := w.seen[h.RedirectTarget]
	if !ok {
		return
	}
	name, mtime, atime, ctime := e.Name, e.Stat.Mtime, e.Stat.Atime, e.Stat.Ctime
	*e = *src
	e.Name = name // virtual path stays the redirect's own
	e.Stat.Mtime, e.Stat.Atime, e.Stat.Ctime = mtime, atime, ctime
}

// resolveSymlink decodes a symlink member's target (spec §4.F step 6).
// RAR5 stores the target as UTF-16LE member content; RAR4 and earlier
// store it as the host charset's plain bytes. Since the decoder exposes
// no explicit "encoding" flag, this walker tries UTF-16LE first and
// falls back to the raw bytes when the decoded result doesn't look like
// a plausible path.
func (w *walker) resolveSymlink(a decoder.Archive, e *member.Entry, h *decoder.Header) {
	if h.UnpackedSize <= 0 || h.UnpackedSize > 4096 {
		return
	}
	buf := make([]byte, h.UnpackedSize)
	if _, err := io.ReadFull(a, buf); err != nil {
		return
	}
	e.LinkTarget = decodeLinkTarget(buf)
	e.Stat.Size = int64(len(e.LinkTarget))
}

func decodeLinkTarget(buf []byte) string {
	if len(buf)%2 == 0 && looksUTF16(buf) {
		u16 := make([]uint16, len(buf)/2)
		for i := range u16 {
			u16[i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		}
		return strings.TrimRight(string(utf16.Decode(u16)), "\x00")
	}
	return strings.TrimRight(string(buf), "\x00")
}

// looksUTF16 is a cheap heuristic: ASCII text encoded as UTF-16LE has a
// zero high byte on every other position.
func looksUTF16(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	zeros := 0
	for i := 1; i < len(buf); i += 2 {
		if buf[i] == 0 {
			zeros++
		}
	}
	return zeros*2 >= len(buf)-1
}
