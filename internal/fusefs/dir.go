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

package fusefs

import (
	"context"
	"os"
	"strings"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	"github.com/hasse69/rar2fs-sub000/internal/fserr"
)

// infoSuffix names the synthetic `<path>#info` sidecar spec §4.J's INFO
// mode serves; it is reachable by Lookup but never listed by ReadDirAll,
// matching the source's own lread_info entry point (a path suffix, not a
// directory member).
const infoSuffix = "#info"

// Lookup implements fs.NodeStringLookuper (spec §6 getattr).
func (n *node) Lookup(_ context.Context, name string) (fs.Node, error) {
	if strings.HasSuffix(name, infoSuffix) {
		target := n.fs.Eng.Join(n.path, strings.TrimSuffix(name, infoSuffix))
		entry, err := n.fs.Eng.Lookup(target)
		if err != nil {
			return nil, fserr.Translate(err)
		}
		if entry.IsDir() {
			return nil, fuse.ENOENT
		}
		return &node{fs: n.fs, path: n.fs.Eng.Join(n.path, name), info: target}, nil
	}

	child := n.fs.Eng.Join(n.path, name)
	if _, err := n.fs.Eng.Lookup(child); err != nil {
		return nil, fserr.Translate(err)
	}
	return &node{fs: n.fs, path: child}, nil
}

// ReadDirAll implements fs.HandleReadDirAller (spec §6 readdir).
func (n *node) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	list, err := n.fs.Eng.ListDir(n.path)
	if err != nil {
		return nil, fserr.Translate(err)
	}
	entries := list.Entries()
	out := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.Dirent{
			Inode: inode(n.fs.Eng.Join(n.path, e.Name)),
			Type:  direntType(e.Stat.Mode),
			Name:  e.Name,
		})
	}
	return out, nil
}

func direntType(mode os.FileMode) fuse.DirentType {
	switch {
	case mode.IsDir():
		return fuse.DT_Dir
	case mode&os.ModeSymlink != 0:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

// Mkdir implements fs.NodeMkdirer: passthrough when n resolves locally,
// EPERM when it resolves into an archive (spec §6).
func (n *node) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	parent, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return nil, fserr.Translate(err)
	}
	if !isWritable(parent) {
		return nil, fuse.EPERM
	}
	child := n.fs.Eng.Join(n.path, req.Name)
	if err := os.Mkdir(n.fs.Eng.RealPath(child), req.Mode.Perm()); err != nil {
		return nil, fserr.Translate(err)
	}
	n.fs.Eng.Dirs.Invalidate(n.path)
	return &node{fs: n.fs, path: child}, nil
}

// Remove implements fs.NodeRemover (unlink/rmdir passthrough, spec §6).
func (n *node) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	child := n.fs.Eng.Join(n.path, req.Name)
	entry, err := n.fs.Eng.Lookup(child)
	if err != nil {
		return fserr.Translate(err)
	}
	if !isWritable(entry) {
		return fuse.EPERM
	}
	if err := os.Remove(n.fs.Eng.RealPath(child)); err != nil {
		return fserr.Translate(err)
	}
	n.fs.Eng.Files.Invalidate(child)
	n.fs.Eng.Dirs.Invalidate(n.path)
	return nil
}

// Symlink implements fs.NodeSymlinker (passthrough, spec §6).
func (n *node) Symlink(_ context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	parent, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return nil, fserr.Translate(err)
	}
	if !isWritable(parent) {
		return nil, fuse.EPERM
	}
	child := n.fs.Eng.Join(n.path, req.NewName)
	if err := os.Symlink(req.Target, n.fs.Eng.RealPath(child)); err != nil {
		return nil, fserr.Translate(err)
	}
	n.fs.Eng.Dirs.Invalidate(n.path)
	return &node{fs: n.fs, path: child}, nil
}

// Mknod implements fs.NodeMknoder (passthrough, spec §6). os has no Mknod
// wrapper, so this drops to golang.org/x/sys/unix directly, the same
// package the rest of this tree already uses for raw syscalls it needs
// (internal/fserr's errno mapping, this package's Statfs and xattr errno).
func (n *node) Mknod(_ context.Context, req *fuse.MknodRequest) (fs.Node, error) {
	parent, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return nil, fserr.Translate(err)
	}
	if !isWritable(parent) {
		return nil, fuse.EPERM
	}
	child := n.fs.Eng.Join(n.path, req.Name)
	if err := unix.Mknod(n.fs.Eng.RealPath(child), uint32(req.Mode), int(req.Rdev)); err != nil {
		return nil, fserr.Translate(err)
	}
	n.fs.Eng.Dirs.Invalidate(n.path)
	return &node{fs: n.fs, path: child}, nil
}

// Rename implements fs.NodeRenamer (passthrough, spec §6).
func (n *node) Rename(_ context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	oldChild := n.fs.Eng.Join(n.path, req.OldName)
	entry, err := n.fs.Eng.Lookup(oldChild)
	if err != nil {
		return fserr.Translate(err)
	}
	if !isWritable(entry) {
		return fuse.EPERM
	}
	dst, ok := newDir.(*node)
	if !ok {
		return fuse.Errno(unix.EIO)
	}
	newChild := n.fs.Eng.Join(dst.path, req.NewName)
	if err := os.Rename(n.fs.Eng.RealPath(oldChild), n.fs.Eng.RealPath(newChild)); err != nil {
		return fserr.Translate(err)
	}
	n.fs.Eng.Files.Invalidate(oldChild)
	n.fs.Eng.Dirs.Invalidate(n.path)
	n.fs.Eng.Dirs.Invalidate(dst.path)
	return nil
}
