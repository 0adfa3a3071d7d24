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
	"io"
	"os"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/hasse69/rar2fs-sub000/internal/dispatch"
	"github.com/hasse69/rar2fs-sub000/internal/engine"
	"github.com/hasse69/rar2fs-sub000/internal/fserr"
	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// handle is the fs.Handle for both sides of spec §4.J's open-time mode
// split: a plain passthrough *os.File for KindLocal paths, or an
// *engine.Handle (RAW/RAR/INFO) for everything that resolves inside an
// archive. Exactly one of the two fields is set.
type handle struct {
	local *os.File
	eng   *engine.Handle
}

var (
	_ fs.HandleReader   = (*handle)(nil)
	_ fs.HandleWriter   = (*handle)(nil)
	_ fs.HandleReleaser = (*handle)(nil)
	_ fs.HandleFlusher  = (*handle)(nil)
)

// Open implements fs.NodeOpener: local passthrough open, or the engine's
// §4.J mode dispatch for an archive member. Write flags against an
// archive path fail with EPERM before the engine is even consulted,
// matching "open(path, flags) — rejects write flags for in-archive paths
// with EPERM" verbatim.
func (n *node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if n.info != "" {
		h, err := n.fs.Eng.Open(ctx, n.info, true)
		if err != nil {
			return nil, fserr.Translate(err)
		}
		return &handle{eng: h}, nil
	}

	entry, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return nil, fserr.Translate(err)
	}

	if entry.Kind == member.KindLocal {
		f, err := os.OpenFile(n.fs.Eng.RealPath(n.path), osFlags(req.Flags), 0)
		if err != nil {
			return nil, fserr.Translate(err)
		}
		return &handle{local: f}, nil
	}

	if !req.Flags.IsReadOnly() {
		return nil, fuse.EPERM
	}
	h, err := n.fs.Eng.Open(ctx, n.path, false)
	if err != nil {
		return nil, fserr.Translate(err)
	}
	// A compressed-mode open backs onto a pipe the kernel can't usefully
	// page-cache ahead of the reader worker, so steer clear of readahead
	// assumptions the same way the source's own direct_io latch does.
	if h.Mode == dispatch.RAR {
		resp.Flags |= fuse.OpenDirectIO
	}
	return &handle{eng: h}, nil
}

// Create implements fs.NodeCreater: a new regular file can only ever be
// created on the local passthrough side (spec §6's write passthrough
// list), since nothing in this tree ever writes into an archive.
func (n *node) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	parent, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return nil, nil, fserr.Translate(err)
	}
	if !isWritable(parent) {
		return nil, nil, fuse.EPERM
	}
	child := n.fs.Eng.Join(n.path, req.Name)
	f, err := os.OpenFile(n.fs.Eng.RealPath(child), osFlags(req.Flags)|os.O_CREATE, req.Mode.Perm())
	if err != nil {
		return nil, nil, fserr.Translate(err)
	}
	n.fs.Eng.Dirs.Invalidate(n.path)
	return &node{fs: n.fs, path: child}, &handle{local: f}, nil
}

// osFlags translates a fuse.OpenFlags bitmask into the os.OpenFile flags
// its embedded syscall flags already are on Linux, stripping the
// FUSE-specific high bits the kernel also sets (O_CREAT/O_EXCL are
// handled by Create, not Open).
func osFlags(f fuse.OpenFlags) int {
	switch {
	case f.IsWriteOnly():
		return os.O_WRONLY
	case f.IsReadWrite():
		return os.O_RDWR
	default:
		return os.O_RDONLY
	}
}

// Read implements fs.HandleReader, dispatching to whichever side of the
// union Open populated.
func (h *handle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	var n int
	var err error
	if h.local != nil {
		n, err = h.local.ReadAt(buf, req.Offset)
	} else {
		n, err = h.eng.Read(buf, req.Offset)
	}
	if err != nil && err != io.EOF {
		return fserr.Translate(err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write implements fs.HandleWriter; only ever reachable on the local
// passthrough side since Open/Create refuse write flags on an archive
// path.
func (h *handle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if h.local == nil {
		return fuse.EPERM
	}
	n, err := h.local.WriteAt(req.Data, req.Offset)
	resp.Size = n
	if err != nil {
		return fserr.Translate(err)
	}
	return nil
}

// Flush implements fs.HandleFlusher.
func (h *handle) Flush(_ context.Context, _ *fuse.FlushRequest) error {
	if h.local != nil {
		return fserr.Translate(h.local.Sync())
	}
	return nil
}

// Release implements fs.HandleReleaser, tearing down whichever side of
// the union is live: the local *os.File, or the engine Handle's
// extractor/reader-worker/ring-buffer/index (spec §5 "release tears down
// H/I/G").
func (h *handle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	if h.local != nil {
		return fserr.Translate(h.local.Close())
	}
	return fserr.Translate(h.eng.Close())
}
