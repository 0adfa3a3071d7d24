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
	"time"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"

	"github.com/hasse69/rar2fs-sub000/internal/fserr"
)

// Readlink implements fs.NodeReadlinker (spec §6 "readlink(path) —
// returns the stored link target", true for both in-archive symlinks and
// local passthrough ones, since internal/engine.Lookup resolves both the
// same way).
func (n *node) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	entry, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return "", fserr.Translate(err)
	}
	if !entry.IsSymlink() {
		return "", fuse.Errno(unix.EINVAL)
	}
	return entry.LinkTarget, nil
}

// Setattr implements fs.NodeSetattrer: chmod/chown/truncate/utimens
// passthrough to the underlying directory when n resolves locally, EPERM
// when it resolves into an archive (spec §6).
func (n *node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	entry, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return fserr.Translate(err)
	}
	if !isWritable(entry) {
		return fuse.EPERM
	}
	real := n.fs.Eng.RealPath(n.path)

	if req.Valid.Mode() {
		if err := os.Chmod(real, req.Mode.Perm()); err != nil {
			return fserr.Translate(err)
		}
	}
	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := -1, -1
		if req.Valid.Uid() {
			uid = int(req.Uid)
		}
		if req.Valid.Gid() {
			gid = int(req.Gid)
		}
		if err := os.Chown(real, uid, gid); err != nil {
			return fserr.Translate(err)
		}
	}
	if req.Valid.Size() {
		if err := os.Truncate(real, int64(req.Size)); err != nil {
			return fserr.Translate(err)
		}
	}
	if req.Valid.Atime() || req.Valid.Mtime() {
		atime, mtime := time.Now(), time.Now()
		if req.Valid.Atime() {
			atime = req.Atime
		}
		if req.Valid.Mtime() {
			mtime = req.Mtime
		}
		if err := os.Chtimes(real, atime, mtime); err != nil {
			return fserr.Translate(err)
		}
	}

	return n.Attr(ctx, &resp.Attr)
}
