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
	"encoding/binary"
	"strings"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"

	"github.com/hasse69/rar2fs-sub000/internal/fserr"
	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// xattrNamespace names the mount's own xattr namespace (spec §6
// "getxattr/listxattr — exposes user.<ns>.cache_method ... and
// user.<ns>.cache_flags").
const xattrNamespace = "rar2fs"

const (
	cacheMethodXattr = "user." + xattrNamespace + ".cache_method"
	cacheFlagsXattr  = "user." + xattrNamespace + ".cache_flags"
)

// Getxattr implements fs.NodeGetxattrer. Only archive-backed entries carry
// the two synthetic attributes; a local passthrough path reports ENODATA,
// same as a real file that was never tagged.
func (n *node) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	entry, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return fserr.Translate(err)
	}
	if entry.Kind != member.KindArchive {
		return fuse.Errno(unix.ENODATA)
	}

	var value []byte
	switch req.Name {
	case cacheMethodXattr:
		value = make([]byte, 2)
		binary.BigEndian.PutUint16(value, uint16(entry.Method))
	case cacheFlagsXattr:
		value = make([]byte, 4)
		binary.BigEndian.PutUint32(value, uint32(entry.Flags))
	default:
		return fuse.Errno(unix.ENODATA)
	}

	resp.Xattr = windowXattr(value, req.Position, req.Size)
	return nil
}

// Listxattr implements fs.NodeListxattrer.
func (n *node) Listxattr(_ context.Context, req *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	entry, err := n.fs.Eng.Lookup(n.path)
	if err != nil {
		return fserr.Translate(err)
	}
	if entry.Kind != member.KindArchive {
		resp.Xattr = nil
		return nil
	}
	names := strings.Join([]string{cacheMethodXattr, cacheFlagsXattr}, "\x00") + "\x00"
	resp.Xattr = windowXattr([]byte(names), req.Position, req.Size)
	return nil
}

// Removexattr / Setxattr are rejected for every path: the two exposed
// attributes are derived, read-only facts about archive membership, and
// local passthrough xattrs are out of scope (spec §1 "xattr surface"
// is named as an external-collaborator concern, not one this tree owns
// beyond the two read-only keys above).
func (n *node) Removexattr(_ context.Context, _ *fuse.RemovexattrRequest) error { return fuse.EPERM }
func (n *node) Setxattr(_ context.Context, _ *fuse.SetxattrRequest) error       { return fuse.EPERM }

// windowXattr applies a getxattr/listxattr request's position/size window
// over a fully-materialised attribute value, honoring the FUSE convention
// that size==0 means "just tell me how much there is" (handled by the
// caller leaving resp.Xattr at its natural length) while position seeks
// within an already-known buffer.
func windowXattr(value []byte, position, size uint32) []byte {
	if position >= uint32(len(value)) {
		return nil
	}
	value = value[position:]
	if size != 0 && uint32(len(value)) > size {
		return value[:size]
	}
	return value
}
