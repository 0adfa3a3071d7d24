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

// Package fserr translates the internal error kinds of spec §7 into the
// bazil.org/fuse errno sentinels the FUSE boundary must return, the same
// way the teacher's pkg/fs translates camli errors into fuse.ENOENT/
// fuse.EPERM/fuse.EIO at its own boundary (ro.go, xattr.go).
package fserr

import (
	"errors"
	"os"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"

	"github.com/hasse69/rar2fs-sub000/internal/decoder"
	"github.com/hasse69/rar2fs-sub000/internal/dispatch"
	"github.com/hasse69/rar2fs-sub000/internal/engine"
)

// Kind is the error-kind taxonomy of spec §7.
type Kind int

const (
	// NotFound corresponds to spec §7 "Not found" -> -ENOENT.
	NotFound Kind = iota
	// Permission corresponds to spec §7 "Permission" -> -EPERM.
	Permission
	// IO corresponds to spec §7 "I/O" -> -EIO.
	IO
	// Auth corresponds to spec §7 "Auth" -> -EPERM (read) or silent retry.
	Auth
	// RangeErr corresponds to spec §7 "Range" -> -EIO or 0 bytes.
	RangeErr
	// Resource corresponds to spec §7 "Resource" -> -EIO, best effort continue.
	Resource
)

// Errno returns the bazil.org/fuse sentinel for kind.
func Errno(kind Kind) error {
	switch kind {
	case NotFound:
		return fuse.ENOENT
	case Permission, Auth:
		return fuse.EPERM
	case IO, RangeErr, Resource:
		return fuse.Errno(unix.EIO)
	default:
		return fuse.Errno(unix.EIO)
	}
}

// Translate maps a package-level sentinel error from internal/dispatch or
// internal/decoder to its spec §7 kind, falling through to IO for
// anything unrecognised (spec §7's "I/O" row is the catch-all: "extractor
// died, pipe broken, unreadable volume"). nil maps to nil.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err), errors.Is(err, engine.ErrNotFound):
		return Errno(NotFound)
	case errors.Is(err, dispatch.ErrBackwardSeekBeyondHistory):
		return Errno(RangeErr)
	case errors.Is(err, dispatch.ErrStallDetected):
		return Errno(IO)
	case errors.Is(err, dispatch.ErrUnresolved):
		return Errno(IO)
	case errors.Is(err, decoder.ErrNeedPassword):
		return Errno(Auth)
	default:
		return Errno(IO)
	}
}
