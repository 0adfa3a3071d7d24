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

package fserr

import (
	"errors"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/hasse69/rar2fs-sub000/internal/decoder"
	"github.com/hasse69/rar2fs-sub000/internal/dispatch"
)

func TestErrnoMapsKindsPerSpecTable(t *testing.T) {
	assert.Equal(t, fuse.ENOENT, Errno(NotFound))
	assert.Equal(t, fuse.EPERM, Errno(Permission))
	assert.Equal(t, fuse.EPERM, Errno(Auth))
	assert.Equal(t, fuse.Errno(unix.EIO), Errno(IO))
	assert.Equal(t, fuse.Errno(unix.EIO), Errno(RangeErr))
	assert.Equal(t, fuse.Errno(unix.EIO), Errno(Resource))
}

func TestTranslateNilIsNil(t *testing.T) {
	assert.NoError(t, Translate(nil))
}

func TestTranslateBackwardSeekIsEIO(t *testing.T) {
	err := Translate(dispatch.ErrBackwardSeekBeyondHistory)
	assert.Equal(t, fuse.Errno(unix.EIO), err)
}

func TestTranslateNeedPasswordIsEPERM(t *testing.T) {
	err := Translate(decoder.ErrNeedPassword)
	assert.Equal(t, fuse.EPERM, err)
}

func TestTranslateUnknownErrorFallsBackToEIO(t *testing.T) {
	err := Translate(errors.New("something unexpected"))
	assert.Equal(t, fuse.Errno(unix.EIO), err)
}
