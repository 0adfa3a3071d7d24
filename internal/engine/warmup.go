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
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hasse69/rar2fs-sub000/internal/dirlist"
	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// warmupConcurrency bounds how many directories/archives warmup processes
// at once, the Go analogue of the source's single warmup thread made
// embarrassingly parallel since nothing here needs the serial ordering a
// single pthread gave it for free.
const warmupConcurrency = 8

// warmupState tracks one running warmup pass so SIGUSR1 can restart it
// (spec §6 "optionally restart warmup").
type warmupState struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartWarmup begins a background walk of SourceDir pre-populating the
// dircache (spec §5 "A warmup background task ... pre-populates the
// dircache by walking directories; it checks a cancellation flag before
// each directory and drains on shutdown"), grounded on rar2fs.c's `-o
// warmup` option handling. It is a no-op if warmup is already running.
func (e *Engine) StartWarmup() {
	e.warmupMu.Lock()
	defer e.warmupMu.Unlock()
	if e.warmup != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.warmup = &warmupState{cancel: cancel, done: done}

	go func() {
		defer close(done)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(warmupConcurrency)
		g.Go(func() error { return e.warmupDir(gctx, g, e.SourceDir, e.MountDir, 0) })
		if err := g.Wait(); err != nil {
			e.logf("warmup: %v", err)
		}
	}()
}

// StopWarmup cancels any running warmup pass and blocks until it has
// drained, matching the source's shutdown contract for the warmup thread.
func (e *Engine) StopWarmup() {
	e.warmupMu.Lock()
	w := e.warmup
	e.warmup = nil
	e.warmupMu.Unlock()
	if w == nil {
		return
	}
	w.cancel()
	<-w.done
}

// warmupDir lists realDir, scans every archive found directly inside it,
// records the directory's merged entries in the dircache/filecache, and
// fans further directory levels out onto g so the walk proceeds
// breadth-first with bounded concurrency (spec §5 "checks a cancellation
// flag before each directory"). Like ensureDir, it lists an archive's
// members in place of the archive file itself.
func (e *Engine) warmupDir(ctx context.Context, g *errgroup.Group, realDir, virtualDir string, depth int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

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
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := ent.Name()
		vpath := filepath.Join(virtualDir, name)
		rpath := filepath.Join(realDir, name)

		info, err := ent.Info()
		if err != nil {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !ent.IsDir() && archiveExts[ext] && !(e.opts.NoExpandCBR && ext == ".cbr") {
			// Scanned synchronously, not via g.Go: it Puts into this same
			// virtualDir key, and only running it to completion before our
			// own Put below (which folds its result in) keeps whichever
			// finishes last from silently discarding the other's entries.
			if err := e.Scan(rpath, virtualDir); err != nil {
				e.logf("warmup scan %s: %v", rpath, err)
			}
			continue
		}
		list.Append(dirlist.Entry{Name: name, Stat: statFromInfo(info), Type: dirlist.NRM})
		e.Files.Local(vpath)

		if ent.IsDir() {
			if e.opts.WarmupDepth > 0 && depth+1 > e.opts.WarmupDepth {
				continue
			}
			sub, subv, d := rpath, vpath, depth+1
			g.Go(func() error { return e.warmupDir(ctx, g, sub, subv, d) })
		}
	}
	// Fold in whatever the archive scans above just wrote for virtualDir
	// before this, the final, Put for the directory.
	if archived, ok := e.Dirs.Get(virtualDir); ok {
		for _, en := range archived.Entries() {
			list.Append(en)
		}
	}
	list.Close()
	e.Dirs.Put(virtualDir, list, fi.ModTime())
	return nil
}

// statFromInfo converts a passthrough directory entry's os.FileInfo into
// the synthesised member.Stat shape the dircache/dirlist machinery expects
// throughout the rest of this tree.
func statFromInfo(fi os.FileInfo) member.Stat {
	return member.Stat{
		Mode:  fi.Mode(),
		Size:  fi.Size(),
		Mtime: fi.ModTime(),
		Ctime: fi.ModTime(),
		Atime: fi.ModTime(),
		Nlink: 1,
	}
}
