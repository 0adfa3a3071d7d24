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

// Command rar2fs mounts a RAR archive, or a directory tree containing RAR
// archives, as a read-mostly FUSE filesystem (spec §1). It wires
// internal/engine to internal/fusefs and bazil.org/fuse, the same
// mount/serve/signal lifecycle the teacher's own pk-mount follows.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefslib "bazil.org/fuse/fs"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/hasse69/rar2fs-sub000/internal/engine"
	"github.com/hasse69/rar2fs-sub000/internal/fusefs"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [options] <source> <mountpoint>\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "source is either a single RAR archive or a directory tree containing them.\n\noptions:\n")
	pflag.PrintDefaults()
}

func main() {
	var (
		excludeCSV    = pflag.StringP("exclude", "e", "", "comma-separated list of basenames to exclude from listings")
		seekLength    = pflag.IntP("seek-length", "s", 1, "accepted but ignored: no volumes are pre-opened for seeking")
		iobSize       = pflag.String("iob-size", "4MiB", "I/O buffer size for the compressed read path, a power of two, e.g. 512KiB, 4MiB")
		histSize      = pflag.String("hist-size", "2MiB", "ring buffer history retained for backward seeks")
		saveEOF       = pflag.Bool("save-eof", false, "generate a .r2i EOF-index for a compressed member the first time a read probes near its end")
		noExpandCBR   = pflag.Bool("no-expand-cbr", false, "treat .cbr files as opaque instead of expanding them like .rar")
		relatime      = pflag.Bool("relatime", false, "accepted but ignored: archive member atime is always its mtime")
		dateRAR       = pflag.Bool("date-rar", false, "accepted but ignored: folder mtimes are not derived from archives")
		configPath    = pflag.String("config", "", "path to a rarconfig file (default: <source>/.rarconfig)")
		noInheritPerm = pflag.Bool("no-inherit-perm", false, "accepted but ignored: archive member permissions come from the archive headers")
		locale        = pflag.String("locale", "", "accepted but ignored: member names are used as the decoder returns them")
		warmupFlag    = pflag.String("warmup", "", "eagerly scan archives at mount time, optionally N levels deep (e.g. --warmup=2)")
		allowOther    = pflag.Bool("allow-other", false, "allow other users to access the mount")
		fsName        = pflag.String("fs-name", "rar2fs", "filesystem name reported to the kernel")
		debug         = pflag.BoolP("debug", "d", false, "log every FUSE request/response")
		showCompImg   = pflag.Bool("show-comp-img", false, "don't hide compressed members with image extensions")
		fakeISO       = pflag.Bool("fake-iso", false, "alias recognised image extensions to .iso in the virtual namespace")
	)
	pflag.Lookup("warmup").NoOptDefVal = "0"
	pflag.Usage = usage
	pflag.Parse()

	if pflag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	source, mountpoint := pflag.Arg(0), pflag.Arg(1)

	iobBytes, err := humanize.ParseBytes(*iobSize)
	if err != nil {
		log.Fatalf("rar2fs: invalid --iob-size %q: %v", *iobSize, err)
	}
	histBytes, err := humanize.ParseBytes(*histSize)
	if err != nil {
		log.Fatalf("rar2fs: invalid --hist-size %q: %v", *histSize, err)
	}

	opts := engine.DefaultOptions()
	opts.SeekLength = *seekLength
	opts.IOBSize = int(iobBytes)
	opts.HistSize = int(histBytes)
	opts.SaveEOFDefault = *saveEOF
	opts.NoExpandCBR = *noExpandCBR
	opts.Relatime = *relatime
	opts.DateRAR = *dateRAR
	opts.ConfigPath = *configPath
	opts.NoInheritPerm = *noInheritPerm
	opts.Locale = *locale
	opts.Debug = *debug
	opts.Enumerate.ShowCompImg = *showCompImg
	opts.Enumerate.FakeISO = *fakeISO
	opts.Enumerate.Excluded = splitCSV(*excludeCSV)

	if pflag.Lookup("warmup").Changed {
		opts.WarmupEnabled = true
		opts.WarmupDepth = parseWarmupDepth(*warmupFlag)
	}

	fi, err := os.Stat(source)
	if err != nil {
		log.Fatalf("rar2fs: %v", err)
	}

	sourceDir := source
	var singleArchive string
	if !fi.IsDir() {
		sourceDir = filepath.Dir(source)
		singleArchive = source
	}

	eng, err := engine.New(sourceDir, mountpoint, opts)
	if err != nil {
		log.Fatalf("rar2fs: starting engine: %v", err)
	}
	defer eng.Close()

	if singleArchive != "" {
		if err := eng.Scan(singleArchive, eng.MountDir); err != nil {
			log.Fatalf("rar2fs: scanning %s: %v", singleArchive, err)
		}
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName(*fsName),
		fuse.Subtype("rar2fs"),
		fuse.VolumeName(filepath.Base(mountpoint)),
		fuse.ReadOnly(),
	}
	if *allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	conn, err := fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		log.Fatalf("rar2fs: mount: %v", err)
	}
	defer conn.Close()

	if *debug {
		fuse.Debug = func(msg interface{}) { log.Print(msg) }
	}

	log.Printf("rar2fs: mounted %s on %s (iob=%s hist=%s)", source, mountpoint, humanize.Bytes(iobBytes), humanize.Bytes(histBytes))

	filesys := &fusefs.FS{Eng: eng, Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan error, 1)
	go func() { done <- fusefslib.Serve(conn, filesys) }()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("rar2fs: serve: %v", err)
		}
	case sig := <-sigc:
		log.Printf("rar2fs: received %s, unmounting", sig)
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		log.Printf("rar2fs: mount error: %v", err)
	}

	time.AfterFunc(5*time.Second, func() {
		log.Fatal("rar2fs: unmount did not complete in time, exiting")
	})
	if err := fuse.Unmount(mountpoint); err != nil {
		log.Printf("rar2fs: unmount: %v", err)
	}
}

// splitCSV turns a comma-separated --exclude value into the set
// internal/enumerate.Options.Excluded expects, nil for an empty flag.
func splitCSV(csv string) map[string]bool {
	if csv == "" {
		return nil
	}
	out := make(map[string]bool)
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out[csv[start:i]] = true
			}
			start = i + 1
		}
	}
	return out
}

// parseWarmupDepth turns a bare --warmup into "scan everything" (0, meaning
// no depth bound to internal/engine's warmupDir) and --warmup=N into N.
func parseWarmupDepth(val string) int {
	if val == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(val, "%d", &n); err != nil || n < 0 {
		return 0
	}
	return n
}
