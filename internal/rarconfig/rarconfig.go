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

// Package rarconfig parses the INI-like `rarconfig` file (spec §6) and
// locates `.pwd` sidecar password files. Grounded directly on
// `original_source/src/rarconfig.c`'s `find_next_parent`/`find_next_child`
// (a `[section]` header followed by `key = value` lines, scanned with
// `sscanf(" %[^#!=]=%[^\n]")`) and on `get_password`'s two `.pwd` naming
// candidates.
package rarconfig

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Entry holds the properties configured for one section (an archive path
// or basename, per spec §6 "keyed by archive basename or path").
type Entry struct {
	SeekLength    int
	HasSeekLength bool
	SaveEOF       bool
	HasSaveEOF    bool
	Password      string
	HasPassword   bool
	// Aliases maps a member's basename inside this archive to the
	// basename it should appear as in the virtual namespace (the
	// destination differs from the source only in basename, per spec §6
	// glossary).
	Aliases map[string]string
}

// Config is the full parsed file: section name (as written, typically an
// archive path or basename) to its Entry.
type Config struct {
	sections map[string]*Entry
}

// New returns an empty Config, as used when no rarconfig file exists
// (spec: configuration is entirely optional).
func New() *Config {
	return &Config{sections: make(map[string]*Entry)}
}

// For returns the entry for the exact section key (archive path, then
// its basename, is the caller's lookup order per get_password), or nil.
func (c *Config) For(key string) *Entry {
	return c.sections[key]
}

// Lookup tries archivePath first, then its basename, matching
// get_password's two-step lookup order.
func (c *Config) Lookup(archivePath string) *Entry {
	if e := c.For(archivePath); e != nil {
		return e
	}
	return c.For(filepath.Base(archivePath))
}

var kvRe = regexp.MustCompile(`^\s*([^#!=]+?)\s*=\s*(.+?)\s*$`)
var sectionRe = regexp.MustCompile(`^\s*\[(.+)\]\s*$`)
var aliasRe = regexp.MustCompile(`^\s*"([^"]*)"\s*,\s*"([^"]*)"\s*$`)
var aliasBareRe = regexp.MustCompile(`^\s*([^,]+?)\s*,\s*(.+?)\s*$`)

// Parse reads an INI-like rarconfig stream.
func Parse(r io.Reader) (*Config, error) {
	c := New()
	var cur *Entry

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			cur = &Entry{Aliases: make(map[string]string)}
			c.sections[m[1]] = cur
			continue
		}
		if cur == nil {
			continue
		}
		m := kvRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(m[1]))
		val := m[2]
		switch key {
		case "save-eof":
			cur.SaveEOF = val == "1" || strings.EqualFold(val, "true")
			cur.HasSaveEOF = true
		case "seek-length":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err == nil {
				// A configured seek-length of 0 is promoted to 1: the
				// source treats 0 as "no limit configured" in some
				// code paths, so normalising here keeps every
				// downstream consumer from needing the special case.
				if n == 0 {
					n = 1
				}
				cur.SeekLength = n
				cur.HasSeekLength = true
			}
		case "password":
			cur.Password = strings.Trim(val, `"`)
			cur.HasPassword = true
		case "alias":
			if am := aliasRe.FindStringSubmatch(val); am != nil {
				cur.Aliases[am[1]] = am[2]
			} else if am := aliasBareRe.FindStringSubmatch(val); am != nil {
				cur.Aliases[strings.Trim(am[1], `"`)] = strings.Trim(am[2], `"`)
			}
		}
	}
	return c, sc.Err()
}

// Load reads the rarconfig file at path, or, if path is empty, looks for
// `.rarconfig` under sourceDir (spec §6 / rarconfig_init's default
// location). A missing file is not an error: it returns an empty Config,
// matching the source's silent fallback when fopen fails.
func Load(path, sourceDir string) (*Config, error) {
	if path == "" {
		path = filepath.Join(sourceDir, ".rarconfig")
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// stemName strips a volume-naming suffix from a first-or-nth volume
// filename, leaving the archive's naming-scheme-independent stem, e.g.
// "movie.part03.rar" and "movie.r00" both yield "movie" (get_password's
// two truncation rules collapse to the same result).
func stemName(path string) string {
	base := filepath.Base(path)
	if m := regexp.MustCompile(`(?i)^(.*)\.part\d+\.rar$`).FindStringSubmatch(base); m != nil {
		return m[1]
	}
	if len(base) > 4 {
		return base[:len(base)-4]
	}
	return base
}

// PasswordSidecarPaths returns the two candidate `.pwd` sidecar paths for
// archivePath, in the order get_password tries them: `<stem>.pwd` next to
// the archive, then the hidden `.<stem>.pwd` variant (spec §6 "On-disk
// formats").
func PasswordSidecarPaths(archivePath string) (visible, hidden string) {
	dir := filepath.Dir(archivePath)
	stem := stemName(archivePath)
	visible = filepath.Join(dir, stem+".pwd")
	hidden = filepath.Join(dir, "."+stem+".pwd")
	return visible, hidden
}

// ReadPasswordSidecar looks for either sidecar naming variant and returns
// the first line with trailing CR/LF stripped (spec §6 "first line is the
// password"). It reports ok=false if neither file exists.
func ReadPasswordSidecar(archivePath string) (password string, ok bool) {
	visible, hidden := PasswordSidecarPaths(archivePath)
	for _, p := range []string{visible, hidden} {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		line := strings.SplitN(string(data), "\n", 2)[0]
		line = strings.TrimRight(line, "\r\n")
		return line, true
	}
	return "", false
}
