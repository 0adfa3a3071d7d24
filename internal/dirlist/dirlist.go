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

// Package dirlist implements the append-mostly directory-entry list (spec
// §4.B) that backs readdir answers: entries accumulate during an
// enumeration pass, then Close sorts and de-duplicates them so a native
// file always masks an archive member of the same name.
package dirlist

import (
	"sort"

	"github.com/hasse69/rar2fs-sub000/internal/member"
)

// Type distinguishes where an entry's data actually lives.
type Type int

const (
	// NRM is a native filesystem entry.
	NRM Type = iota
	// RAR is an archive-sourced entry.
	RAR
)

// Entry is one directory entry awaiting sort/de-dup.
type Entry struct {
	Name string
	Stat member.Stat
	Type Type

	valid bool
}

// List is an append-mostly, not-yet-closed directory listing.
type List struct {
	entries []Entry
	closed  bool
}

// New returns an empty list.
func New() *List { return &List{} }

// Append adds an entry. Calling Append after Close panics, matching the
// source's append-then-sort-once lifecycle.
func (l *List) Append(e Entry) {
	if l.closed {
		panic("dirlist: Append after Close")
	}
	e.valid = true
	l.entries = append(l.entries, e)
}

// Close sorts the list by name (case-sensitive, byte order) and resolves
// name collisions: an NRM entry always wins over a RAR entry sharing its
// name, and the loser is marked invalid and skipped by Entries.
func (l *List) Close() {
	if l.closed {
		return
	}
	l.closed = true

	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].Name < l.entries[j].Name
	})

	for i := 0; i < len(l.entries); {
		j := i
		for j < len(l.entries) && l.entries[j].Name == l.entries[i].Name {
			j++
		}
		if j-i > 1 {
			resolveCollision(l.entries[i:j])
		}
		i = j
	}
}

// resolveCollision marks every RAR-type entry in a same-name run invalid
// once at least one NRM entry is present; otherwise the first entry wins
// and the rest (duplicate archive headers, e.g. a FILECOPY redirect seen
// twice) are marked invalid.
func resolveCollision(run []Entry) {
	hasNRM := false
	for i := range run {
		if run[i].Type == NRM {
			hasNRM = true
			break
		}
	}
	kept := false
	for i := range run {
		switch {
		case hasNRM && run[i].Type == RAR:
			run[i].valid = false
		case kept:
			run[i].valid = false
		default:
			kept = true
		}
	}
}

// Entries returns the closed, sorted, de-duplicated entries. It panics if
// called before Close, since the source's iteration also assumes the
// sort/de-dup pass has already run.
func (l *List) Entries() []Entry {
	if !l.closed {
		panic("dirlist: Entries before Close")
	}
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.valid {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries appended so far (valid or not).
func (l *List) Len() int { return len(l.entries) }
