// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package model

import "sort"

// CodeObjectID uniquely identifies a CodeObject within one capture.
type CodeObjectID uint32

// LineEntry maps a bytecode offset to a source line; the entry with
// the largest Offset <= the queried offset wins (see DESIGN.md, decided
// Open Question on the offset-to-line convention).
type LineEntry struct {
	Offset uint32
	Line   uint32
}

// LineTable is the monotone offset->line mapping of a CodeObject.
// Entries must be sorted by Offset ascending; NewLineTable enforces this.
type LineTable struct {
	entries []LineEntry
}

// NewLineTable sorts entries and returns a queryable LineTable.
func NewLineTable(entries []LineEntry) LineTable {
	cp := make([]LineEntry, len(entries))
	copy(cp, entries)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Offset < cp[j].Offset })
	return LineTable{entries: cp}
}

// Entries returns the sorted (offset, line) pairs backing the table,
// used by the codec to serialize it.
func (lt LineTable) Entries() []LineEntry {
	return lt.entries
}

// LineAt resolves the source line active at bytecode offset off: the
// entry with the largest Offset <= off. Returns 0 if off precedes the
// first entry or the table is empty.
func (lt LineTable) LineAt(off uint32) uint32 {
	entries := lt.entries
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Offset > off })
	if i == 0 {
		return 0
	}
	return entries[i-1].Line
}

// CodeObject describes a callable in the host interpreter. Code
// objects are immutable once observed and are emitted at most once
// per capture (spec.md §3).
type CodeObject struct {
	ID         CodeObjectID
	Function   string
	Filename   string
	FirstLine  uint32
	Lines      LineTable
}

// InterpretedFrame is a single activation on the shadow stack.
// IsEntryFrame marks a frame at the boundary between two native
// evaluation-loop invocations (spec.md §3), needed to reconcile native
// and interpreted stacks when one native eval call drives several
// logical frames.
type InterpretedFrame struct {
	CodeObjectID CodeObjectID
	Offset       uint32
	IsEntryFrame bool
}
