// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package unwind captures native instruction-pointer stacks (spec.md
// §4.F). NewDirect returns the Unwinder, which always walks the stack
// fresh; Ghost is an opt-in per-thread cache in front of it and does
// not itself implement Unwinder.
package unwind

import (
	"runtime"

	"github.com/bloomberg/memray-sub003/internal/model"
)

// Unwinder captures the native instruction-pointer stack of the
// calling goroutine, skipping skip leading frames (the unwinder's own
// call frames).
type Unwinder interface {
	Capture(skip int) []uintptr
}

// direct always performs a fresh walk via runtime.Callers, the
// in-process stand-in for a DWARF/Mach-O unwinder a cgo-level tracer
// would use (spec.md §4.F: "the direct-unwind mode ... must always be
// available").
type direct struct {
	maxDepth int
}

// NewDirect returns the always-available direct unwinder, capturing at
// most maxDepth frames.
func NewDirect(maxDepth int) Unwinder {
	if maxDepth <= 0 {
		maxDepth = 64
	}
	return &direct{maxDepth: maxDepth}
}

func (d *direct) Capture(skip int) []uintptr {
	pcs := make([]uintptr, d.maxDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// Cache assigns a small per-thread NativeFrameIndex to each distinct
// (ip, segment generation) pair, mirroring the writer's native-frame
// cache (spec.md §3, §4.F): "new ips emit an unresolved native frame
// record", everything already seen is referenced by index alone.
type Cache struct {
	gen     model.SegmentGeneration
	perTID  map[model.ThreadID]map[uint64]model.NativeFrameIndex
	nextIdx map[model.ThreadID]model.NativeFrameIndex
}

// NewCache returns an empty native-frame cache at segment generation 0.
func NewCache() *Cache {
	return &Cache{
		perTID:  make(map[model.ThreadID]map[uint64]model.NativeFrameIndex),
		nextIdx: make(map[model.ThreadID]model.NativeFrameIndex),
	}
}

// Invalidate bumps the segment generation, discarding every cached
// entry: a new image load can reuse virtual addresses a stale entry
// would misattribute (spec.md §3 Lifecycles: "native-frame cache
// entries live until a new segment generation invalidates them").
func (c *Cache) Invalidate() {
	c.gen++
	c.perTID = make(map[model.ThreadID]map[uint64]model.NativeFrameIndex)
	c.nextIdx = make(map[model.ThreadID]model.NativeFrameIndex)
}

// Generation returns the cache's current segment generation.
func (c *Cache) Generation() model.SegmentGeneration { return c.gen }

// Lookup entry is returned by Resolve: Index is always valid; New is
// true the first time this ip was seen on this thread since the last
// Invalidate, meaning the caller must emit a NativeFrameRecord.
type LookupEntry struct {
	Index model.NativeFrameIndex
	New   bool
}

// Resolve returns the cached index for ip on threadID, assigning a
// fresh one (and reporting New) the first time it is seen.
func (c *Cache) Resolve(threadID model.ThreadID, ip uint64) LookupEntry {
	m, ok := c.perTID[threadID]
	if !ok {
		m = make(map[uint64]model.NativeFrameIndex)
		c.perTID[threadID] = m
	}
	if idx, ok := m[ip]; ok {
		return LookupEntry{Index: idx}
	}
	idx := c.nextIdx[threadID]
	c.nextIdx[threadID] = idx + 1
	m[ip] = idx
	return LookupEntry{Index: idx, New: true}
}
