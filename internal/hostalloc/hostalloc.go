// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hostalloc is a minimal, real allocator the host-function
// table of internal/hook can wrap (spec.md §4.D): this module embeds
// no interpreter of its own, so it stands in for the "plain Go
// function values" hook.go's own doc comment says a caller registers,
// the same way a wazero-style runtime backs its own host memory
// functions.
package hostalloc

import (
	"sync"
	"sync/atomic"
)

// Allocator owns every live allocation it has handed out, pinning the
// backing buffer against garbage collection until it is freed, and
// hands out unique synthetic addresses for callers with no native
// pointer of their own to report.
type Allocator struct {
	mu   sync.Mutex
	live map[uintptr][]byte
	next uint64
}

// New returns an empty Allocator.
func New() *Allocator {
	return &Allocator{live: make(map[uintptr][]byte)}
}

func (a *Allocator) alloc(size uintptr) uintptr {
	buf := make([]byte, size)
	addr := uintptr(atomic.AddUint64(&a.next, 1))
	a.mu.Lock()
	a.live[addr] = buf
	a.mu.Unlock()
	return addr
}

// Malloc allocates size bytes and returns a fresh address; ptr is
// unused.
func (a *Allocator) Malloc(size, ptr uintptr) uintptr {
	if size == 0 {
		return 0
	}
	return a.alloc(size)
}

// Calloc is Malloc: make() already zero-fills a fresh slice, matching
// calloc's contract.
func (a *Allocator) Calloc(size, ptr uintptr) uintptr {
	return a.Malloc(size, ptr)
}

// Realloc resizes the allocation at ptr, copying its former contents
// into a fresh address (this allocator never moves memory in place).
// A zero ptr behaves as Malloc; a zero size behaves as Free.
func (a *Allocator) Realloc(size, ptr uintptr) uintptr {
	if size == 0 {
		a.Free(0, ptr)
		return 0
	}

	a.mu.Lock()
	old := a.live[ptr]
	delete(a.live, ptr)
	a.mu.Unlock()

	addr := a.alloc(size)
	a.mu.Lock()
	copy(a.live[addr], old)
	a.mu.Unlock()
	return addr
}

// Free releases the allocation at ptr, unpinning it for garbage
// collection.
func (a *Allocator) Free(size, ptr uintptr) uintptr {
	a.mu.Lock()
	delete(a.live, ptr)
	a.mu.Unlock()
	return 0
}

// Mmap and Munmap stand in for the same allocator kind at page
// granularity (spec.md §3's closed enumeration names both): this
// allocator draws no distinction between a heap and a mapped region,
// so they alias Malloc and Free.
func (a *Allocator) Mmap(size, ptr uintptr) uintptr   { return a.Malloc(size, ptr) }
func (a *Allocator) Munmap(size, ptr uintptr) uintptr { return a.Free(size, ptr) }

// Live reports the number of allocations not yet freed.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}
