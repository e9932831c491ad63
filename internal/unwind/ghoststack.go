// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package unwind

import (
	"sync"
	"sync/atomic"

	"github.com/bloomberg/memray-sub003/internal/model"
)

// cached is one thread's last captured native stack, tagged with the
// caller-supplied correlation key it was captured at and the epoch it
// was cached under (spec.md §4.F "Signal safety"). Go has no
// return-address patching, so there is no saved stack pointer to
// compare on trampoline re-entry (§4.F "Longjmp detection"); the
// correlation key plays that role instead.
type cached struct {
	key   int
	ips   []uintptr
	epoch uint64
}

// Ghost is the per-thread cache fast path of spec.md §4.F: "the first
// capture on a given call stack performs a direct unwind"; subsequent
// captures correlated to the same key reuse the cached result in O(1)
// instead of re-walking. It is the Go-native equivalent spec.md §9
// permits in place of assembly trampolines patching return addresses,
// which Go cannot do per call site without per-site generated code.
//
// Callers supply a correlation key (typically the interpreted
// shadow-stack depth, see internal/tracker) that changes whenever the
// native call stack is expected to have changed; this is necessarily
// an approximation, since nothing here observes native call/return
// events the way a patched trampoline would.
type Ghost struct {
	direct Unwinder

	mu     sync.Mutex
	stacks map[model.ThreadID]cached
	epoch  uint64
}

// NewGhost wraps direct as the fallback full-walk unwinder.
func NewGhost(direct Unwinder) *Ghost {
	return &Ghost{direct: direct, stacks: make(map[model.ThreadID]cached)}
}

// Reset invalidates every cached entry across all threads by bumping
// the epoch (spec.md §4.F step 3, "Signal safety": "trampoline
// handlers re-check the epoch before acting on a cached entry").
func (g *Ghost) Reset() {
	atomic.AddUint64(&g.epoch, 1)
}

// ResetThread discards threadID's cache entirely, the pure-Go
// equivalent of spec.md §4.F step 4 ("Fork safety": "the child-side
// handler resets the shadow stack before any patched frame returns")
// and step 6 (thread-exit teardown, "restores every patched return
// address" — here, simply drops the stale cache).
func (g *Ghost) ResetThread(threadID model.ThreadID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.stacks, threadID)
}

// Capture returns the native IP stack for threadID, reusing the cached
// result when key and the epoch both match the last capture on this
// thread (spec.md §4.F step 2, "Longjmp detection": any mismatch
// forces a fresh direct unwind instead of trusting a stale entry).
func (g *Ghost) Capture(threadID model.ThreadID, key int, skip int) []uintptr {
	epoch := atomic.LoadUint64(&g.epoch)

	g.mu.Lock()
	if c, ok := g.stacks[threadID]; ok && c.key == key && c.epoch == epoch {
		ips := c.ips
		g.mu.Unlock()
		return ips
	}
	g.mu.Unlock()

	ips := g.direct.Capture(skip + 1)

	g.mu.Lock()
	g.stacks[threadID] = cached{key: key, ips: ips, epoch: epoch}
	g.mu.Unlock()

	return ips
}
