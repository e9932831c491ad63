// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hook wraps every entry point of the allocator ABI the
// tracker observes, enforcing the strictly-ordered six-step procedure
// of spec.md §4.D. It owns no C ABI: instead of interposing on libc
// symbols, callers register plain Go function values for the
// allocator operations they want observed (see HookTable), the idiom
// host-function wrapping takes in wazero-style Go runtimes.
package hook

import (
	"sync"

	"github.com/bloomberg/memray-sub003/internal/model"
)

// Recorder is the subset of the tracker core a hook needs: whether
// capture is currently enabled, and how to emit one allocation event
// once the reentrancy guard and stack/native-ip capture are done.
type Recorder interface {
	// Installed reports whether the tracker is currently accepting
	// records (step 2 of spec.md §4.D).
	Installed() bool
	// Record emits ev, already fully populated with stack and native
	// frame information (step 5).
	Record(ev model.AllocationEvent)
}

// guard is the per-thread reentrancy flag of spec.md §4.D step 3.
type guard struct {
	mu  sync.Mutex
	set map[model.ThreadID]bool
}

func newGuard() *guard { return &guard{set: make(map[model.ThreadID]bool)} }

// enter sets the guard for threadID, returning false if it was already
// set (meaning the caller must return without recording).
func (g *guard) enter(threadID model.ThreadID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set[threadID] {
		return false
	}
	g.set[threadID] = true
	return true
}

func (g *guard) leave(threadID model.ThreadID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.set, threadID)
}

// StackCapture supplies the per-thread interpreted stack id and,
// optionally, the native instruction-pointer stack for step 4.
type StackCapture interface {
	// CurrentStackID returns the shadow-stack id currently active on
	// threadID, or 0 if the thread has no frames.
	CurrentStackID(threadID model.ThreadID) model.StackID
}

// AllocatorFunc is the real allocator implementation a hook wraps:
// size is the requested size (0 for free-like operations), ptr is the
// address being freed/reallocated (0 for fresh allocations). It
// returns the resulting address (0 for free).
type AllocatorFunc func(size uintptr, ptr uintptr) uintptr

// Table holds one AllocatorFunc per AllocatorKind and wraps each with
// the six-step procedure of spec.md §4.D. Native instruction-pointer
// capture (§4.F) happens downstream in Recorder.Record, which owns the
// native-frame cache; Table's job ends at stack-id capture and guard
// enforcement.
type Table struct {
	mu    sync.RWMutex
	funcs map[model.AllocatorKind]AllocatorFunc

	guard   *guard
	rec     Recorder
	stack   StackCapture
	onReentrantSkip func()
}

// NewTable returns a Table that records through rec using stack for
// shadow-stack ids. onReentrantSkip, if non-nil, is called whenever
// step 3's guard rejects a reentrant call (spec.md §4.D step 3); pass
// nil to ignore.
func NewTable(rec Recorder, stack StackCapture, onReentrantSkip func()) *Table {
	return &Table{
		funcs:           make(map[model.AllocatorKind]AllocatorFunc),
		guard:           newGuard(),
		rec:             rec,
		stack:           stack,
		onReentrantSkip: onReentrantSkip,
	}
}

// Register installs the real implementation backing kind. Callers
// obtain the wrapped, instrumented version via Wrapped(kind).
func (t *Table) Register(kind model.AllocatorKind, fn AllocatorFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.funcs[kind] = fn
}

// Wrapped returns the instrumented AllocatorFunc for kind, or nil if
// nothing was registered.
func (t *Table) Wrapped(kind model.AllocatorKind) AllocatorFunc {
	t.mu.RLock()
	real, ok := t.funcs[kind]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return func(size, ptr uintptr) uintptr {
		return t.call(kind, real, size, ptr)
	}
}

// call implements spec.md §4.D's six strictly-ordered steps.
func (t *Table) call(kind model.AllocatorKind, real AllocatorFunc, size, ptr uintptr) uintptr {
	threadID := currentThreadID()

	// 1. Call through to the real implementation first.
	result := real(size, ptr)

	// 2. If the tracker is not installed, return.
	if !t.rec.Installed() {
		return result
	}

	// 3. Acquire the per-thread reentrancy guard.
	if !t.guard.enter(threadID) {
		if t.onReentrantSkip != nil {
			t.onReentrantSkip()
		}
		return result
	}
	defer t.guard.leave(threadID)

	// 4. Capture the interpreted-stack id; native IPs are captured
	// downstream by Recorder.Record, which owns the native-frame cache.
	// Deallocations carry no stack.
	ev := model.AllocationEvent{
		ThreadID: threadID,
		Kind:     kind,
	}
	if kind.IsDeallocator() {
		ev.Address = uint64(ptr)
	} else {
		ev.Address = uint64(result)
		ev.Size = uint64(size)
		ev.StackID = t.stack.CurrentStackID(threadID)
	}

	// 5. Emit.
	t.rec.Record(ev)

	// 6. guard released via defer.
	return result
}
