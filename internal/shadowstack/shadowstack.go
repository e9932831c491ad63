// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shadowstack maintains, per thread, the ordered sequence of
// interpreted frames currently active (spec.md §4.E). It is driven
// entirely by a profile callback the hook layer installs on the host
// interpreter; nothing here touches native stacks.
//
// The per-thread stack is grounded on the teacher's metricstore.Level
// tree: a node owning an ordered slice of children reached by
// push/descend, repurposed here as a strictly LIFO call stack instead
// of a metric namespace tree.
package shadowstack

import (
	"strconv"
	"strings"
	"sync"

	"github.com/bloomberg/memray-sub003/internal/model"
)

// ContextID names one greenlet/coroutine execution context. The zero
// value denotes a thread's default (non-greenlet) context.
type ContextID uint64

// ThreadProfileFunction is the callback signature the hook layer
// invokes on call/c_call/return events (spec.md §4.E, §9).
type ThreadProfileFunction func(threadID model.ThreadID, event ProfileEvent, frame model.InterpretedFrame)

// ProfileEvent enumerates the profile-callback event kinds.
type ProfileEvent uint8

const (
	EventCall ProfileEvent = iota
	EventCCall
	EventReturn
)

// frame is one activation together with the bookkeeping needed to
// assign and later replay push/pop records.
type frame struct {
	model.InterpretedFrame
}

// stack is one thread's (or one greenlet context's) LIFO frame
// sequence.
type stack struct {
	frames []frame
}

func (s *stack) push(f model.InterpretedFrame) {
	s.frames = append(s.frames, frame{InterpretedFrame: f})
}

// pop removes the top n frames, returning the actual number removed
// (never more than len(s.frames)).
func (s *stack) pop(n int) int {
	if n > len(s.frames) {
		n = len(s.frames)
	}
	s.frames = s.frames[:len(s.frames)-n]
	return n
}

func (s *stack) depth() int { return len(s.frames) }

// Manager owns every thread's shadow stack plus any suspended greenlet
// contexts swapped in via SwitchContext. It is safe for concurrent use
// across hook invocations from different threads; a given thread's own
// sequence of calls is never concurrent with itself (spec.md §5).
type Manager struct {
	mu sync.Mutex

	// active is the stack currently attributed to a thread: either
	// its own default context or whichever greenlet context was last
	// switched in.
	active map[model.ThreadID]*stack

	// suspended holds greenlet contexts not currently active on any
	// thread, keyed by ContextID.
	suspended map[ContextID]*stack

	// pendingPop accumulates consecutive pops not yet flushed as a
	// single run-length Frame-pop record (spec.md §4.C).
	pendingPop map[model.ThreadID]uint32

	// stackIDs assigns a stable id to each distinct frame-content shape
	// seen so far, the same content-keyed scheme internal/reader uses
	// to reconstruct ids from the wire push/pop stream, so a live
	// consumer (internal/aggregate, fed directly off the hook layer
	// rather than off the wire) keys locations the same way a reader
	// would.
	stackIDs    map[string]model.StackID
	nextStackID model.StackID
}

// NewManager returns an empty shadow-stack manager.
func NewManager() *Manager {
	return &Manager{
		active:     make(map[model.ThreadID]*stack),
		suspended:  make(map[ContextID]*stack),
		pendingPop: make(map[model.ThreadID]uint32),
		stackIDs:   make(map[string]model.StackID),
	}
}

func (m *Manager) stackFor(threadID model.ThreadID) *stack {
	s, ok := m.active[threadID]
	if !ok {
		s = &stack{}
		m.active[threadID] = s
	}
	return s
}

// PushResult tells the caller (the hook layer) what codec records, if
// any, must be flushed before the push record itself.
type PushResult struct {
	// FlushPop is the pending run-length pop that must be written
	// before the push, if non-zero.
	FlushPop uint32
}

// Push records a call/c_call event. The hook layer must translate the
// returned PushResult into a WriteFramePop call (if FlushPop > 0)
// followed by a WriteFramePush call.
func (m *Manager) Push(threadID model.ThreadID, f model.InterpretedFrame) PushResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := PushResult{FlushPop: m.pendingPop[threadID]}
	delete(m.pendingPop, threadID)

	m.stackFor(threadID).push(f)
	return res
}

// Pop records a return event. It does not itself flush a pop record;
// pops accumulate until the next Push or an explicit Flush so that
// several consecutive returns collapse into one run-length record
// (spec.md §4.E).
func (m *Manager) Pop(threadID model.ThreadID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stackFor(threadID)
	if s.depth() == 0 {
		return
	}
	s.pop(1)
	m.pendingPop[threadID]++
}

// Flush returns and clears the pending pop count for threadID. The
// hook layer calls this before emitting an allocation record so the
// stack the reader reconstructs is always caught up to the most
// recent return (spec.md §4.C, §4.E).
func (m *Manager) Flush(threadID model.ThreadID) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.pendingPop[threadID]
	delete(m.pendingPop, threadID)
	return n
}

// Depth reports the current stack depth for threadID. A popped frame
// no longer counts even while its pop is still pending (see Flush).
func (m *Manager) Depth(threadID model.ThreadID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stackFor(threadID).depth()
}

// CurrentStackID returns the id of the frame-content shape currently
// active on threadID (popped frames are already gone even while their
// pop is still pending, same as Depth), assigning a fresh one the first time this exact shape is
// observed. The zero id (never assigned) means an empty stack.
func (m *Manager) CurrentStackID(threadID model.ThreadID) model.StackID {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := m.stackFor(threadID).frames
	if len(frames) == 0 {
		return 0
	}

	key := stackKey(frames)
	id, ok := m.stackIDs[key]
	if !ok {
		m.nextStackID++
		id = m.nextStackID
		m.stackIDs[key] = id
	}
	return id
}

// stackKey mirrors internal/reader's content key for the same frame
// shape: the ordered (code object id, bytecode offset) pairs.
func stackKey(frames []frame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(strconv.FormatUint(uint64(f.CodeObjectID), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(f.Offset), 10))
		b.WriteByte(',')
	}
	return b.String()
}

// SwitchContext implements the greenlet/coroutine handoff (spec.md
// §4.D, §9): the stack currently active on threadID under from is
// suspended, and the stack previously suspended under to (or a fresh
// one) becomes active.
func (m *Manager) SwitchContext(threadID model.ThreadID, from, to ContextID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.stackFor(threadID)
	m.suspended[from] = cur

	next, ok := m.suspended[to]
	if !ok {
		next = &stack{}
	} else {
		delete(m.suspended, to)
	}
	m.active[threadID] = next
}

// Teardown implements the synthetic profile-off event (spec.md §4.E):
// the thread's stack and any pending pop count are forgotten, dropping
// every retained reference to interpreted frame objects.
func (m *Manager) Teardown(threadID model.ThreadID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, threadID)
	delete(m.pendingPop, threadID)
}
