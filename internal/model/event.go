// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package model

// ThreadID identifies a native thread within the tracked process.
type ThreadID uint64

// StackID is a compact identifier for the ordered sequence of
// interpreted frames active on a thread at a point in time. Ids are
// assigned by the writer via push/pop differential encoding; the
// reader replays all pushes and pops preceding an id to reconstruct
// the full stack (spec.md §3).
type StackID uint64

// NativeFrameIndex is the per-thread monotone index assigned to a
// distinct (ip, segment) pair the first time it is seen (spec.md §3).
type NativeFrameIndex uint32

// SegmentGeneration invalidates the native-frame cache whenever a new
// image is loaded.
type SegmentGeneration uint32

// AllocationEvent is a single intercepted allocation. Deallocation
// events populate only ThreadID, Address and Kind; Size, StackID and
// NativeIndex are zero (spec.md §3).
type AllocationEvent struct {
	ThreadID          ThreadID
	Address           uint64
	Size              uint64
	Kind              AllocatorKind
	StackID           StackID
	NativeIndex       NativeFrameIndex
	SegmentGeneration SegmentGeneration
}

// IsDeallocation is a convenience wrapper over Kind.IsDeallocator.
func (e AllocationEvent) IsDeallocation() bool {
	return e.Kind.IsDeallocator()
}

// MemoryRecord is a periodic RSS sample (spec.md §3), used only for
// overview plots and never consulted during allocation accounting.
type MemoryRecord struct {
	MsSinceEpoch int64
	RSSBytes     uint64
}

// CaptureHeader is written once at install and rewritten on close with
// final stats (spec.md §3).
type CaptureHeader struct {
	StartTimeUnixMs    int64
	CommandLine         []string
	Pid                 int
	AllocatorKind       string // host interpreter allocator kind in use
	NativeTracesEnabled bool
	TracePoolAllocator  bool
	MainThreadID        ThreadID
	SkipFramesMainThread int
	AggregatedFormat    bool
	Stats               Stats
}

// Stats are the running counters surfaced in the header (rewritten at
// close) and in the trailer record.
type Stats struct {
	AllocationRecords   uint64
	DeallocationRecords uint64
	FramePushRecords    uint64
	FramePopRecords     uint64
	BytesTracked        uint64
	RecordsWritten      uint64
	BytesWritten         uint64
}
