// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import "github.com/bloomberg/memray-sub003/internal/model"

// kind is the one-byte record tag on the wire (spec.md §4.C).
type kind byte

const (
	kindHeader kind = iota + 1
	kindThreadSwitch
	kindAllocation
	kindFramePush
	kindFramePop
	kindCodeObject
	kindNativeFrame
	kindImageSegments
	kindMemory
	kindThreadName
	kindTrailer
	kindCounters
)

// Record is the tagged union the codec decodes into; callers
// discriminate with a type switch, matching the idiom
// aclements-go-perf/perffile/records.go uses for "perf.data" records.
type Record interface{ isRecord() }

// AllocationRecord carries one allocation or deallocation event
// exactly as defined in spec.md §3/§4.C.
type AllocationRecord struct {
	ThreadID model.ThreadID
	Event    model.AllocationEvent
}

func (AllocationRecord) isRecord() {}

// FramePushRecord pushes one interpreted frame (spec.md §4.C).
type FramePushRecord struct {
	ThreadID model.ThreadID
	Frame    model.InterpretedFrame
}

func (FramePushRecord) isRecord() {}

// FramePopRecord pops Count consecutive frames (spec.md §4.C,
// run-length encoded).
type FramePopRecord struct {
	ThreadID model.ThreadID
	Count    uint32
}

func (FramePopRecord) isRecord() {}

// CodeObjectRecord emits a CodeObject exactly once per capture
// (spec.md §3 invariant).
type CodeObjectRecord struct {
	Object model.CodeObject
}

func (CodeObjectRecord) isRecord() {}

// NativeFrameRecord emits an unresolved (ip, segment) pair the first
// time the native unwinder's cache sees it (spec.md §4.C).
type NativeFrameRecord struct {
	ThreadID model.ThreadID
	Index    model.NativeFrameIndex
	Frame    model.NativeFrame
}

func (NativeFrameRecord) isRecord() {}

// ImageSegmentsRecord records one loaded image and the segment
// generation it was recorded under (spec.md §3).
type ImageSegmentsRecord struct {
	Generation model.SegmentGeneration
	Segment    model.ImageSegment
}

func (ImageSegmentsRecord) isRecord() {}

// MemoryRecordEvent carries one RSS sample (spec.md §3).
type MemoryRecordEvent struct {
	Record model.MemoryRecord
}

func (MemoryRecordEvent) isRecord() {}

// ThreadNameRecord names a thread for display purposes.
type ThreadNameRecord struct {
	ThreadID model.ThreadID
	Name     string
}

func (ThreadNameRecord) isRecord() {}

// TrailerRecord carries final stats and terminates the live protocol
// (spec.md §4.C, §6).
type TrailerRecord struct {
	Stats model.Stats
}

func (TrailerRecord) isRecord() {}

// CounterKey identifies one (code-object-id-chain, native-frame-chain)
// location for the aggregated format (spec.md §4.C).
type CounterKey struct {
	CodeObjectChain  string
	NativeFrameChain string
}

// CounterRecord is the aggregated-format per-location summary: only
// this record type survives in that format variant.
type CounterRecord struct {
	Key              CounterKey
	AllocationsAtHWM uint64
	BytesAtHWM       uint64
	LeakedAllocations uint64
	LeakedBytes       uint64
}

func (CounterRecord) isRecord() {}

// HeaderRecord wraps model.CaptureHeader for wire purposes.
type HeaderRecord struct {
	Header model.CaptureHeader
}

func (HeaderRecord) isRecord() {}
