// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the bit-exact capture record encoding of
// spec.md §4.C: a LEB128/fixed-width mix, per-thread address-delta
// encoding for allocations, run-length pop encoding, and elision of
// the thread-id prefix when it repeats.
package codec

import (
	"bufio"
	"io"

	"github.com/bloomberg/memray-sub003/internal/model"
	"github.com/bloomberg/memray-sub003/internal/sink"
)

// Magic and version identify the capture file format (spec.md §6).
const (
	Magic        = "MRAYCAP1"
	FormatVersion = 1
)

// Writer encodes records onto a sink.Sink. It is not safe for
// concurrent use; the tracker core serializes all writes through a
// single mutex (spec.md §5).
type Writer struct {
	s Sink

	lastThreadID    model.ThreadID
	haveLastThread  bool
	lastAddr        map[model.ThreadID]uint64
	aggregated      bool
}

// Sink is the subset of sink.Sink the codec needs; satisfied by
// *sink.File, *sink.Socket and *sink.Null.
type Sink interface {
	WriteBytes([]byte) error
}

var _ Sink = sink.Sink(nil)

// NewWriter wraps s. aggregated selects the aggregated wire variant
// (spec.md §4.C): when true, WriteAllocation, WriteFramePush and
// WriteFramePop are no-ops; every other Write* method still writes
// its record.
func NewWriter(s Sink, aggregated bool) *Writer {
	return &Writer{s: s, lastAddr: make(map[model.ThreadID]uint64), aggregated: aggregated}
}

func (w *Writer) put(buf []byte) error {
	return w.s.WriteBytes(buf)
}

// WriteHeader writes the magic, version and capture header tuple.
// Called once at install and again (via Seeker) at teardown to
// rewrite final stats (spec.md §3 Lifecycles).
func (w *Writer) WriteHeader(h model.CaptureHeader) error {
	buf := make([]byte, 0, 128)
	buf = append(buf, Magic...)
	buf = append(buf, byte(FormatVersion))
	buf = append(buf, byte(kindHeader))
	buf = putVarint(buf, h.StartTimeUnixMs)
	buf = putUvarint(buf, uint64(len(h.CommandLine)))
	for _, arg := range h.CommandLine {
		buf = putUvarint(buf, uint64(len(arg)))
		buf = append(buf, arg...)
	}
	buf = putUvarint(buf, uint64(h.Pid))
	buf = putUvarint(buf, uint64(len(h.AllocatorKind)))
	buf = append(buf, h.AllocatorKind...)
	buf = append(buf, boolByte(h.NativeTracesEnabled), boolByte(h.TracePoolAllocator))
	buf = putUvarint(buf, uint64(h.MainThreadID))
	buf = putUvarint(buf, uint64(h.SkipFramesMainThread))
	buf = append(buf, boolByte(h.AggregatedFormat))
	buf = appendStats(buf, h.Stats)
	return w.put(buf)
}

func appendStats(buf []byte, s model.Stats) []byte {
	buf = putUvarint(buf, s.AllocationRecords)
	buf = putUvarint(buf, s.DeallocationRecords)
	buf = putUvarint(buf, s.FramePushRecords)
	buf = putUvarint(buf, s.FramePopRecords)
	buf = putUvarint(buf, s.BytesTracked)
	buf = putUvarint(buf, s.RecordsWritten)
	buf = putUvarint(buf, s.BytesWritten)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ensureThread emits a ThreadSwitch record iff threadID differs from
// the previously emitted thread id (spec.md §4.C space saving).
func (w *Writer) ensureThread(threadID model.ThreadID) error {
	if w.haveLastThread && w.lastThreadID == threadID {
		return nil
	}
	w.haveLastThread = true
	w.lastThreadID = threadID
	buf := []byte{byte(kindThreadSwitch)}
	buf = putUvarint(buf, uint64(threadID))
	return w.put(buf)
}

// WriteAllocation encodes one allocation/deallocation event. The
// shadow-stack id is never placed on the wire (spec.md §4.E): the
// reader reconstructs it by replaying frame push/pop records.
func (w *Writer) WriteAllocation(threadID model.ThreadID, ev model.AllocationEvent, nativeTraces bool) error {
	if w.aggregated {
		return nil
	}
	if err := w.ensureThread(threadID); err != nil {
		return err
	}
	buf := []byte{byte(kindAllocation), byte(ev.Kind)}

	prev := w.lastAddr[threadID]
	buf = putVarint(buf, int64(ev.Address)-int64(prev))
	w.lastAddr[threadID] = ev.Address

	if !ev.Kind.IsDeallocator() {
		buf = putUvarint(buf, ev.Size)
		if nativeTraces {
			buf = putUvarint(buf, uint64(ev.NativeIndex))
		}
	}
	return w.put(buf)
}

// WriteFramePush encodes one interpreted-frame push (spec.md §4.C/§4.E).
func (w *Writer) WriteFramePush(threadID model.ThreadID, f model.InterpretedFrame) error {
	if w.aggregated {
		return nil
	}
	if err := w.ensureThread(threadID); err != nil {
		return err
	}
	buf := []byte{byte(kindFramePush)}
	buf = putUvarint(buf, uint64(f.CodeObjectID))
	buf = putUvarint(buf, uint64(f.Offset))
	buf = append(buf, boolByte(f.IsEntryFrame))
	return w.put(buf)
}

// WriteFramePop encodes a run of count consecutive pops.
func (w *Writer) WriteFramePop(threadID model.ThreadID, count uint32) error {
	if w.aggregated || count == 0 {
		return nil
	}
	if err := w.ensureThread(threadID); err != nil {
		return err
	}
	buf := []byte{byte(kindFramePop)}
	buf = putUvarint(buf, uint64(count))
	return w.put(buf)
}

// WriteCodeObject emits a code object exactly once (spec.md §3
// invariant is enforced by the caller, typically the shadow stack).
func (w *Writer) WriteCodeObject(o model.CodeObject) error {
	buf := []byte{byte(kindCodeObject)}
	buf = putUvarint(buf, uint64(o.ID))
	buf = putUvarint(buf, uint64(len(o.Function)))
	buf = append(buf, o.Function...)
	buf = putUvarint(buf, uint64(len(o.Filename)))
	buf = append(buf, o.Filename...)
	buf = putUvarint(buf, uint64(o.FirstLine))
	entries := o.Lines.Entries()
	buf = putUvarint(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = putUvarint(buf, uint64(e.Offset))
		buf = putUvarint(buf, uint64(e.Line))
	}
	return w.put(buf)
}

// WriteNativeFrame emits an unresolved (ip, segment) pair the first
// time the per-thread cache sees it (spec.md §4.C/§4.F).
func (w *Writer) WriteNativeFrame(threadID model.ThreadID, idx model.NativeFrameIndex, f model.NativeFrame) error {
	if err := w.ensureThread(threadID); err != nil {
		return err
	}
	buf := []byte{byte(kindNativeFrame)}
	buf = putUvarint(buf, uint64(idx))
	buf = putUvarint(buf, f.IP)
	buf = putUvarint(buf, uint64(f.SegmentGeneration))
	return w.put(buf)
}

// WriteImageSegments records one loaded image (spec.md §3).
func (w *Writer) WriteImageSegments(gen model.SegmentGeneration, seg model.ImageSegment) error {
	buf := []byte{byte(kindImageSegments)}
	buf = putUvarint(buf, uint64(gen))
	buf = putUvarint(buf, uint64(len(seg.Filename)))
	buf = append(buf, seg.Filename...)
	buf = putUvarint(buf, seg.Base)
	buf = putUvarint(buf, uint64(len(seg.Ranges)))
	for _, rg := range seg.Ranges {
		buf = putUvarint(buf, rg.VirtualAddress)
		buf = putUvarint(buf, rg.Size)
	}
	return w.put(buf)
}

// WriteMemoryRecord encodes an RSS sample (spec.md §3/§4.G).
func (w *Writer) WriteMemoryRecord(r model.MemoryRecord) error {
	buf := []byte{byte(kindMemory)}
	buf = putVarint(buf, r.MsSinceEpoch)
	buf = putUvarint(buf, r.RSSBytes)
	return w.put(buf)
}

// WriteThreadName names a thread for display purposes.
func (w *Writer) WriteThreadName(threadID model.ThreadID, name string) error {
	if err := w.ensureThread(threadID); err != nil {
		return err
	}
	buf := []byte{byte(kindThreadName)}
	buf = putUvarint(buf, uint64(len(name)))
	buf = append(buf, name...)
	return w.put(buf)
}

// WriteTrailer writes final stats and, for the live protocol,
// terminates the stream (spec.md §4.C, §6).
func (w *Writer) WriteTrailer(s model.Stats) error {
	buf := []byte{byte(kindTrailer)}
	buf = appendStats(buf, s)
	return w.put(buf)
}

// WriteCounter emits one per-location counters record; only used in
// the aggregated format (spec.md §4.C).
func (w *Writer) WriteCounter(c CounterRecord) error {
	buf := []byte{byte(kindCounters)}
	buf = putUvarint(buf, uint64(len(c.Key.CodeObjectChain)))
	buf = append(buf, c.Key.CodeObjectChain...)
	buf = putUvarint(buf, uint64(len(c.Key.NativeFrameChain)))
	buf = append(buf, c.Key.NativeFrameChain...)
	buf = putUvarint(buf, c.AllocationsAtHWM)
	buf = putUvarint(buf, c.BytesAtHWM)
	buf = putUvarint(buf, c.LeakedAllocations)
	buf = putUvarint(buf, c.LeakedBytes)
	return w.put(buf)
}

// NewBufferedReader wraps an io.Reader source with the buffering the
// record Reader needs for ReadByte-based varint decoding.
func NewBufferedReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 64*1024)
}
