// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reader

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bloomberg/memray-sub003/internal/codec"
	"github.com/bloomberg/memray-sub003/internal/model"
)

type bufSink struct{ buf bytes.Buffer }

func (s *bufSink) WriteBytes(b []byte) error {
	_, err := s.buf.Write(b)
	return err
}

func writeCapture(t *testing.T, nativeTraces bool, fn func(w *codec.Writer)) *Reader {
	t.Helper()
	s := &bufSink{}
	w := codec.NewWriter(s, false)
	require.NoError(t, w.WriteHeader(model.CaptureHeader{
		CommandLine:         []string{"prog"},
		Pid:                 42,
		AllocatorKind:       "malloc",
		NativeTracesEnabled: nativeTraces,
	}))
	fn(w)
	require.NoError(t, w.WriteTrailer(model.Stats{AllocationRecords: 1}))

	r, err := New(bytes.NewReader(s.buf.Bytes()))
	require.NoError(t, err)
	return r
}

func drain(t *testing.T, r *Reader) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestReaderHeaderRoundTrip(t *testing.T) {
	r := writeCapture(t, false, func(w *codec.Writer) {})
	h := r.Header()
	require.Equal(t, 42, h.Pid)
	require.Equal(t, "malloc", h.AllocatorKind)
}

func TestReaderAssignsStableStackIDsAcrossAllocations(t *testing.T) {
	r := writeCapture(t, false, func(w *codec.Writer) {
		require.NoError(t, w.WriteFramePush(1, model.InterpretedFrame{CodeObjectID: 10, Offset: 4}))
		require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{ThreadID: 1, Kind: model.Malloc, Address: 0x1000, Size: 8}, false))
		require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{ThreadID: 1, Kind: model.Malloc, Address: 0x2000, Size: 16}, false))
	})
	events := drain(t, r)
	require.Len(t, events, 2)
	require.Equal(t, events[0].StackID, events[1].StackID, "same frame shape must yield the same stack id")
	frames := r.PythonFrame(events[0].StackID)
	require.Len(t, frames, 1)
	require.Equal(t, model.CodeObjectID(10), frames[0].CodeObjectID)
}

func TestReaderStackIDChangesAfterPushAndPop(t *testing.T) {
	r := writeCapture(t, false, func(w *codec.Writer) {
		require.NoError(t, w.WriteFramePush(1, model.InterpretedFrame{CodeObjectID: 1, Offset: 0}))
		require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{ThreadID: 1, Kind: model.Malloc, Address: 1, Size: 1}, false))
		require.NoError(t, w.WriteFramePush(1, model.InterpretedFrame{CodeObjectID: 2, Offset: 0}))
		require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{ThreadID: 1, Kind: model.Malloc, Address: 2, Size: 1}, false))
		require.NoError(t, w.WriteFramePop(1, 1))
		require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{ThreadID: 1, Kind: model.Malloc, Address: 3, Size: 1}, false))
	})
	events := drain(t, r)
	require.Len(t, events, 3)
	require.Equal(t, events[0].StackID, events[2].StackID, "popping back to a previously seen shape reuses its id")
	require.NotEqual(t, events[0].StackID, events[1].StackID)
}

func TestReaderNativeFrameLookup(t *testing.T) {
	r := writeCapture(t, true, func(w *codec.Writer) {
		require.NoError(t, w.WriteNativeFrame(1, 5, model.NativeFrame{IP: 0xdead, SegmentGeneration: 3}))
		require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{ThreadID: 1, Kind: model.Malloc, Address: 1, Size: 1, NativeIndex: 5}, true))
	})
	events := drain(t, r)
	require.Len(t, events, 1)
	nf := r.NativeFrame(1, events[0].Allocation.NativeIndex)
	require.True(t, nf.Found)
	require.Equal(t, uint64(0xdead), nf.IP)
	require.Equal(t, model.SegmentGeneration(3), nf.SegmentGeneration)
}

func TestReaderCodeObjectAndThreadNameAndImageSegments(t *testing.T) {
	r := writeCapture(t, false, func(w *codec.Writer) {
		require.NoError(t, w.WriteCodeObject(model.CodeObject{ID: 7, Function: "foo", Filename: "foo.py"}))
		require.NoError(t, w.WriteThreadName(1, "worker-1"))
		require.NoError(t, w.WriteImageSegments(2, model.ImageSegment{Filename: "libc.so", Base: 0x1000}))
	})
	drain(t, r)

	co, ok := r.CodeObject(7)
	require.True(t, ok)
	require.Equal(t, "foo", co.Function)

	name, ok := r.ThreadName(1)
	require.True(t, ok)
	require.Equal(t, "worker-1", name)

	segs := r.ImageSegments(2)
	require.Len(t, segs, 1)
	require.Equal(t, "libc.so", segs[0].Filename)
}

func TestReaderMemoryRecord(t *testing.T) {
	r := writeCapture(t, false, func(w *codec.Writer) {
		require.NoError(t, w.WriteMemoryRecord(model.MemoryRecord{MsSinceEpoch: 123, RSSBytes: 4096}))
	})
	events := drain(t, r)
	require.Len(t, events, 1)
	require.Equal(t, KindMemory, events[0].Kind)
	require.Equal(t, uint64(4096), events[0].Memory.RSSBytes)
}

func TestReaderStatsSurfacesTrailer(t *testing.T) {
	r := writeCapture(t, false, func(w *codec.Writer) {})
	drain(t, r)
	stats, decodeErrors := r.Stats()
	require.Equal(t, uint64(1), stats.AllocationRecords)
	require.Equal(t, 0, decodeErrors)
}
