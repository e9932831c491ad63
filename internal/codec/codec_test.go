// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bloomberg/memray-sub003/internal/model"
)

type bufSink struct{ buf bytes.Buffer }

func (b *bufSink) WriteBytes(p []byte) error { _, err := b.buf.Write(p); return err }

// TestRoundTrip exercises P8: encode-then-decode of a representative
// record sequence yields an identical sequence.
func TestRoundTrip(t *testing.T) {
	s := &bufSink{}
	w := NewWriter(s, false)

	header := model.CaptureHeader{
		StartTimeUnixMs:     1000,
		CommandLine:         []string{"prog", "--flag"},
		Pid:                 4242,
		AllocatorKind:       "MALLOC",
		NativeTracesEnabled: true,
		MainThreadID:        1,
	}
	require.NoError(t, w.WriteHeader(header))

	require.NoError(t, w.WriteCodeObject(model.CodeObject{
		ID:        1,
		Function:  "foo",
		Filename:  "foo.py",
		FirstLine: 10,
		Lines:     model.NewLineTable([]model.LineEntry{{Offset: 0, Line: 10}, {Offset: 4, Line: 11}}),
	}))
	require.NoError(t, w.WriteFramePush(1, model.InterpretedFrame{CodeObjectID: 1, Offset: 0, IsEntryFrame: true}))
	require.NoError(t, w.WriteNativeFrame(1, 0, model.NativeFrame{IP: 0x1000, SegmentGeneration: 1}))
	require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{
		ThreadID: 1, Address: 0x7000, Size: 1234, Kind: model.Valloc, NativeIndex: 0,
	}, true))
	require.NoError(t, w.WriteAllocation(1, model.AllocationEvent{
		ThreadID: 1, Address: 0x7000, Kind: model.Free,
	}, true))
	require.NoError(t, w.WriteFramePop(1, 1))
	require.NoError(t, w.WriteTrailer(model.Stats{AllocationRecords: 1, DeallocationRecords: 1}))

	d := NewDecoder(bytes.NewReader(s.buf.Bytes()))
	gotHeader, err := d.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, header.CommandLine, gotHeader.CommandLine)
	require.Equal(t, header.Pid, gotHeader.Pid)
	require.True(t, gotHeader.NativeTracesEnabled)

	var got []Record
	for {
		r, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, r)
	}
	require.Len(t, got, 7)

	co, ok := got[0].(CodeObjectRecord)
	require.True(t, ok)
	require.Equal(t, "foo", co.Object.Function)
	require.Equal(t, uint32(10), co.Object.Lines.LineAt(2))
	require.Equal(t, uint32(11), co.Object.Lines.LineAt(4))

	push, ok := got[1].(FramePushRecord)
	require.True(t, ok)
	require.True(t, push.Frame.IsEntryFrame)

	nf, ok := got[2].(NativeFrameRecord)
	require.True(t, ok)
	require.Equal(t, uint64(0x1000), nf.Frame.IP)

	alloc, ok := got[3].(AllocationRecord)
	require.True(t, ok)
	require.Equal(t, uint64(0x7000), alloc.Event.Address)
	require.Equal(t, uint64(1234), alloc.Event.Size)
	require.Equal(t, model.Valloc, alloc.Event.Kind)

	dealloc, ok := got[4].(AllocationRecord)
	require.True(t, ok)
	require.Equal(t, uint64(0x7000), dealloc.Event.Address)
	require.True(t, dealloc.Event.Kind.IsDeallocator())

	pop, ok := got[5].(FramePopRecord)
	require.True(t, ok)
	require.Equal(t, uint32(1), pop.Count)
}

func TestTruncatedStreamIsRecoverable(t *testing.T) {
	s := &bufSink{}
	w := NewWriter(s, false)
	require.NoError(t, w.WriteHeader(model.CaptureHeader{Pid: 1}))
	require.NoError(t, w.WriteFramePush(1, model.InterpretedFrame{CodeObjectID: 1}))

	full := s.buf.Bytes()
	truncated := full[:len(full)-1]

	d := NewDecoder(bytes.NewReader(truncated))
	_, err := d.ReadHeader()
	require.NoError(t, err)

	_, err = d.Next()
	require.ErrorIs(t, err, ErrTruncated)
}
