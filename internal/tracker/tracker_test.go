// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tracker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bloomberg/memray-sub003/internal/model"
)

type memSink struct {
	buf    bytes.Buffer
	closed bool
}

func (s *memSink) WriteBytes(p []byte) error { _, err := s.buf.Write(p); return err }
func (s *memSink) Close() error              { s.closed = true; return nil }

func TestInstallWritesHeaderAndBecomesCurrent(t *testing.T) {
	s := &memSink{}
	tr, err := Install(s, Options{Pid: 99, AllocatorKind: "MALLOC"})
	require.NoError(t, err)
	defer tr.Teardown()
	require.True(t, tr.Installed())
	require.Same(t, tr, Current())
	require.NotZero(t, s.buf.Len())
}

func TestInstallFailsWhenAlreadyInstalled(t *testing.T) {
	s := &memSink{}
	tr, err := Install(s, Options{Pid: 1})
	require.NoError(t, err)
	defer tr.Teardown()

	second, err := Install(&memSink{}, Options{Pid: 2})
	require.ErrorIs(t, err, ErrAlreadyInstalled)
	require.Nil(t, second)
	require.Same(t, tr, Current(), "the original tracker must still be installed")
}

func TestRecordAccumulatesStats(t *testing.T) {
	s := &memSink{}
	tr, err := Install(s, Options{Pid: 1})
	require.NoError(t, err)
	defer tr.Teardown()

	tr.Record(model.AllocationEvent{ThreadID: 1, Kind: model.Malloc, Address: 0x1000, Size: 64})
	tr.Record(model.AllocationEvent{ThreadID: 1, Kind: model.Free, Address: 0x1000})

	stats := tr.Stats()
	require.EqualValues(t, 1, stats.AllocationRecords)
	require.EqualValues(t, 1, stats.DeallocationRecords)
	require.EqualValues(t, 64, stats.BytesTracked)
}

func TestTeardownClosesSinkAndUninstalls(t *testing.T) {
	s := &memSink{}
	tr, err := Install(s, Options{Pid: 1})
	require.NoError(t, err)

	require.NoError(t, tr.Teardown())
	require.True(t, s.closed)
	require.False(t, tr.Installed())
	require.Nil(t, Current())
}

func TestDisableStopsRecordingWithoutClosingSink(t *testing.T) {
	s := &memSink{}
	tr, err := Install(s, Options{Pid: 1})
	require.NoError(t, err)
	defer tr.Teardown()

	tr.Disable()
	require.False(t, tr.Installed())
	tr.Enable()
	require.True(t, tr.Installed())
}

func TestPushFrameThenAllocationFlushesPendingPop(t *testing.T) {
	s := &memSink{}
	tr, err := Install(s, Options{Pid: 1})
	require.NoError(t, err)
	defer tr.Teardown()
	const tid = model.ThreadID(1)

	require.NoError(t, tr.PushFrame(tid, model.InterpretedFrame{CodeObjectID: 1}))
	require.NoError(t, tr.PushFrame(tid, model.InterpretedFrame{CodeObjectID: 2}))
	tr.PopFrame(tid)
	tr.PopFrame(tid)

	tr.Record(model.AllocationEvent{ThreadID: tid, Kind: model.Malloc, Address: 0x2000, Size: 8})

	stats := tr.Stats()
	require.EqualValues(t, 2, stats.FramePushRecords)
	// Both pops collapse into one run-length frame-pop record.
	require.EqualValues(t, 1, stats.FramePopRecords)
}

func TestWriteImageSegmentsInvalidatesNativeCache(t *testing.T) {
	s := &memSink{}
	tr, err := Install(s, Options{Pid: 1})
	require.NoError(t, err)
	defer tr.Teardown()

	before := tr.nativeCache.Generation()
	require.NoError(t, tr.WriteImageSegments(model.ImageSegment{Filename: "lib.so"}))
	require.Equal(t, before+1, tr.nativeCache.Generation())
}
