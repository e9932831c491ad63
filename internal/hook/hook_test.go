// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hook

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bloomberg/memray-sub003/internal/model"
)

type fakeRecorder struct {
	installed int32
	mu        sync.Mutex
	events    []model.AllocationEvent
}

func (f *fakeRecorder) Installed() bool { return atomic.LoadInt32(&f.installed) != 0 }
func (f *fakeRecorder) setInstalled(v bool) {
	if v {
		atomic.StoreInt32(&f.installed, 1)
	} else {
		atomic.StoreInt32(&f.installed, 0)
	}
}
func (f *fakeRecorder) Record(ev model.AllocationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fakeStack struct{ id model.StackID }

func (f *fakeStack) CurrentStackID(model.ThreadID) model.StackID { return f.id }

func TestHookSkipsWhenNotInstalled(t *testing.T) {
	rec := &fakeRecorder{}
	tbl := NewTable(rec, &fakeStack{}, nil)
	tbl.Register(model.Malloc, func(size, ptr uintptr) uintptr { return 0x1000 })

	got := tbl.Wrapped(model.Malloc)(64, 0)
	require.Equal(t, uintptr(0x1000), got)
	require.Empty(t, rec.events)
}

func TestHookRecordsWhenInstalled(t *testing.T) {
	rec := &fakeRecorder{}
	rec.setInstalled(true)
	tbl := NewTable(rec, &fakeStack{id: 3}, nil)
	tbl.Register(model.Malloc, func(size, ptr uintptr) uintptr { return 0x2000 })

	got := tbl.Wrapped(model.Malloc)(128, 0)
	require.Equal(t, uintptr(0x2000), got)
	require.Len(t, rec.events, 1)
	require.Equal(t, uint64(128), rec.events[0].Size)
	require.Equal(t, uintptr(0x2000), uintptr(rec.events[0].Address))
	require.Equal(t, model.StackID(3), rec.events[0].StackID)
}

func TestHookReentrancyGuardSkipsNestedCall(t *testing.T) {
	rec := &fakeRecorder{}
	rec.setInstalled(true)
	tbl := NewTable(rec, &fakeStack{}, nil)

	var nested AllocatorFunc
	tbl.Register(model.Malloc, func(size, ptr uintptr) uintptr {
		// Simulate an allocator whose own implementation allocates,
		// re-entering the same hook on the same (test) thread.
		if nested != nil {
			nested(size, ptr)
		}
		return 0x3000
	})
	wrapped := tbl.Wrapped(model.Malloc)
	nested = tbl.Wrapped(model.Malloc)

	wrapped(32, 0)
	require.Len(t, rec.events, 1, "the reentrant inner call must be skipped by the guard")
}

func TestHookReentrancyGuardInvokesSkipCallback(t *testing.T) {
	rec := &fakeRecorder{}
	rec.setInstalled(true)
	var skips int32
	tbl := NewTable(rec, &fakeStack{}, func() { atomic.AddInt32(&skips, 1) })

	var nested AllocatorFunc
	tbl.Register(model.Malloc, func(size, ptr uintptr) uintptr {
		if nested != nil {
			nested(size, ptr)
		}
		return 0x5000
	})
	wrapped := tbl.Wrapped(model.Malloc)
	nested = tbl.Wrapped(model.Malloc)

	wrapped(16, 0)
	require.EqualValues(t, 1, atomic.LoadInt32(&skips))
}

func TestHookFreeRecordsAddressNotSize(t *testing.T) {
	rec := &fakeRecorder{}
	rec.setInstalled(true)
	tbl := NewTable(rec, &fakeStack{}, nil)
	tbl.Register(model.Free, func(size, ptr uintptr) uintptr { return 0 })

	tbl.Wrapped(model.Free)(0, 0x4000)
	require.Len(t, rec.events, 1)
	require.Equal(t, uintptr(0x4000), uintptr(rec.events[0].Address))
	require.Zero(t, rec.events[0].Size)
}
