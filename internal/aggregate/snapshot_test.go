// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bloomberg/memray-sub003/internal/model"
)

func TestSnapshotAggregatorGroupsLiveAllocationsByLocation(t *testing.T) {
	s := NewSnapshotAggregator(false)

	s.Feed(model.AllocationEvent{ThreadID: 1, StackID: 7, Kind: model.Malloc, Address: 1, Size: 10})
	s.Feed(model.AllocationEvent{ThreadID: 1, StackID: 7, Kind: model.Malloc, Address: 2, Size: 20})
	s.Feed(model.AllocationEvent{ThreadID: 2, StackID: 7, Kind: model.Malloc, Address: 3, Size: 5})
	s.Feed(model.AllocationEvent{ThreadID: 1, Kind: model.Free, Address: 2})

	recs := s.Snapshot()
	require.Len(t, recs, 2)

	var thread1, thread2 *AllocationRecord
	for i := range recs {
		switch recs[i].Key.ThreadID {
		case 1:
			thread1 = &recs[i]
		case 2:
			thread2 = &recs[i]
		}
	}
	require.NotNil(t, thread1)
	require.NotNil(t, thread2)
	require.Equal(t, uint64(10), thread1.TotalBytes)
	require.Equal(t, uint64(1), thread1.Count)
	require.Equal(t, uint64(5), thread2.TotalBytes)
}

func TestSnapshotAggregatorMergeThreadsDropsThreadIDFromKey(t *testing.T) {
	s := NewSnapshotAggregator(true)

	s.Feed(model.AllocationEvent{ThreadID: 1, StackID: 9, Kind: model.Malloc, Address: 1, Size: 10})
	s.Feed(model.AllocationEvent{ThreadID: 2, StackID: 9, Kind: model.Malloc, Address: 2, Size: 20})

	recs := s.Snapshot()
	require.Len(t, recs, 1)
	require.Equal(t, model.ThreadID(0), recs[0].Key.ThreadID)
	require.Equal(t, uint64(30), recs[0].TotalBytes)
	require.Equal(t, uint64(2), recs[0].Count)
}
