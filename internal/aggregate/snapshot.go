// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import "github.com/bloomberg/memray-sub003/internal/model"

// AllocationRecord is one aggregated entry a SnapshotAggregator
// yields: every allocation live at the chosen index, grouped by
// LocationKey (spec.md §4.J).
type AllocationRecord struct {
	Key                   LocationKey
	TotalBytes            uint64
	Count                 uint64
	RepresentativeAddress uint64
}

// SnapshotAggregator replays an event stream up to a chosen index
// (typically the high-water-mark index, or the end of stream for
// "leaks") and groups every allocation still live at that point by
// (thread id, combined-stack-id, allocator kind) (spec.md §4.J).
type SnapshotAggregator struct {
	mergeThreads bool
	live         map[uint64]model.AllocationEvent
}

// NewSnapshotAggregator returns an aggregator; mergeThreads drops the
// thread id from the grouping key.
func NewSnapshotAggregator(mergeThreads bool) *SnapshotAggregator {
	return &SnapshotAggregator{mergeThreads: mergeThreads, live: make(map[uint64]model.AllocationEvent)}
}

// Feed processes the next allocation event in stream order. Call
// Snapshot() after feeding every event up to (and including) the
// chosen index.
func (s *SnapshotAggregator) Feed(ev model.AllocationEvent) {
	if ev.IsDeallocation() {
		delete(s.live, ev.Address)
		return
	}
	s.live[ev.Address] = ev
}

// Snapshot returns the aggregated records for every allocation live at
// the point Feed has been called up to.
func (s *SnapshotAggregator) Snapshot() []AllocationRecord {
	byKey := make(map[LocationKey]*AllocationRecord)
	order := make([]LocationKey, 0)
	for _, ev := range s.live {
		k := keyFor(ev, s.mergeThreads)
		rec, ok := byKey[k]
		if !ok {
			rec = &AllocationRecord{Key: k, RepresentativeAddress: ev.Address}
			byKey[k] = rec
			order = append(order, k)
		}
		rec.TotalBytes += ev.Size
		rec.Count++
	}
	out := make([]AllocationRecord, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}
