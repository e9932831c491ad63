// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregate implements the four read-time aggregators of
// spec.md §4.J: a high-water-mark finder, a snapshot (leak/heap)
// aggregator, a temporary-allocation detector and a temporal interval
// builder. Each consumes the ordered event stream internal/reader
// produces; none of them re-decodes the wire format.
package aggregate

import "github.com/bloomberg/memray-sub003/internal/model"

// CombinedStackID pairs the interpreted-frame stack id with the
// native-frame index an allocation carried, together identifying one
// call-site across both the interpreted and native worlds (spec.md
// §4.J "combined-stack-id").
type CombinedStackID struct {
	Interpreted model.StackID
	Native      model.NativeFrameIndex
}

// LocationKey groups allocations for the snapshot and interval
// aggregators: (thread id, combined stack id, allocator kind), or the
// same without the thread id when merging across threads.
type LocationKey struct {
	ThreadID model.ThreadID
	Stack    CombinedStackID
	Kind     model.AllocatorKind
}

func keyFor(ev model.AllocationEvent, mergeThreads bool) LocationKey {
	k := LocationKey{
		ThreadID: ev.ThreadID,
		Stack:    CombinedStackID{Interpreted: ev.StackID, Native: ev.NativeIndex},
		Kind:     ev.Kind,
	}
	if mergeThreads {
		k.ThreadID = 0
	}
	return k
}
