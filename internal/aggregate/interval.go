// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import "github.com/bloomberg/memray-sub003/internal/model"

// BucketDurationMs is the fixed snapshot duration spec.md §4.J names
// for the temporal interval builder: 10 ms.
const BucketDurationMs = 10

// NoDeallocationBucket marks an interval whose allocation is still
// live when the stream ends.
const NoDeallocationBucket = -1

// IntervalKey identifies one (location, allocated-bucket,
// deallocated-bucket) group the interval builder accumulates into.
type IntervalKey struct {
	Location          LocationKey
	AllocatedBucket   int
	DeallocatedBucket int // NoDeallocationBucket if never freed
}

// Interval is one accumulated entry: every allocation sharing the same
// IntervalKey, summed (spec.md §4.J).
type Interval struct {
	Key   IntervalKey
	Bytes uint64
	Count uint64
}

type pendingAlloc struct {
	key    LocationKey
	bucket int
	size   uint64
}

// TemporalIntervalBuilder buckets the capture into fixed 10ms
// snapshots and, for every allocation location, accumulates intervals
// of (allocated-before-snapshot, deallocated-before-snapshot-or-none,
// bytes, count) (spec.md §4.J).
//
// Allocation records carry no independent wall-clock timestamp on the
// wire (spec.md §4.C); this builder derives one by watching the
// periodic memory-record samples that do (spec.md §4.G) and assigning
// every allocation event the bucket of the most recently seen sample,
// falling back to the capture start time before the first sample.
type TemporalIntervalBuilder struct {
	mergeThreads bool
	startMs      int64
	currentMs    int64
	pending      map[uint64]pendingAlloc
	totals       map[IntervalKey]*Interval
	order        []IntervalKey
}

// NewTemporalIntervalBuilder returns a builder anchored at the
// capture's start time.
func NewTemporalIntervalBuilder(startMs int64, mergeThreads bool) *TemporalIntervalBuilder {
	return &TemporalIntervalBuilder{
		mergeThreads: mergeThreads,
		startMs:      startMs,
		currentMs:    startMs,
		pending:      make(map[uint64]pendingAlloc),
		totals:       make(map[IntervalKey]*Interval),
	}
}

// FeedMemory advances the builder's notion of wall-clock time.
func (b *TemporalIntervalBuilder) FeedMemory(r model.MemoryRecord) {
	b.currentMs = r.MsSinceEpoch
}

// FeedAllocation processes the next allocation event in stream order.
func (b *TemporalIntervalBuilder) FeedAllocation(ev model.AllocationEvent) {
	bucket := b.bucket()

	if ev.IsDeallocation() {
		p, ok := b.pending[ev.Address]
		if !ok {
			return
		}
		delete(b.pending, ev.Address)
		b.accumulate(IntervalKey{Location: p.key, AllocatedBucket: p.bucket, DeallocatedBucket: bucket}, p.size)
		return
	}

	b.pending[ev.Address] = pendingAlloc{key: keyFor(ev, b.mergeThreads), bucket: bucket, size: ev.Size}
}

func (b *TemporalIntervalBuilder) bucket() int {
	elapsed := b.currentMs - b.startMs
	if elapsed < 0 {
		elapsed = 0
	}
	return int(elapsed / BucketDurationMs)
}

func (b *TemporalIntervalBuilder) accumulate(k IntervalKey, size uint64) {
	iv, ok := b.totals[k]
	if !ok {
		iv = &Interval{Key: k}
		b.totals[k] = iv
		b.order = append(b.order, k)
	}
	iv.Bytes += size
	iv.Count++
}

// Finish flushes every allocation still pending (never deallocated) as
// a NoDeallocationBucket interval and returns the accumulated result.
// Callers must not feed further events after calling Finish.
func (b *TemporalIntervalBuilder) Finish() []Interval {
	for addr, p := range b.pending {
		b.accumulate(IntervalKey{Location: p.key, AllocatedBucket: p.bucket, DeallocatedBucket: NoDeallocationBucket}, p.size)
		delete(b.pending, addr)
	}
	out := make([]Interval, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, *b.totals[k])
	}
	return out
}
