// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import "github.com/bloomberg/memray-sub003/internal/model"

// DefaultTemporaryBound is the default FIFO bound for
// TemporaryAllocationDetector (spec.md §4.J).
const DefaultTemporaryBound = 1

// TemporaryAllocationDetector flags an allocation as "temporary" when
// it is deallocated within a bounded number of intervening allocator
// events on the same thread. Implemented as a per-thread bounded FIFO
// keyed by address (spec.md §4.J).
type TemporaryAllocationDetector struct {
	bound int
	fifos map[model.ThreadID]*addressFIFO
}

// NewTemporaryAllocationDetector returns a detector with the given
// FIFO bound. A bound of 0 or less is treated as DefaultTemporaryBound.
func NewTemporaryAllocationDetector(bound int) *TemporaryAllocationDetector {
	if bound <= 0 {
		bound = DefaultTemporaryBound
	}
	return &TemporaryAllocationDetector{bound: bound, fifos: make(map[model.ThreadID]*addressFIFO)}
}

// Feed processes the next allocation event and reports whether it is
// the deallocation of a temporary allocation.
func (d *TemporaryAllocationDetector) Feed(ev model.AllocationEvent) (temporary bool) {
	f, ok := d.fifos[ev.ThreadID]
	if !ok {
		f = newAddressFIFO(d.bound)
		d.fifos[ev.ThreadID] = f
	}

	if ev.IsDeallocation() {
		return f.evict(ev.Address)
	}
	f.push(ev.Address)
	return false
}

// addressFIFO is a fixed-capacity ring of addresses; pushing past
// capacity drops the oldest entry, which then can no longer be
// reported as temporary (spec.md §4.J: "bounded number of intervening
// allocator events").
type addressFIFO struct {
	bound   int
	order   []uint64
	present map[uint64]int // address -> count currently queued
}

func newAddressFIFO(bound int) *addressFIFO {
	return &addressFIFO{bound: bound, present: make(map[uint64]int)}
}

func (f *addressFIFO) push(addr uint64) {
	f.order = append(f.order, addr)
	f.present[addr]++
	for len(f.order) > f.bound {
		oldest := f.order[0]
		f.order = f.order[1:]
		f.present[oldest]--
		if f.present[oldest] <= 0 {
			delete(f.present, oldest)
		}
	}
}

// evict reports whether addr is still queued and, if so, removes one
// occurrence of it.
func (f *addressFIFO) evict(addr uint64) bool {
	n, ok := f.present[addr]
	if !ok || n <= 0 {
		return false
	}
	for i, a := range f.order {
		if a == addr {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.present[addr]--
	if f.present[addr] <= 0 {
		delete(f.present, addr)
	}
	return true
}
