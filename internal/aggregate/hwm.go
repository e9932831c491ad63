// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import "github.com/bloomberg/memray-sub003/internal/model"

// HighWaterMarkFinder tracks the running total of bytes currently
// allocated and the stream index at which that total was maximal.
// Ties go to the earliest occurrence (spec.md §4.J).
type HighWaterMarkFinder struct {
	live map[uint64]uint64 // address -> size, for allocations seen so far

	running   uint64
	peak      uint64
	peakIndex int
	index     int
}

// NewHighWaterMarkFinder returns an empty finder.
func NewHighWaterMarkFinder() *HighWaterMarkFinder {
	return &HighWaterMarkFinder{live: make(map[uint64]uint64)}
}

// Feed processes the next allocation event in stream order.
func (h *HighWaterMarkFinder) Feed(ev model.AllocationEvent) {
	defer func() { h.index++ }()

	if ev.IsDeallocation() {
		if sz, ok := h.live[ev.Address]; ok {
			h.running -= sz
			delete(h.live, ev.Address)
		}
		return
	}

	h.live[ev.Address] = ev.Size
	h.running += ev.Size
	if h.running > h.peak {
		h.peak = h.running
		h.peakIndex = h.index
	}
}

// PeakIndex returns the stream index of the high-water mark.
func (h *HighWaterMarkFinder) PeakIndex() int { return h.peakIndex }

// PeakBytes returns the running total at the high-water mark.
func (h *HighWaterMarkFinder) PeakBytes() uint64 { return h.peak }
