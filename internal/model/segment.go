// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package model

// AddressRange is one mapped (virtual address, size) range within an
// ImageSegment.
type AddressRange struct {
	VirtualAddress uint64
	Size           uint64
}

// ImageSegment describes one loaded image (executable or shared
// library), captured once at tracking start and again on every
// image-load event (spec.md §3).
type ImageSegment struct {
	Filename string
	Base     uint64
	Ranges   []AddressRange
}

// NativeFrame is a raw, unresolved native instruction pointer paired
// with the segment it was captured under.
type NativeFrame struct {
	IP                uint64
	SegmentGeneration SegmentGeneration
}
