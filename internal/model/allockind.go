// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package model holds the wire-independent data types shared by the
// hook, codec, reader and aggregate packages: allocator kinds, code
// objects, frames, image segments and the capture header.
package model

// AllocatorKind is the closed enumeration of allocator entry points
// the hook layer can intercept (spec.md §3).
type AllocatorKind uint8

const (
	Malloc AllocatorKind = iota
	Calloc
	Realloc
	Free

	PosixMemalign
	AlignedAlloc
	Memalign
	Valloc
	Pvalloc

	Mmap
	Munmap

	PymallocMalloc
	PymallocCalloc
	PymallocRealloc
	PymallocFree
)

// deallocBit marks every kind that frees memory rather than
// allocating it; IsDeallocator is a single-bit test per spec.md §3.
var deallocBit = map[AllocatorKind]bool{
	Free:           true,
	Munmap:         true,
	PymallocFree:   true,
}

// IsDeallocator reports whether k identifies a deallocation entry
// point. Deallocation events never carry a captured stack (spec.md §3).
func (k AllocatorKind) IsDeallocator() bool {
	return deallocBit[k]
}

// IsPool reports whether k is one of the host interpreter's internal
// pooled-allocator operations rather than a generic heap call.
func (k AllocatorKind) IsPool() bool {
	switch k {
	case PymallocMalloc, PymallocCalloc, PymallocRealloc, PymallocFree:
		return true
	default:
		return false
	}
}

func (k AllocatorKind) String() string {
	switch k {
	case Malloc:
		return "MALLOC"
	case Calloc:
		return "CALLOC"
	case Realloc:
		return "REALLOC"
	case Free:
		return "FREE"
	case PosixMemalign:
		return "POSIX_MEMALIGN"
	case AlignedAlloc:
		return "ALIGNED_ALLOC"
	case Memalign:
		return "MEMALIGN"
	case Valloc:
		return "VALLOC"
	case Pvalloc:
		return "PVALLOC"
	case Mmap:
		return "MMAP"
	case Munmap:
		return "MUNMAP"
	case PymallocMalloc:
		return "PYMALLOC_MALLOC"
	case PymallocCalloc:
		return "PYMALLOC_CALLOC"
	case PymallocRealloc:
		return "PYMALLOC_REALLOC"
	case PymallocFree:
		return "PYMALLOC_FREE"
	default:
		return "UNKNOWN"
	}
}
