// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package symbol resolves raw native instruction pointers to (symbol,
// file, line) triples at read time (spec.md §4.H). Resolution never
// happens on the capture hot path; it is driven entirely by the
// reader, on demand, and cached since it is deterministic and
// expensive for a given (image generation, ip) pair.
package symbol

import (
	"fmt"
	"runtime"
	"time"

	"github.com/ianlancetaylor/demangle"

	"github.com/bloomberg/memray-sub003/internal/model"
	"github.com/bloomberg/memray-sub003/pkg/lrucache"
)

// Frame is a resolved native frame (spec.md §4.H).
type Frame struct {
	Symbol string
	File   string
	Line   int
}

// Backend looks up the raw (symbol, file, line) for an ip within a
// given set of loaded images. Concrete backends consult whatever
// backtrace-information facility the host platform offers; Resolver
// itself only owns caching and demangling.
type Backend interface {
	Lookup(images []model.ImageSegment, ip uint64) (Frame, bool)
}

// runtimeBackend resolves ip against Go's own symbol table via
// runtime.FuncForPC, the in-process stand-in for a DWARF or Mach-O
// backtrace library when no cgo symbolizer is linked in (spec.md §4.H:
// "a backtrace-information library, DWARF-based on Unix-like systems,
// Mach-O on Darwin").
type runtimeBackend struct{}

// NewRuntimeBackend returns the default Backend.
func NewRuntimeBackend() Backend { return runtimeBackend{} }

func (runtimeBackend) Lookup(_ []model.ImageSegment, ip uint64) (Frame, bool) {
	fn := runtime.FuncForPC(uintptr(ip))
	if fn == nil {
		return Frame{}, false
	}
	file, line := fn.FileLine(uintptr(ip))
	return Frame{Symbol: fn.Name(), File: file, Line: line}, true
}

// cacheTTL is long rather than infinite: a resolution is valid for the
// life of the reading process (spec.md §4.H), but pkg/lrucache has no
// "never expires" sentinel, so this stands in for one.
const cacheTTL = 365 * 24 * time.Hour

// Resolver materializes human-readable frames from raw native
// instruction pointers on demand, cached per (segment generation, ip)
// since resolution is deterministic on one machine for one image
// (spec.md §4.H).
type Resolver struct {
	backend Backend
	cache   *lrucache.Cache
}

// NewResolver returns a resolver backed by backend, with an LRU cache
// bounded at maxBytes (size-estimated, see pkg/lrucache).
func NewResolver(backend Backend, maxBytes int) *Resolver {
	return &Resolver{backend: backend, cache: lrucache.New(maxBytes)}
}

// Resolve looks up ip within images (captured at generation gen),
// demangling any C++ mangled symbol name found. Results stay cached
// until the LRU evicts them to stay within maxBytes: a (generation, ip)
// pair resolves to the same frame for the lifetime of the reading
// process, since the originating image
// never changes underfoot (spec.md §4.H: "reports requiring symbolic
// information must be generated on the originating host").
func (r *Resolver) Resolve(images []model.ImageSegment, gen model.SegmentGeneration, ip uint64) (Frame, bool) {
	key := fmt.Sprintf("%d:%x", gen, ip)
	v := r.cache.Get(key, func() (interface{}, time.Duration, int) {
		f, ok := r.backend.Lookup(images, ip)
		if ok {
			f.Symbol = demangle.Filter(f.Symbol)
		}
		return resolved{frame: f, ok: ok}, cacheTTL, len(f.Symbol) + len(f.File) + 24
	})
	res := v.(resolved)
	return res.frame, res.ok
}

type resolved struct {
	frame Frame
	ok    bool
}
