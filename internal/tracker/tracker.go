// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tracker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bloomberg/memray-sub003/internal/codec"
	"github.com/bloomberg/memray-sub003/internal/model"
	"github.com/bloomberg/memray-sub003/internal/shadowstack"
	"github.com/bloomberg/memray-sub003/internal/unwind"
	"github.com/bloomberg/memray-sub003/pkg/log"
)

// ErrAlreadyInstalled is returned by Install when a tracker is already
// installed in this process. Installing a second tracker is fatal to
// the caller (spec.md §3, §9): it never silently replaces the running
// one.
var ErrAlreadyInstalled = errors.New("tracker: already installed")

// installed is the process-wide tracker-installed atomic pointer
// spec.md §5 requires: "tracker-installed atomic pointer" is the one
// piece of global state every hook invocation consults lock-free
// before doing any work.
var installed atomic.Pointer[Tracker]

// Current returns the currently installed tracker, or nil if none is
// installed. Hooks use this to implement spec.md §4.D step 2.
func Current() *Tracker { return installed.Load() }

// Options configures a tracker at Install time (spec.md §3, §9: native
// traces, pool-allocator tracing, and the aggregated wire format are
// all install-time choices).
type Options struct {
	CommandLine          []string
	Pid                  int
	AllocatorKind        string
	NativeTraces         bool
	TracePoolAllocator   bool
	MainThreadID         model.ThreadID
	SkipFramesMainThread int
	AggregatedFormat     bool
	UseGhostStack        bool
	MemorySampleInterval time.Duration
}

// Tracker is the installed capture session: one writer, one shadow
// stack manager, one native-frame cache, and the running stats every
// hook call updates (spec.md §4.G).
type Tracker struct {
	state atomic.Int32

	mu     sync.Mutex // serializes all writer output (spec.md §5)
	writer *codec.Writer
	sink   codecSink
	sinkSeeker seeker

	shadow     *shadowstack.Manager
	nativeCache *unwind.Cache
	directUnwind unwind.Unwinder
	ghost       *unwind.Ghost
	useGhost    bool
	nativeOn    bool

	opts Options

	stats       model.Stats

	sampler *rssSampler
}

// seeker is the subset of sink.Seeker the tracker needs to rewrite the
// header on close.
type seeker interface {
	SeekToStart() error
}

type codecSink interface {
	WriteBytes([]byte) error
	Close() error
}

// Install brings up a new tracker bound to s and makes it the
// process-wide installed tracker (spec.md §3 Lifecycles: "Capture
// header is written at tracker installation"). Only one tracker may be
// installed at a time; installing while another is already installed
// fails with ErrAlreadyInstalled rather than replacing it (spec.md §3,
// §9: "already-installed" is fatal to the caller of install).
func Install(s codecSink, opts Options) (*Tracker, error) {
	if old := installed.Load(); old != nil {
		return nil, ErrAlreadyInstalled
	}

	w := codec.NewWriter(s, opts.AggregatedFormat)
	t := &Tracker{
		writer:       w,
		sink:         s,
		shadow:       shadowstack.NewManager(),
		nativeCache:  unwind.NewCache(),
		directUnwind: unwind.NewDirect(64),
		opts:         opts,
		nativeOn:     opts.NativeTraces,
		useGhost:     opts.UseGhostStack,
	}
	if seek, ok := s.(seeker); ok {
		t.sinkSeeker = seek
	}
	if opts.UseGhostStack {
		t.ghost = unwind.NewGhost(t.directUnwind)
	}

	header := model.CaptureHeader{
		StartTimeUnixMs:      time.Now().UnixMilli(),
		CommandLine:          opts.CommandLine,
		Pid:                  opts.Pid,
		AllocatorKind:        opts.AllocatorKind,
		NativeTracesEnabled:  opts.NativeTraces,
		TracePoolAllocator:   opts.TracePoolAllocator,
		MainThreadID:         opts.MainThreadID,
		SkipFramesMainThread: opts.SkipFramesMainThread,
		AggregatedFormat:     opts.AggregatedFormat,
	}
	if err := w.WriteHeader(header); err != nil {
		return nil, err
	}

	t.state.Store(int32(Installed))
	installed.Store(t)

	if opts.MemorySampleInterval > 0 {
		t.sampler = newRSSSampler(t, opts.Pid, opts.MemorySampleInterval)
		if err := t.sampler.start(); err != nil {
			log.Warnf("tracker: could not start RSS sampler: %s", err.Error())
		}
	}

	metricsTrackersInstalled.Inc()
	return t, nil
}

// Installed reports whether the tracker is currently accepting
// records; implements hook.Recorder (spec.md §4.D step 2).
func (t *Tracker) Installed() bool {
	return State(t.state.Load()) == Installed
}

// Disable pauses recording without tearing down the writer. Record
// calls it when a write to the sink fails.
func (t *Tracker) Disable() { t.state.Store(int32(Disabled)) }

// Enable resumes recording after Disable.
func (t *Tracker) Enable() { t.state.Store(int32(Installed)) }

// ShadowStack exposes the manager so internal/hook's ProfileInstaller
// and StackCapture adapters can be wired at construction time.
func (t *Tracker) ShadowStack() *shadowstack.Manager { return t.shadow }

// Record implements hook.Recorder: it flushes any pending frame-pop
// run, captures native frames if enabled, and writes the allocation
// record (spec.md §4.D step 5).
func (t *Tracker) Record(ev model.AllocationEvent) {
	threadID := ev.ThreadID

	t.mu.Lock()
	defer t.mu.Unlock()

	if pop := t.shadow.Flush(threadID); pop > 0 {
		if err := t.writer.WriteFramePop(threadID, pop); err != nil {
			log.Errorf("tracker: write frame pop: %s", err.Error())
			t.Disable()
			return
		}
		t.stats.FramePopRecords++
	}

	if t.nativeOn && !ev.Kind.IsDeallocator() {
		idx, err := t.recordNativeFrames(threadID)
		if err != nil {
			log.Errorf("tracker: capture native frames: %s", err.Error())
			t.Disable()
			return
		}
		ev.NativeIndex = idx
	}

	if err := t.writer.WriteAllocation(threadID, ev, t.nativeOn); err != nil {
		log.Errorf("tracker: write allocation: %s", err.Error())
		t.Disable()
		return
	}

	if ev.Kind.IsDeallocator() {
		t.stats.DeallocationRecords++
		metricsDeallocations.Inc()
	} else {
		t.stats.AllocationRecords++
		t.stats.BytesTracked += ev.Size
		metricsAllocations.Inc()
		metricsBytesTracked.Add(float64(ev.Size))
	}
	t.stats.RecordsWritten++
}

// recordNativeFrames walks and caches the native stack for threadID,
// emitting an unresolved-native-frame record for every ip not already
// in the cache (spec.md §4.C, §4.F), and returns the cache index of
// the innermost (leaf) frame, the representative native frame an
// allocation record references (spec.md §4.I: `native_frame(index,
// segment_generation)` resolves a single frame on demand).
func (t *Tracker) recordNativeFrames(threadID model.ThreadID) (model.NativeFrameIndex, error) {
	var ips []uintptr
	if t.useGhost && t.ghost != nil {
		// The interpreted shadow-stack depth is a cheap, already-tracked
		// proxy for "has the native call stack changed since the last
		// capture on this thread" (spec.md §4.F's cache-validity check,
		// without return-address patching to detect it directly).
		ips = t.ghost.Capture(threadID, t.shadow.Depth(threadID), 2)
	} else {
		ips = t.directUnwind.Capture(2)
	}
	var leaf model.NativeFrameIndex
	for i, ip := range ips {
		entry := t.nativeCache.Resolve(threadID, uint64(ip))
		if i == 0 {
			leaf = entry.Index
		}
		if !entry.New {
			continue
		}
		frame := model.NativeFrame{IP: uint64(ip), SegmentGeneration: t.nativeCache.Generation()}
		if err := t.writer.WriteNativeFrame(threadID, entry.Index, frame); err != nil {
			return 0, err
		}
	}
	return leaf, nil
}

// PushFrame records an interpreted-frame push, flushing any pending
// pop run first (spec.md §4.C, §4.E).
func (t *Tracker) PushFrame(threadID model.ThreadID, f model.InterpretedFrame) error {
	res := t.shadow.Push(threadID, f)

	t.mu.Lock()
	defer t.mu.Unlock()
	if res.FlushPop > 0 {
		if err := t.writer.WriteFramePop(threadID, res.FlushPop); err != nil {
			return err
		}
		t.stats.FramePopRecords++
	}
	if err := t.writer.WriteFramePush(threadID, f); err != nil {
		return err
	}
	t.stats.FramePushRecords++
	return nil
}

// PopFrame records an interpreted-frame return. The actual Frame-pop
// wire record is deferred until the next push or allocation so
// consecutive returns collapse into one run-length record (spec.md
// §4.E).
func (t *Tracker) PopFrame(threadID model.ThreadID) {
	t.shadow.Pop(threadID)
}

// WriteCodeObject emits a code object exactly once (spec.md §3).
func (t *Tracker) WriteCodeObject(o model.CodeObject) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writer.WriteCodeObject(o)
}

// WriteImageSegments records a loaded image and invalidates the
// native-frame cache (spec.md §3 Lifecycles).
func (t *Tracker) WriteImageSegments(seg model.ImageSegment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nativeCache.Invalidate()
	if t.ghost != nil {
		t.ghost.Reset()
	}
	return t.writer.WriteImageSegments(t.nativeCache.Generation(), seg)
}

// Stats returns a snapshot of the running record counters.
func (t *Tracker) Stats() model.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Teardown writes the trailer, rewrites the header with final stats if
// the sink supports seeking, closes the sink, and uninstalls the
// tracker (spec.md §3 Lifecycles: "rewritten on close").
func (t *Tracker) Teardown() error {
	if t.sampler != nil {
		t.sampler.stop()
	}

	t.mu.Lock()
	stats := t.stats
	err := t.writer.WriteTrailer(stats)
	t.mu.Unlock()

	if seeker := t.sinkSeeker; seeker != nil {
		if serr := seeker.SeekToStart(); serr == nil {
			header := model.CaptureHeader{
				StartTimeUnixMs:      time.Now().UnixMilli(),
				CommandLine:          t.opts.CommandLine,
				Pid:                  t.opts.Pid,
				AllocatorKind:        t.opts.AllocatorKind,
				NativeTracesEnabled:  t.opts.NativeTraces,
				TracePoolAllocator:   t.opts.TracePoolAllocator,
				MainThreadID:         t.opts.MainThreadID,
				SkipFramesMainThread: t.opts.SkipFramesMainThread,
				AggregatedFormat:     t.opts.AggregatedFormat,
				Stats:                stats,
			}
			_ = t.writer.WriteHeader(header)
		}
	}

	t.state.Store(int32(Uninstalled))
	if installed.Load() == t {
		installed.Store(nil)
	}
	metricsTrackersInstalled.Dec()

	if cerr := t.sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
