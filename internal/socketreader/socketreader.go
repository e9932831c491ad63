// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package socketreader runs the background thread of spec.md §4.K: it
// drains a live capture source, keeps a snapshot aggregator current
// with the in-progress stream, and serves on-demand
// GetCurrentSnapshot polls while the capture is still running.
package socketreader

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bloomberg/memray-sub003/internal/aggregate"
	"github.com/bloomberg/memray-sub003/internal/model"
	"github.com/bloomberg/memray-sub003/internal/reader"
	"github.com/bloomberg/memray-sub003/internal/source"
	cclog "github.com/bloomberg/memray-sub003/pkg/log"
)

// Publisher is the optional side-channel notification sink; satisfied
// by *nats.Client. Kept minimal so this package never depends on a
// live NATS connection to function.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Watcher drains src in a background goroutine, reconstructing live
// allocation state as records arrive (spec.md §4.K). It is safe for
// concurrent GetCurrentSnapshot calls while Run is active.
type Watcher struct {
	src source.Source
	rdr *reader.Reader

	mu   sync.Mutex
	live map[uint64]model.AllocationEvent

	pub         Publisher
	subject     string
	limiter     *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// Option configures optional behavior of a Watcher.
type Option func(*Watcher)

// WithNotify wires an optional "snapshot updated" publish on subject,
// rate-limited to at most one message per interval's worth of tokens
// (spec.md §4.K repurposes the teacher's NATS client as a side
// channel, not the primary transport).
func WithNotify(pub Publisher, subject string, limiter *rate.Limiter) Option {
	return func(w *Watcher) {
		w.pub = pub
		w.subject = subject
		w.limiter = limiter
	}
}

// New wraps src, reading its header immediately.
func New(src source.Source, opts ...Option) (*Watcher, error) {
	rdr, err := reader.New(src)
	if err != nil {
		return nil, err
	}
	w := &Watcher{src: src, rdr: rdr, live: make(map[uint64]model.AllocationEvent)}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run drains the source until it ends or Stop is called. It returns
// once the background goroutine has exited; callers typically invoke
// it in its own goroutine.
func (w *Watcher) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ev, err := w.rdr.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			w.setErr(err)
			return err
		}

		switch ev.Kind {
		case reader.KindAllocation:
			w.applyAllocation(ev.Allocation)
			w.maybeNotify()
		case reader.KindMemory:
			// RSS samples do not affect live allocation state.
		}
	}
}

func (w *Watcher) applyAllocation(ev model.AllocationEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ev.IsDeallocation() {
		delete(w.live, ev.Address)
		return
	}
	w.live[ev.Address] = ev
}

func (w *Watcher) maybeNotify() {
	if w.pub == nil || w.limiter == nil {
		return
	}
	if !w.limiter.Allow() {
		return
	}
	if err := w.pub.Publish(w.subject, []byte("snapshot updated")); err != nil {
		cclog.Warnf("socketreader: notify publish failed: %v", err)
	}
}

func (w *Watcher) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	w.err = err
}

// Err returns the error that ended Run, if any.
func (w *Watcher) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Stop signals Run to exit and closes the underlying source (spec.md
// §4.K: "stopping closes the underlying source"), then waits for Run
// to return.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.src.Close()
	w.wg.Wait()
	return err
}

// GetCurrentSnapshot implements `get_current_snapshot(merge_threads)`
// (spec.md §4.K): it replays the current live-allocation state through
// a fresh SnapshotAggregator, so callers may request thread merging
// independently on every poll.
func (w *Watcher) GetCurrentSnapshot(mergeThreads bool) []aggregate.AllocationRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	agg := aggregate.NewSnapshotAggregator(mergeThreads)
	for _, ev := range w.live {
		agg.Feed(ev)
	}
	return agg.Snapshot()
}
