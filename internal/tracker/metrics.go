// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tracker

import "github.com/prometheus/client_golang/prometheus"

// Ambient Prometheus counters mirroring the shape of stats the
// teacher's internal/metricstore already tracks (allocations seen,
// bytes live), registered against the default registry so a process
// embedding this tracker gets them for free alongside its own metrics.
var (
	metricsAllocations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memray",
		Name:      "allocations_total",
		Help:      "Total number of allocation events recorded.",
	})
	metricsDeallocations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memray",
		Name:      "deallocations_total",
		Help:      "Total number of deallocation events recorded.",
	})
	metricsBytesTracked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memray",
		Name:      "bytes_tracked_total",
		Help:      "Cumulative bytes requested by recorded allocations.",
	})
	metricsTrackersInstalled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "memray",
		Name:      "trackers_installed",
		Help:      "Number of trackers currently installed (0 or 1).",
	})
	metricsReentrantSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memray",
		Name:      "reentrant_hook_skips_total",
		Help:      "Hook invocations skipped by the per-thread reentrancy guard.",
	})
)

func init() {
	prometheus.MustRegister(
		metricsAllocations,
		metricsDeallocations,
		metricsBytesTracked,
		metricsTrackersInstalled,
		metricsReentrantSkips,
	)
}

// RecordReentrantSkip lets internal/hook report a guard-skipped call
// (spec.md §4.D step 3) without importing internal/tracker's full
// surface; cmd/memray-sub003 passes it to hook.NewTable as the
// onReentrantSkip callback.
func RecordReentrantSkip() {
	metricsReentrantSkips.Inc()
}
