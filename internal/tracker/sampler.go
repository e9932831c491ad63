// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tracker

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bloomberg/memray-sub003/internal/model"
	"github.com/bloomberg/memray-sub003/pkg/log"
)

// rssSampler periodically writes a memory record (spec.md §3, §4.G),
// structured the same way internal/taskManager registers its
// gocron-scheduled services against a shared scheduler.
type rssSampler struct {
	t        *Tracker
	pid      int32
	interval time.Duration
	sched    gocron.Scheduler
}

func newRSSSampler(t *Tracker, pid int, interval time.Duration) *rssSampler {
	return &rssSampler{t: t, pid: int32(pid), interval: interval}
}

func (s *rssSampler) start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sample),
	); err != nil {
		return err
	}
	s.sched = sched
	sched.Start()
	return nil
}

func (s *rssSampler) stop() {
	if s.sched == nil {
		return
	}
	if err := s.sched.Shutdown(); err != nil {
		log.Warnf("tracker: RSS sampler shutdown: %s", err.Error())
	}
}

func (s *rssSampler) sample() {
	proc, err := process.NewProcess(s.pid)
	if err != nil {
		log.Warnf("tracker: RSS sample: %s", err.Error())
		return
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		log.Warnf("tracker: RSS sample: %s", err.Error())
		return
	}

	rec := model.MemoryRecord{MsSinceEpoch: time.Now().UnixMilli(), RSSBytes: info.RSS}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if err := s.t.writer.WriteMemoryRecord(rec); err != nil {
		log.Errorf("tracker: write memory record: %s", err.Error())
	}
}
