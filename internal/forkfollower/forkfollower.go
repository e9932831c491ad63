// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package forkfollower implements the child-side re-init of spec.md
// §4.L: a derived filename, a freshly opened writer, a restarted RSS
// sampler and a fresh header carrying the child's own pid.
//
// A Go process cannot fork and keep running Go code the way a
// single-threaded C program can: the runtime's goroutine scheduler,
// garbage collector and background threads do not survive a raw
// fork() that isn't immediately followed by exec() (spec.md §9 already
// re-architects several other C-only mechanisms for the same reason).
// The Go-native equivalent implemented here is a child OS process,
// started via os/exec with EnvParentCapture set, that calls Follow at
// its own startup to pick up tracking where the parent left off.
// Follow-fork is supported only with file sinks, exactly as spec.md
// §4.L requires.
package forkfollower

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/bloomberg/memray-sub003/internal/sink"
	"github.com/bloomberg/memray-sub003/internal/tracker"
)

// EnvParentCapture names the environment variable a following child
// process inspects at startup to learn the parent's original capture
// file path.
const EnvParentCapture = "MEMRAY_PARENT_CAPTURE_FILE"

// DerivedFilename is the original capture filename with the child's
// pid appended (spec.md §4.L).
func DerivedFilename(parentFilename string, pid int) string {
	return fmt.Sprintf("%s.%d", parentFilename, pid)
}

// ParentCapture reports the parent's capture filename when the current
// process was launched to follow a fork, i.e. EnvParentCapture is set.
func ParentCapture() (filename string, ok bool) {
	v, ok := os.LookupEnv(EnvParentCapture)
	return v, ok
}

// PrepareChildEnv returns the environment a parent must pass to
// os/exec when spawning a process it wants to follow, carrying
// parentFilename forward via EnvParentCapture.
func PrepareChildEnv(parentFilename string) []string {
	return append(os.Environ(), EnvParentCapture+"="+parentFilename)
}

// Follow re-initializes tracking in a following child process: it
// opens a fresh file sink at DerivedFilename(parentFilename, its own
// pid), restarts the RSS sampler (via tracker.Install, which starts
// one whenever opts.MemorySampleInterval is set), and installs a fresh
// header carrying the child's own pid and command line (spec.md §4.L).
//
// opts should be the same Options the parent tracker was installed
// with; Pid and CommandLine are overwritten here to reflect the child.
func Follow(parentFilename string, opts tracker.Options) (*tracker.Tracker, error) {
	pid := unix.Getpid()
	path := DerivedFilename(parentFilename, pid)

	s, err := sink.NewFile(path, true, false)
	if err != nil {
		return nil, err
	}

	opts.Pid = pid
	opts.CommandLine = os.Args

	t, err := tracker.Install(s, opts)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return t, nil
}

// Spawn starts child as a following child process: it sets
// EnvParentCapture so the child can call Follow at its own startup.
// Per spec.md §4.L, this is the Go-native analogue of the parent-side
// half of an on-fork hook — true in-process fork/continue is not
// available (see package doc).
func Spawn(parentFilename string, name string, args ...string) (*exec.Cmd, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = PrepareChildEnv(parentFilename)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
