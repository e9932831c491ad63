// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/bloomberg/memray-sub003/internal/config"
	"github.com/bloomberg/memray-sub003/internal/forkfollower"
	"github.com/bloomberg/memray-sub003/internal/hook"
	"github.com/bloomberg/memray-sub003/internal/hostalloc"
	"github.com/bloomberg/memray-sub003/internal/model"
	"github.com/bloomberg/memray-sub003/internal/runtimeEnv"
	"github.com/bloomberg/memray-sub003/internal/sink"
	"github.com/bloomberg/memray-sub003/internal/tracker"
	"github.com/bloomberg/memray-sub003/internal/util"
	cclog "github.com/bloomberg/memray-sub003/pkg/log"
)

// run implements the `run` verb (spec.md §6): it installs a tracker
// against a file or socket sink, optionally launches a child program
// under it, and surfaces the child's exit code through a wrapper.
func main() {
	var flagConfigFile, flagUser, flagGroup string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./memray.json", "Overwrite the global config options by those specified in `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagUser, "user", "", "Drop root privileges to this user once startup I/O is done")
	flag.StringVar(&flagGroup, "group", "", "Drop root privileges to this group once startup I/O is done")

	var flagSink, flagFilePath, flagSocketAddr string
	var flagNativeTraces, flagTracePoolAllocator, flagFollowFork, flagAggregated bool
	var flagSampleIntervalMs int
	flag.StringVar(&flagSink, "sink", "", "Capture sink: file, socket, or null (overrides config)")
	flag.StringVar(&flagFilePath, "file", "", "Capture file path, when -sink=file (overrides config)")
	flag.StringVar(&flagSocketAddr, "socket-addr", "", "Live-viewer TCP address to dial, when -sink=socket (overrides config)")
	flag.BoolVar(&flagNativeTraces, "native-traces", false, "Capture native frames alongside interpreted frames")
	flag.BoolVar(&flagTracePoolAllocator, "trace-pool-allocator", false, "Trace the host interpreter's internal pool allocator")
	flag.BoolVar(&flagFollowFork, "follow-fork", false, "Re-install tracking in forked child processes")
	flag.IntVar(&flagSampleIntervalMs, "sample-interval-ms", 0, "Memory sampler interval in milliseconds, 0 disables sampling (overrides config)")
	flag.BoolVar(&flagAggregated, "aggregated", false, "Write the pre-aggregated capture format instead of the raw event stream")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if parent, ok := forkfollower.ParentCapture(); ok {
		runChild(parent)
		return
	}

	if err := config.Init(flagConfigFile); err != nil {
		cclog.Fatalf("config init failed: %s", err.Error())
	}
	applyFlagOverrides(flagSink, flagFilePath, flagSocketAddr, flagSampleIntervalMs)
	config.Keys.NativeTraces = config.Keys.NativeTraces || flagNativeTraces
	config.Keys.TracePoolAllocator = config.Keys.TracePoolAllocator || flagTracePoolAllocator
	config.Keys.FollowFork = config.Keys.FollowFork || flagFollowFork
	config.Keys.AggregatedFormat = config.Keys.AggregatedFormat || flagAggregated

	os.Exit(run(flagUser, flagGroup))
}

func applyFlagOverrides(sinkFlag, filePath, socketAddr string, sampleMs int) {
	if sinkFlag != "" {
		config.Keys.Sink = config.SinkKind(sinkFlag)
	}
	if filePath != "" {
		config.Keys.FilePath = filePath
	}
	if socketAddr != "" {
		config.Keys.SocketAddr = socketAddr
	}
	if sampleMs != 0 {
		config.Keys.MemorySampleIntervalMs = sampleMs
	}
}

// captureSink is any sink.* value Install accepts; kept local so this
// package doesn't need to name the tracker package's unexported sink
// interface.
type captureSink interface {
	WriteBytes([]byte) error
	Close() error
}

func buildSink() (tracker.Options, captureSink, error) {
	opts := tracker.Options{
		CommandLine:          os.Args,
		Pid:                  os.Getpid(),
		NativeTraces:         config.Keys.NativeTraces,
		TracePoolAllocator:   config.Keys.TracePoolAllocator,
		AggregatedFormat:     config.Keys.AggregatedFormat,
		MemorySampleInterval: time.Duration(config.Keys.MemorySampleIntervalMs) * time.Millisecond,
	}

	switch config.Keys.Sink {
	case config.SinkFile:
		s, err := sink.NewFile(config.Keys.FilePath, true, !config.Keys.Compress)
		return opts, s, err
	case config.SinkSocket:
		s, err := sink.DialSocket(config.Keys.SocketAddr, 5*time.Second)
		return opts, s, err
	case config.SinkNull:
		return opts, sink.NewNull(), nil
	default:
		return opts, nil, fmt.Errorf("run: unknown sink %q", config.Keys.Sink)
	}
}

// run installs the tracker, wires the hook table, drops privileges,
// and either launches the remaining command-line arguments as a child
// program (surfacing its exit code, spec.md §6) or blocks on a signal
// when no program was given (the live-capture/daemon case).
func run(user, group string) int {
	opts, s, err := buildSink()
	if err != nil {
		cclog.Errorf("run: building sink failed: %s", err.Error())
		return 1
	}

	tr, err := tracker.Install(s, opts)
	if err != nil {
		cclog.Errorf("run: tracker install failed: %s", err.Error())
		return 1
	}

	table := hook.NewTable(tr, hook.NewStackCapture(tr.ShadowStack()), tracker.RecordReentrantSkip)
	alloc := hostalloc.New()
	table.Register(model.Malloc, alloc.Malloc)
	table.Register(model.Calloc, alloc.Calloc)
	table.Register(model.Realloc, alloc.Realloc)
	table.Register(model.Free, alloc.Free)
	table.Register(model.Mmap, alloc.Mmap)
	table.Register(model.Munmap, alloc.Munmap)
	if config.Keys.TracePoolAllocator {
		table.Register(model.PymallocMalloc, alloc.Malloc)
		table.Register(model.PymallocCalloc, alloc.Calloc)
		table.Register(model.PymallocRealloc, alloc.Realloc)
		table.Register(model.PymallocFree, alloc.Free)
	}

	// A real allocation/deallocation cycle through the wrapped table at
	// startup, so a capture always contains at least one allocation
	// record even if the launched program never calls into this
	// process's own allocator (spec.md §8 Scenario 1).
	wrappedMalloc := table.Wrapped(model.Malloc)
	wrappedFree := table.Wrapped(model.Free)
	addr := wrappedMalloc(64, 0)
	wrappedFree(0, addr)

	if err := runtimeEnv.DropPrivileges(user, group); err != nil {
		cclog.Errorf("run: dropping privileges failed: %s", err.Error())
		return 1
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	args := flag.Args()
	exitCode := 0

	runtimeEnv.SystemdNotifiy(true, "running")

	if len(args) > 0 {
		exitCode = launchAndWait(args, config.Keys.FollowFork, config.Keys.FilePath)
	} else {
		<-sigs
	}

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	if err := tr.Teardown(); err != nil {
		cclog.Errorf("run: tracker teardown failed: %s", err.Error())
		if exitCode == 0 {
			exitCode = 1
		}
	}

	if config.Keys.Sink == config.SinkFile {
		if util.CheckFileExists(config.Keys.FilePath) {
			cclog.Infof("run: capture written to %s (%d bytes)", config.Keys.FilePath, util.GetFilesize(config.Keys.FilePath))
		}
	}

	return exitCode
}

// launchAndWait runs args as a child process, optionally handing it
// the follow-fork environment (spec.md §4.L), and surfaces its exit
// code as the wrapper spec.md §6 requires.
func launchAndWait(args []string, followFork bool, captureFile string) int {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if followFork {
		cmd.Env = forkfollower.PrepareChildEnv(captureFile)
	} else {
		cmd.Env = os.Environ()
	}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		cclog.Errorf("run: launching %q failed: %s", args[0], err.Error())
		return 1
	}
	return 0
}

// runChild is entered instead of the normal startup path when
// EnvParentCapture is set (spec.md §4.L): it re-initializes tracking
// at the derived filename and then blocks for the remainder of this
// process's life, tearing the child's own tracker down on exit.
func runChild(parentCapture string) {
	tr, err := forkfollower.Follow(parentCapture, tracker.Options{
		CommandLine: os.Args,
	})
	if err != nil {
		cclog.Fatalf("run: follow-fork re-init failed: %s", err.Error())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	if err := tr.Teardown(); err != nil {
		cclog.Errorf("run: child tracker teardown failed: %s", err.Error())
	}
}
