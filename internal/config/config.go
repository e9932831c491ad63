// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the `run` verb's JSON config file (spec.md
// §6): the sink target, native/pool-allocator trace toggles, fork
// following, the RSS sampler interval, and aggregated-format
// selection. Flags passed on the command line override the file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// SinkKind names the three sink variants spec.md §4.A fixes as a
// closed enumeration.
type SinkKind string

const (
	SinkFile   SinkKind = "file"
	SinkSocket SinkKind = "socket"
	SinkNull   SinkKind = "null"
)

// Keys is the process-wide tracker configuration, populated by Init
// and then overlaid with any command-line flags by the caller.
var Keys = Config{
	Sink:                   SinkFile,
	FilePath:               "capture.bin",
	NativeTraces:           false,
	TracePoolAllocator:     false,
	FollowFork:             false,
	MemorySampleIntervalMs: 10,
	AggregatedFormat:       false,
	Compress:               true,
}

// Config is the decoded shape of the `run` verb's JSON config file.
type Config struct {
	Sink                   SinkKind `json:"sink"`
	FilePath               string   `json:"filePath,omitempty"`
	SocketAddr             string   `json:"socketAddr,omitempty"`
	NativeTraces           bool     `json:"nativeTraces"`
	TracePoolAllocator     bool     `json:"tracePoolAllocator"`
	FollowFork             bool     `json:"followFork"`
	MemorySampleIntervalMs int      `json:"memorySampleIntervalMs"`
	AggregatedFormat       bool     `json:"aggregatedFormat"`
	Compress               bool     `json:"compress"`
}

// Init loads flagConfigFile into Keys, if it exists. A missing file is
// not an error: Keys keeps its defaults, letting the `run` verb be
// driven entirely by flags.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	Validate(configSchema, raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	return checkSinkRequirements()
}

func checkSinkRequirements() error {
	switch Keys.Sink {
	case SinkFile:
		if Keys.FilePath == "" {
			return fmt.Errorf("config: sink 'file' requires filePath")
		}
	case SinkSocket:
		if Keys.SocketAddr == "" {
			return fmt.Errorf("config: sink 'socket' requires socketAddr")
		}
	case SinkNull:
	default:
		return fmt.Errorf("config: unknown sink %q", Keys.Sink)
	}
	return nil
}
