// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bloomberg/memray-sub003/internal/config"
)

func TestApplyFlagOverridesOnlyTouchesGivenFlags(t *testing.T) {
	before := config.Keys
	defer func() { config.Keys = before }()

	config.Keys.Sink = config.SinkFile
	config.Keys.FilePath = "original.bin"
	config.Keys.MemorySampleIntervalMs = 10

	applyFlagOverrides("socket", "", "127.0.0.1:9000", 0)

	require.Equal(t, config.SinkSocket, config.Keys.Sink)
	require.Equal(t, "original.bin", config.Keys.FilePath, "empty flag must not overwrite the config value")
	require.Equal(t, "127.0.0.1:9000", config.Keys.SocketAddr)
	require.Equal(t, 10, config.Keys.MemorySampleIntervalMs, "zero flag must not overwrite the config value")
}

func TestBuildSinkNull(t *testing.T) {
	before := config.Keys
	defer func() { config.Keys = before }()

	config.Keys.Sink = config.SinkNull
	_, s, err := buildSink()
	require.NoError(t, err)
	require.NoError(t, s.WriteBytes([]byte("x")))
}

func TestBuildSinkFileOpensAtConfiguredPath(t *testing.T) {
	before := config.Keys
	defer func() { config.Keys = before }()

	path := filepath.Join(t.TempDir(), "out.bin")
	config.Keys.Sink = config.SinkFile
	config.Keys.FilePath = path
	config.Keys.Compress = false

	_, s, err := buildSink()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.FileExists(t, path)
}

func TestLaunchAndWaitSurfacesExitCode(t *testing.T) {
	code := launchAndWait([]string{"sh", "-c", "exit 7"}, false, "")
	require.Equal(t, 7, code)
}

func TestLaunchAndWaitSuccessIsZero(t *testing.T) {
	code := launchAndWait([]string{"true"}, false, "")
	require.Equal(t, 0, code)
}
