// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	before := Keys
	defer func() { Keys = before }()

	require.NoError(t, Init(filepath.Join(t.TempDir(), "does-not-exist.json")))
	require.Equal(t, SinkFile, Keys.Sink)
}

func TestInitDecodesFileSinkConfig(t *testing.T) {
	before := Keys
	defer func() { Keys = before }()

	path := writeConfig(t, `{
		"sink": "file",
		"filePath": "/tmp/out.bin",
		"nativeTraces": true,
		"memorySampleIntervalMs": 25,
		"aggregatedFormat": false,
		"followFork": true,
		"tracePoolAllocator": false,
		"compress": true
	}`)

	require.NoError(t, Init(path))
	require.Equal(t, SinkFile, Keys.Sink)
	require.Equal(t, "/tmp/out.bin", Keys.FilePath)
	require.True(t, Keys.NativeTraces)
	require.True(t, Keys.FollowFork)
	require.Equal(t, 25, Keys.MemorySampleIntervalMs)
}

func TestInitRejectsFileSinkWithoutPath(t *testing.T) {
	before := Keys
	defer func() { Keys = before }()

	path := writeConfig(t, `{"sink": "file", "filePath": ""}`)
	require.Error(t, Init(path))
}

func TestInitAcceptsSocketSinkWithAddr(t *testing.T) {
	before := Keys
	defer func() { Keys = before }()

	path := writeConfig(t, `{"sink": "socket", "socketAddr": "127.0.0.1:9000"}`)
	require.NoError(t, Init(path))
	require.Equal(t, SinkSocket, Keys.Sink)
	require.Equal(t, "127.0.0.1:9000", Keys.SocketAddr)
}
