// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package forkfollower

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bloomberg/memray-sub003/internal/tracker"
)

func TestDerivedFilenameAppendsPid(t *testing.T) {
	require.Equal(t, "/tmp/capture.bin.4242", DerivedFilename("/tmp/capture.bin", 4242))
}

func TestPrepareChildEnvCarriesParentFilename(t *testing.T) {
	env := PrepareChildEnv("/tmp/capture.bin")
	found := false
	for _, kv := range env {
		if kv == EnvParentCapture+"=/tmp/capture.bin" {
			found = true
		}
	}
	require.True(t, found, "child env must carry %s", EnvParentCapture)
}

func TestParentCaptureReadsEnv(t *testing.T) {
	t.Setenv(EnvParentCapture, "/tmp/parent.bin")
	v, ok := ParentCapture()
	require.True(t, ok)
	require.Equal(t, "/tmp/parent.bin", v)
}

func TestParentCaptureAbsentWhenUnset(t *testing.T) {
	os.Unsetenv(EnvParentCapture)
	_, ok := ParentCapture()
	require.False(t, ok)
}

func TestFollowOpensDerivedFileAndInstallsFreshTracker(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "capture.bin")

	opts := tracker.Options{AllocatorKind: "malloc"}
	tr, err := Follow(parent, opts)
	require.NoError(t, err)
	require.NotNil(t, tr)
	defer tr.Teardown()

	require.Same(t, tr, tracker.Current())

	wantPath := DerivedFilename(parent, unix.Getpid())
	_, statErr := os.Stat(wantPath)
	require.NoError(t, statErr, "derived capture file must exist at %s", wantPath)
}
