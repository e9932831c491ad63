// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemporaryAllocationDetectorDefaultBoundFlagsImmediateFree(t *testing.T) {
	d := NewTemporaryAllocationDetector(0) // defaults to 1
	d.Feed(alloc(1, 10))
	temp := d.Feed(free(1))
	require.True(t, temp, "freeing the most recent allocation within the bound must be flagged temporary")
}

func TestTemporaryAllocationDetectorEvictsPastBound(t *testing.T) {
	d := NewTemporaryAllocationDetector(1)
	d.Feed(alloc(1, 10))
	d.Feed(alloc(2, 20)) // pushes address 1 out of a bound-1 FIFO
	temp := d.Feed(free(1))
	require.False(t, temp, "an allocation pushed out of the FIFO is no longer temporary")
}

func TestTemporaryAllocationDetectorIsPerThread(t *testing.T) {
	d := NewTemporaryAllocationDetector(1)
	a1 := alloc(1, 10)
	a1.ThreadID = 1
	a2 := alloc(2, 20)
	a2.ThreadID = 2
	d.Feed(a1)
	d.Feed(a2) // different thread, must not evict thread 1's entry

	f1 := free(1)
	f1.ThreadID = 1
	require.True(t, d.Feed(f1))
}

func TestTemporaryAllocationDetectorBoundOfTwoAllowsOneIntervening(t *testing.T) {
	d := NewTemporaryAllocationDetector(2)
	d.Feed(alloc(1, 10))
	d.Feed(alloc(2, 20))
	require.True(t, d.Feed(free(1)))
}
