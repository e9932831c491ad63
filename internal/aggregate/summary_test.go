// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarizeEmptyIsZero(t *testing.T) {
	require.Equal(t, Summary{}, Summarize(nil))
}

func TestSummarizeComputesMeanAndMedian(t *testing.T) {
	records := []AllocationRecord{
		{TotalBytes: 10},
		{TotalBytes: 20},
		{TotalBytes: 30},
	}
	s := Summarize(records)
	require.Equal(t, 3, s.Locations)
	require.InDelta(t, 20.0, s.MeanBytes, 0.0001)
	require.InDelta(t, 20.0, s.MedianBytes, 0.0001)
}
