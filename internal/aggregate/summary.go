// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import "github.com/bloomberg/memray-sub003/internal/util"

// Summary reports the mean and median per-location byte total across a
// snapshot, the kind of headline numbers a `run` verb prints once a
// capture ends.
type Summary struct {
	MeanBytes   float64
	MedianBytes float64
	Locations   int
}

// Summarize computes Summary over records. It returns the zero Summary
// for an empty snapshot.
func Summarize(records []AllocationRecord) Summary {
	if len(records) == 0 {
		return Summary{}
	}

	sizes := make([]float64, len(records))
	for i, r := range records {
		sizes[i] = float64(r.TotalBytes)
	}

	mean, _ := util.Mean(sizes)
	median, _ := util.Median(sizes)
	return Summary{MeanBytes: mean, MedianBytes: median, Locations: len(records)}
}
