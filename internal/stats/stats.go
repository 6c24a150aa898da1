// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package stats contains the descriptive statistics shared by the analysis
// stages, with the exact conventions (population deviation, linearly
// interpolated percentiles) the published results are computed with.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of x, or zero for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// PopStdDev returns the population (biased) standard deviation of x.
func PopStdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	_, std := stat.PopMeanStdDev(x, nil)
	return std
}

// Percentile returns the p-th percentile (0..100) of x using linear
// interpolation between the closest ranks at position p/100*(n-1).
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}

	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	p = math.Max(0, math.Min(100, p))
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Median returns the middle value of x, averaging the two central values for
// an even count.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return Percentile(x, 50)
}
