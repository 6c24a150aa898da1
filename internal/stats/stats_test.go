// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package stats_test

import (
	"math"
	"testing"

	"github.com/OpenPSG/mea/internal/stats"
	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	x := []float64{4, 1, 3, 2}

	assert.InDelta(t, 2.5, stats.Median(x), 1e-12)
	assert.InDelta(t, 1.0, stats.Percentile(x, 0), 1e-12)
	assert.InDelta(t, 4.0, stats.Percentile(x, 100), 1e-12)
	assert.InDelta(t, 3.85, stats.Percentile(x, 95), 1e-12)
	assert.True(t, math.IsNaN(stats.Percentile(nil, 50)))

	// Input must not be reordered.
	assert.Equal(t, []float64{4, 1, 3, 2}, x)
}

func TestPopStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, stats.PopStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
	assert.Equal(t, 0.0, stats.PopStdDev([]float64{3}))
	assert.Equal(t, 0.0, stats.Mean(nil))
	assert.InDelta(t, 5.0, stats.Mean([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
}
