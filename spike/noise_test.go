// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package spike_test

import (
	"math"
	"testing"

	"github.com/OpenPSG/mea/spike"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoiseEstimators(t *testing.T) {
	x := []float64{-3, 1, -1, 3}

	tests := []struct {
		method spike.Method
		want   float64
	}{
		{spike.Median, 2 / 0.6745},
		{spike.RMS, math.Sqrt(5)},
		{spike.Std, math.Sqrt(5)},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			est, err := spike.EstimatorFor(tt.method)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, est.Estimate(x), 1e-12)
		})
	}

	// Std removes the mean, RMS does not.
	offset := []float64{1, 3, 1, 3}
	rms, _ := spike.EstimatorFor(spike.RMS)
	std, _ := spike.EstimatorFor(spike.Std)
	assert.InDelta(t, math.Sqrt(5), rms.Estimate(offset), 1e-12)
	assert.InDelta(t, 1.0, std.Estimate(offset), 1e-12)

	_, err := spike.EstimatorFor("unknown")
	require.Error(t, err)
}
