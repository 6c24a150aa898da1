// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package characteristics

import (
	"math/cmplx"

	"github.com/OpenPSG/mea/internal/stats"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// DominantFrequency returns the frequency in Hz of the strongest non-DC
// component of a series sampled at rate Hz, or zero if there is none.
func DominantFrequency(series []float64, rate float64) float64 {
	n := len(series)
	if n < 4 {
		return 0
	}

	mean := stats.Mean(series)
	hann := window.Hann(n)
	input := make([]float64, n)
	for i, v := range series {
		input[i] = (v - mean) * hann[i]
	}
	spectrum := fft.FFTReal(input)

	best, bestMag := 0, 1e-12
	for k := 1; k <= n/2; k++ {
		if mag := cmplx.Abs(spectrum[k]); mag > bestMag {
			best, bestMag = k, mag
		}
	}

	return float64(best) * rate / float64(n)
}
