// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package synth generates deterministic synthetic MEA signals.
package synth

import (
	"math"

	"github.com/OpenPSG/mea"
)

// FS is the sampling frequency of generated signals, matching the usual MEA
// acquisition rate.
const FS = 10000

// Waveform is the extracellular spike shape, starting one sample before the
// trough. The first sample already crosses a -5 sigma threshold.
var Waveform = []float64{-30e-6, -60e-6, -20e-6, 10e-6, 20e-6, 5e-6, -1e-6}

// Baseline returns n samples of deterministic low amplitude background
// activity (about 1 µV).
func Baseline(n int, phase float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 1e-6 * math.Sin(float64(i)*0.7+phase)
	}
	return x
}

// Channel returns a baseline with a spike whose trough sits at each of the
// given sample indices.
func Channel(n int, troughs ...int) []float64 {
	x := Baseline(n, 0)
	for _, p := range troughs {
		for j, v := range Waveform {
			if i := p - 1 + j; i >= 0 && i < n {
				x[i] = v
			}
		}
	}
	return x
}

// Train returns count trough positions starting at first and spaced by
// spacing samples.
func Train(first, spacing, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = first + i*spacing
	}
	return out
}

// Recording builds a recording at FS from the given channels.
func Recording(channels ...[]float64) *mea.Recording {
	rec, err := mea.NewRecording(channels, FS)
	if err != nil {
		panic(err)
	}
	return rec
}
