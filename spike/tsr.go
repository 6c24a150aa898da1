// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package spike

import "github.com/OpenPSG/mea"

// TSR is the time-series-rate: spike counts in fixed BinMs bins over the
// whole analysis window.
type TSR struct {
	Counts   []int     `json:"counts"`
	Times    []float64 `json:"times"`    // Absolute bin timestamps in seconds
	Channels [][]int   `json:"channels"` // Channels firing in each bin, ascending
}

func newTSR(rec *mea.Recording) TSR {
	n := 0
	if rec.Len() > 0 {
		n = BinOf(rec.Len()-1, rec.FS) + 1
	}

	tsr := TSR{
		Counts:   make([]int, n),
		Times:    make([]float64, n),
		Channels: make([][]int, n),
	}
	for b := range tsr.Times {
		tsr.Times[b] = rec.Offset + float64(b)*BinMs/1000
		tsr.Channels[b] = []int{}
	}

	return tsr
}

// BinOf returns the TSR bin of a sample index: ceil(sample*periodMs/BinMs),
// evaluated in integer arithmetic.
func BinOf(sample, fs int) int {
	den := BinMs * fs
	return (sample*1000 + den - 1) / den
}

// SamplesPerBin returns the number of samples covered by one TSR bin.
func SamplesPerBin(fs int) int {
	return BinMs * fs / 1000
}

// add records the peaks of one channel. Channels must be added in ascending
// order to keep the per-bin channel lists sorted.
func (t *TSR) add(ch int, peaks []int, fs int) {
	for _, p := range peaks {
		b := BinOf(p, fs)
		t.Counts[b]++
		if cs := t.Channels[b]; len(cs) == 0 || cs[len(cs)-1] != ch {
			t.Channels[b] = append(cs, ch)
		}
	}
}

// Floats returns the bin counts as float64 values.
func (t *TSR) Floats() []float64 {
	out := make([]float64, len(t.Counts))
	for i, c := range t.Counts {
		out[i] = float64(c)
	}
	return out
}
