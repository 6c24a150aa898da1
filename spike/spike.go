// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package spike detects negative-going threshold crossings in MEA channels and
// accumulates the network time-series-rate (TSR) histogram.
package spike

import (
	"context"
	"fmt"
	"sort"

	"github.com/OpenPSG/mea"
)

const (
	// DeadTimeMs is the minimum spacing between accepted crossings.
	DeadTimeMs = 3.0
	// SearchWindowMs is the forward window scanned for the trough, the
	// following local maximum and the zero crossing.
	SearchWindowMs = 2.0
	// BinMs is the TSR bin width.
	BinMs = 50
)

// Options configures spike detection.
type Options struct {
	Method      Method
	Coefficient float64 // Threshold in units of the noise estimate, usually negative
	Excluded    mea.ChannelSet
}

// Train holds the spikes of one channel, ordered by sample index. All slices
// have the same length.
type Train struct {
	Starts     []int     `json:"starts"`
	Peaks      []int     `json:"peaks"`
	Ends       []int     `json:"ends"`
	Amplitudes []float64 `json:"amplitudes"`
}

// Len returns the number of spikes in the train.
func (t Train) Len() int {
	return len(t.Peaks)
}

// Between returns the index range [lo, hi) of spikes whose peak lies within
// the inclusive sample range [start, end].
func (t Train) Between(start, end int) (lo, hi int) {
	lo = sort.SearchInts(t.Peaks, start)
	hi = sort.SearchInts(t.Peaks, end+1)
	return lo, hi
}

func emptyTrain() Train {
	return Train{Starts: []int{}, Peaks: []int{}, Ends: []int{}, Amplitudes: []float64{}}
}

// Result is the outcome of one detection run.
type Result struct {
	Trains       []Train   `json:"trains"`
	Thresholds   []float64 `json:"thresholds"` // Per channel, zero for excluded channels
	TSR          TSR       `json:"tsr"`
	DeadTime     int       `json:"dead_time"`     // Samples
	SearchWindow int       `json:"search_window"` // Samples
}

// Total returns the number of spikes over all channels.
func (r *Result) Total() int {
	var n int
	for _, t := range r.Trains {
		n += t.Len()
	}
	return n
}

// Detect finds spikes on every non-excluded channel of rec.
func Detect(ctx context.Context, rec *mea.Recording, opts Options, progress mea.ProgressSink) (*Result, error) {
	est, err := EstimatorFor(opts.Method)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = mea.Discard
	}

	res := &Result{
		Trains:       make([]Train, rec.Channels()),
		Thresholds:   make([]float64, rec.Channels()),
		TSR:          newTSR(rec),
		DeadTime:     rec.MsToSamples(DeadTimeMs),
		SearchWindow: rec.MsToSamples(SearchWindowMs),
	}

	for ch, x := range rec.Samples {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("spike detection interrupted at channel %d: %w", ch, err)
		}

		if opts.Excluded.Has(ch) {
			res.Trains[ch] = emptyTrain()
		} else {
			res.Thresholds[ch] = opts.Coefficient * est.Estimate(x)
			crossings := Crossings(x, res.Thresholds[ch], res.DeadTime)
			res.Trains[ch] = locate(x, crossings, res.SearchWindow)
			res.TSR.add(ch, res.Trains[ch].Peaks, rec.FS)
		}

		progress.Report(100 * (ch + 1) / rec.Channels())
	}

	return res, nil
}

// Crossings returns the indices where x falls to or below threshold, with
// crossings closer than deadTime samples to their predecessor removed. Removal
// is repeated until every adjacent pair is at least deadTime apart.
func Crossings(x []float64, threshold float64, deadTime int) []int {
	crossings := []int{}
	for i := 1; i < len(x); i++ {
		if x[i] <= threshold && x[i-1] > threshold {
			crossings = append(crossings, i)
		}
	}

	for {
		kept := make([]int, 0, len(crossings))
		for k, c := range crossings {
			if k > 0 && c-crossings[k-1] < deadTime {
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == len(crossings) {
			return kept
		}
		crossings = kept
	}
}

// locate resolves trough, end and amplitude for each crossing.
func locate(x []float64, crossings []int, window int) Train {
	t := Train{
		Starts:     make([]int, 0, len(crossings)),
		Peaks:      make([]int, 0, len(crossings)),
		Ends:       make([]int, 0, len(crossings)),
		Amplitudes: make([]float64, 0, len(crossings)),
	}

	for _, c := range crossings {
		limit := min(c+window, len(x))

		peak := c
		for i := c + 1; i < limit; i++ {
			if x[i] < x[peak] {
				peak = i
			}
		}

		top := peak
		for top+1 < limit && x[top+1] > x[top] {
			top++
		}

		// No zero crossing inside the window leaves the end on the window's
		// last scanned sample.
		end := limit - 1
		for i := top; i < limit; i++ {
			if x[i] <= 0 {
				end = i
				break
			}
		}

		t.Starts = append(t.Starts, c)
		t.Peaks = append(t.Peaks, peak)
		t.Ends = append(t.Ends, end)
		t.Amplitudes = append(t.Amplitudes, x[top]-x[peak])
	}

	return t
}
