// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package burstlet groups temporally dense spikes of a single channel.
package burstlet

import (
	"context"
	"fmt"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/spike"
	"gonum.org/v1/gonum/floats"
)

// MinSpikes is the minimum number of distinct spikes in a burstlet.
const MinSpikes = 5

// Burstlet is a run of closely spaced spikes on one channel.
type Burstlet struct {
	Spikes    []int   `json:"spikes"`    // Indices into the channel's spike train
	Start     int     `json:"start"`     // Start sample of the first member spike
	End       int     `json:"end"`       // End sample of the last member spike
	Amplitude float64 `json:"amplitude"` // Peak-to-peak amplitude over the burstlet
}

// Options configures burstlet grouping.
type Options struct {
	WindowMs float64 // Maximum gap between consecutive spikes
	Excluded mea.ChannelSet
}

// Group forms burstlets on every channel. The returned slice has one
// (possibly empty, never nil) entry per channel.
func Group(ctx context.Context, rec *mea.Recording, spikes *spike.Result, opts Options, progress mea.ProgressSink) ([][]Burstlet, error) {
	if spikes == nil {
		return nil, fmt.Errorf("spikes have not been detected")
	}
	if progress == nil {
		progress = mea.Discard
	}

	gap := opts.WindowMs * float64(rec.FS) / 1000

	out := make([][]Burstlet, rec.Channels())
	for ch := range out {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("burstlet grouping interrupted at channel %d: %w", ch, err)
		}

		out[ch] = []Burstlet{}
		if !opts.Excluded.Has(ch) {
			out[ch] = groupChannel(rec.Samples[ch], spikes.Trains[ch], gap)
		}

		progress.Report(100 * (ch + 1) / rec.Channels())
	}

	return out, nil
}

func groupChannel(x []float64, train spike.Train, gap float64) []Burstlet {
	burstlets := []Burstlet{}

	emit := func(first, last int) {
		// Count distinct peak positions rather than entries.
		distinct := 1
		for k := first + 1; k <= last; k++ {
			if train.Peaks[k] != train.Peaks[k-1] {
				distinct++
			}
		}
		if distinct < MinSpikes {
			return
		}

		members := make([]int, 0, last-first+1)
		for k := first; k <= last; k++ {
			members = append(members, k)
		}

		// The range stops short of the last peak.
		span := x[train.Peaks[first]:train.Peaks[last]]
		burstlets = append(burstlets, Burstlet{
			Spikes:    members,
			Start:     train.Starts[first],
			End:       train.Ends[last],
			Amplitude: floats.Max(span) - floats.Min(span),
		})
	}

	if train.Len() == 0 {
		return burstlets
	}

	first := 0
	for k := 1; k < train.Len(); k++ {
		if float64(train.Peaks[k]-train.Peaks[k-1]) >= gap {
			emit(first, k-1)
			first = k
		}
	}
	emit(first, train.Len()-1)

	return burstlets
}
