// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package burst

import (
	"context"
	"fmt"

	"github.com/OpenPSG/mea/internal/stats"
	"github.com/OpenPSG/mea/spike"
)

// TSRDetector finds bursts as runs of TSR bins above mean + K*std.
type TSRDetector struct {
	K           float64
	WindowMs    float64 // Runs narrower than WindowMs (in whole bins) are ignored
	MinChannels int     // Bursts must involve more than MinChannels channels
}

func (d *TSRDetector) Method() Method {
	return Threshold
}

// Level returns the bin count a burst must exceed.
func (d *TSRDetector) Level(tsr *spike.TSR) float64 {
	counts := tsr.Floats()
	return stats.Mean(counts) + d.K*stats.PopStdDev(counts)
}

func (d *TSRDetector) Detect(ctx context.Context, in Input) ([]Burst, error) {
	tsr := &in.Spikes.TSR
	level := d.Level(tsr)
	minBins := max(1, int(d.WindowMs/spike.BinMs))
	spb := spike.SamplesPerBin(in.Recording.FS)
	last := in.Recording.Len() - 1

	bursts := []Burst{}

	emit := func(b0, b1 int) {
		if b1-b0+1 < minBins {
			return
		}

		seen := make(map[int]struct{})
		for b := b0; b <= b1; b++ {
			for _, ch := range tsr.Channels[b] {
				if !in.Excluded.Has(ch) {
					seen[ch] = struct{}{}
				}
			}
		}
		if len(seen) == 0 || len(seen) <= d.MinChannels {
			return
		}

		// Bin b holds peaks in ((b-1)*spb, b*spb].
		b := Burst{
			Start:    max(0, (b0-1)*spb+1),
			End:      min(b1*spb, last),
			Channels: sortedKeys(seen),
		}
		b.Local = make([]Span, 0, len(b.Channels))
		for _, ch := range b.Channels {
			train := in.Spikes.Trains[ch]
			lo, hi := train.Between(b.Start, b.End)
			if lo == hi {
				continue
			}
			b.Local = append(b.Local, Span{
				Channel: ch,
				Start:   max(b.Start, train.Starts[lo]),
				End:     min(b.End, train.Ends[hi-1]),
			})
		}

		bursts = append(bursts, b)
	}

	open := -1
	for b, c := range tsr.Counts {
		if b%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("burst detection interrupted: %w", err)
			}
		}

		above := float64(c) > level
		switch {
		case above && open < 0:
			open = b
		case !above && open >= 0:
			emit(open, b-1)
			open = -1
		}
	}
	if open >= 0 {
		emit(open, len(tsr.Counts)-1)
	}

	return bursts, nil
}
