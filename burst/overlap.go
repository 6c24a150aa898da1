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
	"sort"
)

// OverlapDetector finds bursts as windows where burstlets of more than
// ChannelThreshold channels overlap.
type OverlapDetector struct {
	ChannelThreshold float64
}

func (d *OverlapDetector) Method() Method {
	return Overlap
}

func (d *OverlapDetector) Detect(ctx context.Context, in Input) ([]Burst, error) {
	if in.Burstlets == nil {
		return nil, fmt.Errorf("burstlets have not been grouped")
	}

	n := in.Recording.Len()

	var ivs []Interval
	for ch, bls := range in.Burstlets {
		if in.Excluded.Has(ch) {
			continue
		}
		for id, b := range bls {
			ivs = append(ivs, Interval{Start: b.Start, End: b.End + 1, Channel: ch, Burstlet: id})
		}
	}
	tree := NewIntervalTree(ivs)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("burst detection interrupted: %w", err)
	}

	bursts := []Burst{}
	var prev map[Member]struct{}

	for _, w := range coverageWindows(ivs, n, d.ChannelThreshold) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("burst detection interrupted: %w", err)
		}

		hits := tree.Overlapping(w[0], w[1])
		channels := make(map[int]struct{})
		for _, iv := range hits {
			channels[iv.Channel] = struct{}{}
		}
		if float64(len(channels)) <= d.ChannelThreshold {
			continue
		}

		members := make(map[Member]struct{}, len(hits))
		shared := false
		for _, iv := range hits {
			m := Member{Channel: iv.Channel, Burstlet: iv.Burstlet}
			members[m] = struct{}{}
			if _, ok := prev[m]; ok {
				shared = true
			}
		}

		if shared {
			for m := range members {
				prev[m] = struct{}{}
			}
			bursts[len(bursts)-1] = d.assemble(in, prev)
			continue
		}

		prev = members
		bursts = append(bursts, d.assemble(in, members))
	}

	return bursts, nil
}

// assemble derives the burst bounds and per-channel spans from its members.
func (d *OverlapDetector) assemble(in Input, members map[Member]struct{}) Burst {
	b := Burst{Start: -1, End: -1, Members: make([]Member, 0, len(members))}
	local := make(map[int]*Span)

	for m := range members {
		b.Members = append(b.Members, m)
		bl := in.Burstlets[m.Channel][m.Burstlet]

		if b.Start < 0 || bl.Start < b.Start {
			b.Start = bl.Start
		}
		if bl.End > b.End {
			b.End = bl.End
		}

		s, ok := local[m.Channel]
		if !ok {
			local[m.Channel] = &Span{Channel: m.Channel, Start: bl.Start, End: bl.End}
			continue
		}
		s.Start = min(s.Start, bl.Start)
		s.End = max(s.End, bl.End)
	}

	sort.Slice(b.Members, func(i, j int) bool {
		if b.Members[i].Channel != b.Members[j].Channel {
			return b.Members[i].Channel < b.Members[j].Channel
		}
		return b.Members[i].Burstlet < b.Members[j].Burstlet
	})

	chans := make(map[int]struct{}, len(local))
	for ch := range local {
		chans[ch] = struct{}{}
	}
	b.Channels = sortedKeys(chans)
	b.Local = make([]Span, 0, len(b.Channels))
	for _, ch := range b.Channels {
		b.Local = append(b.Local, *local[ch])
	}

	return b
}

// coverageWindows returns the maximal half-open sample runs where the number
// of covering intervals is positive and at least threshold.
func coverageWindows(ivs []Interval, n int, threshold float64) [][2]int {
	diff := make([]int, n+1)
	for _, iv := range ivs {
		s, e := max(iv.Start, 0), min(iv.End, n)
		if s >= e {
			continue
		}
		diff[s]++
		diff[e]--
	}

	var windows [][2]int
	count, open := 0, -1
	for i := 0; i < n; i++ {
		count += diff[i]
		above := count > 0 && float64(count) >= threshold
		switch {
		case above && open < 0:
			open = i
		case !above && open >= 0:
			windows = append(windows, [2]int{open, i})
			open = -1
		}
	}
	if open >= 0 {
		windows = append(windows, [2]int{open, n})
	}

	return windows
}
