// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package burst merges per-channel activity into network-wide bursts and
// computes channel activation and deactivation delays.
package burst

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burstlet"
	"github.com/OpenPSG/mea/spike"
)

// Method names a burst detection algorithm.
type Method string

const (
	// Overlap merges burstlets that overlap on enough channels.
	Overlap Method = "Burstlet"
	// Threshold thresholds the TSR histogram.
	Threshold Method = "TSR"
)

// Member references a burstlet contributing to a burst.
type Member struct {
	Channel  int `json:"channel"`
	Burstlet int `json:"burstlet"`
}

// Span is the part of a burst covered by one channel.
type Span struct {
	Channel int `json:"channel"`
	Start   int `json:"start"`
	End     int `json:"end"`
}

// Burst is a network event. Start and End are inclusive sample indices.
type Burst struct {
	Start        int       `json:"start"`
	End          int       `json:"end"`
	Channels     []int     `json:"channels"`
	Members      []Member  `json:"members,omitempty"`
	Local        []Span    `json:"local"`
	Activation   []float64 `json:"activation"`   // ms, aligned with Channels
	Deactivation []float64 `json:"deactivation"` // ms, aligned with Channels
}

// Len returns the burst length in samples.
func (b Burst) Len() int {
	return b.End - b.Start + 1
}

// Options parameterises the algorithms. The meaning of Threshold depends on
// the method: a channel count for Overlap, a standard deviation multiplier
// for Threshold.
type Options struct {
	WindowMs    float64
	Threshold   float64
	MinChannels int // Threshold method only
}

// Input is the data a burst algorithm may draw on.
type Input struct {
	Recording *mea.Recording
	Spikes    *spike.Result
	Burstlets [][]burstlet.Burstlet // Required by Overlap only
	Excluded  mea.ChannelSet
}

// Algorithm detects bursts. Implementations fill Start, End, Channels, Local
// and (optionally) Members; activation is computed by Detect.
type Algorithm interface {
	Method() Method
	Detect(ctx context.Context, in Input) ([]Burst, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[Method]func(Options) Algorithm{
		Overlap:   func(o Options) Algorithm { return &OverlapDetector{ChannelThreshold: o.Threshold} },
		Threshold: func(o Options) Algorithm { return &TSRDetector{K: o.Threshold, WindowMs: o.WindowMs, MinChannels: o.MinChannels} },
	}
)

// Register makes a burst algorithm available under method.
func Register(method Method, factory func(Options) Algorithm) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[method] = factory
}

// AlgorithmFor builds the algorithm registered for method.
func AlgorithmFor(method Method, opts Options) (Algorithm, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[method]
	if !ok {
		return nil, fmt.Errorf("unknown burst detection method %q", method)
	}
	return factory(opts), nil
}

// Result holds the bursts of one run with their per-channel views.
type Result struct {
	Bursts       []Burst   `json:"bursts"`
	Starts       [][]int   `json:"starts"`       // Per channel burst starts
	Ends         [][]int   `json:"ends"`         // Per channel burst ends
	Activation   []float64 `json:"activation"`   // Per channel mean activation (ms)
	Deactivation []float64 `json:"deactivation"` // Per channel mean deactivation (ms)
}

// Detect runs algo and derives the per-channel registrations and activation
// tables.
func Detect(ctx context.Context, algo Algorithm, in Input) (*Result, error) {
	if in.Spikes == nil {
		return nil, fmt.Errorf("spikes have not been detected")
	}

	bursts, err := algo.Detect(ctx, in)
	if err != nil {
		return nil, err
	}

	n := in.Recording.Channels()
	res := &Result{
		Bursts:       bursts,
		Starts:       make([][]int, n),
		Ends:         make([][]int, n),
		Activation:   make([]float64, n),
		Deactivation: make([]float64, n),
	}
	for ch := 0; ch < n; ch++ {
		res.Starts[ch] = []int{}
		res.Ends[ch] = []int{}
	}

	// A span is registered only when it starts strictly after the last span
	// registered for that channel.
	lastStart := make([]int, n)
	for ch := range lastStart {
		lastStart[ch] = -1
	}
	for _, b := range bursts {
		for _, s := range b.Local {
			if s.Start > lastStart[s.Channel] {
				res.Starts[s.Channel] = append(res.Starts[s.Channel], s.Start)
				res.Ends[s.Channel] = append(res.Ends[s.Channel], s.End)
				lastStart[s.Channel] = s.Start
			}
		}
	}

	activate(in.Recording, in.Spikes, res)

	return res, nil
}

// activate fills the per-burst activation vectors and their per-channel means.
// Activation is measured from the first in-burst spike peak of each channel,
// deactivation from the end of its last in-burst spike.
func activate(rec *mea.Recording, spikes *spike.Result, res *Result) {
	period := rec.Period()
	counts := make([]int, len(res.Activation))

	for i := range res.Bursts {
		b := &res.Bursts[i]
		b.Activation = make([]float64, len(b.Channels))
		b.Deactivation = make([]float64, len(b.Channels))

		first := make([]int, len(b.Channels))
		last := make([]int, len(b.Channels))
		earliest, latest := -1, -1
		for k, ch := range b.Channels {
			train := spikes.Trains[ch]
			lo, hi := train.Between(b.Start, b.End)
			if lo == hi {
				first[k], last[k] = -1, -1
				continue
			}
			first[k], last[k] = train.Peaks[lo], train.Ends[hi-1]
			if earliest < 0 || first[k] < earliest {
				earliest = first[k]
			}
			if last[k] > latest {
				latest = last[k]
			}
		}

		for k, ch := range b.Channels {
			if first[k] < 0 {
				continue
			}
			b.Activation[k] = float64(first[k]-earliest) * period
			b.Deactivation[k] = float64(latest-last[k]) * period
			res.Activation[ch] += b.Activation[k]
			res.Deactivation[ch] += b.Deactivation[k]
			counts[ch]++
		}
	}

	for ch, c := range counts {
		if c > 0 {
			res.Activation[ch] /= float64(c)
			res.Deactivation[ch] /= float64(c)
		}
	}
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
