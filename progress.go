// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package mea

import (
	"sort"
	"sync"
)

// ProgressSink receives coarse completion percentages (0..100).
type ProgressSink interface {
	Report(percent int)
}

// ProgressFunc adapts a function into a ProgressSink.
type ProgressFunc func(percent int)

func (f ProgressFunc) Report(percent int) {
	f(percent)
}

type discard struct{}

func (discard) Report(int) {}

// Discard is a ProgressSink that drops every report.
var Discard ProgressSink = discard{}

// Monotonic wraps a sink so that it only ever sees values in 0..100 that are
// strictly greater than the last forwarded value.
func Monotonic(sink ProgressSink) ProgressSink {
	if sink == nil {
		sink = Discard
	}
	return &monotonic{sink: sink, last: -1}
}

type monotonic struct {
	mu   sync.Mutex
	sink ProgressSink
	last int
}

func (m *monotonic) Report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if percent <= m.last {
		return
	}
	m.last = percent
	m.sink.Report(percent)
}

// Scaled maps a stage's own 0..100 progress into the [lo, hi] span of sink.
func Scaled(sink ProgressSink, lo, hi int) ProgressSink {
	if sink == nil {
		return Discard
	}
	return ProgressFunc(func(percent int) {
		sink.Report(lo + (hi-lo)*percent/100)
	})
}

// ChannelSet is a set of channel indices, used for channel exclusion.
type ChannelSet map[int]struct{}

// NewChannelSet returns a set holding the given channels.
func NewChannelSet(channels ...int) ChannelSet {
	s := make(ChannelSet, len(channels))
	for _, ch := range channels {
		s[ch] = struct{}{}
	}
	return s
}

// Has reports whether ch is in the set. A nil set is empty.
func (s ChannelSet) Has(ch int) bool {
	_, ok := s[ch]
	return ok
}

// Sorted returns the channels in ascending order.
func (s ChannelSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for ch := range s {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}
