// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package burst

import "sort"

// Interval is a half-open sample range [Start, End) tagged with the burstlet
// it was built from.
type Interval struct {
	Start    int
	End      int
	Channel  int
	Burstlet int
}

// IntervalTree is a static augmented interval tree. Intervals are kept sorted
// by start in an implicit balanced tree where every node records the largest
// end in its subtree.
type IntervalTree struct {
	ivs    []Interval
	maxEnd []int
}

// NewIntervalTree builds a tree over a copy of ivs.
func NewIntervalTree(ivs []Interval) *IntervalTree {
	t := &IntervalTree{
		ivs:    append([]Interval(nil), ivs...),
		maxEnd: make([]int, len(ivs)),
	}
	sort.Slice(t.ivs, func(i, j int) bool {
		a, b := t.ivs[i], t.ivs[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Burstlet < b.Burstlet
	})
	t.build(0, len(t.ivs))
	return t
}

// Len returns the number of intervals in the tree.
func (t *IntervalTree) Len() int {
	return len(t.ivs)
}

func (t *IntervalTree) build(lo, hi int) int {
	if lo >= hi {
		return -1
	}
	mid := int(uint(lo+hi) >> 1)
	m := t.ivs[mid].End
	if l := t.build(lo, mid); l > m {
		m = l
	}
	if r := t.build(mid+1, hi); r > m {
		m = r
	}
	t.maxEnd[mid] = m
	return m
}

// Overlapping returns the intervals intersecting [start, end), ordered by
// start.
func (t *IntervalTree) Overlapping(start, end int) []Interval {
	var out []Interval
	t.query(0, len(t.ivs), start, end, &out)
	return out
}

func (t *IntervalTree) query(lo, hi, start, end int, out *[]Interval) {
	if lo >= hi {
		return
	}
	mid := int(uint(lo+hi) >> 1)
	if t.maxEnd[mid] <= start {
		return
	}

	t.query(lo, mid, start, end, out)

	iv := t.ivs[mid]
	if iv.Start >= end {
		return
	}
	if iv.End > start {
		*out = append(*out, iv)
	}

	t.query(mid+1, hi, start, end, out)
}
