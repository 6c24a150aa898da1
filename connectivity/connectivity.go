// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package connectivity estimates directed functional connectivity between
// electrodes from delayed spike coincidences within one burst.
package connectivity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/internal/stats"
	"github.com/OpenPSG/mea/spike"
	"gonum.org/v1/gonum/graph/simple"
)

// MinSpikes is the in-burst spike count a channel must exceed to be paired.
const MinSpikes = 4

// Options parameterises graph construction.
type Options struct {
	DeltaMs   float64 // Lag bucket width
	NumFrames int     // Number of lag buckets
	CutoffPct float64 // Percentage of the strongest pairs to keep
}

// DefaultOptions returns the usual graph parameters.
func DefaultOptions() Options {
	return Options{DeltaMs: 0.05, NumFrames: 50, CutoffPct: 5}
}

// Pair is the delayed correlation from one channel's spikes to another's.
type Pair struct {
	From       int     `json:"from"`
	To         int     `json:"to"`
	FromSpikes int     `json:"from_spikes"`
	ToSpikes   int     `json:"to_spikes"`
	Delayed    int     `json:"delayed"` // Spikes of To accepted as delayed
	C          float64 `json:"c"`
	Tau        float64 `json:"tau"` // Winning lag in ms
}

// Node is an electrode of the filtered graph.
type Node struct {
	Channel  int      `json:"channel"`
	Position Position `json:"position"`
	Weight   int      `json:"weight"` // In plus out degree
}

// Hub ranks an electrode by its share of edge endpoints.
type Hub struct {
	Channel     int     `json:"channel"`
	Connections int     `json:"connections"`
	Coefficient float64 `json:"coefficient"`
}

// Graph is the connectivity graph of one burst.
type Graph struct {
	Burst      int     `json:"burst"`
	Percentile float64 `json:"percentile"`
	Pairs      []Pair  `json:"pairs"` // Every pair with C > 0
	Nodes      []Node  `json:"nodes"`
	Edges      []Pair  `json:"edges"` // Pairs with C above Percentile
	Hubs       []Hub   `json:"hubs"`
}

// SelectBurst returns the index of the burst to analyse. A negative id picks
// the longest burst, the first one on ties.
func SelectBurst(bursts []burst.Burst, id int) (int, error) {
	if len(bursts) == 0 {
		return 0, fmt.Errorf("no bursts detected")
	}
	if id >= len(bursts) {
		return 0, &mea.InvalidParameterError{Param: "burst_id", Value: id, Reason: fmt.Sprintf("only %d bursts detected", len(bursts))}
	}
	if id >= 0 {
		return id, nil
	}

	best := 0
	for i, b := range bursts {
		if b.Len() > bursts[best].Len() {
			best = i
		}
	}
	return best, nil
}

// Build computes the connectivity graph of burst b.
func Build(ctx context.Context, rec *mea.Recording, spikes *spike.Result, b burst.Burst, opts Options) (*Graph, error) {
	if opts.DeltaMs <= 0 {
		return nil, &mea.InvalidParameterError{Param: "graph_delta_ms", Value: opts.DeltaMs, Reason: "must be positive"}
	}
	if opts.NumFrames < 1 {
		return nil, &mea.InvalidParameterError{Param: "graph_num_frames", Value: opts.NumFrames, Reason: "must be at least 1"}
	}
	if opts.CutoffPct < 0 || opts.CutoffPct > 100 {
		return nil, &mea.InvalidParameterError{Param: "graph_cutoff_pct", Value: opts.CutoffPct, Reason: "must be within 0..100"}
	}

	period := rec.Period()
	frame := 1
	if period < opts.DeltaMs {
		frame = int(math.Floor(opts.DeltaMs / period))
	}

	windowed := make(map[int][]int, len(b.Channels))
	for _, ch := range b.Channels {
		train := spikes.Trains[ch]
		lo, hi := train.Between(b.Start, b.End)
		windowed[ch] = train.Peaks[lo:hi]
	}

	g := &Graph{Pairs: []Pair{}}
	for _, i := range b.Channels {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("graph construction interrupted: %w", err)
		}
		si := windowed[i]
		if len(si) <= MinSpikes {
			continue
		}

		for _, j := range b.Channels {
			sj := windowed[j]
			if i == j || len(sj) <= MinSpikes {
				continue
			}

			best, delayed := correlate(si, sj, frame, opts.NumFrames)
			if delayed == 0 {
				continue
			}
			g.Pairs = append(g.Pairs, Pair{
				From:       i,
				To:         j,
				FromSpikes: len(si),
				ToSpikes:   len(sj),
				Delayed:    delayed,
				C:          float64(delayed) / float64(len(sj)),
				Tau:        float64(best*frame) * period,
			})
		}
	}

	g.filter(opts.CutoffPct)
	g.rank(Layout(rec.Channels()))

	return g, nil
}

// correlate buckets the lags from every spike of si to the not yet matched
// spikes of sj, returning the winning bucket and the cumulative match count
// up to and including it.
func correlate(si, sj []int, frame, frames int) (best, delayed int) {
	counts := make([]int, frames+1)
	matched := make([]bool, len(sj))

	for _, s1 := range si {
		for k, s2 := range sj {
			if matched[k] {
				continue
			}
			d := s2 - s1
			if d <= 0 {
				continue
			}
			if bucket := (d + frame - 1) / frame; bucket <= frames {
				counts[bucket]++
				matched[k] = true
			}
		}
	}

	best = 1
	for k := 2; k <= frames; k++ {
		if counts[k] > counts[best] {
			best = k
		}
	}
	for k := 1; k <= best; k++ {
		delayed += counts[k]
	}

	return best, delayed
}

// filter keeps the pairs strictly above the (100-cutoff)th percentile.
func (g *Graph) filter(cutoff float64) {
	g.Edges = []Pair{}
	if len(g.Pairs) == 0 {
		return
	}

	cs := make([]float64, len(g.Pairs))
	for k, p := range g.Pairs {
		cs[k] = p.C
	}
	g.Percentile = stats.Percentile(cs, 100-cutoff)

	for _, p := range g.Pairs {
		if p.C > g.Percentile {
			g.Edges = append(g.Edges, p)
		}
	}
	sort.SliceStable(g.Edges, func(a, b int) bool {
		return g.Edges[a].C > g.Edges[b].C
	})
}

// rank derives the nodes and hub table from the filtered edges.
func (g *Graph) rank(layout []Position) {
	dg := g.directed(layout)

	g.Nodes = []Node{}
	g.Hubs = []Hub{}
	nodes := dg.Nodes()
	for nodes.Next() {
		n := nodes.Node().(electrode)
		degree := dg.From(n.ID()).Len() + dg.To(n.ID()).Len()
		g.Nodes = append(g.Nodes, Node{Channel: n.channel, Position: n.pos, Weight: degree})
		g.Hubs = append(g.Hubs, Hub{
			Channel:     n.channel,
			Connections: degree,
			Coefficient: float64(degree) / float64(2*len(g.Edges)),
		})
	}

	sort.Slice(g.Nodes, func(a, b int) bool {
		return g.Nodes[a].Channel < g.Nodes[b].Channel
	})
	sort.Slice(g.Hubs, func(a, b int) bool {
		if g.Hubs[a].Connections != g.Hubs[b].Connections {
			return g.Hubs[a].Connections > g.Hubs[b].Connections
		}
		return g.Hubs[a].Channel < g.Hubs[b].Channel
	})
}

// directed returns the filtered edges as a gonum weighted directed graph.
func (g *Graph) directed(layout []Position) *simple.WeightedDirectedGraph {
	dg := simple.NewWeightedDirectedGraph(0, 0)

	node := func(ch int) electrode {
		if n := dg.Node(int64(ch)); n != nil {
			return n.(electrode)
		}
		e := electrode{channel: ch}
		if ch < len(layout) {
			e.pos = layout[ch]
		}
		dg.AddNode(e)
		return e
	}

	for _, p := range g.Edges {
		dg.SetWeightedEdge(connection{from: node(p.From), to: node(p.To), pair: p})
	}

	return dg
}
