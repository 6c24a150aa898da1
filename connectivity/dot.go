// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package connectivity

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
)

// electrode is a graph node keyed by channel.
type electrode struct {
	channel int
	pos     Position
}

func (e electrode) ID() int64 { return int64(e.channel) }

func (e electrode) DOTID() string { return "ch" + strconv.Itoa(e.channel) }

func (e electrode) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: strconv.Itoa(e.channel)},
		// Pinned position in points for neato.
		{Key: "pos", Value: fmt.Sprintf("%q", fmt.Sprintf("%g,%g!", e.pos.X, e.pos.Y))},
	}
}

// connection is a weighted graph edge carrying its pair.
type connection struct {
	from, to electrode
	pair     Pair
}

func (c connection) From() graph.Node { return c.from }

func (c connection) To() graph.Node { return c.to }

func (c connection) ReversedEdge() graph.Edge {
	return connection{from: c.to, to: c.from, pair: c.pair}
}

func (c connection) Weight() float64 { return c.pair.C }

func (c connection) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "weight", Value: strconv.FormatFloat(c.pair.C, 'f', 3, 64)},
		{Key: "label", Value: fmt.Sprintf("%q", strconv.FormatFloat(c.pair.Tau, 'f', 2, 64)+" ms")},
	}
}

// DOT renders the filtered graph in Graphviz format.
func (g *Graph) DOT(channels int) ([]byte, error) {
	b, err := dot.Marshal(g.directed(Layout(channels)), "connectivity", "", "\t")
	if err != nil {
		return nil, fmt.Errorf("error encoding graph: %w", err)
	}
	return b, nil
}
