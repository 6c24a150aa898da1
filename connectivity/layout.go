// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package connectivity

import "math"

// Pitch is the electrode spacing in micrometres.
const Pitch = 150.0

// Position is the physical location of an electrode in micrometres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Layout returns the electrode positions of an n channel array, indexed by
// channel. 60 channel arrays are an 8x8 grid without its corners, 64 channel
// arrays a dense 8x8 grid. Other counts are laid out on the smallest square
// grid that holds them.
func Layout(n int) []Position {
	if n <= 0 {
		return []Position{}
	}

	side := int(math.Ceil(math.Sqrt(float64(n))))
	corners := false
	if n == 60 {
		side, corners = 8, true
	}

	pos := make([]Position, 0, n)
	for row := 0; row < side && len(pos) < n; row++ {
		for col := 0; col < side && len(pos) < n; col++ {
			if corners && (row == 0 || row == side-1) && (col == 0 || col == side-1) {
				continue
			}
			pos = append(pos, Position{X: float64(col) * Pitch, Y: float64(row) * Pitch})
		}
	}

	return pos
}
