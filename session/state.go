// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package session

// State is the furthest pipeline stage committed for the current recording
// and parameters.
type State int

const (
	NoData State = iota
	SpikesFound
	BurstletsFound
	BurstsFound
	CharacteristicsReady
)

func (s State) String() string {
	switch s {
	case NoData:
		return "NoData"
	case SpikesFound:
		return "SpikesFound"
	case BurstletsFound:
		return "BurstletsFound"
	case BurstsFound:
		return "BurstsFound"
	case CharacteristicsReady:
		return "CharacteristicsReady"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
