// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config holds the analysis parameter surface.
package config

import (
	"fmt"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/burstlet"
	"github.com/OpenPSG/mea/connectivity"
	"github.com/OpenPSG/mea/spike"
	"github.com/c2h5oh/datasize"
)

// Params is the full set of analysis parameters.
type Params struct {
	SpikeMethod           spike.Method      `json:"spike_method"`
	SpikeCoefficient      float64           `json:"spike_coefficient"`
	BurstMethod           burst.Method      `json:"burst_method"`
	BurstWindowMs         int               `json:"burst_window_ms"`
	BurstChannelThreshold float64           `json:"burst_channel_threshold"` // Channel count (Burstlet) or std multiplier (TSR)
	TSRMinChannels        int               `json:"tsr_min_channels"`
	WindowStartMin        int               `json:"window_start_min"`
	WindowEndMin          int               `json:"window_end_min"` // 0 extends to the end
	ExcludedChannels      []int             `json:"excluded_channels"`
	GraphDeltaMs          float64           `json:"graph_delta_ms"`
	GraphNumFrames        int               `json:"graph_num_frames"`
	GraphCutoffPct        int               `json:"graph_cutoff_pct"`
	BurstID               int               `json:"burst_id"` // Negative selects the longest burst
	MaxRecordingSize      datasize.ByteSize `json:"max_recording_size"`
}

// Default returns the default analysis parameters.
func Default() Params {
	graph := connectivity.DefaultOptions()
	return Params{
		SpikeMethod:           spike.Median,
		SpikeCoefficient:      -5,
		BurstMethod:           burst.Overlap,
		BurstWindowMs:         100,
		BurstChannelThreshold: 5,
		ExcludedChannels:      []int{},
		GraphDeltaMs:          graph.DeltaMs,
		GraphNumFrames:        graph.NumFrames,
		GraphCutoffPct:        int(graph.CutoffPct),
		BurstID:               -1,
		MaxRecordingSize:      2 * datasize.GB,
	}
}

// Validate checks the parameters against a recording with the given number
// of channels.
func (p Params) Validate(channels int) error {
	if _, err := spike.EstimatorFor(p.SpikeMethod); err != nil {
		return &mea.InvalidParameterError{Param: "spike_method", Value: p.SpikeMethod, Reason: err.Error()}
	}
	if p.SpikeCoefficient == 0 {
		return &mea.InvalidParameterError{Param: "spike_coefficient", Value: p.SpikeCoefficient, Reason: "must not be zero"}
	}
	if _, err := burst.AlgorithmFor(p.BurstMethod, p.BurstOptions()); err != nil {
		return &mea.InvalidParameterError{Param: "burst_method", Value: p.BurstMethod, Reason: err.Error()}
	}
	if p.BurstWindowMs <= 0 {
		return &mea.InvalidParameterError{Param: "burst_window_ms", Value: p.BurstWindowMs, Reason: "must be positive"}
	}
	if p.BurstChannelThreshold < 0 {
		return &mea.InvalidParameterError{Param: "burst_channel_threshold", Value: p.BurstChannelThreshold, Reason: "must not be negative"}
	}
	if p.TSRMinChannels < 0 {
		return &mea.InvalidParameterError{Param: "tsr_min_channels", Value: p.TSRMinChannels, Reason: "must not be negative"}
	}
	if p.WindowStartMin < 0 {
		return &mea.InvalidParameterError{Param: "window_start_min", Value: p.WindowStartMin, Reason: "must not be negative"}
	}
	if p.WindowEndMin != 0 && p.WindowEndMin <= p.WindowStartMin {
		return &mea.InvalidParameterError{Param: "window_end_min", Value: p.WindowEndMin, Reason: "must be after window_start_min"}
	}
	for _, ch := range p.ExcludedChannels {
		if ch < 0 || ch >= channels {
			return &mea.InvalidParameterError{Param: "excluded_channels", Value: ch, Reason: fmt.Sprintf("recording has %d channels", channels)}
		}
	}
	if p.GraphDeltaMs <= 0 {
		return &mea.InvalidParameterError{Param: "graph_delta_ms", Value: p.GraphDeltaMs, Reason: "must be positive"}
	}
	if p.GraphNumFrames < 1 {
		return &mea.InvalidParameterError{Param: "graph_num_frames", Value: p.GraphNumFrames, Reason: "must be at least 1"}
	}
	if p.GraphCutoffPct < 0 || p.GraphCutoffPct > 100 {
		return &mea.InvalidParameterError{Param: "graph_cutoff_pct", Value: p.GraphCutoffPct, Reason: "must be within 0..100"}
	}
	return nil
}

// Excluded returns the excluded channels as a set.
func (p Params) Excluded() mea.ChannelSet {
	return mea.NewChannelSet(p.ExcludedChannels...)
}

func (p Params) SpikeOptions() spike.Options {
	return spike.Options{Method: p.SpikeMethod, Coefficient: p.SpikeCoefficient, Excluded: p.Excluded()}
}

func (p Params) BurstletOptions() burstlet.Options {
	return burstlet.Options{WindowMs: float64(p.BurstWindowMs), Excluded: p.Excluded()}
}

func (p Params) BurstOptions() burst.Options {
	return burst.Options{WindowMs: float64(p.BurstWindowMs), Threshold: p.BurstChannelThreshold, MinChannels: p.TSRMinChannels}
}

func (p Params) GraphOptions() connectivity.Options {
	return connectivity.Options{DeltaMs: p.GraphDeltaMs, NumFrames: p.GraphNumFrames, CutoffPct: float64(p.GraphCutoffPct)}
}

// Loader returns an EDF loader honouring MaxRecordingSize.
func (p Params) Loader() mea.Loader {
	return mea.EDFLoader{MaxSize: p.MaxRecordingSize}
}
