// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package burst_test

import (
	"context"
	"testing"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/burstlet"
	"github.com/OpenPSG/mea/internal/synth"
	"github.com/OpenPSG/mea/spike"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyse(t *testing.T, rec *mea.Recording, excluded mea.ChannelSet) burst.Input {
	t.Helper()

	spikes, err := spike.Detect(context.Background(), rec, spike.Options{Method: spike.RMS, Coefficient: -5, Excluded: excluded}, nil)
	require.NoError(t, err)
	bls, err := burstlet.Group(context.Background(), rec, spikes, burstlet.Options{WindowMs: 100, Excluded: excluded}, nil)
	require.NoError(t, err)

	return burst.Input{Recording: rec, Spikes: spikes, Burstlets: bls, Excluded: excluded}
}

func TestOverlapDetector(t *testing.T) {
	const n = 12000

	var channels [][]float64
	for c := 0; c < 4; c++ {
		troughs := synth.Train(1000+10*c, 50, 6)
		if c < 2 {
			// Only two channels take part in the second event.
			troughs = append(troughs, synth.Train(8000+5*c, 50, 6)...)
		}
		channels = append(channels, synth.Channel(n, troughs...))
	}
	// Channel 4 mirrors channel 0 but is excluded.
	channels = append(channels, channels[0])

	rec := synth.Recording(channels...)
	in := analyse(t, rec, mea.NewChannelSet(4))

	algo, err := burst.AlgorithmFor(burst.Overlap, burst.Options{Threshold: 2})
	require.NoError(t, err)
	assert.Equal(t, burst.Overlap, algo.Method())

	res, err := burst.Detect(context.Background(), algo, in)
	require.NoError(t, err)
	require.Len(t, res.Bursts, 1)

	b := res.Bursts[0]
	assert.Equal(t, []int{0, 1, 2, 3}, b.Channels)
	assert.Equal(t, 999, b.Start)
	assert.Equal(t, 1285, b.End)
	assert.Len(t, b.Members, 4)
	assert.Greater(t, len(b.Channels), 2)

	assert.Equal(t, []int{999}, res.Starts[0])
	assert.Equal(t, []int{1255}, res.Ends[0])
	assert.Equal(t, []int{}, res.Starts[4])

	assert.InDeltaSlice(t, []float64{0, 1, 2, 3}, b.Activation, 1e-9)
	assert.InDeltaSlice(t, []float64{3, 2, 1, 0}, b.Deactivation, 1e-9)
	assert.InDeltaSlice(t, []float64{0, 1, 2, 3, 0}, res.Activation, 1e-9)
	assert.InDeltaSlice(t, []float64{3, 2, 1, 0, 0}, res.Deactivation, 1e-9)
}

func TestOverlapDetectorMergesSharedBurstlets(t *testing.T) {
	rec := synth.Recording(synth.Baseline(4000, 0), synth.Baseline(4000, 1), synth.Baseline(4000, 2))
	empty := spike.Train{Starts: []int{}, Peaks: []int{}, Ends: []int{}, Amplitudes: []float64{}}

	in := burst.Input{
		Recording: rec,
		Spikes:    &spike.Result{Trains: []spike.Train{empty, empty, empty}},
		Burstlets: [][]burstlet.Burstlet{
			{{Start: 1000, End: 3000}},
			{{Start: 1000, End: 1300}, {Start: 2500, End: 2800}},
			{{Start: 1000, End: 1300}, {Start: 2500, End: 2800}},
		},
	}

	res, err := burst.Detect(context.Background(), &burst.OverlapDetector{ChannelThreshold: 2}, in)
	require.NoError(t, err)
	require.Len(t, res.Bursts, 1)

	b := res.Bursts[0]
	assert.Equal(t, 1000, b.Start)
	assert.Equal(t, 3000, b.End)
	assert.Len(t, b.Members, 5)
	assert.Equal(t, []burst.Span{
		{Channel: 0, Start: 1000, End: 3000},
		{Channel: 1, Start: 1000, End: 2800},
		{Channel: 2, Start: 1000, End: 2800},
	}, b.Local)
}

func TestActivationUsesPeaksAndEnds(t *testing.T) {
	rec := synth.Recording(synth.Baseline(4000, 0), synth.Baseline(4000, 1))
	in := burst.Input{
		Recording: rec,
		Spikes: &spike.Result{Trains: []spike.Train{
			{Starts: []int{1190}, Peaks: []int{1200}, Ends: []int{1260}, Amplitudes: []float64{-1e-4}},
			{Starts: []int{1245}, Peaks: []int{1250}, Ends: []int{1255}, Amplitudes: []float64{-1e-4}},
		}},
		Burstlets: [][]burstlet.Burstlet{
			{{Start: 1000, End: 1300}},
			{{Start: 1000, End: 1300}},
		},
	}

	res, err := burst.Detect(context.Background(), &burst.OverlapDetector{ChannelThreshold: 1}, in)
	require.NoError(t, err)
	require.Len(t, res.Bursts, 1)

	b := res.Bursts[0]
	assert.InDeltaSlice(t, []float64{0, 5}, b.Activation, 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0.5}, b.Deactivation, 1e-9)
}

func TestOverlapDetectorRequiresBurstlets(t *testing.T) {
	rec := synth.Recording(synth.Baseline(100, 0))
	in := burst.Input{Recording: rec, Spikes: &spike.Result{Trains: make([]spike.Train, 1)}}

	_, err := burst.Detect(context.Background(), &burst.OverlapDetector{ChannelThreshold: 1}, in)
	require.Error(t, err)
}

func TestTSRDetector(t *testing.T) {
	const n = 60000

	var channels [][]float64
	for c := 0; c < 3; c++ {
		channels = append(channels, synth.Channel(n, synth.Train(20000+10*c, 40, 25)...))
	}
	channels = append(channels, synth.Channel(n, 5000, 15000, 35000, 50000))

	rec := synth.Recording(channels...)
	in := analyse(t, rec, nil)
	in.Burstlets = nil

	algo, err := burst.AlgorithmFor(burst.Threshold, burst.Options{Threshold: 2, WindowMs: 100})
	require.NoError(t, err)

	res, err := burst.Detect(context.Background(), algo, in)
	require.NoError(t, err)
	require.Len(t, res.Bursts, 1)

	b := res.Bursts[0]
	assert.Equal(t, []int{0, 1, 2}, b.Channels)
	assert.Equal(t, 20001, b.Start)
	assert.Equal(t, 21000, b.End)
	assert.Nil(t, b.Members)
	assert.InDeltaSlice(t, []float64{3, 0, 1}, b.Activation, 1e-9)

	require.Len(t, b.Local, 3)
	assert.Equal(t, burst.Span{Channel: 0, Start: 20039, End: 20965}, b.Local[0])

	// The same event is rejected when more channels are required.
	res, err = burst.Detect(context.Background(), &burst.TSRDetector{K: 2, WindowMs: 100, MinChannels: 3}, in)
	require.NoError(t, err)
	assert.Empty(t, res.Bursts)

	// And when it is narrower than the window.
	res, err = burst.Detect(context.Background(), &burst.TSRDetector{K: 2, WindowMs: 150}, in)
	require.NoError(t, err)
	assert.Empty(t, res.Bursts)
}

func TestTSRDetectorAllZero(t *testing.T) {
	rec := synth.Recording(synth.Baseline(50000, 0))
	in := analyse(t, rec, nil)
	require.Equal(t, 0, in.Spikes.Total())

	d := &burst.TSRDetector{K: 1, WindowMs: 100}
	assert.Equal(t, 0.0, d.Level(&in.Spikes.TSR))

	res, err := burst.Detect(context.Background(), d, in)
	require.NoError(t, err)
	assert.Empty(t, res.Bursts)
	assert.Equal(t, []float64{0}, res.Activation)
}

func TestAlgorithmForUnknown(t *testing.T) {
	_, err := burst.AlgorithmFor("Spectral", burst.Options{})
	require.Error(t, err)
}

func TestDetectCancelled(t *testing.T) {
	rec := synth.Recording(synth.Channel(10000, synth.Train(1000, 50, 6)...))
	in := analyse(t, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := burst.Detect(ctx, &burst.OverlapDetector{ChannelThreshold: 0}, in)
	require.ErrorIs(t, err, context.Canceled)
}
