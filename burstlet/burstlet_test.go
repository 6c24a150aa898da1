// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package burstlet_test

import (
	"context"
	"testing"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burstlet"
	"github.com/OpenPSG/mea/internal/synth"
	"github.com/OpenPSG/mea/spike"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detect(t *testing.T, rec *mea.Recording) *spike.Result {
	t.Helper()
	res, err := spike.Detect(context.Background(), rec, spike.Options{Method: spike.RMS, Coefficient: -5}, nil)
	require.NoError(t, err)
	return res
}

func TestGroupSixSpikes(t *testing.T) {
	// Six troughs 5 ms apart.
	troughs := synth.Train(1000, 50, 6)
	rec := synth.Recording(synth.Channel(10000, troughs...))
	spikes := detect(t, rec)
	require.Equal(t, 6, spikes.Trains[0].Len())

	got, err := burstlet.Group(context.Background(), rec, spikes, burstlet.Options{WindowMs: 100}, nil)
	require.NoError(t, err)
	require.Len(t, got[0], 1)

	b := got[0][0]
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, b.Spikes)
	assert.Equal(t, 999, b.Start)
	assert.Equal(t, 1250+5, b.End)
	assert.InDelta(t, 80e-6, b.Amplitude, 1e-12)

	// A 1 ms window splits the train into single spikes.
	got, err = burstlet.Group(context.Background(), rec, spikes, burstlet.Options{WindowMs: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, got[0])
	assert.NotNil(t, got[0])
}

func TestGroupMinimumSize(t *testing.T) {
	troughs := append(synth.Train(1000, 50, 4), synth.Train(5000, 60, 7)...)
	troughs = append(troughs, synth.Train(12000, 40, 5)...)
	rec := synth.Recording(synth.Channel(20000, troughs...))
	spikes := detect(t, rec)
	require.Equal(t, 16, spikes.Trains[0].Len())

	got, err := burstlet.Group(context.Background(), rec, spikes, burstlet.Options{WindowMs: 10}, nil)
	require.NoError(t, err)
	require.Len(t, got[0], 2, "the four spike run is discarded")

	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10}, got[0][0].Spikes)
	assert.Equal(t, []int{11, 12, 13, 14, 15}, got[0][1].Spikes, "the trailing run is emitted")

	for _, b := range got[0] {
		assert.GreaterOrEqual(t, len(b.Spikes), burstlet.MinSpikes)
		assert.Less(t, b.Start, b.End)
	}
}

func TestGroupExcludedAndEmpty(t *testing.T) {
	x := synth.Channel(10000, synth.Train(1000, 50, 6)...)
	rec := synth.Recording(x, x, synth.Baseline(10000, 0))
	spikes := detect(t, rec)

	got, err := burstlet.Group(context.Background(), rec, spikes, burstlet.Options{
		WindowMs: 100,
		Excluded: mea.NewChannelSet(1),
	}, nil)
	require.NoError(t, err)

	assert.Len(t, got[0], 1)
	assert.Equal(t, []burstlet.Burstlet{}, got[1])
	assert.Equal(t, []burstlet.Burstlet{}, got[2])
}

func TestGroupRequiresSpikes(t *testing.T) {
	rec := synth.Recording(synth.Baseline(100, 0))
	_, err := burstlet.Group(context.Background(), rec, nil, burstlet.Options{WindowMs: 100}, nil)
	require.Error(t, err)
}

func TestAmplitudeExcludesLastPeak(t *testing.T) {
	x := make([]float64, 4000)
	x[1100] = 50e-6
	x[1250] = -200e-6
	rec := synth.Recording(x)

	peaks := synth.Train(1000, 50, 6)
	train := spike.Train{Peaks: peaks, Amplitudes: make([]float64, len(peaks))}
	for _, p := range peaks {
		train.Starts = append(train.Starts, p-1)
		train.Ends = append(train.Ends, p+5)
	}

	got, err := burstlet.Group(context.Background(), rec, &spike.Result{Trains: []spike.Train{train}}, burstlet.Options{WindowMs: 100}, nil)
	require.NoError(t, err)
	require.Len(t, got[0], 1)
	assert.InDelta(t, 50e-6, got[0][0].Amplitude, 1e-12)
}
