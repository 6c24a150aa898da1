// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/config"
	"github.com/OpenPSG/mea/spike"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	p := config.Default()
	require.NoError(t, p.Validate(60))

	assert.Equal(t, spike.Median, p.SpikeMethod)
	assert.Equal(t, burst.Overlap, p.BurstMethod)
	assert.Equal(t, -1, p.BurstID)
	assert.Equal(t, 2*datasize.GB, p.MaxRecordingSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Params)
		param  string
	}{
		{"unknown spike method", func(p *config.Params) { p.SpikeMethod = "MAD" }, "spike_method"},
		{"zero coefficient", func(p *config.Params) { p.SpikeCoefficient = 0 }, "spike_coefficient"},
		{"unknown burst method", func(p *config.Params) { p.BurstMethod = "Spectral" }, "burst_method"},
		{"zero window", func(p *config.Params) { p.BurstWindowMs = 0 }, "burst_window_ms"},
		{"negative threshold", func(p *config.Params) { p.BurstChannelThreshold = -1 }, "burst_channel_threshold"},
		{"end before start", func(p *config.Params) { p.WindowStartMin, p.WindowEndMin = 5, 5 }, "window_end_min"},
		{"negative start", func(p *config.Params) { p.WindowStartMin = -1 }, "window_start_min"},
		{"channel out of range", func(p *config.Params) { p.ExcludedChannels = []int{3, 60} }, "excluded_channels"},
		{"zero delta", func(p *config.Params) { p.GraphDeltaMs = 0 }, "graph_delta_ms"},
		{"no frames", func(p *config.Params) { p.GraphNumFrames = 0 }, "graph_num_frames"},
		{"cutoff above 100", func(p *config.Params) { p.GraphCutoffPct = 101 }, "graph_cutoff_pct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.Default()
			tt.modify(&p)

			err := p.Validate(60)
			var invalid *mea.InvalidParameterError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tt.param, invalid.Param)
		})
	}
}

func TestOptions(t *testing.T) {
	p := config.Default()
	p.BurstMethod = burst.Threshold
	p.BurstChannelThreshold = 3
	p.TSRMinChannels = 2
	p.ExcludedChannels = []int{4, 1}

	assert.Equal(t, burst.Options{WindowMs: 100, Threshold: 3, MinChannels: 2}, p.BurstOptions())
	assert.True(t, p.SpikeOptions().Excluded.Has(4))
	assert.Equal(t, []int{1, 4}, p.BurstletOptions().Excluded.Sorted())
	assert.Equal(t, 5.0, p.GraphOptions().CutoffPct)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MEA_SPIKE_METHOD", "RMS")
	t.Setenv("MEA_SPIKE_COEFFICIENT", "-4.5")
	t.Setenv("MEA_BURST_METHOD", "TSR")
	t.Setenv("MEA_BURST_WINDOW_MS", "not a number")
	t.Setenv("MEA_EXCLUDED_CHANNELS", "1, 7,15")
	t.Setenv("MEA_MAX_RECORDING_SIZE", "512MB")

	p, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, spike.RMS, p.SpikeMethod)
	assert.Equal(t, -4.5, p.SpikeCoefficient)
	assert.Equal(t, burst.Threshold, p.BurstMethod)
	assert.Equal(t, 100, p.BurstWindowMs, "unparsable values keep the default")
	assert.Equal(t, []int{1, 7, 15}, p.ExcludedChannels)
	assert.Equal(t, 512*datasize.MB, p.MaxRecordingSize)
}

func TestFromEnvInvalidChannels(t *testing.T) {
	t.Setenv("MEA_EXCLUDED_CHANNELS", "1,x")

	_, err := config.FromEnv()
	require.Error(t, err)
}

func TestNewKafkaConfig(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker:9093")
	t.Setenv("KAFKA_LINGER_MS", "25")

	cfg, err := config.NewKafkaConfig()
	require.NoError(t, err)
	assert.Equal(t, "broker:9093", cfg.BootstrapServers)
	assert.Equal(t, 25, cfg.LingerMS)
	assert.Equal(t, "mea-analysis-results", cfg.Topic)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestMalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BAD-KEY=1\n"), 0o600))
	chdir(t, dir)

	_, err := config.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env")

	_, err = config.NewKafkaConfig()
	require.Error(t, err)
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	chdir(t, t.TempDir())

	p, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, config.Default().SpikeMethod, p.SpikeMethod)

	_, err = config.NewKafkaConfig()
	require.NoError(t, err)
}
