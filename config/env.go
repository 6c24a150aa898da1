// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/spike"
	"github.com/joho/godotenv"
)

// loadDotEnv loads .env into the environment. A missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env: %w", err)
	}
	return nil
}

// FromEnv returns the default parameters overridden by MEA_* environment
// variables. A .env file in the working directory is loaded first if present.
func FromEnv() (Params, error) {
	if err := loadDotEnv(); err != nil {
		return Params{}, err
	}

	p := Default()
	p.SpikeMethod = spike.Method(getEnv("MEA_SPIKE_METHOD", string(p.SpikeMethod)))
	p.SpikeCoefficient = getEnvFloat("MEA_SPIKE_COEFFICIENT", p.SpikeCoefficient)
	p.BurstMethod = burst.Method(getEnv("MEA_BURST_METHOD", string(p.BurstMethod)))
	p.BurstWindowMs = getEnvInt("MEA_BURST_WINDOW_MS", p.BurstWindowMs)
	p.BurstChannelThreshold = getEnvFloat("MEA_BURST_CHANNEL_THRESHOLD", p.BurstChannelThreshold)
	p.TSRMinChannels = getEnvInt("MEA_TSR_MIN_CHANNELS", p.TSRMinChannels)
	p.WindowStartMin = getEnvInt("MEA_WINDOW_START_MIN", p.WindowStartMin)
	p.WindowEndMin = getEnvInt("MEA_WINDOW_END_MIN", p.WindowEndMin)
	p.GraphDeltaMs = getEnvFloat("MEA_GRAPH_DELTA_MS", p.GraphDeltaMs)
	p.GraphNumFrames = getEnvInt("MEA_GRAPH_NUM_FRAMES", p.GraphNumFrames)
	p.GraphCutoffPct = getEnvInt("MEA_GRAPH_CUTOFF_PCT", p.GraphCutoffPct)
	p.BurstID = getEnvInt("MEA_BURST_ID", p.BurstID)

	if value := os.Getenv("MEA_EXCLUDED_CHANNELS"); value != "" {
		channels, err := ParseChannels(value)
		if err != nil {
			return p, fmt.Errorf("invalid MEA_EXCLUDED_CHANNELS: %w", err)
		}
		p.ExcludedChannels = channels
	}

	if value := os.Getenv("MEA_MAX_RECORDING_SIZE"); value != "" {
		if err := p.MaxRecordingSize.UnmarshalText([]byte(value)); err != nil {
			return p, fmt.Errorf("invalid MEA_MAX_RECORDING_SIZE: %w", err)
		}
	}

	return p, nil
}

// ParseChannels parses a comma separated list of channel indices.
func ParseChannels(s string) ([]int, error) {
	channels := []int{}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		ch, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %w", field, err)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
