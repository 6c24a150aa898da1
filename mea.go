// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package mea holds the multi-electrode-array recording model shared by every
// analysis stage, together with the EDF/EDF+ loader used to obtain one.
package mea

import (
	"fmt"
	"math"
)

// Recording is an immutable multichannel extracellular voltage recording.
type Recording struct {
	Samples [][]float64 // Samples in volts, indexed [channel][sample]
	Time    []float64   // Timestamp of each sample in seconds
	FS      int         // Sampling frequency in Hz
	Offset  float64     // Absolute time of sample 0 in seconds (non-zero for windows)
}

// NewRecording builds a recording from channel-major samples, generating a
// uniform time vector from the sampling frequency.
func NewRecording(samples [][]float64, fs int) (*Recording, error) {
	if fs <= 0 {
		return nil, &InvalidParameterError{Param: "fs", Value: fs, Reason: "must be positive"}
	}

	n := 0
	if len(samples) > 0 {
		n = len(samples[0])
	}
	for ch, s := range samples {
		if len(s) != n {
			return nil, fmt.Errorf("channel %d has %d samples, expected %d", ch, len(s), n)
		}
	}

	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i) / float64(fs)
	}

	return &Recording{Samples: samples, Time: t, FS: fs}, nil
}

// Channels returns the number of channels in the recording.
func (r *Recording) Channels() int {
	return len(r.Samples)
}

// Len returns the number of samples per channel.
func (r *Recording) Len() int {
	return len(r.Time)
}

// Period returns the sampling period in milliseconds.
func (r *Recording) Period() float64 {
	return 1000 / float64(r.FS)
}

// Duration returns the recording duration in seconds.
func (r *Recording) Duration() float64 {
	return float64(r.Len()) / float64(r.FS)
}

// MsToSamples converts a duration in milliseconds into a sample count at the
// recording's sampling frequency, never returning less than one sample.
func (r *Recording) MsToSamples(ms float64) int {
	n := int(math.Round(ms * float64(r.FS) / 1000))
	if n < 1 {
		return 1
	}
	return n
}

// SampleTime returns the absolute time of a (window relative) sample index.
func (r *Recording) SampleTime(i int) float64 {
	return r.Offset + float64(i)/float64(r.FS)
}

// Window returns a view of the recording restricted to [startMin, endMin)
// minutes. An endMin of zero (or one past the end) extends to the end of the
// recording. The returned samples share storage with the receiver.
func (r *Recording) Window(startMin, endMin int) (*Recording, error) {
	if startMin < 0 {
		return nil, &InvalidParameterError{Param: "window_start_min", Value: startMin, Reason: "must not be negative"}
	}
	if endMin != 0 && endMin <= startMin {
		return nil, &InvalidParameterError{Param: "window_end_min", Value: endMin, Reason: "must be after window_start_min"}
	}

	n := r.Len()
	start := startMin * 60 * r.FS
	end := n
	if endMin != 0 && endMin*60*r.FS < n {
		end = endMin * 60 * r.FS
	}
	if start >= n && n > 0 {
		return nil, &InvalidParameterError{Param: "window_start_min", Value: startMin, Reason: "starts after the end of the recording"}
	}
	if start == 0 && end == n {
		return r, nil
	}

	w := &Recording{
		Samples: make([][]float64, len(r.Samples)),
		Time:    r.Time[start:end],
		FS:      r.FS,
		Offset:  r.Offset + float64(start)/float64(r.FS),
	}
	for ch := range r.Samples {
		w.Samples[ch] = r.Samples[ch][start:end]
	}

	return w, nil
}

// Validate checks the structural invariants of the recording.
func (r *Recording) Validate() error {
	if r.FS <= 0 {
		return fmt.Errorf("invalid sampling frequency %d", r.FS)
	}
	for ch, s := range r.Samples {
		if len(s) != len(r.Time) {
			return fmt.Errorf("channel %d has %d samples, time vector has %d", ch, len(s), len(r.Time))
		}
	}
	for i := 1; i < len(r.Time); i++ {
		if r.Time[i] <= r.Time[i-1] {
			return fmt.Errorf("time vector not strictly increasing at sample %d", i)
		}
	}
	return nil
}

// SizeBytes returns the in-memory size of the sample matrix.
func (r *Recording) SizeBytes() uint64 {
	return uint64(len(r.Samples)) * uint64(r.Len()) * 8
}
