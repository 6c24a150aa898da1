// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package mea

import (
	"fmt"
	"strings"
	"time"
)

// Version of the EDF/EDF+ container standard.
type Version string

const (
	// Version0 is the only version defined by the EDF/EDF+ standard.
	Version0 Version = "0"
)

// Header is the fixed-width EDF/EDF+ file header describing an MEA export.
type Header struct {
	Version            Version       // Usually "0"
	PatientID          string        // Culture or preparation identifier
	RecordingID        string        // Identification of the recording session
	StartTime          time.Time     // Start date of the recording
	HeaderBytes        int           // Number of bytes in the header
	DataRecordDuration time.Duration // Duration of a single data record
	DataRecords        int           // Number of data records, -1 if unknown
	SignalCount        int           // Number of electrodes
	Signals            []Signal      // One entry per electrode
}

// Signal describes one electrode channel of the EDF/EDF+ file.
type Signal struct {
	Label             string  // Electrode label (e.g., "47")
	TransducerType    string  // Type of electrode
	PhysicalDimension string  // Unit of the physical values (V, mV, uV, nV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record
	Reserved          string  // Reserved for future use
}

// SamplingFrequency derives the integer sampling frequency of the recording,
// failing when the electrodes were sampled at different rates.
func (h *Header) SamplingFrequency() (int, error) {
	if len(h.Signals) == 0 {
		return 0, fmt.Errorf("no signals in header")
	}
	if h.DataRecordDuration <= 0 {
		return 0, fmt.Errorf("invalid data record duration %v", h.DataRecordDuration)
	}

	spr := h.Signals[0].SamplesPerRecord
	for i, sig := range h.Signals {
		if sig.SamplesPerRecord != spr {
			return 0, fmt.Errorf("signal %d has %d samples per record, expected %d", i, sig.SamplesPerRecord, spr)
		}
	}

	num := int64(spr) * int64(time.Second)
	if num%int64(h.DataRecordDuration) != 0 {
		return 0, fmt.Errorf("non-integer sampling frequency (%d samples per %v)", spr, h.DataRecordDuration)
	}

	return int(num / int64(h.DataRecordDuration)), nil
}

// voltScale returns the factor converting a physical dimension into volts.
func voltScale(dim string) (float64, error) {
	switch strings.TrimSpace(dim) {
	case "", "V":
		return 1, nil
	case "mV":
		return 1e-3, nil
	case "uV", "µV", "μV":
		return 1e-6, nil
	case "nV":
		return 1e-9, nil
	default:
		return 0, fmt.Errorf("unsupported physical dimension %q", dim)
	}
}
