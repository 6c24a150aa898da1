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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ReadHeader parses an EDF/EDF+ header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	b := make([]byte, 256)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr := &Header{}
	hdr.Version = Version(strings.TrimSpace(string(b[0:8])))
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))

	startDate, err := time.Parse("02.01.06", strings.TrimSpace(string(b[168:176])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)

	if hdr.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192]))); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	if hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244]))); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	hdr.DataRecordDuration, err = time.ParseDuration(fmt.Sprintf("%ss", strings.TrimSpace(string(b[244:252]))))
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	if hdr.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256]))); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount <= 0 {
		return nil, fmt.Errorf("invalid signal count %d", hdr.SignalCount)
	}

	hdr.Signals = make([]Signal, hdr.SignalCount)

	// Signal headers are stored field by field, each field repeated for every signal.
	fields := []struct {
		width int
		set   func(sig *Signal, v string) error
	}{
		{16, func(sig *Signal, v string) error { sig.Label = v; return nil }},
		{80, func(sig *Signal, v string) error { sig.TransducerType = v; return nil }},
		{8, func(sig *Signal, v string) error { sig.PhysicalDimension = v; return nil }},
		{8, func(sig *Signal, v string) (err error) { sig.PhysicalMin, err = strconv.ParseFloat(v, 64); return }},
		{8, func(sig *Signal, v string) (err error) { sig.PhysicalMax, err = strconv.ParseFloat(v, 64); return }},
		{8, func(sig *Signal, v string) (err error) { sig.DigitalMin, err = strconv.Atoi(v); return }},
		{8, func(sig *Signal, v string) (err error) { sig.DigitalMax, err = strconv.Atoi(v); return }},
		{80, func(sig *Signal, v string) error { sig.Prefiltering = v; return nil }},
		{8, func(sig *Signal, v string) (err error) { sig.SamplesPerRecord, err = strconv.Atoi(v); return }},
		{32, func(sig *Signal, v string) error { sig.Reserved = v; return nil }},
	}

	for _, f := range fields {
		b := make([]byte, f.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			if err := f.set(&hdr.Signals[i], strings.TrimSpace(string(b))); err != nil {
				return nil, fmt.Errorf("error parsing header of signal %d: %w", i, err)
			}
		}
	}

	return hdr, nil
}

// ReadEDF reads a complete EDF/EDF+ file into a recording, converting every
// signal into volts.
func ReadEDF(r io.ReadSeeker) (*Recording, *Header, error) {
	hdr, err := ReadHeader(bufio.NewReader(r))
	if err != nil {
		return nil, nil, err
	}

	fs, err := hdr.SamplingFrequency()
	if err != nil {
		return nil, nil, err
	}
	if hdr.DataRecords < 0 {
		return nil, nil, fmt.Errorf("unknown number of data records")
	}

	type calibration struct{ gain, offset float64 }
	cal := make([]calibration, hdr.SignalCount)
	for i, sig := range hdr.Signals {
		scale, err := voltScale(sig.PhysicalDimension)
		if err != nil {
			return nil, nil, fmt.Errorf("signal %d: %w", i, err)
		}
		if sig.DigitalMax == sig.DigitalMin {
			return nil, nil, fmt.Errorf("signal %d: empty digital range", i)
		}
		gain := (sig.PhysicalMax - sig.PhysicalMin) / float64(sig.DigitalMax-sig.DigitalMin)
		cal[i] = calibration{
			gain:   gain * scale,
			offset: (sig.PhysicalMin - gain*float64(sig.DigitalMin)) * scale,
		}
	}

	if _, err := r.Seek(int64(hdr.HeaderBytes), io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("error seeking to position: %w", err)
	}

	spr := hdr.Signals[0].SamplesPerRecord
	samples := make([][]float64, hdr.SignalCount)
	for i := range samples {
		samples[i] = make([]float64, hdr.DataRecords*spr)
	}

	reader := bufio.NewReader(r)
	buf := make([]byte, 2*spr)
	for rec := 0; rec < hdr.DataRecords; rec++ {
		for i := range samples {
			if _, err := io.ReadFull(reader, buf); err != nil {
				return nil, nil, fmt.Errorf("error reading data record %d: %w", rec, err)
			}
			dst := samples[i][rec*spr : (rec+1)*spr]
			for j := range dst {
				digital := int16(binary.LittleEndian.Uint16(buf[2*j:]))
				dst[j] = cal[i].offset + float64(digital)*cal[i].gain
			}
		}
	}

	recording, err := NewRecording(samples, fs)
	if err != nil {
		return nil, nil, err
	}

	return recording, hdr, nil
}
