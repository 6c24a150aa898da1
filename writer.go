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
	"math"
	"strconv"
	"time"
)

// maxRecordBytes is the data record size recommended by the EDF standard.
const maxRecordBytes = 61440

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	hdr.DataRecords = -1 // Unknown until Close.
	hdr.SignalCount = len(hdr.Signals)

	ew := &Writer{w: w, hdr: &hdr}
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record of physical values to the EDF file.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	var totalSamples int
	for i, signal := range signals {
		if len(signal) != ew.hdr.Signals[i].SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, ew.hdr.Signals[i].SamplesPerRecord, len(signal))
		}
		totalSamples += len(signal)
	}

	if totalSamples*2 > maxRecordBytes {
		return fmt.Errorf("data record too large: %d bytes, max is %d bytes", totalSamples*2, maxRecordBytes)
	}

	if _, err := ew.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("error seeking to end: %w", err)
	}

	writer := bufio.NewWriter(ew.w)
	for i, signal := range ew.hdr.Signals {
		for _, sample := range signals[i] {
			digital := convertPhysicalToDigital(sample, signal.PhysicalMin, signal.PhysicalMax, signal.DigitalMin, signal.DigitalMax)
			if err := binary.Write(writer, binary.LittleEndian, digital); err != nil {
				return err
			}
		}
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

// WriteEDF stores a recording as an EDF file with microvolt physical values.
// The final data record is zero padded when the sample count is not a whole
// number of records.
func WriteEDF(w io.WriteSeeker, rec *Recording, recordingID string) error {
	spr, duration, err := recordLayout(rec.FS, rec.Channels())
	if err != nil {
		return err
	}

	hdr := Header{
		Version:            Version0,
		PatientID:          "X",
		RecordingID:        recordingID,
		StartTime:          time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		DataRecordDuration: duration,
		Signals:            make([]Signal, rec.Channels()),
	}

	for ch, s := range rec.Samples {
		pmin, pmax := 0.0, 0.0
		for i, v := range s {
			if i == 0 || v*1e6 < pmin {
				pmin = v * 1e6
			}
			if i == 0 || v*1e6 > pmax {
				pmax = v * 1e6
			}
		}
		hdr.Signals[ch] = Signal{
			Label:             strconv.Itoa(ch),
			TransducerType:    "MEA electrode",
			PhysicalDimension: "uV",
			PhysicalMin:       math.Floor(pmin) - 1,
			PhysicalMax:       math.Ceil(pmax) + 1,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  spr,
		}
	}

	ew, err := Create(w, hdr)
	if err != nil {
		return err
	}

	record := make([][]float64, rec.Channels())
	for i := range record {
		record[i] = make([]float64, spr)
	}

	for off := 0; off < rec.Len(); off += spr {
		for ch, s := range rec.Samples {
			for j := range record[ch] {
				record[ch][j] = 0
				if off+j < len(s) {
					record[ch][j] = s[off+j] * 1e6
				}
			}
		}
		if err := ew.WriteRecord(record); err != nil {
			return fmt.Errorf("error writing data record: %w", err)
		}
	}

	return ew.Close()
}

// recordLayout picks the longest data record duration with an exact decimal
// representation that keeps a record within the recommended size.
func recordLayout(fs, channels int) (int, time.Duration, error) {
	if fs <= 0 || channels <= 0 {
		return 0, 0, fmt.Errorf("cannot store %d channels at %d Hz", channels, fs)
	}

	durations := []time.Duration{
		time.Second, 500 * time.Millisecond, 250 * time.Millisecond, 200 * time.Millisecond,
		100 * time.Millisecond, 50 * time.Millisecond, 20 * time.Millisecond, 10 * time.Millisecond,
		5 * time.Millisecond, 2 * time.Millisecond, time.Millisecond,
	}
	for _, d := range durations {
		num := int64(fs) * int64(d)
		if num%int64(time.Second) != 0 {
			continue
		}
		spr := int(num / int64(time.Second))
		if spr*channels*2 <= maxRecordBytes {
			return spr, d, nil
		}
	}

	return 0, 0, fmt.Errorf("no data record layout fits %d channels at %d Hz", channels, fs)
}

// writeHeader writes the EDF header at the start of the file.
func (ew *Writer) writeHeader() error {
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	writer := bufio.NewWriter(ew.w)
	ew.hdr.HeaderBytes = 256 + (ew.hdr.SignalCount * 256)

	fixed := []string{
		fmt.Sprintf("%-8s", ew.hdr.Version),
		fmt.Sprintf("%-80s", ew.hdr.PatientID),
		fmt.Sprintf("%-80s", ew.hdr.RecordingID),
		fmt.Sprintf("%-8s", ew.hdr.StartTime.Format("02.01.06")),
		fmt.Sprintf("%-8s", ew.hdr.StartTime.Format("15.04.05")),
		fmt.Sprintf("%-8d", ew.hdr.HeaderBytes),
		fmt.Sprintf("%-44s", ""),
		fmt.Sprintf("%-8d", ew.hdr.DataRecords),
		fmt.Sprintf("%-8s", strconv.FormatFloat(ew.hdr.DataRecordDuration.Seconds(), 'f', -1, 64)),
		fmt.Sprintf("%-4d", ew.hdr.SignalCount),
	}
	for _, s := range fixed {
		if _, err := writer.WriteString(s); err != nil {
			return err
		}
	}

	fields := []func(sig Signal) string{
		func(sig Signal) string { return fmt.Sprintf("%-16s", sig.Label) },
		func(sig Signal) string { return fmt.Sprintf("%-80s", sig.TransducerType) },
		func(sig Signal) string { return fmt.Sprintf("%-8s", sig.PhysicalDimension) },
		func(sig Signal) string { return formatPhysicalValue(sig.PhysicalMin) },
		func(sig Signal) string { return formatPhysicalValue(sig.PhysicalMax) },
		func(sig Signal) string { return fmt.Sprintf("%-8d", sig.DigitalMin) },
		func(sig Signal) string { return fmt.Sprintf("%-8d", sig.DigitalMax) },
		func(sig Signal) string { return fmt.Sprintf("%-80s", sig.Prefiltering) },
		func(sig Signal) string { return fmt.Sprintf("%-8d", sig.SamplesPerRecord) },
		func(sig Signal) string { return fmt.Sprintf("%-32s", "") },
	}
	for _, field := range fields {
		for _, signal := range ew.hdr.Signals {
			if _, err := writer.WriteString(field(signal)); err != nil {
				return err
			}
		}
	}

	return writer.Flush()
}

// convertPhysicalToDigital converts a physical value to a digital value using the calibration factors.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int16 {
	if pmax == pmin {
		return 0 // Avoid division by zero
	}
	digital := math.Round(((physical - pmin) * (float64(dmax - dmin)) / (pmax - pmin)) + float64(dmin))
	return int16(math.Max(float64(dmin), math.Min(float64(dmax), digital)))
}

func formatPhysicalValue(val float64) string {
	// Try with 2 decimal places
	s := fmt.Sprintf("%.2f", val)
	if len(s) > 8 {
		// Fall back to no decimal
		s = fmt.Sprintf("%.0f", val)
	}
	return fmt.Sprintf("%-8s", s)
}
