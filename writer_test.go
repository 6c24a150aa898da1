// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package mea_test

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/mea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	hdr := mea.Header{
		Version:            mea.Version0,
		PatientID:          "Culture 7",
		RecordingID:        "DIV 21",
		StartTime:          time.Now(),
		DataRecordDuration: 100 * time.Millisecond,
		Signals: []mea.Signal{
			{
				Label:             "12",
				TransducerType:    "TiN electrode",
				PhysicalDimension: "uV",
				PhysicalMin:       -500,
				PhysicalMax:       500,
				DigitalMin:        -2048,
				DigitalMax:        2047,
				SamplesPerRecord:  256,
			},
		},
	}

	ew, err := mea.Create(f, hdr)
	require.NoError(t, err)

	record := make([]float64, 256)
	for i := range record {
		record[i] = float64(i)
	}
	require.NoError(t, ew.WriteRecord([][]float64{record}))

	for i := range record {
		record[i] = float64(i - 256)
	}
	require.NoError(t, ew.WriteRecord([][]float64{record}))

	// Close the writer (this rewrites the header)
	require.NoError(t, ew.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	rec, got, err := mea.ReadEDF(f)
	require.NoError(t, err)

	assert.Equal(t, 2, got.DataRecords)
	assert.Equal(t, "Culture 7", got.PatientID)
	assert.Equal(t, 100*time.Millisecond, got.DataRecordDuration)
	assert.Equal(t, 2560, rec.FS)
	require.Equal(t, 512, rec.Len())

	for i := 0; i < 256; i++ {
		require.InDelta(t, float64(i)*1e-6, rec.Samples[0][i], 0.5e-6)
		require.InDelta(t, float64(i-256)*1e-6, rec.Samples[0][256+i], 0.5e-6)
	}
}

func TestWriterRejectsWrongSignalCount(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := mea.Create(f, mea.Header{
		Version:            mea.Version0,
		StartTime:          time.Now(),
		DataRecordDuration: time.Second,
		Signals:            []mea.Signal{{Label: "0", DigitalMin: -1, DigitalMax: 1, SamplesPerRecord: 4}},
	})
	require.NoError(t, err)

	require.Error(t, ew.WriteRecord([][]float64{{0, 0, 0, 0}, {0, 0, 0, 0}}))
	require.Error(t, ew.WriteRecord([][]float64{{0, 0}}))
}

func TestWriteEDFRoundTrip(t *testing.T) {
	const fs = 10000

	samples := make([][]float64, 3)
	for ch := range samples {
		samples[ch] = make([]float64, 2*fs)
		for i := range samples[ch] {
			samples[ch][i] = 40e-6 * math.Sin(float64(i*(ch+1))/50)
		}
	}
	in, err := mea.NewRecording(samples, fs)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roundtrip.edf")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mea.WriteEDF(f, in, "roundtrip"))
	require.NoError(t, f.Close())

	out, err := mea.EDFLoader{}.Load(path)
	require.NoError(t, err)

	assert.Equal(t, fs, out.FS)
	require.Equal(t, in.Channels(), out.Channels())
	require.Equal(t, in.Len(), out.Len())
	assert.InDelta(t, 1.9999, out.Time[out.Len()-1], 1e-9)

	for ch := range in.Samples {
		for i := 0; i < in.Len(); i += 97 {
			require.InDelta(t, in.Samples[ch][i], out.Samples[ch][i], 0.01e-6)
		}
	}
}
