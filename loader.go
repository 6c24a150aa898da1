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
	"io"
	"os"

	"github.com/c2h5oh/datasize"
)

// Loader produces a recording from a file path. Failures are always reported
// as a *LoadError.
type Loader interface {
	Load(path string) (*Recording, error)
}

// EDFLoader loads EDF/EDF+ exports of MEA recordings.
type EDFLoader struct {
	// MaxSize caps the in-memory size of the decoded sample matrix, zero
	// disables the check.
	MaxSize datasize.ByteSize
}

// Load reads and validates the EDF file at path.
func (l EDFLoader) Load(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	hdr, err := ReadHeader(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	if l.MaxSize > 0 && hdr.DataRecords > 0 && len(hdr.Signals) > 0 {
		size := datasize.ByteSize(uint64(hdr.SignalCount) * uint64(hdr.DataRecords) * uint64(hdr.Signals[0].SamplesPerRecord) * 8)
		if size > l.MaxSize {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("decoded size %s exceeds limit of %s", size.HumanReadable(), l.MaxSize.HumanReadable())}
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	rec, _, err := ReadEDF(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	if err := rec.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	return rec, nil
}
