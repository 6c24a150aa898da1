// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package publish sends analysis reports to a Kafka topic.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/characteristics"
	"github.com/OpenPSG/mea/config"
	"github.com/OpenPSG/mea/connectivity"
	"github.com/OpenPSG/mea/session"
	"github.com/google/uuid"
)

// Report is the published summary of one analysis run. Raw spike trains are
// left out to keep messages small.
type Report struct {
	ReportID        string                           `json:"report_id"`
	RunID           string                           `json:"run_id"`
	Recording       string                           `json:"recording"`
	CreatedAt       time.Time                        `json:"created_at"`
	State           session.State                    `json:"state"`
	Params          config.Params                    `json:"params"`
	Characteristics *characteristics.Characteristics `json:"characteristics,omitempty"`
	Bursts          []burst.Burst                    `json:"bursts"`
	Graph           *connectivity.Graph              `json:"graph,omitempty"`
}

// NewReport summarises res, a result computed from the named recording.
func NewReport(recording string, res *session.Result) *Report {
	r := &Report{
		ReportID:        uuid.NewString(),
		RunID:           res.RunID,
		Recording:       recording,
		CreatedAt:       time.Now().UTC(),
		State:           res.State,
		Params:          res.Params,
		Characteristics: res.Characteristics,
		Bursts:          []burst.Burst{},
		Graph:           res.Graph,
	}
	if res.Bursts != nil {
		r.Bursts = res.Bursts.Bursts
	}
	return r
}

// ToJSON serializes the report.
func (r *Report) ToJSON() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("error encoding report: %w", err)
	}
	return b, nil
}
