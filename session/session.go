// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package session runs the analysis pipeline over one recording and one
// parameter set, committing the outputs of a run all at once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/burstlet"
	"github.com/OpenPSG/mea/characteristics"
	"github.com/OpenPSG/mea/config"
	"github.com/OpenPSG/mea/connectivity"
	"github.com/OpenPSG/mea/spike"
	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
)

// ErrStale is returned by a run whose recording or parameters changed before
// it could commit.
var ErrStale = errors.New("session changed while the analysis was running")

// ErrNoRecording is returned when a run is requested before a recording is
// loaded.
var ErrNoRecording = errors.New("no recording loaded")

// Result is a committed, read-only snapshot of an analysis run.
type Result struct {
	RunID           string                           `json:"run_id"`
	State           State                            `json:"state"`
	Params          config.Params                    `json:"params"`
	FS              int                              `json:"fs"`
	Offset          float64                          `json:"offset"` // Absolute time of the window start in seconds
	Spikes          *spike.Result                    `json:"spikes"`
	Burstlets       [][]burstlet.Burstlet            `json:"burstlets,omitempty"`
	Bursts          *burst.Result                    `json:"bursts,omitempty"`
	Characteristics *characteristics.Characteristics `json:"characteristics,omitempty"`
	Graph           *connectivity.Graph              `json:"graph,omitempty"`

	window *mea.Recording
}

// Window returns the analysed part of the recording.
func (r *Result) Window() *mea.Recording {
	return r.window
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session owns a recording, its parameters and every result derived from
// them. It is safe for concurrent use.
type Session struct {
	logger *slog.Logger

	mu         sync.RWMutex
	rec        *mea.Recording
	params     config.Params
	generation uint64
	result     *Result
}

// New creates a session. rec may be nil, in which case a recording must be
// loaded before running.
func New(rec *mea.Recording, params config.Params, opts ...Option) (*Session, error) {
	s := &Session{logger: slog.Default(), rec: rec, params: params}
	for _, opt := range opts {
		opt(s)
	}

	if rec != nil {
		if err := params.Validate(rec.Channels()); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Load replaces the recording with the one at path. On failure the session,
// including any previous result, is left untouched.
func (s *Session) Load(loader mea.Loader, path string) error {
	rec, err := loader.Load(path)
	if err != nil {
		return err
	}

	s.logger.Info("Loaded recording", "path", path, "channels", rec.Channels(),
		"fs", rec.FS, "duration", rec.Duration(), "size", datasize.ByteSize(rec.SizeBytes()).HumanReadable())

	return s.SetRecording(rec)
}

// SetRecording replaces the recording and discards every derived result.
func (s *Session) SetRecording(rec *mea.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.params.Validate(rec.Channels()); err != nil {
		return err
	}
	s.rec = rec
	s.invalidate()
	return nil
}

// SetParams replaces the parameters and discards every derived result. Invalid
// parameters are rejected and the previous result stays visible.
func (s *Session) SetParams(params config.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec != nil {
		if err := params.Validate(s.rec.Channels()); err != nil {
			return err
		}
	}
	s.params = params
	s.invalidate()
	return nil
}

// Invalidate discards every derived result.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidate()
}

func (s *Session) invalidate() {
	s.generation++
	s.result = nil
}

// State returns the furthest committed stage.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return NoData
	}
	return s.result.State
}

// Result returns the committed result, or nil if there is none.
func (s *Session) Result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Params returns the current parameters.
func (s *Session) Params() config.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Recording returns the current recording.
func (s *Session) Recording() *mea.Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

// Run executes the full pipeline.
func (s *Session) Run(ctx context.Context, sink mea.ProgressSink) (*Result, error) {
	return s.RunTo(ctx, CharacteristicsReady, sink)
}

// RunTo executes the pipeline up to and including target. Stages already
// committed for the current recording and parameters are reused.
func (s *Session) RunTo(ctx context.Context, target State, sink mea.ProgressSink) (*Result, error) {
	return s.run(ctx, uuid.NewString(), target, sink)
}

func (s *Session) run(ctx context.Context, runID string, target State, sink mea.ProgressSink) (*Result, error) {
	s.mu.RLock()
	rec, params, generation, prev := s.rec, s.params, s.generation, s.result
	s.mu.RUnlock()

	if rec == nil {
		return nil, ErrNoRecording
	}
	if err := params.Validate(rec.Channels()); err != nil {
		return nil, err
	}

	logger := s.logger.With("run", runID)
	progress := mea.Monotonic(sink)
	started := time.Now()

	res := &Result{RunID: runID, Params: params}
	if prev != nil {
		// Shallow copy, stages below only ever replace fields.
		*res = *prev
		res.RunID = runID
	} else {
		window, err := rec.Window(params.WindowStartMin, params.WindowEndMin)
		if err != nil {
			return nil, err
		}
		res.window, res.FS, res.Offset = window, window.FS, window.Offset
	}
	if satisfied(res, target) {
		progress.Report(100)
		return prev, nil
	}

	window := res.window
	logger.Debug("Starting analysis", "from", res.State, "to", target,
		"samples", window.Len(), "offset", window.Offset)

	if res.State < SpikesFound {
		spikes, err := spike.Detect(ctx, window, params.SpikeOptions(), mea.Scaled(progress, 0, 40))
		if err != nil {
			return nil, fmt.Errorf("error detecting spikes: %w", err)
		}
		res.Spikes, res.State = spikes, SpikesFound
		logger.Debug("Detected spikes", "total", spikes.Total())
	}
	progress.Report(40)

	wantBurstlets := target == BurstletsFound || (target > BurstletsFound && params.BurstMethod == burst.Overlap)
	if wantBurstlets && res.Burstlets == nil {
		burstlets, err := burstlet.Group(ctx, window, res.Spikes, params.BurstletOptions(), mea.Scaled(progress, 40, 70))
		if err != nil {
			return nil, fmt.Errorf("error grouping burstlets: %w", err)
		}
		res.Burstlets = burstlets
		if res.State < BurstletsFound {
			res.State = BurstletsFound
		}
		if res.Characteristics != nil {
			// Tables computed without burstlets are refreshed to count them.
			res.Characteristics = characteristics.Calculate(window, res.Spikes, res.Burstlets, res.Bursts)
		}
		logger.Debug("Grouped burstlets", "total", countBurstlets(burstlets))
	}
	progress.Report(70)

	if target >= BurstsFound && res.State < BurstsFound {
		algo, err := burst.AlgorithmFor(params.BurstMethod, params.BurstOptions())
		if err != nil {
			return nil, err
		}
		bursts, err := burst.Detect(ctx, algo, burst.Input{
			Recording: window,
			Spikes:    res.Spikes,
			Burstlets: res.Burstlets,
			Excluded:  params.Excluded(),
		})
		if err != nil {
			return nil, fmt.Errorf("error detecting bursts: %w", err)
		}
		res.Bursts, res.State = bursts, BurstsFound
		logger.Debug("Detected bursts", "method", algo.Method(), "total", len(bursts.Bursts))
	}
	progress.Report(90)

	if target >= CharacteristicsReady && res.State < CharacteristicsReady {
		res.Characteristics = characteristics.Calculate(window, res.Spikes, res.Burstlets, res.Bursts)
		res.State = CharacteristicsReady
	}

	res, err := s.commit(generation, prev, res)
	if err != nil {
		logger.Warn("Discarding analysis result", "error", err)
		return nil, err
	}
	progress.Report(100)

	logger.Info("Analysis complete", "state", res.State, "spikes", res.Spikes.Total(),
		"elapsed", time.Since(started))

	return res, nil
}

// satisfied reports whether res already holds every artifact target needs.
// The burstlet stage is skipped by threshold runs, so a later state does not
// imply burstlets are present.
func satisfied(res *Result, target State) bool {
	if res.State < target {
		return false
	}
	return target != BurstletsFound || res.Burstlets != nil
}

// commit publishes res, derived from the snapshot base, if the session has not
// changed since generation. When another commit of the same generation landed
// after base was taken, the artifacts res added over base are merged into the
// current result instead, and the merged result is returned.
func (s *Session) commit(generation uint64, base, res *Result) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return nil, ErrStale
	}
	if s.result == base || s.result == nil {
		s.result = res
		return res, nil
	}

	merged := *s.result
	if base == nil {
		base = &Result{}
	}
	if res.RunID != base.RunID {
		merged.RunID = res.RunID
	}
	if res.State > merged.State {
		merged.State = res.State
	}
	if merged.Spikes == nil {
		merged.Spikes = res.Spikes
	}
	if merged.Burstlets == nil && res.Burstlets != nil {
		merged.Burstlets = res.Burstlets
		if res.Characteristics != base.Characteristics {
			merged.Characteristics = res.Characteristics
		}
	}
	if merged.Bursts == nil {
		merged.Bursts = res.Bursts
	}
	if merged.Characteristics == nil {
		merged.Characteristics = res.Characteristics
	}
	if res.Graph != base.Graph {
		merged.Graph = res.Graph
	}
	s.result = &merged
	return &merged, nil
}

// Graph builds the connectivity graph of burst burstID from the committed
// result. A negative burstID selects the longest burst.
func (s *Session) Graph(ctx context.Context, burstID int) (*connectivity.Graph, error) {
	s.mu.RLock()
	res, generation := s.result, s.generation
	s.mu.RUnlock()

	if res == nil || res.State < BurstsFound {
		return nil, fmt.Errorf("bursts have not been detected")
	}

	id, err := connectivity.SelectBurst(res.Bursts.Bursts, burstID)
	if err != nil {
		return nil, err
	}

	g, err := connectivity.Build(ctx, res.window, res.Spikes, res.Bursts.Bursts[id], res.Params.GraphOptions())
	if err != nil {
		return nil, fmt.Errorf("error building graph: %w", err)
	}
	g.Burst = id

	updated := *res
	updated.Graph = g
	if _, err := s.commit(generation, res, &updated); err != nil {
		return nil, err
	}

	s.logger.Debug("Built connectivity graph", "burst", id, "pairs", len(g.Pairs), "edges", len(g.Edges))

	return g, nil
}

func countBurstlets(burstlets [][]burstlet.Burstlet) int {
	n := 0
	for _, bls := range burstlets {
		n += len(bls)
	}
	return n
}
