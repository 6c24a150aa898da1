// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package session

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/OpenPSG/mea"
	"github.com/google/uuid"
)

// Task is a pipeline run executing in the background.
type Task struct {
	id     string
	done   chan struct{}
	cancel context.CancelFunc
	res    *Result
	err    error
}

// Start runs the full pipeline on a new goroutine. A panic inside the
// pipeline is logged and reported as the task error.
func (s *Session) Start(ctx context.Context, sink mea.ProgressSink) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{id: uuid.NewString(), done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Analysis panicked", "run", t.id, "panic", r, "stack", string(debug.Stack()))
				t.res, t.err = nil, fmt.Errorf("analysis failed: %v", r)
			}
		}()

		t.res, t.err = s.run(ctx, t.id, CharacteristicsReady, sink)
	}()

	return t
}

// ID returns the run ID, shared with the committed Result.
func (t *Task) ID() string {
	return t.id
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel requests the task to stop. It does not wait.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes and returns its outcome.
func (t *Task) Wait() (*Result, error) {
	<-t.done
	return t.res, t.err
}
