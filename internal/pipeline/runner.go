// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Cycler runs one processing cycle (*Orchestrator).
type Cycler interface {
	RunCycle(ctx context.Context) (CycleStats, error)
}

// Runner fires cycles on a fixed interval.
type Runner struct {
	cycler   Cycler
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner that drives cycler every interval once started.
func NewRunner(cycler Cycler, interval time.Duration) *Runner {
	return &Runner{cycler: cycler, interval: interval}
}

// Start runs a cycle immediately, then one per interval in the background.
// A firing that finds a cycle in flight is skipped.
func (r *Runner) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(loopCtx)

	slog.Info("pipeline runner started", "interval", r.interval)
}

// Stop cancels the loop and waits for the current cycle to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	slog.Info("pipeline runner stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	r.fire(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.fire(ctx)
		}
	}
}

func (r *Runner) fire(ctx context.Context) {
	_, err := r.cycler.RunCycle(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleInFlight):
		slog.Debug("cycle skipped, previous cycle still running")
	default:
		slog.Error("processing cycle failed", "error", err)
	}
}
