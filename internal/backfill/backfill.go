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

// Package backfill loads historical messages from JSON Lines exports into
// the message store. Each line is a normalized message or an inbound queue
// envelope; already-stored ids are skipped.
package backfill

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bcem/triage/internal/queue"
)

// maxLineSize bounds one JSON line. Message bodies can be large.
const maxLineSize = 4 << 20

// Source is one export to load.
type Source struct {
	Name   string
	Reader io.Reader
}

// BackfillRequest defines the scope of a historical ingestion run.
type BackfillRequest struct {
	Sources []Source
	Since   time.Duration // lookback window; zero loads everything
}

// BackfillResult summarises a completed backfill run.
type BackfillResult struct {
	SourceResults []SourceResult
	TotalNew      int
	TotalSkipped  int
	TotalInvalid  int
	Elapsed       time.Duration
}

// SourceResult tracks per-source backfill progress.
type SourceResult struct {
	Source  string
	Lines   int
	New     int
	Skipped int // duplicates and messages outside the lookback window
	Invalid int
	Errors  int
}

// Runner performs historical message backfill.
type Runner struct {
	sink queue.MessageSink
	now  func() time.Time
}

// RunnerConfig holds dependencies for the backfill runner.
type RunnerConfig struct {
	Sink queue.MessageSink
	Now  func() time.Time
}

// NewRunner creates a backfill runner.
func NewRunner(cfg RunnerConfig) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{sink: cfg.Sink, now: now}
}

// Run loads every source in order. A source that fails midway is counted
// and the run continues with the next one.
func (r *Runner) Run(ctx context.Context, req BackfillRequest) (*BackfillResult, error) {
	start := time.Now()

	var cutoff time.Time
	if req.Since > 0 {
		cutoff = r.now().UTC().Add(-req.Since)
	}

	slog.Info("starting historical backfill",
		"sources", len(req.Sources),
		"since", cutoff,
	)

	result := &BackfillResult{}

	for _, src := range req.Sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sr, err := r.backfillSource(ctx, src, cutoff)
		if err != nil {
			slog.Error("backfill failed for source",
				"source", src.Name,
				"error", err,
			)
			// Continue with other sources
			sr.Errors++
		}

		result.SourceResults = append(result.SourceResults, sr)
		result.TotalNew += sr.New
		result.TotalSkipped += sr.Skipped
		result.TotalInvalid += sr.Invalid
	}

	result.Elapsed = time.Since(start)

	slog.Info("historical backfill complete",
		"total_new", result.TotalNew,
		"total_skipped", result.TotalSkipped,
		"total_invalid", result.TotalInvalid,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// backfillSource reads one export line by line.
func (r *Runner) backfillSource(ctx context.Context, src Source, cutoff time.Time) (SourceResult, error) {
	sr := SourceResult{Source: src.Name}

	scanner := bufio.NewScanner(src.Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return sr, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		sr.Lines++

		msg, err := queue.Decode(line, r.now().UTC())
		if err != nil {
			slog.Warn("backfill: invalid line",
				"source", src.Name,
				"line", sr.Lines,
				"error", err,
			)
			sr.Invalid++
			continue
		}

		if !cutoff.IsZero() && msg.ReceivedAt.Before(cutoff) {
			sr.Skipped++
			continue
		}

		inserted, err := r.sink.InsertMessage(ctx, msg)
		if err != nil {
			return sr, fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
		if inserted {
			sr.New++
		} else {
			sr.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return sr, fmt.Errorf("read %s: %w", src.Name, err)
	}

	slog.Info("source backfill complete",
		"source", src.Name,
		"lines", sr.Lines,
		"new", sr.New,
		"skipped", sr.Skipped,
		"invalid", sr.Invalid,
	)

	return sr, nil
}
