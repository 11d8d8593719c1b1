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

// Package pipeline drives messages from the store through classification
// and extraction. A cycle fetches a batch of unprocessed messages, gives
// each one a verdict, runs the category's extractor and raises
// notifications. Messages that fail stay unprocessed and are retried by
// the next cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/extract"
	"github.com/bcem/triage/internal/lock"
	"github.com/bcem/triage/internal/models"
)

// ErrCycleInFlight is returned when another cycle holds the single-flight
// guard, in this process or (with a Locker) in another replica.
var ErrCycleInFlight = errors.New("processing cycle already in flight")

// cycleLockName is the distributed lock shared by every replica.
const cycleLockName = "cycle"

// Store is the slice of the message store the orchestrator needs.
type Store interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]models.Message, error)
	MarkProcessed(ctx context.Context, v models.Verdict) error
	SaveExtraction(ctx context.Context, messageID string, ex models.Extraction) error
	RecordFailure(ctx context.Context, messageID, stage, reason string) error
}

// Locker takes short-lived distributed leases (lock.Locker).
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (lock.Release, bool, error)
}

// Options tunes an Orchestrator. Zero values get defaults; nil
// collaborators disable their feature.
type Options struct {
	BatchSize   int
	Workers     int
	CallTimeout time.Duration
	LockTTL     time.Duration

	Locker   Locker
	Notifier Notifier
	Dedup    Deduper

	// OnTransition observes every state change. It runs on the goroutine
	// making the change and must not block.
	OnTransition func(State)
}

// Orchestrator runs processing cycles.
type Orchestrator struct {
	store      Store
	classifier classify.Classifier
	extractors *extract.Set
	opts       Options

	running atomic.Bool

	mu     sync.Mutex
	state  State
	totals Totals
}

// New builds an orchestrator. extractors may be nil to skip extraction.
func New(st Store, classifier classify.Classifier, extractors *extract.Set, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if extractors == nil {
		extractors = extract.NewSet()
	}
	return &Orchestrator{
		store:      st,
		classifier: classifier,
		extractors: extractors,
		opts:       opts,
		state:      State{Phase: PhaseIdle},
	}
}

// State returns the most recent state transition.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Totals returns the cumulative counters.
func (o *Orchestrator) Totals() Totals {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totals
}

func (o *Orchestrator) transition(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.opts.OnTransition != nil {
		o.opts.OnTransition(s)
	}
}

type outcome int

const (
	outcomeClassified outcome = iota
	outcomeExtracted
	outcomeClassifyFailed
	outcomeExtractFailed
	outcomeDuplicate
	outcomeSkipped
)

type result struct {
	outcome  outcome
	records  int
	notified int
}

type job struct {
	index int
	msg   models.Message
}

// RunCycle processes one batch of unprocessed messages. It returns
// ErrCycleInFlight without doing anything when a cycle is already running.
// Per-message failures are counted in the stats, not returned.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleStats, error) {
	if !o.running.CompareAndSwap(false, true) {
		return CycleStats{}, ErrCycleInFlight
	}
	defer o.running.Store(false)

	if o.opts.Locker != nil {
		release, ok, err := o.opts.Locker.TryLock(ctx, cycleLockName, o.opts.LockTTL)
		if err != nil {
			return CycleStats{}, &models.TransientError{Op: "acquire cycle lock", Err: err}
		}
		if !ok {
			return CycleStats{}, ErrCycleInFlight
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("failed to release cycle lock", "error", err)
			}
		}()
	}

	start := time.Now()
	stats := CycleStats{CycleID: uuid.New().String()}
	log := slog.With("cycle_id", stats.CycleID)

	o.transition(State{Phase: PhaseFetching, CycleID: stats.CycleID})
	msgs, err := o.store.FetchUnprocessed(ctx, o.opts.BatchSize)
	if err != nil {
		o.transition(State{Phase: PhaseIdle})
		return stats, &models.TransientError{Op: "fetch unprocessed", Err: err}
	}
	stats.Fetched = len(msgs)

	if len(msgs) > 0 {
		log.Info("processing cycle started", "messages", len(msgs), "workers", o.opts.Workers)
		o.process(ctx, stats.CycleID, msgs, &stats)
	} else {
		log.Debug("no unprocessed messages")
	}

	stats.Duration = time.Since(start)
	o.transition(State{Phase: PhaseCycleComplete, CycleID: stats.CycleID})

	o.mu.Lock()
	o.totals.add(stats, time.Now().UTC())
	o.mu.Unlock()

	if len(msgs) > 0 {
		log.Info("processing cycle complete",
			"fetched", stats.Fetched,
			"classified", stats.Classified,
			"extracted", stats.Extracted,
			"records", stats.Records,
			"classify_failures", stats.ClassifyFailures,
			"extract_failures", stats.ExtractFailures,
			"duplicates", stats.Duplicates,
			"skipped", stats.Skipped,
			"notified", stats.Notified,
			"duration", stats.Duration,
		)
	}
	o.transition(State{Phase: PhaseIdle})
	return stats, nil
}

// process fans msgs out to the worker pool. Each message goes to exactly
// one worker. Cancellation stops new messages from starting; a message
// already being processed runs to completion.
func (o *Orchestrator) process(ctx context.Context, cycleID string, msgs []models.Message, stats *CycleStats) {
	jobs := make(chan job)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				var r result
				if ctx.Err() != nil {
					r = result{outcome: outcomeSkipped}
				} else {
					r = o.processMessage(ctx, cycleID, j)
				}
				mu.Lock()
				stats.add(r)
				mu.Unlock()
			}
		}()
	}

	sent := 0
feed:
	for i, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- job{index: i, msg: msg}:
			sent++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if unsent := len(msgs) - sent; unsent > 0 {
		stats.Skipped += unsent
		slog.Info("cycle cancelled, leaving messages for the next cycle", "cycle_id", cycleID, "skipped", unsent)
	}
}

// processMessage classifies and extracts one message. It runs on a context
// detached from cycle cancellation so a started message is never left
// half-written.
func (o *Orchestrator) processMessage(cycleCtx context.Context, cycleID string, j job) result {
	ctx := context.WithoutCancel(cycleCtx)
	msg := j.msg
	log := slog.With("cycle_id", cycleID, "message_id", msg.ID)

	if o.opts.Locker != nil {
		release, ok, err := o.opts.Locker.TryLock(ctx, "message:"+msg.ID, o.opts.LockTTL)
		if err != nil {
			log.Warn("failed to lock message, skipping", "error", err)
			return result{outcome: outcomeSkipped}
		}
		if !ok {
			log.Info("message locked by another worker, skipping")
			return result{outcome: outcomeSkipped}
		}
		defer func() {
			if err := release(ctx); err != nil {
				log.Warn("failed to release message lock", "error", err)
			}
		}()
	}

	o.transition(State{Phase: PhaseClassifying, CycleID: cycleID, Index: j.index, MessageID: msg.ID})

	res, err := o.classify(ctx, msg)
	if err != nil {
		log.Error("classification failed, message left unprocessed",
			"error", err,
			"transient", models.IsTransient(err),
		)
		o.recordFailure(ctx, msg.ID, models.StageClassify, err)
		return result{outcome: outcomeClassifyFailed}
	}

	if err := o.store.MarkProcessed(ctx, res.Verdict(msg.ID)); err != nil {
		if errors.Is(err, models.ErrDuplicateClassification) {
			log.Info("message already classified, skipping extraction")
			return result{outcome: outcomeDuplicate}
		}
		log.Error("failed to record verdict, message left unprocessed", "error", err)
		o.recordFailure(ctx, msg.ID, models.StageClassify, err)
		return result{outcome: outcomeClassifyFailed}
	}
	log.Debug("message classified",
		"category", res.Category,
		"urgency", res.Urgency,
		"confidence", res.Confidence,
		"backend", res.Backend,
	)

	extractor, ok := o.extractors.For(res.Category)
	if !ok {
		return result{outcome: outcomeClassified}
	}

	o.transition(State{Phase: PhaseExtracting, CycleID: cycleID, Index: j.index, MessageID: msg.ID})

	ex, err := o.extract(ctx, extractor, msg, res)
	if err == nil && ex.Found() {
		err = o.store.SaveExtraction(ctx, msg.ID, ex)
	}
	if err != nil {
		// The verdict stands; extraction is not retried automatically.
		log.Warn("extraction failed, verdict kept",
			"category", res.Category,
			"error", err,
			"parse_error", models.IsExtractionParse(err),
		)
		o.recordFailure(ctx, msg.ID, models.StageExtract, err)
		return result{outcome: outcomeExtractFailed}
	}
	if !ex.Found() {
		return result{outcome: outcomeClassified}
	}

	return result{
		outcome:  outcomeExtracted,
		records:  ex.Len(),
		notified: o.notify(ctx, msg, ex),
	}
}

func (o *Orchestrator) classify(ctx context.Context, msg models.Message) (classify.Result, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	res, err := o.classifier.Classify(ctx, msg)
	if err != nil {
		return classify.Result{}, err
	}
	if !res.Category.Valid() {
		return classify.Result{}, fmt.Errorf("classifier %s returned unknown category %q", o.classifier.Name(), res.Category)
	}
	return res, nil
}

func (o *Orchestrator) extract(ctx context.Context, e extract.Extractor, msg models.Message, res classify.Result) (models.Extraction, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	ex, err := e.Extract(ctx, msg, res)
	if err != nil {
		return models.Extraction{}, err
	}
	if ex.Category != res.Category || !ex.Consistent() {
		return models.Extraction{}, fmt.Errorf("%w: extractor returned %s for a %s verdict",
			models.ErrCategoryMismatch, ex.Category, res.Category)
	}
	return ex, nil
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.opts.CallTimeout)
}

func (o *Orchestrator) recordFailure(ctx context.Context, messageID, stage string, cause error) {
	if err := o.store.RecordFailure(ctx, messageID, stage, cause.Error()); err != nil {
		slog.Error("failed to record processing failure",
			"message_id", messageID,
			"stage", stage,
			"error", err,
		)
	}
}
