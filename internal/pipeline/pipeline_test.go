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
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/extract"
	"github.com/bcem/triage/internal/lock"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/queue"
	"github.com/bcem/triage/internal/store"
)

var base = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// seed inserts messages with increasing receive times so fetch order is ids order.
func seed(t *testing.T, st store.Store, ids ...string) {
	t.Helper()
	for i, id := range ids {
		msg := models.Message{
			ID:         id,
			Origin:     models.OriginEmail,
			Sender:     models.Sender{Address: "sender@example.com"},
			Subject:    "subject " + id,
			Body:       "body " + id,
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := st.InsertMessage(context.Background(), msg); err != nil {
			t.Fatalf("InsertMessage(%s): %v", id, err)
		}
	}
}

// stubClassifier returns category for every message except those in fail.
type stubClassifier struct {
	category models.Category
	fail     map[string]error
	before   func(ctx context.Context, msg models.Message)

	mu    sync.Mutex
	calls []string
}

func (c *stubClassifier) Name() string { return "stub" }

func (c *stubClassifier) Classify(ctx context.Context, msg models.Message) (classify.Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, msg.ID)
	c.mu.Unlock()
	if c.before != nil {
		c.before(ctx, msg)
	}
	if err := c.fail[msg.ID]; err != nil {
		return classify.Result{}, err
	}
	return classify.Result{Category: c.category, Urgency: models.UrgencyLow, Confidence: 0.8, Backend: "stub"}, nil
}

func (c *stubClassifier) called() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// stubExtractor runs fn for its category.
type stubExtractor struct {
	category models.Category
	fn       func(msg models.Message) (models.Extraction, error)

	mu    sync.Mutex
	calls int
}

func (e *stubExtractor) Category() models.Category { return e.category }

func (e *stubExtractor) Extract(_ context.Context, msg models.Message, _ classify.Result) (models.Extraction, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.fn(msg)
}

func oneTask(priority models.Priority) func(models.Message) (models.Extraction, error) {
	return func(msg models.Message) (models.Extraction, error) {
		return models.Extraction{
			Category: models.CategoryTask,
			Tasks:    []models.Task{{MessageID: msg.ID, Description: "do " + msg.ID, Priority: priority}},
		}, nil
	}
}

func TestRunCycle_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1", "m2", "m3")

	ext := &stubExtractor{category: models.CategoryTask, fn: oneTask(models.PriorityLow)}
	o := New(st, &stubClassifier{category: models.CategoryTask}, extract.NewSet(ext), Options{Workers: 2})

	first, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if first.Fetched != 3 || first.Classified != 3 || first.Extracted != 3 || first.Records != 3 {
		t.Errorf("first cycle = %+v", first)
	}

	second, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if second.Fetched != 0 || second.Classified != 0 {
		t.Errorf("second cycle = %+v, want nothing to do", second)
	}

	verdicts, _ := st.ListVerdicts(ctx, store.VerdictFilter{})
	tasks, _ := st.ListTasks(ctx, store.TaskFilter{})
	if len(verdicts) != 3 || len(tasks) != 3 {
		t.Errorf("verdicts = %d, tasks = %d; want 3 and 3", len(verdicts), len(tasks))
	}
	if ext.calls != 3 {
		t.Errorf("extractor calls = %d, want 3", ext.calls)
	}
}

func TestRunCycle_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1", "m2", "m3", "m4", "m5")

	cls := &stubClassifier{
		category: models.CategoryInformational,
		fail:     map[string]error{"m3": &models.TransientError{Op: "classify", Err: errors.New("backend down")}},
	}
	o := New(st, cls, nil, Options{Workers: 1})

	stats, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Fetched != 5 || stats.Classified != 4 || stats.ClassifyFailures != 1 {
		t.Errorf("stats = %+v, want 5 fetched, 4 classified, 1 failure", stats)
	}
	for _, id := range []string{"m1", "m2", "m4", "m5"} {
		if ok, _ := st.IsProcessed(ctx, id); !ok {
			t.Errorf("%s not processed", id)
		}
	}
	if ok, _ := st.IsProcessed(ctx, "m3"); ok {
		t.Error("m3 processed despite classification failure")
	}

	failures, _ := st.ListFailures(ctx, 1)
	if len(failures) != 1 || failures[0].MessageID != "m3" || failures[0].Stage != models.StageClassify || failures[0].Attempts != 1 {
		t.Fatalf("failures = %+v", failures)
	}

	// The next cycle retries only the failed message.
	stats, _ = o.RunCycle(ctx)
	if stats.Fetched != 1 || stats.ClassifyFailures != 1 {
		t.Errorf("retry cycle = %+v", stats)
	}
	failures, _ = st.ListFailures(ctx, 2)
	if len(failures) != 1 || failures[0].Attempts != 2 {
		t.Errorf("failures after retry = %+v, want m3 with 2 attempts", failures)
	}
}

func TestRunCycle_ExtractionFailureKeepsVerdict(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1")

	ext := &stubExtractor{category: models.CategoryEvent, fn: func(msg models.Message) (models.Extraction, error) {
		return models.Extraction{}, &models.ParseError{Stage: models.StageExtract, MessageID: msg.ID, Err: errors.New("bad json")}
	}}
	o := New(st, &stubClassifier{category: models.CategoryEvent}, extract.NewSet(ext), Options{})

	stats, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Classified != 1 || stats.ExtractFailures != 1 || stats.Extracted != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if ok, _ := st.IsProcessed(ctx, "m1"); !ok {
		t.Error("verdict rolled back after extraction failure")
	}
	failures, _ := st.ListFailures(ctx, 1)
	if len(failures) != 1 || failures[0].Stage != models.StageExtract {
		t.Errorf("failures = %+v, want one extract failure", failures)
	}

	// Extraction is not retried automatically.
	stats, _ = o.RunCycle(ctx)
	if stats.Fetched != 0 || ext.calls != 1 {
		t.Errorf("second cycle fetched %d, extractor calls %d", stats.Fetched, ext.calls)
	}
}

func TestRunCycle_MismatchedExtractionIsExtractFailure(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1")

	ext := &stubExtractor{category: models.CategoryTask, fn: func(msg models.Message) (models.Extraction, error) {
		return models.Extraction{Category: models.CategoryTask, Events: []models.Event{{Title: "x"}}}, nil
	}}
	o := New(st, &stubClassifier{category: models.CategoryTask}, extract.NewSet(ext), Options{})

	stats, _ := o.RunCycle(ctx)
	if stats.ExtractFailures != 1 {
		t.Errorf("stats = %+v, want one extract failure", stats)
	}
	events, _ := st.UnsyncedEvents(ctx, 0)
	if len(events) != 0 {
		t.Errorf("events written for a task verdict: %+v", events)
	}
}

func TestRunCycle_DuplicateIsBenign(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1")

	// Another worker records a verdict between fetch and classification.
	cls := &stubClassifier{
		category: models.CategoryTask,
		before: func(ctx context.Context, msg models.Message) {
			st.MarkProcessed(ctx, models.Verdict{MessageID: msg.ID, Category: models.CategoryTask, Urgency: models.UrgencyLow, Confidence: 0.5})
		},
	}
	ext := &stubExtractor{category: models.CategoryTask, fn: oneTask(models.PriorityLow)}
	o := New(st, cls, extract.NewSet(ext), Options{})

	stats, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Duplicates != 1 || stats.Classified != 0 || stats.ClassifyFailures != 0 {
		t.Errorf("stats = %+v, want one duplicate", stats)
	}
	if ext.calls != 0 {
		t.Errorf("extractor ran %d times for a duplicate", ext.calls)
	}
	if failures, _ := st.ListFailures(ctx, 1); len(failures) != 0 {
		t.Errorf("duplicate recorded as failure: %+v", failures)
	}
}

func TestRunCycle_SingleFlight(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1")

	entered := make(chan struct{})
	release := make(chan struct{})
	cls := &stubClassifier{
		category: models.CategoryInformational,
		before: func(context.Context, models.Message) {
			close(entered)
			<-release
		},
	}
	o := New(st, cls, nil, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := o.RunCycle(ctx)
		done <- err
	}()
	<-entered

	if _, err := o.RunCycle(ctx); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("overlapping RunCycle err = %v, want ErrCycleInFlight", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first RunCycle: %v", err)
	}
	if _, err := o.RunCycle(ctx); err != nil {
		t.Errorf("RunCycle after completion: %v", err)
	}
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, name string, _ time.Duration) (lock.Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	l.acquired = append(l.acquired, name)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		l.released = append(l.released, name)
		return nil
	}, true, nil
}

func TestRunCycle_DistributedLock(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1", "m2")

	locker := &fakeLocker{held: map[string]bool{"cycle": true}}
	cls := &stubClassifier{category: models.CategoryInformational}
	o := New(st, cls, nil, Options{Locker: locker})

	if _, err := o.RunCycle(ctx); !errors.Is(err, ErrCycleInFlight) {
		t.Fatalf("err = %v, want ErrCycleInFlight while another replica holds the lock", err)
	}
	if len(cls.called()) != 0 {
		t.Fatal("classified while another replica held the cycle lock")
	}

	// A message lock held elsewhere skips just that message.
	locker.held = map[string]bool{"message:m2": true}
	stats, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Classified != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 classified, 1 skipped", stats)
	}
	if !slices.Contains(locker.released, "cycle") || !slices.Contains(locker.released, "message:m1") {
		t.Errorf("released = %v, want cycle and message:m1", locker.released)
	}
}

func TestRunCycle_StateTransitions(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1")

	var (
		mu     sync.Mutex
		states []string
	)
	ext := &stubExtractor{category: models.CategoryTask, fn: oneTask(models.PriorityLow)}
	o := New(st, &stubClassifier{category: models.CategoryTask}, extract.NewSet(ext), Options{
		OnTransition: func(s State) {
			mu.Lock()
			states = append(states, s.String())
			mu.Unlock()
		},
	})

	if got := o.State().Phase; got != PhaseIdle {
		t.Fatalf("initial phase = %s", got)
	}
	if _, err := o.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	want := []string{"fetching", "classifying(0)", "extracting(0)", "cycle_complete", "idle"}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if got := o.State().Phase; got != PhaseIdle {
		t.Errorf("final phase = %s", got)
	}

	// An empty cycle still completes and returns to idle.
	states = nil
	o.RunCycle(ctx)
	if want := []string{"fetching", "cycle_complete", "idle"}; !slices.Equal(states, want) {
		t.Errorf("empty cycle states = %v, want %v", states, want)
	}
}

func TestRunCycle_CancellationBetweenMessages(t *testing.T) {
	st := newStore(t)
	seed(t, st, "m1", "m2", "m3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cls := &stubClassifier{
		category: models.CategoryInformational,
		before:   func(context.Context, models.Message) { cancel() },
	}
	o := New(st, cls, nil, Options{Workers: 1})

	stats, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Classified != 1 || stats.Skipped != 2 {
		t.Errorf("stats = %+v, want 1 classified, 2 skipped", stats)
	}
	// The in-flight message finished despite the cancellation.
	if ok, _ := st.IsProcessed(context.Background(), "m1"); !ok {
		t.Error("in-flight message m1 not processed")
	}
	if ok, _ := st.IsProcessed(context.Background(), "m2"); ok {
		t.Error("m2 processed after cancellation")
	}
}

func TestRunCycle_CallTimeout(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "slow", "fast")

	cls := &stubClassifier{
		category: models.CategoryInformational,
		before: func(ctx context.Context, msg models.Message) {
			if msg.ID == "slow" {
				<-ctx.Done()
			}
		},
	}
	o := New(st, &slowClassifier{stubClassifier: cls}, nil, Options{CallTimeout: 20 * time.Millisecond})

	stats, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Classified != 1 || stats.ClassifyFailures != 1 {
		t.Errorf("stats = %+v, want the slow message to time out alone", stats)
	}
	if ok, _ := st.IsProcessed(ctx, "fast"); !ok {
		t.Error("fast message not processed")
	}
}

// slowClassifier reports the context error once the stub returns.
type slowClassifier struct{ *stubClassifier }

func (c *slowClassifier) Classify(ctx context.Context, msg models.Message) (classify.Result, error) {
	res, err := c.stubClassifier.Classify(ctx, msg)
	if err == nil && ctx.Err() != nil {
		return classify.Result{}, ctx.Err()
	}
	return res, err
}

func TestRunCycle_FetchErrorIsTransient(t *testing.T) {
	st := newStore(t)
	st.Close()
	o := New(st, &stubClassifier{category: models.CategoryTask}, nil, Options{})

	_, err := o.RunCycle(context.Background())
	if !models.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if o.State().Phase != PhaseIdle {
		t.Errorf("phase = %s after failed fetch", o.State().Phase)
	}
}

func TestTotals_Accumulate(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "m1", "m2")
	o := New(st, &stubClassifier{category: models.CategoryInformational}, nil, Options{BatchSize: 1})

	o.RunCycle(ctx)
	o.RunCycle(ctx)
	o.RunCycle(ctx)

	totals := o.Totals()
	if totals.Cycles != 3 || totals.Fetched != 2 || totals.Classified != 2 {
		t.Errorf("totals = %+v", totals)
	}
	if totals.LastCycleAt.IsZero() {
		t.Error("LastCycleAt not set")
	}
}

func TestRunCycle_PatternBackendScenarios(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	for _, msg := range []models.Message{
		{ID: "e101", Origin: models.OriginEmail, Sender: models.Sender{Address: "sam@example.com"},
			Subject: "Lunch catch up", Body: "Hey, long time no see! Want to grab lunch next week?", ReceivedAt: base},
		{ID: "e102", Origin: models.OriginEmail, Sender: models.Sender{Address: "hr@acme.com", Name: "Acme HR"},
			Subject: "Interview Scheduled", Body: "Your interview with the platform team is scheduled for Thursday at 2 PM.", ReceivedAt: base.Add(time.Minute)},
	} {
		st.InsertMessage(ctx, msg)
	}

	notifier := &fakeNotifier{}
	clock := func() time.Time { return base }
	o := New(st, classify.NewRules(nil), extract.PatternSet(clock), Options{Notifier: notifier})

	stats, err := o.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Classified != 2 || stats.Extracted != 2 {
		t.Errorf("stats = %+v", stats)
	}

	rows, _ := st.ListVerdicts(ctx, store.VerdictFilter{})
	got := map[string]models.Category{}
	for _, r := range rows {
		got[r.MessageID] = r.Category
		if r.Confidence < classify.ConfidenceFloor || r.Confidence >= 1 {
			t.Errorf("%s confidence = %v", r.MessageID, r.Confidence)
		}
	}
	if got["e101"] != models.CategorySocial || got["e102"] != models.CategoryRecruiting {
		t.Errorf("verdicts = %v, want e101 social, e102 recruiting", got)
	}

	sent := notifier.sent()
	if len(sent) != 1 || sent[0].Kind != queue.KindInterviewInvitation || sent[0].MessageID != "e102" {
		t.Errorf("notifications = %+v, want one interview invitation for e102", sent)
	}
}

func ExampleState_String() {
	fmt.Println(State{Phase: PhaseClassifying, Index: 3})
	fmt.Println(State{Phase: PhaseIdle})
	// Output:
	// classifying(3)
	// idle
}
