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

package extract

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/llm"
	"github.com/bcem/triage/internal/models"
)

type mockProvider struct {
	response string
	err      error
	prompt   string
	opts     llm.CompletionOpts
}

func (m *mockProvider) Complete(_ context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	m.prompt, m.opts = prompt, opts
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockProvider) Name() string { return "llm/mock" }

func modelExtract(t *testing.T, c models.Category, response string) (models.Extraction, error) {
	t.Helper()
	m, err := NewModel(c, &mockProvider{response: response}, fixedClock)
	if err != nil {
		t.Fatalf("NewModel(%s): %v", c, err)
	}
	msg := message("llm1", "sender@example.com", "Subject", "Body")
	return m.Extract(context.Background(), msg, classify.Result{Category: c, Urgency: models.UrgencyLow})
}

func TestModelSet(t *testing.T) {
	s := ModelSet(&mockProvider{}, fixedClock)
	want := []models.Category{
		models.CategoryRecruiting, models.CategoryEvent, models.CategoryTask,
		models.CategorySpam, models.CategorySocial,
	}
	if got := s.Categories(); !slices.Equal(got, want) {
		t.Errorf("Categories() = %v, want %v", got, want)
	}
	if _, err := NewModel(models.CategoryFinancial, &mockProvider{}, fixedClock); err == nil {
		t.Error("NewModel(financial) should fail")
	}
}

func TestModel_PromptCarriesSchemaAndReference(t *testing.T) {
	p := &mockProvider{response: `{"events": []}`}
	m, _ := NewModel(models.CategoryEvent, p, fixedClock)
	msg := message("llm2", "a@example.com", "Standup moved", "Now at 10am")
	if _, err := m.Extract(context.Background(), msg, classify.Result{Category: models.CategoryEvent}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{`"events"`, "2026-03-04T09:00:00Z", "Wednesday", "SUBJECT: Standup moved"} {
		if !strings.Contains(p.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !p.opts.JSON {
		t.Error("extraction should request JSON output")
	}
}

func TestModel_Events(t *testing.T) {
	got, err := modelExtract(t, models.CategoryEvent,
		"```json\n{\"events\": [{\"title\": \"Team sync\", \"date\": \"March 6, 2026\", \"time\": \"2:30 PM\", \"location\": \"Room 4\", \"attendees\": [\"A@x.com\", \"a@x.com\"]}]}\n```")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(got.Events))
	}
	ev := got.Events[0]
	if ev.MessageID != "llm1" || ev.Title != "Team sync" || ev.Location != "Room 4" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Date == nil || *ev.Date != "2026-03-06" || ev.Time == nil || *ev.Time != "14:30" {
		t.Errorf("date/time = %v/%v, want normalized 2026-03-06/14:30", ev.Date, ev.Time)
	}
	if !slices.Equal(ev.Attendees, []string{"a@x.com"}) {
		t.Errorf("Attendees = %v", ev.Attendees)
	}
}

func TestModel_EmptyListIsNotFound(t *testing.T) {
	got, err := modelExtract(t, models.CategoryEvent, `{"events": []}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Found() {
		t.Errorf("extraction = %+v, want none", got)
	}
}

func TestModel_TasksPriorityIsRecomputed(t *testing.T) {
	got, err := modelExtract(t, models.CategoryTask,
		`{"tasks": [
			{"description": "Ship the release", "deadline": "2026-03-05", "priority": "low"},
			{"description": "Call the bank", "deadline": null, "explicit_urgency": true},
			{"description": "Plan the offsite", "deadline": "2026-03-30T12:00:00Z"}
		]}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(got.Tasks))
	}
	want := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
	if d := got.Tasks[0].Deadline; d == nil || !d.Equal(want) {
		t.Errorf("deadline = %v, want %v", d, want)
	}
	for i, p := range []models.Priority{models.PriorityHigh, models.PriorityUrgent, models.PriorityLow} {
		if got.Tasks[i].Priority != p {
			t.Errorf("task %d priority = %s, want %s", i, got.Tasks[i].Priority, p)
		}
	}
}

func TestModel_TasksPriorityFollowsClockNotSendTime(t *testing.T) {
	m, err := NewModel(models.CategoryTask, &mockProvider{
		response: `{"tasks": [{"description": "Ship the release", "deadline": "2026-03-05"}]}`,
	}, fixedClock)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	msg := message("llm4", "sender@example.com", "Subject", "Body")
	msg.SentAt = wednesday.AddDate(0, 0, -10)
	msg.ReceivedAt = msg.SentAt

	got, err := m.Extract(context.Background(), msg, classify.Result{Category: models.CategoryTask})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if p := got.Tasks[0].Priority; p != models.PriorityHigh {
		t.Errorf("priority = %s, want high", p)
	}
}

func TestModel_SpamActionFollowsSeverity(t *testing.T) {
	got, err := modelExtract(t, models.CategorySpam,
		`{"spam": [{"is_spam": true, "spam_type": "phishing", "severity": "HIGH", "confidence": 0.9,
		  "reasoning": "credential lure", "indicators": ["credential_request"]}]}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	sa := got.Spam[0]
	if sa.Severity != models.SeverityHigh || sa.Action != models.ActionBlockReport || !sa.ShouldBlock || !sa.ShouldReport {
		t.Errorf("spam = %+v", sa)
	}
	if sa.RedFlags == nil {
		t.Error("RedFlags should be non-nil")
	}
}

func TestModel_SocialAndJobs(t *testing.T) {
	social, err := modelExtract(t, models.CategorySocial,
		`{"social": [{"relationship_type": "Friend", "purposes": ["catch_up"], "sentiment_tone": "positive",
		  "response_required": false, "response_urgency": "high",
		  "life_events": [{"date": "2026-05-01", "description": "moving"}], "topics": ["travel"]}]}`)
	if err != nil {
		t.Fatalf("social: %v", err)
	}
	si := social.Social[0]
	if si.Relationship != models.RelationshipFriend || si.ResponseUrgency != ResponseNone || si.ImportantDates == nil {
		t.Errorf("social = %+v", si)
	}

	jobs, err := modelExtract(t, models.CategoryRecruiting,
		`{"jobs": [{"title": "Go Engineer", "company": "Initech", "communication_type": "interview_invitation",
		  "relevance": "high", "skills": ["Go", "go", "SQL"], "deadline": "2026-03-20"}]}`)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	job := jobs.Jobs[0]
	if job.Status != StatusInterviewing || job.Quality != LevelMedium || job.RecruiterEmail != "sender@example.com" {
		t.Errorf("job = %+v", job)
	}
	if !slices.Equal(job.Skills, []string{"go", "sql"}) {
		t.Errorf("Skills = %v", job.Skills)
	}
	if job.Deadline == nil || job.Deadline.Day() != 20 {
		t.Errorf("Deadline = %v", job.Deadline)
	}
}

func TestModel_SocialKeepsFreeTextDates(t *testing.T) {
	got, err := modelExtract(t, models.CategorySocial,
		`{"social": [{"relationship_type": "family", "sentiment_tone": "positive",
		  "response_required": true, "response_urgency": "medium",
		  "life_events": [{"date": "next spring", "description": "wedding"}],
		  "important_dates": [{"date": " 2026/06/14 ", "description": "birthday"}, {"date": " late June ", "description": "reunion"}]}]}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	si := got.Social[0]
	if d := si.LifeEvents[0].Date; d != "next spring" {
		t.Errorf("life event date = %q, want raw text", d)
	}
	want := []string{"2026-06-14", "late June"}
	for i, w := range want {
		if d := si.ImportantDates[i].Date; d != w {
			t.Errorf("important date %d = %q, want %q", i, d, w)
		}
	}
}

func TestModel_ParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		category models.Category
		response string
	}{
		{"not json", models.CategoryEvent, "I could not find any events."},
		{"missing list", models.CategoryEvent, `{"items": []}`},
		{"list is object", models.CategoryTask, `{"tasks": {"description": "x"}}`},
		{"event without title", models.CategoryEvent, `{"events": [{"date": "2026-03-06"}]}`},
		{"bad date", models.CategoryEvent, `{"events": [{"title": "x", "date": "someday"}]}`},
		{"bad time", models.CategoryEvent, `{"events": [{"title": "x", "time": "after lunch"}]}`},
		{"bad deadline", models.CategoryTask, `{"tasks": [{"description": "x", "deadline": "soonish"}]}`},
		{"unknown severity", models.CategorySpam, `{"spam": [{"spam_type": "scam", "severity": "extreme", "confidence": 0.5}]}`},
		{"confidence out of range", models.CategorySpam, `{"spam": [{"spam_type": "scam", "severity": "high", "confidence": 1.5}]}`},
		{"unknown relationship", models.CategorySocial, `{"social": [{"relationship_type": "rival", "sentiment_tone": "neutral", "response_urgency": "none"}]}`},
		{"unknown communication type", models.CategoryRecruiting, `{"jobs": [{"title": "x", "communication_type": "ghosting"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := modelExtract(t, tt.category, tt.response)
			if !models.IsExtractionParse(err) {
				t.Fatalf("err = %v, want extraction ParseError", err)
			}
			var pe *models.ParseError
			if errors.As(err, &pe) && pe.MessageID != "llm1" {
				t.Errorf("MessageID = %q", pe.MessageID)
			}
		})
	}
}

func TestModel_ProviderErrorIsTransient(t *testing.T) {
	m, _ := NewModel(models.CategoryTask, &mockProvider{err: errors.New("connection reset")}, fixedClock)
	_, err := m.Extract(context.Background(), message("llm3", "a@example.com", "s", "b"), classify.Result{})
	if !models.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if models.IsExtractionParse(err) {
		t.Error("provider failure should not be a parse error")
	}
}
