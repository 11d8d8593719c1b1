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
	"math"
	"slices"
	"testing"
	"time"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/models"
)

func fixedClock() time.Time { return wednesday }

func message(id, from, subject, body string) models.Message {
	return models.Message{
		ID:         id,
		Origin:     models.OriginEmail,
		Sender:     models.Sender{Address: from},
		Subject:    subject,
		Body:       body,
		SentAt:     wednesday,
		ReceivedAt: wednesday,
	}
}

func run(t *testing.T, ex Extractor, msg models.Message) models.Extraction {
	t.Helper()
	got, err := ex.Extract(context.Background(), msg, classify.Result{Category: ex.Category()})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Category != ex.Category() || !got.Consistent() {
		t.Fatalf("extraction category = %s (consistent=%v), want %s", got.Category, got.Consistent(), ex.Category())
	}
	return got
}

func TestPatternSet(t *testing.T) {
	s := PatternSet(fixedClock)
	want := []models.Category{
		models.CategoryRecruiting, models.CategoryEvent, models.CategoryTask,
		models.CategorySpam, models.CategorySocial,
	}
	if got := s.Categories(); !slices.Equal(got, want) {
		t.Errorf("Categories() = %v, want %v", got, want)
	}
	for _, c := range []models.Category{models.CategoryFinancial, models.CategoryUrgent, models.CategoryInformational} {
		if _, ok := s.For(c); ok {
			t.Errorf("For(%s) should have no extractor", c)
		}
	}
}

func TestEventExtractor(t *testing.T) {
	msg := message("m1", "Alice@Example.com", "Invitation: Team offsite planning",
		"Join us on Friday at 2:30 PM.\nLocation: Room 401\nCC: bob@example.com")
	got := run(t, NewEventExtractor(fixedClock), msg)
	if len(got.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(got.Events))
	}
	ev := got.Events[0]
	if ev.Title != "Team offsite planning" {
		t.Errorf("Title = %q", ev.Title)
	}
	if ev.Date == nil || *ev.Date != "2026-03-06" {
		t.Errorf("Date = %v, want 2026-03-06", ev.Date)
	}
	if ev.Time == nil || *ev.Time != "14:30" {
		t.Errorf("Time = %v, want 14:30", ev.Time)
	}
	if ev.Location != "Room 401" {
		t.Errorf("Location = %q", ev.Location)
	}
	if want := []string{"alice@example.com", "bob@example.com"}; !slices.Equal(ev.Attendees, want) {
		t.Errorf("Attendees = %v, want %v", ev.Attendees, want)
	}
	if ev.MessageID != "m1" {
		t.Errorf("MessageID = %q", ev.MessageID)
	}
}

func TestEventExtractor_PlaceAndNoon(t *testing.T) {
	msg := message("m2", "a@example.com", "", "Demo next Thursday at noon at Blue Bottle Cafe")
	ev := run(t, NewEventExtractor(fixedClock), msg).Events[0]
	if ev.Date == nil || *ev.Date != "2026-03-05" {
		t.Errorf("Date = %v, want 2026-03-05", ev.Date)
	}
	if ev.Time == nil || *ev.Time != "12:00" {
		t.Errorf("Time = %v, want 12:00", ev.Time)
	}
	if ev.Location != "Blue Bottle Cafe" {
		t.Errorf("Location = %q", ev.Location)
	}
}

func TestEventExtractor_Undated(t *testing.T) {
	msg := message("m3", "a@example.com", "Book club", "Let's meet to discuss the novel.")
	got := run(t, NewEventExtractor(fixedClock), msg)
	if len(got.Events) != 1 {
		t.Fatalf("events = %d, want 1 even without a date", len(got.Events))
	}
	if ev := got.Events[0]; ev.Date != nil || ev.Time != nil || ev.Location != "" {
		t.Errorf("undated event = %+v", ev)
	}
}

func TestExtractors_EmptyMessageIsNotFound(t *testing.T) {
	empty := message("m0", "a@example.com", "", "  ")
	for _, ex := range []Extractor{
		NewEventExtractor(fixedClock),
		NewSocialExtractor(fixedClock),
		NewSpamExtractor(),
		NewRecruitmentExtractor(fixedClock),
	} {
		if got := run(t, ex, empty); got.Found() {
			t.Errorf("%s: empty message produced %d records", ex.Category(), got.Len())
		}
	}
}

func TestPriorityFor(t *testing.T) {
	at := func(d time.Duration) *time.Time {
		v := wednesday.Add(d)
		return &v
	}
	tests := []struct {
		name     string
		deadline *time.Time
		want     models.Priority
	}{
		{"none", nil, models.PriorityLow},
		{"overdue", at(-time.Hour), models.PriorityUrgent},
		{"12h", at(12 * time.Hour), models.PriorityUrgent},
		{"exactly 24h", at(24 * time.Hour), models.PriorityUrgent},
		{"2 days", at(48 * time.Hour), models.PriorityHigh},
		{"exactly 3 days", at(72 * time.Hour), models.PriorityHigh},
		{"10 days", at(240 * time.Hour), models.PriorityMedium},
		{"20 days", at(480 * time.Hour), models.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriorityFor(tt.deadline, wednesday); got != tt.want {
				t.Errorf("PriorityFor = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTaskExtractor_Bullets(t *testing.T) {
	msg := message("t1", "boss@example.com", "Action items",
		"Hi,\n- Send the Q3 report by Friday\n- Review the contract\nThanks")
	got := run(t, NewTaskExtractor(fixedClock), msg)
	if len(got.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(got.Tasks))
	}
	friday5pm := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	for i, want := range []string{"Send the Q3 report by Friday", "Review the contract"} {
		task := got.Tasks[i]
		if task.Description != want {
			t.Errorf("task %d description = %q, want %q", i, task.Description, want)
		}
		if task.Deadline == nil || !task.Deadline.Equal(friday5pm) {
			t.Errorf("task %d deadline = %v, want %v", i, task.Deadline, friday5pm)
		}
		if task.Priority != models.PriorityHigh {
			t.Errorf("task %d priority = %s, want high", i, task.Priority)
		}
	}
}

func TestTaskExtractor_RequestSentence(t *testing.T) {
	msg := message("t2", "a@example.com", "Quick favor", "Could you send me the slides before 3/12? It would help.")
	got := run(t, NewTaskExtractor(fixedClock), msg)
	if len(got.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(got.Tasks))
	}
	task := got.Tasks[0]
	if task.Description != "Could you send me the slides before 3/12?" {
		t.Errorf("Description = %q", task.Description)
	}
	want := time.Date(2026, 3, 12, 17, 0, 0, 0, time.UTC)
	if task.Deadline == nil || !task.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", task.Deadline, want)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("Priority = %s, want medium", task.Priority)
	}
}

func TestTaskExtractor_PriorityFollowsClockNotSendTime(t *testing.T) {
	msg := message("t6", "a@example.com", "Slides", "Could you send me the slides before 3/5?")
	msg.SentAt = wednesday.AddDate(0, 0, -10)
	msg.ReceivedAt = msg.SentAt

	task := run(t, NewTaskExtractor(fixedClock), msg).Tasks[0]
	want := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
	if task.Deadline == nil || !task.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", task.Deadline, want)
	}
	// 32 hours from the clock, eleven days from when it was sent.
	if task.Priority != models.PriorityHigh {
		t.Errorf("Priority = %s, want high", task.Priority)
	}
}

func TestTaskExtractor_EndOfDay(t *testing.T) {
	msg := message("t3", "a@example.com", "", "Please update the tracker by EOD.")
	task := run(t, NewTaskExtractor(fixedClock), msg).Tasks[0]
	want := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	if task.Deadline == nil || !task.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", task.Deadline, want)
	}
	if task.Priority != models.PriorityUrgent {
		t.Errorf("Priority = %s, want urgent", task.Priority)
	}
}

func TestTaskExtractor_SubjectFallbackAndUrgentWords(t *testing.T) {
	msg := message("t4", "a@example.com", "URGENT: fix the login page", "")
	got := run(t, NewTaskExtractor(fixedClock), msg)
	if len(got.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(got.Tasks))
	}
	task := got.Tasks[0]
	if task.Description != "URGENT: fix the login page" || task.Deadline != nil {
		t.Errorf("task = %+v", task)
	}
	if task.Priority != models.PriorityUrgent {
		t.Errorf("Priority = %s, want urgent", task.Priority)
	}
}

func TestTaskExtractor_SkipsCompletedCheckboxes(t *testing.T) {
	msg := message("t5", "a@example.com", "Trip prep", "[x] Book flights\n[ ] Reserve hotel")
	got := run(t, NewTaskExtractor(fixedClock), msg)
	if len(got.Tasks) != 1 || got.Tasks[0].Description != "Reserve hotel" {
		t.Fatalf("tasks = %+v, want only Reserve hotel", got.Tasks)
	}
	if got.Tasks[0].Priority != models.PriorityLow {
		t.Errorf("Priority = %s, want low", got.Tasks[0].Priority)
	}
}

func TestTaskExtractor_EmptyMessageIsNotFound(t *testing.T) {
	got := run(t, NewTaskExtractor(fixedClock), message("t6", "a@example.com", "", ""))
	if got.Found() {
		t.Errorf("tasks = %+v, want none", got.Tasks)
	}
}

func TestSocialExtractor(t *testing.T) {
	msg := message("s1", "mom@gmail.com", "Dinner Sunday?",
		"Hi honey! Would you like to come over for dinner on Sunday? Your cousin got engaged last week. Love you, Mom")
	got := run(t, NewSocialExtractor(fixedClock), msg)
	if len(got.Social) != 1 {
		t.Fatalf("social = %d, want 1", len(got.Social))
	}
	si := got.Social[0]
	if si.Relationship != models.RelationshipFamily {
		t.Errorf("Relationship = %q, want family", si.Relationship)
	}
	if !slices.Equal(si.Purposes, []string{"invitation"}) {
		t.Errorf("Purposes = %v", si.Purposes)
	}
	if si.Tone != TonePositive {
		t.Errorf("Tone = %q, want positive", si.Tone)
	}
	if !si.ResponseRequired || si.ResponseUrgency != ResponseLow {
		t.Errorf("response = %v/%q, want required/low", si.ResponseRequired, si.ResponseUrgency)
	}
	if len(si.LifeEvents) != 1 || si.LifeEvents[0].Description != "Your cousin got engaged last week" || si.LifeEvents[0].Date != "" {
		t.Errorf("LifeEvents = %+v", si.LifeEvents)
	}
	for _, topic := range []string{"food", "family"} {
		if !slices.Contains(si.Topics, topic) {
			t.Errorf("Topics = %v, missing %q", si.Topics, topic)
		}
	}
}

func TestSocialExtractor_NoReplyNeeded(t *testing.T) {
	msg := message("s2", "pal@example.com", "", "Just wanted to say thanks for the gift.")
	si := run(t, NewSocialExtractor(fixedClock), msg).Social[0]
	if si.ResponseRequired || si.ResponseUrgency != ResponseNone {
		t.Errorf("response = %v/%q, want not required/none", si.ResponseRequired, si.ResponseUrgency)
	}
	if !slices.Contains(si.Purposes, "gratitude") {
		t.Errorf("Purposes = %v, want gratitude", si.Purposes)
	}
	if si.LifeEvents == nil || si.ImportantDates == nil {
		t.Error("empty note lists should be non-nil")
	}
}

func TestImportantDates(t *testing.T) {
	notes := importantDates("Save the date: our wedding is on June 12. See you.", wednesday)
	if len(notes) != 1 || notes[0].Date != "2026-06-12" {
		t.Fatalf("importantDates = %+v", notes)
	}
}

func TestAnalyzeSpam(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		spamType   string
		severity   models.Severity
		action     string
		block      bool
		isSpam     bool
		confidence float64
	}{
		{
			name:       "phishing",
			text:       "Dear customer, your account suspended. Verify your account now: click here http://1.2.3.4/login",
			spamType:   models.SpamPhishing,
			severity:   models.SeverityCritical,
			action:     models.ActionBlockReport,
			block:      true,
			isSpam:     true,
			confidence: 0.8,
		},
		{
			name:       "marketing",
			text:       "Huge sale! 50% off everything. Limited time only. Unsubscribe here.",
			spamType:   models.SpamMarketing,
			severity:   models.SeverityMedium,
			action:     models.ActionUnsubscribe,
			isSpam:     true,
			confidence: 0.7,
		},
		{
			name:       "malware",
			text:       "Please open the attached invoice.exe and enable macros",
			spamType:   models.SpamMalware,
			severity:   models.SeverityCritical,
			action:     models.ActionBlockReport,
			block:      true,
			isSpam:     true,
			confidence: 0.6,
		},
		{
			name:       "clean",
			text:       "See you at the standup tomorrow.",
			spamType:   models.SpamNone,
			severity:   models.SeveritySafe,
			action:     models.ActionKeep,
			confidence: 0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeSpam("x1", tt.text)
			if got.SpamType != tt.spamType || got.Severity != tt.severity {
				t.Errorf("type/severity = %s/%s, want %s/%s (indicators %v)", got.SpamType, got.Severity, tt.spamType, tt.severity, got.Indicators)
			}
			if got.Action != tt.action || got.ShouldBlock != tt.block || got.ShouldReport != tt.block {
				t.Errorf("action = %s block=%v report=%v, want %s block=%v", got.Action, got.ShouldBlock, got.ShouldReport, tt.action, tt.block)
			}
			if got.IsSpam != tt.isSpam {
				t.Errorf("IsSpam = %v, want %v", got.IsSpam, tt.isSpam)
			}
			if math.Abs(got.Confidence-tt.confidence) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.confidence)
			}
			if got.Indicators == nil || got.RedFlags == nil {
				t.Error("indicator lists should be non-nil")
			}
		})
	}
}

func TestRecruitmentExtractor_Invitation(t *testing.T) {
	msg := message("r1", "jane@acme.io", "Senior Backend Engineer opportunity at Acme",
		"Hi, I'm a recruiter with Acme. We'd love to schedule an interview for our Senior Backend Engineer role. "+
			"The role is remote, full-time, paying $150k-$180k. Skills: Go, Kubernetes, PostgreSQL. "+
			"Apply by March 20: https://acme.io/careers/123")
	msg.Sender.Name = "Jane Recruiter"
	got := run(t, NewRecruitmentExtractor(fixedClock), msg)
	if len(got.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(got.Jobs))
	}
	job := got.Jobs[0]

	checks := map[string][2]string{
		"Title":             {job.Title, "Senior Backend Engineer"},
		"Company":           {job.Company, "Acme"},
		"WorkMode":          {job.WorkMode, "remote"},
		"JobType":           {job.JobType, "full_time"},
		"SalaryRange":       {job.SalaryRange, "$150k-$180k"},
		"ExperienceLevel":   {job.ExperienceLevel, "senior"},
		"SourceType":        {job.SourceType, "recruiter"},
		"RecruiterName":     {job.RecruiterName, "Jane Recruiter"},
		"RecruiterEmail":    {job.RecruiterEmail, "jane@acme.io"},
		"ApplicationLink":   {job.ApplicationLink, "https://acme.io/careers/123"},
		"CommunicationType": {job.CommunicationType, models.CommInterviewInvitation},
		"Relevance":         {job.Relevance, LevelHigh},
		"Quality":           {job.Quality, LevelHigh},
		"Legitimacy":        {job.Legitimacy, LevelHigh},
		"Interest":          {job.Interest, LevelHigh},
		"Status":            {job.Status, StatusInterviewing},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}
	if want := []string{"go", "kubernetes", "postgresql"}; !slices.Equal(job.Skills, want) {
		t.Errorf("Skills = %v, want %v", job.Skills, want)
	}
	wantDeadline := time.Date(2026, 3, 20, 17, 0, 0, 0, time.UTC)
	if job.Deadline == nil || !job.Deadline.Equal(wantDeadline) {
		t.Errorf("Deadline = %v, want %v", job.Deadline, wantDeadline)
	}
	if !job.IsInterviewInvitation() {
		t.Error("IsInterviewInvitation() = false")
	}
}

func TestRecruitmentExtractor_Rejection(t *testing.T) {
	msg := message("r2", "careers@globex.com", "Your application",
		"Thank you for applying. Unfortunately we will not be moving forward.")
	job := run(t, NewRecruitmentExtractor(fixedClock), msg).Jobs[0]
	if job.CommunicationType != models.CommRejection || job.Status != StatusRejected || job.Interest != LevelLow {
		t.Errorf("job = %s/%s/%s, want rejection/rejected/low", job.CommunicationType, job.Status, job.Interest)
	}
	if job.Company != "Globex" {
		t.Errorf("Company = %q, want sender domain fallback Globex", job.Company)
	}
}
