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
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/llm"
	"github.com/bcem/triage/internal/models"
)

// schema describes one category's response shape to the model and decodes it.
type schema struct {
	key         string
	description string
	decode      func(items []gjson.Result, msg models.Message, ref, now time.Time) (models.Extraction, error)
}

var schemas = map[models.Category]schema{
	models.CategoryEvent: {
		key: "events",
		description: `{"events": [{"title": string, "date": "YYYY-MM-DD" or null, "time": "HH:MM" (24h) or null,
  "location": string, "attendees": [email strings]}]}`,
		decode: decodeEvents,
	},
	models.CategoryTask: {
		key: "tasks",
		description: `{"tasks": [{"description": string, "deadline": "YYYY-MM-DD" or "YYYY-MM-DDTHH:MM:SSZ" or null,
  "explicit_urgency": boolean}]}`,
		decode: decodeTasks,
	},
	models.CategorySocial: {
		key: "social",
		description: `{"social": [{"relationship_type": "family|friend|colleague|professional|acquaintance|unknown",
  "purposes": [string], "sentiment_tone": "positive|neutral|negative", "response_required": boolean,
  "response_urgency": "none|low|medium|high",
  "life_events": [{"date": "YYYY-MM-DD" or "", "description": string}],
  "important_dates": [{"date": "YYYY-MM-DD" or "", "description": string}], "topics": [string]}]}`,
		decode: decodeSocial,
	},
	models.CategorySpam: {
		key: "spam",
		description: `{"spam": [{"is_spam": boolean, "spam_type": "none|marketing|phishing|scam|malware",
  "severity": "safe|low|medium|high|critical", "confidence": number 0-1, "reasoning": string,
  "indicators": [string], "red_flags": [string]}]}`,
		decode: decodeSpam,
	},
	models.CategoryRecruiting: {
		key: "jobs",
		description: `{"jobs": [{"title": string, "company": string, "location": string, "job_type": string,
  "work_mode": string, "salary_range": string, "experience_level": string, "skills": [string],
  "deadline": "YYYY-MM-DD" or null, "source_type": string, "recruiter_name": string,
  "recruiter_email": string, "application_link": string,
  "communication_type": "new_opportunity|follow_up|interview_invitation|offer|rejection|confirmation|networking",
  "relevance": "low|medium|high", "quality": "low|medium|high", "legitimacy": "low|medium|high",
  "interest": "low|medium|high"}]}`,
		decode: decodeJobs,
	},
}

// Model is a model-backed extractor for one category.
type Model struct {
	category models.Category
	schema   schema
	provider llm.Provider
	clock    Clock
}

// NewModel creates a model-backed extractor for c.
func NewModel(c models.Category, provider llm.Provider, clock Clock) (*Model, error) {
	s, ok := schemas[c]
	if !ok {
		return nil, fmt.Errorf("no extraction schema for category %s", c)
	}
	return &Model{category: c, schema: s, provider: provider, clock: clock}, nil
}

// ModelSet returns model-backed extractors for every extractable category.
func ModelSet(provider llm.Provider, clock Clock) *Set {
	var exs []Extractor
	for _, c := range models.Categories {
		if m, err := NewModel(c, provider, clock); err == nil {
			exs = append(exs, m)
		}
	}
	return NewSet(exs...)
}

func (m *Model) Category() models.Category { return m.category }

func (m *Model) Extract(ctx context.Context, msg models.Message, res classify.Result) (models.Extraction, error) {
	ref := referenceTime(msg, m.clock)
	raw, err := m.provider.Complete(ctx, m.prompt(msg, res, ref), llm.CompletionOpts{
		Temperature: 0,
		MaxTokens:   1500,
		System:      "You extract structured data from messages. Return JSON only, matching the schema exactly. Use an empty list when nothing applies.",
		JSON:        true,
	})
	if err != nil {
		return models.Extraction{}, &models.TransientError{Op: "extract " + string(m.category) + " " + msg.ID, Err: err}
	}

	ex, err := m.parse(raw, msg, ref)
	if err != nil {
		return models.Extraction{}, &models.ParseError{
			Stage:     models.StageExtract,
			MessageID: msg.ID,
			Raw:       llm.Truncate(raw, 300),
			Err:       err,
		}
	}
	return ex, nil
}

func (m *Model) prompt(msg models.Message, res classify.Result, ref time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "This message was classified as %s (urgency %s).\n", res.Category, res.Urgency)
	fmt.Fprintf(&sb, "Resolve relative dates against %s (%s).\n\n", ref.Format(time.RFC3339), ref.Weekday())
	sb.WriteString("SCHEMA:\n")
	sb.WriteString(m.schema.description)
	sb.WriteString("\n\nMESSAGE:\n")
	fmt.Fprintf(&sb, "FROM: %s <%s>\n", msg.Sender.Name, msg.Sender.Address)
	fmt.Fprintf(&sb, "SUBJECT: %s\n", msg.Subject)
	sb.WriteString(llm.Truncate(msg.Body, 6000))
	return sb.String()
}

func (m *Model) parse(raw string, msg models.Message, ref time.Time) (models.Extraction, error) {
	cleaned, err := llm.CleanJSON(raw)
	if err != nil {
		return models.Extraction{}, err
	}
	list := gjson.Get(cleaned, m.schema.key)
	if !list.Exists() {
		return models.Extraction{}, fmt.Errorf("missing %q list", m.schema.key)
	}
	if !list.IsArray() {
		return models.Extraction{}, fmt.Errorf("%q is not a list", m.schema.key)
	}
	return m.schema.decode(list.Array(), msg, ref, currentTime(m.clock))
}

func decodeEvents(items []gjson.Result, msg models.Message, _, _ time.Time) (models.Extraction, error) {
	ex := models.Extraction{Category: models.CategoryEvent}
	for i, it := range items {
		var w struct {
			Title     string   `json:"title"`
			Date      *string  `json:"date"`
			Time      *string  `json:"time"`
			Location  string   `json:"location"`
			Attendees []string `json:"attendees"`
		}
		if err := json.Unmarshal([]byte(it.Raw), &w); err != nil {
			return ex, fmt.Errorf("events[%d]: %w", i, err)
		}
		if strings.TrimSpace(w.Title) == "" {
			return ex, fmt.Errorf("events[%d]: title is required", i)
		}
		ev := models.Event{MessageID: msg.ID, Title: w.Title, Location: w.Location, Attendees: uniqueLower(w.Attendees)}
		if w.Date != nil && *w.Date != "" {
			d, err := NormalizeDate(*w.Date)
			if err != nil {
				return ex, fmt.Errorf("events[%d]: %w", i, err)
			}
			ev.Date = &d
		}
		if w.Time != nil && *w.Time != "" {
			t, err := NormalizeTime(*w.Time)
			if err != nil {
				return ex, fmt.Errorf("events[%d]: %w", i, err)
			}
			ev.Time = &t
		}
		ex.Events = append(ex.Events, ev)
	}
	return ex, nil
}

func decodeTasks(items []gjson.Result, msg models.Message, ref, now time.Time) (models.Extraction, error) {
	ex := models.Extraction{Category: models.CategoryTask}
	for i, it := range items {
		var w struct {
			Description     string  `json:"description"`
			Deadline        *string `json:"deadline"`
			ExplicitUrgency bool    `json:"explicit_urgency"`
		}
		if err := json.Unmarshal([]byte(it.Raw), &w); err != nil {
			return ex, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		if strings.TrimSpace(w.Description) == "" {
			return ex, fmt.Errorf("tasks[%d]: description is required", i)
		}
		t := models.Task{MessageID: msg.ID, Description: w.Description}
		if w.Deadline != nil && *w.Deadline != "" {
			dl, err := parseDeadline(*w.Deadline, ref.Location())
			if err != nil {
				return ex, fmt.Errorf("tasks[%d]: %w", i, err)
			}
			t.Deadline = &dl
		}
		// The ladder is recomputed, never taken from the model.
		t.Priority = PriorityFor(t.Deadline, now)
		if w.ExplicitUrgency {
			t.Priority = models.PriorityUrgent
		}
		ex.Tasks = append(ex.Tasks, t)
	}
	return ex, nil
}

func decodeSocial(items []gjson.Result, msg models.Message, _, _ time.Time) (models.Extraction, error) {
	ex := models.Extraction{Category: models.CategorySocial}
	for i, it := range items {
		var si models.SocialInteraction
		if err := json.Unmarshal([]byte(it.Raw), &si); err != nil {
			return ex, fmt.Errorf("social[%d]: %w", i, err)
		}
		si.ID, si.MessageID, si.CreatedAt = 0, msg.ID, time.Time{}
		si.Relationship = strings.ToLower(si.Relationship)
		if !slices.Contains([]string{
			models.RelationshipFamily, models.RelationshipFriend, models.RelationshipColleague,
			models.RelationshipProfessional, models.RelationshipAcquaintance, models.RelationshipUnknown,
		}, si.Relationship) {
			return ex, fmt.Errorf("social[%d]: unknown relationship_type %q", i, si.Relationship)
		}
		si.Tone = strings.ToLower(si.Tone)
		if !slices.Contains([]string{TonePositive, ToneNeutral, ToneNegative}, si.Tone) {
			return ex, fmt.Errorf("social[%d]: unknown sentiment_tone %q", i, si.Tone)
		}
		si.ResponseUrgency = strings.ToLower(si.ResponseUrgency)
		if !slices.Contains([]string{ResponseNone, ResponseLow, ResponseMedium, ResponseHigh}, si.ResponseUrgency) {
			return ex, fmt.Errorf("social[%d]: unknown response_urgency %q", i, si.ResponseUrgency)
		}
		if !si.ResponseRequired {
			si.ResponseUrgency = ResponseNone
		}
		for _, notes := range [][]models.DatedNote{si.LifeEvents, si.ImportantDates} {
			for j := range notes {
				if notes[j].Date == "" {
					continue
				}
				if d, err := NormalizeDate(notes[j].Date); err == nil {
					notes[j].Date = d
				} else {
					notes[j].Date = strings.TrimSpace(notes[j].Date)
				}
			}
		}
		si.Purposes, si.Topics = nonNil(si.Purposes), nonNil(si.Topics)
		if si.LifeEvents == nil {
			si.LifeEvents = []models.DatedNote{}
		}
		if si.ImportantDates == nil {
			si.ImportantDates = []models.DatedNote{}
		}
		ex.Social = append(ex.Social, si)
	}
	return ex, nil
}

func decodeSpam(items []gjson.Result, msg models.Message, _, _ time.Time) (models.Extraction, error) {
	ex := models.Extraction{Category: models.CategorySpam}
	for i, it := range items {
		var w struct {
			IsSpam     bool     `json:"is_spam"`
			SpamType   string   `json:"spam_type"`
			Severity   string   `json:"severity"`
			Confidence float64  `json:"confidence"`
			Reasoning  string   `json:"reasoning"`
			Indicators []string `json:"indicators"`
			RedFlags   []string `json:"red_flags"`
		}
		if err := json.Unmarshal([]byte(it.Raw), &w); err != nil {
			return ex, fmt.Errorf("spam[%d]: %w", i, err)
		}
		sev := models.Severity(strings.ToLower(w.Severity))
		if sev.Level() < 0 {
			return ex, fmt.Errorf("spam[%d]: unknown severity %q", i, w.Severity)
		}
		spamType := strings.ToLower(w.SpamType)
		if !slices.Contains([]string{models.SpamNone, models.SpamMarketing, models.SpamPhishing, models.SpamScam, models.SpamMalware}, spamType) {
			return ex, fmt.Errorf("spam[%d]: unknown spam_type %q", i, w.SpamType)
		}
		if w.Confidence < 0 || w.Confidence > 1 {
			return ex, fmt.Errorf("spam[%d]: confidence %v outside [0,1]", i, w.Confidence)
		}
		action, block, report := ActionFor(sev, spamType)
		ex.Spam = append(ex.Spam, models.SpamAnalysis{
			MessageID:    msg.ID,
			IsSpam:       w.IsSpam && sev != models.SeveritySafe,
			SpamType:     spamType,
			Severity:     sev,
			Confidence:   w.Confidence,
			Reasoning:    w.Reasoning,
			Indicators:   nonNil(w.Indicators),
			RedFlags:     nonNil(w.RedFlags),
			Action:       action,
			ShouldBlock:  block,
			ShouldReport: report,
		})
	}
	return ex, nil
}

func decodeJobs(items []gjson.Result, msg models.Message, ref, _ time.Time) (models.Extraction, error) {
	ex := models.Extraction{Category: models.CategoryRecruiting}
	for i, it := range items {
		var w struct {
			models.JobOpportunity
			Deadline *string `json:"deadline"`
		}
		if err := json.Unmarshal([]byte(it.Raw), &w); err != nil {
			return ex, fmt.Errorf("jobs[%d]: %w", i, err)
		}
		job := w.JobOpportunity
		job.ID, job.MessageID, job.CreatedAt = 0, msg.ID, time.Time{}
		job.CommunicationType = strings.ToLower(job.CommunicationType)
		if _, ok := commTypes[job.CommunicationType]; !ok {
			return ex, fmt.Errorf("jobs[%d]: unknown communication_type %q", i, job.CommunicationType)
		}
		for _, lvl := range []*string{&job.Relevance, &job.Quality, &job.Legitimacy, &job.Interest} {
			*lvl = strings.ToLower(*lvl)
			if *lvl == "" {
				*lvl = LevelMedium
			}
			if *lvl != LevelLow && *lvl != LevelMedium && *lvl != LevelHigh {
				return ex, fmt.Errorf("jobs[%d]: unknown assessment %q", i, *lvl)
			}
		}
		if w.Deadline != nil && *w.Deadline != "" {
			dl, err := parseDeadline(*w.Deadline, ref.Location())
			if err != nil {
				return ex, fmt.Errorf("jobs[%d]: %w", i, err)
			}
			job.Deadline = &dl
		}
		job.Skills = uniqueLower(job.Skills)
		job.Status = statusFor(job.CommunicationType)
		if job.RecruiterEmail == "" {
			job.RecruiterEmail = strings.ToLower(msg.Sender.Address)
		}
		ex.Jobs = append(ex.Jobs, job)
	}
	return ex, nil
}

var commTypes = map[string]bool{
	models.CommNewOpportunity: true, models.CommFollowUp: true, models.CommInterviewInvitation: true,
	models.CommOffer: true, models.CommRejection: true, models.CommConfirmation: true, models.CommNetworking: true,
}

// parseDeadline accepts RFC 3339 timestamps and bare dates; bare dates fall
// due at the end of the working day.
func parseDeadline(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t, nil
	}
	d, err := NormalizeDate(s)
	if err != nil {
		return time.Time{}, err
	}
	t, _ := time.ParseInLocation(DateLayout, d, loc)
	return t.Add(deadlineHour * time.Hour), nil
}
