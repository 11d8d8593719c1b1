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

package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bcem/triage/internal/llm"
	"github.com/bcem/triage/internal/models"
)

const maxPromptBody = 4000

const classifySystemPrompt = `You are an email and chat triage classifier. Assign exactly ONE category to the message.

CATEGORIES:
- recruiting: job opportunities, recruiter outreach, interviews, offers, application updates
- event: meetings, appointments, invitations, webinars, anything to put on a calendar
- task: requests or assignments the reader must act on, deadlines, action items
- spam: unsolicited marketing, phishing, scams, prize notifications
- financial: invoices, receipts, payments, statements, billing, refunds
- urgent: time-critical issues needing immediate attention that fit no other category
- social: personal messages from friends, family or colleagues, catching up, life events
- informational: newsletters, announcements, FYIs and anything else

Interview language means recruiting even when the message schedules a time.

Return JSON only:
{"category": "<one category>", "urgency": "low|medium|high", "confidence": <0.0-1.0>}`

// Model classifies messages through an LLM provider.
type Model struct {
	provider llm.Provider
	taxonomy *models.Taxonomy
}

// NewModel creates a model-backed classifier.
func NewModel(provider llm.Provider, taxonomy *models.Taxonomy) *Model {
	return &Model{provider: provider, taxonomy: taxonomy}
}

func (m *Model) Name() string { return m.provider.Name() }

// Classify sends one prompt per message. Provider failures are transient;
// responses that do not match the schema are classification parse errors.
func (m *Model) Classify(ctx context.Context, msg models.Message) (Result, error) {
	raw, err := m.provider.Complete(ctx, buildClassifyPrompt(msg), llm.CompletionOpts{
		Temperature: 0,
		MaxTokens:   200,
		System:      classifySystemPrompt,
		JSON:        true,
	})
	if err != nil {
		return Result{}, &models.TransientError{Op: "classify " + msg.ID, Err: err}
	}

	res, err := parseClassifyResponse(raw, msg.Origin, m.taxonomy)
	if err != nil {
		return Result{}, &models.ParseError{
			Stage:     models.StageClassify,
			MessageID: msg.ID,
			Raw:       llm.Truncate(raw, 300),
			Err:       err,
		}
	}
	res.Backend = m.provider.Name()
	return res, nil
}

func buildClassifyPrompt(msg models.Message) string {
	var sb strings.Builder
	sb.WriteString("Classify this message. Return JSON only.\n\n")
	fmt.Fprintf(&sb, "ORIGIN: %s\n", msg.Origin)
	fmt.Fprintf(&sb, "FROM: %s <%s>\n", msg.Sender.Name, msg.Sender.Address)
	subject := msg.Subject
	if subject == "" {
		subject = "(none)"
	}
	fmt.Fprintf(&sb, "SUBJECT: %s\n", subject)
	sb.WriteString("BODY:\n")
	sb.WriteString(llm.Truncate(msg.Body, maxPromptBody))
	return sb.String()
}

func parseClassifyResponse(raw, origin string, taxonomy *models.Taxonomy) (Result, error) {
	cleaned, err := llm.CleanJSON(raw)
	if err != nil {
		return Result{}, err
	}
	doc := gjson.Parse(cleaned)

	label := doc.Get("category")
	if label.Type != gjson.String {
		return Result{}, fmt.Errorf("missing string field \"category\"")
	}
	category, err := models.ParseCategory(label.String())
	if err != nil {
		return Result{}, err
	}
	if !taxonomy.Allows(origin, category) {
		return Result{}, fmt.Errorf("category %s is not allowed for origin %s", category, origin)
	}

	conf := doc.Get("confidence")
	if conf.Type != gjson.Number {
		return Result{}, fmt.Errorf("missing numeric field \"confidence\"")
	}
	if c := conf.Float(); c < 0 || c > 1 {
		return Result{}, fmt.Errorf("confidence %v outside [0,1]", c)
	}

	urgency := models.UrgencyLow
	if u := doc.Get("urgency"); u.Exists() {
		if urgency, err = models.ParseUrgency(u.String()); err != nil {
			return Result{}, err
		}
	}
	if category == models.CategoryUrgent {
		urgency = models.UrgencyHigh
	}

	return Result{
		Category:   category,
		Urgency:    urgency,
		Confidence: clampConfidence(conf.Float()),
	}, nil
}
