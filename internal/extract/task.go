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
	"regexp"
	"strings"
	"time"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/models"
)

// Priority ladder thresholds. UI grouping depends on these exact values.
const (
	urgentWithin = 24 * time.Hour
	highWithin   = 3 * 24 * time.Hour
	mediumWithin = 14 * 24 * time.Hour
)

// deadlineHour is the time of day assigned to date-only deadlines.
const deadlineHour = 17

// PriorityFor maps deadline proximity to a task priority: within 24h (or
// already past) is urgent, within 3 days high, within 14 days medium, and
// anything later, or no deadline, low.
func PriorityFor(deadline *time.Time, now time.Time) models.Priority {
	if deadline == nil {
		return models.PriorityLow
	}
	until := deadline.Sub(now)
	switch {
	case until <= urgentWithin:
		return models.PriorityUrgent
	case until <= highWithin:
		return models.PriorityHigh
	case until <= mediumWithin:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

var (
	bulletRe     = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]|\[\s?\])\s+(.+?)\s*$`)
	doneBoxRe    = regexp.MustCompile(`^\s*(?:[-*]\s+)?\[[xX]\]`)
	uncheckedRe  = regexp.MustCompile(`^\s*(?:[-*]\s+)?\[\s?\]\s+(.+?)\s*$`)
	requestRe    = regexp.MustCompile(`(?i)^(?:please|kindly|can you|could you|would you|need you to|i need you to|make sure|don't forget to|do not forget to|remember to|action item:|todo:|to-do:)\b`)
	taskUrgentRe = regexp.MustCompile(`(?i)\b(?:urgent|urgently|asap|as soon as possible|immediately|right away|critical)\b`)

	eodRe      = regexp.MustCompile(`(?i)\b(?:by|before)?\s*(?:eod|end of (?:the )?day|close of business|cob|tonight)\b`)
	eowRe      = regexp.MustCompile(`(?i)\b(?:eow|end of (?:the )?week)\b`)
	deadlineRe = regexp.MustCompile(`(?i)\b(?:by|due(?:\s+(?:on|by))?|before|no later than|deadline(?:\s+is)?:?)\s+(.{1,40})`)
)

// TaskExtractor finds action items in a task message.
type TaskExtractor struct {
	clock Clock
}

// NewTaskExtractor creates a task extractor.
func NewTaskExtractor(clock Clock) *TaskExtractor {
	return &TaskExtractor{clock: clock}
}

func (e *TaskExtractor) Category() models.Category { return models.CategoryTask }

// Extract yields one task per bullet, checkbox or request sentence. When none
// are found the subject becomes the single task. Deadlines in a task's own
// text win over a deadline stated elsewhere in the message.
func (e *TaskExtractor) Extract(_ context.Context, msg models.Message, _ classify.Result) (models.Extraction, error) {
	ref := referenceTime(msg, e.clock)
	descriptions := taskLines(msg.Body)
	if len(descriptions) == 0 {
		if s := cleanSubject(msg.Subject); s != "" {
			descriptions = []string{s}
		} else if s := firstSentence(msg.Body, 200); s != "" {
			descriptions = []string{s}
		}
	}
	if len(descriptions) == 0 {
		return models.NotFound(models.CategoryTask), nil
	}

	now := currentTime(e.clock)
	shared := findDeadline(msg.Text(), ref)
	messageUrgent := taskUrgentRe.MatchString(msg.Text())

	tasks := make([]models.Task, 0, len(descriptions))
	for _, d := range descriptions {
		deadline := findDeadline(d, ref)
		if deadline == nil {
			deadline = shared
		}
		priority := PriorityFor(deadline, now)
		if taskUrgentRe.MatchString(d) || (len(descriptions) == 1 && messageUrgent) {
			priority = models.PriorityUrgent
		}
		tasks = append(tasks, models.Task{
			MessageID:   msg.ID,
			Description: clip(d, 500),
			Deadline:    deadline,
			Priority:    priority,
		})
	}

	return models.Extraction{Category: models.CategoryTask, Tasks: tasks}, nil
}

// taskLines returns bullet and open-checkbox items, or request sentences
// when the body has no list.
func taskLines(body string) []string {
	var items []string
	for _, line := range strings.Split(body, "\n") {
		if doneBoxRe.MatchString(line) {
			continue
		}
		if m := uncheckedRe.FindStringSubmatch(line); m != nil {
			items = append(items, m[1])
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			items = append(items, m[1])
		}
	}
	if len(items) > 0 {
		return items
	}

	for _, s := range sentences(body) {
		if requestRe.MatchString(s) {
			items = append(items, strings.TrimRight(s, "."))
		}
	}
	return items
}

// findDeadline resolves the first deadline phrase in text to a time.
func findDeadline(text string, ref time.Time) *time.Time {
	day := truncateDay(ref)
	at := func(d time.Time, phrase string) *time.Time {
		t := d.Add(deadlineHour * time.Hour)
		if hhmm, ok := findTime(phrase); ok {
			if c, err := time.Parse(TimeLayout, hhmm); err == nil {
				t = d.Add(time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute)
			}
		}
		return &t
	}

	type hit struct {
		pos int
		t   *time.Time
	}
	var best *hit
	consider := func(pos int, t *time.Time) {
		if t != nil && (best == nil || pos < best.pos) {
			best = &hit{pos: pos, t: t}
		}
	}

	if loc := eodRe.FindStringIndex(text); loc != nil {
		consider(loc[0], at(day, ""))
	}
	if loc := eowRe.FindStringIndex(text); loc != nil {
		consider(loc[0], at(nextWeekday(day, time.Friday, false), ""))
	}
	for _, m := range deadlineRe.FindAllStringSubmatchIndex(text, -1) {
		phrase := text[m[2]:m[3]]
		if d, ok := findDate(phrase, ref); ok && leadingDate(phrase, ref) {
			consider(m[0], at(d, phrase))
		}
	}

	if best == nil {
		return nil
	}
	return best.t
}

// leadingDate reports whether a date phrase starts within the first few
// words of phrase, so "by Friday" counts but "by the team on Friday" does not.
func leadingDate(phrase string, ref time.Time) bool {
	words := strings.Fields(phrase)
	if len(words) > 3 {
		words = words[:3]
	}
	_, ok := findDate(strings.Join(words, " "), ref)
	return ok
}
