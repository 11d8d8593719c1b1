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

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/models"
)

var (
	locationLineRe = regexp.MustCompile(`(?im)^\s*(?:location|where|venue|place)\s*:\s*(.+?)\s*$`)
	videoLinkRe    = regexp.MustCompile(`(?i)https?://[^\s]*(?:zoom\.us|meet\.google\.com|teams\.microsoft\.com|webex\.com)[^\s]*`)
	roomRe         = regexp.MustCompile(`(?i)\b(?:in|at)\s+((?:conference\s+)?(?:room|building|hall|suite)\s+[\w-]+)`)
	atPlaceRe      = regexp.MustCompile(`\b(?:at|@)[ \t]+(?:the[ \t]+)?([A-Z][\w'&]*(?:[ \t]+[A-Z][\w'&]*){0,3})`)
	notPlaceRe     = regexp.MustCompile(`(?i)^(?:` + weekdayPattern + `|noon|midnight|jan(?:uary)?|feb(?:ruary)?|march|april|may|june|july|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)
)

// EventExtractor pulls one calendar event out of an event message.
type EventExtractor struct {
	clock Clock
}

// NewEventExtractor creates an event extractor.
func NewEventExtractor(clock Clock) *EventExtractor {
	return &EventExtractor{clock: clock}
}

func (e *EventExtractor) Category() models.Category { return models.CategoryEvent }

// Extract emits the event even when no date or time can be found; Date and
// Time are nil in that case.
func (e *EventExtractor) Extract(_ context.Context, msg models.Message, _ classify.Result) (models.Extraction, error) {
	text := msg.Text()
	if strings.TrimSpace(text) == "" {
		return models.NotFound(models.CategoryEvent), nil
	}

	ev := models.Event{
		MessageID: msg.ID,
		Title:     eventTitle(msg),
		Location:  eventLocation(text),
		Attendees: attendees(msg),
	}
	if d, ok := findDate(text, referenceTime(msg, e.clock)); ok {
		ev.Date = dateString(d)
	}
	if t, ok := findTime(text); ok {
		ev.Time = &t
	}

	return models.Extraction{Category: models.CategoryEvent, Events: []models.Event{ev}}, nil
}

func eventTitle(msg models.Message) string {
	if s := cleanSubject(msg.Subject); s != "" {
		return clip(s, 120)
	}
	if s := firstSentence(msg.Body, 80); s != "" {
		return s
	}
	return "Untitled event"
}

func eventLocation(text string) string {
	if m := locationLineRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := videoLinkRe.FindString(text); m != "" {
		return m
	}
	if m := roomRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	for _, m := range atPlaceRe.FindAllStringSubmatch(text, -1) {
		place := strings.TrimSpace(m[1])
		// "at Noon", "at Friday 3pm" are times, not places.
		if notPlaceRe.MatchString(place) {
			continue
		}
		return place
	}
	return ""
}

// attendees lists the sender first, then every address in the body.
func attendees(msg models.Message) []string {
	all := []string{msg.Sender.Address}
	all = append(all, emailRe.FindAllString(msg.Body, -1)...)
	return uniqueLower(all)
}
