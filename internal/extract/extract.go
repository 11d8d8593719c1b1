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

// Package extract turns a classified message into category-specific records:
// events, tasks, social context, spam analyses and job opportunities.
//
// Each extractor returns a models.Extraction whose single populated slice
// matches its category. An extraction with no records means "no extraction".
package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/models"
)

// Extractor produces the structured records for one category.
type Extractor interface {
	Category() models.Category
	Extract(ctx context.Context, msg models.Message, res classify.Result) (models.Extraction, error)
}

// Clock returns the current time. Relative dates fall back to it when a
// message carries no timestamps.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// Set maps categories to their extractors. Categories without an entry
// (financial, urgent, informational) skip extraction.
type Set struct {
	byCategory map[models.Category]Extractor
}

// NewSet builds a set from extractors; a later extractor for the same
// category replaces an earlier one.
func NewSet(extractors ...Extractor) *Set {
	s := &Set{byCategory: make(map[models.Category]Extractor, len(extractors))}
	for _, e := range extractors {
		s.byCategory[e.Category()] = e
	}
	return s
}

// PatternSet returns the deterministic extractors for every extractable category.
func PatternSet(clock Clock) *Set {
	return NewSet(
		NewEventExtractor(clock),
		NewTaskExtractor(clock),
		NewSocialExtractor(clock),
		NewSpamExtractor(),
		NewRecruitmentExtractor(clock),
	)
}

// For returns the extractor for c.
func (s *Set) For(c models.Category) (Extractor, bool) {
	e, ok := s.byCategory[c]
	return e, ok
}

// Categories lists the categories with an extractor, in precedence order.
func (s *Set) Categories() []models.Category {
	var out []models.Category
	for _, c := range models.Categories {
		if _, ok := s.byCategory[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func referenceTime(msg models.Message, clock Clock) time.Time {
	if ref := msg.Reference(); !ref.IsZero() {
		return ref
	}
	return currentTime(clock)
}

// currentTime reads the clock, falling back to the wall clock when unset.
func currentTime(clock Clock) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}

var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
	prefixRe   = regexp.MustCompile(`(?i)^\s*(?:(?:re|fw|fwd|invitation|updated invitation|reminder)\s*:\s*)+`)
)

// sentences splits text on terminal punctuation and newlines.
func sentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cleanSubject strips reply/forward and calendar prefixes.
func cleanSubject(s string) string {
	return strings.TrimSpace(prefixRe.ReplaceAllString(s, ""))
}

func firstSentence(text string, maxLen int) string {
	ss := sentences(text)
	if len(ss) == 0 {
		return ""
	}
	return clip(strings.TrimRight(ss[0], ".!?"), maxLen)
}

func clip(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	cut := strings.LastIndexByte(s[:maxLen], ' ')
	if cut <= 0 {
		cut = maxLen
	}
	return strings.TrimSpace(s[:cut])
}

// matchTable returns the names of table entries whose pattern matches text,
// in table order.
func matchTable(table []namedPattern, text string) []string {
	var out []string
	for _, p := range table {
		if p.re.MatchString(text) {
			out = append(out, p.name)
		}
	}
	return out
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

func named(name, pattern string) namedPattern {
	return namedPattern{name: name, re: regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`)}
}

func uniqueLower(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
