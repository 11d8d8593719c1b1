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

package models

import (
	"fmt"
	"strings"
	"time"
)

// Category is a message's primary intent. The set is closed.
type Category string

const (
	CategoryEvent         Category = "event"
	CategoryTask          Category = "task"
	CategorySocial        Category = "social"
	CategorySpam          Category = "spam"
	CategoryRecruiting    Category = "recruiting"
	CategoryFinancial     Category = "financial"
	CategoryUrgent        Category = "urgent"
	CategoryInformational Category = "informational"
)

// Categories lists every category in tie-break precedence order: when two
// categories score identically, the one earlier in this list wins.
var Categories = []Category{
	CategoryRecruiting,
	CategoryEvent,
	CategoryTask,
	CategorySpam,
	CategoryFinancial,
	CategoryUrgent,
	CategorySocial,
	CategoryInformational,
}

// Rank returns the category's tie-break position (lower wins).
func (c Category) Rank() int {
	for i, v := range Categories {
		if v == c {
			return i
		}
	}
	return len(Categories)
}

// Valid reports whether c is one of the canonical categories.
func (c Category) Valid() bool {
	return c.Rank() < len(Categories)
}

// categoryAliases maps the labels used by the different channel pipelines
// onto the canonical set. Keys are lower-cased with separators removed.
var categoryAliases = map[string]Category{
	"event":         CategoryEvent,
	"events":        CategoryEvent,
	"meeting":       CategoryEvent,
	"calendar":      CategoryEvent,
	"task":          CategoryTask,
	"tasks":         CategoryTask,
	"todo":          CategoryTask,
	"todos":         CategoryTask,
	"actionitem":    CategoryTask,
	"social":        CategorySocial,
	"personal":      CategorySocial,
	"spam":          CategorySpam,
	"junk":          CategorySpam,
	"promotions":    CategorySpam,
	"promotional":   CategorySpam,
	"recruiting":    CategoryRecruiting,
	"recruitment":   CategoryRecruiting,
	"job":           CategoryRecruiting,
	"jobs":          CategoryRecruiting,
	"career":        CategoryRecruiting,
	"financial":     CategoryFinancial,
	"finance":       CategoryFinancial,
	"bills":         CategoryFinancial,
	"urgent":        CategoryUrgent,
	"important":     CategoryUrgent,
	"informational": CategoryInformational,
	"info":          CategoryInformational,
	"newsletter":    CategoryInformational,
	"general":       CategoryInformational,
	"other":         CategoryInformational,
}

// ParseCategory maps a channel label (e.g. "to_do", "TODO", "Events") onto
// the canonical category. Unknown labels are an error.
func ParseCategory(label string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	if c, ok := categoryAliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category label %q", label)
}

// Urgency is the classifier's urgency assessment.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency validates an urgency label. "urgent" and "critical" map to high.
func ParseUrgency(label string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low", "none", "":
		return UrgencyLow, nil
	case "medium", "normal", "moderate":
		return UrgencyMedium, nil
	case "high", "urgent", "critical":
		return UrgencyHigh, nil
	}
	return "", fmt.Errorf("unknown urgency %q", label)
}

// Verdict is the durable, one-per-message classification record.
type Verdict struct {
	MessageID   string    `json:"message_id"`
	Category    Category  `json:"category"`
	Urgency     Urgency   `json:"urgency"`
	Confidence  float64   `json:"confidence"`
	Backend     string    `json:"backend"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Taxonomy narrows the allowed categories per origin family. Origins without
// an entry allow every category; informational is always allowed.
type Taxonomy struct {
	allowed map[string]map[Category]bool
}

// NewTaxonomy builds a taxonomy from origin → allowed labels. Labels go
// through ParseCategory so channel spellings are accepted.
func NewTaxonomy(byOrigin map[string][]string) (*Taxonomy, error) {
	t := &Taxonomy{allowed: make(map[string]map[Category]bool, len(byOrigin))}
	for origin, labels := range byOrigin {
		set := map[Category]bool{CategoryInformational: true}
		for _, l := range labels {
			c, err := ParseCategory(l)
			if err != nil {
				return nil, fmt.Errorf("channel %s: %w", origin, err)
			}
			set[c] = true
		}
		t.allowed[strings.ToLower(origin)] = set
	}
	return t, nil
}

// Allows reports whether category c may be assigned to a message from origin.
// Both the full origin ("chat:slack") and its family ("chat") are consulted.
func (t *Taxonomy) Allows(origin string, c Category) bool {
	if t == nil || c == CategoryInformational {
		return true
	}
	origin = strings.ToLower(origin)
	if set, ok := t.allowed[origin]; ok {
		return set[c]
	}
	if i := strings.IndexByte(origin, ':'); i > 0 {
		if set, ok := t.allowed[origin[:i]]; ok {
			return set[c]
		}
	}
	return true
}
