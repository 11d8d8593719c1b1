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
	"regexp"

	"github.com/bcem/triage/internal/models"
)

// BackendPattern is recorded on verdicts produced by Rules.
const BackendPattern = "pattern"

const (
	// One defining hit weighs as much as four supporting hits.
	definingWeight   = 4
	supportingWeight = 1

	// saturation is the matched weight at which a category's score reaches 1.
	saturation = 12

	confidenceSpan = 0.55
)

type signal struct {
	weight int
	re     *regexp.Regexp
}

func defining(pattern string) signal {
	return signal{weight: definingWeight, re: regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`)}
}

func supporting(pattern string) signal {
	return signal{weight: supportingWeight, re: regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`)}
}

// signalTable holds the pattern signals for each category except
// informational, which is also the catch-all.
var signalTable = map[models.Category][]signal{
	models.CategoryRecruiting: {
		defining(`interview(?:s|ed|ing)?`),
		defining(`recruit(?:er|ers|ing|ment)`),
		defining(`job (?:opportunity|opening|offer|posting|description)`),
		defining(`hiring|we'?re hiring`),
		defining(`offer letter`),
		defining(`resume|cv|talent acquisition`),
		defining(`your (?:application|candidacy)`),
		supporting(`role|position|candidate`),
		supporting(`salary|compensation|equity`),
		supporting(`full[- ]time|part[- ]time|contract role|remote|hybrid`),
		supporting(`career|opportunity`),
		supporting(`years of experience|skills`),
	},
	models.CategoryEvent: {
		defining(`meeting|meetup`),
		defining(`appointment`),
		defining(`invitation|invite|invited`),
		defining(`rsvp`),
		defining(`webinar|conference|workshop|seminar`),
		defining(`save the date`),
		supporting(`scheduled|calendar|agenda`),
		supporting(`monday|tuesday|wednesday|thursday|friday|saturday|sunday`),
		supporting(`\d{1,2}(?::\d{2})?\s*(?:am|pm)`),
		supporting(`next week|tomorrow|tonight`),
		supporting(`join us|venue|location|zoom|google meet|teams call`),
		supporting(`party|ceremony|celebration`),
	},
	models.CategoryTask: {
		defining(`to-?dos?|action items?`),
		defining(`please (?:review|send|complete|submit|update|prepare|fix|sign|finish|approve|share|file|book)`),
		defining(`need(?:s)? you to|make sure (?:to|you)`),
		defining(`deadline|due (?:by|on|date)`),
		defining(`tasks?|assignment`),
		supporting(`can you|could you|would you mind`),
		supporting(`by (?:eod|end of (?:day|week)|tomorrow|monday|tuesday|wednesday|thursday|friday)`),
		supporting(`follow[- ]up|reminder`),
		supporting(`checklist|draft|report`),
	},
	models.CategorySpam: {
		defining(`unsubscribe`),
		defining(`click here|act now|buy now|order now`),
		defining(`limited[- ]time|offer expires|exclusive (?:deal|offer)`),
		defining(`you(?:'ve| have) won|winner|lottery|claim your (?:prize|reward|gift)`),
		defining(`verify your account|account (?:suspended|locked)|confirm your password`),
		defining(`100% free|risk[- ]free|no cost`),
		supporting(`free|discount|\d+% off|sale|deal`),
		supporting(`congratulations|selected`),
		supporting(`wire transfer|gift card|bitcoin|crypto`),
		supporting(`dear (?:customer|user|friend)`),
	},
	models.CategoryFinancial: {
		defining(`invoice|receipt`),
		defining(`payment|paid|payout`),
		defining(`bank statement|statement|transaction`),
		defining(`billing|refund|reimbursement`),
		defining(`amount due|balance|credit card`),
		defining(`tax(?:es)?`),
		supporting(`usd|eur|gbp`),
		supporting(`account|charge|charged|subscription`),
		supporting(`bank|budget|expense`),
	},
	models.CategoryUrgent: {
		defining(`urgent|urgently`),
		defining(`asap|as soon as possible`),
		defining(`emergency`),
		defining(`immediately|right away`),
		defining(`action required|time[- ]sensitive`),
		supporting(`important|critical|now`),
		supporting(`outage|down|incident`),
	},
	models.CategorySocial: {
		defining(`catch(?:ing)? up`),
		defining(`long time no see`),
		defining(`how (?:are|have) you(?: been)?`),
		defining(`miss(?:ed)? you|thinking of you`),
		defining(`get together|hang out`),
		defining(`happy birthday|congrats`),
		supporting(`lunch|dinner|coffee|drinks|brunch`),
		supporting(`grab (?:a )?(?:coffee|lunch|drink|dinner|bite)`),
		supporting(`hey|hi`),
		supporting(`family|friends?|weekend`),
		supporting(`wedding|baby|vacation|holiday`),
		supporting(`would love|let me know`),
	},
	models.CategoryInformational: {
		defining(`newsletter|digest`),
		defining(`fyi|for your information`),
		defining(`announcement|announcing`),
		defining(`release notes|changelog`),
		supporting(`update|news|read more|blog|article`),
	},
}

var (
	urgentRe = regexp.MustCompile(`(?i)\b(?:urgent|urgently|asap|as soon as possible|immediately|emergency|right away|action required|time[- ]sensitive)\b`)
	softRe   = regexp.MustCompile(`(?i)\b(?:this week|reminder|soon|by tomorrow|by (?:eod|end of (?:day|week))|deadline|due (?:by|on))\b`)
)

// Rules is the deterministic pattern classifier.
type Rules struct {
	taxonomy *models.Taxonomy
}

// NewRules creates a pattern classifier restricted to the taxonomy. A nil
// taxonomy allows every category.
func NewRules(taxonomy *models.Taxonomy) *Rules {
	return &Rules{taxonomy: taxonomy}
}

func (r *Rules) Name() string { return BackendPattern }

// Classify never fails: messages without any signal resolve to
// informational at the confidence floor.
func (r *Rules) Classify(_ context.Context, msg models.Message) (Result, error) {
	return r.decide(msg), nil
}

// score is one category's pattern match.
type score struct {
	category models.Category
	weight   int
	value    float64
}

// scores returns the match for every allowed category in precedence order.
func (r *Rules) scores(msg models.Message) []score {
	text := msg.Text()
	out := make([]score, 0, len(models.Categories))
	for _, c := range models.Categories {
		if !r.taxonomy.Allows(msg.Origin, c) {
			continue
		}
		s := score{category: c}
		for _, sig := range signalTable[c] {
			if text == "" || !sig.re.MatchString(text) {
				continue
			}
			s.weight += sig.weight
		}
		s.value = float64(s.weight) / saturation
		if s.value > 1 {
			s.value = 1
		}
		out = append(out, s)
	}
	return out
}

func (r *Rules) decide(msg models.Message) Result {
	best := score{category: models.CategoryInformational}
	found := false
	// Ranked on raw weight so saturated scores still order correctly.
	// scores is in precedence order, so strict > keeps the earlier category on ties.
	for _, s := range r.scores(msg) {
		if s.weight > 0 && (!found || s.weight > best.weight) {
			best = s
			found = true
		}
	}

	confidence := ConfidenceFloor
	if found {
		confidence = clampConfidence(ConfidenceFloor + confidenceSpan*best.value)
	}

	return Result{
		Category:   best.category,
		Urgency:    urgencyFor(msg.Text(), best.category),
		Confidence: confidence,
		Backend:    BackendPattern,
	}
}

func urgencyFor(text string, c models.Category) models.Urgency {
	switch {
	case c == models.CategoryUrgent || urgentRe.MatchString(text):
		return models.UrgencyHigh
	case softRe.MatchString(text):
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}
