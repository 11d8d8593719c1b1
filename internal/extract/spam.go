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
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/models"
)

// ActionFor derives the recommended action and block/report flags from a
// severity so the two can never disagree: critical and high always block and
// report, medium unsubscribes from marketing and otherwise ignores, low
// ignores and safe keeps.
func ActionFor(severity models.Severity, spamType string) (action string, block, report bool) {
	switch severity {
	case models.SeverityCritical, models.SeverityHigh:
		return models.ActionBlockReport, true, true
	case models.SeverityMedium:
		if spamType == models.SpamMarketing {
			return models.ActionUnsubscribe, false, false
		}
		return models.ActionIgnore, false, false
	case models.SeverityLow:
		return models.ActionIgnore, false, false
	default:
		return models.ActionKeep, false, false
	}
}

// Indicator names.
const (
	indicatorMarketing   = "marketing_language"
	indicatorPressure    = "urgency_pressure"
	indicatorPrize       = "prize_claim"
	indicatorCredentials = "credential_request"
	indicatorMoney       = "payment_request"
	indicatorLink        = "suspicious_link"
	indicatorGreeting    = "generic_greeting"
	indicatorTooGood     = "too_good_to_be_true"
	indicatorAttachment  = "attachment_lure"
)

var spamIndicators = []namedPattern{
	named(indicatorMarketing, `unsubscribe|\d+% off|sale|discount|promo(?:tion)?(?: code)?|deal of the|shop now|buy now|exclusive offer`),
	named(indicatorPressure, `act now|limited[- ]time|expires? (?:today|soon|in \d+)|last chance|final notice|within 24 hours`),
	named(indicatorPrize, `you(?:'ve| have) won|winner|lottery|claim your (?:prize|reward|gift)|selected to receive`),
	named(indicatorCredentials, `verify your (?:account|identity)|confirm your (?:password|account|details)|account (?:suspended|locked|will be closed)|login to restore|reset your password`),
	named(indicatorMoney, `wire transfer|gift cards?|bitcoin|crypto(?:currency)?|bank details|processing fee|western union`),
	named(indicatorLink, `click here|click (?:the|this) link|bit\.ly|tinyurl|https?://\d{1,3}(?:\.\d{1,3}){3}`),
	named(indicatorGreeting, `dear (?:customer|user|member|friend|sir|madam|account holder)`),
	named(indicatorTooGood, `100% free|risk[- ]free|guaranteed|no cost|miracle|double your`),
	named(indicatorAttachment, `open the attached|enable (?:macros|content)|\.exe|\.scr|\.zip attachment`),
}

// redFlags are indicators that on their own justify blocking.
var redFlags = map[string]bool{
	indicatorCredentials: true,
	indicatorMoney:       true,
	indicatorLink:        true,
	indicatorAttachment:  true,
}

var malwareRe = regexp.MustCompile(`(?i)(?:\.exe|\.scr|\.js|\.vbs|enable (?:macros|content))\b`)

// SpamExtractor produces a spam verdict with severity and recommended action.
type SpamExtractor struct{}

// NewSpamExtractor creates a spam extractor.
func NewSpamExtractor() *SpamExtractor { return &SpamExtractor{} }

func (e *SpamExtractor) Category() models.Category { return models.CategorySpam }

func (e *SpamExtractor) Extract(_ context.Context, msg models.Message, _ classify.Result) (models.Extraction, error) {
	text := msg.Text()
	if strings.TrimSpace(text) == "" {
		return models.NotFound(models.CategorySpam), nil
	}
	return models.Extraction{
		Category: models.CategorySpam,
		Spam:     []models.SpamAnalysis{AnalyzeSpam(msg.ID, text)},
	}, nil
}

// AnalyzeSpam scores text against the indicator tables.
func AnalyzeSpam(messageID, text string) models.SpamAnalysis {
	indicators := matchTable(spamIndicators, text)
	var flags []string
	for _, ind := range indicators {
		if redFlags[ind] {
			flags = append(flags, ind)
		}
	}

	spamType := spamTypeFor(indicators, text)
	severity := severityFor(spamType, indicators, flags)
	action, block, report := ActionFor(severity, spamType)

	confidence := 0.5
	if len(indicators) > 0 {
		confidence = math.Min(0.99, 0.5+0.1*float64(len(indicators)))
	}

	return models.SpamAnalysis{
		MessageID:    messageID,
		IsSpam:       severity != models.SeveritySafe,
		SpamType:     spamType,
		Severity:     severity,
		Confidence:   confidence,
		Reasoning:    spamReasoning(indicators, spamType, severity),
		Indicators:   nonNil(indicators),
		RedFlags:     nonNil(flags),
		Action:       action,
		ShouldBlock:  block,
		ShouldReport: report,
	}
}

func spamTypeFor(indicators []string, text string) string {
	has := func(name string) bool { return slices.Contains(indicators, name) }
	switch {
	case has(indicatorAttachment) && malwareRe.MatchString(text):
		return models.SpamMalware
	case has(indicatorCredentials):
		return models.SpamPhishing
	case has(indicatorPrize) || has(indicatorMoney):
		return models.SpamScam
	case len(indicators) > 0:
		return models.SpamMarketing
	default:
		return models.SpamNone
	}
}

func severityFor(spamType string, indicators, flags []string) models.Severity {
	switch spamType {
	case models.SpamMalware:
		return models.SeverityCritical
	case models.SpamPhishing:
		if len(flags) >= 2 {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	case models.SpamScam:
		if len(flags) >= 2 {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	case models.SpamMarketing:
		switch {
		case len(flags) > 0:
			return models.SeverityHigh
		case len(indicators) >= 2:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	default:
		return models.SeveritySafe
	}
}

func spamReasoning(indicators []string, spamType string, severity models.Severity) string {
	if len(indicators) == 0 {
		return "no spam indicators matched"
	}
	return fmt.Sprintf("matched %s; classified as %s (%s)", strings.Join(indicators, ", "), spamType, severity)
}
