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
	"slices"
	"strings"
	"time"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/models"
)

// Response urgency values.
const (
	ResponseNone   = "none"
	ResponseLow    = "low"
	ResponseMedium = "medium"
	ResponseHigh   = "high"
)

// Tones.
const (
	TonePositive = "positive"
	ToneNeutral  = "neutral"
	ToneNegative = "negative"
)

// relationshipCues is consulted in order; the relationship with the most
// matching cues wins and earlier entries win ties.
var relationshipCues = []namedPattern{
	named(models.RelationshipFamily, `mom|dad|mum|mother|father|sister|brother|sis|bro|aunt|uncle|cousin|grandma|grandpa|grandmother|grandfather|son|daughter|love you|honey`),
	named(models.RelationshipFriend, `buddy|dude|mate|pal|friend|long time no see|miss you|catch up|hang out|grab (?:a )?(?:coffee|lunch|drink|beer|dinner)`),
	named(models.RelationshipColleague, `team|office|coworker|co-worker|colleague|project|standup|sprint|manager|offsite|work`),
	named(models.RelationshipProfessional, `regards|sincerely|client|customer|partnership|linkedin|business|proposal`),
	named(models.RelationshipAcquaintance, `nice to meet|we met|great meeting you|introduc(?:e|ed|tion)|mutual friend`),
}

var purposeTable = []namedPattern{
	named("catch_up", `catch(?:ing)? up|long time no see|how (?:are|have) you(?: been)?|been a while`),
	named("invitation", `want to|would you like|join (?:us|me)|come over|get together|grab (?:a )?(?:coffee|lunch|drink|dinner|bite)|are you free|party`),
	named("congratulations", `congrat(?:s|ulations)|well done|so proud`),
	named("condolence", `sorry for your loss|condolences|passed away|thinking of you`),
	named("gratitude", `thank(?:s| you)|grateful|appreciate`),
	named("request", `can you|could you|would you mind|a favou?r|help me`),
	named("news", `guess what|big news|exciting news|update|i got|we got|announce`),
	named("greeting", `happy (?:birthday|holidays|new year|anniversary)|merry christmas|season'?s greetings`),
}

var topicTable = []namedPattern{
	named("work", `work|job|office|boss|project|career`),
	named("travel", `trip|travel|vacation|holiday|flight|beach`),
	named("food", `lunch|dinner|brunch|coffee|restaurant|cook(?:ing)?|food`),
	named("family", `family|kids|baby|parents|mom|dad`),
	named("health", `sick|doctor|hospital|health|surgery|recover(?:y|ing)?`),
	named("sports", `game|match|football|soccer|basketball|tennis|gym|run(?:ning)?`),
	named("entertainment", `movie|film|show|concert|music|book`),
	named("home", `house|apartment|moving|move|renovation`),
	named("celebration", `birthday|wedding|anniversary|party|graduation`),
}

var lifeEventTable = []namedPattern{
	named("engagement", `got engaged|engagement|proposed`),
	named("wedding", `got married|getting married|wedding`),
	named("new_baby", `had a baby|new baby|pregnant|expecting|baby (?:boy|girl)`),
	named("new_job", `new job|started at|promotion|promoted|new role`),
	named("move", `moved to|moving to|new (?:house|home|apartment)`),
	named("graduation", `graduat(?:ed|ing|ion)`),
	named("retirement", `retir(?:ed|ing|ement)`),
	named("bereavement", `passed away|funeral|loss of`),
	named("health", `surgery|in the hospital|diagnosed`),
}

var (
	importantDateRe = regexp.MustCompile(`(?i)\b(?:birthday|anniversary|wedding|due date|graduation|party|reunion)\b`)
	positiveRe      = regexp.MustCompile(`(?i)\b(?:love|great|awesome|amazing|happy|excited|wonderful|glad|congrat\w*|thanks?|fun|miss you|can't wait|!)`)
	negativeRe      = regexp.MustCompile(`(?i)\b(?:sad|sorry|upset|angry|disappointed|worried|terrible|awful|bad news|unfortunately|passed away|sick)\b`)
	replyHighRe     = regexp.MustCompile(`(?i)\b(?:asap|urgent|today|tonight|right away|immediately)\b`)
	replyMediumRe   = regexp.MustCompile(`(?i)\b(?:tomorrow|this week|soon|by (?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)|let me know)\b`)
)

// SocialExtractor captures relationship context for personal messages.
type SocialExtractor struct {
	clock Clock
}

// NewSocialExtractor creates a social extractor.
func NewSocialExtractor(clock Clock) *SocialExtractor {
	return &SocialExtractor{clock: clock}
}

func (e *SocialExtractor) Category() models.Category { return models.CategorySocial }

func (e *SocialExtractor) Extract(_ context.Context, msg models.Message, _ classify.Result) (models.Extraction, error) {
	text := msg.Text()
	if strings.TrimSpace(text) == "" {
		return models.NotFound(models.CategorySocial), nil
	}
	ref := referenceTime(msg, e.clock)

	purposes := matchTable(purposeTable, text)
	required := strings.Contains(text, "?") || slices.Contains(purposes, "invitation") || slices.Contains(purposes, "request")

	si := models.SocialInteraction{
		MessageID:        msg.ID,
		Relationship:     relationship(text),
		Purposes:         nonNil(purposes),
		Tone:             tone(text),
		ResponseRequired: required,
		ResponseUrgency:  responseUrgency(text, required),
		LifeEvents:       lifeEvents(text, ref),
		ImportantDates:   importantDates(text, ref),
		Topics:           nonNil(matchTable(topicTable, text)),
	}
	return models.Extraction{Category: models.CategorySocial, Social: []models.SocialInteraction{si}}, nil
}

func relationship(text string) string {
	best, bestHits := models.RelationshipUnknown, 0
	for _, cue := range relationshipCues {
		hits := len(cue.re.FindAllStringIndex(text, -1))
		if hits > bestHits {
			best, bestHits = cue.name, hits
		}
	}
	return best
}

func tone(text string) string {
	pos := len(positiveRe.FindAllStringIndex(text, -1))
	neg := len(negativeRe.FindAllStringIndex(text, -1))
	switch {
	case pos > neg:
		return TonePositive
	case neg > pos:
		return ToneNegative
	default:
		return ToneNeutral
	}
}

func responseUrgency(text string, required bool) string {
	switch {
	case !required:
		return ResponseNone
	case replyHighRe.MatchString(text):
		return ResponseHigh
	case replyMediumRe.MatchString(text):
		return ResponseMedium
	default:
		return ResponseLow
	}
}

// lifeEvents returns one note per sentence that mentions a life event. Date
// is YYYY-MM-DD when the sentence pins one down, otherwise empty.
func lifeEvents(text string, ref time.Time) []models.DatedNote {
	notes := []models.DatedNote{}
	for _, s := range sentences(text) {
		names := matchTable(lifeEventTable, s)
		if len(names) == 0 {
			continue
		}
		notes = append(notes, datedNote(s, ref))
	}
	return notes
}

// importantDates returns sentences naming an occasion together with a date.
func importantDates(text string, ref time.Time) []models.DatedNote {
	notes := []models.DatedNote{}
	for _, s := range sentences(text) {
		if !importantDateRe.MatchString(s) {
			continue
		}
		if _, ok := findDate(s, ref); !ok {
			continue
		}
		notes = append(notes, datedNote(s, ref))
	}
	return notes
}

func datedNote(sentence string, ref time.Time) models.DatedNote {
	n := models.DatedNote{Description: clip(strings.TrimRight(sentence, ".!?"), 200)}
	if d, ok := findDate(sentence, ref); ok {
		n.Date = d.Format(DateLayout)
	}
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
