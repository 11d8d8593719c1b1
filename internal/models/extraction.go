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

import "time"

// Event is a calendar-worthy happening extracted from a message.
// Date is a calendar date (YYYY-MM-DD) and Time a 24-hour clock (HH:MM);
// either is nil when the message does not pin it down.
type Event struct {
	ID              int64     `json:"id"`
	MessageID       string    `json:"message_id"`
	Title           string    `json:"title"`
	Date            *string   `json:"date"`
	Time            *string   `json:"time"`
	Location        string    `json:"location,omitempty"`
	Attendees       []string  `json:"attendees"`
	OnCalendar      bool      `json:"is_on_calendar"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Priority is a task's priority. UI grouping depends on these exact values.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Task is an action item extracted from a message.
type Task struct {
	ID          int64      `json:"id"`
	MessageID   string     `json:"message_id"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Relationship types for social interactions.
const (
	RelationshipFamily       = "family"
	RelationshipFriend       = "friend"
	RelationshipColleague    = "colleague"
	RelationshipProfessional = "professional"
	RelationshipAcquaintance = "acquaintance"
	RelationshipUnknown      = "unknown"
)

// DatedNote pairs a date (YYYY-MM-DD, or free text when unresolvable) with a description.
type DatedNote struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// SocialInteraction captures the relationship context of a personal message.
type SocialInteraction struct {
	ID               int64       `json:"id"`
	MessageID        string      `json:"message_id"`
	Relationship     string      `json:"relationship_type"`
	Purposes         []string    `json:"purposes"`
	Tone             string      `json:"sentiment_tone"`
	ResponseRequired bool        `json:"response_required"`
	ResponseUrgency  string      `json:"response_urgency"`
	LifeEvents       []DatedNote `json:"life_events"`
	ImportantDates   []DatedNote `json:"important_dates"`
	Topics           []string    `json:"topics"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Severity is the spam risk ladder: safe < low < medium < high < critical.
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityOrder = map[Severity]int{
	SeveritySafe:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Level returns the position on the ladder, or -1 for unknown values.
func (s Severity) Level() int {
	if l, ok := severityOrder[s]; ok {
		return l
	}
	return -1
}

// Recommended actions for spam.
const (
	ActionKeep        = "keep"
	ActionIgnore      = "ignore"
	ActionUnsubscribe = "unsubscribe"
	ActionBlockReport = "block_report"
)

// Spam types.
const (
	SpamNone      = "none"
	SpamMarketing = "marketing"
	SpamPhishing  = "phishing"
	SpamScam      = "scam"
	SpamMalware   = "malware"
)

// SpamAnalysis is the spam verdict for a message classified as spam.
type SpamAnalysis struct {
	ID           int64     `json:"id"`
	MessageID    string    `json:"message_id"`
	IsSpam       bool      `json:"is_spam"`
	SpamType     string    `json:"spam_type"`
	Severity     Severity  `json:"severity"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	Indicators   []string  `json:"indicators"`
	RedFlags     []string  `json:"red_flags"`
	Action       string    `json:"recommended_action"`
	ShouldBlock  bool      `json:"should_block"`
	ShouldReport bool      `json:"should_report"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recruitment communication types.
const (
	CommNewOpportunity      = "new_opportunity"
	CommFollowUp            = "follow_up"
	CommInterviewInvitation = "interview_invitation"
	CommOffer               = "offer"
	CommRejection           = "rejection"
	CommConfirmation        = "confirmation"
	CommNetworking          = "networking"
)

// JobOpportunity is a structured job posting or recruiting conversation.
type JobOpportunity struct {
	ID                int64      `json:"id"`
	MessageID         string     `json:"message_id"`
	Title             string     `json:"title"`
	Company           string     `json:"company"`
	Location          string     `json:"location,omitempty"`
	JobType           string     `json:"job_type"`
	WorkMode          string     `json:"work_mode"`
	SalaryRange       string     `json:"salary_range,omitempty"`
	ExperienceLevel   string     `json:"experience_level"`
	Skills            []string   `json:"skills"`
	Deadline          *time.Time `json:"deadline"`
	SourceType        string     `json:"source_type"`
	RecruiterName     string     `json:"recruiter_name,omitempty"`
	RecruiterEmail    string     `json:"recruiter_email,omitempty"`
	ApplicationLink   string     `json:"application_link,omitempty"`
	CommunicationType string     `json:"communication_type"`
	Relevance         string     `json:"relevance"`
	Quality           string     `json:"quality"`
	Legitimacy        string     `json:"legitimacy"`
	Interest          string     `json:"interest"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
}

// IsInterviewInvitation reports whether the opportunity needs the
// higher-visibility notification path.
func (j *JobOpportunity) IsInterviewInvitation() bool {
	return j.CommunicationType == CommInterviewInvitation
}

// Extraction is the output of one category extractor for one message.
// Exactly one slice is populated and it matches Category.
type Extraction struct {
	Category Category            `json:"category"`
	Events   []Event             `json:"events,omitempty"`
	Tasks    []Task              `json:"tasks,omitempty"`
	Social   []SocialInteraction `json:"social,omitempty"`
	Spam     []SpamAnalysis      `json:"spam,omitempty"`
	Jobs     []JobOpportunity    `json:"jobs,omitempty"`
}

// NotFound is the "no extraction" result for a category.
func NotFound(c Category) Extraction {
	return Extraction{Category: c}
}

// Len returns the number of records in the extraction.
func (e Extraction) Len() int {
	return len(e.Events) + len(e.Tasks) + len(e.Social) + len(e.Spam) + len(e.Jobs)
}

// Found reports whether the extractor produced any records.
func (e Extraction) Found() bool {
	return e.Len() > 0
}

// Consistent reports whether every populated slice belongs to Category.
func (e Extraction) Consistent() bool {
	counts := map[Category]int{
		CategoryEvent:      len(e.Events),
		CategoryTask:       len(e.Tasks),
		CategorySocial:     len(e.Social),
		CategorySpam:       len(e.Spam),
		CategoryRecruiting: len(e.Jobs),
	}
	for c, n := range counts {
		if n > 0 && c != e.Category {
			return false
		}
	}
	return true
}
