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

// Package store persists messages, the processing ledger, extraction
// records and failure counters. Postgres is the production backend and
// SQLite the embedded one; both satisfy Store with identical semantics.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/models"
)

// DefaultLimit bounds list queries that do not set one.
const DefaultLimit = 100

// Store is the durable state shared by the pipeline and the outbound surfaces.
type Store interface {
	// InsertMessage stores msg unless its id already exists. It reports
	// whether a row was inserted.
	InsertMessage(ctx context.Context, msg models.Message) (bool, error)

	// MarkProcessed records the verdict. A second verdict for the same
	// message fails with models.ErrDuplicateClassification.
	MarkProcessed(ctx context.Context, v models.Verdict) error
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	// FetchUnprocessed returns up to limit messages without a verdict,
	// oldest received first.
	FetchUnprocessed(ctx context.Context, limit int) ([]models.Message, error)

	// SaveExtraction writes all records of ex in one transaction. It fails
	// with models.ErrCategoryMismatch unless the message's verdict has
	// ex.Category.
	SaveExtraction(ctx context.Context, messageID string, ex models.Extraction) error

	MarkEventSynced(ctx context.Context, eventID int64, calendarEventID string) error
	CompleteTask(ctx context.Context, taskID int64) error

	ListVerdicts(ctx context.Context, f VerdictFilter) ([]VerdictRow, error)
	UnsyncedEvents(ctx context.Context, limit int) ([]models.Event, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error)
	PendingReplies(ctx context.Context, limit int) ([]models.SocialInteraction, error)
	ListJobs(ctx context.Context, f JobFilter) ([]models.JobOpportunity, error)
	ListSpam(ctx context.Context, minSeverity models.Severity, limit int) ([]models.SpamAnalysis, error)

	// RecordFailure increments the failure counter for (messageID, stage).
	RecordFailure(ctx context.Context, messageID, stage, reason string) error
	ListFailures(ctx context.Context, minAttempts int) ([]Failure, error)

	Ping(ctx context.Context) error
	Close() error
}

// VerdictFilter narrows ListVerdicts. Zero values match everything; Since
// and Until bound the message's received time.
type VerdictFilter struct {
	Category models.Category
	Urgency  models.Urgency
	Since    time.Time
	Until    time.Time
	Limit    int
}

// VerdictRow is a verdict joined with its message header.
type VerdictRow struct {
	models.Verdict
	Origin     string    `json:"origin"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
}

// TaskFilter narrows ListTasks. A nil Completed matches both states.
type TaskFilter struct {
	Completed *bool
	Limit     int
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	CommunicationType string
	Limit             int
}

// Failure is the durable failure counter for one message and stage.
type Failure struct {
	MessageID   string    `json:"message_id"`
	Stage       string    `json:"stage"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Open connects the backend selected by cfg.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

func limitOr(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}

func checkExtraction(messageID string, verdict models.Category, ex models.Extraction) error {
	if verdict != ex.Category {
		return fmt.Errorf("%w: message %s is %s, extraction is %s",
			models.ErrCategoryMismatch, messageID, verdict, ex.Category)
	}
	if !ex.Consistent() {
		return fmt.Errorf("%w: extraction for %s carries records of another category",
			models.ErrCategoryMismatch, messageID)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// severityCase ranks spam severities in SQL.
const severityCase = `CASE severity
	WHEN 'safe' THEN 0 WHEN 'low' THEN 1 WHEN 'medium' THEN 2
	WHEN 'high' THEN 3 WHEN 'critical' THEN 4 ELSE -1 END`

const priorityCase = `CASE priority
	WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END`

const responseCase = `CASE response_urgency
	WHEN 'high' THEN 0 WHEN 'medium' THEN 1 WHEN 'low' THEN 2 ELSE 3 END`
