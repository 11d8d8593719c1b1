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

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/triage/internal/models"
)

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	s, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool and ensures the schema.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure triage schema: %w", err)
	}
	slog.Info("postgres store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id             TEXT PRIMARY KEY,
			origin         TEXT NOT NULL,
			sender_address TEXT NOT NULL DEFAULT '',
			sender_name    TEXT NOT NULL DEFAULT '',
			subject        TEXT NOT NULL DEFAULT '',
			body           TEXT NOT NULL DEFAULT '',
			sent_at        TIMESTAMPTZ,
			received_at    TIMESTAMPTZ NOT NULL,
			inserted_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_at, id);

		CREATE TABLE IF NOT EXISTS classifications (
			message_id   TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
			category     TEXT NOT NULL,
			urgency      TEXT NOT NULL,
			confidence   DOUBLE PRECISION NOT NULL,
			backend      TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_classifications_category ON classifications(category);

		CREATE TABLE IF NOT EXISTS events (
			id                BIGSERIAL PRIMARY KEY,
			message_id        TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
			title             TEXT NOT NULL,
			event_date        TEXT,
			event_time        TEXT,
			location          TEXT NOT NULL DEFAULT '',
			attendees         JSONB NOT NULL DEFAULT '[]',
			is_on_calendar    BOOLEAN NOT NULL DEFAULT FALSE,
			calendar_event_id TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_events_unsynced ON events(is_on_calendar);

		CREATE TABLE IF NOT EXISTS tasks (
			id           BIGSERIAL PRIMARY KEY,
			message_id   TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
			description  TEXT NOT NULL,
			deadline     TIMESTAMPTZ,
			priority     TEXT NOT NULL,
			completed    BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_open ON tasks(completed, deadline);

		CREATE TABLE IF NOT EXISTS social_interactions (
			id                BIGSERIAL PRIMARY KEY,
			message_id        TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
			relationship_type TEXT NOT NULL,
			purposes          JSONB NOT NULL DEFAULT '[]',
			sentiment_tone    TEXT NOT NULL,
			response_required BOOLEAN NOT NULL DEFAULT FALSE,
			response_urgency  TEXT NOT NULL,
			life_events       JSONB NOT NULL DEFAULT '[]',
			important_dates   JSONB NOT NULL DEFAULT '[]',
			topics            JSONB NOT NULL DEFAULT '[]',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS spam_analyses (
			id                 BIGSERIAL PRIMARY KEY,
			message_id         TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
			is_spam            BOOLEAN NOT NULL,
			spam_type          TEXT NOT NULL,
			severity           TEXT NOT NULL,
			confidence         DOUBLE PRECISION NOT NULL,
			reasoning          TEXT NOT NULL DEFAULT '',
			indicators         JSONB NOT NULL DEFAULT '[]',
			red_flags          JSONB NOT NULL DEFAULT '[]',
			recommended_action TEXT NOT NULL,
			should_block       BOOLEAN NOT NULL,
			should_report      BOOLEAN NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS job_opportunities (
			id                 BIGSERIAL PRIMARY KEY,
			message_id         TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
			title              TEXT NOT NULL,
			company            TEXT NOT NULL DEFAULT '',
			location           TEXT NOT NULL DEFAULT '',
			job_type           TEXT NOT NULL DEFAULT '',
			work_mode          TEXT NOT NULL DEFAULT '',
			salary_range       TEXT NOT NULL DEFAULT '',
			experience_level   TEXT NOT NULL DEFAULT '',
			skills             JSONB NOT NULL DEFAULT '[]',
			deadline           TIMESTAMPTZ,
			source_type        TEXT NOT NULL DEFAULT '',
			recruiter_name     TEXT NOT NULL DEFAULT '',
			recruiter_email    TEXT NOT NULL DEFAULT '',
			application_link   TEXT NOT NULL DEFAULT '',
			communication_type TEXT NOT NULL,
			relevance          TEXT NOT NULL,
			quality            TEXT NOT NULL,
			legitimacy         TEXT NOT NULL,
			interest           TEXT NOT NULL,
			status             TEXT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_comm ON job_opportunities(communication_type);

		CREATE TABLE IF NOT EXISTS processing_failures (
			message_id   TEXT NOT NULL,
			stage        TEXT NOT NULL,
			attempts     INTEGER NOT NULL DEFAULT 0,
			last_error   TEXT NOT NULL DEFAULT '',
			last_attempt TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, stage)
		);
	`)
	return err
}

func (s *Postgres) InsertMessage(ctx context.Context, msg models.Message) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}
	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, origin, sender_address, sender_name, subject, body, sent_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.Origin, msg.Sender.Address, msg.Sender.Name, msg.Subject, msg.Body, nullTime(msg.SentAt), received)
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) MarkProcessed(ctx context.Context, v models.Verdict) error {
	processed := v.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO classifications (message_id, category, urgency, confidence, backend, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING
	`, v.MessageID, string(v.Category), string(v.Urgency), v.Confidence, v.Backend, processed)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", v.MessageID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrDuplicateClassification, v.MessageID)
	}
	return nil
}

func (s *Postgres) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM classifications WHERE message_id = $1)`, messageID,
	).Scan(&exists)
	return exists, err
}

func (s *Postgres) FetchUnprocessed(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.origin, m.sender_address, m.sender_name, m.subject, m.body, m.sent_at, m.received_at
		FROM messages m
		LEFT JOIN classifications c ON c.message_id = m.id
		WHERE c.message_id IS NULL
		ORDER BY m.received_at, m.id
		LIMIT $1
	`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var sent *time.Time
		if err := rows.Scan(&m.ID, &m.Origin, &m.Sender.Address, &m.Sender.Name,
			&m.Subject, &m.Body, &sent, &m.ReceivedAt); err != nil {
			return nil, err
		}
		if sent != nil {
			m.SentAt = *sent
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Postgres) SaveExtraction(ctx context.Context, messageID string, ex models.Extraction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var category string
	err = tx.QueryRow(ctx, `SELECT category FROM classifications WHERE message_id = $1`, messageID).Scan(&category)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: message %s has no verdict", models.ErrCategoryMismatch, messageID)
	}
	if err != nil {
		return err
	}
	if err := checkExtraction(messageID, models.Category(category), ex); err != nil {
		return err
	}

	for _, e := range ex.Events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (message_id, title, event_date, event_time, location, attendees)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, messageID, e.Title, e.Date, e.Time, e.Location, nonNil(e.Attendees)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	for _, t := range ex.Tasks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tasks (message_id, description, deadline, priority)
			VALUES ($1, $2, $3, $4)
		`, messageID, t.Description, t.Deadline, string(t.Priority)); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	}
	for _, si := range ex.Social {
		if _, err := tx.Exec(ctx, `
			INSERT INTO social_interactions
				(message_id, relationship_type, purposes, sentiment_tone, response_required,
				 response_urgency, life_events, important_dates, topics)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, messageID, si.Relationship, nonNil(si.Purposes), si.Tone, si.ResponseRequired,
			si.ResponseUrgency, nonNil(si.LifeEvents), nonNil(si.ImportantDates), nonNil(si.Topics)); err != nil {
			return fmt.Errorf("insert social interaction: %w", err)
		}
	}
	for _, sa := range ex.Spam {
		if _, err := tx.Exec(ctx, `
			INSERT INTO spam_analyses
				(message_id, is_spam, spam_type, severity, confidence, reasoning, indicators,
				 red_flags, recommended_action, should_block, should_report)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, messageID, sa.IsSpam, sa.SpamType, string(sa.Severity), sa.Confidence, sa.Reasoning,
			nonNil(sa.Indicators), nonNil(sa.RedFlags), sa.Action, sa.ShouldBlock, sa.ShouldReport); err != nil {
			return fmt.Errorf("insert spam analysis: %w", err)
		}
	}
	for _, j := range ex.Jobs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_opportunities
				(message_id, title, company, location, job_type, work_mode, salary_range,
				 experience_level, skills, deadline, source_type, recruiter_name, recruiter_email,
				 application_link, communication_type, relevance, quality, legitimacy, interest, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		`, messageID, j.Title, j.Company, j.Location, j.JobType, j.WorkMode, j.SalaryRange,
			j.ExperienceLevel, nonNil(j.Skills), j.Deadline, j.SourceType, j.RecruiterName, j.RecruiterEmail,
			j.ApplicationLink, j.CommunicationType, j.Relevance, j.Quality, j.Legitimacy, j.Interest, j.Status); err != nil {
			return fmt.Errorf("insert job opportunity: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Postgres) MarkEventSynced(ctx context.Context, eventID int64, calendarEventID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET is_on_calendar = TRUE, calendar_event_id = $1 WHERE id = $2
	`, calendarEventID, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %d: %w", eventID, models.ErrNotFound)
	}
	return nil
}

func (s *Postgres) CompleteTask(ctx context.Context, taskID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET completed = TRUE, completed_at = COALESCE(completed_at, NOW()) WHERE id = $1
	`, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %d: %w", taskID, models.ErrNotFound)
	}
	return nil
}

func (s *Postgres) ListVerdicts(ctx context.Context, f VerdictFilter) ([]VerdictRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.message_id, c.category, c.urgency, c.confidence, c.backend, c.processed_at,
		       m.origin, m.sender_address, m.subject, m.received_at
		FROM classifications c
		JOIN messages m ON m.id = c.message_id
		WHERE ($1 = '' OR c.category = $1)
		  AND ($2 = '' OR c.urgency = $2)
		  AND ($3::timestamptz IS NULL OR m.received_at >= $3)
		  AND ($4::timestamptz IS NULL OR m.received_at < $4)
		ORDER BY m.received_at DESC, c.message_id
		LIMIT $5
	`, string(f.Category), string(f.Urgency), nullTime(f.Since), nullTime(f.Until), limitOr(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VerdictRow
	for rows.Next() {
		var r VerdictRow
		var category, urgency string
		if err := rows.Scan(&r.MessageID, &category, &urgency, &r.Confidence, &r.Backend, &r.ProcessedAt,
			&r.Origin, &r.Sender, &r.Subject, &r.ReceivedAt); err != nil {
			return nil, err
		}
		r.Category, r.Urgency = models.Category(category), models.Urgency(urgency)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) UnsyncedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, title, event_date, event_time, location, attendees,
		       is_on_calendar, calendar_event_id, created_at
		FROM events
		WHERE NOT is_on_calendar
		ORDER BY event_date NULLS LAST, event_time NULLS LAST, id
		LIMIT $1
	`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Title, &e.Date, &e.Time, &e.Location, &e.Attendees,
			&e.OnCalendar, &e.CalendarEventID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, description, deadline, priority, completed, completed_at, created_at
		FROM tasks
		WHERE ($1::boolean IS NULL OR completed = $1)
		ORDER BY `+priorityCase+`, deadline NULLS LAST, id
		LIMIT $2
	`, f.Completed, limitOr(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		var priority string
		if err := rows.Scan(&t.ID, &t.MessageID, &t.Description, &t.Deadline, &priority,
			&t.Completed, &t.CompletedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Priority = models.Priority(priority)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) PendingReplies(ctx context.Context, limit int) ([]models.SocialInteraction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, relationship_type, purposes, sentiment_tone, response_required,
		       response_urgency, life_events, important_dates, topics, created_at
		FROM social_interactions
		WHERE response_required
		ORDER BY `+responseCase+`, created_at, id
		LIMIT $1
	`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SocialInteraction
	for rows.Next() {
		var si models.SocialInteraction
		if err := rows.Scan(&si.ID, &si.MessageID, &si.Relationship, &si.Purposes, &si.Tone,
			&si.ResponseRequired, &si.ResponseUrgency, &si.LifeEvents, &si.ImportantDates,
			&si.Topics, &si.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

func (s *Postgres) ListJobs(ctx context.Context, f JobFilter) ([]models.JobOpportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, title, company, location, job_type, work_mode, salary_range,
		       experience_level, skills, deadline, source_type, recruiter_name, recruiter_email,
		       application_link, communication_type, relevance, quality, legitimacy, interest,
		       status, created_at
		FROM job_opportunities
		WHERE ($1 = '' OR communication_type = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, f.CommunicationType, limitOr(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.JobOpportunity
	for rows.Next() {
		var j models.JobOpportunity
		if err := rows.Scan(&j.ID, &j.MessageID, &j.Title, &j.Company, &j.Location, &j.JobType,
			&j.WorkMode, &j.SalaryRange, &j.ExperienceLevel, &j.Skills, &j.Deadline, &j.SourceType,
			&j.RecruiterName, &j.RecruiterEmail, &j.ApplicationLink, &j.CommunicationType,
			&j.Relevance, &j.Quality, &j.Legitimacy, &j.Interest, &j.Status, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Postgres) ListSpam(ctx context.Context, minSeverity models.Severity, limit int) ([]models.SpamAnalysis, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, is_spam, spam_type, severity, confidence, reasoning, indicators,
		       red_flags, recommended_action, should_block, should_report, created_at
		FROM spam_analyses
		WHERE `+severityCase+` >= $1
		ORDER BY `+severityCase+` DESC, created_at DESC, id DESC
		LIMIT $2
	`, max(minSeverity.Level(), 0), limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SpamAnalysis
	for rows.Next() {
		var sa models.SpamAnalysis
		var severity string
		if err := rows.Scan(&sa.ID, &sa.MessageID, &sa.IsSpam, &sa.SpamType, &severity, &sa.Confidence,
			&sa.Reasoning, &sa.Indicators, &sa.RedFlags, &sa.Action, &sa.ShouldBlock, &sa.ShouldReport,
			&sa.CreatedAt); err != nil {
			return nil, err
		}
		sa.Severity = models.Severity(severity)
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (s *Postgres) RecordFailure(ctx context.Context, messageID, stage, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_failures (message_id, stage, attempts, last_error, last_attempt)
		VALUES ($1, $2, 1, $3, NOW())
		ON CONFLICT (message_id, stage) DO UPDATE SET
			attempts     = processing_failures.attempts + 1,
			last_error   = EXCLUDED.last_error,
			last_attempt = NOW()
	`, messageID, stage, reason)
	return err
}

func (s *Postgres) ListFailures(ctx context.Context, minAttempts int) ([]Failure, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, stage, attempts, last_error, last_attempt
		FROM processing_failures
		WHERE attempts >= $1
		ORDER BY attempts DESC, message_id, stage
	`, max(minAttempts, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.MessageID, &f.Stage, &f.Attempts, &f.LastError, &f.LastAttempt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
