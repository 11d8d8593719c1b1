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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bcem/triage/internal/models"
)

// sqliteTime is fixed width so stored timestamps sort lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLite is the embedded Store used for local runs and tests.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("sqlite store initialised", "path", path)
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	origin         TEXT NOT NULL,
	sender_address TEXT NOT NULL DEFAULT '',
	sender_name    TEXT NOT NULL DEFAULT '',
	subject        TEXT NOT NULL DEFAULT '',
	body           TEXT NOT NULL DEFAULT '',
	sent_at        TEXT,
	received_at    TEXT NOT NULL,
	inserted_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_at, id);

CREATE TABLE IF NOT EXISTS classifications (
	message_id   TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	category     TEXT NOT NULL,
	urgency      TEXT NOT NULL,
	confidence   REAL NOT NULL,
	backend      TEXT NOT NULL,
	processed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id        TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
	title             TEXT NOT NULL,
	event_date        TEXT,
	event_time        TEXT,
	location          TEXT NOT NULL DEFAULT '',
	attendees         TEXT NOT NULL DEFAULT '[]',
	is_on_calendar    INTEGER NOT NULL DEFAULT 0,
	calendar_event_id TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id   TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
	description  TEXT NOT NULL,
	deadline     TEXT,
	priority     TEXT NOT NULL,
	completed    INTEGER NOT NULL DEFAULT 0,
	completed_at TEXT,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS social_interactions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id        TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	purposes          TEXT NOT NULL DEFAULT '[]',
	sentiment_tone    TEXT NOT NULL,
	response_required INTEGER NOT NULL DEFAULT 0,
	response_urgency  TEXT NOT NULL,
	life_events       TEXT NOT NULL DEFAULT '[]',
	important_dates   TEXT NOT NULL DEFAULT '[]',
	topics            TEXT NOT NULL DEFAULT '[]',
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS spam_analyses (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id         TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
	is_spam            INTEGER NOT NULL,
	spam_type          TEXT NOT NULL,
	severity           TEXT NOT NULL,
	confidence         REAL NOT NULL,
	reasoning          TEXT NOT NULL DEFAULT '',
	indicators         TEXT NOT NULL DEFAULT '[]',
	red_flags          TEXT NOT NULL DEFAULT '[]',
	recommended_action TEXT NOT NULL,
	should_block       INTEGER NOT NULL,
	should_report      INTEGER NOT NULL,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_opportunities (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id         TEXT NOT NULL REFERENCES classifications(message_id) ON DELETE CASCADE,
	title              TEXT NOT NULL,
	company            TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	job_type           TEXT NOT NULL DEFAULT '',
	work_mode          TEXT NOT NULL DEFAULT '',
	salary_range       TEXT NOT NULL DEFAULT '',
	experience_level   TEXT NOT NULL DEFAULT '',
	skills             TEXT NOT NULL DEFAULT '[]',
	deadline           TEXT,
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
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_failures (
	message_id   TEXT NOT NULL,
	stage        TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT '',
	last_attempt TEXT NOT NULL,
	PRIMARY KEY (message_id, stage)
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLite) InsertMessage(ctx context.Context, msg models.Message) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}
	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, origin, sender_address, sender_name, subject, body, sent_at, received_at, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, msg.ID, msg.Origin, msg.Sender.Address, msg.Sender.Name, msg.Subject, msg.Body,
		optTS(nullTime(msg.SentAt)), ts(received), ts(time.Now()))
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLite) MarkProcessed(ctx context.Context, v models.Verdict) error {
	processed := v.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO classifications (message_id, category, urgency, confidence, backend, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`, v.MessageID, string(v.Category), string(v.Urgency), v.Confidence, v.Backend, ts(processed))
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", v.MessageID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", models.ErrDuplicateClassification, v.MessageID)
	}
	return nil
}

func (s *SQLite) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM classifications WHERE message_id = ?)`, messageID,
	).Scan(&exists)
	return exists, err
}

func (s *SQLite) FetchUnprocessed(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.origin, m.sender_address, m.sender_name, m.subject, m.body, m.sent_at, m.received_at
		FROM messages m
		LEFT JOIN classifications c ON c.message_id = m.id
		WHERE c.message_id IS NULL
		ORDER BY m.received_at, m.id
		LIMIT ?
	`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var sent sql.NullString
		var received string
		if err := rows.Scan(&m.ID, &m.Origin, &m.Sender.Address, &m.Sender.Name,
			&m.Subject, &m.Body, &sent, &received); err != nil {
			return nil, err
		}
		m.ReceivedAt = parseTS(received)
		if p := parseOptTS(sent); p != nil {
			m.SentAt = *p
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLite) SaveExtraction(ctx context.Context, messageID string, ex models.Extraction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var category string
	err = tx.QueryRowContext(ctx, `SELECT category FROM classifications WHERE message_id = ?`, messageID).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: message %s has no verdict", models.ErrCategoryMismatch, messageID)
	}
	if err != nil {
		return err
	}
	if err := checkExtraction(messageID, models.Category(category), ex); err != nil {
		return err
	}

	now := ts(time.Now())
	for _, e := range ex.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (message_id, title, event_date, event_time, location, attendees, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, messageID, e.Title, e.Date, e.Time, e.Location, jsonText(e.Attendees), now); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	for _, t := range ex.Tasks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (message_id, description, deadline, priority, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, messageID, t.Description, optTS(t.Deadline), string(t.Priority), now); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	}
	for _, si := range ex.Social {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO social_interactions
				(message_id, relationship_type, purposes, sentiment_tone, response_required,
				 response_urgency, life_events, important_dates, topics, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, messageID, si.Relationship, jsonText(si.Purposes), si.Tone, si.ResponseRequired,
			si.ResponseUrgency, jsonText(si.LifeEvents), jsonText(si.ImportantDates), jsonText(si.Topics), now); err != nil {
			return fmt.Errorf("insert social interaction: %w", err)
		}
	}
	for _, sa := range ex.Spam {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spam_analyses
				(message_id, is_spam, spam_type, severity, confidence, reasoning, indicators,
				 red_flags, recommended_action, should_block, should_report, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, messageID, sa.IsSpam, sa.SpamType, string(sa.Severity), sa.Confidence, sa.Reasoning,
			jsonText(sa.Indicators), jsonText(sa.RedFlags), sa.Action, sa.ShouldBlock, sa.ShouldReport, now); err != nil {
			return fmt.Errorf("insert spam analysis: %w", err)
		}
	}
	for _, j := range ex.Jobs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_opportunities
				(message_id, title, company, location, job_type, work_mode, salary_range,
				 experience_level, skills, deadline, source_type, recruiter_name, recruiter_email,
				 application_link, communication_type, relevance, quality, legitimacy, interest, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, messageID, j.Title, j.Company, j.Location, j.JobType, j.WorkMode, j.SalaryRange,
			j.ExperienceLevel, jsonText(j.Skills), optTS(j.Deadline), j.SourceType, j.RecruiterName, j.RecruiterEmail,
			j.ApplicationLink, j.CommunicationType, j.Relevance, j.Quality, j.Legitimacy, j.Interest, j.Status, now); err != nil {
			return fmt.Errorf("insert job opportunity: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) MarkEventSynced(ctx context.Context, eventID int64, calendarEventID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET is_on_calendar = 1, calendar_event_id = ? WHERE id = ?`, calendarEventID, eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", eventID, models.ErrNotFound)
	}
	return nil
}

func (s *SQLite) CompleteTask(ctx context.Context, taskID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, completed_at = COALESCE(completed_at, ?) WHERE id = ?`, ts(time.Now()), taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", taskID, models.ErrNotFound)
	}
	return nil
}

func (s *SQLite) ListVerdicts(ctx context.Context, f VerdictFilter) ([]VerdictRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.message_id, c.category, c.urgency, c.confidence, c.backend, c.processed_at,
		       m.origin, m.sender_address, m.subject, m.received_at
		FROM classifications c
		JOIN messages m ON m.id = c.message_id
		WHERE (?1 = '' OR c.category = ?1)
		  AND (?2 = '' OR c.urgency = ?2)
		  AND (?3 IS NULL OR m.received_at >= ?3)
		  AND (?4 IS NULL OR m.received_at < ?4)
		ORDER BY m.received_at DESC, c.message_id
		LIMIT ?5
	`, string(f.Category), string(f.Urgency), optTS(nullTime(f.Since)), optTS(nullTime(f.Until)), limitOr(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VerdictRow
	for rows.Next() {
		var r VerdictRow
		var category, urgency, processed, received string
		if err := rows.Scan(&r.MessageID, &category, &urgency, &r.Confidence, &r.Backend, &processed,
			&r.Origin, &r.Sender, &r.Subject, &received); err != nil {
			return nil, err
		}
		r.Category, r.Urgency = models.Category(category), models.Urgency(urgency)
		r.ProcessedAt, r.ReceivedAt = parseTS(processed), parseTS(received)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) UnsyncedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, title, event_date, event_time, location, attendees,
		       is_on_calendar, calendar_event_id, created_at
		FROM events
		WHERE is_on_calendar = 0
		ORDER BY event_date IS NULL, event_date, event_time IS NULL, event_time, id
		LIMIT ?
	`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		var attendees, created string
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Title, &e.Date, &e.Time, &e.Location, &attendees,
			&e.OnCalendar, &e.CalendarEventID, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attendees), &e.Attendees); err != nil {
			return nil, fmt.Errorf("event %d attendees: %w", e.ID, err)
		}
		e.CreatedAt = parseTS(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	var completed any
	if f.Completed != nil {
		completed = *f.Completed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, description, deadline, priority, completed, completed_at, created_at
		FROM tasks
		WHERE (?1 IS NULL OR completed = ?1)
		ORDER BY `+priorityCase+`, deadline IS NULL, deadline, id
		LIMIT ?2
	`, completed, limitOr(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		var priority, created string
		var deadline, completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.MessageID, &t.Description, &deadline, &priority,
			&t.Completed, &completedAt, &created); err != nil {
			return nil, err
		}
		t.Priority = models.Priority(priority)
		t.Deadline, t.CompletedAt = parseOptTS(deadline), parseOptTS(completedAt)
		t.CreatedAt = parseTS(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) PendingReplies(ctx context.Context, limit int) ([]models.SocialInteraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, relationship_type, purposes, sentiment_tone, response_required,
		       response_urgency, life_events, important_dates, topics, created_at
		FROM social_interactions
		WHERE response_required = 1
		ORDER BY `+responseCase+`, created_at, id
		LIMIT ?
	`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SocialInteraction
	for rows.Next() {
		var si models.SocialInteraction
		var purposes, lifeEvents, dates, topics, created string
		if err := rows.Scan(&si.ID, &si.MessageID, &si.Relationship, &purposes, &si.Tone,
			&si.ResponseRequired, &si.ResponseUrgency, &lifeEvents, &dates, &topics, &created); err != nil {
			return nil, err
		}
		if err := decodeJSON(
			purposes, &si.Purposes,
			lifeEvents, &si.LifeEvents,
			dates, &si.ImportantDates,
			topics, &si.Topics,
		); err != nil {
			return nil, fmt.Errorf("social interaction %d: %w", si.ID, err)
		}
		si.CreatedAt = parseTS(created)
		out = append(out, si)
	}
	return out, rows.Err()
}

func (s *SQLite) ListJobs(ctx context.Context, f JobFilter) ([]models.JobOpportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, title, company, location, job_type, work_mode, salary_range,
		       experience_level, skills, deadline, source_type, recruiter_name, recruiter_email,
		       application_link, communication_type, relevance, quality, legitimacy, interest,
		       status, created_at
		FROM job_opportunities
		WHERE (?1 = '' OR communication_type = ?1)
		ORDER BY created_at DESC, id DESC
		LIMIT ?2
	`, f.CommunicationType, limitOr(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.JobOpportunity
	for rows.Next() {
		var j models.JobOpportunity
		var skills, created string
		var deadline sql.NullString
		if err := rows.Scan(&j.ID, &j.MessageID, &j.Title, &j.Company, &j.Location, &j.JobType,
			&j.WorkMode, &j.SalaryRange, &j.ExperienceLevel, &skills, &deadline, &j.SourceType,
			&j.RecruiterName, &j.RecruiterEmail, &j.ApplicationLink, &j.CommunicationType,
			&j.Relevance, &j.Quality, &j.Legitimacy, &j.Interest, &j.Status, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(skills), &j.Skills); err != nil {
			return nil, fmt.Errorf("job %d skills: %w", j.ID, err)
		}
		j.Deadline = parseOptTS(deadline)
		j.CreatedAt = parseTS(created)
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLite) ListSpam(ctx context.Context, minSeverity models.Severity, limit int) ([]models.SpamAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, is_spam, spam_type, severity, confidence, reasoning, indicators,
		       red_flags, recommended_action, should_block, should_report, created_at
		FROM spam_analyses
		WHERE `+severityCase+` >= ?
		ORDER BY `+severityCase+` DESC, created_at DESC, id DESC
		LIMIT ?
	`, max(minSeverity.Level(), 0), limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SpamAnalysis
	for rows.Next() {
		var sa models.SpamAnalysis
		var severity, indicators, flags, created string
		if err := rows.Scan(&sa.ID, &sa.MessageID, &sa.IsSpam, &sa.SpamType, &severity, &sa.Confidence,
			&sa.Reasoning, &indicators, &flags, &sa.Action, &sa.ShouldBlock, &sa.ShouldReport,
			&created); err != nil {
			return nil, err
		}
		if err := decodeJSON(indicators, &sa.Indicators, flags, &sa.RedFlags); err != nil {
			return nil, fmt.Errorf("spam analysis %d: %w", sa.ID, err)
		}
		sa.Severity = models.Severity(severity)
		sa.CreatedAt = parseTS(created)
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (s *SQLite) RecordFailure(ctx context.Context, messageID, stage, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_failures (message_id, stage, attempts, last_error, last_attempt)
		VALUES (?1, ?2, 1, ?3, ?4)
		ON CONFLICT(message_id, stage) DO UPDATE SET
			attempts     = attempts + 1,
			last_error   = excluded.last_error,
			last_attempt = excluded.last_attempt
	`, messageID, stage, reason, ts(time.Now()))
	return err
}

func (s *SQLite) ListFailures(ctx context.Context, minAttempts int) ([]Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, stage, attempts, last_error, last_attempt
		FROM processing_failures
		WHERE attempts >= ?
		ORDER BY attempts DESC, message_id, stage
	`, max(minAttempts, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var last string
		if err := rows.Scan(&f.MessageID, &f.Stage, &f.Attempts, &f.LastError, &last); err != nil {
			return nil, err
		}
		f.LastAttempt = parseTS(last)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func ts(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func optTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseOptTS(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTS(s.String)
	return &t
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

// decodeJSON unmarshals (text, target) pairs.
func decodeJSON(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := json.Unmarshal([]byte(pairs[i].(string)), pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
