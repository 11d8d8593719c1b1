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

// Package api serves the HTTP surface used by the calendar sync, task
// list and UI feeds: message ingest, verdict and extraction queries, the
// two action handlers, failure counters and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/pipeline"
	"github.com/bcem/triage/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Pipeline is the orchestrator as seen by the API.
type Pipeline interface {
	RunCycle(ctx context.Context) (pipeline.CycleStats, error)
	State() pipeline.State
	Totals() pipeline.Totals
}

// Handler serves the API.
type Handler struct {
	store    store.Store
	pipeline Pipeline
	redis    Pinger
}

// NewHandler creates an API handler. pipeline and redis may be nil.
func NewHandler(st store.Store, p Pipeline, redis Pinger) *Handler {
	return &Handler{store: st, pipeline: p, redis: redis}
}

// Routes returns the API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /api/messages", h.ingestMessage)
	mux.HandleFunc("GET /api/verdicts", h.listVerdicts)

	mux.HandleFunc("GET /api/events", h.listEvents)
	mux.HandleFunc("POST /api/events/{id}/synced", h.markEventSynced)

	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks/{id}/complete", h.completeTask)

	mux.HandleFunc("GET /api/social/pending-replies", h.pendingReplies)
	mux.HandleFunc("GET /api/jobs", h.listJobs)
	mux.HandleFunc("GET /api/spam", h.listSpam)

	mux.HandleFunc("GET /api/failures", h.listFailures)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("POST /api/cycles", h.runCycle)

	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unhealthy")
		return
	}
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) ingestMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message JSON: "+err.Error())
		return
	}
	if err := msg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	inserted, err := h.store.InsertMessage(r.Context(), msg)
	if err != nil {
		h.queryFailed(w, "insert message", err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
		slog.Info("message ingested", "message_id", msg.ID, "origin", msg.Origin)
	}
	writeJSON(w, status, map[string]any{"id": msg.ID, "inserted": inserted})
}

func (h *Handler) listVerdicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.VerdictFilter
	var err error

	if v := q.Get("category"); v != "" {
		if f.Category, err = models.ParseCategory(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if v := q.Get("urgency"); v != "" {
		if f.Urgency, err = models.ParseUrgency(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if f.Since, err = timeParam(q.Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, "since: "+err.Error())
		return
	}
	if f.Until, err = timeParam(q.Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, "until: "+err.Error())
		return
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}

	rows, err := h.store.ListVerdicts(r.Context(), f)
	if err != nil {
		h.queryFailed(w, "list verdicts", err)
		return
	}
	writeItems(w, rows)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if v := q.Get("unsynced"); v != "" && v != "true" {
		writeError(w, http.StatusBadRequest, "only unsynced=true is supported")
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	events, err := h.store.UnsyncedEvents(r.Context(), limit)
	if err != nil {
		h.queryFailed(w, "list events", err)
		return
	}
	writeItems(w, events)
}

func (h *Handler) markEventSynced(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		CalendarEventID string `json:"calendar_event_id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.CalendarEventID) == "" {
		writeError(w, http.StatusBadRequest, "calendar_event_id is required")
		return
	}

	if err := h.store.MarkEventSynced(r.Context(), id, req.CalendarEventID); err != nil {
		h.actionFailed(w, "mark event synced", err)
		return
	}
	slog.Info("event synced to calendar", "event_id", id, "calendar_event_id", req.CalendarEventID)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "synced"})
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.TaskFilter
	if v := q.Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "completed must be true or false")
			return
		}
		f.Completed = &b
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}

	tasks, err := h.store.ListTasks(r.Context(), f)
	if err != nil {
		h.queryFailed(w, "list tasks", err)
		return
	}
	writeItems(w, tasks)
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.CompleteTask(r.Context(), id); err != nil {
		h.actionFailed(w, "complete task", err)
		return
	}
	slog.Info("task completed", "task_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "completed"})
}

func (h *Handler) pendingReplies(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	items, err := h.store.PendingReplies(r.Context(), limit)
	if err != nil {
		h.queryFailed(w, "list pending replies", err)
		return
	}
	writeItems(w, items)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.JobFilter{CommunicationType: q.Get("communication_type")}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	jobs, err := h.store.ListJobs(r.Context(), f)
	if err != nil {
		h.queryFailed(w, "list jobs", err)
		return
	}
	writeItems(w, jobs)
}

func (h *Handler) listSpam(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minSeverity := models.SeveritySafe
	if v := q.Get("min_severity"); v != "" {
		minSeverity = models.Severity(strings.ToLower(v))
		if minSeverity.Level() < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", v))
			return
		}
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	items, err := h.store.ListSpam(r.Context(), minSeverity, limit)
	if err != nil {
		h.queryFailed(w, "list spam", err)
		return
	}
	writeItems(w, items)
}

func (h *Handler) listFailures(w http.ResponseWriter, r *http.Request) {
	minAttempts, err := intParam(r.URL.Query().Get("min_attempts"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "min_attempts: "+err.Error())
		return
	}
	if minAttempts < 1 {
		minAttempts = 1
	}
	failures, err := h.store.ListFailures(r.Context(), minAttempts)
	if err != nil {
		h.queryFailed(w, "list failures", err)
		return
	}
	writeItems(w, failures)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  h.pipeline.State(),
		"totals": h.pipeline.Totals(),
	})
}

// runCycle triggers a cycle now and waits for it.
func (h *Handler) runCycle(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running")
		return
	}
	stats, err := h.pipeline.RunCycle(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrCycleInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.queryFailed(w, "run cycle", err)
	default:
		writeJSON(w, http.StatusOK, stats)
	}
}

func (h *Handler) queryFailed(w http.ResponseWriter, op string, err error) {
	slog.Error("api query failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed: "+err.Error())
}

func (h *Handler) actionFailed(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.queryFailed(w, op, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func timeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

// writeItems wraps a list; an empty one carries status "no data yet".
func writeItems[T any](w http.ResponseWriter, items []T) {
	if len(items) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"items": []T{}, "status": "no data yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the API server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /api/cycles waits for a whole cycle
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("api server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
