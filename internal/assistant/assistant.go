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

// Package assistant exposes triage results to a conversational assistant
// as read-only Model Context Protocol tools.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// NewServer creates an MCP server with the triage query tools.
func NewServer(st store.Store, version string) *server.MCPServer {
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("triage", version, server.WithToolCapabilities(false))

	registerVerdictsTool(s, st)
	registerUnsyncedEventsTool(s, st)
	registerOpenTasksTool(s, st)
	registerPendingRepliesTool(s, st)
	registerJobsTool(s, st)

	return s
}

func registerVerdictsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("triage_verdicts",
		mcp.WithDescription("List classified messages with category, urgency and confidence, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("category",
			mcp.Description("Only this category (event, task, social, spam, recruiting, financial, urgent, informational)"),
		),
		mcp.WithString("urgency",
			mcp.Description("Only this urgency (low, medium, high)"),
			mcp.Enum("low", "medium", "high"),
		),
		mcp.WithNumber("since_hours",
			mcp.Description("Only messages received in the last N hours"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := store.VerdictFilter{Limit: limitArg(req)}
		var err error
		if v := req.GetString("category", ""); v != "" {
			if f.Category, err = models.ParseCategory(v); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		if v := req.GetString("urgency", ""); v != "" {
			if f.Urgency, err = models.ParseUrgency(v); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		if h := req.GetFloat("since_hours", 0); h > 0 {
			f.Since = time.Now().Add(-time.Duration(h * float64(time.Hour)))
		}

		rows, err := st.ListVerdicts(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("verdicts error: %v", err)), nil
		}
		return jsonResult(rows)
	})
}

func registerUnsyncedEventsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("triage_unsynced_events",
		mcp.WithDescription("List extracted calendar events that are not yet on the calendar, soonest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		events, err := st.UnsyncedEvents(ctx, limitArg(req))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("events error: %v", err)), nil
		}
		return jsonResult(events)
	})
}

func registerOpenTasksTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("triage_open_tasks",
		mcp.WithDescription("List open action items by priority (urgent, high, medium, low), then deadline."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("priority",
			mcp.Description("Only tasks with this priority"),
			mcp.Enum("urgent", "high", "medium", "low"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		open := false
		priority := models.Priority(req.GetString("priority", ""))
		limit := limitArg(req)

		// Filtering by priority happens here, so over-fetch.
		fetch := limit
		if priority != "" {
			fetch = maxLimit
		}
		tasks, err := st.ListTasks(ctx, store.TaskFilter{Completed: &open, Limit: fetch})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tasks error: %v", err)), nil
		}
		if priority != "" {
			kept := tasks[:0]
			for _, t := range tasks {
				if t.Priority == priority {
					kept = append(kept, t)
				}
			}
			tasks = kept
		}
		if len(tasks) > limit {
			tasks = tasks[:limit]
		}
		return jsonResult(tasks)
	})
}

func registerPendingRepliesTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("triage_pending_replies",
		mcp.WithDescription("List personal messages that still need a reply, most urgent first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := st.PendingReplies(ctx, limitArg(req))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("pending replies error: %v", err)), nil
		}
		return jsonResult(items)
	})
}

func registerJobsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("triage_jobs",
		mcp.WithDescription("List job opportunities and recruiting conversations, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("communication_type",
			mcp.Description("Only this kind of recruiting message"),
			mcp.Enum(
				models.CommNewOpportunity,
				models.CommFollowUp,
				models.CommInterviewInvitation,
				models.CommOffer,
				models.CommRejection,
				models.CommConfirmation,
				models.CommNetworking,
			),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobs, err := st.ListJobs(ctx, store.JobFilter{
			CommunicationType: req.GetString("communication_type", ""),
			Limit:             limitArg(req),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("jobs error: %v", err)), nil
		}
		return jsonResult(jobs)
	})
}

func limitArg(req mcp.CallToolRequest) int {
	limit := int(req.GetFloat("limit", defaultLimit))
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
