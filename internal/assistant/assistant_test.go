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

package assistant

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	received := time.Now().UTC().Add(-time.Hour)
	date := "2026-03-10"
	records := []models.Extraction{
		{Category: models.CategoryEvent, Events: []models.Event{{Title: "Team offsite", Date: &date}}},
		{Category: models.CategoryTask, Tasks: []models.Task{
			{Description: "Send the deck", Priority: models.PriorityUrgent},
			{Description: "Tidy the wiki", Priority: models.PriorityLow},
		}},
		{Category: models.CategorySocial, Social: []models.SocialInteraction{
			{Relationship: models.RelationshipFamily, ResponseRequired: true, ResponseUrgency: "high"},
		}},
		{Category: models.CategoryRecruiting, Jobs: []models.JobOpportunity{
			{Title: "Backend Engineer", Company: "Acme", CommunicationType: models.CommInterviewInvitation},
		}},
	}
	for i, ex := range records {
		id := string(ex.Category)
		msg := models.Message{ID: id, Origin: models.OriginEmail, Subject: id, Body: "body",
			ReceivedAt: received.Add(time.Duration(i) * time.Minute)}
		if _, err := st.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
		urgency := models.UrgencyLow
		if ex.Category == models.CategoryTask {
			urgency = models.UrgencyHigh
		}
		if err := st.MarkProcessed(ctx, models.Verdict{MessageID: id, Category: ex.Category, Urgency: urgency, Confidence: 0.8, Backend: "pattern"}); err != nil {
			t.Fatalf("MarkProcessed: %v", err)
		}
		if err := st.SaveExtraction(ctx, id, ex); err != nil {
			t.Fatalf("SaveExtraction: %v", err)
		}
	}
	return st
}

type toolResult struct {
	Text    string
	IsError bool
}

// callTool invokes a tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) toolResult {
	t.Helper()

	msg, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respBytes, err := json.Marshal(srv.HandleMessage(context.Background(), msg))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, respBytes)
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result.Content) == 0 {
		t.Fatalf("no content in result: %s", respBytes)
	}
	return toolResult{Text: resp.Result.Content[0].Text, IsError: resp.Result.IsError}
}

func decodeLen(t *testing.T, text string) int {
	t.Helper()
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		t.Fatalf("decode %s: %v", text, err)
	}
	return len(items)
}

func TestNewServer_ListsTools(t *testing.T) {
	srv := NewServer(setupTestStore(t), "")

	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, _ := json.Marshal(resp)
	for _, name := range []string{"triage_verdicts", "triage_unsynced_events", "triage_open_tasks", "triage_pending_replies", "triage_jobs"} {
		if !strings.Contains(string(raw), `"`+name+`"`) {
			t.Errorf("tools/list missing %s", name)
		}
	}
}

func TestVerdictsTool(t *testing.T) {
	srv := NewServer(setupTestStore(t), "test")

	tests := []struct {
		args map[string]interface{}
		want int
	}{
		{map[string]interface{}{}, 4},
		{map[string]interface{}{"category": "tasks"}, 1},
		{map[string]interface{}{"urgency": "high"}, 1},
		{map[string]interface{}{"since_hours": 2}, 4},
		{map[string]interface{}{"limit": 2}, 2},
	}
	for _, tt := range tests {
		res := callTool(t, srv, "triage_verdicts", tt.args)
		if res.IsError {
			t.Errorf("%v: tool error %s", tt.args, res.Text)
			continue
		}
		if got := decodeLen(t, res.Text); got != tt.want {
			t.Errorf("%v: verdicts = %d, want %d", tt.args, got, tt.want)
		}
	}

	if res := callTool(t, srv, "triage_verdicts", map[string]interface{}{"category": "astrology"}); !res.IsError {
		t.Error("unknown category should be a tool error")
	}
}

func TestQueryTools(t *testing.T) {
	srv := NewServer(setupTestStore(t), "test")

	tests := []struct {
		tool     string
		args     map[string]interface{}
		want     int
		contains string
	}{
		{"triage_unsynced_events", nil, 1, "Team offsite"},
		{"triage_open_tasks", nil, 2, "Send the deck"},
		{"triage_open_tasks", map[string]interface{}{"priority": "low"}, 1, "Tidy the wiki"},
		{"triage_open_tasks", map[string]interface{}{"limit": 1}, 1, "Send the deck"},
		{"triage_pending_replies", nil, 1, "family"},
		{"triage_jobs", nil, 1, "Acme"},
		{"triage_jobs", map[string]interface{}{"communication_type": "interview_invitation"}, 1, "Backend Engineer"},
	}
	for _, tt := range tests {
		res := callTool(t, srv, tt.tool, tt.args)
		if res.IsError {
			t.Errorf("%s %v: tool error %s", tt.tool, tt.args, res.Text)
			continue
		}
		if got := decodeLen(t, res.Text); got != tt.want {
			t.Errorf("%s %v: items = %d, want %d", tt.tool, tt.args, got, tt.want)
		}
		if !strings.Contains(res.Text, tt.contains) {
			t.Errorf("%s %v: result missing %q", tt.tool, tt.args, tt.contains)
		}
	}
}
