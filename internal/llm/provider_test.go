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

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bcem/triage/internal/config"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", `{"category":"task"}`, `{"category":"task"}`, false},
		{"fenced", "```json\n{\"category\":\"event\"}\n```", `{"category":"event"}`, false},
		{"prose", `Sure! Here it is: {"a":1} hope that helps`, `{"a":1}`, false},
		{"array", `[1,2]`, "", true},
		{"garbage", `not json at all`, "", true},
		{"broken", `{"a":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanJSON(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc…" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("ab", 3); got != "ab" {
		t.Errorf("Truncate = %q", got)
	}
}

// chatServer records the last chat completion request and replies with content.
type chatServer struct {
	mu      sync.Mutex
	auth    string
	request map[string]any
	content string
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.auth = r.Header.Get("Authorization")
	s.request = body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": s.content},
		}},
	})
}

func TestOpenAIProvider_Complete(t *testing.T) {
	srv := &chatServer{content: `  {"category":"event"}  `}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	p, err := New(config.BackendConfig{
		Model:   "test-model",
		APIKey:  "sk-test",
		BaseURL: ts.URL + "/v1/",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "llm/test-model" {
		t.Errorf("Name = %q", p.Name())
	}

	got, err := p.Complete(context.Background(), "classify this", CompletionOpts{System: "sys", JSON: true, MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"category":"event"}` {
		t.Errorf("content = %q", got)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", srv.auth)
	}
	if srv.request["model"] != "test-model" {
		t.Errorf("model = %v", srv.request["model"])
	}
	msgs, _ := srv.request["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected system+user messages, got %d", len(msgs))
	}
	rf, _ := srv.request["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", srv.request["response_format"])
	}
}

func TestOpenAIProvider_OAuthToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	srv := &chatServer{content: `{}`}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	p, err := New(config.BackendConfig{
		Model:   "test-model",
		BaseURL: ts.URL + "/v1/",
		Timeout: 5 * time.Second,
		OAuth: config.OAuthConfig{
			TokenURL:     tokenSrv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Complete(context.Background(), "hi", CompletionOpts{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want oauth token", srv.auth)
	}
}

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New(config.BackendConfig{APIKey: "x"}); err == nil {
		t.Error("expected error without model")
	}
}
