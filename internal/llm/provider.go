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

// Package llm adapts OpenAI-compatible chat completion endpoints for the
// model-backed classifier and extractors.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/triage/internal/config"
)

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name identifies the backend in verdict records (e.g. "llm/gpt-4o-mini").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int
	Temperature float64
	System      string
	JSON        bool // request a JSON object response
}

// DefaultTimeout bounds a single completion when the config sets none.
const DefaultTimeout = 30 * time.Second

type openAIProvider struct {
	client openai.Client
	model  string
}

// New creates a provider from the backend config. When OAuth client
// credentials are configured, requests go through a token-refreshing client.
func New(cfg config.BackendConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm provider requires a model")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	apiKey := cfg.APIKey
	if cfg.OAuth.Enabled() {
		creds := &clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		httpClient = creds.Client(context.Background())
		httpClient.Timeout = timeout
		if apiKey == "" {
			// Authorization is overwritten by the oauth2 transport.
			apiKey = "oauth2"
		}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &openAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (p *openAIProvider) Name() string {
	return "llm/" + p.model
}

func (p *openAIProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s", p.model)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CleanJSON strips markdown code fences and surrounding prose from a model
// response and verifies the remainder is a single JSON object.
func CleanJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		start, end := 0, len(lines)
		for i, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if start == 0 {
					start = i + 1
				} else {
					end = i
					break
				}
			}
		}
		if start > 0 && end > start {
			cleaned = strings.Join(lines[start:end], "\n")
		}
	}

	// Some models wrap the object in a sentence.
	if i, j := strings.IndexByte(cleaned, '{'), strings.LastIndexByte(cleaned, '}'); i >= 0 && j > i {
		cleaned = cleaned[i : j+1]
	}
	cleaned = strings.TrimSpace(cleaned)

	if !gjson.Valid(cleaned) {
		return "", fmt.Errorf("response is not valid JSON")
	}
	if !gjson.Parse(cleaned).IsObject() {
		return "", fmt.Errorf("response is not a JSON object")
	}
	return cleaned, nil
}

// Truncate shortens s for logs and error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}
