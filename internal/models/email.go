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

import (
	"strings"
	"time"
)

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// EmailBody represents the message body content.
type EmailBody struct {
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// EmailEvent is the parsed email published by the ingestion service onto the
// inbound queue. It is converted to a Message before it reaches the store.
type EmailEvent struct {
	MessageID   string            `json:"message_id"`
	UserID      string            `json:"user_id"`
	TenantID    string            `json:"tenant_id"`
	TenantAlias string            `json:"tenant_alias"`
	ReceivedAt  string            `json:"received_at,omitempty"`
	SentAt      string            `json:"sent_at,omitempty"`
	From        EmailAddress      `json:"from"`
	To          []EmailAddress    `json:"to"`
	Subject     string            `json:"subject"`
	Body        EmailBody         `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// ToMessage normalises the email into the origin-agnostic Message shape.
// Missing or unparseable timestamps fall back to now.
func (e *EmailEvent) ToMessage(now time.Time) Message {
	received := parseRFC3339(e.ReceivedAt, now)
	sent := parseRFC3339(e.SentAt, received)

	body := e.Body.Content
	if strings.EqualFold(e.Body.ContentType, "html") {
		body = StripHTML(body)
	}

	return Message{
		ID:     e.MessageID,
		Origin: OriginEmail,
		Sender: Sender{
			Address: strings.ToLower(strings.TrimSpace(e.From.Address)),
			Name:    e.From.Name,
		},
		Subject:    e.Subject,
		Body:       body,
		SentAt:     sent,
		ReceivedAt: received,
	}
}

func parseRFC3339(v string, fallback time.Time) time.Time {
	if v == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
