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

// Package models defines the data structures shared across the triage service.
package models

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

// Well-known origin tags. Chat bridges use "chat:<platform>".
const (
	OriginEmail = "email"
	OriginChat  = "chat"
)

// Sender identifies who sent a message.
type Sender struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Message is one inbound communication, normalised across origins.
// Messages are immutable once stored; corrections arrive as new messages.
type Message struct {
	ID         string    `json:"id"`
	Origin     string    `json:"origin"`
	Sender     Sender    `json:"sender"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks the fields the store requires.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("message id is required")
	}
	if strings.TrimSpace(m.Origin) == "" {
		return fmt.Errorf("message %s: origin is required", m.ID)
	}
	return nil
}

// Text returns the subject and body joined for pattern matching.
func (m *Message) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n" + m.Body
}

// Reference returns the time relative dates in the message are resolved
// against: the origin-reported send time, or the receive time.
func (m *Message) Reference() time.Time {
	if !m.SentAt.IsZero() {
		return m.SentAt
	}
	return m.ReceivedAt
}

var (
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	blockRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spaceRe = regexp.MustCompile(`[ \t]+`)
)

// StripHTML reduces an HTML body to plain text.
func StripHTML(s string) string {
	s = blockRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n").Replace(s)
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
