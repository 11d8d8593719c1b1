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

// Package queue moves messages and notifications through Redis lists.
// Inbound messages arrive from the ingestion services; notifications leave
// for whatever delivers them (push, chat, mail).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/triage/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notification kinds.
const (
	KindInterviewInvitation = "interview_invitation"
	KindUrgentTask          = "urgent_task"
	KindCriticalSpam        = "critical_spam"
)

// Notification is the envelope pushed onto the notifications list.
type Notification struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	MessageID string          `json:"message_id"`
	Title     string          `json:"title"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewNotification builds a notification with a fresh id. payload is
// marshalled as-is; a marshal failure drops it rather than the notification.
func NewNotification(kind, messageID, title string, payload any) Notification {
	n := Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		MessageID: messageID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			n.Payload = b
		}
	}
	return n
}

// Publisher sends notifications and inbound messages to Redis lists.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Publish pushes a notification onto the queue.
func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	// Consumers BRPOP, so LPUSH keeps the list FIFO.
	if err := p.rdb.LPush(ctx, p.queueName, body).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published notification",
		"notification_id", n.ID,
		"kind", n.Kind,
		"message_id", n.MessageID,
		"queue", p.queueName,
	)
	return nil
}

// Enqueue pushes a normalised message onto the queue for a Consumer.
func (p *Publisher) Enqueue(ctx context.Context, msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := p.rdb.LPush(ctx, p.queueName, body).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
