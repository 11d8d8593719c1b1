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

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/triage/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
)

// popTimeout bounds each BRPOP so Run notices cancellation.
const popTimeout = 5 * time.Second

// MessageSink is where consumed messages go.
type MessageSink interface {
	InsertMessage(ctx context.Context, msg models.Message) (bool, error)
}

// celeryMessage is the Redis transport envelope written by the email
// ingestion service. Body holds the JSON-encoded task.
type celeryMessage struct {
	Body            string                 `json:"body"`
	ContentEncoding string                 `json:"content-encoding"`
	ContentType     string                 `json:"content-type"`
	Headers         map[string]interface{} `json:"headers"`
	Properties      map[string]interface{} `json:"properties"`
}

// Consumer drains the inbound list into the message store.
type Consumer struct {
	rdb       *redis.Client
	queueName string
	sink      MessageSink
	now       func() time.Time
}

func NewConsumer(rdb *redis.Client, queueName string, sink MessageSink) *Consumer {
	return &Consumer{
		rdb:       rdb,
		queueName: queueName,
		sink:      sink,
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled, inserting every message it pops.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("inbound consumer started", "queue", c.queueName)
	for {
		res, err := c.rdb.BRPop(ctx, popTimeout, c.queueName).Result()
		switch {
		case ctx.Err() != nil:
			slog.Info("inbound consumer stopped", "queue", c.queueName)
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			slog.Error("inbound BRPOP failed", "queue", c.queueName, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPOP returns [key, value].
		if len(res) != 2 {
			continue
		}
		c.handle(ctx, []byte(res[1]))
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	msg, err := Decode(payload, c.now())
	if err != nil {
		slog.Warn("dropping undecodable inbound payload", "queue", c.queueName, "error", err, "bytes", len(payload))
		return
	}

	inserted, err := c.sink.InsertMessage(ctx, msg)
	if err != nil {
		slog.Error("failed to store inbound message", "message_id", msg.ID, "error", err)
		return
	}
	slog.Debug("inbound message consumed", "message_id", msg.ID, "origin", msg.Origin, "new", inserted)
}

// Decode turns one queue payload into a Message. It accepts a plain
// Message object or a Celery envelope whose first task argument is an
// EmailEvent (as a JSON string or object).
func Decode(payload []byte, now time.Time) (models.Message, error) {
	if !gjson.ValidBytes(payload) {
		return models.Message{}, fmt.Errorf("payload is not valid JSON")
	}

	if gjson.GetBytes(payload, "body").Type == gjson.String && gjson.GetBytes(payload, "headers").IsObject() {
		return decodeCelery(payload, now)
	}

	var msg models.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now.UTC()
	}
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func decodeCelery(payload []byte, now time.Time) (models.Message, error) {
	var env celeryMessage
	if err := json.Unmarshal(payload, &env); err != nil {
		return models.Message{}, fmt.Errorf("decode celery envelope: %w", err)
	}

	body := []byte(env.Body)
	if enc, _ := env.Properties["body_encoding"].(string); enc == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(env.Body)
		if err != nil {
			return models.Message{}, fmt.Errorf("decode base64 task body: %w", err)
		}
		body = decoded
	}

	arg := gjson.GetBytes(body, "args.0")
	var raw string
	switch {
	case arg.Type == gjson.String:
		raw = arg.Str
	case arg.IsObject():
		raw = arg.Raw
	default:
		return models.Message{}, fmt.Errorf("celery task has no email event argument")
	}

	var ev models.EmailEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return models.Message{}, fmt.Errorf("decode email event: %w", err)
	}
	msg := ev.ToMessage(now)
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}
