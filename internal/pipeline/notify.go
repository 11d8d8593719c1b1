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

package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bcem/triage/internal/dedup"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/queue"
)

// Notifier delivers notifications (queue.Publisher).
type Notifier interface {
	Publish(ctx context.Context, n queue.Notification) error
}

// Deduper remembers which notifications went out (dedup.Filter).
type Deduper interface {
	IsNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Notifications returns the notifications an extraction warrants: one per
// interview invitation, urgent task and critical spam verdict, at most one
// of each kind per message.
func Notifications(msg models.Message, ex models.Extraction) []queue.Notification {
	var out []queue.Notification
	seen := map[string]bool{}
	add := func(kind, title string, payload any) {
		if seen[kind] {
			return
		}
		seen[kind] = true
		out = append(out, queue.NewNotification(kind, msg.ID, title, payload))
	}

	for i := range ex.Jobs {
		j := &ex.Jobs[i]
		if j.IsInterviewInvitation() {
			add(queue.KindInterviewInvitation, joinNonEmpty(" at ", j.Title, j.Company), j)
		}
	}
	for _, t := range ex.Tasks {
		if t.Priority == models.PriorityUrgent {
			add(queue.KindUrgentTask, t.Description, t)
		}
	}
	for _, s := range ex.Spam {
		if s.Severity == models.SeverityCritical {
			add(queue.KindCriticalSpam, joinNonEmpty(": ", s.SpamType, msg.Subject), s)
		}
	}
	return out
}

// notify publishes the extraction's notifications and returns how many
// went out. Failures are logged; they never fail the message.
func (o *Orchestrator) notify(ctx context.Context, msg models.Message, ex models.Extraction) int {
	if o.opts.Notifier == nil {
		return 0
	}

	sent := 0
	for _, n := range Notifications(msg, ex) {
		key := dedup.Key(n.Kind, n.MessageID)
		if o.opts.Dedup != nil {
			isNew, err := o.opts.Dedup.IsNew(ctx, key)
			if err != nil {
				// Redis unavailable: prefer a possible duplicate over silence.
				slog.Warn("notification dedup check failed", "key", key, "error", err)
			} else if !isNew {
				slog.Debug("notification already sent", "key", key)
				continue
			}
		}

		if err := o.opts.Notifier.Publish(ctx, n); err != nil {
			slog.Error("failed to publish notification", "kind", n.Kind, "message_id", n.MessageID, "error", err)
			if o.opts.Dedup != nil {
				if err := o.opts.Dedup.Forget(ctx, key); err != nil {
					slog.Warn("failed to clear dedup key", "key", key, "error", err)
				}
			}
			continue
		}
		sent++
	}
	return sent
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
