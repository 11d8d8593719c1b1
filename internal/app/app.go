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

// Package app wires configuration into a running set of components. Both
// the service and the operator CLI build through here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/dedup"
	"github.com/bcem/triage/internal/extract"
	"github.com/bcem/triage/internal/llm"
	"github.com/bcem/triage/internal/lock"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/pipeline"
	"github.com/bcem/triage/internal/queue"
	"github.com/bcem/triage/internal/store"
)

// App holds the wired components. Redis-backed fields are nil when no
// Redis URL is configured.
type App struct {
	Config    *config.Config
	Store     store.Store
	Redis     *redis.Client
	Publisher *queue.Publisher
	Consumer  *queue.Consumer
	Pipeline  *pipeline.Orchestrator
}

// New connects the store and, when configured, Redis, then builds the
// orchestrator for the configured backend.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("store ready", "driver", cfg.DatabaseDriver)

	a := &App{Config: cfg, Store: st}

	classifier, extractors, err := Backend(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	opts := pipeline.Options{
		BatchSize:   cfg.Pipeline.BatchSize,
		Workers:     cfg.Pipeline.Workers,
		CallTimeout: cfg.Pipeline.CallTimeout,
		LockTTL:     cfg.Pipeline.LockTTL,
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, &models.ConfigurationError{Field: "redis.url", Reason: err.Error()}
		}
		a.Redis = redis.NewClient(opt)
		a.Publisher = queue.NewPublisher(a.Redis, cfg.NotificationsQueue)
		if err := a.Publisher.Ping(ctx); err != nil {
			a.Close()
			return nil, &models.TransientError{Op: "connect redis", Err: err}
		}
		slog.Info("connected to Redis")

		a.Consumer = queue.NewConsumer(a.Redis, cfg.InboundQueue, st)
		opts.Locker = lock.NewLocker(a.Redis)
		opts.Notifier = a.Publisher
		opts.Dedup = dedup.NewFilter(a.Redis).WithTTL(cfg.NotificationTTL)
	} else {
		slog.Warn("no Redis URL configured: notifications, inbound queue and distributed locks disabled")
	}

	a.Pipeline = pipeline.New(st, classifier, extractors, opts)
	return a, nil
}

// Backend builds the classifier and extractor set for cfg.Backend.Kind.
func Backend(cfg *config.Config) (classify.Classifier, *extract.Set, error) {
	taxonomy, err := models.NewTaxonomy(cfg.Channels)
	if err != nil {
		return nil, nil, &models.ConfigurationError{Field: "channels", Reason: err.Error()}
	}

	switch cfg.Backend.Kind {
	case config.BackendPattern:
		return classify.NewRules(taxonomy), extract.PatternSet(extract.SystemClock), nil
	case config.BackendLLM:
		provider, err := llm.New(cfg.Backend)
		if err != nil {
			return nil, nil, &models.ConfigurationError{Field: "backend", Reason: err.Error()}
		}
		slog.Info("model backend configured", "backend", provider.Name(), "oauth", cfg.Backend.OAuth.Enabled())
		return classify.NewModel(provider, taxonomy), extract.ModelSet(provider, extract.SystemClock), nil
	default:
		return nil, nil, &models.ConfigurationError{Field: "backend.kind", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend.Kind)}
	}
}

// Close releases Redis and the store.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
