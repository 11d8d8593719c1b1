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

package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/models"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DatabaseDriver: config.DriverSQLite,
		SQLitePath:     filepath.Join(t.TempDir(), "triage.db"),
		Backend:        config.BackendConfig{Kind: config.BackendPattern},
		Pipeline:       config.PipelineConfig{BatchSize: 10, Workers: 2},
	}
}

func TestBackend(t *testing.T) {
	cfg := sqliteConfig(t)

	cls, set, err := Backend(cfg)
	if err != nil {
		t.Fatalf("pattern backend: %v", err)
	}
	if cls.Name() != classify.BackendPattern {
		t.Errorf("classifier = %s, want %s", cls.Name(), classify.BackendPattern)
	}
	if len(set.Categories()) == 0 {
		t.Error("pattern backend has no extractors")
	}

	cfg.Backend = config.BackendConfig{Kind: config.BackendLLM, Model: "gpt-4o-mini", APIKey: "sk-test"}
	cls, _, err = Backend(cfg)
	if err != nil {
		t.Fatalf("llm backend: %v", err)
	}
	if cls.Name() != "llm/gpt-4o-mini" {
		t.Errorf("classifier = %s", cls.Name())
	}

	var cerr *models.ConfigurationError
	cfg.Backend = config.BackendConfig{Kind: config.BackendLLM}
	if _, _, err := Backend(cfg); !errors.As(err, &cerr) {
		t.Errorf("llm without model: err = %v, want ConfigurationError", err)
	}
	cfg.Backend = config.BackendConfig{Kind: "oracle"}
	if _, _, err := Backend(cfg); !errors.As(err, &cerr) {
		t.Errorf("unknown backend: err = %v, want ConfigurationError", err)
	}
}

func TestNew_WithoutRedis(t *testing.T) {
	a, err := New(context.Background(), sqliteConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Redis != nil || a.Publisher != nil || a.Consumer != nil {
		t.Error("Redis components built without a Redis URL")
	}
	stats, err := a.Pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Fetched != 0 {
		t.Errorf("fetched = %d on an empty store", stats.Fetched)
	}
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.RedisURL = "not-a-url"

	var cerr *models.ConfigurationError
	if _, err := New(context.Background(), cfg); !errors.As(err, &cerr) || cerr.Field != "redis.url" {
		t.Errorf("err = %v, want ConfigurationError on redis.url", err)
	}
}
