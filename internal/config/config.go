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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bcem/triage/internal/models"
)

// DefaultConfigPath is used when CONFIG_PATH is unset.
const DefaultConfigPath = "/app/config/config.yaml"

// Backend kinds.
const (
	BackendPattern = "pattern"
	BackendLLM     = "llm"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OAuthConfig holds client-credentials settings for backends fronted by an
// OAuth2 token endpoint.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether client-credentials auth is configured.
func (o OAuthConfig) Enabled() bool {
	return o.TokenURL != "" && o.ClientID != "" && o.ClientSecret != ""
}

// BackendConfig selects the classifier/extractor implementation.
type BackendConfig struct {
	Kind    string // "pattern" or "llm"
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	OAuth   OAuthConfig
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	Interval    time.Duration
	BatchSize   int
	Workers     int
	CallTimeout time.Duration
	LockTTL     time.Duration
}

// Config holds all configuration for the triage service.
type Config struct {
	// Database
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string

	// Redis (optional: empty URL disables queues, dedup and distributed locks)
	RedisURL           string
	InboundQueue       string
	NotificationsQueue string
	// NotificationTTL is how long a sent notification is remembered.
	NotificationTTL time.Duration

	Backend  BackendConfig
	Pipeline PipelineConfig

	// Channels maps an origin family to its allowed category labels.
	Channels map[string][]string

	// Server
	Port int

	LogLevel slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
		Path   string `yaml:"path"`
	} `yaml:"database"`
	Redis struct {
		URL             string `yaml:"url"`
		NotificationTTL string `yaml:"notification_ttl"`
		Queues          struct {
			Inbound       string `yaml:"inbound"`
			Notifications string `yaml:"notifications"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Backend struct {
		Kind    string `yaml:"kind"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
		OAuth   struct {
			TokenURL     string   `yaml:"token_url"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth"`
	} `yaml:"backend"`
	Pipeline struct {
		Interval    string `yaml:"interval"`
		BatchSize   int    `yaml:"batch_size"`
		Workers     int    `yaml:"workers"`
		CallTimeout string `yaml:"call_timeout"`
		LockTTL     string `yaml:"lock_ttl"`
	} `yaml:"pipeline"`
	Channels map[string][]string `yaml:"channels"`
	Server   struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from the file named by CONFIG_PATH.
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", DefaultConfigPath))
}

// LoadFile reads configuration from path (with env var expansion) and
// environment variables for non-YAML settings. A missing file is not an
// error: every setting has an environment fallback.
func LoadFile(configPath string) (*Config, error) {
	var raw rawConfig

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		slog.Warn("config file not found, using environment only", "path", configPath)
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return build(raw)
}

// Parse builds a Config from YAML bytes. Used by tests and the CLI.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return build(raw)
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		DatabaseDriver:     strings.ToLower(firstNonEmpty(raw.Database.Driver, envOrDefault("DATABASE_DRIVER", DriverPostgres))),
		DatabaseURL:        firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		SQLitePath:         firstNonEmpty(raw.Database.Path, envOrDefault("SQLITE_PATH", "triage.db")),
		RedisURL:           firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		InboundQueue:       firstNonEmpty(raw.Redis.Queues.Inbound, envOrDefault("INBOUND_QUEUE", "triage:inbound")),
		NotificationsQueue: firstNonEmpty(raw.Redis.Queues.Notifications, envOrDefault("NOTIFICATIONS_QUEUE", "triage:notifications")),
		NotificationTTL:    durationOr(raw.Redis.NotificationTTL, envOrDefaultDuration("NOTIFICATION_TTL", 7*24*time.Hour)),
		Backend: BackendConfig{
			Kind:    strings.ToLower(firstNonEmpty(raw.Backend.Kind, envOrDefault("BACKEND_KIND", BackendPattern))),
			Model:   firstNonEmpty(raw.Backend.Model, envOrDefault("BACKEND_MODEL", "gpt-4o-mini")),
			BaseURL: firstNonEmpty(raw.Backend.BaseURL, os.Getenv("BACKEND_BASE_URL")),
			APIKey:  firstNonEmpty(raw.Backend.APIKey, os.Getenv("BACKEND_API_KEY")),
			Timeout: durationOr(raw.Backend.Timeout, envOrDefaultDuration("BACKEND_TIMEOUT", 30*time.Second)),
			OAuth: OAuthConfig{
				TokenURL:     raw.Backend.OAuth.TokenURL,
				ClientID:     raw.Backend.OAuth.ClientID,
				ClientSecret: raw.Backend.OAuth.ClientSecret,
				Scopes:       raw.Backend.OAuth.Scopes,
			},
		},
		Pipeline: PipelineConfig{
			Interval:    durationOr(raw.Pipeline.Interval, envOrDefaultDuration("PIPELINE_INTERVAL", 5*time.Minute)),
			BatchSize:   intOr(raw.Pipeline.BatchSize, envOrDefaultInt("PIPELINE_BATCH_SIZE", 50)),
			Workers:     intOr(raw.Pipeline.Workers, envOrDefaultInt("PIPELINE_WORKERS", 1)),
			CallTimeout: durationOr(raw.Pipeline.CallTimeout, envOrDefaultDuration("PIPELINE_CALL_TIMEOUT", 45*time.Second)),
			LockTTL:     durationOr(raw.Pipeline.LockTTL, envOrDefaultDuration("PIPELINE_LOCK_TTL", 10*time.Minute)),
		},
		Channels: raw.Channels,
		Port:     intOr(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
		LogLevel: parseLevel(firstNonEmpty(raw.LogLevel, envOrDefault("LOG_LEVEL", "info"))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that prevents the service from starting.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return &models.ConfigurationError{Field: "database.url", Reason: "required for the postgres driver (or set DATABASE_URL)"}
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return &models.ConfigurationError{Field: "database.path", Reason: "required for the sqlite driver"}
		}
	default:
		return &models.ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unknown driver %q (supported: postgres, sqlite)", c.DatabaseDriver)}
	}

	switch c.Backend.Kind {
	case BackendPattern:
	case BackendLLM:
		if c.Backend.APIKey == "" && !c.Backend.OAuth.Enabled() {
			return &models.ConfigurationError{Field: "backend.api_key", Reason: "llm backend needs an API key or oauth client credentials"}
		}
		if c.Backend.Model == "" {
			return &models.ConfigurationError{Field: "backend.model", Reason: "llm backend needs a model name"}
		}
	default:
		return &models.ConfigurationError{Field: "backend.kind", Reason: fmt.Sprintf("unknown backend %q (supported: pattern, llm)", c.Backend.Kind)}
	}

	if c.Pipeline.Workers < 1 {
		return &models.ConfigurationError{Field: "pipeline.workers", Reason: "must be at least 1"}
	}
	if c.Pipeline.BatchSize < 1 {
		return &models.ConfigurationError{Field: "pipeline.batch_size", Reason: "must be at least 1"}
	}
	if c.Pipeline.Interval <= 0 {
		return &models.ConfigurationError{Field: "pipeline.interval", Reason: "must be positive"}
	}
	if c.NotificationTTL <= 0 {
		return &models.ConfigurationError{Field: "redis.notification_ttl", Reason: "must be positive"}
	}

	if _, err := models.NewTaxonomy(c.Channels); err != nil {
		return &models.ConfigurationError{Field: "channels", Reason: err.Error()}
	}
	return nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOr(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}

func intOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
