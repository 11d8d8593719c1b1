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

// Triage Service
//
// Entry point for the long-running triage service. It:
//  1. Loads configuration from config.yaml
//  2. Opens the store and, when configured, connects to Redis
//  3. Builds the classifier and extractors for the configured backend
//  4. Consumes normalized messages from the inbound queue
//  5. Runs processing cycles on an interval
//  6. Serves the HTTP query and action API
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bcem/triage/internal/api"
	"github.com/bcem/triage/internal/app"
	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/pipeline"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting triage service",
		"backend", cfg.Backend.Kind,
		"database", cfg.DatabaseDriver,
		"interval", cfg.Pipeline.Interval,
		"workers", cfg.Pipeline.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Inbound Queue ---
	var wg sync.WaitGroup
	if a.Consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Consumer.Run(ctx); err != nil {
				slog.Error("inbound consumer stopped", "error", err)
			}
		}()
	}

	// --- HTTP API ---
	var pinger api.Pinger
	if a.Publisher != nil {
		pinger = a.Publisher
	}
	handler := api.NewHandler(a.Store, a.Pipeline, pinger)
	ready, err := api.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start API server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Processing Cycles ---
	runner := pipeline.NewRunner(a.Pipeline, cfg.Pipeline.Interval)
	runner.Start(ctx)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stop all background goroutines

	runner.Stop()
	wg.Wait()

	totals := a.Pipeline.Totals()
	slog.Info("triage service stopped",
		"cycles", totals.Cycles,
		"classified", totals.Classified,
		"extracted", totals.Extracted,
	)
}
