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

// Package cli implements the triage operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/store"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// v resolves flags and TRIAGE_* environment variables.
var v = newViper()

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("log-level", "warn")
	return v
}

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Operate the message triage service",
	Long: `triage classifies inbound messages into one category, extracts events,
tasks, social context, spam verdicts and job opportunities, and stores the
results for calendar sync, task lists and the assistant.

The configuration file is read from --config, TRIAGE_CONFIG or CONFIG_PATH,
in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		// stdout carries command output, logs go to stderr.
		slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "triage %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (env TRIAGE_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error (env TRIAGE_LOG_LEVEL)")
	v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	v.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file chosen by flag or environment.
func loadConfig() (*config.Config, error) {
	path := v.GetString("config")
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// openStore loads the config and opens its store.
func openStore(ctx context.Context) (store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func printJSON(cmd *cobra.Command, val any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

// printList prints items as a JSON array, [] when empty.
func printList[T any](cmd *cobra.Command, items []T) error {
	if items == nil {
		items = []T{}
	}
	return printJSON(cmd, items)
}
