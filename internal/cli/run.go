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

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bcem/triage/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one processing cycle and print its statistics",
	Long: `Run one processing cycle: fetch unprocessed messages, classify each one,
run the matching extractor and store the results.

Messages that fail are left unprocessed and picked up by the next run.
Interrupting the command stops it between messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if v.IsSet("workers") {
			cfg.Pipeline.Workers = v.GetInt("workers")
		}
		if v.IsSet("batch-size") {
			cfg.Pipeline.BatchSize = v.GetInt("batch-size")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Pipeline.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("running cycle: %w", err)
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	runCmd.Flags().Int("workers", 0, "concurrent workers for this cycle (env TRIAGE_WORKERS)")
	runCmd.Flags().Int("batch-size", 0, "maximum messages to fetch (env TRIAGE_BATCH_SIZE)")
	v.BindPFlag("workers", runCmd.Flags().Lookup("workers"))
	v.BindPFlag("batch-size", runCmd.Flags().Lookup("batch-size"))
	rootCmd.AddCommand(runCmd)
}
