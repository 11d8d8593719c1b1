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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List extracted events not yet synced to a calendar",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		events, err := st.UnsyncedEvents(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		return printList(cmd, events)
	},
}

var markSyncedCmd = &cobra.Command{
	Use:   "mark-synced <event-id> <calendar-event-id>",
	Short: "Record that an event was written to the calendar",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.MarkEventSynced(cmd.Context(), id, args[1]); err != nil {
			return fmt.Errorf("marking event %d synced: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "event %d synced as %s\n", id, args[1])
		return nil
	},
}

var completeTaskCmd = &cobra.Command{
	Use:   "complete-task <task-id>",
	Short: "Mark an action item completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.CompleteTask(cmd.Context(), id); err != nil {
			return fmt.Errorf("completing task %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task %d completed\n", id)
		return nil
	},
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List messages that failed classification or extraction",
	Long: `List durable failure counters. A message keeps failing until a later
run succeeds; the counter shows how many attempts it has taken so far.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		minAttempts, _ := cmd.Flags().GetInt("min-attempts")

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		failures, err := st.ListFailures(cmd.Context(), minAttempts)
		if err != nil {
			return fmt.Errorf("listing failures: %w", err)
		}
		return printList(cmd, failures)
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	eventsCmd.Flags().Int("limit", 100, "maximum events to list")
	failuresCmd.Flags().Int("min-attempts", 1, "only messages with at least this many attempts")

	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(markSyncedCmd)
	rootCmd.AddCommand(completeTaskCmd)
	rootCmd.AddCommand(failuresCmd)
}
