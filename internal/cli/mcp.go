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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/bcem/triage/internal/assistant"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the read-only assistant tools over MCP on stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout.

The server exposes read-only tools a conversational assistant can call:
triage_verdicts, triage_unsynced_events, triage_open_tasks,
triage_pending_replies and triage_jobs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := server.ServeStdio(assistant.NewServer(st, appVersion)); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
