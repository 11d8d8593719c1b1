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
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bcem/triage/internal/backfill"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/queue"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.jsonl> [file.jsonl...]",
	Short: "Load historical messages from JSON Lines files",
	Long: `Load historical messages into the store. Each line is a normalized
message object or an inbound queue envelope. Messages already stored are
skipped, so an interrupted load can be rerun.

With --queue the messages are pushed onto the Redis inbound queue for a
running server to consume instead of being written to the store directly.

Examples:
  triage ingest export.jsonl
  triage ingest --since 720h mail.jsonl chat.jsonl
  triage ingest --queue export.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := cmd.Flags().GetDuration("since")
		if err != nil {
			return err
		}

		toQueue, err := cmd.Flags().GetBool("queue")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		var sink queue.MessageSink
		if toQueue {
			qs, err := openQueueSink(ctx)
			if err != nil {
				return err
			}
			defer qs.Close()
			sink = qs
		} else {
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			sink = st
		}

		var sources []backfill.Source
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()
			sources = append(sources, backfill.Source{Name: path, Reader: f})
		}

		runner := backfill.NewRunner(backfill.RunnerConfig{Sink: sink})
		res, err := runner.Run(ctx, backfill.BackfillRequest{Sources: sources, Since: since})
		if err != nil {
			return fmt.Errorf("ingesting: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, sr := range res.SourceResults {
			fmt.Fprintf(out, "%s: %d new, %d skipped, %d invalid\n", sr.Source, sr.New, sr.Skipped, sr.Invalid)
		}
		fmt.Fprintf(out, "total: %d new, %d skipped, %d invalid (%s)\n",
			res.TotalNew, res.TotalSkipped, res.TotalInvalid, res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

// queueSink hands messages to the inbound queue. Duplicates are dropped by
// the consumer's insert, so every enqueued message counts as new here.
type queueSink struct {
	rdb *redis.Client
	pub *queue.Publisher
}

func openQueueSink(ctx context.Context) (*queueSink, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.RedisURL == "" {
		return nil, &models.ConfigurationError{Field: "redis.url", Reason: "required by --queue (or set REDIS_URL)"}
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, &models.ConfigurationError{Field: "redis.url", Reason: err.Error()}
	}
	rdb := redis.NewClient(opt)
	pub := queue.NewPublisher(rdb, cfg.InboundQueue)
	if err := pub.Ping(ctx); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &queueSink{rdb: rdb, pub: pub}, nil
}

func (q *queueSink) InsertMessage(ctx context.Context, msg models.Message) (bool, error) {
	if err := q.pub.Enqueue(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func (q *queueSink) Close() error { return q.rdb.Close() }

func init() {
	ingestCmd.Flags().Duration("since", 0, "only load messages received within this window (e.g. 168h)")
	ingestCmd.Flags().Bool("queue", false, "push messages onto the Redis inbound queue instead of the store")
	rootCmd.AddCommand(ingestCmd)
}
