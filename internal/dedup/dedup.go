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

// Package dedup remembers which notifications were already sent so a
// re-run cycle never notifies twice for the same message.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a sent notification. Messages are
	// classified once, so this only has to outlive retries of the same cycle.
	DefaultTTL = 7 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "triage:notified:"
)

type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// WithTTL returns a copy of the filter that remembers keys for ttl.
func (f *Filter) WithTTL(ttl time.Duration) *Filter {
	return &Filter{rdb: f.rdb, ttl: ttl}
}

// Key builds the dedup key for one notification kind and message.
func Key(kind, messageID string) string {
	return kind + ":" + messageID
}

// IsNew reports whether key has not been seen before, marking it seen.
func (f *Filter) IsNew(ctx context.Context, key string) (bool, error) {
	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, keyPrefix+key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget clears key so a failed publish can be retried.
func (f *Filter) Forget(ctx context.Context, key string) error {
	return f.rdb.Del(ctx, keyPrefix+key).Err()
}
