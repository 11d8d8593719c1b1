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

// Package lock provides Redis leases that keep processing single-flight
// across replicas: one for the whole cycle and one per message.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces lock keys in Redis.
const keyPrefix = "triage:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never frees a lock someone else now holds.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release frees a held lease.
type Release func(ctx context.Context) error

// Locker hands out leases backed by SET NX PX.
type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// TryLock attempts to take name for ttl without waiting. ok is false when
// another holder has it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	key := keyPrefix + name
	token := uuid.New().String()

	set, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock SETNX %s: %w", name, err)
	}
	if !set {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}
