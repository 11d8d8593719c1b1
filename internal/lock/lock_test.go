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

package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TRIAGE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TRIAGE_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestTryLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(testRedis(t))
	name := "test:" + uuid.New().String()

	release, ok, err := l.TryLock(ctx, name, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first TryLock = %v, %v", ok, err)
	}
	if _, ok, err := l.TryLock(ctx, name, time.Minute); err != nil || ok {
		t.Fatalf("second TryLock = %v, %v; want held", ok, err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	release, ok, err = l.TryLock(ctx, name, time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock after release = %v, %v", ok, err)
	}
	release(ctx)
}

func TestRelease_DoesNotFreeAnotherHolder(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	l := NewLocker(rdb)
	name := "test:" + uuid.New().String()

	release, ok, _ := l.TryLock(ctx, name, 50*time.Millisecond)
	if !ok {
		t.Fatal("TryLock failed")
	}
	time.Sleep(100 * time.Millisecond)

	second, ok, _ := l.TryLock(ctx, name, time.Minute)
	if !ok {
		t.Fatal("lease should have expired")
	}
	defer second(ctx)

	if err := release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if n, _ := rdb.Exists(ctx, keyPrefix+name).Result(); n != 1 {
		t.Error("stale release freed the new holder's lock")
	}
}
