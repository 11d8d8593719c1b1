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

package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingCycler struct {
	runs atomic.Int32
	err  error
}

func (c *countingCycler) RunCycle(context.Context) (CycleStats, error) {
	c.runs.Add(1)
	return CycleStats{}, c.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunner_InitialRunThenInterval(t *testing.T) {
	c := &countingCycler{}
	r := NewRunner(c, time.Hour)
	r.Start(context.Background())
	waitFor(t, func() bool { return c.runs.Load() == 1 })
	r.Stop()
	if got := c.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want only the initial run", got)
	}
}

func TestRunner_TicksUntilStopped(t *testing.T) {
	c := &countingCycler{err: ErrCycleInFlight}
	r := NewRunner(c, 10*time.Millisecond)
	r.Start(context.Background())
	waitFor(t, func() bool { return c.runs.Load() >= 3 })
	r.Stop()

	stopped := c.runs.Load()
	time.Sleep(50 * time.Millisecond)
	if got := c.runs.Load(); got != stopped {
		t.Errorf("runs grew from %d to %d after Stop", stopped, got)
	}
}

func TestRunner_StopsWithParentContext(t *testing.T) {
	c := &countingCycler{}
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(c, 10*time.Millisecond)
	r.Start(ctx)
	waitFor(t, func() bool { return c.runs.Load() >= 1 })
	cancel()

	done := make(chan struct{})
	go func() { r.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after parent cancellation")
	}
}
