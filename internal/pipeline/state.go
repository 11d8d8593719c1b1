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
	"fmt"
	"time"
)

// Phase is where the orchestrator is within a cycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseFetching      Phase = "fetching"
	PhaseClassifying   Phase = "classifying"
	PhaseExtracting    Phase = "extracting"
	PhaseCycleComplete Phase = "cycle_complete"
)

// State is one observable orchestrator state. Index and MessageID are set
// for the per-message phases; Index is the position within the batch.
type State struct {
	Phase     Phase  `json:"phase"`
	CycleID   string `json:"cycle_id,omitempty"`
	Index     int    `json:"index"`
	MessageID string `json:"message_id,omitempty"`
}

func (s State) String() string {
	switch s.Phase {
	case PhaseClassifying, PhaseExtracting:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Index)
	default:
		return string(s.Phase)
	}
}

// CycleStats summarises one RunCycle.
type CycleStats struct {
	CycleID          string        `json:"cycle_id"`
	Fetched          int           `json:"fetched"`
	Classified       int           `json:"classified"`
	Extracted        int           `json:"extracted"`
	Records          int           `json:"records"`
	ClassifyFailures int           `json:"classify_failures"`
	ExtractFailures  int           `json:"extract_failures"`
	Duplicates       int           `json:"duplicates"`
	Skipped          int           `json:"skipped"`
	Notified         int           `json:"notified"`
	Duration         time.Duration `json:"duration"`
}

func (s *CycleStats) add(r result) {
	switch r.outcome {
	case outcomeClassifyFailed:
		s.ClassifyFailures++
	case outcomeDuplicate:
		s.Duplicates++
	case outcomeSkipped:
		s.Skipped++
	case outcomeExtractFailed:
		s.Classified++
		s.ExtractFailures++
	case outcomeExtracted:
		s.Classified++
		s.Extracted++
		s.Records += r.records
	default:
		s.Classified++
	}
	s.Notified += r.notified
}

// Totals are cumulative counters across every cycle since start.
type Totals struct {
	Cycles           int64     `json:"cycles"`
	Fetched          int64     `json:"fetched"`
	Classified       int64     `json:"classified"`
	Extracted        int64     `json:"extracted"`
	Records          int64     `json:"records"`
	ClassifyFailures int64     `json:"classify_failures"`
	ExtractFailures  int64     `json:"extract_failures"`
	Duplicates       int64     `json:"duplicates"`
	Skipped          int64     `json:"skipped"`
	Notified         int64     `json:"notified"`
	LastCycleAt      time.Time `json:"last_cycle_at,omitempty"`
}

func (t *Totals) add(s CycleStats, at time.Time) {
	t.Cycles++
	t.Fetched += int64(s.Fetched)
	t.Classified += int64(s.Classified)
	t.Extracted += int64(s.Extracted)
	t.Records += int64(s.Records)
	t.ClassifyFailures += int64(s.ClassifyFailures)
	t.ExtractFailures += int64(s.ExtractFailures)
	t.Duplicates += int64(s.Duplicates)
	t.Skipped += int64(s.Skipped)
	t.Notified += int64(s.Notified)
	t.LastCycleAt = at
}
