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

// Package classify assigns each message exactly one category with an urgency
// and a confidence. Two implementations share the Classifier contract: a
// deterministic pattern classifier and a model-backed classifier.
package classify

import (
	"context"

	"github.com/bcem/triage/internal/models"
)

// ConfidenceFloor is the lowest confidence any classifier reports.
const ConfidenceFloor = 0.4

// Result is the classifier's decision for one message.
type Result struct {
	Category   models.Category `json:"category"`
	Urgency    models.Urgency  `json:"urgency"`
	Confidence float64         `json:"confidence"`
	Backend    string          `json:"backend"`
}

// Verdict converts the result into the ledger record for msg.
func (r Result) Verdict(messageID string) models.Verdict {
	return models.Verdict{
		MessageID:  messageID,
		Category:   r.Category,
		Urgency:    r.Urgency,
		Confidence: r.Confidence,
		Backend:    r.Backend,
	}
}

// Classifier maps a message to a single category.
type Classifier interface {
	Classify(ctx context.Context, msg models.Message) (Result, error)
	Name() string
}

func clampConfidence(c float64) float64 {
	if c < ConfidenceFloor {
		return ConfidenceFloor
	}
	if c > 1 {
		return 1
	}
	return c
}
