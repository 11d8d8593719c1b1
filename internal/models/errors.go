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

package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateClassification is returned when a verdict already exists
	// for the message id.
	ErrDuplicateClassification = errors.New("message already classified")

	// ErrCategoryMismatch is returned when extraction records are written
	// for a category other than the message's verdict.
	ErrCategoryMismatch = errors.New("extraction category does not match verdict")

	// ErrNotFound is returned by action handlers for unknown record ids.
	ErrNotFound = errors.New("not found")
)

// Parse stages.
const (
	StageClassify = "classify"
	StageExtract  = "extract"
)

// ParseError is returned when a backend response cannot be parsed against
// its schema. Raw holds the response for diagnosis.
type ParseError struct {
	Stage     string
	MessageID string
	Raw       string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error for message %s: %v", e.Stage, e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsClassificationParse reports whether err is a classification ParseError.
func IsClassificationParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Stage == StageClassify
}

// IsExtractionParse reports whether err is an extraction ParseError.
func IsExtractionParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Stage == StageExtract
}

// TransientError wraps store and network failures that a later cycle may
// not hit again.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is transient, including timeouts.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// ConfigurationError is fatal at startup: processing does not begin.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
