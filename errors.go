// Copyright 2025 Matthew Gall <me@matthewgall.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"errors"
	"fmt"
	"strings"
)

// Rule skip signals. These are not failures: a rule that returns one of them
// simply does not apply to the material.
var (
	// ErrZeroBaseline means the baseline average is zero so the change rate is undefined
	ErrZeroBaseline = errors.New("baseline average is zero")

	// ErrInactivePeriod means the material has no valid observation in the analysis period
	ErrInactivePeriod = errors.New("no purchase in analysis period")

	// ErrNoContract means the material carries no contract end date
	ErrNoContract = errors.New("no contract end date")

	// ErrUndefinedRate means the change rate is not a finite number
	ErrUndefinedRate = errors.New("change rate is undefined")
)

// IsRuleSkip reports whether err is one of the rule skip signals
func IsRuleSkip(err error) bool {
	return errors.Is(err, ErrZeroBaseline) ||
		errors.Is(err, ErrInactivePeriod) ||
		errors.Is(err, ErrNoContract) ||
		errors.Is(err, ErrUndefinedRate)
}

// DataIntegrityError represents malformed or contradictory input rows for one material.
// It excludes the material from evaluation without aborting the run.
type DataIntegrityError struct {
	Code     string
	Supplier string
	Month    string
	Message  string
}

func (e *DataIntegrityError) Error() string {
	subject := e.Code
	if e.Supplier != "" {
		subject = fmt.Sprintf("%s/%s", e.Code, e.Supplier)
	}
	if e.Month != "" {
		return fmt.Sprintf("data integrity error for %s (%s): %s", subject, e.Month, e.Message)
	}
	return fmt.Sprintf("data integrity error for %s: %s", subject, e.Message)
}

// ConfigurationError represents invalid thresholds or settings. It is fatal.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// ConfigurationErrors aggregates every problem found while validating a configuration
type ConfigurationErrors []*ConfigurationError

func (e ConfigurationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, err := range e {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(parts, "\n  - "))
}

// Unwrap exposes the individual errors to errors.As
func (e ConfigurationErrors) Unwrap() []error {
	errs := make([]error, 0, len(e))
	for _, err := range e {
		errs = append(errs, err)
	}
	return errs
}

// LoadError represents a failure reading or parsing the input data set
type LoadError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	location := e.Path
	if e.Line > 0 {
		location = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to load %s: %s: %v", location, e.Message, e.Err)
	}
	return fmt.Sprintf("failed to load %s: %s", location, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage operation error
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s at %s: %v", e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
