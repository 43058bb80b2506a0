// Copyright 2025 Matthew Gall <me@matthewgall.dev>
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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with domain-specific methods
type Logger struct {
	*slog.Logger
	out io.Writer
}

// NewLogger creates a text-formatted logger
func NewLogger(debug bool) *Logger {
	handler := slog.NewTextHandler(os.Stderr, handlerOptions(debug))
	return &Logger{Logger: slog.New(handler), out: os.Stderr}
}

// NewJSONLogger creates a JSON-formatted logger
func NewJSONLogger(debug bool) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, handlerOptions(debug))
	return &Logger{Logger: slog.New(handler), out: os.Stderr}
}

// NewDiscardLogger creates a logger that drops everything, used by tests
func NewDiscardLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, handlerOptions(false))
	return &Logger{Logger: slog.New(handler), out: io.Discard}
}

func handlerOptions(debug bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With("component", component), out: l.out}
}

// LogDataLoaded logs how many raw rows were read from a source
func (l *Logger) LogDataLoaded(source string, rows int) {
	l.Info("Data loaded",
		"source", source,
		"rows", rows,
	)
}

// LogAnalysisStage logs a stage transition of the pipeline
func (l *Logger) LogAnalysisStage(event StageEvent) {
	if event.Kind == StageStarted {
		l.Debug("Analysis stage started", "stage", event.Stage)
		return
	}
	l.Info("Analysis stage completed",
		"stage", event.Stage,
		"count", event.Count,
	)
}

// LogFindingDetected logs a high risk finding
func (l *Logger) LogFindingDetected(f Finding) {
	l.Warn("High risk finding",
		"rule", int(f.RuleID),
		"code", f.Code,
		"supplier", f.Supplier,
		"severity", fmt.Sprintf("%.1f", f.Severity()),
	)
}

// LogRuleSkipped logs a rule that did not apply to a material
func (l *Logger) LogRuleSkipped(rule RuleID, code, supplier string, reason error) {
	l.Debug("Rule skipped",
		"rule", int(rule),
		"code", code,
		"supplier", supplier,
		"reason", reason,
	)
}

// LogMaterialExcluded logs a material dropped from evaluation
func (l *Logger) LogMaterialExcluded(err *DataIntegrityError) {
	l.Warn("Material excluded",
		"code", err.Code,
		"supplier", err.Supplier,
		"error", err.Message,
	)
}

// LogStorageOperation logs storage operations
func (l *Logger) LogStorageOperation(operation, path string) {
	l.Debug("Storage operation",
		"operation", operation,
		"path", path,
	)
}

// UserMessage writes a plain message to stderr, bypassing structured logging,
// so it never mixes with a report written to stdout
func (l *Logger) UserMessage(format string, args ...interface{}) {
	fmt.Fprintf(l.out, format+"\n", args...)
}
