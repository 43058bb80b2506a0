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
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pipeline stages reported through StageEvent
const (
	StageLoad      = "load"
	StageNormalize = "normalize"
	StageAggregate = "aggregate"
	StageRule1     = "rule1"
	StageRule2     = "rule2"
	StageRule3     = "rule3"
	StageRule4     = "rule4"
	StageRule5     = "rule5"
	StageAssemble  = "assemble"
)

// StageKind tells whether a stage is starting or done
type StageKind string

const (
	StageStarted  StageKind = "started"
	StageFinished StageKind = "finished"
)

// StageEvent is emitted as the pipeline moves through its stages.
// Count is the stage's result count and is only set when finished.
type StageEvent struct {
	Stage string    `json:"stage"`
	Kind  StageKind `json:"kind"`
	Count int       `json:"count"`
}

// AnalysisOptions controls one analysis run
type AnalysisOptions struct {
	Thresholds Thresholds

	// AnalysisMonth is the period compared against the baseline; zero means the latest month in the data
	AnalysisMonth time.Time

	// AnalysisDate is the reference date of the contract rule; zero means the first day of AnalysisMonth
	AnalysisDate time.Time
}

// Analyzer runs the anomaly pipeline over a data set
type Analyzer struct {
	logger     *Logger
	evaluators []RuleEvaluator

	observerMu sync.Mutex
	observer   func(StageEvent)
}

// NewAnalyzer creates a new analyzer with the five default rules
func NewAnalyzer(logger *Logger) *Analyzer {
	return &Analyzer{
		logger:     logger.WithComponent("analyzer"),
		evaluators: DefaultEvaluators(),
	}
}

// OnStage registers a callback for stage events. Calls are serialized.
func (a *Analyzer) OnStage(fn func(StageEvent)) {
	a.observerMu.Lock()
	defer a.observerMu.Unlock()
	a.observer = fn
}

func (a *Analyzer) emit(event StageEvent) {
	a.logger.LogAnalysisStage(event)

	a.observerMu.Lock()
	defer a.observerMu.Unlock()
	if a.observer != nil {
		a.observer(event)
	}
}

func (a *Analyzer) start(stage string) {
	a.emit(StageEvent{Stage: stage, Kind: StageStarted})
}

func (a *Analyzer) finish(stage string, count int) {
	a.emit(StageEvent{Stage: stage, Kind: StageFinished, Count: count})
}

// Analyze performs complete analysis on a data set
func (a *Analyzer) Analyze(ctx context.Context, data *Dataset, opts AnalysisOptions) (*Report, error) {
	if data == nil {
		return nil, &LoadError{Path: "(none)", Message: "no data set to analyze"}
	}

	// Thresholds are checked before any stage runs
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}

	a.logger.Info("Starting analysis", "source", data.Source, "rows", len(data.Rows))

	a.start(StageLoad)
	a.finish(StageLoad, len(data.Rows))

	a.start(StageNormalize)
	set := NormalizeRows(data.Rows)
	for _, rejected := range set.RejectedRows {
		a.logger.Warn("Row rejected", "error", rejected)
	}
	for _, excluded := range set.Excluded {
		a.logger.LogMaterialExcluded(excluded.Err)
	}
	a.finish(StageNormalize, len(set.Records))

	period := opts.AnalysisMonth
	if period.IsZero() {
		period = set.LatestMonth
	}
	period = startOfMonth(period)
	analysisDate := opts.AnalysisDate
	if analysisDate.IsZero() {
		analysisDate = period
	}

	a.start(StageAggregate)
	all := Aggregate(set.Records, period)
	records := make([]MaterialRecord, 0, len(set.Records))
	baselines := make([]*MaterialBaseline, 0, len(all))
	for i, baseline := range all {
		if baseline != nil {
			records = append(records, set.Records[i])
			baselines = append(baselines, baseline)
			continue
		}
		excluded := &DataIntegrityError{
			Code:     set.Records[i].Code,
			Supplier: set.Records[i].Supplier,
			Message:  fmt.Sprintf("no valid months up to %s", formatMonth(period)),
		}
		a.logger.LogMaterialExcluded(excluded)
		set.Excluded = append(set.Excluded, ExcludedMaterial{Record: set.Records[i], Err: excluded})
	}
	set.Records = records
	a.finish(StageAggregate, len(baselines))

	params := RuleParams{
		Thresholds:   opts.Thresholds,
		AnalysisDate: analysisDate,
	}

	findings, err := a.evaluateAll(ctx, records, baselines, params)
	if err != nil {
		return nil, err
	}

	a.start(StageAssemble)
	report := AssembleReport(AssemblyInput{
		Set:          set,
		Findings:     findings,
		Thresholds:   opts.Thresholds,
		Period:       period,
		AnalysisDate: analysisDate,
	})
	a.finish(StageAssemble, report.Summary.TotalAnomalies)

	a.logger.Info("Analysis completed",
		"materials", report.Summary.TotalMaterials,
		"excluded", report.Summary.ExcludedMaterials,
		"anomalies", report.Summary.TotalAnomalies,
		"high_risk", report.Summary.HighRiskCount,
	)

	return report, nil
}

// evaluateAll runs every rule concurrently and waits for all of them.
// The records and baselines are shared read-only.
func (a *Analyzer) evaluateAll(ctx context.Context, records []MaterialRecord, baselines []*MaterialBaseline, params RuleParams) (map[RuleID][]Finding, error) {
	results := make([][]Finding, len(a.evaluators))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, evaluator := range a.evaluators {
		i, evaluator := i, evaluator
		eg.Go(func() error {
			stage := RuleKey(evaluator.ID())
			a.start(stage)

			findings, err := a.runEvaluator(egCtx, evaluator, records, baselines, params)
			if err != nil {
				return err
			}
			results[i] = findings

			a.finish(stage, len(findings))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byRule := make(map[RuleID][]Finding, len(a.evaluators))
	for i, evaluator := range a.evaluators {
		byRule[evaluator.ID()] = results[i]
	}
	return byRule, nil
}

func (a *Analyzer) runEvaluator(ctx context.Context, evaluator RuleEvaluator, records []MaterialRecord, baselines []*MaterialBaseline, params RuleParams) ([]Finding, error) {
	findings := make([]Finding, 0)

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		baseline := baselines[i]
		if baseline == nil {
			continue
		}

		finding, err := evaluator.Evaluate(*baseline, record, params)
		if err != nil {
			if IsRuleSkip(err) {
				a.logger.LogRuleSkipped(evaluator.ID(), record.Code, record.Supplier, err)
				continue
			}
			return nil, fmt.Errorf("rule %d failed for %s: %w", evaluator.ID(), record.Code, err)
		}
		if finding == nil {
			continue
		}

		if finding.RiskLevel == RiskHigh {
			a.logger.LogFindingDetected(*finding)
		}
		findings = append(findings, *finding)
	}

	sortFindings(findings)
	return findings, nil
}
