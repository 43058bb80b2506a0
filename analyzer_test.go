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
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func analyzeFixture(t *testing.T, opts AnalysisOptions) *Report {
	t.Helper()

	report, err := NewAnalyzer(NewDiscardLogger()).Analyze(context.Background(), fixtureDataset(), opts)
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func TestAnalyze_Fixture(t *testing.T) {
	defer goleak.VerifyNone(t)

	report := analyzeFixture(t, AnalysisOptions{Thresholds: DefaultThresholds()})
	summary := report.Summary

	assert.Equal(t, 4, summary.TotalMaterials)
	assert.Equal(t, 1, summary.ExcludedMaterials)
	assert.Equal(t, 3, summary.TotalAnomalies)
	assert.Equal(t, 2, summary.HighRiskCount)
	assert.Equal(t, 1, summary.ContractExpiringCount)
	assert.Equal(t, 3, summary.TotalSuppliers)
	assert.Equal(t, "2025-12", summary.AnalysisPeriod)
	assert.Equal(t, "2025-12-01", summary.AnalysisDate)

	wantCounts := []int{1, 1, 1, 0, 0}
	wantPercentages := []float64{25, 25, 25, 0, 0}
	require.Len(t, summary.Rules, 5)
	for i, rule := range summary.Rules {
		assert.Equal(t, AllRules[i], rule.ID)
		assert.Equal(t, wantCounts[i], rule.Count, "rule %d", rule.ID)
		assert.Equal(t, wantPercentages[i], rule.Percentage, "rule %d", rule.ID)
	}

	require.Len(t, report.Details.Rule1, 1)
	x := report.Details.Rule1[0]
	assert.Equal(t, "X", x.Code)
	assert.Equal(t, 100.0, x.AvgValue)
	assert.Equal(t, 220.0, x.CurrentValue)
	assert.Equal(t, 120.0, x.ChangeRate)
	assert.Equal(t, RiskHigh, x.RiskLevel)
	assert.Equal(t, 3, x.ValidMonths)

	require.Len(t, report.Details.Rule2, 1)
	y := report.Details.Rule2[0]
	assert.Equal(t, "Y", y.Code)
	assert.Equal(t, -35.0, y.ChangeRate)
	assert.Equal(t, RiskHigh, y.RiskLevel)

	require.Len(t, report.Details.Rule3, 1)
	z := report.Details.Rule3[0]
	assert.Equal(t, "Z", z.Code)
	assert.Equal(t, "2026-02-15", z.ContractDate)
	assert.Equal(t, 2, z.MonthsRemaining)
	assert.Equal(t, RiskMedium, z.RiskLevel)

	assert.Empty(t, report.Details.Rule4)
	assert.Empty(t, report.Details.Rule5)

	require.NotEmpty(t, report.Insights)
	assert.Equal(t, "summary", report.Insights[0].Category)
	assert.Contains(t, report.Insights[0].Action, "절연테이프")
}

func TestAnalyze_IsDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t)

	opts := AnalysisOptions{Thresholds: DefaultThresholds()}

	var first, second bytes.Buffer
	require.NoError(t, WriteJSON(&first, analyzeFixture(t, opts)))
	require.NoError(t, WriteJSON(&second, analyzeFixture(t, opts)))

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestAnalyze_AnalysisMonthOverride(t *testing.T) {
	report := analyzeFixture(t, AnalysisOptions{
		Thresholds:    DefaultThresholds(),
		AnalysisMonth: time.Date(2025, time.November, 20, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "2025-11", report.Summary.AnalysisPeriod)
	assert.Equal(t, "2025-11-01", report.Summary.AnalysisDate)
	assert.Empty(t, report.Details.Rule1, "december rows are ignored when analyzing november")
	assert.Empty(t, report.Details.Rule2)

	require.Len(t, report.Details.Rule3, 1)
	assert.Equal(t, 3, report.Details.Rule3[0].MonthsRemaining)
	assert.Equal(t, RiskLow, report.Details.Rule3[0].RiskLevel)
}

func TestAnalyze_ExcludesSeriesWithoutHistory(t *testing.T) {
	rows := append(fixtureRows(), seriesRows("N", "신규 자재", "S4", nil,
		monthValues{month(2026, time.January), 5, 10, 1, 50},
	)...)

	report, err := NewAnalyzer(NewDiscardLogger()).Analyze(context.Background(), &Dataset{Source: "fixture", Rows: rows}, AnalysisOptions{
		Thresholds:    DefaultThresholds(),
		AnalysisMonth: month(2025, time.December),
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Summary.TotalMaterials)
	assert.Equal(t, 2, report.Summary.ExcludedMaterials)
}

func TestAnalyze_StageEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	analyzer := NewAnalyzer(NewDiscardLogger())

	var mu sync.Mutex
	finished := make(map[string]int)
	analyzer.OnStage(func(event StageEvent) {
		mu.Lock()
		defer mu.Unlock()
		if event.Kind == StageFinished {
			finished[event.Stage] = event.Count
		}
	})

	_, err := analyzer.Analyze(context.Background(), fixtureDataset(), AnalysisOptions{Thresholds: DefaultThresholds()})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		StageLoad:      11,
		StageNormalize: 3,
		StageAggregate: 3,
		StageRule1:     1,
		StageRule2:     1,
		StageRule3:     1,
		StageRule4:     0,
		StageRule5:     0,
		StageAssemble:  3,
	}, finished)

	for stage := range finished {
		assert.Contains(t, StageNarration, stage)
	}
}

func TestAnalyze_InvalidThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.PriceVolatility.Trigger = -1

	_, err := NewAnalyzer(NewDiscardLogger()).Analyze(context.Background(), fixtureDataset(), AnalysisOptions{Thresholds: th})
	require.Error(t, err)

	var problems ConfigurationErrors
	require.True(t, errors.As(err, &problems))
	assert.Equal(t, "thresholds.price_volatility.trigger", problems[0].Field)
}

func TestAnalyze_NilDataset(t *testing.T) {
	_, err := NewAnalyzer(NewDiscardLogger()).Analyze(context.Background(), nil, AnalysisOptions{Thresholds: DefaultThresholds()})

	var loadErr *LoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestAnalyze_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAnalyzer(NewDiscardLogger()).Analyze(ctx, fixtureDataset(), AnalysisOptions{Thresholds: DefaultThresholds()})
	assert.ErrorIs(t, err, context.Canceled)
}
