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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParams() RuleParams {
	return RuleParams{
		Thresholds:   DefaultThresholds(),
		AnalysisDate: time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
	}
}

func activeBaseline() MaterialBaseline {
	return MaterialBaseline{
		Code:                 "M-1",
		Supplier:             "S1",
		ValidMonths:          3,
		AvgQuantity:          100,
		AvgUnitPrice:         100,
		AvgOrderCount:        10,
		AvgInventoryValue:    1000,
		AvgAmount:            10000,
		LatestQuantity:       100,
		LatestUnitPrice:      100,
		LatestOrderCount:     10,
		LatestInventoryValue: 1000,
		LatestAmount:         10000,
		LatestReported:       true,
		LatestActive:         true,
	}
}

func testRecord() MaterialRecord {
	return MaterialRecord{Code: "M-1", Name: "볼트", Supplier: "S1", Unit: "EA", ValidMonths: 3}
}

func TestQuantityVolatilityRule(t *testing.T) {
	rule := quantityVolatilityRule{}

	tests := []struct {
		name   string
		latest float64
		rate   float64
		risk   RiskLevel
	}{
		{name: "below trigger", latest: 119, risk: ""},
		{name: "at trigger", latest: 120, rate: 20, risk: RiskLow},
		{name: "medium", latest: 150, rate: 50, risk: RiskMedium},
		{name: "spike", latest: 220, rate: 120, risk: RiskHigh},
		{name: "drop", latest: 40, rate: -60, risk: RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := activeBaseline()
			baseline.LatestQuantity = tt.latest

			finding, err := rule.Evaluate(baseline, testRecord(), defaultParams())
			require.NoError(t, err)

			if tt.risk == "" {
				assert.Nil(t, finding)
				return
			}
			require.NotNil(t, finding)
			assert.Equal(t, RuleQuantityVolatility, finding.RuleID)
			assert.InDelta(t, tt.rate, finding.ChangeRate, 1e-9)
			assert.Equal(t, tt.risk, finding.RiskLevel)
			assert.Equal(t, "볼트", finding.Name)
			assert.Equal(t, 3, finding.ValidMonths)
		})
	}
}

func TestPriceVolatilityRule(t *testing.T) {
	baseline := activeBaseline()
	baseline.LatestUnitPrice = 65

	finding, err := priceVolatilityRule{}.Evaluate(baseline, testRecord(), defaultParams())
	require.NoError(t, err)
	require.NotNil(t, finding)

	assert.InDelta(t, -35.0, finding.ChangeRate, 1e-9)
	assert.Equal(t, RiskHigh, finding.RiskLevel)
	assert.InDelta(t, 100.0, finding.AvgValue, 1e-9)
	assert.InDelta(t, 65.0, finding.CurrentValue, 1e-9)

	baseline.LatestUnitPrice = 112
	finding, err = priceVolatilityRule{}.Evaluate(baseline, testRecord(), defaultParams())
	require.NoError(t, err)
	require.NotNil(t, finding, "price rises are flagged like drops")
	assert.Equal(t, RiskLow, finding.RiskLevel)
}

func TestVolatilityRules_Skips(t *testing.T) {
	for _, rule := range []RuleEvaluator{quantityVolatilityRule{}, priceVolatilityRule{}} {
		t.Run(RuleKey(rule.ID()), func(t *testing.T) {
			inactive := activeBaseline()
			inactive.LatestActive = false
			_, err := rule.Evaluate(inactive, testRecord(), defaultParams())
			assert.ErrorIs(t, err, ErrInactivePeriod)

			zero := activeBaseline()
			zero.AvgQuantity = 0
			zero.AvgUnitPrice = 0
			_, err = rule.Evaluate(zero, testRecord(), defaultParams())
			assert.ErrorIs(t, err, ErrZeroBaseline)
			assert.True(t, IsRuleSkip(err))
		})
	}
}

func TestContractExpiryRule(t *testing.T) {
	rule := contractExpiryRule{}

	tests := []struct {
		name      string
		end       *time.Time
		remaining int
		risk      RiskLevel
		skip      error
	}{
		{name: "no contract", skip: ErrNoContract},
		{name: "outside window", end: date(2026, time.April, 1)},
		{name: "at window", end: date(2026, time.March, 31), remaining: 3, risk: RiskLow},
		{name: "two months", end: date(2026, time.February, 15), remaining: 2, risk: RiskMedium},
		{name: "next month", end: date(2026, time.January, 10), remaining: 1, risk: RiskHigh},
		{name: "this month", end: date(2025, time.December, 31), remaining: 0, risk: RiskHigh},
		{name: "already expired", end: date(2025, time.October, 31), remaining: -2, risk: RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testRecord()
			record.ContractEnd = tt.end

			finding, err := rule.Evaluate(activeBaseline(), record, defaultParams())
			if tt.skip != nil {
				assert.ErrorIs(t, err, tt.skip)
				return
			}
			require.NoError(t, err)
			if tt.risk == "" {
				assert.Nil(t, finding)
				return
			}
			require.NotNil(t, finding)
			assert.Equal(t, tt.remaining, finding.MonthsRemaining)
			assert.Equal(t, tt.risk, finding.RiskLevel)
			assert.Equal(t, *tt.end, finding.ContractEnd)
		})
	}
}

func TestContractExpiryRule_IgnoresActivity(t *testing.T) {
	baseline := activeBaseline()
	baseline.LatestActive = false
	baseline.LatestReported = false
	record := testRecord()
	record.ContractEnd = date(2026, time.January, 1)

	finding, err := contractExpiryRule{}.Evaluate(baseline, record, defaultParams())
	require.NoError(t, err)
	require.NotNil(t, finding)
	assert.Equal(t, 1, finding.MonthsRemaining)
}

func TestInventoryGapRule(t *testing.T) {
	rule := inventoryGapRule{}

	tests := []struct {
		name      string
		inventory float64
		gap       float64
		risk      RiskLevel
	}{
		{name: "exactly at trigger", inventory: 1500, gap: 50},
		{name: "medium", inventory: 1600, gap: 60, risk: RiskMedium},
		{name: "inventory piling up", inventory: 2600, gap: 160, risk: RiskHigh},
		{name: "inventory vanishing", inventory: 0, gap: -100, risk: RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := activeBaseline()
			baseline.LatestInventoryValue = tt.inventory

			finding, err := rule.Evaluate(baseline, testRecord(), defaultParams())
			require.NoError(t, err)
			if tt.risk == "" {
				assert.Nil(t, finding)
				return
			}
			require.NotNil(t, finding)
			assert.InDelta(t, tt.gap, finding.GapRate, 1e-9)
			assert.InDelta(t, 0.0, finding.AmountChange, 1e-9)
			assert.Equal(t, tt.risk, finding.RiskLevel)
			assert.InDelta(t, 1000.0, finding.AvgLevel, 1e-9)
			assert.InDelta(t, tt.inventory, finding.CurrentLevel, 1e-9)
		})
	}
}

func TestOrderGapRule(t *testing.T) {
	baseline := activeBaseline()
	baseline.LatestOrderCount = 20

	finding, err := orderGapRule{}.Evaluate(baseline, testRecord(), defaultParams())
	require.NoError(t, err)
	require.NotNil(t, finding)

	assert.InDelta(t, 100.0, finding.OrdersChange, 1e-9)
	assert.InDelta(t, 100.0, finding.GapRate, 1e-9)
	assert.Equal(t, RiskMedium, finding.RiskLevel)

	baseline.LatestOrderCount = 30
	baseline.LatestAmount = 5000
	finding, err = orderGapRule{}.Evaluate(baseline, testRecord(), defaultParams())
	require.NoError(t, err)
	require.NotNil(t, finding)
	assert.InDelta(t, 250.0, finding.GapRate, 1e-9, "split orders while spend drops")
	assert.Equal(t, RiskHigh, finding.RiskLevel)
}

func TestGapRules_Skips(t *testing.T) {
	for _, rule := range []RuleEvaluator{inventoryGapRule{}, orderGapRule{}} {
		t.Run(RuleKey(rule.ID()), func(t *testing.T) {
			missing := activeBaseline()
			missing.LatestReported = false
			missing.LatestActive = false
			_, err := rule.Evaluate(missing, testRecord(), defaultParams())
			assert.ErrorIs(t, err, ErrInactivePeriod)

			zero := activeBaseline()
			zero.AvgAmount = 0
			_, err = rule.Evaluate(zero, testRecord(), defaultParams())
			assert.ErrorIs(t, err, ErrZeroBaseline)
		})
	}
}

func TestRiskLevelIsMonotonic(t *testing.T) {
	th := DefaultThresholds()
	for _, tiers := range []RateTiers{th.QuantityVolatility, th.PriceVolatility, th.InventoryGap, th.OrderGap} {
		previous := RiskLow.Rank()
		for magnitude := 0.0; magnitude <= 300; magnitude += 0.5 {
			rank := tiers.Risk(magnitude).Rank()
			require.GreaterOrEqual(t, rank, previous, "risk dropped at %v for %+v", magnitude, tiers)
			previous = rank
		}
	}

	previous := RiskLow.Rank()
	for remaining := th.ContractExpiry.WindowMonths; remaining >= -3; remaining-- {
		rank := th.ContractExpiry.Risk(remaining).Rank()
		require.GreaterOrEqual(t, rank, previous)
		previous = rank
	}
}

func TestSortFindings(t *testing.T) {
	findings := []Finding{
		{RuleID: RuleQuantityVolatility, Code: "B", Supplier: "S1", ChangeRate: 30},
		{RuleID: RuleQuantityVolatility, Code: "A", Supplier: "S2", ChangeRate: -120},
		{RuleID: RuleQuantityVolatility, Code: "A", Supplier: "S1", ChangeRate: 30},
		{RuleID: RuleQuantityVolatility, Code: "C", Supplier: "S1", ChangeRate: 45},
	}

	sortFindings(findings)

	var order []string
	for _, f := range findings {
		order = append(order, f.Code+"/"+f.Supplier)
	}
	assert.Equal(t, []string{"A/S2", "C/S1", "A/S1", "B/S1"}, order)

	contracts := []Finding{
		{RuleID: RuleContractExpiry, Code: "A", MonthsRemaining: 3},
		{RuleID: RuleContractExpiry, Code: "B", MonthsRemaining: -1},
		{RuleID: RuleContractExpiry, Code: "C", MonthsRemaining: 1},
	}
	sortFindings(contracts)
	assert.Equal(t, "B", contracts[0].Code)
	assert.Equal(t, "C", contracts[1].Code)
	assert.Equal(t, "A", contracts[2].Code)
}

func TestDefaultEvaluatorsOrder(t *testing.T) {
	evaluators := DefaultEvaluators()
	require.Len(t, evaluators, len(AllRules))
	for i, evaluator := range evaluators {
		assert.Equal(t, AllRules[i], evaluator.ID())
	}
}
