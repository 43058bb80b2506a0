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
	"math"
	"sort"
	"time"
)

// RuleParams is everything a rule needs besides the material itself
type RuleParams struct {
	Thresholds   Thresholds
	AnalysisDate time.Time
}

// RuleEvaluator produces at most one finding for a material.
// A nil finding with a nil error means the rule did not trigger; a skip
// error (see IsRuleSkip) means the rule does not apply to the material.
type RuleEvaluator interface {
	ID() RuleID
	Evaluate(baseline MaterialBaseline, record MaterialRecord, params RuleParams) (*Finding, error)
}

// DefaultEvaluators returns the five rules in report order
func DefaultEvaluators() []RuleEvaluator {
	return []RuleEvaluator{
		quantityVolatilityRule{},
		priceVolatilityRule{},
		contractExpiryRule{},
		inventoryGapRule{},
		orderGapRule{},
	}
}

func newFinding(rule RuleID, baseline MaterialBaseline, record MaterialRecord) *Finding {
	return &Finding{
		RuleID:      rule,
		Code:        record.Code,
		Name:        record.Name,
		Supplier:    record.Supplier,
		Unit:        record.Unit,
		ValidMonths: baseline.ValidMonths,
	}
}

// quantityVolatilityRule flags purchase quantities far from the material's average
type quantityVolatilityRule struct{}

func (quantityVolatilityRule) ID() RuleID { return RuleQuantityVolatility }

func (r quantityVolatilityRule) Evaluate(baseline MaterialBaseline, record MaterialRecord, params RuleParams) (*Finding, error) {
	if !baseline.LatestActive {
		return nil, ErrInactivePeriod
	}
	rate, err := changeRate(baseline.LatestQuantity, baseline.AvgQuantity)
	if err != nil {
		return nil, err
	}

	tiers := params.Thresholds.QuantityVolatility
	magnitude := math.Abs(rate)
	if magnitude < tiers.Trigger {
		return nil, nil
	}

	f := newFinding(r.ID(), baseline, record)
	f.AvgValue = baseline.AvgQuantity
	f.CurrentValue = baseline.LatestQuantity
	f.ChangeRate = rate
	f.RiskLevel = tiers.Risk(magnitude)
	return f, nil
}

// priceVolatilityRule flags unit prices far from the material's average
type priceVolatilityRule struct{}

func (priceVolatilityRule) ID() RuleID { return RulePriceVolatility }

func (r priceVolatilityRule) Evaluate(baseline MaterialBaseline, record MaterialRecord, params RuleParams) (*Finding, error) {
	if !baseline.LatestActive {
		return nil, ErrInactivePeriod
	}
	rate, err := changeRate(baseline.LatestUnitPrice, baseline.AvgUnitPrice)
	if err != nil {
		return nil, err
	}

	tiers := params.Thresholds.PriceVolatility
	magnitude := math.Abs(rate)
	if magnitude < tiers.Trigger {
		return nil, nil
	}

	f := newFinding(r.ID(), baseline, record)
	f.AvgValue = baseline.AvgUnitPrice
	f.CurrentValue = baseline.LatestUnitPrice
	f.ChangeRate = rate
	f.RiskLevel = tiers.Risk(magnitude)
	return f, nil
}

// contractExpiryRule flags supply contracts ending within the configured window
type contractExpiryRule struct{}

func (contractExpiryRule) ID() RuleID { return RuleContractExpiry }

func (r contractExpiryRule) Evaluate(baseline MaterialBaseline, record MaterialRecord, params RuleParams) (*Finding, error) {
	if record.ContractEnd == nil {
		return nil, ErrNoContract
	}

	tiers := params.Thresholds.ContractExpiry
	remaining := monthIndex(*record.ContractEnd) - monthIndex(params.AnalysisDate)
	if remaining > tiers.WindowMonths {
		return nil, nil
	}

	f := newFinding(r.ID(), baseline, record)
	f.ContractEnd = *record.ContractEnd
	f.MonthsRemaining = remaining
	f.RiskLevel = tiers.Risk(remaining)
	return f, nil
}

// inventoryGapRule flags inventory value moving apart from purchase amount
type inventoryGapRule struct{}

func (inventoryGapRule) ID() RuleID { return RuleInventoryGap }

func (r inventoryGapRule) Evaluate(baseline MaterialBaseline, record MaterialRecord, params RuleParams) (*Finding, error) {
	if !baseline.LatestReported {
		return nil, ErrInactivePeriod
	}
	amountChange, err := changeRate(baseline.LatestAmount, baseline.AvgAmount)
	if err != nil {
		return nil, err
	}
	inventoryChange, err := changeRate(baseline.LatestInventoryValue, baseline.AvgInventoryValue)
	if err != nil {
		return nil, err
	}

	tiers := params.Thresholds.InventoryGap
	gap := inventoryChange - amountChange
	magnitude := math.Abs(gap)
	if magnitude <= tiers.Trigger {
		return nil, nil
	}

	f := newFinding(r.ID(), baseline, record)
	f.AmountChange = amountChange
	f.InventoryChange = inventoryChange
	f.GapRate = gap
	f.ChangeRate = gap
	f.AvgLevel = baseline.AvgInventoryValue
	f.CurrentLevel = baseline.LatestInventoryValue
	f.RiskLevel = tiers.Risk(magnitude)
	return f, nil
}

// orderGapRule flags order counts moving apart from purchase amount
type orderGapRule struct{}

func (orderGapRule) ID() RuleID { return RuleOrderGap }

func (r orderGapRule) Evaluate(baseline MaterialBaseline, record MaterialRecord, params RuleParams) (*Finding, error) {
	if !baseline.LatestReported {
		return nil, ErrInactivePeriod
	}
	amountChange, err := changeRate(baseline.LatestAmount, baseline.AvgAmount)
	if err != nil {
		return nil, err
	}
	ordersChange, err := changeRate(baseline.LatestOrderCount, baseline.AvgOrderCount)
	if err != nil {
		return nil, err
	}

	tiers := params.Thresholds.OrderGap
	gap := ordersChange - amountChange
	magnitude := math.Abs(gap)
	if magnitude <= tiers.Trigger {
		return nil, nil
	}

	f := newFinding(r.ID(), baseline, record)
	f.AmountChange = amountChange
	f.OrdersChange = ordersChange
	f.GapRate = gap
	f.ChangeRate = gap
	f.AvgLevel = baseline.AvgOrderCount
	f.CurrentLevel = baseline.LatestOrderCount
	f.RiskLevel = tiers.Risk(magnitude)
	return f, nil
}

// sortFindings orders findings by descending severity, then code and supplier
func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		si, sj := findings[i].Severity(), findings[j].Severity()
		if si != sj {
			return si > sj
		}
		if findings[i].Code != findings[j].Code {
			return findings[i].Code < findings[j].Code
		}
		return findings[i].Supplier < findings[j].Supplier
	})
}
