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
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AssemblyInput is everything the report assembler consumes
type AssemblyInput struct {
	Set          *NormalizedSet
	Findings     map[RuleID][]Finding // each slice already sorted by severity
	Thresholds   Thresholds
	Period       time.Time
	AnalysisDate time.Time
}

// AssembleReport merges the rule outputs into the final report.
// It does not modify its input and the same input always yields the same report.
func AssembleReport(in AssemblyInput) *Report {
	set := in.Set
	if set == nil {
		set = &NormalizedSet{}
	}
	total := set.TotalMaterials()

	report := &Report{
		Summary: Summary{
			TotalMaterials:    total,
			ExcludedMaterials: len(set.Excluded),
			TotalSuppliers:    set.Suppliers,
			AnalysisPeriod:    formatMonth(in.Period),
			Rules:             make([]RuleSummary, 0, len(AllRules)),
		},
		Details: Details{
			Rule1: make([]VolatilityRow, 0),
			Rule2: make([]VolatilityRow, 0),
			Rule3: make([]ContractRow, 0),
			Rule4: make([]InventoryGapRow, 0),
			Rule5: make([]OrderGapRow, 0),
		},
	}
	if !in.AnalysisDate.IsZero() && !in.Period.IsZero() {
		report.Summary.AnalysisDate = in.AnalysisDate.Format(dateLayout)
	}

	flagged := make(map[seriesKey]bool)
	for _, rule := range AllRules {
		for _, f := range in.Findings[rule] {
			flagged[seriesKey{code: f.Code, supplier: f.Supplier}] = true
			if f.RiskLevel == RiskHigh {
				report.Summary.HighRiskCount++
			}
			report.Details.add(f)
		}
	}
	report.Summary.TotalAnomalies = len(flagged)
	report.Summary.ContractExpiringCount = len(report.Details.Rule3)

	for _, rule := range AllRules {
		info, _ := LookupRule(rule)
		count := report.Details.Count(rule)
		report.Summary.Rules = append(report.Summary.Rules, RuleSummary{
			ID:          rule,
			Name:        info.Name,
			Description: describeRule(info, in.Thresholds),
			Count:       count,
			Percentage:  percentage(count, total),
		})
	}

	report.Materials = buildMaterials(set)
	report.Insights = generateInsights(report, in.Thresholds)

	return report
}

// add appends a finding to the detail list of its rule
func (d *Details) add(f Finding) {
	suppliers := []string{f.Supplier}

	switch f.RuleID {
	case RuleQuantityVolatility, RulePriceVolatility:
		row := VolatilityRow{
			Code:         f.Code,
			Name:         f.Name,
			Suppliers:    suppliers,
			Unit:         f.Unit,
			AvgValue:     round(f.AvgValue, 2),
			CurrentValue: round(f.CurrentValue, 2),
			ChangeRate:   round(f.ChangeRate, 1),
			RiskLevel:    f.RiskLevel,
			ValidMonths:  f.ValidMonths,
		}
		if f.RuleID == RuleQuantityVolatility {
			d.Rule1 = append(d.Rule1, row)
		} else {
			d.Rule2 = append(d.Rule2, row)
		}
	case RuleContractExpiry:
		d.Rule3 = append(d.Rule3, ContractRow{
			Code:            f.Code,
			Name:            f.Name,
			Suppliers:       suppliers,
			ContractDate:    f.ContractEnd.Format(dateLayout),
			MonthsRemaining: f.MonthsRemaining,
			RiskLevel:       f.RiskLevel,
		})
	case RuleInventoryGap:
		d.Rule4 = append(d.Rule4, InventoryGapRow{
			Code:                  f.Code,
			Name:                  f.Name,
			Suppliers:             suppliers,
			AmountChange:          round(f.AmountChange, 1),
			InventoryChange:       round(f.InventoryChange, 1),
			GapRate:               round(f.GapRate, 1),
			RiskLevel:             f.RiskLevel,
			AvgInventoryValue:     round(f.AvgLevel, 2),
			CurrentInventoryValue: round(f.CurrentLevel, 2),
		})
	case RuleOrderGap:
		d.Rule5 = append(d.Rule5, OrderGapRow{
			Code:              f.Code,
			Name:              f.Name,
			Suppliers:         suppliers,
			AmountChange:      round(f.AmountChange, 1),
			OrdersChange:      round(f.OrdersChange, 1),
			GapRate:           round(f.GapRate, 1),
			RiskLevel:         f.RiskLevel,
			AvgOrderCount:     round(f.AvgLevel, 2),
			CurrentOrderCount: round(f.CurrentLevel, 2),
		})
	}
}

func buildMaterials(set *NormalizedSet) []MaterialEntry {
	materials := make([]MaterialEntry, 0, set.TotalMaterials())

	for _, record := range set.Records {
		materials = append(materials, materialEntry(record))
	}
	for _, excluded := range set.Excluded {
		entry := materialEntry(excluded.Record)
		entry.Excluded = true
		entry.ExclusionReason = excluded.Err.Message
		materials = append(materials, entry)
	}

	sort.SliceStable(materials, func(i, j int) bool {
		if materials[i].Code != materials[j].Code {
			return materials[i].Code < materials[j].Code
		}
		return materials[i].Supplier < materials[j].Supplier
	})
	return materials
}

func materialEntry(record MaterialRecord) MaterialEntry {
	entry := MaterialEntry{
		Code:        record.Code,
		Name:        record.Name,
		Supplier:    record.Supplier,
		ValidMonths: record.ValidMonths,
	}
	if record.ContractEnd != nil {
		entry.ContractDate = record.ContractEnd.Format(dateLayout)
	}
	if len(record.Observations) > 0 {
		entry.History = make([]MaterialMonth, 0, len(record.Observations))
		for _, obs := range record.Observations {
			entry.History = append(entry.History, MaterialMonth{
				Month:     formatMonth(obs.Month),
				Quantity:  obs.Quantity,
				UnitPrice: obs.UnitPrice,
				Valid:     obs.Valid,
			})
		}
	}
	return entry
}

// describeRule fills the rule description with its configured trigger
func describeRule(info RuleInfo, t Thresholds) string {
	var trigger string
	switch info.ID {
	case RuleQuantityVolatility:
		trigger = formatNumber(t.QuantityVolatility.Trigger)
	case RulePriceVolatility:
		trigger = formatNumber(t.PriceVolatility.Trigger)
	case RuleContractExpiry:
		trigger = fmt.Sprintf("%d", t.ContractExpiry.WindowMonths)
	case RuleInventoryGap:
		trigger = formatNumber(t.InventoryGap.Trigger)
	case RuleOrderGap:
		trigger = formatNumber(t.OrderGap.Trigger)
	}
	return fmt.Sprintf(info.Description, trigger)
}

// percentage returns count / total * 100 rounded to one decimal place
func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(count)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 1).
		InexactFloat64()
}

// round rounds half away from zero to the given number of decimal places
func round(value float64, places int32) float64 {
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// formatNumber prints a threshold without trailing zeros
func formatNumber(value float64) string {
	return decimal.NewFromFloat(value).String()
}
