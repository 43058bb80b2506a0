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
	"time"
)

// RiskLevel is the ordinal severity of a finding
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Rank orders risk levels, higher is more severe
func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// Label returns the display label used on the dashboard
func (r RiskLevel) Label() string {
	switch r {
	case RiskHigh:
		return "고위험"
	case RiskMedium:
		return "주의"
	case RiskLow:
		return "관심"
	default:
		return "정상"
	}
}

// RuleID identifies one of the five anomaly rules
type RuleID int

const (
	RuleQuantityVolatility RuleID = iota + 1
	RulePriceVolatility
	RuleContractExpiry
	RuleInventoryGap
	RuleOrderGap
)

// AllRules lists the rules in report order
var AllRules = []RuleID{
	RuleQuantityVolatility,
	RulePriceVolatility,
	RuleContractExpiry,
	RuleInventoryGap,
	RuleOrderGap,
}

// RawRow is one monthly purchasing row as read from the source file
type RawRow struct {
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	Supplier       string     `json:"supplier"`
	Month          time.Time  `json:"month"`
	Quantity       *float64   `json:"quantity"` // nil when the month was not reported
	UnitPrice      float64    `json:"unit_price"`
	OrderCount     float64    `json:"order_count"`
	InventoryValue float64    `json:"inventory_value"`
	ContractEnd    *time.Time `json:"contract_end,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	Line           int        `json:"line,omitempty"`
	ParseError     string     `json:"parse_error,omitempty"` // set when a cell could not be read
}

// Dataset holds every raw row of one input source
type Dataset struct {
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
	Rows     []RawRow  `json:"rows"`
}

// Observation is one month of a material's series
type Observation struct {
	Month          time.Time `json:"month"`
	Quantity       float64   `json:"quantity"`
	UnitPrice      float64   `json:"unit_price"`
	OrderCount     float64   `json:"order_count"`
	InventoryValue float64   `json:"inventory_value"`
	Valid          bool      `json:"valid"`
}

// Amount is the purchase amount for the month
func (o Observation) Amount() float64 {
	return o.Quantity * o.UnitPrice
}

// MaterialRecord is the monthly series of one material from one supplier
type MaterialRecord struct {
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	Supplier     string        `json:"supplier"`
	Unit         string        `json:"unit,omitempty"`
	ContractEnd  *time.Time    `json:"contract_end,omitempty"`
	Observations []Observation `json:"observations"` // full series, sorted by month
	ValidMonths  int           `json:"valid_months"`
}

// MaterialBaseline holds the historical averages of a series over its valid months
type MaterialBaseline struct {
	Code        string `json:"code"`
	Supplier    string `json:"supplier"`
	ValidMonths int    `json:"valid_months"`

	AvgQuantity       float64 `json:"avg_quantity"`
	AvgUnitPrice      float64 `json:"avg_unit_price"`
	AvgOrderCount     float64 `json:"avg_order_count"`
	AvgInventoryValue float64 `json:"avg_inventory_value"`
	AvgAmount         float64 `json:"avg_amount"`

	// Values at the analysis period (zero when the series has no row there)
	LatestQuantity       float64 `json:"latest_quantity"`
	LatestUnitPrice      float64 `json:"latest_unit_price"`
	LatestOrderCount     float64 `json:"latest_order_count"`
	LatestInventoryValue float64 `json:"latest_inventory_value"`
	LatestAmount         float64 `json:"latest_amount"`
	LatestReported       bool    `json:"latest_reported"` // a row exists for the period
	LatestActive         bool    `json:"latest_active"`   // that row has a nonzero quantity
}

// Finding is one anomaly produced by a rule evaluator
type Finding struct {
	RuleID      RuleID    `json:"rule_id"`
	Code        string    `json:"material_code"`
	Name        string    `json:"name"`
	Supplier    string    `json:"supplier"`
	Unit        string    `json:"unit,omitempty"`
	ChangeRate  float64   `json:"change_rate"`
	RiskLevel   RiskLevel `json:"risk_level"`
	ValidMonths int       `json:"valid_months"`

	// Rules 1 and 2
	AvgValue     float64 `json:"avg_value,omitempty"`
	CurrentValue float64 `json:"current_value,omitempty"`

	// Rule 3
	ContractEnd     time.Time `json:"contract_end,omitempty"`
	MonthsRemaining int       `json:"months_remaining,omitempty"`

	// Rules 4 and 5, all in percent
	AmountChange    float64 `json:"amount_change,omitempty"`
	InventoryChange float64 `json:"inventory_change,omitempty"`
	OrdersChange    float64 `json:"orders_change,omitempty"`
	GapRate         float64 `json:"gap_rate,omitempty"`

	// Rules 4 and 5, the compared metric as levels
	AvgLevel     float64 `json:"avg_level,omitempty"`
	CurrentLevel float64 `json:"current_level,omitempty"`
}

// Severity is the magnitude that drives the risk level; larger is more severe
func (f Finding) Severity() float64 {
	switch f.RuleID {
	case RuleContractExpiry:
		return -float64(f.MonthsRemaining)
	case RuleInventoryGap, RuleOrderGap:
		return math.Abs(f.GapRate)
	default:
		return math.Abs(f.ChangeRate)
	}
}

// RuleSummary is the per-rule count shown on the dashboard
type RuleSummary struct {
	ID          RuleID  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
}

// Summary is the headline section of a report
type Summary struct {
	TotalMaterials        int           `json:"total_materials"`
	TotalAnomalies        int           `json:"total_anomalies"`
	HighRiskCount         int           `json:"high_risk_count"`
	ContractExpiringCount int           `json:"contract_expiring_count"`
	ExcludedMaterials     int           `json:"excluded_materials"`
	TotalSuppliers        int           `json:"total_suppliers"`
	AnalysisDate          string        `json:"analysis_date"`
	AnalysisPeriod        string        `json:"analysis_period"`
	Rules                 []RuleSummary `json:"rules"`
}

// VolatilityRow is a rule 1 or rule 2 detail row
type VolatilityRow struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Suppliers    []string  `json:"suppliers"`
	Unit         string    `json:"unit,omitempty"`
	AvgValue     float64   `json:"avg_value"`
	CurrentValue float64   `json:"current_value"`
	ChangeRate   float64   `json:"change_rate"`
	RiskLevel    RiskLevel `json:"risk_level"`
	ValidMonths  int       `json:"valid_months"`
}

// ContractRow is a rule 3 detail row
type ContractRow struct {
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Suppliers       []string  `json:"suppliers"`
	ContractDate    string    `json:"contract_date"`
	MonthsRemaining int       `json:"months_remaining"`
	RiskLevel       RiskLevel `json:"risk_level"`
}

// InventoryGapRow is a rule 4 detail row; changes are percentages, values are levels
type InventoryGapRow struct {
	Code                  string    `json:"code"`
	Name                  string    `json:"name"`
	Suppliers             []string  `json:"suppliers"`
	AmountChange          float64   `json:"amount_change"`
	InventoryChange       float64   `json:"inventory_change"`
	GapRate               float64   `json:"gap_rate"`
	RiskLevel             RiskLevel `json:"risk_level"`
	AvgInventoryValue     float64   `json:"avg_inventory_value"`
	CurrentInventoryValue float64   `json:"current_inventory_value"`
}

// OrderGapRow is a rule 5 detail row; changes are percentages, counts are levels
type OrderGapRow struct {
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Suppliers         []string  `json:"suppliers"`
	AmountChange      float64   `json:"amount_change"`
	OrdersChange      float64   `json:"orders_change"`
	GapRate           float64   `json:"gap_rate"`
	RiskLevel         RiskLevel `json:"risk_level"`
	AvgOrderCount     float64   `json:"avg_order_count"`
	CurrentOrderCount float64   `json:"current_order_count"`
}

// Details holds the findings of each rule, sorted by descending severity
type Details struct {
	Rule1 []VolatilityRow   `json:"rule1"`
	Rule2 []VolatilityRow   `json:"rule2"`
	Rule3 []ContractRow     `json:"rule3"`
	Rule4 []InventoryGapRow `json:"rule4"`
	Rule5 []OrderGapRow     `json:"rule5"`
}

// Count returns the number of rows for a rule
func (d *Details) Count(rule RuleID) int {
	switch rule {
	case RuleQuantityVolatility:
		return len(d.Rule1)
	case RulePriceVolatility:
		return len(d.Rule2)
	case RuleContractExpiry:
		return len(d.Rule3)
	case RuleInventoryGap:
		return len(d.Rule4)
	case RuleOrderGap:
		return len(d.Rule5)
	default:
		return 0
	}
}

// MaterialEntry lists every material seen in the input, evaluated or not
type MaterialEntry struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	Supplier        string `json:"supplier"`
	ContractDate    string `json:"contract_date,omitempty"`
	ValidMonths     int    `json:"valid_months"`
	Excluded        bool   `json:"excluded,omitempty"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`

	History []MaterialMonth `json:"history,omitempty"`
}

// MaterialMonth is one reported month of a material, in month order
type MaterialMonth struct {
	Month     string  `json:"month"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Valid     bool    `json:"valid"`
}

// Insight is a piece of commentary attached to the report
type Insight struct {
	Category    string `json:"category"` // summary, rule1 ... rule5
	Priority    string `json:"priority"` // high, medium, low
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// Report is the complete output of one analysis run
type Report struct {
	Summary   Summary         `json:"summary"`
	Details   Details         `json:"details"`
	Materials []MaterialEntry `json:"materials"`
	Insights  []Insight       `json:"insights"`
}
