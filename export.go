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
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// utf8BOM makes spreadsheet applications detect UTF-8 in exported CSV
const utf8BOM = "\ufeff"

// Table is a flat view of one rule's details used by every tabular output
type Table struct {
	Title   string
	Headers []string
	Rows    [][]interface{}
	Matched int // rows matching the filter before the limit was applied

	// Advisories holds the buyer-facing explanation of each row in Rows
	Advisories []string
}

// Table builds the detail table of a rule. query filters on code, name and
// supplier (case-insensitive); limit <= 0 means no limit.
func (d *Details) Table(rule RuleID, query string, limit int) Table {
	info, _ := LookupRule(rule)
	table := Table{Title: fmt.Sprintf("%s %s", info.Icon, info.Name)}

	add := func(row []interface{}, advisory, code, name string, suppliers []string) {
		if !matchesQuery(query, code, name, suppliers) {
			return
		}
		table.Matched++
		if limit > 0 && len(table.Rows) >= limit {
			return
		}
		table.Rows = append(table.Rows, row)
		table.Advisories = append(table.Advisories, advisory)
	}

	switch rule {
	case RuleQuantityVolatility, RulePriceVolatility:
		table.Headers = []string{"자재코드", "자재명", "공급사", "단위", "평균", "당월", "변동률(%)", "위험도", "유효월수"}
		rows := d.Rule1
		if rule == RulePriceVolatility {
			rows = d.Rule2
		}
		for _, r := range rows {
			add([]interface{}{r.Code, r.Name, strings.Join(r.Suppliers, ", "), r.Unit, r.AvgValue, r.CurrentValue, r.ChangeRate, r.RiskLevel.Label(), r.ValidMonths},
				r.Advisory(rule), r.Code, r.Name, r.Suppliers)
		}
	case RuleContractExpiry:
		table.Headers = []string{"자재코드", "자재명", "공급사", "계약종료일", "잔여개월", "위험도"}
		for _, r := range d.Rule3 {
			add([]interface{}{r.Code, r.Name, strings.Join(r.Suppliers, ", "), r.ContractDate, r.MonthsRemaining, r.RiskLevel.Label()},
				r.Advisory(), r.Code, r.Name, r.Suppliers)
		}
	case RuleInventoryGap:
		table.Headers = []string{"자재코드", "자재명", "공급사", "구매금액 변동(%)", "재고금액 변동(%)", "괴리(%p)", "위험도", "평균 재고금액", "당월 재고금액"}
		for _, r := range d.Rule4 {
			add([]interface{}{r.Code, r.Name, strings.Join(r.Suppliers, ", "), r.AmountChange, r.InventoryChange, r.GapRate, r.RiskLevel.Label(), r.AvgInventoryValue, r.CurrentInventoryValue},
				r.Advisory(), r.Code, r.Name, r.Suppliers)
		}
	case RuleOrderGap:
		table.Headers = []string{"자재코드", "자재명", "공급사", "구매금액 변동(%)", "발주건수 변동(%)", "괴리(%p)", "위험도", "평균 발주건수", "당월 발주건수"}
		for _, r := range d.Rule5 {
			add([]interface{}{r.Code, r.Name, strings.Join(r.Suppliers, ", "), r.AmountChange, r.OrdersChange, r.GapRate, r.RiskLevel.Label(), r.AvgOrderCount, r.CurrentOrderCount},
				r.Advisory(), r.Code, r.Name, r.Suppliers)
		}
	}

	return table
}

func matchesQuery(query, code, name string, suppliers []string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(code), query) || strings.Contains(strings.ToLower(name), query) {
		return true
	}
	for _, s := range suppliers {
		if strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}

// summaryRows is the headline block shared by CSV and XLSX exports
func summaryRows(s Summary) [][]interface{} {
	return [][]interface{}{
		{"분석 기준월", s.AnalysisPeriod},
		{"분석 기준일", s.AnalysisDate},
		{"분석 자재 수", s.TotalMaterials},
		{"제외 자재 수", s.ExcludedMaterials},
		{"공급사 수", s.TotalSuppliers},
		{"이상 징후 자재 수", s.TotalAnomalies},
		{"고위험 건수", s.HighRiskCount},
		{"계약 만료 임박", s.ContractExpiringCount},
	}
}

func ruleSummaryTable(s Summary) Table {
	table := Table{
		Title:   "룰별 요약",
		Headers: []string{"룰", "이름", "기준", "건수", "비율(%)"},
	}
	for _, rule := range s.Rules {
		table.Rows = append(table.Rows, []interface{}{int(rule.ID), rule.Name, rule.Description, rule.Count, rule.Percentage})
	}
	table.Matched = len(table.Rows)
	return table
}

// cellString renders a table cell for text outputs
func cellString(v interface{}) string {
	switch value := v.(type) {
	case float64:
		return formatNumber(value)
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}

func stringRow(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = cellString(v)
	}
	return out
}

// WriteCSV writes the whole report as one UTF-8 CSV document with a BOM
func WriteCSV(w io.Writer, report *Report) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)

	for _, row := range summaryRows(report.Summary) {
		if err := cw.Write(stringRow(row)); err != nil {
			return err
		}
	}

	tables := []Table{ruleSummaryTable(report.Summary)}
	for _, rule := range AllRules {
		tables = append(tables, report.Details.Table(rule, "", 0))
	}

	for _, table := range tables {
		if err := cw.Write(nil); err != nil {
			return err
		}
		if err := writeCSVTable(cw, table, true); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRuleCSV writes the detail table of one rule, filtered like the dashboard
func WriteRuleCSV(w io.Writer, report *Report, rule RuleID, query string) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := writeCSVTable(cw, report.Details.Table(rule, query, 0), false); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVTable(cw *csv.Writer, table Table, withTitle bool) error {
	if withTitle {
		if err := cw.Write([]string{table.Title}); err != nil {
			return err
		}
	}
	if err := cw.Write(table.Headers); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := cw.Write(stringRow(row)); err != nil {
			return err
		}
	}
	return nil
}

// WriteXLSX writes a workbook with a summary sheet and one sheet per rule
func WriteXLSX(w io.Writer, report *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "요약"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}

	rowNum := 1
	for _, row := range summaryRows(report.Summary) {
		if err := setRow(f, summarySheet, rowNum, row); err != nil {
			return err
		}
		rowNum++
	}
	rowNum++
	if err := writeSheetTable(f, summarySheet, rowNum, ruleSummaryTable(report.Summary)); err != nil {
		return err
	}

	for _, rule := range AllRules {
		info, _ := LookupRule(rule)
		sheet := fmt.Sprintf("%d_%s", rule, info.Name)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
		}
		table := report.Details.Table(rule, "", 0)
		table.Title = ""
		if err := writeSheetTable(f, sheet, 1, table); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheetTable(f *excelize.File, sheet string, rowNum int, table Table) error {
	if table.Title != "" {
		if err := setRow(f, sheet, rowNum, []interface{}{table.Title}); err != nil {
			return err
		}
		rowNum++
	}

	header := make([]interface{}, len(table.Headers))
	for i, h := range table.Headers {
		header[i] = h
	}
	if err := setRow(f, sheet, rowNum, header); err != nil {
		return err
	}

	for _, row := range table.Rows {
		rowNum++
		if err := setRow(f, sheet, rowNum, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %q: %w", rowNum, sheet, err)
	}
	return nil
}
