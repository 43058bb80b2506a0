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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// Reporter writes a report in one of the supported output formats
type Reporter struct {
	logger       *Logger
	displayLimit int
}

// NewReporter creates a new report generator. displayLimit caps the rows
// shown per rule in markdown and HTML; machine formats are never truncated.
func NewReporter(logger *Logger, displayLimit int) *Reporter {
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	return &Reporter{
		logger:       logger.WithComponent("reporter"),
		displayLimit: displayLimit,
	}
}

// GenerateReport writes the report to outputPath, or stdout when it is empty
func (r *Reporter) GenerateReport(report *Report, format, outputPath string) error {
	r.logger.Info("Generating report", "format", format)

	var writer io.Writer
	if outputPath == "" {
		writer = os.Stdout
	} else {
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer file.Close()
		writer = file
	}

	if err := r.Write(writer, report, format); err != nil {
		return err
	}

	if outputPath != "" {
		r.logger.Info("Report saved", "path", outputPath)
	}
	return nil
}

// Write renders the report in the given format
func (r *Reporter) Write(w io.Writer, report *Report, format string) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatCSV:
		return WriteCSV(w, report)
	case FormatXLSX:
		return WriteXLSX(w, report)
	case FormatHTML:
		return NewHTMLReporter(r.logger, r.displayLimit).Write(w, report)
	case FormatMarkdown, "":
		return r.writeMarkdown(w, report)
	default:
		return &ConfigurationError{Field: "output_format", Message: fmt.Sprintf("unsupported format %q", format)}
	}
}

// WriteJSON writes the canonical report document. The same report always
// produces the same bytes.
func WriteJSON(w io.Writer, report *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func (r *Reporter) writeMarkdown(w io.Writer, report *Report) error {
	r.writeHeader(w, report)
	r.writeSummary(w, report)
	r.writeRuleSummary(w, report)
	for _, rule := range AllRules {
		r.writeRuleDetails(w, report, rule)
	}
	r.writeExcluded(w, report)
	r.writeInsights(w, report)
	r.writeFooter(w)
	return nil
}

func (r *Reporter) writeHeader(w io.Writer, report *Report) {
	fmt.Fprintf(w, "# 구매 이상징후 분석 보고서\n\n")
	if report.Summary.AnalysisPeriod != "" {
		fmt.Fprintf(w, "**분석 기준월:** %s\n\n", report.Summary.AnalysisPeriod)
		fmt.Fprintf(w, "**분석 기준일:** %s\n\n", report.Summary.AnalysisDate)
	}
	fmt.Fprintf(w, "**purchasewatch version:** %s\n\n", GetVersion())
	fmt.Fprintf(w, "---\n\n")
}

func (r *Reporter) writeSummary(w io.Writer, report *Report) {
	s := report.Summary
	fmt.Fprintf(w, "## 📊 요약\n\n")
	fmt.Fprintf(w, "| 항목 | 값 |\n")
	fmt.Fprintf(w, "|------|----|\n")
	fmt.Fprintf(w, "| 📦 분석 자재 | %s |\n", humanize.Comma(int64(s.TotalMaterials)))
	fmt.Fprintf(w, "| 🏭 공급사 | %s |\n", humanize.Comma(int64(s.TotalSuppliers)))
	fmt.Fprintf(w, "| ⚠️ 이상 징후 자재 | %s |\n", humanize.Comma(int64(s.TotalAnomalies)))
	fmt.Fprintf(w, "| 🔴 고위험 | %s |\n", humanize.Comma(int64(s.HighRiskCount)))
	fmt.Fprintf(w, "| 📅 계약 만료 임박 | %s |\n", humanize.Comma(int64(s.ContractExpiringCount)))
	if s.ExcludedMaterials > 0 {
		fmt.Fprintf(w, "| 🚫 제외 자재 | %s |\n", humanize.Comma(int64(s.ExcludedMaterials)))
	}
	fmt.Fprintf(w, "\n")
}

func (r *Reporter) writeRuleSummary(w io.Writer, report *Report) {
	fmt.Fprintf(w, "## 🔎 룰별 결과\n\n")
	fmt.Fprintf(w, "| 룰 | 기준 | 건수 | 비율 |\n")
	fmt.Fprintf(w, "|----|------|------|------|\n")
	for _, rule := range report.Summary.Rules {
		fmt.Fprintf(w, "| %d. %s | %s | %s | %s%% |\n",
			rule.ID, rule.Name, rule.Description, humanize.Comma(int64(rule.Count)), formatNumber(rule.Percentage))
	}
	fmt.Fprintf(w, "\n")
}

func (r *Reporter) writeRuleDetails(w io.Writer, report *Report, rule RuleID) {
	table := report.Details.Table(rule, "", r.displayLimit)
	if table.Matched == 0 {
		return
	}

	fmt.Fprintf(w, "### %s (%s건)\n\n", table.Title, humanize.Comma(int64(table.Matched)))
	fmt.Fprintf(w, "| %s |\n", strings.Join(table.Headers, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat("----|", len(table.Headers)))
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = markdownCell(v)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	if hidden := table.Matched - len(table.Rows); hidden > 0 {
		fmt.Fprintf(w, "\n*외 %s건은 JSON, CSV 또는 XLSX 출력에서 확인하세요.*\n", humanize.Comma(int64(hidden)))
	}
	fmt.Fprintf(w, "\n")
}

// markdownCell formats numbers with thousands separators
func markdownCell(v interface{}) string {
	switch value := v.(type) {
	case float64:
		return humanize.CommafWithDigits(value, 2)
	case int:
		return humanize.Comma(int64(value))
	default:
		return strings.ReplaceAll(cellString(v), "|", "\\|")
	}
}

func (r *Reporter) writeExcluded(w io.Writer, report *Report) {
	if report.Summary.ExcludedMaterials == 0 {
		return
	}

	fmt.Fprintf(w, "## 🚫 분석 제외 자재\n\n")
	fmt.Fprintf(w, "| 자재코드 | 자재명 | 공급사 | 사유 |\n")
	fmt.Fprintf(w, "|----------|--------|--------|------|\n")
	for _, m := range report.Materials {
		if !m.Excluded {
			continue
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s |\n", m.Code, m.Name, m.Supplier, m.ExclusionReason)
	}
	fmt.Fprintf(w, "\n")
}

func (r *Reporter) writeInsights(w io.Writer, report *Report) {
	if len(report.Insights) == 0 {
		return
	}

	fmt.Fprintf(w, "## 🤖 분석 의견\n\n")
	for _, insight := range report.Insights {
		r.writeInsight(w, insight)
	}
}

func (r *Reporter) writeInsight(w io.Writer, insight Insight) {
	fmt.Fprintf(w, "#### %s\n\n", insight.Title)
	for _, line := range strings.Split(insight.Description, "\n") {
		fmt.Fprintf(w, "%s  \n", line)
	}
	fmt.Fprintf(w, "\n**권고:** %s\n\n", insight.Action)
}

func (r *Reporter) writeFooter(w io.Writer) {
	fmt.Fprintf(w, "---\n\n")
	fmt.Fprintf(w, "*이 보고서는 과거 구매실적을 기준으로 한 통계적 이상 징후이며, 부정 거래의 확정이 아닙니다. 담당자 확인 후 조치하시기 바랍니다.*\n\n")
	fmt.Fprintf(w, "*Generated by [purchasewatch](https://github.com/matthewgall/purchasewatch)*\n")
}
