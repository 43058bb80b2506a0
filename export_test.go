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
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetailsTable(t *testing.T) {
	report := analyzeFixture(t, AnalysisOptions{Thresholds: DefaultThresholds()})

	table := report.Details.Table(RuleQuantityVolatility, "", 0)
	assert.Equal(t, "📦 수량 변동성", table.Title)
	assert.Equal(t, "위험도", table.Headers[7])
	require.Len(t, table.Rows, 1)
	require.Len(t, table.Advisories, 1)
	assert.Equal(t, "X", table.Rows[0][0])
	assert.Equal(t, "고위험", table.Rows[0][7])
	assert.Contains(t, table.Advisories[0], "급증")

	contracts := report.Details.Table(RuleContractExpiry, "", 0)
	assert.Equal(t, []string{"자재코드", "자재명", "공급사", "계약종료일", "잔여개월", "위험도"}, contracts.Headers)
	assert.Equal(t, []interface{}{"Z", "안전장갑", "S1", "2026-02-15", 2, "주의"}, contracts.Rows[0])
}

func TestDetailsTable_QueryAndLimit(t *testing.T) {
	details := Details{
		Rule1: []VolatilityRow{
			{Code: "A-1", Name: "볼트", Suppliers: []string{"Acme"}, ChangeRate: 150, RiskLevel: RiskHigh},
			{Code: "A-2", Name: "너트", Suppliers: []string{"Acme"}, ChangeRate: 60, RiskLevel: RiskMedium},
			{Code: "B-1", Name: "와셔", Suppliers: []string{"Other"}, ChangeRate: 25, RiskLevel: RiskLow},
		},
	}

	assert.Equal(t, 3, details.Table(RuleQuantityVolatility, "", 0).Matched)

	byCode := details.Table(RuleQuantityVolatility, "a-", 0)
	assert.Equal(t, 2, byCode.Matched)
	assert.Len(t, byCode.Rows, 2)

	bySupplier := details.Table(RuleQuantityVolatility, "OTHER", 0)
	require.Len(t, bySupplier.Rows, 1)
	assert.Equal(t, "B-1", bySupplier.Rows[0][0])

	byName := details.Table(RuleQuantityVolatility, "너트", 0)
	require.Len(t, byName.Rows, 1)

	limited := details.Table(RuleQuantityVolatility, "", 2)
	assert.Equal(t, 3, limited.Matched)
	assert.Len(t, limited.Rows, 2)
	assert.Len(t, limited.Advisories, 2)
}

func readCSVDocument(t *testing.T, raw []byte) [][]string {
	t.Helper()
	require.True(t, bytes.HasPrefix(raw, []byte(utf8BOM)), "CSV must start with a UTF-8 BOM")

	reader := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):]))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteCSV(t *testing.T) {
	report := analyzeFixture(t, AnalysisOptions{Thresholds: DefaultThresholds()})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))

	records := readCSVDocument(t, buf.Bytes())
	assert.Equal(t, []string{"분석 기준월", "2025-12"}, records[0])
	assert.Equal(t, []string{"분석 자재 수", "4"}, records[2])

	var joined []string
	for _, record := range records {
		joined = append(joined, strings.Join(record, ","))
	}
	all := strings.Join(joined, "\n")
	assert.Contains(t, all, "룰별 요약")
	assert.Contains(t, all, "1,수량 변동성,유효월 평균 대비 ±20% 이상 변동,1,25")
	assert.Contains(t, all, "X,용접봉_E7016,S1,EA,100,220,120,고위험,3")
	assert.Contains(t, all, "Y,절연테이프,S2,EA,100,65,-35,고위험,3")
}

func TestWriteRuleCSV(t *testing.T) {
	report := analyzeFixture(t, AnalysisOptions{Thresholds: DefaultThresholds()})

	var buf bytes.Buffer
	require.NoError(t, WriteRuleCSV(&buf, report, RuleContractExpiry, ""))

	records := readCSVDocument(t, buf.Bytes())
	require.Len(t, records, 2)
	assert.Equal(t, "자재코드", records[0][0])
	assert.Equal(t, []string{"Z", "안전장갑", "S1", "2026-02-15", "2", "주의"}, records[1])

	buf.Reset()
	require.NoError(t, WriteRuleCSV(&buf, report, RuleContractExpiry, "no-such-material"))
	assert.Len(t, readCSVDocument(t, buf.Bytes()), 1, "header only")
}

func TestWriteXLSX(t *testing.T) {
	report := analyzeFixture(t, AnalysisOptions{Thresholds: DefaultThresholds()})

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"요약", "1_수량 변동성", "2_단가 변동성", "3_계약 만료 임박", "4_재고 괴리", "5_발주 괴리"}, f.GetSheetList())

	summary, err := f.GetRows("요약")
	require.NoError(t, err)
	assert.Equal(t, []string{"분석 기준월", "2025-12"}, summary[0])

	rule2, err := f.GetRows("2_단가 변동성")
	require.NoError(t, err)
	require.Len(t, rule2, 2)
	assert.Equal(t, "절연테이프", rule2[1][1])
	assert.Equal(t, "-35", rule2[1][6])

	rule4, err := f.GetRows("4_재고 괴리")
	require.NoError(t, err)
	assert.Len(t, rule4, 1, "header only")
}
