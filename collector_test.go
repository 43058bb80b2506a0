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
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newTestCollector(storage *Storage) *Collector {
	config := DefaultConfig()
	if storage == nil {
		config.CacheTTL = 0
	}
	return NewCollector(config, storage, NewDiscardLogger())
}

func TestCollectorLoad_CSV(t *testing.T) {
	path := writeInput(t, "purchases.csv", fixtureCSV)

	data, err := newTestCollector(nil).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "purchases.csv", data.Source)
	require.Len(t, data.Rows, 6)

	first := data.Rows[0]
	assert.Equal(t, "X", first.Code)
	assert.Equal(t, "용접봉_E7016", first.Name)
	assert.Equal(t, "S1", first.Supplier)
	assert.Equal(t, month(2025, time.October), first.Month)
	require.NotNil(t, first.Quantity)
	assert.Equal(t, 40.0, *first.Quantity)
	assert.Equal(t, "EA", first.Unit)
	assert.Equal(t, 2, first.Line)
	assert.Nil(t, first.ContractEnd)

	last := data.Rows[5]
	require.NotNil(t, last.ContractEnd)
	assert.Equal(t, *date(2026, time.February, 15), *last.ContractEnd)
	assert.Equal(t, 7, last.Line)

	report, err := NewAnalyzer(NewDiscardLogger()).Analyze(context.Background(), data, AnalysisOptions{Thresholds: DefaultThresholds()})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Details.Count(RuleQuantityVolatility))
	assert.Equal(t, 1, report.Details.Count(RuleContractExpiry))
}

func TestCollectorLoad_JSON(t *testing.T) {
	path := writeInput(t, "purchases.json", `[
  {"code": "A-1", "name": "볼트", "supplier": "S1", "month": "2025-11", "quantity": 10, "unit_price": "1,200", "order_count": 2},
  {"code": "A-1", "name": "볼트", "supplier": "S1", "month": "2025-12", "quantity": null, "unit_price": 1200},
  {"code": "A-1", "name": "볼트", "supplier": "S1", "month": "2025-10", "quantity": 12.5, "unit_price": 1150, "contract_end": "2026-01-31"}
]`)

	data, err := newTestCollector(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, data.Rows, 3)

	assert.Equal(t, 10.0, *data.Rows[0].Quantity)
	assert.Equal(t, 1200.0, data.Rows[0].UnitPrice)
	assert.Equal(t, 2.0, data.Rows[0].OrderCount)
	assert.Nil(t, data.Rows[1].Quantity, "null quantity means the month was not reported")
	assert.Equal(t, 12.5, *data.Rows[2].Quantity)
	require.NotNil(t, data.Rows[2].ContractEnd)
}

func TestCollectorLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purchases.xlsx")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"자재코드", "자재명", "공급사", "기준월", "수량", "단가", "발주건수", "재고금액", "계약만료일"},
		{"X", "용접봉_E7016", "S1", "2025-11", 40, 10, 4, 40, ""},
		{"X", "용접봉_E7016", "S1", "2025-12", 220, 10, 22, 220, "2026-01-31"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	data, err := newTestCollector(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, data.Rows, 2)

	assert.Equal(t, month(2025, time.December), data.Rows[1].Month)
	assert.Equal(t, 220.0, *data.Rows[1].Quantity)
	require.NotNil(t, data.Rows[1].ContractEnd)
	assert.Equal(t, *date(2026, time.January, 31), *data.Rows[1].ContractEnd)
}

func TestCollectorLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		line    int
		message string
	}{
		{
			name:    "missing required column",
			file:    "missing.csv",
			content: "code,name,month,quantity,unit_price\nA,볼트,2025-12,1,1\n",
			line:    1,
			message: "supplier",
		},
		{
			name:    "duplicate column",
			file:    "duplicate.csv",
			content: "code,자재코드,supplier,month,quantity,unit_price\nA,A,S1,2025-12,1,1\n",
			line:    1,
			message: "more than once",
		},
		{
			name:    "empty file",
			file:    "empty.csv",
			content: "",
			message: "empty",
		},
		{
			name:    "unsupported format",
			file:    "purchases.txt",
			content: "code\n",
			message: "unsupported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeInput(t, tt.file, tt.content)

			_, err := newTestCollector(nil).Load(context.Background(), path)
			require.Error(t, err)

			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, tt.line, loadErr.Line)
			assert.Contains(t, loadErr.Error(), tt.message)
		})
	}
}

func TestCollectorLoad_MalformedCellsExcludeOnlyTheirMaterial(t *testing.T) {
	content := "code,name,supplier,month,quantity,unit_price,order_count,inventory_value\n" +
		"M1,Bolt,S1,2025-11,10,abc,1,100\n" +
		"M1,Bolt,S1,2025-12,10,NaN,1,100\n" +
		"M3,Nut,S1,December,5,2,1,10\n" +
		"M2,Washer,S2,2025-11,10,5,1,100\n" +
		"M2,Washer,S2,2025-12,30,5,1,100\n"
	path := writeInput(t, "bad.csv", content)

	data, err := newTestCollector(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, data.Rows, 5)
	assert.Contains(t, data.Rows[0].ParseError, "unit_price")
	assert.Contains(t, data.Rows[1].ParseError, "NaN")
	assert.Contains(t, data.Rows[2].ParseError, "month")
	assert.Empty(t, data.Rows[3].ParseError)

	report, err := NewAnalyzer(NewDiscardLogger()).Analyze(context.Background(), data, AnalysisOptions{Thresholds: DefaultThresholds()})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.TotalMaterials)
	assert.Equal(t, 2, report.Summary.ExcludedMaterials)
	assert.Equal(t, "2025-12", report.Summary.AnalysisPeriod)
	require.Len(t, report.Details.Rule1, 1)
	assert.Equal(t, "M2", report.Details.Rule1[0].Code)

	excluded := make(map[string]string)
	for _, m := range report.Materials {
		if m.Excluded {
			excluded[m.Code] = m.ExclusionReason
		}
	}
	assert.Contains(t, excluded["M1"], "row 2")
	assert.Contains(t, excluded["M3"], "row 4")
}

func TestCollectorLoad_MissingFile(t *testing.T) {
	_, err := newTestCollector(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCollectorLoad_SkipsBlankRows(t *testing.T) {
	path := writeInput(t, "blank.csv", "code,supplier,month,quantity,unit_price\n,,,,\nA,S1,2025-12,1,1\n")

	data, err := newTestCollector(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, 3, data.Rows[0].Line)
}

func TestCollectorLoad_UsesCache(t *testing.T) {
	storage, err := NewStorage(t.TempDir(), NewDiscardLogger())
	require.NoError(t, err)
	defer storage.Close()

	path := writeInput(t, "purchases.csv", fixtureCSV)
	collector := newTestCollector(storage)

	first, err := collector.Load(context.Background(), path)
	require.NoError(t, err)

	total, _ := storage.CacheStats()
	assert.Equal(t, 1, total)

	// Same size and modification time: the cached parse is served
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(fixtureCSV, ",220,", ",999,", 1)), 0600))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	second, err := collector.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, *first.Rows[2].Quantity, *second.Rows[2].Quantity)
	assert.Equal(t, 220.0, *second.Rows[2].Quantity)

	// A touched file misses the cache
	later := info.ModTime().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := collector.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 999.0, *third.Rows[2].Quantity)

	total, _ = storage.CacheStats()
	assert.Equal(t, 1, total, "the new parse replaces the stale entry")
}

func TestParseNumber(t *testing.T) {
	tests := map[string]float64{
		"1,000":   1000,
		"₩12,500": 12500,
		"3500원":   3500,
		" 7.5 ":   7.5,
		"":        0,
		"-":       0,
	}
	for raw, want := range tests {
		got, err := parseNumber("unit_price", raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"n/a", "NaN", "Inf", "-Infinity", "1e400"} {
		_, err := parseNumber("unit_price", raw)
		assert.ErrorContains(t, err, "unit_price", raw)
	}
}

func TestParseMonth(t *testing.T) {
	for _, raw := range []string{"2025-12", "2025-12-15", "2025/12", "2025.12", "202512", "45992"} {
		got, err := parseMonth(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, month(2025, time.December), got, raw)
	}

	_, err := parseMonth("")
	assert.Error(t, err)
}

func TestMapHeader_StripsBOM(t *testing.T) {
	columns, err := mapHeader([]string{"\ufeffCode", "Supplier", "MONTH", "qty", "Price", "비고"})
	require.NoError(t, err)
	assert.Equal(t, 0, columns[colCode])
	assert.Equal(t, 4, columns[colUnitPrice])
	assert.NotContains(t, columns, colName)
}
