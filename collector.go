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
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Canonical column names of the purchasing history
const (
	colCode           = "code"
	colName           = "name"
	colSupplier       = "supplier"
	colMonth          = "month"
	colQuantity       = "quantity"
	colUnitPrice      = "unit_price"
	colOrderCount     = "order_count"
	colInventoryValue = "inventory_value"
	colContractEnd    = "contract_end"
	colUnit           = "unit"
)

// columnAliases maps every accepted header spelling to its canonical column
var columnAliases = map[string]string{
	"code": colCode, "material_code": colCode, "자재코드": colCode, "자재번호": colCode,
	"name": colName, "material_name": colName, "자재명": colName, "품명": colName,
	"supplier": colSupplier, "vendor": colSupplier, "공급사": colSupplier, "업체명": colSupplier,
	"month": colMonth, "period": colMonth, "월": colMonth, "기준월": colMonth, "년월": colMonth,
	"quantity": colQuantity, "qty": colQuantity, "수량": colQuantity, "구매수량": colQuantity,
	"unit_price": colUnitPrice, "price": colUnitPrice, "단가": colUnitPrice,
	"order_count": colOrderCount, "orders": colOrderCount, "발주건수": colOrderCount,
	"inventory_value": colInventoryValue, "inventory": colInventoryValue, "재고금액": colInventoryValue,
	"contract_end": colContractEnd, "contract_date": colContractEnd, "계약종료일": colContractEnd, "계약만료일": colContractEnd,
	"unit": colUnit, "단위": colUnit,
}

var requiredColumns = []string{colCode, colSupplier, colMonth, colQuantity, colUnitPrice}

var monthLayouts = []string{"2006-01", "2006-01-02", "2006/01", "2006/01/02", "2006.01", "06.01", "200601"}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02", "20060102", "2006-01"}

// Collector loads purchasing history files into data sets
type Collector struct {
	config  *Config
	storage *Storage
	logger  *Logger
}

// NewCollector creates a new data collector. storage may be nil to disable caching.
func NewCollector(config *Config, storage *Storage, logger *Logger) *Collector {
	return &Collector{
		config:  config,
		storage: storage,
		logger:  logger.WithComponent("collector"),
	}
}

// Load reads a CSV, XLSX or JSON file, reusing a cached parse when the file is unchanged
func (c *Collector) Load(ctx context.Context, path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "cannot open input", Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Path: path, Message: "input is a directory"}
	}

	useCache := c.storage != nil && c.config != nil && c.config.CacheTTL > 0
	if useCache {
		if data, ok := c.storage.CachedDataset(path, info); ok {
			c.logger.Info("Loaded data set from cache", "path", path, "rows", len(data.Rows))
			return data, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := readTable(path)
	if err != nil {
		return nil, err
	}

	rows, err := parseTable(path, table)
	if err != nil {
		return nil, err
	}

	data := &Dataset{
		Source:   filepath.Base(path),
		LoadedAt: time.Now().UTC(),
		Rows:     rows,
	}
	c.logger.LogDataLoaded(path, len(rows))

	if useCache {
		if err := c.storage.CacheDataset(path, info, data, c.config.CacheTTL); err != nil {
			c.logger.Warn("Failed to cache data set", "error", err)
		}
	}

	return data, nil
}

// readTable returns the header row followed by data rows
func readTable(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		file, err := os.Open(path)
		if err != nil {
			return nil, &LoadError{Path: path, Message: "cannot open input", Err: err}
		}
		defer file.Close()
		return readCSV(path, file)
	case ".xlsx":
		return readXLSX(path)
	case ".json":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Message: "cannot open input", Err: err}
		}
		return readJSON(path, raw)
	default:
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("unsupported input format %q", filepath.Ext(path))}
	}
}

func readCSV(path string, r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	table, err := reader.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &LoadError{Path: path, Line: parseErr.Line, Message: "malformed CSV", Err: err}
		}
		return nil, &LoadError{Path: path, Message: "malformed CSV", Err: err}
	}
	return table, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "cannot open workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &LoadError{Path: path, Message: "workbook has no sheets"}
	}

	table, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("cannot read sheet %q", sheets[0]), Err: err}
	}
	return table, nil
}

// readJSON flattens an array of objects into a table keyed by the union of object keys
func readJSON(path string, raw []byte) ([][]string, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var objects []map[string]interface{}
	if err := decoder.Decode(&objects); err != nil {
		return nil, &LoadError{Path: path, Message: "expected a JSON array of rows", Err: err}
	}

	keySet := make(map[string]bool)
	for _, obj := range objects {
		for key := range obj {
			keySet[key] = true
		}
	}
	header := make([]string, 0, len(keySet))
	for key := range keySet {
		header = append(header, key)
	}
	sort.Strings(header)

	table := make([][]string, 0, len(objects)+1)
	table = append(table, header)
	for _, obj := range objects {
		row := make([]string, len(header))
		for i, key := range header {
			if value, ok := obj[key]; ok && value != nil {
				row[i] = fmt.Sprint(value)
			}
		}
		table = append(table, row)
	}
	return table, nil
}

// parseTable turns a header plus data rows into raw rows. Line numbers are 1-based
// and count the header. A row with a malformed cell is kept with ParseError set
// so only its own material is excluded.
func parseTable(path string, table [][]string) ([]RawRow, error) {
	if len(table) == 0 {
		return nil, &LoadError{Path: path, Message: "input is empty"}
	}

	columns, err := mapHeader(table[0])
	if err != nil {
		return nil, &LoadError{Path: path, Line: 1, Message: err.Error()}
	}

	rows := make([]RawRow, 0, len(table)-1)
	for i, record := range table[1:] {
		line := i + 2
		if blankRecord(record) {
			continue
		}

		row, err := parseRecord(columns, record)
		if err != nil {
			row.ParseError = err.Error()
		}
		row.Line = line
		rows = append(rows, row)
	}

	return rows, nil
}

func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff")))
		canonical, ok := columnAliases[name]
		if !ok {
			continue
		}
		if _, dup := columns[canonical]; dup {
			return nil, fmt.Errorf("column %q appears more than once", canonical)
		}
		columns[canonical] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func parseRecord(columns map[string]int, record []string) (RawRow, error) {
	cell := func(col string) string {
		i, ok := columns[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := RawRow{
		Code:     cell(colCode),
		Name:     cell(colName),
		Supplier: cell(colSupplier),
		Unit:     cell(colUnit),
	}

	month, err := parseMonth(cell(colMonth))
	if err != nil {
		return row, err
	}
	row.Month = month

	if raw := cell(colQuantity); raw != "" {
		qty, err := parseNumber(colQuantity, raw)
		if err != nil {
			return row, err
		}
		row.Quantity = &qty
	}

	if row.UnitPrice, err = parseNumber(colUnitPrice, cell(colUnitPrice)); err != nil {
		return row, err
	}
	if row.OrderCount, err = parseNumber(colOrderCount, cell(colOrderCount)); err != nil {
		return row, err
	}
	if row.InventoryValue, err = parseNumber(colInventoryValue, cell(colInventoryValue)); err != nil {
		return row, err
	}

	if raw := cell(colContractEnd); raw != "" {
		end, err := parseDate(raw)
		if err != nil {
			return row, err
		}
		row.ContractEnd = &end
	}

	return row, nil
}

func parseMonth(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("month is empty")
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return startOfMonth(t), nil
		}
	}
	if t, ok := excelSerialDate(raw); ok {
		return startOfMonth(t), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse month %q", raw)
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if t, ok := excelSerialDate(raw); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse contract end date %q", raw)
}

// excelSerialDate accepts spreadsheet date serials such as 45658
func excelSerialDate(raw string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(serial) || serial < 1 || serial > 2958465 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// parseNumber accepts thousands separators and a currency sign; empty means zero
func parseNumber(column, raw string) (float64, error) {
	cleaned := strings.NewReplacer(",", "", "₩", "", "원", "", " ", "").Replace(raw)
	if cleaned == "" || cleaned == "-" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%s %q is not a number", column, raw)
	}
	return value, nil
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
