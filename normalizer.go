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
	"strings"
	"time"
)

// ExcludedMaterial is a material that could not be evaluated
type ExcludedMaterial struct {
	Record MaterialRecord
	Err    *DataIntegrityError
}

// NormalizedSet is the cleaned input of one analysis run
type NormalizedSet struct {
	Records      []MaterialRecord     // evaluable series, sorted by code then supplier
	Excluded     []ExcludedMaterial   // series dropped from evaluation, same order
	RejectedRows []*DataIntegrityError // rows that could not be attributed to any material
	Suppliers    int
	LatestMonth  time.Time
}

// TotalMaterials counts every series seen, evaluable or not
func (n *NormalizedSet) TotalMaterials() int {
	return len(n.Records) + len(n.Excluded)
}

type seriesKey struct {
	code     string
	supplier string
}

// NormalizeRows groups raw rows into one record per material and supplier.
// Zero or missing quantity months stay in the series but are not valid.
func NormalizeRows(rows []RawRow) *NormalizedSet {
	set := &NormalizedSet{}

	groups := make(map[seriesKey][]RawRow)
	suppliers := make(map[string]bool)
	suppliedCodes := make(map[string]bool)

	for _, row := range rows {
		code := strings.TrimSpace(row.Code)
		if code == "" {
			set.RejectedRows = append(set.RejectedRows, &DataIntegrityError{
				Month:   formatMonth(row.Month),
				Message: fmt.Sprintf("row %d has no material code", row.Line),
			})
			continue
		}

		if row.ParseError == "" {
			month := startOfMonth(row.Month)
			if month.After(set.LatestMonth) {
				set.LatestMonth = month
			}
		}

		supplier := strings.TrimSpace(row.Supplier)
		if supplier != "" {
			suppliers[supplier] = true
			suppliedCodes[code] = true
		}

		key := seriesKey{code: code, supplier: supplier}
		groups[key] = append(groups[key], row)
	}
	set.Suppliers = len(suppliers)

	// Rows without a supplier cannot be attributed to one series of a code
	// that has suppliers. They are rejected instead of forming a series.
	for key, group := range groups {
		if key.supplier != "" || !suppliedCodes[key.code] {
			continue
		}
		for _, row := range group {
			set.RejectedRows = append(set.RejectedRows, &DataIntegrityError{
				Code:    key.code,
				Month:   formatMonth(row.Month),
				Message: fmt.Sprintf("row %d has no supplier", row.Line),
			})
		}
		delete(groups, key)
	}
	sort.SliceStable(set.RejectedRows, func(i, j int) bool {
		return set.RejectedRows[i].Code < set.RejectedRows[j].Code
	})

	keys := make([]seriesKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].code != keys[j].code {
			return keys[i].code < keys[j].code
		}
		return keys[i].supplier < keys[j].supplier
	})

	for _, key := range keys {
		record, err := buildRecord(key, groups[key])
		if err != nil {
			set.Excluded = append(set.Excluded, ExcludedMaterial{Record: record, Err: err})
			continue
		}
		set.Records = append(set.Records, record)
	}

	return set
}

// buildRecord assembles one series. The returned record is populated as far
// as possible even when an integrity error is reported.
func buildRecord(key seriesKey, rows []RawRow) (MaterialRecord, *DataIntegrityError) {
	record := MaterialRecord{
		Code:     key.code,
		Supplier: key.supplier,
	}

	fail := func(month time.Time, format string, args ...interface{}) *DataIntegrityError {
		return &DataIntegrityError{
			Code:     key.code,
			Supplier: key.supplier,
			Month:    formatMonth(month),
			Message:  fmt.Sprintf(format, args...),
		}
	}

	var firstErr *DataIntegrityError
	keep := func(err *DataIntegrityError) {
		if firstErr == nil {
			firstErr = err
		}
	}

	byMonth := make(map[time.Time]Observation, len(rows))
	var contractMonth time.Time

	for _, row := range rows {
		month := startOfMonth(row.Month)
		name := strings.TrimSpace(row.Name)

		switch {
		case record.Name == "":
			record.Name = name
		case name != "" && name != record.Name:
			keep(fail(month, "material name %q conflicts with %q", name, record.Name))
		}

		if record.Unit == "" {
			record.Unit = strings.TrimSpace(row.Unit)
		}

		if key.supplier == "" {
			keep(fail(month, "row %d has no supplier", row.Line))
		}

		if row.ParseError != "" {
			keep(fail(month, "row %d: %s", row.Line, row.ParseError))
			continue
		}

		if row.ContractEnd != nil && !month.Before(contractMonth) {
			end := *row.ContractEnd
			record.ContractEnd = &end
			contractMonth = month
		}

		obs := Observation{
			Month:          month,
			UnitPrice:      row.UnitPrice,
			OrderCount:     row.OrderCount,
			InventoryValue: row.InventoryValue,
		}
		if row.Quantity != nil {
			obs.Quantity = *row.Quantity
		}

		if obs.Quantity < 0 || obs.UnitPrice < 0 || obs.OrderCount < 0 || obs.InventoryValue < 0 {
			keep(fail(month, "row %d has a negative value", row.Line))
			continue
		}
		obs.Valid = obs.Quantity > 0

		if existing, ok := byMonth[month]; ok {
			if existing != obs {
				keep(fail(month, "conflicting rows for the same month"))
			}
			continue
		}
		byMonth[month] = obs
	}

	record.Observations = make([]Observation, 0, len(byMonth))
	for _, obs := range byMonth {
		record.Observations = append(record.Observations, obs)
		if obs.Valid {
			record.ValidMonths++
		}
	}
	sort.Slice(record.Observations, func(i, j int) bool {
		return record.Observations[i].Month.Before(record.Observations[j].Month)
	})

	if firstErr != nil {
		return record, firstErr
	}
	if record.ValidMonths == 0 {
		return record, fail(time.Time{}, "no valid months")
	}
	return record, nil
}

// startOfMonth truncates a timestamp to the first day of its month in UTC
func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthIndex counts calendar months since year zero
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func formatMonth(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(monthLayout)
}
