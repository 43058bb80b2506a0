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

// ComputeBaseline averages a series over its valid months and captures its
// values at the analysis period. ok is false when the series has no valid month.
func ComputeBaseline(record MaterialRecord, period time.Time) (baseline MaterialBaseline, ok bool) {
	baseline = MaterialBaseline{
		Code:     record.Code,
		Supplier: record.Supplier,
	}

	var quantities, prices, orders, inventories, amounts []float64
	period = startOfMonth(period)

	for _, obs := range record.Observations {
		if obs.Month.Equal(period) {
			baseline.LatestQuantity = obs.Quantity
			baseline.LatestUnitPrice = obs.UnitPrice
			baseline.LatestOrderCount = obs.OrderCount
			baseline.LatestInventoryValue = obs.InventoryValue
			baseline.LatestAmount = obs.Amount()
			baseline.LatestReported = true
			baseline.LatestActive = obs.Valid
		}

		if !obs.Valid || obs.Month.After(period) {
			continue
		}
		quantities = append(quantities, obs.Quantity)
		prices = append(prices, obs.UnitPrice)
		orders = append(orders, obs.OrderCount)
		inventories = append(inventories, obs.InventoryValue)
		amounts = append(amounts, obs.Amount())
	}

	baseline.ValidMonths = len(quantities)
	if baseline.ValidMonths == 0 {
		return baseline, false
	}

	baseline.AvgQuantity = calculateMean(quantities)
	baseline.AvgUnitPrice = calculateMean(prices)
	baseline.AvgOrderCount = calculateMean(orders)
	baseline.AvgInventoryValue = calculateMean(inventories)
	baseline.AvgAmount = calculateMean(amounts)

	return baseline, true
}

// Aggregate computes the baselines of every record, keyed like the records slice.
// Records without a valid month up to the period get no baseline.
func Aggregate(records []MaterialRecord, period time.Time) []*MaterialBaseline {
	baselines := make([]*MaterialBaseline, len(records))
	for i, record := range records {
		baseline, ok := ComputeBaseline(record, period)
		if !ok {
			continue
		}
		baselines[i] = &baseline
	}
	return baselines
}

// changeRate returns (current - avg) / avg * 100, or ErrZeroBaseline when avg is zero.
// A rate that is not finite is reported as ErrUndefinedRate.
func changeRate(current, avg float64) (float64, error) {
	if avg == 0 {
		return 0, ErrZeroBaseline
	}
	rate := (current - avg) / avg * 100
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, ErrUndefinedRate
	}
	return rate, nil
}

// calculateMean calculates the mean of a slice of float64 values
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
