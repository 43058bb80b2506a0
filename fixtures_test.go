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
	"time"
)

func qty(v float64) *float64 {
	return &v
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func date(year int, m time.Month, day int) *time.Time {
	t := time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

type monthValues struct {
	month     time.Time
	quantity  float64
	price     float64
	orders    float64
	inventory float64
}

func seriesRows(code, name, supplier string, contractEnd *time.Time, values ...monthValues) []RawRow {
	rows := make([]RawRow, 0, len(values))
	for i, v := range values {
		rows = append(rows, RawRow{
			Code:           code,
			Name:           name,
			Supplier:       supplier,
			Month:          v.month,
			Quantity:       qty(v.quantity),
			UnitPrice:      v.price,
			OrderCount:     v.orders,
			InventoryValue: v.inventory,
			ContractEnd:    contractEnd,
			Unit:           "EA",
			Line:           i + 2,
		})
	}
	return rows
}

// fixtureRows is a small purchasing history analyzed at 2025-12:
//   - X (S1) buys 220 against an average of 100: quantity volatility, high
//   - Y (S2) pays 65 against an average of 100: price volatility, high
//   - Z (S1) has its contract ending 2026-02: contract expiry, medium
//   - W (S3) never bought anything: excluded
func fixtureRows() []RawRow {
	oct, nov, dec := month(2025, time.October), month(2025, time.November), month(2025, time.December)

	var rows []RawRow
	rows = append(rows, seriesRows("X", "용접봉_E7016", "S1", nil,
		monthValues{oct, 40, 10, 4, 40},
		monthValues{nov, 40, 10, 4, 40},
		monthValues{dec, 220, 10, 22, 220},
	)...)
	rows = append(rows, seriesRows("Y", "절연테이프", "S2", nil,
		monthValues{oct, 10, 120, 24, 120},
		monthValues{nov, 10, 115, 23, 115},
		monthValues{dec, 10, 65, 13, 65},
	)...)
	rows = append(rows, seriesRows("Z", "안전장갑", "S1", date(2026, time.February, 15),
		monthValues{oct, 10, 10, 2, 100},
		monthValues{nov, 10, 10, 2, 100},
		monthValues{dec, 10, 10, 2, 100},
	)...)
	rows = append(rows, seriesRows("W", "미사용 자재", "S3", nil,
		monthValues{oct, 0, 10, 0, 0},
		monthValues{nov, 0, 10, 0, 0},
	)...)
	return rows
}

func fixtureDataset() *Dataset {
	return &Dataset{
		Source:   "fixture",
		LoadedAt: time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
		Rows:     fixtureRows(),
	}
}

// fixtureCSV is fixtureRows for X and Z as a Korean-headed CSV file
const fixtureCSV = "\ufeff자재코드,자재명,공급사,월,수량,단가,발주건수,재고금액,계약종료일,단위\n" +
	"X,용접봉_E7016,S1,2025-10,40,10,4,40,,EA\n" +
	"X,용접봉_E7016,S1,2025-11,40,10,4,40,,EA\n" +
	"X,용접봉_E7016,S1,2025-12,220,10,22,220,,EA\n" +
	"Z,안전장갑,S1,2025-10,10,10,2,100,2026-02-15,EA\n" +
	"Z,안전장갑,S1,2025-11,10,10,2,100,2026-02-15,EA\n" +
	"Z,안전장갑,S1,2025-12,10,10,2,100,2026-02-15,EA\n"
