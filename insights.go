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
	"math"
	"strings"
)

const (
	// urgentPriceDrop is the unit price fall (percent) that needs immediate review
	urgentPriceDrop = -30.0

	// urgentContractMonths is the remaining contract term that counts as urgent
	urgentContractMonths = 1
)

// generateInsights creates the summary commentary and one note per rule with findings
func generateInsights(report *Report, t Thresholds) []Insight {
	insights := make([]Insight, 0, len(AllRules)+1)
	details := &report.Details

	priceDrops := 0
	for _, row := range details.Rule2 {
		if row.ChangeRate <= urgentPriceDrop {
			priceDrops++
		}
	}
	inventoryHigh := 0
	for _, row := range details.Rule4 {
		if row.RiskLevel == RiskHigh {
			inventoryHigh++
		}
	}
	urgentContracts := 0
	for _, row := range details.Rule3 {
		if row.MonthsRemaining <= urgentContractMonths {
			urgentContracts++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "분석 결과, 총 %d건의 이상 징후가 발견되었습니다.", report.Summary.TotalAnomalies)
	if priceDrops > 0 {
		fmt.Fprintf(&b, "\n🔴 즉시 확인 필요: 단가가 %d%% 이상 급락한 자재 %d건", int(math.Abs(urgentPriceDrop)), priceDrops)
	}
	if inventoryHigh > 0 {
		fmt.Fprintf(&b, "\n🟠 주의 필요: 구매량 대비 재고 괴리가 큰 자재 %d건", inventoryHigh)
	}
	if urgentContracts > 0 {
		fmt.Fprintf(&b, "\n🟡 모니터링: 계약 만료 %d개월 내 자재 %d건", urgentContractMonths, urgentContracts)
	}

	priority := "low"
	if report.Summary.HighRiskCount > 0 {
		priority = "high"
	} else if report.Summary.TotalAnomalies > 0 {
		priority = "medium"
	}

	action := "현재 조치가 필요한 자재가 없습니다. 다음 분석 주기까지 모니터링을 유지하세요."
	if name, ok := priorityMaterial(details); ok {
		action = fmt.Sprintf("가장 우선적으로 '%s' 자재를 확인해 보시기 바랍니다.", name)
	}

	insights = append(insights, Insight{
		Category:    "summary",
		Priority:    priority,
		Title:       "분석 요약",
		Description: b.String(),
		Action:      action,
	})

	for _, rule := range AllRules {
		count := details.Count(rule)
		if count == 0 {
			continue
		}
		info, _ := LookupRule(rule)
		insights = append(insights, Insight{
			Category:    info.Key,
			Priority:    rulePriority(details, rule),
			Title:       fmt.Sprintf("%s %s %d건", info.Icon, info.Name, count),
			Description: describeRule(info, t),
			Action:      info.Commentary,
		})
	}

	return insights
}

// priorityMaterial picks the material to review first: the steepest urgent
// price drop, otherwise the most severe high-risk finding in rule order
func priorityMaterial(d *Details) (string, bool) {
	var steepest *VolatilityRow
	for i := range d.Rule2 {
		row := &d.Rule2[i]
		if row.ChangeRate > urgentPriceDrop {
			continue
		}
		if steepest == nil || row.ChangeRate < steepest.ChangeRate {
			steepest = row
		}
	}
	if steepest != nil {
		return steepest.Name, true
	}

	for _, row := range d.Rule1 {
		if row.RiskLevel == RiskHigh {
			return row.Name, true
		}
	}
	for _, row := range d.Rule2 {
		if row.RiskLevel == RiskHigh {
			return row.Name, true
		}
	}
	for _, row := range d.Rule3 {
		if row.RiskLevel == RiskHigh {
			return row.Name, true
		}
	}
	for _, row := range d.Rule4 {
		if row.RiskLevel == RiskHigh {
			return row.Name, true
		}
	}
	for _, row := range d.Rule5 {
		if row.RiskLevel == RiskHigh {
			return row.Name, true
		}
	}
	return "", false
}

// rulePriority is the most severe risk level among a rule's rows
func rulePriority(d *Details, rule RuleID) string {
	best := RiskLevel("")
	consider := func(level RiskLevel) {
		if level.Rank() > best.Rank() {
			best = level
		}
	}

	switch rule {
	case RuleQuantityVolatility:
		for _, row := range d.Rule1 {
			consider(row.RiskLevel)
		}
	case RulePriceVolatility:
		for _, row := range d.Rule2 {
			consider(row.RiskLevel)
		}
	case RuleContractExpiry:
		for _, row := range d.Rule3 {
			consider(row.RiskLevel)
		}
	case RuleInventoryGap:
		for _, row := range d.Rule4 {
			consider(row.RiskLevel)
		}
	case RuleOrderGap:
		for _, row := range d.Rule5 {
			consider(row.RiskLevel)
		}
	}

	if best == "" {
		return string(RiskLow)
	}
	return string(best)
}

// Advisory explains a quantity or price volatility row to a buyer
func (r VolatilityRow) Advisory(rule RuleID) string {
	magnitude := formatNumber(math.Abs(r.ChangeRate))

	if rule == RulePriceVolatility {
		if r.ChangeRate < -20 {
			return fmt.Sprintf("이 자재는 평균 대비 단가가 %s%% 하락했습니다. 급격한 단가 하락은 공급사 변경, 품질 등급 변경, 데이터 입력 오류 또는 비정상적 거래의 신호일 수 있습니다. 👉 권고: 구매 담당자 확인 및 계약서 검토 필요", magnitude)
		}
		direction := "하락"
		if r.ChangeRate > 0 {
			direction = "상승"
		}
		return fmt.Sprintf("이 자재는 단가가 %s하여 %s%% 변동했습니다. 시장 가격 동향과 비교 확인이 필요합니다.", direction, magnitude)
	}

	switch {
	case r.ChangeRate > 100:
		return fmt.Sprintf("이 자재는 유효월 평균 대비 수량이 %s%% 급증했습니다. 신규 프로젝트 수주나 재고 비축, 데이터 입력 오류일 수 있습니다. 구매 담당자 확인을 권장드립니다.", magnitude)
	case r.ChangeRate < -50:
		return fmt.Sprintf("이 자재는 유효월 평균 대비 수량이 %s%% 급감했습니다. 공급 중단이나 대체재 사용 여부를 확인해 주세요.", magnitude)
	default:
		return fmt.Sprintf("이 자재는 평균 대비 %s%%의 수량 변동이 있습니다. 정상적인 수요 변동인지 확인이 필요합니다.", magnitude)
	}
}

// Advisory explains a contract expiry row to a buyer
func (r ContractRow) Advisory() string {
	if r.MonthsRemaining < 0 {
		return fmt.Sprintf("⚠️ 이 자재의 공급 계약이 %d개월 전에 만료되었습니다. 즉시 재계약 또는 대체 공급처 확보가 필요합니다.", -r.MonthsRemaining)
	}
	if r.MonthsRemaining <= urgentContractMonths {
		return fmt.Sprintf("⚠️ 긴급! 이 자재의 공급 계약이 %d개월 후 만료됩니다. 즉시 재계약 협상을 준비하고 대체 공급처 확보 계획도 수립하시기 바랍니다.", r.MonthsRemaining)
	}
	return fmt.Sprintf("이 자재의 계약 만료가 %d개월 후입니다. 재계약 협상 일정을 확인하고 미리 준비하시기 바랍니다.", r.MonthsRemaining)
}

// Advisory explains an inventory gap row to a buyer
func (r InventoryGapRow) Advisory() string {
	return fmt.Sprintf("구매금액이 %s%% 변동한 반면, 재고금액은 %s%% 변동하여 %s%%p의 괴리가 발생했습니다. 재고 관리 적정성 확인이 필요합니다.",
		formatNumber(r.AmountChange), formatNumber(r.InventoryChange), formatNumber(math.Abs(r.GapRate)))
}

// Advisory explains an order gap row to a buyer
func (r OrderGapRow) Advisory() string {
	return fmt.Sprintf("구매금액이 %s%% 변동한 반면, 발주건수는 %s%% 변동하여 %s%%p의 괴리가 발생했습니다. 발주 패턴 이상 여부 확인이 필요합니다.",
		formatNumber(r.AmountChange), formatNumber(r.OrdersChange), formatNumber(math.Abs(r.GapRate)))
}

