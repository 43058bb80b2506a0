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

import "fmt"

const (
	// DefaultDisplayLimit is how many findings per rule the dashboard shows
	DefaultDisplayLimit = 15

	// monthLayout is the canonical month format used in reports
	monthLayout = "2006-01"

	// dateLayout is the canonical date format used in reports
	dateLayout = "2006-01-02"
)

// RuleInfo describes one rule for display
type RuleInfo struct {
	ID          RuleID
	Key         string
	Name        string
	Description string
	Commentary  string
	Icon        string
}

// ruleCatalog holds the display metadata of every rule, indexed by RuleID-1
var ruleCatalog = []RuleInfo{
	{
		ID:          RuleQuantityVolatility,
		Key:         "rule1",
		Name:        "수량 변동성",
		Description: "유효월 평균 대비 ±%s%% 이상 변동",
		Commentary:  "수량 변동성이 높은 자재들은 계절적 요인이나 프로젝트 특성일 수 있지만, 비정상적인 과다 발주의 가능성도 검토가 필요합니다.",
		Icon:        "📦",
	},
	{
		ID:          RulePriceVolatility,
		Key:         "rule2",
		Name:        "단가 변동성",
		Description: "단가 평균 대비 ±%s%% 이상 변동",
		Commentary:  "급격한 단가 하락은 품질 저하, 공급사 변경, 또는 비정상 거래의 신호일 수 있습니다. 특히 30% 이상 변동한 자재는 즉시 확인이 필요합니다.",
		Icon:        "💰",
	},
	{
		ID:          RuleContractExpiry,
		Key:         "rule3",
		Name:        "계약 만료 임박",
		Description: "%s개월 이내 계약 만료 예정",
		Commentary:  "계약 만료 임박 자재는 원활한 수급을 위해 재계약 협상을 미리 준비해야 합니다. 공급 단절 리스크를 예방하세요.",
		Icon:        "📅",
	},
	{
		ID:          RuleInventoryGap,
		Key:         "rule4",
		Name:        "재고 괴리",
		Description: "구매금액 변동 대비 재고 변동 괴리 %s%%p 초과",
		Commentary:  "구매량 대비 재고 괴리는 재고 관리 오류, 횡령, 또는 분실의 징후일 수 있습니다. 재고 실사를 권장드립니다.",
		Icon:        "📊",
	},
	{
		ID:          RuleOrderGap,
		Key:         "rule5",
		Name:        "발주 괴리",
		Description: "구매금액 변동 대비 발주건수 변동 괴리 %s%%p 초과",
		Commentary:  "발주 건수 이상 증가는 분할 발주를 통한 결재 한도 회피 시도일 수 있습니다. 발주 패턴을 면밀히 분석해 주세요.",
		Icon:        "📝",
	},
}

// LookupRule returns the catalog entry for a rule
func LookupRule(id RuleID) (RuleInfo, bool) {
	if id < RuleQuantityVolatility || id > RuleOrderGap {
		return RuleInfo{}, false
	}
	return ruleCatalog[id-1], true
}

// RuleKey returns the details key of a rule ("rule1" ... "rule5")
func RuleKey(id RuleID) string {
	if info, ok := LookupRule(id); ok {
		return info.Key
	}
	return fmt.Sprintf("rule%d", int(id))
}

// StageNarration is the message the assistant shows when a stage completes.
// %d is replaced by the stage result count.
var StageNarration = map[string]string{
	StageLoad:      "구매실적 데이터 %d건 로딩 완료 ✓",
	StageNormalize: "발주가 없는 달(0값)은 제외하고 유효한 데이터만 사용할게요. 자재 %d개 정제 완료 ✓",
	StageAggregate: "유효월수 및 평균 계산 완료: 기준선 %d개 ✓",
	StageRule1:     "수량 변동성 분석 완료: %d건 이상 징후 발견 ⚠️",
	StageRule2:     "단가 변동성 분석 완료: %d건 이상 징후 발견 🔴",
	StageRule3:     "계약 임박 분석 완료: %d건 확인 📅",
	StageRule4:     "재고 괴리 분석 완료: %d건 이상 징후 발견 ⚠️",
	StageRule5:     "발주 괴리 분석 완료: %d건 이상 징후 발견 ⚠️",
	StageAssemble:  "분석 결과, 총 %d건의 이상 징후가 발견되었습니다.",
}
