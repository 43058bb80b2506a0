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
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// HTMLReporter renders a report as a self-contained HTML dashboard
type HTMLReporter struct {
	logger       *Logger
	displayLimit int
	charts       *ChartGenerator
}

// NewHTMLReporter creates a new HTML report generator
func NewHTMLReporter(logger *Logger, displayLimit int) *HTMLReporter {
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	return &HTMLReporter{
		logger:       logger,
		displayLimit: displayLimit,
		charts:       NewChartGenerator(),
	}
}

// Write renders the dashboard
func (r *HTMLReporter) Write(w io.Writer, report *Report) error {
	r.writeHTMLHeader(w, report)
	r.writeHTMLSummary(w, report)
	r.writeHTMLCharts(w, report)
	r.writeHTMLInsights(w, report)
	for _, rule := range AllRules {
		r.writeHTMLRule(w, report, rule)
	}
	r.writeHTMLExcluded(w, report)
	r.writeHTMLFooter(w)
	return nil
}

func (r *HTMLReporter) writeHTMLHeader(w io.Writer, report *Report) {
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="ko">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>구매 이상징후 분석 보고서</title>
    <style>
        :root {
            --primary-color: #F26B21;
            --secondary-color: #00A19B;
            --warning-color: #FFB800;
            --danger-color: #E5484D;
            --bg-color: #F7F8FA;
            --card-bg: #FFFFFF;
            --text-color: #1F2937;
            --text-muted: #6B7280;
            --border-color: #E5E7EB;
        }

        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        body {
            font-family: 'Pretendard', 'Noto Sans KR', -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
            background: var(--bg-color);
            color: var(--text-color);
            line-height: 1.6;
            padding: 20px;
        }

        .container {
            max-width: 1200px;
            margin: 0 auto;
        }

        header {
            background: linear-gradient(135deg, var(--primary-color), var(--secondary-color));
            color: white;
            padding: 40px;
            border-radius: 16px;
            margin-bottom: 30px;
        }

        h1 {
            font-size: 2.2em;
            margin-bottom: 10px;
        }

        .subtitle {
            opacity: 0.9;
        }

        .card {
            background: var(--card-bg);
            border-radius: 12px;
            padding: 30px;
            margin-bottom: 30px;
            border: 1px solid var(--border-color);
        }

        h2 {
            color: var(--primary-color);
            margin-bottom: 20px;
            border-bottom: 2px solid var(--border-color);
            padding-bottom: 10px;
        }

        table {
            width: 100%%;
            border-collapse: collapse;
            margin: 20px 0;
            font-size: 0.92em;
        }

        th, td {
            padding: 10px;
            text-align: left;
            border-bottom: 1px solid var(--border-color);
        }

        th {
            background: rgba(242, 107, 33, 0.08);
            color: var(--primary-color);
        }

        td.advisory {
            color: var(--text-muted);
            font-size: 0.88em;
        }

        .metric-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 20px;
        }

        .metric-card {
            border: 1px solid var(--border-color);
            border-radius: 8px;
            padding: 20px;
            text-align: center;
        }

        .metric-value {
            font-size: 2em;
            font-weight: bold;
            color: var(--secondary-color);
        }

        .metric-label {
            color: var(--text-muted);
        }

        .badge {
            display: inline-block;
            padding: 4px 10px;
            border-radius: 20px;
            font-size: 0.85em;
            font-weight: 600;
        }

        .badge-high {
            background: var(--danger-color);
            color: white;
        }

        .badge-medium {
            background: var(--warning-color);
            color: #1F2937;
        }

        .badge-low {
            background: #3F51B5;
            color: white;
        }

        .insight-box {
            border-left: 4px solid var(--secondary-color);
            padding: 20px;
            margin: 15px 0;
            background: rgba(0, 161, 155, 0.05);
            white-space: pre-line;
        }

        .insight-box.high {
            border-left-color: var(--danger-color);
        }

        .insight-box.medium {
            border-left-color: var(--warning-color);
        }

        .chart {
            max-width: 100%%;
        }

        footer {
            text-align: center;
            padding: 30px;
            color: var(--text-muted);
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>📊 구매 이상징후 분석 보고서</h1>
            <div class="subtitle">분석 기준월: %s · 기준일: %s</div>
            <div class="subtitle" style="opacity: 0.7; font-size: 0.9em; margin-top: 10px;">purchasewatch %s</div>
        </header>
`,
		html.EscapeString(report.Summary.AnalysisPeriod),
		html.EscapeString(report.Summary.AnalysisDate),
		GetVersion(),
	)
}

func (r *HTMLReporter) writeHTMLSummary(w io.Writer, report *Report) {
	s := report.Summary
	fmt.Fprintf(w, `
        <div class="card">
            <h2>요약</h2>
            <div class="metric-grid">
                <div class="metric-card">
                    <div class="metric-label">분석 자재</div>
                    <div class="metric-value">%s</div>
                </div>
                <div class="metric-card">
                    <div class="metric-label">이상 징후 자재</div>
                    <div class="metric-value">%s</div>
                </div>
                <div class="metric-card">
                    <div class="metric-label">고위험</div>
                    <div class="metric-value">%s</div>
                </div>
                <div class="metric-card">
                    <div class="metric-label">계약 만료 임박</div>
                    <div class="metric-value">%s</div>
                </div>
            </div>
            <table>
                <thead>
                    <tr><th>룰</th><th>기준</th><th>건수</th><th>비율</th></tr>
                </thead>
                <tbody>
`,
		humanize.Comma(int64(s.TotalMaterials)),
		humanize.Comma(int64(s.TotalAnomalies)),
		humanize.Comma(int64(s.HighRiskCount)),
		humanize.Comma(int64(s.ContractExpiringCount)),
	)

	for _, rule := range s.Rules {
		fmt.Fprintf(w, "                    <tr><td>%d. %s</td><td>%s</td><td>%s</td><td>%s%%</td></tr>\n",
			rule.ID,
			html.EscapeString(rule.Name),
			html.EscapeString(rule.Description),
			humanize.Comma(int64(rule.Count)),
			formatNumber(rule.Percentage),
		)
	}

	fmt.Fprintf(w, `                </tbody>
            </table>
        </div>
`)
}

func (r *HTMLReporter) writeHTMLCharts(w io.Writer, report *Report) {
	ruleChart, err := r.charts.RuleCountChart(report)
	if err != nil {
		r.logger.Debug("Skipping rule chart", "error", err)
		return
	}

	fmt.Fprintf(w, `
        <div class="card">
            <h2>룰별 이상 징후</h2>
            <img class="chart" alt="findings per rule" src="data:image/png;base64,%s">
`, embedPNG(ruleChart))

	if riskChart, err := r.charts.RiskDistributionChart(report); err == nil {
		fmt.Fprintf(w, `            <img class="chart" alt="findings by risk level" src="data:image/png;base64,%s">
`, embedPNG(riskChart))
	} else {
		r.logger.Debug("Skipping risk chart", "error", err)
	}

	fmt.Fprintf(w, "        </div>\n")
}

func (r *HTMLReporter) writeHTMLInsights(w io.Writer, report *Report) {
	if len(report.Insights) == 0 {
		return
	}

	fmt.Fprintf(w, `
        <div class="card">
            <h2>🤖 분석 의견</h2>
`)
	for _, insight := range report.Insights {
		fmt.Fprintf(w, `            <div class="insight-box %s">
                <strong>%s</strong>
                <p>%s</p>
                <p><em>%s</em></p>
            </div>
`,
			html.EscapeString(insight.Priority),
			html.EscapeString(insight.Title),
			html.EscapeString(insight.Description),
			html.EscapeString(insight.Action),
		)
	}
	fmt.Fprintf(w, "        </div>\n")
}

func (r *HTMLReporter) writeHTMLRule(w io.Writer, report *Report, rule RuleID) {
	table := report.Details.Table(rule, "", r.displayLimit)
	if table.Matched == 0 {
		return
	}
	riskColumn := indexOf(table.Headers, "위험도")

	fmt.Fprintf(w, `
        <div class="card">
            <h2>%s</h2>
            <p>총 <strong>%s건</strong> 중 상위 %d건</p>
            <table>
                <thead>
                    <tr>`,
		html.EscapeString(table.Title),
		humanize.Comma(int64(table.Matched)),
		len(table.Rows),
	)
	for _, header := range table.Headers {
		fmt.Fprintf(w, "<th>%s</th>", html.EscapeString(header))
	}
	fmt.Fprintf(w, "<th>분석 의견</th></tr>\n                </thead>\n                <tbody>\n")

	for i, row := range table.Rows {
		var b strings.Builder
		for col, v := range row {
			if col == riskColumn {
				fmt.Fprintf(&b, `<td><span class="badge badge-%s">%s</span></td>`, riskClass(v), html.EscapeString(cellString(v)))
				continue
			}
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(markdownCell(v)))
		}
		fmt.Fprintf(w, "                    <tr>%s<td class=\"advisory\">%s</td></tr>\n", b.String(), html.EscapeString(table.Advisories[i]))
	}

	fmt.Fprintf(w, `                </tbody>
            </table>
        </div>
`)
}

func (r *HTMLReporter) writeHTMLExcluded(w io.Writer, report *Report) {
	if report.Summary.ExcludedMaterials == 0 {
		return
	}

	fmt.Fprintf(w, `
        <div class="card">
            <h2>분석 제외 자재</h2>
            <table>
                <thead>
                    <tr><th>자재코드</th><th>자재명</th><th>공급사</th><th>사유</th></tr>
                </thead>
                <tbody>
`)
	for _, m := range report.Materials {
		if !m.Excluded {
			continue
		}
		fmt.Fprintf(w, "                    <tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(m.Code),
			html.EscapeString(m.Name),
			html.EscapeString(m.Supplier),
			html.EscapeString(m.ExclusionReason),
		)
	}
	fmt.Fprintf(w, `                </tbody>
            </table>
        </div>
`)
}

func (r *HTMLReporter) writeHTMLFooter(w io.Writer) {
	fmt.Fprintf(w, `
        <footer>
            <p><em>이 보고서는 과거 구매실적을 기준으로 한 통계적 이상 징후이며, 부정 거래의 확정이 아닙니다.</em></p>
            <p style="margin-top: 10px;">Generated by <a href="https://github.com/matthewgall/purchasewatch" style="color: var(--primary-color); text-decoration: none;">purchasewatch</a></p>
        </footer>
    </div>
</body>
</html>
`)
}

// riskClass maps a risk label cell back to its badge class
func riskClass(v interface{}) string {
	switch cellString(v) {
	case RiskHigh.Label():
		return string(RiskHigh)
	case RiskMedium.Label():
		return string(RiskMedium)
	default:
		return string(RiskLow)
	}
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
