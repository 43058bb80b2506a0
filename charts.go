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
	"encoding/base64"
	"errors"
	"fmt"

	charts "github.com/vicanso/go-charts/v2"
)

// errNoChartData is returned when a report has nothing to plot
var errNoChartData = errors.New("no findings to chart")

// ChartGenerator renders report charts as PNG images
type ChartGenerator struct {
	theme string
}

// NewChartGenerator creates a new chart generator
func NewChartGenerator() *ChartGenerator {
	return &ChartGenerator{
		theme: "dark", // matches the HTML report
	}
}

// RuleCountChart renders a bar chart of findings per rule
func (cg *ChartGenerator) RuleCountChart(report *Report) ([]byte, error) {
	if report == nil || len(report.Summary.Rules) == 0 {
		return nil, errNoChartData
	}

	labels := make([]string, 0, len(report.Summary.Rules))
	counts := make([]float64, 0, len(report.Summary.Rules))
	for _, rule := range report.Summary.Rules {
		labels = append(labels, fmt.Sprintf("Rule %d", rule.ID))
		counts = append(counts, float64(rule.Count))
	}

	p, err := charts.BarRender(
		[][]float64{counts},
		charts.TitleTextOptionFunc("Findings per rule"),
		charts.XAxisDataOptionFunc(labels),
		charts.LegendLabelsOptionFunc([]string{"Findings"}, charts.PositionRight),
		charts.ThemeOptionFunc(cg.theme),
		charts.WidthOptionFunc(800),
		charts.HeightOptionFunc(400),
		charts.PaddingOptionFunc(charts.Box{
			Top:    20,
			Right:  20,
			Bottom: 20,
			Left:   20,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render rule chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// RiskDistributionChart renders a pie chart of findings by risk level
func (cg *ChartGenerator) RiskDistributionChart(report *Report) ([]byte, error) {
	if report == nil {
		return nil, errNoChartData
	}

	levels := riskDistribution(&report.Details)
	values := []float64{
		float64(levels[RiskHigh]),
		float64(levels[RiskMedium]),
		float64(levels[RiskLow]),
	}
	if values[0]+values[1]+values[2] == 0 {
		return nil, errNoChartData
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{
			Text: "Findings by risk level",
			Left: charts.PositionCenter,
		}),
		charts.LegendOptionFunc(charts.LegendOption{
			Orient: charts.OrientVertical,
			Data:   []string{"High", "Medium", "Low"},
			Left:   charts.PositionLeft,
		}),
		charts.PieSeriesShowLabel(),
		charts.ThemeOptionFunc(cg.theme),
		charts.WidthOptionFunc(600),
		charts.HeightOptionFunc(400),
		charts.PaddingOptionFunc(charts.Box{
			Top:    20,
			Right:  20,
			Bottom: 20,
			Left:   20,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render risk chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// PriceHistoryChart renders a line chart of a material's monthly unit price.
// Months without a purchase are plotted at their reported price.
func (cg *ChartGenerator) PriceHistoryChart(material MaterialEntry) ([]byte, error) {
	if len(material.History) == 0 {
		return nil, errNoChartData
	}

	months := make([]string, 0, len(material.History))
	prices := make([]float64, 0, len(material.History))
	for _, point := range material.History {
		months = append(months, point.Month)
		prices = append(prices, point.UnitPrice)
	}

	p, err := charts.LineRender(
		[][]float64{prices},
		charts.TitleTextOptionFunc(fmt.Sprintf("Unit price: %s (%s)", material.Code, material.Supplier)),
		charts.XAxisDataOptionFunc(months),
		charts.LegendLabelsOptionFunc([]string{"Unit price"}, charts.PositionRight),
		charts.ThemeOptionFunc(cg.theme),
		charts.WidthOptionFunc(800),
		charts.HeightOptionFunc(400),
		charts.PaddingOptionFunc(charts.Box{
			Top:    20,
			Right:  20,
			Bottom: 20,
			Left:   20,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render price history chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// embedPNG encodes a rendered chart for an HTML data URI
func embedPNG(png []byte) string {
	return base64.StdEncoding.EncodeToString(png)
}

// riskDistribution counts detail rows of every rule by risk level
func riskDistribution(d *Details) map[RiskLevel]int {
	levels := make(map[RiskLevel]int, 3)
	for _, row := range d.Rule1 {
		levels[row.RiskLevel]++
	}
	for _, row := range d.Rule2 {
		levels[row.RiskLevel]++
	}
	for _, row := range d.Rule3 {
		levels[row.RiskLevel]++
	}
	for _, row := range d.Rule4 {
		levels[row.RiskLevel]++
	}
	for _, row := range d.Rule5 {
		levels[row.RiskLevel]++
	}
	return levels
}
