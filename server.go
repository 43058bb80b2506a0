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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Server serves the latest report over HTTP and can re-run the analysis
type Server struct {
	logger       *Logger
	analyzer     *Analyzer
	data         *Dataset
	options      AnalysisOptions
	storage      *Storage // optional
	displayLimit int
	charts       *ChartGenerator

	mu  sync.RWMutex
	run *RunRecord
}

// NewServer creates a server for an already analyzed data set
func NewServer(logger *Logger, analyzer *Analyzer, data *Dataset, options AnalysisOptions, run *RunRecord, storage *Storage, displayLimit int) *Server {
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	return &Server{
		logger:       logger.WithComponent("server"),
		analyzer:     analyzer,
		data:         data,
		options:      options,
		storage:      storage,
		displayLimit: displayLimit,
		charts:       NewChartGenerator(),
		run:          run,
	}
}

// AnalyzeRequest overrides the analysis options for one re-run
type AnalyzeRequest struct {
	AnalysisMonth string      `json:"analysis_month"`
	AnalysisDate  string      `json:"analysis_date"`
	Thresholds    *Thresholds `json:"thresholds"`
}

// Routes builds the gin engine
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "purchasewatch",
			"version": GetVersion(),
		})
	})

	api := r.Group("/api")
	{
		report := api.Group("/report")
		{
			report.GET("", s.getReport)
			report.GET("/summary", s.getSummary)
			report.GET("/insights", s.getInsights)
			report.GET("/materials", s.getMaterials)
			report.GET("/materials/:code", s.getMaterial)
			report.GET("/materials/:code/price.png", s.priceChart)
			report.GET("/rules/:id", s.getRule)
			report.GET("/rules/:id/export.csv", s.exportRuleCSV)
			report.GET("/export.csv", s.exportCSV)
			report.GET("/export.xlsx", s.exportXLSX)
			report.GET("/charts/rules.png", s.ruleChart)
			report.GET("/charts/risk.png", s.riskChart)
		}

		api.GET("/runs", s.listRuns)
		api.POST("/analyze", s.analyze)
	}

	return r
}

// Run serves until ctx is cancelled, then drains open requests
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("HTTP server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// current returns the report being served, or writes 404 when there is none
func (s *Server) current(c *gin.Context) (*RunRecord, bool) {
	s.mu.RLock()
	run := s.run
	s.mu.RUnlock()

	if run == nil || run.Report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report available"})
		return nil, false
	}
	return run, true
}

func (s *Server) getReport(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, run.Report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Run-ID", run.RunID)
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

func (s *Server) getSummary(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       run.RunID,
		"generated_at": run.GeneratedAt,
		"source":       run.Source,
		"summary":      run.Report.Summary,
	})
}

func (s *Server) getInsights(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": run.Report.Insights})
}

func (s *Server) getMaterials(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}

	query := c.Query("q")
	materials := make([]MaterialEntry, 0, len(run.Report.Materials))
	for _, m := range run.Report.Materials {
		if matchesQuery(query, m.Code, m.Name, []string{m.Supplier}) {
			m.History = nil // served by /materials/:code
			materials = append(materials, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"total": len(materials), "materials": materials})
}

// materialSeries returns the series of :code, narrowed by ?supplier=, or writes 404
func materialSeries(c *gin.Context, report *Report) ([]MaterialEntry, bool) {
	code := c.Param("code")
	supplier := c.Query("supplier")

	var series []MaterialEntry
	for _, m := range report.Materials {
		if m.Code != code || (supplier != "" && m.Supplier != supplier) {
			continue
		}
		series = append(series, m)
	}
	if len(series) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown material %q", code)})
		return nil, false
	}
	return series, true
}

func (s *Server) getMaterial(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}
	series, ok := materialSeries(c, run.Report)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": c.Param("code"), "series": series})
}

func (s *Server) priceChart(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}
	series, ok := materialSeries(c, run.Report)
	if !ok {
		return
	}
	if len(series) > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "material has several suppliers, pick one with ?supplier="})
		return
	}
	s.writeChart(c, func() ([]byte, error) { return s.charts.PriceHistoryChart(series[0]) })
}

// ruleParam parses the :id path parameter
func ruleParam(c *gin.Context) (RuleID, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule id must be a number between 1 and 5"})
		return 0, false
	}
	if _, ok := LookupRule(RuleID(id)); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown rule %d", id)})
		return 0, false
	}
	return RuleID(id), true
}

func (s *Server) getRule(c *gin.Context) {
	rule, ok := ruleParam(c)
	if !ok {
		return
	}
	run, ok := s.current(c)
	if !ok {
		return
	}

	limit := s.displayLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative number"})
			return
		}
		limit = n // 0 returns every row
	}

	table := run.Report.Details.Table(rule, c.Query("q"), limit)
	rows := make([]map[string]interface{}, 0, len(table.Rows))
	for i, row := range table.Rows {
		entry := make(map[string]interface{}, len(row)+1)
		for col, v := range row {
			entry[table.Headers[col]] = v
		}
		entry["분석 의견"] = table.Advisories[i]
		rows = append(rows, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"rule":    run.Report.Summary.Rules[rule-1],
		"headers": table.Headers,
		"matched": table.Matched,
		"rows":    rows,
	})
}

func (s *Server) exportRuleCSV(c *gin.Context) {
	rule, ok := ruleParam(c)
	if !ok {
		return
	}
	run, ok := s.current(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := WriteRuleCSV(&buf, run.Report, rule, c.Query("q")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, RuleKey(rule)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) exportCSV(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, run.Report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="purchasewatch.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) exportXLSX(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, run.Report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="purchasewatch.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) ruleChart(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}
	s.writeChart(c, func() ([]byte, error) { return s.charts.RuleCountChart(run.Report) })
}

func (s *Server) riskChart(c *gin.Context) {
	run, ok := s.current(c)
	if !ok {
		return
	}
	s.writeChart(c, func() ([]byte, error) { return s.charts.RiskDistributionChart(run.Report) })
}

func (s *Server) writeChart(c *gin.Context, render func() ([]byte, error)) {
	png, err := render()
	if errors.Is(err, errNoChartData) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) listRuns(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []string{}})
		return
	}
	runs, err := s.storage.ListRuns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) analyze(c *gin.Context) {
	if s.data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data set loaded"})
		return
	}

	// Thresholds are decoded over the current ones so omitted keys keep their values.
	// An empty body re-runs with the current options.
	thresholds := s.options.Thresholds
	req := AnalyzeRequest{Thresholds: &thresholds}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	opts := s.options
	if req.Thresholds != nil {
		opts.Thresholds = *req.Thresholds
	}
	if req.AnalysisMonth != "" {
		month, err := time.Parse(monthLayout, req.AnalysisMonth)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "analysis_month must be in YYYY-MM format"})
			return
		}
		opts.AnalysisMonth = month
	}
	if req.AnalysisDate != "" {
		date, err := time.Parse(dateLayout, req.AnalysisDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "analysis_date must be in YYYY-MM-DD format"})
			return
		}
		opts.AnalysisDate = date
	}

	report, err := s.analyzer.Analyze(c.Request.Context(), s.data, opts)
	if err != nil {
		var configErrs ConfigurationErrors
		var configErr *ConfigurationError
		if errors.As(err, &configErrs) || errors.As(err, &configErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	run := NewRunRecord(s.data.Source, opts.Thresholds, report)
	if s.storage != nil {
		if _, err := s.storage.SaveRun(run); err != nil {
			s.logger.Warn("Failed to save run", "error", err)
		}
	}

	s.mu.Lock()
	s.run = run
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"run_id":  run.RunID,
		"summary": report.Summary,
	})
}
