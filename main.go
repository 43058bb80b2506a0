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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "purchasewatch.yaml"

// globalOptions are the flags shared by every command
type globalOptions struct {
	configPath string
	debug      bool
	jsonLogs   bool
}

// analyzeOptions are the flags of the analyze and serve commands
type analyzeOptions struct {
	input   string
	output  string
	format  string
	month   string
	date    string
	narrate bool
	noSave  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	global := &globalOptions{}

	root := &cobra.Command{
		Use:          "purchasewatch",
		Short:        "Detect anomalies in monthly purchasing history",
		Long:         "purchasewatch runs five anomaly rules over monthly purchasing data and reports the materials that need review.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&global.configPath, "config", defaultConfigPath, "Path to configuration file")
	root.PersistentFlags().BoolVar(&global.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&global.jsonLogs, "json-logs", false, "Write logs as JSON")

	root.AddCommand(newAnalyzeCmd(global))
	root.AddCommand(newServeCmd(global))
	root.AddCommand(newCacheCmd(global))
	root.AddCommand(newVersionCmd())

	return root
}

func newAnalyzeCmd(global *globalOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a purchasing history file and write a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), global, opts)
		},
	}
	addAnalysisFlags(cmd, opts)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file for report (default: stdout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Report format: markdown, html, json, csv or xlsx")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not save the run to storage")

	return cmd
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &analyzeOptions{}
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API for a purchasing history file or the latest saved run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), global, opts, addr)
		},
	}
	addAnalysisFlags(cmd, opts)
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func newCacheCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the parsed input cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached input files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupStorage(global)
			if err != nil {
				return err
			}
			defer a.close()

			entries := a.storage.CachedDatasets()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
				return nil
			}
			for _, entry := range entries {
				state := "expires " + humanize.Time(entry.ExpiresAt)
				if entry.Expired {
					state = "expired"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s rows\t%s\n", entry.Path, humanize.Comma(int64(entry.Rows)), state)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupStorage(global)
			if err != nil {
				return err
			}
			defer a.close()

			cleared, err := a.storage.ClearCache()
			if err != nil {
				a.logger.Error("Failed to clear cache", "error", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d cached input file(s)\n", cleared)
			return nil
		},
	})

	return cmd
}

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := GetBuildInfo()
			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purchasewatch %s (%s, %s)\n", info.Version, info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")

	return cmd
}

func addAnalysisFlags(cmd *cobra.Command, opts *analyzeOptions) {
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Purchasing history file (.csv, .xlsx or .json)")
	cmd.Flags().StringVar(&opts.month, "month", "", "Analysis month, YYYY-MM (default: latest month in the data)")
	cmd.Flags().StringVar(&opts.date, "date", "", "Contract reference date, YYYY-MM-DD (default: first day of the analysis month)")
	cmd.Flags().BoolVar(&opts.narrate, "narrate", false, "Print a message as each analysis stage completes")
}

// app is everything a command needs after configuration is loaded
type app struct {
	config  *Config
	logger  *Logger
	storage *Storage
}

// setup loads the configuration and opens storage. needInput makes a missing
// input path a configuration error.
func setup(global *globalOptions, opts *analyzeOptions, needInput bool) (*app, error) {
	logger := newLogger(global.debug, global.jsonLogs)
	logger.Info("Starting purchasewatch", "version", GetVersion())

	logger.Info("Loading configuration", "config_file", global.configPath)
	config, err := LoadConfig(global.configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return nil, err
	}

	// Command-line flags win over the file and the environment
	if opts.input != "" {
		config.InputPath = opts.input
	}
	if opts.month != "" {
		config.AnalysisMonth = opts.month
	}
	if opts.date != "" {
		config.AnalysisDate = opts.date
	}
	if opts.format != "" {
		config.OutputFormat = opts.format
	}
	if opts.output != "" {
		config.OutputPath = opts.output
	}
	config.Debug = config.Debug || global.debug
	config.JSONLogs = config.JSONLogs || global.jsonLogs
	if config.Debug != global.debug || config.JSONLogs != global.jsonLogs {
		logger = newLogger(config.Debug, config.JSONLogs)
	}

	if err := config.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		return nil, err
	}
	if needInput && config.InputPath == "" {
		err := &ConfigurationError{Field: "input_path", Message: "an input file is required (--input or input_path)"}
		logger.Error("Configuration validation failed", "error", err)
		return nil, err
	}

	logger.Info("Initializing storage", "path", config.StoragePath)
	storage, err := NewStorage(config.StoragePath, logger)
	if err != nil {
		logger.Warn("Storage unavailable, continuing without cache or run history", "error", err)
		storage = nil
	}

	return &app{config: config, logger: logger, storage: storage}, nil
}

// setupStorage prepares an app for commands that only work on storage
func setupStorage(global *globalOptions) (*app, error) {
	a, err := setup(global, &analyzeOptions{}, false)
	if err != nil {
		return nil, err
	}
	if a.storage == nil {
		return nil, &StorageError{Operation: "open", Path: a.config.StoragePath, Err: fmt.Errorf("storage unavailable")}
	}
	return a, nil
}

func newLogger(debug, jsonLogs bool) *Logger {
	if jsonLogs {
		return NewJSONLogger(debug)
	}
	return NewLogger(debug)
}

func (a *app) close() {
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("Failed to close storage", "error", err)
		}
	}
}

// analyze loads the input and runs the pipeline once
func (a *app) analyze(ctx context.Context, narrate bool) (*Analyzer, *Dataset, AnalysisOptions, *Report, error) {
	collector := NewCollector(a.config, a.storage, a.logger)
	data, err := collector.Load(ctx, a.config.InputPath)
	if err != nil {
		a.logger.Error("Failed to load input", "error", err)
		return nil, nil, AnalysisOptions{}, nil, err
	}

	options, err := a.config.AnalysisOptions()
	if err != nil {
		return nil, nil, AnalysisOptions{}, nil, err
	}

	analyzer := NewAnalyzer(a.logger)
	if narrate {
		analyzer.OnStage(func(event StageEvent) {
			if event.Kind != StageFinished {
				return
			}
			if format, ok := StageNarration[event.Stage]; ok {
				a.logger.UserMessage(format, event.Count)
			}
		})
	}

	report, err := analyzer.Analyze(ctx, data, options)
	if err != nil {
		a.logger.Error("Failed to perform analysis", "error", err)
		return nil, nil, AnalysisOptions{}, nil, err
	}
	return analyzer, data, options, report, nil
}

func (a *app) saveRun(data *Dataset, options AnalysisOptions, report *Report) *RunRecord {
	run := NewRunRecord(data.Source, options.Thresholds, report)
	if a.storage == nil {
		return run
	}
	if _, err := a.storage.SaveRun(run); err != nil {
		a.logger.Warn("Failed to save run", "error", err)
	}
	return run
}

func runAnalyze(ctx context.Context, global *globalOptions, opts *analyzeOptions) error {
	a, err := setup(global, opts, true)
	if err != nil {
		return err
	}
	defer a.close()

	go CheckForUpdates(ctx, a.logger, a.config.UpdateURL)

	_, data, options, report, err := a.analyze(ctx, opts.narrate)
	if err != nil {
		return err
	}

	if !opts.noSave {
		a.saveRun(data, options, report)
	}

	reporter := NewReporter(a.logger, a.config.DisplayLimit)
	if err := reporter.GenerateReport(report, a.config.OutputFormat, a.config.OutputPath); err != nil {
		a.logger.Error("Failed to generate report", "error", err)
		return err
	}

	a.logger.Info("Analysis completed successfully")
	return nil
}

func runServe(ctx context.Context, global *globalOptions, opts *analyzeOptions, addr string) error {
	a, err := setup(global, opts, false)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := a.newServer(ctx, opts.narrate)
	if err != nil {
		return err
	}

	if addr == "" {
		addr = a.config.ListenAddr
	}
	if !a.config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	return server.Run(ctx, addr)
}

// newServer analyzes the configured input, or serves the latest saved run when
// no input is configured
func (a *app) newServer(ctx context.Context, narrate bool) (*Server, error) {
	if a.config.InputPath != "" {
		analyzer, data, options, report, err := a.analyze(ctx, narrate)
		if err != nil {
			return nil, err
		}
		run := a.saveRun(data, options, report)
		return NewServer(a.logger, analyzer, data, options, run, a.storage, a.config.DisplayLimit), nil
	}

	run, err := a.latestRun()
	if err != nil {
		return nil, err
	}
	options, err := a.config.AnalysisOptions()
	if err != nil {
		return nil, err
	}
	a.logger.Info("Serving saved run", "run_id", run.RunID, "generated_at", run.GeneratedAt, "source", run.Source)

	// Without a data set the analyze route answers 503
	return NewServer(a.logger, NewAnalyzer(a.logger), nil, options, run, a.storage, a.config.DisplayLimit), nil
}

// latestRun loads the most recent saved run
func (a *app) latestRun() (*RunRecord, error) {
	missing := &ConfigurationError{
		Field:   "input_path",
		Message: "an input file is required when no run has been saved (--input or input_path)",
	}
	if a.storage == nil {
		return nil, missing
	}

	run, err := a.storage.LoadLatestRun()
	if err != nil {
		a.logger.Error("Failed to load saved run", "error", err)
		return nil, err
	}
	if run == nil || run.Report == nil {
		return nil, missing
	}
	return run, nil
}
