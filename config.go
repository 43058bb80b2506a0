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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Output formats understood by the analyze command
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatXLSX     = "xlsx"
)

var outputFormats = []string{FormatMarkdown, FormatHTML, FormatJSON, FormatCSV, FormatXLSX}

// Config holds the application configuration
type Config struct {
	// Input data set (.csv, .xlsx or .json)
	InputPath string `yaml:"input_path"`

	// Analysis period. Empty values are derived from the data set.
	AnalysisMonth string `yaml:"analysis_month"` // YYYY-MM
	AnalysisDate  string `yaml:"analysis_date"`  // YYYY-MM-DD, used by the contract rule

	// Rule parameters
	Thresholds Thresholds `yaml:"thresholds"`

	// Output
	OutputFormat string `yaml:"output_format"`
	OutputPath   string `yaml:"output_path"`
	DisplayLimit int    `yaml:"display_limit"`

	// Storage
	StoragePath string        `yaml:"storage_path"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`

	// HTTP server
	ListenAddr string `yaml:"listen_addr"`

	// Release feed checked for newer versions; empty disables the check
	UpdateURL string `yaml:"update_url"`

	// Debugging
	Debug    bool `yaml:"debug"`
	JSONLogs bool `yaml:"json_logs"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	return &Config{
		Thresholds:   DefaultThresholds(),
		OutputFormat: FormatMarkdown,
		DisplayLimit: DefaultDisplayLimit,
		StoragePath:  getDefaultStoragePath(),
		CacheTTL:     24 * time.Hour,
		ListenAddr:   ":3000",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	// If no path provided, return defaults with env var overrides
	if path == "" {
		config.applyEnvironmentVariables()
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// A missing default config file is not an error
		if errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
			config.applyEnvironmentVariables()
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentVariables()

	return config, nil
}

// getDefaultStoragePath returns the default storage path
func getDefaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".purchasewatch"
	}
	return filepath.Join(home, ".config", "purchasewatch")
}

// applyEnvironmentVariables overrides config with environment variables
func (c *Config) applyEnvironmentVariables() {
	if val := os.Getenv("PURCHASEWATCH_INPUT"); val != "" {
		c.InputPath = val
	}
	if val := os.Getenv("PURCHASEWATCH_ANALYSIS_MONTH"); val != "" {
		c.AnalysisMonth = val
	}
	if val := os.Getenv("PURCHASEWATCH_ANALYSIS_DATE"); val != "" {
		c.AnalysisDate = val
	}
	if val := os.Getenv("PURCHASEWATCH_STORAGE_PATH"); val != "" {
		c.StoragePath = val
	}
	if val := os.Getenv("PURCHASEWATCH_LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}
	if val := os.Getenv("PURCHASEWATCH_UPDATE_URL"); val != "" {
		c.UpdateURL = val
	}
	if val := os.Getenv("PURCHASEWATCH_DEBUG"); val == "true" || val == "1" {
		c.Debug = true
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var problems ConfigurationErrors

	if _, err := c.analysisMonth(); err != nil {
		problems = append(problems, &ConfigurationError{Field: "analysis_month", Message: "must be in YYYY-MM format"})
	}
	if _, err := c.analysisDate(); err != nil {
		problems = append(problems, &ConfigurationError{Field: "analysis_date", Message: "must be in YYYY-MM-DD format"})
	}

	if !isOutputFormat(c.OutputFormat) {
		problems = append(problems, &ConfigurationError{
			Field:   "output_format",
			Message: fmt.Sprintf("must be one of %v", outputFormats),
		})
	}

	if c.DisplayLimit < 1 {
		problems = append(problems, &ConfigurationError{Field: "display_limit", Message: "must be at least 1"})
	}

	if c.CacheTTL < 0 {
		problems = append(problems, &ConfigurationError{Field: "cache_ttl", Message: "must not be negative"})
	}

	if err := c.Thresholds.Validate(); err != nil {
		var thresholdProblems ConfigurationErrors
		var single *ConfigurationError
		switch {
		case errors.As(err, &thresholdProblems):
			problems = append(problems, thresholdProblems...)
		case errors.As(err, &single):
			problems = append(problems, single)
		default:
			return err
		}
	}

	// Set default storage path if empty
	if c.StoragePath == "" {
		c.StoragePath = getDefaultStoragePath()
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// AnalysisOptions converts the configuration into analyzer options
func (c *Config) AnalysisOptions() (AnalysisOptions, error) {
	month, err := c.analysisMonth()
	if err != nil {
		return AnalysisOptions{}, &ConfigurationError{Field: "analysis_month", Message: err.Error()}
	}
	date, err := c.analysisDate()
	if err != nil {
		return AnalysisOptions{}, &ConfigurationError{Field: "analysis_date", Message: err.Error()}
	}
	return AnalysisOptions{
		Thresholds:    c.Thresholds,
		AnalysisMonth: month,
		AnalysisDate:  date,
	}, nil
}

func (c *Config) analysisMonth() (time.Time, error) {
	if c.AnalysisMonth == "" {
		return time.Time{}, nil
	}
	return time.Parse(monthLayout, c.AnalysisMonth)
}

func (c *Config) analysisDate() (time.Time, error) {
	if c.AnalysisDate == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, c.AnalysisDate)
}

func isOutputFormat(format string) bool {
	for _, f := range outputFormats {
		if f == format {
			return true
		}
	}
	return false
}
