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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	runFilePrefix = "run_"
	runTimeLayout = "2006-01-02_15-04-05"
)

// RunRecord wraps a report with the metadata of the run that produced it.
// The report itself carries no run identity so that it stays reproducible.
type RunRecord struct {
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Source      string     `json:"source"`
	Thresholds  Thresholds `json:"thresholds"`
	Report      *Report    `json:"report"`
}

// NewRunRecord stamps a report with a fresh run id
func NewRunRecord(source string, thresholds Thresholds, report *Report) *RunRecord {
	return &RunRecord{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Thresholds:  thresholds,
		Report:      report,
	}
}

// Storage keeps run history and the data set cache on disk
type Storage struct {
	basePath string
	cache    *DatasetCache
	logger   *Logger
}

// NewStorage creates a new storage handler with caching
func NewStorage(basePath string, logger *Logger) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, &StorageError{
			Operation: "create_directory",
			Path:      basePath,
			Err:       err,
		}
	}

	cache, err := NewDatasetCache(basePath, logger)
	if err != nil {
		return nil, &StorageError{
			Operation: "initialize_cache",
			Path:      basePath,
			Err:       err,
		}
	}

	logger.Debug("Storage initialized", "path", basePath)

	return &Storage{
		basePath: basePath,
		cache:    cache,
		logger:   logger,
	}, nil
}

// SaveRun writes a run record and returns the file it was written to
func (s *Storage) SaveRun(run *RunRecord) (string, error) {
	if run == nil || run.Report == nil {
		return "", &StorageError{Operation: "save_run", Path: s.basePath, Err: fmt.Errorf("no report to save")}
	}

	filename := fmt.Sprintf("%s%s_%s.json", runFilePrefix, run.GeneratedAt.UTC().Format(runTimeLayout), shortRunID(run.RunID))
	path := filepath.Join(s.basePath, filename)

	s.logger.LogStorageOperation("save_run", path)

	return path, s.saveJSON(path, run)
}

// LoadLatestRun loads the most recent run, or nil when none was saved yet
func (s *Storage) LoadLatestRun() (*RunRecord, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}

	latest := filepath.Join(s.basePath, runs[len(runs)-1])
	s.logger.LogStorageOperation("load_latest_run", latest)

	var run RunRecord
	if err := s.loadJSON(latest, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists saved run files, oldest first
func (s *Storage) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, &StorageError{
			Operation: "list_directory",
			Path:      s.basePath,
			Err:       err,
		}
	}

	var runs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, runFilePrefix) || filepath.Ext(name) != ".json" {
			continue
		}
		runs = append(runs, name)
	}
	sort.Strings(runs)

	return runs, nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *Storage) saveJSON(path string, data interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return &StorageError{
			Operation: "create_file",
			Path:      path,
			Err:       err,
		}
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(data); err != nil {
		return &StorageError{
			Operation: "encode_json",
			Path:      path,
			Err:       err,
		}
	}

	return nil
}

func (s *Storage) loadJSON(path string, target interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return &StorageError{
			Operation: "open_file",
			Path:      path,
			Err:       err,
		}
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(target); err != nil {
		return &StorageError{
			Operation: "decode_json",
			Path:      path,
			Err:       err,
		}
	}

	return nil
}

// CachedDataset returns a previously parsed data set for an unchanged input file
func (s *Storage) CachedDataset(path string, info os.FileInfo) (*Dataset, bool) {
	return s.cache.Get(path, info)
}

// CacheDataset remembers a parsed data set for ttl
func (s *Storage) CacheDataset(path string, info os.FileInfo, data *Dataset, ttl time.Duration) error {
	return s.cache.Put(path, info, data, ttl)
}

// ClearCache drops every cached data set and returns how many were dropped
func (s *Storage) ClearCache() (int, error) {
	s.logger.LogStorageOperation("clear_cache", s.cache.filePath)
	return s.cache.Clear()
}

// CacheStats returns the number of cached data sets and how many have expired
func (s *Storage) CacheStats() (total int, expired int) {
	return s.cache.Stats()
}

// CachedDatasets describes every cached data set
func (s *Storage) CachedDatasets() []DatasetCacheInfo {
	return s.cache.List()
}

// Close closes all storage resources
func (s *Storage) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}
