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
	"sync"
	"time"
)

const datasetCacheFile = "cache_datasets.json"

// CachedDataset is one parsed input file together with the file state it was read from
type CachedDataset struct {
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Dataset   *Dataset  `json:"dataset"`
}

// fresh reports whether the entry was read from the file as it is now and has not expired
func (e *CachedDataset) fresh(info os.FileInfo, now time.Time) bool {
	return e.Size == info.Size() && e.ModTime.Equal(info.ModTime()) && now.Before(e.ExpiresAt)
}

// DatasetCacheInfo summarizes one cache entry for listings
type DatasetCacheInfo struct {
	Path      string    `json:"path"`
	Rows      int       `json:"rows"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}

// DatasetCache keeps parsed input files on disk, one entry per absolute path.
// Re-caching a path replaces its previous parse.
type DatasetCache struct {
	filePath string
	entries  map[string]*CachedDataset
	mutex    sync.RWMutex
	logger   *Logger
}

// NewDatasetCache opens the cache file under basePath, dropping expired entries
func NewDatasetCache(basePath string, logger *Logger) (*DatasetCache, error) {
	cache := &DatasetCache{
		filePath: filepath.Join(basePath, datasetCacheFile),
		entries:  make(map[string]*CachedDataset),
		logger:   logger,
	}

	if err := cache.load(); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to load cache, starting fresh", "error", err)
		}
	}

	if err := cache.cleanExpired(); err != nil {
		return nil, err
	}

	logger.Debug("Cache initialized", "path", cache.filePath, "entries", len(cache.entries))

	return cache, nil
}

// Get returns the cached parse of path when the file is unchanged and the entry is live
func (c *DatasetCache) Get(path string, info os.FileInfo) (*Dataset, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	key := cacheKey(path)
	entry, exists := c.entries[key]
	if !exists || entry.Dataset == nil {
		c.logger.Debug("Cache miss", "path", key)
		return nil, false
	}
	if !entry.fresh(info, time.Now()) {
		c.logger.Debug("Cache entry is stale", "path", key)
		return nil, false
	}

	c.logger.Debug("Cache hit", "path", key, "expires_in", time.Until(entry.ExpiresAt).Round(time.Second))
	return entry.Dataset, true
}

// Put stores the parse of path for ttl
func (c *DatasetCache) Put(path string, info os.FileInfo, data *Dataset, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	c.entries[cacheKey(path)] = &CachedDataset{
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
		Dataset:   data,
	}

	if err := c.save(); err != nil {
		return err
	}

	c.logger.Debug("Cache set", "path", path, "rows", len(data.Rows), "ttl", ttl)
	return nil
}

// Evict removes the entry of path
func (c *DatasetCache) Evict(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, cacheKey(path))
	return c.save()
}

// CleanExpired removes all expired entries
func (c *DatasetCache) CleanExpired() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.cleanExpired()
}

// cleanExpired must be called with the lock held
func (c *DatasetCache) cleanExpired() error {
	now := time.Now()
	removed := 0

	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("Cleaned expired cache entries", "count", removed)
		return c.save()
	}

	return nil
}

// Clear removes every entry and returns how many there were
func (c *DatasetCache) Clear() (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	count := len(c.entries)
	c.entries = make(map[string]*CachedDataset)

	if err := c.save(); err != nil {
		return 0, err
	}

	c.logger.Info("Cleared cache", "count", count)
	return count, nil
}

// Stats returns the number of entries and how many of them have expired
func (c *DatasetCache) Stats() (total int, expired int) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := time.Now()
	total = len(c.entries)

	for _, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			expired++
		}
	}

	return total, expired
}

// List describes every entry, sorted by path
func (c *DatasetCache) List() []DatasetCacheInfo {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := time.Now()
	infos := make([]DatasetCacheInfo, 0, len(c.entries))
	for path, entry := range c.entries {
		info := DatasetCacheInfo{
			Path:      path,
			CachedAt:  entry.CachedAt,
			ExpiresAt: entry.ExpiresAt,
			Expired:   !now.Before(entry.ExpiresAt),
		}
		if entry.Dataset != nil {
			info.Rows = len(entry.Dataset.Rows)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

func (c *DatasetCache) load() error {
	data, err := os.ReadFile(c.filePath)
	if err != nil {
		return err
	}

	var entries map[string]*CachedDataset
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal cache file: %w", err)
	}
	for key, entry := range entries {
		if entry != nil {
			c.entries[key] = entry
		}
	}

	return nil
}

func (c *DatasetCache) save() error {
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(c.filePath, data, 0644); err != nil {
		return &StorageError{Operation: "write_cache", Path: c.filePath, Err: err}
	}

	return nil
}

// Close drops expired entries before the process exits
func (c *DatasetCache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cleanExpired()
}

// cacheKey is the absolute form of an input path
func cacheKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
