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
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

var (
	version = "dev"
	commit  = "unknown"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the version details shown by the version command and /health
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		Commit:    commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetVersion returns the application version
func GetVersion() string {
	if version != "dev" {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				if len(setting.Value) > 7 {
					return setting.Value[:7]
				}
				return setting.Value
			}
		}
	}

	if commit != "unknown" {
		if len(commit) > 7 {
			return commit[:7]
		}
		return commit
	}

	return "dev"
}

// GetUserAgent returns the user agent string for outgoing requests
func GetUserAgent() string {
	return fmt.Sprintf("matthewgall/purchasewatch %s", GetVersion())
}

// GitHubRelease represents a GitHub release
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Name    string `json:"name"`
}

// CheckForUpdates tells the user when releaseURL publishes a newer release.
// An empty releaseURL disables the check.
func CheckForUpdates(ctx context.Context, logger *Logger, releaseURL string) {
	if releaseURL == "" {
		return
	}

	currentVersion := GetVersion()
	if currentVersion == "dev" || !strings.HasPrefix(currentVersion, "v") {
		logger.Debug("Skipping update check for development build")
		return
	}

	release, err := fetchLatestRelease(ctx, releaseURL)
	if err != nil {
		logger.Debug("Failed to check for updates", "error", err)
		return
	}

	if release.TagName != "" && isNewerVersion(release.TagName, currentVersion) {
		logger.UserMessage("\n╔══════════════════════════════════════════════════════════════╗")
		logger.UserMessage("║  A new version of purchasewatch is available!                ║")
		logger.UserMessage("║  Current: %-51s║", currentVersion)
		logger.UserMessage("║  Latest:  %-51s║", release.TagName)
		logger.UserMessage("║  Download: %-50s║", release.HTMLURL)
		logger.UserMessage("╚══════════════════════════════════════════════════════════════╝\n")
	}
}

// fetchLatestRelease reads a GitHub style latest release document
func fetchLatestRelease(ctx context.Context, releaseURL string) (*GitHubRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build update request: %w", err)
	}
	req.Header.Set("User-Agent", GetUserAgent())
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &release, nil
}

// isNewerVersion compares dotted versions numerically, ignoring a leading v
// and any pre-release suffix
func isNewerVersion(latest, current string) bool {
	latestParts := versionParts(latest)
	currentParts := versionParts(current)

	for i := 0; i < len(latestParts) && i < len(currentParts); i++ {
		if latestParts[i] != currentParts[i] {
			return latestParts[i] > currentParts[i]
		}
	}
	return len(latestParts) > len(currentParts)
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}

	var parts []int
	for _, p := range strings.Split(v, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	return parts
}
