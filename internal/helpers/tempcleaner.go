// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CleanStaleTemp removes entries in dir matching pattern that were last
// modified more than olderThan ago. Scratch directories of killed runs
// are left behind otherwise. It returns the number of entries removed.
func CleanStaleTemp(dir, pattern string, olderThan time.Duration) int {
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		slog.Info("Failed to scan temp dir (ignoring)", slog.String("path", dir), slog.Any("error", err))
		return 0
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil || st.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			slog.Info("Failed to remove stale temp entry (ignoring)", slog.String("path", path), slog.Any("error", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Removed stale temp entries", slog.String("path", dir), slog.Int("count", removed))
	}
	return removed
}
