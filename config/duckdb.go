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

package config

import (
	"fmt"
	"os"

	"github.com/cardinalhq/companygen/internal/duckdbx"
	"github.com/cardinalhq/companygen/internal/helpers"
)

// DuckDBConfig holds DuckDB-specific configuration
type DuckDBConfig struct {
	MemoryLimit          int64  `mapstructure:"memory_limit"`            // Memory limit in MB (0 = unlimited)
	TempDirectory        string `mapstructure:"temp_directory"`          // Directory for spill files
	MaxTempDirectorySize string `mapstructure:"max_temp_directory_size"` // Max size for temp directory
	PoolSize             int    `mapstructure:"pool_size"`               // Connection pool size
	Threads              int    `mapstructure:"threads"`                 // DuckDB worker threads
}

// DefaultDuckDBConfig returns default DuckDB configuration
func DefaultDuckDBConfig() DuckDBConfig {
	return DuckDBConfig{}
}

// GetTempDirectory returns the configured temp directory
// Defaults to os.TempDir() if not configured
func (c *DuckDBConfig) GetTempDirectory() string {
	if c.TempDirectory != "" {
		return c.TempDirectory
	}
	return os.TempDir()
}

// GetMaxTempDirectorySize returns the configured max temp directory size.
// Defaults to 90% of the free space on the temp directory's volume.
func (c *DuckDBConfig) GetMaxTempDirectorySize() string {
	if c.MaxTempDirectorySize != "" {
		return c.MaxTempDirectorySize
	}
	free, err := helpers.FreeFraction(c.GetTempDirectory(), 0.9)
	if err != nil {
		return ""
	}
	if gb := free / (1024 * 1024 * 1024); gb > 0 {
		return fmt.Sprintf("%dGB", gb)
	}
	return ""
}

// Settings converts the configuration to the options the DuckDB
// connector understands.
func (c *DuckDBConfig) Settings() duckdbx.DuckDBSettings {
	return duckdbx.DuckDBSettings{
		MemoryLimitMB:        c.MemoryLimit,
		TempDirectory:        c.TempDirectory,
		MaxTempDirectorySize: c.GetMaxTempDirectorySize(),
		PoolSize:             c.PoolSize,
		Threads:              c.Threads,
	}
}
