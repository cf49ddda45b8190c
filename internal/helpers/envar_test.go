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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBoolEnv(t *testing.T) {
	const envVar = "COMPANYGEN_TEST_BOOL"

	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{"true lowercase", "true", false, true},
		{"true uppercase", "TRUE", false, true},
		{"1", "1", false, true},
		{"yes", "yes", false, true},
		{"on", "ON", false, true},
		{"enabled", "Enabled", false, true},
		{"false lowercase", "false", true, false},
		{"false mixed case", "False", true, false},
		{"0", "0", true, false},
		{"no", "NO", true, false},
		{"off", "off", true, false},
		{"disabled", "disabled", true, false},
		{"true with spaces", "  true  ", false, true},
		{"false with tabs", "\tfalse\t", true, false},
		{"empty uses default true", "", true, true},
		{"empty uses default false", "", false, false},
		{"whitespace uses default", "   ", true, true},
		{"unknown is true", "maybe", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envVar, tt.envValue)
			assert.Equal(t, tt.expected, GetBoolEnv(envVar, tt.defaultValue))
		})
	}
}

func TestAnyBoolEnv(t *testing.T) {
	t.Setenv("COMPANYGEN_TEST_A", "")
	t.Setenv("COMPANYGEN_TEST_B", "false")
	assert.False(t, AnyBoolEnv("COMPANYGEN_TEST_A", "COMPANYGEN_TEST_B"))

	t.Setenv("COMPANYGEN_TEST_B", "1")
	assert.True(t, AnyBoolEnv("COMPANYGEN_TEST_A", "COMPANYGEN_TEST_B"))
	assert.False(t, AnyBoolEnv())
}

func TestFirstEnv(t *testing.T) {
	t.Setenv("COMPANYGEN_TEST_A", " ")
	t.Setenv("COMPANYGEN_TEST_B", "svc")
	t.Setenv("COMPANYGEN_TEST_C", "other")
	assert.Equal(t, "svc", FirstEnv("COMPANYGEN_TEST_A", "COMPANYGEN_TEST_B", "COMPANYGEN_TEST_C"))
	assert.Equal(t, "", FirstEnv("COMPANYGEN_TEST_A"))
}

func TestDiskUsage(t *testing.T) {
	u, err := DiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, u.TotalBytes)
	assert.LessOrEqual(t, u.FreeBytes, u.TotalBytes)
	assert.Equal(t, u.TotalBytes-u.FreeBytes, u.UsedBytes)

	_, err = DiskUsage(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFreeFraction(t *testing.T) {
	dir := t.TempDir()
	u, err := DiskUsage(dir)
	require.NoError(t, err)

	none, err := FreeFraction(dir, -1)
	require.NoError(t, err)
	assert.Zero(t, none)

	all, err := FreeFraction(dir, 2)
	require.NoError(t, err)
	assert.InDelta(t, float64(u.FreeBytes), float64(all), float64(u.FreeBytes)/100+1)
}

func TestCleanStaleTemp(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "companygen-duckdb-old")
	fresh := filepath.Join(dir, "companygen-duckdb-fresh")
	other := filepath.Join(dir, "unrelated")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.Mkdir(p, 0o755))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	assert.Equal(t, 1, CleanStaleTemp(dir, "companygen-duckdb-*", time.Hour))

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}
