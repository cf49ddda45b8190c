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

package relation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"year founded", "year_founded"},
		{"Country", "country"},
		{"Current Employee Estimate", "current_employee_estimate"},
		{"", ""},
		{"Unnamed: 0", "unnamed:_0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeColumnName(tt.in), tt.in)
	}
}

func TestResolveSchema(t *testing.T) {
	t.Run("kaggle layout", func(t *testing.T) {
		s, err := ResolveSchema("x.parquet", []string{"", "name", "domain", "year founded", "locality", "country"})
		require.NoError(t, err)
		assert.Equal(t, []string{"company_id", "name", "domain", "year_founded", "locality", "country"}, s.Normalized)
		idx, ok := s.Index(ColCompanyID)
		require.True(t, ok)
		assert.Equal(t, 0, idx)
		assert.Equal(t, "year founded", s.SourceName(ColYearFounded))
		assert.Equal(t, []string{"name", "domain"}, s.Passthrough())
	})

	t.Run("id column not first", func(t *testing.T) {
		s, err := ResolveSchema("", []string{"name", "country", "locality", "Year Founded", "__index_level_0__"})
		require.NoError(t, err)
		idx, ok := s.Index(ColCompanyID)
		require.True(t, ok)
		assert.Equal(t, 4, idx)
		assert.Equal(t, "__index_level_0__", s.SourceName(ColCompanyID))
	})

	t.Run("missing columns", func(t *testing.T) {
		_, err := ResolveSchema("in.parquet", []string{"name", "country"})
		var se *SchemaError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, []string{"company_id", "locality", "year_founded"}, se.Missing)
		assert.Contains(t, err.Error(), "in.parquet")
	})

	t.Run("two id columns", func(t *testing.T) {
		_, err := ResolveSchema("", []string{"company_id", "c0", "country", "locality", "year_founded"})
		var se *SchemaError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, []string{"company_id"}, se.Duplicate)
	})

	t.Run("names colliding after normalization", func(t *testing.T) {
		_, err := ResolveSchema("", []string{"company_id", "Country", "country", "locality", "year_founded"})
		var se *SchemaError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, []string{"country"}, se.Duplicate)
	})
}

func TestCheckInput(t *testing.T) {
	dir := t.TempDir()

	err := CheckInput(filepath.Join(dir, "missing.parquet"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputNotFound))
	assert.True(t, IsNotExist(err))

	err = CheckInput(dir)
	assert.ErrorIs(t, err, ErrInputNotFound)

	err = CheckInput("")
	assert.ErrorIs(t, err, ErrInputNotFound)

	path := filepath.Join(dir, "present.parquet")
	require.NoError(t, os.WriteFile(path, []byte("PAR1"), 0o644))
	assert.NoError(t, CheckInput(path))
}
