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

package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/companygen/internal/companyfile"
	"github.com/cardinalhq/companygen/internal/relation"
	"github.com/cardinalhq/companygen/internal/sampler"
)

type stageOutput struct {
	counts []relation.CountryCount
	ids    []int64
	table  *relation.Table
}

func runStages(t *testing.T, e Engine, path string, limit int64, policy relation.Policy) stageOutput {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Load(ctx, path, limit))
	counts, err := e.TopCountries(ctx, relation.DefaultTopCountries, policy)
	require.NoError(t, err)
	ids, err := e.SelectCompanies(ctx, relation.CountryNames(counts), policy)
	require.NoError(t, err)
	persons, assignments, err := sampler.Sample(sampler.NewRand(37),
		sampler.Options{NumPersons: 200, NumPositions: 300, Dedup: policy.DedupAssignments}, ids)
	require.NoError(t, err)
	table, err := e.Assemble(ctx, persons, assignments)
	require.NoError(t, err)
	require.Equal(t, assignments.Len(), table.NumRows())
	return stageOutput{counts: counts, ids: ids, table: table}
}

// TestBackendOutputComparison runs identical input through every backend
// and verifies the outputs are identical row by row.
func TestBackendOutputComparison(t *testing.T) {
	gen, err := companyfile.NewSyntheticGenerator(sampler.NewRand(99), companyfile.SyntheticOptions{
		Rows:         3000,
		Countries:    15,
		NullFraction: 0.05,
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "synthetic.parquet")
	require.NoError(t, companyfile.WriteFile(context.Background(), path, companyfile.DatasetLayout, gen.Rows()))

	tests := []struct {
		name   string
		limit  int64
		policy relation.Policy
	}{
		{"default", 0, relation.Policy{}},
		{"limit", 1000, relation.Policy{}},
		{"strict", 0, relation.Policy{RequireYearFounded: true, DedupAssignments: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reference stageOutput
			var referenceName string
			for _, typ := range AllTypes() {
				e := newTestEngine(t, typ)
				out := runStages(t, e, path, tt.limit, tt.policy)
				if referenceName == "" {
					reference, referenceName = out, e.Name()
					require.Len(t, out.counts, relation.DefaultTopCountries)
					continue
				}
				assert.Equal(t, reference.counts, out.counts, "%s vs %s: country ranking", referenceName, e.Name())
				assert.Equal(t, reference.ids, out.ids, "%s vs %s: final companies", referenceName, e.Name())
				assert.Equal(t, -1, reference.table.Diff(out.table), "%s vs %s: first differing row", referenceName, e.Name())
				assert.True(t, reference.table.Equal(out.table))
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range AllTypes() {
		got, err := ParseType(" " + string(typ) + " ")
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	got, err := ParseType("DuckDB")
	require.NoError(t, err)
	assert.Equal(t, TypeDuckDB, got)

	_, err = ParseType("polars")
	require.Error(t, err)

	types, err := ParseTypes([]string{"arrow", "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, []Type{TypeArrow, TypeSQLite}, types)

	_, err = ParseTypes([]string{"arrow", "arrow"})
	require.Error(t, err)

	_, err = New(Type("nope"), Config{})
	require.Error(t, err)
}
