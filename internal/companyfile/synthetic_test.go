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

package companyfile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/companygen/internal/relation"
	"github.com/cardinalhq/companygen/internal/sampler"
)

func TestSyntheticGenerator(t *testing.T) {
	opts := SyntheticOptions{Rows: 500, Countries: 12, NullFraction: 0.1}
	g1, err := NewSyntheticGenerator(sampler.NewRand(7), opts)
	require.NoError(t, err)
	g2, err := NewSyntheticGenerator(sampler.NewRand(7), opts)
	require.NoError(t, err)

	rows := g1.Rows()
	require.Len(t, rows, 500)
	assert.Equal(t, rows, g2.Rows())

	countries := map[any]bool{}
	for i, r := range rows {
		assert.Equal(t, int64(i), r[SourceID])
		if c, ok := r[SourceCountry]; ok {
			countries[c] = true
		}
	}
	assert.LessOrEqual(t, len(countries), 12)
	assert.Greater(t, len(countries), 1)

	path := filepath.Join(t.TempDir(), "synthetic.parquet")
	require.NoError(t, WriteFile(context.Background(), path, DatasetLayout, rows))
	companies, _, err := ReadAll(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, companies, 500)
}

func TestSyntheticGeneratorOptions(t *testing.T) {
	rng := sampler.NewRand(1)
	_, err := NewSyntheticGenerator(rng, SyntheticOptions{Rows: 1, Countries: 0})
	require.Error(t, err)
	_, err = NewSyntheticGenerator(rng, SyntheticOptions{Rows: 1, Countries: 1000})
	require.Error(t, err)
	_, err = NewSyntheticGenerator(rng, SyntheticOptions{Rows: 1, Countries: 3, NullFraction: 1})
	require.Error(t, err)
	_, err = NewSyntheticGenerator(rng, SyntheticOptions{Rows: -1, Countries: 3})
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	path := writeFixture(t, DatasetLayout, []map[string]any{datasetRow(0, "us", "nyc", 1.0)})
	d, err := Describe(path)
	require.NoError(t, err)
	require.NoError(t, d.SchemaErr)
	assert.Equal(t, int64(1), d.NumRows)
	require.Len(t, d.Columns, len(DatasetLayout))

	roles := map[string]string{}
	for _, c := range d.Columns {
		roles[c.Normalized] = c.Role
		assert.True(t, c.Optional)
	}
	assert.Equal(t, RoleID, roles[relation.ColCompanyID])
	assert.Equal(t, RoleRequired, roles[relation.ColCountry])
	assert.Equal(t, RoleRequired, roles[relation.ColYearFounded])
	assert.Equal(t, RolePassthrough, roles["linkedin_url"])
}

func TestDescribeSchemaError(t *testing.T) {
	path := writeFixture(t, Layout{{"x", KindInt64}}, []map[string]any{{"x": int64(1)}})
	d, err := Describe(path)
	require.NoError(t, err)
	var se *relation.SchemaError
	require.ErrorAs(t, d.SchemaErr, &se)
	require.Len(t, d.Columns, 1)
	assert.Equal(t, RolePassthrough, d.Columns[0].Role)
}
