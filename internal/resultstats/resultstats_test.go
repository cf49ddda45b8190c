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

package resultstats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/companygen/internal/relation"
)

func TestCompute(t *testing.T) {
	table := relation.NewTable(1000)
	for i := range 1000 {
		table.Append(relation.ResultRow{
			PersonID:  int64(i%250 + 1),
			CompanyID: int64(i%40 + 100),
			Locality:  "x",
			Country:   []string{"us", "us", "uk", "de"}[i%4],
			Age:       int64(25 + i%40),
		})
	}

	s, err := Compute(table)
	require.NoError(t, err)
	assert.Equal(t, 1000, s.Rows)
	assert.InDelta(t, 250, float64(s.DistinctPersons), 10)
	assert.InDelta(t, 40, float64(s.DistinctCompanies), 2)
	assert.Equal(t, int64(25), s.MinAge)
	assert.Equal(t, int64(64), s.MaxAge)

	require.Len(t, s.AgeQuantiles, len(DefaultQuantiles))
	assert.InDelta(t, 44.5, s.AgeQuantiles[0].Value, 1.5)
	for i := 1; i < len(s.AgeQuantiles); i++ {
		assert.GreaterOrEqual(t, s.AgeQuantiles[i].Value, s.AgeQuantiles[i-1].Value)
	}

	assert.Equal(t, []CountryRows{{"us", 500}, {"de", 250}, {"uk", 250}}, s.Countries)

	var buf bytes.Buffer
	require.NoError(t, s.Print(&buf))
	assert.Contains(t, buf.String(), "rows in us")
	assert.Contains(t, buf.String(), "age p50")
}

func TestComputeEmpty(t *testing.T) {
	s, err := Compute(relation.NewTable(0))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Rows)
	assert.Empty(t, s.AgeQuantiles)

	var buf bytes.Buffer
	require.NoError(t, s.Print(&buf))
	assert.NotContains(t, buf.String(), "age range")
}
