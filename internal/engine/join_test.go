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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cardinalhq/companygen/internal/relation"
)

func TestAgeLookup(t *testing.T) {
	dense := ageLookup(&relation.PersonAges{PersonID: []int64{1, 2, 3}, Age: []int64{30, 31, 32}})
	age, ok := dense(2)
	assert.True(t, ok)
	assert.Equal(t, int64(31), age)
	_, ok = dense(0)
	assert.False(t, ok)
	_, ok = dense(4)
	assert.False(t, ok)

	sparse := ageLookup(&relation.PersonAges{PersonID: []int64{10, 20}, Age: []int64{50, 60}})
	age, ok = sparse(20)
	assert.True(t, ok)
	assert.Equal(t, int64(60), age)
	_, ok = sparse(1)
	assert.False(t, ok)
}

func TestIDRange(t *testing.T) {
	ids := []int64{1, 3, 3, 3, 7}
	lo, hi := idRange(ids, 3)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 4, hi)
	lo, hi = idRange(ids, 4)
	assert.Equal(t, lo, hi)
	lo, hi = idRange(nil, 4)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)
}

func TestSortRows(t *testing.T) {
	table := relation.NewTable(3)
	table.Append(relation.ResultRow{PersonID: 2, CompanyID: 1, Locality: "b"})
	table.Append(relation.ResultRow{PersonID: 1, CompanyID: 9, Locality: "c"})
	table.Append(relation.ResultRow{PersonID: 1, CompanyID: 4, Locality: "a"})
	sortRows(table)
	assert.Equal(t, []int64{1, 1, 2}, table.PersonID)
	assert.Equal(t, []int64{4, 9, 1}, table.CompanyID)
	assert.Equal(t, []string{"a", "c", "b"}, table.Locality)
}

func TestRankSQL(t *testing.T) {
	q := rankSQL(10, relation.Policy{RequireYearFounded: true})
	assert.Contains(t, q, "year_founded IS NOT NULL")
	assert.Contains(t, q, "LIMIT 10")
	assert.NotContains(t, rankSQL(0, relation.Policy{}), "LIMIT")
	assert.NotContains(t, rankSQL(0, relation.Policy{}), "year_founded")
	assert.Equal(t, `"year founded"`, quoteIdent("year founded"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
