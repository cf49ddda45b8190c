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
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func company(id int64, country, locality string, year int64) Company {
	c := Company{CompanyID: id}
	if country != "" {
		c.Country = sql.NullString{String: country, Valid: true}
	}
	if locality != "" {
		c.Locality = sql.NullString{String: locality, Valid: true}
	}
	if year != 0 {
		c.YearFounded = sql.NullInt64{Int64: year, Valid: true}
	}
	return c
}

func TestSortCountryCountsTieBreak(t *testing.T) {
	counts := []CountryCount{
		{Country: "fr", Count: 2, FirstRow: 7},
		{Country: "us", Count: 5, FirstRow: 3},
		{Country: "de", Count: 2, FirstRow: 1},
		{Country: "uk", Count: 3, FirstRow: 0},
	}
	SortCountryCounts(counts)
	assert.Equal(t, []string{"us", "uk", "de", "fr"}, CountryNames(counts))
}

func TestTopK(t *testing.T) {
	counts := []CountryCount{{Country: "a"}, {Country: "b"}, {Country: "c"}}
	assert.Len(t, TopK(counts, 2), 2)
	assert.Len(t, TopK(counts, 10), 3)
	assert.Len(t, TopK(counts, 0), 3)
}

func TestPolicy(t *testing.T) {
	inTop := func(c string) bool { return c == "us" }

	noYear := company(1, "us", "nyc", 0)
	noCountry := company(2, "", "nyc", 1990)
	noLocality := company(3, "us", "", 1990)
	full := company(4, "us", "nyc", 1990)
	elsewhere := company(5, "uk", "london", 1990)

	lax := Policy{}
	assert.True(t, lax.RankCandidate(&noYear))
	assert.False(t, lax.RankCandidate(&noCountry))
	assert.True(t, lax.Eligible(&noYear, inTop))
	assert.False(t, lax.Eligible(&noLocality, inTop))
	assert.False(t, lax.Eligible(&noCountry, inTop))
	assert.False(t, lax.Eligible(&elsewhere, inTop))
	assert.True(t, lax.Eligible(&full, inTop))

	strict := Policy{RequireYearFounded: true}
	assert.False(t, strict.RankCandidate(&noYear))
	assert.False(t, strict.Eligible(&noYear, inTop))
	assert.True(t, strict.Eligible(&full, inTop))
}

func TestFirstDuplicateID(t *testing.T) {
	ids := []int64{9, 3, 7, 3, 9}
	id, ok := FirstDuplicateID(ids)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, []int64{9, 3, 7, 3, 9}, ids)

	_, ok = FirstDuplicateID([]int64{1, 2, 3})
	assert.False(t, ok)
	_, ok = FirstDuplicateID(nil)
	assert.False(t, ok)
}
