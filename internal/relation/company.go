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
	"cmp"
	"database/sql"
	"slices"
)

// DefaultTopCountries is how many countries the ranker keeps.
const DefaultTopCountries = 10

// Company is one row of the source company table.
type Company struct {
	// Row is the position of the company in the source file.
	Row         int64
	CompanyID   int64
	Name        sql.NullString
	Country     sql.NullString
	Locality    sql.NullString
	YearFounded sql.NullInt64
	// Extra holds the remaining columns keyed by normalized name.
	Extra map[string]any
}

// CountryCount is one group of the country ranking.
type CountryCount struct {
	Country string
	Count   int64
	// FirstRow is the file position of the first company in the group.
	FirstRow int64
}

// Policy holds the null-filter and dedup choices for a run. One value is
// passed to every stage so the predicates cannot drift between call sites.
type Policy struct {
	// RequireYearFounded drops companies without a founding year, both
	// before ranking and when selecting eligible companies.
	RequireYearFounded bool `mapstructure:"require_year_founded" yaml:"require_year_founded"`
	// DedupAssignments removes repeated (person_id, company_id) pairs.
	DedupAssignments bool `mapstructure:"dedup_assignments" yaml:"dedup_assignments"`
}

// RankCandidate reports whether c participates in the country ranking.
func (p Policy) RankCandidate(c *Company) bool {
	if !c.Country.Valid {
		return false
	}
	return !p.RequireYearFounded || c.YearFounded.Valid
}

// Eligible reports whether c belongs to the final companies given the set
// of ranked countries.
func (p Policy) Eligible(c *Company, inTop func(string) bool) bool {
	if !c.Country.Valid || !c.Locality.Valid {
		return false
	}
	if p.RequireYearFounded && !c.YearFounded.Valid {
		return false
	}
	return inTop(c.Country.String)
}

// SortCountryCounts orders groups by count descending, then by first
// appearance in the file.
func SortCountryCounts(counts []CountryCount) {
	slices.SortFunc(counts, func(a, b CountryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.FirstRow, b.FirstRow)
	})
}

// TopK returns the first k entries of counts, which must already be sorted.
func TopK(counts []CountryCount, k int) []CountryCount {
	if k <= 0 || len(counts) <= k {
		return counts
	}
	return counts[:k]
}

// CountryNames returns the country of every group, in ranking order.
func CountryNames(counts []CountryCount) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Country
	}
	return out
}

// FirstDuplicateID returns the smallest id that occurs more than once.
func FirstDuplicateID(ids []int64) (int64, bool) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return sorted[i], true
		}
	}
	return 0, false
}
