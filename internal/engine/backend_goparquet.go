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
	"cmp"
	"context"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/companygen/internal/companyfile"
	"github.com/cardinalhq/companygen/internal/relation"
)

// GoParquetEngine implements Engine on rows decoded by parquet-go.
type GoParquetEngine struct {
	config    Config
	companies []relation.Company
	final     *companyRows
}

var _ Engine = (*GoParquetEngine)(nil)

// NewGoParquetEngine creates a row-oriented engine.
func NewGoParquetEngine(cfg Config) *GoParquetEngine {
	return &GoParquetEngine{config: cfg}
}

// Name returns the backend name.
func (e *GoParquetEngine) Name() string {
	return string(TypeGoParquet)
}

// Load decodes every company of path into memory.
func (e *GoParquetEngine) Load(ctx context.Context, path string, limit int64) error {
	e.companies, e.final = nil, nil
	companies, _, err := companyfile.ReadAll(ctx, path, companyfile.Options{
		Limit:     limit,
		BatchSize: e.config.batchSize(),
	})
	if err != nil {
		return err
	}
	if companies == nil {
		companies = []relation.Company{}
	}
	ids := make([]int64, len(companies))
	for i := range companies {
		ids[i] = companies[i].CompanyID
	}
	if id, dup := relation.FirstDuplicateID(ids); dup {
		return &relation.DuplicateIDError{Path: path, ID: id}
	}
	e.companies = companies
	return nil
}

// TopCountries ranks the loaded companies by country.
func (e *GoParquetEngine) TopCountries(ctx context.Context, k int, policy relation.Policy) ([]relation.CountryCount, error) {
	if e.companies == nil {
		return nil, errNotLoaded
	}
	if err := validateTopK(k); err != nil {
		return nil, err
	}
	return RankCompanies(e.companies, k, policy), nil
}

// RankCompanies groups the rank candidates of companies by country and
// returns the first k groups in ranking order.
func RankCompanies(companies []relation.Company, k int, policy relation.Policy) []relation.CountryCount {
	groups := make(map[string]int)
	var counts []relation.CountryCount
	for i := range companies {
		c := &companies[i]
		if !policy.RankCandidate(c) {
			continue
		}
		idx, ok := groups[c.Country.String]
		if !ok {
			idx = len(counts)
			groups[c.Country.String] = idx
			counts = append(counts, relation.CountryCount{Country: c.Country.String, FirstRow: c.Row})
		}
		counts[idx].Count++
	}
	relation.SortCountryCounts(counts)
	return relation.TopK(counts, k)
}

// SelectCompanies keeps the eligible companies of the given countries.
func (e *GoParquetEngine) SelectCompanies(ctx context.Context, countries []string, policy relation.Policy) ([]int64, error) {
	if e.companies == nil {
		return nil, errNotLoaded
	}
	top := mapset.NewThreadUnsafeSet(countries...)

	var final []relation.Company
	for i := range e.companies {
		if policy.Eligible(&e.companies[i], top.ContainsOne) {
			final = append(final, e.companies[i])
		}
	}
	slices.SortStableFunc(final, func(a, b relation.Company) int {
		return cmp.Compare(a.CompanyID, b.CompanyID)
	})

	e.final = &companyRows{rows: final, idx: make([]int64, len(final))}
	for i := range final {
		e.final.idx[i] = final[i].CompanyID
	}
	return slices.Clone(e.final.idx), nil
}

// Assemble joins the assignments with the selected companies and persons.
func (e *GoParquetEngine) Assemble(ctx context.Context, persons *relation.PersonAges, assignments *relation.Assignments) (*relation.Table, error) {
	if e.final == nil {
		return nil, errNotSelected
	}
	out := relation.NewTable(assignments.Len())
	probe(out, e.final, ageLookup(persons), assignments, 0, assignments.Len())
	sortRows(out)
	return out, nil
}

// Close drops the loaded data.
func (e *GoParquetEngine) Close() error {
	e.companies, e.final = nil, nil
	return nil
}

type companyRows struct {
	rows []relation.Company
	idx  []int64
}

func (c *companyRows) ids() []int64          { return c.idx }
func (c *companyRows) locality(i int) string { return c.rows[i].Locality.String }
func (c *companyRows) country(i int) string  { return c.rows[i].Country.String }
