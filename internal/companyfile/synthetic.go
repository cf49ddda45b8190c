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
	"fmt"
	"math/rand/v2"
	"strings"
)

// SyntheticOptions controls synthetic company generation.
type SyntheticOptions struct {
	Rows int
	// Countries is how many distinct countries to draw from.
	Countries int
	// NullFraction is the probability that each nullable attribute is null.
	NullFraction float64
}

var (
	syntheticCountries = []string{
		"united states", "united kingdom", "india", "canada", "brazil",
		"france", "australia", "netherlands", "germany", "spain",
		"italy", "mexico", "south africa", "belgium", "sweden",
		"switzerland", "china", "argentina", "denmark", "ireland",
		"new zealand", "norway", "singapore", "japan", "poland",
	}
	syntheticCities = []string{
		"springfield", "riverside", "fairview", "madison", "georgetown",
		"franklin", "clinton", "salem", "greenville", "bristol",
	}
	syntheticIndustries = []string{
		"information technology and services", "hospital & health care",
		"construction", "education management", "retail",
		"financial services", "accounting", "computer software",
		"automotive", "marketing and advertising",
	}
	syntheticSizes = []string{
		"1 - 10", "11 - 50", "51 - 200", "201 - 500", "501 - 1000",
		"1001 - 5000", "5001 - 10000", "10001+",
	}
)

// SyntheticGenerator creates company rows in the public dataset layout.
// Country frequencies follow a Zipf distribution so the ranking has a
// clear head and a long tail.
type SyntheticGenerator struct {
	rand *rand.Rand
	zipf *rand.Zipf
	opts SyntheticOptions
}

// NewSyntheticGenerator returns a generator drawing from rng.
func NewSyntheticGenerator(rng *rand.Rand, opts SyntheticOptions) (*SyntheticGenerator, error) {
	if opts.Rows < 0 {
		return nil, fmt.Errorf("rows must not be negative")
	}
	if opts.Countries <= 0 || opts.Countries > len(syntheticCountries) {
		return nil, fmt.Errorf("countries must be between 1 and %d", len(syntheticCountries))
	}
	if opts.NullFraction < 0 || opts.NullFraction >= 1 {
		return nil, fmt.Errorf("null fraction must be in [0, 1)")
	}
	return &SyntheticGenerator{
		rand: rng,
		zipf: rand.NewZipf(rng, 1.2, 1, uint64(opts.Countries-1)),
		opts: opts,
	}, nil
}

// Rows generates opts.Rows companies with ids 0..Rows-1.
func (g *SyntheticGenerator) Rows() []map[string]any {
	rows := make([]map[string]any, g.opts.Rows)
	for i := range rows {
		rows[i] = g.row(int64(i))
	}
	return rows
}

func (g *SyntheticGenerator) row(id int64) map[string]any {
	country := syntheticCountries[g.zipf.Uint64()]
	city := syntheticCities[g.rand.IntN(len(syntheticCities))]
	name := fmt.Sprintf("company %d", id)
	employees := int64(g.rand.IntN(10000))

	row := map[string]any{
		SourceID:               id,
		SourceName:             name,
		SourceDomain:           strings.ReplaceAll(name, " ", "") + ".com",
		SourceIndustry:         syntheticIndustries[g.rand.IntN(len(syntheticIndustries))],
		SourceSizeRange:        syntheticSizes[g.rand.IntN(len(syntheticSizes))],
		SourceLinkedinURL:      "linkedin.com/company/" + strings.ReplaceAll(name, " ", "-"),
		SourceCurrentEmployees: employees,
		SourceTotalEmployees:   employees + int64(g.rand.IntN(1000)),
	}
	if !g.null() {
		row[SourceCountry] = country
	}
	if !g.null() {
		row[SourceLocality] = city + ", " + country
	}
	if !g.null() {
		row[SourceYearFounded] = float64(1900 + g.rand.IntN(120))
	}
	return row
}

func (g *SyntheticGenerator) null() bool {
	return g.opts.NullFraction > 0 && g.rand.Float64() < g.opts.NullFraction
}
