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

// Package resultstats summarizes a generated table.
package resultstats

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/axiomhq/hyperloglog"

	"github.com/cardinalhq/companygen/internal/relation"
)

// DefaultQuantiles are the age quantiles reported by Compute.
var DefaultQuantiles = []float64{0.5, 0.9, 0.99}

// Quantile is one estimated quantile of a distribution.
type Quantile struct {
	Q     float64 `yaml:"q"`
	Value float64 `yaml:"value"`
}

// CountryRows is the number of result rows in one country.
type CountryRows struct {
	Country string `yaml:"country"`
	Rows    int    `yaml:"rows"`
}

// Stats summarizes a result table. Distinct counts are HyperLogLog
// estimates and age quantiles come from a DDSketch with 1% relative error.
type Stats struct {
	Rows              int           `yaml:"rows"`
	DistinctPersons   uint64        `yaml:"distinct_persons"`
	DistinctCompanies uint64        `yaml:"distinct_companies"`
	MinAge            int64         `yaml:"min_age"`
	MaxAge            int64         `yaml:"max_age"`
	AgeQuantiles      []Quantile    `yaml:"age_quantiles"`
	Countries         []CountryRows `yaml:"countries"`
}

func hashKey(buf []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(buf[:0], uint64(v))
}

// Compute scans t once.
func Compute(t *relation.Table) (*Stats, error) {
	s := &Stats{Rows: t.NumRows()}
	if s.Rows == 0 {
		return s, nil
	}

	persons := hyperloglog.New14()
	companies := hyperloglog.New14()
	ages, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return nil, fmt.Errorf("create age sketch: %w", err)
	}
	perCountry := make(map[string]int)

	s.MinAge, s.MaxAge = t.Age[0], t.Age[0]
	buf := make([]byte, 0, 8)
	for i := range s.Rows {
		persons.Insert(hashKey(buf, t.PersonID[i]))
		companies.Insert(hashKey(buf, t.CompanyID[i]))
		if err := ages.Add(float64(t.Age[i])); err != nil {
			return nil, fmt.Errorf("add age: %w", err)
		}
		s.MinAge = min(s.MinAge, t.Age[i])
		s.MaxAge = max(s.MaxAge, t.Age[i])
		perCountry[t.Country[i]]++
	}
	s.DistinctPersons = persons.Estimate()
	s.DistinctCompanies = companies.Estimate()

	values, err := ages.GetValuesAtQuantiles(DefaultQuantiles)
	if err != nil {
		return nil, fmt.Errorf("age quantiles: %w", err)
	}
	for i, q := range DefaultQuantiles {
		s.AgeQuantiles = append(s.AgeQuantiles, Quantile{Q: q, Value: values[i]})
	}

	for country, n := range perCountry {
		s.Countries = append(s.Countries, CountryRows{Country: country, Rows: n})
	}
	slices.SortFunc(s.Countries, func(a, b CountryRows) int {
		if c := cmp.Compare(b.Rows, a.Rows); c != 0 {
			return c
		}
		return cmp.Compare(a.Country, b.Country)
	})
	return s, nil
}

// Print writes the statistics as aligned text.
func (s *Stats) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "rows\t%d\n", s.Rows)
	fmt.Fprintf(tw, "distinct persons (est)\t%d\n", s.DistinctPersons)
	fmt.Fprintf(tw, "distinct companies (est)\t%d\n", s.DistinctCompanies)
	if s.Rows > 0 {
		fmt.Fprintf(tw, "age range\t[%d, %d]\n", s.MinAge, s.MaxAge)
	}
	for _, q := range s.AgeQuantiles {
		fmt.Fprintf(tw, "age p%g\t%.1f\n", q.Q*100, q.Value)
	}
	for _, c := range s.Countries {
		fmt.Fprintf(tw, "rows in %s\t%d\n", c.Country, c.Rows)
	}
	return tw.Flush()
}
