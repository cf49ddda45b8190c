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
	"slices"
	"strings"
)

// Normalized names of the company columns the pipeline depends on.
const (
	ColCompanyID   = "company_id"
	ColName        = "name"
	ColCountry     = "country"
	ColLocality    = "locality"
	ColYearFounded = "year_founded"
)

// Result column names, in output order.
const (
	ColPersonID = "person_id"
	ColAge      = "age"
)

// ResultColumns is the fixed output schema of the pipeline.
var ResultColumns = []string{ColPersonID, ColCompanyID, ColLocality, ColCountry, ColAge}

// idAliases are the normalized names under which exporters store the
// row id column. pandas writes its index as __index_level_0__ or, after a
// CSV round trip, "unnamed:_0"; polars leaves it unnamed and DuckDB calls
// an unnamed CSV column c0 or column0.
var idAliases = []string{ColCompanyID, "", "c0", "column0", "unnamed:_0", "__index_level_0__"}

// NormalizeColumnName lower-cases a source column name and replaces spaces
// with underscores.
func NormalizeColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// SourceSchema maps the columns of a company file to their normalized names.
type SourceSchema struct {
	// Source holds the column names exactly as stored in the file.
	Source []string
	// Normalized holds the output names, with the id column renamed to company_id.
	Normalized []string

	index map[string]int
}

// ResolveSchema normalizes the given source column names and validates
// that the id column and the required attributes are present exactly once.
func ResolveSchema(path string, source []string) (*SourceSchema, error) {
	s := &SourceSchema{
		Source:     slices.Clone(source),
		Normalized: make([]string, len(source)),
		index:      make(map[string]int, len(source)),
	}

	idCol := -1
	var dups []string
	for i, name := range source {
		norm := NormalizeColumnName(name)
		if slices.Contains(idAliases, norm) {
			if idCol >= 0 {
				dups = append(dups, ColCompanyID)
				continue
			}
			idCol = i
			norm = ColCompanyID
		}
		if _, seen := s.index[norm]; seen {
			dups = append(dups, norm)
			continue
		}
		s.Normalized[i] = norm
		s.index[norm] = i
	}

	var missing []string
	for _, req := range []string{ColCompanyID, ColCountry, ColLocality, ColYearFounded} {
		if _, ok := s.index[req]; !ok {
			missing = append(missing, req)
		}
	}

	if len(missing) > 0 || len(dups) > 0 {
		slices.Sort(dups)
		return nil, &SchemaError{Path: path, Missing: missing, Duplicate: slices.Compact(dups)}
	}
	return s, nil
}

// Index returns the position of the column with the given normalized name.
func (s *SourceSchema) Index(normalized string) (int, bool) {
	i, ok := s.index[normalized]
	return i, ok
}

// SourceName returns the stored name of the column with the given
// normalized name, or "" if there is none.
func (s *SourceSchema) SourceName(normalized string) string {
	if i, ok := s.index[normalized]; ok {
		return s.Source[i]
	}
	return ""
}

// Passthrough returns the normalized names of the columns the pipeline
// carries along without interpreting.
func (s *SourceSchema) Passthrough() []string {
	out := make([]string, 0, len(s.Normalized))
	for _, n := range s.Normalized {
		switch n {
		case "", ColCompanyID, ColCountry, ColLocality, ColYearFounded:
			continue
		}
		out = append(out, n)
	}
	return out
}
