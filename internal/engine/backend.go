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

// Package engine runs the relational stages of dataset generation on
// interchangeable backends. Every backend loads the company file natively,
// ranks countries, filters eligible companies and joins sampled
// assignments, and must return identical results for identical input.
package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cardinalhq/companygen/internal/duckdbx"
	"github.com/cardinalhq/companygen/internal/relation"
)

// Engine is one relational backend. An engine holds the state of the most
// recent Load and SelectCompanies calls; it may be reused across runs but
// is not safe for concurrent use.
type Engine interface {
	// Name returns the backend name (e.g., "duckdb", "arrow").
	Name() string

	// Load reads the company file at path, keeping the first limit rows in
	// file order when limit > 0. It replaces any previously loaded data.
	Load(ctx context.Context, path string, limit int64) error

	// TopCountries returns the k countries with the most companies, by
	// count descending and then by first appearance in the file.
	TopCountries(ctx context.Context, k int, policy relation.Policy) ([]relation.CountryCount, error)

	// SelectCompanies keeps the companies eligible under policy whose
	// country is in countries, retains them for Assemble and returns their
	// ids in ascending order.
	SelectCompanies(ctx context.Context, countries []string, policy relation.Policy) ([]int64, error)

	// Assemble joins the assignments with the selected companies and the
	// persons and returns the rows sorted by (person_id, company_id).
	Assemble(ctx context.Context, persons *relation.PersonAges, assignments *relation.Assignments) (*relation.Table, error)

	// Close releases the engine's resources.
	Close() error
}

// Type identifies which backend implementation to use.
type Type string

const (
	// TypeDuckDB runs every stage as SQL inside an embedded DuckDB.
	TypeDuckDB Type = "duckdb"

	// TypeArrow loads Arrow columns through pqarrow and filters with
	// selection vectors.
	TypeArrow Type = "arrow"

	// TypeGoParquet decodes rows with parquet-go and works on Go structs.
	TypeGoParquet Type = "go-parquet"

	// TypeSQLite bulk inserts into an in-memory SQLite database and runs SQL.
	TypeSQLite Type = "sqlite"

	// DefaultType is the backend used when none is specified
	DefaultType = TypeDuckDB
)

// AllTypes returns every backend type in a stable order.
func AllTypes() []Type {
	return []Type{TypeDuckDB, TypeArrow, TypeGoParquet, TypeSQLite}
}

// ParseType converts a backend name to a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(AllTypes(), t) {
		return t, nil
	}
	return "", fmt.Errorf("unknown engine %q (valid: %s)", s, strings.Join(TypeNames(), ", "))
}

// ParseTypes converts a list of backend names, rejecting duplicates.
func ParseTypes(names []string) ([]Type, error) {
	out := make([]Type, 0, len(names))
	for _, n := range names {
		t, err := ParseType(n)
		if err != nil {
			return nil, err
		}
		if slices.Contains(out, t) {
			return nil, fmt.Errorf("engine %q listed twice", n)
		}
		out = append(out, t)
	}
	return out, nil
}

// TypeNames returns the names of all backend types.
func TypeNames() []string {
	var names []string
	for _, t := range AllTypes() {
		names = append(names, string(t))
	}
	return names
}

// Config contains configuration for engine creation.
type Config struct {
	// BatchSize is the number of rows decoded or inserted per batch.
	BatchSize int

	// Workers bounds the goroutines used by the Arrow join probe.
	Workers int

	// TmpDir for temporary files
	TmpDir string

	// DuckDB holds the settings of the embedded DuckDB database.
	DuckDB duckdbx.DuckDBSettings

	// MetricsPeriod enables DuckDB memory metrics when positive.
	MetricsPeriod time.Duration
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return 10_000
	}
	return c.BatchSize
}

// New creates an engine of the given type.
func New(t Type, cfg Config) (Engine, error) {
	switch t {
	case TypeDuckDB:
		return NewDuckDBEngine(cfg)
	case TypeArrow:
		return NewArrowEngine(cfg), nil
	case TypeGoParquet:
		return NewGoParquetEngine(cfg), nil
	case TypeSQLite:
		return NewSQLiteEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown engine %q", t)
	}
}
