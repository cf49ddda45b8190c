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
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// Kind is the physical type of a written column.
type Kind int

const (
	KindInt64 Kind = iota
	KindDouble
	KindString
)

// Column is one column of a written company file.
type Column struct {
	Name string
	Kind Kind
}

// Layout lists the columns of a company file.
type Layout []Column

// Source column names of the public company dataset the generator was
// built against. The id column is the unnamed index of a pandas CSV export.
const (
	SourceID               = "Unnamed: 0"
	SourceName             = "name"
	SourceDomain           = "domain"
	SourceYearFounded      = "year founded"
	SourceIndustry         = "industry"
	SourceSizeRange        = "size range"
	SourceLocality         = "locality"
	SourceCountry          = "country"
	SourceLinkedinURL      = "linkedin url"
	SourceCurrentEmployees = "current employee estimate"
	SourceTotalEmployees   = "total employee estimate"
)

// DatasetLayout is the column layout of the public company dataset.
var DatasetLayout = Layout{
	{SourceID, KindInt64},
	{SourceName, KindString},
	{SourceDomain, KindString},
	{SourceYearFounded, KindDouble},
	{SourceIndustry, KindString},
	{SourceSizeRange, KindString},
	{SourceLocality, KindString},
	{SourceCountry, KindString},
	{SourceLinkedinURL, KindString},
	{SourceCurrentEmployees, KindInt64},
	{SourceTotalEmployees, KindInt64},
}

func nodeFor(k Kind) (parquet.Node, error) {
	switch k {
	case KindInt64:
		return parquet.Optional(parquet.Int(64)), nil
	case KindDouble:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType)), nil
	case KindString:
		return parquet.Optional(parquet.String()), nil
	default:
		return nil, fmt.Errorf("unsupported column kind %d", k)
	}
}

// Schema builds the parquet schema for the layout. Every column is optional.
func (l Layout) Schema() (*parquet.Schema, error) {
	nodes := make(parquet.Group, len(l))
	for _, c := range l {
		if _, dup := nodes[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		n, err := nodeFor(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		nodes[c.Name] = n
	}
	return parquet.NewSchema("companies", nodes), nil
}

// Write encodes rows with the given layout. Row maps are keyed by source
// column name; absent or nil values are written as null.
func Write(ctx context.Context, w io.Writer, layout Layout, rows []map[string]any) error {
	schema, err := layout.Schema()
	if err != nil {
		return err
	}
	writerConfig, err := parquet.NewWriterConfig(
		schema,
		parquet.Compression(&parquet.Zstd),
		parquet.MaxRowsPerRowGroup(80_000),
	)
	if err != nil {
		return fmt.Errorf("failed to create writer config: %w", err)
	}

	writer := parquet.NewGenericWriter[map[string]any](w, writerConfig)
	const chunk = 1024
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		if _, err := writer.Write(rows[start:end]); err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to write rows to parquet: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	rowsWrittenCounter.Add(ctx, int64(len(rows)))
	return nil
}

// WriteFile writes rows to a new file at path.
func WriteFile(ctx context.Context, path string, layout Layout, rows []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(ctx, f, layout, rows); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
