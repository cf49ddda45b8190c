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

// Package resultwriter exports a generated table as a parquet file.
package resultwriter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/cardinalhq/companygen/internal/relation"
)

// DefaultChunkSize is the number of rows per record batch.
const DefaultChunkSize = 64 * 1024

// Schema is the arrow schema of an exported table.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: relation.ColPersonID, Type: arrow.PrimitiveTypes.Int64},
	{Name: relation.ColCompanyID, Type: arrow.PrimitiveTypes.Int64},
	{Name: relation.ColLocality, Type: arrow.BinaryTypes.String},
	{Name: relation.ColCountry, Type: arrow.BinaryTypes.String},
	{Name: relation.ColAge, Type: arrow.PrimitiveTypes.Int64},
}, nil)

// Options controls batching and allocation.
type Options struct {
	ChunkSize int
	Allocator memory.Allocator
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Allocator == nil {
		o.Allocator = memory.NewGoAllocator()
	}
	return o
}

// Write encodes t to w as zstd-compressed parquet.
func Write(ctx context.Context, w io.Writer, t *relation.Table, opts Options) error {
	opts = opts.withDefaults()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	pw, err := pqarrow.NewFileWriter(Schema, w, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	b := array.NewRecordBuilder(opts.Allocator, Schema)
	defer b.Release()

	n := t.NumRows()
	for from := 0; from < n; from += opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			_ = pw.Close()
			return err
		}
		to := min(from+opts.ChunkSize, n)
		if err := writeChunk(pw, b, t, from, to); err != nil {
			_ = pw.Close()
			return err
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func writeChunk(pw *pqarrow.FileWriter, b *array.RecordBuilder, t *relation.Table, from, to int) error {
	b.Field(0).(*array.Int64Builder).AppendValues(t.PersonID[from:to], nil)
	b.Field(1).(*array.Int64Builder).AppendValues(t.CompanyID[from:to], nil)
	b.Field(2).(*array.StringBuilder).AppendValues(t.Locality[from:to], nil)
	b.Field(3).(*array.StringBuilder).AppendValues(t.Country[from:to], nil)
	b.Field(4).(*array.Int64Builder).AppendValues(t.Age[from:to], nil)

	rec := b.NewRecord()
	defer rec.Release()

	if err := pw.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return nil
}

// WriteFile writes t to path. The file is written under a temporary name
// in the same directory and renamed into place once complete.
func WriteFile(ctx context.Context, path string, t *relation.Table, opts Options) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".companygen-*.parquet")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// pqarrow closes the sink when the writer is closed.
	if err := Write(ctx, tmp, t, opts); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", tmpPath, err)
	}
	return nil
}

// ReadFile loads a table previously written by WriteFile.
func ReadFile(ctx context.Context, path string) (*relation.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(memory.DefaultAllocator),
		pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer tbl.Release()

	if err := checkSchema(tbl.Schema()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := relation.NewTable(int(tbl.NumRows()))
	tr := array.NewTableReader(tbl, DefaultChunkSize)
	defer tr.Release()

	for tr.Next() {
		rec := tr.Record()
		ids := rec.Column(0).(*array.Int64)
		companies := rec.Column(1).(*array.Int64)
		localities := rec.Column(2).(*array.String)
		countries := rec.Column(3).(*array.String)
		ages := rec.Column(4).(*array.Int64)
		for i := range int(rec.NumRows()) {
			out.Append(relation.ResultRow{
				PersonID:  ids.Value(i),
				CompanyID: companies.Value(i),
				Locality:  localities.Value(i),
				Country:   countries.Value(i),
				Age:       ages.Value(i),
			})
		}
	}
	if err := tr.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkSchema(s *arrow.Schema) error {
	if s.NumFields() != Schema.NumFields() {
		return fmt.Errorf("expected %d columns, got %d", Schema.NumFields(), s.NumFields())
	}
	for i, want := range Schema.Fields() {
		got := s.Field(i)
		if got.Name != want.Name || !arrow.TypeEqual(got.Type, want.Type) {
			return fmt.Errorf("column %d: expected %s %s, got %s %s", i, want.Name, want.Type, got.Name, got.Type)
		}
	}
	return nil
}
