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

// Package companyfile reads and writes company tables stored as parquet.
package companyfile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/companygen/internal/relation"
)

const defaultBatchSize = 1000

// Options controls how a company file is read.
type Options struct {
	// Limit keeps only the first Limit rows in file order. Zero reads all rows.
	Limit int64
	// BatchSize is the number of rows decoded per read call.
	BatchSize int
	// Passthrough keeps the non-required columns in Company.Extra.
	Passthrough bool
}

// Reader decodes companies from a parquet file in batches.
type Reader struct {
	file      *os.File
	pf        *parquet.File
	pfr       *parquet.GenericReader[map[string]any]
	schema    *relation.SourceSchema
	opts      Options
	readBuf   []map[string]any
	row       int64
	exhausted bool
	closed    bool

	idName, countryName, localityName, yearName, nameName string
}

// Open opens path, validates its schema and returns a reader positioned at
// the first row.
func Open(path string, opts Options) (*Reader, error) {
	if err := relation.CheckInput(path); err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, &relation.ParamError{Field: "limit", Message: "must not be negative"}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", relation.ErrInputNotFound, path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	schema, err := relation.ResolveSchema(path, ColumnNames(pf.Schema()))
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	readBuf := make([]map[string]any, opts.BatchSize)
	for i := range readBuf {
		readBuf[i] = make(map[string]any)
	}

	return &Reader{
		file:         f,
		pf:           pf,
		pfr:          parquet.NewGenericReader[map[string]any](pf, pf.Schema()),
		schema:       schema,
		opts:         opts,
		readBuf:      readBuf,
		idName:       schema.SourceName(relation.ColCompanyID),
		countryName:  schema.SourceName(relation.ColCountry),
		localityName: schema.SourceName(relation.ColLocality),
		yearName:     schema.SourceName(relation.ColYearFounded),
		nameName:     schema.SourceName(relation.ColName),
	}, nil
}

// ColumnNames returns the top-level column names of a parquet schema in
// file order.
func ColumnNames(s *parquet.Schema) []string {
	fields := s.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return names
}

// Schema returns the validated source schema.
func (r *Reader) Schema() *relation.SourceSchema {
	return r.schema
}

// NumRows returns the number of rows the reader will produce.
func (r *Reader) NumRows() int64 {
	n := r.pf.NumRows()
	if r.opts.Limit > 0 && r.opts.Limit < n {
		return r.opts.Limit
	}
	return n
}

// Next returns the next batch of companies, or io.EOF when the file or the
// limit is exhausted.
func (r *Reader) Next(ctx context.Context) ([]relation.Company, error) {
	if r.closed || r.pfr == nil {
		return nil, errors.New("reader is closed or not initialized")
	}
	if r.exhausted {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := len(r.readBuf)
	if r.opts.Limit > 0 {
		want = int(min(int64(want), r.opts.Limit-r.row))
	}
	if want <= 0 {
		r.exhausted = true
		return nil, io.EOF
	}

	buf := r.readBuf[:want]
	for i := range buf {
		clear(buf[i])
	}
	n, err := r.pfr.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parquet reader error: %w", err)
	}
	if errors.Is(err, io.EOF) {
		r.exhausted = true
	}
	if n == 0 {
		r.exhausted = true
		return nil, io.EOF
	}

	out := make([]relation.Company, n)
	for i := range n {
		c, cerr := r.decode(buf[i])
		if cerr != nil {
			return nil, fmt.Errorf("row %d: %w", r.row+int64(i), cerr)
		}
		c.Row = r.row + int64(i)
		out[i] = c
	}
	r.row += int64(n)
	rowsReadCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("reader", "companyfile")))
	return out, nil
}

func (r *Reader) decode(row map[string]any) (relation.Company, error) {
	var c relation.Company
	id, ok, err := toInt64(row[r.idName])
	if err != nil {
		return c, fmt.Errorf("%s: %w", relation.ColCompanyID, err)
	}
	if !ok {
		return c, fmt.Errorf("%s: null id", relation.ColCompanyID)
	}
	c.CompanyID = id
	c.Country = toNullString(row[r.countryName])
	c.Locality = toNullString(row[r.localityName])
	if r.nameName != "" {
		c.Name = toNullString(row[r.nameName])
	}
	year, ok, err := toInt64(row[r.yearName])
	if err != nil {
		return c, fmt.Errorf("%s: %w", relation.ColYearFounded, err)
	}
	c.YearFounded = sql.NullInt64{Int64: year, Valid: ok}

	if r.opts.Passthrough {
		c.Extra = make(map[string]any)
		for _, norm := range r.schema.Passthrough() {
			c.Extra[norm] = row[r.schema.SourceName(norm)]
		}
	}
	return c, nil
}

// Close releases the reader and its file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	if r.pfr != nil {
		if err := r.pfr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close parquet reader: %w", err))
		}
		r.pfr = nil
	}
	r.pf = nil
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ReadAll reads every company of path, honoring opts.Limit.
func ReadAll(ctx context.Context, path string, opts Options) ([]relation.Company, *relation.SourceSchema, error) {
	r, err := Open(path, opts)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = r.Close() }()

	out := make([]relation.Company, 0, r.NumRows())
	for {
		batch, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		out = append(out, batch...)
	}
	return out, r.Schema(), nil
}

// toInt64 converts a decoded integer or floating value. Floats are
// truncated; null and NaN report ok=false.
func toInt64(v any) (int64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return x, true, nil
	case int32:
		return int64(x), true, nil
	case int:
		return int64(x), true, nil
	case int16:
		return int64(x), true, nil
	case int8:
		return int64(x), true, nil
	case uint64:
		return int64(x), true, nil
	case uint32:
		return int64(x), true, nil
	case float64:
		if math.IsNaN(x) {
			return 0, false, nil
		}
		return int64(x), true, nil
	case float32:
		if math.IsNaN(float64(x)) {
			return 0, false, nil
		}
		return int64(x), true, nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not an integer: %q", x)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported type %T", v)
	}
}

func toNullString(v any) sql.NullString {
	switch x := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return sql.NullString{String: x, Valid: true}
	case []byte:
		return sql.NullString{String: string(x), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprint(x), Valid: true}
	}
}
