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
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/companygen/internal/relation"
)

// probeChunkSize is the number of assignments one probe task handles.
const probeChunkSize = 64 * 1024

// ArrowEngine implements Engine on Arrow arrays read through pqarrow.
type ArrowEngine struct {
	config Config
	alloc  memory.Allocator

	// loaded company columns, all of the same length
	ids       *array.Int64
	countries *array.String
	locality  *array.String
	years     *array.Int64

	final *arrowCompanies
}

var _ Engine = (*ArrowEngine)(nil)

// NewArrowEngine creates a columnar engine.
func NewArrowEngine(cfg Config) *ArrowEngine {
	return &ArrowEngine{
		config: cfg,
		alloc:  memory.NewGoAllocator(),
	}
}

// Name returns the backend name.
func (e *ArrowEngine) Name() string {
	return string(TypeArrow)
}

// Load reads the id, country, locality and year columns of path.
func (e *ArrowEngine) Load(ctx context.Context, path string, limit int64) error {
	e.release()
	if limit < 0 {
		return &relation.ParamError{Field: "limit", Message: "must not be negative"}
	}
	if err := relation.CheckInput(path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", relation.ErrInputNotFound, path, err)
	}
	defer func() { _ = f.Close() }()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	defer func() { _ = pf.Close() }()

	props := pqarrow.ArrowReadProperties{BatchSize: int64(e.config.batchSize())}
	fr, err := pqarrow.NewFileReader(pf, props, e.alloc)
	if err != nil {
		return fmt.Errorf("failed to create arrow file reader: %w", err)
	}
	arrowSchema, err := fr.Schema()
	if err != nil {
		return fmt.Errorf("failed to get arrow schema: %w", err)
	}

	fieldNames := make([]string, arrowSchema.NumFields())
	for i, fld := range arrowSchema.Fields() {
		fieldNames[i] = fld.Name
	}
	schema, err := relation.ResolveSchema(path, fieldNames)
	if err != nil {
		return err
	}

	required := []string{relation.ColCompanyID, relation.ColCountry, relation.ColLocality, relation.ColYearFounded}
	sourceNames := make([]string, len(required))
	leaves := make([]int, len(required))
	for i, col := range required {
		sourceNames[i] = schema.SourceName(col)
		leaves[i] = pf.MetaData().Schema.ColumnIndexByName(sourceNames[i])
		if leaves[i] < 0 {
			return fmt.Errorf("column %q is not a flat parquet column", sourceNames[i])
		}
	}

	rr, err := fr.GetRecordReader(ctx, leaves, nil)
	if err != nil {
		return fmt.Errorf("failed to create record reader: %w", err)
	}
	defer rr.Release()

	idB := array.NewInt64Builder(e.alloc)
	countryB := array.NewStringBuilder(e.alloc)
	localityB := array.NewStringBuilder(e.alloc)
	yearB := array.NewInt64Builder(e.alloc)
	defer func() {
		idB.Release()
		countryB.Release()
		localityB.Release()
		yearB.Release()
	}()

	var loaded int64
	for rr.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := rr.Record()
		cols := make([]arrow.Array, len(sourceNames))
		for i, name := range sourceNames {
			idx := rec.Schema().FieldIndices(name)
			if len(idx) != 1 {
				return fmt.Errorf("column %q missing from record batch", name)
			}
			cols[i] = rec.Column(idx[0])
		}

		n := rec.NumRows()
		if limit > 0 {
			n = min(n, limit-loaded)
		}
		for i := range int(n) {
			if cols[0].IsNull(i) {
				return fmt.Errorf("row %d: %s: null id", loaded+int64(i), relation.ColCompanyID)
			}
			if err := appendInt(idB, cols[0], i); err != nil {
				return fmt.Errorf("row %d: %s: %w", loaded+int64(i), relation.ColCompanyID, err)
			}
			if err := appendString(countryB, cols[1], i); err != nil {
				return fmt.Errorf("row %d: %s: %w", loaded+int64(i), relation.ColCountry, err)
			}
			if err := appendString(localityB, cols[2], i); err != nil {
				return fmt.Errorf("row %d: %s: %w", loaded+int64(i), relation.ColLocality, err)
			}
			if err := appendInt(yearB, cols[3], i); err != nil {
				return fmt.Errorf("row %d: %s: %w", loaded+int64(i), relation.ColYearFounded, err)
			}
		}
		loaded += n
		if limit > 0 && loaded >= limit {
			break
		}
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("arrow read error: %w", err)
	}

	e.ids = idB.NewInt64Array()
	e.countries = countryB.NewStringArray()
	e.locality = localityB.NewStringArray()
	e.years = yearB.NewInt64Array()
	if id, dup := relation.FirstDuplicateID(e.ids.Int64Values()); dup {
		e.release()
		return &relation.DuplicateIDError{Path: path, ID: id}
	}
	return nil
}

// appendInt appends value i of an integer or floating column, truncating
// floats and mapping NaN to null.
func appendInt(b *array.Int64Builder, arr arrow.Array, i int) error {
	if arr.IsNull(i) {
		b.AppendNull()
		return nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		b.Append(a.Value(i))
	case *array.Int32:
		b.Append(int64(a.Value(i)))
	case *array.Int16:
		b.Append(int64(a.Value(i)))
	case *array.Int8:
		b.Append(int64(a.Value(i)))
	case *array.Uint64:
		b.Append(int64(a.Value(i)))
	case *array.Uint32:
		b.Append(int64(a.Value(i)))
	case *array.Float64:
		appendFloat(b, a.Value(i))
	case *array.Float32:
		appendFloat(b, float64(a.Value(i)))
	default:
		return fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
	return nil
}

func appendFloat(b *array.Int64Builder, v float64) {
	if math.IsNaN(v) {
		b.AppendNull()
		return
	}
	b.Append(int64(v))
}

func appendString(b *array.StringBuilder, arr arrow.Array, i int) error {
	if arr.IsNull(i) {
		b.AppendNull()
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		b.Append(a.Value(i))
	case *array.LargeString:
		b.Append(a.Value(i))
	case *array.Binary:
		b.Append(string(a.Value(i)))
	default:
		return fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
	return nil
}

func (e *ArrowEngine) loaded() bool {
	return e.ids != nil
}

// rankCandidates returns the selection vector of rows that take part in
// the ranking.
func (e *ArrowEngine) rankCandidates(policy relation.Policy) []int32 {
	n := e.ids.Len()
	sel := make([]int32, 0, n)
	for i := range n {
		if e.countries.IsNull(i) {
			continue
		}
		if policy.RequireYearFounded && e.years.IsNull(i) {
			continue
		}
		sel = append(sel, int32(i))
	}
	return sel
}

// TopCountries counts the rank candidates per country.
func (e *ArrowEngine) TopCountries(ctx context.Context, k int, policy relation.Policy) ([]relation.CountryCount, error) {
	if !e.loaded() {
		return nil, errNotLoaded
	}
	if err := validateTopK(k); err != nil {
		return nil, err
	}

	groups := make(map[string]int)
	var counts []relation.CountryCount
	for _, row := range e.rankCandidates(policy) {
		country := e.countries.Value(int(row))
		idx, ok := groups[country]
		if !ok {
			idx = len(counts)
			groups[country] = idx
			counts = append(counts, relation.CountryCount{Country: country, FirstRow: int64(row)})
		}
		counts[idx].Count++
	}
	relation.SortCountryCounts(counts)
	return relation.TopK(counts, k), nil
}

// SelectCompanies builds the selection vector of eligible rows, orders it
// by company id and takes the final columns.
func (e *ArrowEngine) SelectCompanies(ctx context.Context, countries []string, policy relation.Policy) ([]int64, error) {
	if !e.loaded() {
		return nil, errNotLoaded
	}
	e.releaseFinal()
	top := mapset.NewThreadUnsafeSet(countries...)

	n := e.ids.Len()
	sel := make([]int32, 0, n)
	for i := range n {
		if e.countries.IsNull(i) || e.locality.IsNull(i) {
			continue
		}
		if policy.RequireYearFounded && e.years.IsNull(i) {
			continue
		}
		if !top.Contains(e.countries.Value(i)) {
			continue
		}
		sel = append(sel, int32(i))
	}
	slices.SortStableFunc(sel, func(a, b int32) int {
		return cmp.Compare(e.ids.Value(int(a)), e.ids.Value(int(b)))
	})

	e.final = e.take(sel)
	return slices.Clone(e.final.idValues), nil
}

func (e *ArrowEngine) take(sel []int32) *arrowCompanies {
	idB := array.NewInt64Builder(e.alloc)
	localityB := array.NewStringBuilder(e.alloc)
	countryB := array.NewStringBuilder(e.alloc)
	defer func() {
		idB.Release()
		localityB.Release()
		countryB.Release()
	}()
	idB.Reserve(len(sel))
	localityB.Reserve(len(sel))
	countryB.Reserve(len(sel))

	for _, row := range sel {
		idB.Append(e.ids.Value(int(row)))
		localityB.Append(e.locality.Value(int(row)))
		countryB.Append(e.countries.Value(int(row)))
	}

	ids := idB.NewInt64Array()
	return &arrowCompanies{
		idArr:     ids,
		idValues:  ids.Int64Values(),
		localArr:  localityB.NewStringArray(),
		countryAr: countryB.NewStringArray(),
	}
}

// Assemble probes the final companies in parallel chunks of assignments.
func (e *ArrowEngine) Assemble(ctx context.Context, persons *relation.PersonAges, assignments *relation.Assignments) (*relation.Table, error) {
	if e.final == nil {
		return nil, errNotSelected
	}
	age := ageLookup(persons)
	total := assignments.Len()
	chunks := (total + probeChunkSize - 1) / probeChunkSize
	parts := make([]*relation.Table, chunks)

	workers := e.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			from := c * probeChunkSize
			to := min(from+probeChunkSize, total)
			part := relation.NewTable(to - from)
			probe(part, e.final, age, assignments, from, to)
			parts[c] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := relation.NewTable(total)
	for _, part := range parts {
		out.PersonID = append(out.PersonID, part.PersonID...)
		out.CompanyID = append(out.CompanyID, part.CompanyID...)
		out.Locality = append(out.Locality, part.Locality...)
		out.Country = append(out.Country, part.Country...)
		out.Age = append(out.Age, part.Age...)
	}
	sortRows(out)
	return out, nil
}

func (e *ArrowEngine) releaseFinal() {
	if e.final != nil {
		e.final.release()
		e.final = nil
	}
}

func (e *ArrowEngine) release() {
	e.releaseFinal()
	if e.ids != nil {
		e.ids.Release()
	}
	if e.countries != nil {
		e.countries.Release()
	}
	if e.locality != nil {
		e.locality.Release()
	}
	if e.years != nil {
		e.years.Release()
	}
	e.ids, e.countries, e.locality, e.years = nil, nil, nil, nil
}

// Close releases all arrays.
func (e *ArrowEngine) Close() error {
	e.release()
	return nil
}

type arrowCompanies struct {
	idArr     *array.Int64
	idValues  []int64
	localArr  *array.String
	countryAr *array.String
}

func (c *arrowCompanies) ids() []int64          { return c.idValues }
func (c *arrowCompanies) locality(i int) string { return c.localArr.Value(i) }
func (c *arrowCompanies) country(i int) string  { return c.countryAr.Value(i) }

func (c *arrowCompanies) release() {
	c.idArr.Release()
	c.localArr.Release()
	c.countryAr.Release()
}
