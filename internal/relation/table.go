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
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"slices"
	"text/tabwriter"

	"github.com/cespare/xxhash/v2"
)

// PersonAges is the synthesized person relation.
type PersonAges struct {
	PersonID []int64
	Age      []int64
}

// Len returns the number of persons.
func (p *PersonAges) Len() int {
	if p == nil {
		return 0
	}
	return len(p.PersonID)
}

// Assignments is the synthesized (person_id, company_id) edge list,
// ordered by person_id.
type Assignments struct {
	PersonID  []int64
	CompanyID []int64
}

// Len returns the number of assignments.
func (a *Assignments) Len() int {
	if a == nil {
		return 0
	}
	return len(a.PersonID)
}

// ResultRow is one row of the generated dataset.
type ResultRow struct {
	PersonID  int64  `parquet:"person_id" yaml:"person_id"`
	CompanyID int64  `parquet:"company_id" yaml:"company_id"`
	Locality  string `parquet:"locality" yaml:"locality"`
	Country   string `parquet:"country" yaml:"country"`
	Age       int64  `parquet:"age" yaml:"age"`
}

// Table is the materialized pipeline output, stored by column.
type Table struct {
	PersonID  []int64
	CompanyID []int64
	Locality  []string
	Country   []string
	Age       []int64
}

// NewTable returns an empty table with capacity for n rows.
func NewTable(n int) *Table {
	return &Table{
		PersonID:  make([]int64, 0, n),
		CompanyID: make([]int64, 0, n),
		Locality:  make([]string, 0, n),
		Country:   make([]string, 0, n),
		Age:       make([]int64, 0, n),
	}
}

// Append adds one row.
func (t *Table) Append(r ResultRow) {
	t.PersonID = append(t.PersonID, r.PersonID)
	t.CompanyID = append(t.CompanyID, r.CompanyID)
	t.Locality = append(t.Locality, r.Locality)
	t.Country = append(t.Country, r.Country)
	t.Age = append(t.Age, r.Age)
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.PersonID)
}

// NumColumns returns the column count, which is fixed.
func (t *Table) NumColumns() int {
	return len(ResultColumns)
}

// ColumnNames returns the output column names in order.
func (t *Table) ColumnNames() []string {
	return slices.Clone(ResultColumns)
}

// Row returns row i.
func (t *Table) Row(i int) ResultRow {
	return ResultRow{
		PersonID:  t.PersonID[i],
		CompanyID: t.CompanyID[i],
		Locality:  t.Locality[i],
		Country:   t.Country[i],
		Age:       t.Age[i],
	}
}

// All iterates over the rows in order.
func (t *Table) All() iter.Seq2[int, ResultRow] {
	return func(yield func(int, ResultRow) bool) {
		for i := range t.NumRows() {
			if !yield(i, t.Row(i)) {
				return
			}
		}
	}
}

// Head returns a table holding the first n rows. The columns share
// storage with t.
func (t *Table) Head(n int) *Table {
	n = max(0, min(n, t.NumRows()))
	return &Table{
		PersonID:  t.PersonID[:n],
		CompanyID: t.CompanyID[:n],
		Locality:  t.Locality[:n],
		Country:   t.Country[:n],
		Age:       t.Age[:n],
	}
}

// Equal reports whether both tables hold the same rows in the same order.
func (t *Table) Equal(o *Table) bool {
	if t.NumRows() != o.NumRows() {
		return false
	}
	return slices.Equal(t.PersonID, o.PersonID) &&
		slices.Equal(t.CompanyID, o.CompanyID) &&
		slices.Equal(t.Locality, o.Locality) &&
		slices.Equal(t.Country, o.Country) &&
		slices.Equal(t.Age, o.Age)
}

// Diff returns the index of the first row where t and o differ, or -1.
func (t *Table) Diff(o *Table) int {
	n := min(t.NumRows(), o.NumRows())
	for i := range n {
		if t.Row(i) != o.Row(i) {
			return i
		}
	}
	if t.NumRows() != o.NumRows() {
		return n
	}
	return -1
}

// Digest hashes the rows in order. Tables that are Equal have the same
// digest.
func (t *Table) Digest() uint64 {
	h := xxhash.New()
	buf := make([]byte, 0, 64)
	for i := range t.NumRows() {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(t.PersonID[i]))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(t.CompanyID[i]))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Age[i]))
		buf = binary.AppendUvarint(buf, uint64(len(t.Locality[i])))
		buf = append(buf, t.Locality[i]...)
		buf = binary.AppendUvarint(buf, uint64(len(t.Country[i])))
		buf = append(buf, t.Country[i]...)
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return t.NumRows(), t.NumColumns()
}

// Print writes the table as aligned text.
func (t *Table) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for i, name := range ResultColumns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, name)
	}
	fmt.Fprintln(tw, "\t")
	for _, r := range t.All() {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t\n", r.PersonID, r.CompanyID, r.Locality, r.Country, r.Age)
	}
	return tw.Flush()
}
