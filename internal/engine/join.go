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
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/cardinalhq/companygen/internal/relation"
)

var (
	errNotLoaded   = errors.New("no company file loaded")
	errNotSelected = errors.New("no companies selected")
)

// queryDuplicateID runs duplicateIDSQL and converts a hit into a
// DuplicateIDError.
func queryDuplicateID(ctx context.Context, q queryRower, path string) error {
	var id int64
	err := q.QueryRowContext(ctx, duplicateIDSQL()).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("check %s uniqueness: %w", relation.ColCompanyID, err)
	}
	return &relation.DuplicateIDError{Path: path, ID: id}
}

// queryRower is satisfied by *sql.DB and *sql.Conn.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// validateTopK rejects a negative k. Zero keeps every country.
func validateTopK(k int) error {
	if k < 0 {
		return &relation.ParamError{Field: "top_countries", Message: "must not be negative"}
	}
	return nil
}

// ageLookup returns a function resolving a person id to its age. Person ids
// produced by the sampler are 1..n in order, which is resolved by index;
// anything else falls back to a map.
func ageLookup(persons *relation.PersonAges) func(int64) (int64, bool) {
	n := persons.Len()
	dense := true
	for i := range n {
		if persons.PersonID[i] != int64(i+1) {
			dense = false
			break
		}
	}
	if dense {
		return func(id int64) (int64, bool) {
			if id < 1 || id > int64(n) {
				return 0, false
			}
			return persons.Age[id-1], true
		}
	}
	ages := make(map[int64]int64, n)
	for i := range n {
		if _, dup := ages[persons.PersonID[i]]; !dup {
			ages[persons.PersonID[i]] = persons.Age[i]
		}
	}
	return func(id int64) (int64, bool) {
		age, ok := ages[id]
		return age, ok
	}
}

// idRange returns the half-open index range of id in the ascending slice ids.
func idRange(ids []int64, id int64) (int, int) {
	lo, found := slices.BinarySearch(ids, id)
	if !found {
		return lo, lo
	}
	hi := lo + 1
	for hi < len(ids) && ids[hi] == id {
		hi++
	}
	return lo, hi
}

// companySide is the right-hand side of the assignment join, ordered by id.
type companySide interface {
	ids() []int64
	locality(i int) string
	country(i int) string
}

// probe joins assignments[from:to] with the companies and the persons and
// appends the matching rows to out.
func probe(out *relation.Table, side companySide, age func(int64) (int64, bool), a *relation.Assignments, from, to int) {
	ids := side.ids()
	for i := from; i < to; i++ {
		pid, cid := a.PersonID[i], a.CompanyID[i]
		personAge, ok := age(pid)
		if !ok {
			continue
		}
		lo, hi := idRange(ids, cid)
		for j := lo; j < hi; j++ {
			out.Append(relation.ResultRow{
				PersonID:  pid,
				CompanyID: cid,
				Locality:  side.locality(j),
				Country:   side.country(j),
				Age:       personAge,
			})
		}
	}
}

// sortRows orders t by (person_id, company_id). Rows with equal keys are
// identical, so stability is irrelevant.
func sortRows(t *relation.Table) {
	n := t.NumRows()
	sorted := true
	for i := 1; i < n; i++ {
		if compareKeys(t, i-1, i) > 0 {
			sorted = false
			break
		}
	}
	if sorted {
		return
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	slices.SortFunc(perm, func(a, b int) int { return compareKeys(t, a, b) })

	out := relation.NewTable(n)
	for _, i := range perm {
		out.Append(t.Row(i))
	}
	*t = *out
}

func compareKeys(t *relation.Table, a, b int) int {
	if c := cmp.Compare(t.PersonID[a], t.PersonID[b]); c != 0 {
		return c
	}
	return cmp.Compare(t.CompanyID[a], t.CompanyID[b])
}
