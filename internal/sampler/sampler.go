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

// Package sampler synthesizes persons and their company assignments.
package sampler

import (
	"math/rand/v2"
	"slices"

	"github.com/cardinalhq/companygen/internal/relation"
)

// Age bounds, lower inclusive and upper exclusive.
const (
	MinAge = 25
	MaxAge = 65
)

// NewRand returns the random source for one run. The same seed always
// produces the same draw sequence.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Options controls a sampling run.
type Options struct {
	NumPersons   int
	NumPositions int
	// Dedup drops repeated (person_id, company_id) pairs, keeping the first.
	Dedup bool
}

// Sample draws the person ages and the assignments. Draw order is fixed:
// one age per person, then the person side of every assignment, then the
// company side. companyIDs is the sampling domain and must not be empty.
func Sample(rng *rand.Rand, opts Options, companyIDs []int64) (*relation.PersonAges, *relation.Assignments, error) {
	if opts.NumPersons <= 0 {
		return nil, nil, &relation.ParamError{Field: "num_persons", Message: "must be positive"}
	}
	if opts.NumPositions < 0 {
		return nil, nil, &relation.ParamError{Field: "num_positions", Message: "must not be negative"}
	}
	if len(companyIDs) == 0 {
		return nil, nil, &relation.EmptyDomainError{}
	}

	persons := &relation.PersonAges{
		PersonID: make([]int64, opts.NumPersons),
		Age:      make([]int64, opts.NumPersons),
	}
	for i := range opts.NumPersons {
		persons.PersonID[i] = int64(i + 1)
		persons.Age[i] = int64(MinAge + rng.IntN(MaxAge-MinAge))
	}

	personIDs := make([]int64, opts.NumPositions)
	for i := range personIDs {
		personIDs[i] = int64(1 + rng.IntN(opts.NumPersons))
	}
	slices.Sort(personIDs)

	picked := make([]int64, opts.NumPositions)
	for i := range picked {
		picked[i] = companyIDs[rng.IntN(len(companyIDs))]
	}

	assignments := &relation.Assignments{PersonID: personIDs, CompanyID: picked}
	if opts.Dedup {
		assignments = dedup(assignments)
	}
	return persons, assignments, nil
}

// dedup removes repeated pairs. Person ids are sorted, so duplicates can
// only occur within a run of equal person ids.
func dedup(a *relation.Assignments) *relation.Assignments {
	out := &relation.Assignments{
		PersonID:  make([]int64, 0, a.Len()),
		CompanyID: make([]int64, 0, a.Len()),
	}
	seen := make(map[int64]struct{})
	for i := range a.Len() {
		if i > 0 && a.PersonID[i] != a.PersonID[i-1] {
			clear(seen)
		}
		if _, dup := seen[a.CompanyID[i]]; dup {
			continue
		}
		seen[a.CompanyID[i]] = struct{}{}
		out.PersonID = append(out.PersonID, a.PersonID[i])
		out.CompanyID = append(out.CompanyID, a.CompanyID[i])
	}
	return out
}
