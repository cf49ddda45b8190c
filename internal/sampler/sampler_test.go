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

package sampler

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/companygen/internal/relation"
)

func TestSampleShape(t *testing.T) {
	ids := []int64{10, 20, 30}
	persons, assignments, err := Sample(NewRand(37), Options{NumPersons: 200, NumPositions: 300}, ids)
	require.NoError(t, err)

	require.Equal(t, 200, persons.Len())
	require.Equal(t, 300, assignments.Len())
	for i, id := range persons.PersonID {
		assert.Equal(t, int64(i+1), id)
		assert.GreaterOrEqual(t, persons.Age[i], int64(MinAge))
		assert.Less(t, persons.Age[i], int64(MaxAge))
	}
	assert.True(t, slices.IsSorted(assignments.PersonID))
	for i := range assignments.Len() {
		assert.Contains(t, ids, assignments.CompanyID[i])
		assert.GreaterOrEqual(t, assignments.PersonID[i], int64(1))
		assert.LessOrEqual(t, assignments.PersonID[i], int64(200))
	}
}

func TestSampleDeterministic(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5}
	opts := Options{NumPersons: 50, NumPositions: 100}

	p1, a1, err := Sample(NewRand(37), opts, ids)
	require.NoError(t, err)
	p2, a2, err := Sample(NewRand(37), opts, ids)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, a1, a2)

	_, a3, err := Sample(NewRand(38), opts, ids)
	require.NoError(t, err)
	assert.NotEqual(t, a1, a3)
}

func TestSampleZeroPositions(t *testing.T) {
	persons, assignments, err := Sample(NewRand(1), Options{NumPersons: 5}, []int64{7})
	require.NoError(t, err)
	assert.Equal(t, 5, persons.Len())
	assert.Equal(t, 0, assignments.Len())
}

func TestSampleErrors(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		ids   []int64
		field string
	}{
		{"no persons", Options{NumPersons: 0, NumPositions: 1}, []int64{1}, "num_persons"},
		{"negative positions", Options{NumPersons: 1, NumPositions: -1}, []int64{1}, "num_positions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Sample(NewRand(1), tt.opts, tt.ids)
			var pe *relation.ParamError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
		})
	}

	_, _, err := Sample(NewRand(1), Options{NumPersons: 1, NumPositions: 1}, nil)
	var de *relation.EmptyDomainError
	require.ErrorAs(t, err, &de)
}

func TestSampleDedup(t *testing.T) {
	// Two persons and one company force many repeated pairs.
	_, assignments, err := Sample(NewRand(3), Options{NumPersons: 2, NumPositions: 50, Dedup: true}, []int64{9})
	require.NoError(t, err)
	assert.LessOrEqual(t, assignments.Len(), 2)

	seen := map[[2]int64]bool{}
	for i := range assignments.Len() {
		k := [2]int64{assignments.PersonID[i], assignments.CompanyID[i]}
		assert.False(t, seen[k], "duplicate pair %v", k)
		seen[k] = true
	}
}

func TestSampleDedupKeepsFirst(t *testing.T) {
	in := &relation.Assignments{
		PersonID:  []int64{1, 1, 1, 2, 2},
		CompanyID: []int64{5, 6, 5, 5, 5},
	}
	out := dedup(in)
	assert.Equal(t, []int64{1, 1, 2}, out.PersonID)
	assert.Equal(t, []int64{5, 6, 5}, out.CompanyID)
}

func TestProperty_SampleInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("assignments reference synthesized persons and domain companies", prop.ForAll(
		func(seed uint64, numPersons, numPositions, domain int) bool {
			ids := make([]int64, domain)
			for i := range ids {
				ids[i] = int64(100 + 3*i)
			}
			persons, a, err := Sample(NewRand(seed), Options{NumPersons: numPersons, NumPositions: numPositions}, ids)
			if err != nil || persons.Len() != numPersons || a.Len() != numPositions {
				return false
			}
			if !slices.IsSorted(a.PersonID) {
				return false
			}
			for i := range a.Len() {
				if a.PersonID[i] < 1 || a.PersonID[i] > int64(numPersons) {
					return false
				}
				if !slices.Contains(ids, a.CompanyID[i]) {
					return false
				}
			}
			for _, age := range persons.Age {
				if age < MinAge || age >= MaxAge {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(1, 500),
		gen.IntRange(0, 1000),
		gen.IntRange(1, 40),
	))

	properties.Property("same seed gives same draws", prop.ForAll(
		func(seed uint64, numPositions int) bool {
			ids := []int64{1, 2, 3}
			_, a1, err1 := Sample(NewRand(seed), Options{NumPersons: 10, NumPositions: numPositions}, ids)
			_, a2, err2 := Sample(NewRand(seed), Options{NumPersons: 10, NumPositions: numPositions}, ids)
			return err1 == nil && err2 == nil &&
				slices.Equal(a1.PersonID, a2.PersonID) &&
				slices.Equal(a1.CompanyID, a2.CompanyID)
		},
		gen.UInt64(),
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}
