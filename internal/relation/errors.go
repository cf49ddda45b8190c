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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ErrInputNotFound is returned when the company file is missing or unreadable.
var ErrInputNotFound = errors.New("input file not found")

// CheckInput verifies that path names a readable regular file.
func CheckInput(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInputNotFound)
	}
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInputNotFound, path, err)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInputNotFound, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInputNotFound, path, err)
	}
	return f.Close()
}

// IsNotExist reports whether err came from a missing input.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrInputNotFound) || errors.Is(err, fs.ErrNotExist)
}

// SchemaError reports required columns that are absent, or ambiguous,
// after column name normalization.
type SchemaError struct {
	Path      string
	Missing   []string
	Duplicate []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns "+strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "ambiguous columns "+strings.Join(e.Duplicate, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, "invalid schema")
	}
	if e.Path == "" {
		return "schema error: " + strings.Join(parts, "; ")
	}
	return fmt.Sprintf("schema error in %s: %s", e.Path, strings.Join(parts, "; "))
}

// DuplicateIDError is returned when a company id occurs more than once in
// the loaded rows.
type DuplicateIDError struct {
	Path string
	ID   int64
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate %s %d in %s", ColCompanyID, e.ID, e.Path)
}

// EmptyDomainError is returned when no company survives the eligibility
// filter, so there is nothing to sample assignments from.
type EmptyDomainError struct {
	Countries []string
}

func (e *EmptyDomainError) Error() string {
	if len(e.Countries) == 0 {
		return "no eligible companies: no ranked countries"
	}
	return fmt.Sprintf("no eligible companies in countries [%s]", strings.Join(e.Countries, ", "))
}

// DomainMismatchError is returned when the assembled result does not have
// one row per assignment.
type DomainMismatchError struct {
	Expected int
	Got      int
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("join produced %d rows, expected %d: sampled ids outside the joined domain", e.Got, e.Expected)
}

// ParamError reports an invalid pipeline parameter.
type ParamError struct {
	Field   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
