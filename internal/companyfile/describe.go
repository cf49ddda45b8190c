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
	"errors"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/cardinalhq/companygen/internal/relation"
)

// Column roles reported by Describe.
const (
	RolePassthrough = "passthrough"
	RoleRequired    = "required"
	RoleID          = "id"
	RoleIgnored     = "ignored"
)

// ColumnInfo describes one stored column of a company file.
type ColumnInfo struct {
	Name         string `yaml:"name"`
	Normalized   string `yaml:"normalized"`
	PhysicalType string `yaml:"physical_type"`
	LogicalType  string `yaml:"logical_type,omitempty"`
	Optional     bool   `yaml:"optional"`
	Role         string `yaml:"role"`
}

// Description is the parquet schema of a file as the pipeline sees it.
type Description struct {
	Path    string       `yaml:"path"`
	NumRows int64        `yaml:"num_rows"`
	Columns []ColumnInfo `yaml:"columns"`
	// SchemaErr is set when the file cannot be used as a company table.
	SchemaErr error `yaml:"-"`
}

// Describe reads the footer of path and classifies every column.
func Describe(path string) (*Description, error) {
	if err := relation.CheckInput(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size(), parquet.SkipPageIndex(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	d := &Description{Path: path, NumRows: pf.NumRows()}
	resolved, err := relation.ResolveSchema(path, ColumnNames(pf.Schema()))
	var schemaErr *relation.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		d.SchemaErr = err
	case err != nil:
		return nil, err
	}

	for _, el := range pf.Metadata().Schema {
		if el.Type == nil {
			continue
		}
		info := ColumnInfo{
			Name:         el.Name,
			Normalized:   relation.NormalizeColumnName(el.Name),
			PhysicalType: el.Type.String(),
			Optional:     el.RepetitionType != nil && *el.RepetitionType == format.Optional,
			Role:         RolePassthrough,
		}
		if el.LogicalType != nil {
			info.LogicalType = el.LogicalType.String()
		}
		if resolved != nil {
			info.Role = roleOf(resolved, el.Name)
			if idx, ok := indexOfSource(resolved, el.Name); ok {
				info.Normalized = resolved.Normalized[idx]
			}
		}
		d.Columns = append(d.Columns, info)
	}
	return d, nil
}

func indexOfSource(s *relation.SourceSchema, name string) (int, bool) {
	for i, src := range s.Source {
		if src == name {
			return i, true
		}
	}
	return 0, false
}

func roleOf(s *relation.SourceSchema, name string) string {
	idx, ok := indexOfSource(s, name)
	if !ok {
		return RolePassthrough
	}
	switch s.Normalized[idx] {
	case "":
		return RoleIgnored
	case relation.ColCompanyID:
		return RoleID
	case relation.ColCountry, relation.ColLocality, relation.ColYearFounded:
		return RoleRequired
	default:
		return RolePassthrough
	}
}
