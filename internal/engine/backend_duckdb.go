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
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/companygen/internal/duckdbx"
	"github.com/cardinalhq/companygen/internal/relation"
)

// DuckDBEngine implements Engine with SQL inside an embedded DuckDB. The
// company file is read natively with read_parquet and the sampled
// relations are bulk loaded with the Appender.
type DuckDBEngine struct {
	config   Config
	db       *duckdbx.DB
	loaded   bool
	selected bool
}

var _ Engine = (*DuckDBEngine)(nil)

// NewDuckDBEngine creates an engine backed by an in-memory DuckDB database.
func NewDuckDBEngine(cfg Config) (*DuckDBEngine, error) {
	opts := []duckdbx.DBOption{
		duckdbx.WithInMemory(),
		duckdbx.WithName("engine-duckdb"),
		duckdbx.WithDuckDBSettings(cfg.DuckDB),
	}
	if cfg.MetricsPeriod > 0 {
		opts = append(opts, duckdbx.WithMetrics(cfg.MetricsPeriod))
	}
	db, err := duckdbx.NewDB(opts...)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &DuckDBEngine{config: cfg, db: db}, nil
}

// Name returns the backend name.
func (e *DuckDBEngine) Name() string {
	return string(TypeDuckDB)
}

func (e *DuckDBEngine) exec(ctx context.Context, stmts ...string) error {
	conn, release, err := e.db.GetConnection(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer release()
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w (SQL: %s)", err, stmt)
		}
	}
	return nil
}

// describeParquet returns the column names and DuckDB types of path.
func describeParquet(ctx context.Context, conn *sql.Conn, path string) ([]string, map[string]string, error) {
	q := fmt.Sprintf("SELECT column_name, column_type FROM (DESCRIBE SELECT * FROM read_parquet('%s'))", duckdbx.EscapeSingle(path))
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("describe %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	types := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		types[name] = strings.ToUpper(typ)
	}
	return names, types, rows.Err()
}

// intExpr converts a column to BIGINT the same way the Go readers do:
// floats are truncated and NaN becomes NULL.
func intExpr(col, typ string) string {
	q := quoteIdent(col)
	switch typ {
	case "DOUBLE", "FLOAT", "REAL":
		return fmt.Sprintf("CASE WHEN isnan(%s) THEN NULL ELSE CAST(trunc(%s) AS BIGINT) END", q, q)
	case "BIGINT":
		return q
	default:
		return fmt.Sprintf("CAST(%s AS BIGINT)", q)
	}
}

func stringExpr(col, typ string) string {
	if typ == "VARCHAR" {
		return quoteIdent(col)
	}
	return fmt.Sprintf("CAST(%s AS VARCHAR)", quoteIdent(col))
}

// Load creates the companies table from path with read_parquet.
func (e *DuckDBEngine) Load(ctx context.Context, path string, limit int64) error {
	e.loaded, e.selected = false, false
	if limit < 0 {
		return &relation.ParamError{Field: "limit", Message: "must not be negative"}
	}
	if err := relation.CheckInput(path); err != nil {
		return err
	}

	conn, release, err := e.db.GetConnection(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer release()

	names, types, err := describeParquet(ctx, conn, path)
	if err != nil {
		return err
	}
	schema, err := relation.ResolveSchema(path, names)
	if err != nil {
		return err
	}

	id := schema.SourceName(relation.ColCompanyID)
	country := schema.SourceName(relation.ColCountry)
	locality := schema.SourceName(relation.ColLocality)
	year := schema.SourceName(relation.ColYearFounded)

	where := ""
	if limit > 0 {
		where = fmt.Sprintf("\nWHERE file_row_number < %d", limit)
	}
	load := fmt.Sprintf(`CREATE TABLE %s AS
SELECT file_row_number AS file_row,
       %s AS company_id,
       %s AS country,
       %s AS locality,
       %s AS year_founded
FROM read_parquet('%s', file_row_number = true)%s`,
		tableCompanies,
		intExpr(id, types[id]),
		stringExpr(country, types[country]),
		stringExpr(locality, types[locality]),
		intExpr(year, types[year]),
		duckdbx.EscapeSingle(path), where)

	for _, stmt := range []string{dropSQL(tableFinal), dropSQL(tableCompanies), load} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("load %s: %w (SQL: %s)", path, err, stmt)
		}
	}

	var nullIDs int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE company_id IS NULL", tableCompanies)).Scan(&nullIDs); err != nil {
		return err
	}
	if nullIDs > 0 {
		return fmt.Errorf("load %s: %d rows with null %s", path, nullIDs, relation.ColCompanyID)
	}
	if err := queryDuplicateID(ctx, conn, path); err != nil {
		return err
	}
	e.loaded = true
	return nil
}

// TopCountries runs the ranking aggregate.
func (e *DuckDBEngine) TopCountries(ctx context.Context, k int, policy relation.Policy) ([]relation.CountryCount, error) {
	if !e.loaded {
		return nil, errNotLoaded
	}
	if err := validateTopK(k); err != nil {
		return nil, err
	}
	conn, release, err := e.db.GetConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	defer release()

	rows, err := conn.QueryContext(ctx, rankSQL(k, policy))
	if err != nil {
		return nil, fmt.Errorf("rank countries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCountryCounts(rows)
}

// SelectCompanies materializes the final companies table.
func (e *DuckDBEngine) SelectCompanies(ctx context.Context, countries []string, policy relation.Policy) ([]int64, error) {
	if !e.loaded {
		return nil, errNotLoaded
	}
	e.selected = false
	conn, release, err := e.db.GetConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	defer release()

	for _, stmt := range []string{
		dropSQL(tableTopCountries),
		fmt.Sprintf("CREATE TABLE %s (country VARCHAR)", tableTopCountries),
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w (SQL: %s)", err, stmt)
		}
	}
	if err := appendRows(conn, tableTopCountries, len(countries), func(i int) []driver.Value {
		return []driver.Value{countries[i]}
	}); err != nil {
		return nil, err
	}

	for _, stmt := range []string{dropSQL(tableFinal), selectSQL(policy)} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("select companies: %w (SQL: %s)", err, stmt)
		}
	}

	rows, err := conn.QueryContext(ctx, finalIDsSQL())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	e.selected = true
	return ids, nil
}

// appendRows bulk loads n rows into table through a DuckDB appender.
func appendRows(conn *sql.Conn, table string, n int, row func(i int) []driver.Value) error {
	appender, err := duckdbx.NewAppender(conn, "main", table)
	if err != nil {
		return err
	}
	for i := range n {
		if err := appender.AppendRow(row(i)...); err != nil {
			_ = appender.Close()
			return fmt.Errorf("append to %s: %w", table, err)
		}
	}
	if err := appender.Close(); err != nil {
		return fmt.Errorf("close appender for %s: %w", table, err)
	}
	return nil
}

// Assemble loads persons and assignments and runs the join.
func (e *DuckDBEngine) Assemble(ctx context.Context, persons *relation.PersonAges, assignments *relation.Assignments) (*relation.Table, error) {
	if !e.selected {
		return nil, errNotSelected
	}
	conn, release, err := e.db.GetConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	defer release()

	for _, stmt := range []string{
		dropSQL(tablePersons),
		dropSQL(tableAssignments),
		fmt.Sprintf("CREATE TABLE %s (person_id BIGINT, age BIGINT)", tablePersons),
		fmt.Sprintf("CREATE TABLE %s (person_id BIGINT, company_id BIGINT)", tableAssignments),
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w (SQL: %s)", err, stmt)
		}
	}
	if err := appendRows(conn, tablePersons, persons.Len(), func(i int) []driver.Value {
		return []driver.Value{persons.PersonID[i], persons.Age[i]}
	}); err != nil {
		return nil, err
	}
	if err := appendRows(conn, tableAssignments, assignments.Len(), func(i int) []driver.Value {
		return []driver.Value{assignments.PersonID[i], assignments.CompanyID[i]}
	}); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, joinSQL())
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTable(rows, assignments.Len())
}

// Close drops the working tables and closes the database.
func (e *DuckDBEngine) Close() error {
	var result *multierror.Error
	if e.loaded {
		ctx := context.Background()
		if err := e.exec(ctx,
			dropSQL(tableAssignments),
			dropSQL(tablePersons),
			dropSQL(tableFinal),
			dropSQL(tableTopCountries),
			dropSQL(tableCompanies),
		); err != nil {
			result = multierror.Append(result, err)
		}
	}
	e.loaded, e.selected = false, false
	if err := e.db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
