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
	"errors"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite" // Import SQLite driver

	"github.com/cardinalhq/companygen/internal/companyfile"
	"github.com/cardinalhq/companygen/internal/relation"
)

// sqliteMaxParams stays under SQLite's default bound-parameter limit.
const sqliteMaxParams = 30_000

// SQLiteEngine implements Engine with SQL inside an in-memory SQLite
// database. Companies are decoded with parquet-go and bulk inserted.
type SQLiteEngine struct {
	config   Config
	db       *sql.DB
	loaded   bool
	selected bool
}

var _ Engine = (*SQLiteEngine)(nil)

// NewSQLiteEngine opens a private in-memory SQLite database.
func NewSQLiteEngine(cfg Config) (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = OFF; PRAGMA synchronous = OFF; PRAGMA temp_store = MEMORY;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return &SQLiteEngine{config: cfg, db: db}, nil
}

// Name returns the backend name.
func (e *SQLiteEngine) Name() string {
	return string(TypeSQLite)
}

func (e *SQLiteEngine) exec(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w (SQL: %s)", err, stmt)
		}
	}
	return nil
}

// bulkInsert inserts rows with multi-row VALUES statements inside one
// transaction.
func (e *SQLiteEngine) bulkInsert(ctx context.Context, table string, columns []string, n int, row func(i int) []any) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	perRow := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	batch := max(1, min(e.config.batchSize(), sqliteMaxParams/len(columns)))
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	var stmt *sql.Stmt
	stmtRows := 0
	defer func() {
		if stmt != nil {
			_ = stmt.Close()
		}
	}()

	args := make([]any, 0, batch*len(columns))
	for start := 0; start < n; start += batch {
		end := min(start+batch, n)
		if end-start != stmtRows {
			if stmt != nil {
				_ = stmt.Close()
			}
			q := prefix + strings.TrimSuffix(strings.Repeat(perRow+",", end-start), ",")
			if stmt, err = tx.PrepareContext(ctx, q); err != nil {
				return fmt.Errorf("prepare insert into %s: %w", table, err)
			}
			stmtRows = end - start
		}
		args = args[:0]
		for i := start; i < end; i++ {
			args = append(args, row(i)...)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func nullable[T any](v T, valid bool) any {
	if !valid {
		return nil
	}
	return v
}

// Load decodes path with the parquet-go reader and inserts the required
// columns into the companies table.
func (e *SQLiteEngine) Load(ctx context.Context, path string, limit int64) error {
	e.loaded, e.selected = false, false
	r, err := companyfile.Open(path, companyfile.Options{Limit: limit, BatchSize: e.config.batchSize()})
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	if err := e.exec(ctx,
		dropSQL(tableFinal),
		dropSQL(tableCompanies),
		fmt.Sprintf("CREATE TABLE %s (file_row INTEGER, company_id INTEGER NOT NULL, country TEXT, locality TEXT, year_founded INTEGER)", tableCompanies),
	); err != nil {
		return err
	}

	columns := []string{"file_row", "company_id", "country", "locality", "year_founded"}
	for {
		batch, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := e.bulkInsert(ctx, tableCompanies, columns, len(batch), func(i int) []any {
			c := &batch[i]
			return []any{
				c.Row,
				c.CompanyID,
				nullable(c.Country.String, c.Country.Valid),
				nullable(c.Locality.String, c.Locality.Valid),
				nullable(c.YearFounded.Int64, c.YearFounded.Valid),
			}
		}); err != nil {
			return err
		}
	}
	if err := e.exec(ctx, fmt.Sprintf("CREATE INDEX idx_companies_country ON %s (country)", tableCompanies)); err != nil {
		return err
	}
	if err := queryDuplicateID(ctx, e.db, path); err != nil {
		return err
	}
	e.loaded = true
	return nil
}

// TopCountries runs the ranking aggregate.
func (e *SQLiteEngine) TopCountries(ctx context.Context, k int, policy relation.Policy) ([]relation.CountryCount, error) {
	if !e.loaded {
		return nil, errNotLoaded
	}
	if err := validateTopK(k); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, rankSQL(k, policy))
	if err != nil {
		return nil, fmt.Errorf("rank countries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCountryCounts(rows)
}

// SelectCompanies materializes the final companies table.
func (e *SQLiteEngine) SelectCompanies(ctx context.Context, countries []string, policy relation.Policy) ([]int64, error) {
	if !e.loaded {
		return nil, errNotLoaded
	}
	e.selected = false
	if err := e.exec(ctx,
		dropSQL(tableTopCountries),
		fmt.Sprintf("CREATE TABLE %s (country TEXT PRIMARY KEY)", tableTopCountries),
	); err != nil {
		return nil, err
	}
	if err := e.bulkInsert(ctx, tableTopCountries, []string{"country"}, len(countries), func(i int) []any {
		return []any{countries[i]}
	}); err != nil {
		return nil, err
	}
	if err := e.exec(ctx,
		dropSQL(tableFinal),
		selectSQL(policy),
		fmt.Sprintf("CREATE INDEX idx_final_company ON %s (company_id)", tableFinal),
	); err != nil {
		return nil, fmt.Errorf("select companies: %w", err)
	}

	rows, err := e.db.QueryContext(ctx, finalIDsSQL())
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

// Assemble inserts persons and assignments and runs the join.
func (e *SQLiteEngine) Assemble(ctx context.Context, persons *relation.PersonAges, assignments *relation.Assignments) (*relation.Table, error) {
	if !e.selected {
		return nil, errNotSelected
	}
	if err := e.exec(ctx,
		dropSQL(tablePersons),
		dropSQL(tableAssignments),
		fmt.Sprintf("CREATE TABLE %s (person_id INTEGER, age INTEGER)", tablePersons),
		fmt.Sprintf("CREATE TABLE %s (person_id INTEGER, company_id INTEGER)", tableAssignments),
	); err != nil {
		return nil, err
	}
	if err := e.bulkInsert(ctx, tablePersons, []string{"person_id", "age"}, persons.Len(), func(i int) []any {
		return []any{persons.PersonID[i], persons.Age[i]}
	}); err != nil {
		return nil, err
	}
	if err := e.bulkInsert(ctx, tableAssignments, []string{"person_id", "company_id"}, assignments.Len(), func(i int) []any {
		return []any{assignments.PersonID[i], assignments.CompanyID[i]}
	}); err != nil {
		return nil, err
	}
	if err := e.exec(ctx, fmt.Sprintf("CREATE INDEX idx_persons_id ON %s (person_id)", tablePersons)); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, joinSQL())
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTable(rows, assignments.Len())
}

// Close closes the database.
func (e *SQLiteEngine) Close() error {
	e.loaded, e.selected = false, false
	return e.db.Close()
}
