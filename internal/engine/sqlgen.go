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
	"fmt"
	"strings"

	"github.com/cardinalhq/companygen/internal/relation"
)

// Table names shared by the SQL backends.
const (
	tableCompanies    = "companies"
	tableTopCountries = "top_countries"
	tableFinal        = "final_companies"
	tablePersons      = "persons"
	tableAssignments  = "assignments"
)

// quoteIdent quotes a column name for SQL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func yearPredicate(policy relation.Policy) string {
	if policy.RequireYearFounded {
		return " AND year_founded IS NOT NULL"
	}
	return ""
}

// rankSQL counts companies per country, ties broken by first appearance.
func rankSQL(k int, policy relation.Policy) string {
	q := fmt.Sprintf(`SELECT country, COUNT(company_id) AS n, MIN(file_row) AS first_row
FROM %s
WHERE country IS NOT NULL%s
GROUP BY country
ORDER BY n DESC, first_row ASC`, tableCompanies, yearPredicate(policy))
	if k > 0 {
		q += fmt.Sprintf("\nLIMIT %d", k)
	}
	return q
}

// selectSQL materializes the eligible companies ordered by id.
func selectSQL(policy relation.Policy) string {
	return fmt.Sprintf(`CREATE TABLE %s AS
SELECT company_id, locality, country
FROM %s
WHERE locality IS NOT NULL
  AND country IN (SELECT country FROM %s)%s
ORDER BY company_id, file_row`, tableFinal, tableCompanies, tableTopCountries, yearPredicate(policy))
}

// duplicateIDSQL returns the smallest company id loaded more than once.
func duplicateIDSQL() string {
	return fmt.Sprintf(`SELECT company_id FROM %s
GROUP BY company_id
HAVING COUNT(*) > 1
ORDER BY company_id
LIMIT 1`, tableCompanies)
}

func finalIDsSQL() string {
	return fmt.Sprintf("SELECT company_id FROM %s ORDER BY company_id", tableFinal)
}

// joinSQL joins the assignments to the final companies and the persons.
func joinSQL() string {
	return fmt.Sprintf(`SELECT a.person_id, a.company_id, f.locality, f.country, p.age
FROM %s a
JOIN %s f ON a.company_id = f.company_id
JOIN %s p ON a.person_id = p.person_id
ORDER BY a.person_id, a.company_id`, tableAssignments, tableFinal, tablePersons)
}

func dropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + table
}

// rowScanner is satisfied by *sql.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanCountryCounts(rows rowScanner) ([]relation.CountryCount, error) {
	var counts []relation.CountryCount
	for rows.Next() {
		var c relation.CountryCount
		if err := rows.Scan(&c.Country, &c.Count, &c.FirstRow); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanIDs(rows rowScanner) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTable(rows rowScanner, capacity int) (*relation.Table, error) {
	out := relation.NewTable(capacity)
	var r relation.ResultRow
	for rows.Next() {
		if err := rows.Scan(&r.PersonID, &r.CompanyID, &r.Locality, &r.Country, &r.Age); err != nil {
			return nil, err
		}
		out.Append(r)
	}
	return out, rows.Err()
}
