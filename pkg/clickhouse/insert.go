package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Execer is the part of *sql.DB used for writes.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertChunk bounds the rows sent in one multi-row INSERT.
const insertChunk = 2000

// InsertRows writes rows with multi-row VALUES statements. Every row must
// have len(columns) values.
func InsertRows(ctx context.Context, db Execer, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		chunk := rows[start:end]

		args := make([]any, 0, len(chunk)*len(columns))
		for i, r := range chunk {
			if len(r) != len(columns) {
				return fmt.Errorf("insert %s: row %d has %d values, want %d", table, start+i, len(r), len(columns))
			}
			args = append(args, r...)
		}
		if _, err := db.ExecContext(ctx, insertQuery(table, columns, len(chunk)), args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

// Insert writes rows through the client's pool.
func (c *Client) Insert(ctx context.Context, table string, columns []string, rows [][]any) error {
	return InsertRows(ctx, c.db, table, columns, rows)
}

func insertQuery(table string, columns []string, n int) string {
	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	values := make([]string, n)
	for i := range values {
		values[i] = ph
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "), strings.Join(values, ","))
}
