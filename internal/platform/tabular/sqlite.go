package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ddx/ddx/internal/domain/knowledge"

	_ "modernc.org/sqlite"
)

// SQLiteSource reads relation records from a table of a SQLite database
// file, in rowid order.
type SQLiteSource struct {
	db    *sql.DB
	path  string
	table string
}

// OpenSQLite opens the database at path.
func OpenSQLite(path, table string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteSource{db: db, path: path, table: table}, nil
}

func (s *SQLiteSource) Name() string { return "sqlite:" + s.path }

func (s *SQLiteSource) Records(ctx context.Context) ([]knowledge.Record, error) {
	query := fmt.Sprintf(`SELECT COALESCE(disease, ''), COALESCE(symptom, '') FROM %s ORDER BY rowid`, quoteIdent(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []knowledge.Record
	for rows.Next() {
		var rec knowledge.Record
		if err := rows.Scan(&rec.Disease, &rec.Symptom); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
