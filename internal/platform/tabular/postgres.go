package tabular

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ddx/ddx/internal/domain/knowledge"
	"github.com/ddx/ddx/pkg/pagination"
)

// batchSize is the number of rows fetched per round trip.
const batchSize = 1000

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresSource reads relation records from a PostgreSQL table with
// disease and symptom text columns, in id order.
type PostgresSource struct {
	conn  queryable
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSource reads table through pool. Close releases the pool.
func NewPostgresSource(pool *pgxpool.Pool, table string) *PostgresSource {
	return &PostgresSource{conn: pool, pool: pool, table: table}
}

func newPostgresSourceWithConn(conn queryable, table string) *PostgresSource {
	return &PostgresSource{conn: conn, table: table}
}

func (s *PostgresSource) Name() string { return "postgres:" + s.table }

func (s *PostgresSource) Records(ctx context.Context) ([]knowledge.Record, error) {
	base := fmt.Sprintf(`SELECT COALESCE(disease, ''), COALESCE(symptom, '') FROM %s ORDER BY id `,
		pgx.Identifier{s.table}.Sanitize())

	var records []knowledge.Record
	page := pagination.Params{Limit: batchSize}
	for {
		n, err := s.fetch(ctx, base+page.SQL(), &records)
		if err != nil {
			return nil, err
		}
		if n < page.Limit {
			return records, nil
		}
		page.Offset = page.NextOffset()
	}
}

func (s *PostgresSource) fetch(ctx context.Context, query string, out *[]knowledge.Record) (int, error) {
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var rec knowledge.Record
		if err := rows.Scan(&rec.Disease, &rec.Symptom); err != nil {
			return 0, fmt.Errorf("scan %s: %w", s.table, err)
		}
		*out = append(*out, rec)
		n++
	}
	return n, rows.Err()
}

func (s *PostgresSource) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
