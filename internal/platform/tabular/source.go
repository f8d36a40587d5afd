// Package tabular reads disease/symptom relation records from spreadsheets,
// flat files and SQL tables, and writes knowledge bases back out.
package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/domain/knowledge"
	"github.com/ddx/ddx/internal/platform/db"
)

// Column headers recognised in tabular sources, matched case-insensitively.
const (
	DiseaseColumn = "Disease"
	SymptomColumn = "Symptom"
)

// DefaultTable is the SQL table read when none is configured.
const DefaultTable = "disease_symptom"

// ErrUnsupportedSource is returned by Open for locations it cannot read.
var ErrUnsupportedSource = errors.New("unsupported knowledge base source")

// Source is a knowledge.Source holding resources that must be released.
type Source interface {
	knowledge.Source
	io.Closer
}

// Options selects what to read from a source location.
type Options struct {
	// Sheet names the spreadsheet tab; the first sheet is used when empty.
	Sheet string
	// Table names the SQL table; DefaultTable is used when empty.
	Table    string
	MaxConns int32
	MinConns int32
}

// Open returns the source for location, chosen by URL scheme or file
// extension: postgres:// and postgresql:// URLs, sqlite:// paths, and
// .xlsx, .csv, .yaml/.yml, .db/.sqlite files.
func Open(ctx context.Context, location string, opts Options, logger zerolog.Logger) (Source, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: location, MaxConns: opts.MaxConns, MinConns: opts.MinConns}, logger)
		if err != nil {
			return nil, err
		}
		return NewPostgresSource(pool, opts.Table), nil
	case strings.HasPrefix(location, "sqlite://"):
		return OpenSQLite(strings.TrimPrefix(location, "sqlite://"), opts.Table)
	}

	switch strings.ToLower(filepath.Ext(location)) {
	case ".xlsx", ".xlsm":
		return NewXLSXSource(location, opts.Sheet), nil
	case ".csv":
		return NewCSVSource(location), nil
	case ".yaml", ".yml":
		return NewYAMLSource(location), nil
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(location, opts.Table)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, location)
}

// recordsFromRows converts a header row plus data rows into records. Extra
// columns are ignored, short rows yield empty fields and blank rows are
// dropped.
func recordsFromRows(rows [][]string) ([]knowledge.Record, error) {
	if len(rows) == 0 {
		return nil, errors.New("no header row")
	}
	di, si, err := columnIndex(rows[0])
	if err != nil {
		return nil, err
	}

	records := make([]knowledge.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := knowledge.Record{Disease: cell(row, di), Symptom: cell(row, si)}
		if strings.TrimSpace(rec.Disease) == "" && strings.TrimSpace(rec.Symptom) == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func columnIndex(header []string) (disease, symptom int, err error) {
	disease, symptom = -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case strings.EqualFold(h, DiseaseColumn) && disease < 0:
			disease = i
		case strings.EqualFold(h, SymptomColumn) && symptom < 0:
			symptom = i
		}
	}
	if disease < 0 || symptom < 0 {
		return 0, 0, fmt.Errorf("header must contain %q and %q columns, got %v", DiseaseColumn, SymptomColumn, header)
	}
	return disease, symptom, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
