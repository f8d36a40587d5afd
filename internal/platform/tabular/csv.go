package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

// CSVSource reads a comma-separated file with Disease and Symptom columns.
type CSVSource struct {
	noopCloser
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Name() string { return "csv:" + s.path }

func (s *CSVSource) Records(ctx context.Context) ([]knowledge.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return recordsFromRows(rows)
}
