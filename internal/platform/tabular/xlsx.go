package tabular

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

// XLSXSource reads one sheet of an Excel workbook with Disease and Symptom
// columns, every cell taken as text.
type XLSXSource struct {
	noopCloser
	path  string
	sheet string
}

// NewXLSXSource reads sheet from the workbook at path; an empty sheet means
// the first one.
func NewXLSXSource(path, sheet string) *XLSXSource {
	return &XLSXSource{path: path, sheet: sheet}
}

func (s *XLSXSource) Name() string { return "xlsx:" + s.path }

func (s *XLSXSource) Records(ctx context.Context) ([]knowledge.Record, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", s.path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return recordsFromRows(rows)
}
