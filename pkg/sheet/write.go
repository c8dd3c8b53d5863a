package sheet

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Write renders a header and rows as a single-sheet xlsx workbook.
// NaN and nil values are written as empty cells.
func Write(w io.Writer, columns []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := writeRow(f, 1, header); err != nil {
		return err
	}

	for i, r := range rows {
		if err := writeRow(f, i+2, r); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, n int, values []any) error {
	cells := make([]any, len(values))
	for i, v := range values {
		if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
			v = nil
		}
		cells[i] = v
	}

	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("resolving cell for row %d: %w", n, err)
	}
	if err := f.SetSheetRow(defaultSheet, cell, &cells); err != nil {
		return fmt.Errorf("writing row %d: %w", n, err)
	}
	return nil
}
