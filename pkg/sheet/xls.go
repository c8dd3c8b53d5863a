package sheet

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

const (
	xlsCharset = "utf-8"
	// BIFF8 column limit
	xlsMaxCols = 256
)

func readXLS(content []byte) (records [][]string, err error) {
	// the BIFF decoder panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("reading xls workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(content), xlsCharset)
	if err != nil {
		return nil, fmt.Errorf("opening xls workbook: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, ErrNoSheet
	}

	s := wb.GetSheet(0)
	if s == nil {
		return nil, ErrNoSheet
	}

	records = make([][]string, 0, int(s.MaxRow)+1)
	for i := 0; i <= int(s.MaxRow); i++ {
		records = append(records, xlsCells(xlsRow(s, i)))
	}
	return records, nil
}

// xlsRow returns row i, or nil when the sheet holds nothing for it.
func xlsRow(s *xls.WorkSheet, i int) (row *xls.Row) {
	// WorkSheet.Row dereferences the missing entry
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return s.Row(i)
}

func xlsCells(row *xls.Row) []string {
	if row == nil {
		return nil
	}

	// rows built from cell records alone, without a ROW record, carry no bounds
	last, bounded := row.LastCol(), true
	if last <= 0 {
		last, bounded = xlsMaxCols, false
	}

	cells := make([]string, last)
	for c := max(row.FirstCol(), 0); c < last; c++ {
		cells[c] = row.Col(c)
	}
	if bounded {
		return cells
	}

	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}
