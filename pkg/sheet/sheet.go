package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const unnamedPrefix = "Unnamed: "

var (
	zipMagic  = []byte{0x50, 0x4B, 0x03, 0x04}
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

	// ErrUnknownFormat is returned when the bytes are neither an xlsx nor an xls workbook.
	ErrUnknownFormat = errors.New("excel file format cannot be determined")
	// ErrNoSheet is returned for workbooks without a readable worksheet.
	ErrNoSheet = errors.New("workbook has no worksheet")

	// pandas default na_values, matched exactly
	missingTokens = map[string]struct{}{
		"":         {},
		"#N/A":     {},
		"#N/A N/A": {},
		"#NA":      {},
		"-1.#IND":  {},
		"-1.#QNAN": {},
		"-NaN":     {},
		"-nan":     {},
		"1.#IND":   {},
		"1.#QNAN":  {},
		"<NA>":     {},
		"N/A":      {},
		"NA":       {},
		"NULL":     {},
		"NaN":      {},
		"None":     {},
		"n/a":      {},
		"nan":      {},
		"null":     {},
	}
)

// Table is the first worksheet of a workbook: a header row and raw cell text.
// Rows are padded to the header width.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Parse decodes workbook bytes into a Table. The workbook type is detected
// from the content, not from any file name.
func Parse(content []byte) (*Table, error) {
	var (
		records [][]string
		err     error
	)

	switch {
	case bytes.HasPrefix(content, zipMagic):
		records, err = readXLSX(content)
	case bytes.HasPrefix(content, ole2Magic):
		records, err = readXLS(content)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}

	return newTable(records), nil
}

func newTable(records [][]string) *Table {
	records = trimTrailingBlank(records)
	if len(records) == 0 {
		return &Table{Columns: []string{}, Rows: [][]string{}}
	}

	width := 0
	for _, r := range records {
		width = max(width, len(r))
	}

	header := pad(records[0], width)
	t := &Table{
		Columns: headerNames(header),
		Rows:    make([][]string, 0, len(records)-1),
	}
	for _, r := range records[1:] {
		t.Rows = append(t.Rows, pad(r, width))
	}
	return t
}

// headerNames names blank header cells by position and de-duplicates repeats
// with a numeric suffix: A, A.1, A.2.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	suffix := make(map[string]int)
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			h = unnamedPrefix + strconv.Itoa(i)
		}
		name := h
		for used[name] {
			suffix[h]++
			name = h + "." + strconv.Itoa(suffix[h])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func trimTrailingBlank(records [][]string) [][]string {
	end := len(records)
	for end > 0 && blank(records[end-1]) {
		end--
	}
	return records[:end]
}

func blank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func pad(r []string, width int) []string {
	out := make([]string, width)
	copy(out, r)
	return out
}

// Index returns the position of each column name.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		idx[c] = i
	}
	return idx
}

// Missing returns the names in cols that are not table columns, in the order given.
func (t *Table) Missing(cols []string) []string {
	idx := t.Index()
	missing := make([]string, 0)
	for _, c := range cols {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Project returns the numeric values of cols, in that order, for every row.
// Missing cells are NaN.
func (t *Table) Project(cols []string) ([][]float64, error) {
	idx := t.Index()
	pos := make([]int, len(cols))
	for i, c := range cols {
		p, ok := idx[c]
		if !ok {
			return nil, fmt.Errorf("column %q not found", c)
		}
		pos[i] = p
	}

	out := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		vals := make([]float64, len(cols))
		for i, p := range pos {
			v, err := ParseNumber(row[p])
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", r+1, cols[i], err)
			}
			vals[i] = v
		}
		out[r] = vals
	}
	return out, nil
}

// ParseNumber converts a cell to a float. Cells equal to a missing-value
// marker become NaN, booleans become 0 or 1. Markers are not trimmed,
// numbers are.
func ParseNumber(cell string) (float64, error) {
	if _, ok := missingTokens[cell]; ok {
		return math.NaN(), nil
	}

	s := strings.TrimSpace(cell)

	switch strings.ToUpper(s) {
	case "TRUE":
		return 1, nil
	case "FALSE":
		return 0, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("could not convert string to float: %q", cell)
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("value out of range: %q", cell)
	}
	return v, nil
}
