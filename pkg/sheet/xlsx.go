package sheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// unzipSizeLimit caps the decompressed workbook size.
const unzipSizeLimit = 256 << 20

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content), excelize.Options{
		UnzipSizeLimit: unzipSizeLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening xlsx workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %s: %w", sheets[0], err)
	}
	return rows, nil
}
