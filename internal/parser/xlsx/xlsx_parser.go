// Package xlsx reads the first worksheet (or a named one) of an Office Open
// XML spreadsheet into a records.Batch. Cell values are read raw, so numbers
// arrive as plain numeric strings exactly as a CSV export would carry them.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"propetl/pkg/records"
)

// Options selects the worksheet to read.
type Options struct {
	// Sheet names the worksheet. When empty, the first sheet is used.
	Sheet string
}

// Parse reads r as an XLSX workbook. Leading blank rows are skipped, the next
// row is the header, and fully blank data rows are ignored.
func Parse(r io.Reader, opt Options) (*records.Batch, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	sheet := opt.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx: workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("xlsx: read sheet %q: %w", sheet, err)
	}

	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, fmt.Errorf("xlsx: sheet %q has no header row", sheet)
	}

	header := rows[start]
	headers := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		headers[i] = h
	}

	b := &records.Batch{Columns: headers}
	for j, row := range rows[start+1:] {
		// GetRows keeps interior blank rows, so the index maps to the sheet row
		line := start + j + 2
		if blank(row) {
			continue
		}
		if len(row) > len(headers) && !blank(row[len(headers):]) {
			b.Skipped++
			continue
		}
		rec := make(records.Record, len(headers))
		for i, h := range headers {
			var v any
			if i < len(row) {
				if s := strings.TrimSpace(row[i]); s != "" {
					v = s
				}
			}
			rec[h] = v
		}
		b.Append(rec, line)
	}
	return b, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
