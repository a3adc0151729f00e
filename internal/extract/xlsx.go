package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX renders each sheet as tab-separated rows under a sheet
// header. Empty rows are dropped so sparse sheets stay readable.
func extractXLSX(data []byte) (*Result, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("XLSX has no sheets")
	}
	if len(sheets) > maxXLSXSheets {
		sheets = sheets[:maxXLSXSheets]
	}

	var b strings.Builder
	for _, sheet := range sheets {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			continue
		}

		var lines []string
		for _, row := range rows {
			joined := strings.TrimSpace(strings.Join(row, "\t"))
			if joined == "" {
				continue
			}
			lines = append(lines, joined)
		}
		if len(lines) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n--- Sheet: %s ---\n%s\n", sheet, strings.Join(lines, "\n"))

		if b.Len() > maxTextSize {
			break
		}
	}

	return &Result{
		Text:   capText(cleanText(b.String())),
		Format: FormatXLSX,
		Pages:  len(sheets),
	}, nil
}
