package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF pulls plain text out of a PDF page by page. Pages that fail
// text extraction are skipped rather than failing the whole file.
func extractPDF(data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	if totalPages > maxPDFPages {
		return nil, fmt.Errorf("PDF has too many pages (%d), max allowed is %d", totalPages, maxPDFPages)
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		cleaned := strings.TrimSpace(normalizeWhitespace(strings.ReplaceAll(text, "\x00", "")))
		if cleaned == "" {
			continue
		}

		fmt.Fprintf(&b, "\n--- Page %d ---\n%s\n", pageNum, cleaned)

		if b.Len() > maxTextSize {
			break
		}
	}

	return &Result{
		Text:   capText(strings.TrimSpace(b.String())),
		Format: FormatPDF,
		Pages:  totalPages,
	}, nil
}
