// Package extract turns uploaded files into the plain text stored on
// content units. Images are not handled here; they go through vision OCR.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	// Extracted text is capped at 1MB regardless of source size
	maxTextSize      = 1024 * 1024
	truncationNotice = "\n... [Content truncated]"

	maxPDFPages   = 100
	maxPPTXSlides = 200
	maxXLSXSheets = 50
)

// Format identifies a supported upload format.
type Format string

const (
	FormatPDF        Format = "pdf"
	FormatDOCX       Format = "docx"
	FormatPPTX       Format = "pptx"
	FormatXLSX       Format = "xlsx"
	FormatMarkdown   Format = "markdown"
	FormatText       Format = "text"
	FormatTranscript Format = "transcript"
	FormatImage      Format = "image"
	FormatUnknown    Format = "unknown"
)

// Result is the extracted text plus format metadata for one file.
type Result struct {
	Text   string
	Format Format
	Pages  int // pages, slides, or sheets; 0 when not applicable
}

// DetectFormat maps a filename extension to a Format.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".pptx":
		return FormatPPTX
	case ".xlsx":
		return FormatXLSX
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text", ".log":
		return FormatText
	case ".vtt", ".srt":
		return FormatTranscript
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return FormatImage
	default:
		return FormatUnknown
	}
}

// FromFile extracts plain text from an uploaded file.
func FromFile(filename string, data []byte) (*Result, error) {
	switch f := DetectFormat(filename); f {
	case FormatPDF:
		return extractPDF(data)
	case FormatDOCX:
		return extractDOCX(data)
	case FormatPPTX:
		return extractPPTX(data)
	case FormatXLSX:
		return extractXLSX(data)
	case FormatTranscript:
		return &Result{Text: CleanTranscript(string(data)), Format: FormatTranscript}, nil
	case FormatMarkdown, FormatText:
		return &Result{Text: capText(cleanText(string(data))), Format: f}, nil
	case FormatImage:
		return nil, fmt.Errorf("image %q requires vision OCR, not text extraction", filename)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(filename))
	}
}

// MimeTypeForImage returns the MIME type for an image filename.
func MimeTypeForImage(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// cleanText removes null bytes and collapses runs of blank lines.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}

// normalizeWhitespace collapses space runs while preserving line breaks.
func normalizeWhitespace(text string) string {
	var result strings.Builder
	lastWasSpace := false

	for _, r := range text {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				if r == '\n' {
					result.WriteRune('\n')
					lastWasSpace = false
				} else {
					result.WriteRune(' ')
					lastWasSpace = true
				}
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

// capText enforces the global extracted-text size cap.
func capText(text string) string {
	if len(text) <= maxTextSize {
		return text
	}
	return text[:maxTextSize] + truncationNotice
}
