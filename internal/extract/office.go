package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

// paragraphs walks OOXML and joins the character data inside each
// namespace-matched <p> element, one output line per paragraph.
func paragraphs(xmlContent []byte, inNamespace func(space string) bool) string {
	var out strings.Builder
	decoder := xml.NewDecoder(bytes.NewReader(xmlContent))

	inParagraph := false
	var current strings.Builder

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" && inNamespace(t.Name.Space) {
				inParagraph = true
				current.Reset()
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inNamespace(t.Name.Space) {
				if inParagraph && current.Len() > 0 {
					out.WriteString(current.String())
					out.WriteString("\n")
				}
				inParagraph = false
			}
		case xml.CharData:
			if !inParagraph {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(text)
		}
	}

	return out.String()
}

func wordprocessingNS(space string) bool {
	return strings.Contains(space, "wordprocessingml")
}

func drawingNS(space string) bool {
	return strings.Contains(space, "drawingml")
}

// extractDOCX pulls paragraph text out of word/document.xml.
func extractDOCX(data []byte) (*Result, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX: %w", err)
	}

	var documentXML []byte
	for _, file := range zipReader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open document.xml: %w", err)
		}
		documentXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read document.xml: %w", err)
		}
		break
	}
	if documentXML == nil {
		return nil, fmt.Errorf("invalid DOCX: missing word/document.xml")
	}

	text := capText(cleanText(paragraphs(documentXML, wordprocessingNS)))

	// Rough page estimate at 500 words per page
	pages := len(strings.Fields(text))/500 + 1

	return &Result{
		Text:   text,
		Format: FormatDOCX,
		Pages:  pages,
	}, nil
}

// extractPPTX pulls paragraph text out of each slide in deck order.
func extractPPTX(data []byte) (*Result, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PPTX: %w", err)
	}

	type slideFile struct {
		num  int
		file *zip.File
	}
	var slides []slideFile

	for _, file := range zipReader.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") || !strings.HasSuffix(file.Name, ".xml") {
			continue
		}
		// ppt/slides/slide12.xml -> 12
		numStr := strings.TrimSuffix(strings.TrimPrefix(path.Base(file.Name), "slide"), ".xml")
		num, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{num: num, file: file})
	}

	if len(slides) == 0 {
		return nil, fmt.Errorf("invalid PPTX: no slides found")
	}

	sort.Slice(slides, func(i, j int) bool {
		return slides[i].num < slides[j].num
	})
	if len(slides) > maxPPTXSlides {
		slides = slides[:maxPPTXSlides]
	}

	var b strings.Builder
	for _, slide := range slides {
		rc, err := slide.file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		slideText := strings.TrimSpace(paragraphs(content, drawingNS))
		if slideText == "" {
			continue
		}

		fmt.Fprintf(&b, "\n--- Slide %d ---\n%s\n", slide.num, slideText)

		if b.Len() > maxTextSize {
			break
		}
	}

	return &Result{
		Text:   capText(cleanText(b.String())),
		Format: FormatPPTX,
		Pages:  len(slides),
	}, nil
}
