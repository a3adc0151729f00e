package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"

	"lorehub/internal/extract"
	"lorehub/internal/models"
	"lorehub/internal/synthesis"
)

// Uploads above this size are rejected before extraction
const maxUploadBytes = 50 * 1024 * 1024 // 50MB

// ContentService turns raw sources (file uploads, pasted text, web pages)
// into stored content units. Extraction to plain text happens here;
// knowledge synthesis over the stored units is the engine's job.
type ContentService struct {
	storage *KnowledgeStorageService
	llm     *LLMFactory
	scraper *ScraperService
}

// NewContentService creates a content ingestion service
func NewContentService(storage *KnowledgeStorageService, llm *LLMFactory) *ContentService {
	return &ContentService{
		storage: storage,
		llm:     llm,
		scraper: GetScraperService(),
	}
}

// IngestFile extracts text from an uploaded file and stores it as a
// content unit named after the file. Re-uploading the same name replaces
// the body and recomputes the hash, which is what change detection keys on.
// Images go through vision OCR instead of text extraction.
func (s *ContentService) IngestFile(ctx context.Context, projectID, filename string, data []byte) (*models.ContentUnit, bool, error) {
	if projectID == "" {
		return nil, false, fmt.Errorf("project ID is required")
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, false, fmt.Errorf("filename is required")
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("file %q is empty", filename)
	}
	if len(data) > maxUploadBytes {
		return nil, false, fmt.Errorf("file %q exceeds the %dMB upload limit", filename, maxUploadBytes/(1024*1024))
	}

	if extract.DetectFormat(filename) == extract.FormatImage {
		return s.ingestImage(ctx, projectID, filename, data)
	}

	res, err := extract.FromFile(filename, data)
	if err != nil {
		return nil, false, err
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, false, fmt.Errorf("no text could be extracted from %q", filename)
	}

	return s.storeUnit(ctx, &models.ContentUnit{
		ProjectID: projectID,
		Name:      filename,
		Kind:      kindForFormat(res.Format),
		Body:      text,
	})
}

// IngestText stores pasted or API-submitted text as a content unit. kind
// may be empty (document) or any known content kind.
func (s *ContentService) IngestText(ctx context.Context, projectID, name, text, kind string) (*models.ContentUnit, bool, error) {
	if projectID == "" {
		return nil, false, fmt.Errorf("project ID is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("content name is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false, fmt.Errorf("content text is empty")
	}

	switch kind {
	case "":
		kind = models.ContentKindDocument
	case models.ContentKindDocument, models.ContentKindTranscript, models.ContentKindSlides,
		models.ContentKindSpreadsheet, models.ContentKindWebPage, models.ContentKindImage:
	default:
		return nil, false, fmt.Errorf("unknown content kind %q", kind)
	}
	if kind == models.ContentKindTranscript {
		text = extract.CleanTranscript(text)
	}

	return s.storeUnit(ctx, &models.ContentUnit{
		ProjectID: projectID,
		Name:      name,
		Kind:      kind,
		Body:      text,
	})
}

// IngestURL scrapes a web page and stores its main content as a unit.
// Re-ingesting a URL updates the unit created by the first scrape even if
// the page title changed in between.
func (s *ContentService) IngestURL(ctx context.Context, projectID, pageURL string) (*models.ContentUnit, bool, error) {
	if projectID == "" {
		return nil, false, fmt.Errorf("project ID is required")
	}
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, false, fmt.Errorf("url is required")
	}

	page, err := s.scraper.ScrapePage(ctx, pageURL, projectID, 0)
	if err != nil {
		return nil, false, fmt.Errorf("failed to scrape %s: %w", pageURL, err)
	}
	text := strings.TrimSpace(page.Text)
	if text == "" {
		return nil, false, fmt.Errorf("no readable content at %s", pageURL)
	}

	name := strings.TrimSpace(page.Title)
	if name == "" {
		name = displayNameForURL(pageURL)
	}
	if existing, err := s.storage.ContentUnitBySourceURL(ctx, projectID, pageURL); err != nil {
		log.Printf("⚠️ [CONTENT] Source URL lookup failed for %s: %v", pageURL, err)
	} else if existing != nil {
		name = existing.Name
	}

	body := text
	if page.Author != "" || !page.Published.IsZero() {
		var meta []string
		if page.Author != "" {
			meta = append(meta, "Author: "+page.Author)
		}
		if !page.Published.IsZero() {
			meta = append(meta, "Published: "+page.Published.Format("2006-01-02"))
		}
		body = strings.Join(meta, "\n") + "\n\n" + text
	}

	return s.storeUnit(ctx, &models.ContentUnit{
		ProjectID: projectID,
		Name:      name,
		Kind:      models.ContentKindWebPage,
		Body:      body,
		SourceURL: pageURL,
	})
}

// ingestImage runs vision OCR over an uploaded image and stores the
// recognized text as the unit body, so images synthesize like documents.
func (s *ContentService) ingestImage(ctx context.Context, projectID, filename string, data []byte) (*models.ContentUnit, bool, error) {
	client, err := s.llm.SynthesisClient(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("vision OCR unavailable: %w", err)
	}

	log.Printf("🖼️ [CONTENT] Running vision OCR on %q (%d bytes)", filename, len(data))
	res, err := client.GenerateVision(ctx, synthesis.VisionRequest{
		Prompt: synthesis.OCRPromptFor(client.VisionModelName()),
		Images: []synthesis.Image{{
			MimeType: extract.MimeTypeForImage(filename),
			Data:     data,
		}},
		Temperature: 0.1,
		MaxTokens:   4096,
	})
	if err != nil {
		return nil, false, fmt.Errorf("vision OCR failed for %q: %w", filename, err)
	}

	text := strings.TrimSpace(synthesis.CleanOCROutput(res.Text))
	if text == "" {
		return nil, false, fmt.Errorf("no text recognized in %q", filename)
	}

	return s.storeUnit(ctx, &models.ContentUnit{
		ProjectID: projectID,
		Name:      filename,
		Kind:      models.ContentKindImage,
		Body:      text,
	})
}

func (s *ContentService) storeUnit(ctx context.Context, unit *models.ContentUnit) (*models.ContentUnit, bool, error) {
	stored, created, err := s.storage.UpsertContentUnit(ctx, unit)
	if err != nil {
		return nil, false, err
	}
	if m := GetMetrics(); m != nil {
		m.RecordUnitIngested(stored.Kind)
	}
	return stored, created, nil
}

// kindForFormat maps an extraction format to the stored content kind
func kindForFormat(format extract.Format) string {
	switch format {
	case extract.FormatTranscript:
		return models.ContentKindTranscript
	case extract.FormatPPTX:
		return models.ContentKindSlides
	case extract.FormatXLSX:
		return models.ContentKindSpreadsheet
	case extract.FormatImage:
		return models.ContentKindImage
	default:
		return models.ContentKindDocument
	}
}

// displayNameForURL falls back to host+path when a page has no title
func displayNameForURL(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return pageURL
	}
	name := parsed.Host + strings.TrimSuffix(parsed.Path, "/")
	return name
}
