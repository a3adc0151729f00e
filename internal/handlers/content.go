package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/services"
)

// ContentHandler handles content unit ingestion and browsing
type ContentHandler struct {
	content     *services.ContentService
	storage     *services.KnowledgeStorageService
	projects    *services.ProjectService
	maxUploadMB int
}

// NewContentHandler creates a new content handler
func NewContentHandler(content *services.ContentService, storage *services.KnowledgeStorageService, projects *services.ProjectService, maxUploadMB int) *ContentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &ContentHandler{
		content:     content,
		storage:     storage,
		projects:    projects,
		maxUploadMB: maxUploadMB,
	}
}

// IngestTextRequest is the payload for pasted or API-submitted text
type IngestTextRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
	Kind string `json:"kind,omitempty"`
}

// IngestURLRequest is the payload for web page ingestion
type IngestURLRequest struct {
	URL string `json:"url"`
}

// requireProject resolves the :id param and verifies the project exists.
// Returns "" after writing the error response.
func (h *ContentHandler) requireProject(c *fiber.Ctx) string {
	projectID := c.Params("id")
	exists, err := h.projects.Exists(projectID)
	if err != nil {
		log.Printf("❌ [CONTENT] Project check failed for %s: %v", projectID, err)
		c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to verify project",
		})
		return ""
	}
	if !exists {
		c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
		return ""
	}
	return projectID
}

// UploadFile ingests an uploaded file as a content unit
// POST /api/projects/:id/content/upload
func (h *ContentHandler) UploadFile(c *fiber.Ctx) error {
	projectID := h.requireProject(c)
	if projectID == "" {
		return nil
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided or invalid file",
		})
	}

	maxBytes := int64(h.maxUploadMB) * 1024 * 1024
	if fileHeader.Size > maxBytes {
		log.Printf("⚠️ [CONTENT] Upload too large: %d bytes (max %d)", fileHeader.Size, maxBytes)
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large. Maximum size is %d MB", h.maxUploadMB),
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Printf("❌ [CONTENT] Failed to open upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("❌ [CONTENT] Failed to read upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}

	// Image uploads go through vision OCR, which can take a while
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	unit, created, err := h.content.IngestFile(ctx, projectID, fileHeader.Filename, data)
	if err != nil {
		log.Printf("❌ [CONTENT] Ingest failed for %q: %v", fileHeader.Filename, err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"unit":    unit,
		"created": created,
	})
}

// IngestText stores pasted text as a content unit
// POST /api/projects/:id/content/text
func (h *ContentHandler) IngestText(c *fiber.Ctx) error {
	projectID := h.requireProject(c)
	if projectID == "" {
		return nil
	}

	var req IngestTextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	unit, created, err := h.content.IngestText(ctx, projectID, req.Name, req.Text, req.Kind)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"unit":    unit,
		"created": created,
	})
}

// IngestURL scrapes a web page into a content unit
// POST /api/projects/:id/content/url
func (h *ContentHandler) IngestURL(c *fiber.Ctx) error {
	projectID := h.requireProject(c)
	if projectID == "" {
		return nil
	}

	var req IngestURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Scraping a slow site can take a while; robots.txt plus fetch plus parse
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	unit, created, err := h.content.IngestURL(ctx, projectID, req.URL)
	if err != nil {
		log.Printf("❌ [CONTENT] URL ingest failed for %q: %v", req.URL, err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"unit":    unit,
		"created": created,
	})
}

// List returns a project's content units without bodies
// GET /api/projects/:id/content
func (h *ContentHandler) List(c *fiber.Ctx) error {
	projectID := h.requireProject(c)
	if projectID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	units, err := h.storage.ContentUnitsMeta(ctx, projectID)
	if err != nil {
		log.Printf("❌ [CONTENT] Failed to list units for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch content units",
		})
	}

	return c.JSON(fiber.Map{
		"units": units,
		"count": len(units),
	})
}

// Get returns one content unit including its extracted text
// GET /api/projects/:id/content/:unitId
func (h *ContentHandler) Get(c *fiber.Ctx) error {
	projectID := c.Params("id")
	unitID := c.Params("unitId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	unit, err := h.storage.ContentUnit(ctx, projectID, unitID)
	if err != nil {
		log.Printf("❌ [CONTENT] Failed to fetch unit %s: %v", unitID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch content unit",
		})
	}
	if unit == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Content unit not found",
		})
	}

	return c.JSON(fiber.Map{
		"unit": unit,
		"body": unit.Body,
	})
}

// Delete removes a content unit and its synthesis record
// DELETE /api/projects/:id/content/:unitId
func (h *ContentHandler) Delete(c *fiber.Ctx) error {
	projectID := c.Params("id")
	unitID := c.Params("unitId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.storage.DeleteContentUnit(ctx, projectID, unitID); err != nil {
		log.Printf("❌ [CONTENT] Failed to delete unit %s: %v", unitID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete content unit",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Content unit deleted",
	})
}
