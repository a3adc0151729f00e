package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/services"
)

// ReportHandler handles knowledge report generation and download
type ReportHandler struct {
	reports  *services.ReportService
	projects *services.ProjectService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *services.ReportService, projects *services.ProjectService) *ReportHandler {
	return &ReportHandler{
		reports:  reports,
		projects: projects,
	}
}

// Generate renders a project's knowledge base into a PDF report
// POST /api/projects/:id/report
func (h *ReportHandler) Generate(c *fiber.Ctx) error {
	projectID := c.Params("id")

	project, err := h.projects.GetByID(projectID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	// Collecting the knowledge plus the Chrome render
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	report, err := h.reports.Generate(ctx, project)
	if err != nil {
		log.Printf("❌ [REPORT] Generation failed for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate report",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"report_id":  report.ID,
		"project_id": report.ProjectID,
		"filename":   report.Filename,
		"size":       report.Size,
		"created_at": report.CreatedAt,
	})
}

// Download serves a generated report. Downloaded reports are removed by
// the cleanup job shortly after.
// GET /api/reports/:reportId/download
func (h *ReportHandler) Download(c *fiber.Ctx) error {
	reportID := c.Params("reportId")

	report, exists := h.reports.Report(reportID)
	if !exists {
		log.Printf("⚠️ [REPORT] Report not found: %s", reportID)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Report not found or already expired",
		})
	}

	contentType := report.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Set("Content-Disposition", "attachment; filename=\""+report.Filename+"\"")
	c.Set("Content-Type", contentType)

	if err := c.SendFile(report.FilePath); err != nil {
		log.Printf("❌ [REPORT] Failed to send file: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to download report",
		})
	}

	h.reports.MarkDownloaded(reportID)

	log.Printf("✅ [REPORT] Report downloaded: %s (%d bytes)", report.Filename, report.Size)
	return nil
}
