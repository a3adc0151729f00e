package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/jobs"
	"lorehub/internal/services"
	"lorehub/internal/synthesis"
)

// SynthesisHandler handles synthesis run triggers and status polling
type SynthesisHandler struct {
	runner    *services.SynthesisRunner
	projects  *services.ProjectService
	schedules *jobs.AutoSynthesis // nil when cron schedules are disabled
}

// NewSynthesisHandler creates a new synthesis handler
func NewSynthesisHandler(runner *services.SynthesisRunner, projects *services.ProjectService, schedules *jobs.AutoSynthesis) *SynthesisHandler {
	return &SynthesisHandler{
		runner:    runner,
		projects:  projects,
		schedules: schedules,
	}
}

// TriggerRequest is the payload for starting a run
type TriggerRequest struct {
	// ForceFull reprocesses every unit, ignoring change detection
	ForceFull bool `json:"force_full"`
}

// Trigger starts a background synthesis run for a project
// POST /api/projects/:id/synthesis
func (h *SynthesisHandler) Trigger(c *fiber.Ctx) error {
	projectID := c.Params("id")

	exists, err := h.projects.Exists(projectID)
	if err != nil {
		log.Printf("❌ [SYNTHESIS] Project check failed for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to verify project",
		})
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	var req TriggerRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if c.Query("force_full") == "true" {
		req.ForceFull = true
	}

	// Reject early when a run already holds this instance. A run on
	// another instance is caught by the cross-instance lock once the
	// background goroutine starts.
	state := h.runner.State(projectID)
	if state.Status == synthesis.StatusRunning {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A synthesis run is already in progress for this project",
			"state": state,
		})
	}

	h.runner.RunAsync(projectID, req.ForceFull)

	log.Printf("🚀 [SYNTHESIS] Run triggered for project %s (force_full: %v)", projectID, req.ForceFull)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message":    "Synthesis run started",
		"project_id": projectID,
		"force_full": req.ForceFull,
	})
}

// Status returns the live progress snapshot for a project
// GET /api/projects/:id/synthesis/status
func (h *SynthesisHandler) Status(c *fiber.Ctx) error {
	projectID := c.Params("id")
	return c.JSON(h.runner.State(projectID))
}

// Schedules returns the currently registered cron schedules
// GET /api/schedules
func (h *SynthesisHandler) Schedules(c *fiber.Ctx) error {
	if h.schedules == nil {
		return c.JSON(fiber.Map{
			"enabled":   false,
			"schedules": map[string]string{},
		})
	}
	return c.JSON(fiber.Map{
		"enabled":   true,
		"schedules": h.schedules.Schedules(),
	})
}
