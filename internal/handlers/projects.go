package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/jobs"
	"lorehub/internal/models"
	"lorehub/internal/services"
)

// ProjectHandler handles project CRUD requests
type ProjectHandler struct {
	projects  *services.ProjectService
	storage   *services.KnowledgeStorageService
	schedules *jobs.AutoSynthesis // nil when cron schedules are disabled
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectService, storage *services.KnowledgeStorageService, schedules *jobs.AutoSynthesis) *ProjectHandler {
	return &ProjectHandler{
		projects:  projects,
		storage:   storage,
		schedules: schedules,
	}
}

// List returns all projects
// GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.projects.GetAll()
	if err != nil {
		log.Printf("❌ [PROJECT] Failed to list projects: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch projects",
		})
	}

	return c.JSON(fiber.Map{
		"projects": projects,
		"count":    len(projects),
	})
}

// Get returns one project with its knowledge counts
// GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	projectID := c.Params("id")

	project, err := h.projects.GetByID(projectID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	response := fiber.Map{"project": project}
	if counts, err := h.storage.Counts(ctx, projectID); err != nil {
		log.Printf("⚠️ [PROJECT] Knowledge counts unavailable for %s: %v", projectID, err)
	} else {
		response["knowledge"] = counts
	}

	return c.JSON(response)
}

// Create creates a new project
// POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req models.ProjectCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project name is required",
		})
	}

	project, err := h.projects.Create(req)
	if err != nil {
		log.Printf("❌ [PROJECT] Failed to create project: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.syncSchedules()

	log.Printf("✅ [PROJECT] Created project %q (%s)", project.Name, project.ID)
	return c.Status(fiber.StatusCreated).JSON(project)
}

// Update updates a project. Nil fields in the payload are left unchanged.
// PUT /api/projects/:id
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	projectID := c.Params("id")

	var req models.ProjectUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	exists, err := h.projects.Exists(projectID)
	if err != nil {
		log.Printf("❌ [PROJECT] Existence check failed for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update project",
		})
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	project, err := h.projects.Update(projectID, req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.syncSchedules()

	return c.JSON(project)
}

// Delete removes a project and purges its knowledge base
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	projectID := c.Params("id")

	exists, err := h.projects.Exists(projectID)
	if err != nil {
		log.Printf("❌ [PROJECT] Existence check failed for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete project",
		})
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	if err := h.projects.Delete(projectID); err != nil {
		log.Printf("❌ [PROJECT] Failed to delete project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete project",
		})
	}

	// Purge the derived knowledge. On failure the retention sweep picks the
	// orphaned documents up later.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.storage.PurgeProject(ctx, projectID); err != nil {
		log.Printf("⚠️ [PROJECT] Knowledge purge failed for deleted project %s: %v", projectID, err)
	}

	h.syncSchedules()

	log.Printf("🗑️ [PROJECT] Deleted project %s", projectID)
	return c.JSON(fiber.Map{
		"message": "Project deleted",
	})
}

// syncSchedules reconciles cron jobs after a project mutation. Losing the
// sync is tolerable; the periodic reconcile catches up within minutes.
func (h *ProjectHandler) syncSchedules() {
	if h.schedules == nil {
		return
	}
	if err := h.schedules.Sync(context.Background()); err != nil {
		log.Printf("⚠️ [PROJECT] Schedule sync failed: %v", err)
	}
}
