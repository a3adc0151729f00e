package handlers

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/models"
	"lorehub/internal/services"
)

// KnowledgeHandler handles knowledge base browsing and manual curation
type KnowledgeHandler struct {
	storage  *services.KnowledgeStorageService
	projects *services.ProjectService
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(storage *services.KnowledgeStorageService, projects *services.ProjectService) *KnowledgeHandler {
	return &KnowledgeHandler{
		storage:  storage,
		projects: projects,
	}
}

// limitParam parses the limit query parameter with clamping
func limitParam(c *fiber.Ctx, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// Overview returns the per-category knowledge counts for a project
// GET /api/projects/:id/knowledge
func (h *KnowledgeHandler) Overview(c *fiber.Ctx) error {
	projectID := c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := h.storage.Counts(ctx, projectID)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to count for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch knowledge overview",
		})
	}

	return c.JSON(counts)
}

// Facts returns a project's facts, newest first
// GET /api/projects/:id/knowledge/facts
func (h *KnowledgeHandler) Facts(c *fiber.Ctx) error {
	projectID := c.Params("id")
	limit := limitParam(c, 100, 500)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	facts, err := h.storage.RecentFacts(ctx, projectID, limit)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to fetch facts for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch facts",
		})
	}

	return c.JSON(fiber.Map{
		"facts": facts,
		"count": len(facts),
	})
}

// Decisions returns a project's decisions, newest first
// GET /api/projects/:id/knowledge/decisions
func (h *KnowledgeHandler) Decisions(c *fiber.Ctx) error {
	projectID := c.Params("id")
	limit := limitParam(c, 100, 500)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	decisions, err := h.storage.RecentDecisions(ctx, projectID, limit)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to fetch decisions for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch decisions",
		})
	}

	return c.JSON(fiber.Map{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// Risks returns a project's risks, newest first
// GET /api/projects/:id/knowledge/risks
func (h *KnowledgeHandler) Risks(c *fiber.Ctx) error {
	projectID := c.Params("id")
	limit := limitParam(c, 100, 500)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	risks, err := h.storage.RecentRisks(ctx, projectID, limit)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to fetch risks for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch risks",
		})
	}

	return c.JSON(fiber.Map{
		"risks": risks,
		"count": len(risks),
	})
}

// Questions returns a project's questions, optionally filtered by status
// GET /api/projects/:id/knowledge/questions?status=pending
func (h *KnowledgeHandler) Questions(c *fiber.Ctx) error {
	projectID := c.Params("id")
	limit := limitParam(c, 100, 500)

	status := strings.TrimSpace(c.Query("status"))
	switch status {
	case "", models.QuestionStatusPending, models.QuestionStatusAssigned,
		models.QuestionStatusResolved, models.QuestionStatusDismissed:
	case "open":
		// Convenience filter covering both non-terminal states
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		questions, err := h.storage.PendingQuestions(ctx, projectID, limit)
		if err != nil {
			log.Printf("❌ [KNOWLEDGE] Failed to fetch open questions for %s: %v", projectID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to fetch questions",
			})
		}
		return c.JSON(fiber.Map{
			"questions": questions,
			"count":     len(questions),
		})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown question status filter",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	questions, err := h.storage.Questions(ctx, projectID, status, limit)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to fetch questions for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch questions",
		})
	}

	return c.JSON(fiber.Map{
		"questions": questions,
		"count":     len(questions),
	})
}

// ResolveQuestionRequest is the payload for answering a question
type ResolveQuestionRequest struct {
	Answer string `json:"answer"`
}

// ResolveQuestion records a user-provided answer on an open question
// POST /api/projects/:id/knowledge/questions/:questionId/resolve
func (h *KnowledgeHandler) ResolveQuestion(c *fiber.Ctx) error {
	projectID := c.Params("id")
	questionID := c.Params("questionId")

	var req ResolveQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Answer = strings.TrimSpace(req.Answer)
	if req.Answer == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "An answer is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.storage.ResolveQuestion(ctx, projectID, questionID, req.Answer, models.AnswerSourceUser); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if m := services.GetMetrics(); m != nil {
		m.RecordQuestionsResolved(models.AnswerSourceUser, 1)
	}

	return c.JSON(fiber.Map{
		"message": "Question resolved",
	})
}

// AssignQuestionRequest is the payload for assigning a question
type AssignQuestionRequest struct {
	Assignee string `json:"assignee"`
}

// AssignQuestion marks an open question as assigned to someone
// POST /api/projects/:id/knowledge/questions/:questionId/assign
func (h *KnowledgeHandler) AssignQuestion(c *fiber.Ctx) error {
	projectID := c.Params("id")
	questionID := c.Params("questionId")

	var req AssignQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Assignee = strings.TrimSpace(req.Assignee)
	if req.Assignee == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "An assignee is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.storage.AssignQuestion(ctx, projectID, questionID, req.Assignee); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Question assigned",
	})
}

// DismissQuestion closes an open question without an answer
// POST /api/projects/:id/knowledge/questions/:questionId/dismiss
func (h *KnowledgeHandler) DismissQuestion(c *fiber.Ctx) error {
	projectID := c.Params("id")
	questionID := c.Params("questionId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.storage.DismissQuestion(ctx, projectID, questionID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Question dismissed",
	})
}

// Actions returns a project's action items, optionally filtered by status
// GET /api/projects/:id/knowledge/actions?status=pending
func (h *KnowledgeHandler) Actions(c *fiber.Ctx) error {
	projectID := c.Params("id")
	limit := limitParam(c, 100, 500)

	status := strings.TrimSpace(c.Query("status"))
	switch status {
	case "", models.ActionStatusPending, models.ActionStatusCompleted, models.ActionStatusCancelled:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown action status filter",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	actions, err := h.storage.Actions(ctx, projectID, status, limit)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to fetch actions for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch actions",
		})
	}

	return c.JSON(fiber.Map{
		"actions": actions,
		"count":   len(actions),
	})
}

// CompleteActionRequest is the payload for completing an action item
type CompleteActionRequest struct {
	Note string `json:"note,omitempty"`
}

// CompleteAction marks a pending action item as done
// POST /api/projects/:id/knowledge/actions/:actionId/complete
func (h *KnowledgeHandler) CompleteAction(c *fiber.Ctx) error {
	projectID := c.Params("id")
	actionID := c.Params("actionId")

	var req CompleteActionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.storage.CompleteAction(ctx, projectID, actionID, strings.TrimSpace(req.Note)); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Action completed",
	})
}

// CancelAction drops a pending action item
// POST /api/projects/:id/knowledge/actions/:actionId/cancel
func (h *KnowledgeHandler) CancelAction(c *fiber.Ctx) error {
	projectID := c.Params("id")
	actionID := c.Params("actionId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.storage.CancelAction(ctx, projectID, actionID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Action cancelled",
	})
}

// People returns everyone mentioned in a project's knowledge base
// GET /api/projects/:id/knowledge/people
func (h *KnowledgeHandler) People(c *fiber.Ctx) error {
	projectID := c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	people, err := h.storage.People(ctx, projectID)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to fetch people for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch people",
		})
	}

	return c.JSON(fiber.Map{
		"people": people,
		"count":  len(people),
	})
}

// Relationships returns the project's entity relationship graph edges
// GET /api/projects/:id/knowledge/relationships
func (h *KnowledgeHandler) Relationships(c *fiber.Ctx) error {
	projectID := c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	relationships, err := h.storage.Relationships(ctx, projectID)
	if err != nil {
		log.Printf("❌ [KNOWLEDGE] Failed to fetch relationships for %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch relationships",
		})
	}

	return c.JSON(fiber.Map{
		"relationships": relationships,
		"count":         len(relationships),
	})
}
