package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/models"
	"lorehub/internal/services"
)

// SettingsHandler handles provider visibility, system model assignments,
// and feature toggles
type SettingsHandler struct {
	providers *services.ProviderService
	settings  *services.SettingsService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(providers *services.ProviderService, settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		providers: providers,
		settings:  settings,
	}
}

// ListProviders returns the configured providers without credentials
// GET /api/providers
func (h *SettingsHandler) ListProviders(c *fiber.Ctx) error {
	providers, err := h.providers.GetAllIncludingDisabled()
	if err != nil {
		log.Printf("❌ [SETTINGS] Failed to list providers: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch providers",
		})
	}

	// Hide API keys; configuration changes go through providers.json
	type PublicProvider struct {
		ID           int    `json:"id"`
		Name         string `json:"name"`
		Enabled      bool   `json:"enabled"`
		DefaultModel string `json:"default_model,omitempty"`
		VisionModel  string `json:"vision_model,omitempty"`
	}

	publicProviders := make([]PublicProvider, len(providers))
	for i, p := range providers {
		publicProviders[i] = PublicProvider{
			ID:           p.ID,
			Name:         p.Name,
			Enabled:      p.Enabled,
			DefaultModel: p.DefaultModel,
			VisionModel:  p.VisionModel,
		}
	}

	return c.JSON(fiber.Map{
		"providers": publicProviders,
		"count":     len(publicProviders),
	})
}

// GetModelAssignments returns the system model assignments
// GET /api/settings/models
func (h *SettingsHandler) GetModelAssignments(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assignments, err := h.settings.GetSystemModelAssignments(ctx)
	if err != nil {
		log.Printf("❌ [SETTINGS] Failed to read model assignments: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch model assignments",
		})
	}

	return c.JSON(assignments)
}

// SetModelAssignments updates the system model assignments. Empty fields
// fall back to the provider defaults.
// PUT /api/settings/models
func (h *SettingsHandler) SetModelAssignments(c *fiber.Ctx) error {
	var req models.SystemModelAssignments
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.settings.SetSystemModelAssignments(ctx, &req); err != nil {
		log.Printf("❌ [SETTINGS] Failed to save model assignments: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save model assignments",
		})
	}

	log.Printf("✅ [SETTINGS] Model assignments updated (synthesizer: %s)", req.Synthesizer)
	return c.JSON(&req)
}

// TogglesResponse reports the feature toggle states
type TogglesResponse struct {
	ScheduleEnabled bool `json:"schedule_enabled"`
	DigestEnabled   bool `json:"digest_enabled"`
}

// GetToggles returns the feature toggle states
// GET /api/settings/toggles
func (h *SettingsHandler) GetToggles(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scheduleEnabled, err := h.settings.GetBool(ctx, models.SettingKeyScheduleEnabled, true)
	if err != nil {
		log.Printf("⚠️ [SETTINGS] Failed to read schedule toggle: %v", err)
	}
	digestEnabled, err := h.settings.GetBool(ctx, models.SettingKeyDigestEnabled, true)
	if err != nil {
		log.Printf("⚠️ [SETTINGS] Failed to read digest toggle: %v", err)
	}

	return c.JSON(TogglesResponse{
		ScheduleEnabled: scheduleEnabled,
		DigestEnabled:   digestEnabled,
	})
}

// SetTogglesRequest is the payload for updating feature toggles. Nil
// fields are left unchanged.
type SetTogglesRequest struct {
	ScheduleEnabled *bool `json:"schedule_enabled,omitempty"`
	DigestEnabled   *bool `json:"digest_enabled,omitempty"`
}

// SetToggles updates the feature toggles
// PUT /api/settings/toggles
func (h *SettingsHandler) SetToggles(c *fiber.Ctx) error {
	var req SetTogglesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if req.ScheduleEnabled != nil {
		if err := h.settings.SetBool(ctx, models.SettingKeyScheduleEnabled, *req.ScheduleEnabled); err != nil {
			log.Printf("❌ [SETTINGS] Failed to save schedule toggle: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save settings",
			})
		}
		log.Printf("⚙️ [SETTINGS] Scheduled synthesis enabled: %v", *req.ScheduleEnabled)
	}
	if req.DigestEnabled != nil {
		if err := h.settings.SetBool(ctx, models.SettingKeyDigestEnabled, *req.DigestEnabled); err != nil {
			log.Printf("❌ [SETTINGS] Failed to save digest toggle: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save settings",
			})
		}
		log.Printf("⚙️ [SETTINGS] Digest notifications enabled: %v", *req.DigestEnabled)
	}

	return h.GetToggles(c)
}
