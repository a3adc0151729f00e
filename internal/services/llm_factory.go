package services

import (
	"context"
	"fmt"
	"log"

	"lorehub/internal/health"
	"lorehub/internal/llm"
	"lorehub/internal/models"
)

// LLMFactory resolves the configured provider and the system model
// assignments into ready LLM clients. Clients are built per call so a
// provider or assignment change applies to the next run without a
// restart.
type LLMFactory struct {
	providers *ProviderService
	settings  *SettingsService
	health    *health.Service
}

// NewLLMFactory creates a factory over the provider and settings stores
func NewLLMFactory(providers *ProviderService, settings *SettingsService) *LLMFactory {
	return &LLMFactory{providers: providers, settings: settings}
}

// SetHealth enables health-aware provider selection. Without it the
// factory always uses the default provider.
func (f *LLMFactory) SetHealth(h *health.Service) {
	f.health = h
}

// SynthesisClient builds the client used for extraction, synthesis, and
// vision OCR. The synthesizer assignment overrides the provider's default
// model; the vision assignment overrides its vision model.
func (f *LLMFactory) SynthesisClient(ctx context.Context) (*llm.Client, error) {
	provider, assignments, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(*provider, assignments.Synthesizer, assignments.VisionOCR), nil
}

// SummaryClient builds the client for the summary backfill pass. Returns
// (nil, nil) when no dedicated summary model is assigned, in which case
// callers stick with the synthesis client.
func (f *LLMFactory) SummaryClient(ctx context.Context) (*llm.Client, error) {
	provider, assignments, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if assignments.SummaryGenerator == "" {
		return nil, nil
	}
	return llm.NewClient(*provider, assignments.SummaryGenerator, assignments.VisionOCR), nil
}

func (f *LLMFactory) resolve(ctx context.Context) (*models.Provider, *models.SystemModelAssignments, error) {
	assignments, err := f.settings.GetSystemModelAssignments(ctx)
	if err != nil {
		log.Printf("⚠️ [LLM] Model assignments unavailable, using provider defaults: %v", err)
		assignments = &models.SystemModelAssignments{}
	}

	provider, err := f.pickProvider(assignments)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve LLM provider: %w", err)
	}

	return provider, assignments, nil
}

// pickProvider returns the first enabled provider currently passing text
// health checks. Candidates are (re)registered on every resolve so the
// health service tracks providers added or removed through providers.json
// reloads. When every candidate is unhealthy the default provider is used
// anyway rather than refusing to run.
func (f *LLMFactory) pickProvider(assignments *models.SystemModelAssignments) (*models.Provider, error) {
	if f.health == nil {
		return f.providers.GetDefault()
	}

	candidates, err := f.providers.GetAll()
	if err != nil || len(candidates) == 0 {
		return f.providers.GetDefault()
	}

	var chosen *models.Provider
	priority := 100
	for i := range candidates {
		p := &candidates[i]

		textModel := assignments.Synthesizer
		if textModel == "" {
			textModel = p.DefaultModel
		}
		visionModel := assignments.VisionOCR
		if visionModel == "" {
			visionModel = p.VisionModel
		}

		if visionModel != "" {
			f.health.RegisterProvider(health.CapabilityVision, p.ID, p.Name, visionModel, priority)
		}
		if textModel == "" {
			// Cannot serve completions without a model name.
			continue
		}
		f.health.RegisterProvider(health.CapabilityText, p.ID, p.Name, textModel, priority)
		priority -= 10

		if chosen == nil && f.health.IsProviderHealthy(health.CapabilityText, p.ID, textModel) {
			chosen = p
		}
	}

	if chosen != nil {
		return chosen, nil
	}

	log.Printf("⚠️ [LLM] No healthy provider for text completions, falling back to default")
	return f.providers.GetDefault()
}
