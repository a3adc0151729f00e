package services

import (
	"log"
	"time"

	"lorehub/internal/health"
)

// NewProviderHealth builds the provider health service over the provider
// store and registers the completion-based check strategies. Providers
// themselves are registered by the LLM factory as runs resolve them, so
// the tracked set follows providers.json reloads without a restart.
func NewProviderHealth(providers *ProviderService) *health.Service {
	getter := func(id int) (*health.ProviderInfo, error) {
		p, err := providers.GetByID(id)
		if err != nil {
			return nil, err
		}
		return &health.ProviderInfo{
			ID:      p.ID,
			Name:    p.Name,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Enabled: p.Enabled,
		}, nil
	}

	svc := health.NewService(getter, 3, 1*time.Hour)
	svc.RegisterStrategy(&health.TextHealthCheck{})
	svc.RegisterStrategy(&health.VisionHealthCheck{})

	log.Println("🩺 Provider health monitoring ready (text, vision)")
	return svc
}
