package models

import "time"

// Provider represents an OpenAI-compatible LLM API provider.
type Provider struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	BaseURL      string    `json:"base_url"`
	APIKey       string    `json:"api_key,omitempty"` // Omit from responses for security
	Enabled      bool      `json:"enabled"`
	DefaultModel string    `json:"default_model,omitempty"` // Model used for text extraction and synthesis
	VisionModel  string    `json:"vision_model,omitempty"`  // Model used for image OCR; empty disables vision ingest
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Favicon      string    `json:"favicon,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProvidersConfig represents the providers.json file structure
type ProvidersConfig struct {
	Providers []ProviderConfig `json:"providers"`
}

// ProviderConfig represents a provider configuration from JSON. The file
// is synced into MySQL at startup and re-synced on change.
type ProviderConfig struct {
	Name         string `json:"name"`
	BaseURL      string `json:"base_url"`
	APIKey       string `json:"api_key"`
	Enabled      bool   `json:"enabled"`
	DefaultModel string `json:"default_model,omitempty"`
	VisionModel  string `json:"vision_model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Favicon      string `json:"favicon,omitempty"`
}
