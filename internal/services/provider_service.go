package services

import (
	"database/sql"
	"fmt"
	"log"

	"lorehub/internal/database"
	"lorehub/internal/models"
)

// ProviderService handles LLM provider operations
type ProviderService struct {
	db *database.DB
}

// NewProviderService creates a new provider service
func NewProviderService(db *database.DB) *ProviderService {
	return &ProviderService{db: db}
}

const providerColumns = "id, name, base_url, api_key, enabled, default_model, vision_model, system_prompt, favicon, created_at, updated_at"

func scanProvider(row interface{ Scan(dest ...any) error }) (*models.Provider, error) {
	var p models.Provider
	var apiKey, defaultModel, visionModel, systemPrompt, favicon sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.BaseURL, &apiKey, &p.Enabled, &defaultModel, &visionModel, &systemPrompt, &favicon, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.APIKey = apiKey.String
	p.DefaultModel = defaultModel.String
	p.VisionModel = visionModel.String
	p.SystemPrompt = systemPrompt.String
	p.Favicon = favicon.String
	return &p, nil
}

// GetAll returns all enabled providers
func (s *ProviderService) GetAll() ([]models.Provider, error) {
	rows, err := s.db.Query(`
		SELECT ` + providerColumns + `
		FROM providers
		WHERE enabled = 1
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, *p)
	}

	return providers, nil
}

// GetAllIncludingDisabled returns all providers including disabled ones
func (s *ProviderService) GetAllIncludingDisabled() ([]models.Provider, error) {
	rows, err := s.db.Query(`
		SELECT ` + providerColumns + `
		FROM providers
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, *p)
	}

	return providers, nil
}

// GetByID returns a provider by ID
func (s *ProviderService) GetByID(id int) (*models.Provider, error) {
	row := s.db.QueryRow(`
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = ?
	`, id)

	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provider not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provider: %w", err)
	}
	return p, nil
}

// GetByName returns a provider by name, or nil when none exists
func (s *ProviderService) GetByName(name string) (*models.Provider, error) {
	row := s.db.QueryRow(`
		SELECT `+providerColumns+`
		FROM providers
		WHERE name = ?
	`, name)

	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provider: %w", err)
	}
	return p, nil
}

// GetDefault returns the first enabled provider, used when no explicit
// system model assignment exists.
func (s *ProviderService) GetDefault() (*models.Provider, error) {
	row := s.db.QueryRow(`
		SELECT ` + providerColumns + `
		FROM providers
		WHERE enabled = 1
		ORDER BY id
		LIMIT 1
	`)

	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no enabled providers configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provider: %w", err)
	}
	return p, nil
}

// Create creates a new provider
func (s *ProviderService) Create(config models.ProviderConfig) (*models.Provider, error) {
	result, err := s.db.Exec(`
		INSERT INTO providers (name, base_url, api_key, enabled, default_model, vision_model, system_prompt, favicon)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, config.Name, config.BaseURL, config.APIKey, config.Enabled, config.DefaultModel, config.VisionModel, config.SystemPrompt, config.Favicon)

	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inserted ID: %w", err)
	}

	log.Printf("   ✅ Created provider %s with ID %d", config.Name, id)
	return s.GetByID(int(id))
}

// Update updates an existing provider
func (s *ProviderService) Update(id int, config models.ProviderConfig) error {
	_, err := s.db.Exec(`
		UPDATE providers
		SET base_url = ?, api_key = ?, enabled = ?, default_model = ?, vision_model = ?,
		    system_prompt = ?, favicon = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, config.BaseURL, config.APIKey, config.Enabled, config.DefaultModel, config.VisionModel,
		config.SystemPrompt, config.Favicon, id)

	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}

	log.Printf("   ✅ Updated provider %s (ID %d)", config.Name, id)
	return nil
}

// Delete removes a provider from the database
func (s *ProviderService) Delete(id int) error {
	_, err := s.db.Exec(`DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	return nil
}
