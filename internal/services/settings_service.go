package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lorehub/internal/database"
	"lorehub/internal/models"
)

// SettingsService handles system-wide settings stored in MySQL
type SettingsService struct {
	db *database.DB
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *database.DB) *SettingsService {
	return &SettingsService{db: db}
}

// Get retrieves a setting by key. A missing key returns "" without error.
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE `key` = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil // Not found is not an error
	}
	return value, err
}

// Set updates or creates a setting
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (`key`, value, updated_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE value = ?, updated_at = ?",
		key, value, time.Now(), value, time.Now(),
	)
	return err
}

// GetBool retrieves a boolean setting, falling back to defaultValue when
// the key is missing or unparseable.
func (s *SettingsService) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue, err
	}
	switch value {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return defaultValue, nil
}

// SetBool stores a boolean setting as "true" or "false"
func (s *SettingsService) SetBool(ctx context.Context, key string, value bool) error {
	if value {
		return s.Set(ctx, key, "true")
	}
	return s.Set(ctx, key, "false")
}

// GetSystemModelAssignments retrieves all system model assignments
func (s *SettingsService) GetSystemModelAssignments(ctx context.Context) (*models.SystemModelAssignments, error) {
	assignments := &models.SystemModelAssignments{}

	synthesizer, err := s.Get(ctx, models.SettingKeySynthesizer)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesizer assignment: %w", err)
	}
	visionOCR, err := s.Get(ctx, models.SettingKeyVisionOCR)
	if err != nil {
		return nil, fmt.Errorf("failed to read vision OCR assignment: %w", err)
	}
	summaryGenerator, err := s.Get(ctx, models.SettingKeySummaryGenerator)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary generator assignment: %w", err)
	}

	assignments.Synthesizer = synthesizer
	assignments.VisionOCR = visionOCR
	assignments.SummaryGenerator = summaryGenerator

	return assignments, nil
}

// SetSystemModelAssignments updates system model assignments. Empty fields
// are left unchanged.
func (s *SettingsService) SetSystemModelAssignments(ctx context.Context, assignments *models.SystemModelAssignments) error {
	if assignments.Synthesizer != "" {
		if err := s.Set(ctx, models.SettingKeySynthesizer, assignments.Synthesizer); err != nil {
			return err
		}
	}
	if assignments.VisionOCR != "" {
		if err := s.Set(ctx, models.SettingKeyVisionOCR, assignments.VisionOCR); err != nil {
			return err
		}
	}
	if assignments.SummaryGenerator != "" {
		if err := s.Set(ctx, models.SettingKeySummaryGenerator, assignments.SummaryGenerator); err != nil {
			return err
		}
	}

	return nil
}
