package models

import "time"

// Setting represents a system-wide configuration setting
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SystemModelAssignments holds model IDs for different system operations
type SystemModelAssignments struct {
	Synthesizer      string `json:"synthesizer"`       // Model for holistic synthesis and question resolution
	VisionOCR        string `json:"vision_ocr"`        // Model for image-to-text extraction
	SummaryGenerator string `json:"summary_generator"` // Model for document summary backfill
}

// Setting keys for system models
const (
	SettingKeySynthesizer      = "system_model.synthesizer"
	SettingKeyVisionOCR        = "system_model.vision_ocr"
	SettingKeySummaryGenerator = "system_model.summary_generator"
)

// Setting keys for feature toggles
const (
	SettingKeyDigestEnabled   = "digest.enabled"
	SettingKeyScheduleEnabled = "schedule.enabled"
)
