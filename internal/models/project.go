package models

import "time"

// Default per-run cap on changed content units picked up by a synthesis run.
const DefaultMaxUnitsPerRun = 100

// Project represents one knowledge base: a set of content units plus the
// knowledge items synthesized from them. Relational fields (ontology
// vocabulary, schedule) live in MySQL; the knowledge itself lives in Mongo
// keyed by project ID.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// RoleContext narrows extraction relevance ("I am the engineering
	// lead; prioritize technical commitments over marketing notes").
	RoleContext string `json:"role_context,omitempty"`

	// Ontology vocabulary: entity/relationship type names the extractor
	// should stick to so types stay consistent across runs.
	EntityTypes       []string `json:"entity_types,omitempty"`
	RelationshipTypes []string `json:"relationship_types,omitempty"`

	// SynthesisSchedule is a cron expression; empty means manual runs only.
	SynthesisSchedule string `json:"synthesis_schedule,omitempty"`
	MaxUnitsPerRun    int    `json:"max_units_per_run,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectCreateRequest is the payload for creating a project.
type ProjectCreateRequest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	RoleContext       string   `json:"role_context,omitempty"`
	EntityTypes       []string `json:"entity_types,omitempty"`
	RelationshipTypes []string `json:"relationship_types,omitempty"`
	SynthesisSchedule string   `json:"synthesis_schedule,omitempty"`
	MaxUnitsPerRun    int      `json:"max_units_per_run,omitempty"`
}

// ProjectUpdateRequest is the payload for updating a project. Nil fields
// are left unchanged.
type ProjectUpdateRequest struct {
	Name              *string   `json:"name,omitempty"`
	Description       *string   `json:"description,omitempty"`
	RoleContext       *string   `json:"role_context,omitempty"`
	EntityTypes       *[]string `json:"entity_types,omitempty"`
	RelationshipTypes *[]string `json:"relationship_types,omitempty"`
	SynthesisSchedule *string   `json:"synthesis_schedule,omitempty"`
	MaxUnitsPerRun    *int      `json:"max_units_per_run,omitempty"`
}
