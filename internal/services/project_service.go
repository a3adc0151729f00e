package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"lorehub/internal/database"
	"lorehub/internal/models"
)

// ProjectService handles project CRUD against MySQL. The knowledge derived
// for a project lives in MongoDB under the project's ID; deleting a project
// here must be followed by a knowledge purge.
type ProjectService struct {
	db *database.DB
}

// NewProjectService creates a new project service
func NewProjectService(db *database.DB) *ProjectService {
	return &ProjectService{db: db}
}

const projectColumns = "id, name, description, role_context, entity_types, relationship_types, synthesis_schedule, max_units_per_run, created_at, updated_at"

func scanProject(row interface{ Scan(dest ...any) error }) (*models.Project, error) {
	var p models.Project
	var description, roleContext, entityTypes, relationshipTypes, schedule sql.NullString
	err := row.Scan(&p.ID, &p.Name, &description, &roleContext, &entityTypes, &relationshipTypes, &schedule, &p.MaxUnitsPerRun, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.RoleContext = roleContext.String
	p.SynthesisSchedule = schedule.String
	p.EntityTypes = decodeStringList(entityTypes.String)
	p.RelationshipTypes = decodeStringList(relationshipTypes.String)
	return &p, nil
}

// encodeStringList stores an ontology vocabulary as a JSON array, "" for
// an empty list so the column stays NULL-ish.
func encodeStringList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		log.Printf("⚠️ [PROJECT] Ignoring malformed ontology list %q: %v", raw, err)
		return nil
	}
	return values
}

// validateSchedule checks a cron expression using the standard 5-field
// parser. Empty means manual runs only and is always valid.
func validateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid synthesis schedule %q: %w", expr, err)
	}
	return nil
}

// GetAll returns all projects ordered by name
func (s *ProjectService) GetAll() ([]models.Project, error) {
	rows, err := s.db.Query(`
		SELECT ` + projectColumns + `
		FROM projects
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}

	return projects, nil
}

// GetScheduled returns projects with a non-empty synthesis schedule
func (s *ProjectService) GetScheduled() ([]models.Project, error) {
	rows, err := s.db.Query(`
		SELECT ` + projectColumns + `
		FROM projects
		WHERE synthesis_schedule IS NOT NULL AND synthesis_schedule != ''
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}

	return projects, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(id string) (*models.Project, error) {
	row := s.db.QueryRow(`
		SELECT `+projectColumns+`
		FROM projects
		WHERE id = ?
	`, id)

	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return p, nil
}

// Exists reports whether a project with the given ID exists.
func (s *ProjectService) Exists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check project: %w", err)
	}
	return true, nil
}

// Create creates a new project
func (s *ProjectService) Create(req models.ProjectCreateRequest) (*models.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if err := validateSchedule(req.SynthesisSchedule); err != nil {
		return nil, err
	}

	maxUnits := req.MaxUnitsPerRun
	if maxUnits <= 0 {
		maxUnits = models.DefaultMaxUnitsPerRun
	}

	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, description, role_context, entity_types, relationship_types, synthesis_schedule, max_units_per_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, name, req.Description, req.RoleContext,
		encodeStringList(req.EntityTypes), encodeStringList(req.RelationshipTypes),
		req.SynthesisSchedule, maxUnits)

	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	log.Printf("✅ [PROJECT] Created project %q (ID %s)", name, id)
	return s.GetByID(id)
}

// Update applies the non-nil fields of req to a project
func (s *ProjectService) Update(id string, req models.ProjectUpdateRequest) (*models.Project, error) {
	var sets []string
	var args []any

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("project name cannot be empty")
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if req.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *req.Description)
	}
	if req.RoleContext != nil {
		sets = append(sets, "role_context = ?")
		args = append(args, *req.RoleContext)
	}
	if req.EntityTypes != nil {
		sets = append(sets, "entity_types = ?")
		args = append(args, encodeStringList(*req.EntityTypes))
	}
	if req.RelationshipTypes != nil {
		sets = append(sets, "relationship_types = ?")
		args = append(args, encodeStringList(*req.RelationshipTypes))
	}
	if req.SynthesisSchedule != nil {
		if err := validateSchedule(*req.SynthesisSchedule); err != nil {
			return nil, err
		}
		sets = append(sets, "synthesis_schedule = ?")
		args = append(args, *req.SynthesisSchedule)
	}
	if req.MaxUnitsPerRun != nil {
		maxUnits := *req.MaxUnitsPerRun
		if maxUnits <= 0 {
			maxUnits = models.DefaultMaxUnitsPerRun
		}
		sets = append(sets, "max_units_per_run = ?")
		args = append(args, maxUnits)
	}

	if len(sets) == 0 {
		return s.GetByID(id)
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	query := "UPDATE projects SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// MySQL reports 0 for no-op updates too, so distinguish via lookup
		if _, err := s.GetByID(id); err != nil {
			return nil, err
		}
	}

	log.Printf("🔄 [PROJECT] Updated project %s", id)
	return s.GetByID(id)
}

// Delete removes a project. Knowledge stored in MongoDB under the project
// ID is purged separately by the caller.
func (s *ProjectService) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("project not found")
	}

	log.Printf("🗑️ [PROJECT] Deleted project %s", id)
	return nil
}
