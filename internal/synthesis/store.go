package synthesis

import (
	"context"

	"lorehub/internal/models"
)

// Store is the persistence surface the pipeline consumes. All methods
// are scoped to a single project. Writes are individually best-effort
// from the engine's point of view: one failed insert is logged and
// skipped, never fatal to a run.
type Store interface {
	// Content units and change tracking.
	ContentUnits(ctx context.Context, projectID string) ([]models.ContentUnit, error)
	SynthesisRecords(ctx context.Context, projectID string) ([]models.SynthesisRecord, error)
	UpsertSynthesisRecords(ctx context.Context, projectID string, records []models.SynthesisRecord) error
	DeleteSynthesisRecords(ctx context.Context, projectID string) error

	// Facts. RecentFacts returns newest first, capped at limit
	// (limit <= 0 means no cap).
	RecentFacts(ctx context.Context, projectID string, limit int) ([]models.Fact, error)
	AddFact(ctx context.Context, fact *models.Fact) error

	// Questions. PendingQuestions covers both pending and assigned,
	// oldest first. ResolveQuestion and AssignQuestion are no-ops with an
	// error for questions already in a terminal state.
	PendingQuestions(ctx context.Context, projectID string, limit int) ([]models.Question, error)
	AddQuestion(ctx context.Context, question *models.Question) error
	ResolveQuestion(ctx context.Context, projectID, questionID, answer, answerSource string) error
	AssignQuestion(ctx context.Context, projectID, questionID, assignee string) error

	// Decisions and risks.
	RecentDecisions(ctx context.Context, projectID string, limit int) ([]models.Decision, error)
	AddDecision(ctx context.Context, decision *models.Decision) error
	AddRisk(ctx context.Context, risk *models.Risk) error

	// People and relationships.
	People(ctx context.Context, projectID string) ([]models.Person, error)
	AddPerson(ctx context.Context, person *models.Person) error
	AddRelationship(ctx context.Context, rel *models.Relationship) error

	// Action items.
	PendingActions(ctx context.Context, projectID string) ([]models.ActionItem, error)
	AddAction(ctx context.Context, action *models.ActionItem) error
	CompleteAction(ctx context.Context, projectID, actionID, note string) error

	// Summary backfill.
	UnitsMissingSummary(ctx context.Context, projectID string, limit int) ([]models.ContentUnit, error)
	SetUnitSummary(ctx context.Context, projectID, unitID, title, summary string) error
}
