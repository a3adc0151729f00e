package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Question statuses
const (
	QuestionStatusPending   = "pending"
	QuestionStatusAssigned  = "assigned"
	QuestionStatusResolved  = "resolved"
	QuestionStatusDismissed = "dismissed"
)

// Question priorities
const (
	QuestionPriorityHigh   = "high"
	QuestionPriorityMedium = "medium"
	QuestionPriorityLow    = "low"
)

// Action item statuses
const (
	ActionStatusPending   = "pending"
	ActionStatusCompleted = "completed"
	ActionStatusCancelled = "cancelled"
)

// Answer sources recorded when a question is resolved
const (
	AnswerSourceUser         = "user"          // resolved explicitly by a user
	AnswerSourceSynthesis    = "synthesis"     // resolved inline during a synthesis batch
	AnswerSourceAutoDetected = "auto-detected" // resolved by the auto-resolution pass
)

// Risk severities
const (
	RiskSeverityHigh   = "high"
	RiskSeverityMedium = "medium"
	RiskSeverityLow    = "low"
)

// Fact represents a single extracted statement of project knowledge.
// Dedup is by case-insensitive trimmed content, enforced at merge time.
type Fact struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID  string             `bson:"projectId" json:"project_id"`
	Content    string             `bson:"content" json:"content"`
	Category   string             `bson:"category,omitempty" json:"category,omitempty"`
	Confidence float64            `bson:"confidence" json:"confidence"`
	SourceRef  string             `bson:"sourceRef,omitempty" json:"source_ref,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
}

// Decision represents a recorded project decision with provenance.
type Decision struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID string             `bson:"projectId" json:"project_id"`
	Content   string             `bson:"content" json:"content"`
	Rationale string             `bson:"rationale,omitempty" json:"rationale,omitempty"`
	DecidedBy string             `bson:"decidedBy,omitempty" json:"decided_by,omitempty"`
	SourceRef string             `bson:"sourceRef,omitempty" json:"source_ref,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}

// Risk represents an identified project risk.
type Risk struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID  string             `bson:"projectId" json:"project_id"`
	Content    string             `bson:"content" json:"content"`
	Severity   string             `bson:"severity,omitempty" json:"severity,omitempty"`
	Mitigation string             `bson:"mitigation,omitempty" json:"mitigation,omitempty"`
	SourceRef  string             `bson:"sourceRef,omitempty" json:"source_ref,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
}

// Question represents an open question surfaced from project content.
// Lifecycle: pending -> assigned (assignee set) -> resolved (answer recorded)
// or dismissed. Resolved and dismissed are terminal.
type Question struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID    string             `bson:"projectId" json:"project_id"`
	Content      string             `bson:"content" json:"content"`
	Context      string             `bson:"context,omitempty" json:"context,omitempty"`
	Priority     string             `bson:"priority,omitempty" json:"priority,omitempty"`
	Status       string             `bson:"status" json:"status"`
	AssignedTo   string             `bson:"assignedTo,omitempty" json:"assigned_to,omitempty"`
	Answer       string             `bson:"answer,omitempty" json:"answer,omitempty"`
	AnswerSource string             `bson:"answerSource,omitempty" json:"answer_source,omitempty"`
	SourceRef    string             `bson:"sourceRef,omitempty" json:"source_ref,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
	ResolvedAt   *time.Time         `bson:"resolvedAt,omitempty" json:"resolved_at,omitempty"`
}

// Open reports whether the question can still be resolved or assigned.
func (q *Question) Open() bool {
	return q.Status == QuestionStatusPending || q.Status == QuestionStatusAssigned
}

// ActionItem represents a task extracted from project content.
// pending -> completed is driven either by explicit user action or by the
// auto-completion heuristic, which also writes CompletionNote.
type ActionItem struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID      string             `bson:"projectId" json:"project_id"`
	Task           string             `bson:"task" json:"task"`
	Owner          string             `bson:"owner,omitempty" json:"owner,omitempty"`
	Deadline       string             `bson:"deadline,omitempty" json:"deadline,omitempty"`
	Status         string             `bson:"status" json:"status"`
	CompletionNote string             `bson:"completionNote,omitempty" json:"completion_note,omitempty"`
	SourceRef      string             `bson:"sourceRef,omitempty" json:"source_ref,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"created_at"`
	CompletedAt    *time.Time         `bson:"completedAt,omitempty" json:"completed_at,omitempty"`
}

// Person represents someone mentioned in project content.
// Dedup is by case-insensitive trimmed name, enforced at merge time.
type Person struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID    string             `bson:"projectId" json:"project_id"`
	Name         string             `bson:"name" json:"name"`
	Role         string             `bson:"role,omitempty" json:"role,omitempty"`
	Organization string             `bson:"organization,omitempty" json:"organization,omitempty"`
	SourceRef    string             `bson:"sourceRef,omitempty" json:"source_ref,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
}

// Relationship links two named entities with a typed edge. The type
// vocabulary comes from the project ontology so it stays consistent
// across synthesis runs.
type Relationship struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID string             `bson:"projectId" json:"project_id"`
	Source    string             `bson:"source" json:"source"`
	Target    string             `bson:"target" json:"target"`
	Type      string             `bson:"type" json:"type"`
	SourceRef string             `bson:"sourceRef,omitempty" json:"source_ref,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}
