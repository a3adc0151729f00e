package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Default category and confidence assigned when the model emits a bare
// string where a structured item was requested.
const (
	FactCategoryGeneral   = "general"
	defaultFactConfidence = 0.7
)

// ExtractionResult is the normalized shape of one LLM extraction response
// after JSON recovery. List fields tolerate "string or object" items from
// the model; normalization happens in UnmarshalJSON so business logic only
// ever sees the canonical shape.
type ExtractionResult struct {
	Title         string                  `json:"title"`
	Summary       string                  `json:"summary" validate:"required"`
	Facts         []ExtractedFact         `json:"facts" validate:"dive"`
	Decisions     []ExtractedDecision     `json:"decisions" validate:"dive"`
	Questions     []ExtractedQuestion     `json:"questions" validate:"dive"`
	Risks         []ExtractedRisk         `json:"risks" validate:"dive"`
	ActionItems   []ExtractedAction       `json:"action_items" validate:"dive"`
	People        []ExtractedPerson       `json:"people" validate:"dive"`
	Relationships []ExtractedRelationship `json:"relationships" validate:"dive"`
	KeyTopics     []string                `json:"key_topics"`
	Coverage      *ExtractionCoverage     `json:"extraction_coverage,omitempty"`

	// Holistic synthesis only.
	ResolvedQuestions []ResolvedQuestion  `json:"resolved_questions,omitempty"`
	NewQuestions      []ExtractedQuestion `json:"new_questions,omitempty" validate:"dive"`

	Metadata   ExtractionMetadata `json:"metadata"`
	Validation *ValidationReport  `json:"_validation,omitempty"`
}

// ExtractionMetadata is stamped onto a result by the parser.
type ExtractionMetadata struct {
	ExtractedAt time.Time `json:"extractedAt"`
	Model       string    `json:"model,omitempty"`
	SourceType  string    `json:"sourceType,omitempty"`
}

// ValidationReport carries advisory schema-validation results. Invalid
// results are still used; partial structured data beats none.
type ValidationReport struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// ExtractionCoverage is the model's self-reported estimate of how much of
// the source it covered. Advisory only; never drives control flow.
type ExtractionCoverage struct {
	ItemsFound int    `json:"items_found"`
	Confidence string `json:"confidence,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// UnmarshalJSON tolerates numeric strings and missing fields in the
// model's self-report.
func (c *ExtractionCoverage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["items_found"]; ok {
		c.ItemsFound = flexInt(v)
	}
	if v, ok := raw["confidence"]; ok {
		c.Confidence = flexString(v)
	}
	if v, ok := raw["notes"]; ok {
		c.Notes = flexString(v)
	}
	return nil
}

// ExtractedFact is one fact as reported by the model.
type ExtractedFact struct {
	Content    string  `json:"content" validate:"required"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

func (f *ExtractedFact) UnmarshalJSON(data []byte) error {
	if s, ok := asString(data); ok {
		f.Content = s
		f.Category = FactCategoryGeneral
		f.Confidence = defaultFactConfidence
		return nil
	}
	var raw struct {
		Content    string          `json:"content"`
		Fact       string          `json:"fact"`
		Category   string          `json:"category"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Content = firstNonEmpty(raw.Content, raw.Fact)
	f.Category = strings.TrimSpace(raw.Category)
	if f.Category == "" {
		f.Category = FactCategoryGeneral
	}
	f.Confidence = flexFloat(raw.Confidence, defaultFactConfidence)
	return nil
}

// ExtractedDecision is one decision as reported by the model.
type ExtractedDecision struct {
	Content   string `json:"content" validate:"required"`
	Rationale string `json:"rationale,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
}

func (d *ExtractedDecision) UnmarshalJSON(data []byte) error {
	if s, ok := asString(data); ok {
		d.Content = s
		return nil
	}
	var raw struct {
		Content   string `json:"content"`
		Decision  string `json:"decision"`
		Rationale string `json:"rationale"`
		DecidedBy string `json:"decided_by"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Content = firstNonEmpty(raw.Content, raw.Decision)
	d.Rationale = strings.TrimSpace(raw.Rationale)
	d.DecidedBy = strings.TrimSpace(raw.DecidedBy)
	return nil
}

// ExtractedQuestion is one open question as reported by the model.
type ExtractedQuestion struct {
	Content  string `json:"content" validate:"required"`
	Context  string `json:"context,omitempty"`
	Priority string `json:"priority,omitempty"`
}

func (q *ExtractedQuestion) UnmarshalJSON(data []byte) error {
	if s, ok := asString(data); ok {
		q.Content = s
		return nil
	}
	var raw struct {
		Content  string `json:"content"`
		Question string `json:"question"`
		Context  string `json:"context"`
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q.Content = firstNonEmpty(raw.Content, raw.Question)
	q.Context = strings.TrimSpace(raw.Context)
	q.Priority = normalizePriority(raw.Priority)
	return nil
}

// ExtractedRisk is one risk as reported by the model.
type ExtractedRisk struct {
	Content    string `json:"content" validate:"required"`
	Severity   string `json:"severity,omitempty"`
	Mitigation string `json:"mitigation,omitempty"`
}

func (r *ExtractedRisk) UnmarshalJSON(data []byte) error {
	if s, ok := asString(data); ok {
		r.Content = s
		return nil
	}
	var raw struct {
		Content     string `json:"content"`
		Risk        string `json:"risk"`
		Description string `json:"description"`
		Severity    string `json:"severity"`
		Mitigation  string `json:"mitigation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Content = firstNonEmpty(raw.Content, raw.Risk, raw.Description)
	r.Severity = strings.ToLower(strings.TrimSpace(raw.Severity))
	r.Mitigation = strings.TrimSpace(raw.Mitigation)
	return nil
}

// ExtractedAction is one action item as reported by the model.
type ExtractedAction struct {
	Task     string `json:"task" validate:"required"`
	Owner    string `json:"owner,omitempty"`
	Deadline string `json:"deadline,omitempty"`
}

func (a *ExtractedAction) UnmarshalJSON(data []byte) error {
	if s, ok := asString(data); ok {
		a.Task = s
		return nil
	}
	var raw struct {
		Task     string `json:"task"`
		Content  string `json:"content"`
		Action   string `json:"action"`
		Owner    string `json:"owner"`
		Assignee string `json:"assignee"`
		Deadline string `json:"deadline"`
		DueDate  string `json:"due_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Task = firstNonEmpty(raw.Task, raw.Content, raw.Action)
	a.Owner = firstNonEmpty(raw.Owner, raw.Assignee)
	a.Deadline = firstNonEmpty(raw.Deadline, raw.DueDate)
	return nil
}

// ExtractedPerson is one person as reported by the model.
type ExtractedPerson struct {
	Name         string `json:"name" validate:"required"`
	Role         string `json:"role,omitempty"`
	Organization string `json:"organization,omitempty"`
}

func (p *ExtractedPerson) UnmarshalJSON(data []byte) error {
	if s, ok := asString(data); ok {
		p.Name = s
		return nil
	}
	var raw struct {
		Name         string `json:"name"`
		Role         string `json:"role"`
		Organization string `json:"organization"`
		Org          string `json:"org"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(raw.Name)
	p.Role = strings.TrimSpace(raw.Role)
	p.Organization = firstNonEmpty(raw.Organization, raw.Org)
	return nil
}

// ExtractedRelationship is one typed edge as reported by the model.
type ExtractedRelationship struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Type   string `json:"type,omitempty"`
}

func (r *ExtractedRelationship) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source       string `json:"source"`
		From         string `json:"from"`
		Target       string `json:"target"`
		To           string `json:"to"`
		Type         string `json:"type"`
		Relationship string `json:"relationship"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Source = firstNonEmpty(raw.Source, raw.From)
	r.Target = firstNonEmpty(raw.Target, raw.To)
	r.Type = firstNonEmpty(raw.Type, raw.Relationship)
	return nil
}

// ResolvedQuestion is one {question id, answer} pair reported inline by a
// holistic synthesis response.
type ResolvedQuestion struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

func (r *ResolvedQuestion) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID string `json:"question_id"`
		QuestionId string `json:"questionId"`
		ID         string `json:"id"`
		Answer     string `json:"answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.QuestionID = firstNonEmpty(raw.QuestionID, raw.QuestionId, raw.ID)
	r.Answer = strings.TrimSpace(raw.Answer)
	return nil
}

// ResolutionCandidate is one answer proposed by the auto-resolution pass.
// Confidence is the model's verbatim label; only "high" is accepted.
type ResolutionCandidate struct {
	ID         string `json:"id"`
	Answer     string `json:"answer"`
	Confidence string `json:"confidence"`
}

func (r *ResolutionCandidate) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string `json:"id"`
		QuestionID string `json:"question_id"`
		QuestionId string `json:"questionId"`
		Answer     string `json:"answer"`
		Confidence string `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = firstNonEmpty(raw.ID, raw.QuestionID, raw.QuestionId)
	r.Answer = strings.TrimSpace(raw.Answer)
	r.Confidence = strings.TrimSpace(raw.Confidence)
	return nil
}

func asString(data []byte) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case QuestionPriorityHigh, "urgent", "critical":
		return QuestionPriorityHigh
	case QuestionPriorityLow, "minor":
		return QuestionPriorityLow
	case QuestionPriorityMedium, "normal":
		return QuestionPriorityMedium
	case "":
		return ""
	default:
		return QuestionPriorityMedium
	}
}

func flexFloat(raw json.RawMessage, fallback float64) float64 {
	if len(raw) == 0 {
		return fallback
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f == 0 {
			return fallback
		}
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && parsed != 0 {
			return parsed
		}
	}
	return fallback
}

func flexInt(raw json.RawMessage) int {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return parsed
		}
	}
	return 0
}

func flexString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
