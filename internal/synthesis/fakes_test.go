package synthesis

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lorehub/internal/models"
)

const testProject = "proj-test"

// memStore is an in-memory Store shared by the package tests.
type memStore struct {
	mu            sync.Mutex
	units         []models.ContentUnit
	records       map[string]models.SynthesisRecord // keyed by content unit id
	facts         []models.Fact
	questions     []models.Question
	decisions     []models.Decision
	risks         []models.Risk
	people        []models.Person
	relationships []models.Relationship
	actions       []models.ActionItem

	missingSummaries []models.ContentUnit
	summaries        map[string][2]string // unit id -> {title, summary}

	failFactWrites bool
}

func newMemStore() *memStore {
	return &memStore{
		records:   make(map[string]models.SynthesisRecord),
		summaries: make(map[string][2]string),
	}
}

func (s *memStore) addUnit(name, body string) models.ContentUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit := models.ContentUnit{
		ID:          primitive.NewObjectID(),
		ProjectID:   testProject,
		Name:        name,
		Kind:        models.ContentKindDocument,
		Body:        body,
		ContentHash: models.HashContent(body),
	}
	s.units = append(s.units, unit)
	return unit
}

func (s *memStore) updateUnitBody(unitID primitive.ObjectID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.units {
		if s.units[i].ID == unitID {
			s.units[i].Body = body
			s.units[i].ContentHash = models.HashContent(body)
			return
		}
	}
}

func (s *memStore) addFact(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, models.Fact{ID: primitive.NewObjectID(), ProjectID: testProject, Content: content})
}

func (s *memStore) addQuestion(content, status string) models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := models.Question{ID: primitive.NewObjectID(), ProjectID: testProject, Content: content, Status: status}
	s.questions = append(s.questions, q)
	return q
}

func (s *memStore) addPendingAction(task string) models.ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.ActionItem{ID: primitive.NewObjectID(), ProjectID: testProject, Task: task, Status: models.ActionStatusPending}
	s.actions = append(s.actions, a)
	return a
}

func (s *memStore) questionByID(id primitive.ObjectID) (models.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.Question{}, false
}

func (s *memStore) actionByID(id primitive.ObjectID) (models.ActionItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if a.ID == id {
			return a, true
		}
	}
	return models.ActionItem{}, false
}

func (s *memStore) ContentUnits(ctx context.Context, projectID string) ([]models.ContentUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ContentUnit, len(s.units))
	copy(out, s.units)
	return out, nil
}

func (s *memStore) SynthesisRecords(ctx context.Context, projectID string) ([]models.SynthesisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SynthesisRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) UpsertSynthesisRecords(ctx context.Context, projectID string, records []models.SynthesisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ContentUnitID] = r
	}
	return nil
}

func (s *memStore) DeleteSynthesisRecords(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.SynthesisRecord)
	return nil
}

func (s *memStore) RecentFacts(ctx context.Context, projectID string, limit int) ([]models.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Fact, 0, len(s.facts))
	for i := len(s.facts) - 1; i >= 0; i-- { // newest first
		out = append(out, s.facts[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) AddFact(ctx context.Context, fact *models.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFactWrites {
		return errors.New("simulated fact write failure")
	}
	fact.ID = primitive.NewObjectID()
	s.facts = append(s.facts, *fact)
	return nil
}

func (s *memStore) PendingQuestions(ctx context.Context, projectID string, limit int) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Question, 0)
	for _, q := range s.questions {
		if q.Status == models.QuestionStatusPending || q.Status == models.QuestionStatusAssigned {
			out = append(out, q)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) AddQuestion(ctx context.Context, question *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	question.ID = primitive.NewObjectID()
	s.questions = append(s.questions, *question)
	return nil
}

func (s *memStore) ResolveQuestion(ctx context.Context, projectID, questionID, answer, answerSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.questions {
		if s.questions[i].ID.Hex() != questionID {
			continue
		}
		if !s.questions[i].Open() {
			return errors.New("question is not open")
		}
		s.questions[i].Status = models.QuestionStatusResolved
		s.questions[i].Answer = answer
		s.questions[i].AnswerSource = answerSource
		return nil
	}
	return errors.New("question not found")
}

func (s *memStore) AssignQuestion(ctx context.Context, projectID, questionID, assignee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.questions {
		if s.questions[i].ID.Hex() != questionID {
			continue
		}
		if !s.questions[i].Open() {
			return errors.New("question is not open")
		}
		s.questions[i].AssignedTo = assignee
		s.questions[i].Status = models.QuestionStatusAssigned
		return nil
	}
	return errors.New("question not found")
}

func (s *memStore) RecentDecisions(ctx context.Context, projectID string, limit int) ([]models.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Decision, 0, len(s.decisions))
	for i := len(s.decisions) - 1; i >= 0; i-- {
		out = append(out, s.decisions[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) AddDecision(ctx context.Context, decision *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	decision.ID = primitive.NewObjectID()
	s.decisions = append(s.decisions, *decision)
	return nil
}

func (s *memStore) AddRisk(ctx context.Context, risk *models.Risk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	risk.ID = primitive.NewObjectID()
	s.risks = append(s.risks, *risk)
	return nil
}

func (s *memStore) People(ctx context.Context, projectID string) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Person, len(s.people))
	copy(out, s.people)
	return out, nil
}

func (s *memStore) AddPerson(ctx context.Context, person *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	person.ID = primitive.NewObjectID()
	s.people = append(s.people, *person)
	return nil
}

func (s *memStore) AddRelationship(ctx context.Context, rel *models.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel.ID = primitive.NewObjectID()
	s.relationships = append(s.relationships, *rel)
	return nil
}

func (s *memStore) PendingActions(ctx context.Context, projectID string) ([]models.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActionItem, 0)
	for _, a := range s.actions {
		if a.Status == models.ActionStatusPending {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) AddAction(ctx context.Context, action *models.ActionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action.ID = primitive.NewObjectID()
	s.actions = append(s.actions, *action)
	return nil
}

func (s *memStore) CompleteAction(ctx context.Context, projectID, actionID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.actions {
		if s.actions[i].ID.Hex() != actionID {
			continue
		}
		if s.actions[i].Status != models.ActionStatusPending {
			return errors.New("action is not pending")
		}
		s.actions[i].Status = models.ActionStatusCompleted
		s.actions[i].CompletionNote = note
		return nil
	}
	return errors.New("action not found")
}

func (s *memStore) UnitsMissingSummary(ctx context.Context, projectID string, limit int) ([]models.ContentUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ContentUnit, len(s.missingSummaries))
	copy(out, s.missingSummaries)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SetUnitSummary(ctx context.Context, projectID, unitID, title, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[unitID] = [2]string{title, summary}
	return nil
}

// fakeLLM pops scripted responses in call order. An empty script answers
// "{}" forever.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	calls     []TextRequest
	err       error
	model     string
}

func (f *fakeLLM) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	text := "{}"
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &TextResult{Text: text, Model: f.ModelName()}, nil
}

func (f *fakeLLM) GenerateVision(ctx context.Context, req VisionRequest) (*TextResult, error) {
	return f.GenerateText(ctx, TextRequest{Prompt: req.Prompt, Temperature: req.Temperature, MaxTokens: req.MaxTokens})
}

func (f *fakeLLM) ModelName() string {
	if f.model == "" {
		return "test-model"
	}
	return f.model
}

func (f *fakeLLM) VisionModelName() string { return f.ModelName() }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLLM) promptContaining(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Contains(c.Prompt, substr) {
			return true
		}
	}
	return false
}

// mapTemplates is a TemplateSource backed by a plain map.
type mapTemplates map[string]string

func (m mapTemplates) Template(key string) (string, bool) {
	tpl, ok := m[key]
	return tpl, ok
}
