package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lorehub/internal/models"
)

const kickoffResponse = `{
  "title": "Kickoff notes",
  "summary": "Billing will move to Aurora with Maria Santos owning the migration.",
  "facts": [{"content": "Billing moves to Aurora by March 2026", "category": "planning", "confidence": 0.9}],
  "decisions": [{"content": "Migrate billing to Aurora", "rationale": "Lower operational cost", "decided_by": "platform team"}],
  "risks": [{"content": "Aurora failover behavior is untested", "severity": "medium", "mitigation": "Run a failover drill"}],
  "action_items": [{"task": "Plan the Aurora migration milestones", "owner": "Maria Santos", "deadline": "2026-03-01"}],
  "people": [{"name": "Maria Santos", "role": "Migration owner"}],
  "relationships": [{"source": "billing", "target": "Aurora", "type": "runs_on"}],
  "key_topics": ["billing", "migration"],
  "extraction_coverage": {"items_found": 6, "confidence": "high", "notes": ""},
  "resolved_questions": [],
  "new_questions": [{"content": "Who signs off on the Aurora cost estimate?", "context": "raised in kickoff", "priority": "high"}]
}`

const emptyBatchResponse = `{"title": "t", "summary": "reviewed, nothing new"}`

// TestRunEndToEnd drives one full pass over a single unit and checks
// every merge counter against the stored knowledge.
func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	unit := store.addUnit("kickoff-notes.md", "Team agreed to migrate billing to Aurora by March 2026. Maria Santos owns the migration.")

	llm := &fakeLLM{responses: []string{kickoffResponse}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.Skipped {
		t.Error("Expected run not to be skipped")
	}
	if stats.ContentFilesProcessed != 1 {
		t.Errorf("Expected 1 unit processed, got %d", stats.ContentFilesProcessed)
	}
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"facts", stats.FactsAdded, 1},
		{"decisions", stats.DecisionsAdded, 1},
		{"risks", stats.RisksAdded, 1},
		{"actions", stats.ActionsAdded, 1},
		{"people", stats.PeopleAdded, 1},
		{"relationships", stats.RelationshipsAdded, 1},
		{"questions", stats.QuestionsAdded, 1},
		{"resolved", stats.QuestionsResolved, 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("Expected %d %s, got %d", c.want, c.name, c.got)
		}
	}

	if len(store.facts) != 1 || store.facts[0].SourceRef != "kickoff-notes.md" {
		t.Errorf("Expected fact with source ref, got %+v", store.facts)
	}
	if len(store.people) != 1 || store.people[0].Name != "Maria Santos" {
		t.Errorf("Expected person Maria Santos, got %+v", store.people)
	}
	if len(store.questions) != 1 {
		t.Fatalf("Expected 1 question, got %d", len(store.questions))
	}
	if store.questions[0].Priority != models.QuestionPriorityHigh {
		t.Errorf("Expected high priority, got %q", store.questions[0].Priority)
	}
	if store.questions[0].Status != models.QuestionStatusPending {
		t.Errorf("Expected pending question, got %q", store.questions[0].Status)
	}

	records, _ := store.SynthesisRecords(ctx, testProject)
	if len(records) != 1 || records[0].LastSynthesizedHash != unit.ContentHash {
		t.Errorf("Expected synthesis record pinned at unit hash, got %+v", records)
	}

	state := engine.State(testProject)
	if state.Status != StatusCompleted || state.Progress != 100 {
		t.Errorf("Expected completed/100, got %s/%d", state.Status, state.Progress)
	}
}

// TestRunSecondRunSkips verifies idempotence: an immediate rerun with
// unchanged content performs no model calls and reports skipped.
func TestRunSecondRunSkips(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUnit("doc.md", "body")

	llm := &fakeLLM{responses: []string{emptyBatchResponse}}
	engine := NewEngine(store, llm, nil)

	if _, err := engine.Run(ctx, RunOptions{ProjectID: testProject}); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	calls := llm.callCount()

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if !stats.Skipped {
		t.Error("Expected second run to be skipped")
	}
	if llm.callCount() != calls {
		t.Errorf("Expected no further LLM calls, got %d extra", llm.callCount()-calls)
	}
}

// TestRunBatching confirms 12 units synthesize in ceil(12/5)=3 strictly
// sequential batches, one model call each.
func TestRunBatching(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	for i := 0; i < 12; i++ {
		store.addUnit("doc", "body of some document")
	}

	llm := &fakeLLM{responses: []string{emptyBatchResponse, emptyBatchResponse, emptyBatchResponse}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if llm.callCount() != 3 {
		t.Errorf("Expected 3 batch calls, got %d", llm.callCount())
	}
	if stats.ContentFilesProcessed != 12 {
		t.Errorf("Expected 12 units processed, got %d", stats.ContentFilesProcessed)
	}
	records, _ := store.SynthesisRecords(ctx, testProject)
	if len(records) != 12 {
		t.Errorf("Expected 12 synthesis records, got %d", len(records))
	}
}

// TestRunPartialBatchFailure keeps the pipeline alive when one batch
// fails: its units stay unmarked and are retried next run.
func TestRunPartialBatchFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	for i := 0; i < 12; i++ {
		store.addUnit("doc", "body of some document")
	}

	llm := &fakeLLM{responses: []string{
		emptyBatchResponse,
		"I could not process batch two, sorry.",
		emptyBatchResponse,
	}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Expected run to tolerate a failed batch, got %v", err)
	}
	if stats.ContentFilesProcessed != 7 {
		t.Errorf("Expected 7 units processed (batches 1 and 3), got %d", stats.ContentFilesProcessed)
	}
	records, _ := store.SynthesisRecords(ctx, testProject)
	if len(records) != 7 {
		t.Errorf("Expected 7 synthesis records, got %d", len(records))
	}

	remaining, err := engine.Tracker().FindChanged(ctx, testProject, 0)
	if err != nil {
		t.Fatalf("FindChanged failed: %v", err)
	}
	if len(remaining) != 5 {
		t.Errorf("Expected failed batch's 5 units still changed, got %d", len(remaining))
	}
}

// TestRunDedupAgainstExistingFacts verifies case-insensitive trimmed
// dedup against both persisted facts and facts within the same run.
func TestRunDedupAgainstExistingFacts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addFact("Launch is in March")
	store.addUnit("doc.md", "body")

	response := `{"title": "t", "summary": "s", "facts": [
		{"content": "  launch is in MARCH  ", "category": "planning"},
		{"content": "Budget approved", "category": "business"},
		{"content": "budget APPROVED"}
	]}`
	llm := &fakeLLM{responses: []string{response}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.FactsAdded != 1 {
		t.Errorf("Expected 1 new fact after dedup, got %d", stats.FactsAdded)
	}
	if len(store.facts) != 2 {
		t.Errorf("Expected 2 facts total, got %d", len(store.facts))
	}
}

// TestRunResolvesCitedQuestions merges resolved_questions entries with
// the synthesis answer source.
func TestRunResolvesCitedQuestions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	q := store.addQuestion("Which region hosts the production cluster?", models.QuestionStatusPending)
	store.addUnit("infra.md", "Production runs in eu-central-1.")

	response := `{"title": "t", "summary": "s",
		"resolved_questions": [{"question_id": "` + q.ID.Hex() + `", "answer": "Production runs in eu-central-1"}]}`
	llm := &fakeLLM{responses: []string{response}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.QuestionsResolved != 1 {
		t.Errorf("Expected 1 resolved question, got %d", stats.QuestionsResolved)
	}

	got, _ := store.questionByID(q.ID)
	if got.Status != models.QuestionStatusResolved {
		t.Errorf("Expected resolved status, got %q", got.Status)
	}
	if got.AnswerSource != models.AnswerSourceSynthesis {
		t.Errorf("Expected answer source %q, got %q", models.AnswerSourceSynthesis, got.AnswerSource)
	}
}

// TestRunFiltersJunkQuestions drops garbage meta-questions and trivially
// short ones before insert.
func TestRunFiltersJunkQuestions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUnit("slides.pptx", "deck text")

	response := `{"title": "t", "summary": "s", "new_questions": [
		{"content": "What is the title of the slide?"},
		{"content": "Why?"},
		{"content": "Who owns the rollback plan for billing?"}
	]}`
	llm := &fakeLLM{responses: []string{response}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.QuestionsAdded != 1 {
		t.Fatalf("Expected 1 question to survive filtering, got %d", stats.QuestionsAdded)
	}
	if len(store.questions) != 1 || store.questions[0].Content != "Who owns the rollback plan for billing?" {
		t.Errorf("Unexpected surviving question: %+v", store.questions)
	}
	if store.questions[0].Priority != models.QuestionPriorityMedium {
		t.Errorf("Expected default medium priority, got %q", store.questions[0].Priority)
	}
}

// TestRunSuggestsAssignees assigns new questions that mention a known
// person by name.
func TestRunSuggestsAssignees(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUnit("notes.md", "body")

	response := `{"title": "t", "summary": "s",
		"people": [{"name": "Maria Santos", "role": "Migration owner"}],
		"new_questions": [{"content": "Should Maria Santos own the rollback plan?"}]}`
	llm := &fakeLLM{responses: []string{response}}
	engine := NewEngine(store, llm, nil)

	if _, err := engine.Run(ctx, RunOptions{ProjectID: testProject}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(store.questions) != 1 {
		t.Fatalf("Expected 1 question, got %d", len(store.questions))
	}
	q := store.questions[0]
	if q.AssignedTo != "Maria Santos" {
		t.Errorf("Expected assignee Maria Santos, got %q", q.AssignedTo)
	}
	if q.Status != models.QuestionStatusAssigned {
		t.Errorf("Expected assigned status, got %q", q.Status)
	}
}

// TestRunAutoCompletesActions closes a pending action when a new fact
// announces its completion.
func TestRunAutoCompletesActions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	action := store.addPendingAction("Migrate billing database to the new cluster")
	store.addUnit("status.md", "body")

	response := `{"title": "t", "summary": "s",
		"facts": [{"content": "Billing database migrate to the new cluster is completed"}]}`
	llm := &fakeLLM{responses: []string{response}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.ActionsCompleted != 1 {
		t.Errorf("Expected 1 auto-completed action, got %d", stats.ActionsCompleted)
	}
	got, _ := store.actionByID(action.ID)
	if got.Status != models.ActionStatusCompleted {
		t.Errorf("Expected completed action, got %q", got.Status)
	}
}

// TestRunForceFullReprocessesAll clears records so unchanged units run
// again.
func TestRunForceFullReprocessesAll(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUnit("doc.md", "body")

	llm := &fakeLLM{responses: []string{emptyBatchResponse, emptyBatchResponse}}
	engine := NewEngine(store, llm, nil)

	if _, err := engine.Run(ctx, RunOptions{ProjectID: testProject}); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject, ForceFull: true})
	if err != nil {
		t.Fatalf("Forced run failed: %v", err)
	}
	if stats.Skipped {
		t.Error("Expected forced run not to skip")
	}
	if stats.ContentFilesProcessed != 1 {
		t.Errorf("Expected 1 unit reprocessed, got %d", stats.ContentFilesProcessed)
	}
	if llm.callCount() != 2 {
		t.Errorf("Expected 2 batch calls across both runs, got %d", llm.callCount())
	}
}

// TestRunTruncatesOversizedUnits bounds per-unit prompt content and
// marks the cut.
func TestRunTruncatesOversizedUnits(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUnit("big.md", strings.Repeat("a", truncateLimit+5000))

	llm := &fakeLLM{responses: []string{emptyBatchResponse}}
	engine := NewEngine(store, llm, nil)

	if _, err := engine.Run(ctx, RunOptions{ProjectID: testProject}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !llm.promptContaining(truncationMarker) {
		t.Error("Expected truncation marker in the batch prompt")
	}
	if !llm.promptContaining("=== big.md ===") {
		t.Error("Expected unit name header in the batch prompt")
	}
}

// TestRunProgressSequence checks the advisory progress stream is
// monotonic and terminal.
func TestRunProgressSequence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUnit("doc.md", "body")

	llm := &fakeLLM{responses: []string{emptyBatchResponse}}
	engine := NewEngine(store, llm, nil)

	var states []ProcessingState
	engine.SetProgressFunc(func(projectID string, state ProcessingState) {
		if projectID != testProject {
			t.Errorf("Unexpected project id %q", projectID)
		}
		states = append(states, state)
	})

	if _, err := engine.Run(ctx, RunOptions{ProjectID: testProject}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(states) < 3 {
		t.Fatalf("Expected several progress updates, got %d", len(states))
	}
	last := -1
	for _, s := range states {
		if s.Progress < last {
			t.Errorf("Progress went backwards: %d after %d", s.Progress, last)
		}
		last = s.Progress
	}
	final := states[len(states)-1]
	if final.Progress != 100 || final.Status != StatusCompleted {
		t.Errorf("Expected terminal 100/completed, got %d/%s", final.Progress, final.Status)
	}
}

// TestRunRejectsConcurrentSameProject enforces one active run per
// project while other projects stay runnable.
func TestRunRejectsConcurrentSameProject(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	llm := &fakeLLM{}
	engine := NewEngine(store, llm, nil)

	if _, err := engine.beginSession(testProject); err != nil {
		t.Fatalf("beginSession failed: %v", err)
	}

	if _, err := engine.Run(ctx, RunOptions{ProjectID: testProject}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got %v", err)
	}

	if _, err := engine.Run(ctx, RunOptions{ProjectID: "other-project"}); err != nil {
		t.Errorf("Expected other project to run, got %v", err)
	}
}

// TestRunRequiresProjectID rejects empty options.
func TestRunRequiresProjectID(t *testing.T) {
	engine := NewEngine(newMemStore(), &fakeLLM{}, nil)
	if _, err := engine.Run(context.Background(), RunOptions{}); err == nil {
		t.Error("Expected an error without a project id")
	}
}

// TestRunToleratesStoreWriteFailures keeps counters honest: only
// durable writes count, and the run still succeeds.
func TestRunToleratesStoreWriteFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failFactWrites = true
	store.addUnit("doc.md", "body")

	response := `{"title": "t", "summary": "s",
		"facts": [{"content": "A fact that will fail to store"}],
		"decisions": [{"content": "A decision that stores fine"}]}`
	llm := &fakeLLM{responses: []string{response}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.FactsAdded != 0 {
		t.Errorf("Expected 0 facts counted on write failure, got %d", stats.FactsAdded)
	}
	if stats.DecisionsAdded != 1 {
		t.Errorf("Expected 1 decision, got %d", stats.DecisionsAdded)
	}
}

// TestRunBackfillsSummaries generates display summaries for units that
// lack one, clamped to the display caps.
func TestRunBackfillsSummaries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	unit := store.addUnit("doc.md", "body text for the summary")
	store.missingSummaries = []models.ContentUnit{unit}

	longTitle := strings.Repeat("T", summaryTitleMax+20)
	llm := &fakeLLM{responses: []string{
		emptyBatchResponse,
		`{"title": "` + longTitle + `", "summary": "Covers the migration goals."}`,
	}}
	engine := NewEngine(store, llm, nil)

	stats, err := engine.Run(ctx, RunOptions{ProjectID: testProject})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.SummariesGenerated != 1 {
		t.Fatalf("Expected 1 summary, got %d", stats.SummariesGenerated)
	}

	stored, ok := store.summaries[unit.ID.Hex()]
	if !ok {
		t.Fatal("Expected summary persisted for unit")
	}
	if n := len([]rune(stored[0])); n != summaryTitleMax {
		t.Errorf("Expected title clamped to %d runes, got %d", summaryTitleMax, n)
	}
	if stored[1] != "Covers the migration goals." {
		t.Errorf("Unexpected summary %q", stored[1])
	}
}

// TestParseSummaryResponse covers the JSON path and the regex fallback.
func TestParseSummaryResponse(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantTitle   string
		wantSummary string
	}{
		{
			name:        "Clean JSON",
			raw:         `{"title": "Kickoff", "summary": "Covers goals."}`,
			wantTitle:   "Kickoff",
			wantSummary: "Covers goals.",
		},
		{
			name:        "Regex fallback without braces",
			raw:         `The result is "title": "Project kickoff", "summary": "Covers goals and dates."`,
			wantTitle:   "Project kickoff",
			wantSummary: "Covers goals and dates.",
		},
		{
			name:        "Nothing recoverable",
			raw:         "no structured content here",
			wantTitle:   "",
			wantSummary: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, summary := parseSummaryResponse(tt.raw)
			if title != tt.wantTitle || summary != tt.wantSummary {
				t.Errorf("Expected (%q, %q), got (%q, %q)", tt.wantTitle, tt.wantSummary, title, summary)
			}
		})
	}
}

// TestExtractUnit runs single-unit extraction without touching the
// knowledge base.
func TestExtractUnit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	llm := &fakeLLM{responses: []string{
		`{"title": "Doc", "summary": "s", "facts": [{"content": "A standalone fact"}]}`,
		`{"title": "Call", "summary": "s"}`,
	}}
	engine := NewEngine(store, llm, nil)

	doc := models.ContentUnit{Name: "doc.md", Kind: models.ContentKindDocument, Body: "hello"}
	result, err := engine.ExtractUnit(ctx, doc, PromptContext{})
	if err != nil {
		t.Fatalf("ExtractUnit failed: %v", err)
	}
	if result.Metadata.SourceType != "document" {
		t.Errorf("Expected source type document, got %q", result.Metadata.SourceType)
	}
	if result.Metadata.Model != "test-model" {
		t.Errorf("Expected model stamped, got %q", result.Metadata.Model)
	}
	if len(store.facts) != 0 {
		t.Error("Expected no knowledge base writes from one-off extraction")
	}

	call := models.ContentUnit{Name: "standup.vtt", Kind: models.ContentKindTranscript, Body: "hello"}
	if _, err := engine.ExtractUnit(ctx, call, PromptContext{}); err != nil {
		t.Fatalf("ExtractUnit transcript failed: %v", err)
	}
	if !llm.promptContaining("TRANSCRIPT (standup.vtt)") {
		t.Error("Expected transcript template for transcript units")
	}
}

// TestExtractImage uses the vision model and the no-think prefix for
// model families that need it.
func TestExtractImage(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{
		model:     "qwen2.5-vl-7b",
		responses: []string{`{"title": "Slide", "summary": "s"}`},
	}
	engine := NewEngine(newMemStore(), llm, nil)

	result, err := engine.ExtractImage(ctx, Image{MimeType: "image/png", Data: []byte{1}}, PromptContext{})
	if err != nil {
		t.Fatalf("ExtractImage failed: %v", err)
	}
	if result.Metadata.SourceType != "vision" {
		t.Errorf("Expected source type vision, got %q", result.Metadata.SourceType)
	}

	llm.mu.Lock()
	prompt := llm.calls[0].Prompt
	llm.mu.Unlock()
	if !strings.HasPrefix(prompt, "/no_think\n\n") {
		t.Error("Expected no-think prefix for qwen vision model")
	}
}

// TestPruneSessions evicts finished state past the cutoff but never a
// session that is still running.
func TestPruneSessions(t *testing.T) {
	engine := NewEngine(newMemStore(), &fakeLLM{}, nil)

	stale := time.Now().UTC().Add(-48 * time.Hour)
	engine.sessions["completed-stale"] = &session{state: ProcessingState{Status: StatusCompleted, StartedAt: stale}}
	engine.sessions["failed-stale"] = &session{state: ProcessingState{Status: StatusFailed, StartedAt: stale}}
	engine.sessions["running-stale"] = &session{state: ProcessingState{Status: StatusRunning, StartedAt: stale}}
	engine.sessions["completed-fresh"] = &session{state: ProcessingState{Status: StatusCompleted, StartedAt: time.Now().UTC()}}

	removed := engine.PruneSessions(24 * time.Hour)
	if removed != 2 {
		t.Fatalf("Expected 2 sessions pruned, got %d", removed)
	}
	if got := engine.State("completed-stale").Status; got != StatusIdle {
		t.Errorf("Expected pruned project to report idle, got %q", got)
	}
	if got := engine.State("running-stale").Status; got != StatusRunning {
		t.Errorf("Expected running session kept, got %q", got)
	}
	if got := engine.State("completed-fresh").Status; got != StatusCompleted {
		t.Errorf("Expected fresh session kept, got %q", got)
	}
}
