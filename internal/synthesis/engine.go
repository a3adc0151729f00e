package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lorehub/internal/models"
)

const (
	batchSize        = 5
	truncateLimit    = 15000
	truncationMarker = "\n\n[Content truncated]"

	// How many persisted facts seed the in-run dedup set. Older facts
	// beyond this window are not re-checked.
	dedupSeedLimit = 200

	summaryTitleMax      = 60
	summaryMax           = 120
	summaryBackfillLimit = 20
	summaryInputLimit    = 6000
)

// Session statuses.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Stats summarizes one synthesis run. All counters reflect durable
// writes; a run that failed everywhere reports zeros with Skipped=false.
type Stats struct {
	Skipped               bool `json:"skipped"`
	ContentFilesProcessed int  `json:"content_files_processed"`
	FactsAdded            int  `json:"facts_added"`
	QuestionsResolved     int  `json:"questions_resolved"`
	QuestionsAdded        int  `json:"questions_added"`
	DecisionsAdded        int  `json:"decisions_added"`
	RisksAdded            int  `json:"risks_added"`
	PeopleAdded           int  `json:"people_added"`
	ActionsAdded          int  `json:"actions_added"`
	ActionsCompleted      int  `json:"actions_completed"`
	RelationshipsAdded    int  `json:"relationships_added"`
	SummariesGenerated    int  `json:"summaries_generated"`
}

// ProcessingState is the advisory progress snapshot exposed for polling.
// It never drives control flow.
type ProcessingState struct {
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// ProgressFunc receives state updates during a run, e.g. to fan out over
// pub/sub or a websocket.
type ProgressFunc func(projectID string, state ProcessingState)

// RunOptions configure one synthesis run.
type RunOptions struct {
	ProjectID string
	// ForceFull clears all synthesis records first so every unit is
	// reprocessed.
	ForceFull bool
	// MaxUnits caps changed units picked up this run; 0 uses
	// models.DefaultMaxUnitsPerRun.
	MaxUnits int
	// Context carries role, project description, and ontology. The
	// engine fills in recent facts and pending questions per batch.
	Context PromptContext
}

type session struct {
	mu    sync.RWMutex
	state ProcessingState
}

func (s *session) snapshot() ProcessingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Engine runs the synthesis pipeline: change detection, batched holistic
// extraction, merge with dedup, and the enrichment passes. Batches are
// processed strictly sequentially so each batch observes the facts and
// questions written by earlier batches in the same run.
type Engine struct {
	store      Store
	llm        LLMClient
	summaryLLM LLMClient // nil means llm
	prompts    *PromptBuilder
	tracker    *Tracker
	intel      *Intelligence

	onProgress ProgressFunc

	mu       sync.Mutex
	sessions map[string]*session // per project; no cross-project contamination
}

func NewEngine(store Store, llm LLMClient, prompts *PromptBuilder) *Engine {
	if prompts == nil {
		prompts = NewPromptBuilder(nil)
	}
	return &Engine{
		store:    store,
		llm:      llm,
		prompts:  prompts,
		tracker:  NewTracker(store),
		intel:    NewIntelligence(store, llm),
		sessions: make(map[string]*session),
	}
}

// SetProgressFunc registers a single progress listener. Call before the
// first Run.
func (e *Engine) SetProgressFunc(fn ProgressFunc) {
	e.onProgress = fn
}

// SetSummaryLLM routes the summary backfill pass through a different
// client, e.g. a cheaper model. Call before the first Run; unset falls
// back to the main client.
func (e *Engine) SetSummaryLLM(llm LLMClient) {
	e.summaryLLM = llm
}

// Tracker exposes change detection for callers that need it directly.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Intelligence exposes the heuristics layer, e.g. for a standalone
// auto-resolution pass.
func (e *Engine) Intelligence() *Intelligence { return e.intel }

// State returns the current processing state for a project. Projects
// with no recorded run report StatusIdle.
func (e *Engine) State(projectID string) ProcessingState {
	e.mu.Lock()
	sess, ok := e.sessions[projectID]
	e.mu.Unlock()
	if !ok {
		return ProcessingState{Status: StatusIdle}
	}
	return sess.snapshot()
}

// PruneSessions drops per-project state entries whose run started before
// now minus olderThan. Affected projects report StatusIdle again. Entries
// still marked running are kept regardless of age. Returns the number of
// entries removed.
func (e *Engine) PruneSessions(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for projectID, sess := range e.sessions {
		state := sess.snapshot()
		if state.Status == StatusRunning {
			continue
		}
		if state.StartedAt.Before(cutoff) {
			delete(e.sessions, projectID)
			removed++
		}
	}
	return removed
}

// Run executes one synthesis pass for a project. It returns ErrRunInProgress
// if a run is already active for the same project. Individual batch and
// item failures are logged and skipped; Run only returns an error when
// the pipeline cannot start at all (storage unreachable, bad options).
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Stats, error) {
	projectID := opts.ProjectID
	if projectID == "" {
		return nil, errors.New("project id required")
	}

	sess, err := e.beginSession(projectID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}

	e.setState(projectID, sess, 5, "Scanning for changed content", StatusRunning)

	if opts.ForceFull {
		if err := e.tracker.ClearAll(ctx, projectID); err != nil {
			e.setState(projectID, sess, 100, "Failed to reset synthesis records", StatusFailed)
			return nil, fmt.Errorf("clear synthesis records: %w", err)
		}
	}

	maxUnits := opts.MaxUnits
	if maxUnits <= 0 {
		maxUnits = models.DefaultMaxUnitsPerRun
	}
	changed, err := e.tracker.FindChanged(ctx, projectID, maxUnits)
	if err != nil {
		e.setState(projectID, sess, 100, "Failed to scan content", StatusFailed)
		return nil, fmt.Errorf("find changed content: %w", err)
	}

	if len(changed) == 0 {
		stats.Skipped = true
		e.setState(projectID, sess, 100, "Knowledge base already up to date", StatusCompleted)
		log.Printf("📚 [SYNTHESIS] Project %s: nothing changed, run skipped", projectID)
		return stats, nil
	}

	factSeen := e.seedFactSet(ctx, projectID)
	peopleSeen := e.seedPeopleSet(ctx, projectID)

	batches := chunkUnits(changed, batchSize)
	e.setState(projectID, sess, 20, fmt.Sprintf("Synthesizing %d content units in %d batches", len(changed), len(batches)), StatusRunning)
	log.Printf("📚 [SYNTHESIS] Project %s: %d changed units, %d batches", projectID, len(changed), len(batches))

	merged := make([]models.ContentUnit, 0, len(changed))
	for bi, batch := range batches {
		progress := 60 + int(float64(bi)/float64(len(batches))*35.0)
		e.setState(projectID, sess, progress, fmt.Sprintf("Processing batch %d of %d", bi+1, len(batches)), StatusRunning)

		result, err := e.synthesizeBatch(ctx, projectID, batch, opts.Context)
		if err != nil {
			log.Printf("⚠️ [SYNTHESIS] Batch %d/%d failed for project %s: %v", bi+1, len(batches), projectID, err)
			continue
		}

		e.mergeBatch(ctx, projectID, batch, result, factSeen, peopleSeen, stats)
		merged = append(merged, batch...)
		stats.ContentFilesProcessed += len(batch)
	}

	if len(merged) > 0 {
		if err := e.tracker.MarkSynthesized(ctx, projectID, merged); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to mark %d units synthesized for project %s: %v", len(merged), projectID, err)
		}
	}

	e.setState(projectID, sess, 95, "Enriching questions and summaries", StatusRunning)
	e.enrichAssignees(ctx, projectID)
	stats.SummariesGenerated = e.backfillSummaries(ctx, projectID)

	e.setState(projectID, sess, 100, "Synthesis complete", StatusCompleted)
	log.Printf("✅ [SYNTHESIS] Project %s: %d units processed, +%d facts, +%d questions, %d resolved, +%d decisions, +%d risks, +%d people, %d summaries",
		projectID, stats.ContentFilesProcessed, stats.FactsAdded, stats.QuestionsAdded, stats.QuestionsResolved,
		stats.DecisionsAdded, stats.RisksAdded, stats.PeopleAdded, stats.SummariesGenerated)
	return stats, nil
}

func (e *Engine) beginSession(projectID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.sessions[projectID]; ok {
		if existing.snapshot().Status == StatusRunning {
			return nil, ErrRunInProgress
		}
	}
	sess := &session{state: ProcessingState{Status: StatusRunning, StartedAt: time.Now().UTC()}}
	e.sessions[projectID] = sess
	return sess, nil
}

func (e *Engine) setState(projectID string, sess *session, progress int, message, status string) {
	sess.mu.Lock()
	sess.state.Progress = progress
	sess.state.Message = message
	sess.state.Status = status
	state := sess.state
	sess.mu.Unlock()

	if e.onProgress != nil {
		e.onProgress(projectID, state)
	}
}

// synthesizeBatch builds the holistic prompt against the current
// knowledge snapshot and parses the model's answer.
func (e *Engine) synthesizeBatch(ctx context.Context, projectID string, batch []models.ContentUnit, pctx PromptContext) (*models.ExtractionResult, error) {
	facts, err := e.store.RecentFacts(ctx, projectID, maxContextFacts)
	if err != nil {
		log.Printf("⚠️ [SYNTHESIS] Proceeding without fact context: %v", err)
	}
	questions, err := e.store.PendingQuestions(ctx, projectID, maxContextQuestions)
	if err != nil {
		log.Printf("⚠️ [SYNTHESIS] Proceeding without question context: %v", err)
	}

	pctx.RecentFacts = facts
	pctx.PendingQuestions = questions
	pctx.ModelName = e.llm.ModelName()
	pctx.SourceNames = unitNames(batch)

	prompt := e.prompts.Build(KindHolistic, buildBatchContent(batch), pctx)

	res, err := e.llm.GenerateText(ctx, TextRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   4096,
		JSONMode:    true,
	})
	if err != nil {
		return nil, &PipelineError{Kind: ErrTransport, Op: "holistic synthesis", Err: err}
	}

	result, err := Parse(res.Text, ParseOptions{SourceType: string(KindHolistic), Validate: true})
	if err != nil {
		return nil, err
	}
	if result.Validation != nil && !result.Validation.IsValid {
		log.Printf("⚠️ [SYNTHESIS] Batch response failed advisory validation: %v", result.Validation.Errors)
	}
	result.Metadata.Model = res.Model
	return result, nil
}

// mergeBatch writes one batch's extraction into storage with per-item
// error tolerance, then runs action auto-completion over the new texts.
func (e *Engine) mergeBatch(ctx context.Context, projectID string, batch []models.ContentUnit, result *models.ExtractionResult, factSeen, peopleSeen map[string]struct{}, stats *Stats) {
	sourceRef := strings.Join(unitNames(batch), ", ")

	newTexts := make([]string, 0, len(result.Facts)+1)
	for _, f := range result.Facts {
		content := strings.TrimSpace(f.Content)
		if content == "" {
			continue
		}
		key := strings.ToLower(content)
		if _, dup := factSeen[key]; dup {
			continue
		}
		fact := &models.Fact{
			ProjectID:  projectID,
			Content:    content,
			Category:   f.Category,
			Confidence: f.Confidence,
			SourceRef:  sourceRef,
		}
		if err := e.store.AddFact(ctx, fact); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store fact: %v", err)
			continue
		}
		factSeen[key] = struct{}{}
		newTexts = append(newTexts, content)
		stats.FactsAdded++
	}

	for _, rq := range result.ResolvedQuestions {
		answer := strings.TrimSpace(rq.Answer)
		if rq.QuestionID == "" || answer == "" {
			continue
		}
		if err := e.store.ResolveQuestion(ctx, projectID, rq.QuestionID, answer, models.AnswerSourceSynthesis); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to resolve question %s: %v", rq.QuestionID, err)
			continue
		}
		stats.QuestionsResolved++
	}

	for _, q := range append(result.NewQuestions, result.Questions...) {
		content := strings.TrimSpace(q.Content)
		if utf8.RuneCountInString(content) < minQuestionChars {
			continue
		}
		if IsGarbageQuestion(content) {
			continue
		}
		priority := q.Priority
		if priority == "" {
			priority = models.QuestionPriorityMedium
		}
		question := &models.Question{
			ProjectID: projectID,
			Content:   content,
			Context:   q.Context,
			Priority:  priority,
			Status:    models.QuestionStatusPending,
			SourceRef: sourceRef,
		}
		if err := e.store.AddQuestion(ctx, question); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store question: %v", err)
			continue
		}
		stats.QuestionsAdded++
	}

	for _, d := range result.Decisions {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		decision := &models.Decision{
			ProjectID: projectID,
			Content:   strings.TrimSpace(d.Content),
			Rationale: d.Rationale,
			DecidedBy: d.DecidedBy,
			SourceRef: sourceRef,
		}
		if err := e.store.AddDecision(ctx, decision); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store decision: %v", err)
			continue
		}
		stats.DecisionsAdded++
	}

	for _, r := range result.Risks {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		risk := &models.Risk{
			ProjectID:  projectID,
			Content:    strings.TrimSpace(r.Content),
			Severity:   r.Severity,
			Mitigation: r.Mitigation,
			SourceRef:  sourceRef,
		}
		if err := e.store.AddRisk(ctx, risk); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store risk: %v", err)
			continue
		}
		stats.RisksAdded++
	}

	for _, p := range result.People {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := peopleSeen[key]; dup {
			continue
		}
		person := &models.Person{
			ProjectID:    projectID,
			Name:         name,
			Role:         p.Role,
			Organization: p.Organization,
			SourceRef:    sourceRef,
		}
		if err := e.store.AddPerson(ctx, person); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store person: %v", err)
			continue
		}
		peopleSeen[key] = struct{}{}
		stats.PeopleAdded++
	}

	for _, rel := range result.Relationships {
		if rel.Source == "" || rel.Target == "" {
			continue
		}
		relationship := &models.Relationship{
			ProjectID: projectID,
			Source:    rel.Source,
			Target:    rel.Target,
			Type:      rel.Type,
			SourceRef: sourceRef,
		}
		if err := e.store.AddRelationship(ctx, relationship); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store relationship: %v", err)
			continue
		}
		stats.RelationshipsAdded++
	}

	for _, a := range result.ActionItems {
		task := strings.TrimSpace(a.Task)
		if utf8.RuneCountInString(task) < minTaskChars {
			continue
		}
		action := &models.ActionItem{
			ProjectID: projectID,
			Task:      task,
			Owner:     a.Owner,
			Deadline:  a.Deadline,
			Status:    models.ActionStatusPending,
			SourceRef: sourceRef,
		}
		if err := e.store.AddAction(ctx, action); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store action item: %v", err)
			continue
		}
		stats.ActionsAdded++
	}

	if summary := strings.TrimSpace(result.Summary); summary != "" {
		newTexts = append(newTexts, summary)
	}
	stats.ActionsCompleted += e.intel.CompleteActions(ctx, projectID, newTexts)
}

// enrichAssignees suggests an assignee for unassigned open questions
// based on the known people list.
func (e *Engine) enrichAssignees(ctx context.Context, projectID string) {
	questions, err := e.store.PendingQuestions(ctx, projectID, 0)
	if err != nil {
		log.Printf("⚠️ [SYNTHESIS] Assignee pass skipped, cannot load questions: %v", err)
		return
	}
	people, err := e.store.People(ctx, projectID)
	if err != nil || len(people) == 0 {
		return
	}

	assigned := 0
	for _, q := range questions {
		if q.AssignedTo != "" {
			continue
		}
		name := SuggestAssignee(q, people)
		if name == "" {
			continue
		}
		if err := e.store.AssignQuestion(ctx, projectID, q.ID.Hex(), name); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to assign question %s: %v", q.ID.Hex(), err)
			continue
		}
		assigned++
	}
	if assigned > 0 {
		log.Printf("📚 [SYNTHESIS] Suggested assignees for %d questions in project %s", assigned, projectID)
	}
}

// backfillSummaries generates {title, summary} for persisted units that
// lack one, a single LLM call per unit, with a regex fallback when the
// JSON path fails.
func (e *Engine) backfillSummaries(ctx context.Context, projectID string) int {
	units, err := e.store.UnitsMissingSummary(ctx, projectID, summaryBackfillLimit)
	if err != nil {
		log.Printf("⚠️ [SYNTHESIS] Summary backfill skipped: %v", err)
		return 0
	}

	generated := 0
	for _, unit := range units {
		title, summary, err := e.generateSummary(ctx, unit)
		if err != nil {
			log.Printf("⚠️ [SYNTHESIS] Summary failed for %q: %v", unit.Name, err)
			continue
		}
		if err := e.store.SetUnitSummary(ctx, projectID, unit.ID.Hex(), title, summary); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to store summary for %q: %v", unit.Name, err)
			continue
		}
		generated++
	}
	return generated
}

const summaryPromptFmt = `Summarize the document below. Return ONLY a JSON object: {"title": "...", "summary": "..."}.
The title must be at most %d characters, the summary at most %d characters, both in the document's source language.

DOCUMENT (%s):
%s`

var (
	summaryTitleRe   = regexp.MustCompile(`"title"\s*:\s*"([^"]+)"`)
	summaryContentRe = regexp.MustCompile(`"summary"\s*:\s*"([^"]+)"`)
)

func (e *Engine) generateSummary(ctx context.Context, unit models.ContentUnit) (string, string, error) {
	body := clampRunes(unit.Body, summaryInputLimit)
	prompt := fmt.Sprintf(summaryPromptFmt, summaryTitleMax, summaryMax, unit.Name, body)

	client := e.llm
	if e.summaryLLM != nil {
		client = e.summaryLLM
	}
	res, err := client.GenerateText(ctx, TextRequest{
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   300,
		JSONMode:    true,
	})
	if err != nil {
		return "", "", &PipelineError{Kind: ErrTransport, Op: "summary generation", Err: err}
	}

	title, summary := parseSummaryResponse(res.Text)
	if summary == "" {
		return "", "", &PipelineError{Kind: ErrParse, Op: "summary generation", Err: errors.New("no summary in response"), Preview: responsePreview(res.Text)}
	}
	if title == "" {
		title = unit.Name
	}
	return clampRunes(title, summaryTitleMax), clampRunes(summary, summaryMax), nil
}

func parseSummaryResponse(text string) (string, string) {
	if data, err := RecoverJSON(text); err == nil {
		var doc struct {
			Title   string `json:"title"`
			Summary string `json:"summary"`
		}
		if json.Unmarshal(data, &doc) == nil && strings.TrimSpace(doc.Summary) != "" {
			return strings.TrimSpace(doc.Title), strings.TrimSpace(doc.Summary)
		}
	}

	var title, summary string
	if m := summaryTitleRe.FindStringSubmatch(text); m != nil {
		title = m[1]
	}
	if m := summaryContentRe.FindStringSubmatch(text); m != nil {
		summary = m[1]
	}
	return title, summary
}

// ExtractUnit runs a one-off extraction over a single content unit
// without merging into the knowledge base. Image-backed units carry
// their OCR text as body, so they extract as documents.
func (e *Engine) ExtractUnit(ctx context.Context, unit models.ContentUnit, pctx PromptContext) (*models.ExtractionResult, error) {
	kind := KindDocument
	if unit.Kind == models.ContentKindTranscript {
		kind = KindTranscript
	}

	pctx.ModelName = e.llm.ModelName()
	pctx.SourceNames = []string{unit.Name}

	body := unit.Body
	if utf8.RuneCountInString(body) > truncateLimit {
		body = clampRunes(body, truncateLimit) + truncationMarker
	}

	prompt := e.prompts.Build(kind, body, pctx)
	res, err := e.llm.GenerateText(ctx, TextRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   4096,
		JSONMode:    true,
	})
	if err != nil {
		return nil, &PipelineError{Kind: ErrTransport, Op: "unit extraction", Err: err}
	}

	result, err := Parse(res.Text, ParseOptions{SourceType: string(kind), Validate: true})
	if err != nil {
		return nil, err
	}
	result.Metadata.Model = res.Model
	return result, nil
}

// ExtractImage runs structured extraction directly over an image via the
// vision model, bypassing the OCR-then-text path.
func (e *Engine) ExtractImage(ctx context.Context, img Image, pctx PromptContext) (*models.ExtractionResult, error) {
	pctx.ModelName = e.llm.VisionModelName()

	prompt := e.prompts.Build(KindVision, "", pctx)
	res, err := e.llm.GenerateVision(ctx, VisionRequest{
		Prompt:      prompt,
		Images:      []Image{img},
		Temperature: 0.2,
		MaxTokens:   4096,
	})
	if err != nil {
		return nil, &PipelineError{Kind: ErrTransport, Op: "image extraction", Err: err}
	}

	result, err := Parse(res.Text, ParseOptions{SourceType: string(KindVision), Validate: true})
	if err != nil {
		return nil, err
	}
	result.Metadata.Model = res.Model
	return result, nil
}

func (e *Engine) seedFactSet(ctx context.Context, projectID string) map[string]struct{} {
	seen := make(map[string]struct{})
	facts, err := e.store.RecentFacts(ctx, projectID, dedupSeedLimit)
	if err != nil {
		log.Printf("⚠️ [SYNTHESIS] Fact dedup seed unavailable: %v", err)
		return seen
	}
	for _, f := range facts {
		seen[strings.ToLower(strings.TrimSpace(f.Content))] = struct{}{}
	}
	return seen
}

func (e *Engine) seedPeopleSet(ctx context.Context, projectID string) map[string]struct{} {
	seen := make(map[string]struct{})
	people, err := e.store.People(ctx, projectID)
	if err != nil {
		log.Printf("⚠️ [SYNTHESIS] People dedup seed unavailable: %v", err)
		return seen
	}
	for _, p := range people {
		seen[strings.ToLower(strings.TrimSpace(p.Name))] = struct{}{}
	}
	return seen
}

func chunkUnits(units []models.ContentUnit, size int) [][]models.ContentUnit {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]models.ContentUnit, 0, (len(units)+size-1)/size)
	for start := 0; start < len(units); start += size {
		end := start + size
		if end > len(units) {
			end = len(units)
		}
		batches = append(batches, units[start:end])
	}
	return batches
}

func unitNames(units []models.ContentUnit) []string {
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Name)
	}
	return names
}

// buildBatchContent concatenates unit bodies under name headers,
// truncating each body to the per-unit character ceiling.
func buildBatchContent(batch []models.ContentUnit) string {
	var b strings.Builder
	for i, u := range batch {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n", u.Name)
		body := u.Body
		if utf8.RuneCountInString(body) > truncateLimit {
			body = clampRunes(body, truncateLimit) + truncationMarker
		}
		b.WriteString(body)
	}
	return b.String()
}
