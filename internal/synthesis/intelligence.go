package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"lorehub/internal/models"
)

// Heuristic thresholds. These are the tunable policy of the system; keep
// them here, not inline in loops.
const (
	minTaskChars        = 10
	minAnswerChars      = 10
	minQuestionChars    = 10
	minTermChars        = 3 // term-set words must be strictly longer
	completionRatio     = 0.4
	minTermIntersection = 2
	completionNoteMax   = 200

	maxResolutionQuestions = 15
	maxResolutionFacts     = 50
	maxResolutionDecisions = 20

	// Confidence label required to accept an auto-resolution. Exact
	// string match; "medium" and numeric scores are rejected.
	acceptedConfidence = "high"
)

// Completion keywords matched inside extraction texts. Content language
// is preserved verbatim, so a few non-English equivalents are included.
var completionKeywords = []string{
	"finished", "completed", "done", "resolved", "fixed", "shipped", "deployed",
	"abgeschlossen", "erledigt", "fertig",
	"terminé", "terminée", "résolu", "résolue",
	"completado", "completada", "terminado", "resuelto",
	"concluído", "concluída", "finalizado",
}

// Intelligence derives knowledge-base updates that no single extraction
// reports directly: auto-resolving questions, completing actions, and
// suggesting assignees. Every pass is best-effort and never aborts the
// surrounding run.
type Intelligence struct {
	store Store
	llm   LLMClient
}

func NewIntelligence(store Store, llm LLMClient) *Intelligence {
	return &Intelligence{store: store, llm: llm}
}

// AutoResolve batches pending questions into a single LLM call with
// recent facts and decisions as context, and resolves the ones answered
// with high confidence. Returns the number of questions resolved; any
// call or parse failure yields zero, never an error.
func (i *Intelligence) AutoResolve(ctx context.Context, projectID string) int {
	questions, err := i.store.PendingQuestions(ctx, projectID, maxResolutionQuestions)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Auto-resolution skipped, cannot load questions: %v", err)
		return 0
	}
	if len(questions) == 0 {
		return 0
	}

	facts, err := i.store.RecentFacts(ctx, projectID, maxResolutionFacts)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Auto-resolution proceeding without facts: %v", err)
	}
	decisions, err := i.store.RecentDecisions(ctx, projectID, maxResolutionDecisions)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Auto-resolution proceeding without decisions: %v", err)
	}

	prompt := buildResolutionPrompt(questions, facts, decisions)
	res, err := i.llm.GenerateText(ctx, TextRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   2048,
		JSONMode:    true,
	})
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Auto-resolution LLM call failed: %v", err)
		return 0
	}

	candidates, err := parseResolutionCandidates(res.Text)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Auto-resolution response unparseable: %v", err)
		return 0
	}

	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID.Hex()] = true
	}

	resolved := 0
	for _, c := range candidates {
		answer := strings.TrimSpace(c.Answer)
		if c.Confidence != acceptedConfidence {
			continue
		}
		if utf8.RuneCountInString(answer) < minAnswerChars {
			continue
		}
		if !known[c.ID] {
			continue
		}
		if err := i.store.ResolveQuestion(ctx, projectID, c.ID, answer, models.AnswerSourceAutoDetected); err != nil {
			log.Printf("⚠️ [KNOWLEDGE] Failed to resolve question %s: %v", c.ID, err)
			continue
		}
		resolved++
	}
	if resolved > 0 {
		log.Printf("✅ [KNOWLEDGE] Auto-resolved %d of %d pending questions for project %s", resolved, len(questions), projectID)
	}
	return resolved
}

// CompleteActions scans pending actions against extraction texts (new
// fact contents plus the batch summary) and completes the first
// qualifying match per action. Returns the number completed.
func (i *Intelligence) CompleteActions(ctx context.Context, projectID string, texts []string) int {
	if len(texts) == 0 {
		return 0
	}
	actions, err := i.store.PendingActions(ctx, projectID)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Action completion skipped, cannot load actions: %v", err)
		return 0
	}

	completed := 0
	for _, action := range actions {
		if utf8.RuneCountInString(strings.TrimSpace(action.Task)) < minTaskChars {
			continue
		}
		for _, text := range texts {
			if !TaskCompletedBy(action.Task, text) {
				continue
			}
			note := clampRunes(fmt.Sprintf("Auto-completed from new content: %q", strings.TrimSpace(text)), completionNoteMax)
			if err := i.store.CompleteAction(ctx, projectID, action.ID.Hex(), note); err != nil {
				log.Printf("⚠️ [KNOWLEDGE] Failed to complete action %s: %v", action.ID.Hex(), err)
				break
			}
			completed++
			break // first qualifying match wins
		}
	}
	return completed
}

// TaskCompletedBy reports whether text plausibly announces completion of
// task: it must contain a completion keyword, share at least
// minTermIntersection significant terms with the task, and cover at
// least completionRatio of the task's term set.
func TaskCompletedBy(task, text string) bool {
	if !containsCompletionKeyword(text) {
		return false
	}
	taskTerms := termSet(task)
	ratio, intersection := termOverlap(taskTerms, termSet(text))
	return ratio >= completionRatio && intersection >= minTermIntersection
}

// termSet lowercases, strips punctuation, and keeps words longer than
// minTermChars characters.
func termSet(text string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	set := make(map[string]struct{})
	for _, word := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(word) > minTermChars {
			set[word] = struct{}{}
		}
	}
	return set
}

// termOverlap returns |task ∩ text| / |task| and the intersection size.
func termOverlap(task, text map[string]struct{}) (float64, int) {
	if len(task) == 0 {
		return 0, 0
	}
	n := 0
	for word := range task {
		if _, ok := text[word]; ok {
			n++
		}
	}
	return float64(n) / float64(len(task)), n
}

func containsCompletionKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Bare tokens that look like job titles rather than personal names; a
// person record named like this never drives an assignment.
var genericRoleTokens = map[string]struct{}{
	"lead": {}, "manager": {}, "owner": {}, "team": {}, "director": {},
	"engineer": {}, "developer": {}, "designer": {}, "analyst": {},
	"admin": {}, "administrator": {}, "stakeholder": {}, "client": {},
	"customer": {}, "user": {}, "ceo": {}, "cto": {}, "vp": {},
	"unknown": {}, "tbd": {}, "n/a": {}, "everyone": {}, "all": {},
}

// SuggestAssignee returns the first person whose name matches on a word
// boundary inside the question's content or context. Returns "" when no
// name matches; the caller leaves the question unassigned.
func SuggestAssignee(q models.Question, people []models.Person) string {
	haystack := q.Content + " " + q.Context
	for _, p := range people {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		if _, generic := genericRoleTokens[strings.ToLower(name)]; generic {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(haystack) {
			return p.Name
		}
	}
	return ""
}

var garbageSubjectRe = regexp.MustCompile(`(?i)\b(slide|image|document|photo|picture|screenshot|page)\b`)

var garbageMetaRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)what('s| is| was) the (title|name|date|author|heading|caption|filename)`),
	regexp.MustCompile(`(?i)what (does|do|did) (this|the|these|it) .{0,20}(show|shows|contain|contains|depict|depicts|mean|say|represent)`),
	regexp.MustCompile(`(?i)what (is|are) (being )?(shown|displayed|pictured|depicted|illustrated)`),
	regexp.MustCompile(`(?i)who (created|made|wrote|took|presented|authored) (this|the)`),
	regexp.MustCompile(`(?i)(can|could) you (see|read|describe)`),
}

// IsGarbageQuestion flags meta-questions about the artifact itself
// ("what is the title of this slide") rather than about the project.
// Applied as a pre-insert filter during merge.
func IsGarbageQuestion(text string) bool {
	if !garbageSubjectRe.MatchString(text) {
		return false
	}
	for _, re := range garbageMetaRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

const resolutionPromptHeader = `You are a project knowledge assistant. Below are open questions from a project knowledge base, followed by recently recorded facts and decisions. Determine which questions the recorded knowledge now answers.

RULES:
1. Return ONLY a JSON object of the form {"resolutions": [{"id": "...", "answer": "...", "confidence": "high|medium|low"}]}.
2. Use "high" confidence only when the facts or decisions answer the question directly and unambiguously.
3. The answer must quote or closely paraphrase the supporting fact or decision.
4. Skip questions the recorded knowledge does not answer; do not guess.
5. Keep answers in the source language of the supporting knowledge.`

func buildResolutionPrompt(questions []models.Question, facts []models.Fact, decisions []models.Decision) string {
	var b strings.Builder
	b.WriteString(resolutionPromptHeader)
	b.WriteString("\n\nOPEN QUESTIONS:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. (id: %s) %s\n", i+1, q.ID.Hex(), q.Content)
		if q.Context != "" {
			fmt.Fprintf(&b, "   context: %s\n", q.Context)
		}
	}
	b.WriteString("\nRECORDED FACTS:\n")
	if len(facts) == 0 {
		b.WriteString("(none)\n")
	}
	for i, f := range facts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f.Content)
	}
	b.WriteString("\nRECORDED DECISIONS:\n")
	if len(decisions) == 0 {
		b.WriteString("(none)\n")
	}
	for i, d := range decisions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Content)
	}
	return b.String()
}

// parseResolutionCandidates accepts either {"resolutions": [...]} or a
// bare top-level array.
func parseResolutionCandidates(raw string) ([]models.ResolutionCandidate, error) {
	data, err := RecoverJSON(raw)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Resolutions []models.ResolutionCandidate `json:"resolutions"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Resolutions != nil {
		return wrapped.Resolutions, nil
	}

	var bare []models.ResolutionCandidate
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}
	return nil, fmt.Errorf("no resolutions found in response")
}

// clampRunes truncates s to at most max runes.
func clampRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
