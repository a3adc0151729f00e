package synthesis

import (
	"fmt"
	"regexp"
	"strings"

	"lorehub/internal/models"
)

// Kind selects a prompt template family.
type Kind string

const (
	KindDocument   Kind = "document"
	KindTranscript Kind = "transcript"
	KindVision     Kind = "vision"
	KindHolistic   Kind = "holistic_synthesis"
)

// Caps on context injected into holistic prompts.
const (
	maxContextFacts     = 50
	maxContextQuestions = 50
)

// TemplateSource supplies externally managed prompt templates, keyed by
// kind. A false second return falls back to the built-in default.
type TemplateSource interface {
	Template(key string) (string, bool)
}

// PromptContext carries everything a prompt may interpolate.
type PromptContext struct {
	Role               string
	ProjectDescription string
	EntityTypes        []string
	RelationshipTypes  []string

	// Holistic synthesis only.
	RecentFacts      []models.Fact
	PendingQuestions []models.Question

	// ModelName drives the vision no-think prefix.
	ModelName   string
	SourceNames []string
}

// PromptBuilder assembles extraction prompts, preferring templates from
// an external source over the built-in defaults.
type PromptBuilder struct {
	templates TemplateSource
}

// NewPromptBuilder returns a builder. templates may be nil, in which
// case only the built-in defaults are used.
func NewPromptBuilder(templates TemplateSource) *PromptBuilder {
	return &PromptBuilder{templates: templates}
}

// Build renders the prompt for one extraction call.
func (b *PromptBuilder) Build(kind Kind, content string, pctx PromptContext) string {
	tpl := defaultTemplate(kind)
	if b.templates != nil {
		if override, ok := b.templates.Template(string(kind)); ok && strings.TrimSpace(override) != "" {
			tpl = override
		}
	}

	prompt := Render(tpl, promptVars(content, pctx))
	if kind == KindVision {
		if prefix := noThinkPrefix(pctx.ModelName); prefix != "" {
			prompt = prefix + prompt
		}
	}
	return prompt
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes {{name}} placeholders from vars. Unknown names
// render as empty strings so a sloppy template degrades instead of
// leaking placeholder syntax into the model.
func Render(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		return vars[name]
	})
}

func promptVars(content string, pctx PromptContext) map[string]string {
	return map[string]string{
		"content":             content,
		"role":                pctx.Role,
		"project_description": pctx.ProjectDescription,
		"entity_types":        strings.Join(pctx.EntityTypes, ", "),
		"relationship_types":  strings.Join(pctx.RelationshipTypes, ", "),
		"source_names":        strings.Join(pctx.SourceNames, ", "),
		"role_block":          formatRoleBlock(pctx.Role),
		"project_block":       formatProjectBlock(pctx.ProjectDescription),
		"ontology_block":      formatOntologyBlock(pctx.EntityTypes, pctx.RelationshipTypes),
		"existing_facts":      formatFactBlock(pctx.RecentFacts),
		"pending_questions":   formatQuestionBlock(pctx.PendingQuestions),
		"json_keys":           extractionKeysBlock,
		"holistic_json_keys":  holisticKeysBlock,
	}
}

// noThinkPrefix returns the inline no-think directive for model families
// that honor it in the prompt rather than as a request parameter.
func noThinkPrefix(modelName string) string {
	m := strings.ToLower(modelName)
	if strings.Contains(m, "qwen") || strings.Contains(m, "glm") {
		return "/no_think\n\n"
	}
	return ""
}

func formatRoleBlock(role string) string {
	if strings.TrimSpace(role) == "" {
		return ""
	}
	return fmt.Sprintf("READER CONTEXT: The knowledge base is read by: %s. Weight relevance accordingly.\n\n", strings.TrimSpace(role))
}

func formatProjectBlock(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	return fmt.Sprintf("PROJECT: %s\n\n", strings.TrimSpace(description))
}

func formatOntologyBlock(entityTypes, relationshipTypes []string) string {
	if len(entityTypes) == 0 && len(relationshipTypes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("ONTOLOGY: ")
	if len(entityTypes) > 0 {
		fmt.Fprintf(&b, "entity types are %s. ", strings.Join(entityTypes, ", "))
	}
	if len(relationshipTypes) > 0 {
		fmt.Fprintf(&b, "relationship types are %s. ", strings.Join(relationshipTypes, ", "))
	}
	b.WriteString("Reuse these type names exactly; do not invent new ones.\n\n")
	return b.String()
}

// formatFactBlock renders recent facts the way earlier runs extracted
// them, so the model can dedup against what is already known.
func formatFactBlock(facts []models.Fact) string {
	if len(facts) == 0 {
		return "No facts extracted yet.\n"
	}
	if len(facts) > maxContextFacts {
		facts = facts[:maxContextFacts]
	}
	var b strings.Builder
	for i, f := range facts {
		category := f.Category
		if category == "" {
			category = models.FactCategoryGeneral
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, category, f.Content)
	}
	return b.String()
}

// formatQuestionBlock renders pending questions with their ids so the
// model can reference them in resolved_questions.
func formatQuestionBlock(questions []models.Question) string {
	if len(questions) == 0 {
		return "No open questions.\n"
	}
	if len(questions) > maxContextQuestions {
		questions = questions[:maxContextQuestions]
	}
	var b strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. (id: %s) %s\n", i+1, q.ID.Hex(), q.Content)
		if q.Context != "" {
			fmt.Fprintf(&b, "   context: %s\n", q.Context)
		}
	}
	return b.String()
}

func defaultTemplate(kind Kind) string {
	switch kind {
	case KindTranscript:
		return defaultTranscriptTemplate
	case KindVision:
		return defaultVisionTemplate
	case KindHolistic:
		return defaultHolisticTemplate
	default:
		return defaultDocumentTemplate
	}
}

const languagePreservationRule = `LANGUAGE RULE (hard requirement): keep every extracted value in the source language of the content. Never translate titles, summaries, facts, quotes, or names into another language.`

const extractionKeysBlock = `Return a single JSON object with exactly these keys:
{
  "title": "short title for the content",
  "summary": "2-3 sentence summary",
  "facts": [{"content": "...", "category": "technical|business|planning|general", "confidence": 0.0}],
  "decisions": [{"content": "...", "rationale": "...", "decided_by": "..."}],
  "questions": [{"content": "...", "context": "...", "priority": "high|medium|low"}],
  "risks": [{"content": "...", "severity": "high|medium|low", "mitigation": "..."}],
  "action_items": [{"task": "...", "owner": "...", "deadline": "..."}],
  "people": [{"name": "...", "role": "...", "organization": "..."}],
  "relationships": [{"source": "...", "target": "...", "type": "..."}],
  "key_topics": ["..."],
  "extraction_coverage": {"items_found": 0, "confidence": "high|medium|low", "notes": "..."}
}
Use empty arrays for categories with nothing to report. Omit no keys.`

const holisticKeysBlock = `Return a single JSON object with exactly these keys:
{
  "title": "short title for this batch of content",
  "summary": "2-3 sentence summary of what the new content adds",
  "facts": [{"content": "...", "category": "technical|business|planning|general", "confidence": 0.0}],
  "decisions": [{"content": "...", "rationale": "...", "decided_by": "..."}],
  "risks": [{"content": "...", "severity": "high|medium|low", "mitigation": "..."}],
  "action_items": [{"task": "...", "owner": "...", "deadline": "..."}],
  "people": [{"name": "...", "role": "...", "organization": "..."}],
  "relationships": [{"source": "...", "target": "...", "type": "..."}],
  "key_topics": ["..."],
  "extraction_coverage": {"items_found": 0, "confidence": "high|medium|low", "notes": "..."},
  "resolved_questions": [{"question_id": "...", "answer": "..."}],
  "new_questions": [{"content": "...", "context": "...", "priority": "high|medium|low"}]
}
Use empty arrays for categories with nothing to report. Omit no keys.`

const defaultDocumentTemplate = `You are a project knowledge extraction system. Analyze the document below and extract every fact, decision, open question, risk, action item, person, and relationship that matters to the project.

{{role_block}}{{project_block}}{{ontology_block}}RULES:
1. Return ONLY the JSON object - no markdown fences, no text before or after it.
2. Extract only what the document states or clearly implies. Never invent details.
3. Each item must be self-contained and understandable without the document open.
4. Questions must be real project unknowns, not questions about the document itself.
5. ` + languagePreservationRule + `

{{json_keys}}

DOCUMENT ({{source_names}}):
{{content}}`

const defaultTranscriptTemplate = `You are a project knowledge extraction system. Analyze the meeting transcript below and extract every fact, decision, open question, risk, action item, person, and relationship that matters to the project.

{{role_block}}{{project_block}}{{ontology_block}}RULES:
1. Return ONLY the JSON object - no markdown fences, no text before or after it.
2. Attribute decisions and commitments to the speaker who made them when the transcript names speakers.
3. A spoken commitment ("I'll have it done by Friday") is an action item with owner and deadline.
4. Ignore small talk, scheduling chatter, and audio artifacts.
5. Questions must be real project unknowns, not questions about the recording.
6. ` + languagePreservationRule + `

{{json_keys}}

TRANSCRIPT ({{source_names}}):
{{content}}`

const defaultVisionTemplate = `You are a project knowledge extraction system. Read the attached image (slide, whiteboard, diagram, or document photo) and extract every fact, decision, open question, risk, action item, person, and relationship that matters to the project.

{{role_block}}{{project_block}}{{ontology_block}}RULES:
1. Return ONLY the JSON object - no markdown fences, no text before or after it.
2. Transcribe text faithfully; do not guess at illegible content.
3. Never produce questions about the image itself (its title, what it shows), only about the project.
4. ` + languagePreservationRule + `

{{json_keys}}`

const defaultHolisticTemplate = `You are a project knowledge synthesis system. New content has been added to the project. Read it against the existing knowledge base and extract what is genuinely new, connecting information across documents where they overlap.

{{role_block}}{{project_block}}{{ontology_block}}EXISTING FACTS (do not re-extract these):
{{existing_facts}}
OPEN QUESTIONS (when the new content answers one, add a resolved_questions entry referencing its id):
{{pending_questions}}
RULES:
1. Return ONLY the JSON object - no markdown fences, no text before or after it.
2. Report only knowledge that is new relative to the existing facts above.
3. Resolve an open question only when the new content actually answers it; quote the answer.
4. new_questions must be real project unknowns, at least a sentence long, never questions about a slide or document itself.
5. ` + languagePreservationRule + `

{{holistic_json_keys}}

NEW CONTENT ({{source_names}}):
{{content}}`
