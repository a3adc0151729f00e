package synthesis

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"lorehub/internal/models"
)

// rawPreviewLen bounds the response preview attached to parse failures.
const rawPreviewLen = 200

// ParseOptions control response recovery.
type ParseOptions struct {
	// SourceType labels the result metadata (one of the prompt kinds).
	SourceType string
	// Validate attaches an advisory validation report to the result.
	// Validation never rejects a result; partial data is still used.
	Validate bool
}

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Leading conversational filler some models emit before the JSON object.
var preamblePrefixes = []string{
	"let me", "got it", "okay", "ok,", "ok.", "sure", "alright",
	"here is", "here's", "i'll", "i will", "i have", "i've",
	"certainly", "understood", "of course", "looking at", "first,",
	"based on", "below is", "the following",
}

// Parse recovers a structured extraction result from raw LLM output. It
// strips reasoning segments, locates the JSON object, retries a failed
// strict parse once after sanitization, and stamps extraction metadata.
// On unrecoverable input it returns a *PipelineError of kind ErrParse
// carrying a truncated preview of the raw response.
func Parse(raw string, opts ParseOptions) (*models.ExtractionResult, error) {
	data, err := RecoverJSON(raw)
	if err != nil {
		return nil, parseFailure(raw, err)
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, parseFailure(raw, err)
	}

	result.Metadata.ExtractedAt = time.Now().UTC()
	result.Metadata.SourceType = opts.SourceType
	if opts.Validate {
		result.Validation = validateResult(&result)
	}
	return &result, nil
}

// RecoverJSON extracts the first JSON value from raw model output and
// repairs it enough for encoding/json to accept. The returned bytes are
// valid JSON; the error path means no value could be recovered at all.
func RecoverJSON(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, errors.New("empty response")
	}

	text = stripThinkBlocks(text)
	text = stripPreamble(text)
	if fenced, ok := extractFenced(text); ok {
		text = fenced
	}

	span := extractJSONSpan(text)
	if span == "" {
		return nil, errors.New("no JSON value found in response")
	}

	if json.Valid([]byte(span)) {
		return []byte(span), nil
	}

	repaired := SanitizeJSON(span)
	if !json.Valid([]byte(repaired)) {
		return nil, errors.New("response is not recoverable JSON")
	}
	return []byte(repaired), nil
}

// stripThinkBlocks removes balanced <think>...</think> segments, then
// drops any unclosed trailing <think> block.
func stripThinkBlocks(s string) string {
	s = thinkBlockRe.ReplaceAllString(s, "")
	if idx := strings.Index(s, "<think>"); idx != -1 {
		s = s[:idx]
	}
	return s
}

// stripPreamble drops leading conversational lines ("Let me...", "Got
// it...") so braces inside chatter cannot mislead span extraction. It
// stops at the first line that looks like content.
func stripPreamble(s string) string {
	lines := strings.Split(s, "\n")
	i := 0
	for i < len(lines) {
		trimmed := strings.ToLower(strings.TrimSpace(lines[i]))
		if trimmed == "" {
			i++
			continue
		}
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "```") {
			break
		}
		if !hasPreamblePrefix(trimmed) {
			break
		}
		i++
	}
	if i == 0 {
		return s
	}
	return strings.Join(lines[i:], "\n")
}

func hasPreamblePrefix(line string) bool {
	for _, p := range preamblePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// extractFenced prefers a ```json code fence when present, falling back
// to the first plain fence that contains a brace.
func extractFenced(s string) (string, bool) {
	for _, marker := range []string{"```json", "```JSON", "```"} {
		start := strings.Index(s, marker)
		if start == -1 {
			continue
		}
		inner := s[start+len(marker):]
		end := strings.Index(inner, "```")
		if end == -1 {
			inner = strings.TrimSpace(inner)
		} else {
			inner = strings.TrimSpace(inner[:end])
		}
		if strings.ContainsAny(inner, "{[") {
			return inner, true
		}
	}
	return "", false
}

// extractJSONSpan locates the first top-level JSON value via greedy
// matching: first opening bracket to the last matching closer. Truncated
// output yields an unbalanced span that sanitization later closes.
func extractJSONSpan(s string) string {
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start := objStart
	closer := "}"
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
		closer = "]"
	}
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

func parseFailure(raw string, err error) *PipelineError {
	return &PipelineError{
		Kind:    ErrParse,
		Op:      "parse response",
		Err:     err,
		Preview: responsePreview(raw),
	}
}

func responsePreview(raw string) string {
	trimmed := strings.TrimSpace(raw)
	runes := []rune(trimmed)
	if len(runes) <= rawPreviewLen {
		return trimmed
	}
	return string(runes[:rawPreviewLen]) + "..."
}
