package synthesis

import (
	"errors"
	"strings"
	"testing"
)

// TestParseRecoversWrappedJSON covers the recovery paths: reasoning
// blocks, conversational preambles, code fences, and trailing chatter.
func TestParseRecoversWrappedJSON(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTitle string
		wantFacts int
	}{
		{
			name:      "Plain JSON",
			raw:       `{"title": "Kickoff", "summary": "s", "facts": [{"content": "Launch is in March", "category": "planning", "confidence": 0.9}]}`,
			wantTitle: "Kickoff",
			wantFacts: 1,
		},
		{
			name:      "Think block before JSON",
			raw:       "<think>The user wants facts. Let me check the doc {maybe}.</think>\n{\"title\": \"Kickoff\", \"summary\": \"s\", \"facts\": []}",
			wantTitle: "Kickoff",
			wantFacts: 0,
		},
		{
			name:      "Unclosed trailing think block",
			raw:       "{\"title\": \"Kickoff\", \"summary\": \"s\", \"facts\": []}\n<think>and now I should reflect on",
			wantTitle: "Kickoff",
			wantFacts: 0,
		},
		{
			name:      "Markdown fence",
			raw:       "Here is the JSON:\n```json\n{\"title\": \"Kickoff\", \"summary\": \"s\", \"facts\": []}\n```",
			wantTitle: "Kickoff",
			wantFacts: 0,
		},
		{
			name:      "Plain fence without language tag",
			raw:       "```\n{\"title\": \"Kickoff\", \"summary\": \"s\", \"facts\": []}\n```",
			wantTitle: "Kickoff",
			wantFacts: 0,
		},
		{
			name:      "Conversational preamble",
			raw:       "Let me analyze this document.\nOkay, here is what I found:\n{\"title\": \"Kickoff\", \"summary\": \"s\", \"facts\": []}",
			wantTitle: "Kickoff",
			wantFacts: 0,
		},
		{
			name:      "Trailing chatter after the object",
			raw:       "{\"title\": \"Kickoff\", \"summary\": \"s\", \"facts\": []}\n\nI hope this helps with your project!",
			wantTitle: "Kickoff",
			wantFacts: 0,
		},
		{
			name:      "Nested braces resolved greedily",
			raw:       `{"title": "Kickoff", "summary": "s", "facts": [], "extraction_coverage": {"items_found": 3, "confidence": "high", "notes": ""}}`,
			wantTitle: "Kickoff",
			wantFacts: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(tt.raw, ParseOptions{SourceType: "document"})
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if result.Title != tt.wantTitle {
				t.Errorf("Expected title %q, got %q", tt.wantTitle, result.Title)
			}
			if len(result.Facts) != tt.wantFacts {
				t.Errorf("Expected %d facts, got %d", tt.wantFacts, len(result.Facts))
			}
		})
	}
}

// TestParseStampsMetadata verifies extraction metadata is filled on
// every successful parse.
func TestParseStampsMetadata(t *testing.T) {
	result, err := Parse(`{"title": "t", "summary": "s"}`, ParseOptions{SourceType: "transcript"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Metadata.ExtractedAt.IsZero() {
		t.Error("Expected extracted_at to be stamped")
	}
	if result.Metadata.SourceType != "transcript" {
		t.Errorf("Expected source type %q, got %q", "transcript", result.Metadata.SourceType)
	}
}

// TestParseRetriesWithSanitization confirms malformed-but-repairable
// output succeeds on the sanitize retry.
func TestParseRetriesWithSanitization(t *testing.T) {
	raw := `{title: "Kickoff", "summary": "s", "facts": [{"content": "Launch is in March", "confidence": NaN},],}`
	result, err := Parse(raw, ParseOptions{SourceType: "document"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Title != "Kickoff" {
		t.Errorf("Expected title %q, got %q", "Kickoff", result.Title)
	}
	if len(result.Facts) != 1 {
		t.Fatalf("Expected 1 fact, got %d", len(result.Facts))
	}
}

// TestParseFailureCarriesPreview checks the typed error and its
// truncated preview on unrecoverable input.
func TestParseFailureCarriesPreview(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "Empty response", raw: "   "},
		{name: "No JSON at all", raw: "I could not process this document, sorry."},
		{name: "Think block swallowed everything", raw: "<think>working on it"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, ParseOptions{})
			if err == nil {
				t.Fatal("Expected an error")
			}
			var perr *PipelineError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected *PipelineError, got %T", err)
			}
			if perr.Kind != ErrParse {
				t.Errorf("Expected kind %q, got %q", ErrParse, perr.Kind)
			}
			if KindOf(err) != ErrParse {
				t.Errorf("KindOf: expected %q, got %q", ErrParse, KindOf(err))
			}
		})
	}
}

// TestResponsePreviewTruncation bounds the preview length attached to
// parse failures.
func TestResponsePreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	preview := responsePreview(long)
	if len([]rune(preview)) != rawPreviewLen+3 {
		t.Errorf("Expected %d runes, got %d", rawPreviewLen+3, len([]rune(preview)))
	}
	if !strings.HasSuffix(preview, "...") {
		t.Error("Expected truncated preview to end in ellipsis")
	}

	short := "tiny response"
	if got := responsePreview(short); got != short {
		t.Errorf("Expected short input unchanged, got %q", got)
	}

	// Truncation must not split multi-byte runes.
	multibyte := strings.Repeat("日", 300)
	preview = responsePreview(multibyte)
	if !strings.HasPrefix(preview, "日") || !strings.HasSuffix(preview, "...") {
		t.Errorf("Multibyte preview malformed: %q", preview[:12])
	}
}

// TestStripPreambleKeepsContent ensures lines that are not recognized
// chatter survive preamble stripping.
func TestStripPreambleKeepsContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Chatter dropped",
			input: "Let me see.\nHere is the result:\n{\"a\": 1}",
			want:  "{\"a\": 1}",
		},
		{
			name:  "Non-chatter first line kept",
			input: "RESULT:\n{\"a\": 1}",
			want:  "RESULT:\n{\"a\": 1}",
		},
		{
			name:  "JSON on first line untouched",
			input: "{\"a\": 1}",
			want:  "{\"a\": 1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripPreamble(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestExtractJSONSpanGreedy verifies span extraction spans first opener
// to last closer and tolerates a missing closer.
func TestExtractJSONSpanGreedy(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Object with trailing text",
			input: `{"a": {"b": 2}} trailing`,
			want:  `{"a": {"b": 2}}`,
		},
		{
			name:  "Array value",
			input: `noise [1, 2, 3] more`,
			want:  `[1, 2, 3]`,
		},
		{
			name:  "Truncated object keeps tail",
			input: `{"a": [1, 2`,
			want:  `{"a": [1, 2`,
		},
		{
			name:  "No JSON",
			input: "nothing here",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONSpan(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
