package synthesis

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("not valid JSON: %v\ninput: %s", err, s)
	}
	return v
}

// TestSanitizeJSONRepairs runs the malformation corpus: every input must
// sanitize into valid JSON that decodes to the same value as want.
func TestSanitizeJSONRepairs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Trailing commas in object and array",
			input: `{"a": [1, 2,], "b": {"c": 1,},}`,
			want:  `{"a": [1, 2], "b": {"c": 1}}`,
		},
		{
			name:  "Unquoted keys",
			input: `{title: "Kickoff", word_count: 42, risk-level: "low"}`,
			want:  `{"title": "Kickoff", "word_count": 42, "risk-level": "low"}`,
		},
		{
			name:  "NaN and Infinity literals",
			input: `{"score": NaN, "max": Infinity, "min": -Infinity, "list": [NaN]}`,
			want:  `{"score": null, "max": null, "min": null, "list": [null]}`,
		},
		{
			name:  "Leading zeros",
			input: `{"n": 007, "neg": -012, "frac": 0.5, "zero": 0}`,
			want:  `{"n": 7, "neg": -12, "frac": 0.5, "zero": 0}`,
		},
		{
			name:  "Raw newline and tab inside string",
			input: "{\"summary\": \"line one\nline\ttwo\"}",
			want:  "{\"summary\": \"line one\\nline\\ttwo\"}",
		},
		{
			name:  "Control character dropped from string",
			input: "{\"a\": \"bc\"}",
			want:  `{"a": "bc"}`,
		},
		{
			name:  "Missing comma between adjacent objects",
			input: `{"items": [{"a": 1} {"b": 2}]}`,
			want:  `{"items": [{"a": 1}, {"b": 2}]}`,
		},
		{
			name:  "Unbalanced brackets from truncation",
			input: `{"a": {"b": [1, 2`,
			want:  `{"a": {"b": [1, 2]}}`,
		},
		{
			name:  "Truncated mid string",
			input: `{"facts": [{"content": "The deadline is`,
			want:  `{"facts": [{"content": "The deadline is"}]}`,
		},
		{
			name:  "Dangling escape at end of input",
			input: `{"a": "x\`,
			want:  `{"a": "x\\"}`,
		},
		{
			name:  "BOM prefix",
			input: "\uFEFF{\"a\": 1}",
			want:  `{"a": 1}`,
		},
		{
			name:  "Truncation then trailing comma before appended closer",
			input: `{"facts": [{"content": "done"},`,
			want:  `{"facts": [{"content": "done"}]}`,
		},
		{
			name:  "Everything at once",
			input: "\uFEFF{title: \"Q3 plan\nfinal\", facts: [{\"content\": \"Launch in March\", \"confidence\": NaN} {\"content\": \"Budget is 0042\"},], count: 002",
			want:  "{\"title\": \"Q3 plan\\nfinal\", \"facts\": [{\"content\": \"Launch in March\", \"confidence\": null}, {\"content\": \"Budget is 0042\"}], \"count\": 2}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeJSON(tt.input)
			if !json.Valid([]byte(got)) {
				t.Fatalf("Sanitized output is not valid JSON: %s", got)
			}
			if !reflect.DeepEqual(decodeJSON(t, got), decodeJSON(t, tt.want)) {
				t.Errorf("Expected equivalent of %s, got %s", tt.want, got)
			}
		})
	}
}

// TestSanitizeJSONPreservesValidInput ensures already-valid JSON passes
// through untouched, including structure characters inside strings.
func TestSanitizeJSONPreservesValidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "Simple object", input: `{"a": 1, "b": [true, null]}`},
		{name: "Braces inside string", input: `{"note": "use {placeholders} here", "x": 1}`},
		{name: "Commas and brackets inside string", input: `{"note": "a, ] b } c [", "x": [1, 2]}`},
		{name: "Colons inside string", input: `{"url": "https://example.com/path?q=1"}`},
		{name: "Escaped quotes", input: `{"quote": "she said \"done\" twice"}`},
		{name: "Infinity as prose", input: `{"note": "to Infinity and beyond"}`},
		{name: "Key-like prose in string", input: `{"note": "set debug: true in config"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeJSON(tt.input); got != tt.input {
				t.Errorf("Expected input unchanged.\n in: %s\nout: %s", tt.input, got)
			}
		})
	}
}

// TestBalanceBrackets checks closer ordering and string awareness.
func TestBalanceBrackets(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "Balanced untouched", input: `{"a": [1]}`, want: `{"a": [1]}`},
		{name: "Closers in reverse order", input: `{"a": [{"b": 1`, want: `{"a": [{"b": 1}]}`},
		{name: "Bracket inside string ignored", input: `{"a": "[", "b": 1`, want: `{"a": "[", "b": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := balanceBrackets(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestRepairStringsStateMachine exercises the string walk directly.
func TestRepairStringsStateMachine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "Escapes newline in string", input: "\"a\nb\"", want: `"a\nb"`},
		{name: "Newline outside string kept", input: "{\n\"a\": 1}", want: "{\n\"a\": 1}"},
		{name: "Closes unterminated string", input: `{"a": "open`, want: `{"a": "open"`},
		{name: "Escaped quote does not close", input: `{"a": "x\"y"}`, want: `{"a": "x\"y"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repairStrings(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
