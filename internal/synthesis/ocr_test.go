package synthesis

import "testing"

// TestCleanOCROutput verifies reasoning chatter is dropped at line
// granularity while transcription lines survive verbatim.
func TestCleanOCROutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Leading narration dropped",
			input: "Let me transcribe this for you.\nQ3 Roadmap\n- Migrate billing\n- Ship reports",
			want:  "Q3 Roadmap\n- Migrate billing\n- Ship reports",
		},
		{
			name:  "Mid-text narration dropped",
			input: "Q3 Roadmap\nI can see a table below the heading.\n- Migrate billing",
			want:  "Q3 Roadmap\n- Migrate billing",
		},
		{
			name:  "Discourse markers dropped",
			input: "Okay, here we go.\nHere is the transcription:\nAlright.\nBudget 2026",
			want:  "Budget 2026",
		},
		{
			name:  "Leading blanks trimmed after filtering",
			input: "The image shows a slide.\n\n\nQ3 Roadmap",
			want:  "Q3 Roadmap",
		},
		{
			name:  "Content resembling narration mid-word kept",
			input: "Imagine the possibilities\nItaly office opening",
			want:  "Imagine the possibilities\nItaly office opening",
		},
		{
			name:  "Interior blank lines preserved",
			input: "Title\n\nBody paragraph",
			want:  "Title\n\nBody paragraph",
		},
		{
			name:  "Case insensitive matching",
			input: "LOOKING AT the slide, I note the title.\nActual Title",
			want:  "Actual Title",
		},
		{
			name:  "Everything filtered leaves empty",
			input: "Let me see.\nHmm.\nOkay, transcribing now.",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanOCROutput(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
