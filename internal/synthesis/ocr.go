package synthesis

import (
	"regexp"
	"strings"
)

// OCRPrompt asks a vision model for a verbatim transcription. Output
// still passes through CleanOCROutput before storage, because several
// model families narrate while they read.
const OCRPrompt = `Transcribe all text visible in this image exactly as written.
Preserve the original language, line breaks, list markers, and table layout.
Do not describe the image, do not summarize, do not add commentary.
Output only the transcribed text.`

// OCRPromptFor returns OCRPrompt with the model-family no-think prefix
// applied when the model honors it inline.
func OCRPromptFor(modelName string) string {
	if prefix := noThinkPrefix(modelName); prefix != "" {
		return prefix + OCRPrompt
	}
	return OCRPrompt
}

// Reasoning chatter prefixes that vision models leak into OCR output.
// Matched against the lowercase-trimmed line.
var ocrReasoningPrefixes = []string{
	"let me",
	"i can see",
	"i see ",
	"i notice",
	"i need to",
	"i'll ",
	"i will ",
	"looking at",
	"the slide has",
	"the slide shows",
	"the slide contains",
	"the image shows",
	"the image contains",
	"the image has",
	"this appears",
	"it appears",
	"it looks like",
	"we can see",
	"based on the image",
	"based on this image",
	"wait,",
	"okay,",
	"ok,",
	"hmm",
}

var ocrDiscourseRes = []*regexp.Regexp{
	regexp.MustCompile(`^(well|right|sure|alright|done)[,.!]?$`),
	regexp.MustCompile(`^(in|from) (this|the) (image|slide|document|photo|picture|screenshot)\b`),
	regexp.MustCompile(`^(transcribing|extracting|reading) (the|this)\b`),
	regexp.MustCompile(`^here('s| is) (the|a) (transcription|text|content)\b`),
}

// CleanOCROutput drops reasoning chatter from vision OCR output at line
// granularity and trims leading blank lines. Pure text filter,
// independent of JSON parsing.
func CleanOCROutput(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		if lower != "" && (hasOCRReasoningPrefix(lower) || matchesOCRDiscourse(lower)) {
			continue
		}
		kept = append(kept, line)
	}
	for len(kept) > 0 && strings.TrimSpace(kept[0]) == "" {
		kept = kept[1:]
	}
	return strings.Join(kept, "\n")
}

func hasOCRReasoningPrefix(line string) bool {
	for _, p := range ocrReasoningPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func matchesOCRDiscourse(line string) bool {
	for _, re := range ocrDiscourseRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
