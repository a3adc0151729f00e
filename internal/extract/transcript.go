package extract

import (
	"regexp"
	"strings"
)

var (
	// 00:01:02.345 --> 00:01:05.678 (VTT) or 00:01:02,345 --> ... (SRT)
	cueTimingRe = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?[.,]\d{3}\s+-->\s+\d{1,2}:\d{2}(:\d{2})?[.,]\d{3}`)
	cueNumberRe = regexp.MustCompile(`^\d+$`)
	voiceTagRe  = regexp.MustCompile(`<v\s+([^>]+)>`)
	inlineTagRe = regexp.MustCompile(`</?[^>]+>`)
)

// CleanTranscript strips WebVTT/SRT cue machinery (headers, cue numbers,
// timing lines, inline tags) leaving speaker-labelled dialogue lines.
func CleanTranscript(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var out []string
	skipBlock := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			skipBlock = false
			continue
		}
		if skipBlock {
			continue
		}

		// Header and metadata blocks run until the next blank line
		if strings.HasPrefix(trimmed, "WEBVTT") ||
			strings.HasPrefix(trimmed, "NOTE") ||
			strings.HasPrefix(trimmed, "STYLE") ||
			strings.HasPrefix(trimmed, "REGION") {
			skipBlock = true
			continue
		}

		if cueNumberRe.MatchString(trimmed) || cueTimingRe.MatchString(trimmed) {
			continue
		}

		// <v Maria Santos>text</v> -> "Maria Santos: text"
		trimmed = voiceTagRe.ReplaceAllString(trimmed, "$1: ")
		trimmed = strings.TrimSpace(inlineTagRe.ReplaceAllString(trimmed, ""))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return strings.Join(out, "\n")
}
