package synthesis

import (
	"regexp"
	"strings"
)

var (
	nanRe           = regexp.MustCompile(`([:\[,]\s*)(?:NaN|-?Infinity)\b`)
	leadingZeroRe   = regexp.MustCompile(`([:\[,]\s*-?)0+(\d)`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_-]*)\s*:`)
	missingCommaRe  = regexp.MustCompile(`\}(\s*)\{`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeJSON repairs the malformations LLMs most often introduce into
// JSON output: BOM and control characters, NaN/Infinity literals,
// leading zeros, bare object keys, missing commas between adjacent
// objects, raw newlines and tabs inside string literals, unterminated
// strings, trailing commas, and unbalanced brackets. The repairs are
// ordered: the string walk first (so later passes can tell string
// content from structure), structural regexes next, bracket balancing
// and trailing-comma cleanup last.
func SanitizeJSON(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = repairStrings(s)
	s = applyOutsideStrings(s, func(seg string) string {
		seg = nanRe.ReplaceAllString(seg, "${1}null")
		seg = leadingZeroRe.ReplaceAllString(seg, "${1}${2}")
		seg = bareKeyRe.ReplaceAllString(seg, `${1}"${2}":`)
		seg = missingCommaRe.ReplaceAllString(seg, "},${1}{")
		return seg
	})
	s = balanceBrackets(s)
	s = applyOutsideStrings(s, func(seg string) string {
		return trailingCommaRe.ReplaceAllString(seg, "${1}")
	})
	return s
}

// repairStrings walks the input byte by byte tracking string and escape
// state. Inside string literals it escapes raw newlines, carriage
// returns, and tabs; everywhere it drops other control characters. An
// unterminated string at end of input is closed.
func repairStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
				b.WriteByte(c)
				continue
			}
			if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
				continue
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '"':
			inString = false
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				continue
			}
			b.WriteByte(c)
		}
	}
	if inString {
		if escaped {
			// Dangling backslash at end of input: complete it as a
			// literal backslash so the closing quote is not swallowed.
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	return b.String()
}

// applyOutsideStrings applies fn to the segments of s that lie outside
// string literals, preserving the literals verbatim. Assumes string
// state is well formed, which repairStrings guarantees.
func applyOutsideStrings(s string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	segStart := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
				b.WriteString(s[segStart : i+1])
				segStart = i + 1
			}
			continue
		}
		if c == '"' {
			b.WriteString(fn(s[segStart:i]))
			segStart = i
			inString = true
		}
	}
	if segStart < len(s) {
		if inString {
			b.WriteString(s[segStart:])
		} else {
			b.WriteString(fn(s[segStart:]))
		}
	}
	return b.String()
}

// balanceBrackets appends the closers for any unmatched { or [ left at
// end of input, in reverse opening order. Mismatched closers are left
// alone for the strict parser to reject.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(stack))
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
