package extract

import (
	"regexp"
	"strings"
)

var (
	normalizer = strings.NewReplacer(
		"\r\n", "\n",
		"\r", "\n",
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
	)
	controlChars    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]{2,}`)
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes extracted text: line endings become \n, ligatures are
// expanded, control characters removed, runs of spaces and tabs collapsed,
// every line trimmed and blank lines dropped.
func Clean(text string) string {
	text = NormalizeLineEndings(text)
	text = controlChars.ReplaceAllString(text, "")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = horizontalSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// NormalizeLineEndings converts CRLF and CR to LF and expands ligatures,
// leaving blank lines in place.
func NormalizeLineEndings(text string) string {
	return normalizer.Replace(text)
}
