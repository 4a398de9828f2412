package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	stageDirectionPattern = regexp.MustCompile(`(?s)\*.*?\*`)
	speakerLabelPattern   = regexp.MustCompile(`^\s*[\p{L}\p{N}_]+:(?:\s|$)`)
)

// SanitizeForSpeech strips *stage directions* and leading "Name:" speaker labels
// from a model reply so only spoken words reach synthesis. The result is stable
// under repeated application.
func SanitizeForSpeech(raw string) string {
	out := stageDirectionPattern.ReplaceAllString(raw, " ")
	for {
		loc := speakerLabelPattern.FindStringIndex(out)
		if loc == nil {
			break
		}
		out = out[loc[1]:]
	}
	return collapseSpaces(out)
}

func collapseSpaces(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(b.String())
}
