package normalize

import (
	"regexp"
	"strings"
)

// Stage names, in ladder order.
const (
	StageTrim     = "trim"
	StageFences   = "fences"
	StageControl  = "control"
	StageBoundary = "boundary"
	StageEscape   = "escape"
)

// stage is one named transformation of the repair ladder. apply never fails:
// when a transformation does not apply it returns its input unchanged.
type stage struct {
	name  string
	apply func(string) string
	// attempt marks stages after which the working text is parsed.
	attempt bool
}

var ladder = []stage{
	{name: StageTrim, apply: trimText, attempt: true},
	{name: StageFences, apply: stripFences},
	{name: StageControl, apply: stripControl, attempt: true},
	{name: StageBoundary, apply: extractBoundary, attempt: true},
	{name: StageEscape, apply: repairEscaping, attempt: true},
}

const byteOrderMark = "\uFEFF"

func trimText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, byteOrderMark)
	return strings.TrimSpace(s)
}

// fencePattern matches an opening fence with its optional language tag, or a
// bare closing fence.
var fencePattern = regexp.MustCompile("```[A-Za-z0-9_+.-]*")

func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	return strings.TrimSpace(fencePattern.ReplaceAllString(s, ""))
}

// stripControl drops C0 and C1 control characters, keeping the whitespace
// JSON itself allows between tokens.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return r
		case r < 0x20, r >= 0x7F && r <= 0x9F:
			return -1
		}
		return r
	}, s)
}

// extractBoundary keeps the span from the first '{' to the last '}'.
func extractBoundary(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
