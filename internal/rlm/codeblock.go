package rlm

import (
	"regexp"
	"strings"
)

// fencedCodeBlock matches the first Markdown fenced code block, with or
// without a language tag, case-insensitively on the fence marker itself
// (``` or ~~~ are both conventional; only backtick fences are supported
// here since that is what every provider in the corpus emits).
var fencedCodeBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n(.*?)```")

// extractCode implements spec.md §4.5 step 2.3: pull the first fenced code
// block out of an LM response. When no fence is present, the whole trimmed
// response is returned as code; prose lines are not stripped from it. The
// portion of the response before the fence, if any, is returned separately
// as the recorded reasoning text.
func extractCode(response string) (code string, reasoning string) {
	if m := fencedCodeBlock.FindStringSubmatchIndex(response); m != nil {
		reasoning = strings.TrimSpace(response[:m[0]])
		code = response[m[2]:m[3]]
		return strings.TrimSpace(code), reasoning
	}
	return strings.TrimSpace(response), ""
}
