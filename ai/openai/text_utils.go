package openai

import "strings"

// cleanSummary strips code fences, a leading "Summary:" label and
// collapses whitespace so the summary fits on one line.
func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 8 && strings.EqualFold(s[:8], "summary:") {
		s = s[8:]
	}
	return strings.Join(strings.Fields(s), " ")
}
