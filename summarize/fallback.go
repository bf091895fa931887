package summarize

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Fallback renders the deterministic substitute used when the summarizer
// cannot produce a summary: the section label followed by the table text
// flattened to single spaces and truncated to limit runes.
func Fallback(section, tableText string, limit int) string {
	if section == "" {
		section = "Unknown"
	}
	flat := strings.Join(strings.Fields(strings.ReplaceAll(tableText, "|", " ")), " ")
	return "[Table: " + section + "] " + truncate(flat, limit)
}

// truncate cuts s to at most limit runes, appending an ellipsis when cut.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return strings.TrimRight(s[:i], " ") + ellipsis
		}
		n++
	}
	return s
}
