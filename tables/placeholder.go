package tables

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
)

const (
	tokenPrefix   = "[TABLE_REF: "
	tokenSuffix   = "]"
	summaryMarker = " Summary: "
)

var (
	// PlaceholderPattern matches a complete placeholder token and captures its id.
	PlaceholderPattern = regexp.MustCompile(`\[TABLE_REF: (TABLE_[0-9a-f]{16}_[0-9]{3,})\]`)

	// BlockPattern matches a placeholder token together with the single-line
	// summary rendered after it by Substitute.
	BlockPattern = regexp.MustCompile(`\[TABLE_REF: (TABLE_[0-9a-f]{16}_[0-9]{3,})\]( Summary: [^\n]*)?`)

	idFragment = regexp.MustCompile(`TABLE_[0-9a-f]{16}_`)
)

// PlaceholderID returns the id of the index-th table of a source document.
func PlaceholderID(sourceID string, index int) string {
	return fmt.Sprintf("TABLE_%s_%03d", core.IDFromContent(sourceID).Hex(), index)
}

// Token renders the placeholder token for id.
func Token(id string) string {
	return tokenPrefix + id + tokenSuffix
}

// Block renders the token followed by its summary on a single line.
func Block(id, summary string) string {
	summary = strings.Join(strings.Fields(summary), " ")
	if summary == "" {
		return Token(id)
	}
	return Token(id) + summaryMarker + summary
}

// PlaceholderIDs returns the ids of complete placeholder tokens in text,
// in order of first appearance.
func PlaceholderIDs(text string) []string {
	matches := PlaceholderPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}

// HasPartialPlaceholder reports whether text contains a fragment of a
// placeholder token that is not part of a complete token.
func HasPartialPlaceholder(text string) bool {
	complete := len(PlaceholderPattern.FindAllStringIndex(text, -1))
	return strings.Count(text, "[TABLE_REF") != complete ||
		strings.Count(text, "TABLE_REF") != complete ||
		len(idFragment.FindAllStringIndex(text, -1)) != complete
}

// Substitute replaces every placeholder token with its summary block.
// Tokens without a summary are left unchanged.
func Substitute(text string, summaries []core.TableSummary) string {
	if len(summaries) == 0 {
		return text
	}
	byID := make(map[string]string, len(summaries))
	for _, s := range summaries {
		byID[s.PlaceholderID] = s.SummaryText
	}
	return PlaceholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		id := PlaceholderPattern.FindStringSubmatch(token)[1]
		summary, ok := byID[id]
		if !ok {
			return token
		}
		return Block(id, summary)
	})
}

// Reconstruct reverses extraction: every placeholder token or summary block
// is replaced by the raw table text it stands for.
func Reconstruct(text string, spans []core.TableSpan) string {
	if len(spans) == 0 {
		return text
	}
	byID := make(map[string]string, len(spans))
	for _, s := range spans {
		byID[s.PlaceholderID] = s.RawTableText
	}
	return BlockPattern.ReplaceAllStringFunc(text, func(block string) string {
		id := BlockPattern.FindStringSubmatch(block)[1]
		raw, ok := byID[id]
		if !ok {
			return block
		}
		return raw
	})
}
