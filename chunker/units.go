package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
)

// boundary is the strength of the break that follows a unit.
type boundary int

const (
	boundaryNone boundary = iota
	boundarySentence
	boundaryLine
	boundaryParagraph
)

// unit is the smallest piece of text the chunker moves around: a word,
// a fragment of an oversized word, or a whole table block.
type unit struct {
	text   string
	sep    string // whitespace that followed the unit in the source
	tokens int
	after  boundary
	table  bool
}

// units splits text into words and atomic table blocks.
// Every unit is at most budget tokens, except a table marker that cannot
// be shortened any further.
func (c *Chunker) units(text string, budget int) []unit {
	var out []unit
	pos := 0
	for _, loc := range tables.BlockPattern.FindAllStringIndex(text, -1) {
		out = c.appendWords(out, text[pos:loc[0]], budget)
		block := c.clampBlock(text[loc[0]:loc[1]], budget)
		sep := leadingSpace(text[loc[1]:])
		out = append(out, unit{
			text:   block,
			sep:    sep,
			tokens: c.tokenizer.Count(block),
			after:  classify(block, sep),
			table:  true,
		})
		pos = loc[1] + len(sep)
	}
	return c.appendWords(out, text[pos:], budget)
}

func (c *Chunker) appendWords(out []unit, text string, budget int) []unit {
	i := 0
	if len(out) == 0 {
		i = len(leadingSpace(text))
	}
	for i < len(text) {
		end := strings.IndexFunc(text[i:], unicode.IsSpace)
		if end < 0 {
			end = len(text)
		} else {
			end += i
		}
		word := text[i:end]
		sep := leadingSpace(text[end:])
		i = end + len(sep)

		if word == "" {
			// Whitespace directly after a table block.
			if n := len(out); n > 0 {
				out[n-1].sep += sep
				out[n-1].after = classify(out[n-1].text, out[n-1].sep)
			}
			continue
		}
		tokens := c.tokenizer.Count(word)
		if tokens <= budget {
			out = append(out, unit{text: word, sep: sep, tokens: tokens, after: classify(word, sep)})
			continue
		}
		pieces := c.splitWord(word, budget)
		for j, p := range pieces {
			u := unit{text: p, tokens: c.tokenizer.Count(p)}
			if j == len(pieces)-1 {
				u.sep = sep
				u.after = classify(word, sep)
			}
			out = append(out, u)
		}
	}
	return out
}

// splitWord cuts an oversized word into rune-aligned pieces of at most
// budget tokens each.
func (c *Chunker) splitWord(word string, budget int) []string {
	var pieces []string
	for word != "" {
		// Largest rune prefix within budget, by binary search over rune counts.
		runes := utf8.RuneCountInString(word)
		lo, hi := 1, runes
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if c.tokenizer.Count(runePrefix(word, mid)) <= budget {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		piece := runePrefix(word, lo)
		pieces = append(pieces, piece)
		word = word[len(piece):]
	}
	return pieces
}

// clampBlock trims trailing summary words until the block fits budget.
// The placeholder token itself is never trimmed.
func (c *Chunker) clampBlock(block string, budget int) string {
	if c.tokenizer.Count(block) <= budget {
		return block
	}
	loc := tables.PlaceholderPattern.FindStringIndex(block)
	marker, rest := block[:loc[1]], block[loc[1]:]
	words := strings.Fields(rest)
	for n := len(words) - 1; n > 0; n-- {
		candidate := marker + " " + strings.Join(words[:n], " ") + "..."
		if c.tokenizer.Count(candidate) <= budget {
			return candidate
		}
	}
	return marker
}

func leadingSpace(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

func runePrefix(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}

// classify derives the boundary after a unit from its text and the
// whitespace that follows it.
func classify(text, sep string) boundary {
	switch newlines := strings.Count(sep, "\n"); {
	case newlines >= 2:
		return boundaryParagraph
	case newlines == 1:
		return boundaryLine
	}
	if sep != "" && endsSentence(text) {
		return boundarySentence
	}
	return boundaryNone
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')]”’`)
	if word == "" {
		return false
	}
	switch word[len(word)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
