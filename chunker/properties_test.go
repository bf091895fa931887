package chunker

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
	"github.com/stretchr/testify/require"
)

// generateDocument builds narrative text with sentences, line and paragraph
// breaks, oversized words and table blocks of varying summary length.
// Every word is unique within the document.
func generateDocument(r *rand.Rand, doc int) string {
	var b strings.Builder
	n := 0
	word := func() string {
		n++
		return fmt.Sprintf("d%dw%d", doc, n)
	}

	paragraphs := 3 + r.IntN(10)
	for p := 0; p < paragraphs; p++ {
		if p > 0 {
			b.WriteString("\n\n")
		}
		if r.IntN(5) == 0 {
			summary := make([]string, 1+r.IntN(60))
			for i := range summary {
				summary[i] = word()
			}
			b.WriteString(tables.Block(tables.PlaceholderID(fmt.Sprintf("doc-%d", doc), p), strings.Join(summary, " ")))
			continue
		}
		sentences := 1 + r.IntN(6)
		for s := 0; s < sentences; s++ {
			if s > 0 {
				if r.IntN(4) == 0 {
					b.WriteByte('\n')
				} else {
					b.WriteByte(' ')
				}
			}
			words := 1 + r.IntN(25)
			for w := 0; w < words; w++ {
				if w > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(word())
				if r.IntN(30) == 0 {
					b.WriteString(strings.Repeat("x", 40+r.IntN(200)))
				}
			}
			b.WriteByte('.')
		}
	}
	return b.String()
}

func unitTokens(units []unit) int {
	total := 0
	for _, u := range units {
		total += u.tokens
	}
	return total
}

// unitRanges maps every chunk back to the half-open unit range it renders.
func unitRanges(t *testing.T, units []unit, chunks []core.Chunk) []span {
	t.Helper()
	ranges := make([]span, 0, len(chunks))
	for i, chunk := range chunks {
		first, last := 0, 0
		if i > 0 {
			prev := ranges[i-1]
			first, last = prev.start+1, prev.end
		}
		found := false
		for start := first; start <= last && !found; start++ {
			end, total := start, 0
			for end < len(units) && total < chunk.TokenCount {
				total += units[end].tokens
				end++
			}
			if total != chunk.TokenCount {
				continue
			}
			if text, _ := render(units[start:end]); text == chunk.Text {
				ranges = append(ranges, span{start: start, end: end})
				found = true
			}
		}
		require.True(t, found, "chunk %d does not continue chunk %d: %q", i, i-1, chunk.Text)
	}
	return ranges
}

func TestChunk_Properties(t *testing.T) {
	configs := []struct {
		name      string
		config    Config
		tokenizer Tokenizer
	}{
		{name: "words small", config: Config{MaxTokens: 40, MinTokens: 10, OverlapTokens: 8}, tokenizer: Words{}},
		{name: "words no overlap", config: Config{MaxTokens: 25, MinTokens: 0, OverlapTokens: 0}, tokenizer: Words{}},
		{name: "words min above overlap", config: Config{MaxTokens: 30, MinTokens: 15, OverlapTokens: 3}, tokenizer: Words{}},
		{name: "words defaults", config: DefaultConfig(), tokenizer: Words{}},
		{name: "runes", config: Config{MaxTokens: 120, MinTokens: 20, OverlapTokens: 15}, tokenizer: runeTokenizer{}},
	}

	for _, tc := range configs {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(WithConfig(tc.config), WithTokenizer(tc.tokenizer))
			require.NoError(t, err)
			cfg := c.Config()

			for doc := 0; doc < 40; doc++ {
				r := rand.New(rand.NewPCG(7, uint64(doc)))
				text := generateDocument(r, doc)
				chunks := c.Chunk("doc", text)
				require.NotEmpty(t, chunks)

				units := c.units(text, c.unitBudget())
				ranges := unitRanges(t, units, chunks)
				require.Equal(t, 0, ranges[0].start)
				require.Equal(t, len(units), ranges[len(ranges)-1].end, "doc %d: text not fully covered", doc)

				for i, chunk := range chunks {
					require.LessOrEqual(t, chunk.TokenCount, cfg.MaxTokens, "doc %d chunk %d", doc, i)
					require.Equal(t, tc.tokenizer.Count(chunk.Text), chunk.TokenCount, "doc %d chunk %d", doc, i)
					require.False(t, tables.HasPartialPlaceholder(chunk.Text), "doc %d chunk %d", doc, i)
					if i < len(chunks)-1 {
						require.GreaterOrEqual(t, chunk.TokenCount, cfg.MinTokens, "doc %d chunk %d: %q", doc, i, chunk.Text)
					}
					if i == 0 {
						continue
					}

					prev, cur := ranges[i-1], ranges[i]
					require.Greater(t, cur.end, prev.end, "doc %d chunk %d adds no new text", doc, i)
					overlap := units[cur.start:prev.end]
					require.LessOrEqual(t, unitTokens(overlap), cfg.OverlapTokens, "doc %d chunk %d", doc, i)
					if cur.start-1 > prev.start {
						require.Greater(t, unitTokens(units[cur.start-1:prev.end]), cfg.OverlapTokens,
							"doc %d chunk %d: overlap could hold one more unit", doc, i)
					}
				}
			}
		})
	}
}
