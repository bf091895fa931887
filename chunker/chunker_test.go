package chunker

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runeTokenizer counts every non-space rune as a token.
type runeTokenizer struct{}

func (runeTokenizer) Count(text string) int {
	return utf8.RuneCountInString(strings.Join(strings.Fields(text), ""))
}

func (runeTokenizer) Name() string { return "runes" }

func newTestChunker(t *testing.T, max, min, overlap int, opts ...Option) *Chunker {
	t.Helper()
	opts = append([]Option{WithConfig(Config{MaxTokens: max, MinTokens: min, OverlapTokens: overlap})}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func numberedWords(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(words, " ")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: DefaultConfig()},
		{name: "zero max", config: Config{MaxTokens: 0}, wantErr: true},
		{name: "overlap equals max", config: Config{MaxTokens: 10, OverlapTokens: 10}, wantErr: true},
		{name: "min plus overlap reaches max", config: Config{MaxTokens: 10, MinTokens: 5, OverlapTokens: 5}, wantErr: true},
		{name: "negative min", config: Config{MaxTokens: 10, MinTokens: -1}, wantErr: true},
		{name: "no overlap", config: Config{MaxTokens: 10, MinTokens: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := New(WithConfig(Config{MaxTokens: 5, OverlapTokens: 6}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChunk_EmptyText(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)
	assert.Nil(t, c.Chunk("doc", ""))
	assert.Nil(t, c.Chunk("doc", " \n\n\t "))
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)

	chunks := c.Chunk("doc", "  Revenue grew in every segment.  \n")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Revenue grew in every segment.", chunks[0].Text)
	assert.Equal(t, 5, chunks[0].TokenCount)
	assert.Equal(t, core.ChunkID("doc", 0), chunks[0].ChunkID)
	assert.Empty(t, chunks[0].ContainsPlaceholderIDs)
}

func TestChunk_HardCutWithTokenOverlap(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)

	chunks := c.Chunk("doc", numberedWords("w", 30))

	require.Len(t, chunks, 4)
	assert.Equal(t, numberedWords("w", 10), chunks[0].Text)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, core.ChunkID("doc", i), chunk.ChunkID)
		assert.LessOrEqual(t, chunk.TokenCount, 10)
		if i == 0 {
			continue
		}
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunk.Text)
		assert.Equal(t, prev[len(prev)-3:], cur[:3], "chunk %d should start with the last 3 tokens of chunk %d", i, i-1)
	}
	assert.True(t, strings.HasSuffix(chunks[3].Text, "w29"))
}

func TestChunk_PrefersParagraphBoundary(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)
	text := "a1 a2 a3 a4.\n\n" + numberedWords("b", 10)

	chunks := c.Chunk("doc", text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "a1 a2 a3 a4.", chunks[0].Text)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "a2 a3 a4.\n\nb0"))
}

func TestChunk_PrefersSentenceOverHardCut(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)
	text := "s1 s2 s3 s4 s5 s6. s7 s8 s9 s10 s11 s12"

	chunks := c.Chunk("doc", text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "s1 s2 s3 s4 s5 s6.", chunks[0].Text)
	assert.Equal(t, "s4 s5 s6. s7 s8 s9 s10 s11 s12", chunks[1].Text)
}

func TestChunk_MinTokensSkipsEarlyBoundary(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)
	text := "a. b c d e f g h i j k l"

	chunks := c.Chunk("doc", text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "a. b c d e f g h i j", chunks[0].Text)
}

func TestChunk_PlaceholderIsAtomic(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)
	id := tables.PlaceholderID("doc", 0)
	block := tables.Block(id, "Revenue rose.")
	text := numberedWords("x", 8) + "\n" + block + "\n" + numberedWords("y", 8)

	chunks := c.Chunk("doc", text)

	found := 0
	for _, chunk := range chunks {
		assert.False(t, tables.HasPartialPlaceholder(chunk.Text), "chunk %d splits a placeholder: %q", chunk.ChunkIndex, chunk.Text)
		assert.LessOrEqual(t, chunk.TokenCount, 10)
		if len(chunk.ContainsPlaceholderIDs) > 0 {
			assert.Equal(t, []string{id}, chunk.ContainsPlaceholderIDs)
			assert.Contains(t, chunk.Text, block)
			found++
		}
	}
	assert.GreaterOrEqual(t, found, 1)
}

func TestChunk_ClampsOversizedSummaryBlock(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)
	id := tables.PlaceholderID("doc", 1)
	block := tables.Block(id, numberedWords("s", 20))

	chunks := c.Chunk("doc", "Intro words here.\n"+block+"\nOutro.")

	var withTable []core.Chunk
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 10)
		assert.False(t, tables.HasPartialPlaceholder(chunk.Text))
		if len(chunk.ContainsPlaceholderIDs) > 0 {
			withTable = append(withTable, chunk)
		}
	}
	require.NotEmpty(t, withTable)
	assert.Contains(t, withTable[0].Text, tables.Token(id)+" Summary: s0 s1...")
}

func TestChunk_SplitsOversizedWord(t *testing.T) {
	c := newTestChunker(t, 10, 0, 2, WithTokenizer(runeTokenizer{}))
	word := "abcdefghijklmnopqrst"

	chunks := c.Chunk("doc", word)

	require.Len(t, chunks, 3)
	var texts []string
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 10)
		texts = append(texts, chunk.Text)
	}
	assert.Equal(t, []string{"abcdefgh", "ijklmnop", "qrst"}, texts)
}

func TestChunk_Deterministic(t *testing.T) {
	c := newTestChunker(t, 40, 5, 8)
	id := tables.PlaceholderID("doc", 0)
	text := strings.Repeat("The company reported strong results. Margins improved.\n\n", 20) +
		tables.Block(id, "Net sales by segment for three years.") + "\n\n" +
		strings.Repeat("Risk factors remain. ", 30)

	first := c.Chunk("doc", text)
	second := c.Chunk("doc", text)

	assert.Equal(t, first, second)
}

func TestChunk_CoversAllWords(t *testing.T) {
	c := newTestChunker(t, 25, 3, 5)
	text := strings.Repeat("Alpha beta gamma. Delta epsilon.\nZeta eta theta iota kappa.\n\n", 12)

	chunks := c.Chunk("doc", text)

	seen := make(map[string]bool)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 25)
		for _, w := range strings.Fields(chunk.Text) {
			seen[w] = true
		}
	}
	for _, w := range strings.Fields(text) {
		assert.True(t, seen[w], "word %q missing", w)
	}
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(last.Text, "kappa."))
}

func TestChunkDocument_StampsMetadata(t *testing.T) {
	c := newTestChunker(t, 10, 2, 3)
	fetched := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := &core.RawDocument{
		SourceID:     "sec:AAPL:10-K:2024",
		CompanyKey:   "AAPL",
		DocumentType: core.DocumentTypeSECFiling,
		FetchedAt:    fetched,
	}

	chunks := c.ChunkDocument(doc, numberedWords("w", 15))

	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.Equal(t, "AAPL", chunk.CompanyKey)
		assert.Equal(t, core.DocumentTypeSECFiling, chunk.DocumentType)
		assert.Equal(t, fetched, chunk.CreatedAt)
		assert.Equal(t, doc.SourceID, chunk.SourceID)
	}
}

func TestTokenizers(t *testing.T) {
	assert.Equal(t, 3, Words{}.Count(" one two\nthree "))
	assert.Equal(t, 0, Words{}.Count(""))

	tok, err := NewTokenizer("words")
	require.NoError(t, err)
	assert.Equal(t, "words", tok.Name())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, boundaryParagraph, classify("end", "\n\n"))
	assert.Equal(t, boundaryParagraph, classify("end", "\n  \n"))
	assert.Equal(t, boundaryLine, classify("end", " \n"))
	assert.Equal(t, boundarySentence, classify("end.", " "))
	assert.Equal(t, boundarySentence, classify(`"Really?"`, " "))
	assert.Equal(t, boundaryNone, classify("end.", ""))
	assert.Equal(t, boundaryNone, classify("mid", " "))
}
