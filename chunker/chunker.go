// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package chunker splits narrative text into overlapping, token-bounded chunks.
//
// Text is broken into units (words and table summary blocks). Units are
// packed greedily up to MaxTokens; a chunk is cut at the latest paragraph
// break, else the latest sentence or line break, that keeps it at least
// MinTokens long. Only when no such break exists is the chunk cut at the
// last unit that fits. Every chunk but the last holds at least MinTokens.
// Table blocks are atomic: a placeholder never spans two chunks. Each chunk after the first starts with the trailing units of
// its predecessor, up to OverlapTokens.
package chunker

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
	"github.com/go-playground/validator/v10"
)

// Config holds the token limits.
type Config struct {
	MaxTokens     int `validate:"gte=1"`
	MinTokens     int `validate:"gte=0"`
	OverlapTokens int `validate:"gte=0,ltfield=MaxTokens"`
}

// DefaultConfig returns 800 token chunks with a 100 token overlap.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     800,
		MinTokens:     50,
		OverlapTokens: 100,
	}
}

// Validate checks that the limits leave room for new content in every chunk.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MinTokens+c.OverlapTokens >= c.MaxTokens {
		return fmt.Errorf("%w: min_tokens (%d) + overlap_tokens (%d) must be below max_tokens (%d)",
			ErrInvalidConfig, c.MinTokens, c.OverlapTokens, c.MaxTokens)
	}
	return nil
}

// Chunker is stateless after construction and safe for concurrent use.
type Chunker struct {
	config    Config
	tokenizer Tokenizer
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithConfig replaces the token limits.
func WithConfig(config Config) Option {
	return func(c *Chunker) {
		c.config = config
	}
}

// WithTokenizer sets how tokens are counted.
// Default is Words.
func WithTokenizer(tokenizer Tokenizer) Option {
	return func(c *Chunker) {
		if tokenizer != nil {
			c.tokenizer = tokenizer
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a chunker. It fails when the configuration is invalid.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		config:    DefaultConfig(),
		tokenizer: Words{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	c.logger = c.logger.With("component", "chunker", "tokenizer", c.tokenizer.Name())
	return c, nil
}

// Config returns the active token limits.
func (c *Chunker) Config() Config {
	return c.config
}

// Chunk splits text into chunks of sourceID. Chunk ids and indexes are
// stable for identical input. Whitespace-only text yields no chunks.
func (c *Chunker) Chunk(sourceID, text string) []core.Chunk {
	units := c.units(text, c.unitBudget())
	if len(units) == 0 {
		return nil
	}

	spans := c.plan(units)
	chunks := make([]core.Chunk, 0, len(spans))
	for i, s := range spans {
		chunkText, tokens := render(units[s.start:s.end])
		chunks = append(chunks, core.Chunk{
			ChunkID:                core.ChunkID(sourceID, i),
			SourceID:               sourceID,
			ChunkIndex:             i,
			Text:                   chunkText,
			TokenCount:             tokens,
			ContainsPlaceholderIDs: tables.PlaceholderIDs(chunkText),
		})
	}
	c.logger.Debug("chunked text", "source_id", sourceID, "units", len(units), "chunks", len(chunks))
	return chunks
}

// ChunkDocument chunks text and stamps every chunk with the document's
// company, type and fetch time.
func (c *Chunker) ChunkDocument(doc *core.RawDocument, text string) []core.Chunk {
	chunks := c.Chunk(doc.SourceID, text)
	for i := range chunks {
		chunks[i].CompanyKey = doc.CompanyKey
		chunks[i].DocumentType = doc.DocumentType
		chunks[i].CreatedAt = doc.FetchedAt
	}
	return chunks
}

// unitBudget bounds the tokens of a single unit. A unit that does not fit
// after a full chunk then leaves that chunk above OverlapTokens+MinTokens,
// so a hard cut never produces a chunk below MinTokens.
func (c *Chunker) unitBudget() int {
	return c.config.MaxTokens - c.config.OverlapTokens - c.config.MinTokens
}

// span is a half-open range of unit indexes.
type span struct {
	start, end int
}

// plan decides the unit range of every chunk.
func (c *Chunker) plan(units []unit) []span {
	var spans []span
	start, covered := 0, 0 // covered: units already emitted in some chunk
	for {
		end := c.fill(units, start)
		if end <= covered {
			// The next unit does not fit next to the overlap; drop the overlap.
			start = covered
			end = max(c.fill(units, start), start+1)
		}
		if end < len(units) {
			end = c.cut(units, start, end, covered)
		}
		spans = append(spans, span{start: start, end: end})
		if end >= len(units) {
			return spans
		}
		covered = end
		start = c.overlapStart(units, start, end)
	}
}

// fill returns the end of the longest run of units from start that fits MaxTokens.
func (c *Chunker) fill(units []unit, start int) int {
	end, total := start, 0
	for end < len(units) && total+units[end].tokens <= c.config.MaxTokens {
		total += units[end].tokens
		end++
	}
	return end
}

// cut picks where the chunk units[start:end] ends when more text follows.
// Candidates must add at least one unit beyond covered and leave the chunk
// at least MinTokens long.
func (c *Chunker) cut(units []unit, start, end, covered int) int {
	best := [boundaryParagraph + 1]int{}
	total := 0
	for k := start; k < end; k++ {
		total += units[k].tokens
		if k+1 <= covered || total < c.config.MinTokens {
			continue
		}
		b := units[k].after
		if b == boundaryLine {
			b = boundarySentence
		}
		best[b] = k + 1
	}
	if best[boundaryParagraph] > 0 {
		return best[boundaryParagraph]
	}
	if best[boundarySentence] > 0 {
		return best[boundarySentence]
	}
	return end
}

// overlapStart returns the first unit of the next chunk: the trailing units
// of units[start:end] summing to at most OverlapTokens, never reaching back
// to start itself.
func (c *Chunker) overlapStart(units []unit, start, end int) int {
	next, total := end, 0
	for next-1 > start && total+units[next-1].tokens <= c.config.OverlapTokens {
		next--
		total += units[next].tokens
	}
	return next
}

// render joins units with their original separators, dropping the
// whitespace after the last unit.
func render(units []unit) (string, int) {
	var b strings.Builder
	tokens := 0
	for i, u := range units {
		b.WriteString(u.text)
		tokens += u.tokens
		if i < len(units)-1 {
			b.WriteString(u.sep)
		}
	}
	return b.String(), tokens
}
