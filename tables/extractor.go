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


// Package tables separates tabular regions from narrative document text.
//
// Every detected table is cut out of the text and replaced by a placeholder
// token of the form
//
//	[TABLE_REF: TABLE_<16 hex digits of the source id hash>_<index>]
//
// The token is stable for a given source id and table position, so it can be
// reversed with Reconstruct and substituted with a summary with Substitute.
// Detection is heuristic and deterministic; anything that does not clearly
// look like a table stays narrative text.
package tables

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
)

// Format selects which detectors run.
type Format string

const (
	FormatAuto     Format = "auto"
	FormatMarkdown Format = "markdown"
	FormatAligned  Format = "aligned"
	FormatNone     Format = "none"
)

// Config holds the detection thresholds.
type Config struct {
	// MinRows is the minimum number of non-separator rows, header included.
	MinRows int
	// MinColumns is the minimum width of the widest row.
	MinColumns int
	// MinCells is the minimum number of non-empty cells.
	MinCells int
	// MaxColumnSpread bounds the difference between the widest and narrowest pipe row.
	MaxColumnSpread int
	// MinLineLength requires at least one row longer than this many characters.
	MinLineLength int
	// AlignedMinRows is the minimum row count for whitespace-aligned tables.
	AlignedMinRows int
	// MaxCellLength rejects aligned candidates with prose-length cells.
	MaxCellLength int
}

// DefaultConfig returns the thresholds used for SEC, Wikipedia and news text.
func DefaultConfig() Config {
	return Config{
		MinRows:         2,
		MinColumns:      2,
		MinCells:        4,
		MaxColumnSpread: 2,
		MinLineLength:   20,
		AlignedMinRows:  3,
		MaxCellLength:   60,
	}
}

// Extractor finds tables in document text.
// It is stateless and safe for concurrent use.
type Extractor struct {
	config Config
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConfig replaces the detection thresholds.
func WithConfig(config Config) Option {
	return func(e *Extractor) {
		e.config = config
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an Extractor with DefaultConfig.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "table-extractor")
	return e
}

// Extract detects the tables of a document using its "tables" structural hint.
func (e *Extractor) Extract(doc *core.RawDocument) (string, []core.TableSpan) {
	format := Format(strings.ToLower(doc.Hint(core.HintTables, string(FormatAuto))))
	return e.ExtractText(doc.SourceID, doc.RawText, format)
}

// ExtractText replaces every detected table in text with a placeholder token.
// It returns the rewritten text and the spans in document order. Spans never
// overlap; when candidates overlap the larger one is kept. Unknown formats
// fall back to FormatAuto. ExtractText never fails: text without
// recognizable tables is returned unchanged.
func (e *Extractor) ExtractText(sourceID, text string, format Format) (string, []core.TableSpan) {
	if format == FormatNone || strings.TrimSpace(text) == "" {
		return text, nil
	}

	lines := splitLines(text)
	var candidates []candidate
	switch format {
	case FormatMarkdown:
		candidates = e.detectMarkdown(lines)
	case FormatAligned:
		candidates = e.detectAligned(lines)
	default:
		candidates = append(e.detectMarkdown(lines), e.detectAligned(lines)...)
	}
	if len(candidates) == 0 {
		return text, nil
	}

	accepted := resolve(candidates)

	var b strings.Builder
	b.Grow(len(text))
	spans := make([]core.TableSpan, 0, len(accepted))
	pos := 0
	for i, c := range accepted {
		id := PlaceholderID(sourceID, i)
		spans = append(spans, core.TableSpan{
			StartOffset:   c.start,
			EndOffset:     c.end,
			RawTableText:  text[c.start:c.end],
			PlaceholderID: id,
		})
		b.WriteString(text[pos:c.start])
		b.WriteString(Token(id))
		pos = c.end
	}
	b.WriteString(text[pos:])

	e.logger.Debug("extracted tables", "source_id", sourceID, "tables", len(spans), "candidates", len(candidates))
	return b.String(), spans
}

// resolve keeps the largest candidates first and drops any candidate that
// overlaps one already kept. The result is sorted by offset.
func resolve(candidates []candidate) []candidate {
	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, func(a, b candidate) int {
		if a.size() != b.size() {
			return b.size() - a.size()
		}
		if a.start != b.start {
			return a.start - b.start
		}
		return int(a.kind) - int(b.kind)
	})

	var kept []candidate
	for _, c := range ordered {
		if slices.ContainsFunc(kept, c.overlaps) {
			continue
		}
		kept = append(kept, c)
	}
	slices.SortFunc(kept, func(a, b candidate) int { return a.start - b.start })
	return kept
}
