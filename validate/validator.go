package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/chunker"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
	"golang.org/x/sync/errgroup"
)

// maxRepeat is the longest run of one non-space character a chunk may hold.
const maxRepeat = 20

// IssueKind classifies a validation issue.
type IssueKind string

const (
	IssueMissingArtifact    IssueKind = "missing_artifact"
	IssueChunkCount         IssueKind = "chunk_count_mismatch"
	IssueSequence           IssueKind = "chunk_sequence"
	IssueEmptyText          IssueKind = "empty_text"
	IssueMissingVector      IssueKind = "missing_vector"
	IssueTokenCount         IssueKind = "token_count_mismatch"
	IssueOverMax            IssueKind = "over_max_tokens"
	IssueUnderMin           IssueKind = "under_min_tokens"
	IssueRepeatedCharacters IssueKind = "repeated_characters"
	IssuePartialPlaceholder IssueKind = "partial_placeholder"
	IssuePlaceholderIDs     IssueKind = "placeholder_ids_mismatch"
	IssueMissingTable       IssueKind = "missing_table"
	IssueOrphanedTable      IssueKind = "orphaned_table"
)

// Issue is a single problem found in a stored document.
type Issue struct {
	SourceID string    `json:"source_id"`
	ChunkID  string    `json:"chunk_id,omitempty"`
	Kind     IssueKind `json:"kind"`
	Detail   string    `json:"detail"`
}

// TableStats counts table references across documents.
type TableStats struct {
	// Tables counts the extracted tables.
	Tables int `json:"tables"`
	// Referenced counts the extracted tables some chunk refers to.
	Referenced int `json:"referenced"`
	// Orphaned counts the extracted tables no chunk refers to.
	Orphaned         int `json:"orphaned"`
	ChunksWithTables int `json:"chunks_with_tables"`
}

func (s *TableStats) add(o TableStats) {
	s.Tables += o.Tables
	s.Referenced += o.Referenced
	s.Orphaned += o.Orphaned
	s.ChunksWithTables += o.ChunksWithTables
}

// Report is the outcome of a validation run.
type Report struct {
	Documents      int                                `json:"documents"`
	Chunks         int                                `json:"chunks"`
	Tokens         Distribution                       `json:"tokens"`
	ByDocumentType map[core.DocumentType]Distribution `json:"by_document_type"`
	Tables         TableStats                         `json:"tables"`
	Issues         []Issue                            `json:"issues"`
}

// Count returns the number of issues of kind.
func (r *Report) Count(kind IssueKind) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

// Err returns ErrIssuesFound when the report holds any issue.
func (r *Report) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d issues over %d documents", ErrIssuesFound, len(r.Issues), r.Documents)
}

// Validator checks the chunks of STORED documents against the chunk limits
// they were produced with.
type Validator struct {
	states    *state.Tracker
	tokenizer chunker.Tokenizer
	limits    chunker.Config
	workers   int
	logger    *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLimits sets the chunk limits to check against.
// Default is chunker.DefaultConfig().
func WithLimits(limits chunker.Config) Option {
	return func(v *Validator) {
		v.limits = limits
	}
}

// WithTokenizer sets the tokenizer token counts are checked with.
// Default is chunker.Words.
func WithTokenizer(tokenizer chunker.Tokenizer) Option {
	return func(v *Validator) {
		if tokenizer != nil {
			v.tokenizer = tokenizer
		}
	}
}

// WithWorkers sets how many documents are loaded concurrently.
func WithWorkers(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.workers = n
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates a Validator reading documents from states.
func New(states *state.Tracker, opts ...Option) (*Validator, error) {
	v := &Validator{
		states:    states,
		tokenizer: chunker.Words{},
		limits:    chunker.DefaultConfig(),
		workers:   4,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.limits.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	v.logger = v.logger.With("component", "validator")
	return v, nil
}

type document struct {
	chunks []core.Chunk
	tables TableStats
	issues []Issue
}

// Run validates every STORED document. Issues are part of the report; the
// error is reserved for failures to read the ledger.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	stored, err := v.states.List(ctx, core.StageStored)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored documents: %w", err)
	}

	docs := make([]document, len(stored))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, st := range stored {
		g.Go(func() error {
			doc, err := v.load(gctx, st)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Documents:      len(stored),
		ByDocumentType: make(map[core.DocumentType]Distribution),
	}
	var all []int
	byType := make(map[core.DocumentType][]int)
	for _, doc := range docs {
		report.Chunks += len(doc.chunks)
		report.Tables.add(doc.tables)
		report.Issues = append(report.Issues, doc.issues...)
		for _, c := range doc.chunks {
			all = append(all, c.TokenCount)
			byType[c.DocumentType] = append(byType[c.DocumentType], c.TokenCount)
		}
	}
	report.Tokens = Describe(all)
	for docType, counts := range byType {
		report.ByDocumentType[docType] = Describe(counts)
	}

	v.logger.Info("validated stored documents",
		"documents", report.Documents, "chunks", report.Chunks, "issues", len(report.Issues))
	return report, nil
}

// load reads the artifacts of one document and checks them.
func (v *Validator) load(ctx context.Context, st *core.ProcessingState) (document, error) {
	var (
		embedded []core.EmbeddedChunk
		spans    []core.TableSpan
	)
	err := v.states.Ledger().View(ctx, func(tx storage.LedgerTx) error {
		if err := state.GetArtifact(tx, st.SourceID, storage.ArtifactEmbedded, &embedded); err != nil {
			return err
		}
		err := state.GetArtifact(tx, st.SourceID, storage.ArtifactTables, &spans)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return document{issues: []Issue{{
			SourceID: st.SourceID,
			Kind:     IssueMissingArtifact,
			Detail:   "stored document has no embedded chunks",
		}}}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("load %s: %w", st.SourceID, err)
	}

	doc := document{chunks: make([]core.Chunk, len(embedded))}
	for i, e := range embedded {
		doc.chunks[i] = e.Chunk
		if len(e.Vector) == 0 {
			doc.issues = append(doc.issues, Issue{
				SourceID: st.SourceID,
				ChunkID:  e.Chunk.ChunkID,
				Kind:     IssueMissingVector,
				Detail:   "chunk has no vector",
			})
		}
	}
	issues, stats := v.CheckDocument(st, doc.chunks, spans)
	doc.issues = append(doc.issues, issues...)
	doc.tables = stats
	return doc, nil
}

// CheckDocument checks the chunks of one document against its state and
// its extracted tables.
func (v *Validator) CheckDocument(st *core.ProcessingState, chunks []core.Chunk, spans []core.TableSpan) ([]Issue, TableStats) {
	var issues []Issue
	add := func(chunkID string, kind IssueKind, format string, args ...any) {
		issues = append(issues, Issue{
			SourceID: st.SourceID,
			ChunkID:  chunkID,
			Kind:     kind,
			Detail:   fmt.Sprintf(format, args...),
		})
	}

	if st.ChunkCount != len(chunks) {
		add("", IssueChunkCount, "state records %d chunks, artifact holds %d", st.ChunkCount, len(chunks))
	}

	extracted := make(map[string]bool, len(spans))
	for _, s := range spans {
		extracted[s.PlaceholderID] = true
	}
	referenced := make(map[string]bool)
	seen := make(map[string]bool, len(chunks))
	stats := TableStats{Tables: len(spans)}

	for i, c := range chunks {
		if c.ChunkIndex != i {
			add(c.ChunkID, IssueSequence, "chunk index %d at position %d", c.ChunkIndex, i)
		}
		if c.SourceID != st.SourceID {
			add(c.ChunkID, IssueSequence, "chunk belongs to %s", c.SourceID)
		}
		if seen[c.ChunkID] {
			add(c.ChunkID, IssueSequence, "duplicate chunk id")
		}
		seen[c.ChunkID] = true

		if strings.TrimSpace(c.Text) == "" {
			add(c.ChunkID, IssueEmptyText, "chunk has no text")
			continue
		}
		if n := v.tokenizer.Count(c.Text); n != c.TokenCount {
			add(c.ChunkID, IssueTokenCount, "recorded %d tokens, %s tokenizer counts %d", c.TokenCount, v.tokenizer.Name(), n)
		}
		if c.TokenCount > v.limits.MaxTokens {
			add(c.ChunkID, IssueOverMax, "%d tokens, max is %d", c.TokenCount, v.limits.MaxTokens)
		}
		if i < len(chunks)-1 && c.TokenCount < v.limits.MinTokens {
			add(c.ChunkID, IssueUnderMin, "%d tokens, min is %d", c.TokenCount, v.limits.MinTokens)
		}
		if r, n := longestRun(c.Text); n > maxRepeat {
			add(c.ChunkID, IssueRepeatedCharacters, "%q repeated %d times", r, n)
		}

		if tables.HasPartialPlaceholder(c.Text) {
			add(c.ChunkID, IssuePartialPlaceholder, "chunk holds a partial table placeholder")
		}
		ids := tables.PlaceholderIDs(c.Text)
		if !slices.Equal(ids, c.ContainsPlaceholderIDs) {
			add(c.ChunkID, IssuePlaceholderIDs, "recorded %v, text holds %v", c.ContainsPlaceholderIDs, ids)
		}
		if len(ids) > 0 {
			stats.ChunksWithTables++
		}
		for _, id := range ids {
			referenced[id] = true
			if !extracted[id] {
				add(c.ChunkID, IssueMissingTable, "table %s was not extracted from the document", id)
			}
		}
	}

	for _, s := range spans {
		if referenced[s.PlaceholderID] {
			stats.Referenced++
			continue
		}
		stats.Orphaned++
		add("", IssueOrphanedTable, "table %s is referenced by no chunk", s.PlaceholderID)
	}
	return issues, stats
}

// longestRun returns the non-space rune with the longest run of repeats in
// text and the length of that run.
func longestRun(text string) (rune, int) {
	var (
		best, cur rune
		bestN, n  int
	)
	for _, r := range text {
		if r == cur {
			n++
		} else {
			cur, n = r, 1
		}
		if n > bestN && !unicode.IsSpace(r) {
			best, bestN = r, n
		}
	}
	return best, bestN
}
