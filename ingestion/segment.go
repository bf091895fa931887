package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/chunker"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/coverage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/summarize"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
)

// segmentProcessor turns raw text into boosted chunks and commits SEGMENTED.
type segmentProcessor struct {
	states    *state.Tracker
	extractor *tables.Extractor
	adapter   *summarize.Adapter
	chunker   *chunker.Chunker
	coverage  *coverage.Tracker
	logger    *slog.Logger
}

var _ processor = (*segmentProcessor)(nil)

func (sp *segmentProcessor) stage() core.Stage {
	return core.StageSegmented
}

func (sp *segmentProcessor) process(ctx context.Context, r *run) error {
	doc := r.doc
	text, spans := sp.extractor.Extract(doc)

	tc := ai.TableContext{
		CompanyKey:   doc.CompanyKey,
		DocumentType: string(doc.DocumentType),
		Section:      doc.Hint(core.HintSection, ""),
	}
	summaries, err := sp.adapter.SummarizeAll(ctx, tc, spans)
	if err != nil {
		return fmt.Errorf("summarize tables: %w", err)
	}
	for _, s := range summaries {
		if s.Fallback {
			r.fallbacks++
		}
	}

	chunks := sp.chunker.ChunkDocument(doc, tables.Substitute(text, summaries))
	sp.logger.Debug("segmented document",
		"source_id", doc.SourceID,
		"tables", len(spans),
		"fallbacks", r.fallbacks,
		"chunks", len(chunks))

	unlock, err := sp.coverage.Lock(ctx, doc.CompanyKey)
	if err != nil {
		return fmt.Errorf("lock coverage %s: %w", doc.CompanyKey, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			sp.logger.Warn("error releasing coverage lock", "company", doc.CompanyKey, "err", err)
		}
	}()

	var annotated []core.Chunk
	err = sp.states.Advance(ctx, r.claim, core.StageSegmented, func(tx storage.LedgerTx, _ *core.ProcessingState) error {
		var err error
		annotated, err = sp.coverage.Annotate(ctx, tx, doc.CompanyKey, doc.SourceID, chunks)
		if err != nil {
			return err
		}
		if err := state.PutArtifact(tx, doc.SourceID, storage.ArtifactTables, spans); err != nil {
			return err
		}
		return state.PutArtifact(tx, doc.SourceID, storage.ArtifactSegmented, annotated)
	})
	if err != nil {
		return err
	}
	r.chunks = annotated
	return nil
}
