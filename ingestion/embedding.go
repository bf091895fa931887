package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/retry"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
)

// embeddingProcessor generates a vector for every chunk and commits EMBEDDED.
type embeddingProcessor struct {
	states    *state.Tracker
	embedder  ai.Embedder
	policy    retry.Policy
	batchSize int
	logger    *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

func (ep *embeddingProcessor) stage() core.Stage {
	return core.StageEmbedded
}

func (ep *embeddingProcessor) process(ctx context.Context, r *run) error {
	if r.chunks == nil {
		if err := ep.states.LoadArtifact(ctx, r.doc.SourceID, storage.ArtifactSegmented, &r.chunks); err != nil {
			return fmt.Errorf("load segmented chunks: %w", err)
		}
	}

	embedded := make([]core.EmbeddedChunk, 0, len(r.chunks))
	for start := 0; start < len(r.chunks); start += ep.batchSize {
		end := min(start+ep.batchSize, len(r.chunks))
		batch := r.chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		ep.logger.Debug("generating embeddings", "source_id", r.doc.SourceID, "chunks", len(texts))
		var vectors [][]float32
		err := ep.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			vectors, err = ep.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, len(texts), len(vectors))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}

		for i, c := range batch {
			embedded = append(embedded, core.EmbeddedChunk{Chunk: c, Vector: vectors[i]})
		}
	}

	err := ep.states.Advance(ctx, r.claim, core.StageEmbedded, func(tx storage.LedgerTx, _ *core.ProcessingState) error {
		return state.PutArtifact(tx, r.doc.SourceID, storage.ArtifactEmbedded, embedded)
	})
	if err != nil {
		return err
	}
	r.embedded = embedded
	return nil
}
