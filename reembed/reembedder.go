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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/retry"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/go-playground/validator/v10"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks sent to the embedder per call
	BatchSize int `validate:"gte=1"`

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int `validate:"gte=1"`

	// MaxAttempts is the number of tries per embedder or vector index call
	MaxAttempts int `validate:"gte=1,lte=10"`

	// BaseDelay is the base delay for exponential backoff
	BaseDelay time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      64,
		ReportInterval: 100,
		MaxAttempts:    3,
		BaseDelay:      time.Second,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Result summarizes a run.
type Result struct {
	Documents int
	Chunks    int
	// Skipped counts documents without an embedded artifact, leased by
	// another worker, or changed since they were listed.
	Skipped int
}

// Reembedder regenerates the vectors of every STORED document.
type Reembedder struct {
	states   *state.Tracker
	vectors  storage.VectorIndex
	embedder ai.Embedder
	config   Config
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithConfig sets batch size, reporting and retries.
func WithConfig(config Config) Option {
	return func(r *Reembedder) {
		r.config = config
	}
}

// WithProgress writes progress lines to w (typically os.Stderr).
// Default is io.Discard.
func WithProgress(w io.Writer) Option {
	return func(r *Reembedder) {
		if w != nil {
			r.progress = w
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReembedder creates a new reembedder.
func NewReembedder(states *state.Tracker, vectors storage.VectorIndex, embedder ai.Embedder, opts ...Option) (*Reembedder, error) {
	r := &Reembedder{
		states:   states,
		vectors:  vectors,
		embedder: embedder,
		config:   DefaultConfig(),
		progress: io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	r.logger = r.logger.With("component", "reembedder")
	return r, nil
}

func (r *Reembedder) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.config.MaxAttempts,
		BaseDelay:   r.config.BaseDelay,
	}
}

// Run re-embeds every STORED document. It stops at the first document that
// cannot be re-embedded; documents finished before it keep their new vectors.
func (r *Reembedder) Run(ctx context.Context) (Result, error) {
	var res Result

	stored, err := r.states.List(ctx, core.StageStored)
	if err != nil {
		return res, fmt.Errorf("failed to list stored documents: %w", err)
	}
	if len(stored) == 0 {
		fmt.Fprintf(r.progress, "No stored documents found\n")
		return res, nil
	}

	total := 0
	for _, st := range stored {
		total += st.ChunkCount
	}
	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks in %d documents (batch size: %d)\n",
		total, len(stored), r.config.BatchSize)

	progress := NewProgress(r.progress, total, r.config.ReportInterval)
	progress.Start()

	for _, st := range stored {
		n, err := r.reembedDocument(ctx, st)
		switch {
		case errors.Is(err, storage.ErrNotFound),
			errors.Is(err, state.ErrNotStored),
			errors.Is(err, state.ErrClaimed),
			errors.Is(err, state.ErrLeaseLost):
			r.logger.Warn("skipping document", "source_id", st.SourceID, "reason", err)
			res.Skipped++
			progress.Add(st.ChunkCount)
			continue
		case err != nil:
			return res, fmt.Errorf("reembed %s: %w", st.SourceID, err)
		}
		res.Documents++
		res.Chunks += n
		progress.Add(n)
	}
	progress.Finish()

	elapsed := progress.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		res.Chunks, elapsed.Round(time.Millisecond), float64(res.Chunks)/elapsed.Seconds())
	return res, nil
}

// reembedDocument embeds the chunks of one document, upserts the vectors
// and replaces its embedded artifact. It holds the document's lease for the
// whole run, so the pipeline cannot re-ingest the document meanwhile, and
// verifies the lease before every write to the vector index.
func (r *Reembedder) reembedDocument(ctx context.Context, st *core.ProcessingState) (int, error) {
	claim, err := r.states.ClaimStored(ctx, st.SourceID, st.ContentHash)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := r.states.Release(context.WithoutCancel(ctx), claim); err != nil {
			r.logger.Warn("failed to release lease", "source_id", st.SourceID, "error", err)
		}
	}()

	var embedded []core.EmbeddedChunk
	if err := r.states.LoadArtifact(ctx, st.SourceID, storage.ArtifactEmbedded, &embedded); err != nil {
		return 0, err
	}

	policy := r.policy()
	for start := 0; start < len(embedded); start += r.config.BatchSize {
		end := min(start+r.config.BatchSize, len(embedded))
		batch := embedded[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Chunk.Text
		}

		var vectors [][]float32
		err := policy.Do(ctx, func(ctx context.Context) error {
			var err error
			vectors, err = r.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(texts) {
				return retry.Permanent(fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(texts), len(vectors)))
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", r.config.MaxAttempts, err)
		}

		if err := r.states.Renew(ctx, claim, nil); err != nil {
			return 0, err
		}
		records := make([]storage.VectorRecord, len(batch))
		for i := range batch {
			batch[i].Vector = vectors[i]
			records[i] = storage.ChunkVectorRecord(&batch[i])
		}
		err = policy.Do(ctx, func(ctx context.Context) error {
			return r.vectors.Upsert(ctx, records...)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to upsert vectors: %w", err)
		}
	}

	err = r.states.Renew(ctx, claim, func(tx storage.LedgerTx, _ *core.ProcessingState) error {
		return state.PutArtifact(tx, st.SourceID, storage.ArtifactEmbedded, embedded)
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug("reembedded document", "source_id", st.SourceID, "chunks", len(embedded))
	return len(embedded), nil
}
