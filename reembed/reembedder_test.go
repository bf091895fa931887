package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai/mock"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	badgerstore "github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	stores *badgerstore.Stores
	states *state.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores, err := badgerstore.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	states, err := state.NewTracker(stores.Ledger)
	require.NoError(t, err)
	return &fixture{stores: stores, states: states}
}

// store walks a document to STORED with chunks old vectors in its artifact.
// A negative chunks leaves the document without an embedded artifact.
func (f *fixture) store(t *testing.T, sourceID string, chunks int) {
	t.Helper()
	ctx := context.Background()
	doc := &core.RawDocument{
		SourceID:     sourceID,
		CompanyKey:   "AAPL",
		DocumentType: core.DocumentTypeNews,
		FetchedAt:    time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		RawText:      "text of " + sourceID,
	}
	claim, err := f.states.Claim(ctx, doc)
	require.NoError(t, err)
	require.NoError(t, f.states.Advance(ctx, claim, core.StageSegmented, nil))

	embedded := make([]core.EmbeddedChunk, max(chunks, 0))
	for i := range embedded {
		embedded[i] = core.EmbeddedChunk{
			Chunk: core.Chunk{
				ChunkID:      core.ChunkID(sourceID, i),
				SourceID:     sourceID,
				CompanyKey:   "AAPL",
				DocumentType: core.DocumentTypeNews,
				ChunkIndex:   i,
				Text:         fmt.Sprintf("chunk %d of %s", i, sourceID),
				BoostFactor:  1.1,
			},
			Vector: []float32{1, 0},
		}
	}
	require.NoError(t, f.states.Advance(ctx, claim, core.StageEmbedded, func(tx storage.LedgerTx, _ *core.ProcessingState) error {
		if chunks < 0 {
			return nil
		}
		return state.PutArtifact(tx, sourceID, storage.ArtifactEmbedded, embedded)
	}))
	require.NoError(t, f.states.Advance(ctx, claim, core.StageStored, func(_ storage.LedgerTx, st *core.ProcessingState) error {
		st.ChunkCount = len(embedded)
		return nil
	}))
}

func fastConfig() Config {
	return Config{BatchSize: 2, ReportInterval: 1, MaxAttempts: 2, BaseDelay: time.Millisecond}
}

func TestReembedder_Run(t *testing.T) {
	f := newFixture(t)
	f.store(t, "news:a", 3)
	f.store(t, "news:b", 2)

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 8
	var progress bytes.Buffer
	r, err := NewReembedder(f.states, f.stores.Vectors, embedder,
		WithConfig(fastConfig()),
		WithProgress(&progress))
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Documents: 2, Chunks: 5}, res)
	assert.Equal(t, 3, embedder.CallCount())
	assert.Contains(t, progress.String(), "Starting reembedding of 5 chunks in 2 documents")
	assert.Contains(t, progress.String(), "5/5 chunks")

	record, err := f.stores.Vectors.Get(context.Background(), core.ChunkID("news:a", 2))
	require.NoError(t, err)
	assert.Len(t, record.Vector, 8)
	assert.Equal(t, "news:a", record.Metadata.SourceID)
	assert.Equal(t, 1.1, record.Metadata.BoostFactor)
	assert.Equal(t, storage.ChunkObjectKey("news:a", record.ID), record.Metadata.ChunkTextRef)

	var embedded []core.EmbeddedChunk
	require.NoError(t, f.states.LoadArtifact(context.Background(), "news:b", storage.ArtifactEmbedded, &embedded))
	require.Len(t, embedded, 2)
	assert.Equal(t, mock.DeterministicVector(embedded[1].Chunk.Text, 8), embedded[1].Vector)
}

func TestReembedder_OnlyStoredDocuments(t *testing.T) {
	f := newFixture(t)
	f.store(t, "news:a", 1)
	f.store(t, "news:no-artifact", -1)

	pending := &core.RawDocument{
		SourceID:     "news:pending",
		CompanyKey:   "AAPL",
		DocumentType: core.DocumentTypeNews,
		RawText:      "not stored yet",
	}
	_, err := f.states.Claim(context.Background(), pending)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	r, err := NewReembedder(f.states, f.stores.Vectors, embedder, WithConfig(fastConfig()))
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Documents: 1, Chunks: 1, Skipped: 1}, res)
	assert.Equal(t, 1, embedder.TextCount())
}

func TestReembedder_NoStoredDocuments(t *testing.T) {
	f := newFixture(t)
	embedder := mock.NewMockEmbedder()
	var progress bytes.Buffer
	r, err := NewReembedder(f.states, f.stores.Vectors, embedder, WithProgress(&progress))
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Zero(t, embedder.CallCount())
	assert.Contains(t, progress.String(), "No stored documents found")
}

func TestReembedder_EmbedderFailure(t *testing.T) {
	f := newFixture(t)
	f.store(t, "news:a", 2)

	unavailable := errors.New("embedding service unavailable")
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, unavailable
	}
	r, err := NewReembedder(f.states, f.stores.Vectors, embedder, WithConfig(fastConfig()))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, unavailable)
	assert.Contains(t, err.Error(), "news:a")
	assert.Equal(t, 2, embedder.CallCount())

	var embedded []core.EmbeddedChunk
	require.NoError(t, f.states.LoadArtifact(context.Background(), "news:a", storage.ArtifactEmbedded, &embedded))
	assert.Equal(t, []float32{1, 0}, embedded[0].Vector)
}

func TestReembedder_MismatchIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.store(t, "news:a", 2)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	r, err := NewReembedder(f.states, f.stores.Vectors, embedder, WithConfig(fastConfig()))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestReembedder_HoldsLeaseWhileEmbedding(t *testing.T) {
	f := newFixture(t)
	f.store(t, "news:a", 2)

	changed := &core.RawDocument{
		SourceID:     "news:a",
		CompanyKey:   "AAPL",
		DocumentType: core.DocumentTypeNews,
		RawText:      "revised text of news:a",
	}
	var claimErr error
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if claimErr == nil {
			_, claimErr = f.states.Claim(ctx, changed)
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 4)
		}
		return out, nil
	}
	r, err := NewReembedder(f.states, f.stores.Vectors, embedder, WithConfig(fastConfig()))
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, claimErr, state.ErrClaimed)
	assert.Equal(t, Result{Documents: 1, Chunks: 2}, res)

	st, err := f.states.Get(context.Background(), "news:a")
	require.NoError(t, err)
	assert.Equal(t, core.StageStored, st.Stage)
	assert.Empty(t, st.Owner, "lease is released after the run")

	claim, err := f.states.Claim(context.Background(), changed)
	require.NoError(t, err, "re-ingestion proceeds once the lease is released")
	assert.Equal(t, core.StageFetched, claim.Stage)
}

func TestReembedder_SkipsLeasedDocument(t *testing.T) {
	f := newFixture(t)
	f.store(t, "news:a", 1)
	f.store(t, "news:b", 1)

	st, err := f.states.Get(context.Background(), "news:b")
	require.NoError(t, err)
	_, err = f.states.ClaimStored(context.Background(), "news:b", st.ContentHash)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	r, err := NewReembedder(f.states, f.stores.Vectors, embedder, WithConfig(fastConfig()))
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Documents: 1, Chunks: 1, Skipped: 1}, res)
	assert.Equal(t, 1, embedder.TextCount())

	var embedded []core.EmbeddedChunk
	require.NoError(t, f.states.LoadArtifact(context.Background(), "news:b", storage.ArtifactEmbedded, &embedded))
	assert.Equal(t, []float32{1, 0}, embedded[0].Vector)
}

func TestNewReembedder_InvalidConfig(t *testing.T) {
	f := newFixture(t)
	config := fastConfig()
	config.BatchSize = 0

	_, err := NewReembedder(f.states, f.stores.Vectors, mock.NewMockEmbedder(), WithConfig(config))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
