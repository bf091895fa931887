package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai/mock"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/chunker"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/coverage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/retry"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	badgerstore "github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage/badger"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/store"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/summarize"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// switchableVectors fails every upsert while broken is set.
type switchableVectors struct {
	storage.VectorIndex
	mu     sync.Mutex
	broken bool
}

func (s *switchableVectors) setBroken(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = b
}

func (s *switchableVectors) Upsert(ctx context.Context, records ...storage.VectorRecord) error {
	s.mu.Lock()
	broken := s.broken
	s.mu.Unlock()
	if broken {
		return errors.New("vector index unavailable")
	}
	return s.VectorIndex.Upsert(ctx, records...)
}

type fixture struct {
	stores     *badgerstore.Stores
	states     *state.Tracker
	coverage   *coverage.Tracker
	vectors    *switchableVectors
	embedder   *mock.MockEmbedder
	summarizer *mock.MockSummarizer
	metrics    *Metrics
	pipeline   *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	stores, err := badgerstore.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	states, err := state.NewTracker(stores.Ledger, state.WithConfig(state.Config{
		LeaseTTL:    time.Minute,
		MaxAttempts: 2,
	}))
	require.NoError(t, err)
	cov, err := coverage.NewTracker(stores.Ledger)
	require.NoError(t, err)

	vectors := &switchableVectors{VectorIndex: stores.Vectors}
	coord, err := store.NewCoordinator(stores.Objects, vectors, states, store.WithConfig(store.Config{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		CallTimeout: time.Second,
		Concurrency: 4,
	}))
	require.NoError(t, err)

	provider := mock.NewMockProvider()
	ch, err := chunker.New(chunker.WithConfig(chunker.Config{MaxTokens: 40, MinTokens: 5, OverlapTokens: 5}))
	require.NoError(t, err)
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	summaryConfig := summarize.DefaultConfig()
	summaryConfig.BaseDelay = time.Millisecond
	summaryConfig.CallTimeout = time.Second

	base := []Option{
		WithPoolSize(4),
		WithChunker(ch),
		WithMetrics(metrics),
		WithSummarizeOptions(summarize.WithConfig(summaryConfig)),
		WithEmbedding(retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, AttemptTimeout: time.Second}, 8),
	}
	p, err := NewPipeline(provider, states, cov, coord, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &fixture{
		stores:     stores,
		states:     states,
		coverage:   cov,
		vectors:    vectors,
		embedder:   provider.GetMockEmbedder(),
		summarizer: provider.GetMockSummarizer(),
		metrics:    metrics,
		pipeline:   p,
	}
}

func narrative(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			if i%12 == 0 {
				b.WriteString(".\n\n")
			} else {
				b.WriteByte(' ')
			}
		}
		fmt.Fprintf(&b, "word%d", i)
	}
	b.WriteString(".")
	return b.String()
}

func table(title string) string {
	return "| " + title + " segment | FY2023 | FY2024 |\n" +
		"|---|---:|---:|\n" +
		"| Products | 200,583 | 201,183 |\n" +
		"| Services | 85,200 | 96,169 |"
}

func testDoc(sourceID, text string) *core.RawDocument {
	return &core.RawDocument{
		SourceID:        sourceID,
		CompanyKey:      "AAPL",
		DocumentType:    core.DocumentTypeSECFiling,
		FetchedAt:       time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		RawText:         text,
		StructuralHints: map[string]string{core.HintSection: "Item 7"},
	}
}

func (f *fixture) segmented(t *testing.T, sourceID string) []core.Chunk {
	t.Helper()
	var chunks []core.Chunk
	require.NoError(t, f.states.LoadArtifact(context.Background(), sourceID, storage.ArtifactSegmented, &chunks))
	return chunks
}

func (f *fixture) stage(t *testing.T, sourceID string) *core.ProcessingState {
	t.Helper()
	st, err := f.states.Get(context.Background(), sourceID)
	require.NoError(t, err)
	return st
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	_, err := NewPipeline(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
	_, err = NewPipeline(mock.NewMockProvider(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrStateTrackerRequired)
}

func TestProcess_ZeroTables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := testDoc("sec:AAPL:1", narrative(100))

	outcome := f.pipeline.Process(ctx, doc)

	require.Equal(t, core.OutcomeStored, outcome.Status, outcome.Reason)
	assert.Zero(t, f.summarizer.CallCount())
	assert.Greater(t, outcome.Chunks, 1)

	st := f.stage(t, doc.SourceID)
	assert.Equal(t, core.StageStored, st.Stage)
	assert.Equal(t, outcome.Chunks, st.ChunkCount)

	objects, err := f.stores.Objects.List(ctx, storage.ChunkObjectPrefix(doc.SourceID))
	require.NoError(t, err)
	assert.Len(t, objects, outcome.Chunks)

	for _, c := range f.segmented(t, doc.SourceID) {
		assert.Empty(t, c.ContainsPlaceholderIDs)
		assert.LessOrEqual(t, c.TokenCount, 40)
		_, err := f.stores.Vectors.Get(ctx, c.ChunkID)
		assert.NoError(t, err)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues("STORED")))
}

func TestProcess_IdempotentRerunMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := testDoc("sec:AAPL:1", narrative(30)+"\n\n"+table("Revenue"))

	require.Equal(t, core.OutcomeStored, f.pipeline.Process(ctx, doc).Status)
	summaries, embeds := f.summarizer.CallCount(), f.embedder.CallCount()

	outcome := f.pipeline.Process(ctx, doc)

	assert.Equal(t, core.OutcomeSkipped, outcome.Status)
	assert.Equal(t, summaries, f.summarizer.CallCount())
	assert.Equal(t, embeds, f.embedder.CallCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues("SKIPPED")))
}

func TestProcess_ThreeTables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := narrative(20) + "\n\n" + table("Revenue") + "\n\n" +
		narrative(20) + "\n\n" + table("Margin") + "\n\n" +
		narrative(20) + "\n\n" + table("Cash")
	doc := testDoc("sec:AAPL:3t", text)

	outcome := f.pipeline.Process(ctx, doc)
	require.Equal(t, core.OutcomeStored, outcome.Status, outcome.Reason)
	assert.Equal(t, 3, f.summarizer.CallCount())

	var spans []core.TableSpan
	require.NoError(t, f.states.LoadArtifact(ctx, doc.SourceID, storage.ArtifactTables, &spans))
	require.Len(t, spans, 3)

	seen := map[string]bool{}
	for _, c := range f.segmented(t, doc.SourceID) {
		assert.False(t, tables.HasPartialPlaceholder(c.Text), "chunk %d splits a placeholder: %q", c.ChunkIndex, c.Text)
		for _, id := range c.ContainsPlaceholderIDs {
			seen[id] = true
			assert.Contains(t, c.Text, tables.Token(id)+" Summary: Table with 4 rows")
		}
	}
	for _, span := range spans {
		assert.True(t, seen[span.PlaceholderID], "table %s missing from chunks", span.PlaceholderID)
	}
}

func TestProcess_ExhaustedSummarizerStillStores(t *testing.T) {
	f := newFixture(t)
	f.summarizer.SummarizeFunc = func(ctx context.Context, tableText string, tc ai.TableContext) (string, error) {
		return "", errors.New("llm down")
	}
	doc := testDoc("sec:AAPL:fb", narrative(20)+"\n\n"+table("Revenue")+"\n\n"+table("Margin"))

	outcome := f.pipeline.Process(context.Background(), doc)

	require.Equal(t, core.OutcomeStored, outcome.Status, outcome.Reason)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Fallbacks))

	var texts []string
	for _, c := range f.segmented(t, doc.SourceID) {
		texts = append(texts, c.Text)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "Summary: [Table: Item 7] Revenue segment FY2023")
}

func TestProcess_ResumesAfterVectorFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := testDoc("sec:AAPL:rv", narrative(60)+"\n\n"+table("Revenue"))

	f.vectors.setBroken(true)
	outcome := f.pipeline.Process(ctx, doc)
	require.Equal(t, core.OutcomeFailed, outcome.Status)
	assert.False(t, outcome.Permanent)
	assert.Contains(t, outcome.Reason, "partial store failure")

	st := f.stage(t, doc.SourceID)
	assert.Equal(t, core.StageFailed, st.Stage)
	assert.Equal(t, core.StageEmbedded, st.ResumeStage)

	objects, err := f.stores.Objects.List(ctx, storage.ChunkObjectPrefix(doc.SourceID))
	require.NoError(t, err)
	assert.NotEmpty(t, objects, "objects are written before vectors")

	summaries, embeds := f.summarizer.CallCount(), f.embedder.CallCount()
	f.vectors.setBroken(false)

	outcome = f.pipeline.Process(ctx, doc)
	require.Equal(t, core.OutcomeStored, outcome.Status, outcome.Reason)
	assert.Equal(t, summaries, f.summarizer.CallCount(), "resume does not summarize again")
	assert.Equal(t, embeds, f.embedder.CallCount(), "resume does not embed again")
	assert.Equal(t, core.StageStored, f.stage(t, doc.SourceID).Stage)
}

func TestProcess_DocumentTimeoutKeepsStage(t *testing.T) {
	f := newFixture(t, WithDocumentTimeout(200*time.Millisecond))
	ctx := context.Background()
	doc := testDoc("sec:AAPL:to", narrative(40)+"\n\n"+table("Revenue"))

	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	outcome := f.pipeline.Process(ctx, doc)
	require.Equal(t, core.OutcomeFailed, outcome.Status)
	assert.False(t, outcome.Permanent)
	assert.Contains(t, outcome.Reason, "document timeout")

	st := f.stage(t, doc.SourceID)
	assert.Equal(t, core.StageSegmented, st.Stage)
	assert.Zero(t, st.AttemptCount)
	assert.Empty(t, st.Owner)

	summaries := f.summarizer.CallCount()
	f.embedder.EmbedTextsFunc = nil
	outcome = f.pipeline.Process(ctx, doc)
	require.Equal(t, core.OutcomeStored, outcome.Status, outcome.Reason)
	assert.Equal(t, summaries, f.summarizer.CallCount())
}

func TestProcess_FailuresBecomePermanent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := testDoc("sec:AAPL:ex", narrative(20))
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}

	first := f.pipeline.Process(ctx, doc)
	assert.Equal(t, core.OutcomeFailed, first.Status)
	assert.False(t, first.Permanent)

	second := f.pipeline.Process(ctx, doc)
	assert.True(t, second.Permanent)

	third := f.pipeline.Process(ctx, doc)
	assert.True(t, third.Permanent)
	assert.Contains(t, third.Reason, state.ErrExhausted.Error())
	assert.Equal(t, 2, f.stage(t, doc.SourceID).AttemptCount)
}

func TestProcess_EmbeddingMismatchIsAnError(t *testing.T) {
	f := newFixture(t)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	outcome := f.pipeline.Process(context.Background(), testDoc("sec:AAPL:mm", narrative(100)))

	assert.Equal(t, core.OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, ErrEmbeddingMismatch.Error())
}

func TestProcess_InvalidDocument(t *testing.T) {
	f := newFixture(t)
	doc := testDoc("sec:AAPL:bad", "   ")

	outcome := f.pipeline.Process(context.Background(), doc)

	assert.Equal(t, core.OutcomeFailed, outcome.Status)
	assert.True(t, outcome.Permanent)
	_, err := f.states.Get(context.Background(), doc.SourceID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcess_ChangedContentIsReprocessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := testDoc("sec:AAPL:ch", narrative(100))

	first := f.pipeline.Process(ctx, doc)
	require.Equal(t, core.OutcomeStored, first.Status)

	revised := testDoc(doc.SourceID, narrative(20))
	second := f.pipeline.Process(ctx, revised)
	require.Equal(t, core.OutcomeStored, second.Status, second.Reason)
	require.Less(t, second.Chunks, first.Chunks)

	objects, err := f.stores.Objects.List(ctx, storage.ChunkObjectPrefix(doc.SourceID))
	require.NoError(t, err)
	assert.Len(t, objects, second.Chunks)

	standings, err := f.coverage.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, second.Chunks, standings[0].RollingChunkCount)
}

func TestProcessBatch(t *testing.T) {
	f := newFixture(t)
	docs := []*core.RawDocument{
		testDoc("doc-0", narrative(30)),
		testDoc("doc-1", narrative(40)+"\n\n"+table("Revenue")),
		testDoc("doc-2", ""),
		testDoc("doc-3", narrative(50)),
	}
	docs[3].CompanyKey = "MSFT"

	report := f.pipeline.ProcessBatch(context.Background(), docs)

	require.Len(t, report.Outcomes, 4)
	for i, o := range report.Outcomes {
		assert.Equal(t, docs[i].SourceID, o.SourceID)
	}
	assert.Equal(t, 3, report.Count(core.OutcomeStored))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "doc-2", report.Failures[0].SourceID)

	runs, err := f.states.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].RunID)
	assert.Equal(t, 4, runs[0].Documents)
	assert.Equal(t, 3, runs[0].Stored)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, report.Outcomes[0].Chunks+report.Outcomes[1].Chunks+report.Outcomes[3].Chunks, runs[0].Chunks)
	assert.False(t, runs[0].FinishedAt.Before(runs[0].StartedAt))
}

func TestProcessBatch_SameDocumentTwice(t *testing.T) {
	f := newFixture(t)
	doc := testDoc("dup", narrative(30))

	report := f.pipeline.ProcessBatch(context.Background(), []*core.RawDocument{doc, doc})

	assert.Equal(t, 1, report.Count(core.OutcomeStored))
	assert.Equal(t, 1, report.Count(core.OutcomeSkipped))
	assert.Empty(t, report.Failures)
}
