package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/chunker"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/coverage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/retry"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/store"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/summarize"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
	"github.com/panjf2000/ants/v2"
)

// releaseTimeout bounds ledger bookkeeping done after the document's own
// context has ended.
const releaseTimeout = 10 * time.Second

// Pipeline ingests documents. It is safe for concurrent use.
type Pipeline struct {
	states     *state.Tracker
	pool       *ants.Pool
	processors map[core.Stage]processor
	metrics    *Metrics
	docTimeout time.Duration
	logger     *slog.Logger

	// set by options and consumed when the processors are built
	extractor   *tables.Extractor
	adapter     *summarize.Adapter
	chunker     *chunker.Chunker
	summaryOpts []summarize.Option
	embedPolicy retry.Policy
	embedBatch  int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size used by ProcessBatch.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithDocumentTimeout bounds the processing of one document. A document
// that runs out of time keeps its last committed stage and is not counted
// as a failed attempt. Default is 5 minutes.
func WithDocumentTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("document timeout must be positive, got %s", d)
		}
		p.docTimeout = d
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		p.chunker = c
		return nil
	}
}

// WithExtractor replaces the default table extractor.
func WithExtractor(e *tables.Extractor) Option {
	return func(p *Pipeline) error {
		p.extractor = e
		return nil
	}
}

// WithSummarizeOptions configures the table summarizer adapter built
// around the provider's summarizer.
func WithSummarizeOptions(opts ...summarize.Option) Option {
	return func(p *Pipeline) error {
		p.summaryOpts = append(p.summaryOpts, opts...)
		return nil
	}
}

// WithEmbedding sets the embedding retry policy and batch size.
func WithEmbedding(policy retry.Policy, batchSize int) Option {
	return func(p *Pipeline) error {
		if policy.MaxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		if batchSize < 1 {
			return fmt.Errorf("embedding batch size must be positive, got %d", batchSize)
		}
		p.embedPolicy = policy
		p.embedBatch = batchSize
		return nil
	}
}

// WithMetrics sets the prometheus collectors. Default is an unregistered set.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) error {
		if m != nil {
			p.metrics = m
		}
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	provider ai.AIProvider,
	states *state.Tracker,
	cov *coverage.Tracker,
	coordinator *store.Coordinator,
	opts ...Option,
) (*Pipeline, error) {
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if states == nil {
		return nil, ErrStateTrackerRequired
	}
	if cov == nil {
		return nil, ErrCoverageTrackerRequired
	}
	if coordinator == nil {
		return nil, ErrCoordinatorRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(nil)
	if err != nil {
		pool.Release()
		return nil, err
	}

	p := &Pipeline{
		states:      states,
		pool:        pool,
		metrics:     metrics,
		docTimeout:  5 * time.Minute,
		logger:      slog.Default(),
		embedPolicy: retry.DefaultPolicy(),
		embedBatch:  32,
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.extractor == nil {
		p.extractor = tables.NewExtractor(tables.WithLogger(p.logger))
	}
	if p.chunker == nil {
		if p.chunker, err = chunker.New(chunker.WithLogger(p.logger)); err != nil {
			p.Release()
			return nil, err
		}
	}
	adapter, err := summarize.NewAdapter(provider.Summarizer(),
		append([]summarize.Option{summarize.WithLogger(p.logger)}, p.summaryOpts...)...)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.adapter = adapter
	p.logger = p.logger.With("component", "pipeline")

	p.processors = map[core.Stage]processor{}
	for _, proc := range []processor{
		&segmentProcessor{
			states:    states,
			extractor: p.extractor,
			adapter:   p.adapter,
			chunker:   p.chunker,
			coverage:  cov,
			logger:    p.logger.With("processor", "segment"),
		},
		&embeddingProcessor{
			states:    states,
			embedder:  provider.Embedder(),
			policy:    p.embedPolicy,
			batchSize: p.embedBatch,
			logger:    p.logger.With("processor", "embeddings"),
		},
		&storeProcessor{
			states:      states,
			coordinator: coordinator,
		},
	} {
		p.processors[proc.stage()] = proc
	}
	return p, nil
}

// Process ingests one document and reports what happened to it.
//
// Invalid documents and documents that exhausted their attempts fail
// permanently. A STORED document with unchanged content, or one leased by
// another worker, is SKIPPED without any external call. Any other error
// records a failed attempt; the next run resumes from the last committed
// stage.
func (p *Pipeline) Process(ctx context.Context, doc *core.RawDocument) core.Outcome {
	outcome := p.process(ctx, doc)
	p.metrics.observe(outcome)
	return outcome
}

func (p *Pipeline) process(ctx context.Context, doc *core.RawDocument) core.Outcome {
	if doc == nil {
		return failed("", core.ErrInvalidDocument, true)
	}
	if err := core.ValidateRawDocument(doc); err != nil {
		return failed(doc.SourceID, err, true)
	}

	claim, err := p.states.Claim(ctx, doc)
	switch {
	case errors.Is(err, state.ErrAlreadyStored):
		p.logger.Debug("document unchanged", "source_id", doc.SourceID)
		return core.Outcome{SourceID: doc.SourceID, Status: core.OutcomeSkipped, Reason: "unchanged"}
	case errors.Is(err, state.ErrClaimed):
		return core.Outcome{SourceID: doc.SourceID, Status: core.OutcomeSkipped, Reason: "claimed by another worker"}
	case errors.Is(err, state.ErrExhausted):
		return failed(doc.SourceID, err, true)
	case err != nil:
		return failed(doc.SourceID, err, false)
	}

	docCtx, cancel := context.WithTimeout(ctx, p.docTimeout)
	defer cancel()

	r := &run{doc: doc, claim: claim}
	err = p.runStages(docCtx, r)
	if r.fallbacks > 0 {
		p.metrics.Fallbacks.Add(float64(r.fallbacks))
	}
	if err == nil {
		return core.Outcome{SourceID: doc.SourceID, Status: core.OutcomeStored, Chunks: len(r.embedded)}
	}

	// Bookkeeping must outlive the document's context.
	bgCtx, bgCancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer bgCancel()

	if docCtx.Err() != nil {
		if ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrDocumentTimeout, p.docTimeout, err)
		}
		if relErr := p.states.Release(bgCtx, claim); relErr != nil {
			p.logger.Error("error releasing claim", "source_id", doc.SourceID, "err", relErr)
		}
		p.logger.Warn("document interrupted", "source_id", doc.SourceID, "stage", claim.Stage, "err", err)
		return failed(doc.SourceID, err, false)
	}

	exhausted, failErr := p.states.Fail(bgCtx, claim, err)
	if failErr != nil {
		p.logger.Error("error recording failure", "source_id", doc.SourceID, "err", failErr)
	}
	return failed(doc.SourceID, err, exhausted)
}

// runStages runs every processor after the claim's committed stage.
func (p *Pipeline) runStages(ctx context.Context, r *run) error {
	for r.claim.Stage != core.StageStored {
		next, ok := r.claim.Stage.Next()
		if !ok {
			return fmt.Errorf("no stage after %s", r.claim.Stage)
		}
		proc := p.processors[next]

		start := time.Now()
		if err := proc.process(ctx, r); err != nil {
			return fmt.Errorf("%s: %w", next, err)
		}
		p.metrics.StageDuration.WithLabelValues(next.String()).Observe(time.Since(start).Seconds())
	}
	return nil
}

// ProcessBatch ingests docs concurrently on the worker pool. Outcomes are
// returned in input order; every failed document is also listed in the
// report's failures.
func (p *Pipeline) ProcessBatch(ctx context.Context, docs []*core.RawDocument) core.Report {
	run := core.PipelineRun{StartedAt: p.states.Now().UTC()}
	outcomes := make([]core.Outcome, len(docs))
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = p.Process(ctx, doc)
		})
		if err != nil {
			wg.Done()
			sourceID := ""
			if doc != nil {
				sourceID = doc.SourceID
			}
			outcomes[i] = failed(sourceID, fmt.Errorf("submit: %w", err), false)
			p.metrics.observe(outcomes[i])
		}
	}
	wg.Wait()

	report := core.Report{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Status == core.OutcomeFailed {
			report.Failures = append(report.Failures, core.DocumentFailure{SourceID: o.SourceID, Reason: o.Reason})
		}
	}

	run.FinishedAt = p.states.Now().UTC()
	run.Tally(report)
	if err := p.states.RecordRun(context.WithoutCancel(ctx), &run); err != nil {
		p.logger.Warn("failed to record run", "error", err)
	} else {
		report.RunID = run.RunID
	}
	p.logger.Info("batch processed",
		"run_id", run.RunID,
		"documents", run.Documents,
		"stored", run.Stored,
		"skipped", run.Skipped,
		"failed", run.Failed)
	return report
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func failed(sourceID string, err error, permanent bool) core.Outcome {
	return core.Outcome{
		SourceID:  sourceID,
		Status:    core.OutcomeFailed,
		Reason:    err.Error(),
		Permanent: permanent,
	}
}
