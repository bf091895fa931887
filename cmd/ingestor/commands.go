package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	diligence "github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/chunker"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ingestion"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/lock/redislock"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/reembed"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage/postgres"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/summarize"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/validate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

// maxLineSize bounds a single JSON lines record; filings can be large.
const maxLineSize = 64 << 20

func ingestCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := readDocuments(c.String("input"))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Read %d documents from %s\n", len(docs), c.String("input"))

	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithSummarizerHost(c.String("summarizer-host")),
		ai.WithSummarizerModel(c.String("summarizer-model")),
		ai.WithAPIToken(c.String("api-token")),
	)
	stateConfig := state.DefaultConfig()
	stateConfig.MaxAttempts = c.Int("max-attempts")

	opts := []diligence.Option{
		diligence.WithAIConfig(aiConfig),
		diligence.WithStateConfig(stateConfig),
	}
	if addr := c.String("redis"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
		}
		opts = append(opts, diligence.WithLocker(redislock.New(client)))
	}

	ing, err := openIngestor(ctx, c, opts...)
	if err != nil {
		return err
	}
	defer ing.Close()

	limits, tokenizer, err := chunking(c)
	if err != nil {
		return err
	}
	chunks, err := chunker.New(chunker.WithConfig(limits), chunker.WithTokenizer(tokenizer))
	if err != nil {
		return err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithPoolSize(c.Int("workers")),
		ingestion.WithDocumentTimeout(c.Duration("doc-timeout")),
		ingestion.WithChunker(chunks),
		ingestion.WithSummarizeOptions(summarize.WithRateLimiter(summarize.PerMinute(c.Int("summaries-per-minute")))),
	}
	if addr := c.String("metrics-addr"); addr != "" {
		metrics, shutdown, err := serveMetrics(addr)
		if err != nil {
			return err
		}
		defer shutdown()
		pipelineOpts = append(pipelineOpts, ingestion.WithMetrics(metrics))
	}

	pipeline, err := ing.NewPipeline(pipelineOpts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	start := time.Now()
	report := pipeline.ProcessBatch(ctx, docs)
	printReport(c.App.Writer, report)
	fmt.Fprintf(os.Stderr, "Ingestion completed in %s: %d stored, %d skipped, %d failed\n",
		time.Since(start).Round(time.Millisecond),
		report.Count(core.OutcomeStored),
		report.Count(core.OutcomeSkipped),
		report.Count(core.OutcomeFailed))

	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d documents failed", len(report.Failures), len(docs))
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	ing, err := openIngestor(c.Context, c)
	if err != nil {
		return err
	}
	defer ing.Close()

	st, err := ing.States().Get(c.Context, c.String("source-id"))
	if err != nil {
		return fmt.Errorf("status %s: %w", c.String("source-id"), err)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "source_id\t%s\n", st.SourceID)
	fmt.Fprintf(w, "stage\t%s\n", st.Stage)
	if st.Stage == core.StageFailed {
		fmt.Fprintf(w, "resume_stage\t%s\n", st.ResumeStage)
	}
	fmt.Fprintf(w, "attempts\t%d\n", st.AttemptCount)
	fmt.Fprintf(w, "chunks\t%d\n", st.ChunkCount)
	fmt.Fprintf(w, "content_hash\t%s\n", st.ContentHash)
	fmt.Fprintf(w, "updated_at\t%s\n", st.UpdatedAt.Format(time.RFC3339))
	if st.LastError != "" {
		fmt.Fprintf(w, "last_error\t%s\n", st.LastError)
	}
	return w.Flush()
}

func coverageCommand(c *cli.Context) error {
	ing, err := openIngestor(c.Context, c)
	if err != nil {
		return err
	}
	defer ing.Close()

	standings, err := ing.Coverage().Snapshot(c.Context)
	if err != nil {
		return err
	}
	if len(standings) == 0 {
		fmt.Fprintln(os.Stderr, "No coverage recorded")
		return nil
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPANY\tCHUNKS\tRELATIVE\tBOOST\tRUNS\tLAST UPDATED")
	for _, s := range standings {
		fmt.Fprintf(w, "%s\t%d\t%.3f\t%.4f\t%d\t%s\n",
			s.CompanyKey, s.RollingChunkCount, s.Relative, s.Boost, s.Runs,
			s.LastUpdated.Format(time.RFC3339))
	}
	return w.Flush()
}

func statsCommand(c *cli.Context) error {
	ing, err := openIngestor(c.Context, c)
	if err != nil {
		return err
	}
	defer ing.Close()

	stats, err := ing.States().Stats(c.Context)
	if err != nil {
		return err
	}
	runs, err := ing.States().RecentRuns(c.Context, c.Int("runs"))
	if err != nil {
		return err
	}
	return printStats(c.App.Writer, stats, runs)
}

func validateCommand(c *cli.Context) error {
	ing, err := openIngestor(c.Context, c)
	if err != nil {
		return err
	}
	defer ing.Close()

	limits, tokenizer, err := chunking(c)
	if err != nil {
		return err
	}
	validator, err := ing.NewValidator(validate.WithLimits(limits), validate.WithTokenizer(tokenizer))
	if err != nil {
		return err
	}
	report, err := validator.Run(c.Context)
	if err != nil {
		return err
	}
	if err := printValidation(c.App.Writer, report, c.Int("max-issues")); err != nil {
		return err
	}
	return report.Err()
}

func reembedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithAPIToken(c.String("api-token")),
	)
	ing, err := openIngestor(ctx, c, diligence.WithAIConfig(aiConfig))
	if err != nil {
		return err
	}
	defer ing.Close()

	config := reembed.DefaultConfig()
	config.BatchSize = c.Int("batch-size")
	config.ReportInterval = c.Int("report-interval")
	config.MaxAttempts = c.Int("max-retries")

	fmt.Fprintf(os.Stderr, "Reembedding with %s at %s\n", aiConfig.EmbeddingModel, aiConfig.EmbeddingHost)
	reembedder, err := ing.NewReembedder(reembed.WithConfig(config), reembed.WithProgress(os.Stderr))
	if err != nil {
		return err
	}
	res, err := reembedder.Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "Skipped %d documents\n", res.Skipped)
	}
	return nil
}

func reconstructCommand(c *cli.Context) error {
	ing, err := openIngestor(c.Context, c)
	if err != nil {
		return err
	}
	defer ing.Close()

	chunks, err := ing.Reconstruct(c.Context, c.String("source-id"))
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		fmt.Fprintf(c.App.Writer, "--- chunk %d (%s, %d tokens)\n%s\n",
			chunk.ChunkIndex, chunk.ChunkID, chunk.TokenCount, chunk.Text)
	}
	return nil
}

// chunking reads the chunk limits and tokenizer flags.
func chunking(c *cli.Context) (chunker.Config, chunker.Tokenizer, error) {
	tokenizer, err := chunker.NewTokenizer(c.String("tokenizer"))
	if err != nil {
		return chunker.Config{}, nil, err
	}
	return chunker.Config{
		MaxTokens:     c.Int("max-tokens"),
		MinTokens:     c.Int("min-tokens"),
		OverlapTokens: c.Int("overlap"),
	}, tokenizer, nil
}

// openIngestor opens the database named by --db, using the Postgres ledger
// when --postgres is set.
func openIngestor(ctx context.Context, c *cli.Context, opts ...diligence.Option) (*diligence.Ingestor, error) {
	var ledger *postgres.Ledger
	if url := c.String("postgres"); url != "" {
		var err error
		ledger, err = postgres.Connect(ctx, url)
		if err != nil {
			return nil, err
		}
		opts = append(opts, diligence.WithLedger(ledger))
	}
	opts = append(opts, diligence.WithLogger(slog.Default()))

	ing, err := diligence.New(c.String("db"), opts...)
	if err != nil {
		if ledger != nil {
			ledger.Close()
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return ing, nil
}

// readDocuments decodes one RawDocument per non-blank line of path.
func readDocuments(path string) ([]*core.RawDocument, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeDocuments(r)
}

func decodeDocuments(r io.Reader) ([]*core.RawDocument, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLineSize)

	var docs []*core.RawDocument
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		doc := &core.RawDocument{}
		if err := json.Unmarshal([]byte(line), doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return docs, nil
}

// serveMetrics starts a Prometheus endpoint on addr and returns the pipeline
// metrics registered on it.
func serveMetrics(addr string) (*ingestion.Metrics, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := ingestion.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	fmt.Fprintf(os.Stderr, "Serving metrics on %s/metrics\n", addr)

	return metrics, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printReport(w io.Writer, report core.Report) {
	for _, o := range report.Outcomes {
		switch o.Status {
		case core.OutcomeStored:
			fmt.Fprintf(w, "%s\t%s\t%d chunks\n", o.Status, o.SourceID, o.Chunks)
		case core.OutcomeFailed:
			kind := "retryable"
			if o.Permanent {
				kind = "permanent"
			}
			fmt.Fprintf(w, "%s\t%s\t%s: %s\n", o.Status, o.SourceID, kind, o.Reason)
		default:
			fmt.Fprintf(w, "%s\t%s\t%s\n", o.Status, o.SourceID, o.Reason)
		}
	}
}

func printStats(w io.Writer, stats state.Stats, runs []*core.PipelineRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "documents\t%d\n", stats.Documents)
	for stage := core.StageFetched; stage <= core.StageFailed; stage++ {
		if n := stats.ByStage[stage]; n > 0 {
			fmt.Fprintf(tw, "%s\t%d\n", strings.ToLower(stage.String()), n)
		}
	}
	fmt.Fprintf(tw, "retryable\t%d\n", stats.Retryable)
	fmt.Fprintf(tw, "exhausted\t%d\n", stats.Exhausted)
	fmt.Fprintf(tw, "leased\t%d\n", stats.Leased)
	fmt.Fprintf(tw, "chunks\t%d\n", stats.Chunks)
	if len(runs) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tDOCUMENTS\tSTORED\tSKIPPED\tFAILED\tCHUNKS")
		for _, run := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
				run.RunID, run.StartedAt.Format(time.RFC3339),
				run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
				run.Documents, run.Stored, run.Skipped, run.Failed, run.Chunks)
		}
	}
	return tw.Flush()
}

func printValidation(w io.Writer, report *validate.Report, maxIssues int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "documents\t%d\n", report.Documents)
	fmt.Fprintf(tw, "chunks\t%d\n", report.Chunks)
	d := report.Tokens
	fmt.Fprintf(tw, "tokens\tmin %d  p50 %d  p90 %d  p99 %d  max %d  mean %.1f  outliers %d\n",
		d.Min, d.P50, d.P90, d.P99, d.Max, d.Mean, d.Outliers)
	fmt.Fprintf(tw, "tables\t%d extracted, %d referenced, %d orphaned, %d chunks with tables\n",
		report.Tables.Tables, report.Tables.Referenced, report.Tables.Orphaned, report.Tables.ChunksWithTables)
	fmt.Fprintf(tw, "issues\t%d\n", len(report.Issues))

	issues := report.Issues
	if maxIssues > 0 && len(issues) > maxIssues {
		issues = issues[:maxIssues]
	}
	if len(issues) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "SOURCE\tCHUNK\tKIND\tDETAIL")
		for _, issue := range issues {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", issue.SourceID, issue.ChunkID, issue.Kind, issue.Detail)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(issues) < len(report.Issues) {
		fmt.Fprintf(w, "... %d more issues\n", len(report.Issues)-len(issues))
	}
	return nil
}
