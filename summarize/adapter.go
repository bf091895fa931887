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


// Package summarize turns extracted tables into short text substitutes.
//
// The Adapter calls an ai.TableSummarizer once per table with bounded retries
// and a per-call timeout. When every attempt fails the table degrades to a
// deterministic fallback summary instead of failing the document. Only the
// end of the caller's context aborts summarization.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Adapter wraps a TableSummarizer with retry, rate limiting and fallback.
// It is safe for concurrent use.
type Adapter struct {
	summarizer ai.TableSummarizer
	config     Config
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(a *Adapter) {
		a.config = config
	}
}

// WithRateLimiter shares limiter across every call made by the adapter.
// The limiter is usually shared by every document of a batch.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(a *Adapter) {
		a.limiter = limiter
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// PerMinute builds a limiter allowing rpm requests per minute with a burst of one.
func PerMinute(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}

// NewAdapter creates a summarizer adapter.
func NewAdapter(summarizer ai.TableSummarizer, opts ...Option) (*Adapter, error) {
	if summarizer == nil {
		return nil, ErrNilSummarizer
	}
	a := &Adapter{
		summarizer: summarizer,
		config:     DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.config.Validate(); err != nil {
		return nil, err
	}
	a.logger = a.logger.With("component", "table-summarizer")
	return a, nil
}

// SummarizeAll returns one summary per span, in span order.
// Summaries are never empty; spans whose summarization failed carry a
// fallback summary with Fallback set. Waiting on the rate limiter is not
// part of any call's timeout. An error is returned only when ctx ends
// before every span is summarized, or when the limiter cannot grant a call
// before ctx's deadline (ErrRateLimited).
func (a *Adapter) SummarizeAll(ctx context.Context, tc ai.TableContext, spans []core.TableSpan) ([]core.TableSummary, error) {
	if len(spans) == 0 {
		return nil, nil
	}

	summaries := make([]core.TableSummary, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)
	for i, span := range spans {
		g.Go(func() error {
			summary, err := a.summarize(gctx, tc, span)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fallbacks := 0
	for _, s := range summaries {
		if s.Fallback {
			fallbacks++
		}
	}
	a.logger.Debug("summarized tables", "tables", len(spans), "fallbacks", fallbacks)
	return summaries, nil
}

func (a *Adapter) summarize(ctx context.Context, tc ai.TableContext, span core.TableSpan) (core.TableSummary, error) {
	summary := core.TableSummary{
		PlaceholderID:  span.PlaceholderID,
		SourceTableRef: span.PlaceholderID,
	}

	policy := retry.Policy{
		MaxAttempts:    a.config.MaxAttempts,
		BaseDelay:      a.config.BaseDelay,
		AttemptTimeout: a.config.CallTimeout,
	}
	if a.limiter != nil {
		policy.Wait = a.limiter.Wait
	}
	var text string
	err := policy.Do(ctx, func(callCtx context.Context) error {
		out, err := a.summarizer.SummarizeTable(callCtx, span.RawTableText, tc)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return ErrEmptySummary
		}
		text = out
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.TableSummary{}, ctxErr
	}
	if errors.Is(err, retry.ErrWaitFailed) {
		return core.TableSummary{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	if err != nil {
		a.logger.Warn("summarization failed, using fallback",
			"placeholder_id", span.PlaceholderID,
			"attempts", a.config.MaxAttempts,
			"error", err)
		summary.SummaryText = Fallback(tc.Section, span.RawTableText, a.config.FallbackChars)
		summary.Fallback = true
		return summary, nil
	}

	summary.SummaryText = truncate(text, a.config.MaxSummaryChars)
	return summary, nil
}
