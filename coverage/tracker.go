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


// Package coverage tracks how many chunks each company has contributed and
// turns under-coverage into a retrieval boost.
//
// Every ingestion run records its chunk count in the company's rolling
// window. The company's relative coverage is its rolling count divided by
// the median rolling count over all companies, and a BoostCurve maps that
// ratio to the BoostFactor stamped on the run's chunks. Companies at or
// above the median get exactly 1.0.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/lock"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
)

// Tracker maintains coverage records. It is safe for concurrent use.
type Tracker struct {
	ledger storage.Ledger
	config Config
	curve  BoostCurve
	locker lock.Locker
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig replaces the default window.
func WithConfig(config Config) Option {
	return func(t *Tracker) {
		t.config = config
	}
}

// WithCurve selects the boost curve. Default is LinearCurve{MaxBoost: 0.3}.
func WithCurve(curve BoostCurve) Option {
	return func(t *Tracker) {
		if curve != nil {
			t.curve = curve
		}
	}
}

// WithLocker sets the per-company locker. Default is an in-process lock.Keyed;
// use a shared locker when several processes ingest into one ledger.
func WithLocker(locker lock.Locker) Option {
	return func(t *Tracker) {
		if locker != nil {
			t.locker = locker
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a Tracker over ledger.
func NewTracker(ledger storage.Ledger, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		ledger: ledger,
		config: DefaultConfig(),
		curve:  LinearCurve{MaxBoost: 0.3},
		locker: lock.NewKeyed(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.config.Validate(); err != nil {
		return nil, err
	}
	t.curve = clamped{curve: t.curve}
	t.logger = t.logger.With("component", "coverage")
	return t, nil
}

// Lock serializes coverage updates of one company. Callers hold it around
// the ledger transaction that calls Annotate.
func (t *Tracker) Lock(ctx context.Context, companyKey string) (func() error, error) {
	if companyKey == "" {
		return nil, ErrEmptyCompanyKey
	}
	return t.locker.Lock(ctx, "coverage:"+companyKey)
}

// Annotate records the run of sourceID in the company's rolling window and
// returns copies of chunks carrying the company's new boost factor. It runs
// inside tx so the coverage update commits together with the chunks.
// Only the company's own record is read through tx; the counts of other
// companies come from a separate snapshot, so documents of different
// companies never conflict with each other.
//
// A source that is ingested again replaces its previous contribution rather
// than adding to it.
func (t *Tracker) Annotate(ctx context.Context, tx storage.LedgerTx, companyKey, sourceID string, chunks []core.Chunk) ([]core.Chunk, error) {
	if companyKey == "" {
		return nil, ErrEmptyCompanyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := t.now().UTC()

	record, err := tx.ReadCoverage(companyKey)
	if errors.Is(err, storage.ErrNotFound) {
		record = &core.CoverageRecord{CompanyKey: companyKey}
	} else if err != nil {
		return nil, fmt.Errorf("read coverage %s: %w", companyKey, err)
	}

	record.Entries = slices.DeleteFunc(record.Entries, func(e core.CoverageEntry) bool {
		return e.SourceID == sourceID
	})
	record.Entries = append(record.Entries, core.CoverageEntry{
		RecordedAt: now,
		SourceID:   sourceID,
		Chunks:     len(chunks),
	})
	t.prune(record, now)
	record.LastUpdated = now

	if err := tx.WriteCoverage(record); err != nil {
		return nil, fmt.Errorf("write coverage %s: %w", companyKey, err)
	}

	counts, err := t.otherCounts(ctx, companyKey, now)
	if err != nil {
		return nil, err
	}
	counts = append(counts, record.RollingChunkCount)

	med := median(counts)
	boost := t.boost(record.RollingChunkCount, med)

	out := make([]core.Chunk, len(chunks))
	for i, c := range chunks {
		c.BoostFactor = boost
		out[i] = c
	}

	t.logger.Debug("annotated chunks",
		"company", companyKey,
		"source_id", sourceID,
		"rolling_count", record.RollingChunkCount,
		"median", med,
		"boost", boost)
	return out, nil
}

// Standing is the current coverage position of a company.
type Standing struct {
	CompanyKey        string    `json:"company_key"`
	RollingChunkCount int       `json:"rolling_chunk_count"`
	Relative          float64   `json:"relative"`
	Boost             float64   `json:"boost"`
	LastUpdated       time.Time `json:"last_updated"`
	Runs              int       `json:"runs"`
}

// Snapshot returns the standing of every company, ordered by company key.
// Counts are evaluated against the window at the current time.
func (t *Tracker) Snapshot(ctx context.Context) ([]Standing, error) {
	var records []*core.CoverageRecord
	err := t.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		records, err = tx.ListCoverage()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot coverage: %w", err)
	}

	now := t.now().UTC()
	counts := make([]int, len(records))
	for i, r := range records {
		counts[i] = t.windowed(r, now)
	}
	med := median(counts)

	standings := make([]Standing, len(records))
	for i, r := range records {
		standings[i] = Standing{
			CompanyKey:        r.CompanyKey,
			RollingChunkCount: counts[i],
			Relative:          relative(counts[i], med),
			Boost:             t.boost(counts[i], med),
			LastUpdated:       r.LastUpdated,
			Runs:              len(r.Entries),
		}
	}
	return standings, nil
}

// otherCounts returns the rolling counts of every company except companyKey.
func (t *Tracker) otherCounts(ctx context.Context, companyKey string, now time.Time) ([]int, error) {
	var records []*core.CoverageRecord
	err := t.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		records, err = tx.ListCoverage()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list coverage: %w", err)
	}
	counts := make([]int, 0, len(records)+1)
	for _, r := range records {
		if r.CompanyKey != companyKey {
			counts = append(counts, t.windowed(r, now))
		}
	}
	return counts, nil
}

func (t *Tracker) boost(count int, med float64) float64 {
	return t.curve.Boost(relative(count, med))
}

// prune drops entries outside the window and recomputes the rolling count.
func (t *Tracker) prune(record *core.CoverageRecord, now time.Time) {
	slices.SortStableFunc(record.Entries, func(a, b core.CoverageEntry) int {
		return a.RecordedAt.Compare(b.RecordedAt)
	})
	if t.config.WindowAge > 0 {
		cutoff := now.Add(-t.config.WindowAge)
		record.Entries = slices.DeleteFunc(record.Entries, func(e core.CoverageEntry) bool {
			return e.RecordedAt.Before(cutoff)
		})
	}
	if n := t.config.WindowRuns; n > 0 && len(record.Entries) > n {
		record.Entries = slices.Clone(record.Entries[len(record.Entries)-n:])
	}
	record.RollingChunkCount = 0
	for _, e := range record.Entries {
		record.RollingChunkCount += e.Chunks
	}
}

// windowed returns the rolling count of a record as of now without
// modifying it.
func (t *Tracker) windowed(record *core.CoverageRecord, now time.Time) int {
	cp := *record
	cp.Entries = slices.Clone(record.Entries)
	t.prune(&cp, now)
	return cp.RollingChunkCount
}

func relative(count int, med float64) float64 {
	if med <= 0 {
		return 1
	}
	return float64(count) / med
}

// median of counts; the mean of the two middle values for an even length.
func median(counts []int) float64 {
	if len(counts) == 0 {
		return 0
	}
	sorted := slices.Clone(counts)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}
