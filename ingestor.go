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


// Package diligence wires the document ingestion core together: stores,
// AI provider, state and coverage trackers and the store coordinator.
package diligence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai/openai"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/coverage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ingestion"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/lock"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/reembed"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage/badger"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/store"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/tables"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/validate"
)

type Ingestor struct {
	stores      *badger.Stores
	ledger      storage.Ledger
	provider    ai.AIProvider
	states      *state.Tracker
	coverage    *coverage.Tracker
	coordinator *store.Coordinator
	logger      *slog.Logger
}

// Option configures an Ingestor.
type Option func(*options)

type options struct {
	aiConfig       *ai.Config
	provider       ai.AIProvider
	ledger         storage.Ledger
	locker         lock.Locker
	stateConfig    state.Config
	coverageConfig coverage.Config
	curve          coverage.BoostCurve
	storeConfig    store.Config
	logger         *slog.Logger
}

// WithAIConfig configures the OpenAI-compatible provider.
func WithAIConfig(config *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = config
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Ingestor takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithLedger keeps processing state and coverage in ledger instead of the
// embedded database, e.g. a shared Postgres ledger. The Ingestor closes it.
func WithLedger(ledger storage.Ledger) Option {
	return func(o *options) {
		o.ledger = ledger
	}
}

// WithLocker serializes per-company coverage updates with locker, e.g. a
// Redis locker shared by several ingestion processes.
func WithLocker(locker lock.Locker) Option {
	return func(o *options) {
		o.locker = locker
	}
}

// WithStateConfig sets lease and attempt limits.
func WithStateConfig(config state.Config) Option {
	return func(o *options) {
		o.stateConfig = config
	}
}

// WithCoverage sets the coverage window and boost curve.
// A nil curve keeps the default linear curve.
func WithCoverage(config coverage.Config, curve coverage.BoostCurve) Option {
	return func(o *options) {
		o.coverageConfig = config
		o.curve = curve
	}
}

// WithStoreConfig sets store write retries.
func WithStoreConfig(config store.Config) Option {
	return func(o *options) {
		o.storeConfig = config
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New opens the embedded database at filePath and wires every component
// on it. An empty filePath opens an in-memory database.
func New(filePath string, opts ...Option) (*Ingestor, error) {
	options := &options{
		aiConfig:       ai.DefaultConfig(),
		stateConfig:    state.DefaultConfig(),
		coverageConfig: coverage.DefaultConfig(),
		storeConfig:    store.DefaultConfig(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, filePath == "")
	if err != nil {
		return nil, err
	}
	stores := &badger.Stores{
		Backend: backend,
		Ledger:  badger.NewLedger(backend),
		Objects: badger.NewObjectStore(backend),
		Vectors: badger.NewVectorIndex(backend),
	}

	ing := &Ingestor{
		stores:   stores,
		ledger:   options.ledger,
		provider: options.provider,
		logger:   options.logger,
	}
	if ing.ledger == nil {
		ing.ledger = stores.Ledger
	}
	if err := ing.wire(options); err != nil {
		ing.Close()
		return nil, err
	}
	return ing, nil
}

func (ing *Ingestor) wire(o *options) error {
	if ing.provider == nil {
		provider, err := openai.NewProvider(o.aiConfig)
		if err != nil {
			return err
		}
		ing.provider = provider
	}

	var err error
	ing.states, err = state.NewTracker(ing.ledger,
		state.WithConfig(o.stateConfig),
		state.WithLogger(o.logger))
	if err != nil {
		return err
	}

	ing.coverage, err = coverage.NewTracker(ing.ledger,
		coverage.WithConfig(o.coverageConfig),
		coverage.WithCurve(o.curve),
		coverage.WithLocker(o.locker),
		coverage.WithLogger(o.logger))
	if err != nil {
		return err
	}

	ing.coordinator, err = store.NewCoordinator(ing.stores.Objects, ing.stores.Vectors, ing.states,
		store.WithConfig(o.storeConfig),
		store.WithLogger(o.logger))
	return err
}

// Close releases the provider, the ledger and the database.
func (ing *Ingestor) Close() error {
	var errs []error
	if ing.provider != nil {
		if err := ing.provider.Close(); err != nil {
			ing.logger.Error("error closing AI provider", "err", err)
		}
	}
	if ing.ledger != nil && ing.ledger != storage.Ledger(ing.stores.Ledger) {
		if err := ing.ledger.Close(); err != nil {
			ing.logger.Error("error closing ledger", "err", err)
			errs = append(errs, err)
		}
	}
	if err := ing.stores.Close(); err != nil {
		ing.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (ing *Ingestor) Ledger() storage.Ledger {
	return ing.ledger
}

func (ing *Ingestor) Objects() storage.ObjectStore {
	return ing.stores.Objects
}

func (ing *Ingestor) Vectors() storage.VectorIndex {
	return ing.stores.Vectors
}

func (ing *Ingestor) States() *state.Tracker {
	return ing.states
}

func (ing *Ingestor) Coverage() *coverage.Tracker {
	return ing.coverage
}

func (ing *Ingestor) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(ing.provider, ing.states, ing.coverage, ing.coordinator,
		append([]ingestion.Option{ingestion.WithLogger(ing.logger)}, opts...)...)
}

// NewReembedder regenerates the vectors of stored documents with the
// provider's current embedder.
func (ing *Ingestor) NewReembedder(opts ...reembed.Option) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(ing.states, ing.stores.Vectors, ing.provider.Embedder(),
		append([]reembed.Option{reembed.WithLogger(ing.logger)}, opts...)...)
}

// NewValidator checks the chunks of stored documents.
func (ing *Ingestor) NewValidator(opts ...validate.Option) (*validate.Validator, error) {
	return validate.New(ing.states, append([]validate.Option{validate.WithLogger(ing.logger)}, opts...)...)
}

// Reconstruct returns the segmented chunks of a document with every table
// placeholder and its summary replaced by the original table text.
func (ing *Ingestor) Reconstruct(ctx context.Context, sourceID string) ([]core.Chunk, error) {
	var (
		spans  []core.TableSpan
		chunks []core.Chunk
	)
	err := ing.ledger.View(ctx, func(tx storage.LedgerTx) error {
		if err := state.GetArtifact(tx, sourceID, storage.ArtifactTables, &spans); err != nil {
			return err
		}
		return state.GetArtifact(tx, sourceID, storage.ArtifactSegmented, &chunks)
	})
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s: %w", sourceID, err)
	}
	for i := range chunks {
		chunks[i].Text = tables.Reconstruct(chunks[i].Text, spans)
	}
	return chunks, nil
}
