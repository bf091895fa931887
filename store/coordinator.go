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


// Package store writes embedded chunks to the object store and the vector
// index and then marks the document STORED.
//
// Writes are ordered: a chunk's object document first, its vector second,
// and the ledger transition last. A crash at any point leaves the ledger
// below STORED, and since every write is an idempotent upsert keyed by the
// chunk id, replaying the whole document converges to the same state.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/retry"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

// Config controls store write retries.
type Config struct {
	// MaxAttempts is the number of tries per store write.
	MaxAttempts int `validate:"gte=1,lte=10"`
	// BaseDelay is the backoff after the first failed write.
	BaseDelay time.Duration `validate:"gte=0"`
	// CallTimeout bounds a single store call.
	CallTimeout time.Duration `validate:"gt=0"`
	// Concurrency bounds the chunks written in parallel.
	Concurrency int `validate:"gte=1"`
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		CallTimeout: 30 * time.Second,
		Concurrency: 8,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	return nil
}

// Result counts what Persist did.
type Result struct {
	// Written is the number of chunk objects written.
	Written int
	// Unchanged is the number of chunk objects skipped because the stored
	// copy has the same content hash.
	Unchanged int
	// Vectors is the number of vectors upserted.
	Vectors int
	// Deleted is the number of stale chunks removed from both stores.
	Deleted int
}

// Coordinator persists a document's chunks across the stores.
// It is safe for concurrent use.
type Coordinator struct {
	objects storage.ObjectStore
	vectors storage.VectorIndex
	states  *state.Tracker
	config  Config
	logger  *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(c *Coordinator) {
		c.config = config
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(objects storage.ObjectStore, vectors storage.VectorIndex, states *state.Tracker, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		objects: objects,
		vectors: vectors,
		states:  states,
		config:  DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	c.logger = c.logger.With("component", "store")
	return c, nil
}

func (c *Coordinator) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.config.MaxAttempts,
		BaseDelay:      c.config.BaseDelay,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: c.config.CallTimeout,
	}
}

// Persist writes every chunk to the object store and the vector index,
// removes chunks left over from a longer previous version, and advances
// the claim from EMBEDDED to STORED. Failed chunks do not stop the others;
// if any failed, Persist returns a *PartialFailureError and the ledger is
// not advanced.
func (c *Coordinator) Persist(ctx context.Context, claim *state.Claim, chunks []core.EmbeddedChunk) (Result, error) {
	var (
		res    Result
		mu     sync.Mutex
		failed []string
		errs   []error
	)
	policy := c.policy()

	g := new(errgroup.Group)
	g.SetLimit(c.config.Concurrency)
	for i := range chunks {
		ec := &chunks[i]
		g.Go(func() error {
			written, err := c.persistChunk(ctx, policy, ec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, ec.Chunk.ChunkID)
				errs = append(errs, fmt.Errorf("chunk %s: %w", ec.Chunk.ChunkID, err))
				return nil
			}
			if written {
				res.Written++
			} else {
				res.Unchanged++
			}
			res.Vectors++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		c.logger.Warn("chunks not persisted", "source_id", claim.SourceID, "failed", len(failed), "total", len(chunks))
		return res, &PartialFailureError{
			SourceID:       claim.SourceID,
			FailedChunkIDs: failed,
			Err:            errors.Join(errs...),
		}
	}

	deleted, err := c.deleteStale(ctx, policy, claim.SourceID, len(chunks), claim.PreviousChunkCount)
	res.Deleted = deleted
	if err != nil {
		return res, err
	}

	err = c.states.Advance(ctx, claim, core.StageStored, func(tx storage.LedgerTx, st *core.ProcessingState) error {
		st.ChunkCount = len(chunks)
		return nil
	})
	if err != nil {
		return res, err
	}

	c.logger.Info("document stored",
		"source_id", claim.SourceID,
		"chunks", len(chunks),
		"written", res.Written,
		"unchanged", res.Unchanged,
		"deleted", res.Deleted)
	return res, nil
}

// persistChunk writes the chunk object unless an identical copy exists,
// then upserts its vector. It reports whether the object was written.
func (c *Coordinator) persistChunk(ctx context.Context, policy retry.Policy, ec *core.EmbeddedChunk) (bool, error) {
	chunk := &ec.Chunk
	data, err := storage.MarshalChunkObject(chunk)
	if err != nil {
		return false, err
	}
	key := storage.ChunkObjectKey(chunk.SourceID, chunk.ChunkID)
	hash := core.ContentHash(data)

	written := false
	err = policy.Do(ctx, func(ctx context.Context) error {
		info, err := c.objects.Stat(ctx, key)
		switch {
		case err == nil && info.ContentHash == hash:
			return nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return err
		}
		if err := c.objects.Put(ctx, key, data); err != nil {
			if errors.Is(err, storage.ErrEmptyKey) {
				return retry.Permanent(err)
			}
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("put object %s: %w", key, err)
	}

	record := storage.ChunkVectorRecord(ec)
	err = policy.Do(ctx, func(ctx context.Context) error {
		return c.vectors.Upsert(ctx, record)
	})
	if err != nil {
		return written, fmt.Errorf("upsert vector %s: %w", chunk.ChunkID, err)
	}
	return written, nil
}

// deleteStale removes chunks with index in [from, to) from both stores.
func (c *Coordinator) deleteStale(ctx context.Context, policy retry.Policy, sourceID string, from, to int) (int, error) {
	deleted := 0
	for i := from; i < to; i++ {
		id := core.ChunkID(sourceID, i)
		key := storage.ChunkObjectKey(sourceID, id)
		err := policy.Do(ctx, func(ctx context.Context) error {
			if err := c.vectors.Delete(ctx, id); err != nil {
				return err
			}
			return c.objects.Delete(ctx, key)
		})
		if err != nil {
			return deleted, fmt.Errorf("delete stale chunk %s: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}
