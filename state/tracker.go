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


// Package state records where every document is in its processing
// lifecycle so that ingestion is idempotent and resumable.
//
// A worker claims a document before touching it. The claim is a lease held
// in the document's ledger record; a second worker that finds a live lease
// backs off. Each stage is committed together with the artifacts it
// produced, so a restarted run resumes from the last committed stage
// without repeating external calls.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Config controls leases and failure accounting.
type Config struct {
	// LeaseTTL is how long a claim stays exclusive without progress.
	LeaseTTL time.Duration `validate:"gt=0"`
	// MaxAttempts is the number of failures after which a document is
	// permanently FAILED.
	MaxAttempts int `validate:"gte=1"`
}

// DefaultConfig returns a 10 minute lease and three attempts.
func DefaultConfig() Config {
	return Config{
		LeaseTTL:    10 * time.Minute,
		MaxAttempts: 3,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Claim is a worker's lease on one document.
type Claim struct {
	SourceID   string
	CompanyKey string
	Owner      string
	// Stage is the last committed stage; work resumes after it.
	Stage core.Stage
	// Attempt counts previous failures of the document.
	Attempt int
	// PreviousChunkCount is the chunk count of the last STORED version,
	// used to delete chunks that a shorter new version no longer has.
	PreviousChunkCount int
}

// Tracker manages processing states in a ledger. It is safe for concurrent use.
type Tracker struct {
	ledger storage.Ledger
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(t *Tracker) {
		t.config = config
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
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.config.Validate(); err != nil {
		return nil, err
	}
	t.logger = t.logger.With("component", "state")
	return t, nil
}

// Ledger returns the underlying ledger.
func (t *Tracker) Ledger() storage.Ledger {
	return t.ledger
}

// Claim takes the lease on a document in a single conditional update.
//
// A new document starts at FETCHED. A STORED document with the same content
// hash returns ErrAlreadyStored; with a different hash it restarts at
// FETCHED. A live lease held by someone else returns ErrClaimed, and a
// document that already failed MaxAttempts times returns ErrExhausted
// unless its content changed.
func (t *Tracker) Claim(ctx context.Context, doc *core.RawDocument) (*Claim, error) {
	hash := doc.ContentHash()
	owner := uuid.NewString()
	var claim *Claim

	err := t.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		now := t.now().UTC()
		st, err := tx.ReadState(doc.SourceID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			st = &core.ProcessingState{
				SourceID:    doc.SourceID,
				Stage:       core.StageFetched,
				ResumeStage: core.StageFetched,
				ContentHash: hash,
			}
		case err != nil:
			return err
		}

		if st.Leased(owner, now) {
			return ErrClaimed
		}

		changed := st.ContentHash != hash
		switch {
		case st.Stage == core.StageStored && !changed:
			return ErrAlreadyStored
		case st.Stage == core.StageFailed && st.AttemptCount >= t.config.MaxAttempts && !changed:
			return ErrExhausted
		}
		if changed {
			if err := tx.DeleteArtifacts(doc.SourceID); err != nil {
				return err
			}
			t.logger.Info("content changed, restarting document", "source_id", doc.SourceID, "stage", st.Stage)
			st.Stage = core.StageFetched
			st.ResumeStage = core.StageFetched
			st.AttemptCount = 0
			st.LastError = ""
			st.ContentHash = hash
		}
		if st.Stage == core.StageFailed {
			st.Stage = st.ResumeStage
		}

		st.Owner = owner
		st.LeaseUntil = now.Add(t.config.LeaseTTL)
		st.UpdatedAt = now
		if err := tx.WriteState(st); err != nil {
			return err
		}

		claim = &Claim{
			SourceID:           doc.SourceID,
			CompanyKey:         doc.CompanyKey,
			Owner:              owner,
			Stage:              st.Stage,
			Attempt:            st.AttemptCount,
			PreviousChunkCount: st.ChunkCount,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", doc.SourceID, err)
	}
	t.logger.Debug("claimed document", "source_id", claim.SourceID, "stage", claim.Stage, "attempt", claim.Attempt)
	return claim, nil
}

// Advance moves the document to the stage after the claim's current one.
// fn runs first in the same transaction and may write the stage's
// artifacts or adjust the state record; the stage commits only if fn
// succeeds. The lease is renewed, or dropped when the document reaches
// STORED.
func (t *Tracker) Advance(ctx context.Context, claim *Claim, to core.Stage, fn func(tx storage.LedgerTx, st *core.ProcessingState) error) error {
	next, ok := claim.Stage.Next()
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, claim.Stage, to)
	}

	err := t.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		st, err := t.held(tx, claim)
		if err != nil {
			return err
		}
		if st.Stage != claim.Stage {
			return fmt.Errorf("%w: ledger at %s, claim at %s", ErrInvalidTransition, st.Stage, claim.Stage)
		}
		if fn != nil {
			if err := fn(tx, st); err != nil {
				return err
			}
		}

		now := t.now().UTC()
		st.Stage = to
		st.ResumeStage = to
		st.UpdatedAt = now
		if to == core.StageStored {
			st.Owner = ""
			st.LeaseUntil = time.Time{}
			st.LastError = ""
		} else {
			st.LeaseUntil = now.Add(t.config.LeaseTTL)
		}
		return tx.WriteState(st)
	})
	if err != nil {
		return fmt.Errorf("advance %s to %s: %w", claim.SourceID, to, err)
	}
	claim.Stage = to
	t.logger.Debug("advanced document", "source_id", claim.SourceID, "stage", to)
	return nil
}

// Fail records a failed attempt. The document moves to FAILED keeping the
// stage it resumes from, and the lease is dropped. It reports whether the
// document has now exhausted its attempts.
func (t *Tracker) Fail(ctx context.Context, claim *Claim, cause error) (bool, error) {
	var exhausted bool
	err := t.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		st, err := t.held(tx, claim)
		if err != nil {
			return err
		}
		if st.Stage != core.StageFailed {
			st.ResumeStage = st.Stage
		}
		st.Stage = core.StageFailed
		st.AttemptCount++
		if cause != nil {
			st.LastError = cause.Error()
		}
		st.Owner = ""
		st.LeaseUntil = time.Time{}
		st.UpdatedAt = t.now().UTC()
		exhausted = st.AttemptCount >= t.config.MaxAttempts
		return tx.WriteState(st)
	})
	if err != nil {
		return false, fmt.Errorf("fail %s: %w", claim.SourceID, err)
	}
	t.logger.Warn("document failed",
		"source_id", claim.SourceID,
		"resume_stage", claim.Stage,
		"exhausted", exhausted,
		"error", cause)
	return exhausted, nil
}

// Release drops the lease without changing the stage, so the next claim
// resumes where this one stopped. Releasing a lease that was lost is a no-op.
func (t *Tracker) Release(ctx context.Context, claim *Claim) error {
	err := t.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		st, err := t.held(tx, claim)
		if errors.Is(err, ErrLeaseLost) {
			return nil
		}
		if err != nil {
			return err
		}
		st.Owner = ""
		st.LeaseUntil = time.Time{}
		st.UpdatedAt = t.now().UTC()
		return tx.WriteState(st)
	})
	if err != nil {
		return fmt.Errorf("release %s: %w", claim.SourceID, err)
	}
	return nil
}

// ClaimStored takes the lease on a STORED document whose content hash is
// still contentHash, leaving its stage unchanged. While the lease is live a
// concurrent Claim of the same source returns ErrClaimed. Returns
// ErrNotStored when the document moved on or changed content.
func (t *Tracker) ClaimStored(ctx context.Context, sourceID, contentHash string) (*Claim, error) {
	owner := uuid.NewString()
	var claim *Claim

	err := t.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		now := t.now().UTC()
		st, err := tx.ReadState(sourceID)
		if err != nil {
			return err
		}
		if st.Leased(owner, now) {
			return ErrClaimed
		}
		if st.Stage != core.StageStored || st.ContentHash != contentHash {
			return ErrNotStored
		}
		st.Owner = owner
		st.LeaseUntil = now.Add(t.config.LeaseTTL)
		if err := tx.WriteState(st); err != nil {
			return err
		}
		claim = &Claim{
			SourceID:           sourceID,
			Owner:              owner,
			Stage:              st.Stage,
			Attempt:            st.AttemptCount,
			PreviousChunkCount: st.ChunkCount,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim stored %s: %w", sourceID, err)
	}
	return claim, nil
}

// Renew extends the lease of claim without changing the stage. fn, when
// not nil, runs in the same transaction after ownership is verified.
// Returns ErrLeaseLost if another worker took the document over.
func (t *Tracker) Renew(ctx context.Context, claim *Claim, fn func(tx storage.LedgerTx, st *core.ProcessingState) error) error {
	err := t.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		st, err := t.held(tx, claim)
		if err != nil {
			return err
		}
		if st.Stage != claim.Stage {
			return fmt.Errorf("%w: ledger at %s, claim at %s", ErrInvalidTransition, st.Stage, claim.Stage)
		}
		if fn != nil {
			if err := fn(tx, st); err != nil {
				return err
			}
		}
		st.LeaseUntil = t.now().UTC().Add(t.config.LeaseTTL)
		return tx.WriteState(st)
	})
	if err != nil {
		return fmt.Errorf("renew %s: %w", claim.SourceID, err)
	}
	return nil
}

// Get returns the processing state of a document.
func (t *Tracker) Get(ctx context.Context, sourceID string) (*core.ProcessingState, error) {
	var st *core.ProcessingState
	err := t.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		st, err = tx.ReadState(sourceID)
		return err
	})
	return st, err
}

// List returns the states in stage, or every state for core.StageUnknown.
func (t *Tracker) List(ctx context.Context, stage core.Stage) ([]*core.ProcessingState, error) {
	var states []*core.ProcessingState
	err := t.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		states, err = tx.ListStates(stage)
		return err
	})
	return states, err
}

// held reads the state and verifies the claim still owns it.
func (t *Tracker) held(tx storage.LedgerTx, claim *Claim) (*core.ProcessingState, error) {
	st, err := tx.ReadState(claim.SourceID)
	if err != nil {
		return nil, err
	}
	if st.Owner != claim.Owner {
		return nil, ErrLeaseLost
	}
	return st, nil
}
