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


package badger

import (
	"context"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/dgraph-io/badger/v4"
)

// Ledger implements storage.Ledger for BadgerDB.
// Badger transactions are serializable snapshot transactions, so a
// read-modify-write in Update is a conditional update: a concurrent commit
// to any key read by fn makes the commit fail and fn is replayed.
type Ledger struct {
	backend *Backend
}

var _ storage.Ledger = (*Ledger)(nil)

// NewLedger creates a ledger on backend.
func NewLedger(backend *Backend) *Ledger {
	return &Ledger{backend: backend}
}

// Update runs fn in a read-write transaction.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	return l.backend.update(ctx, func(tx *badger.Txn) error {
		return fn(&ledgerTx{tx: tx})
	})
}

// View runs fn in a read-only transaction.
func (l *Ledger) View(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	return l.backend.view(ctx, func(tx *badger.Txn) error {
		return fn(&ledgerTx{tx: tx})
	})
}

// Close is a no-op; the backend is closed by its owner.
func (l *Ledger) Close() error {
	return nil
}

type ledgerTx struct {
	tx *badger.Txn
}

func (t *ledgerTx) ReadState(sourceID string) (*core.ProcessingState, error) {
	val, err := get(t.tx, makeStateKey(sourceID))
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalProcessingState(val)
}

func (t *ledgerTx) WriteState(state *core.ProcessingState) error {
	if state.SourceID == "" {
		return storage.ErrEmptyKey
	}
	return t.tx.Set(makeStateKey(state.SourceID), storage.MarshalProcessingState(state))
}

func (t *ledgerTx) ListStates(stage core.Stage) ([]*core.ProcessingState, error) {
	var states []*core.ProcessingState
	err := scan(t.tx, []byte(statePrefix), func(_, val []byte) error {
		state, err := storage.UnmarshalProcessingState(val)
		if err != nil {
			return err
		}
		if stage == core.StageUnknown || state.Stage == stage {
			states = append(states, state)
		}
		return nil
	})
	return states, err
}

func (t *ledgerTx) ReadCoverage(companyKey string) (*core.CoverageRecord, error) {
	val, err := get(t.tx, makeCoverageKey(companyKey))
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalCoverageRecord(val)
}

func (t *ledgerTx) WriteCoverage(record *core.CoverageRecord) error {
	if record.CompanyKey == "" {
		return storage.ErrEmptyKey
	}
	return t.tx.Set(makeCoverageKey(record.CompanyKey), storage.MarshalCoverageRecord(record))
}

func (t *ledgerTx) ListCoverage() ([]*core.CoverageRecord, error) {
	var records []*core.CoverageRecord
	err := scan(t.tx, []byte(coveragePrefix), func(_, val []byte) error {
		record, err := storage.UnmarshalCoverageRecord(val)
		if err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	return records, err
}

func (t *ledgerTx) PutArtifact(sourceID string, kind storage.ArtifactKind, data []byte) error {
	if sourceID == "" {
		return storage.ErrEmptyKey
	}
	return t.tx.Set(makeArtifactKey(sourceID, string(kind)), data)
}

func (t *ledgerTx) GetArtifact(sourceID string, kind storage.ArtifactKind) ([]byte, error) {
	return get(t.tx, makeArtifactKey(sourceID, string(kind)))
}

func (t *ledgerTx) DeleteArtifacts(sourceID string) error {
	for _, key := range scanKeys(t.tx, makePartialArtifactKey(sourceID)) {
		if err := t.tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (t *ledgerTx) WriteRun(run *core.PipelineRun) error {
	if run.RunID == "" {
		return storage.ErrEmptyKey
	}
	return t.tx.Set(makeRunKey(run), storage.MarshalPipelineRun(run))
}

func (t *ledgerTx) ListRuns(limit int) ([]*core.PipelineRun, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(runPrefix)
	opts.Reverse = true
	iter := t.tx.NewIterator(opts)
	defer iter.Close()

	var runs []*core.PipelineRun
	for iter.Seek(append([]byte(runPrefix), 0xff)); iter.Valid() && len(runs) < limit; iter.Next() {
		val, err := iter.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		run, err := storage.UnmarshalPipelineRun(val)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
