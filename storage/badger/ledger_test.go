package badger

import (
	"context"
	"testing"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func TestLedger_StateReadWrite(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	state := &core.ProcessingState{
		SourceID:    "sec:AAPL:1",
		Stage:       core.StageSegmented,
		ContentHash: "abc",
		Owner:       "w1",
		LeaseUntil:  now.Add(time.Minute),
		UpdatedAt:   now,
	}
	require.NoError(t, stores.Ledger.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.WriteState(state)
	}))

	var got *core.ProcessingState
	require.NoError(t, stores.Ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		got, err = tx.ReadState("sec:AAPL:1")
		return err
	}))
	assert.Equal(t, state, got)
}

func TestLedger_WriteStateRequiresSourceID(t *testing.T) {
	stores := newTestStores(t)

	err := stores.Ledger.Update(context.Background(), func(tx storage.LedgerTx) error {
		return tx.WriteState(&core.ProcessingState{})
	})
	assert.ErrorIs(t, err, storage.ErrEmptyKey)
}

func TestLedger_ListStates(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, stores.Ledger.Update(ctx, func(tx storage.LedgerTx) error {
		for _, s := range []*core.ProcessingState{
			{SourceID: "c", Stage: core.StageStored},
			{SourceID: "a", Stage: core.StageFailed},
			{SourceID: "b", Stage: core.StageStored},
		} {
			if err := tx.WriteState(s); err != nil {
				return err
			}
		}
		return nil
	}))

	var all, stored []*core.ProcessingState
	require.NoError(t, stores.Ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		if all, err = tx.ListStates(core.StageUnknown); err != nil {
			return err
		}
		stored, err = tx.ListStates(core.StageStored)
		return err
	}))

	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].SourceID)
	require.Len(t, stored, 2)
	assert.Equal(t, "b", stored[0].SourceID)
	assert.Equal(t, "c", stored[1].SourceID)
}

func TestLedger_Coverage(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, stores.Ledger.Update(ctx, func(tx storage.LedgerTx) error {
		if err := tx.WriteCoverage(&core.CoverageRecord{CompanyKey: "MSFT", RollingChunkCount: 4, LastUpdated: at}); err != nil {
			return err
		}
		return tx.WriteCoverage(&core.CoverageRecord{
			CompanyKey:        "AAPL",
			RollingChunkCount: 7,
			LastUpdated:       at,
			Entries:           []core.CoverageEntry{{RecordedAt: at, SourceID: "doc", Chunks: 7}},
		})
	}))

	require.NoError(t, stores.Ledger.View(ctx, func(tx storage.LedgerTx) error {
		record, err := tx.ReadCoverage("AAPL")
		require.NoError(t, err)
		assert.Equal(t, 7, record.RollingChunkCount)
		require.Len(t, record.Entries, 1)
		assert.Equal(t, "doc", record.Entries[0].SourceID)

		_, err = tx.ReadCoverage("GOOG")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		records, err := tx.ListCoverage()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "AAPL", records[0].CompanyKey)
		assert.Equal(t, "MSFT", records[1].CompanyKey)
		return nil
	}))
}

func TestLedger_Artifacts(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, stores.Ledger.Update(ctx, func(tx storage.LedgerTx) error {
		if err := tx.PutArtifact("doc", storage.ArtifactSegmented, []byte("seg")); err != nil {
			return err
		}
		if err := tx.PutArtifact("doc", storage.ArtifactEmbedded, []byte("emb")); err != nil {
			return err
		}
		return tx.PutArtifact("doc2", storage.ArtifactSegmented, []byte("other"))
	}))

	require.NoError(t, stores.Ledger.Update(ctx, func(tx storage.LedgerTx) error {
		data, err := tx.GetArtifact("doc", storage.ArtifactEmbedded)
		require.NoError(t, err)
		assert.Equal(t, []byte("emb"), data)
		return tx.DeleteArtifacts("doc")
	}))

	require.NoError(t, stores.Ledger.View(ctx, func(tx storage.LedgerTx) error {
		_, err := tx.GetArtifact("doc", storage.ArtifactSegmented)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = tx.GetArtifact("doc", storage.ArtifactEmbedded)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		data, err := tx.GetArtifact("doc2", storage.ArtifactSegmented)
		require.NoError(t, err)
		assert.Equal(t, []byte("other"), data)
		return nil
	}))
}

func TestLedger_Runs(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, stores.Ledger.Update(ctx, func(tx storage.LedgerTx) error {
		for i, id := range []string{"run-b", "run-a", "run-c"} {
			run := &core.PipelineRun{
				RunID:      id,
				StartedAt:  start.Add(time.Duration(i) * time.Hour),
				FinishedAt: start.Add(time.Duration(i)*time.Hour + time.Minute),
				Documents:  i + 1,
				Stored:     i,
			}
			if err := tx.WriteRun(run); err != nil {
				return err
			}
		}
		return nil
	}))

	var runs []*core.PipelineRun
	require.NoError(t, stores.Ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		runs, err = tx.ListRuns(2)
		return err
	}))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].RunID)
	assert.Equal(t, "run-a", runs[1].RunID)
	assert.Equal(t, 3, runs[0].Documents)
	assert.Equal(t, start.Add(2*time.Hour+time.Minute), runs[0].FinishedAt)

	err := stores.Ledger.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.WriteRun(&core.PipelineRun{})
	})
	assert.ErrorIs(t, err, storage.ErrEmptyKey)
}
