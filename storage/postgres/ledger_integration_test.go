//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ingest",
			"POSTGRES_PASSWORD": "ingest",
			"POSTGRES_DB":       "ingest",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err, "failed to start postgres")
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)
	host, err := pg.Host(ctx)
	require.NoError(t, err)
	return fmt.Sprintf("postgres://ingest:ingest@%s:%s/ingest?sslmode=disable", host, port.Port())
}

func TestLedger_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	ledger, err := Connect(ctx, startPostgres(t, ctx))
	require.NoError(t, err)
	defer ledger.Close()

	// Migrate is idempotent.
	require.NoError(t, ledger.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	state := &core.ProcessingState{
		SourceID:    "sec:AAPL:1",
		Stage:       core.StageEmbedded,
		ResumeStage: core.StageEmbedded,
		ContentHash: "hash",
		Owner:       "w1",
		LeaseUntil:  now.Add(time.Minute),
		ChunkCount:  3,
		UpdatedAt:   now,
	}

	t.Run("state", func(t *testing.T) {
		require.NoError(t, ledger.Update(ctx, func(tx storage.LedgerTx) error {
			return tx.WriteState(state)
		}))
		require.NoError(t, ledger.View(ctx, func(tx storage.LedgerTx) error {
			got, err := tx.ReadState(state.SourceID)
			require.NoError(t, err)
			assert.Equal(t, state, got)

			_, err = tx.ReadState("missing")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			embedded, err := tx.ListStates(core.StageEmbedded)
			require.NoError(t, err)
			assert.Len(t, embedded, 1)
			return nil
		}))
	})

	t.Run("artifacts", func(t *testing.T) {
		require.NoError(t, ledger.Update(ctx, func(tx storage.LedgerTx) error {
			if err := tx.PutArtifact("doc", storage.ArtifactSegmented, []byte(`[]`)); err != nil {
				return err
			}
			return tx.PutArtifact("doc", storage.ArtifactSegmented, []byte(`[{"chunk_id":"a"}]`))
		}))
		require.NoError(t, ledger.Update(ctx, func(tx storage.LedgerTx) error {
			data, err := tx.GetArtifact("doc", storage.ArtifactSegmented)
			require.NoError(t, err)
			assert.JSONEq(t, `[{"chunk_id":"a"}]`, string(data))
			return tx.DeleteArtifacts("doc")
		}))
		err := ledger.View(ctx, func(tx storage.LedgerTx) error {
			_, err := tx.GetArtifact("doc", storage.ArtifactSegmented)
			return err
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("runs", func(t *testing.T) {
		require.NoError(t, ledger.Update(ctx, func(tx storage.LedgerTx) error {
			for i, id := range []string{"run-1", "run-2"} {
				run := &core.PipelineRun{
					RunID:      id,
					StartedAt:  now.Add(time.Duration(i) * time.Hour),
					FinishedAt: now.Add(time.Duration(i)*time.Hour + time.Minute),
					Documents:  2,
					Stored:     1,
					Failed:     1,
					Chunks:     7,
				}
				if err := tx.WriteRun(run); err != nil {
					return err
				}
			}
			return nil
		}))
		require.NoError(t, ledger.View(ctx, func(tx storage.LedgerTx) error {
			runs, err := tx.ListRuns(10)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "run-2", runs[0].RunID)
			assert.Equal(t, now.Add(time.Hour+time.Minute), runs[0].FinishedAt)
			assert.Equal(t, 7, runs[1].Chunks)
			return nil
		}))
	})

	t.Run("concurrent coverage updates", func(t *testing.T) {
		const workers = 6
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := ledger.Update(ctx, func(tx storage.LedgerTx) error {
					record, err := tx.ReadCoverage("MSFT")
					if errors.Is(err, storage.ErrNotFound) {
						record = &core.CoverageRecord{CompanyKey: "MSFT"}
					} else if err != nil {
						return err
					}
					record.RollingChunkCount += 2
					record.Entries = append(record.Entries, core.CoverageEntry{
						RecordedAt: now,
						SourceID:   fmt.Sprintf("doc-%d", i),
						Chunks:     2,
					})
					record.LastUpdated = now
					return tx.WriteCoverage(record)
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		require.NoError(t, ledger.View(ctx, func(tx storage.LedgerTx) error {
			record, err := tx.ReadCoverage("MSFT")
			require.NoError(t, err)
			assert.Equal(t, 2*workers, record.RollingChunkCount)
			assert.Len(t, record.Entries, workers)

			all, err := tx.ListCoverage()
			require.NoError(t, err)
			assert.Len(t, all, 1)
			return nil
		}))
	})
}
