package state

import (
	"context"
	"fmt"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/google/uuid"
)

// Stats summarizes the ledger.
type Stats struct {
	Documents int                `json:"documents"`
	ByStage   map[core.Stage]int `json:"by_stage"`
	// Retryable counts FAILED documents that will be retried.
	Retryable int `json:"retryable"`
	// Exhausted counts FAILED documents that will not be retried.
	Exhausted int `json:"exhausted"`
	// Leased counts documents under a live lease.
	Leased int `json:"leased"`
	// Chunks is the chunk count over STORED documents.
	Chunks int `json:"chunks"`
}

// Stats counts documents per stage and failure class.
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	states, err := t.List(ctx, core.StageUnknown)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	now := t.now().UTC()
	stats := Stats{ByStage: make(map[core.Stage]int)}
	for _, st := range states {
		stats.Documents++
		stats.ByStage[st.Stage]++
		if st.Leased("", now) {
			stats.Leased++
		}
		switch st.Stage {
		case core.StageStored:
			stats.Chunks += st.ChunkCount
		case core.StageFailed:
			if st.AttemptCount >= t.config.MaxAttempts {
				stats.Exhausted++
			} else {
				stats.Retryable++
			}
		}
	}
	return stats, nil
}

// RecordRun stores run, assigning a run id when it has none.
func (t *Tracker) RecordRun(ctx context.Context, run *core.PipelineRun) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	err := t.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.WriteRun(run)
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, most recently started first.
func (t *Tracker) RecentRuns(ctx context.Context, limit int) ([]*core.PipelineRun, error) {
	var runs []*core.PipelineRun
	err := t.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		runs, err = tx.ListRuns(limit)
		return err
	})
	return runs, err
}

// Now returns the tracker's clock reading.
func (t *Tracker) Now() time.Time {
	return t.now()
}
