package ingestion

import (
	"context"
	"fmt"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/store"
)

// storeProcessor persists embedded chunks; the coordinator commits STORED.
type storeProcessor struct {
	states      *state.Tracker
	coordinator *store.Coordinator
}

var _ processor = (*storeProcessor)(nil)

func (sp *storeProcessor) stage() core.Stage {
	return core.StageStored
}

func (sp *storeProcessor) process(ctx context.Context, r *run) error {
	if r.embedded == nil {
		if err := sp.states.LoadArtifact(ctx, r.doc.SourceID, storage.ArtifactEmbedded, &r.embedded); err != nil {
			return fmt.Errorf("load embedded chunks: %w", err)
		}
	}
	_, err := sp.coordinator.Persist(ctx, r.claim, r.embedded)
	return err
}
