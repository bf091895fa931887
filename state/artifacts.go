package state

import (
	"context"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
)

// PutArtifact encodes v and stores it as an artifact of sourceID within tx.
func PutArtifact(tx storage.LedgerTx, sourceID string, kind storage.ArtifactKind, v any) error {
	data, err := storage.MarshalArtifact(v)
	if err != nil {
		return err
	}
	return tx.PutArtifact(sourceID, kind, data)
}

// GetArtifact decodes the artifact of sourceID into v within tx.
// Returns storage.ErrNotFound if it doesn't exist.
func GetArtifact(tx storage.LedgerTx, sourceID string, kind storage.ArtifactKind, v any) error {
	data, err := tx.GetArtifact(sourceID, kind)
	if err != nil {
		return err
	}
	return storage.UnmarshalArtifact(data, v)
}

// LoadArtifact decodes the artifact of sourceID into v.
func (t *Tracker) LoadArtifact(ctx context.Context, sourceID string, kind storage.ArtifactKind, v any) error {
	return t.ledger.View(ctx, func(tx storage.LedgerTx) error {
		return GetArtifact(tx, sourceID, kind, v)
	})
}
