package badger

import (
	"context"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/dgraph-io/badger/v4"
)

// VectorIndex implements storage.VectorIndex for BadgerDB.
// It is a plain key-value index; similarity search happens downstream.
type VectorIndex struct {
	backend *Backend
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex creates a vector index on backend.
func NewVectorIndex(backend *Backend) *VectorIndex {
	return &VectorIndex{backend: backend}
}

// Upsert inserts or replaces records by id, all in one transaction.
func (v *VectorIndex) Upsert(ctx context.Context, records ...storage.VectorRecord) error {
	for _, record := range records {
		if record.ID == "" {
			return storage.ErrEmptyKey
		}
	}
	return v.backend.update(ctx, func(tx *badger.Txn) error {
		for i := range records {
			if err := tx.Set(makeVectorKey(records[i].ID), storage.MarshalVectorRecord(&records[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the record with the given id.
func (v *VectorIndex) Get(ctx context.Context, id string) (storage.VectorRecord, error) {
	var record storage.VectorRecord
	err := v.backend.view(ctx, func(tx *badger.Txn) error {
		val, err := get(tx, makeVectorKey(id))
		if err != nil {
			return err
		}
		decoded, err := storage.UnmarshalVectorRecord(val)
		if err != nil {
			return err
		}
		record = *decoded
		return nil
	})
	return record, err
}

// Delete removes records by id.
func (v *VectorIndex) Delete(ctx context.Context, ids ...string) error {
	return v.backend.update(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeVectorKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}
