package badger

import (
	"context"
	"testing"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorRecord(id string, index int, vector ...float32) storage.VectorRecord {
	return storage.VectorRecord{
		ID:     id,
		Vector: vector,
		Metadata: storage.VectorMetadata{
			SourceID:     "sec:AAPL:10-K",
			CompanyKey:   "AAPL",
			DocumentType: "sec_filing",
			BoostFactor:  1.2,
			ChunkTextRef: "chunks/sec:AAPL:10-K/" + id + ".json",
			ChunkIndex:   index,
		},
	}
}

func TestVectorIndex_UpsertGet(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, stores.Vectors.Upsert(ctx,
		vectorRecord("c0", 0, 0.1, 0.2),
		vectorRecord("c1", 1, 0.3, 0.4)))

	got, err := stores.Vectors.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, vectorRecord("c1", 1, 0.3, 0.4), got)

	require.NoError(t, stores.Vectors.Upsert(ctx, vectorRecord("c1", 1, 0.9, 0.9)))
	got, err = stores.Vectors.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.9, 0.9}, got.Vector)
}

func TestVectorIndex_Delete(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, stores.Vectors.Upsert(ctx, vectorRecord("c0", 0, 1), vectorRecord("c1", 1, 2)))
	require.NoError(t, stores.Vectors.Delete(ctx, "c0", "missing"))

	_, err := stores.Vectors.Get(ctx, "c0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = stores.Vectors.Get(ctx, "c1")
	assert.NoError(t, err)
}

func TestVectorIndex_EmptyID(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	err := stores.Vectors.Upsert(ctx, vectorRecord("c0", 0, 1), vectorRecord("", 1, 2))
	assert.ErrorIs(t, err, storage.ErrEmptyKey)

	_, err = stores.Vectors.Get(ctx, "c0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
