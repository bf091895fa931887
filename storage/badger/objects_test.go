package badger

import (
	"context"
	"testing"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStore_PutGetStat(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	data := []byte(`{"chunk_id":"abc"}`)

	require.NoError(t, stores.Objects.Put(ctx, "chunks/doc/abc.json", data))

	got, err := stores.Objects.Get(ctx, "chunks/doc/abc.json")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	info, err := stores.Objects.Stat(ctx, "chunks/doc/abc.json")
	require.NoError(t, err)
	assert.Equal(t, "chunks/doc/abc.json", info.Key)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Equal(t, core.ContentHash(data), info.ContentHash)
	assert.False(t, info.UpdatedAt.IsZero())
}

func TestObjectStore_Missing(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	_, err := stores.Objects.Get(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = stores.Objects.Stat(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, stores.Objects.Delete(ctx, "nope"))
	assert.ErrorIs(t, stores.Objects.Put(ctx, "", []byte("x")), storage.ErrEmptyKey)
}

func TestObjectStore_ListAndDelete(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	for _, key := range []string{"chunks/a/2.json", "chunks/a/1.json", "chunks/b/1.json"} {
		require.NoError(t, stores.Objects.Put(ctx, key, []byte(key)))
	}

	infos, err := stores.Objects.List(ctx, "chunks/a/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "chunks/a/1.json", infos[0].Key)
	assert.Equal(t, "chunks/a/2.json", infos[1].Key)

	require.NoError(t, stores.Objects.Delete(ctx, "chunks/a/1.json"))
	infos, err = stores.Objects.List(ctx, "chunks/a/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	_, err = stores.Objects.Get(ctx, "chunks/a/1.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVectorIndex_UpsertGetDelete(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	records := []storage.VectorRecord{
		{ID: "c0", Vector: []float32{0.1, 0.2}, Metadata: storage.VectorMetadata{SourceID: "doc", ChunkIndex: 0, BoostFactor: 1}},
		{ID: "c1", Vector: []float32{0.3, 0.4}, Metadata: storage.VectorMetadata{SourceID: "doc", ChunkIndex: 1, BoostFactor: 1.2}},
	}
	require.NoError(t, stores.Vectors.Upsert(ctx, records...))

	got, err := stores.Vectors.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, records[1], got)

	records[1].Vector = []float32{0.5, 0.6}
	require.NoError(t, stores.Vectors.Upsert(ctx, records[1]))
	got, err = stores.Vectors.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, got.Vector)

	require.NoError(t, stores.Vectors.Delete(ctx, "c0", "missing"))
	_, err = stores.Vectors.Get(ctx, "c0")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, stores.Vectors.Upsert(ctx, storage.VectorRecord{}), storage.ErrEmptyKey)
}
