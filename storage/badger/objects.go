package badger

import (
	"context"
	"strings"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// ObjectStore implements storage.ObjectStore for BadgerDB.
// Each object is stored as two keys: the body and a small info record
// holding its size, content hash and modification time.
type ObjectStore struct {
	backend *Backend
}

var _ storage.ObjectStore = (*ObjectStore)(nil)

// NewObjectStore creates an object store on backend.
func NewObjectStore(backend *Backend) *ObjectStore {
	return &ObjectStore{backend: backend}
}

// Put writes data under key, replacing any previous object.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return storage.ErrEmptyKey
	}
	info := storage.ObjectInfo{
		Key:         key,
		Size:        int64(len(data)),
		ContentHash: core.ContentHash(data),
		UpdatedAt:   time.Now().UTC(),
	}
	return s.backend.update(ctx, func(tx *badger.Txn) error {
		if err := tx.Set(makeObjectKey(key), data); err != nil {
			return err
		}
		return tx.Set(makeObjectInfoKey(key), marshalObjectInfo(info))
	})
}

// Get returns the object stored under key.
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		data, err = get(tx, makeObjectKey(key))
		return err
	})
	return data, err
}

// Stat describes the object stored under key.
func (s *ObjectStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	var info storage.ObjectInfo
	err := s.backend.view(ctx, func(tx *badger.Txn) error {
		val, err := get(tx, makeObjectInfoKey(key))
		if err != nil {
			return err
		}
		info, err = unmarshalObjectInfo(key, val)
		return err
	})
	return info, err
}

// Delete removes the object under key.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	return s.backend.update(ctx, func(tx *badger.Txn) error {
		if err := tx.Delete(makeObjectKey(key)); err != nil {
			return err
		}
		return tx.Delete(makeObjectInfoKey(key))
	})
}

// List describes every object whose key starts with prefix.
func (s *ObjectStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	err := s.backend.view(ctx, func(tx *badger.Txn) error {
		return scan(tx, makeObjectInfoKey(prefix), func(key, val []byte) error {
			info, err := unmarshalObjectInfo(strings.TrimPrefix(string(key), objectInfoPrefix), val)
			if err != nil {
				return err
			}
			infos = append(infos, info)
			return nil
		})
	})
	return infos, err
}

func marshalObjectInfo(info storage.ObjectInfo) []byte {
	micros := info.UpdatedAt.UnixMicro()
	size := varint.Int64.Size(info.Size) + ord.String.Size(info.ContentHash) + varint.Int64.Size(micros)
	buf := make([]byte, size)
	n := varint.Int64.Marshal(info.Size, buf)
	n += ord.String.Marshal(info.ContentHash, buf[n:])
	varint.Int64.Marshal(micros, buf[n:])
	return buf
}

func unmarshalObjectInfo(key string, data []byte) (storage.ObjectInfo, error) {
	info := storage.ObjectInfo{Key: key}
	size, n, err := varint.Int64.Unmarshal(data)
	if err != nil {
		return info, err
	}
	hash, n1, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return info, err
	}
	micros, _, err := varint.Int64.Unmarshal(data[n+n1:])
	if err != nil {
		return info, err
	}
	info.Size = size
	info.ContentHash = hash
	info.UpdatedAt = time.UnixMicro(micros).UTC()
	return info, nil
}
