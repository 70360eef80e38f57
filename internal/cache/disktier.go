// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// DiskTier is an embedded, persistent spillover store for artifacts whose
// byte size or retention needs make pure in-memory caching undesirable
// across an application restart (oversized media-metadata blobs,
// long-lived prerender thumbnails). It is the desktop-app analogue of the
// reference system's network-service cache tiers.
type DiskTier[V any] struct {
	db     *badger.DB
	logger zerolog.Logger
}

// OpenDiskTier opens (creating if needed) a badger store rooted at path.
func OpenDiskTier[V any](path string, logger zerolog.Logger) (*DiskTier[V], error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskTier[V]{db: db, logger: logger}, nil
}

// Close releases the underlying badger database.
func (t *DiskTier[V]) Close() error {
	return t.db.Close()
}

// Put writes value under key with the given TTL (zero means no expiry).
func (t *DiskTier[V]) Put(key string, value V, ttl time.Duration) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return t.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), buf)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Get reads key's value. The bool return is false on a missing or expired
// key (badger expires entries transparently); any other failure is
// returned as an error.
func (t *DiskTier[V]) Get(key string) (V, bool, error) {
	var out V
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	return out, true, nil
}

// Delete removes key, if present.
func (t *DiskTier[V]) Delete(key string) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Size reports the number of keys currently stored, by counting a full
// iteration. Intended for diagnostics, not a hot path.
func (t *DiskTier[V]) Size() (int, error) {
	count := 0
	err := t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
