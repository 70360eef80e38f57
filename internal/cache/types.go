// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache implements the engine's generic in-memory cache: a
// single-owner core with pluggable eviction, wrapped in a thread-safe
// facade that runs a background expiry janitor, plus optional disk and
// remote spillover tiers for artifacts too large or too durable to keep
// purely in process memory.
package cache

import "time"

// Sized is implemented by any value cacheable by this package. ByteSize
// must be cheap (O(1) or precomputed) since it is called on every put.
type Sized interface {
	ByteSize() int64
}

// Bytes is the simplest Sized value: a raw byte blob (render artifacts,
// prerendered thumbnails).
type Bytes []byte

func (b Bytes) ByteSize() int64 { return int64(len(b)) }

// EvictionPolicy selects which entry is reclaimed when the cache is over
// capacity.
type EvictionPolicy string

const (
	EvictionLRU    EvictionPolicy = "lru"
	EvictionLFU    EvictionPolicy = "lfu"
	EvictionFIFO   EvictionPolicy = "fifo"
	EvictionRandom EvictionPolicy = "random"
)

// Config controls capacity limits, TTL, and eviction behavior.
type Config struct {
	MaxEntries      int
	MaxBytes        int64
	TTL             time.Duration // zero means entries never expire
	CleanupInterval time.Duration // zero disables the background janitor
	Policy          EvictionPolicy
}

// Stats are the cache's observable counters, per spec §3.1.
type Stats struct {
	Hits             int64
	Misses           int64
	Entries          int64
	SizeBytes        int64
	Evictions        int64
	ExpiredRemovals  int64
}

// HitRate returns Hits / (Hits+Misses), or 0 when no operations occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ClearableCache is the purely type-erased registry handle (spec §9's
// "drop the typed registry entirely" design note): a cache that can be
// named and cleared without the registry knowing its (K,V) shape.
type ClearableCache interface {
	Name() string
	Clear()
}
