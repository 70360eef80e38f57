// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_cache_hits_total",
		Help: "Total cache get() calls that found a live entry",
	}, []string{"cache"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_cache_misses_total",
		Help: "Total cache get() calls that found no entry or an expired one",
	}, []string{"cache"})

	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_cache_evictions_total",
		Help: "Total entries evicted to satisfy a capacity limit",
	}, []string{"cache", "policy"})

	CacheExpiredRemovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_cache_expired_removals_total",
		Help: "Total entries removed for having exceeded their TTL",
	}, []string{"cache"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "veditcore_cache_entries",
		Help: "Current number of live entries in a cache",
	}, []string{"cache"})

	CacheSizeBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "veditcore_cache_size_bytes",
		Help: "Current byte-accounted size of a cache",
	}, []string{"cache"})
)

// IncCacheHit records a cache hit for the named cache.
func IncCacheHit(name string) { CacheHitsTotal.WithLabelValues(name).Inc() }

// IncCacheMiss records a cache miss for the named cache.
func IncCacheMiss(name string) { CacheMissesTotal.WithLabelValues(name).Inc() }

// IncCacheEviction records a policy-driven eviction for the named cache.
func IncCacheEviction(name, policy string) { CacheEvictionsTotal.WithLabelValues(name, policy).Inc() }

// IncCacheExpiredRemoval records a TTL-driven removal for the named cache.
func IncCacheExpiredRemoval(name string) { CacheExpiredRemovalsTotal.WithLabelValues(name).Inc() }

// SetCacheGauges publishes the current entry count and byte size for the
// named cache. Call after every mutating operation while holding the
// cache's lock.
func SetCacheGauges(name string, entries, sizeBytes int64) {
	CacheEntries.WithLabelValues(name).Set(float64(entries))
	CacheSizeBytes.WithLabelValues(name).Set(float64(sizeBytes))
}
