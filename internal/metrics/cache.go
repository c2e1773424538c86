// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheRequests counts cache lookups by result.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_cache_requests_total",
		Help: "Total cache lookups by result (hit, miss)",
	}, []string{"result"})

	// CacheSize reports the current number of cache entries.
	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidpipe_cache_entries",
		Help: "Current number of cache entries",
	})

	// CacheEvictions counts entries removed to make room or on expiry.
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_cache_evictions_total",
		Help: "Total cache evictions by reason (capacity, expired)",
	}, []string{"reason"})
)

// IncCacheHit records a cache hit.
func IncCacheHit() { CacheRequests.WithLabelValues("hit").Inc() }

// IncCacheMiss records a cache miss.
func IncCacheMiss() { CacheRequests.WithLabelValues("miss").Inc() }

// IncCacheEviction records an eviction with its reason.
func IncCacheEviction(reason string) { CacheEvictions.WithLabelValues(reason).Inc() }
