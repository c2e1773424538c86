// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidpipe/internal/metrics"
)

func requests(label string) float64 {
	return testutil.ToFloat64(metrics.CacheRequests.WithLabelValues(label))
}

func evictions(reason string) float64 {
	return testutil.ToFloat64(metrics.CacheEvictions.WithLabelValues(reason))
}

func TestLRU_RecordsRequestMetrics(t *testing.T) {
	hits := requests("hit")
	misses := requests("miss")

	c, err := NewLRU(4, 0)
	require.NoError(t, err)

	_, ok := c.Get("absent")
	assert.False(t, ok)

	c.Set("k", "v")
	_, ok = c.Get("k")
	assert.True(t, ok)

	assert.Equal(t, hits+1, requests("hit"))
	assert.Equal(t, misses+1, requests("miss"))
}

func TestLRU_RecordsCapacityEviction(t *testing.T) {
	evicted := evictions("capacity")

	c, err := NewLRU(1, 0)
	require.NoError(t, err)
	c.Set("a", "1")
	c.Set("b", "2")

	assert.Equal(t, evicted+1, evictions("capacity"))
	assert.Equal(t, 1, c.Len())
}

func TestLRU_RecordsExpiryEviction(t *testing.T) {
	evicted := evictions("expired")

	c, err := NewLRU(4, time.Minute)
	require.NoError(t, err)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Set("k", "v")
	current = current.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, evicted+1, evictions("expired"))
}

func TestLRU_ReportsSizeGauge(t *testing.T) {
	c, err := NewLRU(8, 0)
	require.NoError(t, err)

	c.Set("a", "1")
	c.Set("b", "2")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheSize))

	c.Delete("a")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheSize))

	c.Clear()
	assert.Zero(t, testutil.ToFloat64(metrics.CacheSize))
}
