package cache

import (
	"testing"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMetricsExport(t *testing.T) {
	metricsRegistry := metric.NewMetricsRegistry()

	cache, err := NewLRU[string](10, WithMetrics[string](metricsRegistry, "escluster"))
	require.NoError(t, err)

	_, _ = cache.Set("logs.checkout.prod", "logging")
	_, _ = cache.Set("metrics.payments.prod", "metrics")

	val, found := cache.Get("logs.checkout.prod")
	assert.True(t, found)
	assert.Equal(t, "logging", val)

	_, found = cache.Get("traces.unseen.prod")
	assert.False(t, found)

	deleted, _ := cache.Delete("metrics.payments.prod")
	assert.True(t, deleted)

	metricFamilies, err := metricsRegistry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	families := make(map[string]*dto.MetricFamily)
	for _, mf := range metricFamilies {
		families[*mf.Name] = mf
	}

	counterValue := func(name string) float64 {
		mf := families[name]
		require.NotNil(t, mf, "%s should be exported", name)
		return *mf.Metric[0].Counter.Value
	}

	assert.Equal(t, float64(1), counterValue("esdic_cache_hits_total"))
	assert.Equal(t, float64(1), counterValue("esdic_cache_misses_total"))
	assert.Equal(t, float64(2), counterValue("esdic_cache_sets_total"))
	assert.Equal(t, float64(1), counterValue("esdic_cache_deletes_total"))

	sizeMetric := families["esdic_cache_size"]
	require.NotNil(t, sizeMetric)
	assert.Equal(t, float64(1), *sizeMetric.Metric[0].Gauge.Value, "one entry left after the delete")

	hitsMetric := families["esdic_cache_hits_total"]
	assert.Equal(t, "escluster", *hitsMetric.Metric[0].Label[0].Value, "component label carries the prefix")
}

func TestCacheWithoutMetrics(t *testing.T) {
	cache, err := NewLRU[string](10)
	require.NoError(t, err)

	_, _ = cache.Set("logs.checkout.prod", "logging")
	val, found := cache.Get("logs.checkout.prod")
	assert.True(t, found)
	assert.Equal(t, "logging", val)
}

func TestCacheStatsAlwaysOn(t *testing.T) {
	metricsRegistry := metric.NewMetricsRegistry()

	cache, err := NewLRU[string](10, WithMetrics[string](metricsRegistry, "escluster"))
	require.NoError(t, err)
	lru := cache.(*lruCache[string])

	// Statistics collection is unconditional; Prometheus export is the
	// opt-in half.
	assert.NotNil(t, lru.metrics)
	assert.NotNil(t, lru.stats)
}
