package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scanComponent is a stand-in for the scan input: it registers its own
// instruments through the registrar the way a real component does in
// Initialize.
type scanComponent struct {
	name           string
	indicesScanned prometheus.Counter
	fetchQueue     prometheus.Gauge
}

func newScanComponent(name string) *scanComponent {
	return &scanComponent{name: name}
}

func (c *scanComponent) registerMetrics(registrar MetricsRegistrar) error {
	c.indicesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "esdic",
		Subsystem: "clusterscan",
		Name:      "indices_scanned_total",
		Help:      "Indices scanned across all runs",
	})
	if err := registrar.RegisterCounter(c.name, "indices_scanned_total", c.indicesScanned); err != nil {
		return err
	}

	c.fetchQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "esdic",
		Subsystem: "clusterscan",
		Name:      "stats_fetch_queue_depth",
		Help:      "Stats fetches waiting for a worker",
	})
	return registrar.RegisterGauge(c.name, "stats_fetch_queue_depth", c.fetchQueue)
}

func (c *scanComponent) recordScan(indices, queued int) {
	c.indicesScanned.Add(float64(indices))
	c.fetchQueue.Set(float64(queued))
}

func TestMetricsIntegration_ComponentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	scan := newScanComponent("clusterscan-input")
	require.NoError(t, scan.registerMetrics(registry))

	scan.recordScan(1847, 12)

	names := gatheredNames(t, registry)
	assert.True(t, names["esdic_clusterscan_indices_scanned_total"])
	assert.True(t, names["esdic_clusterscan_stats_fetch_queue_depth"])
}

func TestMetricsIntegration_ComponentRestartedUnderSameName(t *testing.T) {
	registry := NewMetricsRegistry()

	first := newScanComponent("clusterscan-input")
	require.NoError(t, first.registerMetrics(registry))

	// A second registration under the same component name means the old
	// instance was never unregistered. The registry refuses rather than
	// silently splitting the counter across two collectors.
	second := newScanComponent("clusterscan-input")
	err := second.registerMetrics(registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestMetricsIntegration_CoreAndComponentMetricsCoexist(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	scan := newScanComponent("clusterscan-input")
	require.NoError(t, scan.registerMetrics(registry))

	core.RecordServiceStatus("clusterscan-input", 2)
	core.RecordMessagePublished("clusterscan-input", "index.snapshot")
	scan.recordScan(300, 4)

	names := gatheredNames(t, registry)
	assert.True(t, names["esdic_service_status"])
	assert.True(t, names["esdic_messages_published_total"])
	assert.True(t, names["esdic_clusterscan_indices_scanned_total"])
	assert.True(t, names["esdic_clusterscan_stats_fetch_queue_depth"])
}

func TestMetricsIntegration_TeardownUnregisters(t *testing.T) {
	registry := NewMetricsRegistry()

	scan := newScanComponent("clusterscan-input")
	require.NoError(t, scan.registerMetrics(registry))
	scan.recordScan(1, 1)

	require.True(t, gatheredNames(t, registry)["esdic_clusterscan_indices_scanned_total"])

	assert.True(t, registry.Unregister("clusterscan-input", "indices_scanned_total"))

	names := gatheredNames(t, registry)
	assert.False(t, names["esdic_clusterscan_indices_scanned_total"],
		"unregistered metric should disappear from the scrape")
	assert.True(t, names["esdic_clusterscan_stats_fetch_queue_depth"],
		"the component's other metrics stay registered")
}

func TestMetricsIntegration_TwoComponentsSamePrometheusName(t *testing.T) {
	registry := NewMetricsRegistry()

	// Two differently named components still collide if they pick the same
	// Prometheus metric name. The conflict comes back from Prometheus.
	first := newScanComponent("clusterscan-eu1")
	require.NoError(t, first.registerMetrics(registry))

	second := newScanComponent("clusterscan-us1")
	err := second.registerMetrics(registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}
