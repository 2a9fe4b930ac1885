package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/nats-io/nats.go/jetstream"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests run against an embedded in-process NATS server, so no
// external broker or container runtime is needed.

// connectedClient starts an embedded server, connects a client to it, and
// registers the close with t.Cleanup.
func connectedClient(t *testing.T, srvOpts []TestOption, clientOpts ...ClientOption) *Client {
	t.Helper()
	srv := startEmbeddedNATS(t, srvOpts...)

	client, err := NewClient(srv.ClientURL(), clientOpts...)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func TestIntegration_ConnectToRealNATS(t *testing.T) {
	client := connectedClient(t, nil)

	assert.True(t, client.IsHealthy())
	assert.Equal(t, StatusConnected, client.Status())
	assert.Greater(t, client.GetStatus().RTT, time.Duration(0))
}

// Circuit breaker behavior against a host that never answers.
func TestIntegration_CircuitBreakerWithRealConnection(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient("nats://invalid-host:4222")
	require.NoError(t, err)

	// Four failures keep the circuit closed, the fifth opens it.
	for i := 0; i < 4; i++ {
		assert.Error(t, client.Connect(ctx))
		assert.NotEqual(t, StatusCircuitOpen, client.Status())
	}
	assert.Error(t, client.Connect(ctx))
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())

	// With the circuit open, Connect fails without touching the network.
	start := time.Now()
	err = client.Connect(ctx)
	assert.Equal(t, ErrCircuitOpen, err)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

// One classified row published and received over a live connection.
func TestIntegration_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	client := connectedClient(t, nil)

	received := make(chan string, 1)
	require.NoError(t, client.Subscribe(ctx, "inventory.classified.v1", func(_ context.Context, data []byte) {
		received <- string(data)
	}))

	row := `{"index":"metrics.payments.prod"}`
	require.NoError(t, client.Publish(ctx, "inventory.classified.v1", []byte(row)))

	select {
	case msg := <-received:
		assert.Equal(t, row, msg)
	case <-time.After(1 * time.Second):
		t.Fatal("Message not received")
	}
}

func TestIntegration_HealthMonitoring(t *testing.T) {
	srv := startEmbeddedNATS(t)
	ctx := context.Background()

	client, err := NewClient(srv.ClientURL(), WithHealthInterval(100*time.Millisecond))
	require.NoError(t, err)

	healthChanges := make(chan bool, 10)
	client.OnHealthChange(func(healthy bool) { healthChanges <- healthy })

	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	select {
	case healthy := <-healthChanges:
		assert.True(t, healthy)
	case <-time.After(200 * time.Millisecond):
		// Already healthy before the callback registered.
	}

	// Kill the server; the monitor has to notice.
	srv.Shutdown()
	srv.WaitForShutdown()

	select {
	case healthy := <-healthChanges:
		assert.False(t, healthy)
	case <-time.After(2 * time.Second):
		t.Fatal("Health change not detected")
	}
}

// Bucket size gauges are populated for buckets created through the client.
func TestIntegration_ObjectStoreMetrics(t *testing.T) {
	ctx := context.Background()
	metricsRegistry := metric.NewMetricsRegistry()
	client := connectedClient(t, []TestOption{WithJetStream()}, WithMetrics(metricsRegistry))

	bucket, err := client.CreateObjectStoreBucket(ctx, jetstream.ObjectStoreConfig{Bucket: "scan_snapshots"})
	require.NoError(t, err)

	// Store a few snapshots so the bucket has measurable size.
	for _, key := range []string{"logging-prod-eu1/latest", "logging-dev-eu1/latest"} {
		_, err := bucket.PutBytes(ctx, key, []byte(`{"indices":42,"total_mb":1024.5}`))
		require.NoError(t, err)
	}

	// Refresh stats directly rather than waiting for the poller.
	client.osMetrics.updateStats(ctx)

	families, err := metricsRegistry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var bucketBytes *dto.MetricFamily
	for _, mf := range families {
		if *mf.Name == "esdic_nats_object_store_bytes" {
			bucketBytes = mf
		}
	}
	require.NotNil(t, bucketBytes, "bucket size metric should exist")
	require.NotEmpty(t, bucketBytes.Metric)
	assert.Equal(t, "scan_snapshots", *bucketBytes.Metric[0].Label[0].Value)
	assert.Greater(t, *bucketBytes.Metric[0].Gauge.Value, float64(0))
}
