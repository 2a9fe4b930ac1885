package service_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/service"
)

// newMetricsService builds a metrics service bound to the given port.
func newMetricsService(t *testing.T, port int) service.Service {
	t.Helper()
	raw, err := json.Marshal(map[string]int{"port": port})
	require.NoError(t, err)

	metrics, err := service.NewMetrics(raw, &service.Dependencies{Logger: slog.Default()})
	require.NoError(t, err)
	return metrics
}

// newManagerService builds a component manager on its own embedded NATS
// server, torn down with the test.
func newManagerService(t *testing.T) service.Service {
	t.Helper()
	testClient := natsclient.NewTestClient(t)
	t.Cleanup(func() { _ = testClient.Terminate() })

	cm, err := service.NewComponentManager(json.RawMessage(`{}`),
		&service.Dependencies{NATSClient: testClient.Client, Logger: slog.Default()})
	require.NoError(t, err)
	return cm
}

func TestServiceLifecycleRobustness(t *testing.T) {
	ctx := context.Background()

	t.Run("metrics double stop", func(t *testing.T) {
		metrics := newMetricsService(t, 9091)
		require.NoError(t, metrics.Start(ctx))

		assert.NoError(t, metrics.Stop(5*time.Second))
		assert.NoError(t, metrics.Stop(5*time.Second), "a second stop is a no-op")
	})

	t.Run("metrics double start", func(t *testing.T) {
		metrics := newMetricsService(t, 9092)
		require.NoError(t, metrics.Start(ctx))
		defer metrics.Stop(5 * time.Second)

		err := metrics.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already started")
	})

	t.Run("component manager double stop", func(t *testing.T) {
		cm := newManagerService(t)
		require.NoError(t, cm.Start(ctx))

		assert.NoError(t, cm.Stop(5*time.Second))
		assert.NoError(t, cm.Stop(5*time.Second), "a second stop is a no-op")
	})

	t.Run("component manager double start", func(t *testing.T) {
		cm := newManagerService(t)
		require.NoError(t, cm.Start(ctx))
		defer cm.Stop(5 * time.Second)

		// The component manager treats a repeated start as a no-op rather
		// than an error, since the service manager may retry.
		assert.NoError(t, cm.Start(ctx))
	})

	t.Run("racing starts and stops", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			metrics := newMetricsService(t, 0) // port 0 binds an ephemeral port

			startErrors := make(chan error, 5)
			for j := 0; j < 5; j++ {
				go func() { startErrors <- metrics.Start(ctx) }()
			}

			var wins int
			for j := 0; j < 5; j++ {
				if <-startErrors == nil {
					wins++
				}
			}
			assert.Equal(t, 1, wins, "exactly one racing start wins")

			stopErrors := make(chan error, 5)
			for j := 0; j < 5; j++ {
				go func() { stopErrors <- metrics.Stop(time.Second) }()
			}
			for j := 0; j < 5; j++ {
				assert.NoError(t, <-stopErrors, "every racing stop succeeds")
			}
		}
	})
}
