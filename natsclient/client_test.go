package natsclient

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEmbeddedNATS starts an in-process NATS server for integration
// subtests. Shutdown and store cleanup are registered with t.Cleanup.
func startEmbeddedNATS(t *testing.T, opts ...TestOption) *natsserver.Server {
	t.Helper()

	cfg := &testConfig{
		timeout:      5 * time.Second,
		startTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	srv, storeDir, err := startTestServer(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
		if storeDir != "" {
			_ = os.RemoveAll(storeDir)
		}
	})

	return srv
}

// newTestClient builds an unconnected client against a placeholder URL.
func newTestClient(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	client, err := NewClient("nats://localhost:4222", opts...)
	require.NoError(t, err)
	return client
}

// tripCircuit records enough consecutive failures to open the breaker.
func tripCircuit(c *Client) {
	for i := 0; i < 5; i++ {
		c.recordFailure()
	}
}

func TestNewClient(t *testing.T) {
	client := newTestClient(t)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222")
	require.NoError(t, err)

	// Four failures stay under the threshold.
	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client := newTestClient(t)

	tripCircuit(client)
	assert.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client := newTestClient(t)

	assert.Equal(t, time.Second, client.Backoff())

	tripCircuit(client)
	assert.Equal(t, 2*time.Second, client.Backoff())

	tripCircuit(client)
	assert.Equal(t, 4*time.Second, client.Backoff())

	// The backoff caps at one minute no matter how long the outage runs.
	for i := 0; i < 20; i++ {
		tripCircuit(client)
	}
	assert.LessOrEqual(t, client.Backoff(), time.Minute)
}

func TestStatus_Transitions(t *testing.T) {
	client := newTestClient(t)

	for _, status := range []ConnectionStatus{
		StatusConnecting, StatusConnected, StatusReconnecting,
	} {
		client.setStatus(status)
		assert.Equal(t, status, client.Status())
	}

	// Failures override whatever state the client was in.
	tripCircuit(client)
	assert.Equal(t, StatusCircuitOpen, client.Status())
}

func TestConcurrentSafety(t *testing.T) {
	client := newTestClient(t)

	const iterations = 100
	var wg sync.WaitGroup

	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				fn()
			}
		}()
	}

	run(func() { client.setStatus(StatusConnecting) })
	run(func() { client.setStatus(StatusConnected) })
	run(func() { _ = client.Status() })
	run(func() { client.recordFailure() })
	run(func() { client.resetCircuit() })

	wg.Wait()

	all := []ConnectionStatus{
		StatusDisconnected, StatusConnecting, StatusConnected,
		StatusReconnecting, StatusCircuitOpen,
	}
	assert.Contains(t, all, client.Status())
}

func TestIsHealthy(t *testing.T) {
	tests := []struct {
		name    string
		status  ConnectionStatus
		healthy bool
	}{
		{"connected is healthy", StatusConnected, true},
		{"disconnected is not healthy", StatusDisconnected, false},
		{"circuit open is not healthy", StatusCircuitOpen, false},
		{"connecting is not healthy", StatusConnecting, false},
		{"reconnecting is not healthy", StatusReconnecting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t)
			client.setStatus(tt.status)
			assert.Equal(t, tt.healthy, client.IsHealthy())
		})
	}
}

func TestWaitForConnection(t *testing.T) {
	t.Run("times out when not connected", func(t *testing.T) {
		client := newTestClient(t)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := client.WaitForConnection(ctx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("returns immediately when connected", func(t *testing.T) {
		client := newTestClient(t)
		client.setStatus(StatusConnected)

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		start := time.Now()
		require.NoError(t, client.WaitForConnection(ctx))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("returns when becomes connected", func(t *testing.T) {
		client := newTestClient(t)

		go func() {
			time.Sleep(50 * time.Millisecond)
			client.setStatus(StatusConnected)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		require.NoError(t, client.WaitForConnection(ctx))
		assert.Equal(t, StatusConnected, client.Status())
	})
}

func TestObjectStoreBuckets(t *testing.T) {
	t.Run("operations return error when not connected", func(t *testing.T) {
		client := newTestClient(t)
		ctx := context.Background()

		cfg := jetstream.ObjectStoreConfig{Bucket: "scan_snapshots"}
		_, err := client.CreateObjectStoreBucket(ctx, cfg)
		assert.Equal(t, ErrNotConnected, err)

		_, err = client.GetObjectStoreBucket(ctx, "scan_snapshots")
		assert.Equal(t, ErrNotConnected, err)
	})

	t.Run("operations return error when circuit open", func(t *testing.T) {
		client := newTestClient(t)

		tripCircuit(client)
		require.Equal(t, StatusCircuitOpen, client.Status())

		ctx := context.Background()
		cfg := jetstream.ObjectStoreConfig{Bucket: "scan_snapshots"}

		_, err := client.CreateObjectStoreBucket(ctx, cfg)
		assert.Equal(t, ErrCircuitOpen, err)

		_, err = client.GetObjectStoreBucket(ctx, "scan_snapshots")
		assert.Equal(t, ErrCircuitOpen, err)
	})

	t.Run("operations work with real server", func(t *testing.T) {
		natsURL := startEmbeddedNATS(t, WithJetStream()).ClientURL()
		ctx := context.Background()

		client, err := NewClient(natsURL, WithMaxReconnects(0))
		require.NoError(t, err)

		require.NoError(t, client.Connect(ctx))
		defer client.Close(ctx)

		cfg := jetstream.ObjectStoreConfig{Bucket: "scan_snapshots"}

		store, err := client.CreateObjectStoreBucket(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, store)

		// Store a snapshot and read it back.
		_, err = store.PutBytes(ctx, "logging-prod-eu1/latest", []byte(`{"indices":42}`))
		require.NoError(t, err)

		data, err := store.GetBytes(ctx, "logging-prod-eu1/latest")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"indices":42}`), data)

		// Creating again binds to the existing bucket.
		again, err := client.CreateObjectStoreBucket(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, again)

		retrieved, err := client.GetObjectStoreBucket(ctx, "scan_snapshots")
		require.NoError(t, err)
		require.NotNil(t, retrieved)

		data2, err := retrieved.GetBytes(ctx, "logging-prod-eu1/latest")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"indices":42}`), data2)
	})
}

func TestContextAwareMethods(t *testing.T) {
	t.Run("with invalid host", func(t *testing.T) {
		client, err := NewClient("nats://invalid-host:4222")
		require.NoError(t, err)

		ctx := context.Background()

		assert.Error(t, client.Connect(ctx))

		// Close succeeds even when the connect never did.
		assert.NoError(t, client.Close(ctx))

		err = client.Publish(ctx, "inventory.index.v1", []byte("data"))
		assert.Equal(t, ErrNotConnected, err)

		err = client.Subscribe(ctx, "inventory.index.v1", func(_ context.Context, _ []byte) {})
		assert.Equal(t, ErrNotConnected, err)
	})

	t.Run("with real NATS server", func(t *testing.T) {
		natsURL := startEmbeddedNATS(t).ClientURL()
		ctx := context.Background()

		client, err := NewClient(natsURL, WithMaxReconnects(0))
		require.NoError(t, err)

		require.NoError(t, client.Connect(ctx))
		defer client.Close(ctx)

		assert.True(t, client.IsHealthy())

		require.NoError(t, client.Publish(ctx, "inventory.index.v1", []byte("data")))

		received := make(chan []byte, 1)
		err = client.Subscribe(ctx, "inventory.classified.v1", func(_ context.Context, data []byte) {
			received <- data
		})
		require.NoError(t, err)

		require.NoError(t, client.Publish(ctx, "inventory.classified.v1", []byte("classified row")))

		select {
		case data := <-received:
			assert.Equal(t, []byte("classified row"), data)
		case <-time.After(2 * time.Second):
			t.Fatal("classified row never delivered")
		}
	})
}

// JetStream context is only available after Connect.
func TestJetStream_NotInitialized(t *testing.T) {
	client := newTestClient(t)

	js, err := client.JetStream()
	assert.Error(t, err)
	assert.Nil(t, js)
}

func TestConnectionOptions(t *testing.T) {
	client := newTestClient(t,
		WithMaxReconnects(10),
		WithReconnectWait(5*time.Second),
		WithPingInterval(30*time.Second),
		WithName("clusterscan-input"),
	)

	assert.Equal(t, 10, client.maxReconnects)
	assert.Equal(t, 5*time.Second, client.reconnectWait)
	assert.Equal(t, 30*time.Second, client.pingInterval)
	assert.Equal(t, "clusterscan-input", client.clientName)
}

func TestConnectionOptions_RejectInvalid(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithReconnectWait(0))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithTimeout(-time.Second))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithHealthInterval(-time.Second))
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	client := newTestClient(t)

	for i := 0; i < 3; i++ {
		client.recordFailure()
	}

	status := client.GetStatus()
	assert.Equal(t, int32(3), status.FailureCount)
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.NotZero(t, status.LastFailureTime)

	client.resetCircuit()
	assert.Equal(t, int32(0), client.GetStatus().FailureCount)
}

func TestClientScenarios(t *testing.T) {
	t.Run("successful connection flow", func(t *testing.T) {
		client := newTestClient(t)

		client.setStatus(StatusConnecting)
		client.setStatus(StatusConnected)
		client.resetCircuit()

		assert.Equal(t, StatusConnected, client.Status())
		assert.True(t, client.IsHealthy())
		assert.Equal(t, int32(0), client.Failures())
	})

	t.Run("connection failure and circuit break", func(t *testing.T) {
		client := newTestClient(t)
		client.setStatus(StatusConnecting)

		tripCircuit(client)

		assert.Equal(t, StatusCircuitOpen, client.Status())
		assert.False(t, client.IsHealthy())
		assert.Equal(t, int32(5), client.Failures())
	})

	t.Run("reconnection after disconnect", func(t *testing.T) {
		client := newTestClient(t)
		client.setStatus(StatusConnected)

		client.setStatus(StatusReconnecting)
		time.Sleep(10 * time.Millisecond)
		client.setStatus(StatusConnected)
		client.resetCircuit()

		assert.Equal(t, StatusConnected, client.Status())
		assert.True(t, client.IsHealthy())
	})
}

func TestCreateObjectStoreBucket_AlreadyExists(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"bucket name already in use", errors.New("nats: bucket name already in use"), true},
		{"already exists", errors.New("bucket already exists"), true},
		{"stream name already in use", errors.New("nats: stream name already in use"), true},
		{"other error", errors.New("connection failed"), false},
		{"nil error", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isAlreadyExistsError(tc.err))
		})
	}
}
