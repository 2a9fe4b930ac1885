package natsclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	gonats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// TestClient runs an in-process NATS server and a connected Client for tests.
// No external broker or container runtime is required.
type TestClient struct {
	server  *natsserver.Server
	Client  *Client
	URL     string
	cleanup func()
}

type testConfig struct {
	jetstream     bool
	objectStore   bool
	objectBuckets []string
	timeout       time.Duration
	startTimeout  time.Duration
}

// TestOption adjusts the embedded server and client used by a test.
type TestOption func(*testConfig)

// WithJetStream enables JetStream for tests that need it.
func WithJetStream() TestOption {
	return func(cfg *testConfig) { cfg.jetstream = true }
}

// WithObjectStore enables the object store, which implies JetStream.
func WithObjectStore() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
		cfg.objectStore = true
	}
}

// WithObjectBuckets pre-creates the named object store buckets.
func WithObjectBuckets(buckets ...string) TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
		cfg.objectStore = true
		cfg.objectBuckets = append(cfg.objectBuckets, buckets...)
	}
}

// WithTestTimeout sets the client connection timeout.
func WithTestTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) { cfg.timeout = timeout }
}

// WithStartTimeout sets the embedded server startup timeout.
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) { cfg.startTimeout = timeout }
}

// startTestServer starts an embedded NATS server on a random port and
// returns it together with the JetStream store directory (empty when
// JetStream is disabled).
func startTestServer(cfg *testConfig) (*natsserver.Server, string, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // pick a free port
		NoLog:  true,
		NoSigs: true,
	}

	var storeDir string
	if cfg.jetstream {
		dir, err := os.MkdirTemp("", "esdic-nats-test-")
		if err != nil {
			return nil, "", fmt.Errorf("create jetstream store dir: %w", err)
		}
		storeDir = dir
		opts.JetStream = true
		opts.StoreDir = storeDir
	}

	fail := func(srv *natsserver.Server, err error) (*natsserver.Server, string, error) {
		if srv != nil {
			srv.Shutdown()
		}
		if storeDir != "" {
			_ = os.RemoveAll(storeDir)
		}
		return nil, "", err
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return fail(nil, fmt.Errorf("create embedded nats server: %w", err))
	}

	go srv.Start()
	if !srv.ReadyForConnections(cfg.startTimeout) {
		return fail(srv, fmt.Errorf("embedded nats server not ready within %s", cfg.startTimeout))
	}
	return srv, storeDir, nil
}

// NewSharedTestClient starts an embedded server and connects a client,
// returning errors instead of failing a testing.T. Use it from TestMain
// when one server should serve a whole package.
func NewSharedTestClient(opts ...TestOption) (*TestClient, error) {
	cfg := &testConfig{
		timeout:      5 * time.Second,
		startTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	srv, storeDir, err := startTestServer(cfg)
	if err != nil {
		return nil, err
	}

	teardown := func() {
		srv.Shutdown()
		srv.WaitForShutdown()
		if storeDir != "" {
			_ = os.RemoveAll(storeDir)
		}
	}

	client, err := NewClient(srv.ClientURL(),
		WithTimeout(cfg.timeout),
		WithMaxReconnects(0),  // no reconnects in tests
		WithHealthInterval(0), // disable health monitoring
	)
	if err != nil {
		teardown()
		return nil, fmt.Errorf("failed to create NATS client: %w", err)
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		teardown()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if err := client.WaitForConnection(connectCtx); err != nil {
		_ = client.Close(ctx)
		teardown()
		return nil, fmt.Errorf("NATS connection not ready: %w", err)
	}

	testClient := &TestClient{
		server: srv,
		Client: client,
		URL:    srv.ClientURL(),
		cleanup: func() {
			_ = client.Close(context.Background())
			teardown()
		},
	}

	if cfg.objectStore && len(cfg.objectBuckets) > 0 {
		if err := testClient.setupObjectBuckets(ctx, cfg.objectBuckets); err != nil {
			testClient.cleanup()
			return nil, fmt.Errorf("failed to setup object store buckets: %w", err)
		}
	}
	return testClient, nil
}

// NewTestClient starts a per-test embedded server and registers its
// teardown with t.Cleanup. Accepts testing.TB so benchmarks work too.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()
	testClient, err := NewSharedTestClient(opts...)
	if err != nil {
		t.Fatalf("Failed to start embedded NATS server: %v", err)
	}
	t.Cleanup(testClient.cleanup)
	return testClient
}

func (tc *TestClient) setupObjectBuckets(ctx context.Context, buckets []string) error {
	for _, name := range buckets {
		if _, err := tc.CreateObjectBucket(ctx, name); err != nil {
			return fmt.Errorf("failed to create object store bucket %s: %w", name, err)
		}
	}
	return nil
}

// Terminate shuts down the server and client. Safe to call more than
// once; usually t.Cleanup handles this.
func (tc *TestClient) Terminate() error {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
	return nil
}

// IsReady reports whether the client connection is usable.
func (tc *TestClient) IsReady() bool { return tc.Client.IsHealthy() }

// GetNativeConnection exposes the underlying NATS connection.
func (tc *TestClient) GetNativeConnection() *gonats.Conn { return tc.Client.GetConnection() }

// CreateObjectBucket creates an object store bucket with default settings.
func (tc *TestClient) CreateObjectBucket(ctx context.Context, name string) (jetstream.ObjectStore, error) {
	return tc.Client.CreateObjectStoreBucket(ctx, jetstream.ObjectStoreConfig{Bucket: name})
}

// GetObjectBucket looks up an existing object store bucket.
func (tc *TestClient) GetObjectBucket(ctx context.Context, name string) (jetstream.ObjectStore, error) {
	return tc.Client.GetObjectStoreBucket(ctx, name)
}
