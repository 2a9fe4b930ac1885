// Package natsclient manages the NATS connection that carries inventory
// rows between pipeline components, with circuit breaker protection,
// automatic reconnection and JetStream object store access for scan
// snapshots.
//
// The package wraps the standard NATS Go client. The pipeline publishes
// raw and classified rows, subscribes processors and outputs, and persists
// completed scans through object store buckets; the wrapper exposes exactly
// that surface plus connection health.
//
// # Core Features
//
// Circuit Breaker: after a threshold of consecutive failures (default: 5)
// the circuit opens and operations fail fast with ErrCircuitOpen. Backoff
// doubles per open period up to a configurable maximum (default: 1 minute),
// then the circuit half-opens for a retry.
//
// Connection Lifecycle: state moves through Disconnected → Connecting →
// Connected → Reconnecting with callbacks for disconnect, reconnect and
// health changes.
//
// Object Store Buckets: CreateObjectStoreBucket and GetObjectStoreBucket
// bind snapshot buckets with create/exists race handling, and optional
// Prometheus gauges track bucket sizes.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	// Publish a classified row
//	err = client.Publish(ctx, "inventory.classified.v1", rowData)
//
//	// Subscribe an output
//	err = client.Subscribe(ctx, "inventory.classified.v1", func(msgCtx context.Context, data []byte) {
//	    // Handle row with context (30s timeout per message)
//	})
//
// # Configuration
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithMaxReconnects(-1), // scans are long-lived
//	    natsclient.WithReconnectWait(2*time.Second),
//	    natsclient.WithCircuitBreakerThreshold(10),
//	    natsclient.WithLogger(slog.Default()),
//	    natsclient.WithMetrics(metricsRegistry),
//	    natsclient.WithDisconnectCallback(func(err error) {
//	        slog.Warn("nats disconnected", "error", err)
//	    }),
//	)
//
// Authentication uses WithCredentials, WithToken or WithTLS; credentials
// are cleared from memory on Close.
//
// # Snapshot Persistence
//
//	bucket, err := client.CreateObjectStoreBucket(ctx, jetstream.ObjectStoreConfig{
//	    Bucket: "scan_snapshots",
//	})
//
//	// Store a completed scan snapshot
//	_, err = bucket.PutBytes(ctx, "logging-prod-eu1/latest", snapshotJSON)
//
//	// Read it back
//	data, err := bucket.GetBytes(ctx, "logging-prod-eu1/latest")
//
// # Error Handling
//
// Sentinel errors cover the failure modes callers branch on:
//
//	err := client.Publish(ctx, "inventory.index.v1", data)
//	switch {
//	case errors.Is(err, natsclient.ErrCircuitOpen):
//	    // back off, the breaker half-opens on its own
//	case errors.Is(err, natsclient.ErrNotConnected):
//	    // connection not established yet
//	}
//
// # Health
//
// WithHealthInterval enables a background probe that pings the connection
// and drives the OnHealthChange callback; GetStatus returns a point-in-time
// snapshot (status, failure count, RTT) for the health endpoints.
//
// # Testing
//
// Tests run against a real embedded in-process NATS server, no mocks and
// no container runtime:
//
//	func TestSnapshotStore(t *testing.T) {
//	    tc := natsclient.NewTestClient(t,
//	        natsclient.WithObjectBuckets("scan_snapshots"),
//	    )
//
//	    err := tc.Client.Publish(ctx, "inventory.index.v1", rowData)
//	    assert.NoError(t, err)
//	}
//
// # Thread Safety
//
// Client is safe for concurrent use. Connection state is held in atomics,
// subscriptions may be created from any goroutine, and Close is idempotent.
package natsclient
