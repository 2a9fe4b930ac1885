// Package storage provides the pluggable backend interface for snapshot
// persistence.
package storage

import "context"

// Store is the pluggable backend interface for snapshot persistence.
//
// Each storage component instance creates its own Store implementation with
// its own configuration (bucket name, cache settings, etc.). Multiple Store
// instances can run concurrently, each backing a different component.
//
// The Store interface uses a simple key-value pattern where:
//   - Keys are strings, hierarchical via "/" separators
//     (snapshots/<cluster>/<scan-id>)
//   - Values are binary data ([]byte), typically JSON-encoded snapshots
//   - Operations are context-aware for cancellation and timeouts
//
// Example implementations:
//   - snapshotstore.Store: NATS JetStream object store backend
//   - an S3 or MinIO backend would satisfy the same contract (future)
//
// Thread Safety:
// All Store implementations must be safe for concurrent use from multiple
// goroutines.
//
// Example Usage:
//
//	store, err := snapshotstore.NewStore(ctx, natsClient, config, registry)
//
//	// Persist a completed scan
//	err = store.Put(ctx, "snapshots/logging-prod-eu1/3f2b9c1e", snapshotJSON)
//
//	// Retrieve it later
//	data, err := store.Get(ctx, "snapshots/logging-prod-eu1/3f2b9c1e")
//
//	// List all snapshots for a cluster
//	keys, err := store.List(ctx, "snapshots/logging-prod-eu1/")
type Store interface {
	// Put stores binary data at the specified key. Writing an existing key
	// replaces the visible value; versioned backends may keep history.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves binary data for the specified key.
	// Returns an error wrapping errors.ErrSnapshotNotFound when the key
	// does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys under a prefix, in lexicographic order. An
	// empty prefix lists everything; "snapshots/logging-prod-eu1/" lists
	// one cluster's snapshots. No matches yields an empty slice, not an
	// error.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at key. Deleting a missing key is a no-op
	// and returns nil.
	Delete(ctx context.Context, key string) error
}
