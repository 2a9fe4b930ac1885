// Package storage provides the pluggable backend interface for snapshot
// persistence.
//
// The Store interface is deliberately a flat key-value contract: keys are
// strings, values are raw bytes (in practice JSON-encoded snapshots), and
// every operation takes a context.Context for cancellation and timeouts.
// Queries, indexes, and transactions stay out of the interface so that
// object stores, databases, and filesystems can all implement it, and so
// the snapshot shaping logic lives in the component layer where it
// belongs. The one backend shipped today is the NATS JetStream object
// store in storage/snapshotstore; S3 or MinIO would slot in behind the
// same interface.
//
// Keys use "/" separators by convention:
//
//	snapshots/<cluster>/<scan-id>
//
// The interface does not enforce this, but it maps directly onto object
// store naming and gives List a natural per-cluster prefix.
//
// Implementations classify failures through the errors package: a missing
// key comes back as errors.ErrSnapshotNotFound wrapped Invalid (never
// retried), while network timeouts and bucket hiccups are Transient so the
// snapshot component's retry policy picks them up.
//
// Every Store must tolerate concurrent use from multiple goroutines.
// Backend tests run against the real thing, not mocks: the natsclient
// embedded test server stands up JetStream in-process, which keeps the
// context-cancellation and timeout paths honest.
package storage
