// Package snapshotstore persists completed scan passes as immutable
// snapshot objects in a NATS JetStream object store bucket.
//
// The component listens to the same classified-row stream the reports
// consume, accumulates rows per scan ID, and on the scan's completion
// marker freezes the whole pass into a single Snapshot object. Stored
// snapshots let reports and audits be replayed later without touching
// the Elasticsearch cluster again.
//
// # Key Layout
//
// Snapshot keys are hierarchical:
//
//	snapshots/<cluster>/<scan-id>
//
// Listing with the prefix "snapshots/<cluster>/" enumerates every stored
// pass of one cluster in lexicographic order.
//
// # Ports
//
// The component wires four ports:
//
//   - classified (input, required): inventory.classified.v1 rows to accumulate
//   - markers (input, required): inventory.scanmarker.v1 lifecycle markers;
//     only a marker with complete=true triggers persistence
//   - api (input, optional): request/reply subject for get, list and delete
//   - events (output, optional): storage events published after a snapshot
//     is stored or deleted
//
// # API
//
// The api port speaks a small JSON request/reply protocol:
//
//	// Retrieve one snapshot
//	{"action": "get", "cluster": "logging-prod-eu1", "scan_id": "3f2b9c1e"}
//
//	// List snapshot keys, optionally scoped to a cluster
//	{"action": "list", "cluster": "logging-prod-eu1"}
//
//	// Delete one snapshot
//	{"action": "delete", "cluster": "logging-prod-eu1", "scan_id": "3f2b9c1e"}
//
// Responses carry success, the snapshot JSON (get) or matching keys (list).
//
// # Storage Backend
//
// Store implements the storage.Store interface over a JetStream object
// store bucket created through the natsclient bucket helpers. Reads are
// served through a configurable in-memory cache (pkg/cache); the bucket
// remains the source of truth and cache failures are never fatal.
//
// Scans that never see a completion marker (crashed scanner, dropped
// marker) are evicted after the configured stale_after duration so the
// accumulation map cannot grow without bound.
package snapshotstore
