package escluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// IndexStats holds per-index storage figures from the indices stats API.
type IndexStats struct {
	Index            string `json:"index"`
	SizeBytes        int64  `json:"size_bytes"`         // total store size (primaries + replicas)
	PrimarySizeBytes int64  `json:"primary_size_bytes"` // primaries store size
	DocsCount        int64  `json:"docs_count"`
}

// ShardSizes holds the primary/replica store split for one index,
// summed from shard-level stats.
type ShardSizes struct {
	PrimaryBytes int64 `json:"primary_bytes"`
	ReplicaBytes int64 `json:"replica_bytes"`
}

// TotalBytes returns the combined primary and replica store size.
func (s ShardSizes) TotalBytes() int64 {
	return s.PrimaryBytes + s.ReplicaBytes
}

// TimestampRange holds the earliest and latest @timestamp observed in an
// index. Zero values mean the index has no @timestamp field (or no docs).
type TimestampRange struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// DurationHours returns the span between first and last document in hours.
// Returns 0 when either bound is missing or the span is non-positive.
func (r TimestampRange) DurationHours() float64 {
	if r.First.IsZero() || r.Last.IsZero() {
		return 0
	}
	h := r.Last.Sub(r.First).Hours()
	if h <= 0 {
		return 0
	}
	return h
}

// DataStream describes one datastream and its backing indices.
type DataStream struct {
	Name           string   `json:"name"`
	Generation     int      `json:"generation"`
	BackingIndices []string `json:"backing_indices"`
	Template       string   `json:"template,omitempty"`
	ILMPolicy      string   `json:"ilm_policy,omitempty"`
}

// Document is one bulk-load document with a caller-assigned ID.
type Document struct {
	ID     string          `json:"id"`
	Source json.RawMessage `json:"source"`
}

// BulkStats summarizes one bulk-load run.
type BulkStats struct {
	Added   uint64 `json:"added"`
	Flushed uint64 `json:"flushed"`
	Failed  uint64 `json:"failed"`
}

// API is the cluster boundary used by pipeline components. A nil API is
// valid in Dependencies for replay-only pipelines (csvfile input feeding
// csvreport output); components that require the cluster fail creation
// when it is absent.
type API interface {
	// ListIndices returns all index names in the cluster, including
	// datastream backing indices (.ds-*). Other system indices
	// (leading-dot, non-.ds-) are filtered out.
	ListIndices(ctx context.Context) ([]string, error)

	// IndexStats returns store size and doc count for one index.
	IndexStats(ctx context.Context, index string) (IndexStats, error)

	// ShardStats returns the primary/replica store split for every index,
	// from shard-level stats in a single call.
	ShardStats(ctx context.Context) (map[string]ShardSizes, error)

	// FirstLastTimestamps returns the earliest and latest @timestamp in
	// the index. Indices without the field yield a zero TimestampRange
	// and no error.
	FirstLastTimestamps(ctx context.Context, index string) (TimestampRange, error)

	// ActiveBetween reports whether the index holds at least one document
	// with @timestamp in [from, to).
	ActiveBetween(ctx context.Context, index string, from, to time.Time) (bool, error)

	// IndicesWithDataBetween lists indices with at least one document in
	// [from, to). Indices that error on search are skipped, not fatal.
	IndicesWithDataBetween(ctx context.Context, from, to time.Time) ([]string, error)

	// DataStreams returns every datastream with its backing indices,
	// generation and ILM policy name. Results are cached.
	DataStreams(ctx context.Context) ([]DataStream, error)

	// ILMPhases returns the per-phase summary for an ILM policy: phase
	// name to compact JSON of the phase definition. Results are cached.
	ILMPhases(ctx context.Context, policy string) (map[string]string, error)

	// Bulk indexes documents into the target index using each document's
	// ID as the _id.
	Bulk(ctx context.Context, index string, docs []Document) (BulkStats, error)
}

// DocumentID returns the deterministic document ID for a raw index name:
// the SHA-256 hex digest of the name. The same name always maps to the
// same _id, so repeated loads overwrite rather than duplicate.
func DocumentID(indexName string) string {
	sum := sha256.Sum256([]byte(indexName))
	return hex.EncodeToString(sum[:])
}
