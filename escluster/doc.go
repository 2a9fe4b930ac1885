// Package escluster is the boundary to the monitored Elasticsearch cluster.
//
// # Overview
//
// All cluster traffic in the pipeline goes through the API interface defined
// here. Components receive it via component.Dependencies.Cluster, which keeps
// them testable without a live cluster: tests swap in a fake API (or a Client
// over a mock http.RoundTripper).
//
// Client implements API over github.com/elastic/go-elasticsearch/v8, using
// esapi for reads and esutil.BulkIndexer for bulk loads. The same operations
// the reporting scripts issue are exposed as typed methods:
//
//   - ListIndices: cat indices (names only)
//   - IndexStats / ShardStats: store sizes and doc counts, per index or
//     per shard with the primary/replica split
//   - FirstLastTimestamps: earliest and latest @timestamp via single-hit
//     sorted searches
//   - ActiveBetween / IndicesWithDataBetween: range-query activity checks
//   - DataStreams / ILMPhases: datastream-to-backing-index map, generation,
//     ILM policy name and per-phase compact-JSON summaries
//   - Bulk: bulk index with caller-supplied deterministic document IDs
//
// # Document identity
//
// DocumentID returns the SHA-256 hex digest of the raw index name. Bulk
// loads use it as the document _id so re-loading the same index name always
// overwrites the same document instead of accumulating duplicates.
//
// # Caching
//
// DataStreams and ILMPhases responses change slowly relative to a scan, so
// Client memoizes them in pkg/cache TTL caches (default 5m). Lookups during
// one aggregation pass hit the cluster once.
package escluster
