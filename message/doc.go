// Package message defines the typed message envelope that moves inventory
// data between pipeline components.
//
// # Overview
//
// Every component exchanges message.Message values over NATS. A message is
// an immutable envelope: a UUID, a structured Type (domain.category.version),
// a typed Payload and Meta (created/received timestamps plus source). The
// standard implementation is BaseMessage.
//
// # Message types
//
// The inventory pipeline defines four payload types:
//
//   - inventory.index.v1 (IndexRowPayload): one raw per-index row from a
//     scan input: name, store size, doc timestamps, derived daily ingest.
//   - inventory.classified.v1 (ClassifiedRowPayload): a row enriched with
//     the decomposed index name (indexname.Parsed) and the keyword
//     environment bucket.
//   - inventory.datastream.v1 (DatastreamAggregatePayload): summed backing
//     index sizes per datastream with generation and ILM summary.
//   - inventory.scanmarker.v1 (ScanMarkerPayload): start/completion marker
//     bracketing one scan pass.
//
// core.json.v1 (GenericJSONPayload) remains available as an escape hatch
// for debug taps and tests.
//
// # Wire format
//
// BaseMessage marshals to a stable JSON wire format:
//
//	{
//	  "id": "550e8400-e29b-41d4-a716-446655440000",
//	  "type": {"Domain": "inventory", "Category": "index", "Version": "v1"},
//	  "payload": { ... },
//	  "meta": {"created_at": 1705276800000, "received_at": 1705276800123, "source": "clusterscan-input"}
//	}
//
// Timestamps are Unix milliseconds (see pkg/timestamp). Unmarshalling
// recreates the typed payload through the component package's payload
// registry; each payload type registers its factory in an init function in
// this package.
//
// # Content hashing
//
// Message.Hash returns the SHA-256 hex digest of the message type and the
// marshalled payload. The bulkload output reuses the same digest primitive
// for deterministic document IDs, so re-loading the same index name always
// targets the same document.
//
// # Usage
//
//	row := &message.IndexRowPayload{
//	    Cluster:   "logging-prod-eu1",
//	    IndexName: ".ds-logs-nginx.access-2024.01.15-000003",
//	    SizeBytes: 1 << 30,
//	}
//	msg := message.NewBaseMessage(message.IndexRowMessage, row, "clusterscan-input")
//	data, err := msg.MarshalJSON()
package message
