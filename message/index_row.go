package message

import (
	"encoding/json"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// IndexRowMessage is the message type for raw per-index inventory rows
// emitted by the scan inputs (live cluster scan or CSV replay).
var IndexRowMessage = Type{
	Domain:   "inventory",
	Category: "index",
	Version:  "v1",
}

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "inventory",
		Category:    "index",
		Version:     "v1",
		Description: "Raw per-index inventory row: name, store size, doc timestamps and derived daily ingest",
		Factory: func() any {
			return &IndexRowPayload{}
		},
		Example: map[string]any{
			"cluster":         "logging-prod-eu1",
			"index_name":      ".ds-logs-nginx.access-2024.01.15-000003",
			"size_bytes":      1073741824,
			"docs_count":      2500000,
			"first_doc_ms":    1705276800000,
			"last_doc_ms":     1705363200000,
			"daily_ingest_mb": 1024.0,
			"active_today":    true,
		},
	})
	if err != nil {
		panic("failed to register IndexRow payload: " + err.Error())
	}
}

// IndexRowPayload carries one index worth of inventory data from a scan
// input to the classification processor. Timestamps are Unix milliseconds;
// zero means the index had no documents carrying the timestamp field.
type IndexRowPayload struct {
	// Cluster labels which monitored cluster the row came from. For CSV
	// replays it is derived from the export filename.
	Cluster string `json:"cluster"`

	// IndexName is the raw index or backing-index name, verbatim.
	IndexName string `json:"index_name"`

	// SizeBytes is the total store size including replicas.
	SizeBytes int64 `json:"size_bytes"`

	// PrimarySizeBytes is the primary-shard store size. Zero when the
	// source (for example an older CSV export) did not record it.
	PrimarySizeBytes int64 `json:"primary_size_bytes,omitempty"`

	// DocsCount is the document count at scan time.
	DocsCount int64 `json:"docs_count"`

	// FirstDocMs and LastDocMs bound the documents' timestamp field.
	FirstDocMs int64 `json:"first_doc_ms,omitempty"`
	LastDocMs  int64 `json:"last_doc_ms,omitempty"`

	// DailyIngestMB is the derived figure (size scaled to a 24h window),
	// rounded to two decimals.
	DailyIngestMB float64 `json:"daily_ingest_mb"`

	// ActiveToday reports whether any document arrived in the current day.
	ActiveToday bool `json:"active_today"`

	// ScanID correlates all rows of one scan pass.
	ScanID string `json:"scan_id,omitempty"`
}

// Schema returns the payload type identifier (inventory.index.v1).
func (p *IndexRowPayload) Schema() Type {
	return IndexRowMessage
}

// Validate checks required fields and value ranges.
func (p *IndexRowPayload) Validate() error {
	if p.IndexName == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "IndexRowPayload", "Validate", "index name cannot be empty")
	}
	if p.SizeBytes < 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "IndexRowPayload", "Validate", "size cannot be negative")
	}
	if p.DocsCount < 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "IndexRowPayload", "Validate", "docs count cannot be negative")
	}
	return nil
}

// MarshalJSON serializes the payload.
func (p *IndexRowPayload) MarshalJSON() ([]byte, error) {
	// Use alias to avoid infinite recursion
	type Alias IndexRowPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON deserializes the payload.
func (p *IndexRowPayload) UnmarshalJSON(data []byte) error {
	// Use alias to avoid infinite recursion
	type Alias IndexRowPayload
	return json.Unmarshal(data, (*Alias)(p))
}
