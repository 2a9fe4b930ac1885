package message

import (
	"encoding/json"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// DatastreamAggregateMessage is the message type for per-datastream size
// aggregates emitted by the dsaggregate processor.
var DatastreamAggregateMessage = Type{
	Domain:   "inventory",
	Category: "datastream",
	Version:  "v1",
}

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "inventory",
		Category:    "datastream",
		Version:     "v1",
		Description: "Per-datastream aggregate: summed backing index sizes, generation and ILM summary",
		Factory: func() any {
			return &DatastreamAggregatePayload{}
		},
		Example: map[string]any{
			"cluster":       "logging-prod-eu1",
			"datastream":    "logs-nginx.access",
			"generation":    3,
			"total_bytes":   3221225472,
			"primary_bytes": 1610612736,
			"ilm_policy":    "logs-30d",
		},
	})
	if err != nil {
		panic("failed to register DatastreamAggregate payload: " + err.Error())
	}
}

// DatastreamAggregatePayload sums the backing indices of one datastream.
// Replica bytes are total minus primary; both are carried so consumers do
// not re-derive them.
type DatastreamAggregatePayload struct {
	Cluster    string `json:"cluster"`
	Datastream string `json:"datastream"`

	// Generation is the datastream's rollover generation at scan time.
	Generation int `json:"generation"`

	// BackingIndices is how many backing indices were summed.
	BackingIndices int `json:"backing_indices"`

	PrimaryBytes int64 `json:"primary_bytes"`
	ReplicaBytes int64 `json:"replica_bytes"`
	TotalBytes   int64 `json:"total_bytes"`

	// Environment is the keyword classification of the datastream name.
	Environment string `json:"environment,omitempty"`

	// ILMPolicy names the lifecycle policy bound to the datastream, if any.
	ILMPolicy string `json:"ilm_policy,omitempty"`

	// ILMPhases is the compact per-phase summary (for example
	// "hot:rollover=30gb|delete:min_age=30d").
	ILMPhases string `json:"ilm_phases,omitempty"`

	// ScanID correlates the aggregate with the scan pass it came from.
	ScanID string `json:"scan_id,omitempty"`
}

// Schema returns the payload type identifier (inventory.datastream.v1).
func (p *DatastreamAggregatePayload) Schema() Type {
	return DatastreamAggregateMessage
}

// Validate checks required fields and value ranges.
func (p *DatastreamAggregatePayload) Validate() error {
	if p.Datastream == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "DatastreamAggregatePayload", "Validate",
			"datastream name cannot be empty")
	}
	if p.TotalBytes < 0 || p.PrimaryBytes < 0 || p.ReplicaBytes < 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "DatastreamAggregatePayload", "Validate",
			"sizes cannot be negative")
	}
	return nil
}

// MarshalJSON serializes the payload.
func (p *DatastreamAggregatePayload) MarshalJSON() ([]byte, error) {
	// Use alias to avoid infinite recursion
	type Alias DatastreamAggregatePayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON deserializes the payload.
func (p *DatastreamAggregatePayload) UnmarshalJSON(data []byte) error {
	// Use alias to avoid infinite recursion
	type Alias DatastreamAggregatePayload
	return json.Unmarshal(data, (*Alias)(p))
}
