package message

import (
	"encoding/json"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// ScanMarkerMessage is the message type for scan lifecycle markers. A
// marker with Complete=true tells accumulating consumers (dsaggregate,
// csvreport) that every row of the scan has been published.
var ScanMarkerMessage = Type{
	Domain:   "inventory",
	Category: "scanmarker",
	Version:  "v1",
}

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "inventory",
		Category:    "scanmarker",
		Version:     "v1",
		Description: "Scan lifecycle marker signalling start or completion of one scan pass",
		Factory: func() any {
			return &ScanMarkerPayload{}
		},
		Example: map[string]any{
			"cluster":     "logging-prod-eu1",
			"scan_id":     "3f2b9c1e",
			"complete":    true,
			"index_count": 412,
		},
	})
	if err != nil {
		panic("failed to register ScanMarker payload: " + err.Error())
	}
}

// ScanMarkerPayload brackets one scan pass over a cluster or export file.
type ScanMarkerPayload struct {
	Cluster string `json:"cluster"`
	ScanID  string `json:"scan_id"`

	// Complete is false for the start marker, true for the end marker.
	Complete bool `json:"complete"`

	// IndexCount is the number of rows published, set on the end marker.
	IndexCount int `json:"index_count,omitempty"`
}

// Schema returns the payload type identifier (inventory.scanmarker.v1).
func (p *ScanMarkerPayload) Schema() Type {
	return ScanMarkerMessage
}

// Validate checks required fields.
func (p *ScanMarkerPayload) Validate() error {
	if p.ScanID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "ScanMarkerPayload", "Validate", "scan id cannot be empty")
	}
	return nil
}

// MarshalJSON serializes the payload.
func (p *ScanMarkerPayload) MarshalJSON() ([]byte, error) {
	// Use alias to avoid infinite recursion
	type Alias ScanMarkerPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON deserializes the payload.
func (p *ScanMarkerPayload) UnmarshalJSON(data []byte) error {
	// Use alias to avoid infinite recursion
	type Alias ScanMarkerPayload
	return json.Unmarshal(data, (*Alias)(p))
}
