package message

import "encoding/json"

// Payload is the body a message carries: an index row, a classified
// name, a data stream total. Every payload declares its own schema and
// validation, and marshals deterministically so content hashes are
// stable.
//
//	type IndexRowPayload struct {
//	    Cluster   string `json:"cluster"`
//	    IndexName string `json:"index_name"`
//	    SizeBytes int64  `json:"size_bytes"`
//	}
//
//	func (p *IndexRowPayload) Schema() Type {
//	    return Type{Domain: "inventory", Category: "index", Version: "v1"}
//	}
//
// The MarshalJSON/UnmarshalJSON pair is usually the alias trick:
//
//	func (p *IndexRowPayload) MarshalJSON() ([]byte, error) {
//	    type alias IndexRowPayload
//	    return json.Marshal((*alias)(p))
//	}
type Payload interface {
	// Schema names the Type this payload fills, which drives routing.
	Schema() Type

	// Validate checks required fields, value ranges, and the payload's
	// domain rules.
	Validate() error

	// Marshaling must be deterministic: the same payload always yields
	// the same bytes.
	json.Marshaler
	json.Unmarshaler
}
