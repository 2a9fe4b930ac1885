package message

import (
	"encoding/json"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/indexname"
)

// ClassifiedRowMessage is the message type for inventory rows enriched
// with the decomposed index name.
var ClassifiedRowMessage = Type{
	Domain:   "inventory",
	Category: "classified",
	Version:  "v1",
}

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "inventory",
		Category:    "classified",
		Version:     "v1",
		Description: "Inventory row enriched with the decomposed index name and environment keyword",
		Factory: func() any {
			return &ClassifiedRowPayload{}
		},
		Example: map[string]any{
			"row": map[string]any{
				"cluster":    "logging-prod-eu1",
				"index_name": ".ds-logs-nginx.access-2024.01.15-000003",
				"size_bytes": 1073741824,
			},
			"parsed": map[string]any{
				"scheme":    "datastream-structured",
				"dataset":   "nginx",
				"namespace": "access",
			},
			"environment_keyword": "prod",
		},
	})
	if err != nil {
		panic("failed to register ClassifiedRow payload: " + err.Error())
	}
}

// ClassifiedRowPayload is the classify processor's output: the original
// inventory row plus the decomposition of its index name and, when the
// engine yields no environment token, the keyword-based environment bucket.
type ClassifiedRowPayload struct {
	// Row is the raw inventory row as received.
	Row IndexRowPayload `json:"row"`

	// Parsed is the decomposed index name. For unrecognized names every
	// optional field is nil and only the scheme is set.
	Parsed indexname.Parsed `json:"parsed"`

	// EnvironmentKeyword is the keyword-scan classification of the index
	// name, filled only when Parsed carries no environment. Values:
	// nonprod, prod, dev, default, operations, other.
	EnvironmentKeyword string `json:"environment_keyword,omitempty"`
}

// Environment returns the effective environment for reporting: the
// engine's token when present, else the keyword bucket.
func (p *ClassifiedRowPayload) Environment() string {
	if p.Parsed.Environment != nil && *p.Parsed.Environment != "" {
		return *p.Parsed.Environment
	}
	return p.EnvironmentKeyword
}

// Schema returns the payload type identifier (inventory.classified.v1).
func (p *ClassifiedRowPayload) Schema() Type {
	return ClassifiedRowMessage
}

// Validate checks the embedded row and the scheme discriminant.
func (p *ClassifiedRowPayload) Validate() error {
	if err := p.Row.Validate(); err != nil {
		return err
	}
	switch p.Parsed.Scheme {
	case indexname.SchemeLegacyDotted, indexname.SchemeStructured,
		indexname.SchemeTextualFallback, indexname.SchemeUnrecognized:
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "ClassifiedRowPayload", "Validate",
			"unknown scheme: "+string(p.Parsed.Scheme))
	}
}

// MarshalJSON serializes the payload.
func (p *ClassifiedRowPayload) MarshalJSON() ([]byte, error) {
	// Use alias to avoid infinite recursion
	type Alias ClassifiedRowPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON deserializes the payload.
func (p *ClassifiedRowPayload) UnmarshalJSON(data []byte) error {
	// Use alias to avoid infinite recursion
	type Alias ClassifiedRowPayload
	return json.Unmarshal(data, (*Alias)(p))
}
