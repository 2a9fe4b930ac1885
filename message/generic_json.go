package message

import (
	"encoding/json"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

func init() {
	reg := &component.PayloadRegistration{
		Domain: "core", Category: "json", Version: "v1",
		Description: "Generic JSON payload for testing, prototyping, and basic data processing",
		Factory:     func() any { return &GenericJSONPayload{} },
		Example: map[string]any{"data": map[string]any{
			"index_name": ".ds-logs-nginx.access-2024.01.15-000003",
			"size_bytes": 1073741824,
			"cluster":    "logging-prod-eu1",
		}},
	}
	if err := component.RegisterPayload(reg); err != nil {
		panic("failed to register GenericJSON payload: " + err.Error())
	}
}

// GenericJSONPayload carries arbitrary JSON under the well-known
// core.json.v1 type. Components that accept it declare "core.json.v1" on
// their ports, which keeps the contract checkable even though the data
// shape is free-form. Typed payloads like inventory.index.v1 are
// preferred for production flows; this one is for prototyping and tests.
type GenericJSONPayload struct {
	Data map[string]any `json:"data"`
}

// NewGenericJSON wraps data in a GenericJSONPayload.
func NewGenericJSON(data map[string]any) *GenericJSONPayload {
	return &GenericJSONPayload{Data: data}
}

func (g *GenericJSONPayload) Schema() Type {
	return Type{Domain: "core", Category: "json", Version: "v1"}
}

func (g *GenericJSONPayload) Validate() error {
	if g.Data != nil {
		return nil
	}
	return errors.WrapInvalid(errors.ErrInvalidData, "GenericJSONPayload", "Validate", "data cannot be nil")
}

func (g *GenericJSONPayload) MarshalJSON() ([]byte, error) {
	type alias GenericJSONPayload // avoid recursing into this method
	return json.Marshal((*alias)(g))
}

func (g *GenericJSONPayload) UnmarshalJSON(data []byte) error {
	type alias GenericJSONPayload
	return json.Unmarshal(data, (*alias)(g))
}
