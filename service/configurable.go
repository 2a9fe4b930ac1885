package service

import (
	"github.com/eijnar/es-daily-ingest-calculator/component"
)

// Configurable is implemented by services that can describe their own
// configuration, including which properties can change at runtime. The
// metrics service implements it; the config HTTP endpoints use it for
// validation.
type Configurable interface {
	ConfigSchema() ConfigSchema
}

// RuntimeConfigurable marks a service that can absorb config changes
// without a restart. The manager validates changes first and falls back
// to a restart for services that do not implement this.
type RuntimeConfigurable interface {
	Configurable

	ValidateConfigUpdate(changes map[string]any) error
	ApplyConfigUpdate(changes map[string]any) error
	GetRuntimeConfig() map[string]any
}

// ConfigSchema reuses the component schema shape so services and
// components validate the same way.
type ConfigSchema struct {
	component.ConfigSchema

	ServiceSpecific map[string]any `json:"service_specific,omitempty"`
}

// PropertySchema adds the runtime flag on top of the component property
// schema.
type PropertySchema struct {
	component.PropertySchema

	// Runtime marks properties that ApplyConfigUpdate can change live.
	Runtime bool `json:"runtime,omitempty"`

	Category string `json:"category,omitempty"`
}

// NewConfigSchema builds a service schema from extended property
// schemas, flattening them to the component shape.
func NewConfigSchema(properties map[string]PropertySchema, required []string) ConfigSchema {
	flat := make(map[string]component.PropertySchema, len(properties))
	for key, prop := range properties {
		flat[key] = prop.PropertySchema
	}
	return ConfigSchema{ConfigSchema: component.ConfigSchema{Properties: flat, Required: required}}
}
