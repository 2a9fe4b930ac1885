// Package types contains shared domain types used across the ingest
// calculator: component and service configuration envelopes and platform
// identity.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// ComponentType is a component's pipeline role: inputs produce index
// rows, processors transform them, outputs write the results, storage
// persists state between scans.
type ComponentType string

const (
	ComponentTypeInput     ComponentType = "input"
	ComponentTypeProcessor ComponentType = "processor"
	ComponentTypeOutput    ComponentType = "output"
	ComponentTypeStorage   ComponentType = "storage"
)

// ComponentConfig provides configuration for creating a component instance.
// The instance name comes from the map key in the components configuration.
// This structure is shared between the config and component packages.
type ComponentConfig struct {
	Type    ComponentType   `json:"type"`    // Component type (input/processor/output/storage)
	Name    string          `json:"name"`    // Factory/component name (e.g., "clusterscan", "csvreport")
	Enabled bool            `json:"enabled"` // Whether component is enabled
	Config  json.RawMessage `json:"config"`  // Component-specific configuration
}

// Validate checks the type against the known roles and requires a
// factory name.
func (c ComponentConfig) Validate() error {
	switch {
	case c.Type == "":
		return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
			"component type cannot be empty")
	case c.Name == "":
		return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
			"component factory name cannot be empty")
	}

	switch c.Type {
	case ComponentTypeInput, ComponentTypeProcessor, ComponentTypeOutput, ComponentTypeStorage:
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ComponentConfig", "Validate",
			fmt.Sprintf("invalid component type: %s", c.Type))
	}
}

func (ct ComponentType) String() string { return string(ct) }

// PlatformMeta provides deployment identity to services and components.
// It decouples identity from the config package so components can label
// their output (reports, bulk-loaded documents) with the owning org and
// monitored cluster without importing configuration structures.
type PlatformMeta struct {
	Org     string // Organization namespace (e.g., "platform-ops")
	Cluster string // Monitored cluster identifier (e.g., "logging-prod-eu1")
}
