package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eijnar/es-daily-ingest-calculator/component"
)

// ComponentRegistry is the slice of the component registry that schema
// validation needs. Narrow so tests can stub it.
type ComponentRegistry interface {
	GetComponentSchema(componentType string) (component.ConfigSchema, error)
}

// ValidateWithSchema checks a component config against the schema its
// factory declares. Runs before a config change is applied, so bad values
// are rejected while they are still a 400, not a broken component.
func (cm *Manager) ValidateWithSchema(ctx context.Context, registry ComponentRegistry,
	componentType string, settings map[string]any) []component.ValidationError {
	if ctx.Err() != nil {
		return []component.ValidationError{{Field: "context", Message: "validation cancelled"}}
	}
	if registry == nil {
		cm.logger.Warn("Registry is nil, skipping schema validation", "component_type", componentType)
		return nil
	}

	schema, err := registry.GetComponentSchema(componentType)
	if err != nil {
		// Unknown type or no schema registered. Components without schemas
		// still work, so this logs rather than fails.
		cm.logger.Warn("Failed to get component schema for validation", "component_type", componentType, "error", err)
		return nil
	}
	if len(schema.Properties) == 0 {
		cm.logger.Debug("Component has no schema defined, skipping validation", "component_type", componentType)
		return nil
	}

	validationErrors := component.ValidateConfig(settings, schema)
	if len(validationErrors) > 0 {
		cm.logger.Info("Configuration validation failed",
			"component_type", componentType, "error_count", len(validationErrors))
	}
	return validationErrors
}

// ValidateComponentConfig is ValidateWithSchema for raw JSON, as it arrives
// on the config API.
func (cm *Manager) ValidateComponentConfig(ctx context.Context, registry ComponentRegistry,
	componentType string, configJSON json.RawMessage) []component.ValidationError {
	var settings map[string]any
	if err := json.Unmarshal(configJSON, &settings); err != nil {
		return []component.ValidationError{{
			Message: fmt.Sprintf("Invalid JSON configuration: %v", err),
			Code:    "type",
		}}
	}
	return cm.ValidateWithSchema(ctx, registry, componentType, settings)
}
