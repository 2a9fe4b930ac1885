package types

import (
	"encoding/json"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// ServiceConfig is the per-service block in the deployment config. Like
// ComponentConfig it separates the metadata (name, enabled) from the
// service's own settings, which stay raw until the service parses them.
type ServiceConfig struct {
	Name    string          `json:"name"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// Validate rejects a block without a name. An empty Config is fine, the
// service falls back to its defaults, and Enabled false simply skips it.
func (s ServiceConfig) Validate() error {
	if s.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ServiceConfig", "Validate", "service name cannot be empty")
	}
	return nil
}

// ServiceConfigs maps service name ("metrics", "component-manager") to
// its config block. A service only runs when it registered a constructor
// in init AND its entry here says enabled.
type ServiceConfigs map[string]ServiceConfig
