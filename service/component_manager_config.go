package service

// ComponentManagerConfig configures the ComponentManager service that runs
// the scan inputs, classify/aggregate processors and report outputs.
type ComponentManagerConfig struct {
	WatchConfig       bool     `json:"watch_config"`       // react to config updates over NATS
	EnabledComponents []string `json:"enabled_components"` // empty enables every configured component
}

// Validate checks if the configuration is valid.
func (c ComponentManagerConfig) Validate() error {
	// Component names are validated when the components are created;
	// an empty EnabledComponents list means all.
	return nil
}
