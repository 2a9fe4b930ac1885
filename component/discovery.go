// Discoverable and the metadata types it exposes.
package component

import "time"

// Discoverable is what every pipeline component implements so the
// management layer can inspect it at runtime: inputs scanning clusters,
// processors classifying rows, outputs writing reports, and the snapshot
// store.
type Discoverable interface {
	Meta() Metadata
	InputPorts() []Port
	OutputPorts() []Port
	ConfigSchema() ConfigSchema
	Health() HealthStatus
	DataFlow() FlowMetrics
}

// Metadata identifies a component instance.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Type        string `json:"type"` // "input", "processor", "output", "storage"
}

// ConfigSchema describes a component's configuration parameters.
type ConfigSchema struct {
	Required   []string                  `json:"required"`
	Properties map[string]PropertySchema `json:"properties"`
}

// PropertySchema describes a single configuration property. Type is one
// of "string", "int", "bool", "float", "enum", "array", "object",
// "ports", or "cache".
type PropertySchema struct {
	Type        string                    `json:"type"`
	Description string                    `json:"description"`
	Default     any                       `json:"default,omitempty"`
	Enum        []string                  `json:"enum,omitempty"`
	Minimum     *int                      `json:"minimum,omitempty"`
	Maximum     *int                      `json:"maximum,omitempty"`
	Category    string                    `json:"category,omitempty"`    // "basic" or "advanced"
	PortFields  map[string]PortFieldInfo  `json:"portFields,omitempty"`  // when Type is "ports"
	CacheFields map[string]CacheFieldInfo `json:"cacheFields,omitempty"` // when Type is "cache"
}

// HealthStatus is a component's view of its own health.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Uptime     time.Duration `json:"uptime"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
}

// FlowMetrics reports throughput as seen by the component itself, e.g.
// classified rows per second for a processor.
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	BytesPerSecond    float64   `json:"bytes_per_second"`
	LastActivity      time.Time `json:"last_activity"`
}
