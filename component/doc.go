// Package component defines the building blocks of the ingest pipeline:
// self-describing components, the factory registry that creates them, and
// the port model that wires them together.
//
// Four component types exist: inputs (scan sources), processors (row
// transformers), outputs (report sinks), and storage (snapshot
// persistence). Every component implements Discoverable, which exposes its
// metadata, ports, config schema, health, and flow metrics for runtime
// introspection.
//
// # Registration
//
// Components register explicitly rather than through init() side effects.
// Each component package exports Register(*Registry) error, and
// componentregistry.RegisterAll wires them all up from main. Isolated test
// registries fall out of this for free:
//
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:        "clusterscan",
//			Factory:     CreateInput,
//			Type:        "input",
//			Protocol:    "https",
//			Domain:      "inventory",
//			Description: "Scans a cluster for index names and storage statistics",
//			Version:     "1.0.0",
//		})
//	}
//
// Instances are then created from a types.ComponentConfig plus injected
// Dependencies (NATS client, logger, platform identity):
//
//	registry := component.NewRegistry()
//	if err := componentregistry.RegisterAll(registry); err != nil {
//		return err
//	}
//
//	config := types.ComponentConfig{
//		Type:    types.ComponentTypeInput,
//		Name:    "clusterscan",
//		Enabled: true,
//		Config:  json.RawMessage(`{"scan_interval": "24h", "pacing_delay": "100ms"}`),
//	}
//	deps := component.Dependencies{
//		NATSClient: natsClient,
//		Platform:   component.PlatformMeta{Org: "platform-ops", Cluster: "logging-prod-eu1"},
//		Logger:     slog.Default(),
//	}
//
//	instance, err := registry.CreateComponent("clusterscan-1", config, deps)
//
// Factories receive the raw JSON config and parse and validate it
// themselves:
//
//	type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)
//
// # Ports
//
// A component declares its I/O as Ports whose Config is one of the
// Portable implementations. NATSPort carries pub/sub subjects like
// inventory.index.v1, NATSRequestPort adds request/reply with a timeout,
// NetworkPort claims a TCP/UDP binding, and FilePort claims a filesystem
// path. The registry uses exclusive port resource IDs to reject two
// instances fighting over the same listener or file:
//
//	func (c *Input) OutputPorts() []component.Port {
//		return []component.Port{{
//			Name:      "rows",
//			Direction: component.DirectionOutput,
//			Required:  true,
//			Config:    component.NATSPort{Subject: "inventory.index.v1"},
//		}}
//	}
//
// # Config schemas
//
// ConfigSchema describes a component's settings so they can be validated
// before persistence and rendered with defaults. Property types are
// string, int, bool, float, enum, object, and array; each may carry
// min/max or pattern constraints and a basic/advanced category.
// ValidateConfig returns field-level errors:
//
//	errors := component.ValidateConfig(map[string]any{"stats_workers": 0}, schema)
//	// [{Field: "stats_workers", Message: "stats_workers must be >= 1", Code: "min"}]
//
// A component without a schema still runs; the manager logs a warning and
// skips schema validation for it.
//
// # Concurrency and errors
//
// All Registry operations are safe for concurrent use. Registration and
// creation failures come back as classified errors from the errors
// package; duplicates, unknown factories, and malformed registrations
// carry the invalid class, which the HTTP layer maps to 400.
package component
