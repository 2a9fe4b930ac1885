package service

import "fmt"

// builtins are the service constructors every deployment carries: the
// metrics endpoint and the component manager that runs the pipeline.
var builtins = map[string]Constructor{
	"metrics":           NewMetrics,
	"component-manager": NewComponentManager,
}

// RegisterAll adds the built-in services to the registry.
func RegisterAll(registry *Registry) error {
	for name, constructor := range builtins {
		if err := registry.Register(name, constructor); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}
