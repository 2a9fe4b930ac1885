package service

import (
	"fmt"
	"maps"
	"sync"
)

// Registry maps service names to their constructors. The ingest pipeline
// registers two services at startup: the component manager that runs the
// scan/classify/report components, and the service manager HTTP surface.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under a unique name.
func (r *Registry) Register(name string, ctor Constructor) error {
	switch {
	case name == "":
		return fmt.Errorf("service name cannot be empty")
	case ctor == nil:
		return fmt.Errorf("constructor cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.constructors[name]; dup {
		return fmt.Errorf("service %s already registered", name)
	}
	r.constructors[name] = ctor
	return nil
}

// Constructor looks up the constructor for a service name.
func (r *Registry) Constructor(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.constructors[name]
	return ctor, ok
}

// Services returns all registered service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		out = append(out, name)
	}
	return out
}

// Constructors returns a copy of the constructor map.
func (r *Registry) Constructors() map[string]Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.constructors)
}
