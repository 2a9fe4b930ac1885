package component

import (
	"context"
	"time"
)

// State is the lifecycle state of a managed component.
type State int

const (
	// StateCreated means the component exists but Initialize has not run.
	StateCreated State = iota
	// StateInitialized means Initialize succeeded but Start has not run.
	StateInitialized
	// StateStarted means the component is running.
	StateStarted
	// StateStopped means the component was stopped.
	StateStopped
	// StateFailed means a lifecycle operation returned an error.
	StateFailed
)

var stateNames = [...]string{"created", "initialized", "started", "stopped", "failed"}

func (cs State) String() string {
	if cs < 0 || int(cs) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[cs]
}

// LifecycleComponent is implemented by every pipeline component the manager
// runs: scan inputs, the classifier, the aggregator, report and bulk-load
// outputs, and the snapshot store.
//
//   - Initialize() error                 // allocate resources, no context
//   - Start(ctx context.Context) error   // begin processing
//   - Stop(timeout time.Duration) error  // drain and shut down
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagedComponent pairs a component with the state the ComponentManager
// tracks for it.
type ManagedComponent struct {
	Component Discoverable

	State State

	// The manager derives a child context per component so it can cancel
	// one component (a wedged scan, say) without tearing down the rest.
	// Components receive the context as a Start parameter and never store
	// it themselves.
	Context context.Context
	Cancel  context.CancelFunc

	// StartOrder records startup order; shutdown walks it in reverse so
	// outputs drain before the inputs feeding them stop.
	StartOrder int

	// LastError is the most recent lifecycle failure.
	LastError error
}

// IsLifecycleComponent reports whether comp supports lifecycle management.
func IsLifecycleComponent(comp Discoverable) bool { _, ok := comp.(LifecycleComponent); return ok }

// AsLifecycleComponent casts comp to LifecycleComponent.
func AsLifecycleComponent(comp Discoverable) (LifecycleComponent, bool) {
	lc, ok := comp.(LifecycleComponent)
	return lc, ok
}
