package component

import (
	"fmt"
	"sync"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// PayloadFactory builds an empty payload for one message type. It returns
// any to avoid an import cycle with the message package; the value is
// expected to implement message.Payload.
type PayloadFactory func() any

// PayloadRegistration carries the factory and metadata for one payload type.
type PayloadRegistration struct {
	Factory     PayloadFactory `json:"-"`
	Domain      string         `json:"domain"`   // e.g. "inventory", "core"
	Category    string         `json:"category"` // e.g. "index", "classified"
	Version     string         `json:"version"`  // e.g. "v1"
	Description string         `json:"description"`
	Example     map[string]any `json:"example"`
}

// MessageType returns "domain.category.version", e.g. "inventory.index.v1".
func (pr *PayloadRegistration) MessageType() string {
	return fmt.Sprintf("%s.%s.%s", pr.Domain, pr.Category, pr.Version)
}

// public returns a copy safe to hand out; copies never carry the factory
// function.
func (pr *PayloadRegistration) public() *PayloadRegistration {
	copy := *pr
	copy.Factory = nil
	return &copy
}

// PayloadRegistry maps message type strings to payload factories so
// BaseMessage.UnmarshalJSON can rebuild typed payloads from the wire.
type PayloadRegistry struct {
	registrations map[string]*PayloadRegistration // keyed by message type string
	mu            sync.RWMutex
}

// NewPayloadRegistry creates an empty payload registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{registrations: make(map[string]*PayloadRegistration)}
}

// RegisterPayload registers a payload factory. The message type is derived
// from the registration's Domain, Category and Version.
func (pr *PayloadRegistry) RegisterPayload(reg *PayloadRegistration) error {
	invalid := func(action string) error {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PayloadRegistry", "RegisterPayload", action)
	}
	switch {
	case reg == nil:
		return invalid("registration validation")
	case reg.Factory == nil:
		return invalid("factory function validation")
	case reg.Domain == "":
		return invalid("domain validation")
	case reg.Category == "":
		return invalid("category validation")
	case reg.Version == "":
		return invalid("version validation")
	}

	msgType := reg.MessageType()

	pr.mu.Lock()
	defer pr.mu.Unlock()
	if _, taken := pr.registrations[msgType]; taken {
		return errors.WrapInvalid(
			fmt.Errorf("payload type '%s' is already registered", msgType),
			"PayloadRegistry", "RegisterPayload", "duplicate payload check")
	}
	pr.registrations[msgType] = reg
	return nil
}

// CreatePayload builds a payload for the given type, or nil when the type
// is unregistered. A nil return makes BaseMessage.UnmarshalJSON fall back
// to GenericPayload.
func (pr *PayloadRegistry) CreatePayload(domain, category, version string) any {
	key := fmt.Sprintf("%s.%s.%s", domain, category, version)

	pr.mu.RLock()
	reg, found := pr.registrations[key]
	pr.mu.RUnlock()
	if !found {
		return nil
	}
	return reg.Factory()
}

// GetRegistration returns a copy of the registration for a message type.
func (pr *PayloadRegistry) GetRegistration(msgType string) (*PayloadRegistration, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	reg, found := pr.registrations[msgType]
	if !found {
		return nil, false
	}
	return reg.public(), true
}

// ListPayloads returns a copy of every registration, factory stripped.
func (pr *PayloadRegistry) ListPayloads() map[string]*PayloadRegistration {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	out := make(map[string]*PayloadRegistration, len(pr.registrations))
	for msgType, reg := range pr.registrations {
		out[msgType] = reg.public()
	}
	return out
}

// ListByDomain returns the registrations for one domain, for example every
// "inventory" payload type.
func (pr *PayloadRegistry) ListByDomain(domain string) []*PayloadRegistration {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	var out []*PayloadRegistration
	for _, reg := range pr.registrations {
		if reg.Domain == domain {
			out = append(out, reg.public())
		}
	}
	return out
}
