package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// Info describes one registered component type for the discovery API.
type Info struct {
	Type        string `json:"type"` // "input", "processor", "output", "storage"
	Protocol    string `json:"protocol"`
	Domain      string `json:"domain"` // inventory, storage, reporting
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Factory builds a component instance from its raw JSON config. Factories
// parse their own config and defer all I/O to Start, mirroring the shape of
// service constructors.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)

// Registration carries the factory and static metadata for one component type.
type Registration struct {
	Name         string       `json:"name"` // factory name, like "clusterscan"
	Type         string       `json:"type"` // input, processor, output, storage
	Protocol     string       `json:"protocol"`
	Domain       string       `json:"domain"`
	Description  string       `json:"description"`
	Version      string       `json:"version"`
	Schema       ConfigSchema `json:"schema"` // static schema metadata, served without instantiation
	Factory      Factory      `json:"-"`
	Dependencies []string     `json:"dependencies"` // other component types this one needs running
}

// RegistrationConfig is the struct form of the registration arguments.
// It maps 1:1 to Registration fields.
type RegistrationConfig struct {
	Name        string
	Factory     Factory
	Schema      ConfigSchema
	Type        string // "input", "processor", "output", "storage"
	Protocol    string
	Domain      string
	Description string
	Version     string
}

// Registry holds component factories and running instances behind one lock.
// Factories create components; instances are what discovery, flow analysis
// and the component endpoints see.
type Registry struct {
	factories       map[string]*Registration
	instances       map[string]Discoverable
	payloadRegistry *PayloadRegistry
	resourceTracker map[string]string // resource ID to the instance holding it
	mu              sync.RWMutex      // guards all maps
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{
		payloadRegistry: NewPayloadRegistry(),
		factories:       make(map[string]*Registration),
		resourceTracker: make(map[string]string),
		instances:       make(map[string]Discoverable),
	}
}

// RegisterFactory registers a factory under a unique name.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	invalid := func(action string) error {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", action)
	}
	switch {
	case name == "":
		return invalid("factory name validation")
	case registration == nil:
		return invalid("registration validation")
	case registration.Factory == nil:
		return invalid("factory function validation")
	case registration.Type == "":
		return invalid("component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return errors.WrapInvalid(fmt.Errorf("factory '%s' already registered", name),
			"Registry", "RegisterFactory", "duplicate factory check")
	}
	r.factories[name] = registration
	return nil
}

// CreateComponent builds a component through its registered factory and
// registers the result under instanceName (e.g. "clusterscan-prod-eu1").
// The config names the factory and carries the component-specific settings.
// Factories do no I/O, so no context is threaded through.
func (r *Registry) CreateComponent(
	instanceName string, config types.ComponentConfig, deps Dependencies,
) (Discoverable, error) {
	if err := validateCreateArgs(instanceName, config, deps); err != nil {
		return nil, err
	}

	registration, ok := r.registration(config.Name)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("unknown component factory '%s'", config.Name),
			"Registry", "CreateComponent", "factory lookup")
	}

	if registration.Type != string(config.Type) {
		mismatch := fmt.Errorf("component '%s' is type '%s', not '%s'",
			config.Name, registration.Type, config.Type)
		return nil, errors.WrapInvalid(mismatch, "Registry", "CreateComponent", "type validation")
	}

	comp, err := registration.Factory(config.Config, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory execution")
	}
	if regErr := r.RegisterInstance(instanceName, comp); regErr != nil {
		return nil, errors.Wrap(regErr, "Registry", "CreateComponent", "instance registration")
	}
	return comp, nil
}

func validateCreateArgs(instanceName string, config types.ComponentConfig, deps Dependencies) error {
	if err := ValidateComponentName(instanceName); err != nil {
		return errors.Wrap(err, "Registry", "CreateComponent", "instance name validation")
	}
	if config.Type == "" {
		return errors.WrapInvalid(
			errors.ErrInvalidConfig, "Registry", "CreateComponent", "component type validation")
	}
	if err := ValidateComponentName(config.Name); err != nil {
		return errors.Wrap(err, "Registry", "CreateComponent", "factory name validation")
	}
	if deps.NATSClient == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "CreateComponent", "NATS client validation")
	}
	if err := ValidateFactoryConfig(config.Config); err != nil {
		return errors.Wrap(err, "Registry", "CreateComponent", "config security validation")
	}
	return nil
}

// RegisterInstance adds a running instance to the registry after checking
// that none of its exclusive resources are already claimed.
func (r *Registry) RegisterInstance(name string, component Discoverable) error {
	switch {
	case name == "":
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "instance name validation")
	case component == nil:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "component validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.instances[name]; dup {
		return errors.WrapInvalid(fmt.Errorf("instance '%s' already registered", name),
			"Registry", "RegisterInstance", "duplicate instance check")
	}
	if err := r.checkResourceConflicts(name, component); err != nil {
		return errors.Wrap(err, "Registry", "RegisterInstance", "resource conflict check")
	}

	r.instances[name] = component
	r.claimResources(name, component)
	return nil
}

// UnregisterInstance removes an instance and releases its tracked resources.
func (r *Registry) UnregisterInstance(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if component, ok := r.instances[name]; ok {
		r.releaseResources(name, component)
		delete(r.instances, name)
	}
}

// ListComponents returns a copy of all registered instances.
func (r *Registry) ListComponents() map[string]Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Discoverable, len(r.instances))
	maps.Copy(result, r.instances)

	return result
}

// registration looks up a factory registration under the read lock.
func (r *Registry) registration(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[name]
	return reg, ok
}

// GetComponentSchema returns a factory's schema from its registration
// metadata, without instantiating anything.
func (r *Registry) GetComponentSchema(name string) (ConfigSchema, error) {
	reg, ok := r.registration(name)
	if !ok {
		return ConfigSchema{}, errors.WrapInvalid(fmt.Errorf("component type %q not found", name),
			"Registry", "GetComponentSchema", "type lookup")
	}
	return reg.Schema, nil
}

// GetComponent builds a throwaway instance of a factory type.
//
// Deprecated: use GetComponentSchema. Factories that validate their
// dependencies fail here because the instance gets empty deps.
func (r *Registry) GetComponent(name string) (Discoverable, error) {
	reg, ok := r.registration(name)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("component type %q not found", name),
			"Registry", "GetComponent", "type lookup")
	}

	// empty deps; ConfigSchema does no I/O
	comp, err := reg.Factory(json.RawMessage("{}"), Dependencies{})
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "GetComponent", "factory execution")
	}
	return comp, nil
}

// ListComponentTypes returns the registered factory names, for example
// "clusterscan" or "csvreport", not instance names.
func (r *Registry) ListComponentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	return types
}

// Component returns the instance with the given name, or nil.
func (r *Registry) Component(name string) Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// ListFactories returns a copy of every registration with the factory
// function stripped.
func (r *Registry) ListFactories() map[string]*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Registration, len(r.factories))
	for name, registration := range r.factories {
		public := *registration
		public.Factory = nil
		result[name] = &public
	}

	return result
}

// GetFactory returns the actual factory function for a name.
func (r *Registry) GetFactory(name string) (Factory, bool) {
	reg, ok := r.registration(name)
	if !ok {
		return nil, false
	}
	return reg.Factory, true
}

// RegisterWithConfig registers a component from a RegistrationConfig:
//
//	registry.RegisterWithConfig(component.RegistrationConfig{
//	    Name:        "clusterscan",
//	    Factory:     CreateInput,
//	    Schema:      scanSchema,
//	    Type:        "input",
//	    Protocol:    "https",
//	    Domain:      "inventory",
//	    Description: "Scans a cluster for index names and storage statistics",
//	    Version:     "1.0.0",
//	})
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	return r.RegisterFactory(config.Name, &Registration{
		Name: config.Name, Factory: config.Factory, Schema: config.Schema,
		Type: config.Type, Protocol: config.Protocol, Domain: config.Domain,
		Description: config.Description, Version: config.Version,
	})
}

// ListAvailable returns metadata for every registered factory.
func (r *Registry) ListAvailable() map[string]Info {
	factories := r.ListFactories()
	infos := make(map[string]Info, len(factories))
	for name, reg := range factories {
		infos[name] = Info{
			Type: reg.Type, Protocol: reg.Protocol, Domain: reg.Domain,
			Description: reg.Description, Version: reg.Version,
		}
	}
	return infos
}

// RegisterPayload registers a payload factory so typed payloads can be
// rebuilt during message deserialization.
func (r *Registry) RegisterPayload(registration *PayloadRegistration) error {
	return r.payloadRegistry.RegisterPayload(registration)
}

// CreatePayload builds a payload via the registered factory; unknown
// types yield nil.
func (r *Registry) CreatePayload(domain, category, version string) any {
	return r.payloadRegistry.CreatePayload(domain, category, version)
}

// ListPayloads lists every registered payload type.
func (r *Registry) ListPayloads() map[string]*PayloadRegistration {
	return r.payloadRegistry.ListPayloads()
}

// Limits applied to incoming component config before a factory sees it.
const (
	MaxStringLength = 1024        // longest string value accepted
	MaxJSONSize     = 1024 * 1024 // raw config cap, 1MB
	MinPort         = 1
	MaxPort         = 65535
	MaxInt          = math.MaxInt32 // int values must round-trip through int32
	MinInt          = math.MinInt32
)

func invalidConfigErr(method, action string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", method, action)
}

// ValidateConfigKey rejects empty, oversized, or control-character keys.
func ValidateConfigKey(key string) error {
	switch {
	case key == "":
		return invalidConfigErr("ValidateConfigKey", "empty key")
	case len(key) > MaxStringLength:
		return invalidConfigErr("ValidateConfigKey", "key too long")
	case strings.ContainsAny(key, "\x00\n\r\t"):
		return invalidConfigErr("ValidateConfigKey", "invalid key characters")
	}
	return nil
}

// ValidateJSONSize caps raw component config at MaxJSONSize.
func ValidateJSONSize(data json.RawMessage) error {
	if len(data) > MaxJSONSize {
		return invalidConfigErr("ValidateJSONSize", "JSON too large")
	}
	return nil
}

// ValidateComponentName restricts names to alphanumerics, dash,
// underscore and dot.
func ValidateComponentName(name string) error {
	allowed := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.'
	}

	switch {
	case name == "":
		return invalidConfigErr("ValidateComponentName", "empty name")
	case len(name) > MaxStringLength:
		return invalidConfigErr("ValidateComponentName", "name too long")
	case strings.ContainsFunc(name, func(r rune) bool { return !allowed(r) }):
		return invalidConfigErr("ValidateComponentName", "invalid name characters")
	}
	return nil
}

// ValidatePortNumber rejects ports outside MinPort..MaxPort.
func ValidatePortNumber(port int) error {
	if port < MinPort || port > MaxPort {
		return errors.WrapInvalid(fmt.Errorf("port %d outside valid range %d-%d", port, MinPort, MaxPort),
			"ConfigValidator", "ValidatePortNumber", "port range validation")
	}
	return nil
}

// exclusivePorts returns the component's ports whose config claims an
// exclusive resource, like a listening socket or an output file path.
func exclusivePorts(component Discoverable) []Port {
	var ports []Port
	for _, port := range append(component.InputPorts(), component.OutputPorts()...) {
		if port.Config != nil && port.Config.IsExclusive() {
			ports = append(ports, port)
		}
	}
	return ports
}

// checkResourceConflicts rejects an instance whose exclusive ports collide
// with resources another instance already holds.
func (r *Registry) checkResourceConflicts(_ string, component Discoverable) error {
	for _, port := range exclusivePorts(component) {
		if networkPort, ok := port.Config.(NetworkPort); ok {
			if err := ValidatePortNumber(networkPort.Port); err != nil {
				return errors.Wrap(err, "Registry", "checkResourceConflicts", "network port validation")
			}
		}

		resourceID := port.Config.ResourceID()
		if holder, exists := r.resourceTracker[resourceID]; exists {
			msg := fmt.Errorf("resource conflict: %s already used by component '%s'", resourceID, holder)
			return errors.WrapInvalid(msg, "Registry", "checkResourceConflicts",
				"exclusive resource check")
		}
	}

	return nil
}

// claimResources claims the instance's exclusive resources.
func (r *Registry) claimResources(instanceName string, component Discoverable) {
	for _, port := range exclusivePorts(component) {
		r.resourceTracker[port.Config.ResourceID()] = instanceName
	}
}

// releaseResources releases resources owned by the instance.
func (r *Registry) releaseResources(instanceName string, component Discoverable) {
	for _, port := range exclusivePorts(component) {
		// only release what this instance owns
		resourceID := port.Config.ResourceID()
		if r.resourceTracker[resourceID] == instanceName {
			delete(r.resourceTracker, resourceID)
		}
	}
}

// Config map helpers used by component factories.

// intInRange reports whether v survives a round trip through int32.
func intInRange(v int64) bool {
	return v >= int64(MinInt) && v <= int64(MaxInt)
}

// finite rejects the NaN and Inf values a JSON decoder can hand back
// as float64.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GetString extracts a string from a config map, falling back to the
// default for missing, oversized, or malformed values. Control characters
// are stripped from the result.
func GetString(config map[string]any, key string, defaultValue string) string {
	if ValidateConfigKey(key) != nil {
		return defaultValue
	}

	str, ok := config[key].(string)
	if !ok || len(str) > MaxStringLength {
		return defaultValue
	}

	return strings.Map(func(r rune) rune {
		if r == '\x00' || (r < 32 && r != '\t' && r != '\n' && r != '\r') {
			return -1
		}
		return r
	}, str)
}

// GetInt extracts an int, guarding against overflow and non-finite
// float64 values.
func GetInt(config map[string]any, key string, defaultValue int) int {
	if ValidateConfigKey(key) != nil {
		return defaultValue
	}

	switch v := config[key].(type) {
	case int:
		if intInRange(int64(v)) {
			return v
		}
	case int64:
		if intInRange(v) {
			return int(v)
		}
	case float64:
		// int(v) truncates; reject anything that round-trips differently
		if finite(v) && v >= float64(MinInt) && v <= float64(MaxInt) && float64(int(v)) == v {
			return int(v)
		}
	}

	return defaultValue
}

// GetBool extracts a bool with a default fallback.
func GetBool(config map[string]any, key string, defaultValue bool) bool {
	if ValidateConfigKey(key) != nil {
		return defaultValue
	}

	if b, ok := config[key].(bool); ok {
		return b
	}
	return defaultValue
}

// GetFloat64 extracts a float64, rejecting NaN and Inf.
func GetFloat64(config map[string]any, key string, defaultValue float64) float64 {
	if ValidateConfigKey(key) != nil {
		return defaultValue
	}

	switch v := config[key].(type) {
	case float64:
		if finite(v) {
			return v
		}
	case float32:
		if finite(float64(v)) {
			return float64(v)
		}
	case int:
		if intInRange(int64(v)) {
			return float64(v)
		}
	case int64:
		if intInRange(v) {
			return float64(v)
		}
	}

	return defaultValue
}

// Process-wide payload registry. Payloads register from init() since they
// are data types, not lifecycle components.
var globalPayloadRegistry = NewPayloadRegistry()

// RegisterPayload registers a payload factory globally.
func RegisterPayload(registration *PayloadRegistration) error {
	return globalPayloadRegistry.RegisterPayload(registration)
}

// CreatePayload builds a payload from the global registry, or nil if the
// type is unknown.
func CreatePayload(domain, category, version string) any {
	return globalPayloadRegistry.CreatePayload(domain, category, version)
}
