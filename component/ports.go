// Port configuration overrides, letting deployments rewire subjects
// without touching component defaults.
package component

// PortDefinition is a port as it appears in JSON component config.
type PortDefinition struct {
	Name        string `json:"name"                  schema:"readonly,type:string,description:Port name"`
	Type        string `json:"type,omitempty"        schema:"readonly,type:string,description:Port kind (nats nats-request file)"`
	Subject     string `json:"subject,omitempty"     schema:"editable,type:string,description:NATS subject the port binds to"`
	Interface   string `json:"interface,omitempty"   schema:"readonly,type:string,description:Payload contract carried on the port"`
	Required    bool   `json:"required,omitempty"    schema:"readonly,type:bool,description:Whether the pipeline needs this port wired"`
	Description string `json:"description,omitempty" schema:"readonly,type:string,description:What the port carries"`
	Timeout     string `json:"timeout,omitempty"     schema:"editable,type:string,description:Request timeout for request/reply ports"`
}

// PortConfig holds the optional port overrides in a component config.
type PortConfig struct {
	Inputs  []PortDefinition `json:"inputs,omitempty"`
	Outputs []PortDefinition `json:"outputs,omitempty"`
}

// MergePortConfigs applies configured overrides on top of a component's
// default ports, matched by name. Overrides that match no default become
// additional ports.
func MergePortConfigs(defaults []Port, overrides []PortDefinition, direction Direction) []Port {
	byName := make(map[string]PortDefinition, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}

	merged := make([]Port, 0, len(defaults)+len(overrides))
	for _, dflt := range defaults {
		if o, found := byName[dflt.Name]; found {
			merged = append(merged, BuildPortFromDefinition(o, direction))
			delete(byName, dflt.Name)
			continue
		}
		merged = append(merged, dflt)
	}
	for _, o := range byName {
		merged = append(merged, BuildPortFromDefinition(o, direction))
	}
	return merged
}

// BuildPortFromDefinition turns a config-level PortDefinition into a Port.
// Anything that is not request/reply becomes plain NATS pub/sub.
func BuildPortFromDefinition(def PortDefinition, direction Direction) Port {
	port := Port{
		Name:        def.Name,
		Description: def.Description,
		Direction:   direction,
		Required:    def.Required,
	}

	if def.Type == "nats-request" {
		timeout := def.Timeout
		if timeout == "" {
			timeout = "1s"
		}
		port.Config = NATSRequestPort{Subject: def.Subject, Timeout: timeout}
		return port
	}

	var iface *InterfaceContract
	if def.Interface != "" {
		iface = &InterfaceContract{Type: def.Interface, Version: "v1"}
	}
	port.Config = NATSPort{Subject: def.Subject, Interface: iface}
	return port
}
