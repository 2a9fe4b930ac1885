package component

import (
	"encoding/json"
	"fmt"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// Direction marks which way data flows through a port.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes one I/O interface of a component.
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable is the transport-specific half of a Port.
type Portable interface {
	ResourceID() string // unique identifier for conflict detection
	IsExclusive() bool
	Type() string // wire tag, like "nats" or "file"
}

// InterfaceContract names the payload interface a port expects, like
// message.Storable for the snapshot store's input.
type InterfaceContract struct {
	Type       string   `json:"type"`
	Version    string   `json:"version,omitempty"`
	Compatible []string `json:"compatible,omitempty"` // also accepted
}

// MarshalJSON wraps the Portable config with its type name so the concrete
// type can be rebuilt on the other side.
func (p Port) MarshalJSON() ([]byte, error) {
	type PortAlias Port // avoid recursive MarshalJSON

	wrapper := struct {
		PortAlias
		Config json.RawMessage `json:"config"`
	}{
		PortAlias: (PortAlias)(p),
	}

	if p.Config != nil {
		configWithType := struct {
			Type string `json:"type"`
			Data any    `json:"data"`
		}{
			Type: p.Config.Type(),
			Data: p.Config,
		}

		configBytes, err := json.Marshal(configWithType)
		if err != nil {
			return nil, errors.Wrap(err, "Port", "MarshalJSON", "config marshaling")
		}
		wrapper.Config = configBytes
	}

	return json.Marshal(wrapper)
}

// UnmarshalJSON rebuilds the concrete Portable from the type tag written
// by MarshalJSON.
func (p *Port) UnmarshalJSON(data []byte) error {
	type PortAlias Port

	temp := struct {
		*PortAlias
		Config json.RawMessage `json:"config"`
	}{
		PortAlias: (*PortAlias)(p),
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	if len(temp.Config) == 0 {
		return nil
	}

	var configWrapper struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(temp.Config, &configWrapper); err != nil {
		return errors.Wrap(err, "Port", "UnmarshalJSON", "config wrapper unmarshaling")
	}

	var (
		cfg Portable
		err error
	)
	switch configWrapper.Type {
	case "network":
		cfg, err = decodePortConfig[NetworkPort](configWrapper.Data, "network")
	case "nats":
		cfg, err = decodePortConfig[NATSPort](configWrapper.Data, "nats")
	case "nats-request":
		cfg, err = decodePortConfig[NATSRequestPort](configWrapper.Data, "nats-request")
	case "file":
		cfg, err = decodePortConfig[FilePort](configWrapper.Data, "file")
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown config type: %s", configWrapper.Type),
			"Port", "UnmarshalJSON", "config type validation")
	}
	if err != nil {
		return err
	}

	p.Config = cfg
	return nil
}

// decodePortConfig unmarshals the data half of the wire wrapper into a
// concrete value-typed Portable.
func decodePortConfig[T Portable](data json.RawMessage, kind string) (Portable, error) {
	var cfg T
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "Port", "UnmarshalJSON", kind+" config unmarshaling")
	}
	return cfg, nil
}
