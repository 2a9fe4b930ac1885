package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// ConfigValidator bounds raw component config before a factory parses it.
type ConfigValidator struct {
	depthLimit  int
	arrayLimit  int
	stringLimit int
	sizeLimit   int
}

// NewConfigValidator creates a validator with the package limits.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		depthLimit:  10,
		arrayLimit:  1000,
		stringLimit: MaxStringLength,
		sizeLimit:   MaxJSONSize,
	}
}

func invalidf(method, action, format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf(format, args...), "ConfigValidator", method, action)
}

// ValidateConfig checks size, depth, and content limits on raw JSON
// config. An empty config is valid; the component falls back to defaults.
func (v *ConfigValidator) ValidateConfig(raw json.RawMessage) error {
	if len(raw) > v.sizeLimit {
		return invalidf("ValidateConfig", "size check",
			"config size %d exceeds maximum %d", len(raw), v.sizeLimit)
	}
	if len(raw) == 0 {
		return nil
	}

	var parsed any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}

	if err := v.validateValue(parsed, 0); err != nil {
		return errors.Wrap(err, "ConfigValidator", "ValidateConfig", "deep validation")
	}
	return nil
}

// validateValue walks the parsed JSON, enforcing the depth, string, and
// array limits at every level.
func (v *ConfigValidator) validateValue(value any, depth int) error {
	if depth > v.depthLimit {
		return invalidf("validateValue", "depth check",
			"JSON depth %d exceeds maximum %d", depth, v.depthLimit)
	}

	switch val := value.(type) {
	case string:
		if len(val) > v.stringLimit {
			return invalidf("validateValue", "string length check",
				"string length %d exceeds maximum %d", len(val), v.stringLimit)
		}
		if err := v.validateStringContent(val); err != nil {
			return err
		}

	case json.Number:
		// Anything too large for int64 still has to parse as a float.
		if _, err := val.Float64(); err != nil {
			return errors.WrapInvalid(err, "ConfigValidator", "validateValue", "number validation")
		}

	case []any:
		if len(val) > v.arrayLimit {
			return invalidf("validateValue", "array size check",
				"array size %d exceeds maximum %d", len(val), v.arrayLimit)
		}
		for i, elem := range val {
			if err := v.validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("array element %d", i))
			}
		}

	case map[string]any:
		for key, field := range val {
			if len(key) > v.stringLimit {
				return invalidf("validateValue", "key length check",
					"key '%s' length exceeds maximum", key)
			}
			if err := v.validateStringContent(key); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", "key validation")
			}
			if err := v.validateValue(field, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("object field '%s'", key))
			}
		}

	case bool, nil:
		// always safe

	default:
		return invalidf("validateValue", "type check", "unexpected type %T in config", value)
	}

	return nil
}

// validateStringContent rejects null bytes and control characters other
// than tab, newline and carriage return.
func (v *ConfigValidator) validateStringContent(s string) error {
	if strings.Contains(s, "\x00") {
		return invalidf("validateStringContent", "null byte check", "string contains null byte")
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return invalidf("validateStringContent", "control character check",
				"string contains control character: 0x%02x", r)
		}
	}
	return nil
}

// ValidateFactoryConfig is the gate every component config passes through
// before its factory runs.
func ValidateFactoryConfig(raw json.RawMessage) error {
	return NewConfigValidator().ValidateConfig(raw)
}

// SafeUnmarshal validates raw JSON and unmarshals it into target. When the
// target implements Validatable its Validate runs afterwards.
func SafeUnmarshal(raw json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(raw); err != nil {
		return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "config validation")
	}
	if len(raw) == 0 {
		return nil
	}
	if reflect.TypeOf(target).Kind() != reflect.Ptr {
		return invalidf("SafeUnmarshal", "target type check", "target must be a pointer, got %T", target)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "SafeUnmarshal", "JSON unmarshaling")
	}
	if vt, ok := target.(Validatable); ok {
		if err := vt.Validate(); err != nil {
			return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "struct validation")
		}
	}
	return nil
}

// Validatable lets a config struct check its own fields after unmarshaling.
type Validatable interface {
	Validate() error
}

// ValidateNetworkConfig checks a port number and dotted-quad bind address.
func ValidateNetworkConfig(port int, bindAddr string) error {
	if err := ValidatePortNumber(port); err != nil {
		return err
	}
	if bindAddr == "" || bindAddr == "*" {
		return nil
	}

	parts := strings.Split(bindAddr, ".")
	if len(parts) != 4 {
		return invalidf("ValidateNetworkConfig", "address format check",
			"invalid bind address format: %s", bindAddr)
	}
	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return invalidf("ValidateNetworkConfig", "address segment check",
				"invalid bind address segment: %s", part)
		}
	}
	return nil
}
