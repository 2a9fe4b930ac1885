package component

import (
	"fmt"
)

// ValidationError describes one configuration field that failed schema
// validation. The Code is machine-readable so the component manager's HTTP
// surface can map failures back to fields:
//
//   - "required": field is missing
//   - "min": numeric value below minimum
//   - "max": numeric value above maximum
//   - "enum": value not in the allowed set
//   - "type": value does not match the declared type
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func verr(field, code, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidateConfig validates a configuration map against a ConfigSchema.
// It checks required fields, types, min/max bounds, and enum membership.
//
// Validation is lenient about unknown fields so an older binary can load a
// newer config. Only properties the schema declares are checked.
//
// Returns every failure found; an empty slice means the config is valid.
//
//	schema := component.ConfigSchema{
//	    Properties: map[string]component.PropertySchema{
//	        "scan_interval_hours": {Type: "int", Minimum: ptrInt(1), Maximum: ptrInt(168)},
//	    },
//	    Required: []string{"scan_interval_hours"},
//	}
//	errs := component.ValidateConfig(map[string]any{"scan_interval_hours": 500}, schema)
func ValidateConfig(config map[string]any, schema ConfigSchema) []ValidationError {
	var errors []ValidationError
	report := func(err *ValidationError) {
		if err != nil {
			errors = append(errors, *err)
		}
	}

	for _, requiredField := range schema.Required {
		if _, exists := config[requiredField]; !exists {
			report(verr(requiredField, "required", "Field %q is required", requiredField))
		}
	}

	for fieldName, value := range config {
		propSchema, exists := schema.Properties[fieldName]
		if !exists {
			continue
		}

		if err := validateType(fieldName, value, propSchema); err != nil {
			report(err)
			continue // bounds and enums are meaningless on the wrong type
		}

		if len(propSchema.Enum) > 0 {
			report(validateEnum(fieldName, value, propSchema.Enum))
		}

		if propSchema.Type == "int" || propSchema.Type == "float" {
			if propSchema.Minimum != nil {
				report(validateBound(fieldName, value, *propSchema.Minimum, "min"))
			}
			if propSchema.Maximum != nil {
				report(validateBound(fieldName, value, *propSchema.Maximum, "max"))
			}
		}
	}

	return errors
}

// validateType checks the value against the declared property type. JSON
// decoding hands every number over as float64, so "int" accepts it.
func validateType(fieldName string, value any, propSchema PropertySchema) *ValidationError {
	ok := true
	want := ""

	switch propSchema.Type {
	case "string":
		_, ok = value.(string)
		want = "a string"
	case "bool":
		_, ok = value.(bool)
		want = "a boolean"
	case "int":
		switch value.(type) {
		case int, int32, int64, float64:
		default:
			ok = false
		}
		want = "an integer"
	case "float":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			ok = false
		}
		want = "a number"
	}

	if ok {
		return nil
	}
	return verr(fieldName, "type", "Field %q must be %s", fieldName, want)
}

func validateEnum(fieldName string, value any, enumValues []string) *ValidationError {
	strValue, ok := value.(string)
	if !ok {
		return verr(fieldName, "type", "Field %q must be a string for enum validation", fieldName)
	}

	for _, allowed := range enumValues {
		if strValue == allowed {
			return nil
		}
	}

	return verr(fieldName, "enum", "Field %q must be one of: %v", fieldName, enumValues)
}

// validateBound enforces a minimum (code "min") or maximum (code "max").
func validateBound(fieldName string, value any, bound int, code string) *ValidationError {
	numValue, err := asFloat(fieldName, value, code)
	if err != nil {
		return err
	}

	if code == "min" && numValue < float64(bound) {
		return verr(fieldName, "min", "Field %q must be >= %d", fieldName, bound)
	}
	if code == "max" && numValue > float64(bound) {
		return verr(fieldName, "max", "Field %q must be <= %d", fieldName, bound)
	}
	return nil
}

func asFloat(fieldName string, value any, check string) (float64, *ValidationError) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, verr(fieldName, "type", "Field %q must be numeric for %s validation", fieldName, check)
	}
}
