package component

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/cache"
)

// SchemaDirectives is one parsed schema struct tag. Config structs like
// the scan input's carry these tags so their ConfigSchema is generated
// instead of maintained by hand.
type SchemaDirectives struct {
	Type        string
	Description string

	Category string // "basic" or "advanced"
	ReadOnly bool
	Editable bool
	Hidden   bool

	Default  any // held as string until convertDefault runs
	Required bool
	Min      *int
	Max      *int
	Enum     []string

	// parsed and stored, not yet consumed anywhere
	Placeholder string
	Help        string
	Format      string
	Pattern     string
}

// PortFieldInfo tells a config form which PortDefinition fields a user
// may edit.
type PortFieldInfo struct {
	Type     string `json:"type"`
	Editable bool   `json:"editable"`
}

// CacheFieldInfo carries the same editability metadata for cache.Config
// fields, plus the strategy enum and size bounds.
type CacheFieldInfo struct {
	Type     string   `json:"type"`
	Editable bool     `json:"editable"`
	Enum     []string `json:"enum,omitempty"`
	Min      *int     `json:"min,omitempty"`
}

// ParseSchemaTag parses one schema struct tag. Directives are
// comma-separated; key-value pairs use a colon, boolean flags stand
// alone, and enum values are pipe-separated:
//
//	schema:"type:string,description:Elasticsearch endpoint,category:basic"
//	schema:"type:int,description:Scan workers,min:1,max:64,default:4"
//	schema:"type:enum,description:Tier,enum:hot|warm|cold,default:hot"
//	schema:"required,type:string,description:Cluster name"
//
// The type directive is mandatory; a missing description falls back to
// the field name at generation time.
func ParseSchemaTag(tag string) (SchemaDirectives, error) {
	directives := SchemaDirectives{}

	if tag == "" {
		return directives, tagErr("ParseSchemaTag", "tag validation", "empty schema tag")
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var err error
		if strings.Contains(part, ":") {
			err = parseKeyValueDirective(part, &directives)
		} else {
			err = parseBooleanFlag(part, &directives)
		}
		if err != nil {
			return directives, err
		}
	}

	if directives.Type == "" {
		return directives, tagErr("ParseSchemaTag", "required field validation", "type directive is required")
	}

	return directives, nil
}

// tagErr wraps a schema tag parse failure in the standard invalid-input
// error shape.
func tagErr(method, action, format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf(format, args...), "SchemaTag", method, action)
}

func parseBooleanFlag(flag string, d *SchemaDirectives) error {
	flags := map[string]*bool{
		"readonly": &d.ReadOnly, "editable": &d.Editable,
		"hidden": &d.Hidden, "required": &d.Required,
	}
	target, ok := flags[flag]
	if !ok {
		return tagErr("parseBooleanFlag", "flag parsing", "unknown boolean flag: %s", flag)
	}
	*target = true
	return nil
}

func parseKeyValueDirective(part string, d *SchemaDirectives) error {
	key, value, found := strings.Cut(part, ":")
	if !found {
		return tagErr("parseKeyValueDirective", "directive parsing", "invalid directive format: %s", part)
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if value == "" {
		return tagErr("parseKeyValueDirective", "value validation", "empty value for directive: %s", key)
	}

	switch key {
	case "type":
		if !isValidType(value) {
			return tagErr("parseKeyValueDirective", "type validation", "invalid type: %s", value)
		}
		d.Type = value

	case "description":
		d.Description = value

	case "category":
		if value != "basic" && value != "advanced" {
			return tagErr("parseKeyValueDirective", "category validation",
				"invalid category: %s (must be 'basic' or 'advanced')", value)
		}
		d.Category = value

	case "default":
		// kept as string; convertDefault types it once the field type is known
		d.Default = value

	case "min", "max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return tagErr("parseKeyValueDirective", key+" parsing", "invalid %s value: %s", key, value)
		}
		if key == "min" {
			d.Min = &n
		} else {
			d.Max = &n
		}

	case "enum":
		d.Enum = strings.Split(value, "|")
		for i := range d.Enum {
			d.Enum[i] = strings.TrimSpace(d.Enum[i])
		}

	case "help":
		d.Help = value
	case "placeholder":
		d.Placeholder = value
	case "pattern":
		d.Pattern = value
	case "format":
		d.Format = value

	default:
		return tagErr("parseKeyValueDirective", "directive validation", "unknown directive: %s", key)
	}

	return nil
}

var validFieldTypes = map[string]bool{
	"string": true, "int": true, "bool": true, "float": true,
	"enum": true, "array": true, "object": true, "ports": true, "cache": true,
}

func isValidType(t string) bool {
	return validFieldTypes[t]
}

// jsonFieldName returns the wire name from a field's json tag, with
// options like omitempty dropped. Empty means the field is not exposed.
func jsonFieldName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag == "" || jsonTag == "-" {
		return ""
	}
	return strings.Split(jsonTag, ",")[0]
}

// GenerateConfigSchema reflects over a config struct once and builds its
// ConfigSchema from the json and schema tags. Every component calls this
// from init and caches the result in a package variable, so the
// reflection cost is paid once per process:
//
//	type ScanConfig struct {
//	    Endpoint string `json:"endpoint" schema:"required,type:string,description:Elasticsearch endpoint"`
//	    Workers  int    `json:"workers" schema:"type:int,description:Stats fetch workers,min:1,max:64,default:4"`
//	}
//
//	var scanSchema = component.GenerateConfigSchema(reflect.TypeOf(ScanConfig{}))
//
// Fields need both a json and a schema tag to appear; a field with a
// malformed schema tag is skipped rather than failing the whole schema.
// Fields typed "ports" or "cache" get the editability metadata for their
// nested structs attached.
func GenerateConfigSchema(configType reflect.Type) ConfigSchema {
	schema := ConfigSchema{Required: []string{}, Properties: make(map[string]PropertySchema)}

	if configType.Kind() == reflect.Ptr {
		configType = configType.Elem()
	}
	if configType.Kind() != reflect.Struct {
		return schema
	}

	eachTaggedField(configType, func(fieldName string, directives *SchemaDirectives) {
		if directives == nil {
			return // untagged fields are not part of the generated schema
		}

		description := directives.Description
		if description == "" {
			description = fieldName
		}

		prop := PropertySchema{
			Type: directives.Type, Description: description, Category: directives.Category,
			Default: convertDefault(directives.Default, directives.Type),
			Minimum: directives.Min, Maximum: directives.Max, Enum: directives.Enum,
		}
		switch directives.Type {
		case "ports":
			prop.PortFields = GeneratePortFieldSchema()
		case "cache":
			prop.CacheFields = GenerateCacheFieldSchema()
		}

		schema.Properties[fieldName] = prop

		if directives.Required {
			schema.Required = append(schema.Required, fieldName)
		}
	})

	return schema
}

// eachTaggedField walks a struct's json-exposed fields and hands each to
// visit with its parsed schema directives, or nil when the field carries
// no schema tag. Fields with malformed tags are skipped entirely.
func eachTaggedField(t reflect.Type, visit func(fieldName string, directives *SchemaDirectives)) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		fieldName := jsonFieldName(field)
		if fieldName == "" {
			continue
		}

		schemaTag := field.Tag.Get("schema")
		if schemaTag == "" {
			visit(fieldName, nil)
			continue
		}

		directives, err := ParseSchemaTag(schemaTag)
		if err != nil {
			// a bad tag drops the field, not the schema
			continue
		}
		visit(fieldName, &directives)
	}
}

// convertDefault types a tag default according to the field type. An
// unconvertible default becomes nil rather than a mistyped value.
func convertDefault(value any, fieldType string) any {
	if value == nil {
		return nil
	}

	valueStr, ok := value.(string)
	if !ok {
		return value
	}

	// typed results come back as nil on parse failure
	orNil := func(v any, err error) any {
		if err != nil {
			return nil
		}
		return v
	}

	switch fieldType {
	case "int":
		return orNil(strconv.Atoi(valueStr))
	case "bool":
		return orNil(strconv.ParseBool(valueStr))
	case "float":
		return orNil(strconv.ParseFloat(valueStr, 64))
	case "array":
		// single-element default; richer arrays belong in the JSON config
		if valueStr != "" {
			return []string{valueStr}
		}
		return []string{}
	case "object", "ports":
		return nil
	default: // string, enum, and anything else stay textual
		return valueStr
	}
}

// GeneratePortFieldSchema reflects over PortDefinition and reports which
// of its fields a user may edit. Subjects and timeouts are editable; a
// port's name and direction are fixed by the component that declares it.
// Fields without a schema tag default to read-only strings.
func GeneratePortFieldSchema() map[string]PortFieldInfo {
	fields := make(map[string]PortFieldInfo)
	eachTaggedField(reflect.TypeOf(PortDefinition{}), func(fieldName string, d *SchemaDirectives) {
		if d == nil {
			fields[fieldName] = PortFieldInfo{Type: "string", Editable: false}
			return
		}
		fields[fieldName] = PortFieldInfo{Type: d.Type, Editable: d.Editable}
	})
	return fields
}

// GenerateCacheFieldSchema does the same for cache.Config: every cache
// knob is runtime-editable, the strategy field carries its enum, and the
// size fields carry their minimums.
func GenerateCacheFieldSchema() map[string]CacheFieldInfo {
	fields := make(map[string]CacheFieldInfo)
	eachTaggedField(reflect.TypeOf(cache.Config{}), func(fieldName string, d *SchemaDirectives) {
		if d == nil {
			fields[fieldName] = CacheFieldInfo{Type: "string", Editable: false}
			return
		}
		fields[fieldName] = CacheFieldInfo{Type: d.Type, Editable: d.Editable, Enum: d.Enum, Min: d.Min}
	})
	return fields
}
