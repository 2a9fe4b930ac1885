package component

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

func TestParseSchemaTag(t *testing.T) {
	tests := map[string]struct {
		tag  string
		want SchemaDirectives
	}{
		"string field": {
			tag:  "type:string,description:Cluster name,category:basic",
			want: SchemaDirectives{Type: "string", Description: "Cluster name", Category: "basic"},
		},
		"int field with bounds": {
			tag: "type:int,description:Scan workers,min:1,max:64,default:4",
			want: SchemaDirectives{
				Type: "int", Description: "Scan workers",
				Default: "4", Min: intPtr(1), Max: intPtr(64),
			},
		},
		"bool field": {
			tag:  "type:bool,description:Include hidden indices,default:false",
			want: SchemaDirectives{Type: "bool", Description: "Include hidden indices", Default: "false"},
		},
		"enum field": {
			tag: "type:enum,description:Default tier,enum:hot|warm|cold,default:hot",
			want: SchemaDirectives{
				Type: "enum", Description: "Default tier",
				Enum: []string{"hot", "warm", "cold"}, Default: "hot",
			},
		},
		"readonly field": {
			tag:  "readonly,type:string,description:Cluster UUID",
			want: SchemaDirectives{Type: "string", Description: "Cluster UUID", ReadOnly: true},
		},
		"editable field": {
			tag:  "editable,type:string,description:NATS subject pattern",
			want: SchemaDirectives{Type: "string", Description: "NATS subject pattern", Editable: true},
		},
		"hidden field": {
			tag:  "hidden,type:bool,description:Internal flag",
			want: SchemaDirectives{Type: "bool", Description: "Internal flag", Hidden: true},
		},
		"required field": {
			tag:  "required,type:string,description:Elasticsearch API key",
			want: SchemaDirectives{Type: "string", Description: "Elasticsearch API key", Required: true},
		},
		"float field": {
			tag: "type:float,description:Sample rate,min:0,max:1,default:0.25",
			want: SchemaDirectives{
				Type: "float", Description: "Sample rate",
				Default: "0.25", Min: intPtr(0), Max: intPtr(1),
			},
		},
		"object field": {
			tag:  "type:object,description:Snapshot cache settings,category:advanced",
			want: SchemaDirectives{Type: "object", Description: "Snapshot cache settings", Category: "advanced"},
		},
		"ports field": {
			tag:  "type:ports,description:Stream ports,category:basic",
			want: SchemaDirectives{Type: "ports", Description: "Stream ports", Category: "basic"},
		},
		"enum with spaces": {
			tag:  "type:enum,description:Tier,enum: hot | warm | cold ",
			want: SchemaDirectives{Type: "enum", Description: "Tier", Enum: []string{"hot", "warm", "cold"}},
		},
		"multiple boolean flags": {
			tag:  "required,readonly,type:string,description:Fixed value",
			want: SchemaDirectives{Type: "string", Description: "Fixed value", Required: true, ReadOnly: true},
		},
		"presentation directives": {
			tag: "type:string,description:Cluster endpoint,help:https://example.com/docs,placeholder:https://es.internal:9200,pattern:^https?://,format:uri",
			want: SchemaDirectives{
				Type: "string", Description: "Cluster endpoint",
				Help: "https://example.com/docs", Placeholder: "https://es.internal:9200",
				Pattern: "^https?://", Format: "uri",
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseSchemaTag(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSchemaTag_Invalid(t *testing.T) {
	badTags := map[string]string{
		"empty tag":            "",
		"missing type":         "description:Some field",
		"invalid type":         "type:invalid,description:Field",
		"invalid category":     "type:string,description:Field,category:invalid",
		"invalid min":          "type:int,description:Workers,min:abc",
		"invalid max":          "type:int,description:Workers,max:xyz",
		"unknown boolean flag": "type:string,description:Field,unknownflag",
		"unknown directive":    "type:string,description:Field,unknown:value",
		"empty value":          "type:,description:Field",
	}

	for name, tag := range badTags {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSchemaTag(tag)
			require.Error(t, err)

			// Tag errors surface as invalid-class errors so the config
			// API can map them to 400s.
			var classified *errors.ClassifiedError
			require.True(t, stderrors.As(err, &classified))
			assert.Equal(t, errors.ErrorInvalid, classified.Class)
		})
	}
}

func TestConvertDefault(t *testing.T) {
	tests := map[string]struct {
		value     any
		fieldType string
		want      any
	}{
		"string value":       {"logs-*", "string", "logs-*"},
		"int value":          {"4", "int", 4},
		"bool true":          {"true", "bool", true},
		"bool false":         {"false", "bool", false},
		"float value":        {"0.25", "float", 0.25},
		"enum value":         {"warm", "enum", "warm"},
		"array value":        {"system_indices", "array", []string{"system_indices"}},
		"empty array":        {"", "array", []string{}},
		"object returns nil": {"{}", "object", nil},
		"ports returns nil":  {"{}", "ports", nil},
		"nil value":          {nil, "string", nil},
		"invalid int":        {"abc", "int", nil},
		"invalid bool":       {"maybe", "bool", nil},
		"invalid float":      {"not-a-number", "float", nil},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertDefault(tt.value, tt.fieldType))
		})
	}
}

// scanInputConfigType mirrors the shape of a scan input's config struct,
// including fields the generator must skip.
func scanInputConfigType() reflect.Type {
	type ScanInputConfig struct {
		Endpoint string `json:"endpoint" schema:"type:string,description:Cluster endpoint,category:basic"`
		Workers  int    `json:"workers"  schema:"type:int,description:Scan workers,min:1,max:64,default:4,category:basic"`
		Enabled  bool   `json:"enabled"  schema:"type:bool,description:Enable scanning,default:true"`

		Timeout     string `json:"timeout"      schema:"type:string,description:Request timeout,default:30s,category:advanced"`
		DefaultTier string `json:"default_tier" schema:"type:enum,description:Default tier,enum:hot|warm|cold,default:hot,category:advanced"`

		APIKey string `json:"api_key" schema:"required,type:string,description:Elasticsearch API key"`

		Rules []string `json:"rules" schema:"type:array,description:Enabled classification rules,default:system_indices"`

		Cache struct{} `json:"cache" schema:"type:object,description:Snapshot cache settings"`

		Ports *PortConfig `json:"ports" schema:"type:ports,description:Stream ports,category:basic"`

		// No schema tag, no json tag, or json:"-" all drop the field.
		Internal   string `json:"internal"`
		Unexported string `schema:"type:string,description:Not exported"`
		Ignored    string `json:"-" schema:"type:string,description:Ignored field"`
	}
	return reflect.TypeOf(ScanInputConfig{})
}

func TestGenerateConfigSchema(t *testing.T) {
	schema := GenerateConfigSchema(scanInputConfigType())

	for _, field := range []string{"endpoint", "workers", "enabled", "timeout", "default_tier", "api_key", "rules", "cache", "ports"} {
		assert.Contains(t, schema.Properties, field)
	}
	for _, field := range []string{"internal", "Unexported", "Ignored"} {
		assert.NotContains(t, schema.Properties, field)
	}

	endpoint := schema.Properties["endpoint"]
	assert.Equal(t, "string", endpoint.Type)
	assert.Equal(t, "Cluster endpoint", endpoint.Description)
	assert.Equal(t, "basic", endpoint.Category)

	workers := schema.Properties["workers"]
	assert.Equal(t, "int", workers.Type)
	assert.Equal(t, 4, workers.Default)
	require.NotNil(t, workers.Minimum)
	assert.Equal(t, 1, *workers.Minimum)
	require.NotNil(t, workers.Maximum)
	assert.Equal(t, 64, *workers.Maximum)

	enabled := schema.Properties["enabled"]
	assert.Equal(t, "bool", enabled.Type)
	assert.Equal(t, true, enabled.Default)

	tier := schema.Properties["default_tier"]
	assert.Equal(t, "enum", tier.Type)
	assert.Equal(t, []string{"hot", "warm", "cold"}, tier.Enum)
	assert.Equal(t, "hot", tier.Default)

	rules := schema.Properties["rules"]
	assert.Equal(t, "array", rules.Type)
	assert.Equal(t, []string{"system_indices"}, rules.Default)

	ports := schema.Properties["ports"]
	assert.Equal(t, "ports", ports.Type)
	assert.NotEmpty(t, ports.PortFields)

	assert.Contains(t, schema.Required, "api_key")
}

func TestGenerateConfigSchema_WithPointer(t *testing.T) {
	type BulkLoadConfig struct {
		Target string `json:"target" schema:"type:string,description:Target index"`
	}

	schema := GenerateConfigSchema(reflect.TypeOf(&BulkLoadConfig{}))
	assert.Contains(t, schema.Properties, "target")
}

func TestGenerateConfigSchema_NonStruct(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf("string"))
	assert.Empty(t, schema.Properties)
}

func TestGeneratePortFieldSchema(t *testing.T) {
	fields := GeneratePortFieldSchema()
	require.NotNil(t, fields)

	for _, field := range []string{"name", "type", "subject", "interface", "required", "description", "timeout"} {
		assert.Contains(t, fields, field)
	}

	// A port's identity is fixed; its wiring is not.
	assert.False(t, fields["name"].Editable)
	assert.True(t, fields["subject"].Editable)
}

func BenchmarkParseSchemaTag(b *testing.B) {
	tag := "type:string,description:Cluster endpoint,category:basic,default:https://localhost:9200"
	for i := 0; i < b.N; i++ {
		_, _ = ParseSchemaTag(tag)
	}
}

func BenchmarkGenerateConfigSchema(b *testing.B) {
	type BenchConfig struct {
		Endpoint    string `json:"endpoint"     schema:"type:string,description:Cluster endpoint,category:basic"`
		Workers     int    `json:"workers"      schema:"type:int,description:Scan workers,min:1,max:64,default:4"`
		Enabled     bool   `json:"enabled"      schema:"type:bool,description:Enable scanning,default:true"`
		DefaultTier string `json:"default_tier" schema:"type:enum,description:Default tier,enum:hot|warm|cold"`
	}

	configType := reflect.TypeOf(BenchConfig{})
	for i := 0; i < b.N; i++ {
		_ = GenerateConfigSchema(configType)
	}
}
