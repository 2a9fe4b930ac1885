package component_test

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/eijnar/es-daily-ingest-calculator/component"
)

// ExampleGenerateConfigSchema shows how a component derives its config
// schema from struct tags instead of writing it out by hand.
func ExampleGenerateConfigSchema() {
	type ScanConfig struct {
		Endpoint string `json:"endpoint" schema:"type:string,description:Cluster endpoint,category:basic"`
		Workers  int    `json:"workers"  schema:"type:int,description:Scan workers,min:1,max:64,default:4,category:basic"`
		Enabled  bool   `json:"enabled"  schema:"type:bool,description:Enable scanning,default:true,category:basic"`

		Timeout     string `json:"timeout"      schema:"type:string,description:Request timeout,default:30s,category:advanced"`
		DefaultTier string `json:"default_tier" schema:"type:enum,description:Default tier,enum:hot|warm|cold,default:hot,category:advanced"`

		APIKey string `json:"api_key" schema:"required,type:string,description:Elasticsearch API key"`
	}

	// Reflection runs once, at registration time.
	schema := component.GenerateConfigSchema(reflect.TypeOf(ScanConfig{}))

	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	fmt.Println(string(schemaJSON))
}

func ExampleParseSchemaTag() {
	directives, err := component.ParseSchemaTag("type:int,description:Scan workers,min:1,max:64,default:4")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("type:", directives.Type)
	fmt.Println("description:", directives.Description)
	fmt.Println("range:", *directives.Min, "to", *directives.Max)
	fmt.Println("default:", directives.Default)

	// Output:
	// type: int
	// description: Scan workers
	// range: 1 to 64
	// default: 4
}

func ExampleParseSchemaTag_enum() {
	directives, _ := component.ParseSchemaTag("type:enum,description:Default tier,enum:hot|warm|cold,default:hot")

	fmt.Println("type:", directives.Type)
	fmt.Println("values:", directives.Enum)
	fmt.Println("default:", directives.Default)

	// Output:
	// type: enum
	// values: [hot warm cold]
	// default: hot
}

func ExampleParseSchemaTag_flags() {
	directives, _ := component.ParseSchemaTag("required,readonly,type:string,description:Cluster UUID")

	fmt.Println("type:", directives.Type)
	fmt.Println("required:", directives.Required, "readonly:", directives.ReadOnly)

	// Output:
	// type: string
	// required: true readonly: true
}
