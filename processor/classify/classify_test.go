package classify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/indexname"
	"github.com/eijnar/es-daily-ingest-calculator/message"
)

func TestClassifyProcessor_Creation(t *testing.T) {
	config := Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{Name: "rows", Type: "nats", Subject: "test.rows", Required: true},
			},
			Outputs: []component.PortDefinition{
				{Name: "classified", Type: "nats", Subject: "test.classified", Required: true},
			},
		},
	}

	rawConfig, err := json.Marshal(config)
	require.NoError(t, err)

	processor, err := NewProcessor(rawConfig, component.Dependencies{})
	require.NoError(t, err)
	require.NotNil(t, processor)

	meta := processor.Meta()
	assert.Equal(t, "classify-processor", meta.Name)
	assert.Equal(t, "processor", meta.Type)

	inputs := processor.InputPorts()
	require.Len(t, inputs, 1)
	outputs := processor.OutputPorts()
	require.Len(t, outputs, 1)
}

func TestClassifyProcessor_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	require.NotNil(t, config.Ports)
	require.Len(t, config.Ports.Inputs, 1)
	require.Len(t, config.Ports.Outputs, 1)
	assert.Equal(t, "inventory.index.v1", config.Ports.Inputs[0].Subject)
	assert.Equal(t, "inventory.classified.v1", config.Ports.Outputs[0].Subject)
	assert.NoError(t, config.Validate())
}

func TestClassifyProcessor_NoOutputSubject(t *testing.T) {
	config := Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{Name: "rows", Type: "nats", Subject: "test.rows", Required: true},
			},
		},
	}
	rawConfig, err := json.Marshal(config)
	require.NoError(t, err)

	_, err = NewProcessor(rawConfig, component.Dependencies{})
	assert.Error(t, err)
}

func TestClassifyRow(t *testing.T) {
	tests := []struct {
		name        string
		indexName   string
		wantScheme  indexname.Scheme
		wantKeyword string // empty means the engine's environment wins
	}{
		{
			name:       "legacy dotted keeps engine environment",
			indexName:  "metrics.payments.prod",
			wantScheme: indexname.SchemeLegacyDotted,
			// legacy-dotted always yields an environment (default when no
			// version suffix), so no keyword fallback
			wantKeyword: "",
		},
		{
			name:      "structured datastream with hyphen-less namespace",
			indexName: ".ds-logs-nginx.access-2024.01.15-000003",
			// namespace "access" has no hyphen: environment is nil and the
			// keyword scan runs; the name contains no keyword
			wantScheme:  indexname.SchemeStructured,
			wantKeyword: "other",
		},
		{
			name:        "unrecognized name gets keyword bucket",
			indexName:   "randomname123",
			wantScheme:  indexname.SchemeUnrecognized,
			wantKeyword: "other",
		},
		{
			name:        "unrecognized prod name",
			indexName:   "my_prod_data",
			wantScheme:  indexname.SchemeUnrecognized,
			wantKeyword: "prod",
		},
		{
			name:        "nonprod beats prod in keyword scan",
			indexName:   "stuff_nonprod_things",
			wantScheme:  indexname.SchemeUnrecognized,
			wantKeyword: "nonprod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := message.IndexRowPayload{
				Cluster:   "logging-prod-eu1",
				IndexName: tt.indexName,
				SizeBytes: 100,
			}

			got := classifyRow(row)
			assert.Equal(t, tt.wantScheme, got.Parsed.Scheme)
			assert.Equal(t, tt.wantKeyword, got.EnvironmentKeyword)
			assert.Equal(t, row, got.Row, "row must pass through unchanged")

			if tt.wantKeyword == "" {
				require.NotNil(t, got.Parsed.Environment)
				assert.NotEmpty(t, got.Parsed.Environment)
			}
		})
	}
}

func TestClassifyRow_FallbackQuirkEnvironmentWins(t *testing.T) {
	// The textual fallback branch fills Environment with the application
	// value, so the keyword scan must not run.
	got := classifyRow(message.IndexRowPayload{
		IndexName: ".ds-logs-apache-prod-2024.13.45-0001x",
		SizeBytes: 1,
	})
	assert.Equal(t, indexname.SchemeTextualFallback, got.Parsed.Scheme)
	require.NotNil(t, got.Parsed.Environment)
	assert.Empty(t, got.EnvironmentKeyword)
	assert.Equal(t, *got.Parsed.Environment, got.Environment())
}

func TestClassifyProcessor_Lifecycle_NoNATSClient(t *testing.T) {
	processor, err := NewProcessor(nil, component.Dependencies{})
	require.NoError(t, err)

	lc, ok := processor.(component.LifecycleComponent)
	require.True(t, ok)

	require.NoError(t, lc.Initialize())
	assert.Error(t, lc.Start(context.Background()), "Start without NATS client must fail")
}
