package message_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/message"
)

func TestNewGenericJSON(t *testing.T) {
	data := map[string]any{"index_name": "metrics.payments.prod"}

	payload := message.NewGenericJSON(data)
	require.NotNil(t, payload)
	assert.Equal(t, data, payload.Data)
	assert.Equal(t, message.Type{Domain: "core", Category: "json", Version: "v1"}, payload.Schema())
}

func TestGenericJSON_Validate(t *testing.T) {
	tests := []struct {
		name      string
		data      map[string]any
		wantError bool
	}{
		{"with data", map[string]any{"index": "metrics.payments.prod", "size_mb": 23.5}, false},
		{"empty map", map[string]any{}, false},
		{"nil data", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&message.GenericJSONPayload{Data: tt.data}).Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// One round trip covering scalars, a nested map, and an array, since that
// is the shape a relayed index row actually has.
func TestGenericJSON_RoundTrip(t *testing.T) {
	original := &message.GenericJSONPayload{
		Data: map[string]any{
			"cluster":      "logging-prod-eu1",
			"total_size":   512.25,
			"system_index": false,
			"indices": []any{
				map[string]any{"name": "metrics.payments.prod", "size_mb": 10.5},
				map[string]any{"name": "metrics.orders.prod", "size_mb": 20.3},
			},
			"metadata": map[string]any{
				"scanned_at": "2026-08-23T06:00:00Z",
			},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	// The wire format nests everything under "data".
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	require.Contains(t, wire, "data")

	var decoded message.GenericJSONPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "logging-prod-eu1", decoded.Data["cluster"])
	assert.Equal(t, 512.25, decoded.Data["total_size"])
	assert.Equal(t, false, decoded.Data["system_index"])

	indices, ok := decoded.Data["indices"].([]any)
	require.True(t, ok)
	assert.Len(t, indices, 2)

	metadata, ok := decoded.Data["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-08-23T06:00:00Z", metadata["scanned_at"])
}
