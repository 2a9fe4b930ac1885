package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty string", "", ""},
		{"unix path", "failed to open /etc/esdic/config.json", "failed to open [PATH]"},
		{"windows path", "cannot read C:\\esdic\\reports\\daily.csv", "cannot read [PATH]"},
		{"elasticsearch url", "scan failed against https://es-logging.internal:9200/_cat/indices", "scan failed against [URL]"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port number", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credentials", "auth failed with password:secretpass123", "auth failed with [REDACTED]"},
		{"url plus token", "bulk load to https://192.168.1.1:9200/_bulk with token=abc123def", "bulk load to [URL] with [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	original := Status{
		Component: "scan-scheduler",
		Status:    "healthy",
		SubStatuses: []Status{
			{Component: "clusterscan-input", Status: "healthy"},
		},
	}

	modified := original.WithSubStatus(Status{
		Component: "bulkload-output",
		Status:    "unhealthy",
	})

	assert.Len(t, original.SubStatuses, 1)
	assert.Len(t, modified.SubStatuses, 2)
	assert.Equal(t, "bulkload-output", modified.SubStatuses[1].Component)

	// Writing through the original must not leak into the copy.
	original.SubStatuses[0].Status = "degraded"
	assert.Equal(t, "healthy", modified.SubStatuses[0].Status)
}
