package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/component"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status        string
		wantHealthy   bool
		wantDegraded  bool
		wantUnhealthy bool
	}{
		{"healthy", true, false, false},
		{"degraded", false, true, false},
		{"unhealthy", false, false, true},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run("status "+tt.status, func(t *testing.T) {
			s := Status{Status: tt.status}
			assert.Equal(t, tt.wantHealthy, s.IsHealthy())
			assert.Equal(t, tt.wantDegraded, s.IsDegraded())
			assert.Equal(t, tt.wantUnhealthy, s.IsUnhealthy())
		})
	}
}

func TestStatus_WithMetrics(t *testing.T) {
	original := NewHealthy("clusterscan-eu1", "Scan in progress")

	result := original.WithMetrics(&Metrics{
		Uptime:            time.Hour,
		ErrorCount:        2,
		MessagesProcessed: 1204,
	})

	assert.Nil(t, original.Metrics, "With* methods return copies")
	require.NotNil(t, result.Metrics)
	assert.Equal(t, time.Hour, result.Metrics.Uptime)
	assert.Equal(t, 2, result.Metrics.ErrorCount)
	assert.Equal(t, int64(1204), result.Metrics.MessagesProcessed)
}

func TestStatus_WithSubStatus(t *testing.T) {
	pipeline := NewHealthy("pipeline", "All stages running")
	failing := NewUnhealthy("bulkload-out", "bulk queue stalled")

	result := pipeline.WithSubStatus(failing)

	assert.Empty(t, pipeline.SubStatuses, "With* methods return copies")
	require.Len(t, result.SubStatuses, 1)
	assert.Equal(t, "bulkload-out", result.SubStatuses[0].Component)

	// Two copies from the same parent must not share a backing array.
	a := result.WithSubStatus(NewHealthy("classify", "ok"))
	b := result.WithSubStatus(NewHealthy("csvreport", "ok"))
	assert.Equal(t, "classify", a.SubStatuses[1].Component)
	assert.Equal(t, "csvreport", b.SubStatuses[1].Component)
}

func TestFromComponentHealth(t *testing.T) {
	tests := []struct {
		name        string
		health      component.HealthStatus
		wantStatus  string
		wantMessage string
	}{
		{
			name: "healthy component",
			health: component.HealthStatus{
				Healthy:   true,
				LastCheck: time.Now(),
				Uptime:    time.Hour,
			},
			wantStatus:  "healthy",
			wantMessage: "Component healthy",
		},
		{
			name: "unhealthy with error text",
			health: component.HealthStatus{
				Healthy:    false,
				LastCheck:  time.Now(),
				ErrorCount: 3,
				LastError:  "connection refused",
				Uptime:     time.Minute,
			},
			wantStatus:  "unhealthy",
			wantMessage: "connection refused",
		},
		{
			name: "unhealthy without error text",
			health: component.HealthStatus{
				Healthy:    false,
				LastCheck:  time.Now(),
				ErrorCount: 1,
				Uptime:     time.Second,
			},
			wantStatus:  "unhealthy",
			wantMessage: "Component unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromComponentHealth("scanner-eu1", tt.health)

			assert.Equal(t, "scanner-eu1", result.Component)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.False(t, result.Timestamp.IsZero())

			require.NotNil(t, result.Metrics)
			assert.Equal(t, tt.health.Uptime, result.Metrics.Uptime)
			assert.Equal(t, tt.health.ErrorCount, result.Metrics.ErrorCount)
			assert.Equal(t, tt.health.LastCheck, result.Metrics.LastActivity)
		})
	}
}
