package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/health"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
)

// stubService is the smallest possible Service, used to populate the
// manager without dragging real components into the test.
type stubService struct {
	name    string
	status  Status
	healthy bool
}

func (s *stubService) Name() string { return s.name }
func (s *stubService) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}
func (s *stubService) Stop(_ time.Duration) error { return nil }
func (s *stubService) Status() Status             { return s.status }
func (s *stubService) IsHealthy() bool            { return s.healthy }
func (s *stubService) GetStatus() Info {
	return Info{Name: s.name, Status: s.status}
}
func (s *stubService) RegisterMetrics(_ metric.MetricsRegistrar) error { return nil }

func (s *stubService) Health() health.Status {
	if !s.healthy {
		return health.NewUnhealthy(s.name, "stub unhealthy")
	}
	switch s.status {
	case StatusRunning:
		return health.NewHealthy(s.name, "stub running")
	case StatusStarting, StatusStopping:
		return health.NewDegraded(s.name, "stub transitioning")
	default:
		return health.NewUnhealthy(s.name, "stub stopped")
	}
}

// stubSchedulerService stands in for the scan scheduler: a service whose
// interval and concurrency knobs can change at runtime.
type stubSchedulerService struct {
	stubService
	runtimeConfig map[string]any
	validateErr   error
	applyErr      error
	applied       bool
	lastChanges   map[string]any
}

func (s *stubSchedulerService) ConfigSchema() ConfigSchema {
	return NewConfigSchema(map[string]PropertySchema{
		"enabled": {
			PropertySchema: component.PropertySchema{
				Type:        "bool",
				Description: "Enable scheduled scans",
				Default:     false,
			},
			Runtime: true,
		},
		"scan_interval": {
			PropertySchema: component.PropertySchema{
				Type:        "string",
				Description: "Interval between full cluster scans",
				Default:     "24h",
			},
			Runtime: true,
		},
	}, []string{})
}

func (s *stubSchedulerService) ValidateConfigUpdate(_ map[string]any) error {
	return s.validateErr
}

func (s *stubSchedulerService) ApplyConfigUpdate(changes map[string]any) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = true
	s.lastChanges = make(map[string]any)
	for k, v := range changes {
		s.lastChanges[k] = v
		s.runtimeConfig[k] = v
	}
	return nil
}

func (s *stubSchedulerService) GetRuntimeConfig() map[string]any {
	return s.runtimeConfig
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestManager builds a Manager the way ConfigureFromServices would,
// minus NATS and the config manager.
func newTestManager(cfg ManagerConfig) *Manager {
	m := NewServiceManager(NewServiceRegistry())
	m.config = cfg
	m.isHTTPManager = true
	m.BaseService = NewBaseServiceWithOptions("service-manager", nil, WithLogger(quietLogger()))
	return m
}

func addService(m *Manager, svc Service) {
	m.mu.Lock()
	m.services[svc.Name()] = svc
	m.mu.Unlock()
}

func TestServiceManager_StartStop(t *testing.T) {
	m := newTestManager(ManagerConfig{HTTPPort: 18081})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(time.Second))

	// A second stop must be a no-op, not an error.
	assert.NoError(t, m.Stop(time.Second))
}

func TestServiceManager_Start_WithoutConfigWatcher(t *testing.T) {
	// No config manager wired means no config updates channel; Start must
	// still succeed and simply skip the watcher.
	m := newTestManager(ManagerConfig{HTTPPort: 18082})
	require.Nil(t, m.configUpdates)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx))
	assert.NoError(t, m.Stop(time.Second))
}

func TestServiceManager_Start_NonHTTPInstance(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	m.isHTTPManager = false

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx))
	assert.NoError(t, m.Stop(time.Second))
}

func TestServiceManager_HasNATSAccess(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	assert.False(t, m.hasNATSAccess(), "no client wired means no NATS access")
}

func TestServiceManager_GetServiceRuntimeConfig_UnknownService(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	cfg, err := m.GetServiceRuntimeConfig("snapshot-pruner")
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "not found")
}

func TestServiceManager_GetServiceRuntimeConfig_Unsupported(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	addService(m, &stubService{name: "report-exporter", status: StatusRunning, healthy: true})

	_, err := m.GetServiceRuntimeConfig("report-exporter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support runtime configuration")
}

func TestServiceManager_GetServiceRuntimeConfig(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	expected := map[string]any{
		"enabled":         true,
		"scan_interval":   "24h",
		"max_concurrency": 4,
	}
	scheduler := &stubSchedulerService{
		stubService:   stubService{name: "scan-scheduler", status: StatusRunning, healthy: true},
		runtimeConfig: expected,
	}
	addService(m, scheduler)

	cfg, err := m.GetServiceRuntimeConfig("scan-scheduler")
	require.NoError(t, err)
	assert.Equal(t, expected, cfg)
}

func TestServiceManager_HasRuntimeConfigSupport(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	assert.False(t, m.hasRuntimeConfigSupport("missing"))

	addService(m, &stubService{name: "report-exporter", status: StatusRunning, healthy: true})
	assert.False(t, m.hasRuntimeConfigSupport("report-exporter"))

	addService(m, &stubSchedulerService{
		stubService:   stubService{name: "scan-scheduler", status: StatusRunning, healthy: true},
		runtimeConfig: map[string]any{"enabled": true},
	})
	assert.True(t, m.hasRuntimeConfigSupport("scan-scheduler"))
}

func TestServiceManager_RuntimeConfigUpdate(t *testing.T) {
	scheduler := &stubSchedulerService{
		stubService: stubService{name: "scan-scheduler", status: StatusRunning, healthy: true},
		runtimeConfig: map[string]any{
			"enabled":       false,
			"scan_interval": "24h",
		},
	}

	var _ RuntimeConfigurable = scheduler

	tests := []struct {
		name     string
		property string
		newValue any
	}{
		{name: "enable scheduled scans", property: "enabled", newValue: true},
		{name: "tighten scan interval", property: "scan_interval", newValue: "6h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := map[string]any{tt.property: tt.newValue}

			require.NoError(t, scheduler.ValidateConfigUpdate(changes))
			require.NoError(t, scheduler.ApplyConfigUpdate(changes))

			assert.True(t, scheduler.applied)
			assert.Equal(t, tt.newValue, scheduler.lastChanges[tt.property])
			assert.Equal(t, tt.newValue, scheduler.runtimeConfig[tt.property])

			scheduler.applied = false
			scheduler.lastChanges = nil
		})
	}
}

func TestServiceManager_RuntimeConfigUpdate_ValidationFailure(t *testing.T) {
	scheduler := &stubSchedulerService{
		stubService: stubService{name: "scan-scheduler", status: StatusRunning, healthy: true},
		validateErr: fmt.Errorf("scan_interval below minimum"),
	}

	err := scheduler.ValidateConfigUpdate(map[string]any{"scan_interval": "1s"})
	require.Error(t, err)
	assert.False(t, scheduler.applied, "a failed validation must not apply anything")
}

func TestServiceManager_RuntimeConfigUpdate_ApplyFailure(t *testing.T) {
	scheduler := &stubSchedulerService{
		stubService:   stubService{name: "scan-scheduler", status: StatusRunning, healthy: true},
		runtimeConfig: map[string]any{"enabled": false},
		applyErr:      fmt.Errorf("scheduler is mid-scan"),
	}

	changes := map[string]any{"enabled": true}
	require.NoError(t, scheduler.ValidateConfigUpdate(changes))

	err := scheduler.ApplyConfigUpdate(changes)
	require.Error(t, err)
	assert.False(t, scheduler.applied)
	assert.Equal(t, false, scheduler.runtimeConfig["enabled"],
		"a failed apply must leave the old value in place")
}

func TestServiceManager_HealthPartition(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	addService(m, &stubService{name: "component-manager", status: StatusRunning, healthy: true})
	addService(m, &stubService{name: "metrics", status: StatusRunning, healthy: true})
	addService(m, &stubService{name: "report-exporter", status: StatusStopped, healthy: false})

	healthy := m.GetHealthyServices()
	unhealthy := m.GetUnhealthyServices()

	assert.ElementsMatch(t, []string{"component-manager", "metrics"}, healthy)
	assert.Equal(t, []string{"report-exporter"}, unhealthy)
}

func TestServiceManager_ServiceNameToPrefix(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	tests := []struct {
		service string
		prefix  string
	}{
		// The component manager's endpoints mount under /components.
		{"component-manager", "components"},
		{"metrics", "metrics"},
		{"scan-scheduler", "scanscheduler"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.prefix, m.serviceNameToPrefix(tt.service), tt.service)
	}
}
