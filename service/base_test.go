package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/config"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// schedulerConfig builds a config carrying one scan-scheduler service
// block with the given raw settings.
func schedulerConfig(raw string) *config.Config {
	return &config.Config{
		Platform: config.PlatformConfig{
			Org: "acme",
			ID:  "logging-prod-eu1",
		},
		Services: types.ServiceConfigs{
			"scan-scheduler": types.ServiceConfig{
				Name:    "scan-scheduler",
				Enabled: true,
				Config:  json.RawMessage(raw),
			},
		},
	}
}

func newSchedulerBase(t *testing.T, raw string) *BaseService {
	t.Helper()
	return NewBaseServiceWithOptions("scan-scheduler", schedulerConfig(raw),
		WithNATS(getSharedNATSClient(t)),
		WithMetrics(metric.NewMetricsRegistry()))
}

// waitFor polls cond every 10ms until it holds or the timeout runs out.
func waitFor(cond func() bool, timeout time.Duration) bool {
	for deadline := time.Now().Add(timeout); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		if cond() {
			return true
		}
	}
	return false
}

func waitForHealthy(service Service, timeout time.Duration) bool {
	return waitFor(service.IsHealthy, timeout)
}

func waitForCounter(counter *int64, timeout time.Duration) bool {
	return waitFor(func() bool { return atomic.LoadInt64(counter) > 0 }, timeout)
}

func TestBaseService_Creation(t *testing.T) {
	service := newSchedulerBase(t, `{"default_timeout": "30s", "health_interval": "10s"}`)

	assert.NotNil(t, service)
	assert.Equal(t, "scan-scheduler", service.Name())
	assert.Equal(t, StatusStopped, service.Status())
	assert.False(t, service.IsHealthy(), "a service is not healthy before Start")
}

func TestBaseService_Lifecycle(t *testing.T) {
	service := newSchedulerBase(t, `{"default_timeout": "100ms", "health_interval": "50ms"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, service.Start(ctx))
	assert.Equal(t, StatusRunning, service.Status())

	require.NoError(t, service.Stop(5*time.Second))
	assert.Equal(t, StatusStopped, service.Status())
}

func TestBaseService_HealthMonitoring(t *testing.T) {
	service := newSchedulerBase(t, `{"health_interval": "50ms"}`)

	var transitions int64
	service.OnHealthChange(func(bool) { atomic.AddInt64(&transitions, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, service.Start(ctx))

	assert.True(t, waitForHealthy(service, 500*time.Millisecond),
		"the default probe should report healthy once the first check runs")
	assert.True(t, waitForCounter(&transitions, 500*time.Millisecond),
		"the unhealthy-to-healthy flip should fire the callback")

	require.NoError(t, service.Stop(5*time.Second))
}

func TestBaseService_StopWithShortTimeout(t *testing.T) {
	service := newSchedulerBase(t, `{"default_timeout": "200ms"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, service.Start(ctx))

	// Even when the goroutines do not drain inside the timeout, Stop
	// returns and the status flips to stopped.
	require.NoError(t, service.Stop(100*time.Millisecond))
	assert.Equal(t, StatusStopped, service.Status())
}

func TestBaseService_ContextCancellation(t *testing.T) {
	service := newSchedulerBase(t, `{"default_timeout": "100ms"}`)

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, service.Start(ctx))

	cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatusStopped, service.Status(),
		"cancelling the parent context shuts the service down")
}

func TestBaseService_GetStatus(t *testing.T) {
	service := newSchedulerBase(t, `{"default_timeout": "30s"}`)

	info := service.GetStatus()
	assert.Equal(t, "scan-scheduler", info.Name)
	assert.Equal(t, StatusStopped, info.Status)
	assert.Equal(t, int64(0), info.Uptime.Milliseconds())
	assert.Equal(t, int64(0), info.MessagesProcessed)
}

func TestBaseService_CustomHealthCheck(t *testing.T) {
	service := newSchedulerBase(t, `{"health_interval": "50ms"}`)

	var probeRan int64
	service.SetHealthCheck(func() error {
		atomic.StoreInt64(&probeRan, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, service.Start(ctx))

	assert.True(t, waitForCounter(&probeRan, 500*time.Millisecond),
		"the installed probe should run on the health interval")

	require.NoError(t, service.Stop(5*time.Second))
}

func TestBaseService_FailingHealthCheck(t *testing.T) {
	service := newSchedulerBase(t, `{"health_interval": "50ms"}`)

	service.SetHealthCheck(func() error {
		return errors.New("elasticsearch unreachable")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, service.Start(ctx))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, service.IsHealthy())

	require.NoError(t, service.Stop(5*time.Second))
}

func TestBaseService_ConcurrentStartStop(t *testing.T) {
	service := newSchedulerBase(t, `{"default_timeout": "100ms"}`)

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		go func() { _ = service.Start(ctx) }()
	}
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		go func() { _ = service.Stop(5 * time.Second) }()
	}
	time.Sleep(50 * time.Millisecond)

	// Racing starts and stops must never leave a transitional status
	// behind.
	status := service.Status()
	assert.True(t, status == StatusRunning || status == StatusStopped)
}

func TestBaseService_Restart(t *testing.T) {
	service := newSchedulerBase(t, `{"default_timeout": "100ms"}`)

	ctx := context.Background()

	require.NoError(t, service.Start(ctx))
	assert.Equal(t, StatusRunning, service.Status())

	require.NoError(t, service.Stop(5*time.Second))
	assert.Equal(t, StatusStopped, service.Status())

	require.NoError(t, service.Start(ctx))
	assert.Equal(t, StatusRunning, service.Status())

	require.NoError(t, service.Stop(5*time.Second))
}

func TestBaseService_StatusTransitions(t *testing.T) {
	tests := map[string]struct {
		initial Status
		action  func(*BaseService, context.Context) error
		want    Status
	}{
		"stopped to running": {
			initial: StatusStopped,
			action:  func(s *BaseService, ctx context.Context) error { return s.Start(ctx) },
			want:    StatusRunning,
		},
		"running to stopped": {
			initial: StatusRunning,
			action:  func(s *BaseService, _ context.Context) error { return s.Stop(5 * time.Second) },
			want:    StatusStopped,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			service := newSchedulerBase(t, `{"default_timeout": "100ms"}`)
			ctx := context.Background()

			if tt.initial == StatusRunning {
				require.NoError(t, service.Start(ctx))
			}

			require.NoError(t, tt.action(service, ctx))
			assert.Equal(t, tt.want, service.Status())

			service.Stop(5 * time.Second)
		})
	}
}

func TestBaseService_Options(t *testing.T) {
	cfg := schedulerConfig(`{"health_interval": "10s"}`)

	t.Run("no dependencies", func(t *testing.T) {
		service := NewBaseServiceWithOptions("scan-scheduler", cfg)

		assert.Equal(t, "scan-scheduler", service.Name())
		assert.Equal(t, StatusStopped, service.Status())
		assert.Nil(t, service.nats)
		assert.Nil(t, service.metricsRegistry)
	})

	t.Run("nats only", func(t *testing.T) {
		natsClient := getSharedNATSClient(t)

		service := NewBaseServiceWithOptions("scan-scheduler", cfg, WithNATS(natsClient))

		assert.Equal(t, natsClient, service.nats)
		assert.Nil(t, service.metricsRegistry)
	})

	t.Run("metrics only", func(t *testing.T) {
		metricsRegistry := metric.NewMetricsRegistry()

		service := NewBaseServiceWithOptions("scan-scheduler", cfg, WithMetrics(metricsRegistry))

		assert.Nil(t, service.nats)
		assert.Equal(t, metricsRegistry, service.metricsRegistry)
	})

	t.Run("health check option", func(t *testing.T) {
		probeRan := false
		service := NewBaseServiceWithOptions("scan-scheduler", cfg, WithHealthCheck(func() error {
			probeRan = true
			return nil
		}))

		require.NotNil(t, service.healthCheckFunc)
		assert.NoError(t, service.healthCheckFunc())
		assert.True(t, probeRan)
	})

	t.Run("health interval option", func(t *testing.T) {
		service := NewBaseServiceWithOptions("scan-scheduler", cfg, WithHealthInterval(5*time.Second))

		assert.Equal(t, 5*time.Second, service.healthInterval)
	})

	t.Run("health change callback option", func(t *testing.T) {
		var observed bool
		service := NewBaseServiceWithOptions("scan-scheduler", cfg, OnHealthChange(func(healthy bool) {
			observed = healthy
		}))

		require.NotNil(t, service.onHealthChange)
		service.onHealthChange(true)
		assert.True(t, observed)
		service.onHealthChange(false)
		assert.False(t, observed)
	})

	t.Run("all options together", func(t *testing.T) {
		natsClient := getSharedNATSClient(t)
		metricsRegistry := metric.NewMetricsRegistry()

		service := NewBaseServiceWithOptions("scan-scheduler", cfg,
			WithNATS(natsClient),
			WithMetrics(metricsRegistry),
			WithHealthCheck(func() error { return nil }),
			WithHealthInterval(5*time.Second),
			OnHealthChange(func(bool) {}))

		assert.Equal(t, natsClient, service.nats)
		assert.Equal(t, metricsRegistry, service.metricsRegistry)
		assert.Equal(t, 5*time.Second, service.healthInterval)
		assert.NotNil(t, service.healthCheckFunc)
		assert.NotNil(t, service.onHealthChange)
	})
}
