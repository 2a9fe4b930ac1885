package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/config"
	"github.com/eijnar/es-daily-ingest-calculator/health"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
)

// Status is a service lifecycle state.
type Status int

const (
	StatusStopped  Status = iota // initial state, and after Stop completes
	StatusStarting               // Start in progress
	StatusRunning
	StatusStopping
)

var statusNames = [...]string{"stopped", "starting", "running", "stopping"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Info is the runtime snapshot returned by GetStatus and the status API.
type Info struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`

	MessagesProcessed int64     `json:"messages_processed"`
	LastActivity      time.Time `json:"last_activity"`

	HealthChecks       int64 `json:"health_checks"`
	FailedHealthChecks int64 `json:"failed_health_checks"`
}

// HealthCheckFunc is a service-specific health probe; nil error means
// healthy.
type HealthCheckFunc func() error

// Option configures a BaseService at construction.
type Option func(*BaseService)

// BaseService carries what every service needs: status tracking, a
// periodic health check, a logger and the shared metrics registry. The
// component manager and service manager embed it.
type BaseService struct {
	name   string
	config *config.Config
	logger *slog.Logger

	nats            *natsclient.Client
	metricsRegistry *metric.MetricsRegistry

	status    atomic.Value // Status
	healthy   atomic.Bool
	startTime atomic.Value // time.Time

	lastActivity       atomic.Value // time.Time
	messagesProcessed  atomic.Int64
	failedHealthChecks atomic.Int64
	healthChecks       atomic.Int64

	healthCheckFunc HealthCheckFunc
	onHealthChange  func(bool)

	healthTicker   *time.Ticker
	healthInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	mu   sync.RWMutex
}

// NewBaseServiceWithOptions builds a stopped service with a 30s health
// interval and a name-scoped logger; options override both.
func NewBaseServiceWithOptions(name string, cfg *config.Config, opts ...Option) *BaseService {
	service := &BaseService{
		name: name, config: cfg,
		healthInterval: 30 * time.Second,
		logger:         slog.Default().With("service", name),
	}
	for _, apply := range opts {
		apply(service)
	}
	service.startTime.Store(time.Time{})
	service.lastActivity.Store(time.Time{})
	service.setStatus(StatusStopped)
	return service
}

// setStatus updates the lifecycle state and mirrors it into the metrics
// registry when one is attached.
func (s *BaseService) setStatus(status Status) {
	s.status.Store(status)
	if s.metricsRegistry != nil {
		s.metricsRegistry.CoreMetrics().RecordServiceStatus(s.name, int(status))
	}
}

// WithNATS gives the service a NATS client; its connectivity then feeds
// the default health check.
func WithNATS(client *natsclient.Client) Option {
	return func(s *BaseService) { s.nats = client }
}

// WithMetrics attaches the shared metrics registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *BaseService) { s.metricsRegistry = registry }
}

// WithLogger replaces the default logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *BaseService) {
		if logger == nil {
			return
		}
		s.logger = logger
	}
}

// WithHealthCheck installs a service-specific health probe.
func WithHealthCheck(fn HealthCheckFunc) Option {
	return func(s *BaseService) { s.healthCheckFunc = fn }
}

// WithHealthInterval changes how often the health probe runs.
func WithHealthInterval(interval time.Duration) Option {
	return func(s *BaseService) { s.healthInterval = interval }
}

// OnHealthChange registers a callback fired when health flips.
func OnHealthChange(fn func(bool)) Option {
	return func(s *BaseService) { s.onHealthChange = fn }
}

// Name returns the service name.
func (s *BaseService) Name() string { return s.name }

// Status returns the current lifecycle state.
func (s *BaseService) Status() Status { return s.status.Load().(Status) }

// IsHealthy reports the result of the latest health check.
func (s *BaseService) IsHealthy() bool { return s.healthy.Load() }

// Health maps lifecycle state and check results onto the shared health
// model. Embedding services override it when they have richer detail,
// like the component manager's per-component statuses.
func (s *BaseService) Health() health.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.healthy.Load() {
		return health.NewUnhealthy(s.name,
			fmt.Sprintf("Service is unhealthy (failed checks: %d)", s.failedHealthChecks.Load()))
	}

	switch status := s.Status(); status {
	case StatusRunning:
		return health.NewHealthy(s.name, "Service operating normally")
	case StatusStopped:
		return health.NewUnhealthy(s.name, "Service is stopped")
	case StatusStarting, StatusStopping:
		return health.NewDegraded(s.name, "Service is "+status.String())
	default:
		return health.NewUnhealthy(s.name, fmt.Sprintf("Unknown status: %v", status))
	}
}

// Start begins health monitoring and watches ctx for shutdown. Calling
// Start on a running service is a no-op.
func (s *BaseService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st == StatusRunning || st == StatusStarting {
		return nil
	}

	s.setStatus(StatusStarting)
	s.done = make(chan struct{})

	now := time.Now()
	s.startTime.Store(now)
	s.lastActivity.Store(now)

	if s.healthInterval > 0 {
		s.wg.Add(1)
		s.healthTicker = time.NewTicker(s.healthInterval)
		go s.healthMonitor()

		// First check runs after a short delay; component start
		// goroutines need a moment before the probe means anything.
		go func() { time.Sleep(200 * time.Millisecond); s.performHealthCheck() }()
	}

	s.wg.Add(1)
	go s.contextMonitor(ctx)

	s.setStatus(StatusRunning)
	return nil
}

// Stop halts monitoring and waits up to timeout for goroutines to
// finish. A zero timeout means 5 seconds.
func (s *BaseService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st == StatusStopped || st == StatusStopping {
		return nil
	}

	s.setStatus(StatusStopping)

	if s.done != nil {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}

	if s.healthTicker != nil {
		s.healthTicker.Stop()
	}

	if timeout == 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	finished := make(chan struct{})
	go func() { s.wg.Wait(); close(finished) }()

	// On timeout we proceed anyway; status still flips to stopped.
	select {
	case <-finished:
	case <-ctx.Done():
	}

	s.setStatus(StatusStopped)
	s.healthy.Store(false)

	return nil
}

// SetHealthCheck installs or replaces the health probe after
// construction.
func (s *BaseService) SetHealthCheck(fn HealthCheckFunc) {
	s.mu.Lock()
	s.healthCheckFunc = fn
	s.mu.Unlock()
}

// OnHealthChange sets the callback fired when health flips.
func (s *BaseService) OnHealthChange(callback func(bool)) {
	s.mu.Lock()
	s.onHealthChange = callback
	s.mu.Unlock()
}

// GetStatus snapshots the service's runtime counters.
func (s *BaseService) GetStatus() Info {
	startTime := s.startTime.Load().(time.Time)
	var uptime time.Duration
	if s.Status() == StatusRunning && !startTime.IsZero() {
		uptime = time.Since(startTime)
	}
	return Info{
		Name: s.name, Status: s.Status(), Uptime: uptime, StartTime: startTime,
		MessagesProcessed: s.messagesProcessed.Load(), LastActivity: s.lastActivity.Load().(time.Time),
		HealthChecks: s.healthChecks.Load(), FailedHealthChecks: s.failedHealthChecks.Load(),
	}
}

// RegisterMetrics is a hook for embedding services; the base has nothing
// of its own to register.
func (s *BaseService) RegisterMetrics(_ metric.MetricsRegistrar) error { return nil }

func (s *BaseService) healthMonitor() {
	defer s.wg.Done()
	for {
		select {
		case <-s.healthTicker.C:
			s.performHealthCheck()
		case <-s.done:
			return
		}
	}
}

// performHealthCheck runs the custom check first, then NATS connectivity.
func (s *BaseService) performHealthCheck() {
	s.healthChecks.Add(1)

	var err error
	if s.healthCheckFunc != nil {
		err = s.healthCheckFunc()
	}
	if err == nil && s.nats != nil && !s.nats.IsHealthy() {
		err = natsclient.ErrNotConnected
	}

	if err != nil {
		s.failedHealthChecks.Add(1)
	}

	isHealthy := err == nil
	if wasHealthy := s.healthy.Swap(isHealthy); wasHealthy != isHealthy && s.onHealthChange != nil {
		go s.onHealthChange(isHealthy)
	}
}

// contextMonitor turns parent-context cancellation into a shutdown; a
// normal Stop closes done first and wins.
func (s *BaseService) contextMonitor(ctx context.Context) {
	defer s.wg.Done()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.performGracefulShutdown()
	}
}

// performGracefulShutdown moves the service to stopped without holding
// the mutex, since it can race against an explicit Stop.
func (s *BaseService) performGracefulShutdown() {
	// Only the running-to-stopping transition belongs to this path; when
	// the swap fails an explicit Stop already owns the shutdown.
	if !s.status.CompareAndSwap(StatusRunning, StatusStopping) {
		return
	}
	if s.metricsRegistry != nil {
		s.metricsRegistry.CoreMetrics().RecordServiceStatus(s.name, int(StatusStopping))
	}

	if s.healthTicker != nil {
		s.healthTicker.Stop()
	}

	s.setStatus(StatusStopped)
	s.healthy.Store(false)
}

// Service is the contract the manager runs everything through.
type Service interface {
	Name() string
	Status() Status
	IsHealthy() bool
	Health() health.Status
	GetStatus() Info
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	RegisterMetrics(registrar metric.MetricsRegistrar) error
}
