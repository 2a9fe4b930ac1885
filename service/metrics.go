package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/security"
)

// Metrics runs the Prometheus scrape endpoint as a managed service, so
// it starts and stops with the rest of the pipeline.
type Metrics struct {
	*BaseService

	config   MetricsConfig
	server   *metric.Server
	registry *metric.MetricsRegistry
	security security.Config
}

// MetricsConfig is the service's slice of the services config block.
type MetricsConfig struct {
	Path string `json:"path"`
	Port int    `json:"port"`
}

func (c MetricsConfig) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("invalid port: %d", c.Port)
	case c.Path == "":
		return fmt.Errorf("metrics path cannot be empty")
	default:
		return nil
	}
}

const (
	defaultMetricsPort = 9090
	defaultMetricsPath = "/metrics"
)

// NewMetrics builds the service from raw config, defaulting to port 9090
// and /metrics.
func NewMetrics(raw json.RawMessage, deps *Dependencies) (Service, error) {
	var cfg MetricsConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse metrics config: %w", err)
		}
	}
	if cfg.Port == 0 {
		cfg.Port = defaultMetricsPort
	}
	if cfg.Path == "" {
		cfg.Path = defaultMetricsPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate metrics config: %w", err)
	}

	// scrape endpoint follows the platform TLS settings
	var securityCfg security.Config
	if deps.Manager != nil {
		if full := deps.Manager.GetConfig(); full != nil {
			securityCfg = full.Get().Security
		}
	}

	m := &Metrics{
		BaseService: NewBaseServiceWithOptions("metrics", nil,
			WithLogger(deps.Logger), WithMetrics(deps.MetricsRegistry)),
		config:   cfg,
		registry: deps.MetricsRegistry,
		security: securityCfg,
	}

	m.SetHealthCheck(m.healthCheck)

	return m, nil
}

// Start brings up the scrape endpoint in the background.
func (m *Metrics) Start(ctx context.Context) error {
	if baseErr := m.BaseService.Start(ctx); baseErr != nil {
		return baseErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return fmt.Errorf("metrics endpoint already started")
	}
	m.server = metric.NewServer(m.config.Port, m.config.Path, m.registry, m.security)

	// Stop may clear m.server while the listener goroutine is still up,
	// so it holds its own reference.
	srv := m.server
	go func() {
		slog.Info("starting metrics server", "port", m.config.Port, "path", m.config.Path)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics endpoint failed", "error", err)
		}
	}()

	// give the listener a moment before reporting the URL
	time.Sleep(100 * time.Millisecond)
	slog.Info("metrics service started", "url", m.URL())

	return nil
}

// Stop closes the endpoint, then the base service.
func (m *Metrics) Stop(timeout time.Duration) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()

	if srv != nil {
		if err := srv.Stop(); err != nil {
			return fmt.Errorf("stop metrics endpoint: %w", err)
		}
	}
	if err := m.BaseService.Stop(timeout); err != nil {
		return err
	}

	slog.Info("metrics service stopped")
	return nil
}

func (m *Metrics) healthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.server == nil {
		return fmt.Errorf("metrics server not running")
	}
	return nil
}

// Port returns the configured listen port.
func (m *Metrics) Port() int { return m.config.Port }

// Path returns the configured endpoint path.
func (m *Metrics) Path() string { return m.config.Path }

// URL returns the scrape URL, scheme included.
func (m *Metrics) URL() string {
	if m.security.TLS.Server.Enabled {
		return fmt.Sprintf("https://localhost:%d%s", m.config.Port, m.config.Path)
	}
	return fmt.Sprintf("http://localhost:%d%s", m.config.Port, m.config.Path)
}

// ConfigSchema describes the service's config fields for the schema API.
func (m *Metrics) ConfigSchema() ConfigSchema {
	props := map[string]PropertySchema{
		"enabled": {
			Runtime: false,
			PropertySchema: component.PropertySchema{
				Type: "bool", Default: true,
				Description: "Expose the Prometheus scrape endpoint",
			},
		},
		"port": {
			Category: "network",
			Runtime:  false, // rebinding needs a restart
			PropertySchema: component.PropertySchema{
				Type: "int", Default: defaultMetricsPort,
				Minimum:     intPtr(1024),
				Maximum:     intPtr(65535),
				Description: "Listen port for the scrape endpoint",
			},
		},
		"path": {
			Category: "network",
			Runtime:  false,
			PropertySchema: component.PropertySchema{
				Type: "string", Default: defaultMetricsPath,
				Description: "HTTP path the scrape endpoint serves",
			},
		},
	}
	return NewConfigSchema(props, []string{}) // every field has a default
}

// ValidateConfigUpdate accepts only the enabled flag at runtime; port
// and path need a restart to rebind.
func (m *Metrics) ValidateConfigUpdate(changes map[string]any) error {
	for key, value := range changes {
		if key != "enabled" {
			return fmt.Errorf("runtime update of '%s' is not supported (requires restart)", key)
		}
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("enabled must be a boolean")
		}
	}
	return nil
}

// ApplyConfigUpdate handles the enabled flag; the actual start and stop
// are the service manager's job.
func (m *Metrics) ApplyConfigUpdate(changes map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if enabled, ok := changes["enabled"].(bool); ok {
		m.logger.Info("metrics enabled state changed", "enabled", enabled)
	}

	return nil
}

// GetRuntimeConfig reports the live settings.
func (m *Metrics) GetRuntimeConfig() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]any{
		"path":    m.config.Path,
		"port":    m.config.Port,
		"enabled": true, // reachable only while running
	}
}

func intPtr(i int) *int { return &i }
