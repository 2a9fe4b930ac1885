package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/config"
	"github.com/eijnar/es-daily-ingest-calculator/health"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/retry"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// Manager owns the set of running services (component manager plus any
// future ones) and the single HTTP surface they share: health probes,
// service discovery, the component API and the OpenAPI document.
type Manager struct {
	*BaseService

	registry *Registry
	services map[string]Service
	order    []string // registration order, reversed for shutdown
	mu       sync.RWMutex

	httpServer *http.Server
	httpMux    *http.ServeMux
	config     ManagerConfig

	isHTTPManager bool

	natsClient    *natsclient.Client
	configManager *config.Manager
	configUpdates <-chan config.Update
	dependencies  *Dependencies // handed to mandatory services created late
}

// NewServiceManager creates a manager around the given constructor
// registry. HTTP config arrives later through ConfigureFromServices.
func NewServiceManager(registry *Registry) *Manager {
	m := &Manager{
		registry: registry,
		services: make(map[string]Service),
	}
	m.BaseService = NewBaseServiceWithOptions("service-manager-registry", nil)
	return m
}

// log returns the configured logger, falling back to the process default
// before ConfigureFromServices has run.
func (m *Manager) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

// ConfigureFromServices reads the manager's own settings out of the
// services config block and wires the shared dependencies.
func (m *Manager) ConfigureFromServices(services map[string]types.ServiceConfig, deps *Dependencies) error {
	logger := slog.Default()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	cfg := ManagerConfig{
		HTTPPort: 8080,
		ServerInfo: InfoSpec{
			Title:       "Ingest Calculator API",
			Description: "Elasticsearch daily ingest calculator API",
			Version:     "0.7.0",
		},
	}

	if smConfig, ok := services["service-manager"]; ok && smConfig.Enabled {
		var parsed ManagerConfig
		if len(smConfig.Config) > 0 {
			if err := json.Unmarshal(smConfig.Config, &parsed); err != nil {
				return fmt.Errorf("parse service-manager config: %w", err)
			}
		}

		// parsed values win; zero values keep the defaults above
		if parsed.HTTPPort != 0 {
			cfg.HTTPPort = parsed.HTTPPort
		}
		override := func(dst *string, v string) {
			if v != "" {
				*dst = v
			}
		}
		override(&cfg.ServerInfo.Title, parsed.ServerInfo.Title)
		override(&cfg.ServerInfo.Description, parsed.ServerInfo.Description)
		override(&cfg.ServerInfo.Version, parsed.ServerInfo.Version)
		cfg.SwaggerUI = parsed.SwaggerUI

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate service-manager config: %w", err)
		}
	} else {
		logger.Debug("no service-manager config, using defaults")
	}
	m.config = cfg

	if deps != nil {
		m.dependencies = deps
		m.natsClient = deps.NATSClient
		if deps.Manager != nil {
			m.configManager = deps.Manager
			m.configUpdates = deps.Manager.OnChange("services.*")
		}
	}

	if m.BaseService == nil {
		m.BaseService = NewBaseServiceWithOptions("service-manager", nil,
			WithLogger(deps.Logger), WithMetrics(deps.MetricsRegistry))
	}

	logger.Debug("service manager configured",
		"http_port", m.config.HTTPPort,
		"swagger_ui", m.config.SwaggerUI)

	return nil
}

// CreateService instantiates a registered service from its raw JSON
// config and tracks it for shutdown ordering.
func (m *Manager) CreateService(name string, rawConfig json.RawMessage, deps *Dependencies) (Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[name]; exists {
		return nil, fmt.Errorf("service %s already created", name)
	}
	ctor, ok := m.registry.Constructor(name)
	if !ok {
		return nil, fmt.Errorf("no constructor registered for service %s", name)
	}

	svc, err := ctor(rawConfig, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create service %s: %w", name, err)
	}
	m.services[name] = svc
	m.order = append(m.order, name)
	return svc, nil
}

// GetService returns a service instance by name.
func (m *Manager) GetService(name string) (Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[name]
	return svc, ok
}

// GetAllServices returns a copy of the current service map.
func (m *Manager) GetAllServices() map[string]Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.services)
}

// ListConstructors names every registered service constructor.
func (m *Manager) ListConstructors() []string { return m.registry.Services() }

// HasConstructor reports whether a constructor is registered.
func (m *Manager) HasConstructor(name string) bool {
	_, exists := m.registry.Constructor(name)
	return exists
}

// mandatoryServices always run, config or not. The component manager is
// the pipeline itself, so a deployment without it does nothing.
var mandatoryServices = []string{
	"component-manager",
}

// StartAll brings the whole process up: HTTP plumbing first, then every
// service, then the listener. Handlers register only after services
// exist, so the API never serves half-started state.
func (m *Manager) StartAll(ctx context.Context) error {
	logger := m.log()

	logger.Debug("initializing http infrastructure")
	if err := m.initializeHTTPInfrastructure(); err != nil {
		return fmt.Errorf("initialize HTTP infrastructure: %w", err)
	}

	if err := m.createMandatoryServices(logger); err != nil {
		return fmt.Errorf("create mandatory services: %w", err)
	}

	services := m.GetAllServices()
	logger.Debug("starting services", "count", len(services))

	for name, service := range services {
		logger.Debug("starting service", "name", name, "type", fmt.Sprintf("%T", service))
		if err := service.Start(ctx); err != nil {
			logger.Error("service failed to start", "name", name, "error", err)
			return fmt.Errorf("failed to start service %s: %w", name, err)
		}
		logger.Debug("service started", "name", name)
	}

	logger.Debug("registering service handlers")
	if err := m.completeHTTPSetup(); err != nil {
		return fmt.Errorf("complete HTTP setup: %w", err)
	}
	logger.Info("http server started", "port", m.config.HTTPPort)

	logger.Info("all services started", "count", len(services))
	return nil
}

// serviceDependencies returns the shared dependency bundle, or a minimal
// one when ConfigureFromServices never ran.
func (m *Manager) serviceDependencies(logger *slog.Logger) *Dependencies {
	if m.dependencies != nil {
		return m.dependencies
	}
	return &Dependencies{NATSClient: m.natsClient, Manager: m.configManager, Logger: logger}
}

func (m *Manager) createMandatoryServices(logger *slog.Logger) error {
	for _, serviceName := range mandatoryServices {
		if _, exists := m.GetService(serviceName); exists {
			logger.Debug("mandatory service already exists", "service", serviceName)
			continue
		}

		logger.Info("creating mandatory service", "service", serviceName)
		deps := m.serviceDependencies(logger)
		if _, err := m.CreateService(serviceName, json.RawMessage("{}"), deps); err != nil {
			return fmt.Errorf("failed to create mandatory service %s: %w", serviceName, err)
		}
		logger.Info("mandatory service created", "service", serviceName)
	}
	return nil
}

// StopAll stops services in reverse registration order, then the HTTP
// server, so the API stays answerable while the pipeline drains.
func (m *Manager) StopAll(timeout time.Duration) error {
	logger := m.log().With("operation", "services-shutdown")

	m.mu.Lock()
	reverseOrder := slices.Clone(m.order)
	slices.Reverse(reverseOrder)
	services := maps.Clone(m.services)
	m.mu.Unlock()

	logger.Debug("stopping services", "count", len(services), "timeout", timeout, "order", reverseOrder)
	overallStart := time.Now()

	var stopErrs []error
	for _, name := range reverseOrder {
		service, exists := services[name]
		if !exists {
			continue
		}
		logger.Debug("stopping service", "service", name)
		serviceStart := time.Now()
		err := service.Stop(timeout)
		elapsed := time.Since(serviceStart).Milliseconds()
		if err != nil {
			logger.Error("service stop failed", "service", name, "duration_ms", elapsed, "error", err)
			stopErrs = append(stopErrs, fmt.Errorf("failed to stop service %s: %w", name, err))
			continue
		}
		logger.Debug("service stopped", "service", name, "duration_ms", elapsed)
	}

	m.mu.Lock()
	m.services = make(map[string]Service)
	m.order = nil
	m.mu.Unlock()

	if m.isHTTPManager {
		logger.Debug("stopping http server")
		if err := m.stopHTTPServer(); err != nil {
			logger.Error("http server stop failed", "error", err)
			stopErrs = append(stopErrs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}

	logger.Debug("service shutdown complete",
		"duration_ms", time.Since(overallStart).Milliseconds(), "error_count", len(stopErrs))
	if len(stopErrs) > 0 {
		return fmt.Errorf("stop errors: %v", stopErrs)
	}
	return nil
}

// StartService creates and starts one service at runtime, typically from
// a config update. Startup retries briefly because a service's
// dependencies may still be coming up.
func (m *Manager) StartService(ctx context.Context, name string, rawConfig json.RawMessage, deps *Dependencies) error {
	logger := m.log()

	if _, exists := m.GetService(name); exists {
		logger.Debug("service already exists", "service", name)
		return nil
	}

	logger.Info("creating service", "service", name)
	service, err := m.CreateService(name, rawConfig, deps)
	if err != nil {
		return fmt.Errorf("failed to create service %s: %w", name, err)
	}

	logger.Info("starting service", "service", name)

	// roughly a second of attempts
	startErr := retry.Do(ctx, retry.Quick(), func() error {
		err := service.Start(ctx)
		if err != nil {
			logger.Debug("service start attempt failed, retrying", "service", name, "error", err)
		}
		return err
	})
	if startErr != nil {
		m.RemoveService(name)
		return fmt.Errorf("failed to start service %s after retries: %w", name, startErr)
	}

	logger.Info("service started", "service", name)
	return nil
}

// StopService stops and forgets one service. Mandatory services are
// refused.
func (m *Manager) StopService(name string, timeout time.Duration) error {
	logger := m.log()

	service, exists := m.GetService(name)
	if !exists {
		logger.Debug("service not found", "service", name)
		return nil // already gone
	}

	if slices.Contains(mandatoryServices, name) {
		logger.Warn("refusing to stop mandatory service", "service", name)
		return fmt.Errorf("cannot stop mandatory service %s", name)
	}

	logger.Info("stopping service", "service", name)
	if err := service.Stop(timeout); err != nil {
		logger.Error("service stop failed", "service", name, "error", err)
	}

	m.RemoveService(name)
	logger.Info("service stopped and removed", "service", name)
	return nil
}

// RemoveService drops a service from tracking without stopping it.
func (m *Manager) RemoveService(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[name]; !exists {
		return
	}
	delete(m.services, name)
	if i := slices.Index(m.order, name); i >= 0 {
		m.order = append(m.order[:i], m.order[i+1:]...)
	}
}

// GetHealthyServices lists services currently reporting healthy.
func (m *Manager) GetHealthyServices() []string {
	return m.filterServicesByHealth(true)
}

// GetUnhealthyServices lists services currently reporting unhealthy.
func (m *Manager) GetUnhealthyServices() []string {
	return m.filterServicesByHealth(false)
}

func (m *Manager) filterServicesByHealth(healthy bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, service := range m.services {
		if service.IsHealthy() == healthy {
			names = append(names, name)
		}
	}
	return names
}

// GetServiceStatus returns one service's lifecycle status.
func (m *Manager) GetServiceStatus(name string) (any, error) {
	svc, ok := m.GetService(name)
	if !ok {
		return nil, fmt.Errorf("service %s not found", name)
	}
	return svc.Status(), nil
}

// GetAllServiceStatus returns every service's lifecycle status.
func (m *Manager) GetAllServiceStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.services))
	for name, svc := range m.services {
		out[name] = svc.Status()
	}
	return out
}

func (m *Manager) hasNATSAccess() bool {
	return m.natsClient != nil && m.natsClient.GetConnection() != nil
}

// watchConfigUpdates diffs successive service config snapshots and
// starts, stops or reconfigures services accordingly.
func (m *Manager) watchConfigUpdates(ctx context.Context) {
	var last types.ServiceConfigs
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-m.configUpdates:
			if !ok {
				return
			}
			current := update.Config.Get().Services
			if last != nil {
				m.processServiceConfigChanges(last, current)
			}
			last = current
		}
	}
}

func (m *Manager) processServiceConfigChanges(oldConfigs, newConfigs types.ServiceConfigs) {
	for serviceName, newConfig := range newConfigs {
		oldConfig, existed := oldConfigs[serviceName]

		if !existed {
			slog.Info("new service configured", "service", serviceName)
			if newConfig.Enabled {
				m.startFromConfig(serviceName, newConfig.Config)
			}
			continue
		}

		if oldConfig.Enabled != newConfig.Enabled {
			if newConfig.Enabled {
				slog.Info("service enabled in config", "service", serviceName)
				m.startFromConfig(serviceName, newConfig.Config)
			} else {
				slog.Info("service disabled in config", "service", serviceName)
				if err := m.StopService(serviceName, 5*time.Second); err != nil {
					slog.Error("service stop failed", "service", serviceName, "error", err)
				}
			}
		}
		if !bytes.Equal(oldConfig.Config, newConfig.Config) {
			m.applyServiceConfigChange(serviceName, newConfig.Config)
		}
	}

	for serviceName := range oldConfigs {
		if _, exists := newConfigs[serviceName]; !exists {
			slog.Info("service entry removed", "service", serviceName)
			if err := m.StopService(serviceName, 5*time.Second); err != nil {
				slog.Error("removed service stop failed", "service", serviceName, "error", err)
			}
		}
	}
}

func (m *Manager) startFromConfig(serviceName string, rawConfig json.RawMessage) {
	deps := m.serviceDependencies(m.logger)
	if err := m.StartService(context.Background(), serviceName, rawConfig, deps); err != nil {
		slog.Error("service failed to start from config", "service", serviceName, "error", err)
	}
}

// applyServiceConfigChange pushes a config change into a running service
// when it supports runtime reconfiguration; otherwise a restart is the
// operator's job.
func (m *Manager) applyServiceConfigChange(serviceName string, newConfig json.RawMessage) {
	service, exists := m.GetService(serviceName)
	if !exists {
		slog.Warn("config change for unknown service", "service", serviceName)
		return
	}

	runtimeConfigurable, ok := service.(RuntimeConfigurable)
	if !ok {
		slog.Info("service needs a restart to pick up config", "service", serviceName)
		return
	}

	var newConfigMap map[string]any
	if err := json.Unmarshal(newConfig, &newConfigMap); err != nil {
		slog.Error("parse service config failed", "service", serviceName, "error", err)
		return
	}

	if err := runtimeConfigurable.ValidateConfigUpdate(newConfigMap); err != nil {
		slog.Error("service config update rejected", "service", serviceName, "error", err)
		return
	}
	if err := runtimeConfigurable.ApplyConfigUpdate(newConfigMap); err != nil {
		slog.Error("apply service config failed", "service", serviceName, "error", err)
		return
	}

	slog.Info("service config applied", "service", serviceName)
}

func (m *Manager) hasRuntimeConfigSupport(serviceName string) bool {
	svc, ok := m.GetService(serviceName)
	if !ok {
		return false
	}
	_, runtime := svc.(RuntimeConfigurable)
	return runtime
}

// GetServiceRuntimeConfig returns the live config of a runtime
// configurable service.
func (m *Manager) GetServiceRuntimeConfig(serviceName string) (map[string]any, error) {
	svc, found := m.GetService(serviceName)
	if !found {
		return nil, fmt.Errorf("service %s not found", serviceName)
	}
	rc, ok := svc.(RuntimeConfigurable)
	if !ok {
		return nil, fmt.Errorf("service %s does not support runtime configuration", serviceName)
	}
	return rc.GetRuntimeConfig(), nil
}

// Start runs the base service and, on the HTTP-owning instance, the
// config watcher. The listener itself starts in StartAll.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.BaseService.Start(ctx); err != nil {
		return err
	}

	// only the HTTP-owning instance watches config
	if m.isHTTPManager && m.configUpdates != nil {
		m.wg.Add(1)
		go func() { defer m.wg.Done(); m.watchConfigUpdates(ctx) }()
		slog.Info("service config watching enabled")
	}

	return nil
}

// Stop shuts the HTTP server down, then the base service.
func (m *Manager) Stop(timeout time.Duration) error {
	if !m.isHTTPManager {
		return m.BaseService.Stop(timeout)
	}
	if err := m.stopHTTPServer(); err != nil {
		return err
	}
	return m.BaseService.Stop(timeout)
}

// initializeHTTPInfrastructure builds the mux and system endpoints early
// in StartAll, before any service exists. Idempotent.
func (m *Manager) initializeHTTPInfrastructure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpMux != nil {
		return nil
	}
	m.httpMux = http.NewServeMux()
	m.registerSystemEndpoints()
	return nil
}

// completeHTTPSetup registers service and component handlers and starts
// listening. Runs after every service has started.
func (m *Manager) completeHTTPSetup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.httpMux == nil:
		return fmt.Errorf("HTTP infrastructure not initialized")
	case m.httpServer != nil:
		return fmt.Errorf("HTTP server already started")
	}

	if err := m.registerServiceHandlers(); err != nil {
		return fmt.Errorf("failed to register service handlers: %w", err)
	}
	m.registerOpenAPIEndpoints()

	m.httpServer = &http.Server{
		Addr: ":" + strconv.Itoa(m.config.HTTPPort), Handler: m.httpMux,
		ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second,
	}

	// capture before the goroutine; Stop nils the field
	server := m.httpServer
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log().Error("http server error", "error", err)
		}
	}()

	return nil
}

func (m *Manager) stopHTTPServer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpServer == nil {
		return nil
	}

	logger := m.log().With("operation", "http-shutdown")
	logger.Debug("shutting down http server", "timeout", "5s")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown failed", "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	logger.Debug("http server shutdown complete", "duration_ms", time.Since(start).Milliseconds())

	m.httpServer = nil
	m.httpMux = nil
	return nil
}

// registerServiceHandlers mounts every HTTPHandler service under a
// prefix derived from its name.
func (m *Manager) registerServiceHandlers() error {
	for name, service := range m.services {
		if handler, ok := service.(HTTPHandler); ok {
			prefix := "/" + m.serviceNameToPrefix(name)
			handler.RegisterHTTPHandlers(prefix, m.httpMux)
		}
	}

	err := m.registerComponentHandlers()
	if err != nil {
		err = fmt.Errorf("failed to register component handlers: %w", err)
	}
	return err
}

// registerComponentHandlers mounts components that expose their own HTTP
// surface, each under its instance name.
func (m *Manager) registerComponentHandlers() error {
	cmService, exists := m.services["component-manager"]
	if !exists {
		return nil
	}

	cm, ok := cmService.(*ComponentManager)
	if !ok {
		return nil
	}

	for name, mc := range cm.GetManagedComponents() {
		gateway, ok := mc.Component.(interface {
			RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
		})
		if !ok {
			continue
		}
		gateway.RegisterHTTPHandlers("/"+name, m.httpMux)
		m.log().Info("component http handlers registered", "component", name, "prefix", "/"+name)
	}
	return nil
}

func (m *Manager) registerOpenAPIEndpoints() {
	m.httpMux.HandleFunc("/openapi.json", m.handleOpenAPISpec)

	if m.config.SwaggerUI {
		m.httpMux.HandleFunc("/docs", m.handleSwaggerUI)
	}
}

func (m *Manager) handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	m.writeJSON(w, "openapi spec", m.generateOpenAPIDocument())
}

// swaggerPage is served at /docs; the assets come from unpkg so the
// binary ships nothing but this shell.
const swaggerPage = `<!DOCTYPE html>
<html>
<head>
  <title>Ingest Calculator API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/openapi.json",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.presets.standalone]
    });
  </script>
</body>
</html>`

func (m *Manager) handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(swaggerPage))
}

// generateOpenAPIDocument merges every service's OpenAPI fragment into
// one document, paths rewritten under the service prefixes.
func (m *Manager) generateOpenAPIDocument() *OpenAPIDocument {
	doc := &OpenAPIDocument{
		OpenAPI: "3.0.0",
		Info:    m.config.ServerInfo,
		Servers: []ServerSpec{{
			URL:         fmt.Sprintf("http://localhost:%d", m.config.HTTPPort),
			Description: "Development server",
		}},
		Paths: make(map[string]PathSpec),
		Tags:  make([]TagSpec, 0),
	}

	for name, service := range m.services {
		handler, ok := service.(HTTPHandler)
		if !ok {
			continue
		}
		serviceSpec := handler.OpenAPISpec()
		if serviceSpec == nil {
			continue
		}
		prefix := "/" + m.serviceNameToPrefix(name)
		for path, pathSpec := range serviceSpec.Paths {
			doc.Paths[prefix+path] = pathSpec
		}
		doc.Tags = append(doc.Tags, serviceSpec.Tags...)
	}

	return doc
}

func (m *Manager) serviceNameToPrefix(serviceName string) string {
	switch serviceName {
	case "component-manager":
		return "components"
	default:
		return strings.ReplaceAll(serviceName, "-", "")
	}
}

// writeJSON encodes v as the response body. Encode failures are only
// logged; the status line has already gone out.
func (m *Manager) writeJSON(w http.ResponseWriter, what string, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log().Error("encode "+what+" failed", "error", err)
	}
}

func (m *Manager) registerSystemEndpoints() {
	m.httpMux.HandleFunc("/health", m.handleSystemHealth)
	m.httpMux.HandleFunc("/healthz", m.handleLiveness)
	m.httpMux.HandleFunc("/readyz", m.handleReadiness)

	m.httpMux.HandleFunc("/services", m.handleServiceList)
	m.httpMux.HandleFunc("/services/health", m.handleServicesHealth)
}

// handleSystemHealth aggregates service health plus NATS connectivity
// into one status document.
func (m *Manager) handleSystemHealth(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subStatuses []health.Status

	for _, service := range m.services {
		subStatuses = append(subStatuses, service.Health())
	}

	if m.natsClient != nil {
		ns := m.natsClient.GetStatus()
		if ns.Status == natsclient.StatusConnected {
			subStatuses = append(subStatuses, health.NewHealthy("nats", fmt.Sprintf("Connected (RTT: %v)", ns.RTT)))
		} else {
			subStatuses = append(subStatuses, health.NewUnhealthy("nats",
				fmt.Sprintf("Disconnected: %s (failures: %d)", ns.Status.String(), ns.FailureCount)))
		}
	}

	systemHealth := health.Aggregate("system", subStatuses)

	w.Header().Set("Content-Type", "application/json")
	if systemHealth.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	// degraded still answers 200, the body says so

	m.writeJSON(w, "system health", systemHealth)
}

func (m *Manager) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReadiness reports ready only when every service is running and
// healthy.
func (m *Manager) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, body := http.StatusOK, "READY"
	for _, service := range m.services {
		if service.Status() != StatusRunning || !service.IsHealthy() {
			status, body = http.StatusServiceUnavailable, "NOT READY"
			break
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (m *Manager) handleServiceList(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]map[string]any, 0, len(m.services))
	for name, svc := range m.services {
		list = append(list, map[string]any{
			"name": name, "status": svc.Status().String(), "healthy": svc.IsHealthy(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	m.writeJSON(w, "service list", map[string]any{"services": list, "count": len(list)})
}

func (m *Manager) handleServicesHealth(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var statuses []health.Status
	for _, svc := range m.services {
		statuses = append(statuses, svc.Health())
	}

	response := struct {
		Overall  health.Status   `json:"overall"`
		Services []health.Status `json:"services"`
	}{Overall: health.Aggregate("services", statuses), Services: statuses}

	w.Header().Set("Content-Type", "application/json")
	if response.Overall.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	m.writeJSON(w, "services health", response)
}
