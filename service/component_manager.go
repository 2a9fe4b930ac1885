package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/config"
	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/retry"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/security"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// ComponentManager owns the lifecycle of every pipeline component: the
// scan and CSV inputs, the classifier and aggregator, and the report,
// bulk-load and snapshot outputs. Creation, start and stop are separate
// phases so a config mistake surfaces before anything touches a cluster.
//
//	Initialize() creates components without starting them
//	Start(ctx)   starts what Initialize created
//	Stop()       tears down in reverse start order
type ComponentManager struct {
	*BaseService

	config ComponentManagerConfig

	registry         *component.Registry
	componentConfigs config.ComponentConfigs
	platform         types.PlatformMeta
	components       map[string]*component.ManagedComponent
	startOrder       []string
	resources        map[string][]string // resource ID -> owning component names

	natsClient    *natsclient.Client
	cluster       escluster.API // shared cluster connection handed to components
	configManager *config.Manager
	configUpdates <-chan config.Update

	flowCache flowAnalysisCache

	onComponentStart func(ctx context.Context, name string, comp component.Discoverable)
	onComponentError func(ctx context.Context, name string, err error)
	onComponentStop  func(ctx context.Context, name string, reason string)
	onHealthChange   func(ctx context.Context, name string, healthy bool, details string)

	mu      sync.RWMutex
	initMu  sync.Mutex
	startMu sync.Mutex

	initialized atomic.Bool
	started     atomic.Bool

	shutdown chan struct{}
	done     chan struct{}

	wg sync.WaitGroup
}

// NewComponentManager builds the manager from raw service config and the
// shared dependencies, then runs Initialize so components exist before
// Start is ever called.
func NewComponentManager(rawConfig json.RawMessage, deps *Dependencies) (Service, error) {
	var cfg ComponentManagerConfig
	if len(rawConfig) > 0 {
		if decodeErr := json.Unmarshal(rawConfig, &cfg); decodeErr != nil {
			return nil, fmt.Errorf("parse component-manager config: %w", decodeErr)
		}
	}
	if cfg.EnabledComponents == nil {
		cfg.EnabledComponents = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate component-manager config: %w", err)
	}

	cm := &ComponentManager{
		config:           cfg,
		componentConfigs: make(config.ComponentConfigs),
		components:       make(map[string]*component.ManagedComponent),
		startOrder:       make([]string, 0),
		resources:        make(map[string][]string),
	}

	var opts []Option
	if deps != nil {
		// WithLogger ignores a nil logger itself
		opts = append(opts, WithLogger(deps.Logger))
		if deps.MetricsRegistry != nil {
			opts = append(opts, WithMetrics(deps.MetricsRegistry))
		}
		cm.platform = deps.Platform
		cm.registry = deps.ComponentRegistry
		cm.natsClient = deps.NATSClient
		cm.cluster = deps.Cluster
		if deps.Manager != nil {
			cm.configManager = deps.Manager
			if full := deps.Manager.GetConfig(); full != nil && full.Get().Components != nil {
				cm.componentConfigs = full.Get().Components
			}
			if cfg.WatchConfig {
				cm.configUpdates = deps.Manager.OnChange("components.*")
			}
		}
	}
	if cm.registry == nil {
		cm.registry = component.NewRegistry()
	}

	cm.BaseService = NewBaseServiceWithOptions("component-manager", nil, opts...)
	cm.SetHealthCheck(cm.healthCheck)

	if initErr := cm.Initialize(); initErr != nil {
		return nil, fmt.Errorf("initialize component manager: %w", initErr)
	}
	return cm, nil
}

// Initialize creates every enabled component from config without starting
// it. Calling it again is a no-op.
func (cm *ComponentManager) Initialize() error {
	cm.initMu.Lock()
	defer cm.initMu.Unlock()
	if cm.initialized.Load() {
		cm.logger.Debug("component manager already initialized")
		return nil
	}

	if cm.componentConfigs == nil {
		cm.logger.Debug("no component configs")
		cm.initialized.Store(true)
		return nil
	}

	cm.logger.Debug("initializing components",
		"count", len(cm.componentConfigs))

	if cm.resources == nil {
		cm.resources = make(map[string][]string)
	}
	if cm.components == nil {
		cm.components = make(map[string]*component.ManagedComponent)
	}
	cm.startOrder = cm.startOrder[:0]

	cm.createEnabledComponents(context.Background(), cm.componentConfigs)
	cm.logger.Debug("components created", "created", len(cm.components))

	cm.initialized.Store(true)
	return nil
}

// createEnabledComponents creates every enabled entry in configs. A single
// bad component is logged and skipped; the rest of the pipeline still
// comes up.
func (cm *ComponentManager) createEnabledComponents(ctx context.Context, configs config.ComponentConfigs) {
	for instanceName, componentConfig := range configs {
		if !componentConfig.Enabled {
			cm.logger.Debug("skipping disabled component", "instance", instanceName)
			continue
		}

		deps := cm.buildComponentDependencies()

		if err := cm.CreateComponent(ctx, instanceName, componentConfig, deps); err != nil {
			cm.logger.Error("create component failed", "instance", instanceName,
				"factory", componentConfig.Name, "type", componentConfig.Type, "error", err)
			continue
		}

		cm.logger.Info("component created", "instance", instanceName,
			"factory", componentConfig.Name, "type", componentConfig.Type)
	}
}

// Start launches all initialized components, each under its own child
// context so a single component can be cancelled without the rest.
func (cm *ComponentManager) Start(ctx context.Context) error {
	cm.startMu.Lock()
	defer cm.startMu.Unlock()

	switch {
	case !cm.initialized.Load():
		return fmt.Errorf("component manager not initialized")
	case cm.started.Load():
		return nil
	}

	cm.shutdown = make(chan struct{})
	cm.done = make(chan struct{})

	if cm.configUpdates != nil {
		cm.wg.Add(1)
		go func() { defer cm.wg.Done(); cm.watchConfigUpdates(ctx) }()
	}

	type pendingStart struct {
		name      string
		mc        *component.ManagedComponent
		lifecycle component.LifecycleComponent
	}

	// Snapshot under the lock; the Start calls run outside it.
	cm.mu.Lock()
	cm.startOrder = cm.startOrder[:0]
	pending := make([]pendingStart, 0, len(cm.components))
	for name, mc := range cm.components {
		lifecycle, ok := component.AsLifecycleComponent(mc.Component)
		if !ok {
			continue
		}
		mc.Context, mc.Cancel = context.WithCancel(ctx)
		mc.StartOrder = len(cm.startOrder)
		cm.startOrder = append(cm.startOrder, name)
		pending = append(pending, pendingStart{name, mc, lifecycle})
	}
	cm.mu.Unlock()

	for _, p := range pending {
		cm.wg.Add(1)
		go func(p pendingStart) {
			defer cm.wg.Done()
			cm.runComponentStart(p.name, p.mc, p.lifecycle)
		}(p)
	}
	cm.started.Store(true)

	if baseErr := cm.BaseService.Start(ctx); baseErr != nil {
		return fmt.Errorf("failed to start base service: %w", baseErr)
	}
	return nil
}

// runComponentStart starts one component and records the outcome.
func (cm *ComponentManager) runComponentStart(name string, mc *component.ManagedComponent, lc component.LifecycleComponent) {
	compType := mc.Component.Meta().Type
	cm.logger.Info("starting component", "name", name, "type", compType)

	if err := lc.Start(mc.Context); err != nil {
		cm.updateComponentState(name, component.StateFailed, err)
		cm.logger.Error("component failed to start", "name", name, "type", compType, "error", err)
		if cm.onComponentError != nil {
			cm.onComponentError(mc.Context, name, err)
		}
		return
	}

	cm.updateComponentState(name, component.StateStarted, nil)
	cm.logger.Info("component started", "name", name, "type", compType)
	if cm.onComponentStart != nil {
		cm.onComponentStart(mc.Context, name, mc.Component)
	}
}

// Stop shuts everything down, outputs first, inside the given timeout.
func (cm *ComponentManager) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if !cm.started.Load() {
		return cm.BaseService.Stop(timeout)
	}

	select {
	case <-cm.shutdown:
		return nil // already shutting down
	default:
		close(cm.shutdown)
	}

	stopErrs := cm.stopAllComponents(ctx)

	workersDone := make(chan struct{})
	go func() { cm.wg.Wait(); close(workersDone) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("component stop cancelled: %w", ctx.Err())
	case <-time.After(10 * time.Second):
		cm.logger.Warn("component stop timed out")
		return fmt.Errorf("timeout waiting for components to stop")
	case <-workersDone:
		close(cm.done)
	}
	cm.started.Store(false)

	if baseErr := cm.BaseService.Stop(timeout); baseErr != nil {
		stopErrs = append(stopErrs, fmt.Errorf("failed to stop base service: %w", baseErr))
	}
	if len(stopErrs) > 0 {
		return fmt.Errorf("failed to stop %d components: %v", len(stopErrs), stopErrs)
	}
	return nil
}

// stopAllComponents cancels and stops every component. Components are
// independent over NATS subjects, so they stop in parallel. The snapshot
// is taken under the lock but the Stop calls run outside it, since they
// update component state themselves.
func (cm *ComponentManager) stopAllComponents(ctx context.Context) []error {
	cm.mu.Lock()
	toStop := make(map[string]*component.ManagedComponent, len(cm.startOrder))
	for i := len(cm.startOrder) - 1; i >= 0; i-- {
		name := cm.startOrder[i]
		if mc, exists := cm.components[name]; exists {
			cm.cancelComponentContext(mc)
			toStop[name] = mc
		}
	}
	cm.mu.Unlock()

	errCh := make(chan error, len(toStop))
	var wg sync.WaitGroup
	for name, mc := range toStop {
		wg.Add(1)
		go func(name string, mc *component.ManagedComponent) {
			defer wg.Done()
			if err := cm.stopSingleComponent(ctx, name, mc); err != nil {
				errCh <- err
			}
		}(name, mc)
	}
	wg.Wait()
	close(errCh)

	var stopErrs []error
	for err := range errCh {
		stopErrs = append(stopErrs, err)
	}
	return stopErrs
}

func (cm *ComponentManager) cancelComponentContext(mc *component.ManagedComponent) {
	if mc.Cancel != nil {
		mc.Cancel()
		mc.Cancel = nil
		mc.Context = nil
	}
}

func (cm *ComponentManager) stopSingleComponent(
	ctx context.Context, name string, mc *component.ManagedComponent,
) error {
	if lifecycle, ok := component.AsLifecycleComponent(mc.Component); ok {
		return cm.stopLifecycleComponent(ctx, name, mc, lifecycle)
	}

	cm.markComponentStopped(ctx, name, mc, "no-lifecycle")
	return nil
}

func (cm *ComponentManager) stopLifecycleComponent(
	ctx context.Context, name string, mc *component.ManagedComponent,
	lifecycle component.LifecycleComponent,
) error {
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	err := lifecycle.Stop(timeout)
	if err == nil {
		cm.markComponentStopped(ctx, name, mc, "graceful")
		return nil
	}
	cm.updateComponentState(name, component.StateFailed, err)
	if cm.onComponentError != nil {
		go cm.onComponentError(ctx, name, err)
	}
	return fmt.Errorf("component '%s': %w", name, err)
}

func (cm *ComponentManager) markComponentStopped(
	ctx context.Context, name string, _ *component.ManagedComponent, reason string,
) {
	cm.updateComponentState(name, component.StateStopped, nil)

	if cm.onComponentStop != nil {
		select {
		case <-ctx.Done():
			cm.logger.Warn("skipping stop hook, shutdown context done", "component", name)
		default:
			go cm.onComponentStop(ctx, name, reason)
		}
	}
}

// updateComponentState records a state transition under the manager lock.
func (cm *ComponentManager) updateComponentState(name string, state component.State, err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if mc, ok := cm.components[name]; ok {
		mc.State, mc.LastError = state, err
	}
}

// Component looks up a component instance by name.
func (cm *ComponentManager) Component(name string) component.Discoverable {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.registry.Component(name)
}

// ListComponents returns every registered component instance.
func (cm *ComponentManager) ListComponents() map[string]component.Discoverable {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.registry.ListComponents()
}

// GetRegistry exposes the component registry; the schema API reads
// component config schemas through it.
func (cm *ComponentManager) GetRegistry() *component.Registry {
	return cm.registry
}

// CreateComponent creates, registers and initializes one component. It
// also backs runtime creation through the HTTP API, outside the normal
// Initialize flow.
func (cm *ComponentManager) CreateComponent(
	ctx context.Context, instanceName string, cfg types.ComponentConfig, deps component.Dependencies,
) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case instanceName == "":
		return fmt.Errorf("instance name cannot be empty")
	case cfg.Name == "":
		return fmt.Errorf("component factory name cannot be empty")
	case cfg.Type == "":
		return fmt.Errorf("component type cannot be empty")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.components[instanceName]; exists {
		return fmt.Errorf("component '%s' already exists", instanceName)
	}

	comp, err := cm.registry.CreateComponent(instanceName, cfg, deps)
	if err != nil {
		return err
	}

	if err := cm.checkPortConflicts(comp); err != nil {
		cm.registry.UnregisterInstance(instanceName)
		return fmt.Errorf("port conflict for component '%s': %w", instanceName, err)
	}

	cm.registerPorts(instanceName, comp)

	state := component.StateCreated
	if lifecycle, ok := component.AsLifecycleComponent(comp); ok {
		if initErr := lifecycle.Initialize(); initErr != nil {
			cm.registry.UnregisterInstance(instanceName)
			return fmt.Errorf("failed to initialize component '%s': %w", instanceName, initErr)
		}
		state = component.StateInitialized
	}

	cm.components[instanceName] = &component.ManagedComponent{Component: comp, State: state}
	cm.invalidateFlowCache()
	return nil
}

// RemoveComponent stops a component and forgets it entirely: ports,
// start order, registry entry.
func (cm *ComponentManager) RemoveComponent(instanceName string) error {
	if instanceName == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()

	mc, found := cm.components[instanceName]
	if !found {
		return fmt.Errorf("component '%s' not found", instanceName)
	}
	cm.cancelComponentContext(mc)

	if lifecycle, ok := component.AsLifecycleComponent(mc.Component); ok {
		if err := lifecycle.Stop(30 * time.Second); err != nil {
			// cm.mu is held, so write the state directly
			mc.State = component.StateFailed
			mc.LastError = err
			return fmt.Errorf("failed to stop component '%s': %w", instanceName, err)
		}
	}

	cm.unregisterPorts(instanceName)
	delete(cm.components, instanceName)
	cm.invalidateFlowCache()
	cm.removeFromStartOrder(instanceName)

	cm.registry.UnregisterInstance(instanceName)
	return nil
}

// IsInitialized reports whether Initialize has completed.
func (cm *ComponentManager) IsInitialized() bool { return cm.initialized.Load() }

// IsStarted reports whether Start has completed.
func (cm *ComponentManager) IsStarted() bool { return cm.started.Load() }

// GetManagedComponents returns a snapshot copy of the managed set.
func (cm *ComponentManager) GetManagedComponents() map[string]*component.ManagedComponent {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make(map[string]*component.ManagedComponent, len(cm.components))
	for name, mc := range cm.components {
		snapshot := *mc
		out[name] = &snapshot
	}
	return out
}

func allPorts(comp component.Discoverable) []component.Port {
	return append(comp.InputPorts(), comp.OutputPorts()...)
}

// checkPortConflicts refuses a component whose exclusive resources, like
// report file paths or listen ports, are already claimed.
func (cm *ComponentManager) checkPortConflicts(comp component.Discoverable) error {
	for _, port := range allPorts(comp) {
		if !port.Config.IsExclusive() {
			continue
		}
		resourceID := port.Config.ResourceID()
		if owners := cm.resources[resourceID]; len(owners) > 0 {
			return fmt.Errorf("exclusive resource %s already used by %v", resourceID, owners)
		}
	}
	return nil
}

// registerPorts records which component owns which resource.
func (cm *ComponentManager) registerPorts(name string, comp component.Discoverable) {
	for _, port := range allPorts(comp) {
		id := port.Config.ResourceID()
		cm.resources[id] = append(cm.resources[id], name)
	}
}

func (cm *ComponentManager) unregisterPorts(name string) {
	if mc, ok := cm.components[name]; ok && mc.Component != nil {
		for _, port := range allPorts(mc.Component) {
			cm.removeFromSlice(port.Config.ResourceID(), name)
		}
	}
}

func (cm *ComponentManager) removeFromSlice(id, name string) {
	owners := cm.resources[id]
	if i := slices.Index(owners, name); i >= 0 {
		owners = append(owners[:i], owners[i+1:]...)
		cm.resources[id] = owners
	}
	if len(cm.resources[id]) == 0 {
		delete(cm.resources, id)
	}
}

// healthCheck backs the BaseService monitor. It must never block: under
// lock contention it reports healthy instead of stalling the monitor.
func (cm *ComponentManager) healthCheck() error {
	switch {
	case !cm.initialized.Load():
		return fmt.Errorf("component manager not initialized")
	case !cm.started.Load():
		return nil // still starting, treat as healthy
	}

	checked := make(chan error, 1)
	go func() { checked <- cm.performDetailedHealthCheck() }()
	select {
	case <-time.After(100 * time.Millisecond):
		return nil
	case err := <-checked:
		return err
	}
}

func (cm *ComponentManager) performDetailedHealthCheck() error {
	locked := make(chan struct{})
	go func() { cm.mu.RLock(); close(locked) }()

	select {
	case <-time.After(50 * time.Millisecond):
		return nil
	case <-locked:
		defer cm.mu.RUnlock()
		for name, mc := range cm.components {
			switch {
			case mc.Component == nil:
				return fmt.Errorf("component %s has nil implementation", name)
			case mc.Context != nil && mc.Context.Err() != nil:
				return fmt.Errorf("component %s context cancelled: %w", name, mc.Context.Err())
			}
		}
		return nil
	}
}

// shutdownCallback adapts Stop to the context-based shutdown hook.
func (cm *ComponentManager) shutdownCallback(ctx context.Context) error {
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeout = remaining
		}
	}
	return cm.Stop(timeout)
}

// withLock runs fn while holding the manager write lock.
func (cm *ComponentManager) withLock(fn func()) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	fn()
}

// RegisterComponentStartHook sets the callback fired after a component
// starts.
func (cm *ComponentManager) RegisterComponentStartHook(
	hook func(ctx context.Context, name string, comp component.Discoverable),
) {
	cm.withLock(func() { cm.onComponentStart = hook })
}

// RegisterComponentStopHook sets the callback fired after a component
// stops.
func (cm *ComponentManager) RegisterComponentStopHook(hook func(ctx context.Context, name string, reason string)) {
	cm.withLock(func() { cm.onComponentStop = hook })
}

// RegisterComponentErrorHook sets the callback fired when a component
// fails to start or stop.
func (cm *ComponentManager) RegisterComponentErrorHook(hook func(ctx context.Context, name string, err error)) {
	cm.withLock(func() { cm.onComponentError = hook })
}

// RegisterHealthChangeHook sets the callback fired when a component's
// health flips.
func (cm *ComponentManager) RegisterHealthChangeHook(
	hook func(ctx context.Context, name string, healthy bool, details string),
) {
	cm.withLock(func() { cm.onHealthChange = hook })
}

// watchConfigUpdates applies live config changes: components are created,
// restarted or removed as their entries appear, change or vanish.
func (cm *ComponentManager) watchConfigUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, open := <-cm.configUpdates:
			if !open {
				return
			}
			cm.applyConfigUpdate(ctx, update)
		}
	}
}

// applyConfigUpdate routes one config change to the matching component.
// Paths look like "components.clusterscan-input".
func (cm *ComponentManager) applyConfigUpdate(ctx context.Context, update config.Update) {
	cm.logger.Debug("config update received",
		"path", update.Path,
		"components_in_config", len(update.Config.Get().Components))

	parts := strings.Split(update.Path, ".")
	if len(parts) != 2 || parts[0] != "components" {
		return
	}

	componentName := parts[1]
	if componentName == "*" {
		cm.logger.Debug("ignoring wildcard config path", "path", update.Path)
		return
	}

	compConfig, exists := update.Config.Get().Components[componentName]
	if !exists {
		cm.logger.Info("component removed from config", "component", componentName)
		cm.handleComponentRemoval(ctx, componentName)
		return
	}

	cm.logger.Info("applying component config update",
		"component", componentName, "enabled", compConfig.Enabled)
	cm.handleComponentConfigUpdate(ctx, componentName, compConfig)
}

func (cm *ComponentManager) handleComponentConfigUpdate(ctx context.Context, name string, cfg types.ComponentConfig) {
	cm.mu.Lock()
	current, exists := cm.components[name]
	cm.mu.Unlock()

	switch {
	case cfg.Enabled && exists:
		cm.logger.Info("component config changed", "component", name, "action", "restart")
		if err := cm.restartComponentWithNewConfig(ctx, name, cfg, current); err != nil {
			cm.logger.Error("restart with new config failed",
				"component", name, "error", err,
				"action", "component_continues_with_old_config")
		}
	case cfg.Enabled:
		cm.logger.Info("new component configured", "component", name, "action", "create")
		if err := cm.createAndStartComponent(ctx, name, cfg); err != nil {
			cm.logger.Error("create from config update failed",
				"component", name, "error", err,
				"action", "will_retry_on_next_config_update")
		}
	case exists:
		cm.logger.Info("component disabled in config", "component", name, "action", "disable")
		if err := cm.stopAndRemoveComponent(ctx, name, current); err != nil {
			cm.logger.Error("component stop failed",
				"component", name, "error", err,
				"action", "component_may_continue_running")
		}
	}
}

func (cm *ComponentManager) handleComponentRemoval(ctx context.Context, name string) {
	cm.mu.Lock()
	current, exists := cm.components[name]
	cm.mu.Unlock()

	if !exists {
		return
	}

	cm.logger.Info("component entry removed", "component", name, "action", "remove")
	if err := cm.stopAndRemoveComponent(ctx, name, current); err != nil {
		cm.logger.Error("component removal failed",
			"component", name, "error", err,
			"action", "component_may_continue_running")
	}
}

// restartComponentWithNewConfig swaps a running component for one built
// from the new config: stop, unregister, recreate, start.
func (cm *ComponentManager) restartComponentWithNewConfig(
	ctx context.Context, name string, cfg types.ComponentConfig, current *component.ManagedComponent,
) error {
	if current == nil {
		return fmt.Errorf("cannot restart component %s: component not found", name)
	}

	if lifecycle, ok := component.AsLifecycleComponent(current.Component); ok {
		if err := lifecycle.Stop(30 * time.Second); err != nil {
			return fmt.Errorf("failed to stop existing component: %w", err)
		}
	}

	cm.detachComponent(name, current)

	if err := cm.CreateComponent(ctx, name, cfg, cm.buildComponentDependencies()); err != nil {
		return fmt.Errorf("failed to create component with new config: %w", err)
	}
	if cm.started.Load() {
		if startErr := cm.startSingleComponent(ctx, name); startErr != nil {
			return fmt.Errorf("failed to start restarted component: %w", startErr)
		}
	}
	cm.invalidateFlowCache()

	cm.logger.Info("component restarted with new config", "component", name)
	return nil
}

// detachComponent forgets a stopped component: its child context, the
// managed map entry, the start order slot and the registry instance.
func (cm *ComponentManager) detachComponent(name string, mc *component.ManagedComponent) {
	if mc.Cancel != nil {
		mc.Cancel()
	}

	cm.mu.Lock()
	delete(cm.components, name)
	cm.removeFromStartOrder(name)
	cm.mu.Unlock()

	cm.registry.UnregisterInstance(name)
}

// createAndStartComponent creates a component and, if the manager is
// already running, starts it too.
func (cm *ComponentManager) createAndStartComponent(ctx context.Context, name string, cfg types.ComponentConfig) error {
	if err := cm.CreateComponent(ctx, name, cfg, cm.buildComponentDependencies()); err != nil {
		return fmt.Errorf("failed to create component: %w", err)
	}

	if cm.started.Load() {
		if startErr := cm.startSingleComponent(ctx, name); startErr != nil {
			if mc, ok := cm.components[name]; ok {
				cm.cancelComponentContext(mc)
				delete(cm.components, name)
				cm.removeFromStartOrder(name)
			}
			return fmt.Errorf("failed to start new component: %w", startErr)
		}
	}
	cm.invalidateFlowCache()
	cm.logger.Info("component created and started", "component", name)
	return nil
}

func (cm *ComponentManager) stopAndRemoveComponent(
	ctx context.Context, name string, current *component.ManagedComponent,
) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case current == nil:
		return fmt.Errorf("cannot stop component %s: component not found", name)
	}

	if lifecycle, ok := component.AsLifecycleComponent(current.Component); ok {
		if err := lifecycle.Stop(30 * time.Second); err != nil {
			cm.logger.Warn("stop failed, removing anyway", "component", name, "error", err)
		}
	}

	cm.detachComponent(name, current)
	cm.invalidateFlowCache()

	cm.logger.Info("component stopped and removed", "component", name)
	return nil
}

func (cm *ComponentManager) removeFromStartOrder(name string) {
	if i := slices.Index(cm.startOrder, name); i >= 0 {
		cm.startOrder = append(cm.startOrder[:i], cm.startOrder[i+1:]...)
	}
}

// startSingleComponent starts one already-created component, retrying
// briefly since its upstream dependencies may still be coming up.
func (cm *ComponentManager) startSingleComponent(ctx context.Context, name string) error {
	mc, found := cm.components[name]
	if !found {
		return fmt.Errorf("component %s not found", name)
	}
	lc, ok := component.AsLifecycleComponent(mc.Component)
	if !ok {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	mc.Context = childCtx
	mc.Cancel = cancel

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()

		// retry.Quick gives roughly a second of attempts
		startErr := retry.Do(mc.Context, retry.Quick(), func() error {
			err := lc.Start(mc.Context)
			if err != nil {
				cm.logger.Debug("component start attempt failed, retrying",
					"component", name, "error", err)
			}
			return err
		})
		if startErr != nil {
			cm.updateComponentState(name, component.StateFailed, startErr)
			if cm.onComponentError != nil {
				cm.onComponentError(mc.Context, name, startErr)
			}
			cm.logger.Error("component start failed after retries",
				"component", name, "error", startErr)
			return
		}

		cm.updateComponentState(name, component.StateStarted, nil)
		if cm.onComponentStart != nil {
			cm.onComponentStart(mc.Context, name, mc.Component)
		}
		cm.logger.Info("component started", "component", name)
	}()

	mc.StartOrder = len(cm.startOrder)
	cm.startOrder = append(cm.startOrder, name)
	return nil
}

// CreateComponentsFromConfig creates components for every enabled entry
// in cfg. Used when full config arrives after construction.
func (cm *ComponentManager) CreateComponentsFromConfig(ctx context.Context, cfg *config.Config) error {
	if cfg != nil && cfg.Components != nil {
		cm.createEnabledComponents(ctx, cfg.Components)
	}
	return nil
}

// buildComponentDependencies assembles what every component receives:
// NATS client, cluster connection, metrics, logger, platform identity and
// the current security config.
func (cm *ComponentManager) buildComponentDependencies() component.Dependencies {
	var securityCfg security.Config
	if cm.configManager != nil {
		if full := cm.configManager.GetConfig(); full != nil {
			securityCfg = full.Get().Security
		}
	}

	return component.Dependencies{
		NATSClient:      cm.natsClient,
		Cluster:         cm.cluster,
		MetricsRegistry: cm.BaseService.metricsRegistry,
		Logger:          cm.BaseService.logger,
		Platform:        component.PlatformMeta{Org: cm.platform.Org, Cluster: cm.platform.Cluster},
		Security:        securityCfg,
	}
}

// GetComponentHealth asks each component for its own health status.
func (cm *ComponentManager) GetComponentHealth() map[string]component.HealthStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make(map[string]component.HealthStatus, len(cm.components))
	for name, mc := range cm.components {
		if mc.Component != nil {
			out[name] = mc.Component.Health()
		}
	}
	return out
}

// GetHealthyComponents lists components currently reporting healthy.
func (cm *ComponentManager) GetHealthyComponents() []string {
	return cm.filterByHealth(true)
}

// GetUnhealthyComponents lists components currently reporting unhealthy.
func (cm *ComponentManager) GetUnhealthyComponents() []string {
	return cm.filterByHealth(false)
}

func (cm *ComponentManager) filterByHealth(healthy bool) []string {
	var names []string
	for name, h := range cm.GetComponentHealth() {
		if h.Healthy == healthy {
			names = append(names, name)
		}
	}
	return names
}

// GetComponentStatus combines lifecycle state with health and flow
// metrics for the status API.
func (cm *ComponentManager) GetComponentStatus() map[string]ComponentStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make(map[string]ComponentStatus, len(cm.components))
	for name, mc := range cm.components {
		status := ComponentStatus{Name: name, State: mc.State, LastError: mc.LastError}
		if mc.Component != nil {
			status.Health, status.DataFlow = mc.Component.Health(), mc.Component.DataFlow()
		}
		out[name] = status
	}
	return out
}

// ComponentStatus is the per-component row in the status API response.
type ComponentStatus struct {
	Name      string                 `json:"name"`
	State     component.State        `json:"state"`
	LastError error                  `json:"last_error,omitempty"`
	Health    component.HealthStatus `json:"health"`
	DataFlow  component.FlowMetrics  `json:"data_flow"`
}

// ComponentPortInfo is the port inventory of one component.
type ComponentPortInfo struct {
	ComponentName string                `json:"component_name"`
	OutputPorts   []ComponentPortDetail `json:"output_ports"`
	InputPorts    []ComponentPortDetail `json:"input_ports"`
}

// ComponentPortDetail describes one NATS-backed port.
type ComponentPortDetail struct {
	Name      string              `json:"name"`
	Subject   string              `json:"subject"`
	PortType  string              `json:"port_type"`
	Direction component.Direction `json:"direction"`
}

// FlowConnection is a subject-matched publisher/subscriber pair.
type FlowConnection struct {
	Subject    string                 `json:"subject"`
	Publisher  ComponentPortReference `json:"publisher"`
	Subscriber ComponentPortReference `json:"subscriber"`
}

// ComponentPortReference names a port on a component.
type ComponentPortReference struct {
	ComponentName string `json:"component_name"`
	PortName      string `json:"port_name"`
}

// FlowGap is a port whose subject has no counterpart, e.g. a classifier
// output nothing subscribes to.
type FlowGap struct {
	ComponentName string `json:"component_name"`
	Subject       string `json:"subject"`
	PortName      string `json:"port_name"`
	Issue         string `json:"issue"`     // "no_publishers" or "no_subscribers"
	Direction     string `json:"direction"` // "input" or "output"
}

func (cm *ComponentManager) extractComponentPortInfo(comp component.Discoverable) *ComponentPortInfo {
	info := &ComponentPortInfo{
		ComponentName: comp.Meta().Name,
		InputPorts:    []ComponentPortDetail{},
		OutputPorts:   []ComponentPortDetail{},
	}
	for _, port := range comp.InputPorts() {
		if detail := cm.extractPortDetail(port); detail != nil {
			info.InputPorts = append(info.InputPorts, *detail)
		}
	}
	for _, port := range comp.OutputPorts() {
		if detail := cm.extractPortDetail(port); detail != nil {
			info.OutputPorts = append(info.OutputPorts, *detail)
		}
	}
	return info
}

// extractPortDetail pulls subject and kind from NATS-backed ports. Other
// port kinds, like file ports, are invisible to flow analysis.
func (cm *ComponentManager) extractPortDetail(port component.Port) *ComponentPortDetail {
	detail := &ComponentPortDetail{Name: port.Name, Direction: port.Direction}
	switch portCfg := port.Config.(type) {
	case component.NATSPort:
		detail.Subject, detail.PortType = portCfg.Subject, "nats"
		return detail
	case component.NATSRequestPort:
		detail.Subject, detail.PortType = portCfg.Subject, "nats-request"
		return detail
	}
	return nil
}

// analyzeFlowConnections pairs output and input ports by exact subject.
// Subjects are matched literally; wildcard subscriptions are invisible
// here and show up as gaps instead.
func (cm *ComponentManager) analyzeFlowConnections(components []component.Discoverable) []FlowConnection {
	publishersBySubject := make(map[string][]ComponentPortReference)
	infos := make([]*ComponentPortInfo, 0, len(components))

	for _, comp := range components {
		info := cm.extractComponentPortInfo(comp)
		infos = append(infos, info)
		for _, out := range info.OutputPorts {
			publishersBySubject[out.Subject] = append(publishersBySubject[out.Subject],
				ComponentPortReference{ComponentName: info.ComponentName, PortName: out.Name})
		}
	}

	var connections []FlowConnection
	for _, info := range infos {
		for _, in := range info.InputPorts {
			sub := ComponentPortReference{ComponentName: info.ComponentName, PortName: in.Name}
			for _, pub := range publishersBySubject[in.Subject] {
				connections = append(connections, FlowConnection{Subject: in.Subject, Publisher: pub, Subscriber: sub})
			}
		}
	}
	return connections
}

// FlowAnalysis captures a point-in-time view of how component ports wire
// together over NATS subjects.
type FlowAnalysis struct {
	Ports       map[string]*ComponentPortInfo `json:"ports"`
	Connections []FlowConnection              `json:"connections"`
	Gaps        []FlowGap                     `json:"gaps"`
	Status      string                        `json:"status"` // "healthy" or "warning"
	GeneratedAt time.Time                     `json:"generated_at"`
}

// flowAnalysisCache holds the last topology until something changes it.
type flowAnalysisCache struct {
	mu       sync.RWMutex
	analysis *FlowAnalysis
	valid    bool
}

// GetFlowAnalysis returns the current flow analysis, using the cache if valid.
// The cache is invalidated whenever components are created, removed or
// reconfigured.
func (cm *ComponentManager) GetFlowAnalysis() *FlowAnalysis {
	cm.flowCache.mu.RLock()
	if cm.flowCache.valid && cm.flowCache.analysis != nil {
		analysis := cm.flowCache.analysis
		cm.flowCache.mu.RUnlock()
		return analysis
	}
	cm.flowCache.mu.RUnlock()

	cm.flowCache.mu.Lock()
	defer cm.flowCache.mu.Unlock()

	if cm.flowCache.valid && cm.flowCache.analysis != nil {
		return cm.flowCache.analysis
	}

	analysis := cm.buildFlowAnalysis()
	cm.flowCache.analysis = analysis
	cm.flowCache.valid = true

	return analysis
}

// buildFlowAnalysis snapshots the components and matches their NATS ports
// by subject. A gap anywhere downgrades the topology to "warning".
func (cm *ComponentManager) buildFlowAnalysis() *FlowAnalysis {
	cm.mu.RLock()
	components := make([]component.Discoverable, 0, len(cm.components))
	for _, mc := range cm.components {
		if mc.Component != nil {
			components = append(components, mc.Component)
		}
	}
	cm.mu.RUnlock()

	analysis := &FlowAnalysis{
		Ports:       make(map[string]*ComponentPortInfo, len(components)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, comp := range components {
		info := cm.extractComponentPortInfo(comp)
		analysis.Ports[info.ComponentName] = info
	}

	analysis.Connections = cm.analyzeFlowConnections(components)
	analysis.Gaps = cm.analyzeFlowGaps(analysis)

	analysis.Status = "healthy"
	if len(analysis.Gaps) > 0 {
		analysis.Status = "warning"
	}

	return analysis
}

// analyzeFlowGaps flags ports whose subject matched no counterpart: an
// aggregator input no scan publishes to, or a classified-rows output
// nothing consumes.
func (cm *ComponentManager) analyzeFlowGaps(analysis *FlowAnalysis) []FlowGap {
	connectedPub := make(map[ComponentPortReference]bool)
	connectedSub := make(map[ComponentPortReference]bool)
	for _, conn := range analysis.Connections {
		connectedPub[conn.Publisher] = true
		connectedSub[conn.Subscriber] = true
	}

	var gaps []FlowGap
	gap := func(name string, port ComponentPortDetail, direction, issue string) {
		gaps = append(gaps, FlowGap{
			ComponentName: name,
			PortName:      port.Name,
			Subject:       port.Subject,
			Direction:     direction,
			Issue:         issue,
		})
	}
	for name, info := range analysis.Ports {
		for _, out := range info.OutputPorts {
			if !connectedPub[ComponentPortReference{ComponentName: name, PortName: out.Name}] {
				gap(name, out, "output", "no_subscribers")
			}
		}
		for _, in := range info.InputPorts {
			if !connectedSub[ComponentPortReference{ComponentName: name, PortName: in.Name}] {
				gap(name, in, "input", "no_publishers")
			}
		}
	}
	return gaps
}

func (cm *ComponentManager) invalidateFlowCache() {
	cm.flowCache.mu.Lock()
	defer cm.flowCache.mu.Unlock()

	cm.flowCache.valid = false
	cm.flowCache.analysis = nil
}

// GetFlowPaths maps each input component, like the cluster scanner, to
// every component its rows can reach through the subject graph.
func (cm *ComponentManager) GetFlowPaths() map[string][]string {
	analysis := cm.GetFlowAnalysis()

	adj := make(map[string][]string)
	for _, conn := range analysis.Connections {
		from := conn.Publisher.ComponentName
		to := conn.Subscriber.ComponentName
		if from != to {
			adj[from] = append(adj[from], to)
		}
	}

	paths := make(map[string][]string)
	for name := range analysis.Ports {
		if !cm.isInputComponent(name) {
			continue
		}
		visited := make(map[string]bool)
		var reachable []string
		cm.dfsVisit(name, adj, visited, &reachable)
		paths[name] = reachable
	}

	return paths
}

// DetectSinkGaps finds outputs and stores that nothing feeds, the usual
// symptom of a mistyped subject in one component's config.
func (cm *ComponentManager) DetectSinkGaps() []ComponentGap {
	analysis := cm.GetFlowAnalysis()

	incoming := make(map[string]bool)
	for _, conn := range analysis.Connections {
		incoming[conn.Subscriber.ComponentName] = true
	}

	var gaps []ComponentGap
	for name := range analysis.Ports {
		if !cm.isSinkComponent(name) || incoming[name] {
			continue
		}
		gaps = append(gaps, ComponentGap{
			ComponentName: name,
			Issue:         "no_input_connections",
			Description:   "Sink component configured but not receiving data",
			Suggestions: []string{
				"Check the component's input subject against upstream output subjects",
				"Verify the upstream component is enabled",
			},
		})
	}

	return gaps
}

// isInputComponent reports whether a component is a pipeline entry point.
func (cm *ComponentManager) isInputComponent(componentName string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	compCfg, ok := cm.componentConfigs[componentName]
	return ok && compCfg.Type == "input"
}

// isSinkComponent reports whether a component stores or exports data. The
// name check covers components created before their config entry landed.
func (cm *ComponentManager) isSinkComponent(componentName string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if compCfg, ok := cm.componentConfigs[componentName]; ok {
		if compCfg.Type == "storage" || compCfg.Type == "output" {
			return true
		}
	}
	lower := strings.ToLower(componentName)
	return strings.Contains(lower, "store") || strings.Contains(lower, "storage")
}

func (cm *ComponentManager) dfsVisit(node string, adj map[string][]string, visited map[string]bool, out *[]string) {
	visited[node] = true
	*out = append(*out, node)
	for _, next := range adj[node] {
		if !visited[next] {
			cm.dfsVisit(next, adj, visited, out)
		}
	}
}

// ComponentGap is one disconnected sink in the topology report.
type ComponentGap struct {
	ComponentName string   `json:"component_name"`
	Description   string   `json:"description"`
	Issue         string   `json:"issue"`
	Suggestions   []string `json:"suggestions,omitempty"`
}
