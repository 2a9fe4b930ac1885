package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/config"
	"github.com/eijnar/es-daily-ingest-calculator/service"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// stubClassifier is a classify-shaped component for exercising live
// config updates without a real pipeline behind it.
type stubClassifier struct {
	id     string
	config json.RawMessage

	started   bool
	stopped   bool
	startTime time.Time

	startErr error
	stopErr  error
}

func (c *stubClassifier) Meta() component.Metadata {
	return component.Metadata{
		Name:        "classify",
		Type:        string(types.ComponentTypeProcessor),
		Description: "Index classifier stub",
		Version:     "1.0.0",
	}
}

func (c *stubClassifier) InputPorts() []component.Port {
	return []component.Port{}
}

func (c *stubClassifier) OutputPorts() []component.Port {
	return []component.Port{}
}

func (c *stubClassifier) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"default_tier": {
				Type:        "string",
				Description: "Tier assigned when no rule matches",
			},
		},
	}
}

func (c *stubClassifier) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:   !c.stopped,
		LastCheck: time.Now(),
		Uptime:    time.Since(c.startTime),
	}
}

func (c *stubClassifier) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: time.Now(),
	}
}

func (c *stubClassifier) Initialize() error {
	return nil
}

func (c *stubClassifier) Start(_ context.Context) error {
	c.started = true
	c.startTime = time.Now()
	return c.startErr
}

func (c *stubClassifier) Stop(_ time.Duration) error {
	c.stopped = true
	return c.stopErr
}

// setComponentConfig applies a single component config change through the
// config manager, the same path the HTTP config endpoints use.
func setComponentConfig(t *testing.T, cm *config.Manager, name string, cfg types.ComponentConfig) {
	t.Helper()
	err := cm.Apply("components."+name, func(c *config.Config) {
		if c.Components == nil {
			c.Components = config.ComponentConfigs{}
		}
		c.Components[name] = cfg
	})
	require.NoError(t, err)
}

// removeComponentConfig deletes a component entry from the configuration.
func removeComponentConfig(t *testing.T, cm *config.Manager, name string) {
	t.Helper()
	err := cm.Apply("components."+name, func(c *config.Config) {
		delete(c.Components, name)
	})
	require.NoError(t, err)
}

func testPlatform() config.PlatformConfig {
	return config.PlatformConfig{
		Org:         "acme",
		ID:          "logging-prod-eu1",
		InstanceID:  "esdic-001",
		Environment: "production",
	}
}

func TestComponentManagerConfigUpdates(t *testing.T) {
	ctx := context.Background()

	factoryCalled := 0
	var lastConfig json.RawMessage
	factory := func(config json.RawMessage, _ component.Dependencies) (component.Discoverable, error) {
		factoryCalled++
		lastConfig = config
		return &stubClassifier{
			id:     fmt.Sprintf("classify-%d", factoryCalled),
			config: config,
		}, nil
	}

	registry := component.NewRegistry()
	err := registry.RegisterFactory("classify", &component.Registration{
		Name:        "classify",
		Type:        string(types.ComponentTypeProcessor),
		Protocol:    "nats",
		Description: "Index classifier stub",
		Version:     "1.0.0",
		Factory:     factory,
	})
	require.NoError(t, err)

	// Start with no components configured; every instance below arrives
	// through a config update.
	initialConfig := &config.Config{
		Platform:   testPlatform(),
		Components: config.ComponentConfigs{},
	}

	configManager, err := config.NewConfigManager(initialConfig, slog.Default())
	require.NoError(t, err)
	require.NoError(t, configManager.Start(ctx))
	defer configManager.Stop(5 * time.Second)

	deps := &service.Dependencies{
		Manager:           configManager,
		Logger:            slog.Default(),
		ComponentRegistry: registry,
	}

	// watch_config makes the manager subscribe to "components.*" during
	// construction.
	cmService, err := service.NewComponentManager(json.RawMessage(`{"watch_config": true}`), deps)
	require.NoError(t, err)

	cm := cmService.(*service.ComponentManager)

	require.NoError(t, cm.Start(ctx))
	defer cm.Stop(5 * time.Second)

	t.Run("add component via config", func(t *testing.T) {
		setComponentConfig(t, configManager, "classifier", types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "classify",
			Enabled: true,
			Config:  json.RawMessage(`{"default_tier":"hot"}`),
		})

		require.Eventually(t, func() bool {
			_, ok := cm.ListComponents()["classifier"]
			return ok
		}, 5*time.Second, 50*time.Millisecond, "the update should create the component")

		assert.Equal(t, 1, factoryCalled)
		assert.JSONEq(t, `{"default_tier":"hot"}`, string(lastConfig))
	})

	t.Run("update component config", func(t *testing.T) {
		factoryCalled = 0

		setComponentConfig(t, configManager, "classifier", types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "classify",
			Enabled: true,
			Config:  json.RawMessage(`{"default_tier":"warm"}`),
		})

		// A config change restarts the component through its factory.
		require.Eventually(t, func() bool {
			return factoryCalled == 1
		}, 5*time.Second, 50*time.Millisecond, "the factory should run again on restart")
		assert.JSONEq(t, `{"default_tier":"warm"}`, string(lastConfig))

		assert.Contains(t, cm.ListComponents(), "classifier")
	})

	t.Run("disable component via config", func(t *testing.T) {
		setComponentConfig(t, configManager, "classifier", types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "classify",
			Enabled: false,
			Config:  json.RawMessage(`{"default_tier":"warm"}`),
		})

		require.Eventually(t, func() bool {
			_, ok := cm.ListComponents()["classifier"]
			return !ok
		}, 5*time.Second, 50*time.Millisecond, "disabling should remove the component")
	})

	t.Run("remove component from config", func(t *testing.T) {
		setComponentConfig(t, configManager, "classifier-replay", types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "classify",
			Enabled: true,
			Config:  json.RawMessage(`{"default_tier":"cold"}`),
		})

		require.Eventually(t, func() bool {
			_, ok := cm.ListComponents()["classifier-replay"]
			return ok
		}, 5*time.Second, 50*time.Millisecond)

		removeComponentConfig(t, configManager, "classifier-replay")

		require.Eventually(t, func() bool {
			_, ok := cm.ListComponents()["classifier-replay"]
			return !ok
		}, 5*time.Second, 50*time.Millisecond, "dropping the config entry should remove the component")
	})

	t.Run("multiple instances, one disabled", func(t *testing.T) {
		setComponentConfig(t, configManager, "classifier-eu1", types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "classify",
			Enabled: true,
			Config:  json.RawMessage(`{"default_tier":"hot"}`),
		})
		setComponentConfig(t, configManager, "classifier-us1", types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "classify",
			Enabled: true,
			Config:  json.RawMessage(`{"default_tier":"hot"}`),
		})
		setComponentConfig(t, configManager, "classifier-dr", types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "classify",
			Enabled: false,
			Config:  json.RawMessage(`{"default_tier":"cold"}`),
		})

		require.Eventually(t, func() bool {
			components := cm.ListComponents()
			_, ok1 := components["classifier-eu1"]
			_, ok2 := components["classifier-us1"]
			return ok1 && ok2
		}, 5*time.Second, 50*time.Millisecond, "enabled instances should come up")

		assert.NotContains(t, cm.ListComponents(), "classifier-dr",
			"a disabled instance must never be created")
	})
}

func TestComponentManagerConfigResilience(t *testing.T) {
	ctx := context.Background()

	failOnCreate := false
	factory := func(config json.RawMessage, _ component.Dependencies) (component.Discoverable, error) {
		if failOnCreate {
			return nil, assert.AnError
		}
		return &stubClassifier{
			id:     "dsaggregate",
			config: config,
		}, nil
	}

	registry := component.NewRegistry()
	err := registry.RegisterFactory("dsaggregate", &component.Registration{
		Name:        "dsaggregate",
		Type:        string(types.ComponentTypeProcessor),
		Protocol:    "nats",
		Description: "Data stream aggregator stub",
		Version:     "1.0.0",
		Factory:     factory,
	})
	require.NoError(t, err)

	configManager, err := config.NewConfigManager(&config.Config{
		Platform: testPlatform(),
	}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, configManager.Start(ctx))
	defer configManager.Stop(5 * time.Second)

	deps := &service.Dependencies{
		Manager:           configManager,
		Logger:            slog.Default(),
		ComponentRegistry: registry,
	}

	cmService, err := service.NewComponentManager(json.RawMessage(`{"watch_config": true}`), deps)
	require.NoError(t, err)

	cm := cmService.(*service.ComponentManager)
	require.NoError(t, cm.Start(ctx))
	defer cm.Stop(5 * time.Second)

	t.Run("creation failure then retry", func(t *testing.T) {
		failOnCreate = true

		aggregatorCfg := types.ComponentConfig{
			Type:    types.ComponentTypeProcessor,
			Name:    "dsaggregate",
			Enabled: true,
			Config:  json.RawMessage(`{}`),
		}

		setComponentConfig(t, configManager, "aggregator", aggregatorCfg)

		time.Sleep(500 * time.Millisecond)

		components := cm.ListComponents()
		assert.NotNil(t, components, "a failed create must not take the manager down")
		assert.NotContains(t, components, "aggregator")

		// Re-applying the same config after the fault clears brings the
		// component up.
		failOnCreate = false
		setComponentConfig(t, configManager, "aggregator", aggregatorCfg)

		require.Eventually(t, func() bool {
			_, ok := cm.ListComponents()["aggregator"]
			return ok
		}, 5*time.Second, 50*time.Millisecond)
	})
}
