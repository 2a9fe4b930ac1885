package component

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// stubScanComponent is a scan-input-shaped Discoverable for registry tests.
type stubScanComponent struct {
	name          string
	componentType string
	healthy       bool
	inputPorts    []Port
	outputPorts   []Port
}

func newStubScanComponent(name, componentType string) *stubScanComponent {
	return &stubScanComponent{
		name: name, componentType: componentType, healthy: true,
		inputPorts: []Port{{
			Name: "trigger", Direction: DirectionInput, Required: true,
			Description: "Scan trigger", Config: NATSPort{Subject: "esdic.scan.trigger"},
		}},
		outputPorts: []Port{{
			Name: "indices", Direction: DirectionOutput, Required: true,
			Description: "Raw index names", Config: NATSPort{Subject: "esdic.raw.indices"},
		}},
	}
}

func (m *stubScanComponent) Meta() Metadata {
	return Metadata{Name: m.name, Type: m.componentType, Description: "Cluster scan stub", Version: "1.0.0"}
}

func (m *stubScanComponent) InputPorts() []Port  { return m.inputPorts }
func (m *stubScanComponent) OutputPorts() []Port { return m.outputPorts }

func (m *stubScanComponent) ConfigSchema() ConfigSchema {
	return ConfigSchema{
		Properties: map[string]PropertySchema{
			"workers": {Type: "int", Description: "Scan workers", Default: 4},
		},
		Required: []string{"workers"},
	}
}

func (m *stubScanComponent) Health() HealthStatus {
	return HealthStatus{Healthy: m.healthy, LastCheck: time.Now(), Uptime: time.Hour}
}

func (m *stubScanComponent) DataFlow() FlowMetrics {
	return FlowMetrics{MessagesPerSecond: 10.0, BytesPerSecond: 1024.0, LastActivity: time.Now()}
}

// scanStubFactory parses its own config the way real factories do.
func scanStubFactory(rawConfig json.RawMessage, _ Dependencies) (Discoverable, error) {
	settings := make(map[string]any)
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &settings); err != nil {
			return nil, err
		}
	}
	name := GetString(settings, "name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return newStubScanComponent(name, GetString(settings, "type", "input")), nil
}

func failingFactory(_ json.RawMessage, _ Dependencies) (Discoverable, error) {
	return nil, fmt.Errorf("factory failure")
}

// registerInputFactory registers a bare input factory under name.
func registerInputFactory(t *testing.T, registry *Registry, name string, factory Factory) {
	t.Helper()
	require.NoError(t, registry.RegisterFactory(name, &Registration{
		Factory: factory,
		Type:    "input",
	}))
}

// inputConfig builds the config block CreateComponent expects for an
// input-typed factory.
func inputConfig(factoryName, rawConfig string) types.ComponentConfig {
	return types.ComponentConfig{
		Type: types.ComponentTypeInput, Name: factoryName,
		Enabled: true, Config: json.RawMessage(rawConfig),
	}
}

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	testClient := natsclient.NewTestClient(t, natsclient.WithMinimalFeatures())
	return Dependencies{
		NATSClient: testClient.Client,
		Platform: PlatformMeta{
			Org:     "acme",
			Cluster: "logging-prod-eu1",
		},
	}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	require.NotNil(t, registry)
	assert.Empty(t, registry.factories)
	assert.Empty(t, registry.instances)
}

func TestRegisterFactory(t *testing.T) {
	registry := NewRegistry()

	registration := &Registration{
		Factory: scanStubFactory, Type: "input", Protocol: "https",
		Description: "Cluster scan stub", Version: "1.0.0",
	}

	require.NoError(t, registry.RegisterFactory("clusterscan", registration))

	factories := registry.ListFactories()
	require.Len(t, factories, 1)
	assert.NotNil(t, factories["clusterscan"])

	assert.Error(t, registry.RegisterFactory("clusterscan", registration),
		"a second registration under the same name must fail")
}

func TestRegisterFactoryValidation(t *testing.T) {
	registry := NewRegistry()

	tests := map[string]struct {
		factoryName  string
		registration *Registration
	}{
		"empty name":       {"", &Registration{Factory: scanStubFactory, Type: "input"}},
		"nil registration": {"clusterscan", nil},
		"nil factory":      {"clusterscan", &Registration{Type: "input"}},
		"empty type":       {"clusterscan", &Registration{Factory: scanStubFactory}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, registry.RegisterFactory(tt.factoryName, tt.registration))
		})
	}
}

func TestCreateComponent(t *testing.T) {
	registry := NewRegistry()

	registration := &Registration{
		Factory: scanStubFactory, Type: "input", Protocol: "https",
		Description: "Cluster scan stub", Version: "1.0.0",
	}
	require.NoError(t, registry.RegisterFactory("clusterscan", registration))

	config := inputConfig("clusterscan", `{"name":"scanner-eu1","type":"input"}`)

	component, err := registry.CreateComponent("scanner-eu1", config, testDeps(t))
	require.NoError(t, err)
	require.NotNil(t, component)

	instances := registry.ListComponents()
	require.Len(t, instances, 1)
	assert.NotNil(t, instances["scanner-eu1"])

	assert.Equal(t, "scanner-eu1", component.Meta().Name)
}

func TestCreateComponentValidation(t *testing.T) {
	registry := NewRegistry()
	registerInputFactory(t, registry, "clusterscan", scanStubFactory)

	tests := map[string]struct {
		factoryName  string
		instanceName string
	}{
		"empty factory name":   {"", "scanner-eu1"},
		"empty instance name":  {"clusterscan", ""},
		"unknown factory name": {"unknown", "scanner-eu1"},
	}

	deps := testDeps(t)

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			config := inputConfig(tt.factoryName, `{"name":"scanner-eu1"}`)
			_, err := registry.CreateComponent(tt.instanceName, config, deps)
			assert.Error(t, err)
		})
	}
}

func TestCreateComponentTypeMismatch(t *testing.T) {
	registry := NewRegistry()
	registerInputFactory(t, registry, "clusterscan", scanStubFactory)

	// The config asks for an output, but clusterscan registers as an input.
	config := types.ComponentConfig{
		Type: types.ComponentTypeOutput, Name: "clusterscan",
		Enabled: true, Config: json.RawMessage(`{"name":"scanner-eu1"}`),
	}
	_, err := registry.CreateComponent("scanner-eu1", config, testDeps(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is type 'input'")
}

func TestCreateComponentFactoryFailure(t *testing.T) {
	registry := NewRegistry()
	registerInputFactory(t, registry, "brokenscan", failingFactory)

	config := inputConfig("brokenscan", `{"name":"scanner-eu1"}`)
	_, err := registry.CreateComponent("scanner-eu1", config, testDeps(t))
	require.Error(t, err)

	assert.Empty(t, registry.ListComponents(),
		"a failed factory must not leave a registered instance behind")
}

func TestRegisterInstance(t *testing.T) {
	registry := NewRegistry()
	component := newStubScanComponent("scanner-eu1", "input")

	require.NoError(t, registry.RegisterInstance("scanner-eu1", component))

	retrieved := registry.Component("scanner-eu1")
	require.NotNil(t, retrieved)
	assert.Same(t, Discoverable(component), retrieved)

	assert.Error(t, registry.RegisterInstance("scanner-eu1", component),
		"duplicate instance registration must fail")
}

func TestRegisterInstanceValidation(t *testing.T) {
	registry := NewRegistry()
	component := newStubScanComponent("scanner-eu1", "input")

	assert.Error(t, registry.RegisterInstance("", component))
	assert.Error(t, registry.RegisterInstance("scanner-eu1", nil))
}

func TestUnregisterInstance(t *testing.T) {
	registry := NewRegistry()
	component := newStubScanComponent("scanner-eu1", "input")

	require.NoError(t, registry.RegisterInstance("scanner-eu1", component))
	require.NotNil(t, registry.Component("scanner-eu1"))

	registry.UnregisterInstance("scanner-eu1")
	assert.Nil(t, registry.Component("scanner-eu1"))

	// Unknown and empty names are no-ops.
	registry.UnregisterInstance("non-existent")
	registry.UnregisterInstance("")
}

func TestListComponents(t *testing.T) {
	registry := NewRegistry()

	assert.Empty(t, registry.ListComponents())

	scanner := newStubScanComponent("scanner-eu1", "input")
	exporter := newStubScanComponent("csv-exporter", "output")
	exporter.inputPorts[0].Config = NATSPort{Subject: "esdic.classified"}
	exporter.outputPorts = nil

	require.NoError(t, registry.RegisterInstance("scanner-eu1", scanner))
	require.NoError(t, registry.RegisterInstance("csv-exporter", exporter))

	components := registry.ListComponents()
	require.Len(t, components, 2)
	assert.Same(t, Discoverable(scanner), components["scanner-eu1"])
	assert.Same(t, Discoverable(exporter), components["csv-exporter"])

	// The returned map is a copy.
	delete(components, "scanner-eu1")
	assert.Len(t, registry.ListComponents(), 2)
}

func TestComponentLookup(t *testing.T) {
	registry := NewRegistry()
	component := newStubScanComponent("scanner-eu1", "input")

	assert.Nil(t, registry.Component("non-existent"))

	require.NoError(t, registry.RegisterInstance("scanner-eu1", component))
	assert.Same(t, Discoverable(component), registry.Component("scanner-eu1"))
}

func TestListFactories(t *testing.T) {
	registry := NewRegistry()

	assert.Empty(t, registry.ListFactories())

	scanReg := &Registration{
		Factory: scanStubFactory, Type: "input", Protocol: "https",
		Description: "Scans a cluster for index names", Version: "1.0.0",
	}
	reportReg := &Registration{
		Factory: scanStubFactory, Type: "output", Protocol: "file",
		Description: "Writes the daily ingest report as CSV", Version: "2.0.0",
	}

	require.NoError(t, registry.RegisterFactory("clusterscan", scanReg))
	require.NoError(t, registry.RegisterFactory("csvreport", reportReg))

	factories := registry.ListFactories()
	require.Len(t, factories, 2)

	scan := factories["clusterscan"]
	require.NotNil(t, scan)
	assert.Equal(t, "input", scan.Type)
	assert.Equal(t, "https", scan.Protocol)

	// Copies never carry the factory function.
	assert.Nil(t, scan.Factory)
}

func TestConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	registerInputFactory(t, registry, "clusterscan", scanStubFactory)

	deps := testDeps(t)

	var wg sync.WaitGroup
	errs := make(chan error, 100)

	// Racing creations through the factory path.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			instanceName := fmt.Sprintf("scanner-%d", id)
			config := inputConfig("clusterscan",
				fmt.Sprintf(`{"name":%q,"type":"input"}`, instanceName))
			if _, err := registry.CreateComponent(instanceName, config, deps); err != nil {
				errs <- err
			}
		}(i)
	}

	// Racing direct instance registrations.
	for i := 10; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			instanceName := fmt.Sprintf("manual-%d", id)
			component := newStubScanComponent(instanceName, "input")

			if err := registry.RegisterInstance(instanceName, component); err != nil {
				errs <- err
			}
		}(i)
	}

	// Racing reads.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = registry.ListComponents(), registry.ListFactories()
			_ = registry.Component("scanner-1")
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	assert.Len(t, registry.ListComponents(), 20)
}
