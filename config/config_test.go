package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// writeConfigFile drops raw config content into a temp file and returns
// its path. The extension picks the parser.
func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// loadJSON writes a JSON layer to disk and loads it through a fresh
// Loader, failing the test on any error.
func loadJSON(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := NewLoader().LoadFile(writeConfigFile(t, "config.json", content))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	return cfg
}

func TestConfig_Structure(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{Org: "platform-ops", ID: "test-deployment", Cluster: "logging-prod-eu1"},
		NATS: NATSConfig{
			URLs: []string{"nats://localhost:4222"}, MaxReconnects: -1, ReconnectWait: 2 * time.Second,
		},
	}

	assert.Equal(t, "test-deployment", cfg.Platform.ID)
	assert.Equal(t, "logging-prod-eu1", cfg.Platform.Cluster)
}

func TestLoader_LoadJSON(t *testing.T) {
	cfg := loadJSON(t, `{
		"platform": {
			"org": "platform-ops",
			"id": "ingest-calc-prod",
			"cluster": "logging-prod-eu1",
			"environment": "prod"
		},
		"nats": {
			"urls": ["nats://localhost:4222", "nats://localhost:4223"],
			"max_reconnects": 10,
			"reconnect_wait": "5s"
		},
		"cluster": {
			"addresses": ["https://es1.internal:9200"],
			"api_key": "c2VjcmV0"
		},
		"services": {
			"component-manager": {"enabled": true},
			"metrics": {"enabled": true}
		}
	}`)

	assert.Equal(t, "ingest-calc-prod", cfg.Platform.ID)
	assert.Equal(t, "logging-prod-eu1", cfg.Platform.Cluster)
	assert.Equal(t, "prod", cfg.Platform.Environment)
	assert.Len(t, cfg.NATS.URLs, 2)
	assert.Equal(t, 10, cfg.NATS.MaxReconnects)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, []string{"https://es1.internal:9200"}, cfg.Cluster.Addresses)
	assert.Equal(t, "c2VjcmV0", cfg.Cluster.APIKey)
	assert.True(t, cfg.Services["component-manager"].Enabled)
	assert.True(t, cfg.Services["metrics"].Enabled)
}

func TestLoader_LoadYAML(t *testing.T) {
	configFile := writeConfigFile(t, "config.yaml", `
platform:
  org: platform-ops
  id: ingest-calc-yaml
  cluster: logging-prod-eu1
nats:
  urls:
    - nats://localhost:4222
cluster:
  addresses:
    - https://es1.internal:9200
`)

	cfg, err := NewLoader().LoadFile(configFile)
	require.NoError(t, err)

	assert.Equal(t, "ingest-calc-yaml", cfg.Platform.ID)
	assert.Equal(t, "logging-prod-eu1", cfg.Platform.Cluster)
	assert.Equal(t, []string{"https://es1.internal:9200"}, cfg.Cluster.Addresses)
}

func TestLoader_Defaults(t *testing.T) {
	cfg := loadJSON(t, `{"platform": {"org": "platform-ops", "id": "test-deployment"}}`)

	assert.Equal(t, "dev", cfg.Platform.Environment)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects, "reconnect forever unless told otherwise")
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.True(t, cfg.Services["component-manager"].Enabled)
	assert.False(t, cfg.Services["metrics"].Enabled, "metrics endpoint is dormant by default")
	assert.True(t, cfg.NATS.JetStream.Enabled)
	assert.Empty(t, cfg.Cluster.Addresses, "no cluster means replay-only mode")
}

func TestLoader_EnvOverrides(t *testing.T) {
	envs := map[string]string{
		"ESDIC_PLATFORM_ID":       "env-deployment",
		"ESDIC_PLATFORM_CLUSTER":  "logging-staging-us1",
		"ESDIC_NATS_USERNAME":     "testuser",
		"ESDIC_NATS_PASSWORD":     "testpass",
		"ESDIC_CLUSTER_ADDRESSES": "https://es1:9200,https://es2:9200",
	}
	for key, value := range envs {
		t.Setenv(key, value)
	}

	cfg := loadJSON(t, `{
		"platform": {"org": "platform-ops", "id": "json-deployment", "environment": "prod"}
	}`)

	assert.Equal(t, "env-deployment", cfg.Platform.ID)
	assert.Equal(t, "logging-staging-us1", cfg.Platform.Cluster)
	assert.Equal(t, "testuser", cfg.NATS.Username)
	assert.Equal(t, "testpass", cfg.NATS.Password)
	assert.Equal(t, []string{"https://es1:9200", "https://es2:9200"}, cfg.Cluster.Addresses)

	// Untouched keys keep their file values.
	assert.Equal(t, "prod", cfg.Platform.Environment)
}

func TestLoader_Validation(t *testing.T) {
	tests := map[string]struct {
		config    string
		wantError string
	}{
		"missing org": {
			config:    `{"platform": {"id": "deployment1"}}`,
			wantError: "platform.org is required",
		},
		"missing platform ID": {
			config:    `{"platform": {"org": "platform-ops"}}`,
			wantError: "platform.id is required",
		},
		"empty component factory name": {
			config: `{
				"platform": {"org": "platform-ops", "id": "test"},
				"components": {
					"test-component": {"type": "input", "name": "", "enabled": true}
				}
			}`,
			wantError: "component factory name cannot be empty",
		},
		"cluster api_key and username are exclusive": {
			config: `{
				"platform": {"org": "platform-ops", "id": "test"},
				"cluster": {
					"addresses": ["https://es1:9200"],
					"api_key": "abc",
					"username": "elastic"
				}
			}`,
			wantError: "api_key and username are mutually exclusive",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			loader := NewLoader()
			loader.EnableValidation(true)

			_, err := loader.LoadFile(writeConfigFile(t, "config.json", tt.config))
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

// A second layer overrides only the keys it names; everything else
// survives from the layer below.
func TestLoader_LayeredLoad(t *testing.T) {
	baseFile := writeConfigFile(t, "base.json", `{
		"platform": {
			"org": "platform-ops",
			"id": "ingest-calc-base",
			"cluster": "logging-prod-eu1",
			"environment": "dev"
		},
		"nats": {"urls": ["nats://localhost:4222"], "max_reconnects": -1}
	}`)
	prodFile := writeConfigFile(t, "prod.json", `{
		"platform": {"id": "ingest-calc-prod", "environment": "prod"},
		"nats": {"max_reconnects": 5, "username": "esdic"},
		"services": {"metrics": {"name": "metrics", "enabled": true}}
	}`)

	loader := NewLoader()
	loader.AddLayer(baseFile)
	loader.AddLayer(prodFile)

	merged, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "ingest-calc-prod", merged.Platform.ID)      // from prod layer
	assert.Equal(t, "prod", merged.Platform.Environment)         // from prod layer
	assert.Equal(t, "logging-prod-eu1", merged.Platform.Cluster) // from base layer

	assert.Equal(t, []string{"nats://localhost:4222"}, merged.NATS.URLs) // from base layer
	assert.Equal(t, 5, merged.NATS.MaxReconnects)                        // from prod layer
	assert.Equal(t, "esdic", merged.NATS.Username)                       // from prod layer

	assert.True(t, merged.Services["component-manager"].Enabled) // from defaults
	assert.True(t, merged.Services["metrics"].Enabled)           // from prod layer
}

func TestConfig_Save(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{Org: "platform-ops", ID: "save-test", Cluster: "logging-prod-eu1"},
		NATS:     NATSConfig{URLs: []string{"nats://server1:4222", "nats://server2:4222"}, MaxReconnects: 10},
		Services: types.ServiceConfigs{
			"component-manager": types.ServiceConfig{
				Name: "component-manager", Enabled: true, Config: json.RawMessage(`{}`),
			},
			"metrics": types.ServiceConfig{
				Name: "metrics", Enabled: true, Config: json.RawMessage(`{}`),
			},
		},
	}

	saveFile := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.SaveToFile(saveFile))

	loaded, err := NewLoader().LoadFile(saveFile)
	require.NoError(t, err)

	assert.Equal(t, cfg.Platform.ID, loaded.Platform.ID)
	assert.Equal(t, cfg.Platform.Cluster, loaded.Platform.Cluster)
	assert.Equal(t, cfg.NATS.URLs, loaded.NATS.URLs)
	assert.Equal(t, cfg.NATS.MaxReconnects, loaded.NATS.MaxReconnects)
	assert.Equal(t, cfg.Services["component-manager"].Enabled, loaded.Services["component-manager"].Enabled)
	assert.Equal(t, cfg.Services["metrics"].Enabled, loaded.Services["metrics"].Enabled)
}

func TestLoader_ExampleConfig(t *testing.T) {
	cfg, err := NewLoader().LoadFile("example_config.json")
	require.NoError(t, err)

	assert.Equal(t, "ingest-calc-demo", cfg.Platform.ID)
	assert.Equal(t, "logging-prod-eu1", cfg.Platform.Cluster)
	assert.True(t, cfg.Services["component-manager"].Enabled)
	assert.True(t, cfg.Services["metrics"].Enabled)

	assert.Equal(t, 5, len(cfg.Components), "should have 5 components configured")

	scan, exists := cfg.Components["cluster-scan"]
	assert.True(t, exists, "should have cluster-scan component")
	assert.Equal(t, types.ComponentType("input"), scan.Type)
	assert.Equal(t, "clusterscan", scan.Name)
	assert.True(t, scan.Enabled)

	classify, exists := cfg.Components["classify"]
	assert.True(t, exists, "should have classify component")
	assert.Equal(t, types.ComponentType("processor"), classify.Type)
	assert.Equal(t, "classify", classify.Name)
	assert.True(t, classify.Enabled)

	report, exists := cfg.Components["daily-report"]
	assert.True(t, exists, "should have daily-report component")
	assert.Equal(t, types.ComponentType("output"), report.Type)
	assert.Equal(t, "csvreport", report.Name)
	assert.True(t, report.Enabled)
}
