package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/security"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// ComponentConfigs maps instance names (e.g. "clusterscan-prod") to their
// configs. An instance is only created when its factory is registered and
// its entry here has enabled=true.
type ComponentConfigs map[string]types.ComponentConfig

// Config is the full deployment configuration: who this deployment is
// (Platform), how it talks (NATS, Security), which cluster it watches
// (Cluster), and what runs inside it (Services, Components).
type Config struct {
	Version    string               `json:"version"` // Semantic version (e.g., "1.0.0")
	Platform   PlatformConfig       `json:"platform"`
	Security   security.Config      `json:"security,omitempty"` // Platform-wide security configuration
	NATS       NATSConfig           `json:"nats"`
	Cluster    escluster.Config     `json:"cluster,omitempty"` // Monitored cluster connection (empty for replay-only)
	Services   types.ServiceConfigs `json:"services"`          // Map of service configs
	Components ComponentConfigs     `json:"components"`        // Map of component instance configs
}

// SafeConfig guards a Config behind an RWMutex so the HTTP config API and
// the running services can read it while updates land.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg. A nil cfg becomes an empty Config.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy, so callers can read it without holding the lock.
func (sc *SafeConfig) Get() *Config { sc.mu.RLock(); defer sc.mu.RUnlock(); return sc.config.Clone() }

// Update swaps in cfg after validating it. Invalid configs never become
// visible to readers.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	sc.mu.Lock()
	sc.config = cfg
	sc.mu.Unlock()
	return nil
}

// Clone deep-copies the config through a JSON round trip.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// shallow copy is better than nothing
	shallow := func() *Config { copied := *c; return &copied }

	data, err := json.Marshal(c)
	if err != nil {
		return shallow()
	}
	var clone Config
	if json.Unmarshal(data, &clone) != nil {
		return shallow()
	}
	return &clone
}

// PlatformConfig names the deployment. Org and Cluster become NATS subject
// parts, so both are validated against the subject grammar.
type PlatformConfig struct {
	Org     string `json:"org"`               // Organization namespace (e.g., "platform-ops")
	ID      string `json:"id"`                // Deployment identifier (e.g., "ingest-calc-1")
	Cluster string `json:"cluster,omitempty"` // Default monitored cluster (e.g., "logging-prod-eu1")

	InstanceID  string `json:"instance_id,omitempty"` // e.g., "eu-west-1", "dev-local"
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
}

// NATSConfig holds message bus connection settings.
type NATSConfig struct {
	URLs          []string        `json:"urls,omitempty"`
	Username      string          `json:"username,omitempty"`
	Password      string          `json:"password,omitempty"`
	Token         string          `json:"token,omitempty"`
	MaxReconnects int             `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration   `json:"reconnect_wait,omitempty"`
	TLS           NATSTLSConfig   `json:"tls,omitempty"`
	JetStream     JetStreamConfig `json:"jetstream,omitempty"`
}

// NATSTLSConfig secures the NATS connection.
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CAFile   string `json:"ca_file,omitempty"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// JetStreamConfig tunes the persistence layer backing snapshots and replays.
type JetStreamConfig struct {
	Enabled           bool   `json:"enabled"`
	Domain            string `json:"domain,omitempty"`
	RetentionPolicy   string `json:"retention_policy,omitempty"`
	ReplicationFactor int    `json:"replication_factor,omitempty"`
	MaxMemory         int64  `json:"max_memory,omitempty"`
	MaxFileStore      int64  `json:"max_file_store,omitempty"`
}

// Validate checks the config and normalizes the org to lowercase.
func (c *Config) Validate() error {
	if c.Platform.Org == "" {
		return errors.New("platform.org is required")
	}

	c.Platform.Org = strings.ToLower(c.Platform.Org)

	if !isValidNATSSubjectPart(c.Platform.Org) {
		return fmt.Errorf("platform.org '%s' is not valid for NATS subjects (letters, digits, dots, dashes, underscores)",
			c.Platform.Org)
	}
	if c.Platform.ID == "" {
		return errors.New("platform.id is required")
	}

	if err := c.validateSecurity(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}

	// Replay-only pipelines (csvfile in, csvreport out) run without a
	// cluster connection, so an empty cluster block is fine.
	if len(c.Cluster.Addresses) > 0 {
		if err := c.Cluster.Validate(); err != nil {
			return err
		}
	}

	for instanceName, compCfg := range c.Components {
		if instanceName == "" {
			return errors.New("component instance name cannot be empty")
		}
		if err := compCfg.Validate(); err != nil {
			return fmt.Errorf("component %s: %w", instanceName, err)
		}
	}
	return nil
}

// isValidNATSSubjectPart reports whether s can appear inside a NATS subject.
// Letters, digits, dots, dashes, and underscores only.
func isValidNATSSubjectPart(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("-_.", r)
	})
}

// validateSecurity checks the TLS settings and verifies the named
// certificate files actually exist, so a bad path fails at startup rather
// than on the first request.
func (c *Config) validateSecurity() error {
	requireFile := func(what, path string) error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		return nil
	}

	if server := c.Security.TLS.Server; server.Enabled {
		if server.CertFile == "" {
			return errors.New("tls.server.cert_file is required when TLS is enabled")
		}
		if server.KeyFile == "" {
			return errors.New("tls.server.key_file is required when TLS is enabled")
		}
		if err := requireFile("tls.server.cert_file", server.CertFile); err != nil {
			return err
		}
		if err := requireFile("tls.server.key_file", server.KeyFile); err != nil {
			return err
		}
		if server.MinVersion != "" {
			if err := validateTLSVersion(server.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}
	}

	for i, caFile := range c.Security.TLS.Client.CAFiles {
		if err := requireFile(fmt.Sprintf("tls.client.ca_files[%d]", i), caFile); err != nil {
			return err
		}
	}

	if c.Security.TLS.Client.InsecureSkipVerify {
		_, _ = fmt.Fprintln(os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true). This should only be used in development/testing!")
	}

	if v := c.Security.TLS.Client.MinVersion; v != "" {
		if err := validateTLSVersion(v); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}
	return nil
}

func validateTLSVersion(version string) error {
	if version != "1.2" && version != "1.3" {
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
	return nil
}

// Loader builds a Config from defaults, file layers, and ESDIC_* environment
// overrides, in that precedence order.
type Loader struct {
	envPrefix  string
	layers     []string
	validation bool
}

func NewLoader() *Loader {
	return &Loader{envPrefix: "ESDIC"}
}

// AddLayer appends a file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) { l.layers = append(l.layers, path) }

// EnableValidation controls whether Load runs Config.Validate on the result.
func (l *Loader) EnableValidation(enable bool) { l.validation = enable }

// LoadFile replaces the layer list with a single file and loads it.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, all layers in order, and environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := l.getDefaults()
	for _, path := range l.layers {
		layer, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, layer)
	}
	l.applyEnvOverrides(cfg)

	if !l.validation {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getDefaults is the base layer: a local NATS server, the component manager
// on, and metrics dormant until enabled.
func (l *Loader) getDefaults() *Config {
	return &Config{
		Platform: PlatformConfig{
			Environment: "dev",
		},
		NATS: NATSConfig{
			URLs: []string{"nats://localhost:4222"}, MaxReconnects: -1,
			ReconnectWait: 2 * time.Second, JetStream: JetStreamConfig{Enabled: true},
		},
		Services: types.ServiceConfigs{
			"component-manager": types.ServiceConfig{
				Name:    "component-manager",
				Enabled: true,
				Config:  json.RawMessage(`{}`),
			},
			"metrics": types.ServiceConfig{
				Name:    "metrics",
				Enabled: false, // dormant until enabled
				Config:  json.RawMessage(`{}`),
			},
		},
	}
}

// loadRawJSON loads a configuration layer as a map. Layers may be JSON or
// YAML; the extension decides the decoder.
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var rawConfig map[string]any

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("invalid YAML structure: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &rawConfig); err != nil {
			return nil, err
		}
	}

	l.parseDurations(rawConfig)

	return rawConfig, nil
}

// mergeFromMap overlays a raw layer onto base. Working in map form means
// only keys present in the layer override, so a layer that sets one NATS
// field keeps the rest of the defaults.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	// Round-trip through map form; any marshal hiccup keeps the base.
	roundTrip := func(v any, dst any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		return json.Unmarshal(data, dst) == nil
	}

	var baseMap map[string]any
	if !roundTrip(base, &baseMap) {
		return base
	}

	var merged Config
	if !roundTrip(l.deepMergeMaps(baseMap, override), &merged) {
		return base
	}
	return &merged
}

// deepMergeMaps merges override into base recursively. Nested maps merge;
// everything else, including arrays, is replaced wholesale.
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := maps.Clone(base)
	if result == nil {
		result = make(map[string]any)
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		baseMap, baseOk := base[k].(map[string]any)
		overrideMap, overrideOk := v.(map[string]any)
		if baseOk && overrideOk {
			result[k] = l.deepMergeMaps(baseMap, overrideMap)
			continue
		}
		result[k] = v
	}
	return result
}

// parseDurations rewrites duration strings like "5s" into nanoseconds so
// the later unmarshal into time.Duration fields succeeds.
func (l *Loader) parseDurations(data map[string]any) {
	nats, ok := data["nats"].(map[string]any)
	if !ok {
		return
	}
	wait, ok := nats["reconnect_wait"].(string)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(wait); err == nil {
		nats["reconnect_wait"] = d.Nanoseconds()
	}
}

// applyEnvOverrides lets deployment tooling inject identity and credentials
// without editing config files.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if val := os.Getenv(l.envPrefix + key); val != "" {
			*dst = val
		}
	}
	list := func(key string, dst *[]string) {
		if val := os.Getenv(l.envPrefix + key); val != "" {
			*dst = strings.Split(val, ",")
		}
	}

	str("_PLATFORM_ID", &cfg.Platform.ID)
	str("_PLATFORM_CLUSTER", &cfg.Platform.Cluster)
	str("_PLATFORM_ENVIRONMENT", &cfg.Platform.Environment)

	list("_NATS_URLS", &cfg.NATS.URLs)
	str("_NATS_USERNAME", &cfg.NATS.Username)
	str("_NATS_PASSWORD", &cfg.NATS.Password)
	str("_NATS_TOKEN", &cfg.NATS.Token)

	list("_CLUSTER_ADDRESSES", &cfg.Cluster.Addresses)
	str("_CLUSTER_API_KEY", &cfg.Cluster.APIKey)
	str("_CLUSTER_USERNAME", &cfg.Cluster.Username)
	str("_CLUSTER_PASSWORD", &cfg.Cluster.Password)
}

// SaveToFile writes the config as indented JSON through the path-validated
// writer.
func (c *Config) SaveToFile(path string) error {
	data, marshalErr := json.MarshalIndent(c, "", "  ")
	if marshalErr != nil {
		return marshalErr
	}
	return safeWriteFile(path, data)
}

// GetOrg returns the organization namespace.
func (c *Config) GetOrg() string { return c.Platform.Org }

// GetPlatform returns the deployment identifier, preferring the federation
// instance ID when set.
func (c *Config) GetPlatform() string {
	if id := c.Platform.InstanceID; id != "" {
		return id
	}
	return c.Platform.ID
}

// String renders the config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// CompareVersions orders two semver strings: -1 when v1 is older, 0 when
// equal, 1 when newer. Either side being malformed is an error.
func CompareVersions(v1, v2 string) (int, error) {
	parts1, err := parseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v1, err)
	}

	parts2, err := parseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v2, err)
	}

	for i := range parts1 {
		switch {
		case parts1[i] > parts2[i]:
			return 1, nil
		case parts1[i] < parts2[i]:
			return -1, nil
		}
	}
	return 0, nil
}

// parseSemVer splits "1.2.3" (optionally "v"-prefixed) into its parts.
func parseSemVer(version string) ([3]int, error) {
	var nums [3]int
	if version == "" {
		return nums, errors.New("version cannot be empty")
	}

	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) != 3 {
		return nums, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}

	names := [3]string{"major", "minor", "patch"}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nums, fmt.Errorf("invalid %s version '%s': %w", names[i], part, err)
		}
		nums[i] = n
	}
	return nums, nil
}

// UnmarshalJSON accepts reconnect_wait as either a Go duration string or a
// nanosecond count, matching what parseDurations and SaveToFile produce.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	// The shallower reconnect_wait field shadows the NATSConfig one, so
	// the polymorphic value can be decoded separately.
	aux := &struct {
		NATS struct {
			NATSConfig
			ReconnectWait any `json:"reconnect_wait"`
		} `json:"nats"`
		*Alias
	}{Alias: (*Alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.NATS = aux.NATS.NATSConfig

	switch v := aux.NATS.ReconnectWait.(type) {
	case float64:
		c.NATS.ReconnectWait = time.Duration(v)
	case string:
		d, parseErr := time.ParseDuration(v)
		if parseErr != nil {
			return parseErr
		}
		c.NATS.ReconnectWait = d
	}
	return nil
}
