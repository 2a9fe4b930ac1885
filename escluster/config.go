package escluster

import (
	"fmt"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/pkg/security"
)

// Config holds connection settings for the monitored cluster. It lives in
// the platform configuration under "cluster" and is env-overridable like
// every other section (ESDIC_CLUSTER_*).
type Config struct {
	// Addresses lists cluster node URLs, e.g. https://es1.internal:9200.
	Addresses []string `json:"addresses"`

	// APIKey is the base64 API key credential. Preferred over basic auth.
	APIKey string `json:"api_key,omitempty"`

	// Username/Password basic auth, used only when APIKey is empty.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// RequestTimeout bounds each cluster call. Go duration string.
	RequestTimeout string `json:"request_timeout,omitempty"`

	// CacheTTL controls how long datastream and ILM lookups are memoized.
	CacheTTL string `json:"cache_ttl,omitempty"`

	// TLS client settings (CA bundle, min version, skip-verify for dev).
	TLS security.ClientTLSConfig `json:"tls,omitempty"`
}

// DefaultConfig returns production-safe defaults.
func DefaultConfig() Config {
	return Config{
		Addresses:      []string{"https://localhost:9200"},
		RequestTimeout: "30s",
		CacheTTL:       "5m",
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("cluster: at least one address is required")
	}
	for _, addr := range c.Addresses {
		if addr == "" {
			return fmt.Errorf("cluster: empty address")
		}
	}
	if c.APIKey != "" && c.Username != "" {
		return fmt.Errorf("cluster: api_key and username are mutually exclusive")
	}
	if _, err := c.requestTimeout(); err != nil {
		return fmt.Errorf("cluster: invalid request_timeout: %w", err)
	}
	if _, err := c.cacheTTL(); err != nil {
		return fmt.Errorf("cluster: invalid cache_ttl: %w", err)
	}
	return nil
}

func (c *Config) requestTimeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(c.RequestTimeout)
}

func (c *Config) cacheTTL() (time.Duration, error) {
	if c.CacheTTL == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(c.CacheTTL)
}
