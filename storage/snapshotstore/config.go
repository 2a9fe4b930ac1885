package snapshotstore

import (
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/cache"
)

// Config holds configuration for the snapshot storage component.
type Config struct {
	// Ports defines input/output port configuration
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration for inputs and outputs,category:basic"`

	// BucketName is the NATS JetStream object store bucket holding snapshots
	BucketName string `json:"bucket_name" schema:"type:string,description:NATS object store bucket holding scan snapshots,default:SNAPSHOTS,category:basic"`

	// DataCache configures the in-memory read cache for retrieved snapshots
	DataCache cache.Config `json:"data_cache" schema:"type:object,description:Read cache for retrieved snapshots,category:performance"`

	// StaleAfter evicts accumulated scans that never saw a completion
	// marker (crashed scanner, dropped marker).
	StaleAfter string `json:"stale_after" schema:"type:string,description:Evict scans with no completion marker after this duration,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.BucketName == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "bucket_name cannot be empty")
	}
	if c.StaleAfter != "" {
		if _, err := time.ParseDuration(c.StaleAfter); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "parse stale_after")
		}
	}
	if err := c.DataCache.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "validate data_cache")
	}
	return nil
}

// DefaultConfig returns the default configuration for the snapshot store.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "classified",
					Type:        "nats",
					Subject:     "inventory.classified.v1",
					Interface:   "inventory.classified.v1",
					Required:    true,
					Description: "Classified inventory rows accumulated into snapshots",
				},
				{
					Name:        "markers",
					Type:        "nats",
					Subject:     "inventory.scanmarker.v1",
					Interface:   "inventory.scanmarker.v1",
					Required:    true,
					Description: "Scan lifecycle markers triggering snapshot persistence",
				},
				{
					Name:        "api",
					Type:        "nats-request",
					Subject:     "storage.snapshots.api",
					Required:    false,
					Description: "Request/Response API for snapshot retrieval and listing",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "events",
					Type:        "nats",
					Subject:     "storage.snapshots.events",
					Required:    false,
					Description: "Storage events (snapshot stored, deleted)",
				},
			},
		},
		BucketName: "SNAPSHOTS",
		DataCache: cache.Config{
			Enabled:         true,
			Strategy:        cache.StrategyLRU,
			MaxSize:         128,
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		StaleAfter: "1h",
	}
}
