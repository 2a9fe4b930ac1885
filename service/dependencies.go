package service

import (
	"encoding/json"
	"log/slog"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/config"
	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// Dependencies is the single bundle every service constructor receives.
// Fields may be nil; a replay-only run has no cluster, and isolated tests
// wire only what they exercise.
type Dependencies struct {
	Logger   *slog.Logger
	Platform types.PlatformMeta

	NATSClient *natsclient.Client
	Cluster    escluster.API // monitored Elasticsearch cluster, nil for replay-only runs

	MetricsRegistry   *metric.MetricsRegistry
	Manager           *config.Manager     // centralized configuration management
	ComponentRegistry *component.Registry // used by the ComponentManager service
	ServiceManager    *Manager            // for reaching sibling services
}

// Constructor is the uniform service constructor signature. Each service
// parses its own raw JSON config block.
type Constructor func(rawConfig json.RawMessage, deps *Dependencies) (Service, error)
