package component

import (
	"log/slog"

	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/security"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

// PlatformMeta aliases the shared identity type so component factories
// avoid importing types directly.
type PlatformMeta = types.PlatformMeta

// Dependencies bundles everything a component factory may need. The
// component manager builds one bundle and hands it to every factory;
// each component nil-checks the fields it actually uses.
type Dependencies struct {
	NATSClient *natsclient.Client
	// Cluster is nil in replay-only pipelines that never reach Elasticsearch.
	Cluster         escluster.API
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	Platform        PlatformMeta
	Security        security.Config
}

// GetLogger falls back to slog.Default when no logger was wired.
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent tags the logger with the component's name.
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
