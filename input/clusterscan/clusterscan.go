package clusterscan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/message"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/retry"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/timestamp"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/worker"
)

// Config holds configuration for the cluster scanner input
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// ScanInterval is how often a full scan runs (Go duration). "0" runs
	// one scan and stops.
	ScanInterval string `json:"scan_interval" schema:"type:string,description:Interval between scans (0 runs once),category:basic"`

	// PacingDelay is the sleep between per-index submissions so a scan
	// never hammers the cluster.
	PacingDelay string `json:"pacing_delay" schema:"type:string,description:Delay between per-index stat fetches,category:advanced"`

	// StatsWorkers is the number of concurrent per-index stats fetches.
	StatsWorkers int `json:"stats_workers" schema:"type:int,description:Concurrent per-index stats fetches,category:advanced"`

	// QueueSize bounds the pending per-index work queue.
	QueueSize int `json:"queue_size" schema:"type:int,description:Pending index queue size,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.ScanInterval != "" {
		if _, err := time.ParseDuration(c.ScanInterval); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "parse scan_interval")
		}
	}
	if c.PacingDelay != "" {
		if _, err := time.ParseDuration(c.PacingDelay); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "parse pacing_delay")
		}
	}
	if c.StatsWorkers < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"stats_workers cannot be negative")
	}
	if c.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"queue_size cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the cluster scanner
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "rows",
					Type:        "nats",
					Subject:     "inventory.index.v1",
					Interface:   "inventory.index.v1",
					Required:    true,
					Description: "Per-index inventory rows",
				},
				{
					Name:        "markers",
					Type:        "nats",
					Subject:     "inventory.scanmarker.v1",
					Interface:   "inventory.scanmarker.v1",
					Required:    false,
					Description: "Scan lifecycle markers",
				},
			},
		},
		ScanInterval: "24h",
		PacingDelay:  "100ms",
		StatsWorkers: 4,
		QueueSize:    1024,
	}
}

// clusterscanSchema defines the configuration schema for the cluster scanner
var clusterscanSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Input scans the monitored cluster and publishes one inventory row per
// index. Per-index fetches fan out through a worker pool; the submit side
// paces itself so the cluster sees a steady trickle, not a burst.
type Input struct {
	name          string
	cluster       string
	rowSubject    string
	markerSubject string
	scanInterval  time.Duration
	pacingDelay   time.Duration
	statsWorkers  int
	queueSize     int

	api         escluster.API
	natsClient  *natsclient.Client
	logger      *slog.Logger
	retryConfig retry.Config

	pool *worker.Pool[indexTask]

	// Lifecycle management
	shutdown    chan struct{}
	done        chan struct{}
	running     atomic.Bool
	startTime   time.Time
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	// Per-scan completion tracking
	pending atomic.Int64

	// Metrics
	rowsPublished atomic.Int64
	scansTotal    atomic.Int64
	errorCount    atomic.Int64
	lastActivity  atomic.Value // stores time.Time

	metrics *scanMetrics
}

// indexTask is one unit of per-index work: fetch stats, derive the row,
// publish it.
type indexTask struct {
	ctx    context.Context
	index  string
	scanID string
}

// Ensure Input implements all required interfaces
var _ component.Discoverable = (*Input)(nil)
var _ component.LifecycleComponent = (*Input)(nil)

// NewInput creates a cluster scanner input from configuration
func NewInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "ClusterScanInput", "NewInput", "config unmarshal")
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
		if userConfig.ScanInterval != "" {
			cfg.ScanInterval = userConfig.ScanInterval
		}
		if userConfig.PacingDelay != "" {
			cfg.PacingDelay = userConfig.PacingDelay
		}
		if userConfig.StatsWorkers > 0 {
			cfg.StatsWorkers = userConfig.StatsWorkers
		}
		if userConfig.QueueSize > 0 {
			cfg.QueueSize = userConfig.QueueSize
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var rowSubject, markerSubject string
	for _, output := range cfg.Ports.Outputs {
		if output.Type != "nats" {
			continue
		}
		switch output.Name {
		case "markers":
			markerSubject = output.Subject
		default:
			if rowSubject == "" {
				rowSubject = output.Subject
			}
		}
	}
	if rowSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"ClusterScanInput", "NewInput", "no row output subject configured")
	}

	scanInterval, _ := time.ParseDuration(cfg.ScanInterval)
	pacingDelay, _ := time.ParseDuration(cfg.PacingDelay)

	metrics, err := newScanMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize clusterscan metrics", "error", err)
		metrics = nil
	}

	in := &Input{
		name:          "clusterscan-input",
		cluster:       deps.Platform.Cluster,
		rowSubject:    rowSubject,
		markerSubject: markerSubject,
		scanInterval:  scanInterval,
		pacingDelay:   pacingDelay,
		statsWorkers:  cfg.StatsWorkers,
		queueSize:     cfg.QueueSize,
		api:           deps.Cluster,
		natsClient:    deps.NATSClient,
		logger:        deps.GetLoggerWithComponent("clusterscan-input"),
		retryConfig:   retry.DefaultConfig(),
		metrics:       metrics,
	}
	in.lastActivity.Store(time.Time{})
	return in, nil
}

// Initialize validates runtime dependencies
func (in *Input) Initialize() error {
	if in.api == nil {
		return errors.WrapInvalid(fmt.Errorf("nil cluster boundary"),
			"ClusterScanInput", "Initialize", "cluster dependency validation")
	}
	if in.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"ClusterScanInput", "Initialize", "NATS client validation")
	}
	return nil
}

// Start launches the scan loop
func (in *Input) Start(ctx context.Context) error {
	in.lifecycleMu.Lock()
	defer in.lifecycleMu.Unlock()

	if in.running.Load() {
		return nil // Already running, idempotent
	}
	if in.api == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "ClusterScanInput", "Start", "cluster boundary required")
	}
	if in.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "ClusterScanInput", "Start", "NATS client required")
	}

	in.shutdown = make(chan struct{})
	in.done = make(chan struct{})

	in.pool = worker.NewPool(in.statsWorkers, in.queueSize, in.processIndex)
	if err := in.pool.Start(ctx); err != nil {
		return errors.WrapTransient(err, "ClusterScanInput", "Start", "start worker pool")
	}

	in.running.Store(true)
	in.startTime = time.Now()

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		defer close(in.done)
		in.scanLoop(ctx)
	}()

	return nil
}

// Stop gracefully stops the scanner
func (in *Input) Stop(timeout time.Duration) error {
	in.lifecycleMu.Lock()
	defer in.lifecycleMu.Unlock()

	if !in.running.Load() {
		return nil
	}
	in.running.Store(false)
	close(in.shutdown)

	select {
	case <-in.done:
		// Scan loop finished
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"ClusterScanInput", "Stop", "graceful shutdown")
	}

	if in.pool != nil {
		if err := in.pool.Stop(timeout); err != nil {
			return errors.WrapTransient(err, "ClusterScanInput", "Stop", "stop worker pool")
		}
	}
	return nil
}

// scanLoop runs scans at the configured interval; interval 0 runs once.
func (in *Input) scanLoop(ctx context.Context) {
	for {
		in.runScan(ctx)

		if in.scanInterval <= 0 {
			in.logger.Info("Single-shot scan finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		case <-time.After(in.scanInterval):
		}
	}
}

// runScan lists indices and fans per-index work out to the pool, pacing
// submissions. Completion is the pending counter draining to zero.
func (in *Input) runScan(ctx context.Context) {
	scanID := uuid.NewString()[:8]
	logger := in.logger.With("scan_id", scanID)
	logger.Info("Starting cluster scan", "cluster", in.cluster)

	var indices []string
	err := retry.Do(ctx, in.retryConfig, func() error {
		var listErr error
		indices, listErr = in.api.ListIndices(ctx)
		return listErr
	})
	if err != nil {
		in.errorCount.Add(1)
		in.metrics.recordError("list_indices")
		logger.Error("Failed to list indices", "error", err)
		return
	}

	in.publishMarker(ctx, scanID, false, 0)
	in.metrics.recordScanStart(len(indices))

	submitted := 0
	for _, index := range indices {
		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		default:
		}

		in.pending.Add(1)
		if err := in.pool.Submit(indexTask{ctx: ctx, index: index, scanID: scanID}); err != nil {
			in.pending.Add(-1)
			in.errorCount.Add(1)
			in.metrics.recordError("submit")
			logger.Warn("Failed to submit index for scanning", "index", index, "error", err)
			continue
		}
		submitted++

		if in.pacingDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-in.shutdown:
				return
			case <-time.After(in.pacingDelay):
			}
		}
	}

	in.waitForDrain(ctx)
	in.scansTotal.Add(1)
	in.publishMarker(ctx, scanID, true, submitted)
	in.metrics.recordScanComplete()
	logger.Info("Cluster scan complete", "indices", submitted)
}

// waitForDrain blocks until all submitted index tasks finished.
func (in *Input) waitForDrain(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for in.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		case <-ticker.C:
		}
	}
}

// processIndex is the pool processor: fetch stats and timestamps, derive
// the row, publish it.
func (in *Input) processIndex(ctx context.Context, task indexTask) error {
	defer in.pending.Add(-1)

	row, err := in.buildRow(task.ctx, task.index, task.scanID)
	if err != nil {
		in.errorCount.Add(1)
		in.metrics.recordError("stats")
		in.logger.Warn("Skipping index after stats failure",
			"index", task.index, "scan_id", task.scanID, "error", err)
		return err
	}

	if err := in.publishRow(task.ctx, row); err != nil {
		in.errorCount.Add(1)
		in.metrics.recordError("publish")
		in.logger.Error("Failed to publish row",
			"index", task.index, "scan_id", task.scanID, "error", err)
		return err
	}

	in.rowsPublished.Add(1)
	in.metrics.recordRow()
	in.lastActivity.Store(time.Now())
	_ = ctx // task carries the scan context; the pool context only bounds worker lifetime
	return nil
}

// buildRow assembles one inventory row from the cluster boundary.
func (in *Input) buildRow(ctx context.Context, index, scanID string) (*message.IndexRowPayload, error) {
	var stats escluster.IndexStats
	err := retry.Do(ctx, in.retryConfig, func() error {
		var statsErr error
		stats, statsErr = in.api.IndexStats(ctx, index)
		if errors.IsInvalid(statsErr) {
			return retry.NonRetryable(statsErr)
		}
		return statsErr
	})
	if err != nil {
		return nil, err
	}

	tsRange, err := in.api.FirstLastTimestamps(ctx, index)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	active, err := in.api.ActiveBetween(ctx, index, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		// Activity is advisory; a failed probe degrades to inactive.
		in.logger.Debug("Activity probe failed", "index", index, "error", err)
		active = false
	}

	row := &message.IndexRowPayload{
		Cluster:          in.cluster,
		IndexName:        index,
		SizeBytes:        stats.SizeBytes,
		PrimarySizeBytes: stats.PrimarySizeBytes,
		DocsCount:        stats.DocsCount,
		DailyIngestMB:    dailyIngestMB(stats.PrimarySizeBytes, tsRange.DurationHours()),
		ActiveToday:      active,
		ScanID:           scanID,
	}
	// Zero times (no @timestamp field) map to 0, meaning "absent".
	row.FirstDocMs = timestamp.ToUnixMs(tsRange.First)
	row.LastDocMs = timestamp.ToUnixMs(tsRange.Last)
	return row, nil
}

// dailyIngestMB scales the primary store size to a 24-hour window:
// (bytes / 1MiB) * (24 / durationHours), rounded to two decimals.
// A zero duration (no timestamps, or first == last) yields 0.
func dailyIngestMB(sizeBytes int64, durationHours float64) float64 {
	if durationHours == 0 {
		return 0
	}
	mb := float64(sizeBytes) / (1024 * 1024) * (24 / durationHours)
	return math.Round(mb*100) / 100
}

// publishRow wraps a row in the message envelope and publishes with retry.
func (in *Input) publishRow(ctx context.Context, row *message.IndexRowPayload) error {
	msg := message.NewBaseMessage(message.IndexRowMessage, row, in.name)
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "ClusterScanInput", "publishRow", "marshal row")
	}
	return retry.Do(ctx, in.retryConfig, func() error {
		return in.natsClient.Publish(ctx, in.rowSubject, data)
	})
}

// publishMarker emits a scan lifecycle marker; failures log but never stop
// the scan.
func (in *Input) publishMarker(ctx context.Context, scanID string, complete bool, count int) {
	if in.markerSubject == "" {
		return
	}
	marker := &message.ScanMarkerPayload{
		Cluster:    in.cluster,
		ScanID:     scanID,
		Complete:   complete,
		IndexCount: count,
	}
	msg := message.NewBaseMessage(message.ScanMarkerMessage, marker, in.name)
	data, err := json.Marshal(msg)
	if err != nil {
		in.logger.Error("Failed to marshal scan marker", "error", err)
		return
	}
	if err := in.natsClient.Publish(ctx, in.markerSubject, data); err != nil {
		in.logger.Error("Failed to publish scan marker", "scan_id", scanID, "error", err)
	}
}

// Discoverable interface implementation

// Meta returns the component metadata
func (in *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        in.name,
		Type:        "input",
		Description: fmt.Sprintf("Cluster scanner for %s publishing to %s", in.cluster, in.rowSubject),
		Version:     "1.0.0",
	}
}

// InputPorts returns no ports: the scanner pulls from the cluster boundary
func (in *Input) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns the NATS subjects the scanner publishes to
func (in *Input) OutputPorts() []component.Port {
	ports := []component.Port{
		{
			Name:      "rows",
			Direction: component.DirectionOutput,
			Required:  true,
			Config: component.NATSPort{
				Subject: in.rowSubject,
				Interface: &component.InterfaceContract{
					Type:    "inventory.index.v1",
					Version: "v1",
				},
			},
		},
	}
	if in.markerSubject != "" {
		ports = append(ports, component.Port{
			Name:      "markers",
			Direction: component.DirectionOutput,
			Required:  false,
			Config: component.NATSPort{
				Subject: in.markerSubject,
				Interface: &component.InterfaceContract{
					Type:    "inventory.scanmarker.v1",
					Version: "v1",
				},
			},
		})
	}
	return ports
}

// ConfigSchema returns the configuration schema for this component
func (in *Input) ConfigSchema() component.ConfigSchema {
	return clusterscanSchema
}

// Health returns the current health status of the component
func (in *Input) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    in.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(in.errorCount.Load()),
		Uptime:     time.Since(in.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (in *Input) DataFlow() component.FlowMetrics {
	published := in.rowsPublished.Load()
	errorCount := in.errorCount.Load()
	lastActivity, _ := in.lastActivity.Load().(time.Time)

	var messagesPerSecond float64
	if uptime := time.Since(in.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(published) / uptime
	}

	var errorRate float64
	if published > 0 {
		errorRate = float64(errorCount) / float64(published)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Register registers the cluster scanner input with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "clusterscan",
		Factory:     NewInput,
		Schema:      clusterscanSchema,
		Type:        "input",
		Protocol:    "https",
		Domain:      "inventory",
		Description: "Scans the monitored cluster for index storage statistics",
		Version:     "1.0.0",
	})
}
