// Package csvfile provides the CSV replay input: it reads a prior scan
// export and republishes its rows as inventory messages.
package csvfile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/message"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/retry"
)

// Column names expected in the export header. Lookup is by name, never by
// position: exports from different tool versions order columns differently.
const (
	colIndex          = "index"
	colFirstTimestamp = "first_timestamp"
	colLastTimestamp  = "last_timestamp"
	colDailyIngestMB  = "daily_ingest_mb"
)

// Config holds configuration for the CSV replay input
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// Path to the export file. Required.
	Path string `json:"path" schema:"type:string,description:Path to the CSV export,category:basic"`

	// Delimiter between fields. Exports use semicolons so that MB figures
	// with comma decimals survive.
	Delimiter string `json:"delimiter" schema:"type:string,description:CSV field delimiter,category:advanced"`

	// Cluster overrides the cluster name. Empty derives it from the
	// filename: basename up to the first dot.
	Cluster string `json:"cluster" schema:"type:string,description:Cluster name override,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if len(c.Delimiter) > 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"delimiter must be a single character")
	}
	return nil
}

// DefaultConfig returns default configuration for the CSV replay input
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "export_file",
					Type:        "file",
					Subject:     "daily_ingest_report.csv",
					Required:    true,
					Description: "CSV export from a prior scan",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "rows",
					Type:        "nats",
					Subject:     "inventory.index.v1",
					Interface:   "inventory.index.v1",
					Required:    true,
					Description: "Replayed inventory rows",
				},
				{
					Name:        "markers",
					Type:        "nats",
					Subject:     "inventory.scanmarker.v1",
					Interface:   "inventory.scanmarker.v1",
					Required:    false,
					Description: "Scan lifecycle markers bracketing the replay",
				},
			},
		},
		Delimiter: ";",
	}
}

// csvfileSchema defines the configuration schema for the CSV replay input
var csvfileSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Input replays a semicolon-delimited scan export as inventory rows.
type Input struct {
	name          string
	path          string
	delimiter     rune
	cluster       string
	rowSubject    string
	markerSubject string
	natsClient    *natsclient.Client
	logger        *slog.Logger
	retryConfig   retry.Config

	// Lifecycle management
	shutdown    chan struct{}
	done        chan struct{}
	running     atomic.Bool
	startTime   time.Time
	lifecycleMu sync.Mutex
	mu          sync.RWMutex
	wg          sync.WaitGroup

	// Metrics
	rowsPublished atomic.Int64
	rowsSkipped   atomic.Int64
	errorCount    atomic.Int64
	lastActivity  atomic.Value // stores time.Time

	metrics *csvfileMetrics
}

// Ensure Input implements all required interfaces
var _ component.Discoverable = (*Input)(nil)
var _ component.LifecycleComponent = (*Input)(nil)

// clusterFromPath derives the cluster name from an export filename:
// the basename up to the first dot ("logging-prod-eu1.daily.csv" names
// cluster "logging-prod-eu1").
func clusterFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// NewInput creates a CSV replay input from configuration
func NewInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "CSVFileInput", "NewInput", "config unmarshal")
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
		if userConfig.Path != "" {
			cfg.Path = userConfig.Path
		}
		if userConfig.Delimiter != "" {
			cfg.Delimiter = userConfig.Delimiter
		}
		if userConfig.Cluster != "" {
			cfg.Cluster = userConfig.Cluster
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
			"CSVFileInput", "NewInput", "no row output subject configured")
	}

	cluster := cfg.Cluster
	if cluster == "" {
		cluster = clusterFromPath(cfg.Path)
	}

	delimiter := ';'
	if cfg.Delimiter != "" {
		delimiter = rune(cfg.Delimiter[0])
	}

	metrics, err := newCSVFileMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize csvfile metrics", "error", err)
		metrics = nil
	}

	in := &Input{
		name:          "csvfile-input",
		path:          cfg.Path,
		delimiter:     delimiter,
		cluster:       cluster,
		rowSubject:    rowSubject,
		markerSubject: markerSubject,
		natsClient:    deps.NATSClient,
		logger:        deps.GetLoggerWithComponent("csvfile-input"),
		retryConfig:   retry.DefaultConfig(),
		metrics:       metrics,
	}
	in.lastActivity.Store(time.Time{})
	return in, nil
}

// Initialize verifies the export file exists and is readable
func (in *Input) Initialize() error {
	info, err := os.Stat(in.path)
	if err != nil {
		return errors.WrapInvalid(err, "CSVFileInput", "Initialize", "stat export file")
	}
	if info.IsDir() {
		return errors.WrapInvalid(
			fmt.Errorf("%s is a directory", in.path),
			"CSVFileInput", "Initialize", "export file check")
	}
	if in.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"CSVFileInput", "Initialize", "NATS client validation")
	}
	return nil
}

// Start replays the export file once in a background goroutine
func (in *Input) Start(ctx context.Context) error {
	in.lifecycleMu.Lock()
	defer in.lifecycleMu.Unlock()

	if in.running.Load() {
		return nil // Already running, idempotent
	}
	if in.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "CSVFileInput", "Start", "NATS client required")
	}

	in.shutdown = make(chan struct{})
	in.done = make(chan struct{})
	in.running.Store(true)
	in.startTime = time.Now()

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		defer close(in.done)
		if err := in.replay(ctx); err != nil {
			in.errorCount.Add(1)
			in.logger.Error("Replay failed", "path", in.path, "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the replay
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
		// Replay goroutine finished
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"CSVFileInput", "Stop", "graceful shutdown")
	}
	return nil
}

// replay reads the export and publishes one inventory row per data line.
func (in *Input) replay(ctx context.Context) error {
	file, err := os.Open(in.path)
	if err != nil {
		return errors.WrapInvalid(err, "CSVFileInput", "replay", "open export file")
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.Comma = in.delimiter
	reader.FieldsPerRecord = -1 // tolerate ragged rows, skip them below

	header, err := reader.Read()
	if err != nil {
		return errors.WrapInvalid(err, "CSVFileInput", "replay", "read header")
	}

	cols, err := headerColumns(header)
	if err != nil {
		return err
	}

	scanID := uuid.NewString()[:8]
	in.publishMarker(ctx, scanID, false, 0)

	var published int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-in.shutdown:
			return nil
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			in.rowsSkipped.Add(1)
			in.metrics.recordSkip("malformed")
			in.logger.Warn("Skipping malformed row", "error", err)
			continue
		}

		row, err := in.parseRow(record, cols, scanID)
		if err != nil {
			in.rowsSkipped.Add(1)
			in.metrics.recordSkip("invalid")
			in.logger.Warn("Skipping invalid row", "error", err)
			continue
		}

		if err := in.publishRow(ctx, row); err != nil {
			in.errorCount.Add(1)
			in.metrics.recordError("publish")
			in.logger.Error("Failed to publish row", "index", row.IndexName, "error", err)
			continue
		}
		published++
		in.rowsPublished.Add(1)
		in.metrics.recordRow()
		in.lastActivity.Store(time.Now())
	}

	in.publishMarker(ctx, scanID, true, published)
	in.logger.Info("Replay complete",
		"path", in.path,
		"cluster", in.cluster,
		"rows_published", published,
		"rows_skipped", in.rowsSkipped.Load())
	return nil
}

// headerColumns resolves required and optional column positions by name.
func headerColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	if _, ok := cols[colIndex]; !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrMissingColumn, colIndex),
			"CSVFileInput", "headerColumns", "header validation")
	}
	return cols, nil
}

// parseRow converts one CSV record into an inventory row.
func (in *Input) parseRow(record []string, cols map[string]int, scanID string) (*message.IndexRowPayload, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	indexName := field(colIndex)
	if indexName == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"CSVFileInput", "parseRow", "empty index name")
	}

	row := &message.IndexRowPayload{
		Cluster:   in.cluster,
		IndexName: indexName,
		ScanID:    scanID,
	}

	// Exports write MB figures with comma decimals (locale artifact of the
	// original report writer).
	if raw := field(colDailyIngestMB); raw != "" {
		mb, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return nil, errors.WrapInvalid(err, "CSVFileInput", "parseRow", "parse daily_ingest_mb")
		}
		row.DailyIngestMB = mb
		row.SizeBytes = int64(mb * 1024 * 1024)
	}

	if ts, ok := parseTimestamp(field(colFirstTimestamp)); ok {
		row.FirstDocMs = ts.UnixMilli()
	}
	if ts, ok := parseTimestamp(field(colLastTimestamp)); ok {
		row.LastDocMs = ts.UnixMilli()
	}

	if err := row.Validate(); err != nil {
		return nil, err
	}
	return row, nil
}

// parseTimestamp parses an export timestamp. Exports write "N/A" for
// indices without the timestamp field.
func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" || raw == "N/A" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// publishRow wraps a row in the message envelope and publishes with retry.
func (in *Input) publishRow(ctx context.Context, row *message.IndexRowPayload) error {
	msg := message.NewBaseMessage(message.IndexRowMessage, row, in.name)
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "CSVFileInput", "publishRow", "marshal row")
	}
	return retry.Do(ctx, in.retryConfig, func() error {
		return in.natsClient.Publish(ctx, in.rowSubject, data)
	})
}

// publishMarker emits a scan lifecycle marker; failures log but never stop
// the replay.
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
		in.logger.Error("Failed to publish scan marker", "error", err)
	}
}

// Discoverable interface implementation

// Meta returns the component metadata
func (in *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        in.name,
		Type:        "input",
		Description: fmt.Sprintf("CSV replay input for %s (cluster %s)", in.path, in.cluster),
		Version:     "1.0.0",
	}
}

// InputPorts returns the file port the replay reads from
func (in *Input) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "export_file",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "CSV export from a prior scan",
			Config:      component.FilePort{Path: in.path},
		},
	}
}

// OutputPorts returns the NATS subjects the replay publishes to
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
	return csvfileSchema
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

// Register registers the CSV replay input with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "csvfile",
		Factory:     NewInput,
		Schema:      csvfileSchema,
		Type:        "input",
		Protocol:    "file",
		Domain:      "inventory",
		Description: "Replays a CSV scan export as inventory rows",
		Version:     "1.0.0",
	})
}
