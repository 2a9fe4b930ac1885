// Package bulkload provides the bulk-load output: it converts classified
// rows into inventory documents and bulk-indexes them into a target index
// with deterministic content-hash IDs, so repeated loads overwrite.
package bulkload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/message"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/retry"
)

// Config holds configuration for the bulk-load output component
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// TargetIndex is the inventory index documents load into.
	TargetIndex string `json:"target_index" schema:"type:string,description:Target inventory index,category:basic"`

	BatchSize     int    `json:"batch_size"     schema:"type:int,description:Documents per bulk request,category:advanced"`
	FlushInterval string `json:"flush_interval" schema:"type:string,description:Max time a document waits before loading,category:advanced"`
	RetryCount    int    `json:"retry_count"    schema:"type:int,description:Retries per failed bulk request,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.TargetIndex == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "target_index is required")
	}
	if c.BatchSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"batch_size cannot be negative")
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retry_count must be between 0 and 10")
	}
	if c.FlushInterval != "" {
		if _, err := time.ParseDuration(c.FlushInterval); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "parse flush_interval")
		}
	}
	return nil
}

// DefaultConfig returns default configuration for the bulk-load output
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
					Description: "Classified rows to load into the inventory index",
				},
			},
		},
		TargetIndex:   "index-inventory",
		BatchSize:     500,
		FlushInterval: "5s",
		RetryCount:    3,
	}
}

// bulkloadSchema defines the configuration schema for the bulk-load output
var bulkloadSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// inventoryDoc is the document shape loaded into the target index. The ID
// is the SHA-256 of the raw index name, matching escluster.DocumentID.
type inventoryDoc struct {
	Cluster   string `json:"cluster"`
	IndexName string `json:"index_name"`

	Scheme      string `json:"scheme"`
	Environment string `json:"environment,omitempty"`
	Dataset     string `json:"dataset,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	Application string `json:"application,omitempty"`

	SizeBytes        int64 `json:"size_bytes"`
	PrimarySizeBytes int64 `json:"primary_size_bytes,omitempty"`
	DocsCount        int64 `json:"docs_count"`

	DailyIngestMB    float64 `json:"daily_ingest_mb"`
	DailyIngestBytes int64   `json:"daily_ingest_bytes"`

	FirstTimestamp string `json:"first_timestamp,omitempty"`
	LastTimestamp  string `json:"last_timestamp,omitempty"`

	ActiveToday bool   `json:"active_today"`
	ScanID      string `json:"scan_id,omitempty"`

	IngestedAt time.Time `json:"ingested_at"`
}

// Output converts classified rows into inventory documents and bulk-loads
// them in batches.
type Output struct {
	name          string
	subjects      []string
	targetIndex   string
	batchSize     int
	flushInterval time.Duration

	api         escluster.API
	natsClient  *natsclient.Client
	logger      *slog.Logger
	retryConfig retry.Config

	// Buffer of pending documents
	buffer   []escluster.Document
	bufferMu sync.Mutex

	// Lifecycle management
	shutdown    chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          *sync.WaitGroup

	// Metrics
	docsLoaded   int64
	docsDropped  int64
	errorCount   int64
	lastActivity time.Time

	metrics *loadMetrics
}

// Ensure Output implements all required interfaces
var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// NewOutput creates a bulk-load output from configuration
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "BulkLoadOutput", "NewOutput", "config unmarshal")
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
		if userConfig.TargetIndex != "" {
			cfg.TargetIndex = userConfig.TargetIndex
		}
		if userConfig.BatchSize > 0 {
			cfg.BatchSize = userConfig.BatchSize
		}
		if userConfig.FlushInterval != "" {
			cfg.FlushInterval = userConfig.FlushInterval
		}
		if userConfig.RetryCount > 0 {
			cfg.RetryCount = userConfig.RetryCount
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var inputSubjects []string
	for _, input := range cfg.Ports.Inputs {
		if input.Type == "nats" {
			inputSubjects = append(inputSubjects, input.Subject)
		}
	}
	if len(inputSubjects) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"BulkLoadOutput", "NewOutput", "no input subjects configured")
	}
	if deps.Cluster == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"BulkLoadOutput", "NewOutput", "cluster boundary required for bulk loading")
	}

	flushInterval, _ := time.ParseDuration(cfg.FlushInterval)

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = cfg.RetryCount + 1

	metrics, err := newLoadMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize bulkload metrics", "error", err)
		metrics = nil
	}

	return &Output{
		name:          "bulkload-output",
		subjects:      inputSubjects,
		targetIndex:   cfg.TargetIndex,
		batchSize:     cfg.BatchSize,
		flushInterval: flushInterval,
		api:           deps.Cluster,
		natsClient:    deps.NATSClient,
		logger:        deps.GetLoggerWithComponent("bulkload-output"),
		retryConfig:   retryConfig,
		buffer:        make([]escluster.Document, 0, cfg.BatchSize),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		wg:            &sync.WaitGroup{},
		metrics:       metrics,
	}, nil
}

// Initialize validates runtime dependencies
func (o *Output) Initialize() error {
	if o.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"BulkLoadOutput", "Initialize", "NATS client validation")
	}
	return nil
}

// Start subscribes to the classified row subject and begins loading
func (o *Output) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if o.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "BulkLoadOutput", "Start", "check running state")
	}
	if o.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "BulkLoadOutput", "Start", "NATS client required")
	}

	for _, subject := range o.subjects {
		if err := o.natsClient.Subscribe(ctx, subject, o.handleMessage); err != nil {
			return errors.WrapTransient(err, "BulkLoadOutput", "Start",
				fmt.Sprintf("subscribe to %s", subject))
		}
	}

	o.wg.Add(1)
	go o.flushLoop(ctx)

	o.mu.Lock()
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	o.logger.Info("Bulk-load output started",
		"input_subjects", o.subjects,
		"target_index", o.targetIndex,
		"batch_size", o.batchSize)

	return nil
}

// Stop flushes pending documents and stops the output
func (o *Output) Stop(timeout time.Duration) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if !o.running {
		return nil
	}

	close(o.shutdown)

	waitCh := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		// Clean shutdown
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout),
			"BulkLoadOutput", "Stop", "graceful shutdown")
	}

	// Final flush bounded by the stop timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	o.flush(ctx)

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	o.closeOnce.Do(func() {
		close(o.done)
	})

	return nil
}

// handleMessage converts one classified row into a document and buffers it
func (o *Output) handleMessage(ctx context.Context, msgData []byte) {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msgData, &baseMsg); err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.metrics.recordError("parse")
		o.logger.Debug("Failed to parse message as BaseMessage", "error", err)
		return
	}

	classified, ok := baseMsg.Payload().(*message.ClassifiedRowPayload)
	if !ok {
		atomic.AddInt64(&o.errorCount, 1)
		o.metrics.recordError("type")
		return
	}

	doc, err := buildDocument(classified)
	if err != nil {
		atomic.AddInt64(&o.docsDropped, 1)
		o.metrics.recordDrop()
		o.logger.Warn("Dropping invalid row",
			"index", classified.Row.IndexName, "error", err)
		return
	}

	o.bufferMu.Lock()
	o.buffer = append(o.buffer, doc)
	shouldFlush := len(o.buffer) >= o.batchSize
	o.bufferMu.Unlock()

	if shouldFlush {
		o.flush(ctx)
	}

	o.mu.Lock()
	o.lastActivity = time.Now()
	o.mu.Unlock()
}

// buildDocument converts a classified row into a bulk document keyed by the
// index name's content hash.
func buildDocument(classified *message.ClassifiedRowPayload) (escluster.Document, error) {
	if err := classified.Validate(); err != nil {
		return escluster.Document{}, err
	}

	row := classified.Row
	doc := inventoryDoc{
		Cluster:          row.Cluster,
		IndexName:        row.IndexName,
		Scheme:           string(classified.Parsed.Scheme),
		Environment:      classified.Environment(),
		SizeBytes:        row.SizeBytes,
		PrimarySizeBytes: row.PrimarySizeBytes,
		DocsCount:        row.DocsCount,
		DailyIngestMB:    row.DailyIngestMB,
		DailyIngestBytes: int64(row.DailyIngestMB * 1024 * 1024),
		ActiveToday:      row.ActiveToday,
		ScanID:           row.ScanID,
		IngestedAt:       time.Now().UTC(),
	}
	doc.Dataset = deref(classified.Parsed.Dataset)
	doc.Namespace = deref(classified.Parsed.Namespace)
	doc.Application = deref(classified.Parsed.Application)
	if row.FirstDocMs != 0 {
		doc.FirstTimestamp = time.UnixMilli(row.FirstDocMs).UTC().Format(time.RFC3339)
	}
	if row.LastDocMs != 0 {
		doc.LastTimestamp = time.UnixMilli(row.LastDocMs).UTC().Format(time.RFC3339)
	}

	source, err := json.Marshal(doc)
	if err != nil {
		return escluster.Document{}, errors.WrapInvalid(err, "BulkLoadOutput", "buildDocument", "marshal document")
	}

	return escluster.Document{
		ID:     escluster.DocumentID(row.IndexName),
		Source: source,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// flushLoop periodically flushes the pending document buffer
func (o *Output) flushLoop(ctx context.Context) {
	defer o.wg.Done()

	interval := o.flushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.flush(ctx)
		}
	}
}

// flush bulk-loads pending documents, retrying transient failures.
func (o *Output) flush(ctx context.Context) {
	o.bufferMu.Lock()
	if len(o.buffer) == 0 {
		o.bufferMu.Unlock()
		return
	}
	docs := o.buffer
	o.buffer = make([]escluster.Document, 0, o.batchSize)
	o.bufferMu.Unlock()

	var stats escluster.BulkStats
	err := retry.Do(ctx, o.retryConfig, func() error {
		var bulkErr error
		stats, bulkErr = o.api.Bulk(ctx, o.targetIndex, docs)
		if bulkErr != nil && !errors.IsTransient(bulkErr) {
			return retry.NonRetryable(bulkErr)
		}
		return bulkErr
	})
	if err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.metrics.recordError("bulk")
		o.logger.Error("Bulk load failed",
			"target_index", o.targetIndex,
			"documents", len(docs),
			"failed", stats.Failed,
			"error", err)
		return
	}

	atomic.AddInt64(&o.docsLoaded, int64(stats.Flushed))
	o.metrics.recordLoad(stats)
	o.logger.Info("Bulk load complete",
		"target_index", o.targetIndex,
		"added", stats.Added,
		"flushed", stats.Flushed)
}

// Discoverable interface implementation

// Meta returns component metadata
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        o.name,
		Type:        "output",
		Description: fmt.Sprintf("Bulk-loads inventory documents into %s", o.targetIndex),
		Version:     "1.0.0",
	}
}

// InputPorts returns the NATS subjects this output consumes
func (o *Output) InputPorts() []component.Port {
	ports := make([]component.Port, len(o.subjects))
	for i, subj := range o.subjects {
		ports[i] = component.Port{
			Name:      fmt.Sprintf("input_%d", i),
			Direction: component.DirectionInput,
			Required:  true,
			Config: component.NATSPort{
				Subject: subj,
				Interface: &component.InterfaceContract{
					Type:    "inventory.classified.v1",
					Version: "v1",
				},
			},
		}
	}
	return ports
}

// OutputPorts returns no NATS ports: documents leave through the cluster
// boundary.
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema
func (o *Output) ConfigSchema() component.ConfigSchema {
	return bulkloadSchema
}

// Health returns the current health status
func (o *Output) Health() component.HealthStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    o.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&o.errorCount)),
		Uptime:     time.Since(o.startTime),
	}
}

// DataFlow returns current data flow metrics
func (o *Output) DataFlow() component.FlowMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	loaded := atomic.LoadInt64(&o.docsLoaded)
	errorCount := atomic.LoadInt64(&o.errorCount)

	var errorRate float64
	if loaded > 0 {
		errorRate = float64(errorCount) / float64(loaded)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: o.lastActivity,
	}
}

// Register registers the bulk-load output with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "bulkload",
		Factory:     NewOutput,
		Schema:      bulkloadSchema,
		Type:        "output",
		Protocol:    "https",
		Domain:      "inventory",
		Description: "Bulk-loads classified rows into the inventory index",
		Version:     "1.0.0",
	})
}
