// Package csvreport provides the CSV report output: it buffers classified
// rows or datastream aggregates and writes them as delimited report files.
package csvreport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/message"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/buffer"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/timestamp"
)

// Report modes.
const (
	ReportIngest     = "ingest"     // per-index daily ingest report
	ReportDatastream = "datastream" // per-datastream size report
)

// ingestHeader is the per-index report column order.
var ingestHeader = []string{"index", "first_timestamp", "last_timestamp", "daily_ingest_mb"}

// datastreamHeader is the per-datastream report column order.
var datastreamHeader = []string{
	"cluster", "datastream", "backing_indices",
	"total_size_bytes", "primary_size_bytes", "replica_size_bytes",
	"generation", "ilm_policy",
	"hot", "warm", "cold", "frozen", "delete",
	"environment",
}

// Config holds configuration for the CSV report output component
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// Report selects the report shape: ingest or datastream.
	Report string `json:"report" schema:"type:enum,enum:ingest|datastream,description:Report shape,category:basic"`

	Directory  string `json:"directory"   schema:"type:string,description:Output directory,category:basic"`
	FilePrefix string `json:"file_prefix" schema:"type:string,description:Report file prefix,category:basic"`
	Delimiter  string `json:"delimiter"   schema:"type:string,description:Field delimiter,category:basic"`
	BufferSize int    `json:"buffer_size" schema:"type:int,description:Rows buffered before a forced flush,category:advanced"`

	// MaxPending bounds the pending-row ring. When a flush target stalls,
	// the oldest pending rows are shed rather than growing without limit.
	MaxPending int `json:"max_pending" schema:"type:int,description:Upper bound on rows awaiting a flush,category:advanced"`

	// MaxFileBytes rotates the report to a timestamped file once it grows
	// past this size. 0 disables rotation.
	MaxFileBytes int64 `json:"max_file_bytes" schema:"type:int,description:Rotate report past this size (0 disables),category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Report != "" && c.Report != ReportIngest && c.Report != ReportDatastream {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"report must be one of: ingest, datastream")
	}
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "directory is required")
	}
	if c.Delimiter != "" && len([]rune(c.Delimiter)) != 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"delimiter must be a single character")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_size cannot be negative")
	}
	if c.MaxPending < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_pending cannot be negative")
	}
	if c.MaxPending > 0 && c.MaxPending < c.BufferSize {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_pending must be at least buffer_size")
	}
	if c.MaxFileBytes < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_file_bytes cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the CSV report output
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
					Description: "Classified rows for the per-index report",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "report",
					Type:        "file",
					Subject:     "/var/lib/esdic/daily_ingest_report.csv",
					Required:    false,
					Description: "Report file path",
				},
			},
		},
		Report:     ReportIngest,
		Directory:  "/var/lib/esdic",
		FilePrefix: "daily_ingest_report",
		Delimiter:  ";",
		BufferSize: 100,
		MaxPending: 10000,
	}
}

// csvreportSchema defines the configuration schema for the CSV report output
var csvreportSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Output buffers report records and writes them as delimited CSV, flushing
// on a ticker, on buffer pressure, and on shutdown.
type Output struct {
	name         string
	subjects     []string
	report       string
	directory    string
	filePrefix   string
	delimiter    rune
	bufferSize   int
	maxFileBytes int64
	natsClient   *natsclient.Client
	logger       *slog.Logger

	// File handling
	file      *os.File
	fileBytes int64
	fileMu    sync.Mutex

	// Pending records awaiting a flush, bounded so a stalled report file
	// cannot grow the heap without limit
	pending *buffer.Ring[[]string]

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
	rowsWritten  int64
	errorCount   int64
	lastActivity time.Time

	metrics *reportMetrics
}

// Ensure Output implements all required interfaces
var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// NewOutput creates a CSV report output from configuration
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "CSVReportOutput", "NewOutput", "config unmarshal")
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
		if userConfig.Report != "" {
			cfg.Report = userConfig.Report
		}
		if userConfig.Directory != "" {
			cfg.Directory = userConfig.Directory
		}
		if userConfig.FilePrefix != "" {
			cfg.FilePrefix = userConfig.FilePrefix
		}
		if userConfig.Delimiter != "" {
			cfg.Delimiter = userConfig.Delimiter
		}
		if userConfig.BufferSize > 0 {
			cfg.BufferSize = userConfig.BufferSize
		}
		if userConfig.MaxPending > 0 {
			cfg.MaxPending = userConfig.MaxPending
		}
		if userConfig.MaxFileBytes > 0 {
			cfg.MaxFileBytes = userConfig.MaxFileBytes
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
			"CSVReportOutput", "NewOutput", "no input subjects configured")
	}

	metrics, err := newReportMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize csvreport metrics", "error", err)
		metrics = nil
	}

	out := &Output{
		name:         "csvreport-output",
		subjects:     inputSubjects,
		report:       cfg.Report,
		directory:    cfg.Directory,
		filePrefix:   cfg.FilePrefix,
		delimiter:    []rune(cfg.Delimiter)[0],
		bufferSize:   cfg.BufferSize,
		maxFileBytes: cfg.MaxFileBytes,
		natsClient:   deps.NATSClient,
		logger:       deps.GetLoggerWithComponent("csvreport-output"),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		wg:           &sync.WaitGroup{},
		metrics:      metrics,
	}

	out.pending, err = buffer.NewRing[[]string](cfg.MaxPending,
		buffer.WithPolicy[[]string](buffer.DropOldest),
		buffer.WithDropHandler[[]string](out.recordShedRow),
		buffer.WithMetrics[[]string](deps.MetricsRegistry, "csvreport-output"),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "CSVReportOutput", "NewOutput", "pending ring setup")
	}

	return out, nil
}

// recordShedRow accounts for a pending row shed under flush backpressure.
func (o *Output) recordShedRow(record []string) {
	atomic.AddInt64(&o.errorCount, 1)
	o.metrics.recordError("overflow")
	o.logger.Warn("Shed pending report row, flushing cannot keep up", "columns", len(record))
}

// Initialize creates the report directory
func (o *Output) Initialize() error {
	if err := os.MkdirAll(o.directory, 0755); err != nil {
		return errors.WrapFatal(err, "CSVReportOutput", "Initialize", "create report directory")
	}
	return nil
}

// Start opens the report file, writes the header and subscribes
func (o *Output) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if o.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "CSVReportOutput", "Start", "check running state")
	}
	if o.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "CSVReportOutput", "Start", "NATS client required")
	}

	if err := o.openFile(); err != nil {
		return err
	}

	for _, subject := range o.subjects {
		if err := o.natsClient.Subscribe(ctx, subject, o.handleMessage); err != nil {
			return errors.WrapTransient(err, "CSVReportOutput", "Start",
				fmt.Sprintf("subscribe to %s", subject))
		}
	}

	o.wg.Add(1)
	go o.flushLoop()

	o.mu.Lock()
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	o.logger.Info("CSV report output started",
		"report", o.report,
		"input_subjects", o.subjects,
		"path", o.reportPath())

	return nil
}

// Stop flushes remaining rows and closes the report file
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
			"CSVReportOutput", "Stop", "graceful shutdown")
	}

	o.flush()

	o.fileMu.Lock()
	if o.file != nil {
		if err := o.file.Close(); err != nil {
			o.logger.Warn("Failed to close report file", "error", err, "path", o.file.Name())
		}
		o.file = nil
	}
	o.fileMu.Unlock()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	o.closeOnce.Do(func() {
		close(o.done)
	})

	return nil
}

// reportPath is the active report file location.
func (o *Output) reportPath() string {
	return filepath.Join(o.directory, o.filePrefix+".csv")
}

// header returns the column order for the configured report shape.
func (o *Output) header() []string {
	if o.report == ReportDatastream {
		return datastreamHeader
	}
	return ingestHeader
}

// openFile truncates the report file and writes the header row. Caller
// must not hold fileMu.
func (o *Output) openFile() error {
	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	file, err := os.OpenFile(o.reportPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.WrapFatal(err, "CSVReportOutput", "openFile", "open report file")
	}
	o.file = file
	o.fileBytes = 0

	w := csv.NewWriter(file)
	w.Comma = o.delimiter
	if err := w.Write(o.header()); err != nil {
		return errors.WrapFatal(err, "CSVReportOutput", "openFile", "write header")
	}
	w.Flush()
	return w.Error()
}

// handleMessage converts one payload into a report record and buffers it
func (o *Output) handleMessage(_ context.Context, msgData []byte) {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msgData, &baseMsg); err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.metrics.recordError("parse")
		o.logger.Debug("Failed to parse message as BaseMessage", "error", err)
		return
	}

	record, ok := o.toRecord(baseMsg.Payload())
	if !ok {
		o.metrics.recordError("type")
		return
	}

	o.pending.Append(record)

	if o.pending.Len() >= o.bufferSize {
		o.flush()
	}

	o.mu.Lock()
	o.lastActivity = time.Now()
	o.mu.Unlock()
}

// toRecord formats a payload for the configured report shape. Payloads of
// the other shape are dropped silently: both subjects may be wired to one
// component during pipeline bring-up.
func (o *Output) toRecord(payload any) ([]string, bool) {
	switch o.report {
	case ReportDatastream:
		agg, ok := payload.(*message.DatastreamAggregatePayload)
		if !ok {
			return nil, false
		}
		return datastreamRecord(agg), true
	default:
		row, ok := payload.(*message.ClassifiedRowPayload)
		if !ok {
			return nil, false
		}
		return ingestRecord(row), true
	}
}

// ingestRecord renders one classified row in the per-index column order.
func ingestRecord(classified *message.ClassifiedRowPayload) []string {
	row := classified.Row
	return []string{
		row.IndexName,
		formatTimestamp(row.FirstDocMs),
		formatTimestamp(row.LastDocMs),
		strconv.FormatFloat(row.DailyIngestMB, 'f', 2, 64),
	}
}

// datastreamRecord renders one aggregate in the per-datastream column order.
func datastreamRecord(agg *message.DatastreamAggregatePayload) []string {
	phases := splitPhases(agg.ILMPhases)
	return []string{
		agg.Cluster,
		agg.Datastream,
		strconv.Itoa(agg.BackingIndices),
		strconv.FormatInt(agg.TotalBytes, 10),
		strconv.FormatInt(agg.PrimaryBytes, 10),
		strconv.FormatInt(agg.ReplicaBytes, 10),
		strconv.Itoa(agg.Generation),
		agg.ILMPolicy,
		phases["hot"],
		phases["warm"],
		phases["cold"],
		phases["frozen"],
		phases["delete"],
		agg.Environment,
	}
}

// formatTimestamp renders epoch milliseconds as RFC3339 UTC, or N/A when
// the index had no timestamps.
func formatTimestamp(ms int64) string {
	if s := timestamp.Format(ms); s != "" {
		return s
	}
	return "N/A"
}

// splitPhases undoes the "phase:definition|..." joined summary into a map.
func splitPhases(joined string) map[string]string {
	phases := make(map[string]string)
	if joined == "" {
		return phases
	}
	for _, part := range strings.Split(joined, "|") {
		name, def, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		phases[name] = def
	}
	return phases
}

// flushLoop periodically flushes the buffer
func (o *Output) flushLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.flush()
		}
	}
}

// flush writes buffered records to the report file
func (o *Output) flush() {
	records := o.pending.Drain()
	if len(records) == 0 {
		return
	}

	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	if o.file == nil {
		atomic.AddInt64(&o.errorCount, int64(len(records)))
		o.metrics.recordError("no_file")
		o.logger.Error("Report file is nil during flush", "records_lost", len(records))
		return
	}

	w := csv.NewWriter(&countingWriter{file: o.file, bytes: &o.fileBytes})
	w.Comma = o.delimiter
	for _, record := range records {
		if err := w.Write(record); err != nil {
			atomic.AddInt64(&o.errorCount, 1)
			o.metrics.recordError("write")
			o.logger.Error("Failed to write report record", "error", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.metrics.recordError("write")
		o.logger.Error("Failed to flush report records", "error", err)
		return
	}

	atomic.AddInt64(&o.rowsWritten, int64(len(records)))
	o.metrics.recordRows(len(records))

	if o.maxFileBytes > 0 && o.fileBytes >= o.maxFileBytes {
		o.rotateLocked()
	}
}

// countingWriter tracks bytes written for size-based rotation.
type countingWriter struct {
	file  *os.File
	bytes *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.file.Write(p)
	*c.bytes += int64(n)
	return n, err
}

// rotateLocked renames the active report to a timestamped file and reopens
// a fresh one. Caller holds fileMu.
func (o *Output) rotateLocked() {
	rotated := filepath.Join(o.directory,
		fmt.Sprintf("%s-%s.csv", o.filePrefix, time.Now().UTC().Format("20060102T150405")))

	if err := o.file.Close(); err != nil {
		o.logger.Warn("Failed to close report before rotation", "error", err)
	}
	if err := os.Rename(o.reportPath(), rotated); err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.metrics.recordError("rotate")
		o.logger.Error("Failed to rotate report file", "error", err)
	} else {
		o.metrics.recordRotation()
		o.logger.Info("Rotated report file", "rotated_to", rotated)
	}

	file, err := os.OpenFile(o.reportPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.metrics.recordError("rotate")
		o.logger.Error("Failed to reopen report after rotation", "error", err)
		o.file = nil
		return
	}
	o.file = file
	o.fileBytes = 0

	w := csv.NewWriter(file)
	w.Comma = o.delimiter
	if err := w.Write(o.header()); err == nil {
		w.Flush()
	}
}

// Discoverable interface implementation

// Meta returns component metadata
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        o.name,
		Type:        "output",
		Description: fmt.Sprintf("CSV %s report writer (%s)", o.report, o.reportPath()),
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
			Config:    component.NATSPort{Subject: subj},
		}
	}
	return ports
}

// OutputPorts returns the report file port
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "report",
			Direction: component.DirectionOutput,
			Required:  false,
			Config: component.FilePort{
				Path: o.reportPath(),
			},
		},
	}
}

// ConfigSchema returns the configuration schema
func (o *Output) ConfigSchema() component.ConfigSchema {
	return csvreportSchema
}

// Health returns the current health status
func (o *Output) Health() component.HealthStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	o.fileMu.Lock()
	fileOpen := o.file != nil
	o.fileMu.Unlock()

	return component.HealthStatus{
		Healthy:    o.running && fileOpen,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&o.errorCount)),
		Uptime:     time.Since(o.startTime),
	}
}

// DataFlow returns current data flow metrics
func (o *Output) DataFlow() component.FlowMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	written := atomic.LoadInt64(&o.rowsWritten)
	errorCount := atomic.LoadInt64(&o.errorCount)

	var errorRate float64
	if written > 0 {
		errorRate = float64(errorCount) / float64(written)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: o.lastActivity,
	}
}

// Register registers the CSV report output with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "csvreport",
		Factory:     NewOutput,
		Schema:      csvreportSchema,
		Type:        "output",
		Protocol:    "file",
		Domain:      "inventory",
		Description: "Writes per-index and per-datastream CSV reports",
		Version:     "1.0.0",
	})
}
