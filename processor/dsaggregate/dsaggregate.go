// Package dsaggregate provides the datastream aggregation processor: it
// folds classified rows into per-datastream size aggregates enriched with
// generation, ILM policy and phase summary.
package dsaggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/indexname"
	"github.com/eijnar/es-daily-ingest-calculator/message"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
)

// Config holds configuration for the datastream aggregation processor
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// StaleAfter evicts accumulated scans that never saw a completion
	// marker (crashed scanner, dropped marker).
	StaleAfter string `json:"stale_after" schema:"type:string,description:Evict scans with no completion marker after this duration,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.StaleAfter != "" {
		if _, err := time.ParseDuration(c.StaleAfter); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "parse stale_after")
		}
	}
	return nil
}

// DefaultConfig returns the default configuration for the aggregation processor
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
					Description: "Classified inventory rows",
				},
				{
					Name:        "markers",
					Type:        "nats",
					Subject:     "inventory.scanmarker.v1",
					Interface:   "inventory.scanmarker.v1",
					Required:    true,
					Description: "Scan lifecycle markers triggering the flush",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "datastreams",
					Type:        "nats",
					Subject:     "inventory.datastream.v1",
					Interface:   "inventory.datastream.v1",
					Required:    true,
					Description: "Per-datastream size aggregates",
				},
			},
		},
		StaleAfter: "1h",
	}
}

// dsaggregateSchema defines the configuration schema for the aggregation processor
var dsaggregateSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// rowSizes is the per-index accumulation unit.
type rowSizes struct {
	totalBytes   int64
	primaryBytes int64
}

// scanState accumulates rows of one scan pass until its completion marker.
type scanState struct {
	cluster     string
	rows        map[string]rowSizes // index name -> sizes
	lastTouched time.Time
}

// Processor accumulates classified rows per scan and, on the scan's
// completion marker, folds them into per-datastream aggregates. Rows that
// belong to no datastream are dropped here; the per-index report consumes
// them downstream of classify directly.
type Processor struct {
	name          string
	rowSubject    string
	markerSubject string
	outputSubj    string
	staleAfter    time.Duration

	api        escluster.API
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Scan accumulation
	scansMu sync.Mutex
	scans   map[string]*scanState // scan ID -> state

	// Lifecycle management
	shutdown    chan struct{}
	done        chan struct{}
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          *sync.WaitGroup

	// Metrics (atomic counters for DataFlow)
	messagesProcessed int64
	aggregatesEmitted int64
	errorCount        int64
	lastActivity      time.Time

	metrics *aggregateMetrics
}

// Ensure Processor implements all required interfaces
var _ component.Discoverable = (*Processor)(nil)
var _ component.LifecycleComponent = (*Processor)(nil)

// NewProcessor creates a datastream aggregation processor from configuration
func NewProcessor(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "DSAggregateProcessor", "NewProcessor", "config unmarshal")
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
		if userConfig.StaleAfter != "" {
			cfg.StaleAfter = userConfig.StaleAfter
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var rowSubject, markerSubject, outputSubject string
	for _, input := range cfg.Ports.Inputs {
		if input.Type != "nats" {
			continue
		}
		switch input.Name {
		case "markers":
			markerSubject = input.Subject
		default:
			if rowSubject == "" {
				rowSubject = input.Subject
			}
		}
	}
	for _, output := range cfg.Ports.Outputs {
		if output.Type == "nats" {
			outputSubject = output.Subject
			break
		}
	}

	if rowSubject == "" || markerSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"DSAggregateProcessor", "NewProcessor", "classified and marker input subjects required")
	}
	if outputSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"DSAggregateProcessor", "NewProcessor", "no output subject configured")
	}
	if deps.Cluster == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"DSAggregateProcessor", "NewProcessor", "cluster boundary required for datastream lookup")
	}

	staleAfter, _ := time.ParseDuration(cfg.StaleAfter)

	metrics, err := newAggregateMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize dsaggregate metrics", "error", err)
		metrics = nil
	}

	return &Processor{
		name:          "dsaggregate-processor",
		rowSubject:    rowSubject,
		markerSubject: markerSubject,
		outputSubj:    outputSubject,
		staleAfter:    staleAfter,
		api:           deps.Cluster,
		natsClient:    deps.NATSClient,
		logger:        deps.GetLoggerWithComponent("dsaggregate-processor"),
		scans:         make(map[string]*scanState),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		wg:            &sync.WaitGroup{},
		metrics:       metrics,
	}, nil
}

// Initialize prepares the processor (no-op for dsaggregate)
func (p *Processor) Initialize() error {
	return nil
}

// Start subscribes to the classified row and marker subjects
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "DSAggregateProcessor", "Start", "check running state")
	}
	if p.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "DSAggregateProcessor", "Start", "NATS client required")
	}

	if err := p.natsClient.Subscribe(ctx, p.rowSubject, p.handleRow); err != nil {
		return errors.WrapTransient(err, "DSAggregateProcessor", "Start",
			fmt.Sprintf("subscribe to %s", p.rowSubject))
	}
	if err := p.natsClient.Subscribe(ctx, p.markerSubject, p.handleMarker); err != nil {
		return errors.WrapTransient(err, "DSAggregateProcessor", "Start",
			fmt.Sprintf("subscribe to %s", p.markerSubject))
	}

	if p.staleAfter > 0 {
		p.wg.Add(1)
		go p.evictLoop(ctx)
	}

	p.mu.Lock()
	p.running = true
	p.startTime = time.Now()
	p.mu.Unlock()

	p.logger.Info("Datastream aggregation processor started",
		"row_subject", p.rowSubject,
		"marker_subject", p.markerSubject,
		"output_subject", p.outputSubj)

	return nil
}

// Stop gracefully stops the processor
func (p *Processor) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.running {
		return nil
	}

	close(p.shutdown)

	waitCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		// Clean shutdown
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"DSAggregateProcessor", "Stop", "graceful shutdown")
	}

	p.mu.Lock()
	p.running = false
	close(p.done)
	p.mu.Unlock()

	return nil
}

// evictLoop drops scans that never completed.
func (p *Processor) evictLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.staleAfter / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-p.staleAfter)
			p.scansMu.Lock()
			for id, state := range p.scans {
				if state.lastTouched.Before(cutoff) {
					delete(p.scans, id)
					p.metrics.recordEviction()
					p.logger.Warn("Evicted stale scan accumulation", "scan_id", id)
				}
			}
			p.scansMu.Unlock()
		}
	}
}

// handleRow folds one classified row into its scan's accumulation.
func (p *Processor) handleRow(_ context.Context, msgData []byte) {
	atomic.AddInt64(&p.messagesProcessed, 1)
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msgData, &baseMsg); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("parse")
		p.logger.Debug("Failed to parse message as BaseMessage", "error", err)
		return
	}

	classified, ok := baseMsg.Payload().(*message.ClassifiedRowPayload)
	if !ok {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("type")
		return
	}

	p.accumulate(classified)
}

// accumulate records one row under its scan ID. Rows without a scan ID go
// under the empty key and flush on any completion marker for their cluster.
func (p *Processor) accumulate(classified *message.ClassifiedRowPayload) {
	row := classified.Row
	p.scansMu.Lock()
	defer p.scansMu.Unlock()

	state, ok := p.scans[row.ScanID]
	if !ok {
		state = &scanState{
			cluster: row.Cluster,
			rows:    make(map[string]rowSizes),
		}
		p.scans[row.ScanID] = state
	}
	state.rows[row.IndexName] = rowSizes{
		totalBytes:   row.SizeBytes,
		primaryBytes: row.PrimarySizeBytes,
	}
	state.lastTouched = time.Now()
	p.metrics.recordRow()
}

// handleMarker flushes the scan's accumulation on its completion marker.
func (p *Processor) handleMarker(ctx context.Context, msgData []byte) {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msgData, &baseMsg); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("parse")
		return
	}

	marker, ok := baseMsg.Payload().(*message.ScanMarkerPayload)
	if !ok || !marker.Complete {
		return
	}

	p.scansMu.Lock()
	state, found := p.scans[marker.ScanID]
	if found {
		delete(p.scans, marker.ScanID)
	}
	p.scansMu.Unlock()

	if !found {
		p.logger.Warn("Completion marker for unknown scan", "scan_id", marker.ScanID)
		return
	}

	aggregates, err := p.aggregate(ctx, state, marker.ScanID)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("aggregate")
		p.logger.Error("Failed to aggregate scan", "scan_id", marker.ScanID, "error", err)
		return
	}

	for _, agg := range aggregates {
		p.publishAggregate(ctx, agg)
	}
	p.logger.Info("Flushed scan aggregation",
		"scan_id", marker.ScanID,
		"datastreams", len(aggregates),
		"rows", len(state.rows))
}

// aggregate joins accumulated rows against the cluster's datastreams and
// sums each datastream's observed backing indices. The shard-level split is
// preferred for the primary/replica breakdown; rows supply the fallback.
func (p *Processor) aggregate(ctx context.Context, state *scanState, scanID string) ([]*message.DatastreamAggregatePayload, error) {
	streams, err := p.api.DataStreams(ctx)
	if err != nil {
		return nil, err
	}

	shardSplit, err := p.api.ShardStats(ctx)
	if err != nil {
		p.logger.Warn("Shard stats unavailable, falling back to row sizes", "error", err)
		shardSplit = nil
	}

	var out []*message.DatastreamAggregatePayload
	for _, ds := range streams {
		agg := &message.DatastreamAggregatePayload{
			Cluster:    state.cluster,
			Datastream: ds.Name,
			Generation: ds.Generation,
			ILMPolicy:  ds.ILMPolicy,
			ScanID:     scanID,
		}

		for _, backing := range ds.BackingIndices {
			sizes, seen := state.rows[backing]
			if !seen {
				continue
			}
			agg.BackingIndices++

			if split, ok := shardSplit[backing]; ok {
				agg.PrimaryBytes += split.PrimaryBytes
				agg.ReplicaBytes += split.ReplicaBytes
				agg.TotalBytes += split.TotalBytes()
			} else {
				agg.PrimaryBytes += sizes.primaryBytes
				agg.ReplicaBytes += sizes.totalBytes - sizes.primaryBytes
				agg.TotalBytes += sizes.totalBytes
			}
		}
		if agg.BackingIndices == 0 {
			continue
		}

		agg.Environment = indexname.ClassifyEnvironment(ds.Name)

		if ds.ILMPolicy != "" {
			phases, phaseErr := p.api.ILMPhases(ctx, ds.ILMPolicy)
			if phaseErr != nil {
				p.logger.Warn("ILM phase lookup failed",
					"policy", ds.ILMPolicy, "datastream", ds.Name, "error", phaseErr)
			} else {
				agg.ILMPhases = joinPhases(phases)
			}
		}

		out = append(out, agg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Datastream < out[j].Datastream })
	return out, nil
}

// phaseOrder is the lifecycle progression order for the phase summary.
var phaseOrder = []string{"hot", "warm", "cold", "frozen", "delete"}

// joinPhases renders the phase map as "phase:definition|..." in lifecycle
// order, unknown phases appended alphabetically.
func joinPhases(phases map[string]string) string {
	if len(phases) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(phases))
	var parts []string
	for _, name := range phaseOrder {
		if def, ok := phases[name]; ok {
			parts = append(parts, name+":"+def)
			seen[name] = true
		}
	}
	var extra []string
	for name := range phases {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		parts = append(parts, name+":"+phases[name])
	}
	joined := parts[0]
	for _, part := range parts[1:] {
		joined += "|" + part
	}
	return joined
}

// publishAggregate wraps one aggregate in the envelope and publishes it.
func (p *Processor) publishAggregate(ctx context.Context, agg *message.DatastreamAggregatePayload) {
	outputMsg := message.NewBaseMessage(message.DatastreamAggregateMessage, agg, p.name)
	data, err := json.Marshal(outputMsg)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("marshal")
		p.logger.Error("Failed to marshal aggregate", "datastream", agg.Datastream, "error", err)
		return
	}
	if err := p.natsClient.Publish(ctx, p.outputSubj, data); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("publish")
		p.logger.Error("Failed to publish aggregate",
			"output_subject", p.outputSubj,
			"datastream", agg.Datastream,
			"error", err)
		return
	}
	atomic.AddInt64(&p.aggregatesEmitted, 1)
	p.metrics.recordAggregate()
}

// Discoverable interface implementation

// Meta returns metadata describing this processor component.
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        p.name,
		Type:        "processor",
		Description: "Datastream aggregation processor (inventory.classified.v1 to inventory.datastream.v1)",
		Version:     "1.0.0",
	}
}

// InputPorts returns the NATS input ports this processor subscribes to.
func (p *Processor) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "classified",
			Direction: component.DirectionInput,
			Required:  true,
			Config: component.NATSPort{
				Subject: p.rowSubject,
				Interface: &component.InterfaceContract{
					Type:    "inventory.classified.v1",
					Version: "v1",
				},
			},
		},
		{
			Name:      "markers",
			Direction: component.DirectionInput,
			Required:  true,
			Config: component.NATSPort{
				Subject: p.markerSubject,
				Interface: &component.InterfaceContract{
					Type:    "inventory.scanmarker.v1",
					Version: "v1",
				},
			},
		},
	}
}

// OutputPorts returns the NATS output port for datastream aggregates.
func (p *Processor) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "datastreams",
			Direction: component.DirectionOutput,
			Required:  true,
			Config: component.NATSPort{
				Subject: p.outputSubj,
				Interface: &component.InterfaceContract{
					Type:    "inventory.datastream.v1",
					Version: "v1",
				},
			},
		},
	}
}

// ConfigSchema returns the configuration schema for this processor.
func (p *Processor) ConfigSchema() component.ConfigSchema {
	return dsaggregateSchema
}

// Health returns the current health status of this processor.
func (p *Processor) Health() component.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    p.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&p.errorCount)),
		Uptime:     time.Since(p.startTime),
	}
}

// DataFlow returns current data flow metrics for this processor.
func (p *Processor) DataFlow() component.FlowMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	processed := atomic.LoadInt64(&p.messagesProcessed)
	errorCount := atomic.LoadInt64(&p.errorCount)

	var errorRate float64
	if processed > 0 {
		errorRate = float64(errorCount) / float64(processed)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: p.lastActivity,
	}
}

// Register registers the datastream aggregation processor with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "dsaggregate",
		Factory:     NewProcessor,
		Schema:      dsaggregateSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "inventory",
		Description: "Aggregates classified rows into per-datastream size summaries",
		Version:     "1.0.0",
	})
}
