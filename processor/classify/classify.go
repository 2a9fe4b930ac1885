// Package classify provides the decomposition processor: it turns raw
// inventory rows into classified rows by parsing the index name.
package classify

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
	"github.com/eijnar/es-daily-ingest-calculator/indexname"
	"github.com/eijnar/es-daily-ingest-calculator/message"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
)

// Config holds configuration for the classify processor
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Ports != nil {
		for _, output := range c.Ports.Outputs {
			if output.Type == "nats" && output.Subject == "" {
				return errors.WrapInvalid(errors.ErrInvalidConfig,
					"Config", "Validate", "NATS output subject validation")
			}
		}
	}
	return nil
}

// DefaultConfig returns the default configuration for the classify processor
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "rows",
					Type:        "nats",
					Subject:     "inventory.index.v1",
					Interface:   "inventory.index.v1",
					Required:    true,
					Description: "Raw inventory rows from scan inputs",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "classified",
					Type:        "nats",
					Subject:     "inventory.classified.v1",
					Interface:   "inventory.classified.v1",
					Required:    true,
					Description: "Rows enriched with the decomposed index name",
				},
			},
		},
	}
}

// classifySchema defines the configuration schema for the classify processor
var classifySchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Processor decomposes index names and attaches the environment bucket.
// The transformation itself is pure (classifyRow); the processor is only
// transport and bookkeeping around it.
type Processor struct {
	name       string
	subjects   []string
	outputSubj string
	natsClient *natsclient.Client
	logger     *slog.Logger

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
	rowsClassified    int64
	errorCount        int64
	lastActivity      time.Time

	// Prometheus metrics
	metrics *classifyMetrics
}

// Ensure Processor implements all required interfaces
var _ component.Discoverable = (*Processor)(nil)
var _ component.LifecycleComponent = (*Processor)(nil)

// NewProcessor creates a classify processor from configuration
func NewProcessor(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "ClassifyProcessor", "NewProcessor", "config unmarshal")
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
	}

	var inputSubjects []string
	var outputSubject string
	for _, input := range cfg.Ports.Inputs {
		if input.Type == "nats" {
			inputSubjects = append(inputSubjects, input.Subject)
		}
	}
	for _, output := range cfg.Ports.Outputs {
		if output.Type == "nats" {
			outputSubject = output.Subject
			break
		}
	}

	if len(inputSubjects) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"ClassifyProcessor", "NewProcessor", "no input subjects configured")
	}
	if outputSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"ClassifyProcessor", "NewProcessor", "no output subject configured")
	}

	metrics, err := newClassifyMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize classify metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	return &Processor{
		name:       "classify-processor",
		subjects:   inputSubjects,
		outputSubj: outputSubject,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent("classify-processor"),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		wg:         &sync.WaitGroup{},
		metrics:    metrics,
	}, nil
}

// Initialize prepares the processor (no-op for classify)
func (p *Processor) Initialize() error {
	return nil
}

// Start subscribes to the raw row subject and begins classifying
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "ClassifyProcessor", "Start", "check running state")
	}

	if p.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "ClassifyProcessor", "Start", "NATS client required")
	}

	for _, subject := range p.subjects {
		if err := p.natsClient.Subscribe(ctx, subject, p.handleMessage); err != nil {
			return errors.WrapTransient(err, "ClassifyProcessor", "Start",
				fmt.Sprintf("subscribe to %s", subject))
		}
	}

	p.mu.Lock()
	p.running = true
	p.startTime = time.Now()
	p.mu.Unlock()

	p.logger.Info("Classify processor started",
		"input_subjects", p.subjects,
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
			"ClassifyProcessor", "Stop", "graceful shutdown")
	}

	p.mu.Lock()
	p.running = false
	close(p.done)
	p.mu.Unlock()

	return nil
}

// handleMessage classifies one raw inventory row and republishes it
func (p *Processor) handleMessage(ctx context.Context, msgData []byte) {
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

	row, ok := baseMsg.Payload().(*message.IndexRowPayload)
	if !ok {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("type")
		p.logger.Debug("Payload is not an inventory row",
			"actual_type", fmt.Sprintf("%T", baseMsg.Payload()))
		return
	}

	if err := row.Validate(); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("validation")
		p.logger.Debug("Row validation failed", "error", err)
		return
	}

	start := time.Now()
	classified := classifyRow(*row)
	duration := time.Since(start)
	atomic.AddInt64(&p.rowsClassified, 1)
	p.metrics.recordClassification(string(classified.Parsed.Scheme), duration)

	outputMsg := message.NewBaseMessage(message.ClassifiedRowMessage, &classified, p.name)
	data, err := json.Marshal(outputMsg)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("marshal")
		p.logger.Error("Failed to marshal classified row", "error", err)
		return
	}

	if err := p.natsClient.Publish(ctx, p.outputSubj, data); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError("publish")
		p.logger.Error("Failed to publish classified row",
			"output_subject", p.outputSubj,
			"index", row.IndexName,
			"error", err)
	}
}

// classifyRow is the pure transform: decompose the index name and, when the
// engine yields no environment token, attach the keyword bucket.
func classifyRow(row message.IndexRowPayload) message.ClassifiedRowPayload {
	parsed := indexname.Parse(row.IndexName)

	out := message.ClassifiedRowPayload{
		Row:    row,
		Parsed: parsed,
	}
	if parsed.Environment == nil || *parsed.Environment == "" {
		out.EnvironmentKeyword = indexname.ClassifyEnvironment(row.IndexName)
	}
	return out
}

// Discoverable interface implementation

// Meta returns metadata describing this processor component.
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        p.name,
		Type:        "processor",
		Description: "Index-name decomposition processor (inventory.index.v1 to inventory.classified.v1)",
		Version:     "1.0.0",
	}
}

// InputPorts returns the NATS input ports this processor subscribes to.
func (p *Processor) InputPorts() []component.Port {
	ports := make([]component.Port, len(p.subjects))
	for i, subj := range p.subjects {
		ports[i] = component.Port{
			Name:      fmt.Sprintf("rows_%d", i),
			Direction: component.DirectionInput,
			Required:  true,
			Config: component.NATSPort{
				Subject: subj,
				Interface: &component.InterfaceContract{
					Type:    "inventory.index.v1",
					Version: "v1",
				},
			},
		}
	}
	return ports
}

// OutputPorts returns the NATS output port for classified rows.
func (p *Processor) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "classified",
			Direction: component.DirectionOutput,
			Required:  true,
			Config: component.NATSPort{
				Subject: p.outputSubj,
				Interface: &component.InterfaceContract{
					Type:    "inventory.classified.v1",
					Version: "v1",
				},
			},
		},
	}
}

// ConfigSchema returns the configuration schema for this processor.
func (p *Processor) ConfigSchema() component.ConfigSchema {
	return classifySchema
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

// Register registers the classify processor with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "classify",
		Factory:     NewProcessor,
		Schema:      classifySchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "inventory",
		Description: "Decomposes index names and classifies their environment",
		Version:     "1.0.0",
	})
}
