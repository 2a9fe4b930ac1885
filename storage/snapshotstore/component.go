// Package snapshotstore persists completed scan passes as snapshot objects
// in a NATS JetStream object store bucket and serves them back over a
// request/reply API.
package snapshotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/message"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
)

// snapshotstoreSchema defines the configuration schema for the snapshot store
var snapshotstoreSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Request is a snapshot API request.
type Request struct {
	Action  string `json:"action"` // "get", "list", "delete"
	Cluster string `json:"cluster,omitempty"`
	ScanID  string `json:"scan_id,omitempty"`
}

// Response is a snapshot API response.
type Response struct {
	Success  bool            `json:"success"`
	Key      string          `json:"key,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Keys     []string        `json:"keys,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Event is published on the events port when a snapshot is stored or deleted.
type Event struct {
	Type      string    `json:"type"` // "stored", "deleted"
	Key       string    `json:"key"`
	Cluster   string    `json:"cluster,omitempty"`
	ScanID    string    `json:"scan_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// scanState accumulates the rows of one scan pass until its completion marker.
type scanState struct {
	cluster     string
	rows        map[string]SnapshotRow // index name -> row
	lastTouched time.Time
}

// Component accumulates classified rows per scan and, on the scan's
// completion marker, persists the whole pass as one snapshot object.
type Component struct {
	name          string
	config        Config
	rowSubject    string
	markerSubject string
	apiSubject    string
	eventSubject  string
	staleAfter    time.Duration

	store      *Store
	natsClient *natsclient.Client
	registry   *metric.MetricsRegistry
	logger     *slog.Logger

	// Scan accumulation
	scansMu sync.Mutex
	scans   map[string]*scanState // scan ID -> state

	// API subscription (request/reply needs the raw connection)
	apiSub *nats.Subscription

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
	snapshotsStored   int64
	errorCount        int64
	lastActivity      time.Time

	metrics *storeMetrics
}

// Ensure Component implements all required interfaces
var _ component.Discoverable = (*Component)(nil)
var _ component.LifecycleComponent = (*Component)(nil)

// NewComponent creates a snapshot store component from configuration
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "SnapshotStore", "NewComponent", "config unmarshal")
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
		if userConfig.BucketName != "" {
			cfg.BucketName = userConfig.BucketName
		}
		if userConfig.DataCache.Enabled || userConfig.DataCache.MaxSize > 0 {
			cfg.DataCache = userConfig.DataCache
		}
		if userConfig.StaleAfter != "" {
			cfg.StaleAfter = userConfig.StaleAfter
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var rowSubject, markerSubject, apiSubject, eventSubject string
	for _, input := range cfg.Ports.Inputs {
		switch {
		case input.Type == "nats-request":
			apiSubject = input.Subject
		case input.Name == "markers":
			markerSubject = input.Subject
		case input.Type == "nats" && rowSubject == "":
			rowSubject = input.Subject
		}
	}
	for _, output := range cfg.Ports.Outputs {
		if output.Type == "nats" {
			eventSubject = output.Subject
			break
		}
	}

	if rowSubject == "" || markerSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"SnapshotStore", "NewComponent", "classified and marker input subjects required")
	}

	staleAfter, _ := time.ParseDuration(cfg.StaleAfter)

	return &Component{
		name:          "snapshotstore",
		config:        cfg,
		rowSubject:    rowSubject,
		markerSubject: markerSubject,
		apiSubject:    apiSubject,
		eventSubject:  eventSubject,
		staleAfter:    staleAfter,
		natsClient:    deps.NATSClient,
		registry:      deps.MetricsRegistry,
		logger:        deps.GetLoggerWithComponent("snapshotstore"),
		scans:         make(map[string]*scanState),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		wg:            &sync.WaitGroup{},
	}, nil
}

// Initialize verifies dependencies before Start
func (c *Component) Initialize() error {
	if c.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "SnapshotStore", "Initialize", "NATS client required")
	}
	return nil
}

// Start binds the snapshot bucket and subscribes to rows, markers and the API
func (c *Component) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "SnapshotStore", "Start", "check running state")
	}
	if c.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "SnapshotStore", "Start", "NATS client required")
	}

	store, err := NewStore(ctx, c.natsClient, c.config, c.registry)
	if err != nil {
		return err
	}
	c.store = store
	c.metrics = store.metrics

	if err := c.natsClient.Subscribe(ctx, c.rowSubject, c.handleRow); err != nil {
		return errors.WrapTransient(err, "SnapshotStore", "Start",
			fmt.Sprintf("subscribe to %s", c.rowSubject))
	}
	if err := c.natsClient.Subscribe(ctx, c.markerSubject, c.handleMarker); err != nil {
		return errors.WrapTransient(err, "SnapshotStore", "Start",
			fmt.Sprintf("subscribe to %s", c.markerSubject))
	}

	if c.apiSubject != "" {
		c.apiSub, err = c.natsClient.GetConnection().Subscribe(c.apiSubject, c.handleAPIRequest)
		if err != nil {
			return errors.WrapTransient(err, "SnapshotStore", "Start",
				fmt.Sprintf("subscribe to %s", c.apiSubject))
		}
	}

	if c.staleAfter > 0 {
		c.wg.Add(1)
		go c.evictLoop(ctx)
	}

	c.mu.Lock()
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	c.logger.Info("Snapshot store started",
		"bucket", c.config.BucketName,
		"row_subject", c.rowSubject,
		"marker_subject", c.markerSubject,
		"api_subject", c.apiSubject)

	return nil
}

// Stop gracefully stops the component
func (c *Component) Stop(timeout time.Duration) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.running {
		return nil
	}

	close(c.shutdown)

	if c.apiSub != nil {
		if err := c.apiSub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe from API subject", "error", err)
		}
		c.apiSub = nil
	}

	waitCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		// Clean shutdown
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"SnapshotStore", "Stop", "graceful shutdown")
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("Failed to close snapshot store", "error", err)
		}
	}

	c.mu.Lock()
	c.running = false
	close(c.done)
	c.mu.Unlock()

	return nil
}

// evictLoop drops scans that never completed.
func (c *Component) evictLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.staleAfter / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.staleAfter)
			c.scansMu.Lock()
			for id, state := range c.scans {
				if state.lastTouched.Before(cutoff) {
					delete(c.scans, id)
					c.metrics.recordEviction()
					c.logger.Warn("Evicted stale scan accumulation", "scan_id", id)
				}
			}
			c.scansMu.Unlock()
		}
	}
}

// handleRow folds one classified row into its scan's pending snapshot.
func (c *Component) handleRow(_ context.Context, msgData []byte) {
	atomic.AddInt64(&c.messagesProcessed, 1)
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msgData, &baseMsg); err != nil {
		atomic.AddInt64(&c.errorCount, 1)
		c.metrics.recordError("parse")
		c.logger.Debug("Failed to parse message as BaseMessage", "error", err)
		return
	}

	classified, ok := baseMsg.Payload().(*message.ClassifiedRowPayload)
	if !ok {
		atomic.AddInt64(&c.errorCount, 1)
		c.metrics.recordError("type")
		return
	}

	c.accumulate(classified)
}

// accumulate records one row under its scan ID, re-deliveries overwrite.
func (c *Component) accumulate(classified *message.ClassifiedRowPayload) {
	row := classified.Row
	c.scansMu.Lock()
	defer c.scansMu.Unlock()

	state, ok := c.scans[row.ScanID]
	if !ok {
		state = &scanState{
			cluster: row.Cluster,
			rows:    make(map[string]SnapshotRow),
		}
		c.scans[row.ScanID] = state
	}
	state.rows[row.IndexName] = snapshotRow(classified)
	state.lastTouched = time.Now()
	c.metrics.recordRow()
}

// handleMarker persists the scan's snapshot on its completion marker.
func (c *Component) handleMarker(ctx context.Context, msgData []byte) {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msgData, &baseMsg); err != nil {
		atomic.AddInt64(&c.errorCount, 1)
		c.metrics.recordError("parse")
		return
	}

	marker, ok := baseMsg.Payload().(*message.ScanMarkerPayload)
	if !ok || !marker.Complete {
		return
	}

	c.scansMu.Lock()
	state, found := c.scans[marker.ScanID]
	if found {
		delete(c.scans, marker.ScanID)
	}
	c.scansMu.Unlock()

	if !found {
		c.logger.Warn("Completion marker for unknown scan", "scan_id", marker.ScanID)
		return
	}

	snap := buildSnapshot(state.cluster, marker.ScanID, state.rows)
	data, err := json.Marshal(snap)
	if err != nil {
		atomic.AddInt64(&c.errorCount, 1)
		c.metrics.recordError("marshal")
		c.logger.Error("Failed to marshal snapshot", "scan_id", marker.ScanID, "error", err)
		return
	}

	key := snapshotKey(snap.Cluster, snap.ScanID)
	if err := c.store.Put(ctx, key, data); err != nil {
		atomic.AddInt64(&c.errorCount, 1)
		c.logger.Error("Failed to persist snapshot", "key", key, "error", err)
		return
	}

	atomic.AddInt64(&c.snapshotsStored, 1)
	c.metrics.recordSnapshot()
	c.publishEvent(ctx, Event{
		Type:      "stored",
		Key:       key,
		Cluster:   snap.Cluster,
		ScanID:    snap.ScanID,
		Timestamp: time.Now().UTC(),
	})

	c.logger.Info("Persisted scan snapshot",
		"key", key,
		"scan_id", snap.ScanID,
		"rows", snap.IndexCount)
}

// handleAPIRequest serves synchronous get/list/delete requests.
func (c *Component) handleAPIRequest(msg *nats.Msg) {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.respondWithError(msg, fmt.Errorf("invalid request: %w", err))
		return
	}

	c.metrics.recordAPIRequest(req.Action)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch req.Action {
	case "get":
		if req.Cluster == "" || req.ScanID == "" {
			c.respondWithError(msg, fmt.Errorf("get requires cluster and scan_id"))
			return
		}
		key := snapshotKey(req.Cluster, req.ScanID)
		data, err := c.store.Get(ctx, key)
		if err != nil {
			c.respondWithError(msg, err)
			return
		}
		c.respond(msg, Response{Success: true, Key: key, Snapshot: data})

	case "list":
		prefix := keyRoot + "/"
		if req.Cluster != "" {
			prefix = clusterPrefix(req.Cluster)
		}
		keys, err := c.store.List(ctx, prefix)
		if err != nil {
			c.respondWithError(msg, err)
			return
		}
		c.respond(msg, Response{Success: true, Keys: keys})

	case "delete":
		if req.Cluster == "" || req.ScanID == "" {
			c.respondWithError(msg, fmt.Errorf("delete requires cluster and scan_id"))
			return
		}
		key := snapshotKey(req.Cluster, req.ScanID)
		if err := c.store.Delete(ctx, key); err != nil {
			c.respondWithError(msg, err)
			return
		}
		c.respond(msg, Response{Success: true, Key: key})
		c.publishEvent(ctx, Event{
			Type:      "deleted",
			Key:       key,
			Cluster:   req.Cluster,
			ScanID:    req.ScanID,
			Timestamp: time.Now().UTC(),
		})

	default:
		c.respondWithError(msg, fmt.Errorf("unknown action: %s", req.Action))
	}
}

// publishEvent publishes a storage event when the events port is configured.
func (c *Component) publishEvent(ctx context.Context, event Event) {
	if c.eventSubject == "" {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal storage event", "error", err)
		return
	}
	if err := c.natsClient.Publish(ctx, c.eventSubject, data); err != nil {
		c.logger.Error("Failed to publish storage event",
			"subject", c.eventSubject, "error", err)
	}
}

// respond sends a response for the request/reply pattern.
func (c *Component) respond(msg *nats.Msg, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Failed to marshal response", "error", err, "subject", msg.Subject)
		return
	}
	if err := msg.Respond(data); err != nil {
		c.logger.Error("Failed to send response", "error", err, "subject", msg.Subject)
	}
}

// respondWithError sends an error response.
func (c *Component) respondWithError(msg *nats.Msg, err error) {
	c.respond(msg, Response{Success: false, Error: err.Error()})
}

// Discoverable interface implementation

// Meta returns metadata describing the snapshot store component.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "storage",
		Description: "Persists completed scan passes as snapshot objects in a NATS object store",
		Version:     "1.0.0",
	}
}

// InputPorts returns the NATS input ports for rows, markers and the API.
func (c *Component) InputPorts() []component.Port {
	ports := []component.Port{
		{
			Name:      "classified",
			Direction: component.DirectionInput,
			Required:  true,
			Config: component.NATSPort{
				Subject: c.rowSubject,
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
				Subject: c.markerSubject,
				Interface: &component.InterfaceContract{
					Type:    "inventory.scanmarker.v1",
					Version: "v1",
				},
			},
		},
	}
	if c.apiSubject != "" {
		ports = append(ports, component.Port{
			Name:      "api",
			Direction: component.DirectionInput,
			Required:  false,
			Config: component.NATSRequestPort{
				Subject: c.apiSubject,
				Timeout: "2s",
			},
		})
	}
	return ports
}

// OutputPorts returns the events output port when configured.
func (c *Component) OutputPorts() []component.Port {
	if c.eventSubject == "" {
		return []component.Port{}
	}
	return []component.Port{
		{
			Name:      "events",
			Direction: component.DirectionOutput,
			Required:  false,
			Config: component.NATSPort{
				Subject: c.eventSubject,
			},
		},
	}
}

// ConfigSchema returns the configuration schema for this component.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return snapshotstoreSchema
}

// Health returns the current health status of the snapshot store.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    c.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&c.errorCount)),
		Uptime:     time.Since(c.startTime),
	}
}

// DataFlow returns current data flow metrics for the snapshot store.
func (c *Component) DataFlow() component.FlowMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	processed := atomic.LoadInt64(&c.messagesProcessed)
	errorCount := atomic.LoadInt64(&c.errorCount)

	var errorRate float64
	if processed > 0 {
		errorRate = float64(errorCount) / float64(processed)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: c.lastActivity,
	}
}

// Register registers the snapshot store component with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "snapshotstore",
		Factory:     NewComponent,
		Schema:      snapshotstoreSchema,
		Type:        "storage",
		Protocol:    "objectstore",
		Domain:      "inventory",
		Description: "Persists completed scan passes as snapshot objects in a NATS object store",
		Version:     "1.0.0",
	})
}
