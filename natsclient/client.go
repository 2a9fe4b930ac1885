package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
)

// ConnectionStatus is the connection state as seen by the circuit breaker.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota // no connection yet, or closed
	StatusConnecting
	StatusConnected
	StatusReconnecting // underlying client is retrying
	StatusCircuitOpen  // breaker tripped, backoff in effect
)

var connStatusNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "circuit_open"}

// String returns the status name used in health output.
func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(connStatusNames) {
		return "unknown"
	}
	return connStatusNames[s]
}

// Sentinel errors surfaced to callers.
var (
	ErrCircuitOpen       = stderrors.New("circuit breaker is open")
	ErrNotConnected      = stderrors.New("not connected to NATS")
	ErrConnectionTimeout = stderrors.New("connection timeout")
)

// Status is a point-in-time snapshot reported by the health endpoints.
type Status struct {
	Status          ConnectionStatus
	RTT             time.Duration
	Reconnects      int32
	FailureCount    int32
	LastFailureTime time.Time
}

// Client wraps a NATS connection with a circuit breaker and health
// monitoring. The pipeline publishes inventory rows, subscribes processors
// and outputs, and stores scan snapshots through JetStream object store
// buckets; everything else in the NATS API is out of scope here.
type Client struct {
	url      string
	status   atomic.Value // ConnectionStatus
	failures atomic.Int32
	logger   *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	// Circuit breaker. Failures within one round open the circuit;
	// backoff doubles per open up to maxBackoff.
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32
	maxBackoff       time.Duration

	// Connection tuning
	timeout       time.Duration
	reconnectWait time.Duration
	pingInterval  time.Duration
	drainTimeout  time.Duration
	maxReconnects int

	// Credentials, cleared on Close
	username string
	password string
	token    string

	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	clientName string

	// Object store metrics (snapshot bucket sizes)
	osMetrics       *objectStoreMetrics
	metricsCancel   context.CancelFunc
	metricsInterval time.Duration

	onDisconnect   func(error)
	onReconnect    func()
	onHealthChange func(bool)

	healthTicker   *time.Ticker
	healthInterval time.Duration
	healthDone     chan struct{}

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client for the given server URL. The connection is
// not opened until Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:    url,
		logger: slog.Default(),

		maxReconnects: -1, // keep retrying, scans are long-lived
		timeout:       5 * time.Second,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		drainTimeout:  30 * time.Second,

		circuitThreshold: 5,
		maxBackoff:       time.Minute,

		healthInterval:  10 * time.Second,
		metricsInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		if optErr := opt(c); optErr != nil {
			return nil, errors.WrapInvalid(optErr, "Client", "NewClient", "apply option")
		}
	}

	c.lastFailure.Store(time.Time{})
	c.backoff.Store(time.Second)
	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the configured server URL.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	if val := c.status.Load(); val != nil {
		return val.(ConnectionStatus)
	}
	return StatusDisconnected
}

// GetConnection exposes the raw connection for callers that need request
// subscriptions the wrapper does not cover (the snapshot API responder).
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// IsHealthy reports whether the connection is established and stable.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the total failure count since the last circuit reset.
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the current circuit backoff duration.
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

// recordFailure counts a failure toward the circuit threshold, opening the
// circuit and doubling the backoff once the threshold is reached.
func (c *Client) recordFailure() {
	total := c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	round := c.circuitFailures.Add(1)
	c.logger.Debug("Recorded connection failure", "total", total, "circuit_failures", round)

	if round < c.circuitThreshold {
		return
	}

	current := c.Status()
	if current != StatusCircuitOpen {
		// Only one goroutine wins the transition to open.
		if c.status.CompareAndSwap(current, StatusCircuitOpen) {
			currentBackoff := c.backoff.Load().(time.Duration)
			c.backoff.Store(capBackoff(currentBackoff*2, c.maxBackoff))
			c.circuitFailures.Store(0)

			c.logger.Warn("Circuit breaker opened",
				"failures", round, "backoff", currentBackoff)

			time.AfterFunc(currentBackoff, c.testCircuit)
		}
		return
	}

	// Failures kept arriving while the circuit was already open.
	next := capBackoff(c.backoff.Load().(time.Duration)*2, c.maxBackoff)
	c.backoff.Store(next)
	c.circuitFailures.Store(0)
	c.logger.Warn("Circuit breaker still open, increased backoff", "backoff", next)
}

func capBackoff(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}

// resetCircuit clears failure counts after a successful operation.
func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// testCircuit half-opens the circuit after the backoff elapses so the next
// operation may try again.
func (c *Client) testCircuit() {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debug("Circuit breaker backoff elapsed, allowing retry")
		c.setStatus(StatusDisconnected)
	}
}

// noteConnectFailure records a connect failure and reports whether the
// breaker ended up open; otherwise the status drops back to disconnected.
func (c *Client) noteConnectFailure() bool {
	c.recordFailure()
	if c.Status() == StatusCircuitOpen {
		return true
	}
	c.setStatus(StatusDisconnected)
	return false
}

// requireConnected gates object store calls on the breaker and connection
// state.
func (c *Client) requireConnected() error {
	switch {
	case c.Status() == StatusCircuitOpen:
		return ErrCircuitOpen
	case c.Status() != StatusConnected:
		return ErrNotConnected
	}
	return nil
}

// WaitForConnection blocks until the connection is healthy or the context
// expires.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("connection timeout: %w", ctx.Err())
		}
	}
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}

	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}

	return opts
}

// GetStatus returns a snapshot for the health and status endpoints.
func (c *Client) GetStatus() *Status {
	status := &Status{
		Status:          c.Status(),
		FailureCount:    c.failures.Load(),
		LastFailureTime: c.lastFailure.Load().(time.Time),
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil && conn.IsConnected() {
		if rtt, rttErr := conn.RTT(); rttErr == nil {
			status.RTT = rtt
		}
	}
	return status
}

// Connect establishes the connection and initializes JetStream. It respects
// an open circuit and records failures against it.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debug("Circuit breaker is open, skipping connection attempt")
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.buildConnectionOptions()...)
		if err != nil {
			connectDone <- err
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if js, err := jetstream.New(conn); err == nil {
			c.mu.Lock()
			c.js = js
			c.mu.Unlock()
		}

		connectDone <- nil
	}()

	select {
	case <-ctx.Done():
		c.noteConnectFailure()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	case err := <-connectDone:
		if err == nil {
			break
		}
		if c.noteConnectFailure() {
			return ErrCircuitOpen
		}
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("Connected to NATS", "url", c.url)

	if c.healthInterval > 0 {
		c.startHealthMonitoring()
	}

	if c.osMetrics != nil && c.metricsInterval > 0 {
		c.metricsCancel = c.osMetrics.startPoller(context.Background(), c.metricsInterval)
	}

	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}

	return nil
}

// Close drains subscriptions and closes the connection. Safe to call more
// than once; credentials are cleared from memory.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	// Stop monitors before taking the main lock.
	c.stopHealthMonitoring()
	if c.metricsCancel != nil {
		c.metricsCancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
			c.logger.Error("Failed to unsubscribe", "error", err)
		}
	}
	c.subs = nil

	if c.conn != nil {
		wait := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left > 0 && left < wait {
				wait = left
			}
		}

		drainDone := make(chan error, 1)
		go func() { drainDone <- c.conn.Drain() }()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
				c.logger.Error("Drain error", "error", err)
			}
		case <-time.After(wait):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", wait),
				"Client", "Close", "drain timeout"))
			c.logger.Error("Drain timeout, force closing", "timeout", wait)
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain"))
			c.logger.Error("Context cancelled during drain, force closing")
		}

		c.conn.Close()
		c.conn = nil
	}

	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusDisconnected)

	if len(errs) == 0 {
		return nil
	}
	msg := "cleanup errors:"
	for i, e := range errs {
		msg += fmt.Sprintf("\n  [%d] %v", i+1, e)
	}
	return fmt.Errorf("%s", msg)
}

// Subscribe registers a handler for a subject. Each delivery gets a context
// derived from the subscribe context with a 30-second processing timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		handler(msgCtx, msg.Data)
		cancel()
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Publish sends data on a subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil && conn.IsConnected() {
		return conn.Publish(subject, data)
	}
	return ErrNotConnected
}

// JetStream returns the JetStream context backing the object store.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "JetStream", "get JetStream context")
	}

	return c.js, nil
}

// CreateObjectStoreBucket creates the snapshot bucket, or binds to it when
// it already exists (including the create/create race on restart).
func (c *Client) CreateObjectStoreBucket(ctx context.Context, cfg jetstream.ObjectStoreConfig) (jetstream.ObjectStore, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	js, err := c.JetStream()
	if err != nil {
		c.recordFailure()
		return nil, err
	}

	bucket, err := js.ObjectStore(ctx, cfg.Bucket)
	if err == nil {
		c.logger.Info("Using existing object store bucket", "bucket", cfg.Bucket)
		return c.adoptBucket(cfg.Bucket, bucket), nil
	}

	bucket, err = js.CreateObjectStore(ctx, cfg)
	if err != nil {
		if isAlreadyExistsError(err) {
			bucket, err = js.ObjectStore(ctx, cfg.Bucket)
			if err != nil {
				c.recordFailure()
				c.osMetrics.recordError("bind_object_store")
				return nil, errors.Wrap(err, "Client", "CreateObjectStoreBucket",
					fmt.Sprintf("access existing bucket %s", cfg.Bucket))
			}
			return c.adoptBucket(cfg.Bucket, bucket), nil
		}
		c.recordFailure()
		c.osMetrics.recordError("create_object_store")
		return nil, err
	}

	c.logger.Info("Created object store bucket", "bucket", cfg.Bucket)
	return c.adoptBucket(cfg.Bucket, bucket), nil
}

// adoptBucket resets the breaker after a successful bind and registers the
// bucket for size metrics.
func (c *Client) adoptBucket(name string, bucket jetstream.ObjectStore) jetstream.ObjectStore {
	c.resetCircuit()
	c.osMetrics.trackBucket(name, bucket)
	return bucket
}

// GetObjectStoreBucket binds to an existing bucket.
func (c *Client) GetObjectStoreBucket(ctx context.Context, name string) (jetstream.ObjectStore, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	js, err := c.JetStream()
	if err != nil {
		c.recordFailure()
		return nil, err
	}

	bucket, err := js.ObjectStore(ctx, name)
	if err != nil {
		c.recordFailure()
		c.osMetrics.recordError("bind_object_store")
		return nil, err
	}

	return c.adoptBucket(name, bucket), nil
}

// OnHealthChange sets a callback invoked when connection health flips.
func (c *Client) OnHealthChange(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHealthChange = fn
}

// notifyHealth fires the health callback in its own goroutine so NATS
// event handlers never block on user code.
func (c *Client) notifyHealth(healthy bool) {
	c.mu.RLock()
	fn := c.onHealthChange
	c.mu.RUnlock()

	if fn != nil {
		go fn(healthy)
	}
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)

	c.mu.RLock()
	onDisconnect := c.onDisconnect
	c.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.osMetrics.recordReconnect()

	c.mu.RLock()
	onReconnect := c.onReconnect
	c.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
	c.notifyHealth(true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.notifyHealth(false)
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	// May fire for per-subscription errors, so no circuit failure here.
	c.logger.Error("NATS error", "error", err)
}

// startHealthMonitoring pings the connection on an interval and drives the
// onHealthChange callback.
func (c *Client) startHealthMonitoring() {
	c.stopHealthMonitoring()

	c.mu.Lock()
	c.healthTicker = time.NewTicker(c.healthInterval)
	c.healthDone = make(chan struct{})
	ticker := c.healthTicker
	done := c.healthDone
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		lastHealthy := c.IsHealthy()

		for {
			select {
			case <-ticker.C:
				c.mu.RLock()
				conn := c.conn
				c.mu.RUnlock()
				if conn == nil {
					continue
				}

				healthy := conn.IsConnected()
				if _, rttErr := conn.RTT(); rttErr != nil {
					healthy = false
				}

				switch {
				case healthy && c.Status() != StatusConnected:
					c.setStatus(StatusConnected)
				case !healthy && c.Status() == StatusConnected:
					c.setStatus(StatusReconnecting)
				}
				if healthy != lastHealthy && c.onHealthChange != nil {
					c.onHealthChange(healthy)
				}
				lastHealthy = healthy
			case <-done:
				return
			}
		}
	}()
}

func (c *Client) stopHealthMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthTicker != nil {
		c.healthTicker.Stop()
		c.healthTicker = nil
	}
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}

// isAlreadyExistsError matches the server's bucket/stream collision errors.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "bucket name already in use") ||
		strings.Contains(msg, "stream name already in use")
}
