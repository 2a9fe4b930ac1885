package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/metric"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client) error

// positiveDuration builds an option that assigns d to the field selected
// by dst, rejecting zero and negative values.
func positiveDuration(what string, d time.Duration, dst func(*Client) *time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", what, d)
		}
		*dst(c) = d
		return nil
	}
}

// WithMaxReconnects sets the reconnect attempt limit (-1 for unlimited).
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error { c.maxReconnects = max; return nil }
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return positiveDuration("reconnect wait", d, func(c *Client) *time.Duration { return &c.reconnectWait })
}

// WithPingInterval sets the protocol ping interval.
func WithPingInterval(d time.Duration) ClientOption {
	return positiveDuration("ping interval", d, func(c *Client) *time.Duration { return &c.pingInterval })
}

// WithHealthInterval sets how often the health monitor probes the
// connection. Zero disables monitoring.
func WithHealthInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("health interval cannot be negative, got %v", d)
		}
		c.healthInterval = d
		return nil
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithDisconnectCallback registers a callback for disconnect events,
// in addition to the client's own disconnect handling.
func WithDisconnectCallback(fn func(error)) ClientOption {
	return func(c *Client) error { c.onDisconnect = fn; return nil }
}

// WithReconnectCallback registers a callback for reconnect events.
func WithReconnectCallback(fn func()) ClientOption {
	return func(c *Client) error { c.onReconnect = fn; return nil }
}

// WithHealthChangeCallback registers a callback invoked when connection
// health flips.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error { c.onHealthChange = fn; return nil }
}

// WithCircuitBreakerThreshold sets how many consecutive failures open
// the circuit. Values below 1 fall back to the default of 5.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			threshold = 5
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps the circuit breaker backoff. Values below one
// second fall back to the default of one minute.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			d = time.Minute
		}
		c.maxBackoff = d
		return nil
	}
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error { c.username = username; c.password = password; return nil }
}

// WithToken sets token authentication.
func WithToken(token string) ClientOption {
	return func(c *Client) error { c.token = token; return nil }
}

// WithTLS enables TLS with the given certificate files.
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) error {
		c.tlsEnabled = true
		c.tlsCertFile, c.tlsKeyFile, c.tlsCAFile = certFile, keyFile, caFile
		return nil
	}
}

// WithName sets the client name visible in server monitoring.
func WithName(name string) ClientOption {
	return func(c *Client) error { c.clientName = name; return nil }
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) ClientOption {
	return positiveDuration("timeout", d, func(c *Client) *time.Duration { return &c.timeout })
}

// WithDrainTimeout bounds the connection drain during Close.
func WithDrainTimeout(d time.Duration) ClientOption {
	return positiveDuration("drain timeout", d, func(c *Client) *time.Duration { return &c.drainTimeout })
}

// WithMetrics exports object store bucket sizes and connection errors
// through the registry. A nil registry disables export.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry == nil {
			return nil
		}

		metrics, err := newObjectStoreMetrics(registry)
		if err != nil {
			return err
		}

		c.osMetrics = metrics
		return nil
	}
}
