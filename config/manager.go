package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Update describes a configuration change delivered to subscribers.
type Update struct {
	Path   string      // Dotted path that changed (e.g., "components.clusterscan-prod")
	Config *SafeConfig // Full configuration after the change
}

// Manager owns the live application configuration and fans out change
// notifications to subscribers. Changes enter through Apply (used by the
// HTTP config endpoints); the service and component managers subscribe via
// OnChange and react to the paths they care about.
type Manager struct {
	safeConfig *SafeConfig
	logger     *slog.Logger

	mu          sync.Mutex
	subscribers map[string][]chan Update
	running     bool
}

// subscriberBuffer bounds pending notifications per subscriber. Slow
// consumers lose intermediate updates, not the final state: every Update
// carries the full current config.
const subscriberBuffer = 16

// NewConfigManager creates a Manager around the given configuration.
func NewConfigManager(cfg *Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		safeConfig:  NewSafeConfig(cfg),
		logger:      logger,
		subscribers: make(map[string][]chan Update),
	}, nil
}

// Start marks the manager as running. Subscriptions registered before Start
// are retained.
func (cm *Manager) Start(_ context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.running {
		return fmt.Errorf("config manager already started")
	}
	cm.running = true

	cm.logger.Debug("Config manager started")
	return nil
}

// Stop closes all subscriber channels. The timeout parameter is accepted for
// lifecycle symmetry with services; shutdown here is immediate.
func (cm *Manager) Stop(_ time.Duration) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.running {
		return nil
	}
	cm.running = false

	for pattern, channels := range cm.subscribers {
		for _, ch := range channels {
			close(ch)
		}
		delete(cm.subscribers, pattern)
	}

	cm.logger.Debug("Config manager stopped")
	return nil
}

// GetConfig returns the thread-safe configuration wrapper.
func (cm *Manager) GetConfig() *SafeConfig {
	return cm.safeConfig
}

// OnChange subscribes to configuration changes matching the given pattern.
// Patterns are dotted paths where a trailing "*" segment matches any single
// segment: "services.*" matches "services.metrics", "components.bulkload"
// matches only that component, "platform" matches platform changes.
//
// The returned channel is closed when the manager stops.
func (cm *Manager) OnChange(pattern string) <-chan Update {
	ch := make(chan Update, subscriberBuffer)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.subscribers[pattern] = append(cm.subscribers[pattern], ch)

	return ch
}

// Apply mutates the configuration atomically and notifies subscribers whose
// pattern matches path. The mutation runs on a deep copy; the swap only
// happens if the mutated config validates.
func (cm *Manager) Apply(path string, mutate func(*Config)) error {
	if mutate == nil {
		return fmt.Errorf("mutate function cannot be nil")
	}

	updated := cm.safeConfig.Get()
	mutate(updated)

	if err := cm.safeConfig.Update(updated); err != nil {
		return fmt.Errorf("apply config change at %s: %w", path, err)
	}

	cm.notify(path)
	return nil
}

// notify delivers an Update to every subscriber whose pattern matches path.
// Sends are non-blocking: a full subscriber buffer drops the notification.
func (cm *Manager) notify(path string) {
	update := Update{Path: path, Config: cm.safeConfig}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.running {
		return
	}

	for pattern, channels := range cm.subscribers {
		if !matchPath(pattern, path) {
			continue
		}
		for _, ch := range channels {
			select {
			case ch <- update:
			default:
				cm.logger.Warn("Dropping config update for slow subscriber",
					"pattern", pattern,
					"path", path)
			}
		}
	}
}

// matchPath reports whether a subscription pattern matches a change path.
// Each "*" segment in the pattern matches exactly one path segment.
func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	pathParts := strings.Split(path, ".")
	if len(patternParts) != len(pathParts) {
		return false
	}

	for i, part := range patternParts {
		if part != "*" && part != pathParts[i] {
			return false
		}
	}
	return true
}
