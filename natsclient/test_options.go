package natsclient

import "time"

// WithFastStartup trades startup robustness for speed. For unit tests that
// only need a live connection.
func WithFastStartup() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout, cfg.startTimeout = 2*time.Second, 10*time.Second
	}
}

// WithIntegrationDefaults enables JetStream with timeouts sized for
// integration tests.
func WithIntegrationDefaults() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout, cfg.startTimeout = 5*time.Second, 30*time.Second
		cfg.jetstream = true
	}
}

// WithE2EDefaults enables everything a full pipeline test needs, including
// the object store backing snapshots.
func WithE2EDefaults() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout, cfg.startTimeout = 10*time.Second, 60*time.Second
		cfg.jetstream, cfg.objectStore = true, true
	}
}

// WithMinimalFeatures is bare pub/sub, the fastest server to stand up.
func WithMinimalFeatures() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout, cfg.startTimeout = time.Second, 5*time.Second
		cfg.jetstream, cfg.objectStore = false, false
	}
}
