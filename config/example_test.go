package config_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/config"
)

// ExampleLoader_Load demonstrates loading configuration from multiple layers
// with environment variable overrides and validation.
func ExampleLoader_Load() {
	loader := config.NewLoader()

	// Add base configuration layer
	loader.AddLayer("testdata/base.json")

	// Add environment-specific overrides
	loader.AddLayer("testdata/production.json")

	// Enable validation to catch errors early
	loader.EnableValidation(true)

	// Load merged configuration
	cfg, err := loader.Load()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(cfg.Platform.ID)
	// Output: test-platform
}

// ExampleLoader_Load_environmentOverrides demonstrates using environment
// variables to override configuration values at runtime.
func ExampleLoader_Load_environmentOverrides() {
	// Set environment variables (in real usage, these would be set externally)
	// export ESDIC_PLATFORM_ID="ingest-calc-prod-01"
	// export ESDIC_NATS_URLS="nats://server1:4222,nats://server2:4222"
	// export ESDIC_CLUSTER_ADDRESSES="https://es1:9200,https://es2:9200"

	loader := config.NewLoader()
	loader.AddLayer("testdata/base.json")

	cfg, err := loader.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Platform ID, NATS URLs and cluster addresses can be overridden via
	// environment
	fmt.Printf("Platform: %s\n", cfg.Platform.ID)
	fmt.Printf("Monitored cluster: %s\n", cfg.Platform.Cluster)
	// Output:
	// Platform: dev-deployment
	// Monitored cluster: logging-dev-eu1
}

// ExampleSafeConfig_Get demonstrates thread-safe configuration access.
// The Get method returns a deep copy, preventing accidental mutations.
func ExampleSafeConfig_Get() {
	safeConfig := config.NewSafeConfig(&config.Config{
		Platform: config.PlatformConfig{
			Org: "platform-ops",
			ID:  "ingest-calc-1",
		},
	})

	// Get returns a deep copy - safe to use without locks
	cfg := safeConfig.Get()

	// The returned config is a copy, so modifications don't affect
	// the shared state
	cfg.Platform.ID = "modified" // Only affects this copy

	fmt.Println(safeConfig.Get().Platform.ID)
	// Output: ingest-calc-1
}

// ExampleManager demonstrates the lifecycle of runtime configuration
// management with change notifications.
func ExampleManager() {
	cfg := &config.Config{
		Platform: config.PlatformConfig{
			Org: "platform-ops",
			ID:  "ingest-calc-1",
		},
	}

	cm, err := config.NewConfigManager(cfg, slog.Default())
	if err != nil {
		log.Fatal(err)
	}

	if err := cm.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = cm.Stop(5 * time.Second) }()

	// Subscribe before applying changes
	updates := cm.OnChange("platform")

	// Apply mutates a deep copy, validates, swaps and notifies
	err = cm.Apply("platform", func(cfg *config.Config) {
		cfg.Platform.Environment = "prod"
	})
	if err != nil {
		log.Fatal(err)
	}

	update := <-updates
	fmt.Println(update.Path, update.Config.Get().Platform.Environment)
	// Output: platform prod
}

// ExampleManager_Stop demonstrates graceful shutdown of Manager.
func ExampleManager_Stop() {
	cm, err := config.NewConfigManager(&config.Config{}, slog.Default())
	if err != nil {
		log.Fatal(err)
	}
	_ = cm.Start(context.Background())

	// Graceful shutdown closes all subscriber channels
	if err := cm.Stop(5 * time.Second); err != nil {
		log.Printf("Manager shutdown error: %v", err)
	}

	// Stop is idempotent - safe to call multiple times
	_ = cm.Stop(5 * time.Second) // No error

	fmt.Println("Manager stopped gracefully")
	// Output: Manager stopped gracefully
}
