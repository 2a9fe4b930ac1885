// Package config loads, validates, and live-updates the deployment
// configuration: platform identity, the NATS connection, the monitored
// Elasticsearch cluster, and the service and component instance maps.
//
// # Loading
//
// A Loader merges defaults, file layers (JSON or YAML, last wins), and
// ESDIC_* environment overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.json") // overrides base
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// Layer merging is per-key, so a production layer that sets only
// platform.id keeps every other default. Environment overrides cover
// identity and credentials, e.g.:
//
//	export ESDIC_PLATFORM_CLUSTER="logging-prod-eu1"
//	export ESDIC_NATS_URLS="nats://server1:4222,nats://server2:4222"
//	export ESDIC_CLUSTER_API_KEY="..."
//
// # Runtime updates
//
// Manager owns the live config. Subscribers register path patterns and
// receive updates on a channel; changes enter through Apply, which
// mutates a deep copy, validates it, swaps it in atomically, and
// notifies matching subscribers:
//
//	updates := cm.OnChange("components.*")
//
//	err := cm.Apply("components.bulkload", func(cfg *config.Config) {
//	    c := cfg.Components["bulkload"]
//	    c.Enabled = true
//	    cfg.Components["bulkload"] = c
//	})
//
// SafeConfig guards the current snapshot; Get returns a deep copy so
// readers never observe a half-applied change.
//
// # File safety
//
// Config files are read through a validated path (no traversal, regular
// files only, 10MB cap) and JSON nesting is depth-limited before the
// decoder sees it. Configs may carry cluster credentials, so saved
// files are written owner read/write only.
package config
