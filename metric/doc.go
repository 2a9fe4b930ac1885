// Package metric owns the process-wide Prometheus registry and the HTTP
// endpoint that exposes it. Every pipeline run gets one MetricsRegistry,
// shared by the service manager and all components.
//
// Two layers sit on the registry. The core Metrics instruments are
// registered at construction and track what every component has in common:
// message flow in and out, processing latency, errors, health, and NATS
// connectivity. Everything lives under the "esdic" namespace:
//
//	esdic_service_status{service="clusterscan-input"}
//	esdic_messages_processed_total{service="classifier"}
//	esdic_nats_connected
//
// Components record through the helpers:
//
//	core := registry.CoreMetrics()
//	core.RecordMessageProcessed("classifier")
//	core.RecordProcessingDuration("classifier", elapsed.Seconds())
//
// On top of that, components register their own instruments through the
// MetricsRegistrar interface they receive in their dependencies. Names are
// keyed by (service, metric) so a scan input and a bulk output cannot
// shadow each other:
//
//	scanned := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "clusterscan_indices_scanned_total",
//	    Help: "Indices scanned across all runs",
//	})
//	if err := deps.Metrics.RegisterCounter("clusterscan-input", "indices_scanned_total", scanned); err != nil {
//	    return err
//	}
//
// A duplicate registration classifies as Invalid (a wiring bug in the
// caller); anything else Prometheus rejects classifies as Fatal. Components
// registered at runtime call Unregister on teardown so a restart can
// register fresh.
//
// # HTTP endpoint
//
// Server wraps promhttp and serves /metrics plus a trivial /health. It
// reuses the platform TLS config, so a deployment that talks mTLS to NATS
// scrapes metrics over TLS too:
//
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error().Err(err).Msg("metrics server stopped")
//	    }
//	}()
//	defer server.Stop()
//
// Registration and recording are safe for concurrent use; recording is
// lock-free inside the Prometheus client.
package metric
