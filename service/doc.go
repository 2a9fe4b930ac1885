// Package service runs the process: it owns service lifecycle, the shared
// HTTP surface, and the component manager that drives the ingest pipeline.
//
// Three pieces matter:
//
// BaseService gives every service the same skeleton: stopped, starting,
// running, stopping states, a periodic health probe, context-based
// shutdown, and core metrics reporting. Concrete services embed it and
// add their own behavior.
//
// Manager holds the set of services built from the constructor Registry
// and the single HTTP server they share. Startup is two-phase: system
// endpoints (/health, /healthz, /readyz, /services) register before any
// service exists, service and component handlers plus the OpenAPI
// document mount after every service has started, and only then does the
// listener open. Shutdown runs in reverse registration order so the API
// keeps answering while the pipeline drains.
//
// ComponentManager is itself a service, and a mandatory one: it creates
// the pipeline components (scan and CSV inputs, classifier, aggregator,
// report and bulk-load outputs, snapshot store) from config, tracks their
// lifecycle and health, applies live config changes, and answers flow
// topology questions, like which classifier output no component
// subscribes to.
//
// Wiring it up:
//
//	registry := service.NewServiceRegistry()
//	if err := service.RegisterAll(registry); err != nil {
//	    log.Fatal(err)
//	}
//	manager := service.NewServiceManager(registry)
//	if err := manager.ConfigureFromServices(cfg.Services, &deps); err != nil {
//	    log.Fatal(err)
//	}
//	if err := manager.StartAll(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.StopAll(30 * time.Second)
//
// Services that expose HTTP implement HTTPHandler and get mounted under a
// prefix derived from their name; components with their own HTTP surface
// mount under their instance name. Services that can absorb config
// changes without a restart implement RuntimeConfigurable; for the rest,
// the manager restarts them when their config block changes.
//
// The HTTP API is meant for an internal network. There is no built-in
// authentication or rate limiting; front it with a reverse proxy when it
// must face anything wider.
package service
