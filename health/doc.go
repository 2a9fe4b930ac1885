// Package health models component and pipeline health for the service
// manager's HTTP surface.
//
// # Health states
//
// Three states, not two:
//   - Healthy: operating normally
//   - Degraded: running with reduced capacity (a scan behind schedule, a
//     half-open NATS circuit)
//   - Unhealthy: not functioning (cluster unreachable, component failed)
//
// The middle state lets operators distinguish "watch this" from "page
// someone": a degraded bulk loader keeps draining its queue while the
// dashboard shows yellow.
//
// # Status
//
// Status is a value type carrying state, message, timestamp, optional
// metrics, and nested sub-statuses. With* methods return copies, so a
// Status handed to the HTTP layer cannot be mutated underneath it.
//
//	status := health.NewHealthy("clusterscan-input", "Scan in progress").
//	    WithMetrics(&health.Metrics{Uptime: uptime, MessagesProcessed: 1204})
//
// # Aggregation
//
// Aggregate folds component statuses into a pipeline-wide one with
// worst-case rules: any unhealthy sub-status makes the whole unhealthy,
// otherwise any degraded makes it degraded. A single stuck output is not
// masked by six healthy components.
//
//	overall := health.Aggregate("components", componentStatuses)
//
// The component manager uses this to answer GET /health, and the service
// manager folds NATS connectivity in the same way.
//
// # Sanitization
//
// FromComponentHealth converts a component.HealthStatus and sanitizes its
// error message before it reaches a dashboard: URLs, file paths, IPs,
// ports, and credential-shaped substrings are redacted. A scan error that
// embeds the cluster URL and an API key comes out as "[URL]" and
// "[REDACTED]". There is no opt-out.
//
// # Error handling
//
// Nothing in this package returns an error. Health is the result of error
// handling, not a step in it; components wrap failures with the errors
// package and this package renders the outcome.
package health
