// Package metrics exposes the session manager's activity as Prometheus
// collectors.
//
// Collector implements manager.Metrics. It registers with a caller-supplied
// registry so tests can use a private one and the daemon can serve it with
// promhttp.
package metrics
