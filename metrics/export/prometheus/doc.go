// Package prometheus exposes goMFA engine metrics through
// prometheus/client_golang.
//
// [NewPrometheusExporter] registers a collector that reads the engine
// snapshot on every scrape on its own registry. Counters are named
// gomfa_*_total; the single histogram is gomfa_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry. Callers mount Handler.
//   - Mutate engine state.
package prometheus
