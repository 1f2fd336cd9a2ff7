// Package prometheus serves streamauth metrics in the Prometheus text
// exposition format.
//
// [New] takes any [internaldefs.Source]; the HTTP API mounts
// [Exporter.Handler] on GET /metrics. Counters are streamauth_*_total.
// The validation and refresh latency histograms carry real _sum values in
// seconds. Nothing is rendered while metrics are disabled.
//
// The exporter never registers with a global registry and never changes
// engine state.
package prometheus
