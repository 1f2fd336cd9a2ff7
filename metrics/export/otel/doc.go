// Package otel publishes streamauth metrics through an OpenTelemetry meter.
//
// [New] registers observable instruments for every counter, the audit
// dropped counter and each latency histogram (cumulative bucket gauges, a
// sample count and a latency sum in seconds). One callback reads the
// engine per collection cycle; nothing is observed while metrics are
// disabled.
//
// The server runtime registers an exporter when it is given a
// MeterProvider. The package never owns the provider and never changes
// engine state.
package otel
