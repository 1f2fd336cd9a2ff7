// Package internaldefs holds the metric names shared by the Prometheus and
// OTel exporters and [Collect], which reads an engine once per scrape or
// collection cycle.
//
// Both exporters index their output by position in [CounterDefs] and
// [HistogramDefs]; changing either list changes every exporter.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
