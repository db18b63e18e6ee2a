// Package metrics records the outcome of a run as Prometheus gauges and
// writes them to a file for the node_exporter textfile collector.
package metrics
