// Package metrics counts what the agent pipeline does and renders the
// counters in the Prometheus text exposition format.
package metrics
