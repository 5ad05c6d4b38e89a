// Package store keeps per-peer delivery statistics for the collector in
// memory. Each agent address accumulates batch and record counts, the last
// acknowledged sequence and per-event-type totals; peers idle longer than
// the TTL are evicted.
package store
