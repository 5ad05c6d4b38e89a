// Package health derives a delivery health score for the agent from
// successive samples of its pipeline counters.
//
// score.go holds the pure Compute(Input) function producing a composite
// score (0-100): record loss (40%), batch delivery rate (30%), queue
// backlog (20%) and recent clean windows (10%).
//
// tracker.go keeps the previous sample and turns counter deltas into
// per-minute rates. Tracker.Observe takes the sample time explicitly so
// tests are deterministic.
//
// Health state thresholds: Healthy >=85, Degraded 60-84, Critical <60, Unknown.
package health
