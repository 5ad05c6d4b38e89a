// Package dispatch moves formatted records from sources to the collector.
//
// Sources hand records to a Queue, which never blocks them: when it is
// full the oldest record is evicted. A single Scheduler goroutine drains
// the queue into batches of at most MaxBatchSize records, waiting up to
// FlushInterval for a batch to fill, and sends each batch over a
// connection checked out of the shipper pool. A failed batch is counted
// and dropped; the connection handles backoff before its next use.
//
// Batch size and flush interval can be changed while running with
// Update. The collector endpoint is read from the pool on every cycle.
package dispatch
