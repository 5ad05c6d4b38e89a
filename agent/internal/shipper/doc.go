// Package shipper delivers batches of event records to the collector over
// the lumberjack protocol through a fixed-size pool of persistent TCP/TLS
// connections.
//
// Conn is one logical link. Connect handles three concerns before dialing:
// an idle socket older than StaleAfter is dropped and silently re-dialed, a
// changed endpoint closes the old socket, and a connection whose last
// operation failed waits a fixed RetryBackoff. SendBatch writes a window
// frame plus one compressed frame and waits for the ack; any I/O failure
// drops the socket, marks the connection retry-pending and is returned to
// the caller, which decides what to do with the batch.
//
// Operator-visible messages (established, failed, not available, closed)
// go through a Notifier and are emitted at most once per failure streak.
//
// Pool hands out Conns one holder at a time. A Conn is only touched by the
// goroutine that checked it out, so Conn itself carries no locks.
package shipper
