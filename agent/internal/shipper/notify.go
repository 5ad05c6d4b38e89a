package shipper

import (
	"log/slog"
)

// Notifier receives the operator-visible connection events. Conn calls it
// at most once per failure streak for Failed and Unavailable, and only on
// user-visible transitions for Established and Closed.
type Notifier interface {
	Established(conn int, addr string)
	Failed(conn int, addr string, err error)
	Unavailable(conn int, addr string, err error)
	Closed(conn int, addr string)
}

// LogNotifier writes connection events to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n LogNotifier) Established(conn int, addr string) {
	n.logger().Info("shipper: connection established", "conn", conn, "endpoint", addr)
}

func (n LogNotifier) Failed(conn int, addr string, err error) {
	n.logger().Error("shipper: connection failed", "conn", conn, "endpoint", addr, "err", err)
}

func (n LogNotifier) Unavailable(conn int, addr string, err error) {
	n.logger().Warn("shipper: connection not available", "conn", conn, "endpoint", addr, "err", err)
}

func (n LogNotifier) Closed(conn int, addr string) {
	n.logger().Info("shipper: connection closed", "conn", conn, "endpoint", addr)
}

// streak gates a notification to the first failure of a run of
// consecutive failures.
type streak struct {
	active bool
}

// fire records a failure and reports whether it starts a new streak.
func (s *streak) fire() bool {
	if s.active {
		return false
	}
	s.active = true
	return true
}

// reset ends the current streak.
func (s *streak) reset() {
	s.active = false
}
