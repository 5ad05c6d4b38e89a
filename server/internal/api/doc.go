// Package api implements the HTTP REST API of the logship collector.
//
// New(store, alerts, conns) returns an http.Handler that serves:
//
//	GET /api/v1/health          state, peer and connection counts, totals
//	GET /api/v1/peers           all live peers ([]PeerResponse)
//	GET /api/v1/peers/{addr}    single peer; 404 if unknown or stale
//	GET /api/v1/types           record totals per event type
//	GET /api/v1/alerts          firing and recently resolved alerts
//	GET /api/v1/snapshot        all live peers + generated_at
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Stale peers are excluded from every response.
package api
