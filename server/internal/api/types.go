package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State       string `json:"state"`
	PeerCount   int    `json:"peer_count"`
	Connections int    `json:"connections"`
	Batches     uint64 `json:"batches"`
	Records     uint64 `json:"records"`
	AlertCount  int    `json:"alert_count"`
}

// PeerResponse is one peer entry in GET /api/v1/peers or
// GET /api/v1/peers/{addr}.
type PeerResponse struct {
	Addr             string            `json:"addr"`
	Batches          uint64            `json:"batches"`
	Records          uint64            `json:"records"`
	LastBatchRecords int               `json:"last_batch_records"`
	LastSeq          uint32            `json:"last_seq"`
	LastType         string            `json:"last_type"`
	Types            map[string]uint64 `json:"types"`
	Diagnostics      []DiagnosticHint  `json:"diagnostics"`
	FirstSeen        string            `json:"first_seen"` // RFC3339
	LastSeen         string            `json:"last_seen"`  // RFC3339
}

// TypeCount is the record total for one event type across all live peers.
type TypeCount struct {
	Type    string `json:"type"`
	Records uint64 `json:"records"`
	Peers   int    `json:"peers"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Peers       []PeerResponse `json:"peers"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
