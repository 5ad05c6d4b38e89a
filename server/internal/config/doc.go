// Package config loads the collector configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the collector binary).
//
// Config fields:
//   - Port              port for the lumberjack listener (default 5043)
//   - HTTPPort          port for the REST API and WebSocket stream (default 8080)
//   - TLS               listener cert/key and optional client CA for mTLS
//   - Auth              API key protection for the HTTP API
//   - PeerTTL           how long a peer's stats remain after its last batch (default 5m)
//   - MaxPayloadBytes   frame payload limit (default 64 MiB)
//   - ReadTimeout       idle limit per agent connection (default 2m)
//   - StreamInterval    WebSocket push interval (default 5s)
//   - Alerts            per-peer rules and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
