// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: collector, connection, batch/flush/queue sizing,
//     max_field_length, tags, identity, metrics_addr, sources []
//   - CollectorConfig: host, port, pool_size, tls
//   - TLSConfig: enabled, ca/cert/key files, server_name, insecure_skip_verify
//   - Source: id, type (message|trace|accesslog|ffdc|gc|audit), path,
//     location, from_beginning, tags
//
// Load(path) reads the YAML file, applies defaults (port 5043, 4 connections,
// 100-record batches, 1s flush, 25s staleness, 5s backoff), then validates
// required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// each reload.
package config
