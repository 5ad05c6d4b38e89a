// Package auth provides API key middleware for the collector's HTTP surface.
//
// APIKey(mode, header, key) wraps an http.Handler. When mode != "apikey" or
// key == "", every request passes through (useful for local development).
// Otherwise the key is read from the named header, or from the api_key query
// parameter for WebSocket clients that cannot set headers, and a missing or
// incorrect key is rejected with 401.
package auth
