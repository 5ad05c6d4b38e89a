// Package format turns raw events from sources into wire records.
//
// A record carries two fields: "type", the event type derived from the
// source kind and location, and "line", the event serialized as a JSON
// object together with the server identity, version, tags and origin.
// String values longer than the configured maximum are truncated in
// place; nothing is dropped.
package format
