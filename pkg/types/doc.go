// Package types defines the event record shared by the agent and the
// reference collector. A Record is the flat, ordered key/value form of one
// log, trace or access event; it is what the wire codec encodes into a data
// frame and what the collector decodes back out.
package types
