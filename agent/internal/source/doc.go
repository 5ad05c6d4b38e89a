// Package source follows log files and feeds their lines through the
// formatter into the dispatch queue.
//
// A line holding a JSON object is used as the event's field map; any
// other line becomes {"message": line, "file": path}. Files are reopened
// when rotated.
package source
