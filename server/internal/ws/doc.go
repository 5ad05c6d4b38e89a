// Package ws implements the collector's WebSocket stream of peer stats.
//
// Hub keeps the connected clients and pushes the current peer snapshot to
// all of them every interval, and additionally soon after Notify is called
// (the collector calls it when a batch is accepted). Bursts of Notify calls
// coalesce into a single push.
//
// Message format sent to clients:
//
//	{
//	  "event": "peers",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. The collector mounts the hub at
// /ws/peers behind the same API key middleware as the REST API.
package ws
