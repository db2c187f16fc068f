// Package ws implements the live dashboard WebSocket feed.
//
// A Hub keeps the connected clients and pushes the dashboard snapshot to
// each of them on connect and then every broadcast interval:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// A client whose send buffer fills up is disconnected. The server mounts
// the hub at /ws.
package ws
