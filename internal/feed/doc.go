// Package feed implements the WebSocket Feed component.
//
// The WebSocket Feed:
//   - Serves the notification log to WebSocket subscribers
//   - Replays history from a client-chosen sequence number, then streams live
//   - Sends periodic pings and enforces write deadlines on slow clients
package feed
