// Package server implements the HTTP API.
//
// The HTTP API:
//   - Exposes registry and marketplace operations as JSON endpoints
//   - Leaves reads open and requires signed headers on every mutation
//   - Maps domain error sentinels to HTTP status codes
//   - Mounts the WebSocket feed at /ws
package server
