// Package api implements the local HTTP REST API and WebSocket server of the
// cloud bridge.
//
// This package provides:
//   - REST endpoints to list accessories and read or write characteristics
//   - WebSocket hub broadcasting accessory state changes
//   - Optional HS256 bearer token authentication
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - Prometheus scrape endpoint and a JSON metrics snapshot
//
// # Architecture
//
// The API sits beside the MQTT bridge. Both drive the same accessory
// registry, so reads go through the device state cache and the access
// coordinator, and writes are serialised by the same gate. After a
// successful write the bridge republishes the accessory state, which also
// reaches WebSocket subscribers.
//
// # Security
//
// With api.auth.jwt_secret empty the API is open and should only listen on
// loopback. WebSocket clients pass the token as the access_token query
// parameter because browsers cannot set headers on upgrade requests.
//
// # Graceful Degradation
//
// The server runs without MQTT, InfluxDB or the audit database. Endpoints
// backed by a missing dependency return 503 or omit their section.
//
// Usage:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
