// Package cloud is the thin client for the vendor's smart-home cloud.
//
// It speaks the cloud's JSON endpoints for batch state queries, device
// mutations and media player control, and defines the failure taxonomy
// used by every layer above it:
//
//   - ErrHTTP: transport failure or non-success HTTP status
//   - ErrRequestUnsuccessful: the remote reported an error code
//   - ErrInvalidResponse: the response had an unexpected shape
//   - ErrTimeout: a gate or lock was not acquired in time
//   - ErrDeviceOffline: the remote reported the endpoint unreachable
//
// Outbound calls are rate limited with golang.org/x/time/rate.
//
// # Thread Safety
//
// HTTPClient is safe for concurrent use.
package cloud
