package influxdb

import "errors"

var (
	// ErrNotConnected is returned after Close or before Connect.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed is returned when the server cannot be reached
	// or reports itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when history is turned off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
