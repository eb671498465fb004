package cloud

import (
	"errors"
	"fmt"
)

// Failure taxonomy for remote device access.
//
// Every error returned by this package and by the coordinators built on top of
// it matches exactly one of these sentinels via errors.Is:
//
//	if errors.Is(err, cloud.ErrDeviceOffline) {
//	    // stale data is acceptable, log at debug
//	}
var (
	// ErrHTTP is returned when the transport fails or the remote answers
	// with a non-success HTTP status.
	ErrHTTP = errors.New("cloud: http request failed")

	// ErrRequestUnsuccessful is returned when the remote accepted the call
	// but reported an error code.
	ErrRequestUnsuccessful = errors.New("cloud: request unsuccessful")

	// ErrInvalidResponse is returned when a response does not have the
	// expected shape or lacks an expected property.
	ErrInvalidResponse = errors.New("cloud: invalid response")

	// ErrTimeout is returned when a concurrency gate or lock is not
	// acquired in time.
	ErrTimeout = errors.New("cloud: timed out waiting for lock")

	// ErrDeviceOffline is returned when the remote reports the endpoint as
	// unreachable. Callers may treat stale data as acceptable.
	ErrDeviceOffline = errors.New("cloud: device offline")
)

// Remote error codes with special meaning.
const (
	// CodeEndpointUnreachable marks a device the vendor cloud cannot reach.
	CodeEndpointUnreachable = "ENDPOINT_UNREACHABLE"
)

// APIError carries the details of a failed remote operation.
// Kind is one of the package sentinels; Err is the underlying cause, if any.
type APIError struct {
	Kind   error
	Op     string
	Code   string
	Status int
	Err    error
}

// Error implements error.
func (e *APIError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" (code %s)", e.Code)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newError builds an APIError of the given kind.
func newError(kind error, op string, err error) *APIError {
	return &APIError{Kind: kind, Op: op, Err: err}
}

// errorForCode maps a remote error code to the failure taxonomy.
func errorForCode(op, code, message string) *APIError {
	kind := ErrRequestUnsuccessful
	if code == CodeEndpointUnreachable {
		kind = ErrDeviceOffline
	}
	e := &APIError{Kind: kind, Op: op, Code: code}
	if message != "" {
		e.Err = errors.New(message)
	}
	return e
}

// Code returns the remote error code carried by err, if any.
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
