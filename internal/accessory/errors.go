package accessory

import "errors"

// Domain errors for accessory operations.
var (
	// ErrCommunicationFailure is the only remote failure a host ever sees.
	ErrCommunicationFailure = errors.New("accessory: communication failure")

	// ErrAccessoryNotFound is returned for an unknown accessory id.
	ErrAccessoryNotFound = errors.New("accessory: not found")

	// ErrDuplicateAccessory is returned when registering an id twice.
	ErrDuplicateAccessory = errors.New("accessory: duplicate id")

	// ErrUnknownCharacteristic is returned for a characteristic the
	// accessory does not expose.
	ErrUnknownCharacteristic = errors.New("accessory: unknown characteristic")

	// ErrNotReadable is returned when reading a write-only characteristic.
	ErrNotReadable = errors.New("accessory: characteristic is not readable")

	// ErrNotWritable is returned when writing a read-only characteristic.
	ErrNotWritable = errors.New("accessory: characteristic is not writable")

	// ErrInvalidValue is returned when a written value has the wrong type
	// or is out of range.
	ErrInvalidValue = errors.New("accessory: invalid value")

	// ErrUnknownKind is returned when building an accessory of an
	// unsupported kind.
	ErrUnknownKind = errors.New("accessory: unknown kind")
)

// isRequestError reports whether err is the caller's fault rather than a
// remote failure. Such errors are passed through to the host unchanged.
func isRequestError(err error) bool {
	return errors.Is(err, ErrUnknownCharacteristic) ||
		errors.Is(err, ErrNotReadable) ||
		errors.Is(err, ErrNotWritable) ||
		errors.Is(err, ErrInvalidValue)
}
