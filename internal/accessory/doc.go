// Package accessory maps cloud devices to host-visible accessories.
//
// Each accessory exposes named characteristics (on, brightness,
// current_temperature, volume, ...). Reads go through ReadState, which
// batches all active devices through the access coordinator and extracts one
// value; writes perform the remote mutation and then update the shared
// cache in place so the next read reflects the change without a round trip.
//
// Hosts use the Registry, which never leaks remote failures: offline devices
// are logged at debug, other failures at error, and both are reported as
// ErrCommunicationFailure.
package accessory
