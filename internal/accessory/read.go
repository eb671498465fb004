package accessory

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/cloud"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/devicestate"
)

const opReadState = "read state"

// StateReader is the read side of the access coordinator.
type StateReader interface {
	GetDeviceStates(ctx context.Context, ids []string, useCache bool) (*coordinator.BatchStates, error)
	Cache() *devicestate.Cache
}

// Extractor derives a characteristic value from a device's capability
// states. It returns false when the states do not contain the value.
type Extractor[T any] func(states []devicestate.CapabilityState) (T, bool)

// ReadState reads one characteristic value of deviceID.
//
// All active devices are read in one batch so that the cache stays warm for
// every accessory. The outcome is:
//   - a value, when extract finds one
//   - cloud.ErrDeviceOffline, when the states came from the cache or the
//     remote reported the device unreachable and no value was found
//   - cloud.ErrInvalidResponse, when fresh states lack the value
//
// When the batch read itself fails, the last known states are consulted;
// a value found there is returned, otherwise the batch error is returned
// unchanged.
func ReadState[T any](
	ctx context.Context,
	reader StateReader,
	deviceID string,
	activeIDs []string,
	extract Extractor[T],
	logger Logger,
) (T, error) {
	var zero T
	if logger == nil {
		logger = noopLogger{}
	}

	ids := withDevice(activeIDs, deviceID)

	batch, err := reader.GetDeviceStates(ctx, ids, true)
	if err != nil {
		if v, ok := extract(reader.Cache().GetStatesForDevice(deviceID)); ok {
			logger.Debug("serving last known state after read failure",
				"device", deviceID,
				"error", err,
			)
			return v, nil
		}
		return zero, err
	}

	if v, ok := extract(batch.StatesFor(deviceID)); ok {
		return v, nil
	}

	if batch.FromCache || batch.Offline[deviceID] {
		offline := &cloud.APIError{Kind: cloud.ErrDeviceOffline, Op: opReadState}
		if batch.Offline[deviceID] {
			offline.Code = cloud.CodeEndpointUnreachable
		}
		return zero, offline
	}
	return zero, &cloud.APIError{
		Kind: cloud.ErrInvalidResponse,
		Op:   opReadState,
		Err:  fmt.Errorf("no matching capability state for device %s", deviceID),
	}
}

// HandleReadError logs a failed characteristic read and returns the error
// to hand to the host. Offline devices are expected and logged at debug.
func HandleReadError(logger Logger, accessoryID, characteristic string, err error) error {
	if logger == nil {
		logger = noopLogger{}
	}

	if errors.Is(err, cloud.ErrDeviceOffline) {
		logger.Debug("device offline",
			"accessory", accessoryID,
			"characteristic", characteristic,
			"error", err,
		)
	} else {
		logger.Error("characteristic read failed",
			"accessory", accessoryID,
			"characteristic", characteristic,
			"code", cloud.Code(err),
			"error", err,
		)
	}
	return ErrCommunicationFailure
}

// withDevice returns ids with deviceID appended when missing.
func withDevice(ids []string, deviceID string) []string {
	for _, id := range ids {
		if id == deviceID {
			return ids
		}
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, deviceID)
}
