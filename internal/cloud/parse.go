package cloud

import (
	"github.com/nerrad567/gray-logic-cloudbridge/internal/devicestate"
)

// opQueryStates names the batch read in errors.
const opQueryStates = "query states"

// BatchResult is a validated batch state query.
type BatchResult struct {
	// States holds one entry per device found in the response. Entries that
	// could not be decoded are nil.
	States map[string][]*devicestate.CapabilityState

	// Offline lists devices the remote reported as unreachable.
	Offline map[string]bool
}

// ExtractStates validates a batch response and splits it per device.
//
// A response without any device states fails: with the remote's error code
// when it gave one (ErrDeviceOffline for unreachable endpoints, otherwise
// ErrRequestUnsuccessful), else ErrInvalidResponse. Malformed entries inside
// an otherwise valid response become absent values.
func ExtractStates(resp *StatesResponse) (*BatchResult, error) {
	if resp == nil {
		return nil, newError(ErrInvalidResponse, opQueryStates, nil)
	}

	if len(resp.DeviceStates) == 0 {
		if len(resp.Errors) > 0 {
			first := resp.Errors[0]
			return nil, errorForCode(opQueryStates, first.Code, first.Message)
		}
		if resp.DeviceStates == nil {
			return nil, newError(ErrInvalidResponse, opQueryStates, nil)
		}
	}

	result := &BatchResult{
		States:  make(map[string][]*devicestate.CapabilityState, len(resp.DeviceStates)),
		Offline: make(map[string]bool),
	}

	for _, entry := range resp.DeviceStates {
		if entry.Entity == nil || entry.Entity.EntityID == "" {
			continue
		}
		id := entry.Entity.EntityID

		if entry.Error != nil && entry.Error.Code == CodeEndpointUnreachable {
			result.Offline[id] = true
		}

		states := make([]*devicestate.CapabilityState, 0, len(entry.CapabilityStates))
		for _, raw := range entry.CapabilityStates {
			s, err := devicestate.ParseCapabilityState([]byte(raw))
			if err != nil {
				states = append(states, nil)
				continue
			}
			states = append(states, s)
		}
		result.States[id] = states
	}

	for _, e := range resp.Errors {
		if e.Entity == nil || e.Entity.EntityID == "" {
			continue
		}
		if e.Code == CodeEndpointUnreachable {
			result.Offline[e.Entity.EntityID] = true
		}
	}

	return result, nil
}
