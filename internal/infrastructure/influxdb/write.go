package influxdb

import (
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/devicestate"
)

// stateMeasurement is the measurement device state history is written to.
const stateMeasurement = "device_state"

// RecordStates writes one point per numeric or boolean capability state.
// It satisfies coordinator.StateRecorder; writes are non-blocking and
// batched, so it is safe to call from the refresh path.
//
// String values carry no history worth keeping and are skipped.
// Temperatures are recorded in degrees Celsius.
func (c *Client) RecordStates(states map[string][]devicestate.CapabilityState) {
	if c.closed.Load() || c.writeAPI == nil {
		return
	}

	for _, point := range statePoints(states, c.now()) {
		c.writeAPI.WritePoint(point)
	}
}

// statePoints converts device states to points, ordered by device id.
func statePoints(states map[string][]devicestate.CapabilityState, ts time.Time) []*write.Point {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var points []*write.Point
	for _, id := range ids {
		for _, s := range states[id] {
			field, ok := fieldValue(s.Value)
			if !ok {
				continue
			}

			tags := map[string]string{
				"device_id": id,
				"namespace": s.Namespace,
			}
			if s.Name != "" {
				tags["name"] = s.Name
			}
			if s.Instance != "" {
				tags["instance"] = s.Instance
			}

			points = append(points, write.NewPoint(
				stateMeasurement,
				tags,
				map[string]any{"value": field},
				ts,
			))
		}
	}
	return points
}

// fieldValue returns the recordable form of a capability value.
func fieldValue(v any) (any, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case devicestate.Temperature:
		return val.Celsius(), true
	case *devicestate.Temperature:
		if val == nil {
			return nil, false
		}
		return val.Celsius(), true
	default:
		return nil, false
	}
}
