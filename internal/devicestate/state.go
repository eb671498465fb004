package devicestate

import (
	"encoding/json"
	"fmt"
)

// Temperature is the structured value used by temperature capabilities.
type Temperature struct {
	Value float64 `json:"value"`
	Scale string  `json:"scale"`
}

// Temperature scales reported by the vendor cloud.
const (
	ScaleCelsius    = "CELSIUS"
	ScaleFahrenheit = "FAHRENHEIT"
	ScaleKelvin     = "KELVIN"
)

// Celsius returns the temperature converted to degrees Celsius.
func (t Temperature) Celsius() float64 {
	switch t.Scale {
	case ScaleFahrenheit:
		return (t.Value - 32) * 5 / 9
	case ScaleKelvin:
		return t.Value - 273.15
	default:
		return t.Value
	}
}

// CapabilityState is a single observed property of a remote device.
//
// Identity within a device is the triple (Namespace, Name, Instance).
// Name and Instance are optional; the empty string means absent.
// Value is one of string, float64, bool or Temperature.
type CapabilityState struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Value     any    `json:"value"`
}

// SameIdentity reports whether s and other address the same capability.
func (s CapabilityState) SameIdentity(other CapabilityState) bool {
	return s.Namespace == other.Namespace &&
		s.Name == other.Name &&
		s.Instance == other.Instance
}

// Selector picks a capability out of a device's state list.
// Name and Instance are only compared when non-empty.
type Selector struct {
	Namespace string
	Name      string
	Instance  string
}

// Matches reports whether s selects state.
func (sel Selector) Matches(state CapabilityState) bool {
	if state.Namespace != sel.Namespace {
		return false
	}
	if sel.Name != "" && state.Name != sel.Name {
		return false
	}
	if sel.Instance != "" && state.Instance != sel.Instance {
		return false
	}
	return true
}

// Find returns the first state in states matched by sel.
func Find(states []CapabilityState, sel Selector) (CapabilityState, bool) {
	for _, s := range states {
		if sel.Matches(s) {
			return s, true
		}
	}
	return CapabilityState{}, false
}

// rawCapabilityState is the wire form of a capability state.
type rawCapabilityState struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Instance  string          `json:"instance"`
	Value     json.RawMessage `json:"value"`
}

// ParseCapabilityState decodes one capability state from its JSON form.
func ParseCapabilityState(data []byte) (*CapabilityState, error) {
	var raw rawCapabilityState
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding capability state: %w", err)
	}
	if raw.Namespace == "" {
		return nil, fmt.Errorf("capability state has no namespace")
	}
	if len(raw.Value) == 0 {
		return nil, fmt.Errorf("capability state %s has no value", raw.Namespace)
	}

	value, err := parseValue(raw.Value)
	if err != nil {
		return nil, fmt.Errorf("capability state %s: %w", raw.Namespace, err)
	}

	return &CapabilityState{
		Namespace: raw.Namespace,
		Name:      raw.Name,
		Instance:  raw.Instance,
		Value:     value,
	}, nil
}

// parseValue narrows a JSON value to one of the supported value types.
func parseValue(data json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}

	switch val := v.(type) {
	case string, float64, bool:
		return val, nil
	case map[string]any:
		var t Temperature
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decoding structured value: %w", err)
		}
		if _, ok := val["value"]; !ok {
			return nil, fmt.Errorf("structured value has no value field")
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
