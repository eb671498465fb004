package accessory

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/devicestate"
)

// Capability namespaces and names used by the accessory kinds.
const (
	nsPower       = "Alexa.PowerController"
	nsBrightness  = "Alexa.BrightnessController"
	nsTemperature = "Alexa.TemperatureSensor"

	namePowerState  = "powerState"
	nameBrightness  = "brightness"
	nameTemperature = "temperature"

	powerOn  = "ON"
	powerOff = "OFF"

	actionTurnOn        = "turnOn"
	actionTurnOff       = "turnOff"
	actionSetBrightness = "setBrightness"
)

var (
	powerSelector       = devicestate.Selector{Namespace: nsPower, Name: namePowerState}
	brightnessSelector  = devicestate.Selector{Namespace: nsBrightness, Name: nameBrightness}
	temperatureSelector = devicestate.Selector{Namespace: nsTemperature, Name: nameTemperature}
)

// extractPower maps powerState ON/OFF to a bool.
func extractPower(states []devicestate.CapabilityState) (bool, bool) {
	s, ok := devicestate.Find(states, powerSelector)
	if !ok {
		return false, false
	}
	v, ok := s.Value.(string)
	if !ok {
		return false, false
	}
	switch strings.ToUpper(v) {
	case powerOn:
		return true, true
	case powerOff:
		return false, true
	}
	return false, false
}

// extractBrightness returns the brightness percentage.
func extractBrightness(states []devicestate.CapabilityState) (int, bool) {
	s, ok := devicestate.Find(states, brightnessSelector)
	if !ok {
		return 0, false
	}
	v, ok := s.Value.(float64)
	if !ok {
		return 0, false
	}
	return int(math.Round(v)), true
}

// extractTemperature returns the temperature in Celsius, rounded to 0.1.
func extractTemperature(states []devicestate.CapabilityState) (float64, bool) {
	s, ok := devicestate.Find(states, temperatureSelector)
	if !ok {
		return 0, false
	}
	switch v := s.Value.(type) {
	case devicestate.Temperature:
		return math.Round(v.Celsius()*10) / 10, true
	case float64:
		return v, true
	}
	return 0, false
}

func powerAction(on bool) string {
	if on {
		return actionTurnOn
	}
	return actionTurnOff
}

func powerStateFor(on bool) devicestate.CapabilityState {
	v := powerOff
	if on {
		v = powerOn
	}
	return devicestate.CapabilityState{Namespace: nsPower, Name: namePowerState, Value: v}
}

func brightnessStateFor(level int) devicestate.CapabilityState {
	return devicestate.CapabilityState{Namespace: nsBrightness, Name: nameBrightness, Value: float64(level)}
}

// toBool accepts the value shapes hosts send for boolean characteristics.
func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidValue, value)
		}
		return f != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "on":
			return true, nil
		case "false", "0", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: expected boolean, got %v", ErrInvalidValue, value)
}

// toInt accepts the value shapes hosts send for integer characteristics.
func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		return int(math.Round(v)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, value)
		}
		return int(math.Round(f)), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: expected integer, got %q", ErrInvalidValue, v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: expected integer, got %v", ErrInvalidValue, value)
}

// toPercent converts value to an integer in 0..100.
func toPercent(value any) (int, error) {
	n, err := toInt(value)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 100 {
		return 0, fmt.Errorf("%w: %d out of range 0-100", ErrInvalidValue, n)
	}
	return n, nil
}

func toString(value any) (string, error) {
	s, ok := value.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: expected string, got %v", ErrInvalidValue, value)
	}
	return s, nil
}
