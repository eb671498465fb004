package cloud

import (
	"errors"
	"testing"
)

func TestExtractStates(t *testing.T) {
	resp := &StatesResponse{
		DeviceStates: []DeviceStateEntry{
			{
				Entity: &Entity{EntityID: "lamp-1"},
				CapabilityStates: []string{
					`{"namespace":"Alexa.PowerController","name":"powerState","value":"ON"}`,
					`not json`,
					`{"namespace":"Alexa.BrightnessController","name":"brightness","value":40}`,
				},
			},
			{
				Entity: &Entity{EntityID: "plug-1"},
				Error:  &EntityError{Code: CodeEndpointUnreachable},
			},
			{CapabilityStates: []string{`{"namespace":"Alexa.PowerController","value":"ON"}`}},
		},
		Errors: []EntityError{
			{Entity: &Entity{EntityID: "sensor-1"}, Code: CodeEndpointUnreachable},
			{Entity: &Entity{EntityID: "sensor-2"}, Code: "INTERNAL_ERROR"},
		},
	}

	got, err := ExtractStates(resp)
	if err != nil {
		t.Fatalf("ExtractStates() error = %v", err)
	}

	lamp := got.States["lamp-1"]
	if len(lamp) != 3 {
		t.Fatalf("lamp-1 states = %d, want 3", len(lamp))
	}
	if lamp[0] == nil || lamp[0].Value != "ON" {
		t.Errorf("lamp-1[0] = %+v, want powerState ON", lamp[0])
	}
	if lamp[1] != nil {
		t.Errorf("lamp-1[1] = %+v, want nil for malformed entry", lamp[1])
	}
	if lamp[2] == nil || lamp[2].Value != 40.0 {
		t.Errorf("lamp-1[2] = %+v, want brightness 40", lamp[2])
	}

	if _, ok := got.States["plug-1"]; !ok {
		t.Error("plug-1 missing from States")
	}
	if len(got.States) != 2 {
		t.Errorf("States has %d devices, want 2 (entry without entity skipped)", len(got.States))
	}

	for id, want := range map[string]bool{"plug-1": true, "sensor-1": true, "sensor-2": false, "lamp-1": false} {
		if got.Offline[id] != want {
			t.Errorf("Offline[%q] = %v, want %v", id, got.Offline[id], want)
		}
	}
}

func TestExtractStates_Failures(t *testing.T) {
	tests := []struct {
		name     string
		resp     *StatesResponse
		wantKind error
		wantCode string
	}{
		{name: "nil response", resp: nil, wantKind: ErrInvalidResponse},
		{name: "missing deviceStates", resp: &StatesResponse{}, wantKind: ErrInvalidResponse},
		{
			name:     "unreachable error only",
			resp:     &StatesResponse{Errors: []EntityError{{Code: CodeEndpointUnreachable, Message: "unreachable"}}},
			wantKind: ErrDeviceOffline,
			wantCode: CodeEndpointUnreachable,
		},
		{
			name:     "other error only",
			resp:     &StatesResponse{DeviceStates: []DeviceStateEntry{}, Errors: []EntityError{{Code: "THROTTLED"}}},
			wantKind: ErrRequestUnsuccessful,
			wantCode: "THROTTLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractStates(tt.resp)
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("ExtractStates() error = %v, want %v", err, tt.wantKind)
			}
			if got := Code(err); got != tt.wantCode {
				t.Errorf("Code() = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestExtractStates_EmptyList(t *testing.T) {
	got, err := ExtractStates(&StatesResponse{DeviceStates: []DeviceStateEntry{}})
	if err != nil {
		t.Fatalf("ExtractStates() error = %v", err)
	}
	if len(got.States) != 0 {
		t.Errorf("States = %v, want empty", got.States)
	}
}

func TestAPIError_Is(t *testing.T) {
	cause := errors.New("connection refused")
	err := newError(ErrHTTP, "query states", cause)

	if !errors.Is(err, ErrHTTP) {
		t.Error("errors.Is(err, ErrHTTP) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Is(err, ErrDeviceOffline) {
		t.Error("errors.Is(err, ErrDeviceOffline) = true")
	}
	if want := "query states: cloud: http request failed: connection refused"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
