package devicestate

import (
	"math"
	"testing"
)

func TestParseCapabilityState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CapabilityState
		wantErr bool
	}{
		{
			name:  "string value",
			input: `{"namespace":"Alexa.PowerController","name":"powerState","value":"ON"}`,
			want:  CapabilityState{Namespace: "Alexa.PowerController", Name: "powerState", Value: "ON"},
		},
		{
			name:  "number value",
			input: `{"namespace":"Alexa.BrightnessController","name":"brightness","value":42}`,
			want:  CapabilityState{Namespace: "Alexa.BrightnessController", Name: "brightness", Value: 42.0},
		},
		{
			name:  "bool value with instance",
			input: `{"namespace":"Alexa.ToggleController","name":"toggleState","instance":"3","value":true}`,
			want:  CapabilityState{Namespace: "Alexa.ToggleController", Name: "toggleState", Instance: "3", Value: true},
		},
		{
			name:  "temperature value",
			input: `{"namespace":"Alexa.TemperatureSensor","name":"temperature","value":{"value":21.5,"scale":"CELSIUS"}}`,
			want: CapabilityState{
				Namespace: "Alexa.TemperatureSensor",
				Name:      "temperature",
				Value:     Temperature{Value: 21.5, Scale: ScaleCelsius},
			},
		},
		{name: "missing namespace", input: `{"name":"powerState","value":"ON"}`, wantErr: true},
		{name: "missing value", input: `{"namespace":"Alexa.PowerController"}`, wantErr: true},
		{name: "array value", input: `{"namespace":"Alexa.PowerController","value":[1,2]}`, wantErr: true},
		{name: "structured without value", input: `{"namespace":"Alexa.TemperatureSensor","value":{"scale":"CELSIUS"}}`, wantErr: true},
		{name: "not json", input: `ON`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCapabilityState([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseCapabilityState() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCapabilityState() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("ParseCapabilityState() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestTemperature_Celsius(t *testing.T) {
	tests := []struct {
		temp Temperature
		want float64
	}{
		{Temperature{Value: 20, Scale: ScaleCelsius}, 20},
		{Temperature{Value: 68, Scale: ScaleFahrenheit}, 20},
		{Temperature{Value: 293.15, Scale: ScaleKelvin}, 20},
		{Temperature{Value: 20}, 20},
	}

	for _, tt := range tests {
		if got := tt.temp.Celsius(); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("%+v.Celsius() = %v, want %v", tt.temp, got, tt.want)
		}
	}
}

func TestFind(t *testing.T) {
	states := []CapabilityState{
		{Namespace: "Alexa.PowerController", Name: "powerState", Value: "ON"},
		{Namespace: "Alexa.BrightnessController", Name: "brightness", Value: 10.0},
	}

	got, ok := Find(states, Selector{Namespace: "Alexa.BrightnessController"})
	if !ok || got.Value != 10.0 {
		t.Errorf("Find() = %+v, %v", got, ok)
	}
	if _, ok := Find(states, Selector{Namespace: "Alexa.ColorController"}); ok {
		t.Error("Find() matched unknown namespace")
	}
}
