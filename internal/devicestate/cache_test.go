package devicestate

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func powerState(value string) *CapabilityState {
	return &CapabilityState{Namespace: "Alexa.PowerController", Name: "powerState", Value: value}
}

func brightness(value float64) *CapabilityState {
	return &CapabilityState{Namespace: "Alexa.BrightnessController", Name: "brightness", Value: value}
}

func TestCache_EmptyIsStale(t *testing.T) {
	c := NewCache(30 * time.Second)

	if c.IsFresh() {
		t.Error("IsFresh() = true for empty cache, want false")
	}
	if got := c.GetStatesForDevice("d1"); len(got) != 0 {
		t.Errorf("GetStatesForDevice() = %v, want empty", got)
	}
	if c.HasAll([]string{"d1"}) {
		t.Error("HasAll(d1) = true, want false")
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	c := NewCache(0)
	if c.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", c.TTL(), DefaultTTL)
	}
}

func TestCache_Freshness(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(30 * time.Second)
	c.SetClock(clock.Now)

	c.UpdateBatch([]string{"d1"}, map[string][]*CapabilityState{"d1": {powerState("ON")}})

	tests := []struct {
		name    string
		advance time.Duration
		fresh   bool
	}{
		{"immediately", 0, true},
		{"within ttl", 29 * time.Second, true},
		{"at ttl", time.Second, false},
		{"after ttl", time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.advance)
			if got := c.IsFresh(); got != tt.fresh {
				t.Errorf("IsFresh() = %v, want %v", got, tt.fresh)
			}
		})
	}
}

func TestCache_GetStatesSkipsAbsentEntries(t *testing.T) {
	c := NewCache(time.Minute)
	c.UpdateBatch([]string{"d1"}, map[string][]*CapabilityState{
		"d1": {powerState("ON"), nil, brightness(40)},
	})

	got := c.GetStatesForDevice("d1")
	if len(got) != 2 {
		t.Fatalf("len(GetStatesForDevice) = %d, want 2", len(got))
	}
	if got[0].Value != "ON" || got[1].Value != 40.0 {
		t.Errorf("GetStatesForDevice() = %+v", got)
	}
}

func TestCache_BatchScope(t *testing.T) {
	c := NewCache(time.Minute)
	c.UpdateBatch([]string{"C"}, map[string][]*CapabilityState{"C": {powerState("ON")}})

	// Refresh A and B only; B returned nothing.
	c.UpdateBatch([]string{"A", "B"}, map[string][]*CapabilityState{"A": {powerState("OFF")}})

	if !c.HasAll([]string{"B"}) {
		t.Error("HasAll(B) = false, want true for queried device with no results")
	}
	if got := c.GetStatesForDevice("B"); len(got) != 0 {
		t.Errorf("GetStatesForDevice(B) = %v, want empty", got)
	}

	got, ok := c.GetValue("C", Selector{Namespace: "Alexa.PowerController"})
	if !ok {
		t.Fatal("entry for C was dropped by unrelated refresh")
	}
	if got.Value != "ON" {
		t.Errorf("C power = %v, want ON", got.Value)
	}
}

func TestCache_GetValueSelector(t *testing.T) {
	c := NewCache(time.Minute)
	c.UpdateBatch([]string{"d1"}, map[string][]*CapabilityState{
		"d1": {
			{Namespace: "Alexa.RangeController", Name: "rangeValue", Instance: "1", Value: 10.0},
			{Namespace: "Alexa.RangeController", Name: "rangeValue", Instance: "2", Value: 20.0},
			powerState("ON"),
		},
	})

	tests := []struct {
		name   string
		sel    Selector
		want   any
		wantOK bool
	}{
		{"namespace only picks first", Selector{Namespace: "Alexa.RangeController"}, 10.0, true},
		{"instance disambiguates", Selector{Namespace: "Alexa.RangeController", Instance: "2"}, 20.0, true},
		{"name matches", Selector{Namespace: "Alexa.PowerController", Name: "powerState"}, "ON", true},
		{"name mismatch", Selector{Namespace: "Alexa.PowerController", Name: "other"}, nil, false},
		{"unknown namespace", Selector{Namespace: "Alexa.ColorController"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.GetValue("d1", tt.sel)
			if ok != tt.wantOK {
				t.Fatalf("GetValue() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Value != tt.want {
				t.Errorf("GetValue() = %v, want %v", got.Value, tt.want)
			}
		})
	}
}

func TestCache_UpdateSingleValue(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(30 * time.Second)
	c.SetClock(clock.Now)
	c.UpdateBatch([]string{"d1"}, map[string][]*CapabilityState{"d1": {powerState("OFF")}})
	stamp := c.LastUpdated()

	clock.Advance(10 * time.Second)
	if !c.UpdateSingleValue("d1", *powerState("ON")) {
		t.Fatal("UpdateSingleValue() = false for existing entry")
	}

	got, _ := c.GetValue("d1", Selector{Namespace: "Alexa.PowerController", Name: "powerState"})
	if got.Value != "ON" {
		t.Errorf("power = %v, want ON", got.Value)
	}
	if !c.LastUpdated().Equal(stamp) {
		t.Error("UpdateSingleValue() must not bump the refresh timestamp")
	}
}

func TestCache_UpdateSingleValueWithoutEntryIsDropped(t *testing.T) {
	c := NewCache(time.Minute)
	c.UpdateBatch([]string{"d1"}, map[string][]*CapabilityState{"d1": {powerState("OFF")}})

	if c.UpdateSingleValue("d1", *brightness(50)) {
		t.Error("UpdateSingleValue() = true for missing entry")
	}
	if c.UpdateSingleValue("unknown", *powerState("ON")) {
		t.Error("UpdateSingleValue() = true for unknown device")
	}
	if got := c.GetStatesForDevice("d1"); len(got) != 1 {
		t.Errorf("value was inserted: %v", got)
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(time.Minute)
	input := powerState("OFF")
	c.UpdateBatch([]string{"d1"}, map[string][]*CapabilityState{"d1": {input}})

	input.Value = "MUTATED"
	got := c.GetStatesForDevice("d1")
	got[0].Value = "ALSO MUTATED"

	again, _ := c.GetValue("d1", Selector{Namespace: "Alexa.PowerController"})
	if again.Value != "OFF" {
		t.Errorf("cache was mutated through caller references: %v", again.Value)
	}
}

func TestCache_DeviceIDs(t *testing.T) {
	c := NewCache(time.Minute)
	c.UpdateBatch([]string{"b", "a"}, nil)

	ids := c.DeviceIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("DeviceIDs() = %v, want [a b]", ids)
	}
	if !c.HasAll([]string{"a", "b"}) {
		t.Error("HasAll(a, b) = false")
	}
	if c.HasAll([]string{"a", "c"}) {
		t.Error("HasAll(a, c) = true")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(time.Minute)
	c.UpdateBatch([]string{"d1"}, map[string][]*CapabilityState{"d1": {powerState("OFF")}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			c.UpdateSingleValue("d1", *powerState("ON"))
		}()
		go func() {
			defer wg.Done()
			c.GetStatesForDevice("d1")
		}()
		go func() {
			defer wg.Done()
			c.UpdateBatch([]string{"d2"}, nil)
		}()
	}
	wg.Wait()
}
