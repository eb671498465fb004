package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/accessory"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// PublishedTo returns the messages published to topic.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// fakeAccessory is a readable/writable accessory backed by a map.
type fakeAccessory struct {
	id    string
	kind  accessory.Kind
	chars []accessory.CharacteristicInfo
}

func (f *fakeAccessory) ID() string                                   { return f.id }
func (f *fakeAccessory) Name() string                                 { return f.id }
func (f *fakeAccessory) Kind() accessory.Kind                         { return f.kind }
func (f *fakeAccessory) DeviceID() string                             { return "dev-" + f.id }
func (f *fakeAccessory) Characteristics() []accessory.CharacteristicInfo { return f.chars }

func (f *fakeAccessory) Get(context.Context, string) (any, error) {
	return nil, errors.New("use the host")
}

func (f *fakeAccessory) Set(context.Context, string, any) error {
	return errors.New("use the host")
}

// mockHost implements AccessoryHost over fakeAccessory values.
type mockHost struct {
	mu       sync.Mutex
	order    []*fakeAccessory
	values   map[string]map[string]any
	readErr  map[string]error
	writeErr error
	writes   []string
	reads    int
}

func newMockHost() *mockHost {
	h := &mockHost{
		values:  make(map[string]map[string]any),
		readErr: make(map[string]error),
	}
	h.add("lamp", accessory.KindLight, map[string]any{"on": true, "brightness": 40},
		accessory.CharacteristicInfo{Name: "on", Readable: true, Writable: true},
		accessory.CharacteristicInfo{Name: "brightness", Readable: true, Writable: true})
	h.add("thermo", accessory.KindTemperatureSensor, map[string]any{"current_temperature": 21.5},
		accessory.CharacteristicInfo{Name: "current_temperature", Readable: true})
	return h
}

func (h *mockHost) add(id string, kind accessory.Kind, values map[string]any, chars ...accessory.CharacteristicInfo) {
	h.order = append(h.order, &fakeAccessory{id: id, kind: kind, chars: chars})
	h.values[id] = values
}

func (h *mockHost) List() []accessory.Accessory {
	out := make([]accessory.Accessory, 0, len(h.order))
	for _, a := range h.order {
		out = append(out, a)
	}
	return out
}

func (h *mockHost) Get(id string) (accessory.Accessory, bool) {
	for _, a := range h.order {
		if a.id == id {
			return a, true
		}
	}
	return nil, false
}

func (h *mockHost) Count() int { return len(h.order) }

func (h *mockHost) Read(_ context.Context, id, char string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	if err := h.readErr[id]; err != nil {
		return nil, err
	}
	values, ok := h.values[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accessory.ErrAccessoryNotFound, id)
	}
	v, ok := values[char]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accessory.ErrUnknownCharacteristic, char)
	}
	return v, nil
}

func (h *mockHost) Write(_ context.Context, source, id, char string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, fmt.Sprintf("%s:%s:%s=%v", source, id, char, value))
	if h.writeErr != nil {
		return h.writeErr
	}
	values, ok := h.values[id]
	if !ok {
		return fmt.Errorf("%w: %s", accessory.ErrAccessoryNotFound, id)
	}
	values[char] = value
	return nil
}

func (h *mockHost) set(id, char string, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[id][char] = v
}

func (h *mockHost) getWrites() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

func createTestBridge(t *testing.T, mqtt *MockMQTTClient, host *mockHost) *Bridge {
	t.Helper()
	b, err := NewBridge(BridgeOptions{
		Config: Config{
			ID:           "cloudbridge-test",
			Version:      "test",
			PollInterval: -1,
		},
		MQTTClient:  mqtt,
		Accessories: host,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	return b
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lastAck(t *testing.T, mqtt *MockMQTTClient, accessoryID string) AckMessage {
	t.Helper()
	acks := mqtt.PublishedTo(AckTopic(accessoryID))
	if len(acks) == 0 {
		t.Fatalf("no ack published for %s", accessoryID)
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[len(acks)-1].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestNewBridgeValidation(t *testing.T) {
	if _, err := NewBridge(BridgeOptions{Accessories: newMockHost()}); err == nil {
		t.Error("NewBridge() without MQTT client should fail")
	}
	if _, err := NewBridge(BridgeOptions{MQTTClient: NewMockMQTTClient()}); err == nil {
		t.Error("NewBridge() without accessories should fail")
	}

	b, err := NewBridge(BridgeOptions{MQTTClient: NewMockMQTTClient(), Accessories: newMockHost()})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	if b.cfg.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", b.cfg.PollInterval, defaultPollInterval)
	}
	if b.cfg.CommandTimeout != defaultCommandTimeout {
		t.Errorf("CommandTimeout = %v, want %v", b.cfg.CommandTimeout, defaultCommandTimeout)
	}
}

func TestBridgeStartStop(t *testing.T) {
	mqtt := NewMockMQTTClient()
	b := createTestBridge(t, mqtt, newMockHost())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	subs := mqtt.GetSubscriptions()
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(subs))
	}
	if subs[0].Topic != "graylogic/command/alexa/#" || subs[1].Topic != "graylogic/request/alexa/#" {
		t.Errorf("subscriptions = %+v", subs)
	}

	waitFor(t, "health message", func() bool { return len(mqtt.PublishedTo(HealthTopic())) >= 2 })

	b.Stop()
	b.Stop()

	health := mqtt.PublishedTo(HealthTopic())
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("final health status = %q, want %q", last.Status, HealthStopping)
	}
}

func TestBridgeCommand(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	b := createTestBridge(t, mqtt, host)
	defer b.Stop()

	payload, _ := json.Marshal(CommandMessage{
		ID:             "cmd-001",
		Characteristic: "brightness",
		Value:          75,
	})
	b.handleMQTTMessage("graylogic/command/alexa/lamp", payload)

	waitFor(t, "ack", func() bool { return len(mqtt.PublishedTo(AckTopic("lamp"))) > 0 })

	ack := lastAck(t, mqtt, "lamp")
	if ack.Status != AckAccepted || ack.CommandID != "cmd-001" || ack.AccessoryID != "lamp" {
		t.Errorf("ack = %+v", ack)
	}
	if got := host.getWrites(); len(got) != 1 || got[0] != "mqtt:lamp:brightness=75" {
		t.Errorf("writes = %v", got)
	}

	waitFor(t, "state", func() bool { return len(mqtt.PublishedTo(StateTopic("lamp"))) > 0 })
	state := mqtt.PublishedTo(StateTopic("lamp"))[0]
	if !state.Retained {
		t.Error("state message should be retained")
	}
}

func TestBridgeCommandSourcePreserved(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	b := createTestBridge(t, mqtt, host)
	defer b.Stop()

	payload, _ := json.Marshal(CommandMessage{
		ID:             "cmd-002",
		AccessoryID:    "lamp",
		Characteristic: "on",
		Value:          false,
		Source:         "scene",
	})
	b.handleMQTTMessage("graylogic/command/alexa/ignored", payload)

	waitFor(t, "ack", func() bool { return len(mqtt.PublishedTo(AckTopic("lamp"))) > 0 })
	if got := host.getWrites(); len(got) != 1 || got[0] != "scene:lamp:on=false" {
		t.Errorf("writes = %v", got)
	}
}

func TestBridgeCommandFailures(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		char     string
		writeErr error
		wantCode string
	}{
		{"unknown accessory", "missing", "on", nil, ErrCodeNotConfigured},
		{"missing characteristic", "lamp", "", nil, ErrCodeInvalidCommand},
		{"not writable", "lamp", "on", accessory.ErrNotWritable, ErrCodeInvalidCommand},
		{"invalid value", "lamp", "on", fmt.Errorf("%w: x", accessory.ErrInvalidValue), ErrCodeInvalidParameters},
		{"communication failure", "lamp", "on", accessory.ErrCommunicationFailure, ErrCodeDeviceUnreachable},
		{"anything else", "lamp", "on", errors.New("boom"), ErrCodeBridgeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mqtt := NewMockMQTTClient()
			host := newMockHost()
			host.writeErr = tt.writeErr
			b := createTestBridge(t, mqtt, host)
			defer b.Stop()

			payload, _ := json.Marshal(CommandMessage{ID: "cmd", Characteristic: tt.char, Value: true})
			b.handleMQTTMessage(CommandTopic(tt.target), payload)

			waitFor(t, "ack", func() bool { return len(mqtt.PublishedTo(AckTopic(tt.target))) > 0 })
			ack := lastAck(t, mqtt, tt.target)
			if ack.Status != AckFailed {
				t.Fatalf("ack status = %q, want failed", ack.Status)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack error = %+v, want code %s", ack.Error, tt.wantCode)
			}
			if got := b.GetMetrics().CommandsFailed; got != 1 {
				t.Errorf("CommandsFailed = %d, want 1", got)
			}
		})
	}
}

func TestBridgeCommandAfterStop(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	b := createTestBridge(t, mqtt, host)
	b.Stop()

	payload, _ := json.Marshal(CommandMessage{ID: "late", Characteristic: "on", Value: true})
	b.handleMQTTMessage(CommandTopic("lamp"), payload)

	ack := lastAck(t, mqtt, "lamp")
	if ack.Error == nil || ack.Error.Code != ErrCodeBridgeError {
		t.Errorf("ack = %+v, want BRIDGE_ERROR", ack)
	}
	if len(host.getWrites()) != 0 {
		t.Error("no write should happen after Stop")
	}
}

func TestBridgeInvalidMessages(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	b := createTestBridge(t, mqtt, host)
	defer b.Stop()

	b.handleMQTTMessage("graylogic/command", []byte(`{}`))
	b.handleMQTTMessage(CommandTopic("lamp"), []byte(`not json`))
	b.handleMQTTMessage("graylogic/unknown/alexa/x", []byte(`{}`))

	if n := len(mqtt.GetPublished()); n != 0 {
		t.Errorf("published %d messages for invalid input, want 0", n)
	}
	if len(host.getWrites()) != 0 {
		t.Error("invalid input must not write")
	}
}

func requestAndWait(t *testing.T, b *Bridge, mqtt *MockMQTTClient, req RequestMessage) ResponseMessage {
	t.Helper()
	payload, _ := json.Marshal(req)
	b.handleMQTTMessage(RequestTopic(req.RequestID), payload)

	topic := ResponseTopic(req.RequestID)
	waitFor(t, "response", func() bool { return len(mqtt.PublishedTo(topic)) > 0 })

	var resp ResponseMessage
	if err := json.Unmarshal(mqtt.PublishedTo(topic)[0].Payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestBridgeReadStateRequest(t *testing.T) {
	mqtt := NewMockMQTTClient()
	b := createTestBridge(t, mqtt, newMockHost())
	defer b.Stop()

	resp := requestAndWait(t, b, mqtt, RequestMessage{RequestID: "r1", Action: ActionReadState, AccessoryID: "lamp"})
	if !resp.Success {
		t.Fatalf("response failed: %+v", resp.Error)
	}
	state, ok := resp.Data["state"].(map[string]any)
	if !ok {
		t.Fatalf("state = %T", resp.Data["state"])
	}
	if state["on"] != true || state["brightness"] != float64(40) {
		t.Errorf("state = %v", state)
	}

	resp = requestAndWait(t, b, mqtt, RequestMessage{
		RequestID: "r2", Action: ActionReadState, AccessoryID: "lamp", Characteristic: "brightness",
	})
	state, _ = resp.Data["state"].(map[string]any)
	if len(state) != 1 || state["brightness"] != float64(40) {
		t.Errorf("single characteristic state = %v", state)
	}
}

func TestBridgeRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      RequestMessage
		wantCode string
	}{
		{"missing accessory id", RequestMessage{Action: ActionReadState}, ErrCodeInvalidParameters},
		{"unknown accessory", RequestMessage{Action: ActionReadState, AccessoryID: "nope"}, ErrCodeNotConfigured},
		{"unknown characteristic", RequestMessage{Action: ActionReadState, AccessoryID: "lamp", Characteristic: "hue"}, ErrCodeInvalidCommand},
		{"unknown action", RequestMessage{Action: "reboot"}, ErrCodeInvalidCommand},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mqtt := NewMockMQTTClient()
			b := createTestBridge(t, mqtt, newMockHost())
			defer b.Stop()

			tt.req.RequestID = fmt.Sprintf("req-%d", i)
			resp := requestAndWait(t, b, mqtt, tt.req)
			if resp.Success {
				t.Fatal("request should fail")
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestBridgeReadAllAndList(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	host.readErr["thermo"] = accessory.ErrCommunicationFailure
	b := createTestBridge(t, mqtt, host)
	defer b.Stop()

	resp := requestAndWait(t, b, mqtt, RequestMessage{RequestID: "all", Action: ActionReadAll})
	all, _ := resp.Data["accessories"].(map[string]any)
	if _, ok := all["lamp"]; !ok || len(all) != 1 {
		t.Errorf("read_all accessories = %v, want only lamp", all)
	}
	if resp.Data["failed"] != float64(1) {
		t.Errorf("failed = %v, want 1", resp.Data["failed"])
	}

	resp = requestAndWait(t, b, mqtt, RequestMessage{RequestID: "list", Action: ActionListAccessories})
	list, _ := resp.Data["accessories"].([]any)
	if len(list) != 2 {
		t.Fatalf("list_accessories = %v, want 2 entries", list)
	}
	first, _ := list[0].(map[string]any)
	if first["id"] != "lamp" || first["kind"] != "light" {
		t.Errorf("first accessory = %v", first)
	}
}

func TestBridgePollPublishesChangesOnly(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	b := createTestBridge(t, mqtt, host)
	defer b.Stop()

	ctx := context.Background()
	b.PollOnce(ctx)
	if got := len(mqtt.PublishedTo(StateTopic("lamp"))); got != 1 {
		t.Fatalf("first poll: lamp states = %d, want 1", got)
	}
	if got := len(mqtt.PublishedTo(StateTopic("thermo"))); got != 1 {
		t.Fatalf("first poll: thermo states = %d, want 1", got)
	}

	b.PollOnce(ctx)
	if got := len(mqtt.PublishedTo(StateTopic("lamp"))); got != 1 {
		t.Errorf("unchanged poll republished lamp (%d messages)", got)
	}

	host.set("lamp", "brightness", 80)
	b.PollOnce(ctx)
	states := mqtt.PublishedTo(StateTopic("lamp"))
	if len(states) != 2 {
		t.Fatalf("changed poll: lamp states = %d, want 2", len(states))
	}
	var msg StateMessage
	if err := json.Unmarshal(states[1].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.State["brightness"] != float64(80) || msg.Kind != "light" || msg.Protocol != Protocol {
		t.Errorf("state message = %+v", msg)
	}
	if got := len(mqtt.PublishedTo(StateTopic("thermo"))); got != 1 {
		t.Errorf("thermo republished without change (%d messages)", got)
	}

	b.ClearStateCache()
	b.PollOnce(ctx)
	if got := len(mqtt.PublishedTo(StateTopic("thermo"))); got != 2 {
		t.Errorf("after ClearStateCache thermo states = %d, want 2", got)
	}
	if got := b.GetMetrics().StatesPublished; got != 5 {
		t.Errorf("StatesPublished = %d, want 5", got)
	}
}

func TestBridgePollSkipsUnreadable(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	host.readErr["lamp"] = accessory.ErrCommunicationFailure
	b := createTestBridge(t, mqtt, host)
	defer b.Stop()

	b.PollOnce(context.Background())
	if got := len(mqtt.PublishedTo(StateTopic("lamp"))); got != 0 {
		t.Errorf("unreadable accessory published %d states", got)
	}
	if got := len(mqtt.PublishedTo(StateTopic("thermo"))); got != 1 {
		t.Errorf("thermo states = %d, want 1", got)
	}
}

func TestBridgePollLoop(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()
	b, err := NewBridge(BridgeOptions{
		Config:      Config{ID: "poll", PollInterval: 10 * time.Millisecond},
		MQTTClient:  mqtt,
		Accessories: host,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	waitFor(t, "initial poll", func() bool { return len(mqtt.PublishedTo(StateTopic("lamp"))) == 1 })
	host.set("lamp", "on", false)
	waitFor(t, "change published", func() bool { return len(mqtt.PublishedTo(StateTopic("lamp"))) == 2 })
	b.Stop()
}

func TestBridgePublishAccessoryStateNotifies(t *testing.T) {
	mqtt := NewMockMQTTClient()
	host := newMockHost()

	var mu sync.Mutex
	var seen []StateMessage
	b, err := NewBridge(BridgeOptions{
		Config:      Config{ID: "hook", PollInterval: -1},
		MQTTClient:  mqtt,
		Accessories: host,
		OnState: func(msg StateMessage) {
			mu.Lock()
			seen = append(seen, msg)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	defer b.Stop()

	ctx := context.Background()
	if err := b.PublishAccessoryState(ctx, "lamp"); err != nil {
		t.Fatalf("PublishAccessoryState() error = %v", err)
	}
	// Unchanged: no second notification.
	if err := b.PublishAccessoryState(ctx, "lamp"); err != nil {
		t.Fatalf("PublishAccessoryState() error = %v", err)
	}
	if err := b.PublishAccessoryState(ctx, "missing"); !errors.Is(err, accessory.ErrAccessoryNotFound) {
		t.Errorf("unknown accessory error = %v, want ErrAccessoryNotFound", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].AccessoryID != "lamp" || seen[0].State["on"] != true {
		t.Errorf("OnState saw %+v, want one lamp state", seen)
	}
	if got := len(mqtt.PublishedTo(StateTopic("lamp"))); got != 1 {
		t.Errorf("lamp states published = %d, want 1", got)
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{nil, nil, true},
		{nil, false, false},
		{true, true, true},
		{40, 40, true},
		{40, 41, false},
		{40, 40.0, false},
		{"increment", "increment", true},
	}
	for _, tt := range tests {
		if got := valuesEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("valuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
