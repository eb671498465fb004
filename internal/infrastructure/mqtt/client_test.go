package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/config"
)

// Unit tests that need no broker. Broker round trips live in
// integration_test.go behind the integration build tag.

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "cloudbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors), len(l.warns)
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestBuildClientOptions(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.MQTTConfig)
		wantBroker string
		wantUser   string
		wantTLS    bool
	}{
		{"plain", func(*config.MQTTConfig) {}, "tcp://127.0.0.1:1883", "", false},
		{"tls", func(c *config.MQTTConfig) { c.Broker.TLS = true; c.Broker.Port = 8883 }, "ssl://127.0.0.1:8883", "", true},
		{"auth", func(c *config.MQTTConfig) { c.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "pw"} }, "tcp://127.0.0.1:1883", "bridge", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			opts := buildClientOptions(cfg)

			if len(opts.Servers) != 1 || opts.Servers[0].String() != tt.wantBroker {
				t.Errorf("Servers = %v, want %s", opts.Servers, tt.wantBroker)
			}
			if opts.ClientID != "cloudbridge-test" {
				t.Errorf("ClientID = %q", opts.ClientID)
			}
			if opts.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", opts.Username, tt.wantUser)
			}
			if (opts.TLSConfig != nil) != tt.wantTLS {
				t.Errorf("TLSConfig set = %v, want %v", opts.TLSConfig != nil, tt.wantTLS)
			}
			if !opts.AutoReconnect || !opts.CleanSession {
				t.Error("expected auto-reconnect and clean session")
			}
		})
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, nil)
	if opts.WillEnabled {
		t.Error("will enabled without a Will")
	}

	var co connectOptions
	WithWill("graylogic/health/alexa", []byte(`{"status":"offline"}`))(&co)
	configureLWT(opts, co.will)

	if !opts.WillEnabled || opts.WillTopic != "graylogic/health/alexa" {
		t.Errorf("will = %v %q", opts.WillEnabled, opts.WillTopic)
	}
	if string(opts.WillPayload) != `{"status":"offline"}` || opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("will payload/qos/retained = %s %d %v", opts.WillPayload, opts.WillQos, opts.WillRetained)
	}
}

func TestUnconnectedClient(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", client.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", client.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversize", client.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", client.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", client.Subscribe("", 1, handler), ErrInvalidTopic},
		{"subscribe bad qos", client.Subscribe("t", 3, handler), ErrInvalidQoS},
		{"subscribe nil handler", client.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", client.Subscribe("t", 1, handler), ErrNotConnected},
		{"health check", client.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}

	if client.SubscriptionCount() != 0 {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&Client{}).HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestWrapHandler(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	var got string
	ok := client.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "graylogic/command/alexa/lamp", payload: []byte("on")})
	if got != "graylogic/command/alexa/lamp=on" {
		t.Errorf("handler saw %q", got)
	}

	failing := client.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "t"})

	panicking := client.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "t"})

	errs, warns := logger.counts()
	if errs != 1 || warns != 1 {
		t.Errorf("logged errors=%d warns=%d, want 1 and 1", errs, warns)
	}
}

func TestConnectionCallbacks(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	var connects, disconnects int
	var lastErr error
	client.SetOnConnect(func() { connects++ })
	client.SetOnDisconnect(func(err error) {
		disconnects++
		lastErr = err
	})

	client.handleConnect()
	client.handleDisconnect(errors.New("network down"))

	if connects != 1 || disconnects != 1 {
		t.Errorf("connects=%d disconnects=%d, want 1 and 1", connects, disconnects)
	}
	if lastErr == nil || lastErr.Error() != "network down" {
		t.Errorf("disconnect error = %v", lastErr)
	}
	if client.IsConnected() {
		t.Error("IsConnected() after disconnect")
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name, got, want string
	}{
		{"BridgeState", topics.BridgeState("alexa", "lamp"), "graylogic/state/alexa/lamp"},
		{"BridgeCommand", topics.BridgeCommand("alexa", "lamp"), "graylogic/command/alexa/lamp"},
		{"BridgeAck", topics.BridgeAck("alexa", "lamp"), "graylogic/ack/alexa/lamp"},
		{"BridgeRequest", topics.BridgeRequest("alexa", "req-1"), "graylogic/request/alexa/req-1"},
		{"BridgeResponse", topics.BridgeResponse("alexa", "req-1"), "graylogic/response/alexa/req-1"},
		{"BridgeHealth", topics.BridgeHealth("alexa"), "graylogic/health/alexa"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
