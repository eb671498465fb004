package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/accessory"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/audit"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/logging"
)

// writeConfig writes a minimal configuration and points CLOUDBRIDGE_CONFIG at it.
func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloudbridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv(configEnvVar, path)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configEnvVar, "/nonexistent/path/cloudbridge.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

// TestRun_ValidationFailure verifies run refuses a config without a cloud endpoint.
func TestRun_ValidationFailure(t *testing.T) {
	writeConfig(t, `
bridge:
  id: test-bridge
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "cloud.base_url") {
		t.Fatalf("run() error = %v, want cloud.base_url validation error", err)
	}
}

// TestRun_BrokerUnreachable verifies startup fails cleanly when MQTT is down.
func TestRun_BrokerUnreachable(t *testing.T) {
	writeConfig(t, `
bridge:
  id: test-bridge
cloud:
  base_url: "http://127.0.0.1:19997"
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
  reconnect:
    initial_delay: 1
    max_delay: 5
api:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
accessories:
  - id: kitchen
    kind: light
    device_id: lamp-1
`)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a broker")
	}
	if !strings.Contains(err.Error(), "MQTT") {
		t.Errorf("run() error = %v, want MQTT connection error", err)
	}
}

// TestRun_SuccessfulStartupAndShutdown tests full startup with running services.
// Requires MQTT broker at 127.0.0.1:1883.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	writeConfig(t, `
bridge:
  id: test-bridge
  poll_interval: 0
cloud:
  base_url: "http://127.0.0.1:19997"
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-successful-startup"
api:
  host: "127.0.0.1"
  port: 18090
logging:
  level: info
  format: text
  output: stdout
`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error: %v (may be due to missing MQTT broker)", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnvVar, "/custom/cloudbridge.yaml")
	if got := getConfigPath(); got != "/custom/cloudbridge.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestAccessorySpec(t *testing.T) {
	spec := accessorySpec(config.AccessoryConfig{
		ID:       "lounge-tv",
		Name:     "Lounge TV",
		Kind:     config.KindTelevision,
		DeviceID: "tv-1",
		Media: config.MediaDeviceConfig{
			SerialNumber: "G0X1",
			DeviceType:   "A2E0",
		},
		VolumeStep: 5,
	})

	if spec.Kind != accessory.KindTelevision {
		t.Errorf("Kind = %q, want television", spec.Kind)
	}
	if spec.Media.SerialNumber != "G0X1" || spec.Media.Type != "A2E0" || spec.Media.Name != "Lounge TV" {
		t.Errorf("Media = %+v", spec.Media)
	}
	if spec.VolumeStep != 5 {
		t.Errorf("VolumeStep = %d, want 5", spec.VolumeStep)
	}
}

type nopAuditRepo struct{}

func (nopAuditRepo) Create(context.Context, *audit.Entry) error { return nil }
func (nopAuditRepo) List(context.Context, audit.Filter) (*audit.Page, error) {
	return &audit.Page{}, nil
}

func TestBuildAccessories(t *testing.T) {
	cfg := &config.Config{
		Cloud: config.CloudConfig{BaseURL: "http://127.0.0.1:19997"},
		Cache: config.CacheConfig{TTL: 30, Enabled: true},
		Media: config.MediaConfig{TTL: 30, InfoLockTimeout: 10, CommandLockTimeout: 15},
		Accessories: []config.AccessoryConfig{
			{ID: "kitchen", Kind: config.KindLight, DeviceID: "lamp-1"},
			{ID: "hall", Kind: config.KindSwitch, DeviceID: "plug-1"},
			{ID: "tv", Kind: config.KindTelevision, DeviceID: "tv-1",
				Media: config.MediaDeviceConfig{SerialNumber: "G0X1", DeviceType: "A2E0"}},
		},
	}

	registry, coord, err := buildAccessories(cfg, nopAuditRepo{}, nil, logging.Discard())
	if err != nil {
		t.Fatalf("buildAccessories() error: %v", err)
	}
	if coord == nil {
		t.Fatal("coordinator is nil")
	}
	if registry.Count() != 3 {
		t.Errorf("Count() = %d, want 3", registry.Count())
	}
	if _, ok := registry.Get("tv"); !ok {
		t.Error("television not registered")
	}
}

func TestBuildAccessories_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{
			name: "missing cloud URL",
			cfg:  &config.Config{Cache: config.CacheConfig{TTL: 30}},
		},
		{
			name: "unknown kind",
			cfg: &config.Config{
				Cloud:       config.CloudConfig{BaseURL: "http://127.0.0.1:19997"},
				Cache:       config.CacheConfig{TTL: 30},
				Accessories: []config.AccessoryConfig{{ID: "x", Kind: "fan", DeviceID: "d"}},
			},
		},
		{
			name: "duplicate id",
			cfg: &config.Config{
				Cloud: config.CloudConfig{BaseURL: "http://127.0.0.1:19997"},
				Cache: config.CacheConfig{TTL: 30},
				Accessories: []config.AccessoryConfig{
					{ID: "x", Kind: config.KindSwitch, DeviceID: "d1"},
					{ID: "x", Kind: config.KindSwitch, DeviceID: "d2"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := buildAccessories(tt.cfg, nopAuditRepo{}, nil, logging.Discard()); err == nil {
				t.Error("buildAccessories() should fail")
			}
		})
	}
}
