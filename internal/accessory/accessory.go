package accessory

import (
	"context"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/mediaplayer"
)

// Kind is the type of an accessory.
type Kind string

// Supported accessory kinds.
const (
	KindSwitch            Kind = "switch"
	KindLight             Kind = "light"
	KindTemperatureSensor Kind = "temperature_sensor"
	KindTelevision        Kind = "television"
)

// Characteristic names exposed to hosts.
const (
	CharOn                 = "on"
	CharBrightness         = "brightness"
	CharCurrentTemperature = "current_temperature"
	CharActive             = "active"
	CharVolume             = "volume"
	CharMute               = "mute"
	CharVolumeSelector     = "volume_selector"
	CharRemoteKey          = "remote_key"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CharacteristicInfo describes one characteristic of an accessory.
type CharacteristicInfo struct {
	Name     string `json:"name"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// Accessory is a host-visible device backed by the vendor cloud.
//
// Get and Set return the raw failure (cloud taxonomy or request errors);
// Registry.Read and Registry.Write translate them for hosts.
type Accessory interface {
	ID() string
	Name() string
	Kind() Kind

	// DeviceID is the cloud entity id backing the accessory.
	DeviceID() string

	Characteristics() []CharacteristicInfo
	Get(ctx context.Context, characteristic string) (any, error)
	Set(ctx context.Context, characteristic string, value any) error
}

// Controller is the access coordinator as used by accessories.
type Controller interface {
	StateReader
	SetDeviceState(ctx context.Context, id, action string, params map[string]any) error
}

// MediaController is the media player coordinator as used by accessories.
type MediaController interface {
	GetPlayerInfo(ctx context.Context) (mediaplayer.Result, error)
	SetVolume(ctx context.Context, level int) error
	StepVolume(ctx context.Context, delta int) (int, error)
	SetMuted(ctx context.Context, muted bool) error
	ControlMedia(ctx context.Context, key mediaplayer.RemoteKey) error
}

// base holds what every state-backed accessory shares.
type base struct {
	id       string
	name     string
	kind     Kind
	deviceID string
	ctrl     Controller
	active   func() []string
	logger   Logger
}

func (b *base) ID() string       { return b.id }
func (b *base) Name() string     { return b.name }
func (b *base) Kind() Kind       { return b.kind }
func (b *base) DeviceID() string { return b.deviceID }

func (b *base) activeIDs() []string {
	if b.active == nil {
		return []string{b.deviceID}
	}
	return b.active()
}

// readPower reads the power state of the backing device.
func (b *base) readPower(ctx context.Context) (bool, error) {
	return ReadState(ctx, b.ctrl, b.deviceID, b.activeIDs(), extractPower, b.logger)
}

// writePower switches the backing device and writes the new state back.
func (b *base) writePower(ctx context.Context, value any) error {
	on, err := toBool(value)
	if err != nil {
		return err
	}
	if err := b.ctrl.SetDeviceState(ctx, b.deviceID, powerAction(on), nil); err != nil {
		return err
	}
	b.ctrl.Cache().UpdateSingleValue(b.deviceID, powerStateFor(on))
	return nil
}
