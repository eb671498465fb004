package accessory

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/mediaplayer"
)

// DefaultVolumeStep is the volume change per volume_selector press.
const DefaultVolumeStep = 5

// Volume selector values.
const (
	VolumeIncrement = "increment"
	VolumeDecrement = "decrement"
)

// Switch is an on/off device.
type Switch struct {
	base
}

// Characteristics implements Accessory.
func (s *Switch) Characteristics() []CharacteristicInfo {
	return []CharacteristicInfo{{Name: CharOn, Readable: true, Writable: true}}
}

// Get implements Accessory.
func (s *Switch) Get(ctx context.Context, characteristic string) (any, error) {
	if characteristic != CharOn {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
	}
	return s.readPower(ctx)
}

// Set implements Accessory.
func (s *Switch) Set(ctx context.Context, characteristic string, value any) error {
	if characteristic != CharOn {
		return fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
	}
	return s.writePower(ctx, value)
}

// Light is a dimmable light.
type Light struct {
	base
}

// Characteristics implements Accessory.
func (l *Light) Characteristics() []CharacteristicInfo {
	return []CharacteristicInfo{
		{Name: CharOn, Readable: true, Writable: true},
		{Name: CharBrightness, Readable: true, Writable: true},
	}
}

// Get implements Accessory.
func (l *Light) Get(ctx context.Context, characteristic string) (any, error) {
	switch characteristic {
	case CharOn:
		return l.readPower(ctx)
	case CharBrightness:
		return ReadState(ctx, l.ctrl, l.deviceID, l.activeIDs(), extractBrightness, l.logger)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
}

// Set implements Accessory.
func (l *Light) Set(ctx context.Context, characteristic string, value any) error {
	switch characteristic {
	case CharOn:
		return l.writePower(ctx, value)
	case CharBrightness:
		level, err := toPercent(value)
		if err != nil {
			return err
		}
		params := map[string]any{nameBrightness: level}
		if err := l.ctrl.SetDeviceState(ctx, l.deviceID, actionSetBrightness, params); err != nil {
			return err
		}
		l.ctrl.Cache().UpdateSingleValue(l.deviceID, brightnessStateFor(level))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
}

// TemperatureSensor reports the current temperature in Celsius.
type TemperatureSensor struct {
	base
}

// Characteristics implements Accessory.
func (t *TemperatureSensor) Characteristics() []CharacteristicInfo {
	return []CharacteristicInfo{{Name: CharCurrentTemperature, Readable: true}}
}

// Get implements Accessory.
func (t *TemperatureSensor) Get(ctx context.Context, characteristic string) (any, error) {
	if characteristic != CharCurrentTemperature {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
	}
	return ReadState(ctx, t.ctrl, t.deviceID, t.activeIDs(), extractTemperature, t.logger)
}

// Set implements Accessory.
func (t *TemperatureSensor) Set(_ context.Context, characteristic string, _ any) error {
	if characteristic != CharCurrentTemperature {
		return fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
	}
	return fmt.Errorf("%w: %s", ErrNotWritable, characteristic)
}

// Television is a media device. Power goes through the device state
// coordinator; volume and transport through the media player coordinator.
type Television struct {
	base
	media      MediaController
	volumeStep int
}

// Characteristics implements Accessory.
func (tv *Television) Characteristics() []CharacteristicInfo {
	return []CharacteristicInfo{
		{Name: CharActive, Readable: true, Writable: true},
		{Name: CharVolume, Readable: true, Writable: true},
		{Name: CharMute, Readable: true, Writable: true},
		{Name: CharVolumeSelector, Writable: true},
		{Name: CharRemoteKey, Writable: true},
	}
}

// Get implements Accessory.
func (tv *Television) Get(ctx context.Context, characteristic string) (any, error) {
	switch characteristic {
	case CharActive:
		return tv.readPower(ctx)
	case CharVolume:
		res, err := tv.media.GetPlayerInfo(ctx)
		if err != nil {
			return nil, err
		}
		return res.Info.Volume, nil
	case CharMute:
		res, err := tv.media.GetPlayerInfo(ctx)
		if err != nil {
			return nil, err
		}
		return res.Info.Muted, nil
	case CharVolumeSelector, CharRemoteKey:
		return nil, fmt.Errorf("%w: %s", ErrNotReadable, characteristic)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
}

// Set implements Accessory.
func (tv *Television) Set(ctx context.Context, characteristic string, value any) error {
	switch characteristic {
	case CharActive:
		return tv.writePower(ctx, value)
	case CharVolume:
		level, err := toPercent(value)
		if err != nil {
			return err
		}
		return tv.media.SetVolume(ctx, level)
	case CharMute:
		muted, err := toBool(value)
		if err != nil {
			return err
		}
		return tv.media.SetMuted(ctx, muted)
	case CharVolumeSelector:
		dir, err := toString(value)
		if err != nil {
			return err
		}
		switch strings.ToLower(dir) {
		case VolumeIncrement:
			_, err = tv.media.StepVolume(ctx, tv.volumeStep)
		case VolumeDecrement:
			_, err = tv.media.StepVolume(ctx, -tv.volumeStep)
		default:
			return fmt.Errorf("%w: volume selector %q", ErrInvalidValue, dir)
		}
		return err
	case CharRemoteKey:
		key, err := toString(value)
		if err != nil {
			return err
		}
		rk := mediaplayer.RemoteKey(strings.ToLower(key))
		switch rk {
		case mediaplayer.KeyPlayPause, mediaplayer.KeyNext, mediaplayer.KeyPrevious:
		default:
			return fmt.Errorf("%w: remote key %q", ErrInvalidValue, key)
		}
		return tv.media.ControlMedia(ctx, rk)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
}
