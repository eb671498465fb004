package accessory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/cloud"
)

// Spec describes one configured accessory.
type Spec struct {
	ID       string
	Name     string
	Kind     Kind
	DeviceID string

	// Media identifies the player endpoint (television only).
	Media cloud.MediaDevice

	// VolumeStep is the volume_selector step (television only).
	// Default: DefaultVolumeStep.
	VolumeStep int
}

// CommandRecorder receives every characteristic write, successful or not.
// The audit trail satisfies this interface.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, accessoryID, characteristic string, value any, source string, err error)
}

// Registry holds the configured accessories and translates their failures
// for hosts.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	ctrl     Controller
	newMedia func(cloud.MediaDevice) (MediaController, error)
	recorder CommandRecorder
	logger   Logger

	mu          sync.RWMutex
	accessories map[string]Accessory
	order       []string
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Controller is the access coordinator. Required.
	Controller Controller

	// NewMedia builds the media coordinator of a television. Required only
	// when televisions are configured.
	NewMedia func(cloud.MediaDevice) (MediaController, error)

	// Recorder is notified of every write (optional).
	Recorder CommandRecorder

	// Logger is optional.
	Logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Controller == nil {
		return nil, errors.New("accessory: controller is required")
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}
	return &Registry{
		ctrl:        opts.Controller,
		newMedia:    opts.NewMedia,
		recorder:    opts.Recorder,
		logger:      logger,
		accessories: make(map[string]Accessory),
	}, nil
}

// Add builds an accessory from spec and registers it.
func (r *Registry) Add(spec Spec) (Accessory, error) {
	if spec.ID == "" {
		return nil, errors.New("accessory: id is required")
	}
	if spec.DeviceID == "" {
		return nil, fmt.Errorf("accessory %s: device id is required", spec.ID)
	}

	name := spec.Name
	if name == "" {
		name = spec.ID
	}
	b := base{
		id:       spec.ID,
		name:     name,
		kind:     spec.Kind,
		deviceID: spec.DeviceID,
		ctrl:     r.ctrl,
		active:   r.ActiveDeviceIDs,
		logger:   r.logger,
	}

	var acc Accessory
	switch spec.Kind {
	case KindSwitch:
		acc = &Switch{base: b}
	case KindLight:
		acc = &Light{base: b}
	case KindTemperatureSensor:
		acc = &TemperatureSensor{base: b}
	case KindTelevision:
		if r.newMedia == nil {
			return nil, fmt.Errorf("accessory %s: no media controller factory", spec.ID)
		}
		media, err := r.newMedia(spec.Media)
		if err != nil {
			return nil, fmt.Errorf("accessory %s: %w", spec.ID, err)
		}
		step := spec.VolumeStep
		if step <= 0 {
			step = DefaultVolumeStep
		}
		acc = &Television{base: b, media: media, volumeStep: step}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accessories[spec.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAccessory, spec.ID)
	}
	r.accessories[spec.ID] = acc
	r.order = append(r.order, spec.ID)
	return acc, nil
}

// Get returns the accessory with the given id.
func (r *Registry) Get(id string) (Accessory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accessories[id]
	return acc, ok
}

// List returns all accessories in registration order.
func (r *Registry) List() []Accessory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Accessory, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accessories[id])
	}
	return out
}

// Count returns the number of registered accessories.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accessories)
}

// ActiveDeviceIDs returns the distinct cloud device ids of all accessories,
// sorted. This is the id set of every batch read.
func (r *Registry) ActiveDeviceIDs() []string {
	r.mu.RLock()
	seen := make(map[string]struct{}, len(r.accessories))
	ids := make([]string, 0, len(r.accessories))
	for _, acc := range r.accessories {
		id := acc.DeviceID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Read returns a characteristic value for a host. Remote failures are
// logged and reported as ErrCommunicationFailure.
func (r *Registry) Read(ctx context.Context, accessoryID, characteristic string) (any, error) {
	acc, ok := r.Get(accessoryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccessoryNotFound, accessoryID)
	}

	v, err := r.safeGet(ctx, acc, characteristic)
	if err != nil {
		if isRequestError(err) {
			return nil, err
		}
		return nil, HandleReadError(r.logger, accessoryID, characteristic, err)
	}
	return v, nil
}

// Write sets a characteristic value on behalf of a host. Remote failures
// are logged and reported as ErrCommunicationFailure.
func (r *Registry) Write(ctx context.Context, source, accessoryID, characteristic string, value any) error {
	acc, ok := r.Get(accessoryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccessoryNotFound, accessoryID)
	}

	err := r.safeSet(ctx, acc, characteristic, value)
	if r.recorder != nil {
		r.recorder.RecordCommand(ctx, accessoryID, characteristic, value, source, err)
	}
	if err == nil {
		r.logger.Info("characteristic written",
			"accessory", accessoryID,
			"characteristic", characteristic,
			"source", source,
		)
		return nil
	}
	if isRequestError(err) {
		return err
	}

	if errors.Is(err, cloud.ErrDeviceOffline) {
		r.logger.Debug("device offline",
			"accessory", accessoryID,
			"characteristic", characteristic,
			"error", err,
		)
	} else {
		r.logger.Error("characteristic write failed",
			"accessory", accessoryID,
			"characteristic", characteristic,
			"code", cloud.Code(err),
			"error", err,
		)
	}
	return ErrCommunicationFailure
}

// safeGet calls acc.Get, converting a panic into an error.
func (r *Registry) safeGet(ctx context.Context, acc Accessory, characteristic string) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in characteristic read", "accessory", acc.ID(), "panic", p)
			err = fmt.Errorf("panic reading %s: %v", characteristic, p)
		}
	}()
	return acc.Get(ctx, characteristic)
}

// safeSet calls acc.Set, converting a panic into an error.
func (r *Registry) safeSet(ctx context.Context, acc Accessory, characteristic string, value any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in characteristic write", "accessory", acc.ID(), "panic", p)
			err = fmt.Errorf("panic writing %s: %v", characteristic, p)
		}
	}()
	return acc.Set(ctx, characteristic, value)
}
