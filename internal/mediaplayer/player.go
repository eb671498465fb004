// Package mediaplayer coordinates reads and commands for one cloud media device.
package mediaplayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/cloud"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/metrics"
)

// Player constants.
const (
	// DefaultTTL is how long fetched player info is served from memory.
	DefaultTTL = 30 * time.Second

	// DefaultInfoLockTimeout bounds the wait for the player info lock.
	DefaultInfoLockTimeout = 10 * time.Second

	// DefaultCommandLockTimeout bounds the wait for the command lock.
	DefaultCommandLockTimeout = 15 * time.Second

	// Volume bounds.
	MinVolume = 0
	MaxVolume = 100

	infoLockName    = "player_info"
	commandLockName = "player_command"
	cacheName       = "player_info"
)

// RemoteKey is a transport key pressed on a media remote.
type RemoteKey string

// Supported remote keys.
const (
	KeyPlayPause RemoteKey = "play_pause"
	KeyNext      RemoteKey = "next"
	KeyPrevious  RemoteKey = "previous"
)

// ErrUnsupportedKey is returned by ControlMedia for unknown keys.
var ErrUnsupportedKey = errors.New("mediaplayer: unsupported remote key")

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

// Result is the outcome of GetPlayerInfo.
type Result struct {
	FromCache bool
	Info      cloud.PlayerInfo
}

// Options configures a Coordinator.
type Options struct {
	// Client is the remote cloud. Required.
	Client cloud.Client

	// Device is the media device driven by this coordinator. Required.
	Device cloud.MediaDevice

	// TTL overrides DefaultTTL.
	TTL time.Duration

	// InfoLockTimeout overrides DefaultInfoLockTimeout.
	InfoLockTimeout time.Duration

	// CommandLockTimeout overrides DefaultCommandLockTimeout.
	CommandLockTimeout time.Duration

	// Clock overrides time.Now. Intended for tests.
	Clock func() time.Time

	// Logger is optional.
	Logger Logger
}

// Coordinator serialises access to one media device.
//
// Player info fetches are serialised by the info lock and cached for TTL.
// Commands are serialised by an independent command lock, so a
// read-compute-write such as a volume step never interleaves with another
// command. After a successful command the cached info is updated in place
// without extending its lifetime.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	client cloud.Client
	device cloud.MediaDevice
	ttl    time.Duration
	now    func() time.Time
	logger Logger

	infoLock       *semaphore.Weighted
	infoTimeout    time.Duration
	commandLock    *semaphore.Weighted
	commandTimeout time.Duration

	mu          sync.Mutex
	info        cloud.PlayerInfo
	lastUpdated time.Time
	hasInfo     bool
}

// New creates a Coordinator for one media device.
func New(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, errors.New("mediaplayer: client is required")
	}
	if opts.Device.SerialNumber == "" {
		return nil, errors.New("mediaplayer: device serial number is required")
	}

	c := &Coordinator{
		client:         opts.Client,
		device:         opts.Device,
		ttl:            orDefault(opts.TTL, DefaultTTL),
		now:            opts.Clock,
		logger:         opts.Logger,
		infoLock:       semaphore.NewWeighted(1),
		infoTimeout:    orDefault(opts.InfoLockTimeout, DefaultInfoLockTimeout),
		commandLock:    semaphore.NewWeighted(1),
		commandTimeout: orDefault(opts.CommandLockTimeout, DefaultCommandLockTimeout),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// Device returns the media device driven by this coordinator.
func (c *Coordinator) Device() cloud.MediaDevice {
	return c.device
}

// GetPlayerInfo returns the player state, from memory when fetched less than
// TTL ago and from the remote otherwise.
func (c *Coordinator) GetPlayerInfo(ctx context.Context) (Result, error) {
	if err := c.acquire(ctx, c.infoLock, c.infoTimeout, infoLockName); err != nil {
		return Result{}, err
	}
	defer c.infoLock.Release(1)

	c.mu.Lock()
	if c.hasInfo && c.lastUpdated.Add(c.ttl).After(c.now()) {
		info := c.info
		c.mu.Unlock()
		metrics.RecordCache(cacheName, true)
		return Result{FromCache: true, Info: info}, nil
	}
	c.mu.Unlock()
	metrics.RecordCache(cacheName, false)

	started := time.Now()
	info, err := c.client.GetPlayerInfo(ctx, c.device)
	metrics.ObserveRemoteCall("get_player_info", started, err)
	if err != nil {
		c.logger.Warn("player info fetch failed", "device", c.device.SerialNumber, "error", err)
		return Result{}, err
	}

	c.mu.Lock()
	c.info = *info
	c.lastUpdated = c.now()
	c.hasInfo = true
	c.mu.Unlock()

	return Result{Info: *info}, nil
}

// SetVolume sets an absolute volume, clamped to 0..100.
func (c *Coordinator) SetVolume(ctx context.Context, level int) error {
	return c.withCommandLock(ctx, func(cloud.PlayerInfo) (cloud.PlayerCommand, func(*cloud.PlayerInfo)) {
		v := clampVolume(level)
		return cloud.PlayerCommand{Type: cloud.CommandVolume, VolumeLevel: &v},
			func(info *cloud.PlayerInfo) { info.Volume = v }
	})
}

// StepVolume changes the volume by delta relative to the current level and
// returns the new level.
func (c *Coordinator) StepVolume(ctx context.Context, delta int) (int, error) {
	var level int
	err := c.withCommandLock(ctx, func(current cloud.PlayerInfo) (cloud.PlayerCommand, func(*cloud.PlayerInfo)) {
		level = clampVolume(current.Volume + delta)
		v := level
		return cloud.PlayerCommand{Type: cloud.CommandVolume, VolumeLevel: &v},
			func(info *cloud.PlayerInfo) { info.Volume = v }
	})
	if err != nil {
		return 0, err
	}
	return level, nil
}

// SetMuted sets the mute flag.
func (c *Coordinator) SetMuted(ctx context.Context, muted bool) error {
	return c.withCommandLock(ctx, func(cloud.PlayerInfo) (cloud.PlayerCommand, func(*cloud.PlayerInfo)) {
		m := muted
		return cloud.PlayerCommand{Type: cloud.CommandMute, Mute: &m},
			func(info *cloud.PlayerInfo) { info.Muted = m }
	})
}

// ControlMedia sends a transport command. Play/pause toggles on the current
// playback state.
func (c *Coordinator) ControlMedia(ctx context.Context, key RemoteKey) error {
	switch key {
	case KeyPlayPause, KeyNext, KeyPrevious:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}

	return c.withCommandLock(ctx, func(current cloud.PlayerInfo) (cloud.PlayerCommand, func(*cloud.PlayerInfo)) {
		switch key {
		case KeyNext:
			return cloud.PlayerCommand{Type: cloud.CommandNext}, nil
		case KeyPrevious:
			return cloud.PlayerCommand{Type: cloud.CommandPrevious}, nil
		}

		if current.State == cloud.PlaybackPlaying {
			return cloud.PlayerCommand{Type: cloud.CommandPause},
				func(info *cloud.PlayerInfo) { info.State = cloud.PlaybackPaused }
		}
		return cloud.PlayerCommand{Type: cloud.CommandPlay},
			func(info *cloud.PlayerInfo) { info.State = cloud.PlaybackPlaying }
	})
}

// withCommandLock runs one read-compute-write under the command lock.
// plan receives the current player info and returns the command to send
// and the optimistic update to apply on success (nil for none).
func (c *Coordinator) withCommandLock(
	ctx context.Context,
	plan func(current cloud.PlayerInfo) (cloud.PlayerCommand, func(*cloud.PlayerInfo)),
) error {
	if err := c.acquire(ctx, c.commandLock, c.commandTimeout, commandLockName); err != nil {
		return err
	}
	defer c.commandLock.Release(1)

	current, err := c.GetPlayerInfo(ctx)
	if err != nil {
		return err
	}

	cmd, apply := plan(current.Info)

	started := time.Now()
	err = c.client.SendPlayerCommand(ctx, c.device, cmd)
	metrics.ObserveRemoteCall("send_player_command", started, err)
	if err != nil {
		c.logger.Warn("player command failed",
			"device", c.device.SerialNumber,
			"command", cmd.Type,
			"error", err,
		)
		return err
	}

	if apply != nil {
		c.mu.Lock()
		if c.hasInfo {
			apply(&c.info)
		}
		c.mu.Unlock()
	}

	c.logger.Debug("player command sent", "device", c.device.SerialNumber, "command", cmd.Type)
	return nil
}

// acquire takes a lock within timeout. Expiry of the lock's own deadline is
// reported as cloud.ErrTimeout; caller cancellation is returned as is.
func (c *Coordinator) acquire(ctx context.Context, lock *semaphore.Weighted, timeout time.Duration, name string) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := lock.Acquire(waitCtx, 1)
	if err == nil {
		metrics.ObserveLockWait(name, started, false)
		return nil
	}
	if ctx.Err() != nil {
		metrics.ObserveLockWait(name, started, false)
		return fmt.Errorf("waiting for %s lock: %w", name, ctx.Err())
	}

	metrics.ObserveLockWait(name, started, true)
	c.logger.Warn("media lock timeout", "device", c.device.SerialNumber, "lock", name, "timeout", timeout)
	return &cloud.APIError{Kind: cloud.ErrTimeout, Op: "acquire " + name + " lock", Err: err}
}

func clampVolume(v int) int {
	return min(max(v, MinVolume), MaxVolume)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
