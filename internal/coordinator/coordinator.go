package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/cloud"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/devicestate"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/metrics"
)

// Coordinator constants.
const (
	// GateSize is the number of batch reads allowed in flight at once.
	GateSize = 2

	// DefaultGateTimeout is how long a read waits for a gate slot.
	DefaultGateTimeout = 65 * time.Second

	// gateLockName labels gate metrics.
	gateLockName = "access_gate"

	// cacheName labels cache metrics.
	cacheName = "device_state"

	opGateAcquire = "acquire access gate"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateRecorder receives the device states of every successful remote refresh.
// Implementations must not block.
type StateRecorder interface {
	RecordStates(states map[string][]devicestate.CapabilityState)
}

// BatchStates is the result of GetDeviceStates.
type BatchStates struct {
	// FromCache is true when the result was served without a remote call.
	FromCache bool

	// States holds the known capability states of every requested device.
	States map[string][]devicestate.CapabilityState

	// Offline lists devices the remote reported unreachable. Only populated
	// for fresh results.
	Offline map[string]bool
}

// StatesFor returns the states of one device, or nil.
func (b *BatchStates) StatesFor(id string) []devicestate.CapabilityState {
	if b == nil {
		return nil
	}
	return b.States[id]
}

// Options configures a Coordinator.
type Options struct {
	// Client is the remote cloud. Required.
	Client cloud.Client

	// Cache is the shared device state cache. Default: a new cache with
	// devicestate.DefaultTTL.
	Cache *devicestate.Cache

	// DisableCacheReads forces every read to go to the remote.
	DisableCacheReads bool

	// GateTimeout overrides DefaultGateTimeout.
	GateTimeout time.Duration

	// Recorder is notified of every successful remote refresh (optional).
	Recorder StateRecorder

	// Logger is optional.
	Logger Logger
}

// Coordinator mediates every device state access to the remote cloud.
//
// Batch reads pass through a FIFO gate admitting GateSize callers at a time
// and are served from the cache when it is fresh and covers every requested
// device. Writes bypass the gate and the cache.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	client       cloud.Client
	cache        *devicestate.Cache
	cacheEnabled bool
	gate         *semaphore.Weighted
	gateTimeout  time.Duration
	recorder     StateRecorder

	statusMu    sync.RWMutex
	lastRefresh time.Time
	lastErr     error

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, errors.New("coordinator: client is required")
	}

	cache := opts.Cache
	if cache == nil {
		cache = devicestate.NewCache(devicestate.DefaultTTL)
	}
	timeout := opts.GateTimeout
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	return &Coordinator{
		client:       opts.Client,
		cache:        cache,
		cacheEnabled: !opts.DisableCacheReads,
		gate:         semaphore.NewWeighted(GateSize),
		gateTimeout:  timeout,
		recorder:     opts.Recorder,
		logger:       logger,
	}, nil
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Coordinator) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Cache returns the cache shared with accessories.
func (c *Coordinator) Cache() *devicestate.Cache {
	return c.cache
}

// GetDeviceStates returns the capability states of ids.
//
// The call waits up to the gate timeout for a gate slot and fails with
// cloud.ErrTimeout otherwise. With useCache set, a fresh cache holding every
// id answers the call; in every other case exactly ids are queried remotely
// and the cache entries of those ids are replaced.
//
// Parameters:
//   - ctx: Cancels the wait and the remote call
//   - ids: Devices to read
//   - useCache: Whether the cache may answer
//
// Returns:
//   - *BatchStates: States per device, with FromCache set accordingly
//   - error: cloud.ErrTimeout, or a remote failure from the cloud taxonomy
func (c *Coordinator) GetDeviceStates(ctx context.Context, ids []string, useCache bool) (*BatchStates, error) {
	if err := c.acquireGate(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	if useCache && c.cacheEnabled && c.cache.IsFresh() && c.cache.HasAll(ids) {
		metrics.RecordCache(cacheName, true)
		return c.fromCache(ids), nil
	}
	metrics.RecordCache(cacheName, false)

	result, err := c.queryRemote(ctx, ids)
	c.setStatus(err)
	if err != nil {
		c.log().Warn("device state query failed",
			"devices", ids,
			"code", cloud.Code(err),
			"error", err,
		)
		return nil, err
	}

	c.cache.UpdateBatch(ids, result.States)

	out := &BatchStates{
		States:  make(map[string][]devicestate.CapabilityState, len(ids)),
		Offline: result.Offline,
	}
	for _, id := range ids {
		out.States[id] = present(result.States[id])
	}

	if c.recorder != nil {
		c.recorder.RecordStates(out.States)
	}

	c.log().Debug("device states refreshed", "devices", len(ids), "offline", len(result.Offline))
	return out, nil
}

// SetDeviceState performs one mutation on a device. It does not touch the
// cache; callers write the new value back themselves on success.
func (c *Coordinator) SetDeviceState(ctx context.Context, id, action string, params map[string]any) error {
	started := time.Now()
	err := c.client.SetState(ctx, id, action, params)
	metrics.ObserveRemoteCall("set_state", started, err)
	if err != nil {
		c.log().Warn("device state change failed",
			"device", id,
			"action", action,
			"code", cloud.Code(err),
			"error", err,
		)
		return err
	}
	return nil
}

// LastRefresh returns the time and outcome of the last remote batch query.
func (c *Coordinator) LastRefresh() (time.Time, error) {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.lastRefresh, c.lastErr
}

// acquireGate waits for a gate slot.
func (c *Coordinator) acquireGate(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.gateTimeout)
	defer cancel()

	started := time.Now()
	err := c.gate.Acquire(waitCtx, 1)
	if err == nil {
		metrics.ObserveLockWait(gateLockName, started, false)
		return nil
	}

	// Caller cancellation is not a gate timeout.
	if ctx.Err() != nil {
		metrics.ObserveLockWait(gateLockName, started, false)
		return fmt.Errorf("waiting for access gate: %w", ctx.Err())
	}

	metrics.ObserveLockWait(gateLockName, started, true)
	c.log().Warn("access gate timeout", "timeout", c.gateTimeout)
	return &cloud.APIError{Kind: cloud.ErrTimeout, Op: opGateAcquire, Err: err}
}

// queryRemote performs and validates one remote batch query.
func (c *Coordinator) queryRemote(ctx context.Context, ids []string) (*cloud.BatchResult, error) {
	started := time.Now()
	resp, err := c.client.QueryStates(ctx, ids)
	var result *cloud.BatchResult
	if err == nil {
		result, err = cloud.ExtractStates(resp)
	}
	metrics.ObserveRemoteCall("query_states", started, err)
	return result, err
}

func (c *Coordinator) fromCache(ids []string) *BatchStates {
	out := &BatchStates{
		FromCache: true,
		States:    make(map[string][]devicestate.CapabilityState, len(ids)),
	}
	for _, id := range ids {
		out.States[id] = c.cache.GetStatesForDevice(id)
	}
	return out
}

func (c *Coordinator) setStatus(err error) {
	c.statusMu.Lock()
	c.lastRefresh = time.Now()
	c.lastErr = err
	c.statusMu.Unlock()
}

// present drops absent entries.
func present(entries []*devicestate.CapabilityState) []devicestate.CapabilityState {
	out := make([]devicestate.CapabilityState, 0, len(entries))
	for _, s := range entries {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
