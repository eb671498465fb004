package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/accessory"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/metrics"
)

const (
	// minTopicParts is graylogic/{category}/alexa/{id}.
	minTopicParts = 4

	// Commands may wait on the media command lock and then the remote call.
	defaultCommandTimeout = 30 * time.Second

	// A full read waits on the access gate and one batch query at most.
	defaultReadTimeout = 90 * time.Second

	defaultPollInterval = 60 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the subset of MQTT operations the bridge needs.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// AccessoryHost is the accessory registry as seen by the bridge.
// This interface is satisfied by *accessory.Registry.
type AccessoryHost interface {
	List() []accessory.Accessory
	Get(id string) (accessory.Accessory, bool)
	Count() int
	Read(ctx context.Context, accessoryID, characteristic string) (any, error)
	Write(ctx context.Context, source, accessoryID, characteristic string, value any) error
}

// Config holds bridge settings.
type Config struct {
	// ID identifies this bridge in health messages.
	ID string

	// Version is reported in health messages.
	Version string

	// PollInterval is how often accessory state is read and published.
	// Zero uses the default (60s); negative disables polling.
	PollInterval time.Duration

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration

	// CommandTimeout bounds one command. Default: 30s.
	CommandTimeout time.Duration
}

// BridgeOptions holds the dependencies of a Bridge.
type BridgeOptions struct {
	Config      Config
	MQTTClient  MQTTClient
	Accessories AccessoryHost

	// Refresh reports cloud reachability for health (optional).
	Refresh RefreshSource

	// OnState is called after every published state change (optional).
	// It must not block.
	OnState func(StateMessage)

	// Logger is optional.
	Logger Logger
}

// Bridge exposes the configured accessories over MQTT.
//
// It executes commands, answers requests, and publishes state changes
// found by periodic polling.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg         Config
	mqtt        MQTTClient
	accessories AccessoryHost
	health      *HealthReporter
	onState     func(StateMessage)

	// Last published state per accessory, for change detection.
	stateCache   map[string]map[string]any
	stateCacheMu sync.Mutex

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	spawnMu   sync.Mutex
	stopped   bool
	ctx       context.Context //nolint:containedctx // Bridge-scoped lifetime for in-flight commands
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to begin operation.
//
// Parameters:
//   - opts: Dependencies; MQTTClient and Accessories are required
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required dependency is missing
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Accessories == nil {
		return nil, errors.New("accessory registry is required")
	}

	cfg := opts.Config
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:         cfg,
		mqtt:        opts.MQTTClient,
		accessories: opts.Accessories,
		onState:     opts.OnState,
		stateCache:  make(map[string]map[string]any),
		done:        make(chan struct{}),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  cfg.ID,
		Version:   cfg.Version,
		Interval:  cfg.HealthInterval,
		Publisher: opts.MQTTClient,
		Refresh:   opts.Refresh,
		Stats:     b.statistics,
	})
	b.health.SetAccessoryCount(opts.Accessories.Count())
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to command and request topics and starts health
// reporting and polling.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	b.health.Start(ctx)

	if b.cfg.PollInterval > 0 {
		b.spawn(func() { b.pollLoop(ctx) })
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.ID,
		"accessories", b.accessories.Count(),
		"poll_interval", b.cfg.PollInterval)

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.spawnMu.Lock()
		b.stopped = true
		b.spawnMu.Unlock()

		close(b.done)

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Publishes "stopping" status
		b.health.Stop()

		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// spawn runs fn on a tracked goroutine unless the bridge is stopping.
func (b *Bridge) spawn(fn func()) bool {
	b.spawnMu.Lock()
	defer b.spawnMu.Unlock()
	if b.stopped {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
	return true
}

// Health returns the bridge's health reporter.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// handleMQTTMessage routes an incoming message by topic category.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(parts[3], payload)
	case "request":
		if !b.spawn(func() { b.handleRequest(payload) }) {
			b.logDebug("request dropped, bridge stopping", "topic", topic)
		}
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", parts[1]))
	}
}

// handleCommand parses a command and executes it on its own goroutine;
// remote calls must not block the MQTT client's delivery goroutine.
func (b *Bridge) handleCommand(topicID string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.AccessoryID == "" {
		cmd.AccessoryID = topicID
	}
	b.commandsReceived.Add(1)

	b.logInfo("received command",
		"command_id", cmd.ID,
		"accessory_id", cmd.AccessoryID,
		"characteristic", cmd.Characteristic)

	if cmd.Characteristic == "" {
		b.publishAckError(cmd, ErrCodeInvalidCommand, "characteristic is required")
		return
	}

	if !b.spawn(func() { b.executeCommand(cmd) }) {
		b.publishAckError(cmd, ErrCodeBridgeError, "bridge stopping")
	}
}

// executeCommand writes the characteristic and acknowledges the outcome.
func (b *Bridge) executeCommand(cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.CommandTimeout)
	defer cancel()

	source := cmd.Source
	if source == "" {
		source = "mqtt"
	}

	if err := b.accessories.Write(ctx, source, cmd.AccessoryID, cmd.Characteristic, cmd.Value); err != nil {
		b.publishAckError(cmd, errorCode(err), err.Error())
		return
	}
	b.publishAck(cmd, AckAccepted)

	// The write updated the shared cache, so this read is local.
	if acc, ok := b.accessories.Get(cmd.AccessoryID); ok {
		if err := b.publishState(ctx, acc); err != nil {
			b.logDebug("state read after command incomplete", "accessory_id", acc.ID(), "error", err)
		}
	}
}

// errorCode maps an accessory error to an ack/response error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, accessory.ErrAccessoryNotFound):
		return ErrCodeNotConfigured
	case errors.Is(err, accessory.ErrUnknownCharacteristic),
		errors.Is(err, accessory.ErrNotWritable),
		errors.Is(err, accessory.ErrNotReadable):
		return ErrCodeInvalidCommand
	case errors.Is(err, accessory.ErrInvalidValue):
		return ErrCodeInvalidParameters
	case errors.Is(err, accessory.ErrCommunicationFailure):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

func (b *Bridge) publishAck(cmd CommandMessage, status AckStatus) {
	b.publishJSON(AckTopic(cmd.AccessoryID), NewAckMessage(cmd, status), false)
}

func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	b.commandsFailed.Add(1)
	b.publishJSON(AckTopic(cmd.AccessoryID), NewAckError(cmd, code, message), false)
	b.logWarn("command failed",
		"command_id", cmd.ID,
		"accessory_id", cmd.AccessoryID,
		"code", code,
		"message", message)
}

// handleRequest processes a request message and publishes the response.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	ctx, cancel := context.WithTimeout(b.ctx, defaultReadTimeout)
	defer cancel()

	var resp ResponseMessage
	switch req.Action {
	case ActionReadState:
		resp = b.handleReadState(ctx, req)
	case ActionReadAll:
		resp = b.handleReadAll(ctx, req)
	case ActionListAccessories:
		resp = b.handleListAccessories(req)
	default:
		resp = errorResponse(req, ErrCodeInvalidCommand, fmt.Sprintf("unknown action: %s", req.Action))
	}

	b.publishJSON(ResponseTopic(req.RequestID), resp, false)
}

func (b *Bridge) handleReadState(ctx context.Context, req RequestMessage) ResponseMessage {
	if req.AccessoryID == "" {
		return errorResponse(req, ErrCodeInvalidParameters, "accessory_id is required")
	}
	acc, ok := b.accessories.Get(req.AccessoryID)
	if !ok {
		return errorResponse(req, ErrCodeNotConfigured,
			fmt.Sprintf("accessory %s not configured", req.AccessoryID))
	}

	if req.Characteristic != "" {
		v, err := b.accessories.Read(ctx, req.AccessoryID, req.Characteristic)
		if err != nil {
			return errorResponse(req, errorCode(err), err.Error())
		}
		return successResponse(req, map[string]any{
			"accessory_id": req.AccessoryID,
			"state":        map[string]any{req.Characteristic: v},
		})
	}

	state, err := b.readState(ctx, acc)
	if len(state) == 0 && err != nil {
		return errorResponse(req, errorCode(err), err.Error())
	}
	return successResponse(req, map[string]any{
		"accessory_id": req.AccessoryID,
		"state":        state,
	})
}

func (b *Bridge) handleReadAll(ctx context.Context, req RequestMessage) ResponseMessage {
	all := make(map[string]any)
	failed := 0
	for _, acc := range b.accessories.List() {
		state, err := b.readState(ctx, acc)
		if err != nil {
			failed++
		}
		if len(state) > 0 {
			all[acc.ID()] = state
		}
	}
	return successResponse(req, map[string]any{
		"accessories": all,
		"failed":      failed,
	})
}

func (b *Bridge) handleListAccessories(req RequestMessage) ResponseMessage {
	list := make([]map[string]any, 0, b.accessories.Count())
	for _, acc := range b.accessories.List() {
		list = append(list, map[string]any{
			"id":              acc.ID(),
			"name":            acc.Name(),
			"kind":            string(acc.Kind()),
			"device_id":       acc.DeviceID(),
			"characteristics": acc.Characteristics(),
		})
	}
	return successResponse(req, map[string]any{"accessories": list})
}

func successResponse(req RequestMessage, data map[string]any) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      data,
	}
}

func errorResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error:     &ResponseError{Code: code, Message: message},
	}
}

// readState reads every readable characteristic of acc. It returns what
// could be read plus the first failure.
func (b *Bridge) readState(ctx context.Context, acc accessory.Accessory) (map[string]any, error) {
	state := make(map[string]any)
	var firstErr error
	for _, ch := range acc.Characteristics() {
		if !ch.Readable {
			continue
		}
		v, err := b.accessories.Read(ctx, acc.ID(), ch.Name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		state[ch.Name] = v
	}
	return state, firstErr
}

// publishState reads acc and publishes its state if it changed since the
// last publish.
func (b *Bridge) publishState(ctx context.Context, acc accessory.Accessory) error {
	state, err := b.readState(ctx, acc)
	if len(state) == 0 || !b.stateChanged(acc.ID(), state) {
		return err
	}

	msg := NewStateMessage(acc.ID(), string(acc.Kind()), state)
	b.publishJSON(StateTopic(acc.ID()), msg, true)
	b.statesPublished.Add(1)
	if b.onState != nil {
		b.onState(msg)
	}
	b.logDebug("state published", "accessory_id", acc.ID(), "state", state)
	return err
}

// PublishAccessoryState reads one accessory and publishes its state if it
// changed. Hosts other than MQTT call this after a write.
func (b *Bridge) PublishAccessoryState(ctx context.Context, accessoryID string) error {
	acc, ok := b.accessories.Get(accessoryID)
	if !ok {
		return fmt.Errorf("%w: %s", accessory.ErrAccessoryNotFound, accessoryID)
	}
	return b.publishState(ctx, acc)
}

func (b *Bridge) publishJSON(topic string, msg any, retained bool) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal message", fmt.Errorf("topic=%s: %w", topic, err))
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logError("failed to publish", fmt.Errorf("topic=%s: %w", topic, err))
	}
}

// stateChanged records state as the last published state of an accessory
// and reports whether any characteristic differs from the previous one.
func (b *Bridge) stateChanged(accessoryID string, state map[string]any) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	cached := b.stateCache[accessoryID]
	changed := cached == nil
	for name, v := range state {
		if prev, ok := cached[name]; !ok || !valuesEqual(prev, v) {
			changed = true
			break
		}
	}
	if !changed {
		return false
	}

	snapshot := make(map[string]any, len(state))
	for name, v := range state {
		snapshot[name] = v
	}
	b.stateCache[accessoryID] = snapshot
	return true
}

// valuesEqual compares two characteristic values. Characteristic values are
// scalars (bool, int, float64, string), so == is safe.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

// ClearStateCache forgets all published state so the next poll republishes
// every accessory.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()
	b.stateCache = make(map[string]map[string]any)
}

func (b *Bridge) statistics() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		StatesPublished:  b.statesPublished.Load(),
	}
}

// pollLoop reads every accessory once at start and then every poll
// interval, publishing changed state.
func (b *Bridge) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	b.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.PollOnce(ctx)
		}
	}
}

// PollOnce reads all accessories and publishes changed state. The first
// read refreshes the whole batch; the rest are served from the cache.
func (b *Bridge) PollOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	var cycleErr error
	for _, acc := range b.accessories.List() {
		if err := b.publishState(ctx, acc); err != nil && cycleErr == nil {
			cycleErr = err
		}
	}
	metrics.RecordPoll(cycleErr)
	if cycleErr != nil {
		b.logDebug("poll cycle incomplete", "error", cycleErr)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Connected          bool
	Status             string
	CommandsReceived   uint64
	CommandsFailed     uint64
	StatesPublished    uint64
	AccessoriesManaged int
}

// GetMetrics returns current bridge metrics for the API metrics endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	status, _ := b.health.Status()
	stats := b.statistics()
	return BridgeMetrics{
		Connected:          b.mqtt.IsConnected(),
		Status:             string(status),
		CommandsReceived:   stats.CommandsReceived,
		CommandsFailed:     stats.CommandsFailed,
		StatesPublished:    stats.StatesPublished,
		AccessoriesManaged: b.accessories.Count(),
	}
}
