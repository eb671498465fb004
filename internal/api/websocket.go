package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/logging"
)

// Message types on the state feed.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelStateChanged is the event type of every state push.
	ChannelStateChanged = "accessory.state_changed"

	feedQueueSize = 64

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// WSMessage is one frame on the state feed, in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects accessories. An empty list means every accessory.
// With Replay set, the last known state of each selected accessory is sent
// straight after the acknowledgement.
type WSSubscribePayload struct {
	Accessories []string `json:"accessories,omitempty"`
	Replay      bool     `json:"replay,omitempty"`
}

// Hub fans accessory state changes out to WebSocket watchers and remembers
// the latest state per accessory for replay.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	watchers map[*watcher]struct{}
	latest   map[string]bridge.StateMessage
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware owns origin policy.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates a hub, filling unset WebSocket settings with defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		watchers: make(map[*watcher]struct{}),
		latest:   make(map[string]bridge.StateMessage),
	}
}

// Run blocks until ctx is done, then disconnects every watcher.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	watchers := h.watchers
	h.watchers = make(map[*watcher]struct{})
	h.mu.Unlock()

	for w := range watchers {
		w.stop()
	}
}

// ClientCount returns the number of connected watchers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// BroadcastState records msg as the accessory's latest state and pushes it
// to every watcher whose filter matches. It is the bridge's OnState hook and
// never blocks: a watcher with a full queue misses the push.
func (h *Hub) BroadcastState(msg bridge.StateMessage) {
	frame, err := stateFrame(msg)
	if err != nil {
		h.logger.Error("encoding state event failed", "accessory", msg.AccessoryID, "error", err)
		return
	}

	h.mu.Lock()
	h.latest[msg.AccessoryID] = msg
	targets := make([]*watcher, 0, len(h.watchers))
	for w := range h.watchers {
		targets = append(targets, w)
	}
	h.mu.Unlock()

	dropped := 0
	for _, w := range targets {
		if w.wants(msg.AccessoryID) && !w.push(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("state event dropped for slow watchers", "accessory", msg.AccessoryID, "watchers", dropped)
	}
}

// snapshot returns the latest states for ids (all when ids is empty),
// ordered by accessory id.
func (h *Hub) snapshot(ids []string) []bridge.StateMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []bridge.StateMessage
	if len(ids) == 0 {
		for _, m := range h.latest {
			out = append(out, m)
		}
	} else {
		for _, id := range ids {
			if m, ok := h.latest[id]; ok {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessoryID < out[j].AccessoryID })
	return out
}

func (h *Hub) attach(w *watcher) {
	h.mu.Lock()
	h.watchers[w] = struct{}{}
	n := len(h.watchers)
	h.mu.Unlock()
	h.logger.Debug("state watcher connected", "watchers", n)
}

func (h *Hub) detach(w *watcher) {
	h.mu.Lock()
	delete(h.watchers, w)
	n := len(h.watchers)
	h.mu.Unlock()
	w.stop()
	h.logger.Debug("state watcher disconnected", "watchers", n)
}

func stateFrame(msg bridge.StateMessage) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ChannelStateChanged,
		Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
		Payload:   msg,
	})
}

// watcher is one WebSocket connection on the state feed.
type watcher struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once

	mu  sync.RWMutex
	all bool
	ids map[string]struct{}
}

// handleWebSocket upgrades the request and starts the watcher's pumps.
// Authentication, when enabled, happened in authMiddleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	wt := &watcher{
		hub:   s.hub,
		conn:  conn,
		queue: make(chan []byte, feedQueueSize),
		done:  make(chan struct{}),
		ids:   make(map[string]struct{}),
	}
	s.hub.attach(wt)

	go wt.writeLoop()
	go wt.readLoop()
}

// stop ends both pumps. Safe to call more than once.
func (w *watcher) stop() {
	w.once.Do(func() {
		close(w.done)
		w.conn.Close()
	})
}

// push queues a frame without blocking. It reports false when the frame
// was dropped.
func (w *watcher) push(frame []byte) bool {
	select {
	case <-w.done:
		return true
	default:
	}
	select {
	case w.queue <- frame:
		return true
	default:
		return false
	}
}

func (w *watcher) wants(accessoryID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.all {
		return true
	}
	_, ok := w.ids[accessoryID]
	return ok
}

func (w *watcher) deadlines() (time.Duration, time.Duration) {
	cfg := w.hub.cfg
	return time.Duration(cfg.PingInterval) * time.Second, time.Duration(cfg.PongTimeout) * time.Second
}

func (w *watcher) readLoop() {
	defer w.hub.detach(w)

	ping, pong := w.deadlines()
	extend := func() error { return w.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	w.conn.SetReadLimit(int64(w.hub.cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	w.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		// Browsers may ignore protocol pings; application frames keep the
		// connection alive too.
		extend() //nolint:errcheck // a failed deadline surfaces as a read error
		w.handle(data)
	}
}

func (w *watcher) writeLoop() {
	ping, pong := w.deadlines()
	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	write := func(kind int, data []byte) bool {
		w.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // write error is checked
		return w.conn.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case <-w.done:
			write(websocket.CloseMessage, nil)
			return
		case frame := <-w.queue:
			if !write(websocket.TextMessage, frame) {
				w.stop()
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				w.stop()
				return
			}
		}
	}
}

func (w *watcher) handle(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		sel, ok := decodeSelection(msg.Payload)
		if !ok {
			w.reply(msg.ID, WSTypeError, map[string]string{"message": "invalid " + msg.Type + " payload"})
			return
		}
		if msg.Type == WSTypeSubscribe {
			w.subscribe(msg.ID, sel)
		} else {
			w.unsubscribe(msg.ID, sel)
		}
	case WSTypePing:
		w.reply(msg.ID, WSTypePong, nil)
	default:
		w.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

// decodeSelection accepts a missing payload as "every accessory".
func decodeSelection(payload any) (WSSubscribePayload, bool) {
	var sel WSSubscribePayload
	if payload == nil {
		return sel, true
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return sel, false
	}
	return sel, json.Unmarshal(raw, &sel) == nil
}

func (w *watcher) subscribe(id string, sel WSSubscribePayload) {
	w.mu.Lock()
	if len(sel.Accessories) == 0 {
		w.all = true
	}
	for _, a := range sel.Accessories {
		w.ids[a] = struct{}{}
	}
	w.mu.Unlock()

	w.reply(id, WSTypeResponse, map[string]any{"subscribed": selectionLabel(sel.Accessories)})

	if !sel.Replay {
		return
	}
	for _, m := range w.hub.snapshot(sel.Accessories) {
		if frame, err := stateFrame(m); err == nil {
			w.push(frame)
		}
	}
}

func (w *watcher) unsubscribe(id string, sel WSSubscribePayload) {
	w.mu.Lock()
	if len(sel.Accessories) == 0 {
		w.all = false
		w.ids = make(map[string]struct{})
	}
	for _, a := range sel.Accessories {
		delete(w.ids, a)
	}
	w.mu.Unlock()

	w.reply(id, WSTypeResponse, map[string]any{"unsubscribed": selectionLabel(sel.Accessories)})
}

func selectionLabel(ids []string) []string {
	if len(ids) == 0 {
		return []string{"*"}
	}
	return ids
}

func (w *watcher) reply(id, kind string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      kind,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	w.push(data)
}
