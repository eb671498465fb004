package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Bridge        *BridgeMetrics   `json:"bridge,omitempty"`
	Cache         *CacheMetrics    `json:"cache,omitempty"`
	Accessories   int              `json:"accessories"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// CacheMetrics describes the device state cache.
type CacheMetrics struct {
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Devices     []string   `json:"devices"`
}

// BridgeMetrics contains MQTT bridge statistics.
type BridgeMetrics struct {
	Status             string `json:"status"`
	CommandsReceived   uint64 `json:"commands_received"`
	CommandsFailed     uint64 `json:"commands_failed"`
	StatesPublished    uint64 `json:"states_published"`
	AccessoriesManaged int    `json:"accessories_managed"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns a JSON snapshot of process and bridge statistics.
// Prometheus metrics are served separately at /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Accessories: len(s.accessories.List()),
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
		metrics.MQTT.Subscriptions = s.mqtt.SubscriptionCount()
	}

	if s.cache != nil {
		cm := &CacheMetrics{Devices: s.cache.DeviceIDs()}
		if at := s.cache.LastUpdated(); !at.IsZero() {
			cm.LastUpdated = &at
		}
		metrics.Cache = cm
	}

	if s.bridge != nil {
		stats := s.bridge.GetMetrics()
		metrics.Bridge = &BridgeMetrics{
			Status:             stats.Status,
			CommandsReceived:   stats.CommandsReceived,
			CommandsFailed:     stats.CommandsFailed,
			StatesPublished:    stats.StatesPublished,
			AccessoriesManaged: stats.AccessoriesManaged,
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
