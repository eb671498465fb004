package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/database"
)

// Health status values reported by GET /health.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/metrics", s.handleMetrics)
			r.Get("/audit", s.handleListAuditLogs)

			r.Route("/accessories", func(r chi.Router) {
				r.Get("/", s.handleListAccessories)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetAccessory)
					r.Get("/characteristics/{name}", s.handleReadCharacteristic)
					r.Put("/characteristics/{name}", s.handleWriteCharacteristic)
				})
			})

			r.Get(s.wsPath(), s.handleWebSocket)
		})
	})

	return r
}

// wsPath returns the WebSocket route below /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	MQTTConnected *bool      `json:"mqtt_connected,omitempty"`
	LastRefresh   *time.Time `json:"last_refresh,omitempty"`
	RefreshError  string     `json:"refresh_error,omitempty"`
	CacheUpdated  *time.Time `json:"cache_updated,omitempty"`

	Schema      *database.MigrationStatus `json:"schema,omitempty"`
	SchemaError string                    `json:"schema_error,omitempty"`
}

// handleHealth returns the server health status. The bridge is degraded
// when the broker is unreachable, the last cloud refresh failed, or the
// local store has unapplied migrations.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: healthOK, Version: s.version}

	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		resp.MQTTConnected = &connected
		if !connected {
			resp.Status = healthDegraded
		}
	}

	if s.refresh != nil {
		last, err := s.refresh.LastRefresh()
		if !last.IsZero() {
			resp.LastRefresh = &last
		}
		if err != nil {
			resp.Status = healthDegraded
			resp.RefreshError = err.Error()
		}
	}

	if s.cache != nil {
		if at := s.cache.LastUpdated(); !at.IsZero() {
			resp.CacheUpdated = &at
		}
	}

	if s.db != nil {
		st, err := s.db.Status(r.Context())
		switch {
		case err != nil:
			resp.Status = healthDegraded
			resp.SchemaError = err.Error()
		case st.Pending > 0:
			resp.Status = healthDegraded
			resp.Schema = &st
		default:
			resp.Schema = &st
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
