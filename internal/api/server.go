package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/accessory"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/audit"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// sourceAPI tags writes made through the API in the audit trail.
const sourceAPI = "api"

// AccessoryService is the accessory registry as seen by the API.
// This interface is satisfied by *accessory.Registry.
type AccessoryService interface {
	List() []accessory.Accessory
	Get(id string) (accessory.Accessory, bool)
	Read(ctx context.Context, accessoryID, characteristic string) (any, error)
	Write(ctx context.Context, source, accessoryID, characteristic string, value any) error
}

// BridgeService is the MQTT bridge as seen by the API.
// This interface is satisfied by *bridge.Bridge.
type BridgeService interface {
	GetMetrics() bridge.BridgeMetrics
	PublishAccessoryState(ctx context.Context, accessoryID string) error
}

// RefreshSource reports the outcome of the last cloud refresh.
// This interface is satisfied by *coordinator.Coordinator.
type RefreshSource interface {
	LastRefresh() (time.Time, error)
}

// BrokerStatus reports broker connectivity.
// This interface is satisfied by *mqtt.Client.
type BrokerStatus interface {
	IsConnected() bool
	SubscriptionCount() int
}

// StoreStatus exposes the local store's pool statistics and schema state.
// This interface is satisfied by *database.DB.
type StoreStatus interface {
	Stats() sql.DBStats
	Status(ctx context.Context) (database.MigrationStatus, error)
}

// CacheInspector exposes the freshness and contents of the device state
// cache. This interface is satisfied by *devicestate.Cache.
type CacheInspector interface {
	LastUpdated() time.Time
	DeviceIDs() []string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Accessories AccessoryService
	Version     string

	// Optional. Missing dependencies disable the features that need them.
	Bridge  BridgeService
	Refresh RefreshSource
	MQTT    BrokerStatus
	Audit   audit.Repository
	DB      StoreStatus
	Cache   CacheInspector

	// ExternalHub, if set, is used instead of a hub owned by the server.
	ExternalHub *Hub
}

// Server is the HTTP API server of the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	accessories AccessoryService
	bridge      BridgeService
	refresh     RefreshSource
	mqtt        BrokerStatus
	auditRepo   audit.Repository
	db          StoreStatus
	cache       CacheInspector
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger and Accessories are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Accessories == nil {
		return nil, errors.New("accessory registry is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		accessories: deps.Accessories,
		bridge:      deps.Bridge,
		refresh:     deps.Refresh,
		mqtt:        deps.MQTT,
		auditRepo:   deps.Audit,
		db:          deps.DB,
		cache:       deps.Cache,
		version:     deps.Version,
		startTime:   time.Now(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub. The bridge's state hook feeds it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}

	return nil
}
