// Cloud Bridge - local control of cloud-connected smart home devices
//
// This is the main entry point of the cloud bridge. It exposes devices that
// are only reachable through a vendor cloud as local accessories:
//   - Over MQTT, for home automation hosts
//   - Over a small REST/WebSocket API, for dashboards and scripts
//
// Every device read goes through a shared state cache and a bounded access
// gate so that many accessories polling at once never flood the cloud.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-cloudbridge/migrations"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/accessory"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/api"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/audit"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/cloud"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/devicestate"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/mediaplayer"
	"github.com/nerrad567/gray-logic-cloudbridge/internal/metrics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/cloudbridge.yaml"

// configEnvVar overrides defaultConfigPath.
const configEnvVar = "CLOUDBRIDGE_CONFIG"

// auditPruneInterval is how often expired audit entries are removed.
const auditPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting cloud bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)
	log.Debug("effective configuration", "config", cfg.String())

	metrics.RegisterCollectors()

	// Open the audit database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	go audit.RunRetention(ctx, auditRepo, cfg.GetAuditRetention(), auditPruneInterval, log.Component("audit"))

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	registry, coord, err := buildAccessories(cfg, auditRepo, influxClient, log)
	if err != nil {
		return err
	}
	log.Info("accessories configured", "count", registry.Count())

	// Connect to the MQTT broker. The will marks the bridge offline if the
	// process dies without a clean disconnect.
	lwt, err := json.Marshal(bridge.NewLWTMessage(cfg.Bridge.ID))
	if err != nil {
		return fmt.Errorf("encoding last will: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithWill(bridge.HealthTopic(), lwt),
		mqtt.WithLogger(log.Component("mqtt")),
	)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// The hub outlives the API server so the bridge can feed it from the start.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	mqttBridge, err := startBridge(ctx, cfg, mqttClient, registry, coord, hub, log)
	if err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		mqttBridge.Stop()
	}()

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if pubErr := mqttBridge.Health().PublishNow(); pubErr != nil {
			log.Warn("publishing health after reconnect failed", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			Accessories: registry,
			Version:     version,
			Bridge:      mqttBridge,
			Refresh:     coord,
			MQTT:        mqttClient,
			Audit:       auditRepo,
			DB:          db,
			Cache:       coord.Cache(),
			ExternalHub: hub,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, bridge, MQTT, InfluxDB, database.

	log.Info("cloud bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CLOUDBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildAccessories wires the cloud client, state cache, access coordinator
// and media coordinators into the accessory registry.
//
// Parameters:
//   - cfg: Application configuration
//   - auditRepo: Command audit storage
//   - influxClient: State history sink (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - *accessory.Registry: Registry holding every configured accessory
//   - *coordinator.Coordinator: The access coordinator, for health reporting
//   - error: If any component cannot be built
func buildAccessories(
	cfg *config.Config,
	auditRepo audit.Repository,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*accessory.Registry, *coordinator.Coordinator, error) {
	cloudClient, err := cloud.NewHTTPClient(cloud.Config{
		BaseURL:           cfg.Cloud.BaseURL,
		Cookie:            cfg.Cloud.Cookie,
		CSRF:              cfg.Cloud.CSRF,
		UserAgent:         cfg.Cloud.UserAgent,
		RequestTimeout:    cfg.GetCloudRequestTimeout(),
		RequestsPerSecond: cfg.Cloud.RequestsPerSecond,
		Burst:             cfg.Cloud.Burst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating cloud client: %w", err)
	}

	opts := coordinator.Options{
		Client:            cloudClient,
		Cache:             devicestate.NewCache(cfg.GetCacheTTL()),
		DisableCacheReads: !cfg.Cache.Enabled,
		Logger:            log.Component("coordinator"),
	}
	if influxClient != nil {
		opts.Recorder = influxClient
	}
	coord, err := coordinator.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("creating coordinator: %w", err)
	}

	mediaLog := log.Component("mediaplayer")
	newMedia := func(device cloud.MediaDevice) (accessory.MediaController, error) {
		return mediaplayer.New(mediaplayer.Options{
			Client:             cloudClient,
			Device:             device,
			TTL:                cfg.GetMediaTTL(),
			InfoLockTimeout:    cfg.GetMediaInfoLockTimeout(),
			CommandLockTimeout: cfg.GetMediaCommandLockTimeout(),
			Logger:             mediaLog,
		})
	}

	registry, err := accessory.NewRegistry(accessory.RegistryOptions{
		Controller: coord,
		NewMedia:   newMedia,
		Recorder:   audit.NewCommandRecorder(auditRepo, log.Component("audit")),
		Logger:     log.Component("accessory"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating accessory registry: %w", err)
	}

	for _, a := range cfg.Accessories {
		if _, err := registry.Add(accessorySpec(a)); err != nil {
			return nil, nil, fmt.Errorf("adding accessory: %w", err)
		}
	}

	return registry, coord, nil
}

// accessorySpec converts one configured accessory.
func accessorySpec(a config.AccessoryConfig) accessory.Spec {
	return accessory.Spec{
		ID:       a.ID,
		Name:     a.Name,
		Kind:     accessory.Kind(a.Kind),
		DeviceID: a.DeviceID,
		Media: cloud.MediaDevice{
			SerialNumber: a.Media.SerialNumber,
			Type:         a.Media.DeviceType,
			Name:         a.Name,
		},
		VolumeStep: a.VolumeStep,
	}
}

// startBridge creates and starts the MQTT bridge.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - mqttClient: Connected MQTT client
//   - registry: Accessory registry
//   - coord: Access coordinator, for refresh status
//   - hub: WebSocket hub receiving published states
//   - log: Logger instance
//
// Returns:
//   - *bridge.Bridge: Running bridge
//   - error: If the bridge cannot be created or started
func startBridge(
	ctx context.Context,
	cfg *config.Config,
	mqttClient *mqtt.Client,
	registry *accessory.Registry,
	coord *coordinator.Coordinator,
	hub *api.Hub,
	log *logging.Logger,
) (*bridge.Bridge, error) {
	// 0 in the config file disables polling; the bridge uses a negative value.
	poll := cfg.GetPollInterval()
	if poll == 0 {
		poll = -1
	}

	b, err := bridge.NewBridge(bridge.BridgeOptions{
		Config: bridge.Config{
			ID:             cfg.Bridge.ID,
			Version:        version,
			PollInterval:   poll,
			HealthInterval: cfg.GetHealthInterval(),
			CommandTimeout: cfg.GetCommandTimeout(),
		},
		MQTTClient:  &mqttBridgeAdapter{client: mqttClient},
		Accessories: registry,
		Refresh:     coord,
		OnState:     hub.BroadcastState,
		Logger:      log.Component("bridge"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := b.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("bridge started", "accessories", registry.Count())
	return b, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The cloud is not checked here: an expired session degrades health
	// reporting instead of preventing startup.

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements bridge.MQTTClient.
// The MQTT client lifecycle is owned by run's defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
