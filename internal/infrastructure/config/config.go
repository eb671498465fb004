package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// redacted replaces secret values in String output.
const redacted = "[REDACTED]"

// Accessory kinds accepted in configuration.
const (
	KindSwitch            = "switch"
	KindLight             = "light"
	KindTemperatureSensor = "temperature_sensor"
	KindTelevision        = "television"
)

// Config is the root configuration structure for the cloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge      BridgeConfig      `yaml:"bridge"`
	Cloud       CloudConfig       `yaml:"cloud"`
	Cache       CacheConfig       `yaml:"cache"`
	Media       MediaConfig       `yaml:"media"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Accessories []AccessoryConfig `yaml:"accessories"`
}

// BridgeConfig identifies the bridge and sets its MQTT cadence.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// PollInterval is seconds between state polls. 0 disables polling.
	PollInterval int `yaml:"poll_interval"`

	// HealthInterval is seconds between health messages.
	HealthInterval int `yaml:"health_interval"`

	// CommandTimeout is the per-command deadline in seconds.
	CommandTimeout int `yaml:"command_timeout"`
}

// CloudConfig contains the cloud endpoint and session credentials.
type CloudConfig struct {
	BaseURL   string `yaml:"base_url"`
	Cookie    string `yaml:"cookie"`
	CSRF      string `yaml:"csrf"`
	UserAgent string `yaml:"user_agent"`

	// RequestTimeout is the per-request deadline in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// RequestsPerSecond limits outbound calls; Burst is the limiter bucket.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CacheConfig controls the shared device state cache.
type CacheConfig struct {
	// TTL is the freshness window in seconds.
	TTL int `yaml:"ttl"`

	// Enabled allows reads to be served from the cache.
	Enabled bool `yaml:"enabled"`
}

// MediaConfig controls the media player coordinators.
type MediaConfig struct {
	// TTL is the player info freshness window in seconds.
	TTL int `yaml:"ttl"`

	// InfoLockTimeout and CommandLockTimeout are lock waits in seconds.
	InfoLockTimeout    int `yaml:"info_lock_timeout"`
	CommandLockTimeout int `yaml:"command_lock_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// AuditRetentionDays prunes command audit entries older than this.
	// Zero keeps them forever.
	AuditRetentionDays int `yaml:"audit_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIAuthConfig enables bearer token authentication on the API.
// An empty secret leaves the API open (for loopback-only deployments).
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AccessoryConfig describes one exposed accessory.
type AccessoryConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	DeviceID string `yaml:"device_id"`

	// Media identifies the player endpoint of a television.
	Media MediaDeviceConfig `yaml:"media"`

	// VolumeStep is the volume_selector step of a television.
	VolumeStep int `yaml:"volume_step"`
}

// MediaDeviceConfig identifies a cloud media player.
type MediaDeviceConfig struct {
	SerialNumber string `yaml:"serial_number"`
	DeviceType   string `yaml:"device_type"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CLOUDBRIDGE_SECTION_KEY
// For example: CLOUDBRIDGE_CLOUD_COOKIE, CLOUDBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "cloudbridge",
			Name:           "Cloud Bridge",
			PollInterval:   60,
			HealthInterval: 30,
			CommandTimeout: 30,
		},
		Cloud: CloudConfig{
			RequestTimeout:    20,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Cache: CacheConfig{
			TTL:     30,
			Enabled: true,
		},
		Media: MediaConfig{
			TTL:                30,
			InfoLockTimeout:    10,
			CommandLockTimeout: 15,
		},
		Database: DatabaseConfig{
			Path:        "./data/cloudbridge.db",
			WALMode:            true,
			BusyTimeout:        5,
			AuditRetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "cloudbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CLOUDBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud session (IMPORTANT: prefer env over file for credentials)
	if v := os.Getenv("CLOUDBRIDGE_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}
	if v := os.Getenv("CLOUDBRIDGE_CLOUD_COOKIE"); v != "" {
		cfg.Cloud.Cookie = v
	}
	if v := os.Getenv("CLOUDBRIDGE_CLOUD_CSRF"); v != "" {
		cfg.Cloud.CSRF = v
	}

	// Cache
	if v := os.Getenv("CLOUDBRIDGE_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTL = n
		}
	}
	if v := os.Getenv("CLOUDBRIDGE_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}

	// Database
	if v := os.Getenv("CLOUDBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CLOUDBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CLOUDBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CLOUDBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CLOUDBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CLOUDBRIDGE_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("CLOUDBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CLOUDBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem found.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.PollInterval < 0 {
		errs = append(errs, "bridge.poll_interval must not be negative")
	}

	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.RequestsPerSecond < 0 || c.Cloud.Burst < 0 {
		errs = append(errs, "cloud rate limit must not be negative")
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Media.TTL <= 0 || c.Media.InfoLockTimeout <= 0 || c.Media.CommandLockTimeout <= 0 {
		errs = append(errs, "media ttl and lock timeouts must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.AuditRetentionDays < 0 {
		errs = append(errs, "database.audit_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	// A short HMAC secret makes forged tokens practical.
	const minJWTSecretLength = 32
	if s := c.API.Auth.JWTSecret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "api.auth.jwt_secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when enabled")
		}
	}

	errs = append(errs, c.validateAccessories()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateAccessories() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Accessories))

	for i, a := range c.Accessories {
		where := fmt.Sprintf("accessories[%d]", i)
		if a.ID == "" {
			errs = append(errs, where+".id is required")
		} else if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate id %q", where, a.ID))
		}
		seen[a.ID] = true

		if a.DeviceID == "" {
			errs = append(errs, where+".device_id is required")
		}

		switch a.Kind {
		case KindSwitch, KindLight, KindTemperatureSensor:
		case KindTelevision:
			if a.Media.SerialNumber == "" || a.Media.DeviceType == "" {
				errs = append(errs, where+".media serial_number and device_type are required for a television")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown kind %q", where, a.Kind))
		}
	}
	return errs
}

// String renders the configuration as YAML with secrets redacted, for
// logging at startup.
func (c *Config) String() string {
	cp := *c
	redact(&cp.Cloud.Cookie)
	redact(&cp.Cloud.CSRF)
	redact(&cp.MQTT.Auth.Password)
	redact(&cp.API.Auth.JWTSecret)
	redact(&cp.InfluxDB.Token)

	out, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration { return seconds(c.API.Timeouts.Read) }

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration { return seconds(c.API.Timeouts.Write) }

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration { return seconds(c.API.Timeouts.Idle) }

// GetCacheTTL returns the device state cache TTL.
func (c *Config) GetCacheTTL() time.Duration { return seconds(c.Cache.TTL) }

// GetMediaTTL returns the player info TTL.
func (c *Config) GetMediaTTL() time.Duration { return seconds(c.Media.TTL) }

// GetMediaInfoLockTimeout returns the player info lock wait.
func (c *Config) GetMediaInfoLockTimeout() time.Duration { return seconds(c.Media.InfoLockTimeout) }

// GetMediaCommandLockTimeout returns the player command lock wait.
func (c *Config) GetMediaCommandLockTimeout() time.Duration {
	return seconds(c.Media.CommandLockTimeout)
}

// GetCloudRequestTimeout returns the per-request cloud deadline.
func (c *Config) GetCloudRequestTimeout() time.Duration { return seconds(c.Cloud.RequestTimeout) }

// GetPollInterval returns the bridge poll interval. Zero disables polling.
func (c *Config) GetPollInterval() time.Duration { return seconds(c.Bridge.PollInterval) }

// GetAuditRetention returns how long audit entries are kept. Zero keeps
// them forever.
func (c *Config) GetAuditRetention() time.Duration {
	return time.Duration(c.Database.AuditRetentionDays) * 24 * time.Hour
}

// GetHealthInterval returns the bridge health interval.
func (c *Config) GetHealthInterval() time.Duration { return seconds(c.Bridge.HealthInterval) }

// GetCommandTimeout returns the bridge command deadline.
func (c *Config) GetCommandTimeout() time.Duration { return seconds(c.Bridge.CommandTimeout) }
