package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the homegate gateway.
// It is loaded from a YAML file and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Crono     CronoConfig     `yaml:"crono"`
	Session   SessionConfig   `yaml:"session"`
	Camera    CameraConfig    `yaml:"camera"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site identification. Timezone drives the wall clock
// used by the schedule evaluator.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// CommandTimeout bounds request/reply and relay confirmation waits (milliseconds).
	CommandTimeout int `yaml:"command_timeout"`
}

// MQTTBrokerConfig contains broker connection details.
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

// MQTTReconnectConfig contains reconnection behaviour settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains push channel settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// CatalogConfig points at the upstream service that owns the device catalog.
type CatalogConfig struct {
	URL string `yaml:"url"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`

	// InitialInterval and MaxInterval bound the retry backoff (seconds).
	InitialInterval int `yaml:"initial_interval"`
	MaxInterval     int `yaml:"max_interval"`

	// MaxElapsed is how long startup keeps retrying before giving up (seconds).
	MaxElapsed int `yaml:"max_elapsed"`
}

// SchedulerConfig contains schedule evaluator settings.
type SchedulerConfig struct {
	// Interval between sweeps in seconds.
	Interval int `yaml:"interval"`

	// OverrideWindow is how long a manual command suppresses the evaluator (minutes).
	OverrideWindow int `yaml:"override_window"`
}

// CronoConfig contains countdown timer settings.
type CronoConfig struct {
	// Interval between expiry sweeps in seconds.
	Interval int `yaml:"interval"`
}

// SessionConfig contains push-channel session settings.
type SessionConfig struct {
	CookieName      string   `yaml:"cookie_name"`
	PrivilegedRoles []string `yaml:"privileged_roles"`
	AdminRoles      []string `yaml:"admin_roles"`
}

// CameraConfig contains the camera relay settings.
type CameraConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	TriggerTopic   string `yaml:"trigger_topic"`
	TriggerPayload string `yaml:"trigger_payload"`
}

// InfluxDBConfig contains InfluxDB time-series database settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AuditConfig controls the operator audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionDays is how long entries are kept; 0 keeps them forever.
	RetentionDays int `yaml:"retention_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMEGATE_SECTION_KEY
// For example: HOMEGATE_DATABASE_PATH, HOMEGATE_CATALOG_URL
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
		Site: SiteConfig{
			ID:       "home-001",
			Name:     "homegate",
			Timezone: "Europe/Madrid",
		},
		Database: DatabaseConfig{
			Path:        "./data/homegate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homegate",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
			},
			CommandTimeout: 3000,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Catalog: CatalogConfig{
			URL:             "http://localhost:1880",
			Timeout:         5,
			InitialInterval: 1,
			MaxInterval:     30,
			MaxElapsed:      300,
		},
		Scheduler: SchedulerConfig{
			Interval:       60,
			OverrideWindow: 60,
		},
		Crono: CronoConfig{
			Interval: 1,
		},
		Session: SessionConfig{
			CookieName:      "token",
			PrivilegedRoles: []string{"s-user"},
			AdminRoles:      []string{"admin", "s-user"},
		},
		Camera: CameraConfig{
			Enabled:        true,
			Path:           "/camera",
			TriggerTopic:   "esp01s/camara",
			TriggerPayload: "activar",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOMEGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HOMEGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMEGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMEGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HOMEGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// NODE_RED_URL is what existing deployments already export.
	if v := os.Getenv("NODE_RED_URL"); v != "" {
		cfg.Catalog.URL = v
	}
	if v := os.Getenv("HOMEGATE_CATALOG_URL"); v != "" {
		cfg.Catalog.URL = v
	}

	if v := os.Getenv("HOMEGATE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}

	if v := os.Getenv("HOMEGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("HOMEGATE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a known zone", c.Site.Timezone))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.CommandTimeout < 0 {
		errs = append(errs, "mqtt.command_timeout must not be negative")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Catalog.URL == "" {
		errs = append(errs, "catalog.url is required (set NODE_RED_URL or HOMEGATE_CATALOG_URL)")
	}

	if c.Scheduler.Interval < 0 {
		errs = append(errs, "scheduler.interval must not be negative")
	}
	if c.Crono.Interval < 0 {
		errs = append(errs, "crono.interval must not be negative")
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}

	// Push-channel identities are only as strong as the signing secret.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set HOMEGATE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// CommandTimeout returns the default correlation deadline.
func (c *Config) CommandTimeout() time.Duration {
	if c.MQTT.CommandTimeout <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.MQTT.CommandTimeout) * time.Millisecond
}

// SchedulerInterval returns the schedule sweep period, one minute when unset.
func (c *Config) SchedulerInterval() time.Duration {
	if c.Scheduler.Interval <= 0 {
		return time.Minute
	}
	return time.Duration(c.Scheduler.Interval) * time.Second
}

// OverrideWindow returns how long a manual command suppresses the evaluator.
func (c *Config) OverrideWindow() time.Duration {
	if c.Scheduler.OverrideWindow <= 0 {
		return time.Hour
	}
	return time.Duration(c.Scheduler.OverrideWindow) * time.Minute
}

// CronoInterval returns the crono expiry sweep period, one second when unset.
func (c *Config) CronoInterval() time.Duration {
	if c.Crono.Interval <= 0 {
		return time.Second
	}
	return time.Duration(c.Crono.Interval) * time.Second
}

// AuditRetention returns how long audit entries are kept, zero for ever.
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

// Location resolves the site timezone. Validate rejects unknown zones, so
// the UTC fallback only covers configs built in code.
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
