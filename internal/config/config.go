// Package config loads and validates the application configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the GLIMMR_ prefix (e.g., GLIMMR_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Environment is "development", "staging", or "production". Error
	// responses include stack traces only outside production.
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Security    SecurityConfig  `mapstructure:"security"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Activity    ActivityConfig  `mapstructure:"activity"`
	Jobs        JobsConfig      `mapstructure:"jobs"`
	PRA         PRAConfig       `mapstructure:"pra"`

	// reloadMu guards the hot-reloadable subset of fields, which the file
	// watcher rewrites while request goroutines read them.
	reloadMu sync.RWMutex
	onReload func(*Config)
}

// SetOnReload registers a callback invoked after a successful hot reload, so
// long-lived components (activity service, scheduler) can pick up new values.
func (c *Config) SetOnReload(fn func(*Config)) {
	c.reloadMu.Lock()
	c.onReload = fn
	c.reloadMu.Unlock()
}

// ActivitySkipPaths returns the current skip-list. Reload-safe.
func (c *Config) ActivitySkipPaths() []string {
	c.reloadMu.RLock()
	defer c.reloadMu.RUnlock()
	return c.Activity.SkipPaths
}

// ActivitySuspiciousLoginThreshold returns the current threshold. Reload-safe.
func (c *Config) ActivitySuspiciousLoginThreshold() int64 {
	c.reloadMu.RLock()
	defer c.reloadMu.RUnlock()
	return c.Activity.SuspiciousLoginThreshold
}

// ActivityRetentionDays returns the current retention window. Reload-safe.
func (c *Config) ActivityRetentionDays() int {
	c.reloadMu.RLock()
	defer c.reloadMu.RUnlock()
	return c.Activity.RetentionDays
}

// IsProduction reports whether the runtime environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens. Required outside development.
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	// APIKeyPrefix is prepended to generated API keys so leaked keys are
	// recognisable in scanning tools.
	APIKeyPrefix string `mapstructure:"api_key_prefix"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration. Separate ceilings
// apply per profile: default (reads), auth (login endpoints), expensive
// (job triggers, bulk operations).
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is "memory" (per-process token buckets) or "redis"
	// (shared counters, for multi-replica deployments).
	Backend                 string `mapstructure:"backend"`
	RedisAddr               string `mapstructure:"redis_addr"`
	RedisPassword           string `mapstructure:"redis_password"`
	RequestsPerMinute       int    `mapstructure:"requests_per_minute"`
	AuthRequestsPerMin      int    `mapstructure:"auth_requests_per_minute"`
	ExpensiveRequestsPerMin int    `mapstructure:"expensive_requests_per_minute"`
	Burst                   int    `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ActivityConfig holds activity logging pipeline configuration
type ActivityConfig struct {
	// Enabled determines if request activity logging is active
	Enabled bool `mapstructure:"enabled"`
	// SkipPaths bypass logging entirely: health checks, metrics, docs, and
	// other high-frequency noise endpoints.
	SkipPaths []string `mapstructure:"skip_paths"`
	// RetentionDays is how long records are kept before the cleanup job
	// removes them.
	RetentionDays int `mapstructure:"retention_days"`
	// SuspiciousLoginThreshold is the failed-login count per (actor, IP)
	// per hour above which a suspicious_activity_detected record is emitted.
	SuspiciousLoginThreshold int64 `mapstructure:"suspicious_login_threshold"`
	// Shippers configures optional external record shipping
	Shippers []ActivityShipperConfig `mapstructure:"shippers"`
}

// ActivityShipperConfig holds configuration for a single activity shipper
type ActivityShipperConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // file, webhook
	// File configuration
	File *ActivityFileConfig `mapstructure:"file"`
	// Webhook configuration
	Webhook *ActivityWebhookConfig `mapstructure:"webhook"`
}

// ActivityFileConfig holds file shipper configuration
type ActivityFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ActivityWebhookConfig holds webhook shipper configuration
type ActivityWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// JobsConfig holds background job scheduler configuration
type JobsConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	PRAScanInterval          time.Duration `mapstructure:"pra_scan_interval"`
	PriceUpdateInterval      time.Duration `mapstructure:"price_update_interval"`
	CleanupInterval          time.Duration `mapstructure:"cleanup_interval"`
	AnalyticsRefreshInterval time.Duration `mapstructure:"analytics_refresh_interval"`
}

// PRAConfig holds the upstream price-transparency API client configuration
type PRAConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"environment",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Auth
		"auth.jwt_secret",
		"auth.access_token_ttl",
		"auth.refresh_token_ttl",
		"auth.api_key_prefix",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.backend",
		"security.rate_limiting.redis_addr",
		"security.rate_limiting.redis_password",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.auth_requests_per_minute",
		"security.rate_limiting.expensive_requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Activity logging
		"activity.enabled",
		"activity.skip_paths",
		"activity.retention_days",
		"activity.suspicious_login_threshold",

		// Jobs
		"jobs.enabled",
		"jobs.pra_scan_interval",
		"jobs.price_update_interval",
		"jobs.cleanup_interval",
		"jobs.analytics_refresh_interval",

		// PRA upstream client
		"pra.base_url",
		"pra.api_key",
		"pra.timeout",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/glimmr")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("GLIMMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	cfg, err := unmarshalAndValidate(v)
	if err != nil {
		return nil, err
	}

	// Watch the config file so the skip-list and other tunables can be
	// adjusted without a restart. Viper uses fsnotify underneath; the
	// callback fires on every write to the watched file.
	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			reloaded, err := unmarshalAndValidate(v)
			if err != nil {
				slog.Error("config reload rejected", "file", e.Name, "error", err)
				return
			}
			cfg.applyReloadable(reloaded)
			slog.Info("config reloaded", "file", e.Name)
			cfg.reloadMu.RLock()
			fn := cfg.onReload
			cfg.reloadMu.RUnlock()
			if fn != nil {
				fn(cfg)
			}
		})
		v.WatchConfig()
	}

	return cfg, nil
}

func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Auth.JWTSecret = os.ExpandEnv(cfg.Auth.JWTSecret)
	cfg.Security.RateLimiting.RedisPassword = os.ExpandEnv(cfg.Security.RateLimiting.RedisPassword)
	cfg.PRA.APIKey = os.ExpandEnv(cfg.PRA.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyReloadable copies the hot-reloadable subset of settings. Connection
// and listener settings require a restart and are deliberately not copied.
func (c *Config) applyReloadable(from *Config) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()
	c.Activity.SkipPaths = from.Activity.SkipPaths
	c.Activity.RetentionDays = from.Activity.RetentionDays
	c.Activity.SuspiciousLoginThreshold = from.Activity.SuspiciousLoginThreshold
	c.Logging.Level = from.Logging.Level
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "glimmr")
	v.SetDefault("database.user", "glimmr")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "720h")
	v.SetDefault("auth.api_key_prefix", "glmr_")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.auth_requests_per_minute", 10)
	v.SetDefault("security.rate_limiting.expensive_requests_per_minute", 5)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "glimmr-api")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Activity logging defaults
	v.SetDefault("activity.enabled", true)
	v.SetDefault("activity.skip_paths", []string{
		"/health", "/health/ready", "/health/live", "/metrics",
		"/favicon.ico", "/docs", "/api/v1/activity", "/api/v1/page-views",
	})
	v.SetDefault("activity.retention_days", 90)
	v.SetDefault("activity.suspicious_login_threshold", 5)

	// Jobs defaults
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.pra_scan_interval", "6h")
	v.SetDefault("jobs.price_update_interval", "24h")
	v.SetDefault("jobs.cleanup_interval", "24h")
	v.SetDefault("jobs.analytics_refresh_interval", "1h")

	// PRA upstream defaults
	v.SetDefault("pra.base_url", "https://api.patientrightsadvocate.org")
	v.SetDefault("pra.timeout", "30s")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment) {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.Environment)
	}

	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate auth
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}

	// Validate rate limiting
	switch c.Security.RateLimiting.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", c.Security.RateLimiting.Backend)
	}
	if c.Security.RateLimiting.Backend == "redis" && c.Security.RateLimiting.RedisAddr == "" {
		return fmt.Errorf("security.rate_limiting.redis_addr is required when using the redis backend")
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate activity settings
	if c.Activity.RetentionDays < 1 {
		return fmt.Errorf("activity.retention_days must be at least 1")
	}
	for _, s := range c.Activity.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "file":
			if s.File == nil || s.File.Path == "" {
				return fmt.Errorf("activity shipper of type file requires file.path")
			}
		case "webhook":
			if s.Webhook == nil || s.Webhook.URL == "" {
				return fmt.Errorf("activity shipper of type webhook requires webhook.url")
			}
		default:
			return fmt.Errorf("invalid activity shipper type: %s (must be file or webhook)", s.Type)
		}
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
