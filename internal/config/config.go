package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the FleetWatch service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Geofence  GeofenceConfig  `mapstructure:"geofence"`
	Retention RetentionConfig `mapstructure:"retention"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory" (single-process development).
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds the pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds the position cache settings.
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// NATSConfig holds the alert notification settings.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// RateLimitConfig holds admission control settings.
type RateLimitConfig struct {
	DeviceCapacity   float64       `mapstructure:"device_capacity"`
	DeviceRefillRate float64       `mapstructure:"device_refill_rate"`
	OriginCapacity   float64       `mapstructure:"origin_capacity"`
	OriginRefillRate float64       `mapstructure:"origin_refill_rate"`
	GlobalCapacity   float64       `mapstructure:"global_capacity"`
	GlobalRefillRate float64       `mapstructure:"global_refill_rate"`
	MaxTrackedKeys   int           `mapstructure:"max_tracked_keys"`
	KeyTTL           time.Duration `mapstructure:"key_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// PipelineConfig holds dispatch pool settings.
type PipelineConfig struct {
	Workers       int           `mapstructure:"workers"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// GeofenceConfig holds restricted zone settings.
type GeofenceConfig struct {
	ZonesFile string `mapstructure:"zones_file"`
}

// RetentionConfig holds alert retention settings.
type RetentionConfig struct {
	Window   time.Duration `mapstructure:"window"`
	Interval time.Duration `mapstructure:"interval"`
}

// APIConfig holds query API and auth settings.
type APIConfig struct {
	DefaultPageSize int      `mapstructure:"default_page_size"`
	MaxPageSize     int      `mapstructure:"max_page_size"`
	Keys            []string `mapstructure:"keys"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "fleetwatch")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "fleetwatch")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("ratelimit.device_capacity", 60)
	v.SetDefault("ratelimit.device_refill_rate", 1)
	v.SetDefault("ratelimit.origin_capacity", 600)
	v.SetDefault("ratelimit.origin_refill_rate", 10)
	v.SetDefault("ratelimit.global_capacity", 5000)
	v.SetDefault("ratelimit.global_refill_rate", 500)
	v.SetDefault("ratelimit.max_tracked_keys", 100000)
	v.SetDefault("ratelimit.key_ttl", "30m")
	v.SetDefault("ratelimit.sweep_interval", "5m")

	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.queue_capacity", 1024)
	v.SetDefault("pipeline.shutdown_grace", "30s")

	v.SetDefault("geofence.zones_file", "zones.yaml")

	v.SetDefault("retention.window", "2160h") // 90 days
	v.SetDefault("retention.interval", "1h")

	v.SetDefault("api.default_page_size", 20)
	v.SetDefault("api.max_page_size", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fleetwatch")
	}

	// Environment variables override
	v.SetEnvPrefix("FLEETWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
