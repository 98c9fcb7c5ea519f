package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST, overwrite"`
	Port            int           `yaml:"port" env:"SERVER_PORT, overwrite"`
	GRPCPort        int           `yaml:"grpc_port" env:"GRPC_PORT, overwrite"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT, overwrite"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host" env:"DB_HOST, overwrite"`
	Port         int    `yaml:"port" env:"DB_PORT, overwrite"`
	User         string `yaml:"user" env:"DB_USER, overwrite"`
	Password     string `yaml:"password" env:"DB_PASSWORD, overwrite"`
	Database     string `yaml:"database" env:"DB_NAME, overwrite"`
	SSLMode      string `yaml:"ssl_mode" env:"DB_SSL_MODE, overwrite"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS, overwrite"`
}

// RedisConfig backs idempotent commits. An empty address disables them.
type RedisConfig struct {
	Addr           string        `yaml:"addr" env:"REDIS_ADDR, overwrite"`
	Password       string        `yaml:"password" env:"REDIS_PASSWORD, overwrite"`
	DB             int           `yaml:"db" env:"REDIS_DB, overwrite"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env:"IDEMPOTENCY_TTL, overwrite"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret             string `yaml:"secret" env:"JWT_SECRET, overwrite"`
	AccessTokenExpiry  int    `yaml:"access_token_expiry_minutes" env:"JWT_ACCESS_EXPIRY_MINUTES, overwrite"`
	RefreshTokenExpiry int    `yaml:"refresh_token_expiry_minutes" env:"JWT_REFRESH_EXPIRY_MINUTES, overwrite"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL, overwrite"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"LOG_FORMAT, overwrite"` // "json" or "text"
}

// EngineConfig tunes availability and pricing.
type EngineConfig struct {
	ReleasedRetentionDays int    `yaml:"released_retention_days" env:"RELEASED_RETENTION_DAYS, overwrite"`
	TaxPercent            string `yaml:"tax_percent" env:"TAX_PERCENT, overwrite"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED, overwrite"`
	Path    string `yaml:"path" env:"METRICS_PATH, overwrite"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReleaseCancelled string `yaml:"release_cancelled" env:"SCHEDULE_RELEASE_CANCELLED, overwrite"`
	PurgeReleased    string `yaml:"purge_released" env:"SCHEDULE_PURGE_RELEASED, overwrite"`
}

// Load reads configuration from a YAML file and overlays the environment.
func Load(ctx context.Context, configPath string) (*Config, error) {
	return load(ctx, configPath, envconfig.OsLookuper())
}

func load(ctx context.Context, configPath string, lookuper envconfig.Lookuper) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.IdempotencyTTL == 0 {
		c.Redis.IdempotencyTTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Engine.ReleasedRetentionDays == 0 {
		c.Engine.ReleasedRetentionDays = 90
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Scheduler.ReleaseCancelled == "" {
		c.Scheduler.ReleaseCancelled = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.PurgeReleased == "" {
		c.Scheduler.PurgeReleased = "0 30 3 * * *" // 3:30 AM UTC
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	if c.Engine.ReleasedRetentionDays < 0 {
		return fmt.Errorf("released retention must not be negative: %d", c.Engine.ReleasedRetentionDays)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"release_cancelled": c.Scheduler.ReleaseCancelled,
		"purge_released":    c.Scheduler.PurgeReleased,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}
	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC listener address, or "" when gRPC is off.
func (c *Config) GetGRPCAddress() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// ReleasedRetention is how long released commitments are kept.
func (c *Config) ReleasedRetention() time.Duration {
	return time.Duration(c.Engine.ReleasedRetentionDays) * 24 * time.Hour
}
