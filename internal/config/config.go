package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bulksender/internal/antiban"
	"bulksender/internal/logging"
	"bulksender/internal/session"
)

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendNone     = "none"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	Simulator SimulatorConfig
	Log       logging.Config
	Env       string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// StorageConfig selects where campaign progress is persisted
type StorageConfig struct {
	Backend    string
	SQLitePath string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RabbitMQConfig holds RabbitMQ configuration
type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
}

// RedisConfig holds Redis configuration; an empty Addr disables Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DispatchConfig holds the pacing policy applied to every campaign
type DispatchConfig struct {
	DailyLimit           int
	LongPauseIntervalMin int
	LongPauseIntervalMax int
	LongPauseDurationMin time.Duration
	LongPauseDurationMax time.Duration
	SendTimeout          time.Duration
}

// SimulatorConfig tunes the simulated session provider and its breakers
type SimulatorConfig struct {
	SuccessRate      float64
	MinLatency       time.Duration
	MaxLatency       time.Duration
	OfflineChannels  []string
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := FromEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromEnv reads configuration from environment variables without validating it
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			AllowedOrigins:  getEnvAsList("WS_ALLOWED_ORIGINS", nil),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "bulksender.db"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "bulksender"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "bulksender_db"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  getEnvAsBool("RABBITMQ_ENABLED", true),
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
			User:     getEnv("RABBITMQ_DEFAULT_USER", "guest"),
			Password: getEnv("RABBITMQ_DEFAULT_PASS", "guest"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Dispatch: DispatchConfig{
			DailyLimit:           getEnvAsInt("DAILY_LIMIT", antiban.DefaultDailyLimit),
			LongPauseIntervalMin: getEnvAsInt("LONG_PAUSE_EVERY_MIN", antiban.DefaultLongPauseIntervalMin),
			LongPauseIntervalMax: getEnvAsInt("LONG_PAUSE_EVERY_MAX", antiban.DefaultLongPauseIntervalMax),
			LongPauseDurationMin: getEnvAsDuration("LONG_PAUSE_MIN", antiban.DefaultLongPauseDurationMin),
			LongPauseDurationMax: getEnvAsDuration("LONG_PAUSE_MAX", antiban.DefaultLongPauseDurationMax),
			SendTimeout:          getEnvAsDuration("SEND_TIMEOUT", 30*time.Second),
		},
		Simulator: SimulatorConfig{
			SuccessRate:      getEnvAsFloat("SIM_SUCCESS_RATE", 0.95),
			MinLatency:       getEnvAsDuration("SIM_MIN_LATENCY", 50*time.Millisecond),
			MaxLatency:       getEnvAsDuration("SIM_MAX_LATENCY", 200*time.Millisecond),
			OfflineChannels:  getEnvAsList("SIM_OFFLINE_CHANNELS", nil),
			BreakerThreshold: uint32(getEnvAsInt("BREAKER_FAILURE_THRESHOLD", int(session.DefaultBreakerConfig().FailureThreshold))),
			BreakerTimeout:   getEnvAsDuration("BREAKER_TIMEOUT", session.DefaultBreakerConfig().Timeout),
		},
		Log: logging.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Env: getEnv("ENV", "development"),
	}
}

// Validate checks cross field rules
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendNone:
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q: must be postgres, sqlite or none", c.Storage.Backend)
	}

	if c.Simulator.SuccessRate < 0 || c.Simulator.SuccessRate > 1 {
		return fmt.Errorf("SIM_SUCCESS_RATE must be between 0 and 1")
	}
	if c.Dispatch.DailyLimit <= 0 {
		return fmt.Errorf("DAILY_LIMIT must be positive")
	}
	if err := c.GovernorConfig().Validate(); err != nil {
		return fmt.Errorf("invalid pacing policy: %w", err)
	}
	return nil
}

// GovernorConfig returns the pacing policy for new campaigns
func (c *Config) GovernorConfig() antiban.GovernorConfig {
	return antiban.GovernorConfig{
		DailyLimit:           c.Dispatch.DailyLimit,
		LongPauseIntervalMin: c.Dispatch.LongPauseIntervalMin,
		LongPauseIntervalMax: c.Dispatch.LongPauseIntervalMax,
		LongPauseDurationMin: c.Dispatch.LongPauseDurationMin,
		LongPauseDurationMax: c.Dispatch.LongPauseDurationMax,
	}
}

// BreakerConfig returns the circuit breaker settings of the session provider
func (c *Config) BreakerConfig() session.BreakerConfig {
	cfg := session.DefaultBreakerConfig()
	cfg.FailureThreshold = c.Simulator.BreakerThreshold
	cfg.Timeout = c.Simulator.BreakerTimeout
	return cfg
}

// GetDatabaseDSN returns PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRabbitMQURL returns RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// RedisEnabled reports whether a Redis address is configured
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv gets environment variable or returns default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s", "2m")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
