package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings, read from the environment (and an optional .env file)
type Config struct {
	Database Database
	Gateway  Gateway
	Cache    Cache

	// ActivityWindow is how long after creation a worker still counts as active
	ActivityWindow time.Duration
	HTTPAddr       string
	LogLevel       string
}

// Database configures the local relational store
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// Gateway selects where raw hierarchy rows come from
type Gateway struct {
	Mode    string // "database" or "rest"
	Profile string // connection profile name, used when URL is empty
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Cache configures the derived-view cache
type Cache struct {
	TTL        time.Duration
	MaxEntries int
}

const (
	GatewayDatabase = "database"
	GatewayREST     = "rest"
)

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	logLevel := strings.ToUpper(getEnv("LOG_LEVEL", "INFO"))

	cfg := &Config{
		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Debug:           logLevel == "DEBUG",
		},
		Gateway: Gateway{
			Mode:    strings.ToLower(getEnv("GATEWAY", GatewayDatabase)),
			Profile: os.Getenv("GATEWAY_PROFILE"),
			URL:     os.Getenv("GATEWAY_URL"),
			APIKey:  os.Getenv("GATEWAY_API_KEY"),
			Timeout: getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},
		Cache: Cache{
			TTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 100),
		},
		ActivityWindow: getEnvDuration("ACTIVITY_WINDOW", 90*24*time.Hour),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:       logLevel,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Gateway.Mode {
	case GatewayDatabase:
	case GatewayREST:
		if c.Gateway.URL == "" && c.Gateway.Profile == "" {
			return fmt.Errorf("GATEWAY=rest requires GATEWAY_URL or GATEWAY_PROFILE")
		}
	default:
		return fmt.Errorf("unsupported GATEWAY mode: %s", c.Gateway.Mode)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.Cache.TTL)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.Cache.MaxEntries)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration from environment variable with default fallback
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultValue
}
