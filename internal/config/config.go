package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	Addr string

	// FreshnessWindow bounds the acceptable clock skew between the claimed
	// request timestamp and server time.
	FreshnessWindow time.Duration

	MaxBatchSize int

	DBType        string
	DBHost        string
	DBPort        string
	DBName        string
	DBUser        string
	DBPassword    string
	DBSSLMode     string
	DBMaxIdleConn int
	DBMaxOpenConn int

	RateLimit RateLimitConfig
}

// RateLimitConfig controls the per-credential tier limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FreeRPM     int
	ProRPM      int
	BusinessRPM int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "beacon"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		LogLevel:    getenv("LOG_LEVEL", "info"),

		Addr: getenv("BEACON_ADDR", ":8080"),

		FreshnessWindow: time.Duration(getenvInt("FRESHNESS_WINDOW_SECONDS", 600)) * time.Second,
		MaxBatchSize:    getenvInt("MAX_BATCH_SIZE", 1000),

		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "beacon"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn: getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn: getenvInt("DATABASE_MAX_OPEN_CONN", 10),

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("REDIS_DB", 0),
			FreeRPM:       getenvInt("RATE_LIMIT_FREE_RPM", 10),
			ProRPM:        getenvInt("RATE_LIMIT_PRO_RPM", 100),
			BusinessRPM:   getenvInt("RATE_LIMIT_BUSINESS_RPM", 1000),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
