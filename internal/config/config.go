package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Document store drivers
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// minJWTSecretLength is the shortest accepted HS256 signing secret
const minJWTSecretLength = 32

// Config holds application configuration
type Config struct {
	ServerPort        string
	BaseURL           string
	FrontendURL       string
	DocstoreDriver    string
	MongoURI          string
	MongoDatabase     string
	DatabaseURL       string
	RedisURL          string
	RabbitMQURL       string
	RabbitMQPrefetch  int
	JWTSecret         string
	JWTIssuer         string
	JWTTTL            time.Duration
	GeocoderURL       string
	GeocoderUserAgent string
	GeocodeCacheTTL   time.Duration
	EnableHSTS        bool
	WorkerDebugMode   bool
	ServerDebugMode   bool
	OTELEnabled       bool
	OTELEndpoint      string
	Home              string
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads the server configuration from environment variables. A signing
// secret is required.
func Load() (*Config, error) {
	return load(true)
}

// LoadStore loads configuration for tools that only reach the backing stores,
// such as the worker and the configure CLI. JWT_SECRET is not required.
func LoadStore() (*Config, error) {
	return load(false)
}

func load(requireSecret bool) (*Config, error) {
	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:3000"),
		DocstoreDriver:    getEnv("DOCSTORE_DRIVER", DriverMongo),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "quickfix"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:  getEnvInt("RABBITMQ_PREFETCH", 1),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "quickfix"),
		JWTTTL:            getEnvDuration("JWT_TTL", 7*24*time.Hour),
		GeocoderURL:       getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", "QuickFix/1.0"),
		GeocodeCacheTTL:   getEnvDuration("GEOCODE_CACHE_TTL", 24*time.Hour),
		EnableHSTS:        getEnvBool("ENABLE_HSTS", false),
		WorkerDebugMode:   getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:   getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:       getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Home:              getEnv("QUICKFIX_HOME", ""),
	}

	switch cfg.DocstoreDriver {
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI is required when DOCSTORE_DRIVER=%s", DriverMongo)
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DOCSTORE_DRIVER=%s", DriverPostgres)
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unknown DOCSTORE_DRIVER %q (want mongo, postgres or memory)", cfg.DocstoreDriver)
	}

	if requireSecret && len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET is required and must be at least %d characters", minJWTSecretLength)
	}

	if cfg.RabbitMQPrefetch < 1 {
		cfg.RabbitMQPrefetch = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
