package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

const minJWTSecretLength = 32

// Config holds all application configuration
type Config struct {
	Env           string
	Server        ServerConfig
	Store         StoreConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Migration     MigrationConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Bootstrap     BootstrapConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds the lock backend configuration. An empty Addr keeps
// locks in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// AuthConfig holds credential and token settings
type AuthConfig struct {
	JWTSecret  []byte
	JWTTTL     time.Duration
	JWTIssuer  string
	BcryptCost int
}

// MigrationConfig bounds partition migrations and orphan reclaim
type MigrationConfig struct {
	Timeout         time.Duration
	MaxDocuments    int64
	BatchSize       int
	ReclaimInterval time.Duration
}

// ObservabilityConfig holds logging, tracing and metrics configuration
type ObservabilityConfig struct {
	LogLevel        string
	LogFormat       string
	OTELEnabled     bool
	ServiceName     string
	ServiceVersion  string
	SamplingRate    float64
	MetricsInterval time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// TrustProxy keys clients on X-Forwarded-For / X-Real-IP; only set it
	// behind a proxy that overwrites those headers.
	TrustProxy bool
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string
}

// BootstrapConfig seeds a first organization on startup
type BootstrapConfig struct {
	OrganizationName string
	AdminEmail       string
	AdminPassword    string
}

// Load loads configuration from environment variables, after reading .env if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    parseDuration("SERVER_WRITE_TIMEOUT", "60s"),
			IdleTimeout:     parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: parseDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "orgmanager"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "orgmanager"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: parseInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
			LockTTL:  parseDuration("REDIS_LOCK_TTL", "1m"),
		},
		Auth: AuthConfig{
			JWTSecret:  []byte(os.Getenv("JWT_SECRET")),
			JWTTTL:     parseDuration("JWT_TTL", "60m"),
			JWTIssuer:  getEnv("JWT_ISSUER", "orgmanager"),
			BcryptCost: parseInt("BCRYPT_COST", 12),
		},
		Migration: MigrationConfig{
			Timeout:         parseDuration("MIGRATION_TIMEOUT", "30s"),
			MaxDocuments:    int64(parseInt("MIGRATION_MAX_DOCUMENTS", 100000)),
			BatchSize:       parseInt("MIGRATION_BATCH_SIZE", 500),
			ReclaimInterval: parseDuration("RECLAIM_INTERVAL", "10m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LogFormat:       getEnv("LOG_FORMAT", "json"),
			OTELEnabled:     parseBool("OTEL_ENABLED", false),
			ServiceName:     getEnv("OTEL_SERVICE_NAME", "orgmanager"),
			ServiceVersion:  getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			SamplingRate:    parseFloat("OTEL_SAMPLING_RATE", 1.0),
			MetricsInterval: parseDuration("OTEL_METRICS_INTERVAL", "10s"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 10),
			Burst:             parseInt("RATELIMIT_BURST", 20),
			TrustProxy:        parseBool("RATELIMIT_TRUST_PROXY", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList("CORS_ALLOWED_ORIGINS"),
		},
		Bootstrap: BootstrapConfig{
			OrganizationName: getEnv("OM_BOOTSTRAP_ORG_NAME", ""),
			AdminEmail:       getEnv("OM_BOOTSTRAP_ADMIN_EMAIL", ""),
			AdminPassword:    getEnv("OM_BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}

	if len(cfg.Auth.JWTSecret) == 0 && cfg.IsDevelopment() {
		secret, err := ephemeralSecret()
		if err != nil {
			return nil, err
		}
		cfg.Auth.JWTSecret = secret
		slog.Warn("JWT_SECRET not set, using an ephemeral development secret; tokens will not survive a restart")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether APP_ENV selects development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Database.Password == "" {
			errs = append(errs, errors.New("DB_PASSWORD is required"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory))
	}

	if c.Migration.Timeout <= 0 {
		errs = append(errs, errors.New("MIGRATION_TIMEOUT must be positive"))
	} else if c.Server.WriteTimeout <= c.Migration.Timeout {
		errs = append(errs, errors.New("SERVER_WRITE_TIMEOUT must exceed MIGRATION_TIMEOUT"))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= c.Migration.Timeout {
		errs = append(errs, errors.New("REDIS_LOCK_TTL must exceed MIGRATION_TIMEOUT"))
	}
	if c.Migration.MaxDocuments <= 0 {
		errs = append(errs, errors.New("MIGRATION_MAX_DOCUMENTS must be positive"))
	}

	b := c.Bootstrap
	set := 0
	for _, v := range []string{b.OrganizationName, b.AdminEmail, b.AdminPassword} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		errs = append(errs, errors.New("OM_BOOTSTRAP_ORG_NAME, OM_BOOTSTRAP_ADMIN_EMAIL and OM_BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

func ephemeralSecret() ([]byte, error) {
	buf := make([]byte, minJWTSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate development secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

func parseList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
