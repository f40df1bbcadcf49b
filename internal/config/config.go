package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        int
	Environment string
	Database    DatabaseConfig
	Kuma        KumaConfig
	Sync        SyncConfig
	CORSOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// KumaConfig holds upstream monitoring source configuration
type KumaConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SyncConfig holds sync job configuration
type SyncConfig struct {
	Secret           string // shared secret for the trigger endpoint
	Schedule         string // cron spec for the in-process scheduler
	SchedulerEnabled bool
	HeartbeatLimit   int // samples fetched per monitor per run
	RetentionDays    int // heartbeats older than this are purged
	Workers          int // bounded parallelism for heartbeat ingestion
}

// Load loads configuration from environment variables
func Load() *Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	env := getEnv("ENVIRONMENT", "production")

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: env,
		Database: DatabaseConfig{
			Type:         getEnv("DATABASE_TYPE", "postgres"),
			DSN:          getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Kuma: KumaConfig{
			BaseURL: strings.TrimRight(getEnv("KUMA_BASE_URL", ""), "/"),
			APIKey:  getEnv("KUMA_API_KEY", ""),
			Timeout: time.Duration(getEnvInt("KUMA_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Sync: SyncConfig{
			Secret:           getEnv("SYNC_SECRET", ""),
			Schedule:         getEnv("SYNC_SCHEDULE", "*/5 * * * *"),
			SchedulerEnabled: getEnvBool("SYNC_SCHEDULER_ENABLED", true),
			HeartbeatLimit:   getEnvInt("SYNC_HEARTBEAT_LIMIT", 100),
			RetentionDays:    getEnvInt("SYNC_RETENTION_DAYS", 90),
			Workers:          getEnvInt("SYNC_WORKERS", 4),
		},
		CORSOrigins: loadCORSOrigins(env),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "uptime")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "uptime")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Environment == "production" {
		if c.Sync.Secret == "" {
			return fmt.Errorf("SYNC_SECRET is required in production")
		}
		if len(c.Sync.Secret) < 16 {
			return fmt.Errorf("SYNC_SECRET must be at least 16 characters in production")
		}
		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.Sync.Secret == insecure {
				return fmt.Errorf("SYNC_SECRET is set to an insecure default value. Please set a strong random secret")
			}
		}
	}

	if c.Kuma.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Kuma.BaseURL); err != nil {
			return fmt.Errorf("KUMA_BASE_URL is not a valid URL: %w", err)
		}
	}

	if c.Sync.HeartbeatLimit < 1 {
		return fmt.Errorf("SYNC_HEARTBEAT_LIMIT must be at least 1")
	}
	if c.Sync.RetentionDays < 1 {
		return fmt.Errorf("SYNC_RETENTION_DAYS must be at least 1")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1")
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	return nil
}

func loadCORSOrigins(env string) []string {
	if appURL := getAppURL(); appURL != "" {
		return []string{appURL}
	}

	if env == "development" {
		return []string{"http://localhost:3000", "http://localhost:8080"}
	}

	log.Println("WARNING: APP_URL not set. Using default localhost origins.")
	log.Println("WARNING: Set APP_URL environment variable for production deployments.")
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func getAppURL() string {
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		return ""
	}
	return strings.TrimRight(appURL, "/")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}
