// Package config loads service configuration from the environment and the
// site/hall/rack catalog from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config holds the service settings read from the environment.
type Config struct {
	Port            int           `env:"PORT,default=8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	StorageBackend     string        `env:"STORAGE_BACKEND,default=memory"`
	SupabaseURL        string        `env:"SUPABASE_URL"`
	SupabaseServiceKey string        `env:"SUPABASE_SERVICE_KEY"`
	SupabaseJWTSecret  string        `env:"SUPABASE_JWT_SECRET"`
	SupabaseTimeout    time.Duration `env:"SUPABASE_TIMEOUT,default=30s"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	AutoMigrate        bool          `env:"AUTO_MIGRATE,default=false"`

	RedisAddr    string `env:"REDIS_ADDR"`
	DeviceID     string `env:"DEVICE_ID"`
	SequenceFile string `env:"SEQUENCE_FILE,default=.walkthrough-sequence"`
	HallsFile    string `env:"HALLS_FILE"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=40"`

	MQTTBroker      string `env:"MQTT_BROKER"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX,default=walkthrough"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID,default=walkthrough-api"`

	IncidentWorkers int `env:"INCIDENT_WORKERS,default=8"`
}

// LoadDotEnv loads path into the environment when it exists. Variables that
// are already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load decodes the environment into a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	if c.StorageBackend == "" {
		c.StorageBackend = BackendMemory
	}
	c.SupabaseURL = strings.TrimSuffix(strings.TrimSpace(c.SupabaseURL), "/")
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.DeviceID = host
		} else {
			c.DeviceID = "default"
		}
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	switch c.StorageBackend {
	case BackendMemory:
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("STORAGE_BACKEND=supabase requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORAGE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.IncidentWorkers <= 0 {
		return fmt.Errorf("INCIDENT_WORKERS must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AuthEnabled reports whether bearer tokens are verified.
func (c *Config) AuthEnabled() bool {
	return c.SupabaseJWTSecret != ""
}
