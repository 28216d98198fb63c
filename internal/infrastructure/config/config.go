// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback, with .env support)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	apiBase := cfg.Services.APIBaseURL
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session store backends.
const (
	SessionBackendSQLite = "sqlite"
	SessionBackendRedis  = "redis"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Services      ServicesConfig      `yaml:"services"`
	Storage       StorageConfig       `yaml:"storage"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the local HTTP API settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	CookieName     string   `yaml:"cookie_name"`
	CookieSecure   bool     `yaml:"cookie_secure"`
}

// ServicesConfig holds the remote service endpoints
type ServicesConfig struct {
	ProcessBaseURL string        `yaml:"process_base_url"` // upload + OCR service
	APIBaseURL     string        `yaml:"api_base_url"`     // orders, customers, auth
	Timeout        time.Duration `yaml:"timeout"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// SessionsConfig holds session settings
type SessionsConfig struct {
	Backend string        `yaml:"backend"` // sqlite or redis
	TTL     time.Duration `yaml:"ttl"`     // token lifetime when the token carries no exp
	MaxIdle time.Duration `yaml:"max_idle"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the Redis session store connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// EventsConfig holds the approval event broker. An empty URL disables events.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${API_BASE_URL})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
// A .env file in the working directory is read first when present.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
			CookieName:     getEnv("SESSION_COOKIE", ""),
			CookieSecure:   getEnv("SESSION_COOKIE_SECURE", "") == "true",
		},
		Services: ServicesConfig{
			ProcessBaseURL: getEnv("PROCESS_BASE_URL", "http://localhost:5000"),
			APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:3000"),
			Timeout:        getEnvDuration("SERVICES_TIMEOUT", 0),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("RECEIPT_DESK_DB_PATH", "receipt_desk.db"),
		},
		Sessions: SessionsConfig{
			Backend: getEnv("SESSION_BACKEND", SessionBackendSQLite),
			TTL:     getEnvDuration("SESSION_TTL", 0),
			MaxIdle: getEnvDuration("SESSION_MAX_IDLE", 0),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: os.Getenv("REDIS_PASSWORD"),
				DB:       getEnvInt("REDIS_DB", 0),
				Prefix:   getEnv("REDIS_PREFIX", ""),
			},
		},
		Events: EventsConfig{
			AMQPURL:  os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Services.ProcessBaseURL == "" {
		return fmt.Errorf("services.process_base_url is required")
	}
	if c.Services.APIBaseURL == "" {
		return fmt.Errorf("services.api_base_url is required")
	}
	switch c.Sessions.Backend {
	case SessionBackendSQLite, SessionBackendRedis:
	default:
		return fmt.Errorf("sessions.backend must be %q or %q, got %q",
			SessionBackendSQLite, SessionBackendRedis, c.Sessions.Backend)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Server.CookieName == "" {
		c.Server.CookieName = "receipt_desk_session"
	}
	if c.Services.Timeout == 0 {
		c.Services.Timeout = 30 * time.Second
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "receipt_desk.db"
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = SessionBackendSQLite
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 12 * time.Hour
	}
	if c.Sessions.MaxIdle == 0 {
		c.Sessions.MaxIdle = 7 * 24 * time.Hour
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "receipt-desk"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
