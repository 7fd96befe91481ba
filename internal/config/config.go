// Package config loads and validates configuration at startup.
// Fail-fast: if a required variable is missing, the process exits with an error.
//
// Sources, lowest precedence first: built-in defaults, the YAML file named by
// POSTING_CONFIG, a .env file, the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobmate/posting-service/internal/draft"
)

// Event bus backends.
const (
	BusRedis = "redis"
	BusNATS  = "nats"
	BusNone  = "none"
)

// Config holds all runtime configuration for the posting service.
type Config struct {
	Port     string `yaml:"port"`
	GRPCPort string `yaml:"grpc_port"`
	LogLevel string `yaml:"log_level"`

	BackendURL     string        `yaml:"backend_url"`
	BackendToken   string        `yaml:"backend_token"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
	NATSURL     string `yaml:"nats_url"`
	EventBus    string `yaml:"event_bus"`

	DraftTTL          time.Duration `yaml:"draft_ttl"`
	SubmitLockTTL     time.Duration `yaml:"submit_lock_ttl"`
	CompaniesCacheTTL time.Duration `yaml:"companies_cache_ttl"`

	ReaperSchedule   string        `yaml:"reaper_schedule"`
	ReaperStaleAfter time.Duration `yaml:"reaper_stale_after"`

	OTELCollectorURL string `yaml:"otel_collector_url"`

	Defaults draft.Defaults `yaml:"defaults"`
}

func defaults() Config {
	return Config{
		Port:              "8083",
		GRPCPort:          "9083",
		LogLevel:          "info",
		BackendTimeout:    15 * time.Second,
		DraftTTL:          24 * time.Hour,
		SubmitLockTTL:     2 * time.Minute,
		CompaniesCacheTTL: 5 * time.Minute,
		ReaperSchedule:    "@every 5m",
		ReaperStaleAfter:  10 * time.Minute,
		Defaults:          draft.DefaultDefaults(),
	}
}

// Load reads the optional config file and environment and returns a
// validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(getEnv("DOTENV_PATH", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("POSTING_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("POSTING_PORT", cfg.Port)
	cfg.GRPCPort = getEnv("POSTING_GRPC_PORT", cfg.GRPCPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.BackendURL = strings.TrimRight(getEnv("BACKEND_URL", cfg.BackendURL), "/")
	cfg.BackendToken = getEnv("BACKEND_TOKEN", cfg.BackendToken)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.EventBus = strings.ToLower(getEnv("EVENT_BUS", cfg.EventBus))
	if cfg.EventBus == "" {
		// without Redis the service runs fully in memory
		cfg.EventBus = BusNone
		if cfg.RedisURL != "" {
			cfg.EventBus = BusRedis
		}
	}
	cfg.ReaperSchedule = getEnv("REAPER_SCHEDULE", cfg.ReaperSchedule)
	cfg.OTELCollectorURL = getEnv("OTEL_COLLECTOR_URL", cfg.OTELCollectorURL)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"BACKEND_TIMEOUT", &cfg.BackendTimeout},
		{"DRAFT_TTL", &cfg.DraftTTL},
		{"SUBMIT_LOCK_TTL", &cfg.SubmitLockTTL},
		{"COMPANIES_CACHE_TTL", &cfg.CompaniesCacheTTL},
		{"REAPER_STALE_AFTER", &cfg.ReaperStaleAfter},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, *d.dst)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	switch c.EventBus {
	case BusRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("EVENT_BUS=redis requires REDIS_URL")
		}
	case BusNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("EVENT_BUS=nats requires NATS_URL")
		}
	case BusNone:
	default:
		return fmt.Errorf("EVENT_BUS must be one of redis, nats, none; got %q", c.EventBus)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("POSTING_PORT must be a number, got %q", c.Port)
	}
	if _, err := strconv.Atoi(c.GRPCPort); err != nil {
		return fmt.Errorf("POSTING_GRPC_PORT must be a number, got %q", c.GRPCPort)
	}
	return nil
}

// getEnv returns the environment variable key, or fallback when unset.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return v, nil
}
