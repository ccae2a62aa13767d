package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/braingame/waitlist-core/internal/pkg/mail"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort            = 8080
	defaultEnv             = "development"
	defaultRateLimitMax    = 5
	defaultRateLimitWindow = 60_000 // ms
)

// AppConfig holds runtime configuration loaded from YAML with env overrides.
type AppConfig struct {
	Port           int      `yaml:"port"`
	Env            string   `yaml:"env"` // "development" | "production"
	PublicURL      string   `yaml:"public_url"`
	DSN            string   `yaml:"dsn"` // MySQL DSN; empty = in-memory stores
	RedisURL       string   `yaml:"redis_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminSecret    string   `yaml:"admin_secret"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Mail      mail.Config     `yaml:"mail"`
	Tracking  TrackingConfig  `yaml:"tracking"`
}

type RateLimitConfig struct {
	Max      int `yaml:"max"`
	WindowMS int `yaml:"window_ms"`
}

// Window returns the rate-limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

type TrackingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Key      string `yaml:"key"`
}

// Load reads the YAML config at path, applies env overrides and defaults.
// A missing file is not an error; env vars and defaults carry a zero-config
// dev setup.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env + defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.PublicURL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		cfg.AdminSecret = v
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Max = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.WindowMS = n
		}
	}
	if v := os.Getenv("TRACKING_ENDPOINT"); v != "" {
		cfg.Tracking.Endpoint = v
	}
	if v := os.Getenv("TRACKING_KEY"); v != "" {
		cfg.Tracking.Key = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.RateLimit.Max == 0 {
		cfg.RateLimit.Max = defaultRateLimitMax
	}
	if cfg.RateLimit.WindowMS == 0 {
		cfg.RateLimit.WindowMS = defaultRateLimitWindow
	}
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return c.Env != "production"
}
