package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the process configuration, read from the environment
type Config struct {
	HTTPPort      string `env:"PORT" envDefault:"8080"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"therapyroom"`
	RedisAddr     string `env:"REDIS_URI" envDefault:"localhost:6379"`
	JWTSecret     string `env:"JWT_SECRET" envDefault:"super-secret-key-change-in-production"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "console"

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	CORSAllowedMethods string `env:"CORS_ALLOWED_METHODS" envDefault:"GET, POST, PUT, DELETE, OPTIONS"`
	CORSAllowedHeaders string `env:"CORS_ALLOWED_HEADERS" envDefault:"Content-Type, Authorization"`

	// OutboxSize bounds the queued side effects (notifications, session writes)
	OutboxSize int `env:"OUTBOX_SIZE" envDefault:"256"`

	Game GameConfig `envPrefix:"GAME_"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Remove redis:// prefix if present
	cfg.RedisAddr = strings.TrimPrefix(cfg.RedisAddr, "redis://")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return c.Game.Validate()
}

// Address returns the HTTP listen address.
func (c *Config) Address() string {
	return ":" + c.HTTPPort
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into its entries.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
