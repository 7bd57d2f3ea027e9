// Package config loads server settings from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name: LOYALTY_PORT, LOYALTY_DB_PATH, ...
const Prefix = "loyalty"

type Config struct {
	// --- HTTP ---
	Port        int      `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	// --- Database ---
	DBPath string `envconfig:"DB_PATH" default:"./data/loyalty.db"`

	// --- Auth ---
	JWTSecret         string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL          time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	SuperuserUtorid   string        `envconfig:"SUPERUSER_UTORID"`
	SuperuserPassword string        `envconfig:"SUPERUSER_PASSWORD"`

	// --- Ledger ---
	PointsPerDollar int64  `envconfig:"POINTS_PER_DOLLAR" default:"4"`
	AuditSchedule   string `envconfig:"AUDIT_SCHEDULE" default:"@every 1h"`

	// --- Logging ---
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// --- Rate Limiting ---
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"40"`
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("LOYALTY_PORT out of range: %d", c.Port)
	}
	if c.PointsPerDollar <= 0 {
		return fmt.Errorf("LOYALTY_POINTS_PER_DOLLAR must be > 0")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOYALTY_LOG_FORMAT must be text or json")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("LOYALTY_RATE_LIMIT_RPS and LOYALTY_RATE_LIMIT_BURST must be > 0")
	}
	if (c.SuperuserUtorid == "") != (c.SuperuserPassword == "") {
		return fmt.Errorf("LOYALTY_SUPERUSER_UTORID and LOYALTY_SUPERUSER_PASSWORD must be set together")
	}
	return nil
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
