package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime settings for the server and the admin CLI.
type Config struct {
	HTTPAddr           string        `env:"STATIONBOOK_HTTP_ADDR" envDefault:":8080"`
	DatabasePath       string        `env:"STATIONBOOK_DB_PATH" envDefault:"data/stationbook.db"`
	MasterKeyHex       string        `env:"MASTER_KEY_HEX"`
	MasterKeyFile      string        `env:"STATIONBOOK_MASTER_KEY_FILE" envDefault:"master.key"`
	SessionTTL         time.Duration `env:"STATIONBOOK_SESSION_TTL" envDefault:"24h"`
	GuardTimeout       time.Duration `env:"STATIONBOOK_GUARD_TIMEOUT" envDefault:"5s"`
	LoginRatePerMinute int           `env:"STATIONBOOK_LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	SecureCookies      bool          `env:"STATIONBOOK_SECURE_COOKIES" envDefault:"false"`
	LogFile            string        `env:"STATIONBOOK_LOG_FILE"`
}

// LoadConfig reads the environment into a validated Config.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate trims string settings and rejects values the server cannot run with.
func (c *Config) Validate() error {
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.DatabasePath = strings.TrimSpace(c.DatabasePath)
	c.MasterKeyHex = strings.TrimSpace(c.MasterKeyHex)
	c.MasterKeyFile = strings.TrimSpace(c.MasterKeyFile)
	c.LogFile = strings.TrimSpace(c.LogFile)

	if c.HTTPAddr == "" {
		return fmt.Errorf("STATIONBOOK_HTTP_ADDR is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("STATIONBOOK_DB_PATH is required")
	}
	if c.MasterKeyHex == "" && c.MasterKeyFile == "" {
		return fmt.Errorf("one of MASTER_KEY_HEX or STATIONBOOK_MASTER_KEY_FILE is required")
	}
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("STATIONBOOK_SESSION_TTL must be at least 1m, got %s", c.SessionTTL)
	}
	if c.GuardTimeout < 0 {
		return fmt.Errorf("STATIONBOOK_GUARD_TIMEOUT must not be negative")
	}
	if c.LoginRatePerMinute <= 0 {
		c.LoginRatePerMinute = 10
	}
	return nil
}
