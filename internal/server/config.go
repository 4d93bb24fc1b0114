// Package server provides configuration loading for the relay, with
// environment-driven overrides and startup-time validation.
package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the relay configuration. All fields are populated from the
// environment with the defaults below; invalid values fail startup instead
// of being silently corrected.
type Config struct {
	Host             string        `envconfig:"HOST" default:"0.0.0.0"`
	Port             int           `envconfig:"PORT" default:"3000"`
	MaxMessageLength int           `envconfig:"MAX_MESSAGE_LENGTH" default:"500"`
	DBPath           string        `envconfig:"CHAT_DB_PATH" default:"chat.db"`
	PublicDir        string        `envconfig:"PUBLIC_DIR" default:"public"`
	AllowedOrigins   []string      `envconfig:"ALLOWED_ORIGINS"`
	RateLimitBurst   int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	RateLimitRefill  time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	portExplicit bool
}

// LoadConfig reads configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.portExplicit = os.Getenv("PORT") != ""

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaultOrigins(cfg.Port)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT value %d: expected an integer between 0 and 65535", c.Port)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("invalid MAX_MESSAGE_LENGTH value %d: expected a positive integer", c.MaxMessageLength)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_BURST value %d: expected a positive integer", c.RateLimitBurst)
	}
	if c.RateLimitRefill <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_REFILL_INTERVAL value %s: expected a positive duration", c.RateLimitRefill)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid SHUTDOWN_TIMEOUT value %s: expected a positive duration", c.ShutdownTimeout)
	}
	return nil
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PortExplicit reports whether PORT was set in the environment. An explicit
// port that cannot bind is fatal; the default port may fall back to an
// ephemeral one.
func (c *Config) PortExplicit() bool {
	return c.portExplicit
}

// defaultOrigins allows the page the relay itself serves to connect when no
// allow-list is configured.
func defaultOrigins(port int) []string {
	return []string{
		fmt.Sprintf("http://localhost:%d", port),
		fmt.Sprintf("http://127.0.0.1:%d", port),
	}
}
