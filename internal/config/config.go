package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds environment-based settings for the setup flow. The
// durable hub record lives in the YAML file handled by internal/state.
type Config struct {
	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// ConfigFile is the YAML record path used when -c is not given.
	ConfigFile string `env:"HALCYON_CONFIG" envDefault:"config.yml"`

	// CallbackAddr is the loopback address the redirect listener binds.
	CallbackAddr string `env:"HALCYON_CALLBACK_ADDR" envDefault:"127.0.0.1:8000"`

	// ClientID is sent to the hub as the OAuth client_id. The hub expects
	// the redirect URI to share its origin, so it defaults to
	// http://<CallbackAddr>.
	ClientID string `env:"HALCYON_CLIENT_ID"`

	// Zero disables the corresponding timeout and waits indefinitely.
	CallbackTimeout time.Duration `env:"HALCYON_CALLBACK_TIMEOUT" envDefault:"10m"`
	MessageTimeout  time.Duration `env:"HALCYON_MESSAGE_TIMEOUT" envDefault:"60s"`
	HTTPTimeout     time.Duration `env:"HALCYON_HTTP_TIMEOUT" envDefault:"30s"`

	// OpenBrowser launches the system browser on the authorize URL in
	// addition to printing it.
	OpenBrowser bool `env:"HALCYON_OPEN_BROWSER" envDefault:"false"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "http://" + cfg.CallbackAddr
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	host, port, err := net.SplitHostPort(c.CallbackAddr)
	if err != nil {
		return fmt.Errorf("HALCYON_CALLBACK_ADDR %q is not host:port: %w", c.CallbackAddr, err)
	}

	if host == "" || port == "" || port == "0" {
		return fmt.Errorf("HALCYON_CALLBACK_ADDR %q needs an explicit host and port", c.CallbackAddr)
	}

	if c.ConfigFile == "" {
		return fmt.Errorf("HALCYON_CONFIG must not be empty")
	}

	if c.CallbackTimeout < 0 || c.MessageTimeout < 0 || c.HTTPTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
