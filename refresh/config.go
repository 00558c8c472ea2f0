package refresh

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	// DefaultMaxRetries is the default per-request retry budget.
	DefaultMaxRetries = 1

	// DefaultRefreshTimeout bounds a single refresh round.
	DefaultRefreshTimeout = 30 * time.Second
)

// DefaultStatusCodes returns the response status codes that trigger a
// refresh when nothing else is configured.
func DefaultStatusCodes() []int {
	return []int{http.StatusUnauthorized}
}

// Config is the serialisable part of the coordinator configuration.
// The zero value is usable; getters apply defaults.
type Config struct {
	// CombineSignals merges the caller's own cancellation with the
	// coordinator's epoch. When false only the epoch can cancel a request.
	CombineSignals bool `yaml:"combine_signals" json:"combine_signals"`

	// StatusCodes lists response codes that warrant refresh-and-retry.
	// Default is [401].
	StatusCodes []int `yaml:"status_codes" json:"status_codes"`

	// MaxRetries is the per-request retry budget. Nil means the default (1).
	MaxRetries *int `yaml:"max_retries" json:"max_retries"`

	// RefreshTimeout bounds one call to the refresh handler.
	// Default is 30s.
	RefreshTimeout time.Duration `yaml:"refresh_timeout" json:"refresh_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	retries := DefaultMaxRetries
	return &Config{
		StatusCodes:    DefaultStatusCodes(),
		MaxRetries:     &retries,
		RefreshTimeout: DefaultRefreshTimeout,
	}
}

// GetStatusCodes returns the effective status codes.
func (c *Config) GetStatusCodes() []int {
	if c == nil || len(c.StatusCodes) == 0 {
		return DefaultStatusCodes()
	}
	return c.StatusCodes
}

// GetMaxRetries returns the effective retry budget.
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// GetRefreshTimeout returns the effective refresh timeout.
func (c *Config) GetRefreshTimeout() time.Duration {
	if c == nil || c.RefreshTimeout <= 0 {
		return DefaultRefreshTimeout
	}
	return c.RefreshTimeout
}

// Validate checks the configuration for values the coordinator cannot use.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative, got %d", ErrInvalidConfig, *c.MaxRetries)
	}
	if c.RefreshTimeout < 0 {
		return fmt.Errorf("%w: refresh_timeout must not be negative, got %s", ErrInvalidConfig, c.RefreshTimeout)
	}
	for _, code := range c.StatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("%w: status code %d out of range", ErrInvalidConfig, code)
		}
	}
	return nil
}

// ParseConfig decodes a YAML document into a validated Config.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("refresh: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the application
	if err != nil {
		return nil, fmt.Errorf("refresh: read config: %w", err)
	}
	return ParseConfig(data)
}
