// Package config loads and validates sqlpool configuration. Files are TOML
// by default; a .yaml or .yml extension selects YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/go-i2p/sqlpool/lib/pool"
	"github.com/go-i2p/sqlpool/lib/resilience"
	"github.com/go-i2p/sqlpool/lib/validation"
)

// Default configuration values
const (
	DefaultBackend           = BackendSQL
	DefaultDriver            = "postgres"
	DefaultMinSize           = 0
	DefaultMaxSize           = 10
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultValidationTimeout = 2 * time.Second
	DefaultRedisAddress      = "127.0.0.1:6379"
	DefaultAdminListen       = "127.0.0.1:8080"
	DefaultFailureThreshold  = 5
	DefaultBreakerCooldown   = 10 * time.Second
)

// Backend names the kind of resource being pooled.
type Backend string

const (
	BackendSQL   Backend = "sql"
	BackendRedis Backend = "redis"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all configuration for a sqlpool process.
type Config struct {
	Backend  Backend        `toml:"backend" yaml:"backend"`
	Pool     PoolConfig     `toml:"pool" yaml:"pool"`
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	Breaker  BreakerConfig  `toml:"breaker" yaml:"breaker"`
	Admin    AdminConfig    `toml:"admin" yaml:"admin"`
}

// PoolConfig contains the pool bounds.
type PoolConfig struct {
	// MinSize is the number of resources opened at startup and kept open
	MinSize int `toml:"min_size" yaml:"min_size"`
	// MaxSize is the hard limit on open resources
	MaxSize int `toml:"max_size" yaml:"max_size"`
	// IdleTimeout releases leases that go unused this long; zero disables it
	IdleTimeout Duration `toml:"idle_timeout" yaml:"idle_timeout"`
}

// DatabaseConfig selects the database/sql driver and data source.
type DatabaseConfig struct {
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
	// ValidationTimeout bounds the ping used to check a pooled connection
	ValidationTimeout Duration `toml:"validation_timeout" yaml:"validation_timeout"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Address  string `toml:"address" yaml:"address"`
	Username string `toml:"username,omitempty" yaml:"username,omitempty"`
	Password string `toml:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `toml:"db" yaml:"db"`
}

// BreakerConfig controls the circuit breaker in front of the dialer.
type BreakerConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// FailureThreshold is the number of consecutive dial failures that
	// open the breaker
	FailureThreshold int `toml:"failure_threshold" yaml:"failure_threshold"`
	// Cooldown is how long an open breaker rejects dials before probing
	Cooldown Duration `toml:"cooldown" yaml:"cooldown"`
}

// AdminConfig contains admin HTTP server settings.
type AdminConfig struct {
	// Enabled controls whether the admin server is started
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Listen is the address to bind the admin server to
	Listen string `toml:"listen" yaml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: DefaultBackend,
		Pool: PoolConfig{
			MinSize:     DefaultMinSize,
			MaxSize:     DefaultMaxSize,
			IdleTimeout: Duration(DefaultIdleTimeout),
		},
		Database: DatabaseConfig{
			Driver:            DefaultDriver,
			ValidationTimeout: Duration(DefaultValidationTimeout),
		},
		Redis: RedisConfig{
			Address: DefaultRedisAddress,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			Cooldown:         Duration(DefaultBreakerCooldown),
		},
		Admin: AdminConfig{
			Enabled: true,
			Listen:  DefaultAdminListen,
		},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads configuration from a file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a file in the format its
// extension selects. It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors. Every problem found is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs validation.Errors

	errs.Add(validation.OneOf("backend", string(c.Backend), string(BackendSQL), string(BackendRedis)))
	switch c.Backend {
	case BackendSQL:
		errs.Add(validation.Required("database.driver", c.Database.Driver))
		errs.Add(validation.Required("database.dsn", c.Database.DSN))
	case BackendRedis:
		errs.Add(validation.HostPort("redis.address", c.Redis.Address))
		errs.Add(validation.NonNegative("redis.db", c.Redis.DB))
	}
	errs.Add(validation.NonNegativeDuration("database.validation_timeout", c.Database.ValidationTimeout.Std()))
	errs.Add(validation.NonNegative("breaker.failure_threshold", c.Breaker.FailureThreshold))
	errs.Add(validation.NonNegativeDuration("breaker.cooldown", c.Breaker.Cooldown.Std()))
	if c.Admin.Enabled {
		errs.Add(validation.HostPort("admin.listen", c.Admin.Listen))
	}
	if err := c.PoolConfig().Validate(); err != nil {
		errs.Add(fmt.Errorf("pool: %w", err))
	}

	return errs.Err()
}

// PoolConfig returns the pool settings in the form pool.New takes.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		MinSize:     c.Pool.MinSize,
		MaxSize:     c.Pool.MaxSize,
		IdleTimeout: c.Pool.IdleTimeout.Std(),
	}
}

// BreakerConfig returns the breaker settings in the form resilience.New
// takes. Zero fields fall back to the resilience defaults.
func (c *Config) BreakerConfig() resilience.Config {
	return resilience.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		Cooldown:         c.Breaker.Cooldown.Std(),
	}
}
