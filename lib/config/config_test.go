package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/sqlpool/lib/pool"
	"github.com/go-i2p/sqlpool/lib/validation"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Database.DSN = "postgres://localhost/app?sslmode=disable"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendSQL, cfg.Backend)
	assert.Equal(t, DefaultMaxSize, cfg.Pool.MaxSize)
	assert.Equal(t, DefaultIdleTimeout, cfg.Pool.IdleTimeout.Std())
	assert.Equal(t, DefaultValidationTimeout, cfg.Database.ValidationTimeout.Std())
	assert.Equal(t, DefaultAdminListen, cfg.Admin.Listen)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, DefaultFailureThreshold, cfg.BreakerConfig().FailureThreshold)
	assert.Equal(t, DefaultBreakerCooldown, cfg.BreakerConfig().Cooldown)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid sql config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing dsn",
			modify:  func(c *Config) { c.Database.DSN = "" },
			wantErr: true,
		},
		{
			name:    "missing driver",
			modify:  func(c *Config) { c.Database.Driver = "" },
			wantErr: true,
		},
		{
			name: "valid redis config",
			modify: func(c *Config) {
				c.Backend = BackendRedis
				c.Database.DSN = ""
			},
			wantErr: false,
		},
		{
			name: "redis without address",
			modify: func(c *Config) {
				c.Backend = BackendRedis
				c.Redis.Address = ""
			},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Backend = "mongo" },
			wantErr: true,
		},
		{
			name:    "max size zero",
			modify:  func(c *Config) { c.Pool.MaxSize = 0 },
			wantErr: true,
		},
		{
			name:    "min above max",
			modify:  func(c *Config) { c.Pool.MinSize = c.Pool.MaxSize + 1 },
			wantErr: true,
		},
		{
			name:    "negative idle timeout",
			modify:  func(c *Config) { c.Pool.IdleTimeout = Duration(-time.Second) },
			wantErr: true,
		},
		{
			name:    "negative breaker threshold",
			modify:  func(c *Config) { c.Breaker.FailureThreshold = -1 },
			wantErr: true,
		},
		{
			name:    "negative breaker cooldown",
			modify:  func(c *Config) { c.Breaker.Cooldown = Duration(-time.Second) },
			wantErr: true,
		},
		{
			name:    "breaker disabled",
			modify:  func(c *Config) { c.Breaker = BreakerConfig{} },
			wantErr: false,
		},
		{
			name: "admin enabled without listen address",
			modify: func(c *Config) {
				c.Admin.Listen = ""
			},
			wantErr: true,
		},
		{
			name: "admin disabled without listen address",
			modify: func(c *Config) {
				c.Admin.Enabled = false
				c.Admin.Listen = ""
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateReportsEveryField(t *testing.T) {
	cfg := validConfig()
	cfg.Database.DSN = ""
	cfg.Admin.Listen = "localhost"
	cfg.Pool.MinSize = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "database.dsn")
	assert.ErrorContains(t, err, "admin.listen")
	assert.ErrorIs(t, err, validation.ErrRequired)
	assert.ErrorIs(t, err, validation.ErrInvalidFormat)
	assert.ErrorIs(t, err, pool.ErrInvalidConfiguration)
}

func TestConfig_ValidatePoolBoundsWrapsSentinel(t *testing.T) {
	cfg := validConfig()
	cfg.Pool.MaxSize = 0
	assert.True(t, errors.Is(cfg.Validate(), pool.ErrInvalidConfiguration))
}

func TestLoadConfig_NotExist(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlpool.toml")
	data := `
backend = "sql"

[pool]
min_size = 2
max_size = 8
idle_timeout = "90s"

[database]
driver = "postgres"
dsn = "postgres://db/app"
validation_timeout = "500ms"

[breaker]
enabled = true
failure_threshold = 3
cooldown = "1m"

[admin]
enabled = false
listen = ""
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pool.MinSize)
	assert.Equal(t, 8, cfg.Pool.MaxSize)
	assert.Equal(t, 90*time.Second, cfg.Pool.IdleTimeout.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Database.ValidationTimeout.Std())
	assert.Equal(t, "postgres://db/app", cfg.Database.DSN)
	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.BreakerConfig().Cooldown)

	pc := cfg.PoolConfig()
	assert.Equal(t, pool.Config{MinSize: 2, MaxSize: 8, IdleTimeout: 90 * time.Second}, pc)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlpool.yaml")
	data := `
backend: redis
pool:
  min_size: 1
  max_size: 4
  idle_timeout: 1m
redis:
  address: cache:6379
  db: 2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, 4, cfg.Pool.MaxSize)
	assert.Equal(t, time.Minute, cfg.Pool.IdleTimeout.Std())
	assert.Equal(t, "cache:6379", cfg.Redis.Address)
	assert.Equal(t, 2, cfg.Redis.DB)
	// Unset sections keep their defaults.
	assert.Equal(t, DefaultAdminListen, cfg.Admin.Listen)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("backend = ["), 0600))
	_, err := LoadConfig(bad)
	assert.ErrorContains(t, err, "parsing config file")

	badDuration := filepath.Join(dir, "duration.toml")
	require.NoError(t, os.WriteFile(badDuration, []byte("[pool]\nidle_timeout = \"soon\"\n"), 0600))
	_, err = LoadConfig(badDuration)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("backend = \"sql\"\n"), 0600))
	_, err = LoadConfig(invalid)
	assert.ErrorContains(t, err, "invalid config")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	for _, name := range []string{"nested/sqlpool.toml", "nested/sqlpool.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := validConfig()
			cfg.Pool.MinSize = 3
			cfg.Pool.IdleTimeout = Duration(45 * time.Second)

			require.NoError(t, SaveConfig(cfg, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}
