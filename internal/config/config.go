// Package config holds runtime settings for drivers, storage and logging.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dracory/env"
)

// TimeoutConfig bounds network operations.
type TimeoutConfig struct {
	// Connect bounds connection establishment. Default: 30s
	Connect time.Duration

	// Statement bounds a single SQL statement or key-value command. Default: 30s
	Statement time.Duration

	// Test bounds a connection test probe. Default: 10s
	Test time.Duration

	// Idle is how long a pooled connection may sit unused. Default: 5m
	Idle time.Duration
}

// PoolConfig sizes each driver's native pool.
type PoolConfig struct {
	MaxConns int
	MinConns int
}

// KVConfig tunes key-value cursor walks.
type KVConfig struct {
	ScanCount       int64 // COUNT hint per SCAN call
	DeleteBatchSize int   // keys per DEL request
	MaxWalkKeys     int   // cap on keys synthesized as a table list
}

// Config is the application configuration.
type Config struct {
	ConfigDir string
	DBPath    string
	LogLevel  string
	LogFile   string
	Timeouts  TimeoutConfig
	Pool      PoolConfig
	KV        KVConfig
}

// Default returns the built-in configuration.
func Default() Config {
	dir := DefaultConfigDir()
	return Config{
		ConfigDir: dir,
		DBPath:    filepath.Join(dir, "tablemoins.db"),
		LogLevel:  "info",
		LogFile:   filepath.Join(dir, "tablemoins.log"),
		Timeouts: TimeoutConfig{
			Connect:   30 * time.Second,
			Statement: 30 * time.Second,
			Test:      10 * time.Second,
			Idle:      5 * time.Minute,
		},
		Pool: PoolConfig{
			MaxConns: 10,
			MinConns: 0,
		},
		KV: KVConfig{
			ScanCount:       100,
			DeleteBatchSize: 100,
			MaxWalkKeys:     10000,
		},
	}
}

// Load reads overrides from the environment (and an optional .env file)
// on top of Default.
func Load() Config {
	env.Load(".env")

	cfg := Default()
	cfg.ConfigDir = env.GetStringOrDefault("TABLEMOINS_CONFIG_DIR", cfg.ConfigDir)
	cfg.DBPath = env.GetStringOrDefault("TABLEMOINS_DB_PATH", filepath.Join(cfg.ConfigDir, "tablemoins.db"))
	cfg.LogLevel = env.GetStringOrDefault("TABLEMOINS_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = env.GetStringOrDefault("TABLEMOINS_LOG_FILE", filepath.Join(cfg.ConfigDir, "tablemoins.log"))

	cfg.Timeouts.Connect = durationOrDefault("TABLEMOINS_CONNECT_TIMEOUT", cfg.Timeouts.Connect)
	cfg.Timeouts.Statement = durationOrDefault("TABLEMOINS_STATEMENT_TIMEOUT", cfg.Timeouts.Statement)
	cfg.Timeouts.Test = durationOrDefault("TABLEMOINS_TEST_TIMEOUT", cfg.Timeouts.Test)
	cfg.Timeouts.Idle = durationOrDefault("TABLEMOINS_IDLE_TIMEOUT", cfg.Timeouts.Idle)

	cfg.Pool.MaxConns = env.GetIntOrDefault("TABLEMOINS_POOL_MAX", cfg.Pool.MaxConns)
	cfg.KV.ScanCount = int64(env.GetIntOrDefault("TABLEMOINS_SCAN_COUNT", int(cfg.KV.ScanCount)))
	cfg.KV.DeleteBatchSize = env.GetIntOrDefault("TABLEMOINS_DELETE_BATCH", cfg.KV.DeleteBatchSize)

	return cfg.Normalize()
}

// Normalize clamps out-of-range values back to defaults.
func (c Config) Normalize() Config {
	def := Default()
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = def.Timeouts.Connect
	}
	if c.Timeouts.Statement <= 0 {
		c.Timeouts.Statement = def.Timeouts.Statement
	}
	if c.Timeouts.Test <= 0 {
		c.Timeouts.Test = def.Timeouts.Test
	}
	if c.Timeouts.Idle <= 0 {
		c.Timeouts.Idle = def.Timeouts.Idle
	}
	// Pools never exceed ten connections.
	if c.Pool.MaxConns <= 0 || c.Pool.MaxConns > def.Pool.MaxConns {
		c.Pool.MaxConns = def.Pool.MaxConns
	}
	if c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		c.Pool.MinConns = 0
	}
	if c.KV.ScanCount <= 0 {
		c.KV.ScanCount = def.KV.ScanCount
	}
	if c.KV.DeleteBatchSize <= 0 {
		c.KV.DeleteBatchSize = def.KV.DeleteBatchSize
	}
	if c.KV.MaxWalkKeys <= 0 {
		c.KV.MaxWalkKeys = def.KV.MaxWalkKeys
	}
	return c
}

// DefaultConfigDir returns the per-user config directory for tablemoins.
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}
	return filepath.Join(configDir, "tablemoins")
}

// EnsureConfigDir creates the config directory if missing.
func (c Config) EnsureConfigDir() error {
	return os.MkdirAll(c.ConfigDir, 0o700)
}

func durationOrDefault(key string, def time.Duration) time.Duration {
	raw := env.GetStringOrDefault(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
