package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 10, cfg.Pool.MaxConns)
	assert.Equal(t, 100, cfg.KV.DeleteBatchSize)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestNormalize_ClampsPoolCeiling(t *testing.T) {
	cfg := Default()
	cfg.Pool.MaxConns = 50
	cfg.Pool.MinConns = 20
	cfg.Timeouts.Statement = 0
	cfg.KV.ScanCount = -1

	got := cfg.Normalize()

	assert.Equal(t, 10, got.Pool.MaxConns)
	assert.Equal(t, 0, got.Pool.MinConns)
	assert.Equal(t, 30*time.Second, got.Timeouts.Statement)
	assert.Equal(t, int64(100), got.KV.ScanCount)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TABLEMOINS_CONFIG_DIR", dir)
	t.Setenv("TABLEMOINS_CONNECT_TIMEOUT", "5s")
	t.Setenv("TABLEMOINS_POOL_MAX", "4")
	t.Setenv("TABLEMOINS_TEST_TIMEOUT", "not-a-duration")

	cfg := Load()

	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 4, cfg.Pool.MaxConns)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Test)
}
