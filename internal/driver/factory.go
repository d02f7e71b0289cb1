package driver

import (
	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/driver/mysql"
	"github.com/peternagy/tablemoins/internal/driver/postgres"
	"github.com/peternagy/tablemoins/internal/driver/redis"
	"github.com/peternagy/tablemoins/internal/types"
)

// Factory builds an unconnected driver for a descriptor.
type Factory func(desc types.ConnectionDescriptor, cfg config.Config) (Driver, error)

// New returns a fresh driver for desc. Nothing is cached: the caller owns the
// returned driver and must Disconnect it.
func New(desc types.ConnectionDescriptor, cfg config.Config) (Driver, error) {
	switch desc.Type {
	case types.BackendPostgreSQL:
		return postgres.New(desc, cfg), nil
	case types.BackendMySQL:
		return mysql.New(desc, cfg), nil
	case types.BackendRedis:
		return redis.New(desc, cfg), nil
	default:
		return nil, &core.UnsupportedBackendError{Type: string(desc.Type)}
	}
}

// Compile-time checks that each backend satisfies its variant.
var (
	_ SQLDriver = (*postgres.Driver)(nil)
	_ SQLDriver = (*mysql.Driver)(nil)
	_ KVDriver  = (*redis.Driver)(nil)
)
