// Package redis implements the key-value backend on go-redis.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver/tlsconf"
	"github.com/peternagy/tablemoins/internal/types"
)

// DefaultDatabaseCount is reported when the server refuses CONFIG GET.
const DefaultDatabaseCount = 16

// Driver is a Redis handle owning one client pool.
type Driver struct {
	desc types.ConnectionDescriptor
	cfg  config.Config

	mu     sync.RWMutex
	client *goredis.Client
}

// New creates an unconnected Redis driver.
func New(desc types.ConnectionDescriptor, cfg config.Config) *Driver {
	return &Driver{desc: desc, cfg: cfg.Normalize()}
}

// Type implements driver.Driver.
func (d *Driver) Type() types.BackendType { return types.BackendRedis }

func (d *Driver) port() int {
	if d.desc.Port > 0 {
		return d.desc.Port
	}
	return types.BackendRedis.DefaultPort()
}

// DB returns the numeric database index named by the profile (0 when empty).
func (d *Driver) DB() (int, error) {
	if strings.TrimSpace(d.desc.Database) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(d.desc.Database))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid redis database index %q", d.desc.Database)
	}
	return n, nil
}

// Options builds the go-redis client options for the descriptor.
func (d *Driver) Options() (*goredis.Options, error) {
	db, err := d.DB()
	if err != nil {
		return nil, err
	}

	opts := &goredis.Options{
		Addr:            net.JoinHostPort(d.desc.Host, strconv.Itoa(d.port())),
		Username:        d.desc.Username,
		Password:        d.desc.Password,
		DB:              db,
		Protocol:        2,
		DialTimeout:     d.cfg.Timeouts.Connect,
		ReadTimeout:     d.cfg.Timeouts.Statement,
		WriteTimeout:    d.cfg.Timeouts.Statement,
		PoolSize:        d.cfg.Pool.MaxConns,
		MinIdleConns:    d.cfg.Pool.MinConns,
		ConnMaxIdleTime: d.cfg.Timeouts.Idle,
	}

	if d.desc.SSL.Enabled {
		tlsCfg, err := tlsconf.Build(d.desc.SSL, d.desc.Host)
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsCfg
	}
	return opts, nil
}

// TestConnection opens a transient single-connection client and pings it.
func (d *Driver) TestConnection(ctx context.Context) bool {
	opts, err := d.Options()
	if err != nil {
		return false
	}
	opts.PoolSize = 1
	opts.MinIdleConns = 0

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Test)
	defer cancel()

	client := goredis.NewClient(opts)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		debug.LogConnection("Redis test connection failed", map[string]interface{}{"host": d.desc.Host, "error": err.Error()})
		return false
	}
	return true
}

// Connect creates the client and verifies it with PING. Calling Connect on a
// connected driver is a no-op.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return nil
	}

	opts, err := d.Options()
	if err != nil {
		return d.connectionError(core.ReasonConfig, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Connect)
	defer cancel()

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return d.connectionError(ClassifyError(err), err)
	}

	d.client = client
	debug.LogConnection("Redis client opened", map[string]interface{}{"host": d.desc.Host, "db": opts.DB})
	return nil
}

// Disconnect closes the client. It is safe to call on a disconnected driver.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open.
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.client != nil
}

func (d *Driver) getClient() (*goredis.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.client == nil {
		return nil, &core.NotConnectedError{Target: string(types.BackendRedis)}
	}
	return d.client, nil
}

func (d *Driver) connectionError(reason string, err error) error {
	return &core.ConnectionError{
		Backend: string(types.BackendRedis),
		Host:    d.desc.Host,
		Port:    d.port(),
		Reason:  reason,
		Err:     err,
	}
}

// ClassifyError maps a connect failure to a ConnectionError reason.
func ClassifyError(err error) string {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "WRONGPASS"),
		strings.Contains(msg, "invalid password"), strings.Contains(msg, "invalid username-password"):
		return core.ReasonAuth
	case strings.Contains(msg, "invalid DB index"), strings.HasPrefix(msg, "ERR DB index"):
		return core.ReasonConfig
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) || strings.Contains(msg, "tls:") {
		return core.ReasonTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return core.ReasonUnreachable
	}
	return core.ReasonUnknown
}

// ServerInfo reads redis_version from INFO server.
func (d *Driver) ServerInfo(ctx context.Context) (types.ServerInfo, error) {
	client, err := d.getClient()
	if err != nil {
		return types.ServerInfo{}, err
	}
	info := types.ServerInfo{Type: types.BackendRedis}

	raw, err := client.Info(ctx, "server").Result()
	if err != nil {
		return info, fmt.Errorf("failed to read server info: %w", err)
	}
	info.Version = parseInfo(raw)["redis_version"]
	return info, nil
}

// parseInfo turns an INFO reply into a field map.
func parseInfo(raw string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}
	return fields
}
