// Package postgres implements the PostgreSQL backend on a pgx connection pool.
package postgres

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver/sqlutil"
	"github.com/peternagy/tablemoins/internal/driver/tlsconf"
	"github.com/peternagy/tablemoins/internal/types"
)

// DefaultSchema is used when a target or listing does not name a schema.
const DefaultSchema = "public"

// Driver is a PostgreSQL handle owning one pgx pool.
type Driver struct {
	desc types.ConnectionDescriptor
	cfg  config.Config

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// New creates an unconnected PostgreSQL driver.
func New(desc types.ConnectionDescriptor, cfg config.Config) *Driver {
	return &Driver{desc: desc, cfg: cfg.Normalize()}
}

// Type implements driver.Driver.
func (d *Driver) Type() types.BackendType { return types.BackendPostgreSQL }

// ConnString renders the descriptor as a postgres:// URL.
func (d *Driver) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.desc.Host, strconv.Itoa(d.port())),
		Path:   "/" + d.database(),
	}
	if d.desc.Username != "" {
		if d.desc.Password != "" {
			u.User = url.UserPassword(d.desc.Username, d.desc.Password)
		} else {
			u.User = url.User(d.desc.Username)
		}
	}

	q := url.Values{}
	q.Set("sslmode", d.sslMode())
	q.Set("application_name", "tablemoins")
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *Driver) port() int {
	if d.desc.Port > 0 {
		return d.desc.Port
	}
	return types.BackendPostgreSQL.DefaultPort()
}

func (d *Driver) database() string {
	if d.desc.Database != "" {
		return d.desc.Database
	}
	return "postgres"
}

func (d *Driver) sslMode() string {
	if !d.desc.SSL.Enabled {
		return "disable"
	}
	if d.desc.SSL.Mode != "" {
		return d.desc.SSL.Mode
	}
	return "require"
}

// PoolConfig builds the pool configuration: bounded size, connect and idle
// timeouts, and a server-side statement timeout.
func (d *Driver) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(d.ConnString())
	if err != nil {
		return nil, err
	}

	pc.MaxConns = int32(d.cfg.Pool.MaxConns)
	pc.MinConns = int32(d.cfg.Pool.MinConns)
	pc.MaxConnIdleTime = d.cfg.Timeouts.Idle
	pc.ConnConfig.ConnectTimeout = d.cfg.Timeouts.Connect
	pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(d.cfg.Timeouts.Statement.Milliseconds(), 10)

	if d.desc.SSL.Enabled && (d.desc.SSL.CA != "" || d.desc.SSL.Cert != "") {
		tlsCfg, err := tlsconf.Build(d.desc.SSL, d.desc.Host)
		if err != nil {
			return nil, err
		}
		pc.ConnConfig.TLSConfig = tlsCfg
		pc.ConnConfig.Fallbacks = nil
	}

	return pc, nil
}

// TestConnection opens a single transient connection and pings it.
func (d *Driver) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Test)
	defer cancel()

	pc, err := d.PoolConfig()
	if err != nil {
		return false
	}

	conn, err := pgx.ConnectConfig(ctx, pc.ConnConfig)
	if err != nil {
		debug.LogConnection("PostgreSQL test connection failed", map[string]interface{}{"host": d.desc.Host, "error": err.Error()})
		return false
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		_ = conn.Close(closeCtx)
	}()

	return conn.Ping(ctx) == nil
}

// Connect creates the pool and verifies it with a ping. Calling Connect on a
// connected driver is a no-op.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		return nil
	}

	pc, err := d.PoolConfig()
	if err != nil {
		return d.connectionError(core.ReasonConfig, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Connect)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return d.connectionError(core.ReasonConfig, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return d.connectionError(ClassifyError(err), err)
	}

	d.pool = pool
	debug.LogConnection("PostgreSQL pool opened", map[string]interface{}{"host": d.desc.Host, "maxConns": pc.MaxConns})
	return nil
}

// Disconnect closes the pool. It is safe to call on a disconnected driver.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		return nil
	}
	d.pool.Close()
	d.pool = nil
	return nil
}

// IsConnected reports whether the pool is open.
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pool != nil
}

func (d *Driver) getPool() (*pgxpool.Pool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.pool == nil {
		return nil, &core.NotConnectedError{Target: string(types.BackendPostgreSQL)}
	}
	return d.pool, nil
}

func (d *Driver) connectionError(reason string, err error) error {
	return &core.ConnectionError{
		Backend: string(types.BackendPostgreSQL),
		Host:    d.desc.Host,
		Port:    d.port(),
		Reason:  reason,
		Err:     err,
	}
}

// ClassifyError maps a connect failure to a ConnectionError reason.
func ClassifyError(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.InvalidPassword,
			pgErr.Code == pgerrcode.InvalidAuthorizationSpecification:
			return core.ReasonAuth
		case pgErr.Code == pgerrcode.InvalidCatalogName:
			return core.ReasonConfig
		case pgerrcode.IsConnectionException(pgErr.Code):
			return core.ReasonUnreachable
		}
		return core.ReasonUnknown
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) || strings.Contains(err.Error(), "tls:") {
		return core.ReasonTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return core.ReasonUnreachable
	}
	return core.ReasonUnknown
}

// ServerInfo returns the server version string.
func (d *Driver) ServerInfo(ctx context.Context) (types.ServerInfo, error) {
	pool, err := d.getPool()
	if err != nil {
		return types.ServerInfo{}, err
	}
	info := types.ServerInfo{Type: types.BackendPostgreSQL}
	if err := pool.QueryRow(ctx, "SHOW server_version").Scan(&info.Version); err != nil {
		return info, fmt.Errorf("failed to read server version: %w", err)
	}
	return info, nil
}

// QuoteIdentifier implements driver.SQLDriver.
func (d *Driver) QuoteIdentifier(name string) string {
	return sqlutil.Postgres.QuoteIdentifier(name)
}

// QuoteValue implements driver.SQLDriver.
func (d *Driver) QuoteValue(v any) string {
	return sqlutil.Postgres.QuoteValue(v)
}

// SplitTarget splits "schema.table" into its parts. A bare name is placed in
// DefaultSchema.
func SplitTarget(target string) (schema, table string) {
	if i := strings.IndexByte(target, '.'); i > 0 && i < len(target)-1 {
		return target[:i], target[i+1:]
	}
	return DefaultSchema, target
}
