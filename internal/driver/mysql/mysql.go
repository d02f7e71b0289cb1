// Package mysql implements the MySQL backend on a bounded database/sql pool.
package mysql

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver/sqlutil"
	"github.com/peternagy/tablemoins/internal/driver/tlsconf"
	"github.com/peternagy/tablemoins/internal/types"
)

// MySQL server error numbers used for classification.
const (
	errAccessDenied     = 1045
	errDBAccessDenied   = 1044
	errBadDB            = 1049
	errHostNotPrivilged = 1130
)

// Driver is a MySQL handle owning one database/sql pool.
type Driver struct {
	desc types.ConnectionDescriptor
	cfg  config.Config

	// openDB builds a pool; replaced in tests.
	openDB func() (*sql.DB, error)

	mu sync.RWMutex
	db *sql.DB
}

// New creates an unconnected MySQL driver.
func New(desc types.ConnectionDescriptor, cfg config.Config) *Driver {
	d := &Driver{desc: desc, cfg: cfg.Normalize()}
	d.openDB = d.open
	return d
}

// Type implements driver.Driver.
func (d *Driver) Type() types.BackendType { return types.BackendMySQL }

func (d *Driver) port() int {
	if d.desc.Port > 0 {
		return d.desc.Port
	}
	return types.BackendMySQL.DefaultPort()
}

// MySQLConfig builds the go-sql-driver configuration for the descriptor.
func (d *Driver) MySQLConfig() (*gomysql.Config, error) {
	mc := gomysql.NewConfig()
	mc.User = d.desc.Username
	mc.Passwd = d.desc.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(d.desc.Host, strconv.Itoa(d.port()))
	mc.DBName = d.desc.Database
	mc.ParseTime = true
	mc.MultiStatements = false
	mc.Timeout = d.cfg.Timeouts.Connect
	mc.ReadTimeout = d.cfg.Timeouts.Statement
	mc.WriteTimeout = d.cfg.Timeouts.Statement
	mc.Params = map[string]string{"charset": "utf8mb4"}

	if d.desc.SSL.Enabled {
		tlsCfg, err := tlsconf.Build(d.desc.SSL, d.desc.Host)
		if err != nil {
			return nil, err
		}
		mc.TLS = tlsCfg
	}
	return mc, nil
}

func (d *Driver) open() (*sql.DB, error) {
	mc, err := d.MySQLConfig()
	if err != nil {
		return nil, err
	}
	connector, err := gomysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(d.cfg.Pool.MaxConns)
	db.SetMaxIdleConns(d.cfg.Pool.MaxConns)
	db.SetConnMaxIdleTime(d.cfg.Timeouts.Idle)
	return db, nil
}

// TestConnection opens a transient single-connection pool and pings it.
func (d *Driver) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Test)
	defer cancel()

	db, err := d.openDB()
	if err != nil {
		return false
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		debug.LogConnection("MySQL test connection failed", map[string]interface{}{"host": d.desc.Host, "error": err.Error()})
		return false
	}
	return true
}

// Connect opens the pool and verifies it with a ping. Calling Connect on a
// connected driver is a no-op.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return nil
	}

	db, err := d.openDB()
	if err != nil {
		return d.connectionError(core.ReasonConfig, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeouts.Connect)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return d.connectionError(ClassifyError(err), err)
	}

	d.db = db
	debug.LogConnection("MySQL pool opened", map[string]interface{}{"host": d.desc.Host, "maxConns": d.cfg.Pool.MaxConns})
	return nil
}

// Disconnect closes the pool. It is safe to call on a disconnected driver.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("failed to close mysql pool: %w", err)
	}
	return nil
}

// IsConnected reports whether the pool is open.
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db != nil
}

func (d *Driver) getDB() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, &core.NotConnectedError{Target: string(types.BackendMySQL)}
	}
	return d.db, nil
}

func (d *Driver) connectionError(reason string, err error) error {
	return &core.ConnectionError{
		Backend: string(types.BackendMySQL),
		Host:    d.desc.Host,
		Port:    d.port(),
		Reason:  reason,
		Err:     err,
	}
}

// ClassifyError maps a connect failure to a ConnectionError reason.
func ClassifyError(err error) string {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errAccessDenied, errDBAccessDenied, errHostNotPrivilged:
			return core.ReasonAuth
		case errBadDB:
			return core.ReasonConfig
		}
		return core.ReasonUnknown
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) || strings.Contains(err.Error(), "tls:") {
		return core.ReasonTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gomysql.ErrInvalidConn) {
		return core.ReasonUnreachable
	}
	return core.ReasonUnknown
}

// ServerInfo returns the server version string.
func (d *Driver) ServerInfo(ctx context.Context) (types.ServerInfo, error) {
	db, err := d.getDB()
	if err != nil {
		return types.ServerInfo{}, err
	}
	info := types.ServerInfo{Type: types.BackendMySQL}
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&info.Version); err != nil {
		return info, fmt.Errorf("failed to read server version: %w", err)
	}
	return info, nil
}

// QuoteIdentifier implements driver.SQLDriver.
func (d *Driver) QuoteIdentifier(name string) string {
	return sqlutil.MySQL.QuoteIdentifier(name)
}

// QuoteValue implements driver.SQLDriver.
func (d *Driver) QuoteValue(v any) string {
	return sqlutil.MySQL.QuoteValue(v)
}

// SplitTarget splits "database.table". A bare name falls back to the
// descriptor's database.
func (d *Driver) SplitTarget(target string) (schema, table string) {
	if i := strings.IndexByte(target, '.'); i > 0 && i < len(target)-1 {
		return target[:i], target[i+1:]
	}
	return d.desc.Database, target
}
