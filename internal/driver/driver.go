// Package driver defines the contract every database backend implements and
// the factory that selects a backend for a connection descriptor.
package driver

import (
	"context"

	"github.com/peternagy/tablemoins/internal/types"
)

// Driver is the operation set shared by every backend.
//
// Connect and Disconnect are idempotent. Every other operation returns
// *core.NotConnectedError until Connect has succeeded.
type Driver interface {
	// Type returns the backend discriminator.
	Type() types.BackendType

	// TestConnection opens a transient connection, releases it on every path
	// and reports whether the backend answered. It never returns an error.
	TestConnection(ctx context.Context) bool

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// ServerInfo reports the server version behind a live handle.
	ServerInfo(ctx context.Context) (types.ServerInfo, error)

	ListDatabases(ctx context.Context) ([]types.DatabaseInfo, error)
	ListSchemas(ctx context.Context, database string) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]types.SchemaObject, error)
	ListColumns(ctx context.Context, schema, table string) ([]types.ColumnInfo, error)

	// PagedRead returns one page of target plus the total number of matches.
	PagedRead(ctx context.Context, target string, opts types.PageOptions) (*types.PageResult, error)
}

// SQLDriver is implemented by the relational backends.
type SQLDriver interface {
	Driver
	ExecuteStatement(ctx context.Context, statement string) (*types.QueryResult, error)
	QuoteIdentifier(name string) string
	QuoteValue(v any) string
}

// KVDriver is implemented by the key-value backend.
type KVDriver interface {
	Driver

	// ExecuteCommand runs one command line. Failures are reported inside the
	// envelope with Status set to error; the result is never nil.
	ExecuteCommand(ctx context.Context, line string) *types.CommandResult

	// ScanKeys performs one SCAN step starting at cursor.
	ScanKeys(ctx context.Context, cursor uint64, pattern string, count int64) (*types.ScanResult, error)

	// GetKey reads a key with the primitive matching its kind.
	GetKey(ctx context.Context, key string) (*types.KeyValue, error)

	// DeleteByPattern removes every key matching pattern and returns the count.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)

	// CountKeys walks the keyspace and counts keys matching pattern.
	CountKeys(ctx context.Context, pattern string) (int64, error)
}
