// Package types contains shared type definitions used across the tablemoins application.
package types

import "time"

// =============================================================================
// Backend Types
// =============================================================================

// BackendType discriminates the database engine behind a connection profile.
type BackendType string

const (
	BackendPostgreSQL BackendType = "postgresql"
	BackendMySQL      BackendType = "mysql"
	BackendRedis      BackendType = "redis"

	// Reserved in the profile store, no driver yet.
	BackendSQLite  BackendType = "sqlite"
	BackendMongoDB BackendType = "mongodb"
)

// ImplementedBackends lists the backend types a driver exists for.
var ImplementedBackends = []BackendType{BackendPostgreSQL, BackendMySQL, BackendRedis}

// StorableBackends lists every type the profile store accepts.
var StorableBackends = []BackendType{BackendPostgreSQL, BackendMySQL, BackendRedis, BackendSQLite, BackendMongoDB}

// IsRelational reports whether the backend speaks SQL.
func (t BackendType) IsRelational() bool {
	return t == BackendPostgreSQL || t == BackendMySQL || t == BackendSQLite
}

// DefaultPort returns the conventional port for the backend, or 0.
func (t BackendType) DefaultPort() int {
	switch t {
	case BackendPostgreSQL:
		return 5432
	case BackendMySQL:
		return 3306
	case BackendRedis:
		return 6379
	case BackendMongoDB:
		return 27017
	}
	return 0
}

// =============================================================================
// Connection Profile Types
// =============================================================================

// SSLConfig holds TLS material for a connection.
type SSLConfig struct {
	Enabled            bool   `json:"enabled"`
	Mode               string `json:"mode,omitempty"` // postgres sslmode: disable, require, verify-ca, verify-full
	CA                 string `json:"ca,omitempty"`   // PEM encoded
	Cert               string `json:"cert,omitempty"` // PEM encoded
	Key                string `json:"key,omitempty"`  // PEM encoded
	RejectUnauthorized bool   `json:"rejectUnauthorized"`
}

// ConnectionProfile is a persisted connection descriptor.
// Password holds ciphertext whenever the profile comes from the store.
type ConnectionProfile struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Type            BackendType `json:"type"`
	Host            string      `json:"host"`
	Port            int         `json:"port"`
	Username        string      `json:"username,omitempty"`
	Password        string      `json:"password,omitempty"`
	Database        string      `json:"database,omitempty"`
	SSL             SSLConfig   `json:"ssl"`
	Group           string      `json:"group,omitempty"`
	Color           string      `json:"color"`
	IsActive        bool        `json:"isActive"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	LastConnectedAt time.Time   `json:"lastConnectedAt,omitempty"`
}

// ConnectionDescriptor is the decrypted form of a profile handed to a driver.
type ConnectionDescriptor struct {
	ProfileID string
	Name      string
	Type      BackendType
	Host      string
	Port      int
	Username  string
	Password  string
	Database  string
	SSL       SSLConfig
}

// Descriptor converts a profile into a descriptor carrying the given plaintext password.
func (p ConnectionProfile) Descriptor(password string) ConnectionDescriptor {
	return ConnectionDescriptor{
		ProfileID: p.ID,
		Name:      p.Name,
		Type:      p.Type,
		Host:      p.Host,
		Port:      p.Port,
		Username:  p.Username,
		Password:  password,
		Database:  p.Database,
		SSL:       p.SSL,
	}
}

// =============================================================================
// Tab Types
// =============================================================================

// TabState is the lifecycle state of a tab.
type TabState string

const (
	TabCreated      TabState = "created"
	TabConnecting   TabState = "connecting"
	TabConnected    TabState = "connected"
	TabDisconnected TabState = "disconnected"
	TabClosed       TabState = "closed"
)

// TabInfo is a snapshot of one tab.
type TabInfo struct {
	ID          string      `json:"id"`
	ProfileID   string      `json:"profileId"`
	ProfileName string      `json:"profileName"`
	Type        BackendType `json:"type"`
	State       TabState    `json:"state"`
	IsConnected bool        `json:"isConnected"`
	OpenedAt    time.Time   `json:"openedAt"`
	ConnectedAt time.Time   `json:"connectedAt,omitempty"`
}

// ServerInfo describes the server behind a live handle.
type ServerInfo struct {
	Type    BackendType `json:"type"`
	Version string      `json:"version"`
}

// =============================================================================
// Introspection Types
// =============================================================================

// DatabaseInfo describes a database (or Redis db index).
type DatabaseInfo struct {
	Name string `json:"name"`
	Keys int64  `json:"keys,omitempty"` // Redis only
}

// SchemaObject describes a table, view or (for key-value backends) a key.
type SchemaObject struct {
	Name    string `json:"name"`
	Schema  string `json:"schema,omitempty"`
	Type    string `json:"type"` // "table", "view", "key"
	Rows    int64  `json:"rows,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// ColumnInfo describes a table column.
type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"dataType"`   // canonical vocabulary
	NativeType   string `json:"nativeType"` // as reported by the backend
	Nullable     bool   `json:"nullable"`
	Default      string `json:"default,omitempty"`
	IsPrimaryKey bool   `json:"isPrimaryKey"`
	Position     int    `json:"position"`
}

// ColumnMeta describes a column in a result set.
type ColumnMeta struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

// =============================================================================
// Query Types
// =============================================================================

// SortSpec orders a paged read.
type SortSpec struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// PageOptions specifies parameters for a paged read.
type PageOptions struct {
	Filter string    `json:"filter"` // raw WHERE expression (relational) or MATCH pattern (key-value)
	Sort   *SortSpec `json:"sort,omitempty"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// PageResult is one page of rows plus the total matching count.
type PageResult struct {
	Columns   []ColumnMeta `json:"columns"`
	Rows      [][]any      `json:"rows"`
	Total     int64        `json:"total"`
	Limit     int          `json:"limit"`
	Offset    int          `json:"offset"`
	ElapsedMs int64        `json:"elapsedMs"`
}

// QueryResult contains the result of a SQL statement.
type QueryResult struct {
	Statement    string       `json:"statement"`
	Columns      []ColumnMeta `json:"columns"`
	Rows         [][]any      `json:"rows"`
	RowsAffected int64        `json:"rowsAffected"`
	ElapsedMs    int64        `json:"elapsedMs"`
}

// =============================================================================
// Key-Value Types
// =============================================================================

// KeyKind is the intrinsic value kind of a key.
type KeyKind string

const (
	KindString KeyKind = "string"
	KindHash   KeyKind = "hash"
	KindList   KeyKind = "list"
	KindSet    KeyKind = "set"
	KindZSet   KeyKind = "zset"
	KindStream KeyKind = "stream"
	KindNone   KeyKind = "none"
)

// KeyEntry describes one key without its value.
type KeyEntry struct {
	Key  string  `json:"key"`
	Kind KeyKind `json:"kind"`
	TTL  int64   `json:"ttl"`  // seconds; -1 no expiry, -2 missing
	Size int64   `json:"size"` // string length or member count
}

// KeyValue is a key together with its decoded value.
type KeyValue struct {
	KeyEntry
	Value any `json:"value"`
}

// ZMember is one member of a sorted set.
type ZMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// ScanResult is one batch of a cursor-based key scan.
type ScanResult struct {
	Keys    []KeyEntry `json:"keys"`
	Cursor  uint64     `json:"cursor"`
	HasMore bool       `json:"hasMore"`
}

// CommandStatus is the outcome of a key-value command.
type CommandStatus string

const (
	CommandSuccess CommandStatus = "success"
	CommandError   CommandStatus = "error"
)

// CommandResult is the normalized envelope returned for every key-value command.
type CommandResult struct {
	Command      string        `json:"command"`
	Result       any           `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	Status       CommandStatus `json:"status"`
	ElapsedMs    int64         `json:"elapsedMs"`
	AffectedKeys []string      `json:"affectedKeys,omitempty"`
}

// =============================================================================
// Export Types
// =============================================================================

// CSVExportOptions configures a table export.
type CSVExportOptions struct {
	Delimiter     string    `json:"delimiter"` // single character, default ","
	Filter        string    `json:"filter"`
	Sort          *SortSpec `json:"sort,omitempty"`
	IncludeHeader bool      `json:"includeHeader"`
	FlattenArrays bool      `json:"flattenArrays"` // join list values with ";" instead of JSON
	FilePath      string    `json:"filePath"`      // empty opens a save dialog
}

// ExportProgress reports how far an export has come.
type ExportProgress struct {
	ExportID string `json:"exportId"`
	Target   string `json:"target"`
	Phase    string `json:"phase"` // "writing", "done", "cancelled"
	Rows     int64  `json:"rows"`
	Total    int64  `json:"total"`
}

// =============================================================================
// Import Types
// =============================================================================

// CSVImportOptions configures a CSV import into a relational table.
type CSVImportOptions struct {
	FilePath  string   `json:"filePath"`
	Delimiter string   `json:"delimiter"` // empty detects , tab or ;
	HasHeader bool     `json:"hasHeader"`
	Columns   []string `json:"columns,omitempty"` // overrides the header
	BatchSize int      `json:"batchSize"`
	DryRun    bool     `json:"dryRun"`
}

// CSVImportPreview is the head of a CSV file.
type CSVImportPreview struct {
	Delimiter string     `json:"delimiter"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Target    string   `json:"target"`
	Inserted  int64    `json:"inserted"`
	Failed    int64    `json:"failed"`
	Batches   int      `json:"batches"`
	DryRun    bool     `json:"dryRun"`
	Errors    []string `json:"errors,omitempty"`
	ElapsedMs int64    `json:"elapsedMs"`
}
