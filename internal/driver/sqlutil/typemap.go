package sqlutil

import "strings"

// Canonical type names shared by every relational driver.
const (
	TypeSmallInt  = "SMALLINT"
	TypeInteger   = "INTEGER"
	TypeBigInt    = "BIGINT"
	TypeDecimal   = "DECIMAL"
	TypeFloat     = "FLOAT"
	TypeDouble    = "DOUBLE"
	TypeBoolean   = "BOOLEAN"
	TypeChar      = "CHAR"
	TypeVarchar   = "VARCHAR"
	TypeText      = "TEXT"
	TypeDate      = "DATE"
	TypeTime      = "TIME"
	TypeTimestamp = "TIMESTAMP"
	TypeInterval  = "INTERVAL"
	TypeJSON      = "JSON"
	TypeBinary    = "BINARY"
	TypeUUID      = "UUID"
	TypeEnum      = "ENUM"
	TypeArray     = "ARRAY"
	TypeUnknown   = "UNKNOWN"
)

// TypeMap maps backend type codes to canonical names. The mapping is lossy;
// codes missing from the table resolve to TypeUnknown.
type TypeMap map[string]string

// Canonical returns the canonical name for code.
func (m TypeMap) Canonical(code string) string {
	if name, ok := m[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	return TypeUnknown
}
