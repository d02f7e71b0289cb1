package postgres

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/peternagy/tablemoins/internal/driver/sqlutil"
)

// oidTypes maps PostgreSQL type OIDs to canonical names.
var oidTypes = map[uint32]string{
	pgtype.Int2OID:        sqlutil.TypeSmallInt,
	pgtype.Int4OID:        sqlutil.TypeInteger,
	pgtype.Int8OID:        sqlutil.TypeBigInt,
	pgtype.OIDOID:         sqlutil.TypeInteger,
	pgtype.NumericOID:     sqlutil.TypeDecimal,
	pgtype.Float4OID:      sqlutil.TypeFloat,
	pgtype.Float8OID:      sqlutil.TypeDouble,
	pgtype.BoolOID:        sqlutil.TypeBoolean,
	pgtype.BPCharOID:      sqlutil.TypeChar,
	pgtype.QCharOID:       sqlutil.TypeChar,
	pgtype.VarcharOID:     sqlutil.TypeVarchar,
	pgtype.TextOID:        sqlutil.TypeText,
	pgtype.NameOID:        sqlutil.TypeVarchar,
	pgtype.DateOID:        sqlutil.TypeDate,
	pgtype.TimeOID:        sqlutil.TypeTime,
	pgtype.TimestampOID:   sqlutil.TypeTimestamp,
	pgtype.TimestamptzOID: sqlutil.TypeTimestamp,
	pgtype.IntervalOID:    sqlutil.TypeInterval,
	pgtype.JSONOID:        sqlutil.TypeJSON,
	pgtype.JSONBOID:       sqlutil.TypeJSON,
	pgtype.ByteaOID:       sqlutil.TypeBinary,
	pgtype.UUIDOID:        sqlutil.TypeUUID,
	pgtype.Int4ArrayOID:   sqlutil.TypeArray,
	pgtype.TextArrayOID:   sqlutil.TypeArray,
}

// CanonicalType maps a type OID to the canonical vocabulary.
func CanonicalType(oid uint32) string {
	if name, ok := oidTypes[oid]; ok {
		return name
	}
	return sqlutil.TypeUnknown
}
