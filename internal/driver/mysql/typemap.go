package mysql

import "github.com/peternagy/tablemoins/internal/driver/sqlutil"

// typeNames maps MySQL type names (information_schema DATA_TYPE and
// driver DatabaseTypeName values) to canonical names.
var typeNames = sqlutil.TypeMap{
	"TINYINT":            sqlutil.TypeSmallInt,
	"UNSIGNED TINYINT":   sqlutil.TypeSmallInt,
	"SMALLINT":           sqlutil.TypeSmallInt,
	"UNSIGNED SMALLINT":  sqlutil.TypeSmallInt,
	"MEDIUMINT":          sqlutil.TypeInteger,
	"UNSIGNED MEDIUMINT": sqlutil.TypeInteger,
	"INT":                sqlutil.TypeInteger,
	"INTEGER":            sqlutil.TypeInteger,
	"UNSIGNED INT":       sqlutil.TypeInteger,
	"BIGINT":             sqlutil.TypeBigInt,
	"UNSIGNED BIGINT":    sqlutil.TypeBigInt,
	"DECIMAL":            sqlutil.TypeDecimal,
	"NUMERIC":            sqlutil.TypeDecimal,
	"FLOAT":              sqlutil.TypeFloat,
	"DOUBLE":             sqlutil.TypeDouble,
	"BIT":                sqlutil.TypeBoolean,
	"BOOL":               sqlutil.TypeBoolean,
	"BOOLEAN":            sqlutil.TypeBoolean,
	"CHAR":               sqlutil.TypeChar,
	"VARCHAR":            sqlutil.TypeVarchar,
	"TINYTEXT":           sqlutil.TypeText,
	"TEXT":               sqlutil.TypeText,
	"MEDIUMTEXT":         sqlutil.TypeText,
	"LONGTEXT":           sqlutil.TypeText,
	"DATE":               sqlutil.TypeDate,
	"TIME":               sqlutil.TypeTime,
	"DATETIME":           sqlutil.TypeTimestamp,
	"TIMESTAMP":          sqlutil.TypeTimestamp,
	"YEAR":               sqlutil.TypeSmallInt,
	"JSON":               sqlutil.TypeJSON,
	"BINARY":             sqlutil.TypeBinary,
	"VARBINARY":          sqlutil.TypeBinary,
	"TINYBLOB":           sqlutil.TypeBinary,
	"BLOB":               sqlutil.TypeBinary,
	"MEDIUMBLOB":         sqlutil.TypeBinary,
	"LONGBLOB":           sqlutil.TypeBinary,
	"ENUM":               sqlutil.TypeEnum,
	"SET":                sqlutil.TypeEnum,
}
