package postgres

import (
	"context"
	"fmt"

	"github.com/peternagy/tablemoins/internal/types"
)

// ListDatabases returns every non-template database on the server.
func (d *Driver) ListDatabases(ctx context.Context) ([]types.DatabaseInfo, error) {
	pool, err := d.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var databases []types.DatabaseInfo
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		databases = append(databases, types.DatabaseInfo{Name: name})
	}
	return databases, rows.Err()
}

// ListSchemas returns user schemas of the connected database. PostgreSQL
// cannot look across databases on one connection, so database is ignored.
func (d *Driver) ListSchemas(ctx context.Context, database string) ([]string, error) {
	pool, err := d.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		  AND schema_name NOT LIKE 'pg_toast%'
		  AND schema_name NOT LIKE 'pg_temp%'
		ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

// ListTables returns tables and views in schema.
func (d *Driver) ListTables(ctx context.Context, schema string) ([]types.SchemaObject, error) {
	pool, err := d.getPool()
	if err != nil {
		return nil, err
	}
	if schema == "" {
		schema = DefaultSchema
	}

	rows, err := pool.Query(ctx, `
		SELECT t.table_name, t.table_type,
		       COALESCE(c.reltuples, 0)::bigint,
		       COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_schema = $1
		ORDER BY t.table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var objects []types.SchemaObject
	for rows.Next() {
		var obj types.SchemaObject
		var tableType string
		if err := rows.Scan(&obj.Name, &tableType, &obj.Rows, &obj.Comment); err != nil {
			return nil, err
		}
		obj.Schema = schema
		obj.Type = "table"
		if tableType == "VIEW" {
			obj.Type = "view"
		}
		if obj.Rows < 0 {
			obj.Rows = 0
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// ListColumns returns the columns of schema.table in ordinal order.
func (d *Driver) ListColumns(ctx context.Context, schema, table string) ([]types.ColumnInfo, error) {
	pool, err := d.getPool()
	if err != nil {
		return nil, err
	}
	if schema == "" {
		schema = DefaultSchema
	}

	rows, err := pool.Query(ctx, `
		SELECT a.attname,
		       format_type(a.atttypid, a.atttypmod),
		       a.atttypid,
		       NOT a.attnotnull,
		       COALESCE(pg_get_expr(ad.adbin, ad.adrelid), ''),
		       a.attnum,
		       EXISTS (
		           SELECT 1 FROM pg_index i
		           WHERE i.indrelid = c.oid AND i.indisprimary AND a.attnum = ANY(i.indkey)
		       )
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
		WHERE n.nspname = $1 AND c.relname = $2 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var columns []types.ColumnInfo
	for rows.Next() {
		var col types.ColumnInfo
		var oid uint32
		var position int16
		if err := rows.Scan(&col.Name, &col.NativeType, &oid, &col.Nullable, &col.Default, &position, &col.IsPrimaryKey); err != nil {
			return nil, err
		}
		col.DataType = CanonicalType(oid)
		col.Position = int(position)
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
