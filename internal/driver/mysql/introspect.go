package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/peternagy/tablemoins/internal/types"
)

// ListDatabases returns every database visible to the user.
func (d *Driver) ListDatabases(ctx context.Context) ([]types.DatabaseInfo, error) {
	names, err := d.showDatabases(ctx)
	if err != nil {
		return nil, err
	}
	databases := make([]types.DatabaseInfo, 0, len(names))
	for _, n := range names {
		databases = append(databases, types.DatabaseInfo{Name: n})
	}
	return databases, nil
}

// ListSchemas returns the databases on the server; in MySQL a schema and a
// database are the same object.
func (d *Driver) ListSchemas(ctx context.Context, database string) ([]string, error) {
	return d.showDatabases(ctx)
}

func (d *Driver) showDatabases(ctx context.Context) ([]string, error) {
	db, err := d.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListTables returns tables and views in schema (defaults to the profile database).
func (d *Driver) ListTables(ctx context.Context, schema string) ([]types.SchemaObject, error) {
	db, err := d.getDB()
	if err != nil {
		return nil, err
	}
	if schema == "" {
		schema = d.desc.Database
	}

	rows, err := db.QueryContext(ctx, `
		SELECT TABLE_NAME, TABLE_TYPE, COALESCE(TABLE_ROWS, 0), COALESCE(TABLE_COMMENT, '')
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`, schema)
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
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// ListColumns returns the columns of schema.table in ordinal order.
func (d *Driver) ListColumns(ctx context.Context, schema, table string) ([]types.ColumnInfo, error) {
	db, err := d.getDB()
	if err != nil {
		return nil, err
	}
	if schema == "" {
		schema = d.desc.Database
	}

	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE,
		       COALESCE(COLUMN_DEFAULT, ''), ORDINAL_POSITION, COLUMN_KEY
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var columns []types.ColumnInfo
	for rows.Next() {
		var col types.ColumnInfo
		var dataType, nullable, key string
		if err := rows.Scan(&col.Name, &dataType, &col.NativeType, &nullable, &col.Default, &col.Position, &key); err != nil {
			return nil, err
		}
		col.DataType = typeNames.Canonical(dataType)
		col.Nullable = strings.EqualFold(nullable, "YES")
		col.IsPrimaryKey = key == "PRI"
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
