package sqlutil

import (
	"database/sql"
	"fmt"
)

// ScanRows materializes database/sql rows into column metadata and value
// slices. Byte slices are converted to strings.
func ScanRows(rows *sql.Rows, types TypeMap) ([]string, []string, [][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read column types: %w", err)
	}
	canonical := make([]string, len(cols))
	for i, ct := range colTypes {
		canonical[i] = types.Canonical(ct.DatabaseTypeName())
	}

	out := make([][]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}
	return cols, canonical, out, nil
}
