package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver/sqlutil"
	"github.com/peternagy/tablemoins/internal/types"
)

// PagedRead returns one page of target ("schema.table" or "table"). The
// total is taken from a COUNT(*) query issued before the page query, since
// PostgreSQL has no native found-rows counter.
func (d *Driver) PagedRead(ctx context.Context, target string, opts types.PageOptions) (*types.PageResult, error) {
	pool, err := d.getPool()
	if err != nil {
		return nil, err
	}

	ctx, cancel := core.WithTimeout(ctx, d.cfg.Timeouts.Statement)
	defer cancel()

	opts = sqlutil.NormalizePage(opts)
	schema, table := SplitTarget(target)
	q := sqlutil.Postgres.BuildPage(schema, table, opts, "")
	start := time.Now()

	var total int64
	if err := pool.QueryRow(ctx, q.Count).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	rows, err := pool.Query(ctx, q.Select)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	columns, values, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	return &types.PageResult{
		Columns:   columns,
		Rows:      values,
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
		ElapsedMs: core.ElapsedMs(start),
	}, nil
}

// ExecuteStatement runs one statement and measures its elapsed time.
func (d *Driver) ExecuteStatement(ctx context.Context, statement string) (*types.QueryResult, error) {
	pool, err := d.getPool()
	if err != nil {
		return nil, err
	}

	ctx, cancel := core.WithTimeout(ctx, d.cfg.Timeouts.Statement)
	defer cancel()

	start := time.Now()
	rows, err := pool.Query(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}
	columns, values, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}

	result := &types.QueryResult{
		Statement:    statement,
		Columns:      columns,
		Rows:         values,
		RowsAffected: rows.CommandTag().RowsAffected(),
		ElapsedMs:    core.ElapsedMs(start),
	}
	debug.LogQuery("PostgreSQL statement executed", map[string]interface{}{
		"rows":      len(values),
		"elapsedMs": result.ElapsedMs,
	})
	return result, nil
}

// collectRows drains rows, mapping field OIDs to canonical names. rows is
// closed on return.
func collectRows(rows pgx.Rows) ([]types.ColumnMeta, [][]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]types.ColumnMeta, len(fields))
	for i, f := range fields {
		columns[i] = types.ColumnMeta{Name: f.Name, DataType: CanonicalType(f.DataTypeOID)}
	}

	values := make([][]any, 0)
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		for i, v := range raw {
			raw[i] = normalizeValue(v)
		}
		values = append(values, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, values, nil
}

// normalizeValue converts pgx decoded values into JSON friendly forms.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	case driver.Valuer:
		out, err := val.Value()
		if err != nil {
			return nil
		}
		return out
	}
	return v
}
