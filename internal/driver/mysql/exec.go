package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver/sqlutil"
	"github.com/peternagy/tablemoins/internal/types"
)

// PagedRead returns one page of target ("database.table" or "table"). The
// page query carries SQL_CALC_FOUND_ROWS and the total is read with
// FOUND_ROWS() on the same connection.
func (d *Driver) PagedRead(ctx context.Context, target string, opts types.PageOptions) (*types.PageResult, error) {
	db, err := d.getDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := core.WithTimeout(ctx, d.cfg.Timeouts.Statement)
	defer cancel()

	opts = sqlutil.NormalizePage(opts)
	schema, table := d.SplitTarget(target)
	q := sqlutil.MySQL.BuildPage(schema, table, opts, "SQL_CALC_FOUND_ROWS")
	start := time.Now()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, q.Select)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	columns, values, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := conn.QueryRowContext(ctx, "SELECT FOUND_ROWS()").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
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

// ExecuteStatement runs one statement. Row returning statements are run as
// queries; everything else goes through Exec to report affected rows.
func (d *Driver) ExecuteStatement(ctx context.Context, statement string) (*types.QueryResult, error) {
	db, err := d.getDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := core.WithTimeout(ctx, d.cfg.Timeouts.Statement)
	defer cancel()

	start := time.Now()
	result := &types.QueryResult{Statement: statement}

	if sqlutil.ReturnsRows(statement) {
		rows, err := db.QueryContext(ctx, statement)
		if err != nil {
			return nil, fmt.Errorf("statement failed: %w", err)
		}
		result.Columns, result.Rows, err = collectRows(rows)
		if err != nil {
			return nil, fmt.Errorf("statement failed: %w", err)
		}
	} else {
		res, err := db.ExecContext(ctx, statement)
		if err != nil {
			return nil, fmt.Errorf("statement failed: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			result.RowsAffected = n
		}
		result.Columns = []types.ColumnMeta{}
		result.Rows = [][]any{}
	}

	result.ElapsedMs = core.ElapsedMs(start)
	debug.LogQuery("MySQL statement executed", map[string]interface{}{
		"rows":      len(result.Rows),
		"affected":  result.RowsAffected,
		"elapsedMs": result.ElapsedMs,
	})
	return result, nil
}

func collectRows(rows *sql.Rows) ([]types.ColumnMeta, [][]any, error) {
	defer rows.Close()

	names, canonical, values, err := sqlutil.ScanRows(rows, typeNames)
	if err != nil {
		return nil, nil, err
	}
	columns := make([]types.ColumnMeta, len(names))
	for i := range names {
		columns[i] = types.ColumnMeta{Name: names[i], DataType: canonical[i]}
	}
	return columns, values, nil
}
