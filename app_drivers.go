package main

import (
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/peternagy/tablemoins/internal/export"
)

// =============================================================================
// Driver Methods - Thin Facade for Wails Bindings
// =============================================================================

// ServerInfo reports the server behind a connected tab.
func (a *App) ServerInfo(tabID string) (ServerInfo, error) {
	svc, err := a.service()
	if err != nil {
		return ServerInfo{}, err
	}
	drv, err := svc.GetDriver(tabID)
	if err != nil {
		return ServerInfo{}, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ServerInfo(ctx)
}

func (a *App) ListDatabases(tabID string) ([]DatabaseInfo, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.GetDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ListDatabases(ctx)
}

func (a *App) ListSchemas(tabID, database string) ([]string, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.GetDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ListSchemas(ctx, database)
}

func (a *App) ListTables(tabID, schema string) ([]SchemaObject, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.GetDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ListTables(ctx, schema)
}

func (a *App) ListColumns(tabID, schema, table string) ([]ColumnInfo, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.GetDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ListColumns(ctx, schema, table)
}

// PagedRead returns one page of a table, or of keys for key-value tabs.
func (a *App) PagedRead(tabID, target string, opts PageOptions) (*PageResult, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.GetDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.PagedRead(ctx, target, opts)
}

// ExecuteStatement runs one SQL statement on a relational tab.
func (a *App) ExecuteStatement(tabID, statement string) (*QueryResult, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.SQLDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ExecuteStatement(ctx, statement)
}

// ExecuteCommand runs one command line on a key-value tab. Command failures
// come back inside the envelope; only tab lookup errors are returned.
func (a *App) ExecuteCommand(tabID, line string) (*CommandResult, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.KVDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ExecuteCommand(ctx, line), nil
}

func (a *App) ScanKeys(tabID string, cursor uint64, pattern string, count int64) (*ScanResult, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.KVDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.ScanKeys(ctx, cursor, pattern, count)
}

func (a *App) GetKey(tabID, key string) (*KeyValue, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.KVDriver(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.statementCtx()
	defer cancel()
	return drv.GetKey(ctx, key)
}

// DeleteByPattern walks the whole keyspace, so it runs without the
// statement timeout.
func (a *App) DeleteByPattern(tabID, pattern string) (int64, error) {
	svc, err := a.service()
	if err != nil {
		return 0, err
	}
	drv, err := svc.KVDriver(tabID)
	if err != nil {
		return 0, err
	}
	return drv.DeleteByPattern(a.ctx, pattern)
}

func (a *App) CountKeys(tabID, pattern string) (int64, error) {
	svc, err := a.service()
	if err != nil {
		return 0, err
	}
	drv, err := svc.KVDriver(tabID)
	if err != nil {
		return 0, err
	}
	return drv.CountKeys(a.ctx, pattern)
}

// =============================================================================
// Export Methods
// =============================================================================

// ExportTableCSV writes every row of target to a CSV file. With no file path
// in opts a save dialog is shown; cancelling it returns 0 rows and no error.
func (a *App) ExportTableCSV(tabID, target string, opts CSVExportOptions) (int64, error) {
	svc, err := a.service()
	if err != nil {
		return 0, err
	}
	drv, err := svc.GetDriver(tabID)
	if err != nil {
		return 0, err
	}

	if opts.FilePath == "" {
		opts.FilePath, err = runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
			DefaultFilename: export.DefaultFilename(target, time.Now()),
			Title:           "Export as CSV",
			Filters: []runtime.FileFilter{
				{DisplayName: "CSV Files (*.csv)", Pattern: "*.csv"},
			},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to open save dialog: %w", err)
		}
		if opts.FilePath == "" {
			return 0, nil
		}
	}
	return a.exporter.ExportToFile(a.ctx, drv, target, opts)
}

// CancelExport stops a running export by the id carried in its progress events.
func (a *App) CancelExport(exportID string) {
	if a.exporter != nil {
		a.exporter.Cancel(exportID)
	}
}

// =============================================================================
// Import Methods
// =============================================================================

// PickCSVFile opens a file dialog and returns the chosen path, or "".
func (a *App) PickCSVFile() (string, error) {
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Import CSV",
		Filters: []runtime.FileFilter{
			{DisplayName: "CSV Files (*.csv, *.tsv, *.txt)", Pattern: "*.csv;*.tsv;*.txt"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to open file dialog: %w", err)
	}
	return path, nil
}

// PreviewCSV returns the delimiter, header and first rows of opts.FilePath.
func (a *App) PreviewCSV(opts CSVImportOptions) (*CSVImportPreview, error) {
	if a.importer == nil {
		return nil, errNotReady
	}
	return a.importer.Preview(opts.FilePath, opts)
}

// ImportCSV loads opts.FilePath into a table of a relational tab.
func (a *App) ImportCSV(tabID, target string, opts CSVImportOptions) (*ImportResult, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	drv, err := svc.SQLDriver(tabID)
	if err != nil {
		return nil, err
	}
	return a.importer.ImportFile(a.ctx, drv, target, opts)
}
