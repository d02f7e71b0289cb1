package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/peternagy/tablemoins/internal/auth"
	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/connection"
	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/credential"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver"
	"github.com/peternagy/tablemoins/internal/export"
	"github.com/peternagy/tablemoins/internal/importer"
	"github.com/peternagy/tablemoins/internal/logging"
	"github.com/peternagy/tablemoins/internal/performance"
	"github.com/peternagy/tablemoins/internal/storage"
	"github.com/peternagy/tablemoins/internal/types"
)

// =============================================================================
// Type Re-exports for Wails Binding Generation
// =============================================================================

type ConnectionProfile = types.ConnectionProfile
type SSLConfig = types.SSLConfig
type TabInfo = types.TabInfo
type ServerInfo = types.ServerInfo
type DatabaseInfo = types.DatabaseInfo
type SchemaObject = types.SchemaObject
type ColumnInfo = types.ColumnInfo
type PageOptions = types.PageOptions
type PageResult = types.PageResult
type QueryResult = types.QueryResult
type CommandResult = types.CommandResult
type ScanResult = types.ScanResult
type KeyValue = types.KeyValue
type Metrics = performance.Metrics
type CSVExportOptions = types.CSVExportOptions
type ExportProgress = types.ExportProgress
type CSVImportOptions = types.CSVImportOptions
type CSVImportPreview = types.CSVImportPreview
type ImportResult = types.ImportResult

// ProfileExport is a sealed bundle plus the key needed to open it.
type ProfileExport struct {
	Bundle string `json:"bundle"`
	Key    string `json:"key"`
}

var errNotReady = errors.New("application is still starting")

// =============================================================================
// App - Thin Facade for Wails Bindings
// =============================================================================

// App struct holds the application services
type App struct {
	ctx        context.Context
	cfg        config.Config
	gate       *auth.Gate
	db         *storage.DB
	connection *connection.Service
	exporter   *export.Service
	importer   *importer.Service
	metrics    *performance.Service
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{cfg: config.Load(), gate: auth.NewGate(auth.DefaultGracePeriod)}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	logging.Apply(a.cfg.LogLevel, a.cfg.LogFile)
	debug.Init(ctx)

	emitter := &core.WailsEventEmitter{Ctx: ctx}
	if err := a.init(ctx, emitter, nil); err != nil {
		log.Error().Err(err).Msg("Startup failed")
		emitter.Emit(core.EventWarning, err.Error())
	}
}

// init opens the profile store, unlocks the master key and builds the
// services. A nil factory selects the real drivers.
func (a *App) init(ctx context.Context, emitter core.EventEmitter, factory driver.Factory) error {
	a.ctx = ctx
	if err := a.cfg.EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	db, err := storage.New(a.cfg.DBPath)
	if err != nil {
		return err
	}

	keys := credential.NewKeyStore(filepath.Join(a.cfg.ConfigDir, "master.key"))
	cipher, err := credential.NewCipherFromStore(keys)
	if err != nil {
		db.Close()
		return err
	}

	a.db = db
	a.connection = connection.NewService(a.cfg, storage.NewConnectionStore(db), cipher, factory, emitter)
	a.exporter = export.NewService(emitter)
	a.importer = importer.NewService(emitter)
	a.metrics = performance.NewService(a.connection)
	log.Info().Str("db", db.Path()).Msg("Profile store ready")
	return nil
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	if a.exporter != nil {
		a.exporter.CancelAll()
	}
	if a.connection != nil {
		a.connection.Shutdown(ctx)
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) service() (*connection.Service, error) {
	if a.connection == nil {
		return nil, errNotReady
	}
	return a.connection, nil
}

// statementCtx bounds a driver call by the statement timeout.
func (a *App) statementCtx() (context.Context, context.CancelFunc) {
	return core.WithTimeout(a.ctx, a.cfg.Timeouts.Statement)
}

// =============================================================================
// Profile Methods
// =============================================================================

func (a *App) CreateProfile(p ConnectionProfile) (string, error) {
	svc, err := a.service()
	if err != nil {
		return "", err
	}
	return svc.CreateProfile(a.ctx, p)
}

func (a *App) UpdateProfile(id string, p ConnectionProfile) error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	return svc.UpdateProfile(a.ctx, id, p)
}

func (a *App) DeleteProfile(id string, soft bool) error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	return svc.DeleteProfile(a.ctx, id, soft)
}

func (a *App) GetProfile(id string) (ConnectionProfile, error) {
	svc, err := a.service()
	if err != nil {
		return ConnectionProfile{}, err
	}
	return svc.GetProfile(a.ctx, id)
}

func (a *App) ListProfiles(activeOnly bool) ([]ConnectionProfile, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	return svc.ListProfiles(a.ctx, activeOnly)
}

func (a *App) DuplicateProfile(id, name string) (string, error) {
	svc, err := a.service()
	if err != nil {
		return "", err
	}
	return svc.DuplicateProfile(a.ctx, id, name)
}

// TestProfile probes a profile under the test timeout.
func (a *App) TestProfile(p ConnectionProfile) bool {
	svc, err := a.service()
	if err != nil {
		return false
	}
	ctx, cancel := core.WithTimeout(a.ctx, a.cfg.Timeouts.Test)
	defer cancel()
	return svc.TestProfile(ctx, p)
}

// ExportProfiles seals profiles with their plaintext secrets. The user must
// confirm through the OS first.
func (a *App) ExportProfiles(ids []string) (ProfileExport, error) {
	svc, err := a.service()
	if err != nil {
		return ProfileExport{}, err
	}
	if err := a.gate.Require("export connection secrets"); err != nil {
		return ProfileExport{}, err
	}
	bundle, key, err := svc.ExportProfiles(a.ctx, ids)
	if err != nil {
		return ProfileExport{}, err
	}
	return ProfileExport{Bundle: bundle, Key: key}, nil
}

func (a *App) ImportProfiles(bundle, key string) ([]string, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	return svc.ImportProfiles(a.ctx, bundle, key)
}

// RevealPassword returns a stored password after OS confirmation.
func (a *App) RevealPassword(id string) (string, error) {
	svc, err := a.service()
	if err != nil {
		return "", err
	}
	if err := a.gate.Require("reveal a saved password"); err != nil {
		return "", err
	}
	return svc.RevealPassword(a.ctx, id)
}

// LockSecrets ends the current confirmation grace period.
func (a *App) LockSecrets() {
	a.gate.Lock()
}

// ProfileFromURI parses a connection URI into an unsaved profile carrying
// the plaintext password.
func (a *App) ProfileFromURI(uri string) (ConnectionProfile, error) {
	p, password, err := credential.ParseURI(uri)
	if err != nil {
		return ConnectionProfile{}, err
	}
	p.Password = password
	return p, nil
}

// ProfileToURI renders a stored profile as a connection URI without its password.
func (a *App) ProfileToURI(id string) (string, error) {
	p, err := a.GetProfile(id)
	if err != nil {
		return "", err
	}
	return credential.BuildURI(p, ""), nil
}

// =============================================================================
// Tab Methods
// =============================================================================

func (a *App) OpenTab(profileID string) (string, error) {
	svc, err := a.service()
	if err != nil {
		return "", err
	}
	return svc.OpenTab(a.ctx, profileID)
}

// ActivateTab connects a tab under the connect timeout.
func (a *App) ActivateTab(tabID string) error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	ctx, cancel := core.WithTimeout(a.ctx, a.cfg.Timeouts.Connect)
	defer cancel()
	return svc.ActivateTab(ctx, tabID)
}

func (a *App) DisconnectTab(tabID string) error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	return svc.Disconnect(a.ctx, tabID)
}

func (a *App) CloseTab(tabID string) error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	return svc.CloseTab(a.ctx, tabID)
}

func (a *App) DisconnectAll() error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	return svc.DisconnectAll(a.ctx)
}

func (a *App) CloseAllTabs() error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	return svc.CloseAllTabs(a.ctx)
}

func (a *App) ListTabs() []TabInfo {
	svc, err := a.service()
	if err != nil {
		return nil
	}
	return svc.ListTabs()
}

func (a *App) GetTab(tabID string) (TabInfo, error) {
	svc, err := a.service()
	if err != nil {
		return TabInfo{}, err
	}
	return svc.GetTab(tabID)
}

// =============================================================================
// Debug and Metrics
// =============================================================================

func (a *App) SetDebugEnabled(enabled bool) {
	debug.SetEnabled(enabled)
}

func (a *App) GetMetrics() *Metrics {
	if a.metrics == nil {
		return performance.NewService(nil).GetMetrics()
	}
	return a.metrics.GetMetrics()
}

func (a *App) ForceGC() {
	if a.metrics != nil {
		a.metrics.ForceGC()
	}
}
