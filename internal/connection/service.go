// Package connection manages tabs and their driver handles on top of stored
// connection profiles.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/driver"
	"github.com/peternagy/tablemoins/internal/types"
)

// ProfileStore persists connection profiles with encrypted secrets.
type ProfileStore interface {
	Save(ctx context.Context, p types.ConnectionProfile) (types.ConnectionProfile, error)
	GetByID(ctx context.Context, id string, includeInactive bool) (types.ConnectionProfile, error)
	GetAll(ctx context.Context, activeOnly bool) ([]types.ConnectionProfile, error)
	Delete(ctx context.Context, id string, soft bool) error
	UpdateLastConnected(ctx context.Context, id string) error
}

// Cipher encrypts secrets at rest and mints identifiers.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	GenerateID() string
}

// fanOutLimit bounds concurrent disconnects during DisconnectAll and CloseAllTabs.
const fanOutLimit = 8

type tabEntry struct {
	id          string
	profileID   string
	profileName string
	backend     types.BackendType
	drv         driver.Driver
	state       types.TabState
	openedAt    time.Time
	connectedAt time.Time
}

func (e *tabEntry) info() types.TabInfo {
	return types.TabInfo{
		ID:          e.id,
		ProfileID:   e.profileID,
		ProfileName: e.profileName,
		Type:        e.backend,
		State:       e.state,
		IsConnected: e.drv != nil && e.state == types.TabConnected,
		OpenedAt:    e.openedAt,
		ConnectedAt: e.connectedAt,
	}
}

// Service is the tab registry. Every tab owns at most one driver; tabs on
// the same profile never share one.
type Service struct {
	cfg     config.Config
	store   ProfileStore
	cipher  Cipher
	factory driver.Factory
	emitter core.EventEmitter

	mu    sync.RWMutex
	tabs  map[string]*tabEntry
	locks *core.KeyedMutex
}

// NewService creates a connection service. A nil factory selects driver.New
// and a nil emitter discards events.
func NewService(cfg config.Config, store ProfileStore, cipher Cipher, factory driver.Factory, emitter core.EventEmitter) *Service {
	if factory == nil {
		factory = driver.New
	}
	if emitter == nil {
		emitter = &core.NoopEventEmitter{}
	}
	return &Service{
		cfg:     cfg.Normalize(),
		store:   store,
		cipher:  cipher,
		factory: factory,
		emitter: emitter,
		tabs:    make(map[string]*tabEntry),
		locks:   core.NewKeyedMutex(),
	}
}

func (s *Service) lookup(tabID string) (*tabEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tabs[tabID]
	if !ok {
		return nil, &core.TabNotFoundError{ID: tabID}
	}
	return e, nil
}

// update mutates an entry under the registry lock and returns its snapshot.
func (s *Service) update(e *tabEntry, fn func(e *tabEntry)) types.TabInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(e)
	return e.info()
}

// OpenTab registers a new tab for an active profile. No network I/O happens
// until ActivateTab.
func (s *Service) OpenTab(ctx context.Context, profileID string) (string, error) {
	p, err := s.store.GetByID(ctx, profileID, false)
	if err != nil {
		return "", err
	}

	e := &tabEntry{
		id:          s.cipher.GenerateID(),
		profileID:   p.ID,
		profileName: p.Name,
		backend:     p.Type,
		state:       types.TabCreated,
		openedAt:    time.Now(),
	}

	s.mu.Lock()
	s.tabs[e.id] = e
	info := e.info()
	s.mu.Unlock()

	debug.LogConnection("Tab opened", map[string]interface{}{"tab": e.id, "profile": p.ID, "type": p.Type})
	s.emitter.Emit(core.EventTabOpened, info)
	return e.id, nil
}

// ActivateTab connects a tab: it decrypts the profile secrets, builds a
// driver through the factory and connects it. Activating a connected tab is
// a no-op. On failure the tab is left disconnected with no driver.
func (s *Service) ActivateTab(ctx context.Context, tabID string) error {
	unlock := s.locks.Lock(tabID)
	defer unlock()

	e, err := s.lookup(tabID)
	if err != nil {
		return err
	}

	s.mu.RLock()
	stale := e.drv
	s.mu.RUnlock()
	if stale != nil {
		if stale.IsConnected() {
			return nil
		}
		_ = stale.Disconnect(ctx)
	}

	s.update(e, func(e *tabEntry) { e.state = types.TabConnecting })

	drv, err := s.buildDriver(ctx, e.profileID)
	if err == nil {
		err = drv.Connect(ctx)
	}
	if err != nil {
		info := s.update(e, func(e *tabEntry) {
			e.drv = nil
			e.state = types.TabDisconnected
		})
		debug.LogConnection("Tab activation failed", map[string]interface{}{"tab": tabID, "error": err.Error()})
		s.emitter.Emit(core.EventTabDisconnected, info)
		return err
	}

	info := s.update(e, func(e *tabEntry) {
		e.drv = drv
		e.state = types.TabConnected
		e.connectedAt = time.Now()
	})

	if err := s.store.UpdateLastConnected(ctx, e.profileID); err != nil {
		log.Warn().Err(err).Str("profile", e.profileID).Msg("Failed to record last connection time")
	}

	debug.LogConnection("Tab connected", map[string]interface{}{"tab": tabID, "type": e.backend})
	s.emitter.Emit(core.EventTabConnected, info)
	return nil
}

// buildDriver loads the active profile, decrypts its secrets and asks the
// factory for a fresh driver.
func (s *Service) buildDriver(ctx context.Context, profileID string) (driver.Driver, error) {
	p, err := s.store.GetByID(ctx, profileID, false)
	if err != nil {
		return nil, err
	}
	desc, err := s.descriptor(p)
	if err != nil {
		return nil, err
	}
	return s.factory(desc, s.cfg)
}

// descriptor decrypts the stored secrets of p.
func (s *Service) descriptor(p types.ConnectionProfile) (types.ConnectionDescriptor, error) {
	password, err := s.cipher.Decrypt(p.Password)
	if err != nil {
		return types.ConnectionDescriptor{}, fmt.Errorf("failed to decrypt password for profile %s: %w", p.ID, err)
	}
	desc := p.Descriptor(password)
	if p.SSL.Key != "" {
		if desc.SSL.Key, err = s.cipher.Decrypt(p.SSL.Key); err != nil {
			return types.ConnectionDescriptor{}, fmt.Errorf("failed to decrypt client key for profile %s: %w", p.ID, err)
		}
	}
	return desc, nil
}

// Disconnect closes the tab's driver and keeps the tab. Disconnecting a tab
// without a driver is a no-op.
func (s *Service) Disconnect(ctx context.Context, tabID string) error {
	unlock := s.locks.Lock(tabID)
	defer unlock()

	e, err := s.lookup(tabID)
	if err != nil {
		return err
	}
	return s.disconnectLocked(ctx, e)
}

func (s *Service) disconnectLocked(ctx context.Context, e *tabEntry) error {
	s.mu.RLock()
	drv := e.drv
	s.mu.RUnlock()
	if drv == nil {
		return nil
	}

	err := drv.Disconnect(ctx)
	info := s.update(e, func(e *tabEntry) {
		e.drv = nil
		e.state = types.TabDisconnected
		e.connectedAt = time.Time{}
	})

	debug.LogConnection("Tab disconnected", map[string]interface{}{"tab": e.id})
	s.emitter.Emit(core.EventTabDisconnected, info)
	if err != nil {
		return fmt.Errorf("failed to disconnect tab %s: %w", e.id, err)
	}
	return nil
}

// CloseTab disconnects the tab if needed and removes it from the registry.
// The tab is removed even when the disconnect fails.
func (s *Service) CloseTab(ctx context.Context, tabID string) error {
	unlock := s.locks.Lock(tabID)
	defer unlock()

	e, err := s.lookup(tabID)
	if err != nil {
		return err
	}
	err = s.disconnectLocked(ctx, e)

	s.mu.Lock()
	delete(s.tabs, tabID)
	e.state = types.TabClosed
	info := e.info()
	s.mu.Unlock()

	debug.LogConnection("Tab closed", map[string]interface{}{"tab": tabID})
	s.emitter.Emit(core.EventTabClosed, info)
	return err
}

// DisconnectAll disconnects every tab concurrently. Every tab is attempted;
// the failures are joined.
func (s *Service) DisconnectAll(ctx context.Context) error {
	return s.fanOut(s.tabIDs(), func(id string) error {
		return s.Disconnect(ctx, id)
	})
}

// CloseAllTabs closes every tab concurrently. Every tab is attempted; the
// failures are joined.
func (s *Service) CloseAllTabs(ctx context.Context) error {
	return s.fanOut(s.tabIDs(), func(id string) error {
		return s.CloseTab(ctx, id)
	})
}

// Shutdown closes every tab.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.CloseAllTabs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Errors while closing tabs on shutdown")
	}
	return err
}

func (s *Service) fanOut(ids []string, fn func(id string) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(fanOutLimit)
	for _, id := range ids {
		g.Go(func() error {
			err := fn(id)
			var notFound *core.TabNotFoundError
			if err != nil && !errors.As(err, &notFound) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

func (s *Service) tabIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tabs))
	for id := range s.tabs {
		ids = append(ids, id)
	}
	return ids
}

// tabsForProfile returns the ids of tabs opened on profileID.
func (s *Service) tabsForProfile(profileID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, e := range s.tabs {
		if e.profileID == profileID {
			ids = append(ids, id)
		}
	}
	return ids
}

// ListTabs returns a snapshot of every tab ordered by opening time.
func (s *Service) ListTabs() []types.TabInfo {
	s.mu.RLock()
	tabs := make([]types.TabInfo, 0, len(s.tabs))
	for _, e := range s.tabs {
		tabs = append(tabs, e.info())
	}
	s.mu.RUnlock()

	sort.Slice(tabs, func(i, j int) bool {
		if tabs[i].OpenedAt.Equal(tabs[j].OpenedAt) {
			return tabs[i].ID < tabs[j].ID
		}
		return tabs[i].OpenedAt.Before(tabs[j].OpenedAt)
	})
	return tabs
}

// GetTab returns a snapshot of one tab.
func (s *Service) GetTab(tabID string) (types.TabInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tabs[tabID]
	if !ok {
		return types.TabInfo{}, &core.TabNotFoundError{ID: tabID}
	}
	return e.info(), nil
}

// GetDriver returns the live driver of a connected tab.
func (s *Service) GetDriver(tabID string) (driver.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tabs[tabID]
	if !ok {
		return nil, &core.TabNotFoundError{ID: tabID}
	}
	if e.drv == nil {
		return nil, &core.NotConnectedError{Target: tabID}
	}
	return e.drv, nil
}

// SQLDriver returns the tab's driver when it is relational.
func (s *Service) SQLDriver(tabID string) (driver.SQLDriver, error) {
	drv, err := s.GetDriver(tabID)
	if err != nil {
		return nil, err
	}
	sqlDrv, ok := drv.(driver.SQLDriver)
	if !ok {
		return nil, fmt.Errorf("tab %s is a %s tab and does not run SQL statements", tabID, drv.Type())
	}
	return sqlDrv, nil
}

// KVDriver returns the tab's driver when it is a key-value backend.
func (s *Service) KVDriver(tabID string) (driver.KVDriver, error) {
	drv, err := s.GetDriver(tabID)
	if err != nil {
		return nil, err
	}
	kvDrv, ok := drv.(driver.KVDriver)
	if !ok {
		return nil, fmt.Errorf("tab %s is a %s tab and does not run key-value commands", tabID, drv.Type())
	}
	return kvDrv, nil
}

// TabCounts reports the number of open tabs and how many are connected.
func (s *Service) TabCounts() (open, connected int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.tabs {
		if e.drv != nil {
			connected++
		}
	}
	return len(s.tabs), connected
}
