package connection

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/credential"
	"github.com/peternagy/tablemoins/internal/driver"
	"github.com/peternagy/tablemoins/internal/storage"
	"github.com/peternagy/tablemoins/internal/types"
)

// fakeDriver is an in-memory driver.Driver.
type fakeDriver struct {
	desc          types.ConnectionDescriptor
	connectErr    error
	disconnectErr error
	testResult    bool

	mu          sync.Mutex
	connected   bool
	connects    int
	disconnects int
}

func (f *fakeDriver) Type() types.BackendType { return f.desc.Type }

func (f *fakeDriver) TestConnection(ctx context.Context) bool { return f.testResult }

func (f *fakeDriver) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeDriver) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return f.disconnectErr
}

func (f *fakeDriver) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDriver) ServerInfo(ctx context.Context) (types.ServerInfo, error) {
	return types.ServerInfo{Type: f.desc.Type, Version: "fake"}, nil
}

func (f *fakeDriver) ListDatabases(ctx context.Context) ([]types.DatabaseInfo, error) { return nil, nil }

func (f *fakeDriver) ListSchemas(ctx context.Context, database string) ([]string, error) {
	return nil, nil
}

func (f *fakeDriver) ListTables(ctx context.Context, schema string) ([]types.SchemaObject, error) {
	return nil, nil
}

func (f *fakeDriver) ListColumns(ctx context.Context, schema, table string) ([]types.ColumnInfo, error) {
	return nil, nil
}

func (f *fakeDriver) PagedRead(ctx context.Context, target string, opts types.PageOptions) (*types.PageResult, error) {
	return &types.PageResult{}, nil
}

// fakeFactory records every driver it builds. configure runs on each new
// driver before it is returned.
type fakeFactory struct {
	mu        sync.Mutex
	built     []*fakeDriver
	configure func(d *fakeDriver)
}

func (f *fakeFactory) New(desc types.ConnectionDescriptor, cfg config.Config) (driver.Driver, error) {
	if !slices.Contains(types.ImplementedBackends, desc.Type) {
		return nil, &core.UnsupportedBackendError{Type: string(desc.Type)}
	}
	d := &fakeDriver{desc: desc, testResult: true}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configure != nil {
		f.configure(d)
	}
	f.built = append(f.built, d)
	return d, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func (f *fakeFactory) last() *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[len(f.built)-1]
}

// recordingEmitter captures emitted event names.
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(name string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type testEnv struct {
	svc     *Service
	store   *storage.ConnectionStore
	factory *fakeFactory
	events  *recordingEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cipher, err := credential.NewCipher(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	env := &testEnv{
		store:   storage.NewConnectionStore(db),
		factory: &fakeFactory{},
		events:  &recordingEmitter{},
	}
	env.svc = NewService(config.Default(), env.store, cipher, env.factory.New, env.events)
	return env
}

func (env *testEnv) createProfile(t *testing.T, backend types.BackendType) string {
	t.Helper()
	id, err := env.svc.CreateProfile(context.Background(), types.ConnectionProfile{
		Name:     "local " + string(backend),
		Type:     backend,
		Host:     "localhost",
		Username: "admin",
		Password: "s3cret",
	})
	require.NoError(t, err)
	return id
}

func TestActivateAndCloseEveryBackend(t *testing.T) {
	for _, backend := range types.ImplementedBackends {
		t.Run(string(backend), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			profileID := env.createProfile(t, backend)

			tabID, err := env.svc.OpenTab(ctx, profileID)
			require.NoError(t, err)

			tab, err := env.svc.GetTab(tabID)
			require.NoError(t, err)
			assert.Equal(t, types.TabCreated, tab.State)
			assert.False(t, tab.IsConnected)
			assert.Zero(t, env.factory.count(), "opening a tab must not build a driver")

			require.NoError(t, env.svc.ActivateTab(ctx, tabID))

			tab, err = env.svc.GetTab(tabID)
			require.NoError(t, err)
			assert.True(t, tab.IsConnected)
			assert.Equal(t, types.TabConnected, tab.State)
			assert.Equal(t, backend, tab.Type)

			drv, err := env.svc.GetDriver(tabID)
			require.NoError(t, err)
			require.NotNil(t, drv)
			assert.Equal(t, backend, drv.Type())

			require.NoError(t, env.svc.CloseTab(ctx, tabID))
			assert.Empty(t, env.svc.ListTabs())
			assert.False(t, env.factory.last().IsConnected())

			assert.Equal(t, []string{
				core.EventTabOpened, core.EventTabConnected, core.EventTabDisconnected, core.EventTabClosed,
			}, env.events.names())
		})
	}
}

func TestActivateTab_DecryptsPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profileID := env.createProfile(t, types.BackendPostgreSQL)

	stored, err := env.store.GetByID(ctx, profileID, false)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", stored.Password, "password must be encrypted at rest")
	assert.NotEmpty(t, stored.Password)

	tabID, err := env.svc.OpenTab(ctx, profileID)
	require.NoError(t, err)
	require.NoError(t, env.svc.ActivateTab(ctx, tabID))

	desc := env.factory.last().desc
	assert.Equal(t, "s3cret", desc.Password)
	assert.Equal(t, "admin", desc.Username)
	assert.Equal(t, 5432, desc.Port)
	assert.Equal(t, profileID, desc.ProfileID)

	stored, err = env.store.GetByID(ctx, profileID, false)
	require.NoError(t, err)
	assert.False(t, stored.LastConnectedAt.IsZero(), "activation records the connection time")
}

func TestActivateTab_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tabID, err := env.svc.OpenTab(ctx, env.createProfile(t, types.BackendRedis))
	require.NoError(t, err)

	require.NoError(t, env.svc.ActivateTab(ctx, tabID))
	require.NoError(t, env.svc.ActivateTab(ctx, tabID))
	assert.Equal(t, 1, env.factory.count())
}

func TestActivateTab_FailureLeavesTabDisconnected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tabID, err := env.svc.OpenTab(ctx, env.createProfile(t, types.BackendMySQL))
	require.NoError(t, err)

	connErr := &core.ConnectionError{Backend: "mysql", Host: "localhost", Reason: core.ReasonAuth, Err: errors.New("access denied")}
	env.factory.configure = func(d *fakeDriver) { d.connectErr = connErr }

	err = env.svc.ActivateTab(ctx, tabID)
	var got *core.ConnectionError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, core.ReasonAuth, got.Reason)

	tab, err := env.svc.GetTab(tabID)
	require.NoError(t, err)
	assert.Equal(t, types.TabDisconnected, tab.State)
	assert.False(t, tab.IsConnected)

	_, err = env.svc.GetDriver(tabID)
	var nc *core.NotConnectedError
	assert.True(t, errors.As(err, &nc))

	env.factory.configure = nil
	require.NoError(t, env.svc.ActivateTab(ctx, tabID), "a failed tab can be activated again")
	tab, _ = env.svc.GetTab(tabID)
	assert.True(t, tab.IsConnected)
}

func TestActivateTab_UnsupportedBackend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profileID := env.createProfile(t, types.BackendMongoDB)

	tabID, err := env.svc.OpenTab(ctx, profileID)
	require.NoError(t, err)

	err = env.svc.ActivateTab(ctx, tabID)
	var unsupported *core.UnsupportedBackendError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "mongodb", unsupported.Type)
}

func TestOpenTab_UnknownOrInactiveProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.OpenTab(ctx, "missing")
	var nf *core.ProfileNotFoundError
	assert.True(t, errors.As(err, &nf))

	profileID := env.createProfile(t, types.BackendPostgreSQL)
	require.NoError(t, env.store.Delete(ctx, profileID, true))
	_, err = env.svc.OpenTab(ctx, profileID)
	assert.True(t, errors.As(err, &nf), "soft-deleted profiles cannot be opened")
}

func TestTabsOnSameProfileAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profileID := env.createProfile(t, types.BackendPostgreSQL)

	tab1, err := env.svc.OpenTab(ctx, profileID)
	require.NoError(t, err)
	tab2, err := env.svc.OpenTab(ctx, profileID)
	require.NoError(t, err)
	assert.NotEqual(t, tab1, tab2)

	require.NoError(t, env.svc.ActivateTab(ctx, tab1))
	require.NoError(t, env.svc.ActivateTab(ctx, tab2))

	d1, err := env.svc.GetDriver(tab1)
	require.NoError(t, err)
	d2, err := env.svc.GetDriver(tab2)
	require.NoError(t, err)
	assert.NotSame(t, d1, d2, "each tab owns its own driver")

	require.NoError(t, env.svc.Disconnect(ctx, tab1))

	info1, _ := env.svc.GetTab(tab1)
	info2, _ := env.svc.GetTab(tab2)
	assert.False(t, info1.IsConnected)
	assert.True(t, info2.IsConnected)
	assert.True(t, d2.IsConnected())
	assert.Len(t, env.svc.ListTabs(), 2, "disconnect keeps the tab")

	require.NoError(t, env.svc.Disconnect(ctx, tab1), "disconnecting twice is a no-op")
}

func TestUnknownTab(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	var nf *core.TabNotFoundError

	assert.True(t, errors.As(env.svc.ActivateTab(ctx, "nope"), &nf))
	assert.True(t, errors.As(env.svc.Disconnect(ctx, "nope"), &nf))
	assert.True(t, errors.As(env.svc.CloseTab(ctx, "nope"), &nf))
	_, err := env.svc.GetTab("nope")
	assert.True(t, errors.As(err, &nf))
	_, err = env.svc.GetDriver("nope")
	assert.True(t, errors.As(err, &nf))
}

func TestDisconnectAll_JoinsErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profileID := env.createProfile(t, types.BackendRedis)

	var n atomic.Int32
	env.factory.configure = func(d *fakeDriver) {
		if n.Add(1) <= 2 {
			d.disconnectErr = errors.New("socket closed")
		}
	}

	var tabs []string
	for i := 0; i < 4; i++ {
		id, err := env.svc.OpenTab(ctx, profileID)
		require.NoError(t, err)
		require.NoError(t, env.svc.ActivateTab(ctx, id))
		tabs = append(tabs, id)
	}

	err := env.svc.DisconnectAll(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "socket closed"))

	for _, id := range tabs {
		info, err := env.svc.GetTab(id)
		require.NoError(t, err)
		assert.False(t, info.IsConnected, "every tab is attempted even when some fail")
	}
	open, connected := env.svc.TabCounts()
	assert.Equal(t, 4, open)
	assert.Zero(t, connected)
}

func TestCloseAllTabs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profileID := env.createProfile(t, types.BackendMySQL)

	env.factory.configure = func(d *fakeDriver) { d.disconnectErr = errors.New("boom") }
	for i := 0; i < 3; i++ {
		id, err := env.svc.OpenTab(ctx, profileID)
		require.NoError(t, err)
		require.NoError(t, env.svc.ActivateTab(ctx, id))
	}
	_, err := env.svc.OpenTab(ctx, profileID)
	require.NoError(t, err)

	err = env.svc.CloseAllTabs(ctx)
	assert.Error(t, err)
	assert.Empty(t, env.svc.ListTabs(), "tabs are removed even when disconnect fails")

	assert.NoError(t, env.svc.Shutdown(ctx))
}

func TestConcurrentTabOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profileID := env.createProfile(t, types.BackendPostgreSQL)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := env.svc.OpenTab(ctx, profileID)
			if err != nil {
				return
			}
			var inner sync.WaitGroup
			inner.Add(2)
			go func() { defer inner.Done(); _ = env.svc.ActivateTab(ctx, id) }()
			go func() { defer inner.Done(); _ = env.svc.ActivateTab(ctx, id) }()
			inner.Wait()
			_ = env.svc.CloseTab(ctx, id)
		}()
	}
	wg.Wait()

	assert.Empty(t, env.svc.ListTabs())
	for _, d := range env.factory.built {
		assert.False(t, d.IsConnected(), "no driver may outlive its tab")
	}
}
