package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/db"
	"github.com/Kareem-Elnokali/system-creator/internal/policy"
	syncsvc "github.com/Kareem-Elnokali/system-creator/internal/sync"
	"github.com/Kareem-Elnokali/system-creator/pkg/mfa"
)

type fakeStore struct {
	connections map[uuid.UUID]*db.Connection

	disconnected []uuid.UUID
	updated      *db.Connection
}

func newFakeStore() *fakeStore {
	return &fakeStore{connections: make(map[uuid.UUID]*db.Connection)}
}

func (f *fakeStore) GetConnection(tenantID uuid.UUID) (*db.Connection, error) {
	conn, ok := f.connections[tenantID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

func (f *fakeStore) CreateConnection(c *db.Connection) error {
	cp := *c
	f.connections[c.TenantID] = &cp
	return nil
}

func (f *fakeStore) UpdateSecurityFlags(c *db.Connection) error {
	cp := *c
	f.connections[c.TenantID] = &cp
	f.updated = &cp
	return nil
}

func (f *fakeStore) SetDisconnected(tenantID uuid.UUID) error {
	f.disconnected = append(f.disconnected, tenantID)
	if conn, ok := f.connections[tenantID]; ok {
		conn.Status = db.ConnDisconnected
		conn.IsConnected = false
	}
	return nil
}

type fakeSyncer struct {
	result syncsvc.Result
	calls  int
}

func (f *fakeSyncer) SyncTenant(ctx context.Context, tenant *db.Tenant) syncsvc.Result {
	f.calls++
	return f.result
}

func superuser() policy.Caller {
	return policy.Caller{ID: uuid.New(), IsSuperuser: true}
}

func regular() policy.Caller {
	return policy.Caller{ID: uuid.New(), IsSuperuser: false}
}

func openConnection(tenantID uuid.UUID) *db.Connection {
	now := time.Now()
	return &db.Connection{
		TenantID:             tenantID,
		Status:               db.ConnActive,
		IsConnected:          true,
		LastSync:             &now,
		AdminLocked:          false,
		ForceConnection:      false,
		CanDisconnect:        true,
		TotalUsers:           10,
		ActiveUsers:          7,
		TotalAuthentications: 100,
	}
}

func TestGetStatusHidesSecurityFromRegularCallers(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	store.connections[tenantID] = openConnection(tenantID)
	svc := NewService(store, &fakeSyncer{}, zap.NewNop())

	status, err := svc.GetStatus(context.Background(), regular(), tenantID)
	require.NoError(t, err)
	assert.Nil(t, status.Security)
	assert.True(t, status.IsConnected)
	assert.Equal(t, 7, status.ActiveUsers)
	assert.True(t, status.DisconnectAllowed)
}

func TestGetStatusShowsSecurityToSuperuser(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	conn := openConnection(tenantID)
	conn.AdminLocked = true
	store.connections[tenantID] = conn
	svc := NewService(store, &fakeSyncer{}, zap.NewNop())

	status, err := svc.GetStatus(context.Background(), superuser(), tenantID)
	require.NoError(t, err)
	require.NotNil(t, status.Security)
	assert.True(t, status.Security.AdminLocked)
	assert.True(t, status.Security.CanDisconnect)
	assert.False(t, status.DisconnectAllowed)
}

func TestGetStatusNotFound(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeSyncer{}, zap.NewNop())

	_, err := svc.GetStatus(context.Background(), superuser(), uuid.New())
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindNotFound, e.Kind)
}

func TestDisconnect(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	store.connections[tenantID] = openConnection(tenantID)
	svc := NewService(store, &fakeSyncer{}, zap.NewNop())

	require.NoError(t, svc.Disconnect(context.Background(), superuser(), tenantID))
	assert.Equal(t, []uuid.UUID{tenantID}, store.disconnected)
	assert.Equal(t, db.ConnDisconnected, store.connections[tenantID].Status)
}

func TestDisconnectDeniedForRegularCaller(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	store.connections[tenantID] = openConnection(tenantID)
	svc := NewService(store, &fakeSyncer{}, zap.NewNop())

	err := svc.Disconnect(context.Background(), regular(), tenantID)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindPermissionDenied, e.Kind)
	assert.Empty(t, store.disconnected)
}

func TestDisconnectBlockedBySecurityFlags(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	conn := openConnection(tenantID)
	conn.ForceConnection = true
	store.connections[tenantID] = conn
	svc := NewService(store, &fakeSyncer{}, zap.NewNop())

	// Even a superuser cannot sever a forced connection in one call.
	err := svc.Disconnect(context.Background(), superuser(), tenantID)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindPolicyBlocked, e.Kind)
	assert.Equal(t, true, e.Details["force_connection"])
	assert.Empty(t, store.disconnected)
}

func TestModifySecurityPartialUpdate(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	conn := openConnection(tenantID)
	conn.AdminLocked = true
	conn.ForceConnection = true
	conn.CanDisconnect = false
	store.connections[tenantID] = conn
	svc := NewService(store, &fakeSyncer{}, zap.NewNop())

	truth := true
	settings, err := svc.ModifySecurity(context.Background(), superuser(), tenantID, SecurityUpdate{
		CanDisconnect: &truth,
	})
	require.NoError(t, err)

	// Only the supplied field changed.
	assert.True(t, settings.CanDisconnect)
	assert.True(t, settings.AdminLocked)
	assert.True(t, settings.ForceConnection)
	assert.True(t, store.connections[tenantID].CanDisconnect)
}

func TestModifySecurityDeniedForRegularCaller(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	store.connections[tenantID] = openConnection(tenantID)
	svc := NewService(store, &fakeSyncer{}, zap.NewNop())

	falsy := false
	_, err := svc.ModifySecurity(context.Background(), regular(), tenantID, SecurityUpdate{
		AdminLocked: &falsy,
	})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindPermissionDenied, e.Kind)
	assert.Nil(t, store.updated)
}

func TestCreateConnection(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSyncer{result: syncsvc.Result{Success: true}}
	svc := NewService(store, syncer, zap.NewNop())

	tenant := &db.Tenant{ID: uuid.New(), Name: "acme", APIKey: "key"}
	msg, err := svc.CreateConnection(context.Background(), tenant, "http://mfa.example.com/api", "key")
	require.NoError(t, err)
	assert.Equal(t, "connection created and synced successfully", msg)
	assert.Equal(t, 1, syncer.calls)

	conn := store.connections[tenant.ID]
	require.NotNil(t, conn)
	assert.Equal(t, db.ConnPending, conn.Status)
	// Secure defaults: locked, forced, not disconnectable.
	assert.True(t, conn.AdminLocked)
	assert.True(t, conn.ForceConnection)
	assert.False(t, conn.CanDisconnect)
	assert.False(t, conn.DisconnectAllowed())
}

func TestCreateConnectionRefusesExisting(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSyncer{result: syncsvc.Result{Success: true}}
	svc := NewService(store, syncer, zap.NewNop())

	tenant := &db.Tenant{ID: uuid.New(), Name: "acme", APIKey: "key"}
	_, err := svc.CreateConnection(context.Background(), tenant, "http://mfa.example.com/api", "key")
	require.NoError(t, err)

	existing := *store.connections[tenant.ID]
	_, err = svc.CreateConnection(context.Background(), tenant, "http://other.example.com", "other")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindAlreadyExists, e.Kind)

	// The existing connection is never overwritten.
	assert.Equal(t, existing, *store.connections[tenant.ID])
	assert.Equal(t, 1, syncer.calls)
}

func TestCreateConnectionReportsSyncFailure(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSyncer{result: syncsvc.Result{Message: "sync failed: mfa api tenant/stats unreachable: timeout"}}
	svc := NewService(store, syncer, zap.NewNop())

	tenant := &db.Tenant{ID: uuid.New(), Name: "acme", APIKey: "key"}
	msg, err := svc.CreateConnection(context.Background(), tenant, "http://mfa.example.com/api", "key")

	// Sync failure does not fail the creation.
	require.NoError(t, err)
	assert.Contains(t, msg, "connection created but sync failed")
	require.NotNil(t, store.connections[tenant.ID])
}

func TestFromRemote(t *testing.T) {
	rejected := &mfa.RemoteError{Kind: mfa.KindRejected, Endpoint: "tenant/stats", StatusCode: 401, Body: `{"error":"bad key"}`}
	e := FromRemote(rejected)
	assert.Equal(t, KindRemoteRejected, e.Kind)
	assert.Equal(t, 401, e.Details["status_code"])

	unreachable := &mfa.RemoteError{Kind: mfa.KindUnreachable, Endpoint: "tenant/stats", Err: errors.New("timeout")}
	e = FromRemote(unreachable)
	assert.Equal(t, KindRemoteUnreachable, e.Kind)

	e = FromRemote(errors.New("plain"))
	assert.Equal(t, KindInternal, e.Kind)
}
