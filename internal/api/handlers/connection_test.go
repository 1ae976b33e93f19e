package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/api/middleware"
	"github.com/Kareem-Elnokali/system-creator/internal/connection"
	"github.com/Kareem-Elnokali/system-creator/internal/db"
	"github.com/Kareem-Elnokali/system-creator/internal/policy"
	syncsvc "github.com/Kareem-Elnokali/system-creator/internal/sync"
	"github.com/Kareem-Elnokali/system-creator/pkg/mfa"
)

type fakeStore struct {
	tenants  map[uuid.UUID]*db.Tenant
	settings *db.SystemSettings
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: make(map[uuid.UUID]*db.Tenant),
		settings: &db.SystemSettings{
			ID:                 1,
			MaxTenantsPerOwner: 5,
			AllowFreePlan:      true,
		},
	}
}

func (f *fakeStore) CreateTenant(t *db.Tenant) error {
	f.tenants[t.ID] = t
	return nil
}

func (f *fakeStore) GetTenant(id uuid.UUID) (*db.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListTenants(status, plan, search string, limit, offset int) ([]*db.Tenant, error) {
	var out []*db.Tenant
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) UpdateTenantStatus(id uuid.UUID, status db.TenantStatus) error {
	t, ok := f.tenants[id]
	if !ok {
		return db.ErrNotFound
	}
	t.Status = status
	return nil
}

func (f *fakeStore) SetTenantDomainVerified(id uuid.UUID, verified bool) error { return nil }
func (f *fakeStore) DomainExists(domain string) (bool, error)                  { return false, nil }
func (f *fakeStore) CountTenantsByOwner(ownerID uuid.UUID) (int, error)        { return 0, nil }

func (f *fakeStore) GetUsageStats(tenantID uuid.UUID, since time.Time) ([]*db.UsageStat, error) {
	return nil, nil
}

func (f *fakeStore) GetAPICallLogs(tenantID uuid.UUID, since time.Time, limit int) ([]*db.APICallLog, error) {
	return nil, nil
}

func (f *fakeStore) GetSettings() (*db.SystemSettings, error)  { return f.settings, nil }
func (f *fakeStore) UpdateSettings(s *db.SystemSettings) error { f.settings = s; return nil }
func (f *fakeStore) GetOverview() (*db.Overview, error)        { return &db.Overview{}, nil }

type fakeGateway struct {
	status    *connection.Status
	statusErr error

	disconnectErr error
	disconnected  []uuid.UUID

	settings  *connection.SecuritySettings
	modifyErr error

	createMsg string
	createErr error
}

func (f *fakeGateway) GetStatus(ctx context.Context, caller policy.Caller, tenantID uuid.UUID) (*connection.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeGateway) Disconnect(ctx context.Context, caller policy.Caller, tenantID uuid.UUID) error {
	if f.disconnectErr != nil {
		return f.disconnectErr
	}
	f.disconnected = append(f.disconnected, tenantID)
	return nil
}

func (f *fakeGateway) ModifySecurity(ctx context.Context, caller policy.Caller, tenantID uuid.UUID, update connection.SecurityUpdate) (*connection.SecuritySettings, error) {
	return f.settings, f.modifyErr
}

func (f *fakeGateway) CreateConnection(ctx context.Context, tenant *db.Tenant, remoteURL, connectionKey string) (string, error) {
	return f.createMsg, f.createErr
}

type fakeSyncer struct {
	result syncsvc.Result
	batch  *syncsvc.BatchResult
}

func (f *fakeSyncer) SyncTenant(ctx context.Context, tenant *db.Tenant) syncsvc.Result {
	return f.result
}

func (f *fakeSyncer) SyncAllActive(ctx context.Context) (*syncsvc.BatchResult, error) {
	return f.batch, nil
}

func setupRouter(h *Handler, caller policy.Caller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.CallerKey, caller)
		c.Next()
	})
	r.GET("/tenants/:id/connection", h.GetConnectionStatus)
	r.POST("/tenants/:id/connection", h.CreateConnection)
	r.POST("/tenants/:id/connection/disconnect", h.Disconnect)
	r.PUT("/tenants/:id/connection/security", h.ModifySecurity)
	r.POST("/tenants/:id/sync", h.SyncTenant)
	return r
}

func newTestHandler(store *fakeStore, gateway *fakeGateway, syncer *fakeSyncer) *Handler {
	return NewHandler(store, gateway, syncer, mfa.NewOfflineClient(zap.NewNop()), nil, nil, zap.NewNop())
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetConnectionStatusRoute(t *testing.T) {
	gateway := &fakeGateway{status: &connection.Status{
		IsConnected: true,
		Status:      db.ConnActive,
		ActiveUsers: 7,
	}}
	h := newTestHandler(newFakeStore(), gateway, &fakeSyncer{})
	r := setupRouter(h, policy.Caller{ID: uuid.New()})

	w := doRequest(r, http.MethodGet, "/tenants/"+uuid.NewString()+"/connection", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success    bool              `json:"success"`
		Connection connection.Status `json:"connection"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Connection.IsConnected)
	assert.Equal(t, 7, resp.Connection.ActiveUsers)
}

func TestGetConnectionStatusInvalidID(t *testing.T) {
	h := newTestHandler(newFakeStore(), &fakeGateway{}, &fakeSyncer{})
	r := setupRouter(h, policy.Caller{ID: uuid.New()})

	w := doRequest(r, http.MethodGet, "/tenants/not-a-uuid/connection", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisconnectRouteSerializesPolicyBlock(t *testing.T) {
	gateway := &fakeGateway{disconnectErr: &connection.Error{
		Kind:    connection.KindPolicyBlocked,
		Message: "disconnection is blocked by security settings",
		Details: map[string]interface{}{
			"admin_locked":     true,
			"force_connection": true,
			"can_disconnect":   false,
		},
	}}
	h := newTestHandler(newFakeStore(), gateway, &fakeSyncer{})
	r := setupRouter(h, policy.Caller{ID: uuid.New(), IsSuperuser: true})

	w := doRequest(r, http.MethodPost, "/tenants/"+uuid.NewString()+"/connection/disconnect", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Code    string                 `json:"code"`
		Details map[string]interface{} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "DISCONNECT_BLOCKED", resp.Code)
	assert.Equal(t, true, resp.Details["admin_locked"])
}

func TestDisconnectRoute(t *testing.T) {
	gateway := &fakeGateway{}
	h := newTestHandler(newFakeStore(), gateway, &fakeSyncer{})
	r := setupRouter(h, policy.Caller{ID: uuid.New(), IsSuperuser: true})

	tenantID := uuid.New()
	w := doRequest(r, http.MethodPost, "/tenants/"+tenantID.String()+"/connection/disconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{tenantID}, gateway.disconnected)
}

func TestModifySecurityRoute(t *testing.T) {
	gateway := &fakeGateway{settings: &connection.SecuritySettings{
		AdminLocked:     false,
		ForceConnection: false,
		CanDisconnect:   true,
	}}
	h := newTestHandler(newFakeStore(), gateway, &fakeSyncer{})
	r := setupRouter(h, policy.Caller{ID: uuid.New(), IsSuperuser: true})

	w := doRequest(r, http.MethodPut, "/tenants/"+uuid.NewString()+"/connection/security",
		map[string]bool{"can_disconnect": true})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool                        `json:"success"`
		Settings connection.SecuritySettings `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Settings.CanDisconnect)
}

func TestCreateConnectionRouteConflict(t *testing.T) {
	store := newFakeStore()
	tenant := &db.Tenant{ID: uuid.New(), Name: "acme"}
	store.tenants[tenant.ID] = tenant

	gateway := &fakeGateway{createErr: &connection.Error{
		Kind:    connection.KindAlreadyExists,
		Message: "connection already exists",
	}}
	h := newTestHandler(store, gateway, &fakeSyncer{})
	r := setupRouter(h, policy.Caller{ID: uuid.New(), IsSuperuser: true})

	w := doRequest(r, http.MethodPost, "/tenants/"+tenant.ID.String()+"/connection",
		map[string]string{"remote_url": "http://mfa.example.com/api", "connection_key": "key"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateConnectionRouteUnknownTenant(t *testing.T) {
	h := newTestHandler(newFakeStore(), &fakeGateway{}, &fakeSyncer{})
	r := setupRouter(h, policy.Caller{ID: uuid.New(), IsSuperuser: true})

	w := doRequest(r, http.MethodPost, "/tenants/"+uuid.NewString()+"/connection",
		map[string]string{"remote_url": "http://mfa.example.com/api", "connection_key": "key"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncTenantRouteSeveredConflict(t *testing.T) {
	store := newFakeStore()
	tenant := &db.Tenant{ID: uuid.New(), Name: "acme"}
	store.tenants[tenant.ID] = tenant

	// A severed connection is skipped, not retried, and the route reports
	// the conflict rather than a gateway failure.
	syncer := &fakeSyncer{result: syncsvc.Result{
		Skipped: true,
		Message: "connection is disconnected; create a new connection to re-link",
	}}
	h := newTestHandler(store, &fakeGateway{}, syncer)
	r := setupRouter(h, policy.Caller{ID: uuid.New(), IsSuperuser: true})

	w := doRequest(r, http.MethodPost, "/tenants/"+tenant.ID.String()+"/sync", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncTenantRouteReportsFailure(t *testing.T) {
	store := newFakeStore()
	tenant := &db.Tenant{ID: uuid.New(), Name: "acme"}
	store.tenants[tenant.ID] = tenant

	syncer := &fakeSyncer{result: syncsvc.Result{Message: "sync failed: unreachable"}}
	h := newTestHandler(store, &fakeGateway{}, syncer)
	r := setupRouter(h, policy.Caller{ID: uuid.New(), IsSuperuser: true})

	w := doRequest(r, http.MethodPost, "/tenants/"+tenant.ID.String()+"/sync", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
