package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/api/middleware"
	"github.com/Kareem-Elnokali/system-creator/internal/connection"
	"github.com/Kareem-Elnokali/system-creator/internal/db"
	"github.com/Kareem-Elnokali/system-creator/internal/metrics"
	"github.com/Kareem-Elnokali/system-creator/internal/policy"
	syncsvc "github.com/Kareem-Elnokali/system-creator/internal/sync"
	"github.com/Kareem-Elnokali/system-creator/internal/verify"
	"github.com/Kareem-Elnokali/system-creator/pkg/mfa"
)

// Store is the repository surface the route handlers use directly.
// Connection mutation is deliberately absent: that goes through the gateway.
type Store interface {
	CreateTenant(t *db.Tenant) error
	GetTenant(id uuid.UUID) (*db.Tenant, error)
	ListTenants(status, plan, search string, limit, offset int) ([]*db.Tenant, error)
	UpdateTenantStatus(id uuid.UUID, status db.TenantStatus) error
	SetTenantDomainVerified(id uuid.UUID, verified bool) error
	DomainExists(domain string) (bool, error)
	CountTenantsByOwner(ownerID uuid.UUID) (int, error)
	GetUsageStats(tenantID uuid.UUID, since time.Time) ([]*db.UsageStat, error)
	GetAPICallLogs(tenantID uuid.UUID, since time.Time, limit int) ([]*db.APICallLog, error)
	GetSettings() (*db.SystemSettings, error)
	UpdateSettings(s *db.SystemSettings) error
	GetOverview() (*db.Overview, error)
}

type Gateway interface {
	GetStatus(ctx context.Context, caller policy.Caller, tenantID uuid.UUID) (*connection.Status, error)
	Disconnect(ctx context.Context, caller policy.Caller, tenantID uuid.UUID) error
	ModifySecurity(ctx context.Context, caller policy.Caller, tenantID uuid.UUID, update connection.SecurityUpdate) (*connection.SecuritySettings, error)
	CreateConnection(ctx context.Context, tenant *db.Tenant, remoteURL, connectionKey string) (string, error)
}

type Syncer interface {
	SyncTenant(ctx context.Context, tenant *db.Tenant) syncsvc.Result
	SyncAllActive(ctx context.Context) (*syncsvc.BatchResult, error)
}

type Handler struct {
	repo     Store
	gateway  Gateway
	syncer   Syncer
	remote   mfa.RemoteService
	verifier *verify.Verifier
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewHandler(repo Store, gateway Gateway, syncer Syncer, remote mfa.RemoteService, verifier *verify.Verifier, metrics *metrics.Collector, logger *zap.Logger) *Handler {
	return &Handler{
		repo:     repo,
		gateway:  gateway,
		syncer:   syncer,
		remote:   remote,
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *Handler) caller(c *gin.Context) policy.Caller {
	caller, _ := middleware.CallerFrom(c)
	return caller
}

func (h *Handler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError serializes a gateway error preserving its kind and detail
// verbatim, so deny responses show exactly which gate failed.
func (h *Handler) writeError(c *gin.Context, err error) {
	e := connection.AsError(err)
	body := gin.H{
		"success": false,
		"error":   e.Message,
		"code":    string(e.Kind),
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.JSON(e.HTTPStatus(), body)
}

// generateCredential returns a URL-safe random token of n bytes entropy.
func generateCredential(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
