// Package connection is the gateway for everything that touches a tenant's
// link to the remote MFA service. All mutation goes through the access
// policy; nothing here re-derives the disconnect gate.
package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/db"
	"github.com/Kareem-Elnokali/system-creator/internal/policy"
	syncsvc "github.com/Kareem-Elnokali/system-creator/internal/sync"
	"github.com/Kareem-Elnokali/system-creator/pkg/mfa"
)

type Store interface {
	GetConnection(tenantID uuid.UUID) (*db.Connection, error)
	CreateConnection(c *db.Connection) error
	UpdateSecurityFlags(c *db.Connection) error
	SetDisconnected(tenantID uuid.UUID) error
}

type Syncer interface {
	SyncTenant(ctx context.Context, tenant *db.Tenant) syncsvc.Result
}

type Service struct {
	store  Store
	syncer Syncer
	logger *zap.Logger
}

func NewService(store Store, syncer Syncer, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		syncer: syncer,
		logger: logger,
	}
}

type SecuritySettings struct {
	AdminLocked     bool `json:"admin_locked"`
	ForceConnection bool `json:"force_connection"`
	CanDisconnect   bool `json:"can_disconnect"`
}

// Status is the connection projection returned to callers. The security
// block is present only for super-privileged callers; hiding it is
// information hiding, not an authorization failure.
type Status struct {
	IsConnected          bool                `json:"is_connected"`
	Status               db.ConnectionStatus `json:"connection_status"`
	LastSync             *time.Time          `json:"last_sync"`
	CanTenantModify      bool                `json:"can_tenant_modify"`
	DisconnectAllowed    bool                `json:"disconnect_allowed"`
	TotalUsers           int                 `json:"total_users"`
	ActiveUsers          int                 `json:"active_users"`
	TotalAuthentications int                 `json:"total_authentications"`
	Security             *SecuritySettings   `json:"security_settings,omitempty"`
}

// SecurityUpdate is a partial update: only non-nil fields are applied.
type SecurityUpdate struct {
	AdminLocked     *bool `json:"admin_locked"`
	ForceConnection *bool `json:"force_connection"`
	CanDisconnect   *bool `json:"can_disconnect"`
}

func (s *Service) loadConnection(tenantID uuid.UUID) (*db.Connection, error) {
	conn, err := s.store.GetConnection(tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, newError(KindNotFound, "no connection found for this tenant")
	}
	if err != nil {
		s.logger.Error("Failed to load connection",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return nil, newError(KindInternal, "internal server error")
	}
	return conn, nil
}

func denyError(d policy.Decision) *Error {
	kind := KindPermissionDenied
	if d.Code == policy.DenyPolicy {
		kind = KindPolicyBlocked
	}
	return &Error{Kind: kind, Message: d.Reason, Details: d.Details}
}

func (s *Service) GetStatus(ctx context.Context, caller policy.Caller, tenantID uuid.UUID) (*Status, error) {
	conn, err := s.loadConnection(tenantID)
	if err != nil {
		return nil, err
	}

	if d := policy.Authorize(caller, conn, policy.ActionReadStatus); !d.Allowed {
		return nil, denyError(d)
	}

	status := &Status{
		IsConnected:          conn.IsConnected,
		Status:               conn.Status,
		LastSync:             conn.LastSync,
		CanTenantModify:      conn.CanTenantModify(),
		DisconnectAllowed:    conn.DisconnectAllowed(),
		TotalUsers:           conn.TotalUsers,
		ActiveUsers:          conn.ActiveUsers,
		TotalAuthentications: conn.TotalAuthentications,
	}

	if caller.IsSuperuser {
		status.Security = &SecuritySettings{
			AdminLocked:     conn.AdminLocked,
			ForceConnection: conn.ForceConnection,
			CanDisconnect:   conn.CanDisconnect,
		}
	}
	return status, nil
}

func (s *Service) Disconnect(ctx context.Context, caller policy.Caller, tenantID uuid.UUID) error {
	conn, err := s.loadConnection(tenantID)
	if err != nil {
		return err
	}

	if d := policy.Authorize(caller, conn, policy.ActionDisconnect); !d.Allowed {
		s.logger.Warn("Disconnect attempt denied",
			zap.String("tenant_id", tenantID.String()),
			zap.String("caller_id", caller.ID.String()),
			zap.String("code", string(d.Code)),
		)
		return denyError(d)
	}

	if err := s.store.SetDisconnected(tenantID); err != nil {
		s.logger.Error("Failed to disconnect tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return newError(KindInternal, "internal server error")
	}

	s.logger.Info("Tenant disconnected",
		zap.String("tenant_id", tenantID.String()),
		zap.String("caller_id", caller.ID.String()),
	)
	return nil
}

func (s *Service) ModifySecurity(ctx context.Context, caller policy.Caller, tenantID uuid.UUID, update SecurityUpdate) (*SecuritySettings, error) {
	conn, err := s.loadConnection(tenantID)
	if err != nil {
		return nil, err
	}

	if d := policy.Authorize(caller, conn, policy.ActionModifySecurity); !d.Allowed {
		s.logger.Warn("Security modification denied",
			zap.String("tenant_id", tenantID.String()),
			zap.String("caller_id", caller.ID.String()),
		)
		return nil, denyError(d)
	}

	if update.AdminLocked != nil {
		conn.AdminLocked = *update.AdminLocked
	}
	if update.ForceConnection != nil {
		conn.ForceConnection = *update.ForceConnection
	}
	if update.CanDisconnect != nil {
		conn.CanDisconnect = *update.CanDisconnect
	}

	if err := s.store.UpdateSecurityFlags(conn); err != nil {
		s.logger.Error("Failed to update security flags",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return nil, newError(KindInternal, "internal server error")
	}

	s.logger.Info("Security settings modified",
		zap.String("tenant_id", tenantID.String()),
		zap.String("caller_id", caller.ID.String()),
		zap.Bool("admin_locked", conn.AdminLocked),
		zap.Bool("force_connection", conn.ForceConnection),
		zap.Bool("can_disconnect", conn.CanDisconnect),
	)

	return &SecuritySettings{
		AdminLocked:     conn.AdminLocked,
		ForceConnection: conn.ForceConnection,
		CanDisconnect:   conn.CanDisconnect,
	}, nil
}

// CreateConnection links a tenant to the remote service. It is idempotent in
// the refusing sense: an existing connection is never overwritten. The
// initial sync is attempted immediately but its failure does not fail the
// creation, only the message reports it.
func (s *Service) CreateConnection(ctx context.Context, tenant *db.Tenant, remoteURL, connectionKey string) (string, error) {
	_, err := s.store.GetConnection(tenant.ID)
	if err == nil {
		return "", newError(KindAlreadyExists, "connection already exists")
	}
	if !errors.Is(err, db.ErrNotFound) {
		return "", newError(KindInternal, "internal server error")
	}

	now := time.Now()
	conn := &db.Connection{
		TenantID:      tenant.ID,
		RemoteURL:     remoteURL,
		ConnectionKey: connectionKey,
		Status:        db.ConnPending,
		// Locked by default: no caller can sever a fresh link until an
		// administrator opens all three gates.
		AdminLocked:     true,
		ForceConnection: true,
		CanDisconnect:   false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateConnection(conn); err != nil {
		s.logger.Error("Failed to create connection",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
		return "", newError(KindInternal, "failed to create connection")
	}

	res := s.syncer.SyncTenant(ctx, tenant)
	if !res.Success {
		return fmt.Sprintf("connection created but sync failed: %s", res.Message), nil
	}
	return "connection created and synced successfully", nil
}

// FromRemote converts a remote client failure into a gateway error so route
// handlers can serialize it with the right kind.
func FromRemote(err error) *Error {
	var re *mfa.RemoteError
	if errors.As(err, &re) {
		if re.Kind == mfa.KindRejected {
			return &Error{
				Kind:    KindRemoteRejected,
				Message: re.Error(),
				Details: map[string]interface{}{
					"status_code": re.StatusCode,
					"body":        re.Body,
				},
			}
		}
		return newError(KindRemoteUnreachable, re.Error())
	}
	return AsError(err)
}
