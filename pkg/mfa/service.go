package mfa

import (
	"context"
	"encoding/json"

	"github.com/Kareem-Elnokali/system-creator/internal/db"
)

// TenantStats is the remote service's view of one tenant. Synthetic marks
// stats fabricated by the offline client; they may feed dashboards but must
// never be recorded as a real sync.
type TenantStats struct {
	TotalUsers             int     `json:"total_users"`
	ActiveUsers            int     `json:"active_users"`
	TotalAuthentications   int     `json:"total_authentications"`
	MonthlyAuthentications int     `json:"monthly_authentications"`
	SuccessRate            float64 `json:"success_rate"`

	Synthetic bool `json:"-"`
}

type UserPage struct {
	Users []json.RawMessage `json:"users"`
	Total int               `json:"total"`
}

type AuthLogPage struct {
	Logs  []json.RawMessage `json:"logs"`
	Total int               `json:"total"`
}

// RemoteService is the capability boundary to the MFA system. Two
// implementations exist: the HTTP-backed Client and the OfflineClient,
// chosen once at startup from configuration.
type RemoteService interface {
	GetTenantStats(ctx context.Context, tenant *db.Tenant) (*TenantStats, error)
	RegisterTenant(ctx context.Context, tenant *db.Tenant, payload map[string]interface{}) (json.RawMessage, error)
	UpdateFeatures(ctx context.Context, tenant *db.Tenant, features map[string]interface{}) (json.RawMessage, error)
	GetUsers(ctx context.Context, tenant *db.Tenant, limit, offset int) (*UserPage, error)
	GetAuthLogs(ctx context.Context, tenant *db.Tenant, days, limit int) (*AuthLogPage, error)
	Health(ctx context.Context) (json.RawMessage, error)
}
