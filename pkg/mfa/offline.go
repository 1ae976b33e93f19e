package mfa

import (
	"context"
	"encoding/json"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/db"
)

// OfflineClient serves bounded-random placeholder statistics when the remote
// MFA service is configured away entirely (demo or offline deployments).
// Every response is tagged synthetic in the logs and in the stats struct, so
// downstream code can keep it out of connection state.
type OfflineClient struct {
	logger *zap.Logger
}

func NewOfflineClient(logger *zap.Logger) *OfflineClient {
	return &OfflineClient{logger: logger}
}

func (o *OfflineClient) GetTenantStats(ctx context.Context, tenant *db.Tenant) (*TenantStats, error) {
	totalUsers := 10 + rand.IntN(91)
	stats := &TenantStats{
		TotalUsers:             totalUsers,
		ActiveUsers:            5 + rand.IntN(totalUsers-4),
		TotalAuthentications:   50 + rand.IntN(451),
		MonthlyAuthentications: 50 + rand.IntN(451),
		SuccessRate:            90 + rand.Float64()*10,
		Synthetic:              true,
	}

	o.logger.Info("Serving synthetic tenant stats",
		zap.String("tenant_id", tenant.ID.String()),
		zap.Bool("synthetic", true),
	)
	return stats, nil
}

func (o *OfflineClient) RegisterTenant(ctx context.Context, tenant *db.Tenant, payload map[string]interface{}) (json.RawMessage, error) {
	o.logSynthetic("tenant/register", tenant)
	return json.RawMessage(`{"registered": true, "synthetic": true}`), nil
}

func (o *OfflineClient) UpdateFeatures(ctx context.Context, tenant *db.Tenant, features map[string]interface{}) (json.RawMessage, error) {
	o.logSynthetic("tenant/features", tenant)
	return json.RawMessage(`{"updated": true, "synthetic": true}`), nil
}

func (o *OfflineClient) GetUsers(ctx context.Context, tenant *db.Tenant, limit, offset int) (*UserPage, error) {
	o.logSynthetic("tenant/users", tenant)
	return &UserPage{Users: []json.RawMessage{}, Total: 0}, nil
}

func (o *OfflineClient) GetAuthLogs(ctx context.Context, tenant *db.Tenant, days, limit int) (*AuthLogPage, error) {
	o.logSynthetic("tenant/auth-logs", tenant)
	return &AuthLogPage{Logs: []json.RawMessage{}, Total: 0}, nil
}

func (o *OfflineClient) Health(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"status": "offline", "synthetic": true}`), nil
}

func (o *OfflineClient) logSynthetic(endpoint string, tenant *db.Tenant) {
	fields := []zap.Field{
		zap.String("endpoint", endpoint),
		zap.Bool("synthetic", true),
	}
	if tenant != nil {
		fields = append(fields, zap.String("tenant_id", tenant.ID.String()))
	}
	o.logger.Info("Serving synthetic MFA response", fields...)
}
