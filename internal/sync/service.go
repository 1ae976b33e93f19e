// Package sync reconciles local usage counters and connection status against
// the remote MFA service's view.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/config"
	"github.com/Kareem-Elnokali/system-creator/internal/db"
	"github.com/Kareem-Elnokali/system-creator/pkg/mfa"
)

// Store is the slice of the repository the synchronizer needs.
type Store interface {
	GetConnection(tenantID uuid.UUID) (*db.Connection, error)
	CreateConnection(c *db.Connection) error
	ApplySyncSuccess(tenantID uuid.UUID, totalUsers, activeUsers, totalAuth, monthlyAuth int, now time.Time) (*db.Connection, error)
	MarkSyncError(tenantID uuid.UUID) error
	UpsertUsageStat(tenantID uuid.UUID, metric string, date time.Time, value int) error
	ListActiveTenants() ([]*db.Tenant, error)
}

// Recorder receives sync outcome observations for metrics. Optional.
type Recorder interface {
	RecordSync(tenantID string, success bool, elapsed time.Duration)
	SetTenantUsage(tenantID, metric string, value int)
}

// Result is the only thing a sync surfaces to callers: remote failures are
// converted into a connection state transition plus this value, never an
// error that escapes the synchronizer.
type Result struct {
	Success   bool   `json:"success"`
	Skipped   bool   `json:"skipped,omitempty"`
	Message   string `json:"message"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

type BatchResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type Service struct {
	store   Store
	remote  mfa.RemoteService
	metrics Recorder
	logger  *zap.Logger

	workerCount int
	remoteURL   string
}

func NewService(store Store, remote mfa.RemoteService, metrics Recorder, logger *zap.Logger, cfg *config.Config) *Service {
	workers := cfg.Sync.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		store:       store,
		remote:      remote,
		metrics:     metrics,
		logger:      logger,
		workerCount: workers,
		remoteURL:   cfg.MFA.BaseURL,
	}
}

// SyncTenant runs one reconciliation pass for a tenant. A missing connection
// is created in pending state first. Counters are replaced wholesale on
// success; on failure they keep their last-known values and the connection
// moves to the error state.
func (s *Service) SyncTenant(ctx context.Context, tenant *db.Tenant) Result {
	start := time.Now()

	conn, err := s.store.GetConnection(tenant.ID)
	if errors.Is(err, db.ErrNotFound) {
		conn = &db.Connection{
			TenantID:        tenant.ID,
			RemoteURL:       s.remoteURL,
			ConnectionKey:   tenant.APIKey,
			Status:          db.ConnPending,
			AdminLocked:     true,
			ForceConnection: true,
			CanDisconnect:   false,
			CreatedAt:       start,
			UpdatedAt:       start,
		}
		if err := s.store.CreateConnection(conn); err != nil {
			s.logger.Error("Failed to create pending connection",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err),
			)
			return Result{Message: fmt.Sprintf("failed to create connection: %v", err)}
		}
	} else if err != nil {
		return Result{Message: fmt.Sprintf("failed to load connection: %v", err)}
	}

	// A severed link is terminal. It never syncs and never transitions; only
	// a new CreateConnection re-links the tenant.
	if conn.Status == db.ConnDisconnected {
		s.logger.Info("Skipping severed connection",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("tenant", tenant.Name),
		)
		return Result{Skipped: true, Message: "connection is disconnected; create a new connection to re-link"}
	}

	stats, err := s.remote.GetTenantStats(ctx, tenant)
	if err != nil {
		if markErr := s.store.MarkSyncError(tenant.ID); markErr != nil {
			s.logger.Error("Failed to mark connection error",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(markErr),
			)
		}
		s.recordSync(tenant, false, start)
		s.logger.Warn("Tenant sync failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("tenant", tenant.Name),
			zap.Error(err),
		)
		return Result{Message: fmt.Sprintf("sync failed: %v", err)}
	}

	if stats.Synthetic {
		// Presentation fallback only: populate today's usage rows so
		// dashboards have data, but leave connection state, counters and
		// last_sync exactly as they were.
		today := start.Truncate(24 * time.Hour)
		if err := s.store.UpsertUsageStat(tenant.ID, db.MetricActiveUsers, today, stats.ActiveUsers); err != nil {
			return Result{Message: fmt.Sprintf("failed to record synthetic stats: %v", err)}
		}
		if err := s.store.UpsertUsageStat(tenant.ID, db.MetricAuthentications, today, stats.MonthlyAuthentications); err != nil {
			return Result{Message: fmt.Sprintf("failed to record synthetic stats: %v", err)}
		}

		s.logger.Info("Recorded synthetic usage stats",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Bool("synthetic", true),
		)
		return Result{Success: true, Synthetic: true, Message: "synthetic stats recorded (offline mode)"}
	}

	conn, err = s.store.ApplySyncSuccess(
		tenant.ID,
		stats.TotalUsers,
		stats.ActiveUsers,
		stats.TotalAuthentications,
		stats.MonthlyAuthentications,
		start,
	)
	if err != nil {
		s.recordSync(tenant, false, start)
		return Result{Message: fmt.Sprintf("failed to persist sync result: %v", err)}
	}

	s.recordSync(tenant, true, start)
	if s.metrics != nil {
		s.metrics.SetTenantUsage(tenant.ID.String(), db.MetricActiveUsers, stats.ActiveUsers)
		s.metrics.SetTenantUsage(tenant.ID.String(), db.MetricAuthentications, stats.MonthlyAuthentications)
	}
	s.logger.Info("Tenant sync completed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("tenant", tenant.Name),
		zap.String("status", string(conn.Status)),
		zap.Int("active_users", conn.ActiveUsers),
		zap.Duration("duration", time.Since(start)),
	)
	return Result{Success: true, Message: "sync completed successfully"}
}

// SyncAllActive reconciles every active tenant through a bounded worker
// pool. One tenant's failure never aborts the batch; cancellation stops
// between tenants so an in-flight reconciliation always finishes.
func (s *Service) SyncAllActive(ctx context.Context) (*BatchResult, error) {
	tenants, err := s.store.ListActiveTenants()
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	s.logger.Info("Starting batch sync",
		zap.Int("tenant_count", len(tenants)),
		zap.Int("worker_count", s.workerCount),
	)

	jobs := make(chan *db.Tenant)
	var mu gosync.Mutex
	result := &BatchResult{}
	var wg gosync.WaitGroup

	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tenant := range jobs {
				// Shutdown stops the feed, never a pass already in flight;
				// the remote client's own timeout bounds the detached pass.
				res := s.SyncTenant(context.WithoutCancel(ctx), tenant)

				mu.Lock()
				switch {
				case res.Skipped:
					result.Skipped++
				case res.Success:
					result.Success++
				default:
					result.Failed++
					result.Errors = append(result.Errors,
						fmt.Sprintf("sync failed for %s: %s", tenant.Name, res.Message))
				}
				mu.Unlock()
			}
		}()
	}

	for _, tenant := range tenants {
		select {
		case <-ctx.Done():
			s.logger.Warn("Batch sync cancelled", zap.Error(ctx.Err()))
			close(jobs)
			wg.Wait()
			return result, nil
		case jobs <- tenant:
		}
	}
	close(jobs)
	wg.Wait()

	s.logger.Info("Batch sync completed",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Service) recordSync(tenant *db.Tenant, success bool, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordSync(tenant.ID.String(), success, time.Since(start))
	}
}
