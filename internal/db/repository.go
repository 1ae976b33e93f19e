package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDisconnected marks writes refused because the link was deliberately
	// severed. Only a new CreateConnection may revive a disconnected row.
	ErrDisconnected = errors.New("connection is disconnected")
)

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string, maxConns, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Tenant operations

func (r *Repository) CreateTenant(t *Tenant) error {
	query := `
        INSERT INTO tenants (
            id, name, domain, owner_id, contact_email, contact_name,
            plan, status, api_key, api_secret_hash,
            max_users, max_monthly_authentications, domain_verified,
            settings, created_at, updated_at
        ) VALUES (
            :id, :name, :domain, :owner_id, :contact_email, :contact_name,
            :plan, :status, :api_key, :api_secret_hash,
            :max_users, :max_monthly_authentications, :domain_verified,
            :settings, :created_at, :updated_at
        )`

	_, err := r.db.NamedExec(query, t)
	return err
}

func (r *Repository) GetTenant(id uuid.UUID) (*Tenant, error) {
	var t Tenant
	query := `SELECT * FROM tenants WHERE id = $1`
	err := r.db.Get(&t, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return &t, err
}

func (r *Repository) ListTenants(status, plan, search string, limit, offset int) ([]*Tenant, error) {
	tenants := []*Tenant{}
	query := `
        SELECT * FROM tenants
        WHERE ($1 = '' OR status = $1)
        AND ($2 = '' OR plan = $2)
        AND ($3 = '' OR name ILIKE '%' || $3 || '%' OR domain ILIKE '%' || $3 || '%')
        ORDER BY created_at DESC
        LIMIT $4 OFFSET $5`

	err := r.db.Select(&tenants, query, status, plan, search, limit, offset)
	return tenants, err
}

func (r *Repository) ListActiveTenants() ([]*Tenant, error) {
	tenants := []*Tenant{}
	query := `SELECT * FROM tenants WHERE status = $1 ORDER BY created_at`
	err := r.db.Select(&tenants, query, TenantActive)
	return tenants, err
}

func (r *Repository) UpdateTenantStatus(id uuid.UUID, status TenantStatus) error {
	query := `UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.Exec(query, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) SetTenantDomainVerified(id uuid.UUID, verified bool) error {
	query := `UPDATE tenants SET domain_verified = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(query, id, verified)
	return err
}

func (r *Repository) DomainExists(domain string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM tenants WHERE domain = $1)`
	err := r.db.Get(&exists, query, domain)
	return exists, err
}

func (r *Repository) CountTenantsByOwner(ownerID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM tenants WHERE owner_id = $1`
	err := r.db.Get(&count, query, ownerID)
	return count, err
}

// Connection operations

func (r *Repository) GetConnection(tenantID uuid.UUID) (*Connection, error) {
	var c Connection
	query := `SELECT * FROM connections WHERE tenant_id = $1`
	err := r.db.Get(&c, query, tenantID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection for tenant %s: %w", tenantID, ErrNotFound)
	}
	return &c, err
}

func (r *Repository) CreateConnection(c *Connection) error {
	query := `
        INSERT INTO connections (
            tenant_id, remote_url, connection_key, is_connected, status,
            last_sync, admin_locked, force_connection, can_disconnect,
            total_users, active_users, total_authentications,
            created_at, updated_at
        ) VALUES (
            :tenant_id, :remote_url, :connection_key, :is_connected, :status,
            :last_sync, :admin_locked, :force_connection, :can_disconnect,
            :total_users, :active_users, :total_authentications,
            :created_at, :updated_at
        )`

	_, err := r.db.NamedExec(query, c)
	return err
}

func (r *Repository) UpdateSecurityFlags(c *Connection) error {
	query := `
        UPDATE connections SET
            admin_locked = :admin_locked,
            force_connection = :force_connection,
            can_disconnect = :can_disconnect,
            updated_at = NOW()
        WHERE tenant_id = :tenant_id`

	_, err := r.db.NamedExec(query, c)
	return err
}

func (r *Repository) SetDisconnected(tenantID uuid.UUID) error {
	query := `
        UPDATE connections SET
            is_connected = false,
            status = $2,
            updated_at = NOW()
        WHERE tenant_id = $1`

	res, err := r.db.Exec(query, tenantID, ConnDisconnected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection for tenant %s: %w", tenantID, ErrNotFound)
	}
	return nil
}

// ApplySyncSuccess replaces the counters, advances the status machine and
// upserts today's usage rows in one transaction. The row lock serializes
// concurrent syncs for the same tenant.
func (r *Repository) ApplySyncSuccess(tenantID uuid.UUID, totalUsers, activeUsers, totalAuth, monthlyAuth int, now time.Time) (*Connection, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var c Connection
	err = tx.Get(&c, `SELECT * FROM connections WHERE tenant_id = $1 FOR UPDATE`, tenantID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection for tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	// Disconnected is terminal: a sync racing a disconnect must lose.
	if c.Status == ConnDisconnected {
		return nil, fmt.Errorf("connection for tenant %s: %w", tenantID, ErrDisconnected)
	}

	c.TotalUsers = totalUsers
	c.ActiveUsers = activeUsers
	c.TotalAuthentications = totalAuth
	c.IsConnected = true
	c.Status = NextSyncStatus(c.Status)
	c.LastSync = &now
	c.UpdatedAt = now

	query := `
        UPDATE connections SET
            total_users = :total_users,
            active_users = :active_users,
            total_authentications = :total_authentications,
            is_connected = :is_connected,
            status = :status,
            last_sync = :last_sync,
            updated_at = :updated_at
        WHERE tenant_id = :tenant_id`

	if _, err := tx.NamedExec(query, &c); err != nil {
		return nil, err
	}

	today := now.Truncate(24 * time.Hour)
	if err := upsertUsageStat(tx, tenantID, MetricActiveUsers, today, activeUsers); err != nil {
		return nil, err
	}
	if err := upsertUsageStat(tx, tenantID, MetricAuthentications, today, monthlyAuth); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkSyncError flips the connection into the error state. Counters,
// last_sync and today's usage rows stay untouched, and a severed connection
// stays disconnected.
func (r *Repository) MarkSyncError(tenantID uuid.UUID) error {
	query := `
        UPDATE connections SET
            is_connected = false,
            status = $2,
            updated_at = NOW()
        WHERE tenant_id = $1 AND status <> $3`

	res, err := r.db.Exec(query, tenantID, ConnError, ConnDisconnected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the row is missing or the link is severed; severed rows
		// stay put.
		if _, err := r.GetConnection(tenantID); err != nil {
			return err
		}
	}
	return nil
}

// Usage stats

func upsertUsageStat(tx *sqlx.Tx, tenantID uuid.UUID, metric string, date time.Time, value int) error {
	query := `
        INSERT INTO usage_stats (tenant_id, metric, value, date)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (tenant_id, metric, date) DO UPDATE SET value = $3`

	_, err := tx.Exec(query, tenantID, metric, value, date)
	return err
}

func (r *Repository) UpsertUsageStat(tenantID uuid.UUID, metric string, date time.Time, value int) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertUsageStat(tx, tenantID, metric, date.Truncate(24*time.Hour), value); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) GetUsageStats(tenantID uuid.UUID, since time.Time) ([]*UsageStat, error) {
	stats := []*UsageStat{}
	query := `
        SELECT * FROM usage_stats
        WHERE tenant_id = $1 AND date >= $2
        ORDER BY date DESC, metric`

	err := r.db.Select(&stats, query, tenantID, since)
	return stats, err
}

// API call log. Append-only: rows are never updated or pruned here,
// retrieval is just windowed.

func (r *Repository) LogAPICall(l *APICallLog) error {
	query := `
        INSERT INTO api_call_logs (
            tenant_id, endpoint, method, status_code,
            response_time_ms, ip_address, user_agent, timestamp
        ) VALUES (
            :tenant_id, :endpoint, :method, :status_code,
            :response_time_ms, :ip_address, :user_agent, :timestamp
        )`

	_, err := r.db.NamedExec(query, l)
	return err
}

func (r *Repository) GetAPICallLogs(tenantID uuid.UUID, since time.Time, limit int) ([]*APICallLog, error) {
	logs := []*APICallLog{}
	query := `
        SELECT * FROM api_call_logs
        WHERE tenant_id = $1 AND timestamp >= $2
        ORDER BY timestamp DESC
        LIMIT $3`

	err := r.db.Select(&logs, query, tenantID, since, limit)
	return logs, err
}

// System settings (singleton row)

func (r *Repository) GetSettings() (*SystemSettings, error) {
	var s SystemSettings
	err := r.db.Get(&s, `SELECT * FROM system_settings WHERE id = 1`)
	if err == sql.ErrNoRows {
		insert := `
            INSERT INTO system_settings (id) VALUES (1)
            ON CONFLICT (id) DO NOTHING`
		if _, err := r.db.Exec(insert); err != nil {
			return nil, err
		}
		err = r.db.Get(&s, `SELECT * FROM system_settings WHERE id = 1`)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) UpdateSettings(s *SystemSettings) error {
	s.ID = 1
	query := `
        UPDATE system_settings SET
            service_name = :service_name,
            service_description = :service_description,
            max_tenants_per_owner = :max_tenants_per_owner,
            default_user_limit = :default_user_limit,
            default_auth_limit = :default_auth_limit,
            allow_free_plan = :allow_free_plan,
            require_domain_verification = :require_domain_verification,
            admin_email = :admin_email,
            updated_at = NOW()
        WHERE id = :id`

	_, err := r.db.NamedExec(query, s)
	return err
}

// Dashboard aggregates

type Overview struct {
	TenantsByStatus map[string]int `json:"tenants_by_status"`
	TenantsByPlan   map[string]int `json:"tenants_by_plan"`
	ConnectedCount  int            `json:"connected_tenants"`
	APICalls24h     int            `json:"api_calls_24h"`
	APIErrors24h    int            `json:"api_errors_24h"`
}

func (r *Repository) GetOverview() (*Overview, error) {
	o := &Overview{
		TenantsByStatus: make(map[string]int),
		TenantsByPlan:   make(map[string]int),
	}

	rows, err := r.db.Queryx(`SELECT status, COUNT(*) FROM tenants GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		o.TenantsByStatus[status] = count
	}

	rows, err = r.db.Queryx(`SELECT plan, COUNT(*) FROM tenants GROUP BY plan`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var plan string
		var count int
		if err := rows.Scan(&plan, &count); err != nil {
			return nil, err
		}
		o.TenantsByPlan[plan] = count
	}

	if err := r.db.Get(&o.ConnectedCount,
		`SELECT COUNT(*) FROM connections WHERE is_connected = true`); err != nil {
		return nil, err
	}

	since := time.Now().Add(-24 * time.Hour)
	if err := r.db.Get(&o.APICalls24h,
		`SELECT COUNT(*) FROM api_call_logs WHERE timestamp >= $1`, since); err != nil {
		return nil, err
	}
	if err := r.db.Get(&o.APIErrors24h,
		`SELECT COUNT(*) FROM api_call_logs WHERE timestamp >= $1 AND status_code >= 400`, since); err != nil {
		return nil, err
	}

	return o, nil
}
