package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanBasic      PlanTier = "basic"
	PlanPremium    PlanTier = "premium"
	PlanEnterprise PlanTier = "enterprise"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantPending   TenantStatus = "pending"
	TenantCancelled TenantStatus = "cancelled"
)

type ConnectionStatus string

const (
	ConnPending      ConnectionStatus = "pending"
	ConnConnected    ConnectionStatus = "connected"
	ConnActive       ConnectionStatus = "active"
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnError        ConnectionStatus = "error"
)

// Usage metric names. Keyed with the date, one row per (tenant, metric, day).
const (
	MetricActiveUsers     = "active_users"
	MetricAuthentications = "authentications"
	MetricAPICalls        = "api_calls"
)

type Tenant struct {
	ID     uuid.UUID `json:"id" db:"id"`
	Name   string    `json:"name" db:"name"`
	Domain string    `json:"domain" db:"domain"`

	OwnerID      uuid.UUID `json:"owner_id" db:"owner_id"`
	ContactEmail string    `json:"contact_email" db:"contact_email"`
	ContactName  string    `json:"contact_name" db:"contact_name"`

	Plan   PlanTier     `json:"plan" db:"plan"`
	Status TenantStatus `json:"status" db:"status"`

	// Credential pair, generated once at creation. The secret is stored
	// bcrypt-hashed and never returned after the create response.
	APIKey        string `json:"-" db:"api_key"`
	APISecretHash string `json:"-" db:"api_secret_hash"`

	MaxUsers       int `json:"max_users" db:"max_users"`
	MaxMonthlyAuth int `json:"max_monthly_authentications" db:"max_monthly_authentications"`

	DomainVerified bool `json:"domain_verified" db:"domain_verified"`

	Settings  JSONB     `json:"settings" db:"settings"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PlanLimits returns the default usage ceilings for a plan tier.
func PlanLimits(plan PlanTier) (maxUsers, maxMonthlyAuth int) {
	switch plan {
	case PlanBasic:
		return 1000, 10000
	case PlanPremium:
		return 10000, 100000
	case PlanEnterprise:
		return 100000, 1000000
	default:
		return 100, 1000
	}
}

// Connection is the managed link between a tenant and the remote MFA service.
// Security flags default closed: a fresh connection cannot be severed by
// anyone until an administrator deliberately opens all three gates.
type Connection struct {
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`

	RemoteURL     string `json:"remote_url" db:"remote_url"`
	ConnectionKey string `json:"-" db:"connection_key"`

	IsConnected bool             `json:"is_connected" db:"is_connected"`
	Status      ConnectionStatus `json:"status" db:"status"`
	LastSync    *time.Time       `json:"last_sync" db:"last_sync"`

	AdminLocked     bool `json:"admin_locked" db:"admin_locked"`
	ForceConnection bool `json:"force_connection" db:"force_connection"`
	CanDisconnect   bool `json:"can_disconnect" db:"can_disconnect"`

	// Last-known-good snapshot from the remote service, replaced wholesale
	// on every successful sync.
	TotalUsers           int `json:"total_users" db:"total_users"`
	ActiveUsers          int `json:"active_users" db:"active_users"`
	TotalAuthentications int `json:"total_authentications" db:"total_authentications"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CanTenantModify reports whether the tenant itself may touch this connection.
func (c *Connection) CanTenantModify() bool {
	return !c.AdminLocked && c.CanDisconnect
}

// DisconnectAllowed is the single authority for the disconnect gate: all
// three flags must be open at once. Callers must not re-derive this.
func (c *Connection) DisconnectAllowed() bool {
	return c.CanDisconnect && !c.ForceConnection && !c.AdminLocked
}

// NextSyncStatus returns the status after one successful sync:
// pending moves to connected, connected moves to active, active stays.
// Disconnected rows never reach here: a severed link refuses sync writes
// until a new connection replaces it.
func NextSyncStatus(prev ConnectionStatus) ConnectionStatus {
	switch prev {
	case ConnConnected, ConnActive:
		return ConnActive
	default:
		return ConnConnected
	}
}

type UsageStat struct {
	ID       int64     `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Metric   string    `json:"metric" db:"metric"`
	Value    int       `json:"value" db:"value"`
	Date     time.Time `json:"date" db:"date"`
}

// APICallLog is an append-only audit row, one per remote call attempt.
type APICallLog struct {
	ID             int64     `json:"id" db:"id"`
	TenantID       uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Endpoint       string    `json:"endpoint" db:"endpoint"`
	Method         string    `json:"method" db:"method"`
	StatusCode     int       `json:"status_code" db:"status_code"`
	ResponseTimeMs int       `json:"response_time_ms" db:"response_time_ms"`
	IPAddress      string    `json:"ip_address" db:"ip_address"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
}

// SystemSettings is the singleton configuration row (id always 1, enforced
// by the schema, not by in-process global state).
type SystemSettings struct {
	ID int `json:"-" db:"id"`

	ServiceName        string `json:"service_name" db:"service_name"`
	ServiceDescription string `json:"service_description" db:"service_description"`

	MaxTenantsPerOwner int `json:"max_tenants_per_owner" db:"max_tenants_per_owner"`
	DefaultUserLimit   int `json:"default_user_limit" db:"default_user_limit"`
	DefaultAuthLimit   int `json:"default_auth_limit" db:"default_auth_limit"`

	AllowFreePlan             bool `json:"allow_free_plan" db:"allow_free_plan"`
	RequireDomainVerification bool `json:"require_domain_verification" db:"require_domain_verification"`

	AdminEmail string `json:"admin_email" db:"admin_email"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(value.([]byte), j)
}
