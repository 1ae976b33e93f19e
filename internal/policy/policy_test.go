package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kareem-Elnokali/system-creator/internal/db"
)

func conn(adminLocked, forceConnection, canDisconnect bool) *db.Connection {
	return &db.Connection{
		TenantID:        uuid.New(),
		Status:          db.ConnActive,
		AdminLocked:     adminLocked,
		ForceConnection: forceConnection,
		CanDisconnect:   canDisconnect,
	}
}

func superuser() Caller {
	return Caller{ID: uuid.New(), IsSuperuser: true}
}

func regular() Caller {
	return Caller{ID: uuid.New(), IsSuperuser: false}
}

func TestAuthorizeReadStatus(t *testing.T) {
	// Reads are open to any authenticated caller regardless of flags.
	d := Authorize(regular(), conn(true, true, false), ActionReadStatus)
	assert.True(t, d.Allowed)

	d = Authorize(superuser(), conn(true, true, false), ActionReadStatus)
	assert.True(t, d.Allowed)
}

func TestAuthorizeDisconnectFlagCube(t *testing.T) {
	// Exactly one of the eight flag combinations opens the disconnect gate.
	tests := []struct {
		name            string
		adminLocked     bool
		forceConnection bool
		canDisconnect   bool
		allowed         bool
	}{
		{"all gates open", false, false, true, true},
		{"admin locked", true, false, true, false},
		{"forced connection", false, true, true, false},
		{"disconnect disabled", false, false, false, false},
		{"locked and forced", true, true, true, false},
		{"locked and disabled", true, false, false, false},
		{"forced and disabled", false, true, false, false},
		{"secure defaults", true, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(superuser(), conn(tt.adminLocked, tt.forceConnection, tt.canDisconnect), ActionDisconnect)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, DenyPolicy, d.Code)
			}
		})
	}
}

func TestAuthorizeDisconnectRequiresSuperuser(t *testing.T) {
	// Privilege is checked before policy: a regular caller is turned away
	// with a permission code even when every gate is open.
	d := Authorize(regular(), conn(false, false, true), ActionDisconnect)
	require.False(t, d.Allowed)
	assert.Equal(t, DenyPermission, d.Code)
	assert.Nil(t, d.Details)
}

func TestAuthorizeDisconnectBlockedDetails(t *testing.T) {
	d := Authorize(superuser(), conn(true, true, false), ActionDisconnect)
	require.False(t, d.Allowed)
	require.Equal(t, DenyPolicy, d.Code)

	// The decision reports the exact flag values so the caller can see
	// which gate failed.
	assert.Equal(t, true, d.Details["admin_locked"])
	assert.Equal(t, true, d.Details["force_connection"])
	assert.Equal(t, false, d.Details["can_disconnect"])
}

func TestAuthorizeModifySecurity(t *testing.T) {
	d := Authorize(regular(), conn(false, false, true), ActionModifySecurity)
	require.False(t, d.Allowed)
	assert.Equal(t, DenyPermission, d.Code)

	// Superusers may modify security even on a fully locked connection.
	d = Authorize(superuser(), conn(true, true, false), ActionModifySecurity)
	assert.True(t, d.Allowed)
}

func TestAuthorizeUnknownAction(t *testing.T) {
	d := Authorize(superuser(), conn(false, false, true), Action("drop_database"))
	require.False(t, d.Allowed)
	assert.Equal(t, DenyPermission, d.Code)
}
