// Package policy holds the pure access decisions for connection operations.
// It never touches storage; callers load the connection and act on the
// returned decision.
package policy

import (
	"github.com/google/uuid"

	"github.com/Kareem-Elnokali/system-creator/internal/db"
)

// Caller is the operator identity supplied by the external identity
// provider. IsSuperuser is the only privilege bit this core understands.
type Caller struct {
	ID          uuid.UUID
	IsSuperuser bool
}

type Action string

const (
	ActionReadStatus     Action = "read_status"
	ActionDisconnect     Action = "disconnect"
	ActionModifySecurity Action = "modify_security"
)

type DenyCode string

const (
	DenyNone       DenyCode = ""
	DenyPermission DenyCode = "PERMISSION_DENIED"
	DenyPolicy     DenyCode = "DISCONNECT_BLOCKED"
)

type Decision struct {
	Allowed bool
	Code    DenyCode
	Reason  string

	// Flag values at decision time, populated for policy blocks so the
	// caller can see exactly which gate failed.
	Details map[string]interface{}
}

func allow() Decision {
	return Decision{Allowed: true}
}

// Authorize decides whether caller may perform action on conn.
//
// Disconnecting takes two distinct conditions: a super-privileged caller AND
// all three connection gates open. A superuser facing closed gates must flip
// them in a separate ModifySecurity call first, so no single request can both
// unlock and sever a connection.
func Authorize(caller Caller, conn *db.Connection, action Action) Decision {
	switch action {
	case ActionReadStatus:
		// Any authenticated caller may read. Privilege only controls how
		// much of the security block they see, which is the gateway's job.
		return allow()

	case ActionModifySecurity:
		if !caller.IsSuperuser {
			return Decision{
				Code:   DenyPermission,
				Reason: "only system administrators can modify connection security settings",
			}
		}
		return allow()

	case ActionDisconnect:
		if !caller.IsSuperuser {
			return Decision{
				Code:   DenyPermission,
				Reason: "only system administrators can disconnect tenants",
			}
		}
		if !conn.DisconnectAllowed() {
			return Decision{
				Code:   DenyPolicy,
				Reason: "disconnection is blocked by security settings",
				Details: map[string]interface{}{
					"admin_locked":     conn.AdminLocked,
					"force_connection": conn.ForceConnection,
					"can_disconnect":   conn.CanDisconnect,
				},
			}
		}
		return allow()

	default:
		return Decision{
			Code:   DenyPermission,
			Reason: "unknown action",
		}
	}
}
