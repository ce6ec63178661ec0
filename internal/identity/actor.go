// Package identity is the thin boundary to the external identity provider.
// The core only ever needs an Actor — an identifier plus a role label — and a
// capability check; authentication itself happens elsewhere.
package identity

import "errors"

// ErrForbidden is returned when an actor's role lacks the capability for the
// requested operation. Enforced at the service boundary, never only in a UI.
var ErrForbidden = errors.New("identity: actor role lacks required capability")

// Actor identifies who performed an operation.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Platform roles.
const (
	RoleAdmin     = "admin"
	RoleCorporate = "corporate"
	RoleNGO       = "ngo"
	RoleSystem    = "system"
)

// Capability names checked at the ledger's write boundaries.
const (
	CapAppendAudit      = "append_audit"
	CapTransitionCredit = "transition_credit"
	CapOverrideCredit   = "override_credit"
)

// capabilities maps each capability to the roles allowed to exercise it.
var capabilities = map[string]map[string]bool{
	CapAppendAudit: {
		RoleAdmin:     true,
		RoleCorporate: true,
		RoleNGO:       true,
		RoleSystem:    true,
	},
	CapTransitionCredit: {
		RoleAdmin:  true,
		RoleSystem: true,
	},
	CapOverrideCredit: {
		RoleAdmin: true,
	},
}

// Allowed reports whether role may exercise the named capability.
func Allowed(role, capability string) bool {
	return capabilities[capability][role]
}
