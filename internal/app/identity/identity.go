/*
Package identity contains the data structures and logic for the authenticated identity.

It defines the Identity struct the sync core is driven by, the role taxonomy used
for topic gating and send permissions, and the derivation of an Identity from the
bearer credential's claims.
*/
package identity

// Role defines the participant's role within the storefront.
type Role string

const (
	// RoleGuest is an unauthenticated visitor.
	RoleGuest Role = "guest"

	// RoleCustomer is a signed-in end user.
	RoleCustomer Role = "customer"

	// RoleOperator is a back-office agent answering customer conversations.
	RoleOperator Role = "operator"

	// RoleManager is a back-office administrator with operator privileges.
	RoleManager Role = "manager"
)

// Privileged reports whether the role is granted the back-office topic set
// (operator pool messages, operator and global notifications).
func (r Role) Privileged() bool {
	return r == RoleOperator || r == RoleManager
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleCustomer, RoleOperator, RoleManager:
		return true
	}
	return false
}

// Identity represents the authenticated identity the sync core connects as.
// The core treats it as immutable input; a login, logout, or account switch
// produces a new Identity and forces a reconnect.
type Identity struct {

	// ID is the unique identifier of the user.
	ID string `json:"id"`

	// Role decides which topics are subscribed and which sends are permitted.
	Role Role `json:"role"`
}

// Zero reports whether the identity is empty (no user present).
func (i Identity) Zero() bool {
	return i.ID == ""
}
