package identity

import (
	"github.com/golang-jwt/jwt"

	"storesync/internal/pkg/errs"
)

// tokenClaims defines the JWT claims the sync core reads from the bearer credential.
// The broker and the collaborator API verify the signature; the core only needs
// the subject and role to compute its topic set, so it parses without verifying.
type tokenClaims struct {
	jwt.StandardClaims

	// Role is the participant role embedded by the authentication service.
	Role string `json:"role"`
}

// FromToken derives the Identity from a bearer credential.
// An unparsable token, a missing subject, or an unknown role yields ErrInvalidToken.
func FromToken(raw string) (Identity, error) {
	claims := &tokenClaims{}

	parser := &jwt.Parser{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return Identity{}, errs.NewError(errs.ErrInvalidToken)
	}

	if claims.Subject == "" {
		return Identity{}, errs.NewError(errs.ErrInvalidToken)
	}

	role := Role(claims.Role)
	if !role.Valid() {
		role = RoleGuest
	}

	return Identity{ID: claims.Subject, Role: role}, nil
}
