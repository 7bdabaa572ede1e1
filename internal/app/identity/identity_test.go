package identity

import (
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storesync/internal/pkg/errs"
)

func signToken(t *testing.T, subject, role string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &tokenClaims{
		StandardClaims: jwt.StandardClaims{Subject: subject},
		Role:           role,
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestFromToken(t *testing.T) {
	id, err := FromToken(signToken(t, "u-1", "customer"))
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "u-1", Role: RoleCustomer}, id)
}

func TestFromTokenUnknownRoleFallsBackToGuest(t *testing.T) {
	id, err := FromToken(signToken(t, "u-1", "superuser"))
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, id.Role)
}

func TestFromTokenMissingSubject(t *testing.T) {
	_, err := FromToken(signToken(t, "", "customer"))
	assert.ErrorIs(t, err, errs.NewError(errs.ErrInvalidToken))
}

func TestFromTokenGarbage(t *testing.T) {
	_, err := FromToken("not-a-jwt")
	assert.ErrorIs(t, err, errs.NewError(errs.ErrInvalidToken))
}

func TestRolePrivileged(t *testing.T) {
	assert.True(t, RoleOperator.Privileged())
	assert.True(t, RoleManager.Privileged())
	assert.False(t, RoleCustomer.Privileged())
	assert.False(t, RoleGuest.Privileged())
}

func TestIdentityZero(t *testing.T) {
	assert.True(t, Identity{}.Zero())
	assert.False(t, Identity{ID: "u-1"}.Zero())
}
