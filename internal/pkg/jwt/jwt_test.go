package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken("alice", RoleOperator, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
	require.Equal(t, RoleOperator, claims.Role)

	_, err = ParseToken(token, []byte("other"))
	require.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken("alice", RoleOperator, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}

func TestEmptySubject(t *testing.T) {
	_, err := GenerateToken("", RoleOperator, []byte("s"), time.Hour)
	require.Error(t, err)
}
