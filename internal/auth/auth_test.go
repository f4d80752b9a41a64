package auth

import (
	"testing"
	"time"

	"tenapay/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = &config.AuthConfig{
	Secret:      "test-secret",
	ExpiryHours: 1,
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testCfg, 42, "ADMIN")
	require.NoError(t, err)

	claims, err := ParseToken(testCfg, token)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken(testCfg, 42, "USER")
	require.NoError(t, err)

	other := &config.AuthConfig{Secret: "different-secret", ExpiryHours: 1}
	_, err = ParseToken(other, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	now := time.Now()
	claims := &Claims{
		UserID: 42,
		Role:   "USER",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-1 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	_, err = ParseToken(testCfg, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken(testCfg, "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
