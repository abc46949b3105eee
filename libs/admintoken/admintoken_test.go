package admintoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef"

func parse(t *testing.T, signed string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	return claims
}

func TestSign_NumericAdminID(t *testing.T) {
	issued := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	signed, err := Sign([]byte(testSecret), " 42 ", issued, 5*time.Minute)
	require.NoError(t, err)

	claims := parse(t, signed)
	assert.Equal(t, float64(42), claims["admin_id"])
	assert.Equal(t, float64(issued.Unix()), claims["iat"])
	assert.Equal(t, float64(issued.Add(5*time.Minute).Unix()), claims["exp"])
}

func TestSign_KeepsNonNumericAdminIDAsString(t *testing.T) {
	signed, err := Sign([]byte(testSecret), "ops-admin", time.Now(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "ops-admin", parse(t, signed)["admin_id"])
}

func TestSign_RejectsBadInput(t *testing.T) {
	_, err := Sign(nil, "1", time.Now(), time.Hour)
	assert.Error(t, err)

	_, err = Sign([]byte(testSecret), "1", time.Now(), 0)
	assert.Error(t, err)
}
