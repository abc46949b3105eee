// Package admintoken mints the HS256 bearer tokens accepted by the admin
// complaints endpoint.
package admintoken

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sign returns a token carrying admin_id, iat and exp. Numeric admin IDs are
// sent as numbers, anything else as a string.
func Sign(secret []byte, adminID string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("admintoken: empty signing secret")
	}
	if ttl <= 0 {
		return "", errors.New("admintoken: ttl must be positive")
	}
	claims := jwt.MapClaims{
		"admin_id": adminIDClaim(adminID),
		"iat":      issuedAt.Unix(),
		"exp":      issuedAt.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func adminIDClaim(adminID string) any {
	adminID = strings.TrimSpace(adminID)
	if n, err := strconv.ParseInt(adminID, 10, 64); err == nil {
		return n
	}
	return adminID
}
