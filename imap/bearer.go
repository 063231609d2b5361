package imap

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// inspectBearerToken makes a best-effort, unverified attempt to read an
// XOAUTH2 bearer token's expiry for logging purposes only. It never gates
// the connection: a token that is not a parseable JWT (opaque OAuth access
// tokens from many providers are not) simply yields ok=false.
func inspectBearerToken(token string) (expiresAt time.Time, ok bool) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
