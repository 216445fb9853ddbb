package tokens

import "github.com/golang-jwt/jwt/v5"

// AccessClaims carry a point-in-time snapshot of the principal's role tags.
// Role changes on the server do not reach tokens already in flight; the short
// access TTL bounds how stale the snapshot can get.
type AccessClaims struct {
	Roles  []string `json:"roles"`
	UserID string   `json:"userId"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}
