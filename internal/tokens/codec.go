package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature covers every way a token can be malformed: wrong
	// signature, wrong signing method, truncated payload, wrong token type.
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Codec signs and verifies the two bearer token kinds. Access and refresh
// tokens use separate HS256 secrets so one leaked key cannot forge the other
// kind.
type Codec struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// IssueAccess signs an access token for the user with a snapshot of their
// current role set. Returns the token and its expiry.
func (c *Codec) IssueAccess(username, userID string, roles []string) (string, time.Time, error) {
	issuedAt := c.now()
	exp := issuedAt.Add(c.AccessTTL)
	claims := AccessClaims{
		Roles:  roles,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// IssueRefresh signs a refresh token. The uuid JTI gives each token a unique
// identity in the ledger even when one user logs in from several devices in
// the same second.
func (c *Codec) IssueRefresh(username, userID string) (string, time.Time, error) {
	issuedAt := c.now()
	exp := issuedAt.Add(c.RefreshTTL)
	claims := RefreshClaims{
		UserID:    userID,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// VerifyAccess checks signature integrity first, then expiry. Every parse
// failure is normalized so callers never see a raw library error.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(tokenStr, &claims, c.AccessSecret); err != nil {
		return nil, err
	}
	return &claims, nil
}

// VerifyRefresh additionally requires the token_type claim, so an access
// token presented on the refresh path is rejected as malformed.
func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(tokenStr, &claims, c.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != "refresh" {
		return nil, ErrInvalidSignature
	}
	return &claims, nil
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(c.now))
	switch {
	case err == nil && tkn.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalidSignature
	}
}
