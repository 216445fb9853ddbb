package authz

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNotAuthenticated = errors.New("access denied: user not authenticated")
	ErrNoValidRoles     = errors.New("access denied: no valid role found")
)

// DeniedError reports an authenticated principal whose role set does not
// intersect the operation's required set. The message names both sets so a
// 403 body tells the caller exactly what was missing.
type DeniedError struct {
	PrincipalRoles []string
	RequiredRoles  []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: roles [%s] are not authorized, required roles: [%s]",
		strings.Join(e.PrincipalRoles, ", "), strings.Join(e.RequiredRoles, ", "))
}

// Authorize grants iff the intersection of the principal's roles and the
// required roles is non-empty (ANY-of, not ALL-of). It is a pure function and
// safe to call from any number of goroutines.
func Authorize(principalRoles, requiredRoles []string) error {
	if len(principalRoles) == 0 {
		return ErrNoValidRoles
	}
	for _, r := range principalRoles {
		if slices.Contains(requiredRoles, r) {
			return nil
		}
	}
	return &DeniedError{PrincipalRoles: principalRoles, RequiredRoles: requiredRoles}
}
