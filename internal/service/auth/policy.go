package auth

import (
	"fmt"
	"slices"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/models"
)

// RequireRole passes if claims carry at least one of the roles
func RequireRole(claims models.TokenClaims, roles ...string) error {
	if slices.ContainsFunc(roles, claims.HasRole) {
		return nil
	}
	return fmt.Errorf("%w: one of roles %v required", apperrors.ErrForbidden, roles)
}
