package userctx

import (
	"context"

	"github.com/nkiryanov/crmauth/internal/models"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// Create a new context with verified access token claims
func New(ctx context.Context, claims models.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Extract the claims from the context
func FromContext(ctx context.Context) (models.TokenClaims, bool) {
	c, ok := ctx.Value(claimsKey).(models.TokenClaims)
	return c, ok
}
