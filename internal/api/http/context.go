package http

import (
	"context"

	"equiprent-backend/internal/security"
)

type claimsKey struct{}

// WithClaims stores validated token claims on ctx.
func WithClaims(ctx context.Context, claims *security.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) (*security.UserClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*security.UserClaims)
	return claims, ok && claims != nil
}

// CompanyIDFromContext returns the tenant the request is scoped to.
func CompanyIDFromContext(ctx context.Context) (int64, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0, false
	}
	return claims.CompanyID, true
}
