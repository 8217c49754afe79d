package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognized by the platform.
const (
	RoleAdmin    = "admin"
	RoleCompany  = "company"
	RoleProvider = "provider"
)

// Principal is the authenticated actor issuing a request. Company principals
// carry the company they are bound to; provider principals carry their
// provider row. Admin principals carry neither.
type Principal struct {
	UserID     string
	Role       string
	CompanyID  *uuid.UUID
	ProviderID *uuid.UUID
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal set by the auth middleware.
// Returns nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
