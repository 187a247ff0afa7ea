package auth

import (
	"context"

	"github.com/pinpincloud/internal/types"
)

// Principal is the authenticated caller of one request
type Principal struct {
	UserID      string
	Email       string
	DisplayName string
	Role        types.Role
}

// Can reports whether the principal's role grants capability
func (p Principal) Can(capability Capability) bool {
	return Allows(p.Role, capability)
}

type principalKey struct{}

// WithPrincipal scopes principal to ctx
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the principal set by the auth middleware
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
