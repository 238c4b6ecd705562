// Package tenant enforces the isolation boundary: every repository call is
// scoped to the session tenant through a single fail-closed chokepoint.
// There is no unscoped fallback and no per-request tenant parameter.
package tenant

import (
	"context"
	"fmt"
)

// Context is the tenant scope attached to a session. It is established once
// from the authenticated identity and never from per-request input, and it is
// immutable for the session's lifetime. Switching tenants means a new session
// and a fully invalidated cache.
type Context struct {
	TenantID string
}

type tenantContextKey struct{}

// WithTenant binds the tenant scope to the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey{}, Context{TenantID: tenantID})
}

// FromContext extracts the tenant scope, reporting whether one is present.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	tc, ok := ctx.Value(tenantContextKey{}).(Context)
	if !ok || tc.TenantID == "" {
		return Context{}, false
	}
	return tc, true
}

// MissingTenantError reports an operation attempted without tenant scope.
// The enforcer fails closed: there is no unscoped fallback.
type MissingTenantError struct {
	Op string
}

func (e *MissingTenantError) Error() string {
	return fmt.Sprintf("tenant: %s attempted without tenant scope", e.Op)
}
